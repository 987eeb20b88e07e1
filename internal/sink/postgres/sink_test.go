package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sam-opportunity-harvester/internal/harvest"
)

type fixedIDs struct{ id string }

func (f fixedIDs) NewID() (string, error) { return f.id, nil }

const rowID = "0190b1d2-0000-7000-8000-000000000001"

func TestPushInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	sink, err := NewWithPool(mock, "", "", fixedIDs{id: rowID})
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	rec := harvest.OpportunityRecord{
		OpportunityID: "opp-1",
		Title:         "Widgets",
		HarvestRunID:  "run-1",
		ScrapedAt:     now,
	}

	mock.ExpectExec("INSERT INTO opportunity_records").
		WithArgs(rowID, "run-1", "opp-1", now, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, sink.Push(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPushWrapsExecError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	sink, err := NewWithPool(mock, "records", "runs", fixedIDs{id: rowID})
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO records").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("duplicate key"))

	err = sink.Push(context.Background(), harvest.OpportunityRecord{OpportunityID: "opp-1"})
	require.ErrorContains(t, err, "insert record")
	require.NotErrorIs(t, err, harvest.ErrSinkUnavailable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPushConnectErrorIsUnavailable(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, connErr := pgconn.Connect(ctx, "postgres://harvest@127.0.0.1:1/harvest?sslmode=disable&connect_timeout=1")
	var target *pgconn.ConnectError
	require.ErrorAs(t, connErr, &target)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	sink, err := NewWithPool(mock, "", "", fixedIDs{id: rowID})
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO opportunity_records").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(connErr)

	err = sink.Push(context.Background(), harvest.OpportunityRecord{OpportunityID: "opp-1"})
	require.ErrorIs(t, err, harvest.ErrSinkUnavailable)
	require.ErrorContains(t, err, "insert record")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPushRequiresOpportunityID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	sink, err := NewWithPool(mock, "", "", fixedIDs{id: rowID})
	require.NoError(t, err)
	require.Error(t, sink.Push(context.Background(), harvest.OpportunityRecord{}))
}

func TestEnsureSchemaCreatesTables(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	sink, err := NewWithPool(mock, "", "", fixedIDs{id: rowID})
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS opportunity_records").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS harvest_runs").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, sink.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRunUpserts(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	sink, err := NewWithPool(mock, "", "", fixedIDs{id: rowID})
	require.NoError(t, err)

	started := time.Unix(1700000000, 0).UTC()
	finished := started.Add(time.Minute)
	stats := harvest.RunStats{
		RunID:       "run-1",
		StartedAt:   started,
		FinishedAt:  &finished,
		Pages:       2,
		Emitted:     30,
		Duplicates:  1,
		Attachments: map[harvest.AttachmentStatus]int{harvest.AttachmentDownloaded: 4},
	}

	mock.ExpectExec("INSERT INTO harvest_runs").
		WithArgs("run-1", started, &finished, 2, 30, 1, 0,
			[]byte(`{"downloaded":4}`), (*string)(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, sink.RecordRun(context.Background(), stats))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRunRequiresRunID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	sink, err := NewWithPool(mock, "", "", fixedIDs{id: rowID})
	require.NoError(t, err)
	require.Error(t, sink.RecordRun(context.Background(), harvest.RunStats{}))
}

func TestNewWithPoolValidatesTables(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(mock, "records; DROP TABLE x", "", fixedIDs{})
	require.ErrorContains(t, err, "invalid table name")

	_, err = NewWithPool(nil, "", "", fixedIDs{})
	require.Error(t, err)

	_, err = NewWithPool(mock, "", "", nil)
	require.Error(t, err)
}
