// Package postgres stores opportunity records and run summaries in Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/sam-opportunity-harvester/internal/harvest"
)

const (
	defaultTable    = "opportunity_records"
	defaultRunTable = "harvest_runs"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for record rows.
type Config struct {
	DSN             string
	Table           string
	RunTable        string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Sink appends one row per pushed record. Rows are never updated, so a
// record delivered twice yields two rows.
type Sink struct {
	pool     execCloser
	table    string
	runTable string
	ids      harvest.IDGenerator
}

var _ harvest.RecordSink = (*Sink)(nil)

// New connects to Postgres using cfg.
func New(ctx context.Context, cfg Config, ids harvest.IDGenerator) (*Sink, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewWithPool(pool, cfg.Table, cfg.RunTable, ids)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool constructs a sink from an existing pool (primarily for testing).
func NewWithPool(pool execCloser, table, runTable string, ids harvest.IDGenerator) (*Sink, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if ids == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	if table == "" {
		table = defaultTable
	}
	if runTable == "" {
		runTable = defaultRunTable
	}
	for _, name := range []string{table, runTable} {
		if !validTableName.MatchString(name) {
			return nil, fmt.Errorf("invalid table name %q", name)
		}
	}
	return &Sink{pool: pool, table: table, runTable: runTable, ids: ids}, nil
}

// EnsureSchema creates the record and run tables when missing.
func (s *Sink) EnsureSchema(ctx context.Context) error {
	records := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id uuid PRIMARY KEY,
	harvest_run_id text NOT NULL,
	opportunity_id text NOT NULL,
	scraped_at timestamptz NOT NULL,
	payload jsonb NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, records); err != nil {
		return wrapExecErr("create record table", err)
	}
	runs := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id text PRIMARY KEY,
	started_at timestamptz NOT NULL,
	finished_at timestamptz,
	pages integer NOT NULL,
	emitted integer NOT NULL,
	duplicates integer NOT NULL,
	failed_records integer NOT NULL,
	attachments jsonb NOT NULL,
	search_error text
)`, s.runTable)
	if _, err := s.pool.Exec(ctx, runs); err != nil {
		return wrapExecErr("create run table", err)
	}
	return nil
}

// Push inserts record as a JSONB payload.
func (s *Sink) Push(ctx context.Context, record harvest.OpportunityRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("%w: postgres sink is not configured", harvest.ErrSinkUnavailable)
	}
	if record.OpportunityID == "" {
		return fmt.Errorf("opportunity id is required")
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record %s: %w", record.OpportunityID, err)
	}
	id, err := s.ids.NewID()
	if err != nil {
		return fmt.Errorf("generate row id: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	harvest_run_id,
	opportunity_id,
	scraped_at,
	payload
) VALUES ($1,$2,$3,$4,$5)`, s.table)
	_, err = s.pool.Exec(ctx, query, id, record.HarvestRunID, record.OpportunityID, record.ScrapedAt, payload)
	if err != nil {
		return wrapExecErr("insert record", err)
	}
	return nil
}

// RecordRun upserts the summary of a run.
func (s *Sink) RecordRun(ctx context.Context, stats harvest.RunStats) error {
	if stats.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	attachments, err := json.Marshal(stats.Attachments)
	if err != nil {
		return fmt.Errorf("marshal attachment counts: %w", err)
	}
	var searchErr *string
	if stats.SearchError != "" {
		searchErr = &stats.SearchError
	}
	query := fmt.Sprintf(`
INSERT INTO %s (run_id, started_at, finished_at, pages, emitted, duplicates, failed_records, attachments, search_error)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (run_id) DO UPDATE
SET finished_at = EXCLUDED.finished_at,
	pages = EXCLUDED.pages,
	emitted = EXCLUDED.emitted,
	duplicates = EXCLUDED.duplicates,
	failed_records = EXCLUDED.failed_records,
	attachments = EXCLUDED.attachments,
	search_error = EXCLUDED.search_error`, s.runTable)
	_, err = s.pool.Exec(ctx, query,
		stats.RunID,
		stats.StartedAt,
		stats.FinishedAt,
		stats.Pages,
		stats.Emitted,
		stats.Duplicates,
		stats.FailedRecords,
		attachments,
		searchErr,
	)
	if err != nil {
		return wrapExecErr("upsert run", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Sink) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// wrapExecErr marks connection failures so a run can abort early.
func wrapExecErr(op string, err error) error {
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return fmt.Errorf("%s: %w: %w", op, harvest.ErrSinkUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
