package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/sam-opportunity-harvester/internal/config"
	"github.com/JakeFAU/sam-opportunity-harvester/internal/harvest"
	"github.com/JakeFAU/sam-opportunity-harvester/internal/sink"
)

type closingSink struct {
	name   string
	closed *[]string
	err    error
}

func (s closingSink) Push(context.Context, harvest.OpportunityRecord) error { return nil }

func (s closingSink) Close() error {
	*s.closed = append(*s.closed, s.name)
	return s.err
}

type plainSink struct{}

func (plainSink) Push(context.Context, harvest.OpportunityRecord) error { return nil }

func TestCloseSinksReleasesInReverseOrder(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	var closed []string
	closeSinks(zap.New(core), []sink.Named{
		{Name: "file", Sink: closingSink{name: "file", closed: &closed}},
		{Name: "memory", Sink: plainSink{}},
		{Name: "postgres", Sink: closingSink{name: "postgres", closed: &closed, err: errors.New("pool busy")}},
	})

	require.Equal(t, []string{"postgres", "file"}, closed)
	require.Equal(t, 1, logs.FilterMessage("error closing sink").Len())
}

func TestBuildSinksFailureRegistersNoClosers(t *testing.T) {
	t.Parallel()

	a := &App{
		cfg: config.Config{Sink: config.SinkConfig{
			Backends: []string{config.SinkFile, "kafka"},
			FilePath: filepath.Join(t.TempDir(), "records.jsonl"),
		}},
		logger: zap.NewNop(),
	}

	_, err := a.buildSinks(context.Background(), nil)
	require.ErrorContains(t, err, "kafka")
	require.Empty(t, a.closers)
}
