// Package sink delivers assembled opportunity records to one or more
// outputs. Delivery is at-least-once and no sink enforces uniqueness.
package sink

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/JakeFAU/sam-opportunity-harvester/internal/harvest"
	"github.com/JakeFAU/sam-opportunity-harvester/internal/metrics"
)

// Named pairs a sink with the label used in logs and metrics.
type Named struct {
	Name string
	Sink harvest.RecordSink
}

// Fanout pushes every record to all configured sinks.
type Fanout struct {
	sinks  []Named
	logger *zap.Logger
}

var _ harvest.RecordSink = (*Fanout)(nil)

// NewFanout builds a Fanout. At least one sink is required.
func NewFanout(logger *zap.Logger, sinks ...Named) (*Fanout, error) {
	if len(sinks) == 0 {
		return nil, fmt.Errorf("%w: no sinks configured", harvest.ErrSinkUnavailable)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, s := range sinks {
		if s.Sink == nil {
			return nil, fmt.Errorf("sink %q is nil", s.Name)
		}
	}
	return &Fanout{sinks: sinks, logger: logger}, nil
}

// Push delivers record to every sink and joins their errors. A sink that
// fails does not stop delivery to the others.
func (f *Fanout) Push(ctx context.Context, record harvest.OpportunityRecord) error {
	var errs []error
	for _, s := range f.sinks {
		err := s.Sink.Push(ctx, record)
		metrics.ObserveSinkPush(s.Name, err == nil)
		if err != nil {
			f.logger.Warn("sink push failed",
				zap.String("sink", s.Name),
				zap.String("opportunity_id", record.OpportunityID),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink that holds resources.
func (f *Fanout) Close() error {
	var errs []error
	for _, s := range f.sinks {
		if c, ok := s.Sink.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", s.Name, err))
			}
		}
	}
	return errors.Join(errs...)
}
