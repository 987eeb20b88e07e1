// Package memory keeps pushed records in-memory for development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/sam-opportunity-harvester/internal/harvest"
)

// Sink stores pushed records for inspection.
type Sink struct {
	mu      sync.RWMutex
	records []harvest.OpportunityRecord
}

var _ harvest.RecordSink = (*Sink)(nil)

// New returns a memory Sink.
func New() *Sink {
	return &Sink{}
}

// Push records the message.
func (s *Sink) Push(_ context.Context, record harvest.OpportunityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

// Records returns the pushed records in arrival order.
func (s *Sink) Records() []harvest.OpportunityRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]harvest.OpportunityRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Len returns how many records were pushed.
func (s *Sink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
