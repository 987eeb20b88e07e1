package harvest

import "sync"

// DedupSet tracks opportunity identifiers already claimed in the current run.
// It is safe for concurrent use and holds no state across runs.
type DedupSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewDedupSet returns an empty set.
func NewDedupSet() *DedupSet {
	return &DedupSet{seen: make(map[string]struct{})}
}

// MarkIfNew records id and returns true when it had not been seen before.
// Empty identifiers are never accepted.
func (d *DedupSet) MarkIfNew(id string) bool {
	if id == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[id]; ok {
		return false
	}
	d.seen[id] = struct{}{}
	return true
}

// Contains reports whether id has been claimed.
func (d *DedupSet) Contains(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[id]
	return ok
}

// Len returns the number of claimed identifiers.
func (d *DedupSet) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
