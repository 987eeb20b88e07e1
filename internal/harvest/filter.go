package harvest

import (
	"time"
)

// SearchFilter holds the immutable query parameters for a run.
type SearchFilter struct {
	Keywords         string
	NAICSCodes       []string
	PostedWithinDays int
	SetAsideTypes    []string
	States           []string
	OpportunityTypes []string
	PageSize         int
	MaxRecords       int

	// AnchoredAt pins the lookback window to a fixed instant. When zero the
	// search client resolves the window against its own clock per call.
	AnchoredAt time.Time
}

// PostedFrom converts the lookback window into an absolute lower bound using
// now, or the anchor when one is set. The second return is false when no
// lookback is requested.
func (f SearchFilter) PostedFrom(now time.Time) (time.Time, bool) {
	if f.PostedWithinDays <= 0 {
		return time.Time{}, false
	}
	ref := now
	if !f.AnchoredAt.IsZero() {
		ref = f.AnchoredAt
	}
	return ref.UTC().AddDate(0, 0, -f.PostedWithinDays), true
}

// Anchor returns a copy of the filter whose lookback window is fixed at t.
func (f SearchFilter) Anchor(t time.Time) SearchFilter {
	out := f
	out.NAICSCodes = append([]string(nil), f.NAICSCodes...)
	out.SetAsideTypes = append([]string(nil), f.SetAsideTypes...)
	out.States = append([]string(nil), f.States...)
	out.OpportunityTypes = append([]string(nil), f.OpportunityTypes...)
	out.AnchoredAt = t
	return out
}
