// Package system provides the wall clock used for run anchors and capture times.
package system

import (
	"time"

	"github.com/JakeFAU/sam-opportunity-harvester/internal/harvest"
)

var _ harvest.Clock = (*Clock)(nil)

// Clock stamps records and anchors the posted-from window.
type Clock struct{}

// New returns the wall clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time without a monotonic reading, so stamps
// serialize and compare as plain wall times.
func (*Clock) Now() time.Time {
	return time.Now().UTC()
}
