package headless

import (
	"context"
	"errors"

	"github.com/JakeFAU/sam-opportunity-harvester/internal/harvest"
)

// ErrNotConfigured is returned when browser downloads are disabled.
var ErrNotConfigured = errors.New("browser downloads not configured")

// Noop stands in for the browser strategy when it is disabled, so failed
// attachments still record why no fallback ran.
type Noop struct{}

// NewNoop creates a new Noop downloader.
func NewNoop() *Noop {
	return &Noop{}
}

// Name implements acquire.Strategy.
func (Noop) Name() string {
	return StrategyName
}

// Attempt always fails.
func (Noop) Attempt(_ context.Context, _ string, _ harvest.AttachmentDescriptor) ([]byte, error) {
	return nil, ErrNotConfigured
}
