package harvest

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrSinkUnavailable aborts a run when no record can reach the output sink.
var ErrSinkUnavailable = errors.New("record sink unavailable")

// Searcher returns one page of summaries. An empty page means end of results.
type Searcher interface {
	Search(ctx context.Context, filter SearchFilter, page int) ([]OpportunitySummary, error)
}

// DetailFetcher returns the normalized detail document, or nil when the
// upstream could not provide one.
type DetailFetcher interface {
	FetchDetail(ctx context.Context, opportunityID string) *Detail
}

// AttachmentResolver lists the non-deleted attachments of an opportunity.
// Non-public entries come back already marked as skipped.
type AttachmentResolver interface {
	ListAttachments(ctx context.Context, opportunityID string) []AttachmentDescriptor
}

// Acquisition is the acquirer's result: the descriptor with its outcome set
// and, on success, the payload that was stored.
type Acquisition struct {
	Attachment AttachmentDescriptor
	Payload    []byte
}

// Acquirer runs the download state machine for one descriptor. It never
// returns an error; failure is encoded in the descriptor.
type Acquirer interface {
	Acquire(ctx context.Context, opportunityID string, descriptor AttachmentDescriptor) Acquisition
}

// TextExtractor converts document bytes into text. ok is false when the
// content could not be parsed.
type TextExtractor interface {
	ExtractText(data []byte, filename string) (text string, ok bool)
}

// RecordSink accepts assembled records. Delivery is at-least-once and the
// sink does not enforce uniqueness.
type RecordSink interface {
	Push(ctx context.Context, record OpportunityRecord) error
}

// BlobStore persists attachment payloads by key and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, key string, contentType string, data io.Reader) (string, error)
}

// Hasher computes content digests for stored payloads.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}
