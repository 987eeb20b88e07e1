package harvest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

type fakeSearcher struct {
	mu      sync.Mutex
	pages   map[int][]OpportunitySummary
	errs    map[int]error
	calls   []int
	filters []SearchFilter
}

func (f *fakeSearcher) Search(_ context.Context, filter SearchFilter, page int) ([]OpportunitySummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, page)
	f.filters = append(f.filters, filter)
	if err := f.errs[page]; err != nil {
		return nil, err
	}
	return f.pages[page], nil
}

type fakeDetails struct {
	mu      sync.Mutex
	details map[string]*Detail
	panicOn map[string]bool
	calls   []string
}

func (f *fakeDetails) FetchDetail(_ context.Context, id string) *Detail {
	f.mu.Lock()
	f.calls = append(f.calls, id)
	shouldPanic := f.panicOn[id]
	detail := f.details[id]
	f.mu.Unlock()
	if shouldPanic {
		panic("detail decoder exploded")
	}
	return detail
}

func (f *fakeDetails) callCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == id {
			n++
		}
	}
	return n
}

type fakeResolver struct {
	mu          sync.Mutex
	attachments map[string][]AttachmentDescriptor
	calls       []string
}

func (f *fakeResolver) ListAttachments(_ context.Context, id string) []AttachmentDescriptor {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id)
	return append([]AttachmentDescriptor(nil), f.attachments[id]...)
}

type fakeAcquirer struct {
	mu       sync.Mutex
	payload  []byte
	fail     map[string]bool
	acquired []string
}

func (f *fakeAcquirer) Acquire(_ context.Context, oppID string, d AttachmentDescriptor) Acquisition {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acquired = append(f.acquired, d.ResourceID)
	if f.fail[d.ResourceID] {
		d.Status = AttachmentFailed
		d.DownloadError = "download failed; " + ManualFallbackHint
		return Acquisition{Attachment: d}
	}
	d.Status = AttachmentDownloaded
	d.StorageKey = oppID + "/" + d.Filename
	d.DownloadedSize = int64(len(f.payload))
	return Acquisition{Attachment: d, Payload: f.payload}
}

type fakeExtractor struct {
	mu    sync.Mutex
	text  string
	ok    bool
	calls int
}

func (f *fakeExtractor) ExtractText(_ []byte, _ string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.text, f.ok
}

type fakeSink struct {
	mu      sync.Mutex
	records []OpportunityRecord
	err     error
}

func (f *fakeSink) Push(_ context.Context, rec OpportunityRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeSink) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.records))
	for _, r := range f.records {
		out = append(out, r.OpportunityID)
	}
	return out
}

func (f *fakeSink) byID(id string) (OpportunityRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.OpportunityID == id {
			return r, true
		}
	}
	return OpportunityRecord{}, false
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

type fakeIDGen struct {
	id  string
	err error
}

func (g *fakeIDGen) NewID() (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return g.id, nil
}

func summaries(prefix string, n int) []OpportunitySummary {
	out := make([]OpportunitySummary, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, OpportunitySummary{
			ID:    fmt.Sprintf("%s-%02d", prefix, i),
			Title: fmt.Sprintf("Opportunity %s %d", prefix, i),
		})
	}
	return out
}

var errBoom = errors.New("boom")
