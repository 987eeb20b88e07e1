package harvest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sam-opportunity-harvester/internal/metrics"
)

const (
	defaultConcurrency                = 4
	defaultMaxConsecutiveSinkFailures = 5
	defaultProgressEvery              = 10
)

// Config controls a harvest run.
type Config struct {
	Filter                     SearchFilter
	DownloadAttachments        bool
	ExtractText                bool
	PageDelay                  time.Duration
	Concurrency                int
	MaxConsecutiveSinkFailures int
	// LinkFormat renders the human-facing opportunity link from its id.
	LinkFormat    string
	ProgressEvery int
}

// RunStats summarizes a run. It is safe to copy.
type RunStats struct {
	RunID         string                   `json:"run_id"`
	StartedAt     time.Time                `json:"started_at"`
	FinishedAt    *time.Time               `json:"finished_at,omitempty"`
	Pages         int                      `json:"pages"`
	Emitted       int                      `json:"emitted"`
	Duplicates    int                      `json:"duplicates"`
	FailedRecords int                      `json:"failed_records"`
	Attachments   map[AttachmentStatus]int `json:"attachments"`
	SearchError   string                   `json:"search_error,omitempty"`
}

// Orchestrator drives pagination, deduplication, per-record enrichment and
// delivery to the record sink.
type Orchestrator struct {
	cfg       Config
	searcher  Searcher
	details   DetailFetcher
	resolver  AttachmentResolver
	acquirer  Acquirer
	extractor TextExtractor
	sink      RecordSink
	clock     Clock
	idGen     IDGenerator
	logger    *zap.Logger
	pause     func(ctx context.Context, d time.Duration)

	dedup *DedupSet

	mu               sync.Mutex
	stats            RunStats
	consecutiveFails int
	fatal            error
}

// NewOrchestrator wires an Orchestrator. extractor may be nil when text
// extraction is disabled; acquirer and resolver may be nil when attachment
// downloads are disabled.
func NewOrchestrator(
	cfg Config,
	searcher Searcher,
	details DetailFetcher,
	resolver AttachmentResolver,
	acquirer Acquirer,
	extractor TextExtractor,
	sink RecordSink,
	clock Clock,
	idGen IDGenerator,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.MaxConsecutiveSinkFailures <= 0 {
		cfg.MaxConsecutiveSinkFailures = defaultMaxConsecutiveSinkFailures
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = defaultProgressEvery
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:       cfg,
		searcher:  searcher,
		details:   details,
		resolver:  resolver,
		acquirer:  acquirer,
		extractor: extractor,
		sink:      sink,
		clock:     clock,
		idGen:     idGen,
		logger:    logger,
		pause:     pauseWithContext,
		dedup:     NewDedupSet(),
		stats:     RunStats{Attachments: map[AttachmentStatus]int{}},
	}
}

// Stats returns a snapshot of the current run.
func (o *Orchestrator) Stats() RunStats {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.stats
	out.Attachments = make(map[AttachmentStatus]int, len(o.stats.Attachments))
	for k, v := range o.stats.Attachments {
		out.Attachments[k] = v
	}
	return out
}

// Run harvests until the record budget is spent or the upstream runs out of
// results. Only a fatal condition (unreachable sink, canceled context) is
// returned as an error; per-record failures are logged and counted.
func (o *Orchestrator) Run(ctx context.Context) (RunStats, error) {
	runID := o.newRunID()
	started := o.clock.Now()
	o.mu.Lock()
	o.stats.RunID = runID
	o.stats.StartedAt = started
	o.mu.Unlock()

	filter := o.cfg.Filter.Anchor(started)
	budget := newRecordBudget(filter.MaxRecords)
	logger := o.logger.With(zap.String("run_id", runID))
	logger.Info("harvest started",
		zap.String("keywords", filter.Keywords),
		zap.Strings("naics", filter.NAICSCodes),
		zap.Strings("set_asides", filter.SetAsideTypes),
		zap.Strings("states", filter.States),
		zap.Int("posted_within_days", filter.PostedWithinDays),
		zap.Bool("download_attachments", o.cfg.DownloadAttachments),
		zap.Bool("extract_text", o.cfg.ExtractText),
		zap.Int("max_opportunities", filter.MaxRecords),
	)

	err := o.runPages(ctx, runID, filter, budget, logger)

	finished := o.clock.Now()
	o.mu.Lock()
	o.stats.FinishedAt = &finished
	o.mu.Unlock()
	stats := o.Stats()
	logger.Info("harvest complete",
		zap.Int("emitted", stats.Emitted),
		zap.Int("pages", stats.Pages),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("failed_records", stats.FailedRecords),
		zap.Any("attachments", stats.Attachments),
		zap.Duration("elapsed", finished.Sub(started)),
	)
	return stats, err
}

func (o *Orchestrator) runPages(
	ctx context.Context,
	runID string,
	filter SearchFilter,
	budget *recordBudget,
	logger *zap.Logger,
) error {
	for page := 0; !budget.exhausted(); page++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("harvest canceled: %w", err)
		}
		logger.Info("fetching page", zap.Int("page", page+1))
		summaries, err := o.searcher.Search(ctx, filter, page)
		if err != nil {
			logger.Error("search failed; ending run", zap.Int("page", page+1), zap.Error(err))
			o.mu.Lock()
			o.stats.SearchError = err.Error()
			o.mu.Unlock()
			return nil
		}
		if len(summaries) == 0 {
			logger.Info("no more opportunities found", zap.Int("page", page+1))
			return nil
		}
		metrics.ObservePage(len(summaries))
		o.mu.Lock()
		o.stats.Pages++
		o.mu.Unlock()

		if err := o.processPage(ctx, runID, summaries, budget, logger); err != nil {
			return err
		}
		if budget.exhausted() {
			return nil
		}
		o.pause(ctx, o.cfg.PageDelay)
	}
	return nil
}

// processPage claims each summary in upstream order and fans enrichment out
// across a bounded set of goroutines. The dedup check and budget reservation
// happen here, before any enrichment work is scheduled.
func (o *Orchestrator) processPage(
	ctx context.Context,
	runID string,
	summaries []OpportunitySummary,
	budget *recordBudget,
	logger *zap.Logger,
) error {
	var wg sync.WaitGroup
	sem := make(chan struct{}, o.cfg.Concurrency)

	for _, summary := range summaries {
		if o.fatalErr() != nil {
			break
		}
		if summary.ID == "" {
			logger.Warn("skipping search result without id", zap.String("title", summary.Title))
			continue
		}
		if o.dedup.Contains(summary.ID) {
			o.noteDuplicate(logger, summary.ID)
			continue
		}
		if !budget.reserve() {
			break
		}
		if !o.dedup.MarkIfNew(summary.ID) {
			budget.release()
			o.noteDuplicate(logger, summary.ID)
			continue
		}

		sem <- struct{}{}
		if o.fatalErr() != nil {
			<-sem
			budget.release()
			break
		}
		wg.Add(1)
		go func(summary OpportunitySummary) {
			defer wg.Done()
			defer func() { <-sem }()
			o.processRecord(ctx, runID, summary, budget, logger)
		}(summary)
	}
	wg.Wait()
	return o.fatalErr()
}

func (o *Orchestrator) processRecord(
	ctx context.Context,
	runID string,
	summary OpportunitySummary,
	budget *recordBudget,
	logger *zap.Logger,
) {
	logger = logger.With(zap.String("opportunity_id", summary.ID))
	pushed := false
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while processing opportunity", zap.Any("panic", r))
			o.noteRecordFailure()
		}
		if pushed {
			budget.commit()
			o.noteEmitted(logger, budget.count())
			return
		}
		budget.release()
	}()

	record, err := o.buildRecord(ctx, runID, summary, logger)
	if err != nil {
		logger.Warn("failed to process opportunity", zap.Error(err))
		o.noteRecordFailure()
		return
	}
	if err := o.sink.Push(ctx, record); err != nil {
		logger.Warn("failed to push opportunity", zap.Error(err))
		o.noteSinkFailure(err)
		o.noteRecordFailure()
		return
	}
	o.noteSinkSuccess()
	metrics.ObserveRecord("pushed")
	pushed = true
}

func (o *Orchestrator) buildRecord(
	ctx context.Context,
	runID string,
	summary OpportunitySummary,
	logger *zap.Logger,
) (OpportunityRecord, error) {
	var detail *Detail
	if o.details != nil {
		detail = o.details.FetchDetail(ctx, summary.ID)
	}
	if detail == nil {
		logger.Debug("detail unavailable; using summary fields only")
	}
	record := NewRecord(summary, detail, runID, o.link(summary.ID), o.clock.Now())

	if o.cfg.DownloadAttachments && o.resolver != nil {
		record.Attachments, record.AttachmentTexts = o.collectAttachments(ctx, summary.ID, logger)
	}
	if err := ctx.Err(); err != nil {
		return OpportunityRecord{}, fmt.Errorf("record assembly interrupted: %w", err)
	}
	return record, nil
}

func (o *Orchestrator) collectAttachments(
	ctx context.Context,
	opportunityID string,
	logger *zap.Logger,
) ([]AttachmentDescriptor, []ExtractedText) {
	descriptors := o.resolver.ListAttachments(ctx, opportunityID)
	files := make([]AttachmentDescriptor, 0, len(descriptors))
	texts := []ExtractedText{}
	for _, descriptor := range descriptors {
		if descriptor.Resolved() || o.acquirer == nil {
			files = append(files, descriptor)
			o.noteAttachment(descriptor)
			continue
		}
		result := o.acquirer.Acquire(ctx, opportunityID, descriptor)
		files = append(files, result.Attachment)
		o.noteAttachment(result.Attachment)

		if text, ok := o.extract(result, logger); ok {
			texts = append(texts, ExtractedText{Filename: result.Attachment.Filename, Text: text})
		}
	}
	logger.Info("processed attachments", zap.Int("count", len(files)))
	return files, texts
}

func (o *Orchestrator) extract(result Acquisition, logger *zap.Logger) (string, bool) {
	if !o.cfg.ExtractText || o.extractor == nil {
		return "", false
	}
	if result.Attachment.Status != AttachmentDownloaded || !IsExtractable(result.Attachment.Filename) {
		return "", false
	}
	text, ok := o.extractor.ExtractText(result.Payload, result.Attachment.Filename)
	if !ok || text == "" {
		logger.Debug("no text extracted", zap.String("filename", result.Attachment.Filename))
		return "", false
	}
	return TruncateText(text), true
}

// IsExtractable reports whether filename names a document eligible for text
// extraction.
func IsExtractable(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".pdf")
}

func (o *Orchestrator) link(id string) string {
	if o.cfg.LinkFormat == "" {
		return ""
	}
	return fmt.Sprintf(o.cfg.LinkFormat, id)
}

func (o *Orchestrator) newRunID() string {
	if o.idGen == nil {
		return ""
	}
	id, err := o.idGen.NewID()
	if err != nil {
		o.logger.Warn("run id generation failed", zap.Error(err))
		return ""
	}
	return id
}

func (o *Orchestrator) noteDuplicate(logger *zap.Logger, id string) {
	logger.Debug("skipping duplicate opportunity", zap.String("opportunity_id", id))
	metrics.ObserveRecord("duplicate")
	o.mu.Lock()
	o.stats.Duplicates++
	o.mu.Unlock()
}

func (o *Orchestrator) noteEmitted(logger *zap.Logger, emitted int) {
	o.mu.Lock()
	if emitted > o.stats.Emitted {
		o.stats.Emitted = emitted
	}
	o.mu.Unlock()
	if emitted%o.cfg.ProgressEvery == 0 {
		logger.Info("harvest progress", zap.Int("emitted", emitted))
	}
}

func (o *Orchestrator) noteRecordFailure() {
	metrics.ObserveRecord("failed")
	o.mu.Lock()
	o.stats.FailedRecords++
	o.mu.Unlock()
}

func (o *Orchestrator) noteAttachment(d AttachmentDescriptor) {
	metrics.ObserveAttachment(string(d.Status), d.DownloadedSize)
	o.mu.Lock()
	o.stats.Attachments[d.Status]++
	o.mu.Unlock()
}

func (o *Orchestrator) noteSinkSuccess() {
	o.mu.Lock()
	o.consecutiveFails = 0
	o.mu.Unlock()
}

func (o *Orchestrator) noteSinkFailure(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.consecutiveFails++
	if o.fatal != nil {
		return
	}
	switch {
	case errors.Is(err, ErrSinkUnavailable):
		o.fatal = fmt.Errorf("push record: %w", err)
	case o.consecutiveFails >= o.cfg.MaxConsecutiveSinkFailures:
		o.fatal = fmt.Errorf("%w: %d consecutive push failures, last: %v",
			ErrSinkUnavailable, o.consecutiveFails, err)
	}
}

func (o *Orchestrator) fatalErr() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.fatal
}

func pauseWithContext(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
