// Package acquire runs the attachment download state machine: ordered
// download strategies, first non-empty payload wins, then content-addressed
// storage. Failures never escape; they are written into the descriptor.
package acquire

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/sam-opportunity-harvester/internal/harvest"
	"github.com/JakeFAU/sam-opportunity-harvester/internal/metrics"
)

// ErrEmptyPayload is returned by strategies that completed without bytes.
var ErrEmptyPayload = errors.New("empty payload")

// Strategy is one way of fetching an attachment's bytes.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, opportunityID string, descriptor harvest.AttachmentDescriptor) ([]byte, error)
}

// Acquirer implements harvest.Acquirer.
type Acquirer struct {
	strategies []Strategy
	store      harvest.BlobStore
	hasher     harvest.Hasher
	logger     *zap.Logger
}

var _ harvest.Acquirer = (*Acquirer)(nil)

// New builds an Acquirer. Strategies are tried in the given order.
func New(store harvest.BlobStore, hasher harvest.Hasher, logger *zap.Logger, strategies ...Strategy) *Acquirer {
	if logger == nil {
		logger = zap.NewNop()
	}
	kept := make([]Strategy, 0, len(strategies))
	for _, s := range strategies {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &Acquirer{strategies: kept, store: store, hasher: hasher, logger: logger}
}

// Acquire fills in the outcome of descriptor.
func (a *Acquirer) Acquire(
	ctx context.Context,
	opportunityID string,
	descriptor harvest.AttachmentDescriptor,
) (result harvest.Acquisition) {
	logger := a.logger.With(
		zap.String("opportunity_id", opportunityID),
		zap.String("resource_id", descriptor.ResourceID),
		zap.String("filename", descriptor.Filename),
	)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic during attachment acquisition", zap.Any("panic", r))
			result = harvest.Acquisition{Attachment: failed(descriptor, fmt.Sprintf("internal error: %v", r))}
		}
	}()

	if !descriptor.IsPublic() {
		descriptor.Status = harvest.AttachmentSkipped
		descriptor.DownloadError = harvest.SkipReasonNonPublic
		return harvest.Acquisition{Attachment: descriptor}
	}
	if descriptor.DownloadURL == "" {
		return harvest.Acquisition{Attachment: failed(descriptor, "no download URL")}
	}

	var reasons []string
	for _, strategy := range a.strategies {
		payload, err := strategy.Attempt(ctx, opportunityID, descriptor)
		if err == nil && len(payload) == 0 {
			err = ErrEmptyPayload
		}
		metrics.ObserveDownloadAttempt(strategy.Name(), err == nil)
		if err != nil {
			logger.Debug("download strategy failed", zap.String("strategy", strategy.Name()), zap.Error(err))
			reasons = append(reasons, fmt.Sprintf("%s: %v", strategy.Name(), err))
			continue
		}
		stored, err := a.persist(ctx, opportunityID, descriptor, payload)
		if err != nil {
			logger.Warn("failed to store attachment", zap.Error(err))
			return harvest.Acquisition{Attachment: failed(descriptor, "storage failed: "+err.Error())}
		}
		stored.Strategy = strategy.Name()
		logger.Info("downloaded attachment",
			zap.String("strategy", strategy.Name()),
			zap.String("storage_key", stored.StorageKey),
			zap.Int("bytes", len(payload)))
		return harvest.Acquisition{Attachment: stored, Payload: payload}
	}

	if len(reasons) == 0 {
		reasons = append(reasons, "no download strategy available")
	}
	logger.Warn("attachment download failed", zap.Strings("reasons", reasons))
	return harvest.Acquisition{Attachment: failed(descriptor, "Download blocked ("+strings.Join(reasons, "; ")+")")}
}

func (a *Acquirer) persist(
	ctx context.Context,
	opportunityID string,
	descriptor harvest.AttachmentDescriptor,
	payload []byte,
) (harvest.AttachmentDescriptor, error) {
	if a.store == nil {
		return descriptor, errors.New("no blob store configured")
	}
	key := StorageKey(opportunityID, descriptor.Filename, descriptor.ResourceID)
	contentType := descriptor.MimeType
	if contentType == "" {
		contentType = http.DetectContentType(payload)
	}
	uri, err := a.store.PutObject(ctx, key, contentType, bytes.NewReader(payload))
	if err != nil {
		return descriptor, fmt.Errorf("put %s: %w", key, err)
	}
	if a.hasher != nil {
		sum, err := a.hasher.Hash(payload)
		if err != nil {
			return descriptor, fmt.Errorf("hash %s: %w", key, err)
		}
		descriptor.ContentHash = sum
	}
	descriptor.Status = harvest.AttachmentDownloaded
	descriptor.StorageKey = key
	descriptor.StorageURI = uri
	descriptor.DownloadedSize = int64(len(payload))
	descriptor.DownloadError = ""
	return descriptor, nil
}

// failed records a failure while keeping downloadUrl for manual retrieval.
func failed(d harvest.AttachmentDescriptor, reason string) harvest.AttachmentDescriptor {
	d.Status = harvest.AttachmentFailed
	d.StorageKey = ""
	d.StorageURI = ""
	d.DownloadedSize = 0
	d.ContentHash = ""
	d.DownloadError = reason + ". " + harvest.ManualFallbackHint
	return d
}
