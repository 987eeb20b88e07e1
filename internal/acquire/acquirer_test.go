package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/sam-opportunity-harvester/internal/harvest"
)

type stubStrategy struct {
	name    string
	payload []byte
	err     error
	panics  bool
	calls   int
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Attempt(context.Context, string, harvest.AttachmentDescriptor) ([]byte, error) {
	s.calls++
	if s.panics {
		panic("browser crashed")
	}
	return s.payload, s.err
}

type recordingStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	err     error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (s *recordingStore) PutObject(_ context.Context, key, contentType string, r io.Reader) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	s.types[key] = contentType
	return "memory://" + key, nil
}

type constHasher struct{}

func (constHasher) Hash(data []byte) (string, error) {
	return fmt.Sprintf("len-%d", len(data)), nil
}

func publicDescriptor() harvest.AttachmentDescriptor {
	return harvest.AttachmentDescriptor{
		Filename:    "Statement of Work (v2).pdf",
		ResourceID:  "res-1",
		AccessLevel: harvest.AccessLevelPublic,
		DownloadURL: "https://sam.gov/api/prod/opps/v3/opportunities/resources/files/res-1/download",
	}
}

func TestAcquire_DirectSuccessSkipsFallback(t *testing.T) {
	t.Parallel()

	direct := &stubStrategy{name: "direct", payload: []byte("%PDF-1.7 hello")}
	browser := &stubStrategy{name: "browser", payload: []byte("unused")}
	store := newRecordingStore()
	a := New(store, constHasher{}, zap.NewNop(), direct, browser)

	got := a.Acquire(context.Background(), "opp-1", publicDescriptor())

	require.Equal(t, harvest.AttachmentDownloaded, got.Attachment.Status)
	require.Equal(t, "opp-1/Statement of Work v2.pdf", got.Attachment.StorageKey)
	require.Equal(t, "memory://opp-1/Statement of Work v2.pdf", got.Attachment.StorageURI)
	require.EqualValues(t, len(direct.payload), got.Attachment.DownloadedSize)
	require.Equal(t, direct.payload, store.objects[got.Attachment.StorageKey])
	require.Equal(t, "len-14", got.Attachment.ContentHash)
	require.Equal(t, "direct", got.Attachment.Strategy)
	require.Empty(t, got.Attachment.DownloadError)
	require.Equal(t, direct.payload, got.Payload)
	require.Zero(t, browser.calls)
	require.Equal(t, "application/pdf", store.types[got.Attachment.StorageKey])
}

func TestAcquire_FallsBackOnEmptyOrFailedDirect(t *testing.T) {
	t.Parallel()

	for name, direct := range map[string]*stubStrategy{
		"error": {name: "direct", err: errors.New("403 Forbidden")},
		"empty": {name: "direct", payload: []byte{}},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			browser := &stubStrategy{name: "browser", payload: []byte("browser bytes")}
			a := New(newRecordingStore(), constHasher{}, zap.NewNop(), direct, browser)

			got := a.Acquire(context.Background(), "opp", publicDescriptor())

			require.Equal(t, harvest.AttachmentDownloaded, got.Attachment.Status)
			require.Equal(t, "browser", got.Attachment.Strategy)
			require.EqualValues(t, len("browser bytes"), got.Attachment.DownloadedSize)
		})
	}
}

func TestAcquire_BothStrategiesFailKeepsDownloadURL(t *testing.T) {
	t.Parallel()

	direct := &stubStrategy{name: "direct", err: errors.New("status 403")}
	browser := &stubStrategy{name: "browser", panics: true}
	a := New(newRecordingStore(), constHasher{}, zap.NewNop(), direct, browser)
	desc := publicDescriptor()

	got := a.Acquire(context.Background(), "opp", desc)

	require.Equal(t, harvest.AttachmentFailed, got.Attachment.Status)
	require.Equal(t, desc.DownloadURL, got.Attachment.DownloadURL)
	require.NotEmpty(t, got.Attachment.DownloadError)
	require.Contains(t, got.Attachment.DownloadError, harvest.ManualFallbackHint)
	require.Empty(t, got.Attachment.StorageKey)
	require.Nil(t, got.Payload)
}

func TestAcquire_ReportsEachStrategyReason(t *testing.T) {
	t.Parallel()

	direct := &stubStrategy{name: "direct", err: errors.New("status 403")}
	browser := &stubStrategy{name: "browser", err: errors.New("no download event")}
	a := New(newRecordingStore(), nil, zap.NewNop(), direct, browser)

	got := a.Acquire(context.Background(), "opp", publicDescriptor())

	require.Contains(t, got.Attachment.DownloadError, "direct: status 403")
	require.Contains(t, got.Attachment.DownloadError, "browser: no download event")
	require.Equal(t, 1, direct.calls)
	require.Equal(t, 1, browser.calls)
}

func TestAcquire_NonPublicNeverAttempted(t *testing.T) {
	t.Parallel()

	direct := &stubStrategy{name: "direct", payload: []byte("x")}
	a := New(newRecordingStore(), nil, zap.NewNop(), direct)
	desc := publicDescriptor()
	desc.AccessLevel = "controlled"

	got := a.Acquire(context.Background(), "opp", desc)

	require.Equal(t, harvest.AttachmentSkipped, got.Attachment.Status)
	require.Equal(t, harvest.SkipReasonNonPublic, got.Attachment.DownloadError)
	require.Zero(t, direct.calls)
}

func TestAcquire_StoreFailureIsAttachmentFailure(t *testing.T) {
	t.Parallel()

	store := newRecordingStore()
	store.err = errors.New("bucket gone")
	a := New(store, nil, zap.NewNop(), &stubStrategy{name: "direct", payload: []byte("x")})

	got := a.Acquire(context.Background(), "opp", publicDescriptor())

	require.Equal(t, harvest.AttachmentFailed, got.Attachment.Status)
	require.Contains(t, got.Attachment.DownloadError, "bucket gone")
	require.Empty(t, got.Attachment.StorageKey)
	require.NotEmpty(t, got.Attachment.DownloadURL)
}

func TestAcquire_SameDescriptorSameKey(t *testing.T) {
	t.Parallel()

	store := newRecordingStore()
	a := New(store, nil, zap.NewNop(), &stubStrategy{name: "direct", payload: []byte("x")})

	first := a.Acquire(context.Background(), "opp", publicDescriptor())
	second := a.Acquire(context.Background(), "opp", publicDescriptor())

	require.Equal(t, first.Attachment.StorageKey, second.Attachment.StorageKey)
	require.Len(t, store.objects, 1)
}

func TestAcquire_NoStrategies(t *testing.T) {
	t.Parallel()

	a := New(newRecordingStore(), nil, nil)
	got := a.Acquire(context.Background(), "opp", publicDescriptor())

	require.Equal(t, harvest.AttachmentFailed, got.Attachment.Status)
	require.Contains(t, got.Attachment.DownloadError, "no download strategy available")
}
