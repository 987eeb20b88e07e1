package headless

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sam-opportunity-harvester/internal/harvest"
)

func TestNewChromedpValidationAndDefaults(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{MaxParallel: -1})
	require.Error(t, err)

	dir := t.TempDir()
	d, err := NewChromedp(Config{MaxParallel: 2, DownloadDir: dir})
	require.NoError(t, err)
	t.Cleanup(d.Close)

	require.Equal(t, 2, cap(d.limiter))
	require.Equal(t, 30*time.Second, d.cfg.NavigationTimeout)
	require.Equal(t, 60*time.Second, d.cfg.DownloadTimeout)
	require.Equal(t, dir, d.downloadDir)
	require.False(t, d.ownsDir)
	require.Equal(t, "browser", d.Name())
}

func TestNewChromedpCreatesTemporaryDir(t *testing.T) {
	t.Parallel()

	d, err := NewChromedp(Config{})
	require.NoError(t, err)
	require.True(t, d.ownsDir)
	require.DirExists(t, d.downloadDir)

	d.Close()
	require.NoDirExists(t, d.downloadDir)
}

func TestAttemptRequiresURL(t *testing.T) {
	t.Parallel()

	d, err := NewChromedp(Config{DownloadDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(d.Close)

	_, err = d.Attempt(context.Background(), "opp", harvest.AttachmentDescriptor{})
	require.Error(t, err)
}

func TestLimiterHonorsContext(t *testing.T) {
	t.Parallel()

	d := &Downloader{limiter: make(chan struct{}, 1)}
	require.NoError(t, d.acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, d.acquire(ctx), context.Canceled)

	d.release()
	require.NoError(t, d.acquire(context.Background()))
}

func TestDownloadWatcherCompletes(t *testing.T) {
	t.Parallel()

	w := newDownloadWatcher()
	w.handle(&browser.EventDownloadWillBegin{GUID: "ours", SuggestedFilename: "SOW.pdf"})
	w.handle(&browser.EventDownloadProgress{GUID: "other", State: browser.DownloadProgressStateCompleted})
	w.handle(&browser.EventDownloadProgress{GUID: "ours", State: browser.DownloadProgressStateInProgress})
	w.handle(&browser.EventDownloadProgress{GUID: "ours", State: browser.DownloadProgressStateCompleted})

	guid, err := w.wait(context.Background(), time.Second)
	require.NoError(t, err)
	require.Equal(t, "ours", guid)
}

func TestDownloadWatcherIgnoresSiblingTabs(t *testing.T) {
	t.Parallel()

	w := newDownloadWatcher()
	w.bindFrame("tab-a")
	w.handle(&browser.EventDownloadProgress{GUID: "early", State: browser.DownloadProgressStateCompleted})
	w.handle(&browser.EventDownloadWillBegin{GUID: "sibling", FrameID: cdp.FrameID("tab-b")})
	w.handle(&browser.EventDownloadProgress{GUID: "sibling", State: browser.DownloadProgressStateCompleted})
	w.handle(&browser.EventDownloadWillBegin{GUID: "ours", FrameID: cdp.FrameID("tab-a")})
	w.handle(&browser.EventDownloadProgress{GUID: "ours", State: browser.DownloadProgressStateCompleted})

	guid, err := w.wait(context.Background(), time.Second)
	require.NoError(t, err)
	require.Equal(t, "ours", guid)
}

func TestDownloadWatcherCanceledDownload(t *testing.T) {
	t.Parallel()

	w := newDownloadWatcher()
	w.handle(&browser.EventDownloadWillBegin{GUID: "g"})
	w.handle(&browser.EventDownloadProgress{GUID: "g", State: browser.DownloadProgressStateCanceled})

	_, err := w.wait(context.Background(), time.Second)
	require.ErrorIs(t, err, ErrNoDownload)
}

func TestDownloadWatcherTimesOut(t *testing.T) {
	t.Parallel()

	_, err := newDownloadWatcher().wait(context.Background(), 10*time.Millisecond)
	require.ErrorIs(t, err, ErrNoDownload)
}

func TestToNetworkHeaders(t *testing.T) {
	t.Parallel()

	headers := toNetworkHeaders(http.Header{
		"Accept":     {"application/hal+json", "application/json"},
		"User-Agent": {"skipped"},
		"Empty":      {},
	})
	require.Equal(t, "application/hal+json, application/json", headers["Accept"])
	require.NotContains(t, headers, "User-Agent")
	require.NotContains(t, headers, "Empty")
}

func TestNoop(t *testing.T) {
	t.Parallel()

	n := NewNoop()
	require.Equal(t, StrategyName, n.Name())
	_, err := n.Attempt(context.Background(), "opp", harvest.AttachmentDescriptor{DownloadURL: "x"})
	require.True(t, errors.Is(err, ErrNotConfigured))
}
