// Package headless contains the browser-session download strategy. A single
// long-lived Chrome instance serves the whole run; each attempt gets its own
// tab that is closed as soon as the attempt ends.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/sam-opportunity-harvester/internal/harvest"
)

// StrategyName identifies this strategy in outcomes, logs and metrics.
const StrategyName = "browser"

// ErrNoDownload means the browser never produced a completed download.
var ErrNoDownload = errors.New("no download captured")

// Config controls the behavior of the browser downloader.
type Config struct {
	MaxParallel       int
	UserAgent         string
	Headers           http.Header
	NavigationTimeout time.Duration
	DownloadTimeout   time.Duration
	// Settle is the pause after the opportunity page loads, giving client
	// scripts time to establish session state.
	Settle time.Duration
	// DownloadDir receives files while they are captured. A temporary
	// directory is created when empty.
	DownloadDir string
	// PageURL returns the human-facing page visited before the download.
	PageURL func(opportunityID string) string
}

// Downloader implements acquire.Strategy using chromedp.
type Downloader struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc

	browserCtx    context.Context
	browserCancel context.CancelFunc
	startOnce     sync.Once
	startErr      error

	downloadDir string
	ownsDir     bool
}

// NewChromedp creates a browser downloader. Chrome itself is launched on the
// first attempt.
func NewChromedp(cfg Config) (*Downloader, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 30 * time.Second
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = 60 * time.Second
	}
	if cfg.Settle < 0 {
		cfg.Settle = 0
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	dir, owns := cfg.DownloadDir, false
	if dir == "" {
		tmp, err := os.MkdirTemp("", "harvester-downloads-")
		if err != nil {
			return nil, fmt.Errorf("create download dir: %w", err)
		}
		dir, owns = tmp, true
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	return &Downloader{
		cfg:           cfg,
		limiter:       limiter,
		allocator:     allocCtx,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		downloadDir:   dir,
		ownsDir:       owns,
	}, nil
}

// Close shuts the browser down and removes a temporary download directory.
func (d *Downloader) Close() {
	d.browserCancel()
	d.allocCancel()
	if d.ownsDir {
		_ = os.RemoveAll(d.downloadDir)
	}
}

// Name implements acquire.Strategy.
func (d *Downloader) Name() string {
	return StrategyName
}

// Attempt opens a fresh tab, visits the opportunity page to pick up session
// state, then navigates to the download URL and captures the file.
func (d *Downloader) Attempt(
	ctx context.Context,
	opportunityID string,
	descriptor harvest.AttachmentDescriptor,
) ([]byte, error) {
	if descriptor.DownloadURL == "" {
		return nil, errors.New("missing download url")
	}
	if err := d.acquire(ctx); err != nil {
		return nil, err
	}
	defer d.release()
	if err := d.start(); err != nil {
		return nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(d.browserCtx)
	defer tabCancel()
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	watcher := newDownloadWatcher()
	chromedp.ListenTarget(tabCtx, watcher.handle)

	if err := d.openSession(tabCtx, opportunityID); err != nil {
		return nil, err
	}
	// A tab's main frame shares its target id.
	if c := chromedp.FromContext(tabCtx); c != nil && c.Target != nil {
		watcher.bindFrame(string(c.Target.TargetID))
	}
	navCtx, navCancel := context.WithTimeout(tabCtx, d.cfg.NavigationTimeout)
	err := chromedp.Run(navCtx, navigateForDownload(descriptor.DownloadURL))
	navCancel()
	// A download may still be in flight when the navigation never settles.
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("navigate to download: %w", err)
	}

	guid, err := watcher.wait(tabCtx, d.cfg.DownloadTimeout)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(d.downloadDir, guid)
	defer func() {
		_ = os.Remove(path)
	}()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read captured download: %w", err)
	}
	return data, nil
}

func (d *Downloader) start() error {
	d.startOnce.Do(func() {
		if err := chromedp.Run(d.browserCtx); err != nil {
			d.startErr = fmt.Errorf("start browser: %w", err)
		}
	})
	return d.startErr
}

func (d *Downloader) openSession(tabCtx context.Context, opportunityID string) error {
	navCtx, cancel := context.WithTimeout(tabCtx, d.cfg.NavigationTimeout)
	defer cancel()

	actions := []chromedp.Action{
		d.networkSetupAction(),
		browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(d.downloadDir).
			WithEventsEnabled(true),
	}
	if d.cfg.PageURL != nil {
		actions = append(actions,
			chromedp.Navigate(d.cfg.PageURL(opportunityID)),
			chromedp.WaitReady("body", chromedp.ByQuery),
		)
	}
	if err := chromedp.Run(navCtx, actions...); err != nil {
		return fmt.Errorf("open opportunity page: %w", err)
	}
	if d.cfg.Settle > 0 {
		if err := chromedp.Run(tabCtx, chromedp.Sleep(d.cfg.Settle)); err != nil {
			return fmt.Errorf("settle: %w", err)
		}
	}
	return nil
}

// navigateForDownload issues a raw navigation. Chrome aborts navigations that
// turn into downloads, so net::ERR_ABORTED is expected here.
func navigateForDownload(rawURL string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		err := chromedp.Navigate(rawURL).Do(ctx)
		if err != nil && !strings.Contains(err.Error(), "net::ERR_ABORTED") {
			return fmt.Errorf("page navigate: %w", err)
		}
		return nil
	})
}

func (d *Downloader) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if d.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(d.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(d.cfg.Headers) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(d.cfg.Headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

func (d *Downloader) acquire(ctx context.Context) error {
	if d.limiter == nil {
		return nil
	}
	select {
	case d.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("browser slot wait canceled: %w", ctx.Err())
	}
}

func (d *Downloader) release() {
	if d.limiter == nil {
		return
	}
	select {
	case <-d.limiter:
	default:
	}
}

// downloadWatcher follows the first download started by its tab's main
// frame. Downloads begun by sibling tabs are ignored.
type downloadWatcher struct {
	mu      sync.Mutex
	frameID string
	guid    string
	once    sync.Once
	result  chan downloadResult
}

type downloadResult struct {
	guid string
	err  error
}

func newDownloadWatcher() *downloadWatcher {
	return &downloadWatcher{result: make(chan downloadResult, 1)}
}

func (w *downloadWatcher) bindFrame(frameID string) {
	w.mu.Lock()
	w.frameID = frameID
	w.mu.Unlock()
}

func (w *downloadWatcher) handle(ev any) {
	switch e := ev.(type) {
	case *browser.EventDownloadWillBegin:
		w.mu.Lock()
		if w.guid == "" && (w.frameID == "" || string(e.FrameID) == w.frameID) {
			w.guid = e.GUID
		}
		w.mu.Unlock()
	case *browser.EventDownloadProgress:
		w.mu.Lock()
		ours := w.guid != "" && w.guid == e.GUID
		w.mu.Unlock()
		if !ours {
			return
		}
		switch e.State {
		case browser.DownloadProgressStateCompleted:
			w.finish(downloadResult{guid: e.GUID})
		case browser.DownloadProgressStateCanceled:
			w.finish(downloadResult{err: fmt.Errorf("%w: download canceled by browser", ErrNoDownload)})
		}
	}
}

func (w *downloadWatcher) finish(r downloadResult) {
	w.once.Do(func() {
		w.result <- r
	})
}

func (w *downloadWatcher) wait(ctx context.Context, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case r := <-w.result:
		return r.guid, r.err
	case <-timer.C:
		return "", fmt.Errorf("%w within %s", ErrNoDownload, timeout)
	case <-ctx.Done():
		return "", fmt.Errorf("wait for download: %w", ctx.Err())
	}
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		if len(values) == 0 || http.CanonicalHeaderKey(key) == "User-Agent" {
			continue
		}
		headers[key] = strings.Join(values, ", ")
	}
	return headers
}
