// Package collyfetcher implements the direct-fetch download strategy using
// gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/sam-opportunity-harvester/internal/harvest"
)

// StrategyName identifies this strategy in outcomes, logs and metrics.
const StrategyName = "direct"

const (
	defaultTimeout     = 120 * time.Second
	defaultMaxBodySize = 200 << 20
)

// ErrTruncated reports a body cut short by the size limit.
var ErrTruncated = errors.New("response body truncated")

// Config controls collector behavior.
type Config struct {
	UserAgent   string
	Headers     http.Header
	Timeout     time.Duration
	MaxBodySize int
	// Transport overrides the HTTP transport; used by tests.
	Transport http.RoundTripper
}

// Downloader fetches attachment bytes with a single plain GET.
type Downloader struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

type download struct {
	body     []byte
	status   int
	declared int64
	err      error
}

// New builds a Downloader.
func New(cfg Config) *Downloader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = defaultMaxBodySize
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.IgnoreRobotsTxt = true
	transport := cfg.Transport
	if transport == nil {
		transport = newHTTPTransport()
	}
	c.WithTransport(transport)
	return &Downloader{cfg: cfg, baseCollector: c}
}

// Name implements acquire.Strategy.
func (d *Downloader) Name() string {
	return StrategyName
}

// Attempt downloads descriptor.DownloadURL. Non-2xx statuses and transport
// failures are errors.
func (d *Downloader) Attempt(
	ctx context.Context,
	_ string,
	descriptor harvest.AttachmentDescriptor,
) ([]byte, error) {
	if descriptor.DownloadURL == "" {
		return nil, errors.New("missing download url")
	}
	var result download
	collector := d.buildCollector(ctx, &result)
	if err := d.runCollector(ctx, collector, descriptor.DownloadURL, &result); err != nil {
		return nil, err
	}
	if result.declared > 0 && int64(len(result.body)) < result.declared {
		return nil, fmt.Errorf("%w: got %d of %d bytes", ErrTruncated, len(result.body), result.declared)
	}
	return result.body, nil
}

func (d *Downloader) buildCollector(ctx context.Context, result *download) *colly.Collector {
	collector := d.baseCollector.Clone()
	collector.Context = ctx
	if d.cfg.UserAgent != "" {
		collector.UserAgent = d.cfg.UserAgent
	}
	collector.MaxBodySize = d.cfg.MaxBodySize
	collector.SetRequestTimeout(d.cfg.Timeout)
	d.configureCollectorHooks(collector, result)
	return collector
}

func (d *Downloader) configureCollectorHooks(hooks collectorHooks, result *download) {
	hooks.OnRequest(func(r *colly.Request) {
		d.copyHeaders(r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		result.status = r.StatusCode
		result.body = append([]byte(nil), r.Body...)
		if r.Headers != nil {
			if n, err := strconv.ParseInt(r.Headers.Get("Content-Length"), 10, 64); err == nil {
				result.declared = n
			}
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			err = fmt.Errorf("status %d: %w", r.StatusCode, err)
		}
		result.err = err
	})
}

func (d *Downloader) runCollector(ctx context.Context, collector *colly.Collector, url string, result *download) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("direct download canceled: %w", ctx.Err())
	case err := <-done:
		if result.err != nil {
			return fmt.Errorf("direct download failed: %w", result.err)
		}
		if err != nil {
			return fmt.Errorf("direct download visit: %w", err)
		}
		if result.status < 200 || result.status >= 300 {
			return fmt.Errorf("direct download: unexpected status %d", result.status)
		}
		return nil
	}
}

func (d *Downloader) copyHeaders(r *colly.Request) {
	for key, values := range d.cfg.Headers {
		if http.CanonicalHeaderKey(key) == "User-Agent" {
			continue
		}
		r.Headers.Del(key)
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
