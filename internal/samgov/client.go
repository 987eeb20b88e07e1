package samgov

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sam-opportunity-harvester/internal/harvest"
	"github.com/JakeFAU/sam-opportunity-harvester/internal/metrics"
)

// ErrUpstreamStatus marks a non-2xx upstream response.
var ErrUpstreamStatus = errors.New("upstream returned non-success status")

// StatusError carries the status code of a failed upstream call.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d from %s", ErrUpstreamStatus.Error(), e.Code, e.URL)
}

// Unwrap lets errors.Is match ErrUpstreamStatus.
func (e *StatusError) Unwrap() error {
	return ErrUpstreamStatus
}

const maxJSONBody = 32 << 20

// Options configures a Client.
type Options struct {
	Endpoints Endpoints
	UserAgent string
	Timeout   time.Duration
	Retry     RetryPolicy
	// Transport overrides the underlying round tripper; used by tests.
	Transport http.RoundTripper
}

// Client implements harvest.Searcher, harvest.DetailFetcher and
// harvest.AttachmentResolver against the SAM.gov JSON API.
type Client struct {
	http      *http.Client
	endpoints Endpoints
	userAgent string
	clock     harvest.Clock
	logger    *zap.Logger
}

var (
	_ harvest.Searcher           = (*Client)(nil)
	_ harvest.DetailFetcher      = (*Client)(nil)
	_ harvest.AttachmentResolver = (*Client)(nil)
)

// NewClient builds a Client. clock supplies "now" for posted-from windows
// that the caller did not anchor.
func NewClient(opts Options, clock harvest.Clock, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 90 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	return &Client{
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: newRetryTransport(opts.Transport, opts.Retry),
		},
		endpoints: opts.Endpoints.withDefaults(),
		userAgent: opts.UserAgent,
		clock:     clock,
		logger:    logger,
	}
}

// Endpoints exposes the resolved upstream locations.
func (c *Client) Endpoints() Endpoints {
	return c.endpoints
}

// JSONHeaders returns the header set sent with every API call.
func JSONHeaders(userAgent string) http.Header {
	h := make(http.Header)
	h.Set("Accept", "application/hal+json, application/json")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Referer", "https://sam.gov/search/")
	h.Set("Origin", "https://sam.gov")
	h.Set("User-Agent", userAgent)
	return h
}

// getJSON issues a GET and decodes the body into a generic document.
func (c *Client) getJSON(ctx context.Context, endpoint, rawURL string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header = JSONHeaders(c.userAgent)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveUpstreamRequest(endpoint, 0, time.Since(start))
		return nil, fmt.Errorf("%s request: %w", endpoint, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	metrics.ObserveUpstreamRequest(endpoint, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &StatusError{Code: resp.StatusCode, URL: rawURL}
	}
	var doc any
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJSONBody)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return doc, nil
}
