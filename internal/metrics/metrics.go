// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	harvestPagesTotal           prometheus.Counter
	harvestSummariesTotal       prometheus.Counter
	harvestRecordsTotal         *prometheus.CounterVec
	harvestAttachmentsTotal     *prometheus.CounterVec
	harvestAttachmentBytesTotal prometheus.Counter
	downloadAttemptsTotal       *prometheus.CounterVec
	upstreamRequestsTotal       *prometheus.CounterVec
	upstreamRequestDuration     *prometheus.HistogramVec
	upstreamRetriesTotal        *prometheus.CounterVec
	sinkPushesTotal             *prometheus.CounterVec
	httpRequestsTotal           *prometheus.CounterVec
	httpRequestDurationSeconds  *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		harvestPagesTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "harvest_pages_total",
			Help: "Total number of non-empty search pages processed.",
		})
		harvestSummariesTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "harvest_summaries_total",
			Help: "Total number of search summaries received.",
		})
		harvestRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_records_total",
				Help: "Opportunity records, labeled by outcome (pushed, failed, duplicate).",
			},
			[]string{"outcome"},
		)
		harvestAttachmentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_attachments_total",
				Help: "Attachments, labeled by final status.",
			},
			[]string{"status"},
		)
		harvestAttachmentBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "harvest_attachment_bytes_total",
			Help: "Total attachment bytes stored.",
		})
		downloadAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_download_attempts_total",
				Help: "Download strategy attempts, labeled by strategy and result.",
			},
			[]string{"strategy", "result"},
		)
		upstreamRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_upstream_requests_total",
				Help: "Upstream API requests, labeled by endpoint and status code.",
			},
			[]string{"endpoint", "code"},
		)
		upstreamRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvest_upstream_request_duration_seconds",
				Help:    "Histogram of upstream API latencies, labeled by endpoint.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"endpoint"},
		)
		upstreamRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_upstream_retries_total",
				Help: "Upstream request retries, labeled by host.",
			},
			[]string{"site"},
		)
		sinkPushesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_sink_pushes_total",
				Help: "Record sink pushes, labeled by sink and status.",
			},
			[]string{"sink", "status"},
		)
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)
		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObservePage records one non-empty search page of n summaries.
func ObservePage(n int) {
	Init()
	harvestPagesTotal.Inc()
	harvestSummariesTotal.Add(float64(n))
}

// ObserveRecord counts a record outcome.
func ObserveRecord(outcome string) {
	Init()
	harvestRecordsTotal.WithLabelValues(outcome).Inc()
}

// ObserveAttachment counts an attachment by status and adds stored bytes.
func ObserveAttachment(status string, bytesStored int64) {
	Init()
	if status == "" {
		status = "unknown"
	}
	harvestAttachmentsTotal.WithLabelValues(status).Inc()
	if bytesStored > 0 {
		harvestAttachmentBytesTotal.Add(float64(bytesStored))
	}
}

// ObserveDownloadAttempt counts one download strategy attempt.
func ObserveDownloadAttempt(strategy string, ok bool) {
	Init()
	result := "failure"
	if ok {
		result = "success"
	}
	downloadAttemptsTotal.WithLabelValues(strategy, result).Inc()
}

// ObserveUpstreamRequest records an upstream API call. code is 0 on transport failure.
func ObserveUpstreamRequest(endpoint string, code int, duration time.Duration) {
	Init()
	upstreamRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
	upstreamRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// ObserveUpstreamRetry counts a retried upstream request.
func ObserveUpstreamRetry(rawURL string) {
	Init()
	upstreamRetriesTotal.WithLabelValues(SanitizeSite(rawURL)).Inc()
}

// ObserveSinkPush counts a push to the named record sink.
func ObserveSinkPush(sink string, ok bool) {
	Init()
	status := "error"
	if ok {
		status = "ok"
	}
	sinkPushesTotal.WithLabelValues(sink, status).Inc()
}

// ObserveHTTPRequest increments the ops server request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
