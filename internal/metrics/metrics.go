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
	portalRequestsTotal          *prometheus.CounterVec
	portalRequestDurationSeconds *prometheus.HistogramVec
	rateLimitDelaySeconds        prometheus.Histogram
	retriesTotal                 *prometheus.CounterVec
	skippedTotal                 *prometheus.CounterVec
	windowsTotal                 *prometheus.CounterVec
	recordsTotal                 *prometheus.CounterVec
	proxyChecksTotal             *prometheus.CounterVec
	activeWorkers                prometheus.Gauge
	httpRequestsTotal            *prometheus.CounterVec
	httpRequestDurationSeconds   *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		portalRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_portal_requests_total",
				Help: "Portal requests, labeled by endpoint and outcome.",
			},
			[]string{"endpoint", "outcome"},
		)

		portalRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvest_portal_request_duration_seconds",
				Help:    "Portal request latency, labeled by endpoint.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"endpoint"},
		)

		rateLimitDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "harvest_rate_limit_delay_seconds",
				Help:    "Time spent waiting on a worker's rate limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
		)

		retriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_retries_total",
				Help: "Retried transient failures, labeled by operation.",
			},
			[]string{"op"},
		)

		skippedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_skipped_total",
				Help: "Pages or articles skipped, labeled by phase and reason.",
			},
			[]string{"phase", "reason"},
		)

		windowsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_windows_total",
				Help: "Windows processed, labeled by result.",
			},
			[]string{"result"},
		)

		recordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_records_total",
				Help: "Article records written to content checkpoints, labeled by selection.",
			},
			[]string{"label"},
		)

		proxyChecksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_proxy_checks_total",
				Help: "Proxy validation outcomes.",
			},
			[]string{"result"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvest_active_workers",
				Help: "Number of workers currently processing a window.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests to the status server, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of status server latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeHost reduces a proxy or portal URL to a lowercase host so that
// credentials never reach a label. It returns "unknown" if the URL is invalid.
func SanitizeHost(raw string) string {
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePortalRequest records one portal round trip.
func ObservePortalRequest(endpoint, outcome string, duration time.Duration) {
	Init()
	portalRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
	portalRequestDurationSeconds.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(duration time.Duration) {
	Init()
	rateLimitDelaySeconds.Observe(duration.Seconds())
}

// ObserveRetry counts one retry of op.
func ObserveRetry(op string) {
	Init()
	retriesTotal.WithLabelValues(op).Inc()
}

// ObserveSkip counts a page or article that was given up on.
func ObserveSkip(phase, reason string) {
	Init()
	skippedTotal.WithLabelValues(phase, reason).Inc()
}

// ObserveWindow counts a finished window.
func ObserveWindow(result string) {
	Init()
	windowsTotal.WithLabelValues(result).Inc()
}

// ObserveRecords adds n checkpointed records for label.
func ObserveRecords(label string, n int) {
	Init()
	if n > 0 {
		recordsTotal.WithLabelValues(label).Add(float64(n))
	}
}

// ObserveProxyCheck counts a proxy validation outcome.
func ObserveProxyCheck(result string) {
	Init()
	proxyChecksTotal.WithLabelValues(result).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveHTTPRequest records one status server request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
