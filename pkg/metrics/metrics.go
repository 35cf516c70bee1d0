// Package metrics provides the Prometheus registry and handler for pagefetch.
// All metrics are defined in their respective packages (ratelimit, client,
// pagination) to maintain modularity and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry receives the handler's own request counters and Gatherer is what
// Handler exposes. Both default to the Prometheus default registry, where
// promauto registers every pagefetch metric.
var (
	Registry prometheus.Registerer = prometheus.DefaultRegisterer
	Gatherer prometheus.Gatherer   = prometheus.DefaultGatherer
)

// Handler returns the HTTP handler serving every metric in Gatherer.
func Handler() http.Handler {
	return promhttp.InstrumentMetricHandler(Registry,
		promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{}))
}

// Metrics Documentation
//
// Rate Limit Metrics (pkg/ratelimit):
//   - pagefetch_ratelimit_acquired_total{backend} (Counter): Request slots granted (memory, redis)
//   - pagefetch_ratelimit_waits_total{backend} (Counter): Times a caller had to wait for a slot
//   - pagefetch_ratelimit_wait_seconds{backend} (Histogram): Time spent waiting for a slot
//
// Call Metrics (pkg/client):
//   - pagefetch_calls_total{outcome} (Counter): Call attempts by outcome (success, transient, rate_limit, permanent, cancelled, limiter_error)
//   - pagefetch_retries_total{error_class} (Counter): Retry attempts by error class
//   - pagefetch_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - pagefetch_retry_exhausted_total{error_class} (Counter): Calls that exhausted max retries
//
// Fetch Metrics (pkg/pagination):
//   - pagefetch_pages_total (Counter): Pages fetched successfully
//   - pagefetch_records_total (Counter): Records fetched
//   - pagefetch_fetches_total{status} (Counter): Collection fetches by status (success, failed)
//   - pagefetch_fetch_duration_seconds (Histogram): Duration of collection fetches
//   - pagefetch_partitions_in_flight (Gauge): Partitions currently being fetched
//
// Upstream Metrics (internal/httpsource):
//   - pagefetch_http_requests_total{status} (Counter): HTTP responses by status code
//   - pagefetch_http_request_duration_seconds (Histogram): HTTP request duration
//
// Example Prometheus Queries:
//
//   # Retry Rate
//   sum(rate(pagefetch_retries_total[5m])) / sum(rate(pagefetch_calls_total[5m]))
//
//   # Share of calls that had to wait for the rate limiter
//   rate(pagefetch_ratelimit_waits_total[5m]) / rate(pagefetch_ratelimit_acquired_total[5m])
//
//   # Failed Fetches
//   rate(pagefetch_fetches_total{status="failed"}[5m])
//
//   # P95 Fetch Duration
//   histogram_quantile(0.95, rate(pagefetch_fetch_duration_seconds_bucket[5m]))
