// Package metrics provides the centralized Prometheus registry reference
// for the spacedata client. All metrics are defined in their respective
// packages (cache, ratelimit, client) to maintain modularity and avoid
// circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the spacedata client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - spacedata_cache_hits_total (Counter): Cache hits
//   - spacedata_cache_misses_total (Counter): Cache misses (absent, expired, invalidated)
//   - spacedata_cache_invalidations_total{reason} (Counter): Removals by reason
//     (expired, version, corrupt, budget)
//   - spacedata_cache_size_bytes (Gauge): Current total size of live entries
//   - spacedata_cache_errors_total{operation} (Counter): Degraded cache operations
//
// Rate Limit Metrics (pkg/ratelimit):
//   - spacedata_ratelimit_blocks_total{class} (Counter): Requests denied locally
//   - spacedata_ratelimit_requests_recorded_total{class} (Counter): Quota consumption
//   - spacedata_ratelimit_remaining{class} (Gauge): Requests left in the window
//
// Request Metrics (pkg/client):
//   - spacedata_requests_total{dataset, status} (Counter): Fetches by outcome
//     (cache_hit, ok, rate_limited, error)
//   - spacedata_request_duration_seconds{dataset} (Histogram): Fetch duration
//   - spacedata_errors_total{class} (Counter): Errors by class
//   - spacedata_upstream_ratelimit_remaining (Gauge): Upstream's own accounting
//
// Retry Metrics (pkg/client):
//   - spacedata_retries_total{error_class} (Counter): Retry attempts
//   - spacedata_retry_backoff_seconds{error_class} (Histogram): Backoff durations
//   - spacedata_retry_exhausted_total{error_class} (Counter): Exhausted retries
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(spacedata_cache_hits_total[5m])) /
//   (sum(rate(spacedata_cache_hits_total[5m])) + sum(rate(spacedata_cache_misses_total[5m])))
//
//   # Budget Pressure
//   spacedata_cache_size_bytes
//   rate(spacedata_cache_invalidations_total{reason="budget"}[15m])
//
//   # Quota Headroom
//   spacedata_ratelimit_remaining{class="demo"}
//
//   # P95 Fetch Latency
//   histogram_quantile(0.95, rate(spacedata_request_duration_seconds_bucket[5m]))
