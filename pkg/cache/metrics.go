package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// cacheHits tracks successful cache reads.
	cacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "spacedata_cache_hits_total",
			Help: "Total number of cache hits",
		},
	)

	// cacheMisses tracks cache misses (absent, expired, invalidated).
	cacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "spacedata_cache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	// cacheInvalidations tracks entry removals by reason.
	cacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spacedata_cache_invalidations_total",
			Help: "Total number of cache entries removed by reason",
		},
		[]string{"reason"}, // "expired", "version", "corrupt", "budget"
	)

	// cacheSize tracks the byte total across live entries.
	cacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "spacedata_cache_size_bytes",
			Help: "Current total size of live cache entries in bytes",
		},
	)

	// cacheErrors tracks degraded operations by kind.
	cacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spacedata_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "clear", "evict"
	)
)
