package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by backend
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coc_cache_hits_total",
			Help: "Total number of response cache hits",
		},
		[]string{"backend"}, // "memory", "redis"
	)

	// CacheMisses tracks cache misses by backend
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coc_cache_misses_total",
			Help: "Total number of response cache misses",
		},
		[]string{"backend"},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coc_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"backend", "operation"}, // "get", "set", "keys", "flush"
	)

	// CacheEvictions tracks expired entries removed by the janitor
	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coc_cache_evictions_total",
			Help: "Total number of expired cache entries removed by sweeps",
		},
		[]string{"backend"},
	)

	// CacheFlushes tracks flush-all operations
	CacheFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coc_cache_flushes_total",
			Help: "Total number of cache flush operations",
		},
		[]string{"backend"},
	)
)
