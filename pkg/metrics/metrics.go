// Package metrics provides the Prometheus registry handle and the HTTP-level
// metrics of the proxy. Component metrics are defined in their respective
// packages (client, cache, credentials, proxy, ipecho) to maintain modularity
// and avoid circular dependencies.
//
// This package also documents every metric the proxy exports.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the proxy.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the registry /metrics is served from.
var Gatherer = prometheus.DefaultGatherer

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coc_http_requests_total",
		Help: "Total inbound HTTP requests by route and status code",
	}, []string{"route", "code"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coc_http_request_duration_seconds",
		Help:    "Inbound HTTP request duration in seconds by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	panicsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coc_http_panics_total",
		Help: "Handler panics recovered and answered with 500",
	})
)

// ObserveRequest records one inbound request. route is the route template,
// not the raw path, to keep label cardinality bounded.
func ObserveRequest(route string, status int, d time.Duration) {
	httpRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// ObservePanic records a recovered handler panic.
func ObservePanic() {
	panicsTotal.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// HTTP Metrics (pkg/metrics):
//   - coc_http_requests_total{route, code} (Counter): Inbound requests by route template and status
//   - coc_http_request_duration_seconds{route} (Histogram): Inbound request duration
//   - coc_http_panics_total (Counter): Recovered handler panics
//
// Proxy Metrics (pkg/proxy):
//   - coc_proxy_requests_total{resource, outcome} (Counter): Resource requests by outcome (hit, miss, error)
//
// Cache Metrics (pkg/cache):
//   - coc_cache_hits_total{backend} (Counter): Cache hits by backend
//   - coc_cache_misses_total{backend} (Counter): Cache misses by backend
//   - coc_cache_errors_total{backend, operation} (Counter): Cache operation errors
//   - coc_cache_evictions_total{backend} (Counter): Expired entries removed by the janitor
//   - coc_cache_flushes_total{backend} (Counter): Cache flushes
//
// Upstream Metrics (pkg/client):
//   - coc_upstream_requests_total{status} (Counter): Upstream calls by HTTP status (0 = transport failure)
//   - coc_upstream_request_duration_seconds (Histogram): Upstream call duration
//   - coc_upstream_errors_total{class} (Counter): Upstream failures by class (auth, not_found, rate_limit, unavailable, generic, network)
//
// Credential Metrics (pkg/credentials):
//   - coc_credential_calls_total{credential, status} (Counter): Upstream calls by credential index
//   - coc_credential_healthy{credential} (Gauge): 1 if the credential's last answer was healthy
//
// IP Detection Metrics (pkg/ipecho):
//   - coc_ip_probes_total{outcome} (Counter): IP echo probes by outcome
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(coc_cache_hits_total[5m])) /
//   (sum(rate(coc_cache_hits_total[5m])) + sum(rate(coc_cache_misses_total[5m])))
//
//   # Credentials rejected by the upstream (IP not whitelisted)
//   coc_credential_healthy == 0
//
//   # Upstream Error Rate
//   sum by (class) (rate(coc_upstream_errors_total[5m]))
//
//   # P95 Upstream Latency
//   histogram_quantile(0.95, rate(coc_upstream_request_duration_seconds_bucket[5m]))
