package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector holds the coordination-layer metrics.
type Collector struct {
	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Registry metrics
	registrationsTotal *prometheus.CounterVec
	resourcesActive    prometheus.Gauge
	resourcesTotal     prometheus.Gauge

	// Discovery metrics
	queriesTotal  *prometheus.CounterVec
	queryDuration prometheus.Histogram
	queryMatches  prometheus.Histogram

	// Delegation metrics
	delegationsTotal   *prometheus.CounterVec
	delegationDuration prometheus.Histogram

	// Cache metrics
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector creates a collector registered against reg. A nil reg uses
// the default Prometheus registerer.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.registrationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Total number of resource registration attempts",
		},
		[]string{"status"}, // active, pending, rejected, updated
	)

	c.resourcesActive = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "resources_active",
			Help:      "Number of resources visible to discovery",
		},
	)

	c.resourcesTotal = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "resources_total",
			Help:      "Number of registered resources, active or not",
		},
	)

	c.queriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Total number of capability queries",
		},
		[]string{"outcome"}, // matched, empty, invalid
	)

	c.queryDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Capability query duration in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		},
	)

	c.queryMatches = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_matches",
			Help:      "Number of candidates returned per query",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
		},
	)

	c.delegationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delegations_total",
			Help:      "Total number of task delegations",
		},
		[]string{"outcome"}, // success, failure, timeout
	)

	c.delegationDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delegation_duration_seconds",
			Help:      "Task delegation duration in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	c.cacheHits = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// RecordHTTPRequest records one served HTTP request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusClass(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordRegistration records a registration attempt outcome.
func (c *Collector) RecordRegistration(status string) {
	c.registrationsTotal.WithLabelValues(status).Inc()
}

// SetResourceCounts updates the registry size gauges.
func (c *Collector) SetResourceCounts(total, active int) {
	c.resourcesTotal.Set(float64(total))
	c.resourcesActive.Set(float64(active))
}

// RecordQuery records a capability query and its result size.
func (c *Collector) RecordQuery(outcome string, matches int, duration time.Duration) {
	c.queriesTotal.WithLabelValues(outcome).Inc()
	c.queryDuration.Observe(duration.Seconds())
	c.queryMatches.Observe(float64(matches))
}

// RecordDelegation records one task delegation attempt.
func (c *Collector) RecordDelegation(outcome string, duration time.Duration) {
	c.delegationsTotal.WithLabelValues(outcome).Inc()
	c.delegationDuration.Observe(duration.Seconds())
}

// RecordCacheHit records a cache hit.
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records a cache miss.
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
