package cache

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for cache operations.
type Metrics struct {
	hitsTotal            *prometheus.CounterVec
	missesTotal          *prometheus.CounterVec
	evictionsTotal       *prometheus.CounterVec
	sizeGauge            *prometheus.GaugeVec
	operationDuration    *prometheus.HistogramVec
	errorsTotal          *prometheus.CounterVec
	staleServedTotal     prometheus.Counter
	revalidationsTotal   prometheus.Counter
	collapsedMissesTotal prometheus.Counter
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// GetMetrics returns the singleton cache metrics instance.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = newMetrics()
	})
	return metricsInstance
}

// MustRegister registers all cache metric collectors with the given
// Prometheus registry. promauto registers with the default global
// registry, but /metrics is served from a custom registry; calling
// MustRegister bridges the two.
func (m *Metrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(
		m.hitsTotal,
		m.missesTotal,
		m.evictionsTotal,
		m.sizeGauge,
		m.operationDuration,
		m.errorsTotal,
		m.staleServedTotal,
		m.revalidationsTotal,
		m.collapsedMissesTotal,
	)
}

// Init pre-initializes common label combinations with zero values so the
// series appear in /metrics immediately after startup. Idempotent.
func (m *Metrics) Init() {
	for _, backend := range []string{"memory", "redis"} {
		m.hitsTotal.WithLabelValues(backend)
		m.missesTotal.WithLabelValues(backend)
		m.evictionsTotal.WithLabelValues(backend)
		m.sizeGauge.WithLabelValues(backend)
		for _, op := range []string{"get", "set", "delete", "exists"} {
			m.operationDuration.WithLabelValues(backend, op)
			m.errorsTotal.WithLabelValues(backend, op)
		}
	}
}

func newMetrics() *Metrics {
	return &Metrics{
		hitsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "routefs",
				Subsystem: "cache",
				Name:      "hits_total",
				Help:      "Total number of cache hits",
			},
			[]string{"backend"},
		),
		missesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "routefs",
				Subsystem: "cache",
				Name:      "misses_total",
				Help:      "Total number of cache misses",
			},
			[]string{"backend"},
		),
		evictionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "routefs",
				Subsystem: "cache",
				Name:      "evictions_total",
				Help:      "Total number of cache evictions",
			},
			[]string{"backend"},
		),
		sizeGauge: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "routefs",
				Subsystem: "cache",
				Name:      "size",
				Help:      "Current number of entries in the cache",
			},
			[]string{"backend"},
		),
		operationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "routefs",
				Subsystem: "cache",
				Name:      "operation_duration_seconds",
				Help:      "Duration of cache store operations",
				Buckets: []float64{
					.0001, .0005, .001, .005,
					.01, .025, .05, .1,
				},
			},
			[]string{"backend", "operation"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "routefs",
				Subsystem: "cache",
				Name:      "errors_total",
				Help:      "Total number of cache store errors",
			},
			[]string{"backend", "operation"},
		),
		staleServedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "routefs",
				Subsystem: "cache",
				Name:      "stale_served_total",
				Help:      "Responses served stale while revalidating",
			},
		),
		revalidationsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "routefs",
				Subsystem: "cache",
				Name:      "revalidations_total",
				Help:      "Background revalidations started",
			},
		),
		collapsedMissesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "routefs",
				Subsystem: "cache",
				Name:      "collapsed_misses_total",
				Help:      "Cold misses collapsed into an in-flight invocation",
			},
		),
	}
}
