package dispatch

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the dispatch layer.
type Metrics struct {
	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	proxyRequestsTotal *prometheus.CounterVec
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// GetMetrics returns the singleton dispatch metrics instance.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = newMetrics()
	})
	return metricsInstance
}

// MustRegister registers the dispatch metric collectors with the given
// Prometheus registry.
func (m *Metrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.proxyRequestsTotal,
	)
}

func (m *Metrics) observe(method string, status int, elapsed time.Duration) {
	code := strconv.Itoa(status)
	m.requestsTotal.WithLabelValues(method, code).Inc()
	m.requestDuration.WithLabelValues(method, code).Observe(elapsed.Seconds())
}

func newMetrics() *Metrics {
	return &Metrics{
		requestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "routefs",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of dispatched requests",
			},
			[]string{"method", "code"},
		),
		requestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "routefs",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Request handling duration",
				Buckets: []float64{
					.001, .005, .01, .025, .05,
					.1, .25, .5, 1, 2.5, 5,
				},
			},
			[]string{"method", "code"},
		),
		proxyRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "routefs",
				Subsystem: "proxy",
				Name:      "requests_total",
				Help:      "Total number of proxied requests by upstream status",
			},
			[]string{"status"},
		),
	}
}
