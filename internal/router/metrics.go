package router

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MatcherMetrics holds Prometheus metrics for route matching.
type MatcherMetrics struct {
	matchesTotal *prometheus.CounterVec
}

var (
	matcherMetricsInstance *MatcherMetrics
	matcherMetricsOnce     sync.Once
)

// GetMatcherMetrics returns the singleton matcher metrics instance.
func GetMatcherMetrics() *MatcherMetrics {
	matcherMetricsOnce.Do(func() {
		matcherMetricsInstance = newMatcherMetrics()
	})
	return matcherMetricsInstance
}

// MustRegister registers the matcher metric collectors with the given
// Prometheus registry. promauto registers with the default global
// registry; this bridges them onto a custom one.
func (m *MatcherMetrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(m.matchesTotal)
}

// RecordMatch records a lookup outcome: "hit", "catchall", or "miss".
func (m *MatcherMetrics) RecordMatch(outcome string) {
	m.matchesTotal.WithLabelValues(outcome).Inc()
}

func newMatcherMetrics() *MatcherMetrics {
	return &MatcherMetrics{
		matchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "routefs",
				Subsystem: "router",
				Name:      "matches_total",
				Help:      "Total number of route lookups by outcome",
			},
			[]string{"outcome"},
		),
	}
}
