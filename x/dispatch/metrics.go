package dispatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/compose-network/ingress/metrics"
)

// Metrics holds dispatch-level metrics
type Metrics struct {
	DetectionsTotal  *prometheus.CounterVec
	DecodesTotal     *prometheus.CounterVec
	FailuresTotal    *prometheus.CounterVec
	MatchesPerFrame  prometheus.Histogram
	DispatchDuration prometheus.Histogram
}

// NewMetrics creates dispatch metrics on the process-wide registry
func NewMetrics() *Metrics {
	return NewMetricsWith(metrics.NewComponentRegistry(metrics.Namespace, "dispatch"))
}

// NewMetricsWith creates dispatch metrics on reg
func NewMetricsWith(reg *metrics.ComponentRegistry) *Metrics {
	return &Metrics{
		DetectionsTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "detections_total",
			Help: "Frames claimed by a parser's detection",
		}, []string{"parser"}),

		DecodesTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "decodes_total",
			Help: "Frames decoded successfully by a parser",
		}, []string{"parser"}),

		FailuresTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "parser_failures_total",
			Help: "Decode failures replaced by the sentinel message",
		}, []string{"parser"}),

		MatchesPerFrame: reg.NewHistogram(prometheus.HistogramOpts{
			Name:    "matches_per_frame",
			Help:    "Number of parsers claiming each frame",
			Buckets: metrics.CountBuckets,
		}),

		DispatchDuration: reg.NewHistogram(prometheus.HistogramOpts{
			Name:    "duration_seconds",
			Help:    "Time spent fanning one frame out to the registry",
			Buckets: metrics.DurationBuckets,
		}),
	}
}

func (m *Metrics) recordResult(label string, detected, failed bool) {
	if detected {
		m.DetectionsTotal.WithLabelValues(label).Inc()
	}
	switch {
	case failed:
		m.FailuresTotal.WithLabelValues(label).Inc()
	case detected:
		m.DecodesTotal.WithLabelValues(label).Inc()
	}
}

func (m *Metrics) recordFrame(matches int, duration time.Duration) {
	m.MatchesPerFrame.Observe(float64(matches))
	m.DispatchDuration.Observe(duration.Seconds())
}
