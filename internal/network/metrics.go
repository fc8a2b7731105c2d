package network

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/compose-network/ingress/metrics"
)

// Connection states used as label values.
const (
	StateAccepted = "accepted"
	StateRejected = "rejected"
	StateClosed   = "closed"
	StateFailed   = "failed"
)

// Metrics holds all network-level metrics
type Metrics struct {
	// Connection management
	ConnectionsTotal   *prometheus.CounterVec
	ConnectionsActive  prometheus.Gauge
	ConnectionDuration *prometheus.HistogramVec

	// Frame I/O
	FramesTotal    *prometheus.CounterVec
	FrameSizeBytes *prometheus.HistogramVec
	BytesTotal     *prometheus.CounterVec

	// Network errors
	ErrorsTotal *prometheus.CounterVec
}

// NewMetrics creates network metrics on the process-wide registry
func NewMetrics() *Metrics {
	return NewMetricsWith(metrics.NewComponentRegistry(metrics.Namespace, "network"))
}

// NewMetricsWith creates network metrics on reg
func NewMetricsWith(reg *metrics.ComponentRegistry) *Metrics {
	return &Metrics{
		ConnectionsTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "connections_total",
			Help: "Total number of network connections by lifecycle state",
		}, []string{"state"}),

		ConnectionsActive: reg.NewGauge(prometheus.GaugeOpts{
			Name: "connections_active",
			Help: "Number of active network connections",
		}),

		ConnectionDuration: reg.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "connection_duration_seconds",
			Help:    "Duration of network connections by terminal state",
			Buckets: metrics.NetworkBuckets,
		}, []string{"state"}),

		FramesTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "frames_total",
			Help: "Total number of frames by direction",
		}, []string{"direction"}),

		FrameSizeBytes: reg.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "frame_size_bytes",
			Help:    "Size of frames in bytes",
			Buckets: metrics.SizeBuckets,
		}, []string{"direction"}),

		BytesTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "bytes_total",
			Help: "Total number of socket bytes by direction",
		}, []string{"direction"}),

		ErrorsTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of network errors",
		}, []string{"type", "operation"}),
	}
}

// RecordConnection records a network connection event
func (m *Metrics) RecordConnection(state string) {
	m.ConnectionsTotal.WithLabelValues(state).Inc()

	switch state {
	case StateAccepted:
		m.ConnectionsActive.Inc()
	case StateClosed, StateFailed:
		m.ConnectionsActive.Dec()
	default:
	}
}

// RecordConnectionDuration records the lifetime of a terminated connection
func (m *Metrics) RecordConnectionDuration(state string, duration time.Duration) {
	m.ConnectionDuration.WithLabelValues(state).Observe(duration.Seconds())
}

// RecordBytesRead records raw bytes read from a socket
func (m *Metrics) RecordBytesRead(n int) {
	m.BytesTotal.WithLabelValues("received").Add(float64(n))
}

// RecordFrameReceived records a decoded inbound frame
func (m *Metrics) RecordFrameReceived(sizeBytes int) {
	m.FramesTotal.WithLabelValues("received").Inc()
	m.FrameSizeBytes.WithLabelValues("received").Observe(float64(sizeBytes))
}

// RecordFrameSent records an encoded outbound frame
func (m *Metrics) RecordFrameSent(sizeBytes int) {
	m.FramesTotal.WithLabelValues("sent").Inc()
	m.FrameSizeBytes.WithLabelValues("sent").Observe(float64(sizeBytes))
	m.BytesTotal.WithLabelValues("sent").Add(float64(sizeBytes))
}

// RecordError records a network error
func (m *Metrics) RecordError(errorType, operation string) {
	m.ErrorsTotal.WithLabelValues(errorType, operation).Inc()
}
