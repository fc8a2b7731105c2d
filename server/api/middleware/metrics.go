package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/compose-network/ingress/metrics"
)

// HTTPMetrics tracks API request counts, latencies and recovered panics.
type HTTPMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	PanicsTotal     prometheus.Counter
}

// NewHTTPMetrics registers the API metrics on the default registry.
func NewHTTPMetrics() *HTTPMetrics {
	return NewHTTPMetricsWith(metrics.NewComponentRegistry(metrics.Namespace, "api"))
}

// NewHTTPMetricsWith registers the API metrics on reg.
func NewHTTPMetricsWith(reg *metrics.ComponentRegistry) *HTTPMetrics {
	return &HTTPMetrics{
		RequestsTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "requests_total",
			Help: "Total number of HTTP API requests",
		}, []string{"method", "route", "code"}),

		RequestDuration: reg.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "request_duration_seconds",
			Help:    "HTTP API request latency",
			Buckets: metrics.DurationBuckets,
		}, []string{"method", "route"}),

		PanicsTotal: reg.NewCounter(prometheus.CounterOpts{
			Name: "panics_total",
			Help: "Recovered HTTP handler panics",
		}),
	}
}

// Metrics records every request on m, labeled by the matched route template.
// Install it with Router.Use so the matched route is visible to it.
func Metrics(m *HTTPMetrics) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := wrap(w)

			next.ServeHTTP(rw, r)

			route := routeTemplate(r)
			m.RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.status)).Inc()
			m.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// routeTemplate returns the mux path template so IDs do not explode label
// cardinality. Unmatched requests share one label.
func routeTemplate(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return "unmatched"
	}
	tpl, err := route.GetPathTemplate()
	if err != nil {
		return "unmatched"
	}
	return tpl
}
