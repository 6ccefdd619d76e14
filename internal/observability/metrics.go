package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics for the admin/introspection HTTP surface (internal/admin),
// kept separate from the session-level collectors in
// internal/transport/metrics.go: this package only ever sees HTTP
// traffic, never the DTLS session internals.

var (
	// HTTPRequestsTotal counts admin API requests, labeled by method and
	// status code.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sipdtls_admin_http_requests_total",
			Help: "Total number of admin HTTP requests handled, labeled by method and status code.",
		},
		[]string{"method", "status"},
	)

	// HTTPRequestDurationSeconds is the latency distribution of admin API
	// requests, labeled by method.
	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sipdtls_admin_http_request_duration_seconds",
			Help:    "Histogram of admin HTTP request latencies in seconds, labeled by method.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// AdminErrorsTotal counts admin-handler errors, labeled by cause.
	AdminErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sipdtls_admin_errors_total",
			Help: "Total number of admin-handler errors, labeled by error type.",
		},
		[]string{"type"},
	)
)

// MustRegister registers the admin HTTP collectors with the default
// Prometheus registry. Call once per process, alongside
// transport.Metrics.MustRegister.
func MustRegister() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		AdminErrorsTotal,
	)
}
