package transport

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors a Session reports against,
// grounded in the teacher's internal/observability/metrics.go
// CounterVec/HistogramVec style, renamed off hopgate_* onto this
// module's own transport-level concerns.
type Metrics struct {
	StateTransitions      *prometheus.CounterVec
	HandshakeFailuresTotal prometheus.Counter
	HandshakeDuration      prometheus.Histogram
	OutboundQueueDepth     prometheus.Gauge
	CertReExtractionsTotal prometheus.Counter
}

// NewMetrics constructs a fresh Metrics set. Callers register it with a
// prometheus.Registerer of their choosing (MustRegister below targets
// the default global registry, matching the teacher's MustRegister
// pattern).
func NewMetrics() *Metrics {
	return &Metrics{
		StateTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sipdtls_session_state_transitions_total",
				Help: "Total number of session ConnectionState transitions, labeled by the destination state.",
			},
			[]string{"state"},
		),
		HandshakeFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sipdtls_handshake_failures_total",
				Help: "Total number of DTLS handshakes that ended in a fatal error.",
			},
		),
		HandshakeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sipdtls_handshake_duration_seconds",
				Help:    "Histogram of DTLS handshake durations in seconds, from handshakeStart to ESTABLISHED.",
				Buckets: prometheus.DefBuckets,
			},
		),
		OutboundQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sipdtls_outbound_queue_depth",
				Help: "Current number of pending entries in the outbound queue.",
			},
		),
		CertReExtractionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sipdtls_cert_reextractions_total",
				Help: "Total number of peer certificate extractions that missed the (issuer, serial) cache.",
			},
		),
	}
}

// MustRegister registers m's collectors with the default Prometheus
// registry. Call once per process.
func (m *Metrics) MustRegister() {
	prometheus.MustRegister(
		m.StateTransitions,
		m.HandshakeFailuresTotal,
		m.HandshakeDuration,
		m.OutboundQueueDepth,
		m.CertReExtractionsTotal,
	)
}
