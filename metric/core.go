package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the transport-level metrics shared by every channel.
// Channel-specific counters are registered by the components themselves.
type Metrics struct {
	ChannelState    *prometheus.GaugeVec
	ErrorsTotal     *prometheus.CounterVec
	PolicyDecisions *prometheus.CounterVec
	Reconnects      *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all core metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ChannelState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "fusion",
				Subsystem: "channel",
				Name:      "state",
				Help:      "Connection state (0=disconnected, 1=connecting, 2=connected, 3=draining)",
			},
			[]string{"channel"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fusion",
				Subsystem: "channel",
				Name:      "errors_total",
				Help:      "Non-fatal errors offered to the error policy",
			},
			[]string{"channel", "class"},
		),

		PolicyDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fusion",
				Subsystem: "channel",
				Name:      "policy_decisions_total",
				Help:      "Error policy outcomes",
			},
			[]string{"channel", "decision"},
		),

		Reconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fusion",
				Subsystem: "channel",
				Name:      "reconnects_total",
				Help:      "Connection handles replaced after an I/O fault",
			},
			[]string{"channel"},
		),
	}
}

// RecordChannelState sets the connection state gauge for a channel
func (m *Metrics) RecordChannelState(channel string, state int) {
	m.ChannelState.WithLabelValues(channel).Set(float64(state))
}

// RecordError counts a classified error for a channel
func (m *Metrics) RecordError(channel, class string) {
	m.ErrorsTotal.WithLabelValues(channel, class).Inc()
}

// RecordDecision counts an error policy outcome for a channel
func (m *Metrics) RecordDecision(channel, decision string) {
	m.PolicyDecisions.WithLabelValues(channel, decision).Inc()
}

// RecordReconnect counts a replaced connection handle for a channel
func (m *Metrics) RecordReconnect(channel string) {
	m.Reconnects.WithLabelValues(channel).Inc()
}
