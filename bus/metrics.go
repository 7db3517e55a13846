package bus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/sensorfusion/metric"
)

// channelMetrics holds per-channel counters. A nil *channelMetrics is valid
// and records nothing.
type channelMetrics struct {
	messages        prometheus.Counter
	bytes           prometheus.Counter
	topicMismatches prometheus.Counter
	core            *metric.Metrics
	channel         string
}

func newChannelMetrics(registry *metric.MetricsRegistry, channel, role string) (*channelMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	labels := prometheus.Labels{"channel": channel, "role": role}
	m := &channelMetrics{
		messages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "fusion",
			Subsystem:   "bus",
			Name:        "messages_total",
			ConstLabels: labels,
			Help:        "Messages received or sent on the channel topic",
		}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "fusion",
			Subsystem:   "bus",
			Name:        "bytes_total",
			ConstLabels: labels,
			Help:        "Payload bytes received or sent",
		}),
		topicMismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "fusion",
			Subsystem:   "bus",
			Name:        "topic_mismatches_total",
			ConstLabels: labels,
			Help:        "Messages discarded because the topic was not an exact match",
		}),
		core:    registry.CoreMetrics(),
		channel: channel,
	}

	if err := registry.RegisterCounter(channel, role+"_messages", m.messages); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(channel, role+"_bytes", m.bytes); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(channel, role+"_topic_mismatches", m.topicMismatches); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *channelMetrics) recordMessage(n int) {
	if m == nil {
		return
	}
	m.messages.Inc()
	m.bytes.Add(float64(n))
}

func (m *channelMetrics) recordMismatch() {
	if m == nil {
		return
	}
	m.topicMismatches.Inc()
}

func (m *channelMetrics) recordState(s State) {
	if m == nil {
		return
	}
	m.core.RecordChannelState(m.channel, int(s))
}

func (m *channelMetrics) recordReconnect() {
	if m == nil {
		return
	}
	m.core.RecordReconnect(m.channel)
}
