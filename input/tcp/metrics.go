package tcp

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/sensorfusion/metric"
)

// serverMetrics is nil when no registry was supplied.
type serverMetrics struct {
	connections prometheus.Counter
	preemptions prometheus.Counter
	bytes       prometheus.Counter
	chunks      prometheus.Counter
	rebinds     prometheus.Counter
	connected   prometheus.Gauge
}

func newServerMetrics(registry *metric.MetricsRegistry, name string) (*serverMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	labels := prometheus.Labels{"channel": name}
	counter := func(metricName, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "fusion",
			Subsystem:   "tcp",
			Name:        metricName,
			Help:        help,
			ConstLabels: labels,
		})
	}

	m := &serverMetrics{
		connections: counter("connections_total", "Client connections accepted"),
		preemptions: counter("preemptions_total", "Clients closed because a newer connection was pending"),
		bytes:       counter("bytes_received_total", "Bytes received from clients"),
		chunks:      counter("chunks_received_total", "Non-empty reads delivered to the chunk handler"),
		rebinds:     counter("rebinds_total", "Listener rebind attempts after a listener failure"),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "fusion",
			Subsystem:   "tcp",
			Name:        "client_connected",
			Help:        "1 while a client is attached",
			ConstLabels: labels,
		}),
	}

	for key, c := range map[string]prometheus.Counter{
		"tcp_connections": m.connections,
		"tcp_preemptions": m.preemptions,
		"tcp_bytes":       m.bytes,
		"tcp_chunks":      m.chunks,
		"tcp_rebinds":     m.rebinds,
	} {
		if err := registry.RegisterCounter(name, key, c); err != nil {
			return nil, err
		}
	}
	if err := registry.RegisterGauge(name, "tcp_connected", m.connected); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *serverMetrics) recordAccept(preempted bool) {
	if m == nil {
		return
	}
	m.connections.Inc()
	if preempted {
		m.preemptions.Inc()
	}
	m.connected.Set(1)
}

func (m *serverMetrics) recordDetach() {
	if m == nil {
		return
	}
	m.connected.Set(0)
}

func (m *serverMetrics) recordChunk(n int) {
	if m == nil {
		return
	}
	m.chunks.Inc()
	m.bytes.Add(float64(n))
}

func (m *serverMetrics) recordRebind() {
	if m == nil {
		return
	}
	m.rebinds.Inc()
}
