package buffer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/sensorfusion/metric"
)

// bufferMetrics mirrors Statistics into Prometheus for one channel queue.
type bufferMetrics struct {
	writes, reads, drops prometheus.Counter
	size, utilization    prometheus.Gauge
}

func newBufferMetrics(registry *metric.MetricsRegistry, channel string) (*bufferMetrics, error) {
	labels := prometheus.Labels{"channel": channel}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fusion", Subsystem: "queue", Name: name, Help: help, ConstLabels: labels,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fusion", Subsystem: "queue", Name: name, Help: help, ConstLabels: labels,
		})
	}

	m := &bufferMetrics{
		writes:      counter("writes_total", "Items pushed into the queue"),
		reads:       counter("reads_total", "Items popped from the queue"),
		drops:       counter("drops_total", "Items evicted by the overflow policy"),
		size:        gauge("size", "Current number of queued items"),
		utilization: gauge("utilization", "Queue fill ratio (0.0 to 1.0)"),
	}

	for name, c := range map[string]prometheus.Collector{
		"queue_writes":      m.writes,
		"queue_reads":       m.reads,
		"queue_drops":       m.drops,
		"queue_size":        m.size,
		"queue_utilization": m.utilization,
	} {
		if err := registry.Register(channel, name, c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *bufferMetrics) recordWrite(size, capacity int) {
	m.writes.Inc()
	m.updateSize(size, capacity)
}

func (m *bufferMetrics) recordRead(size, capacity int) {
	m.reads.Inc()
	m.updateSize(size, capacity)
}

func (m *bufferMetrics) recordDrop() { m.drops.Inc() }

func (m *bufferMetrics) updateSize(size, capacity int) {
	m.size.Set(float64(size))
	m.utilization.Set(float64(size) / float64(capacity))
}
