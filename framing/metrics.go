package framing

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/sensorfusion/metric"
)

type extractorMetrics struct {
	dispatched prometheus.Counter
	rejected   prometheus.Counter
	resyncs    prometheus.Counter
	overflows  prometheus.Counter
	garbage    prometheus.Counter
	buffered   prometheus.Gauge
}

func newExtractorMetrics(registry *metric.MetricsRegistry, name string) (*extractorMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	labels := prometheus.Labels{"channel": name}
	counter := func(metricName, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "fusion",
			Subsystem:   "framing",
			Name:        metricName,
			Help:        help,
			ConstLabels: labels,
		})
	}

	m := &extractorMetrics{
		dispatched: counter("frames_dispatched_total", "Frames validated, decoded and handed to the handler"),
		rejected:   counter("frames_rejected_total", "Frames dropped by validation or decoding"),
		resyncs:    counter("resyncs_total", "Partial frames abandoned by resynchronisation"),
		overflows:  counter("overflows_total", "Ring buffer overflows that reset the scanner"),
		garbage:    counter("garbage_bytes_total", "Bytes discarded outside any frame"),
		buffered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "fusion",
			Subsystem:   "framing",
			Name:        "buffered_bytes",
			Help:        "Bytes waiting in the ring buffer",
			ConstLabels: labels,
		}),
	}

	counters := []struct {
		key string
		c   prometheus.Counter
	}{
		{"framing_dispatched", m.dispatched},
		{"framing_rejected", m.rejected},
		{"framing_resyncs", m.resyncs},
		{"framing_overflows", m.overflows},
		{"framing_garbage", m.garbage},
	}
	for _, c := range counters {
		if err := registry.RegisterCounter(name, c.key, c.c); err != nil {
			return nil, err
		}
	}
	if err := registry.RegisterGauge(name, "framing_buffered", m.buffered); err != nil {
		return nil, err
	}
	return m, nil
}

// observe brings the scanner-derived counters up to date with delta.
func (m *extractorMetrics) observe(delta ScanStats, buffered int) {
	if m == nil {
		return
	}
	m.resyncs.Add(float64(delta.Resyncs))
	m.overflows.Add(float64(delta.Overflows))
	m.garbage.Add(float64(delta.GarbageBytes))
	m.buffered.Set(float64(buffered))
}

func (m *extractorMetrics) recordDispatch() {
	if m == nil {
		return
	}
	m.dispatched.Inc()
}

func (m *extractorMetrics) recordReject() {
	if m == nil {
		return
	}
	m.rejected.Inc()
}
