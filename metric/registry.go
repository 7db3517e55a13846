package metric

import (
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/c360/sensorfusion/errors"
)

// MetricsRegistry owns a private Prometheus registry. Components register
// their collectors under a (channel, metric) key so the same channel cannot
// register a metric twice and a stopped channel can release its collectors.
type MetricsRegistry struct {
	prom *prometheus.Registry
	core *Metrics

	mu    sync.Mutex
	owned map[string]prometheus.Collector
}

// NewMetricsRegistry returns a registry carrying the shared channel metrics
// and the Go runtime and process collectors.
func NewMetricsRegistry() *MetricsRegistry {
	r := &MetricsRegistry{
		prom:  prometheus.NewRegistry(),
		core:  NewMetrics(),
		owned: make(map[string]prometheus.Collector),
	}
	r.prom.MustRegister(
		r.core.ChannelState,
		r.core.ErrorsTotal,
		r.core.PolicyDecisions,
		r.core.Reconnects,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// PrometheusRegistry returns the underlying registry for serving and
// gathering.
func (r *MetricsRegistry) PrometheusRegistry() *prometheus.Registry {
	return r.prom
}

// CoreMetrics returns the metrics every channel shares.
func (r *MetricsRegistry) CoreMetrics() *Metrics {
	return r.core
}

// RegisterCounter registers a counter owned by channel.
func (r *MetricsRegistry) RegisterCounter(channel, name string, c prometheus.Counter) error {
	return r.Register(channel, name, c)
}

// RegisterGauge registers a gauge owned by channel.
func (r *MetricsRegistry) RegisterGauge(channel, name string, g prometheus.Gauge) error {
	return r.Register(channel, name, g)
}

// RegisterHistogram registers a histogram owned by channel.
func (r *MetricsRegistry) RegisterHistogram(channel, name string, h prometheus.Histogram) error {
	return r.Register(channel, name, h)
}

// RegisterCounterVec registers a counter vector owned by channel.
func (r *MetricsRegistry) RegisterCounterVec(channel, name string, v *prometheus.CounterVec) error {
	return r.Register(channel, name, v)
}

// RegisterGaugeVec registers a gauge vector owned by channel.
func (r *MetricsRegistry) RegisterGaugeVec(channel, name string, v *prometheus.GaugeVec) error {
	return r.Register(channel, name, v)
}

// Register adds any collector under (channel, name). A key that is already
// taken, or a collector Prometheus already knows, is an invalid error.
func (r *MetricsRegistry) Register(channel, name string, c prometheus.Collector) error {
	key := channel + "/" + name

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.owned[key]; taken {
		return errors.WrapInvalid(fmt.Errorf("metric %q already registered by channel %q", name, channel),
			"MetricsRegistry", "Register", "duplicate registration")
	}

	if err := r.prom.Register(c); err != nil {
		var dup prometheus.AlreadyRegisteredError
		if stderrors.As(err, &dup) {
			return errors.WrapInvalid(err, "MetricsRegistry", "Register", "prometheus conflict for "+name)
		}
		return errors.WrapFatal(err, "MetricsRegistry", "Register", "collector registration")
	}
	r.owned[key] = c
	return nil
}

// Unregister releases the collector registered under (channel, name). It
// reports whether one was removed.
func (r *MetricsRegistry) Unregister(channel, name string) bool {
	key := channel + "/" + name

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.owned[key]
	if !ok || !r.prom.Unregister(c) {
		return false
	}
	delete(r.owned, key)
	return true
}
