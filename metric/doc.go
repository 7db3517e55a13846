// Package metric wraps a private Prometheus registry for the controller.
//
// Components take an optional *MetricsRegistry. A nil registry disables
// metrics for that component; statistics kept by the component itself
// stay available either way.
//
//	registry := metric.NewMetricsRegistry()
//	counter := prometheus.NewCounter(prometheus.CounterOpts{
//	    Namespace:   "fusion",
//	    Subsystem:   "bus",
//	    Name:        "received_total",
//	    ConstLabels: prometheus.Labels{"channel": "tag_scan"},
//	})
//	_ = registry.RegisterCounter("tag_scan", "received", counter)
//
// Core metrics (channel state, errors by class, policy decisions, reconnects)
// are registered once per registry and labelled by channel name.
//
// Server exposes the registry over HTTP at /metrics with a /health probe.
package metric
