package tcp

import (
	"log/slog"

	"github.com/c360/sensorfusion/bus"
	"github.com/c360/sensorfusion/metric"
)

// Option configures a Server.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	registry  *metric.MetricsRegistry
	unhandled bus.Decision
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(o *options) {
		o.registry = registry
	}
}

// WithUnhandled sets the decision used when Start is given no error policy.
// The default is Continue.
func WithUnhandled(d bus.Decision) Option {
	return func(o *options) {
		o.unhandled = d
	}
}
