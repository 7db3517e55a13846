package bus

import (
	"log/slog"
	"time"

	"github.com/c360/sensorfusion/metric"
)

// Defaults applied when a config field is zero.
const (
	DefaultPollTimeout      = 100 * time.Millisecond
	DefaultReconnectBackoff = time.Second
	DefaultQueueCapacity    = 1000
)

// Option configures a Subscriber or Publisher.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	registry  *metric.MetricsRegistry
	driver    Driver
	policy    ErrorPolicy
	unhandled Decision
}

// WithLogger sets the logger. The channel name is added as an attribute.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics enables Prometheus metrics for the channel.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(o *options) {
		o.registry = registry
	}
}

// WithDriver bypasses the scheme registry.
func WithDriver(d Driver) Option {
	return func(o *options) {
		o.driver = d
	}
}

// WithErrorPolicy sets the policy consulted after each non-fatal error.
func WithErrorPolicy(p ErrorPolicy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithUnhandled sets the decision used when no policy is installed.
// Byte-level channels default to Continue.
func WithUnhandled(d Decision) Option {
	return func(o *options) {
		o.unhandled = d
	}
}

func applyOptions(opts []Option) options {
	o := options{unhandled: Continue}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
