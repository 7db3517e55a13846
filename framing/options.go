package framing

import (
	"log/slog"

	"github.com/c360/sensorfusion/bus"
	"github.com/c360/sensorfusion/codec"
	"github.com/c360/sensorfusion/metric"
)

// Option configures an Extractor.
type Option[T any] func(*options[T])

type options[T any] struct {
	codec     codec.Codec[T]
	policy    bus.ErrorPolicy
	unhandled bus.Decision
	logger    *slog.Logger
	registry  *metric.MetricsRegistry
}

// WithCodec replaces the default JSON decoder.
func WithCodec[T any](c codec.Codec[T]) Option[T] {
	return func(o *options[T]) { o.codec = c }
}

// WithErrorPolicy sets the policy for rejected frames and handler errors.
func WithErrorPolicy[T any](p bus.ErrorPolicy) Option[T] {
	return func(o *options[T]) { o.policy = p }
}

// WithUnhandled sets the decision used without a policy. Default Continue.
func WithUnhandled[T any](d bus.Decision) Option[T] {
	return func(o *options[T]) { o.unhandled = d }
}

// WithLogger sets the extractor logger.
func WithLogger[T any](logger *slog.Logger) Option[T] {
	return func(o *options[T]) { o.logger = logger }
}

// WithMetrics enables Prometheus metrics.
func WithMetrics[T any](registry *metric.MetricsRegistry) Option[T] {
	return func(o *options[T]) { o.registry = registry }
}
