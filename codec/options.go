package codec

import (
	"log/slog"

	"github.com/c360/sensorfusion/bus"
	"github.com/c360/sensorfusion/metric"
)

// Option configures a typed channel.
type Option[T any] func(*options[T])

type options[T any] struct {
	codec     Codec[T]
	policy    bus.ErrorPolicy
	unhandled bus.Decision
	logger    *slog.Logger
	registry  *metric.MetricsRegistry
	busOpts   []bus.Option
}

// WithCodec replaces the default Msgpack codec.
func WithCodec[T any](c Codec[T]) Option[T] {
	return func(o *options[T]) {
		o.codec = c
	}
}

// WithErrorPolicy sets the policy for decode, encode and handler errors.
// Transport errors go to the policy given through WithBusOptions.
func WithErrorPolicy[T any](p bus.ErrorPolicy) Option[T] {
	return func(o *options[T]) {
		o.policy = p
	}
}

// WithUnhandled sets the decision used when no policy is installed.
// Typed channels default to Stop.
func WithUnhandled[T any](d bus.Decision) Option[T] {
	return func(o *options[T]) {
		o.unhandled = d
	}
}

// WithLogger sets the logger for the typed layer and the underlying channel.
func WithLogger[T any](logger *slog.Logger) Option[T] {
	return func(o *options[T]) {
		o.logger = logger
	}
}

// WithMetrics enables metrics on the underlying channel and counts typed
// decode, encode and handler errors in the core metrics.
func WithMetrics[T any](registry *metric.MetricsRegistry) Option[T] {
	return func(o *options[T]) {
		o.registry = registry
	}
}

// WithBusOptions passes options through to the byte-level channel.
func WithBusOptions[T any](opts ...bus.Option) Option[T] {
	return func(o *options[T]) {
		o.busOpts = append(o.busOpts, opts...)
	}
}

func applyOptions[T any](opts []Option[T]) options[T] {
	o := options[T]{
		codec:     Msgpack[T]{},
		unhandled: bus.Stop,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// byteOptions returns the options for the wrapped channel. Explicit
// WithBusOptions entries come last and win.
func (o options[T]) byteOptions() []bus.Option {
	out := make([]bus.Option, 0, len(o.busOpts)+2)
	if o.logger != nil {
		out = append(out, bus.WithLogger(o.logger))
	}
	if o.registry != nil {
		out = append(out, bus.WithMetrics(o.registry))
	}
	return append(out, o.busOpts...)
}
