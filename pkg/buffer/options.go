package buffer

import (
	"github.com/c360/sensorfusion/metric"
)

// Option configures buffer behavior.
type Option[T any] func(*bufferOptions[T])

type bufferOptions[T any] struct {
	overflowPolicy OverflowPolicy
	dropCallback   DropCallback[T]

	metricsReg *metric.MetricsRegistry
	// metricsChannel is the channel label on exported metrics
	metricsChannel string
}

// WithOverflowPolicy sets the overflow behavior. Defaults to DropOldest.
func WithOverflowPolicy[T any](policy OverflowPolicy) Option[T] {
	return func(opts *bufferOptions[T]) {
		opts.overflowPolicy = policy
	}
}

// WithMetrics exports buffer statistics as Prometheus metrics labelled with
// channel. Ignored if registry is nil or channel is empty.
func WithMetrics[T any](registry *metric.MetricsRegistry, channel string) Option[T] {
	return func(opts *bufferOptions[T]) {
		if registry != nil && channel != "" {
			opts.metricsReg = registry
			opts.metricsChannel = channel
		}
	}
}

// WithDropCallback sets a callback invoked, outside the buffer lock, for each dropped item.
func WithDropCallback[T any](callback DropCallback[T]) Option[T] {
	return func(opts *bufferOptions[T]) {
		opts.dropCallback = callback
	}
}

func applyOptions[T any](options ...Option[T]) *bufferOptions[T] {
	opts := &bufferOptions[T]{
		overflowPolicy: DropOldest,
	}

	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}

	return opts
}
