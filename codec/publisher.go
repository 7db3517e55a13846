package codec

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/c360/sensorfusion/bus"
)

// stopTimeout bounds the stop triggered by an encode failure.
const stopTimeout = 5 * time.Second

// TypedPublisher encodes records of type T and publishes them through a
// bus.Publisher.
type TypedPublisher[T any] struct {
	pub      *bus.Publisher
	codec    Codec[T]
	reporter *bus.Reporter
}

// NewTypedPublisher starts a byte publisher for records of type T.
func NewTypedPublisher[T any](cfg bus.PublisherConfig, opts ...Option[T]) (*TypedPublisher[T], error) {
	o := applyOptions(opts)

	name := cfg.Name
	if name == "" {
		name = cfg.Topic
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default().With("pid", os.Getpid())
	}
	logger = logger.With("component", "typed-publisher", "channel", name)

	pub, err := bus.NewPublisher(cfg, o.byteOptions()...)
	if err != nil {
		return nil, err
	}

	return &TypedPublisher[T]{
		pub:      pub,
		codec:    o.codec,
		reporter: bus.NewReporter(name, logger, o.policy, o.unhandled, o.registry),
	}, nil
}

// Publish encodes msg and enqueues it. An encode failure is reported to the
// typed policy, stops the publisher on a Stop decision, and is returned.
func (p *TypedPublisher[T]) Publish(msg T) error {
	payload, err := p.codec.Encode(msg)
	if err != nil {
		if p.reporter.Report(context.Background(), err) == bus.Stop {
			ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			defer cancel()
			_ = p.pub.Stop(ctx)
		}
		return err
	}
	return p.pub.Publish(payload)
}

// Stop stops the underlying publisher.
func (p *TypedPublisher[T]) Stop(ctx context.Context) error {
	return p.pub.Stop(ctx)
}

// Publisher returns the wrapped byte publisher.
func (p *TypedPublisher[T]) Publisher() *bus.Publisher {
	return p.pub
}
