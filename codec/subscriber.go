package codec

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/c360/sensorfusion/bus"
	"github.com/c360/sensorfusion/errors"
)

// Handler processes one decoded record. ctx belongs to the dispatch loop.
type Handler[T any] func(ctx context.Context, msg T) error

// TypedSubscriber decodes each payload of a bus.Subscriber into T.
//
// Decode failures, handler errors and handler panics are contained here and
// never reach the byte-level dispatch loop. They are reported to the typed
// policy; a Stop decision stops the underlying subscriber.
type TypedSubscriber[T any] struct {
	sub      *bus.Subscriber
	codec    Codec[T]
	handler  Handler[T]
	reporter *bus.Reporter
	ready    chan struct{}

	decoded       atomic.Int64
	decodeErrors  atomic.Int64
	handlerErrors atomic.Int64
}

// NewTypedSubscriber starts a byte subscriber whose payloads are decoded with
// the configured codec and handed to handler.
func NewTypedSubscriber[T any](cfg bus.SubscriberConfig, handler Handler[T], opts ...Option[T]) (*TypedSubscriber[T], error) {
	if handler == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: nil handler", errors.ErrInvalidConfig), "typed-subscriber", "New", "handler validation")
	}

	o := applyOptions(opts)

	name := cfg.Name
	if name == "" {
		name = cfg.Topic
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default().With("pid", os.Getpid())
	}
	logger = logger.With("component", "typed-subscriber", "channel", name)

	s := &TypedSubscriber[T]{
		codec:    o.codec,
		handler:  handler,
		reporter: bus.NewReporter(name, logger, o.policy, o.unhandled, o.registry),
		ready:    make(chan struct{}),
	}

	sub, err := bus.NewSubscriber(cfg, s.onPayload, o.byteOptions()...)
	if err != nil {
		return nil, err
	}
	s.sub = sub
	close(s.ready)
	return s, nil
}

// onPayload is the byte-level handler. It always returns nil.
func (s *TypedSubscriber[T]) onPayload(ctx context.Context, payload []byte) error {
	<-s.ready

	if err := s.process(ctx, payload); err != nil {
		if s.reporter.Report(ctx, err) == bus.Stop {
			// ctx marks the dispatch loop, so Stop does not wait on it.
			_ = s.sub.Stop(ctx)
		}
	}
	return nil
}

func (s *TypedSubscriber[T]) process(ctx context.Context, payload []byte) (err error) {
	msg, err := s.codec.Decode(payload)
	if err != nil {
		s.decodeErrors.Add(1)
		return err
	}
	s.decoded.Add(1)

	defer func() {
		if r := recover(); r != nil {
			s.handlerErrors.Add(1)
			err = errors.WrapTransient(
				fmt.Errorf("%w: %w", errors.ErrHandlerFailed, errors.FromPanic(r)),
				"typed-subscriber", "dispatch", "handler")
		}
	}()

	if herr := s.handler(ctx, msg); herr != nil {
		s.handlerErrors.Add(1)
		return errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrHandlerFailed, herr),
			"typed-subscriber", "dispatch", "handler")
	}
	return nil
}

// Stop stops the underlying subscriber. See bus.Subscriber.Stop.
func (s *TypedSubscriber[T]) Stop(ctx context.Context) error {
	return s.sub.Stop(ctx)
}

// Done is closed once the underlying loops have exited.
func (s *TypedSubscriber[T]) Done() <-chan struct{} {
	return s.sub.Done()
}

// Subscriber returns the wrapped byte subscriber.
func (s *TypedSubscriber[T]) Subscriber() *bus.Subscriber {
	return s.sub
}

// TypedStats counts typed-layer outcomes.
type TypedStats struct {
	Decoded       int64 `json:"decoded"`
	DecodeErrors  int64 `json:"decode_errors"`
	HandlerErrors int64 `json:"handler_errors"`
}

// Stats returns the typed-layer counters.
func (s *TypedSubscriber[T]) Stats() TypedStats {
	return TypedStats{
		Decoded:       s.decoded.Load(),
		DecodeErrors:  s.decodeErrors.Load(),
		HandlerErrors: s.handlerErrors.Load(),
	}
}
