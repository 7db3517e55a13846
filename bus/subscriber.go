package bus

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/c360/sensorfusion/errors"
)

// MessageHandler processes one payload. ctx identifies the dispatch loop and
// may be passed to Subscriber.Stop from inside the handler.
type MessageHandler func(ctx context.Context, payload []byte) error

// SubscriberConfig configures a Subscriber.
type SubscriberConfig struct {
	// Name identifies the channel in logs and metrics. Defaults to Topic.
	Name             string
	Endpoint         string
	Topic            string
	QueueCapacity    int
	PollTimeout      time.Duration
	ReconnectBackoff time.Duration
}

func (c SubscriberConfig) withDefaults() SubscriberConfig {
	if c.PollTimeout <= 0 {
		c.PollTimeout = DefaultPollTimeout
	}
	if c.ReconnectBackoff <= 0 {
		c.ReconnectBackoff = DefaultReconnectBackoff
	}
	return c
}

// SubscriberStats is a snapshot of subscriber counters.
type SubscriberStats struct {
	Received        int64 `json:"received"`
	Dispatched      int64 `json:"dispatched"`
	TopicMismatches int64 `json:"topic_mismatches"`
	Dropped         int64 `json:"dropped"`
	Errors          int64 `json:"errors"`
	Reconnects      int64 `json:"reconnects"`
}

// Subscriber receives messages for one exact topic and hands their payloads
// to a handler on a separate goroutine. Between the two sits a bounded
// queue that drops the oldest payload when the handler falls behind.
type Subscriber struct {
	*channel[SubSocket]
	cfg     SubscriberConfig
	handler MessageHandler

	received   atomic.Int64
	dispatched atomic.Int64
	mismatched atomic.Int64
}

// NewSubscriber validates cfg and starts the receive and dispatch loops.
// It returns without waiting for the publisher to be reachable.
func NewSubscriber(cfg SubscriberConfig, handler MessageHandler, opts ...Option) (*Subscriber, error) {
	if handler == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: nil handler", errors.ErrInvalidConfig), "bus-subscriber", "New", "handler validation")
	}

	cfg = cfg.withDefaults()
	ch, err := newChannel[SubSocket]("subscriber", cfg.Name, cfg.Endpoint, cfg.Topic,
		cfg.QueueCapacity, cfg.ReconnectBackoff, applyOptions(opts))
	if err != nil {
		return nil, err
	}

	s := &Subscriber{channel: ch, cfg: cfg, handler: handler}
	s.group.Go("receive", s.receiveLoop)
	s.group.Go("dispatch", s.dispatchLoop)

	s.logger.Info("Subscriber started", "topic", s.topic)
	return s, nil
}

func (s *Subscriber) dial(ctx context.Context) (SubSocket, error) {
	return s.driver.DialSubscriber(ctx, s.endpoint, s.topic)
}

func (s *Subscriber) receiveLoop(ctx context.Context) {
	for ctx.Err() == nil {
		sock, err := s.conn.ensure(ctx, s.dial)
		if err != nil {
			if ctx.Err() != nil || stderrors.Is(err, errors.ErrAlreadyStopped) {
				return
			}
			if s.reporter.Report(ctx, errors.WrapTransient(
				fmt.Errorf("%w: %w", errors.ErrDialFailed, err),
				"bus-subscriber", "receive", "connect")) == Stop {
				s.halt()
				return
			}
			continue
		}

		pollCtx, cancel := context.WithTimeout(ctx, s.cfg.PollTimeout)
		msg, err := sock.Recv(pollCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if stderrors.Is(err, context.DeadlineExceeded) {
				continue
			}
			s.faulted()
			if s.reporter.Report(ctx, errors.WrapTransient(
				fmt.Errorf("%w: %w", errors.ErrConnectionLost, err),
				"bus-subscriber", "receive", "receive")) == Stop {
				s.halt()
				return
			}
			continue
		}

		s.received.Add(1)
		if msg.Topic != s.topic {
			s.mismatched.Add(1)
			s.metrics.recordMismatch()
			continue
		}

		s.metrics.recordMessage(len(msg.Payload))
		_ = s.queue.Write(msg.Payload)
	}
}

func (s *Subscriber) dispatchLoop(ctx context.Context) {
	for {
		payload, err := s.queue.ReadContext(ctx)
		if err != nil || ctx.Err() != nil {
			return
		}

		if err := s.invoke(ctx, payload); err != nil {
			if s.reporter.Report(ctx, err) == Stop {
				s.halt()
				return
			}
		}
		s.dispatched.Add(1)
		if ctx.Err() != nil {
			// Stopped from inside the handler.
			return
		}
	}
}

func (s *Subscriber) invoke(ctx context.Context, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.WrapTransient(
				fmt.Errorf("%w: %w", errors.ErrHandlerFailed, errors.FromPanic(r)),
				"bus-subscriber", "dispatch", "handler")
		}
	}()

	if herr := s.handler(ctx, payload); herr != nil {
		return errors.WrapTransient(
			fmt.Errorf("%w: %w", errors.ErrHandlerFailed, herr),
			"bus-subscriber", "dispatch", "handler")
	}
	return nil
}

// Stop halts both loops, releases the socket and waits for the loops to
// exit. Called from a handler or policy with the ctx it was given, it skips
// waiting on its own loop. Safe to call more than once and concurrently.
func (s *Subscriber) Stop(ctx context.Context) error {
	s.halt()
	return s.group.Join(ctx)
}

// Done is closed once both loops have exited.
func (s *Subscriber) Done() <-chan struct{} {
	return s.group.Done()
}

// Name returns the channel name.
func (s *Subscriber) Name() string { return s.name }

// Topic returns the subscribed topic.
func (s *Subscriber) Topic() string { return s.topic }

// State returns the connection state.
func (s *Subscriber) State() State {
	return s.conn.current()
}

// Stats returns a snapshot of the subscriber counters.
func (s *Subscriber) Stats() SubscriberStats {
	return SubscriberStats{
		Received:        s.received.Load(),
		Dispatched:      s.dispatched.Load(),
		TopicMismatches: s.mismatched.Load(),
		Dropped:         s.queue.Stats().Drops(),
		Errors:          s.reporter.Total(),
		Reconnects:      s.conn.reconnectCount(),
	}
}
