package bus

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/c360/sensorfusion/errors"
)

// PublisherConfig configures a Publisher.
type PublisherConfig struct {
	// Name identifies the channel in logs and metrics. Defaults to Topic.
	Name             string
	Endpoint         string
	Topic            string
	QueueCapacity    int
	ReconnectBackoff time.Duration
}

func (c PublisherConfig) withDefaults() PublisherConfig {
	if c.ReconnectBackoff <= 0 {
		c.ReconnectBackoff = DefaultReconnectBackoff
	}
	return c
}

// PublisherStats is a snapshot of publisher counters.
type PublisherStats struct {
	Enqueued   int64 `json:"enqueued"`
	Sent       int64 `json:"sent"`
	Dropped    int64 `json:"dropped"`
	Lost       int64 `json:"lost"`
	Errors     int64 `json:"errors"`
	Reconnects int64 `json:"reconnects"`
}

// Publisher binds a socket passively and sends queued payloads under one
// topic from a background goroutine. Publish never blocks on I/O.
type Publisher struct {
	*channel[PubSocket]
	cfg PublisherConfig

	sent atomic.Int64
	lost atomic.Int64
}

// NewPublisher validates cfg and starts the send loop.
func NewPublisher(cfg PublisherConfig, opts ...Option) (*Publisher, error) {
	cfg = cfg.withDefaults()
	ch, err := newChannel[PubSocket]("publisher", cfg.Name, cfg.Endpoint, cfg.Topic,
		cfg.QueueCapacity, cfg.ReconnectBackoff, applyOptions(opts))
	if err != nil {
		return nil, err
	}

	p := &Publisher{channel: ch, cfg: cfg}
	p.group.Go("send", p.sendLoop)

	p.logger.Info("Publisher started", "topic", p.topic)
	return p, nil
}

// Publish enqueues payload for sending. When the queue is full the oldest
// payload is dropped. After Stop it does nothing and returns nil.
func (p *Publisher) Publish(payload []byte) error {
	if p.group.Signalled() {
		return nil
	}
	if payload == nil {
		return errors.WrapInvalid(errors.ErrNilPayload, "bus-publisher", "Publish", "payload validation")
	}
	// A write racing Stop fails with ErrAlreadyStopped, which is the same
	// as publishing after stop.
	_ = p.queue.Write(payload)
	return nil
}

func (p *Publisher) bind(ctx context.Context) (PubSocket, error) {
	return p.driver.BindPublisher(ctx, p.endpoint)
}

func (p *Publisher) sendLoop(ctx context.Context) {
	for ctx.Err() == nil {
		sock, err := p.conn.ensure(ctx, p.bind)
		if err != nil {
			if ctx.Err() != nil || stderrors.Is(err, errors.ErrAlreadyStopped) {
				return
			}
			if p.reporter.Report(ctx, errors.WrapTransient(
				fmt.Errorf("%w: %w", errors.ErrBindFailed, err),
				"bus-publisher", "send", "bind")) == Stop {
				p.halt()
				return
			}
			continue
		}

		payload, err := p.queue.ReadContext(ctx)
		if err != nil || ctx.Err() != nil {
			return
		}

		if err := sock.Send(ctx, Message{Topic: p.topic, Payload: payload}); err != nil {
			if ctx.Err() != nil {
				return
			}
			p.lost.Add(1)
			p.faulted()
			if p.reporter.Report(ctx, errors.WrapTransient(
				fmt.Errorf("%w: %w", errors.ErrConnectionLost, err),
				"bus-publisher", "send", "send")) == Stop {
				p.halt()
				return
			}
			continue
		}

		p.sent.Add(1)
		p.metrics.recordMessage(len(payload))
	}
}

// Stop halts the send loop, releases the socket and waits for the loop to
// exit. Queued payloads are discarded.
func (p *Publisher) Stop(ctx context.Context) error {
	p.halt()
	return p.group.Join(ctx)
}

// Done is closed once the send loop has exited.
func (p *Publisher) Done() <-chan struct{} {
	return p.group.Done()
}

// Name returns the channel name.
func (p *Publisher) Name() string { return p.name }

// Topic returns the topic every payload is sent under.
func (p *Publisher) Topic() string { return p.topic }

// State returns the connection state.
func (p *Publisher) State() State {
	return p.conn.current()
}

// Stats returns a snapshot of the publisher counters.
func (p *Publisher) Stats() PublisherStats {
	qs := p.queue.Stats()
	return PublisherStats{
		Enqueued:   qs.Writes(),
		Sent:       p.sent.Load(),
		Dropped:    qs.Drops(),
		Lost:       p.lost.Load(),
		Errors:     p.reporter.Total(),
		Reconnects: p.conn.reconnectCount(),
	}
}
