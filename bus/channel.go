package bus

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/sensorfusion/errors"
	"github.com/c360/sensorfusion/pkg/buffer"
	"github.com/c360/sensorfusion/pkg/lifecycle"
	"github.com/c360/sensorfusion/pkg/retry"
)

// channel is the state shared by Subscriber and Publisher.
type channel[S interface{ Close() error }] struct {
	name     string
	topic    string
	endpoint Endpoint
	driver   Driver
	logger   *slog.Logger
	reporter *Reporter
	metrics  *channelMetrics
	queue    buffer.Buffer[[]byte]
	conn     *connector[S]
	group    *lifecycle.Group

	// closeNotices throttles secondary close failures.
	closeNotices rate.Sometimes
}

func newChannel[S interface{ Close() error }](
	kind, name, rawEndpoint, topic string, capacity int, backoff time.Duration, o options,
) (*channel[S], error) {
	if topic == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: empty topic", errors.ErrInvalidConfig), kind, "New", "topic validation")
	}
	if capacity <= 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: queue capacity %d", errors.ErrInvalidConfig, capacity), kind, "New", "capacity validation")
	}

	ep, err := ParseEndpoint(rawEndpoint)
	if err != nil {
		return nil, err
	}

	driver := o.driver
	if driver == nil {
		if driver, err = Lookup(ep.Scheme); err != nil {
			return nil, err
		}
	}

	if name == "" {
		name = topic
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default().With("pid", os.Getpid())
	}
	logger = logger.With("component", kind, "channel", name, "endpoint", ep.String())

	metrics, err := newChannelMetrics(o.registry, name, kind)
	if err != nil {
		return nil, errors.WrapTransient(err, kind, "New", "metrics registration")
	}

	queueOpts := []buffer.Option[[]byte]{buffer.WithOverflowPolicy[[]byte](buffer.DropOldest)}
	if o.registry != nil {
		queueOpts = append(queueOpts, buffer.WithMetrics[[]byte](o.registry, name+"_"+kind))
	}
	queue, err := buffer.NewCircularBuffer(capacity, queueOpts...)
	if err != nil {
		return nil, err
	}

	c := &channel[S]{
		name:         name,
		topic:        topic,
		endpoint:     ep,
		driver:       driver,
		logger:       logger,
		reporter:     NewReporter(name, logger, o.policy, o.unhandled, o.registry),
		metrics:      metrics,
		queue:        queue,
		conn:         newConnector[S](reconnectCountdown(backoff)),
		group:        lifecycle.NewGroup(nil, kind+":"+name),
		closeNotices: rate.Sometimes{First: 3, Interval: 10 * time.Second},
	}
	c.conn.onState = func(s State) {
		c.metrics.recordState(s)
		c.logger.Debug("Connection state changed", "state", s.String())
	}
	c.conn.onCloseErr = func(err error) {
		c.closeNotices.Do(func() {
			c.logger.Debug("Ignoring socket close failure", "error", err)
		})
	}
	return c, nil
}

// reconnectCountdown waits the same delay after every connect, bind,
// receive or send failure.
func reconnectCountdown(backoff time.Duration) *retry.Backoff {
	if backoff <= 0 {
		backoff = DefaultReconnectBackoff
	}
	return retry.Fixed(backoff)
}

// halt signals both loops, wakes the dispatcher and releases the socket.
// It does not wait; callers join separately.
func (c *channel[S]) halt() {
	c.group.Signal()
	_ = c.queue.Close()
	c.conn.drain()
}

// faulted discards the live socket after an I/O error.
func (c *channel[S]) faulted() {
	c.conn.fail()
	c.metrics.recordReconnect()
}
