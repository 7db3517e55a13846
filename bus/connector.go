package bus

import (
	"context"
	"io"
	"sync"

	"github.com/c360/sensorfusion/errors"
	"github.com/c360/sensorfusion/pkg/retry"
)

// State is the connection state of a channel.
type State int32

// Connection states. Draining is terminal.
const (
	Disconnected State = iota
	Connecting
	Connected
	Draining
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Draining:
		return "draining"
	default:
		return "unknown"
	}
}

// connector owns one socket handle and its reconnect countdown. It has its
// own lock, separate from the channel queue.
//
// ensure is called only by the channel's I/O loop; fail and drain may race it.
type connector[S io.Closer] struct {
	mu      sync.Mutex
	state   State
	sock    S
	live    bool
	backoff *retry.Backoff

	onState    func(State)
	onCloseErr func(error)
	reconnects int64
}

func newConnector[S io.Closer](backoff *retry.Backoff) *connector[S] {
	return &connector[S]{backoff: backoff}
}

// ensure returns the live handle, dialling one if needed. A failed dial
// arms the countdown; the next call waits it out first.
func (c *connector[S]) ensure(ctx context.Context, dial func(context.Context) (S, error)) (S, error) {
	var zero S

	c.mu.Lock()
	switch c.state {
	case Draining:
		c.mu.Unlock()
		return zero, errors.ErrAlreadyStopped
	case Connected:
		sock := c.sock
		c.mu.Unlock()
		return sock, nil
	}
	c.mu.Unlock()

	if err := c.backoff.Wait(ctx); err != nil {
		return zero, err
	}

	c.mu.Lock()
	if c.state == Draining {
		c.mu.Unlock()
		return zero, errors.ErrAlreadyStopped
	}
	c.setStateLocked(Connecting)
	c.mu.Unlock()

	sock, err := dial(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Draining {
		if err == nil {
			c.closeQuietly(sock)
		}
		return zero, errors.ErrAlreadyStopped
	}
	if err != nil {
		c.setStateLocked(Disconnected)
		c.backoff.Arm()
		return zero, err
	}

	c.sock, c.live = sock, true
	c.setStateLocked(Connected)
	c.backoff.Reset()
	return sock, nil
}

// fail discards the live handle after an I/O fault and arms the countdown.
func (c *connector[S]) fail() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Connected {
		return
	}
	c.releaseLocked()
	c.setStateLocked(Disconnected)
	c.backoff.Arm()
	c.reconnects++
}

// drain releases the handle and makes the connector terminal.
func (c *connector[S]) drain() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Draining {
		return
	}
	c.releaseLocked()
	c.setStateLocked(Draining)
}

func (c *connector[S]) current() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *connector[S]) reconnectCount() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnects
}

func (c *connector[S]) releaseLocked() {
	if !c.live {
		return
	}
	var zero S
	c.closeQuietly(c.sock)
	c.sock, c.live = zero, false
}

func (c *connector[S]) closeQuietly(sock S) {
	if err := sock.Close(); err != nil && c.onCloseErr != nil {
		c.onCloseErr(err)
	}
}

func (c *connector[S]) setStateLocked(s State) {
	c.state = s
	if c.onState != nil {
		c.onState(s)
	}
}
