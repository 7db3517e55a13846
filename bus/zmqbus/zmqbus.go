// Package zmqbus is the ZeroMQ transport for package bus.
//
// Every message is two frames: the topic as bytes, then the payload.
// Subscribers dial the publisher; publishers bind.
package zmqbus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"

	"github.com/c360/sensorfusion/bus"
)

// ErrClosed is returned by Recv on a closed socket.
var ErrClosed = errors.New("zmqbus: socket closed")

// Schemes are the endpoint schemes served by this driver.
var Schemes = []string{"tcp", "ipc", "inproc"}

// Driver opens ZeroMQ PUB and SUB sockets.
type Driver struct {
	// DialTimeout bounds a single connection attempt.
	DialTimeout time.Duration
}

var _ bus.Driver = (*Driver)(nil)

// Register installs a default Driver for every scheme in Schemes.
func Register() {
	d := &Driver{DialTimeout: time.Second}
	for _, s := range Schemes {
		bus.Register(s, d)
	}
}

// Name implements bus.Driver.
func (d *Driver) Name() string { return "zmq" }

// DialSubscriber implements bus.Driver. The connection attempt is made once;
// retries belong to the caller.
func (d *Driver) DialSubscriber(_ context.Context, ep bus.Endpoint, topic string) (bus.SubSocket, error) {
	sockCtx, cancel := context.WithCancel(context.Background())

	opts := []zmq4.Option{zmq4.WithDialerMaxRetries(0)}
	if d.DialTimeout > 0 {
		opts = append(opts, zmq4.WithDialerTimeout(d.DialTimeout))
	}
	sock := zmq4.NewSub(sockCtx, opts...)

	if err := sock.SetOption(zmq4.OptionSubscribe, topic); err != nil {
		_ = sock.Close()
		cancel()
		return nil, err
	}
	if err := sock.Dial(address(ep)); err != nil {
		_ = sock.Close()
		cancel()
		return nil, err
	}

	s := &subSocket{
		sock:   sock,
		cancel: cancel,
		msgs:   make(chan received, 64),
		done:   make(chan struct{}),
	}
	go s.pump()
	return s, nil
}

// BindPublisher implements bus.Driver.
func (d *Driver) BindPublisher(_ context.Context, ep bus.Endpoint) (bus.PubSocket, error) {
	sockCtx, cancel := context.WithCancel(context.Background())
	sock := zmq4.NewPub(sockCtx)

	if err := sock.Listen(address(ep)); err != nil {
		_ = sock.Close()
		cancel()
		return nil, err
	}
	return &pubSocket{sock: sock, cancel: cancel}, nil
}

// address maps the bus wildcard host to the form the socket layer accepts.
func address(ep bus.Endpoint) string {
	if ep.Host == "*" {
		ep.Host = "0.0.0.0"
	}
	return ep.String()
}

type received struct {
	msg bus.Message
	err error
}

type subSocket struct {
	sock   zmq4.Socket
	cancel context.CancelFunc
	msgs   chan received
	done   chan struct{}
	once   sync.Once
}

// pump moves messages from the blocking socket Recv onto msgs so that
// Recv can honour a context.
func (s *subSocket) pump() {
	for {
		m, err := s.sock.Recv()
		if err != nil {
			select {
			case s.msgs <- received{err: err}:
			case <-s.done:
			}
			return
		}
		if len(m.Frames) < 2 {
			continue
		}

		r := received{msg: bus.Message{Topic: string(m.Frames[0]), Payload: m.Frames[1]}}
		select {
		case s.msgs <- r:
		case <-s.done:
			return
		}
	}
}

func (s *subSocket) Recv(ctx context.Context) (bus.Message, error) {
	select {
	case r := <-s.msgs:
		return r.msg, r.err
	case <-s.done:
		return bus.Message{}, ErrClosed
	case <-ctx.Done():
		return bus.Message{}, ctx.Err()
	}
}

func (s *subSocket) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.sock.Close()
		s.cancel()
	})
	return err
}

type pubSocket struct {
	sock   zmq4.Socket
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
}

func (p *pubSocket) Send(_ context.Context, msg bus.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	return p.sock.SendMulti(zmq4.NewMsgFrom([]byte(msg.Topic), msg.Payload))
}

// Addr returns the bound listener address.
func (p *pubSocket) Addr() string {
	if a := p.sock.Addr(); a != nil {
		return a.String()
	}
	return ""
}

func (p *pubSocket) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	err := p.sock.Close()
	p.cancel()
	return err
}
