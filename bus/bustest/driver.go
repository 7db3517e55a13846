// Package bustest provides an in-memory bus.Driver for exercising channels
// without sockets.
package bustest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/c360/sensorfusion/bus"
)

// ErrClosed is returned by operations on a closed fake socket.
var ErrClosed = errors.New("bustest: socket closed")

// Driver routes messages between fake publishers and subscribers that share
// an endpoint address. Subscribers see every message whose topic starts with
// their filter, like a ZeroMQ SUB socket.
type Driver struct {
	mu      sync.Mutex
	subs    map[string][]*SubSocket
	dialErr error
	bindErr error
	sendErr error

	Dials atomic.Int64
	Binds atomic.Int64
}

var _ bus.Driver = (*Driver)(nil)

// New returns an empty fake driver.
func New() *Driver {
	return &Driver{subs: make(map[string][]*SubSocket)}
}

// Name implements bus.Driver.
func (d *Driver) Name() string { return "bustest" }

// FailDial makes every DialSubscriber fail with err until cleared with nil.
func (d *Driver) FailDial(err error) {
	d.mu.Lock()
	d.dialErr = err
	d.mu.Unlock()
}

// FailBind makes every BindPublisher fail with err until cleared with nil.
func (d *Driver) FailBind(err error) {
	d.mu.Lock()
	d.bindErr = err
	d.mu.Unlock()
}

// FailSend makes every Send fail with err until cleared with nil.
func (d *Driver) FailSend(err error) {
	d.mu.Lock()
	d.sendErr = err
	d.mu.Unlock()
}

// DialSubscriber implements bus.Driver.
func (d *Driver) DialSubscriber(_ context.Context, ep bus.Endpoint, topic string) (bus.SubSocket, error) {
	d.Dials.Add(1)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.dialErr != nil {
		return nil, d.dialErr
	}
	s := &SubSocket{
		driver:  d,
		addr:    ep.String(),
		filter:  topic,
		inbox:   make(chan bus.Message, 1024),
		faults:  make(chan error, 1),
		closeCh: make(chan struct{}),
	}
	d.subs[s.addr] = append(d.subs[s.addr], s)
	return s, nil
}

// BindPublisher implements bus.Driver.
func (d *Driver) BindPublisher(_ context.Context, ep bus.Endpoint) (bus.PubSocket, error) {
	d.Binds.Add(1)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.bindErr != nil {
		return nil, d.bindErr
	}
	return &PubSocket{driver: d, addr: ep.String(), closeCh: make(chan struct{})}, nil
}

// Inject delivers msg to every live subscriber on endpoint.
func (d *Driver) Inject(endpoint string, msg bus.Message) {
	d.mu.Lock()
	subs := append([]*SubSocket(nil), d.subs[normalize(endpoint)]...)
	d.mu.Unlock()

	for _, s := range subs {
		s.deliver(msg)
	}
}

// Break makes the next Recv of every live subscriber on endpoint fail with err.
func (d *Driver) Break(endpoint string, err error) {
	d.mu.Lock()
	subs := append([]*SubSocket(nil), d.subs[normalize(endpoint)]...)
	d.mu.Unlock()

	for _, s := range subs {
		select {
		case s.faults <- err:
		default:
		}
	}
}

// Subscribers reports how many live subscriber sockets are attached to endpoint.
func (d *Driver) Subscribers(endpoint string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subs[normalize(endpoint)])
}

func (d *Driver) remove(s *SubSocket) {
	d.mu.Lock()
	defer d.mu.Unlock()

	list := d.subs[s.addr]
	for i, x := range list {
		if x == s {
			d.subs[s.addr] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

func normalize(endpoint string) string {
	ep, err := bus.ParseEndpoint(endpoint)
	if err != nil {
		return endpoint
	}
	return ep.String()
}

// SubSocket is a fake subscriber handle.
type SubSocket struct {
	driver  *Driver
	addr    string
	filter  string
	inbox   chan bus.Message
	faults  chan error
	closeCh chan struct{}
	once    sync.Once
}

func (s *SubSocket) deliver(msg bus.Message) {
	if !strings.HasPrefix(msg.Topic, s.filter) {
		return
	}
	select {
	case s.inbox <- msg:
	case <-s.closeCh:
	}
}

// Recv implements bus.SubSocket.
func (s *SubSocket) Recv(ctx context.Context) (bus.Message, error) {
	select {
	case err := <-s.faults:
		return bus.Message{}, err
	case <-s.closeCh:
		return bus.Message{}, ErrClosed
	default:
	}

	select {
	case msg := <-s.inbox:
		return msg, nil
	case err := <-s.faults:
		return bus.Message{}, err
	case <-s.closeCh:
		return bus.Message{}, ErrClosed
	case <-ctx.Done():
		return bus.Message{}, ctx.Err()
	}
}

// Close implements bus.SubSocket.
func (s *SubSocket) Close() error {
	s.once.Do(func() {
		close(s.closeCh)
		s.driver.remove(s)
	})
	return nil
}

// PubSocket is a fake publisher handle.
type PubSocket struct {
	driver  *Driver
	addr    string
	closeCh chan struct{}
	once    sync.Once
}

// Send implements bus.PubSocket.
func (p *PubSocket) Send(_ context.Context, msg bus.Message) error {
	select {
	case <-p.closeCh:
		return ErrClosed
	default:
	}

	p.driver.mu.Lock()
	err := p.driver.sendErr
	p.driver.mu.Unlock()
	if err != nil {
		return err
	}

	payload := append([]byte(nil), msg.Payload...)
	p.driver.Inject(p.addr, bus.Message{Topic: msg.Topic, Payload: payload})
	return nil
}

// Close implements bus.PubSocket.
func (p *PubSocket) Close() error {
	p.once.Do(func() { close(p.closeCh) })
	return nil
}
