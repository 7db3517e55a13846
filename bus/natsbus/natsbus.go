// Package natsbus is the NATS transport for package bus. The bus topic is
// the NATS subject and the payload is the message data.
package natsbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/sensorfusion/bus"
)

// Scheme is the endpoint scheme served by this driver.
const Scheme = "nats"

// Driver opens one NATS connection per socket. NATS-level reconnection is
// disabled: a lost connection surfaces as an error and package bus redials.
type Driver struct {
	// ClientName is reported to the server.
	ClientName string
	// Timeout bounds the initial connect.
	Timeout time.Duration
}

var _ bus.Driver = (*Driver)(nil)

// Register installs a default Driver for the nats scheme.
func Register(clientName string) {
	bus.Register(Scheme, &Driver{ClientName: clientName, Timeout: 2 * time.Second})
}

// Name implements bus.Driver.
func (d *Driver) Name() string { return "nats" }

func (d *Driver) connect(ep bus.Endpoint, lost chan<- error) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.NoReconnect(),
		nats.PingInterval(time.Second),
		nats.MaxPingsOutstanding(2),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err == nil {
				err = nats.ErrConnectionClosed
			}
			select {
			case lost <- err:
			default:
			}
		}),
	}
	if d.Timeout > 0 {
		opts = append(opts, nats.Timeout(d.Timeout))
	}
	if d.ClientName != "" {
		opts = append(opts, nats.Name(d.ClientName))
	}
	return nats.Connect(fmt.Sprintf("nats://%s", ep.Address()), opts...)
}

// DialSubscriber implements bus.Driver.
func (d *Driver) DialSubscriber(_ context.Context, ep bus.Endpoint, topic string) (bus.SubSocket, error) {
	lost := make(chan error, 1)
	nc, err := d.connect(ep, lost)
	if err != nil {
		return nil, err
	}

	sub, err := nc.SubscribeSync(topic)
	if err != nil {
		nc.Close()
		return nil, err
	}
	return &subSocket{nc: nc, sub: sub, lost: lost}, nil
}

// BindPublisher implements bus.Driver. NATS has no bind; the publisher
// connects to the server at ep.
func (d *Driver) BindPublisher(_ context.Context, ep bus.Endpoint) (bus.PubSocket, error) {
	lost := make(chan error, 1)
	nc, err := d.connect(ep, lost)
	if err != nil {
		return nil, err
	}
	return &pubSocket{nc: nc, lost: lost}, nil
}

type subSocket struct {
	nc   *nats.Conn
	sub  *nats.Subscription
	lost chan error
	once sync.Once
}

func (s *subSocket) Recv(ctx context.Context) (bus.Message, error) {
	select {
	case err := <-s.lost:
		return bus.Message{}, err
	default:
	}

	m, err := s.sub.NextMsgWithContext(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return bus.Message{}, ctx.Err()
		}
		return bus.Message{}, err
	}
	return bus.Message{Topic: m.Subject, Payload: m.Data}, nil
}

func (s *subSocket) Close() error {
	s.once.Do(func() {
		_ = s.sub.Unsubscribe()
		s.nc.Close()
	})
	return nil
}

type pubSocket struct {
	nc   *nats.Conn
	lost chan error
}

func (p *pubSocket) Send(_ context.Context, msg bus.Message) error {
	select {
	case err := <-p.lost:
		return err
	default:
	}
	if p.nc.IsClosed() {
		return nats.ErrConnectionClosed
	}
	return p.nc.Publish(msg.Topic, msg.Payload)
}

func (p *pubSocket) Close() error {
	p.nc.Close()
	return nil
}
