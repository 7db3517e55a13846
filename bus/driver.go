package bus

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/c360/sensorfusion/errors"
)

// Message is one two-part bus message: a topic and an opaque payload.
type Message struct {
	Topic   string
	Payload []byte
}

// SubSocket is a connected subscriber handle.
//
// Recv returns the next message, or ctx.Err() once ctx is done with no
// message available. Any other error means the handle is unusable.
type SubSocket interface {
	Recv(ctx context.Context) (Message, error)
	Close() error
}

// PubSocket is a bound publisher handle. Send errors mean the handle is unusable.
type PubSocket interface {
	Send(ctx context.Context, msg Message) error
	Close() error
}

// Driver opens sockets for one transport.
type Driver interface {
	Name() string
	// DialSubscriber connects to a publisher at ep and filters on topic.
	// Transports may deliver any message whose topic starts with topic;
	// the subscriber applies the exact comparison.
	DialSubscriber(ctx context.Context, ep Endpoint, topic string) (SubSocket, error)
	// BindPublisher listens at ep for subscribers.
	BindPublisher(ctx context.Context, ep Endpoint) (PubSocket, error)
}

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Driver)
)

// Register makes d the driver for scheme, replacing any earlier one.
func Register(scheme string, d Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[scheme] = d
}

// Lookup returns the driver registered for scheme.
func Lookup(scheme string) (Driver, error) {
	driversMu.RLock()
	defer driversMu.RUnlock()

	d, ok := drivers[scheme]
	if !ok {
		return nil, errors.WrapFatal(
			fmt.Errorf("%w: %q", errors.ErrUnknownDriver, scheme),
			"bus", "Lookup", "driver resolution")
	}
	return d, nil
}

// Schemes lists the registered schemes in sorted order.
func Schemes() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()

	out := make([]string, 0, len(drivers))
	for s := range drivers {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
