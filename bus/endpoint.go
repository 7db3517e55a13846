package bus

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/c360/sensorfusion/errors"
)

// Endpoint is a parsed transport address such as tcp://10.0.0.5:5556,
// ipc:///tmp/fusion.sock or inproc://tags.
type Endpoint struct {
	Scheme string
	Host   string
	Port   int
	// Path holds the socket path for ipc and the name for inproc.
	Path string
}

// ParseEndpoint validates and splits raw. Network schemes need host:port
// with a port in 1..65535; a host of "*" means all interfaces.
func ParseEndpoint(raw string) (Endpoint, error) {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok || scheme == "" {
		return Endpoint{}, invalidEndpoint(raw, "missing scheme")
	}
	scheme = strings.ToLower(scheme)

	switch scheme {
	case "ipc", "inproc":
		if rest == "" {
			return Endpoint{}, invalidEndpoint(raw, "missing path")
		}
		return Endpoint{Scheme: scheme, Path: rest}, nil
	}

	host, portStr, err := net.SplitHostPort(rest)
	if err != nil {
		return Endpoint{}, invalidEndpoint(raw, "expected host:port")
	}
	if host == "" {
		return Endpoint{}, invalidEndpoint(raw, "missing host")
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return Endpoint{}, invalidEndpoint(raw, "port out of range")
	}
	return Endpoint{Scheme: scheme, Host: host, Port: port}, nil
}

func invalidEndpoint(raw, reason string) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: endpoint %q: %s", errors.ErrInvalidConfig, raw, reason),
		"Endpoint", "Parse", "endpoint validation")
}

// Address returns host:port for network schemes and the path otherwise.
func (e Endpoint) Address() string {
	if e.Path != "" {
		return e.Path
	}
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// String returns the endpoint in scheme://address form.
func (e Endpoint) String() string {
	return e.Scheme + "://" + e.Address()
}
