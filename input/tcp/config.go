package tcp

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/c360/sensorfusion/errors"
)

// Defaults applied by Config.withDefaults.
const (
	DefaultPollTimeout    = 100 * time.Millisecond
	DefaultPreemptPoll    = time.Millisecond
	DefaultReadBufferSize = 4096
	DefaultRebindBackoff  = time.Second
)

// Config describes the listening side of a raw TCP channel.
type Config struct {
	// Name identifies the channel in logs and metrics. Defaults to "tcp_<port>".
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Bind is the local address. Empty binds all interfaces.
	Bind string `json:"bind" yaml:"bind"`

	// Port 0 asks the OS for an ephemeral port; see Server.Addr.
	Port int `json:"port" yaml:"port"`

	// PollTimeout bounds each blocking read and accept so that stop and
	// pending connections are observed promptly.
	PollTimeout time.Duration `json:"poll_timeout,omitempty" yaml:"poll_timeout,omitempty"`

	// PreemptPoll is the accept deadline used to look for a newer client
	// while one is attached.
	PreemptPoll time.Duration `json:"preempt_poll,omitempty" yaml:"preempt_poll,omitempty"`

	ReadBufferSize int           `json:"read_buffer_size,omitempty" yaml:"read_buffer_size,omitempty"`
	RebindBackoff  time.Duration `json:"rebind_backoff,omitempty" yaml:"rebind_backoff,omitempty"`
}

// Validate checks the bind address and port.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return errors.WrapInvalid(fmt.Errorf("%w: port %d out of range", errors.ErrInvalidConfig, c.Port),
			"tcp-config", "Validate", "port validation")
	}
	if c.Bind != "" && c.Bind != "*" && net.ParseIP(c.Bind) == nil {
		if _, err := net.LookupHost(c.Bind); err != nil {
			return errors.WrapInvalid(fmt.Errorf("%w: bind address %q", errors.ErrInvalidConfig, c.Bind),
				"tcp-config", "Validate", "bind validation")
		}
	}
	if c.PollTimeout < 0 || c.PreemptPoll < 0 || c.RebindBackoff < 0 || c.ReadBufferSize < 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: negative tunable", errors.ErrInvalidConfig),
			"tcp-config", "Validate", "tunable validation")
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "tcp_" + strconv.Itoa(c.Port)
	}
	if c.Bind == "*" {
		c.Bind = ""
	}
	if c.PollTimeout == 0 {
		c.PollTimeout = DefaultPollTimeout
	}
	if c.PreemptPoll == 0 {
		c.PreemptPoll = DefaultPreemptPoll
	}
	if c.ReadBufferSize == 0 {
		c.ReadBufferSize = DefaultReadBufferSize
	}
	if c.RebindBackoff == 0 {
		c.RebindBackoff = DefaultRebindBackoff
	}
	return c
}

func (c Config) address() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}
