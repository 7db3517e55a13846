package config

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/sensorfusion/bus"
	"github.com/c360/sensorfusion/errors"
	"github.com/c360/sensorfusion/framing"
	"github.com/c360/sensorfusion/fusion"
	"github.com/c360/sensorfusion/input/tcp"
	"github.com/c360/sensorfusion/messages"
)

// Record kinds a channel can carry. They match the bus topic names.
const (
	KindTagScan  = messages.TopicTagScan
	KindDistance = messages.TopicDistance
	KindVolume   = messages.TopicVolume
	KindCommand  = messages.TopicCommand
)

// Config is the complete process configuration. It is loaded once at
// startup.
type Config struct {
	Process     ProcessConfig            `json:"process" yaml:"process"`
	Subscribers map[string]ChannelConfig `json:"subscribers" yaml:"subscribers"`
	Publishers  map[string]ChannelConfig `json:"publishers" yaml:"publishers"`
	TCP         TCPConfig                `json:"tcp" yaml:"tcp"`
	Thresholds  fusion.Thresholds        `json:"thresholds" yaml:"thresholds"`
	Decision    DecisionConfig           `json:"decision" yaml:"decision"`
}

// ProcessConfig holds process-wide settings.
type ProcessConfig struct {
	Name            string   `json:"name" yaml:"name"`
	LogLevel        string   `json:"log_level" yaml:"log_level"`
	LogFormat       string   `json:"log_format" yaml:"log_format"`
	MetricsAddr     string   `json:"metrics_addr" yaml:"metrics_addr"` // empty disables the endpoint
	ShutdownTimeout Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// ChannelConfig describes one bus channel. Kind selects the record type.
type ChannelConfig struct {
	Endpoint         string   `json:"endpoint" yaml:"endpoint"`
	Topic            string   `json:"topic" yaml:"topic"`
	Kind             string   `json:"kind" yaml:"kind"`
	QueueCapacity    int      `json:"queue_capacity" yaml:"queue_capacity"`
	PollTimeout      Duration `json:"poll_timeout,omitempty" yaml:"poll_timeout,omitempty"`
	ReconnectBackoff Duration `json:"reconnect_backoff,omitempty" yaml:"reconnect_backoff,omitempty"`
}

// TCPConfig describes the tablet TCP channel and its framing.
type TCPConfig struct {
	Enabled           bool     `json:"enabled" yaml:"enabled"`
	Bind              string   `json:"bind" yaml:"bind"`
	Port              int      `json:"port" yaml:"port"`
	RingCapacity      int      `json:"ring_capacity" yaml:"ring_capacity"`
	Discriminator     string   `json:"discriminator" yaml:"discriminator"`
	Lookahead         int      `json:"lookahead" yaml:"lookahead"`
	ResyncAfterPasses int      `json:"resync_after_passes,omitempty" yaml:"resync_after_passes,omitempty"`
	MaxFrameBytes     int      `json:"max_frame_bytes,omitempty" yaml:"max_frame_bytes,omitempty"`
	PollTimeout       Duration `json:"poll_timeout" yaml:"poll_timeout"`
}

// DecisionConfig configures the decision loop.
type DecisionConfig struct {
	Interval Duration `json:"interval" yaml:"interval"`
}

// Subscriber converts c into a bus subscriber configuration.
func (c ChannelConfig) Subscriber(name string) bus.SubscriberConfig {
	return bus.SubscriberConfig{
		Name:             name,
		Endpoint:         c.Endpoint,
		Topic:            c.Topic,
		QueueCapacity:    c.QueueCapacity,
		PollTimeout:      c.PollTimeout.Std(),
		ReconnectBackoff: c.ReconnectBackoff.Std(),
	}
}

// Publisher converts c into a bus publisher configuration.
func (c ChannelConfig) Publisher(name string) bus.PublisherConfig {
	return bus.PublisherConfig{
		Name:             name,
		Endpoint:         c.Endpoint,
		Topic:            c.Topic,
		QueueCapacity:    c.QueueCapacity,
		ReconnectBackoff: c.ReconnectBackoff.Std(),
	}
}

// Server converts t into a TCP server configuration.
func (t TCPConfig) Server() tcp.Config {
	return tcp.Config{
		Name:        fmt.Sprintf("tcp_%d", t.Port),
		Bind:        t.Bind,
		Port:        t.Port,
		PollTimeout: t.PollTimeout.Std(),
	}
}

// Framing converts t into a frame extractor configuration.
func (t TCPConfig) Framing() framing.Config {
	return framing.Config{
		Name:              "tablet",
		Capacity:          t.RingCapacity,
		Discriminator:     t.Discriminator,
		Lookahead:         t.Lookahead,
		ResyncAfterPasses: t.ResyncAfterPasses,
		MaxFrameBytes:     t.MaxFrameBytes,
	}
}

// Validate checks the whole configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch c.Process.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		add("process.log_level %q must be debug, info, warn or error", c.Process.LogLevel)
	}
	switch c.Process.LogFormat {
	case "json", "text":
	default:
		add("process.log_format %q must be json or text", c.Process.LogFormat)
	}
	if c.Process.ShutdownTimeout <= 0 {
		add("process.shutdown_timeout must be positive")
	}

	for name, ch := range c.Subscribers {
		if ch.Kind == KindCommand {
			add("subscribers.%s: kind %q can only be published", name, ch.Kind)
		}
		errs = append(errs, ch.validate("subscribers."+name)...)
	}
	for name, ch := range c.Publishers {
		if ch.Kind != KindCommand {
			add("publishers.%s: kind %q cannot be published", name, ch.Kind)
		}
		errs = append(errs, ch.validate("publishers."+name)...)
	}

	if c.TCP.Enabled {
		if err := c.TCP.Server().Validate(); err != nil {
			add("tcp: %v", err)
		}
		if err := c.TCP.Framing().Validate(); err != nil {
			add("tcp: %v", err)
		}
		if c.TCP.RingCapacity <= 0 {
			add("tcp.ring_capacity must be positive")
		}
	}

	if c.Thresholds.ForkHeightMM < 0 || c.Thresholds.TargetDistanceMM < 0 {
		add("thresholds must not be negative")
	}
	if c.Decision.Interval <= 0 {
		add("decision.interval must be positive")
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrInvalidConfig, stderrors.Join(errs...)),
		"Config", "Validate", "configuration validation")
}

func (ch ChannelConfig) validate(path string) []error {
	var errs []error
	switch ch.Kind {
	case KindTagScan, KindDistance, KindVolume, KindCommand:
	default:
		errs = append(errs, fmt.Errorf("%s: unknown kind %q", path, ch.Kind))
	}
	if _, err := bus.ParseEndpoint(ch.Endpoint); err != nil {
		errs = append(errs, fmt.Errorf("%s: %v", path, err))
	}
	if strings.TrimSpace(ch.Topic) == "" {
		errs = append(errs, fmt.Errorf("%s: topic is required", path))
	}
	if ch.QueueCapacity <= 0 {
		errs = append(errs, fmt.Errorf("%s: queue_capacity must be positive", path))
	}
	if ch.PollTimeout < 0 || ch.ReconnectBackoff < 0 {
		errs = append(errs, fmt.Errorf("%s: durations must not be negative", path))
	}
	return errs
}

// String returns the configuration as YAML.
func (c *Config) String() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(data)
}

// MarshalIndentJSON returns the configuration as indented JSON.
func (c *Config) MarshalIndentJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// Duration is a time.Duration that reads and writes Go duration strings.
// Plain numbers are taken as nanoseconds.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// String implements fmt.Stringer.
func (d Duration) String() string { return time.Duration(d).String() }

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", val, err)
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(int64(val))
	case nil:
		*d = 0
	default:
		return fmt.Errorf("invalid duration %v", v)
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Tag == "!!int" {
		var ns int64
		if err := node.Decode(&ns); err != nil {
			return err
		}
		*d = Duration(ns)
		return nil
	}
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}
