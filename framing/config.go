package framing

import (
	"fmt"

	"github.com/c360/sensorfusion/errors"
)

// Defaults applied by Config.
const (
	DefaultCapacity          = 64 * 1024
	DefaultDiscriminator     = "res"
	DefaultLookahead         = 32
	DefaultResyncAfterPasses = 1
)

// Config tunes a Scanner and an Extractor.
type Config struct {
	// Name identifies the extractor in logs and metrics.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Capacity is the ring buffer size in bytes.
	Capacity int `json:"capacity,omitempty" yaml:"capacity,omitempty"`

	// Discriminator is the numeric field every accepted frame must carry.
	Discriminator string `json:"discriminator,omitempty" yaml:"discriminator,omitempty"`

	// Lookahead is how many bytes after a candidate '{' are searched for the
	// discriminator key when resynchronising.
	Lookahead int `json:"lookahead,omitempty" yaml:"lookahead,omitempty"`

	// ResyncAfterPasses is how many scan passes a partial frame may survive
	// before resynchronisation is attempted.
	ResyncAfterPasses int `json:"resync_after_passes,omitempty" yaml:"resync_after_passes,omitempty"`

	// MaxFrameBytes triggers resynchronisation once a partial frame grows
	// past it. Zero disables the limit.
	MaxFrameBytes int `json:"max_frame_bytes,omitempty" yaml:"max_frame_bytes,omitempty"`
}

// Validate rejects negative tunables.
func (c Config) Validate() error {
	if c.Capacity < 0 || c.Lookahead < 0 || c.ResyncAfterPasses < 0 || c.MaxFrameBytes < 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: negative framing tunable", errors.ErrInvalidConfig),
			"framing-config", "Validate", "tunable validation")
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "tablet"
	}
	if c.Capacity == 0 {
		c.Capacity = DefaultCapacity
	}
	if c.Discriminator == "" {
		c.Discriminator = DefaultDiscriminator
	}
	if c.Lookahead == 0 {
		c.Lookahead = DefaultLookahead
	}
	if c.ResyncAfterPasses == 0 {
		c.ResyncAfterPasses = DefaultResyncAfterPasses
	}
	return c
}
