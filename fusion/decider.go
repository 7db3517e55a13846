package fusion

import (
	"github.com/c360/sensorfusion/messages"
)

// Thresholds are the configured limits handed to a Decider.
type Thresholds struct {
	ForkHeightMM     float64 `json:"fork_height_mm" yaml:"fork_height_mm"`
	TargetDistanceMM float64 `json:"target_distance_mm" yaml:"target_distance_mm"`
}

// Decider turns a snapshot into an actuator command. Returning false emits
// nothing for this tick. Decide is called from a single goroutine.
type Decider interface {
	Decide(s Snapshot) (messages.Command, bool)
}

// DeciderFunc adapts a function to Decider.
type DeciderFunc func(s Snapshot) (messages.Command, bool)

// Decide implements Decider.
func (f DeciderFunc) Decide(s Snapshot) (messages.Command, bool) {
	return f(s)
}

// HoldDecider never emits a command. It is used when no business rules are
// linked into the binary.
type HoldDecider struct {
	Thresholds Thresholds
}

// Decide implements Decider.
func (HoldDecider) Decide(Snapshot) (messages.Command, bool) {
	return messages.Command{}, false
}
