// Package power implements the relay power controller: debounced edge
// detection for physical inputs, relay channels, and the single-consumer
// command loop that arbitrates every state change.
// This package has NO hardware or network dependencies beyond the gpio
// Output interface. Time is always injectable via time.Time parameters.
package power

import (
	"errors"
	"fmt"
	"time"
)

// Action is what a command asks the controller to do.
type Action string

const (
	ActionOn     Action = "on"
	ActionOff    Action = "off"
	ActionToggle Action = "toggle"

	// ActionCycle models the reboot button: global off now, global on
	// after the configured delay. Always applied globally.
	ActionCycle Action = "cycle"
)

// Origin identifies the event source that produced a command.
type Origin string

const (
	OriginHTTP           Origin = "http"
	OriginShutdownButton Origin = "button-shutdown"
	OriginRebootButton   Origin = "button-reboot"
	OriginToggleButton   Origin = "button-toggle"
	OriginAutoSense      Origin = "auto-sense"

	// OriginAutoSilence is reserved for the planned silence detector.
	// Any producer using it plugs into the same command queue.
	OriginAutoSilence Origin = "auto-silence"
)

// TargetGlobal addresses all channels at once. Channel ids start at 1.
const TargetGlobal = 0

// Command is a single request for a state change. Created per
// event/request, consumed exactly once by the controller loop.
type Command struct {
	Origin Origin
	Target int
	Action Action
}

// ChannelStatus is one channel's commanded state at a point in time.
type ChannelStatus struct {
	ID         int
	On         bool
	LastChange time.Time
}

// Snapshot is a point-in-time view of all channel states plus the
// sensed mode inputs. It is a value type, safe to use after the
// controller moves on.
type Snapshot struct {
	Channels       []ChannelStatus
	AutoMode       bool // software control enabled (configuration)
	AutoSense      bool // debounced level of the auto-sense input
	ManualOverride bool // debounced level of the manual-override input
	Taken          time.Time
}

// Channel returns the status of the channel with the given id.
func (s Snapshot) Channel(id int) (ChannelStatus, bool) {
	for _, ch := range s.Channels {
		if ch.ID == id {
			return ch, true
		}
	}
	return ChannelStatus{}, false
}

// ChannelFailure reports a hardware failure on one channel during a
// best-effort global apply.
type ChannelFailure struct {
	ID  int
	Err error
}

// Result is what a command produces: the snapshot after the apply and
// any per-channel hardware failures.
type Result struct {
	State  Snapshot
	Failed []ChannelFailure
}

// Counts tracks applied commands by action since startup.
type Counts struct {
	On     int
	Off    int
	Toggle int
	Cycle  int
}

// Event describes an applied command, for publishing.
type Event struct {
	Timestamp time.Time
	Origin    Origin
	Action    Action
	Target    int
	State     Snapshot
	Failed    []ChannelFailure
}

// ErrChannelNotFound is returned for a per-channel command naming an
// unknown channel id.
var ErrChannelNotFound = errors.New("channel not found")

// ErrTimeout is returned when a command does not complete within the
// caller's deadline. The command may still be applied later.
var ErrTimeout = errors.New("command timed out")

// HardwareError reports a failed pin drive. The channel's recorded
// state is left at its last known-good value.
type HardwareError struct {
	Channel int
	Err     error
}

func (e *HardwareError) Error() string {
	return fmt.Sprintf("channel %d: drive failed: %v", e.Channel, e.Err)
}

func (e *HardwareError) Unwrap() error { return e.Err }
