package power

import (
	"time"

	"github.com/keritech/hifipower/internal/gpio"
)

// Channel owns one relay output line and its commanded state.
// Only the controller loop may call its methods, so no locking is
// needed; the recorded state always equals the last successful drive.
type Channel struct {
	id         int
	out        gpio.Output
	on         bool
	lastChange time.Time
}

// NewChannel binds a channel id to its relay output line.
func NewChannel(id int, out gpio.Output) *Channel {
	return &Channel{id: id, out: out}
}

// ID returns the channel id.
func (c *Channel) ID() int { return c.id }

// Get returns the commanded state.
func (c *Channel) Get() bool { return c.on }

// Set drives the relay line and records the commanded state only if
// the drive succeeds. Re-driving an already-commanded level is allowed
// (it tolerates external tampering) but does not update LastChange.
func (c *Channel) Set(on bool, now time.Time) error {
	if err := c.out.Write(on); err != nil {
		return &HardwareError{Channel: c.id, Err: err}
	}
	if c.on != on {
		c.on = on
		c.lastChange = now
	}
	return nil
}

// Toggle inverts the commanded state.
func (c *Channel) Toggle(now time.Time) error {
	return c.Set(!c.on, now)
}

// Status returns the channel's state for a snapshot.
func (c *Channel) Status() ChannelStatus {
	return ChannelStatus{ID: c.id, On: c.on, LastChange: c.lastChange}
}
