package power

import "time"

// Edge is a stable logical transition reported by a Debouncer.
type Edge int

const (
	EdgeNone Edge = iota
	EdgeRising
	EdgeFalling
)

func (e Edge) String() string {
	switch e {
	case EdgeRising:
		return "rising"
	case EdgeFalling:
		return "falling"
	}
	return "none"
}

// Debouncer filters raw level samples into stable transitions. A new
// level is reported only after the raw signal has held it continuously
// for the settle duration; anything shorter is absorbed.
//
// Sampling cadence is external: the Debouncer is purely a function of
// (sample, timestamp) pairs, so tests drive it with synthetic time.
// Each instance must only be used from a single goroutine.
type Debouncer struct {
	settle time.Duration

	stable    bool
	baselined bool

	observing    bool
	pending      bool
	pendingSince time.Time
}

// NewDebouncer creates a Debouncer with the given settle duration.
func NewDebouncer(settle time.Duration) *Debouncer {
	return &Debouncer{settle: settle}
}

// Sample ingests one raw reading. It returns a non-EdgeNone edge only
// when the raw level has remained unchanged for at least the settle
// duration and differs from the last published stable level.
//
// Until a first level survives a full settle window there is no
// baseline, and no edge is reported for reaching it.
func (d *Debouncer) Sample(raw bool, now time.Time) Edge {
	if !d.baselined {
		if !d.observing || d.pending != raw {
			d.observing = true
			d.pending = raw
			d.pendingSince = now
			return EdgeNone
		}
		if now.Sub(d.pendingSince) >= d.settle {
			d.stable = d.pending
			d.baselined = true
			d.observing = false
		}
		return EdgeNone
	}

	if raw == d.stable {
		// Bounce returned to the stable level before settling.
		d.observing = false
		return EdgeNone
	}

	if !d.observing || d.pending != raw {
		d.observing = true
		d.pending = raw
		d.pendingSince = now
		return EdgeNone
	}

	if now.Sub(d.pendingSince) >= d.settle {
		d.stable = raw
		d.observing = false
		if raw {
			return EdgeRising
		}
		return EdgeFalling
	}
	return EdgeNone
}

// Stable returns the last published stable level and whether a baseline
// has been established yet.
func (d *Debouncer) Stable() (level, baselined bool) {
	return d.stable, d.baselined
}
