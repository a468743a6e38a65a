package input

import (
	"testing"
	"time"

	"github.com/keritech/hifipower/internal/gpio"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type firedEdge struct {
	asserted bool
	at       time.Time
}

func TestPollerDebouncesButtonPress(t *testing.T) {
	line := gpio.NewFakeInput(true) // active-low button, released
	var fired []firedEdge

	p := New(10*time.Millisecond, nil)
	p.Add(&Source{
		Name:      "shutdown-button",
		Line:      line,
		Debounce:  30 * time.Millisecond,
		ActiveLow: true,
		OnEdge: func(asserted bool, now time.Time) {
			fired = append(fired, firedEdge{asserted, now})
		},
	})

	// Establish baseline: released for a full settle window.
	p.Step(t0)
	p.Step(t0.Add(30 * time.Millisecond))
	if len(fired) != 0 {
		t.Fatalf("baseline must not fire, got %d edges", len(fired))
	}

	// Press (line goes low) and hold through the settle window.
	line.Set(false)
	p.Step(t0.Add(40 * time.Millisecond))
	p.Step(t0.Add(50 * time.Millisecond))
	if len(fired) != 0 {
		t.Fatalf("must not fire before settle, got %d edges", len(fired))
	}
	p.Step(t0.Add(70 * time.Millisecond))

	if len(fired) != 1 {
		t.Fatalf("expected 1 edge, got %d", len(fired))
	}
	if !fired[0].asserted {
		t.Error("press must report asserted=true")
	}
}

func TestPollerAbsorbsContactBounce(t *testing.T) {
	line := gpio.NewFakeInput(true)
	var fired []firedEdge

	p := New(10*time.Millisecond, nil)
	p.Add(&Source{
		Name:      "reboot-button",
		Line:      line,
		Debounce:  30 * time.Millisecond,
		ActiveLow: true,
		OnEdge: func(asserted bool, now time.Time) {
			fired = append(fired, firedEdge{asserted, now})
		},
	})

	p.Step(t0)
	p.Step(t0.Add(30 * time.Millisecond))

	// Bounce: low, high, low within the settle window.
	line.Set(false)
	p.Step(t0.Add(40 * time.Millisecond))
	line.Set(true)
	p.Step(t0.Add(50 * time.Millisecond))
	line.Set(false)
	p.Step(t0.Add(60 * time.Millisecond))

	// Settles low from 60ms; edge fires once at 90ms.
	p.Step(t0.Add(90 * time.Millisecond))
	if len(fired) != 1 {
		t.Fatalf("expected exactly 1 edge after bounce, got %d", len(fired))
	}
}

func TestPollerActiveHighSense(t *testing.T) {
	line := gpio.NewFakeInput(false)
	var fired []firedEdge

	p := New(10*time.Millisecond, nil)
	p.Add(&Source{
		Name:     "auto-sense",
		Line:     line,
		Debounce: 50 * time.Millisecond,
		OnEdge: func(asserted bool, now time.Time) {
			fired = append(fired, firedEdge{asserted, now})
		},
	})

	p.Step(t0)
	p.Step(t0.Add(50 * time.Millisecond))

	line.Set(true)
	p.Step(t0.Add(60 * time.Millisecond))
	p.Step(t0.Add(110 * time.Millisecond))

	if len(fired) != 1 || !fired[0].asserted {
		t.Fatalf("expected one asserted edge, got %+v", fired)
	}

	line.Set(false)
	p.Step(t0.Add(120 * time.Millisecond))
	p.Step(t0.Add(170 * time.Millisecond))

	if len(fired) != 2 || fired[1].asserted {
		t.Fatalf("expected a deasserted edge, got %+v", fired)
	}
}

func TestPollerReadErrorKeepsGoing(t *testing.T) {
	bad := gpio.NewFakeInput(false)
	bad.ReadError = errFake
	good := gpio.NewFakeInput(false)
	var fired []firedEdge

	p := New(10*time.Millisecond, nil)
	p.Add(&Source{Name: "broken", Line: bad, Debounce: 30 * time.Millisecond})
	p.Add(&Source{
		Name:     "working",
		Line:     good,
		Debounce: 30 * time.Millisecond,
		OnEdge: func(asserted bool, now time.Time) {
			fired = append(fired, firedEdge{asserted, now})
		},
	})

	p.Step(t0)
	p.Step(t0.Add(30 * time.Millisecond))
	good.Set(true)
	p.Step(t0.Add(40 * time.Millisecond))
	p.Step(t0.Add(70 * time.Millisecond))

	if len(fired) != 1 {
		t.Fatalf("a failing line must not block other sources, got %d edges", len(fired))
	}
}

var errFake = errFakeType{}

type errFakeType struct{}

func (errFakeType) Error() string { return "simulated read failure" }
