// Package input polls physical GPIO inputs, debounces them, and turns
// stable edges into callbacks. The callbacks are where buttons and
// sense lines become controller commands; the poller itself never
// touches relay state.
package input

import (
	"context"
	"log"
	"time"

	"github.com/keritech/hifipower/internal/gpio"
	"github.com/keritech/hifipower/internal/power"
)

// Source is one polled input line. Each Source owns its Debouncer and
// is sampled by exactly one polling goroutine.
type Source struct {
	// Name appears in log messages.
	Name string

	// Line is the raw input.
	Line gpio.Input

	// Debounce is the settle duration for this line.
	Debounce time.Duration

	// ActiveLow inverts the raw level: a low line reads as asserted.
	ActiveLow bool

	// OnEdge is called with the new logical level after it has held for
	// the settle duration. Reaching the initial baseline does not fire.
	OnEdge func(asserted bool, now time.Time)

	deb *power.Debouncer
}

// Poller samples a set of Sources at a fixed interval.
type Poller struct {
	interval time.Duration
	sources  []*Source
	now      func() time.Time
}

// New creates a Poller. now defaults to time.Now when nil.
func New(interval time.Duration, now func() time.Time) *Poller {
	if now == nil {
		now = time.Now
	}
	return &Poller{interval: interval, now: now}
}

// Add registers a source. Must be called before Run.
func (p *Poller) Add(s *Source) {
	s.deb = power.NewDebouncer(s.Debounce)
	p.sources = append(p.sources, s)
}

// Run samples all sources on every tick until the context is
// cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Step(p.now())
		}
	}
}

// Step performs one sampling pass. Exported so tests can drive the
// poller with synthetic time.
func (p *Poller) Step(now time.Time) {
	for _, s := range p.sources {
		raw, err := s.Line.Read()
		if err != nil {
			// Read failures are transient (or the line is gone); either
			// way the daemon keeps running on the last stable level.
			log.Printf("input: %s read error: %v", s.Name, err)
			continue
		}
		asserted := raw != s.ActiveLow
		edge := s.deb.Sample(asserted, now)
		if edge == power.EdgeNone {
			continue
		}
		log.Printf("input: %s %s", s.Name, edge)
		if s.OnEdge != nil {
			s.OnEdge(edge == power.EdgeRising, now)
		}
	}
}
