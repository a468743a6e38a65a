//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// Chip wraps an open GPIO character device and hands out line handles.
type Chip struct {
	chip *gpiocdev.Chip
}

// OpenChip opens the named GPIO character device (e.g. "gpiochip0").
func OpenChip(name string) (*Chip, error) {
	c, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", name, err)
	}
	return &Chip{chip: c}, nil
}

// Close releases the chip. Lines requested from it must be closed first.
func (c *Chip) Close() error {
	return c.chip.Close()
}

// RequestInput requests the given line offset as an input.
// pullUp enables the internal pull-up, for buttons wired to ground.
func (c *Chip) RequestInput(offset int, pullUp bool) (Input, error) {
	opts := []gpiocdev.LineReqOption{gpiocdev.AsInput}
	if pullUp {
		opts = append(opts, gpiocdev.WithPullUp)
	}
	line, err := c.chip.RequestLine(offset, opts...)
	if err != nil {
		return nil, fmt.Errorf("request input line %d: %w", offset, err)
	}
	return &inputLine{line: line}, nil
}

// RequestOutput requests the given line offset as an output driven to the
// initial level.
func (c *Chip) RequestOutput(offset int, initial bool) (Output, error) {
	line, err := c.chip.RequestLine(offset, gpiocdev.AsOutput(levelValue(initial)))
	if err != nil {
		return nil, fmt.Errorf("request output line %d: %w", offset, err)
	}
	return &outputLine{line: line, offset: offset}, nil
}

type inputLine struct {
	line *gpiocdev.Line
}

func (l *inputLine) Read() (bool, error) {
	v, err := l.line.Value()
	if err != nil {
		return false, fmt.Errorf("read line: %w", err)
	}
	return v != 0, nil
}

func (l *inputLine) Close() error {
	return l.line.Close()
}

type outputLine struct {
	line   *gpiocdev.Line
	offset int
}

func (l *outputLine) Write(on bool) error {
	if err := l.line.SetValue(levelValue(on)); err != nil {
		return fmt.Errorf("drive line %d: %w", l.offset, err)
	}
	return nil
}

// Close reconfigures the line back to a plain input before releasing
// it, matching the board's boot defaults so external hardware is not
// left driven across a daemon restart.
func (l *outputLine) Close() error {
	if err := l.line.Reconfigure(gpiocdev.AsInput); err != nil {
		l.line.Close()
		return fmt.Errorf("reconfigure line %d: %w", l.offset, err)
	}
	return l.line.Close()
}

func levelValue(on bool) int {
	if on {
		return 1
	}
	return 0
}
