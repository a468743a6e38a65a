package gpio

import "errors"

// FakeInput is a test double that returns scripted raw line levels.
type FakeInput struct {
	// Levels contains scripted raw readings. Each call to Read()
	// consumes the next level; when exhausted, the last level repeats.
	Levels []bool

	// ReadError, if set, will be returned by Read()
	ReadError error

	// Closed tracks if Close was called
	Closed bool

	index int
}

// NewFakeInput creates a FakeInput with the given scripted levels.
func NewFakeInput(levels ...bool) *FakeInput {
	return &FakeInput{Levels: levels}
}

// Read returns the next scripted level.
func (f *FakeInput) Read() (bool, error) {
	if f.ReadError != nil {
		return false, f.ReadError
	}
	if len(f.Levels) == 0 {
		return false, errors.New("no levels configured")
	}
	level := f.Levels[f.index]
	if f.index < len(f.Levels)-1 {
		f.index++
	}
	return level, nil
}

// Set replaces the script with a single level, so tests can drive the
// input imperatively instead of scripting it up front.
func (f *FakeInput) Set(level bool) {
	f.Levels = []bool{level}
	f.index = 0
}

// Close marks the input as closed.
func (f *FakeInput) Close() error {
	f.Closed = true
	return nil
}

// FakeOutput records every level driven to it.
type FakeOutput struct {
	// Level is the most recently driven level.
	Level bool

	// Writes counts calls to Write, including redundant re-drives.
	Writes int

	// History contains every driven level in order.
	History []bool

	// WriteError, if set, will be returned by Write()
	WriteError error

	// Closed tracks if Close was called
	Closed bool
}

// NewFakeOutput creates a FakeOutput at the given initial level.
func NewFakeOutput(initial bool) *FakeOutput {
	return &FakeOutput{Level: initial}
}

// Write records the driven level, or fails with WriteError.
func (f *FakeOutput) Write(on bool) error {
	if f.WriteError != nil {
		return f.WriteError
	}
	f.Level = on
	f.Writes++
	f.History = append(f.History, on)
	return nil
}

// Close marks the output as closed.
func (f *FakeOutput) Close() error {
	f.Closed = true
	return nil
}
