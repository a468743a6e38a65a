package mqtt

import (
	"sync"

	"github.com/keritech/hifipower/internal/power"
)

// FakePublisher records published events for test assertions. Recording
// is mutex-guarded so it can stand in for the broker while the
// controller loop publishes from its own goroutine.
type FakePublisher struct {
	// PublishError, if set, will be returned by Publish.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Connected controls the return value of IsConnected.
	Connected bool

	mu             sync.Mutex
	events         []power.Event
	payloads       [][]byte
	systemEvents   []SystemEvent
	systemPayloads [][]byte
	closed         bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{Connected: true}
}

// Publish records the power event.
func (f *FakePublisher) Publish(event power.Event) error {
	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatPayload(event)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.events = append(f.events, event)
	f.payloads = append(f.payloads, payload)
	f.mu.Unlock()
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.systemEvents = append(f.systemEvents, event)
	f.systemPayloads = append(f.systemPayloads, payload)
	f.mu.Unlock()
	return nil
}

// Events returns a copy of all recorded power events.
func (f *FakePublisher) Events() []power.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]power.Event(nil), f.events...)
}

// Payloads returns a copy of the recorded power event payloads.
func (f *FakePublisher) Payloads() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.payloads...)
}

// SystemEvents returns a copy of all recorded system events.
func (f *FakePublisher) SystemEvents() []SystemEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SystemEvent(nil), f.systemEvents...)
}

// SystemPayloads returns a copy of the recorded system event payloads.
func (f *FakePublisher) SystemPayloads() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.systemPayloads...)
}

// IsConnected reports the scripted connection state.
func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}

// WasClosed reports whether Close was called.
func (f *FakePublisher) WasClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}
