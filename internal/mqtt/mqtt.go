// Package mqtt publishes power events to a broker, with abstraction
// for testing. Publishing is optional and best-effort: a failure is
// logged by the caller, never fatal.
package mqtt

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/keritech/hifipower/internal/power"
)

// Topic is the MQTT topic for power transition events.
const Topic = "audio/hifipower/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "audio/hifipower/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a power event to the broker.
	Publish(event power.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event.
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g. "SIGTERM" (shutdown only)
	RawPayload []byte // pre-formatted JSON; if set, used verbatim
	Retained   bool
}

// Payload is the MQTT message envelope for a power event.
type Payload struct {
	Power PowerPayload `json:"power"`
}

// PowerPayload contains the power event details.
type PowerPayload struct {
	Timestamp string         `json:"timestamp"`
	Origin    string         `json:"origin"`
	Action    string         `json:"action"`
	Target    string         `json:"target"`
	Channels  []ChannelState `json:"channels"`
	Failed    []int          `json:"failed,omitempty"`
}

// ChannelState represents a single channel's state.
type ChannelState struct {
	ID    int    `json:"id"`
	State string `json:"state"`
}

// FormatPayload creates the JSON payload for a power event.
func FormatPayload(event power.Event) ([]byte, error) {
	target := "global"
	if event.Target != power.TargetGlobal {
		target = strconv.Itoa(event.Target)
	}

	channels := make([]ChannelState, 0, len(event.State.Channels))
	for _, ch := range event.State.Channels {
		state := "OFF"
		if ch.On {
			state = "ON"
		}
		channels = append(channels, ChannelState{ID: ch.ID, State: state})
	}

	var failed []int
	for _, f := range event.Failed {
		failed = append(failed, f.ID)
	}

	payload := Payload{
		Power: PowerPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Origin:    string(event.Origin),
			Action:    string(event.Action),
			Target:    target,
			Channels:  channels,
			Failed:    failed,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload is the MQTT envelope for simple system events that do
// not carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// SystemStatusPayload is the MQTT envelope for system events that
// carry the full status document.
type SystemStatusPayload struct {
	System SystemStatusInner `json:"system"`
}

// SystemStatusInner contains the system event details plus status.
type SystemStatusInner struct {
	Timestamp string          `json:"timestamp"`
	Event     string          `json:"event"`
	Reason    string          `json:"reason,omitempty"`
	Status    json.RawMessage `json:"status"`
}

// FormatSystemStatusPayload wraps a system event around a pre-built
// status JSON document (the same one served over HTTP).
func FormatSystemStatusPayload(event SystemEvent, statusDoc []byte) ([]byte, error) {
	payload := SystemStatusPayload{
		System: SystemStatusInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
			Status:    statusDoc,
		},
	}
	return json.Marshal(payload)
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
