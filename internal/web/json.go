package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/keritech/hifipower/internal/power"
	"github.com/keritech/hifipower/internal/status"
)

// PowerJSON is the JSON representation of the power state, returned by
// /power and by every command endpoint.
type PowerJSON struct {
	// PowerState keeps the legacy stage encoding: -1 = software control
	// disabled, 0 = all off, N = channel N is the highest one on.
	PowerState     int                `json:"power_state"`
	AutoMode       bool               `json:"auto_mode"`
	AutoSense      bool               `json:"auto_sense"`
	ManualOverride bool               `json:"manual_override"`
	Channels       []ChannelJSON      `json:"channels"`
	Failed         []ChannelErrorJSON `json:"failed,omitempty"`
	Timestamp      string             `json:"timestamp"`
}

// ChannelJSON is the JSON representation of one channel.
type ChannelJSON struct {
	ID         int    `json:"id"`
	State      string `json:"state"`
	LastChange string `json:"last_change,omitempty"`
}

// ChannelErrorJSON reports a failed channel in a partial apply.
type ChannelErrorJSON struct {
	ID    int    `json:"id"`
	Error string `json:"error"`
}

// StatusJSON is the full daemon status served at /json.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Power         PowerJSON    `json:"power"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"command_counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of applied-command counts.
type CountsJSON struct {
	On     int `json:"on"`
	Off    int `json:"off"`
	Toggle int `json:"toggle"`
	Cycle  int `json:"cycle"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs           int64  `json:"poll_ms"`
	ButtonDebounceMs int64  `json:"button_debounce_ms"`
	SenseDebounceMs  int64  `json:"sense_debounce_ms"`
	RebootDelayMs    int64  `json:"reboot_delay_ms"`
	HeartbeatMs      int64  `json:"heartbeat_ms"`
	AutoMode         bool   `json:"auto_mode"`
	Broker           string `json:"broker,omitempty"`
	HTTPAddr         string `json:"http_addr"`
}

// powerStage computes the legacy power_state stage field.
func powerStage(snap power.Snapshot) int {
	if !snap.AutoMode {
		return -1
	}
	stage := 0
	for _, ch := range snap.Channels {
		if ch.On && ch.ID > stage {
			stage = ch.ID
		}
	}
	return stage
}

func stateString(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func buildPower(snap power.Snapshot, failed []power.ChannelFailure) PowerJSON {
	channels := make([]ChannelJSON, 0, len(snap.Channels))
	for _, ch := range snap.Channels {
		cj := ChannelJSON{ID: ch.ID, State: stateString(ch.On)}
		if !ch.LastChange.IsZero() {
			cj.LastChange = ch.LastChange.UTC().Format(time.RFC3339)
		}
		channels = append(channels, cj)
	}

	var failures []ChannelErrorJSON
	for _, f := range failed {
		failures = append(failures, ChannelErrorJSON{ID: f.ID, Error: f.Err.Error()})
	}

	return PowerJSON{
		PowerState:     powerStage(snap),
		AutoMode:       snap.AutoMode,
		AutoSense:      snap.AutoSense,
		ManualOverride: snap.ManualOverride,
		Channels:       channels,
		Failed:         failures,
		Timestamp:      snap.Taken.UTC().Format(time.RFC3339),
	}
}

func formatPowerJSON(snap power.Snapshot, failed []power.ChannelFailure) []byte {
	data, _ := json.MarshalIndent(buildPower(snap, failed), "", "  ")
	return data
}

func formatChannelJSON(ch power.ChannelStatus) []byte {
	cj := ChannelJSON{ID: ch.ID, State: stateString(ch.On)}
	if !ch.LastChange.IsZero() {
		cj.LastChange = ch.LastChange.UTC().Format(time.RFC3339)
	}
	data, _ := json.MarshalIndent(cj, "", "  ")
	return data
}

// StatusDocument builds the full status document served at /json.
func StatusDocument(snap power.Snapshot, counts power.Counts, daemon status.Snapshot) []byte {
	sj := StatusJSON{Status: buildStatusInner(snap, counts, daemon)}
	data, _ := json.MarshalIndent(sj, "", "  ")
	return data
}

// StatusBody builds the status object without the envelope, for
// embedding in MQTT system events.
func StatusBody(snap power.Snapshot, counts power.Counts, daemon status.Snapshot) []byte {
	data, _ := json.Marshal(buildStatusInner(snap, counts, daemon))
	return data
}

func buildStatusInner(snap power.Snapshot, counts power.Counts, daemon status.Snapshot) StatusInner {
	inner := StatusInner{
		Power:         buildPower(snap, nil),
		UptimeSeconds: int64(daemon.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     daemon.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     daemon.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: daemon.MQTTConnected, Broker: daemon.Config.Broker},
		Counts: CountsJSON{
			On:     counts.On,
			Off:    counts.Off,
			Toggle: counts.Toggle,
			Cycle:  counts.Cycle,
		},
		Config: ConfigJSON{
			PollMs:           daemon.Config.PollMs,
			ButtonDebounceMs: daemon.Config.ButtonDebounceMs,
			SenseDebounceMs:  daemon.Config.SenseDebounceMs,
			RebootDelayMs:    daemon.Config.RebootDelayMs,
			HeartbeatMs:      daemon.Config.HeartbeatMs,
			AutoMode:         daemon.Config.AutoMode,
			Broker:           daemon.Config.Broker,
			HTTPAddr:         daemon.Config.HTTPAddr,
		},
	}

	if daemon.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       daemon.Network.Type,
			IP:         daemon.Network.IP,
			Status:     daemon.Network.Status,
			Gateway:    daemon.Network.Gateway,
			WifiStatus: daemon.Network.WifiStatus,
			SSID:       daemon.Network.SSID,
		}
	}
	return inner
}

// ErrorJSON is the error envelope for failed requests.
type ErrorJSON struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	data, _ := json.Marshal(ErrorJSON{Error: msg})
	w.Write(data)
}
