package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/gpio-manager/internal/device"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Ready         bool         `json:"ready"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Inputs        []DeviceJSON `json:"inputs"`
	Outputs       []DeviceJSON `json:"outputs"`
	Config        ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker,omitempty"`
}

// DeviceJSON is the JSON representation of one device.
// Timestamps are omitted when the event never happened.
type DeviceJSON struct {
	Name        string          `json:"name"`
	Kind        string          `json:"kind"`
	Pin         int             `json:"pin"`
	Description string          `json:"description,omitempty"`
	Value       bool            `json:"value"`
	State       string          `json:"state"`
	Reverted    bool            `json:"reverted"`
	Smoothed    map[string]bool `json:"smoothed,omitempty"`
	LastOn      string          `json:"last_on,omitempty"`
	LastOff     string          `json:"last_off,omitempty"`
	LastChange  string          `json:"last_change,omitempty"`
	Changes     int             `json:"changes"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs      int64    `json:"poll_ms"`
	HeartbeatMs int64    `json:"heartbeat_ms"`
	Windows     []string `json:"windows"`
	Broker      string   `json:"broker,omitempty"`
	HTTPAddr    string   `json:"http_addr,omitempty"`
	ToolsAddr   string   `json:"tools_addr,omitempty"`
	HomeKit     bool     `json:"homekit"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// Device builds the JSON view of one device.
func Device(d DeviceStatus) DeviceJSON {
	dj := DeviceJSON{
		Name:        d.Name,
		Kind:        string(d.Kind),
		Pin:         d.Pin,
		Description: d.Description,
		Value:       d.On(),
		State:       string(d.State),
		Reverted:    d.Reverted,
		LastOn:      formatTime(d.LastOn),
		LastOff:     formatTime(d.LastOff),
		LastChange:  formatTime(d.LastChange),
		Changes:     d.Changes,
	}
	if len(d.Smoothed) > 0 {
		dj.Smoothed = make(map[string]bool, len(d.Smoothed))
		for _, s := range d.Smoothed {
			dj.Smoothed[device.WindowLabel(s.Window)] = s.On
		}
	}
	return dj
}

// FormatDevice returns the compact JSON of one device.
func FormatDevice(d DeviceStatus) []byte {
	data, _ := json.Marshal(Device(d))
	return data
}

func buildInner(snap Snapshot) StatusInner {
	windows := make([]string, len(snap.Config.Windows))
	for i, w := range snap.Config.Windows {
		windows[i] = device.WindowLabel(w)
	}

	inner := StatusInner{
		Ready:         snap.Ready(),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Inputs:        make([]DeviceJSON, 0, len(snap.Inputs)),
		Outputs:       make([]DeviceJSON, 0, len(snap.Outputs)),
		Config: ConfigJSON{
			PollMs:      snap.Config.PollMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Windows:     windows,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
			ToolsAddr:   snap.Config.ToolsAddr,
			HomeKit:     snap.Config.HomeKit,
		},
	}
	for _, d := range snap.Inputs {
		inner.Inputs = append(inner.Inputs, Device(d))
	}
	for _, d := range snap.Outputs {
		inner.Outputs = append(inner.Outputs, Device(d))
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
