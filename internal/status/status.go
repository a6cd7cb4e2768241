// Package status builds point-in-time views of every device and of the
// daemon itself. It is read by the HTTP, MQTT, HomeKit and tool layers.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/gpio-manager/internal/device"
	"github.com/sweeney/gpio-manager/internal/logic"
)

// Kind tells inputs and outputs apart.
type Kind string

const (
	KindInput  Kind = "input"
	KindOutput Kind = "output"
)

// Config contains daemon configuration for display.
type Config struct {
	PollMs      int64
	HeartbeatMs int64
	Windows     []time.Duration
	Broker      string
	HTTPAddr    string
	ToolsAddr   string
	HomeKit     bool
}

// DeviceStatus is the presentation view of one input or output.
// Smoothed is empty for outputs.
type DeviceStatus struct {
	Name        string
	Description string
	Kind        Kind
	Pin         int
	Reverted    bool
	State       logic.State
	Smoothed    []device.Smoothed
	LastOn      time.Time
	LastOff     time.Time
	LastChange  time.Time
	Changes     int
}

// On reports whether the device is known to be ON.
func (d DeviceStatus) On() bool {
	return d.State == logic.StateOn
}

// FromInput converts an input snapshot.
func FromInput(s device.InputSnapshot) DeviceStatus {
	state := logic.StateUnknown
	if s.Known {
		state = logic.StateOf(s.On)
	}
	return DeviceStatus{
		Name:        s.Name,
		Description: s.Description,
		Kind:        KindInput,
		Pin:         s.Pin,
		Reverted:    s.Reverted,
		State:       state,
		Smoothed:    s.Smoothed,
		LastOn:      s.LastOn,
		LastOff:     s.LastOff,
		LastChange:  s.LastChange,
		Changes:     s.Changes,
	}
}

// FromOutput converts an output snapshot.
func FromOutput(s device.OutputSnapshot) DeviceStatus {
	return DeviceStatus{
		Name:        s.Name,
		Description: s.Description,
		Kind:        KindOutput,
		Pin:         s.Pin,
		Reverted:    s.Reverted,
		State:       logic.StateOf(s.On),
		LastOn:      s.LastOn,
		LastOff:     s.LastOff,
		LastChange:  s.LastChange,
		Changes:     s.Changes,
	}
}

// Lookup returns the status of the named device.
func Lookup(reg *device.Registry, name string) (DeviceStatus, bool) {
	if in, ok := reg.Input(name); ok {
		return FromInput(in.Snapshot()), true
	}
	if out, ok := reg.Output(name); ok {
		return FromOutput(out.Snapshot()), true
	}
	return DeviceStatus{}, false
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the locks are released.
type Snapshot struct {
	Inputs        []DeviceStatus
	Outputs       []DeviceStatus
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Ready reports whether every input has been sampled at least once.
func (s Snapshot) Ready() bool {
	for _, in := range s.Inputs {
		if in.State == logic.StateUnknown {
			return false
		}
	}
	return true
}

// Tracker holds daemon-level state behind an RWMutex and reads device state
// from the registry on demand. Each device guards its own fields.
type Tracker struct {
	reg *device.Registry
	now func() time.Time

	mu            sync.RWMutex
	startTime     time.Time
	cfg           Config
	mqttConnected bool
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config, reg *device.Registry) *Tracker {
	return &Tracker{
		reg:       reg,
		now:       time.Now,
		startTime: startTime,
		cfg:       cfg,
	}
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.mqttConnected = connected
	t.mu.Unlock()
}

// Registry returns the registry the tracker reads from.
func (t *Tracker) Registry() *device.Registry {
	return t.reg
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := Snapshot{
		StartTime:     t.startTime,
		MQTTConnected: t.mqttConnected,
		Config:        t.cfg,
	}
	t.mu.RUnlock()

	for _, in := range t.reg.Inputs() {
		s.Inputs = append(s.Inputs, FromInput(in.Snapshot()))
	}
	for _, out := range t.reg.Outputs() {
		s.Outputs = append(s.Outputs, FromOutput(out.Snapshot()))
	}
	s.Now = t.now()
	return s
}
