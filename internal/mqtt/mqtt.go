// Package mqtt publishes device state and lifecycle events to a broker and
// accepts set commands for outputs.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/gpio-manager/internal/device"
	"github.com/sweeney/gpio-manager/internal/status"
)

// System lifecycle events.
const (
	EventStartup     = "STARTUP"
	EventHeartbeat   = "HEARTBEAT"
	EventShutdown    = "SHUTDOWN"
	EventReconnected = "RECONNECTED"
	EventOffline     = "OFFLINE"
)

// StateTopic is where the retained state of a device is published.
func StateTopic(prefix, name string) string {
	return prefix + "/" + name + "/state"
}

// SetTopic is where commands for an output are received.
func SetTopic(prefix, name string) string {
	return prefix + "/" + name + "/set"
}

// SystemTopic carries lifecycle events and the last will.
func SystemTopic(prefix string) string {
	return prefix + "/system"
}

// setFilter matches the set topic of every output.
func setFilter(prefix string) string {
	return prefix + "/+/set"
}

// Publisher publishes device state and system events.
type Publisher interface {
	// PublishState sends the retained state of one device.
	PublishState(d status.DeviceStatus) error

	// PublishSystem sends a system lifecycle event.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent is a lifecycle event (startup, heartbeat, shutdown).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string
	Reason     string // e.g. "SIGTERM" (shutdown only)
	RawPayload []byte // full status snapshot; returned as-is by FormatSystemPayload
	Retained   bool
}

// SystemPayload is the payload of events that carry no status snapshot,
// such as the last will.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp,omitempty"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	inner := SystemPayloadInner{Event: event.Event, Reason: event.Reason}
	if !event.Timestamp.IsZero() {
		inner.Timestamp = event.Timestamp.UTC().Format(time.RFC3339)
	}
	return json.Marshal(SystemPayload{System: inner})
}

// FormatStatePayload creates the JSON payload for a device state message.
func FormatStatePayload(d status.DeviceStatus) []byte {
	return status.FormatDevice(d)
}

// StateListener returns a listener that publishes the current state of the
// named device whenever it changes.
func StateListener(pub Publisher, reg *device.Registry, name string) device.Listener {
	return device.ListenerFunc(func() error {
		d, ok := status.Lookup(reg, name)
		if !ok {
			return fmt.Errorf("%w: %s", device.ErrNotFound, name)
		}
		if err := pub.PublishState(d); err != nil {
			return fmt.Errorf("publish %s: %w", name, err)
		}
		return nil
	})
}

// PublishAll publishes the state of every registered device.
func PublishAll(pub Publisher, reg *device.Registry) error {
	var errs []error
	for _, name := range append(reg.InputNames(), reg.OutputNames()...) {
		if err := StateListener(pub, reg, name).OnChanged(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
