package mqtt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sweeney/gpio-manager/internal/device"
	"github.com/sweeney/gpio-manager/internal/logic"
)

var (
	// ErrBadPayload is returned for a set payload that is not a boolean.
	ErrBadPayload = errors.New("invalid set payload")

	// ErrBadTopic is returned for a topic that is not an output set topic.
	ErrBadTopic = errors.New("not a set topic")
)

// ParseSetPayload accepts ON/OFF, true/false and 1/0, case-insensitively.
func ParseSetPayload(payload []byte) (bool, error) {
	on, err := logic.ParseState(string(payload))
	if err != nil {
		return false, fmt.Errorf("%w: %q", ErrBadPayload, payload)
	}
	return on, nil
}

// OutputFromTopic extracts the output name from "<prefix>/<name>/set".
func OutputFromTopic(prefix, topic string) (string, error) {
	rest, ok := strings.CutPrefix(topic, prefix+"/")
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrBadTopic, topic)
	}
	name, ok := strings.CutSuffix(rest, "/set")
	if !ok || name == "" || strings.Contains(name, "/") {
		return "", fmt.Errorf("%w: %s", ErrBadTopic, topic)
	}
	return name, nil
}

// Commander applies set commands received over MQTT to registered outputs.
type Commander struct {
	reg    *device.Registry
	prefix string
}

// NewCommander creates a Commander for topics under prefix.
func NewCommander(reg *device.Registry, prefix string) *Commander {
	return &Commander{reg: reg, prefix: prefix}
}

// Handle switches the output addressed by topic.
func (c *Commander) Handle(topic string, payload []byte) error {
	name, err := OutputFromTopic(c.prefix, topic)
	if err != nil {
		return err
	}
	out, ok := c.reg.Output(name)
	if !ok {
		return fmt.Errorf("%w: output %s", device.ErrNotFound, name)
	}
	on, err := ParseSetPayload(payload)
	if err != nil {
		return err
	}
	return out.Switch(on)
}
