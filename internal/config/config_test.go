package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
chip: gpiochip1
poll_interval: 500ms
heartbeat: 0s
windows: [30s, 2m]
inputs:
  - name: door
    pin: 17
    description: Front door contact
    reverted: true
    bias: pull-up
  - name: pir
    pin: 4
    windows: [10s]
outputs:
  - name: fan
    pin: 27
    description: Bathroom fan
http:
  addr: ":9000"
mqtt:
  broker: tcp://localhost:1883
homekit:
  enabled: true
  pin: "00102003"
tools:
  addr: ":9001"
log:
  level: debug
`

func TestParse(t *testing.T) {
	c, err := Parse(strings.NewReader(sampleYAML))
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, "gpiochip1", c.Chip)
	assert.Equal(t, 500*time.Millisecond, c.PollInterval)
	assert.Zero(t, c.Heartbeat, "explicit 0 disables the heartbeat")
	assert.Equal(t, []time.Duration{30 * time.Second, 2 * time.Minute}, c.Windows)

	require.Len(t, c.Inputs, 2)
	assert.Equal(t, Input{
		Name: "door", Pin: 17, Description: "Front door contact", Reverted: true, Bias: "pull-up",
	}, c.Inputs[0])
	assert.Equal(t, []time.Duration{30 * time.Second, 2 * time.Minute}, c.InputWindows(c.Inputs[0]))
	assert.Equal(t, []time.Duration{10 * time.Second}, c.InputWindows(c.Inputs[1]))

	require.Len(t, c.Outputs, 1)
	assert.Equal(t, "Bathroom fan", c.Outputs[0].Description)

	assert.Equal(t, ":9000", c.HTTP.Addr)
	assert.Equal(t, "tcp://localhost:1883", c.MQTT.Broker)
	assert.Equal(t, DefaultTopicPrefix, c.MQTT.TopicPrefix)
	assert.Equal(t, DefaultClientID, c.MQTT.ClientID)
	assert.True(t, c.HomeKit.Enabled)
	assert.Equal(t, DefaultHomeKitDir, c.HomeKit.Dir)
	assert.Equal(t, ":9001", c.Tools.Addr)
	assert.Equal(t, "debug", c.Log.Level)
}

func TestParseEmptyUsesDefaults(t *testing.T) {
	c, err := Parse(strings.NewReader(""))
	require.NoError(t, err)

	assert.Equal(t, Default(), c)
	assert.Equal(t, "gpiochip0", c.Chip)
	assert.Equal(t, DefaultPollInterval, c.PollInterval)
	assert.Equal(t, DefaultHeartbeat, c.Heartbeat)
	assert.Equal(t, DefaultWindows, c.Windows)
	assert.Equal(t, DefaultHTTPAddr, c.HTTP.Addr)
	assert.Equal(t, "info", c.Log.Level)
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse(strings.NewReader("inputs:\n  - name: door\n    pni: 17\n"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, c.Inputs, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestAddPinSpec(t *testing.T) {
	c := Default()
	require.NoError(t, c.AddPinSpec("in:door:17:reverted"))
	require.NoError(t, c.AddPinSpec("output:fan:27"))

	assert.Equal(t, []Input{{Name: "door", Pin: 17, Reverted: true}}, c.Inputs)
	assert.Equal(t, []Output{{Name: "fan", Pin: 27}}, c.Outputs)

	for _, bad := range []string{"in:door", "in:door:x", "led:door:3", "in:door:3:inverted", "in:a:1:reverted:x"} {
		assert.ErrorIs(t, c.AddPinSpec(bad), ErrInvalid, bad)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{"zero poll", func(c *Config) { c.PollInterval = 0 }, "poll_interval"},
		{"negative heartbeat", func(c *Config) { c.Heartbeat = -time.Second }, "heartbeat"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"zero window", func(c *Config) { c.Windows = []time.Duration{0} }, "window must be positive"},
		{"input window", func(c *Config) {
			c.Inputs = []Input{{Name: "a", Pin: 1, Windows: []time.Duration{-time.Second}}}
		}, `input "a": window must be positive`},
		{"duplicate window", func(c *Config) { c.Windows = []time.Duration{time.Minute, time.Minute} }, "duplicate window"},
		{"missing name", func(c *Config) { c.Inputs = []Input{{Pin: 1}} }, "name is required"},
		{"duplicate name", func(c *Config) {
			c.Inputs = []Input{{Name: "a", Pin: 1}}
			c.Outputs = []Output{{Name: "a", Pin: 2}}
		}, "duplicate name"},
		{"duplicate pin", func(c *Config) {
			c.Inputs = []Input{{Name: "a", Pin: 1}}
			c.Outputs = []Output{{Name: "b", Pin: 1}}
		}, "already used"},
		{"negative pin", func(c *Config) { c.Outputs = []Output{{Name: "b", Pin: -1}} }, "must not be negative"},
		{"homekit pin", func(c *Config) { c.HomeKit = HomeKit{Enabled: true, Pin: "123-45-678"} }, "homekit.pin"},
		{"bad bias", func(c *Config) { c.Inputs = []Input{{Name: "a", Pin: 1, Bias: "floating"}} }, "unknown bias"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			err := c.Validate()
			require.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	c := Default()
	c.PollInterval = 0
	c.Inputs = []Input{{Pin: 3}}

	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "poll_interval")
	assert.Contains(t, err.Error(), "name is required")
}
