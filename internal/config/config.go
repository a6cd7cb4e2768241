// Package config loads and validates the daemon configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/gpio-manager/internal/gpio"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Defaults.
const (
	DefaultPollInterval = 2 * time.Second
	DefaultHeartbeat    = 15 * time.Minute
	DefaultHTTPAddr     = ":8000"
	DefaultTopicPrefix  = "gpio-manager"
	DefaultClientID     = "gpio-manager"
	DefaultHomeKitName  = "gpio-manager"
	DefaultHomeKitDir   = "./homekit"
)

// DefaultWindows are the smoothing windows inherited by inputs without their own list.
var DefaultWindows = []time.Duration{60 * time.Second, 180 * time.Second, 300 * time.Second}

// Config is the root of the YAML file.
type Config struct {
	Chip         string          `yaml:"chip"`
	PollInterval time.Duration   `yaml:"poll_interval"`
	Heartbeat    time.Duration   `yaml:"heartbeat"`
	Windows      []time.Duration `yaml:"windows"`
	Inputs       []Input         `yaml:"inputs"`
	Outputs      []Output        `yaml:"outputs"`
	HTTP         HTTP            `yaml:"http"`
	MQTT         MQTT            `yaml:"mqtt"`
	HomeKit      HomeKit         `yaml:"homekit"`
	Tools        Tools           `yaml:"tools"`
	Log          Log             `yaml:"log"`
}

// Input describes one input pin.
type Input struct {
	Name        string          `yaml:"name"`
	Pin         int             `yaml:"pin"`
	Description string          `yaml:"description"`
	Reverted    bool            `yaml:"reverted"`
	Bias        string          `yaml:"bias"`
	Windows     []time.Duration `yaml:"windows"`
}

// Output describes one output pin.
type Output struct {
	Name        string `yaml:"name"`
	Pin         int    `yaml:"pin"`
	Description string `yaml:"description"`
	Reverted    bool   `yaml:"reverted"`
}

// HTTP configures the web dashboard. An empty Addr disables it.
type HTTP struct {
	Addr string `yaml:"addr"`
}

// MQTT configures the broker connection. An empty Broker disables it.
type MQTT struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// HomeKit configures the HomeKit bridge.
type HomeKit struct {
	Enabled bool   `yaml:"enabled"`
	Name    string `yaml:"name"`
	Pin     string `yaml:"pin"`
	Dir     string `yaml:"dir"`
	Addr    string `yaml:"addr"`
}

// Tools configures the tool-calling server. An empty Addr disables it.
type Tools struct {
	Addr string `yaml:"addr"`
}

// Log configures logging.
type Log struct {
	Level string `yaml:"level"`
}

// Default returns a configuration with every default applied and no pins.
func Default() Config {
	c := base()
	c.ApplyDefaults()
	return c
}

// base holds the defaults whose zero value is meaningful (heartbeat 0 and an
// empty http address both disable the feature), so they are set before
// decoding rather than filled in afterwards.
func base() Config {
	return Config{
		Heartbeat: DefaultHeartbeat,
		HTTP:      HTTP{Addr: DefaultHTTPAddr},
	}
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Chip == "" {
		c.Chip = gpio.DefaultChip
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if len(c.Windows) == 0 {
		c.Windows = append([]time.Duration(nil), DefaultWindows...)
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = DefaultClientID
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = DefaultTopicPrefix
	}
	if c.HomeKit.Name == "" {
		c.HomeKit.Name = DefaultHomeKitName
	}
	if c.HomeKit.Dir == "" {
		c.HomeKit.Dir = DefaultHomeKitDir
	}
	if c.Log.Level == "" {
		c.Log.Level = zerolog.InfoLevel.String()
	}
}

// InputWindows returns the windows of in, falling back to the global list.
func (c *Config) InputWindows(in Input) []time.Duration {
	if len(in.Windows) > 0 {
		return in.Windows
	}
	return c.Windows
}

// Load reads and validates the YAML file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(bytes.NewReader(data))
}

// Parse decodes YAML from r. Unknown fields are rejected. The result has
// defaults applied but is not validated, so flags can still be merged in.
func Parse(r io.Reader) (Config, error) {
	c := base()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	c.ApplyDefaults()
	return c, nil
}

// AddPinSpec adds an input or output from a "kind:name:pin[:reverted]"
// command-line spec, e.g. "in:door:17:reverted" or "out:fan:27".
func (c *Config) AddPinSpec(spec string) error {
	parts := strings.Split(spec, ":")
	if len(parts) < 3 || len(parts) > 4 {
		return fmt.Errorf("%w: pin spec %q: want kind:name:pin[:reverted]", ErrInvalid, spec)
	}
	pin, err := strconv.Atoi(parts[2])
	if err != nil {
		return fmt.Errorf("%w: pin spec %q: bad pin: %v", ErrInvalid, spec, err)
	}
	reverted := false
	if len(parts) == 4 {
		if parts[3] != "reverted" {
			return fmt.Errorf("%w: pin spec %q: unknown flag %q", ErrInvalid, spec, parts[3])
		}
		reverted = true
	}

	switch strings.ToLower(parts[0]) {
	case "in", "input":
		c.Inputs = append(c.Inputs, Input{Name: parts[1], Pin: pin, Reverted: reverted})
	case "out", "output":
		c.Outputs = append(c.Outputs, Output{Name: parts[1], Pin: pin, Reverted: reverted})
	default:
		return fmt.Errorf("%w: pin spec %q: unknown kind %q", ErrInvalid, spec, parts[0])
	}
	return nil
}

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.PollInterval <= 0 {
		fail("poll_interval must be positive, got %v", c.PollInterval)
	}
	if c.Heartbeat < 0 {
		fail("heartbeat must not be negative, got %v", c.Heartbeat)
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		fail("log.level: %v", err)
	}
	checkWindows := func(owner string, ws []time.Duration) {
		seen := make(map[time.Duration]bool)
		for _, w := range ws {
			if w <= 0 {
				fail("%s: window must be positive, got %v", owner, w)
			}
			if seen[w] {
				fail("%s: duplicate window %v", owner, w)
			}
			seen[w] = true
		}
	}
	checkWindows("windows", c.Windows)
	if c.HomeKit.Enabled && !validSetupCode(c.HomeKit.Pin) {
		fail("homekit.pin must be 8 digits, got %q", c.HomeKit.Pin)
	}

	names := make(map[string]bool)
	pins := make(map[int]string)
	claim := func(kind, name string, pin int) {
		if name == "" {
			fail("%s on pin %d: name is required", kind, pin)
		} else if names[name] {
			fail("%s %q: duplicate name", kind, name)
		}
		names[name] = true
		if pin < 0 {
			fail("%s %q: pin must not be negative, got %d", kind, name, pin)
		}
		if owner, ok := pins[pin]; ok {
			fail("%s %q: pin %d already used by %q", kind, name, pin, owner)
		}
		pins[pin] = name
	}

	for _, in := range c.Inputs {
		claim("input", in.Name, in.Pin)
		if _, err := gpio.ParseBias(in.Bias); err != nil {
			fail("input %q: %v", in.Name, err)
		}
		checkWindows(fmt.Sprintf("input %q", in.Name), in.Windows)
	}
	for _, out := range c.Outputs {
		claim("output", out.Name, out.Pin)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

func validSetupCode(pin string) bool {
	if len(pin) != 8 {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
