package device

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/gpio-manager/internal/gpio"
	"github.com/sweeney/gpio-manager/internal/logic"
	"github.com/sweeney/gpio-manager/internal/metrics"
)

// OutputConfig describes one output line.
type OutputConfig struct {
	Pin         int
	Name        string
	Description string
	// Reverted inverts the driven level: ON = low.
	Reverted bool
}

// OutputSnapshot is a consistent point-in-time view of an output.
type OutputSnapshot struct {
	Name        string
	Description string
	Pin         int
	Reverted    bool
	On          bool
	LastOn      time.Time
	LastOff     time.Time
	LastChange  time.Time
	Changes     int
}

// Output drives one line. It has no smoothing; the state is whatever was
// last written successfully.
type Output struct {
	line gpio.OutputLine
	cfg  OutputConfig
	now  func() time.Time
	log  zerolog.Logger

	mu         sync.RWMutex
	on         bool
	lastOn     time.Time
	lastOff    time.Time
	lastChange time.Time
	changes    int
	listener   Listener
}

// NewOutput wraps line. The line is expected to already be driven OFF
// (physical level equal to cfg.Reverted).
func NewOutput(line gpio.OutputLine, cfg OutputConfig, opts ...Option) (*Output, error) {
	if line == nil {
		return nil, fmt.Errorf("output %q: nil line", cfg.Name)
	}
	o := buildOptions(opts)
	return &Output{
		line:     line,
		cfg:      cfg,
		now:      o.now,
		log:      o.logger.With().Str("output", cfg.Name).Int("pin", cfg.Pin).Logger(),
		listener: Nop,
	}, nil
}

// Name returns the configured output name.
func (o *Output) Name() string { return o.cfg.Name }

// Pin returns the configured pin number.
func (o *Output) Pin() int { return o.cfg.Pin }

// Description returns the human-readable purpose of the output.
func (o *Output) Description() string { return o.cfg.Description }

// Reverted reports whether the driven level is inverted.
func (o *Output) Reverted() bool { return o.cfg.Reverted }

// Switch drives the output ON or OFF and notifies the listener.
// On a write failure the cached state is left untouched.
func (o *Output) Switch(on bool) error {
	o.mu.Lock()
	if err := o.line.SetValue(on != o.cfg.Reverted); err != nil {
		o.mu.Unlock()
		return fmt.Errorf("output %s: %w", o.cfg.Name, err)
	}
	now := o.now()
	if on != o.on || o.changes == 0 {
		o.lastChange = now
		if on {
			o.lastOn = now
		} else {
			o.lastOff = now
		}
		o.changes++
	}
	o.on = on
	listener := o.listener
	o.mu.Unlock()

	metrics.RecordOutputSwitch(o.cfg.Name, on)
	o.log.Info().Str("state", string(logic.StateOf(on))).Msg("switched")
	notify(o.log, o.cfg.Name, listener)
	return nil
}

// IsOn returns the last state written.
func (o *Output) IsOn() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.on
}

// LastOn returns when the output was last switched on.
func (o *Output) LastOn() time.Time {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.lastOn
}

// LastOff returns when the output was last switched off.
func (o *Output) LastOff() time.Time {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.lastOff
}

// LastChange returns when the output state last changed.
func (o *Output) LastChange() time.Time {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.lastChange
}

// Snapshot returns all public state under a single read lock.
func (o *Output) Snapshot() OutputSnapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return OutputSnapshot{
		Name:        o.cfg.Name,
		Description: o.cfg.Description,
		Pin:         o.cfg.Pin,
		Reverted:    o.cfg.Reverted,
		On:          o.on,
		LastOn:      o.lastOn,
		LastOff:     o.lastOff,
		LastChange:  o.lastChange,
		Changes:     o.changes,
	}
}

// RegisterListener replaces the listener. Passing nil restores the no-op.
func (o *Output) RegisterListener(l Listener) {
	if l == nil {
		l = Nop
	}
	o.mu.Lock()
	o.listener = l
	o.mu.Unlock()
}
