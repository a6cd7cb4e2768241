// Package device implements the logical inputs and outputs built on raw GPIO
// lines: debounced inputs with windowed smoothing, and pass-through outputs.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/gpio-manager/internal/gpio"
	"github.com/sweeney/gpio-manager/internal/logic"
	"github.com/sweeney/gpio-manager/internal/metrics"
)

var (
	// ErrUnknownWindow is returned when a smoothed value is requested for a
	// window the input was not configured with.
	ErrUnknownWindow = errors.New("unknown smoothing window")

	// ErrNoWindows is returned when an input is configured without windows.
	ErrNoWindows = errors.New("at least one smoothing window is required")
)

// InputConfig describes one input line.
type InputConfig struct {
	Pin         int
	Name        string
	Description string
	// Reverted inverts the physical reading: high = OFF.
	Reverted bool
	Windows  []time.Duration
}

// Smoothed is the time-weighted majority state over one window.
type Smoothed struct {
	Window time.Duration
	On     bool
}

// InputSnapshot is a consistent point-in-time view of an input.
// Zero timestamps mean the event never happened.
type InputSnapshot struct {
	Name        string
	Description string
	Pin         int
	Reverted    bool
	Known       bool
	On          bool
	Smoothed    []Smoothed
	LastOn      time.Time
	LastOff     time.Time
	LastChange  time.Time
	Changes     int
}

// DebouncedInput polls one input line, tracks its effective state and change
// timestamps, keeps one StateBuffer per smoothing window and notifies a
// listener on every transition.
//
// Check is the only writer. All readers go through mu, so a reader sees
// either everything a Check changed or none of it.
type DebouncedInput struct {
	line gpio.InputLine
	cfg  InputConfig
	now  func() time.Time
	log  zerolog.Logger

	mu         sync.RWMutex
	known      bool
	on         bool
	lastOn     time.Time
	lastOff    time.Time
	lastChange time.Time
	changes    int
	buffers    []*logic.StateBuffer // same order as cfg.Windows
	listener   Listener
}

// NewInput creates an input reading from line. The effective state is
// unknown until the first Check. Until then the smoothing buffers hold an OFF
// placeholder; the first Check reseeds them with the observed state.
func NewInput(line gpio.InputLine, cfg InputConfig, opts ...Option) (*DebouncedInput, error) {
	if line == nil {
		return nil, fmt.Errorf("input %q: nil line", cfg.Name)
	}
	if len(cfg.Windows) == 0 {
		return nil, fmt.Errorf("input %q: %w", cfg.Name, ErrNoWindows)
	}

	o := buildOptions(opts)
	start := o.now()

	seen := make(map[time.Duration]bool, len(cfg.Windows))
	buffers := make([]*logic.StateBuffer, 0, len(cfg.Windows))
	for _, w := range cfg.Windows {
		if seen[w] {
			return nil, fmt.Errorf("input %q: duplicate window %v", cfg.Name, w)
		}
		seen[w] = true

		b, err := logic.NewStateBuffer(w, false, start)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", cfg.Name, err)
		}
		buffers = append(buffers, b)
	}

	cfg.Windows = append([]time.Duration(nil), cfg.Windows...)
	return &DebouncedInput{
		line:     line,
		cfg:      cfg,
		now:      o.now,
		log:      o.logger.With().Str("input", cfg.Name).Int("pin", cfg.Pin).Logger(),
		buffers:  buffers,
		listener: Nop,
	}, nil
}

// Name returns the configured input name.
func (d *DebouncedInput) Name() string { return d.cfg.Name }

// Pin returns the configured pin number.
func (d *DebouncedInput) Pin() int { return d.cfg.Pin }

// Description returns the human-readable purpose of the input.
func (d *DebouncedInput) Description() string { return d.cfg.Description }

// Reverted reports whether the physical reading is inverted.
func (d *DebouncedInput) Reverted() bool { return d.cfg.Reverted }

// Windows returns the configured smoothing windows.
func (d *DebouncedInput) Windows() []time.Duration {
	return append([]time.Duration(nil), d.cfg.Windows...)
}

// ReadRaw returns the physical level of the line, without inversion.
func (d *DebouncedInput) ReadRaw() (bool, error) {
	return d.line.Value()
}

// Check samples the line once. On a change of effective state (or on the
// first sample) it records the new state and timestamps, updates every
// smoothing buffer and then notifies the listener. The first sample reseeds
// the buffers, so each starts with a single sample holding the observed state.
//
// The returned error is the pin read error only; listener failures are
// logged and swallowed.
func (d *DebouncedInput) Check() error {
	raw, err := d.ReadRaw()
	if err != nil {
		return fmt.Errorf("input %s: %w", d.cfg.Name, err)
	}
	on := raw != d.cfg.Reverted

	d.mu.Lock()
	if d.known && d.on == on {
		d.mu.Unlock()
		return nil
	}

	now := d.now()
	first := !d.known
	d.known = true
	d.on = on
	d.lastChange = now
	if on {
		d.lastOn = now
	} else {
		d.lastOff = now
	}
	d.changes++
	if first {
		// The buffers start from the first real reading, not the placeholder.
		for i, w := range d.cfg.Windows {
			b, err := logic.NewStateBuffer(w, on, now)
			if err != nil {
				d.mu.Unlock()
				return fmt.Errorf("input %s: %w", d.cfg.Name, err)
			}
			d.buffers[i] = b
		}
	} else {
		for _, b := range d.buffers {
			b.Update(on, now)
		}
	}
	smoothed := d.smoothedLocked()
	listener := d.listener
	d.mu.Unlock()

	metrics.RecordTransition(d.cfg.Name, on)
	for _, s := range smoothed {
		metrics.RecordSmoothed(d.cfg.Name, WindowLabel(s.Window), s.On)
	}
	d.log.Info().Str("state", string(logic.StateOf(on))).Bool("raw", raw).Msg("transition")

	// The listener runs outside the lock so it can read the new state back.
	notify(d.log, d.cfg.Name, listener)
	return nil
}

func (d *DebouncedInput) smoothedLocked() []Smoothed {
	out := make([]Smoothed, len(d.buffers))
	for i, b := range d.buffers {
		out[i] = Smoothed{Window: b.Window(), On: b.Average()}
	}
	return out
}

// On returns the current effective state. It is false before the first Check.
func (d *DebouncedInput) On() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.on
}

// Known reports whether the input has been sampled at least once.
func (d *DebouncedInput) Known() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.known
}

// State returns ON, OFF or UNKNOWN.
func (d *DebouncedInput) State() logic.State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.known {
		return logic.StateUnknown
	}
	return logic.StateOf(d.on)
}

// OnSmoothed returns the time-weighted majority state over window.
func (d *DebouncedInput) OnSmoothed(window time.Duration) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, b := range d.buffers {
		if b.Window() == window {
			return b.Average(), nil
		}
	}
	return false, fmt.Errorf("input %s: %w: %v", d.cfg.Name, ErrUnknownWindow, window)
}

// LastOn returns when the input last turned on.
func (d *DebouncedInput) LastOn() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastOn
}

// LastOff returns when the input last turned off.
func (d *DebouncedInput) LastOff() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastOff
}

// LastChange returns when the effective state last changed.
func (d *DebouncedInput) LastChange() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastChange
}

// Snapshot returns all public state under a single read lock.
func (d *DebouncedInput) Snapshot() InputSnapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return InputSnapshot{
		Name:        d.cfg.Name,
		Description: d.cfg.Description,
		Pin:         d.cfg.Pin,
		Reverted:    d.cfg.Reverted,
		Known:       d.known,
		On:          d.on,
		Smoothed:    d.smoothedLocked(),
		LastOn:      d.lastOn,
		LastOff:     d.lastOff,
		LastChange:  d.lastChange,
		Changes:     d.changes,
	}
}

// RegisterListener replaces the listener. Passing nil restores the no-op.
func (d *DebouncedInput) RegisterListener(l Listener) {
	if l == nil {
		l = Nop
	}
	d.mu.Lock()
	d.listener = l
	d.mu.Unlock()
}

// Run polls the line once immediately and then every interval until ctx is
// cancelled.
func (d *DebouncedInput) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	d.poll()
	d.loop(ctx, ticker.C)
}

func (d *DebouncedInput) loop(ctx context.Context, tick <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			d.poll()
		}
	}
}

// poll runs one Check. On a read error the last known-good state is kept
// and the next tick tries again.
func (d *DebouncedInput) poll() {
	if err := d.Check(); err != nil {
		metrics.RecordReadError(d.cfg.Name)
		d.log.Warn().Err(err).Msg("pin read failed")
	}
}
