//go:build linux

package gpio

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealChip opens lines on actual hardware using the Linux GPIO character device.
type RealChip struct {
	chip *gpiocdev.Chip
}

// NewRealChip opens the named chip, e.g. "gpiochip0".
func NewRealChip(name string) (*RealChip, error) {
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", name, err)
	}
	return &RealChip{chip: chip}, nil
}

// RequestInput requests pin as an input with the given bias.
func (c *RealChip) RequestInput(pin int, bias Bias) (InputLine, error) {
	opts := []gpiocdev.LineReqOption{gpiocdev.AsInput}
	switch bias {
	case BiasPullUp:
		opts = append(opts, gpiocdev.WithPullUp)
	case BiasPullDown:
		opts = append(opts, gpiocdev.WithPullDown)
	case BiasDisabled:
		opts = append(opts, gpiocdev.WithBiasDisabled)
	}

	line, err := c.chip.RequestLine(pin, opts...)
	if err != nil {
		return nil, fmt.Errorf("request input pin %d: %w", pin, err)
	}
	return &realLine{line: line, pin: pin}, nil
}

// RequestOutput requests pin as an output driven to initial.
func (c *RealChip) RequestOutput(pin int, initial bool) (OutputLine, error) {
	line, err := c.chip.RequestLine(pin, gpiocdev.AsOutput(level(initial)))
	if err != nil {
		return nil, fmt.Errorf("request output pin %d: %w", pin, err)
	}
	return &realLine{line: line, pin: pin}, nil
}

// Close releases the chip.
func (c *RealChip) Close() error {
	if err := c.chip.Close(); err != nil {
		return fmt.Errorf("close chip: %w", err)
	}
	return nil
}

type realLine struct {
	line *gpiocdev.Line
	pin  int
}

func (l *realLine) Value() (bool, error) {
	v, err := l.line.Value()
	if err != nil {
		return false, fmt.Errorf("read pin %d: %w", l.pin, err)
	}
	return v != 0, nil
}

func (l *realLine) SetValue(high bool) error {
	if err := l.line.SetValue(level(high)); err != nil {
		return fmt.Errorf("write pin %d: %w", l.pin, err)
	}
	return nil
}

// Close reconfigures the line to input with pull-down (matching Pi boot
// defaults) before releasing it, so external hardware does not hold the pin
// in an unexpected state during the next boot.
func (l *realLine) Close() error {
	var errs []error
	if err := l.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", l.pin, err))
	}
	if err := l.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close pin %d: %w", l.pin, err))
	}
	return errors.Join(errs...)
}

func level(high bool) int {
	if high {
		return 1
	}
	return 0
}
