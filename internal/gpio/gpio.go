// Package gpio provides raw digital line access with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
//
// Values are physical levels (true = high). Logical inversion is applied by
// the devices built on top of these lines, never here.
package gpio

import "fmt"

// DefaultChip is the GPIO chip of the Raspberry Pi header.
const DefaultChip = "gpiochip0"

// Bias selects the internal resistor configuration of an input line.
type Bias string

const (
	BiasDefault  Bias = ""
	BiasPullUp   Bias = "pull-up"
	BiasPullDown Bias = "pull-down"
	BiasDisabled Bias = "disabled"
)

// ParseBias validates a bias name from configuration.
func ParseBias(s string) (Bias, error) {
	switch b := Bias(s); b {
	case BiasDefault, BiasPullUp, BiasPullDown, BiasDisabled:
		return b, nil
	}
	return BiasDefault, fmt.Errorf("unknown bias %q", s)
}

// InputLine reads the level of a single line.
type InputLine interface {
	// Value returns the physical level of the line.
	Value() (bool, error)

	// Close releases the line.
	Close() error
}

// OutputLine drives a single line.
type OutputLine interface {
	InputLine

	// SetValue drives the line to the given physical level.
	SetValue(high bool) error
}

// Chip hands out lines. Opening the chip is the one-time hardware
// initialization step; devices only ever see the lines.
type Chip interface {
	RequestInput(pin int, bias Bias) (InputLine, error)
	RequestOutput(pin int, initial bool) (OutputLine, error)

	// Close releases the chip. Lines should be closed first.
	Close() error
}
