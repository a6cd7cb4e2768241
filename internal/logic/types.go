// Package logic contains the pure state-tracking algorithms for digital inputs.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrBadState is returned by ParseState for an unrecognised value.
var ErrBadState = errors.New("invalid state")

// State represents the logical state of a digital line.
type State string

const (
	StateOn      State = "ON"
	StateOff     State = "OFF"
	StateUnknown State = "UNKNOWN"
)

// StateOf converts a boolean reading into a State.
func StateOf(on bool) State {
	if on {
		return StateOn
	}
	return StateOff
}

// ParseState accepts ON/OFF, true/false and 1/0, case-insensitively and
// ignoring surrounding whitespace.
func ParseState(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("%w: %q", ErrBadState, s)
}

// Sample is one observed transition point.
type Sample struct {
	Time  time.Time
	State bool
}
