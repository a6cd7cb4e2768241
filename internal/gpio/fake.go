package gpio

import (
	"errors"
	"fmt"
	"sync"
)

// FakeLine is a test double that returns scripted levels and records writes.
// It is safe for concurrent use so a poll goroutine and a test can share it.
type FakeLine struct {
	mu sync.Mutex

	// Values contains scripted levels to return.
	// Each call to Value() consumes the next one; the last repeats forever.
	Values []bool

	// index tracks current position in Values
	index int

	// Written records every level passed to SetValue.
	Written []bool

	// ReadError, if set, will be returned by Value()
	ReadError error

	// WriteError, if set, will be returned by SetValue()
	WriteError error

	// Closed tracks if Close was called
	Closed bool
}

// NewFakeLine creates a FakeLine with the given scripted levels.
func NewFakeLine(values ...bool) *FakeLine {
	return &FakeLine{Values: values}
}

// Value returns the next scripted level.
func (f *FakeLine) Value() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ReadError != nil {
		return false, f.ReadError
	}
	if len(f.Values) == 0 {
		return false, errors.New("no values configured")
	}

	v := f.Values[f.index]
	if f.index < len(f.Values)-1 {
		f.index++
	}
	return v, nil
}

// SetValue records the level. The written level becomes the value read back.
func (f *FakeLine) SetValue(high bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.WriteError != nil {
		return f.WriteError
	}
	f.Written = append(f.Written, high)
	f.Values = []bool{high}
	f.index = 0
	return nil
}

// Set replaces the script with a single level, simulating a physical change.
func (f *FakeLine) Set(high bool) {
	f.mu.Lock()
	f.Values = []bool{high}
	f.index = 0
	f.mu.Unlock()
}

// SetReadError sets or clears the read error.
func (f *FakeLine) SetReadError(err error) {
	f.mu.Lock()
	f.ReadError = err
	f.mu.Unlock()
}

// SetWriteError sets or clears the write error.
func (f *FakeLine) SetWriteError(err error) {
	f.mu.Lock()
	f.WriteError = err
	f.mu.Unlock()
}

// Close marks the line as closed.
func (f *FakeLine) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// IsClosed reports whether Close was called.
func (f *FakeLine) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Closed
}

// FakeChip hands out FakeLines keyed by pin number.
type FakeChip struct {
	mu sync.Mutex

	// Lines contains every line requested so far, plus any pre-seeded ones.
	Lines map[int]*FakeLine

	// Biases records the bias requested for each input pin.
	Biases map[int]Bias

	// RequestError, if set, will be returned by RequestInput/RequestOutput.
	RequestError error

	// Closed tracks if Close was called
	Closed bool
}

// NewFakeChip creates an empty FakeChip.
func NewFakeChip() *FakeChip {
	return &FakeChip{
		Lines:  make(map[int]*FakeLine),
		Biases: make(map[int]Bias),
	}
}

// Line returns the line for pin, creating a low line if none exists yet.
func (c *FakeChip) Line(pin int) *FakeLine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.line(pin)
}

func (c *FakeChip) line(pin int) *FakeLine {
	l, ok := c.Lines[pin]
	if !ok {
		l = NewFakeLine(false)
		c.Lines[pin] = l
	}
	return l
}

// RequestInput returns the fake line for pin.
func (c *FakeChip) RequestInput(pin int, bias Bias) (InputLine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.RequestError != nil {
		return nil, fmt.Errorf("request input pin %d: %w", pin, c.RequestError)
	}
	c.Biases[pin] = bias
	return c.line(pin), nil
}

// RequestOutput returns the fake line for pin driven to initial.
func (c *FakeChip) RequestOutput(pin int, initial bool) (OutputLine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.RequestError != nil {
		return nil, fmt.Errorf("request output pin %d: %w", pin, c.RequestError)
	}
	l := c.line(pin)
	l.Set(initial)
	return l, nil
}

// Close marks the chip as closed.
func (c *FakeChip) Close() error {
	c.mu.Lock()
	c.Closed = true
	c.mu.Unlock()
	return nil
}
