package logic

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidWindow is returned when a buffer is created with a non-positive window.
var ErrInvalidWindow = errors.New("window duration must be positive")

// StateBuffer keeps the transitions of one signal that fall inside a trailing
// window and answers which state dominated that window by elapsed time.
//
// Only transitions are stored, never individual polls, so memory is bounded by
// the number of changes within one window. Not safe for concurrent use; the
// owning input synchronizes access.
type StateBuffer struct {
	window  time.Duration
	samples []Sample
}

// NewStateBuffer creates a buffer seeded with a single sample at now.
func NewStateBuffer(window time.Duration, initial bool, now time.Time) (*StateBuffer, error) {
	if window <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWindow, window)
	}
	return &StateBuffer{
		window:  window,
		samples: []Sample{{Time: now, State: initial}},
	}, nil
}

// Window returns the trailing duration the buffer covers.
func (b *StateBuffer) Window() time.Duration {
	return b.window
}

// Update records a transition to state at now and drops history that aged out.
// Callers should only pass real changes; repeating the last state is allowed
// but just splits one interval in two.
func (b *StateBuffer) Update(state bool, now time.Time) {
	// Keep timestamps non-decreasing even if the wall clock steps back.
	if last := b.samples[len(b.samples)-1].Time; now.Before(last) {
		now = last
	}
	b.samples = append(b.samples, Sample{Time: now, State: state})
	b.compact(now)
}

// compact drops every sample older than the window, except that the newest two
// are always kept: the newest because it is the current state, the one before
// it because it bounds the only interval still left to weight.
func (b *StateBuffer) compact(now time.Time) {
	n := len(b.samples)
	if n <= 2 {
		return
	}

	// Samples are sorted, so expired ones form a prefix.
	first := 0
	for first < n-2 && now.Sub(b.samples[first].Time) >= b.window {
		first++
	}
	if first == 0 {
		return
	}

	kept := b.samples[:0]
	kept = append(kept, b.samples[first:]...)
	// Clear the tail so dropped samples are not pinned by the backing array.
	for i := len(kept); i < n; i++ {
		b.samples[i] = Sample{}
	}
	b.samples = kept
}

// Average returns the state that held for the longer time between the retained
// samples. Each interval is credited to the state of its earlier sample; the
// open interval after the newest sample does not count. Ties go to OFF.
func (b *StateBuffer) Average() bool {
	if len(b.samples) == 1 {
		return b.samples[0].State
	}

	var on, off time.Duration
	for i := 1; i < len(b.samples); i++ {
		elapsed := b.samples[i].Time.Sub(b.samples[i-1].Time)
		if b.samples[i-1].State {
			on += elapsed
		} else {
			off += elapsed
		}
	}
	return on > off
}

// Len returns the number of retained samples.
func (b *StateBuffer) Len() int {
	return len(b.samples)
}

// Samples returns a copy of the retained samples, oldest first.
func (b *StateBuffer) Samples() []Sample {
	out := make([]Sample, len(b.samples))
	copy(out, b.samples)
	return out
}
