package device

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sweeney/gpio-manager/internal/gpio"
	"github.com/sweeney/gpio-manager/internal/logic"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var start = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// clock is a manually advanced time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: start} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// countingListener counts notifications and optionally fails.
type countingListener struct {
	calls atomic.Int32
	err   error
	panic bool
}

func (l *countingListener) OnChanged() error {
	l.calls.Add(1)
	if l.panic {
		panic("listener exploded")
	}
	return l.err
}

func newTestInput(t *testing.T, line *gpio.FakeLine, reverted bool, c *clock, windows ...time.Duration) *DebouncedInput {
	t.Helper()
	if len(windows) == 0 {
		windows = []time.Duration{time.Minute}
	}
	in, err := NewInput(line, InputConfig{
		Pin:      17,
		Name:     "door",
		Reverted: reverted,
		Windows:  windows,
	}, WithClock(c.Now), WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	return in
}

func TestNewInputValidation(t *testing.T) {
	line := gpio.NewFakeLine(false)

	_, err := NewInput(line, InputConfig{Name: "a"})
	assert.ErrorIs(t, err, ErrNoWindows)

	_, err = NewInput(line, InputConfig{Name: "a", Windows: []time.Duration{time.Minute, 0}})
	assert.ErrorIs(t, err, logic.ErrInvalidWindow)

	_, err = NewInput(line, InputConfig{Name: "a", Windows: []time.Duration{time.Minute, time.Minute}})
	assert.Error(t, err)

	_, err = NewInput(nil, InputConfig{Name: "a", Windows: []time.Duration{time.Minute}})
	assert.Error(t, err)
}

func TestUnknownBeforeFirstCheck(t *testing.T) {
	in := newTestInput(t, gpio.NewFakeLine(true), false, newClock())

	assert.False(t, in.Known())
	assert.False(t, in.On())
	assert.Equal(t, logic.StateUnknown, in.State())
	assert.True(t, in.LastChange().IsZero())
}

func TestFirstCheckNotifiesOnce(t *testing.T) {
	c := newClock()
	in := newTestInput(t, gpio.NewFakeLine(false), false, c)
	l := &countingListener{}
	in.RegisterListener(l)

	c.Advance(2 * time.Second)
	require.NoError(t, in.Check())

	assert.Equal(t, int32(1), l.calls.Load())
	assert.True(t, in.Known())
	assert.Equal(t, logic.StateOff, in.State())
	assert.Equal(t, start.Add(2*time.Second), in.LastChange())
	assert.Equal(t, start.Add(2*time.Second), in.LastOff())
	assert.True(t, in.LastOn().IsZero())
}

func TestCheckWithoutChangeDoesNotNotify(t *testing.T) {
	c := newClock()
	line := gpio.NewFakeLine(true)
	in := newTestInput(t, line, false, c)
	l := &countingListener{}
	in.RegisterListener(l)

	require.NoError(t, in.Check())
	c.Advance(time.Second)
	require.NoError(t, in.Check())
	require.NoError(t, in.Check())

	assert.Equal(t, int32(1), l.calls.Load())
	assert.Equal(t, start, in.LastChange())
	assert.Equal(t, 1, in.Snapshot().Changes)
}

func TestCheckNotifiesOnEveryTransition(t *testing.T) {
	c := newClock()
	line := gpio.NewFakeLine(false)
	in := newTestInput(t, line, false, c)
	l := &countingListener{}
	in.RegisterListener(l)

	require.NoError(t, in.Check()) // OFF
	c.Advance(time.Second)
	line.Set(true)
	require.NoError(t, in.Check()) // ON
	c.Advance(time.Second)
	line.Set(false)
	require.NoError(t, in.Check()) // OFF

	assert.Equal(t, int32(3), l.calls.Load())
	assert.Equal(t, start.Add(time.Second), in.LastOn())
	assert.Equal(t, start.Add(2*time.Second), in.LastOff())
	assert.Equal(t, start.Add(2*time.Second), in.LastChange())
}

func TestRevertedInput(t *testing.T) {
	c := newClock()
	line := gpio.NewFakeLine(true) // physical HIGH
	in := newTestInput(t, line, true, c)

	require.NoError(t, in.Check())
	assert.False(t, in.On(), "reverted HIGH must read OFF")
	assert.Equal(t, start, in.LastOff())
	assert.True(t, in.LastOn().IsZero())

	raw, err := in.ReadRaw()
	require.NoError(t, err)
	assert.True(t, raw, "ReadRaw must not apply the inversion")

	c.Advance(5 * time.Second)
	line.Set(false) // physical LOW
	require.NoError(t, in.Check())
	assert.True(t, in.On())
	assert.Equal(t, start.Add(5*time.Second), in.LastOn())
}

func TestReadErrorKeepsLastState(t *testing.T) {
	c := newClock()
	line := gpio.NewFakeLine(true)
	in := newTestInput(t, line, false, c)
	l := &countingListener{}
	in.RegisterListener(l)
	require.NoError(t, in.Check())

	line.SetReadError(errors.New("bus error"))
	c.Advance(time.Second)
	err := in.Check()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "door")

	assert.True(t, in.On())
	assert.Equal(t, start, in.LastChange())
	assert.Equal(t, int32(1), l.calls.Load())
}

func TestListenerFailureDoesNotAbortUpdate(t *testing.T) {
	for name, l := range map[string]*countingListener{
		"error": {err: errors.New("consumer down")},
		"panic": {panic: true},
	} {
		t.Run(name, func(t *testing.T) {
			c := newClock()
			line := gpio.NewFakeLine(false)
			in := newTestInput(t, line, false, c)
			in.RegisterListener(l)

			require.NoError(t, in.Check())
			c.Advance(time.Second)
			line.Set(true)
			require.NoError(t, in.Check())

			assert.Equal(t, int32(2), l.calls.Load())
			assert.True(t, in.On())
			assert.Equal(t, start.Add(time.Second), in.LastOn())
		})
	}
}

func TestRegisterListenerReplaces(t *testing.T) {
	c := newClock()
	line := gpio.NewFakeLine(false)
	in := newTestInput(t, line, false, c)
	first, second := &countingListener{}, &countingListener{}

	in.RegisterListener(first)
	in.RegisterListener(second)
	require.NoError(t, in.Check())

	assert.Zero(t, first.calls.Load())
	assert.Equal(t, int32(1), second.calls.Load())

	in.RegisterListener(nil)
	line.Set(true)
	assert.NoError(t, in.Check())
}

func TestListenerSeesNewState(t *testing.T) {
	c := newClock()
	line := gpio.NewFakeLine(true)
	in := newTestInput(t, line, false, c)

	var seen InputSnapshot
	in.RegisterListener(ListenerFunc(func() error {
		seen = in.Snapshot()
		return nil
	}))
	require.NoError(t, in.Check())

	assert.True(t, seen.Known)
	assert.True(t, seen.On)
	assert.Equal(t, start, seen.LastChange)
	assert.Equal(t, 1, seen.Changes)
}

func TestOnSmoothed(t *testing.T) {
	c := newClock()
	line := gpio.NewFakeLine(true)
	in := newTestInput(t, line, false, c, time.Minute, 5*time.Minute)

	require.NoError(t, in.Check()) // ON at t0, buffers reseeded ON
	c.Advance(40 * time.Second)
	line.Set(false)
	require.NoError(t, in.Check()) // OFF at t0+40s
	c.Advance(10 * time.Second)
	line.Set(true)
	require.NoError(t, in.Check()) // ON at t0+50s

	// ON 40s, OFF 10s in both windows.
	on, err := in.OnSmoothed(time.Minute)
	require.NoError(t, err)
	assert.True(t, on)

	on, err = in.OnSmoothed(5 * time.Minute)
	require.NoError(t, err)
	assert.True(t, on)

	_, err = in.OnSmoothed(time.Hour)
	assert.ErrorIs(t, err, ErrUnknownWindow)

	snap := in.Snapshot()
	require.Len(t, snap.Smoothed, 2)
	assert.Equal(t, time.Minute, snap.Smoothed[0].Window)
	assert.Equal(t, 5*time.Minute, snap.Smoothed[1].Window)
}

func TestSteadyOnReportsSmoothedOn(t *testing.T) {
	c := newClock()
	line := gpio.NewFakeLine(true)
	in := newTestInput(t, line, false, c, time.Minute, 5*time.Minute)

	c.Advance(2 * time.Second)
	for i := 0; i < 100; i++ {
		require.NoError(t, in.Check())
		c.Advance(2 * time.Second)
	}

	assert.True(t, in.On())
	for _, w := range []time.Duration{time.Minute, 5 * time.Minute} {
		on, err := in.OnSmoothed(w)
		require.NoError(t, err)
		assert.True(t, on, "window %v", w)
	}
	for i, b := range in.buffers {
		samples := b.Samples()
		require.Len(t, samples, 1, "buffer %d", i)
		assert.True(t, samples[0].State)
		assert.Equal(t, start.Add(2*time.Second), samples[0].Time)
	}

	c.Advance(time.Hour)
	require.NoError(t, in.Check())
	on, err := in.OnSmoothed(time.Minute)
	require.NoError(t, err)
	assert.True(t, on, "still ON an hour later")
}

func TestFirstCheckReseedsBuffersBeforeTransition(t *testing.T) {
	c := newClock()
	line := gpio.NewFakeLine(true)
	in := newTestInput(t, line, false, c)

	c.Advance(30 * time.Second)
	require.NoError(t, in.Check()) // ON at 30s
	c.Advance(10 * time.Second)
	line.Set(false)
	require.NoError(t, in.Check()) // OFF at 40s

	// Only the closed ON interval counts; the time before the first
	// reading is not weighted as OFF.
	on, err := in.OnSmoothed(time.Minute)
	require.NoError(t, err)
	assert.True(t, on)
	assert.Len(t, in.buffers[0].Samples(), 2)
}

func TestSmoothedWindowsDiverge(t *testing.T) {
	c := newClock()
	line := gpio.NewFakeLine(true)
	in := newTestInput(t, line, false, c, time.Minute, 10*time.Minute)

	require.NoError(t, in.Check()) // ON at t0
	c.Advance(5 * time.Minute)
	line.Set(false)
	require.NoError(t, in.Check()) // OFF at 5m
	c.Advance(30 * time.Second)
	line.Set(true)
	require.NoError(t, in.Check()) // ON at 5m30s
	c.Advance(20 * time.Second)
	line.Set(false)
	require.NoError(t, in.Check()) // OFF at 5m50s

	// Short window: only [5m, 5m30s) OFF and [5m30s, 5m50s) ON are retained.
	short, err := in.OnSmoothed(time.Minute)
	require.NoError(t, err)
	assert.False(t, short)

	// Long window still holds the 5 minutes of ON.
	long, err := in.OnSmoothed(10 * time.Minute)
	require.NoError(t, err)
	assert.True(t, long)
}

func TestConcurrentReadsSeeConsistentSnapshots(t *testing.T) {
	var tick atomic.Int64
	now := func() time.Time { return start.Add(time.Duration(tick.Add(1)) * time.Millisecond) }

	line := gpio.NewFakeLine(false)
	in, err := NewInput(line, InputConfig{Name: "pir", Pin: 4, Windows: []time.Duration{time.Second}},
		WithClock(now), WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		state := false
		for ctx.Err() == nil {
			state = !state
			line.Set(state)
			_ = in.Check()
		}
	}()

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 2000; j++ {
				s := in.Snapshot()
				if !s.Known {
					continue
				}
				if s.On && !s.LastOn.Equal(s.LastChange) {
					t.Errorf("ON snapshot with last_on %v != last_change %v", s.LastOn, s.LastChange)
					return
				}
				if !s.On && !s.LastOff.Equal(s.LastChange) {
					t.Errorf("OFF snapshot with last_off %v != last_change %v", s.LastOff, s.LastChange)
					return
				}
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	cancel()
	wg.Wait()
}

func TestLoopPollsUntilCancelled(t *testing.T) {
	c := newClock()
	line := gpio.NewFakeLine(false)
	in := newTestInput(t, line, false, c)
	l := &countingListener{}
	in.RegisterListener(l)

	tick := make(chan time.Time)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		in.loop(ctx, tick)
		close(done)
	}()
	// The loop only takes the second tick once the first Check has returned.
	step := func() {
		tick <- start
		tick <- start
	}

	step()
	line.Set(true)
	step()
	line.SetReadError(errors.New("glitch"))
	step() // error is logged, loop keeps going
	line.SetReadError(nil)
	line.Set(false)
	step()

	cancel()
	<-done

	assert.Equal(t, int32(3), l.calls.Load())
	assert.False(t, in.On())
}

func TestRunStopsOnCancel(t *testing.T) {
	in := newTestInput(t, gpio.NewFakeLine(true), false, newClock())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		in.Run(ctx, time.Millisecond)
		close(done)
	}()

	require.Eventually(t, in.Known, time.Second, time.Millisecond)
	cancel()
	<-done
}
