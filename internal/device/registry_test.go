package device

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/gpio-manager/internal/gpio"
)

func mustInput(t *testing.T, name string, pin int) *DebouncedInput {
	t.Helper()
	in, err := NewInput(gpio.NewFakeLine(false), InputConfig{Name: name, Pin: pin, Windows: []time.Duration{time.Minute}},
		WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	return in
}

func mustOutput(t *testing.T, name string, pin int) *Output {
	t.Helper()
	out, err := NewOutput(gpio.NewFakeLine(false), OutputConfig{Name: name, Pin: pin}, WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	return out
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.AddInput(mustInput(t, "door", 17)))
	require.NoError(t, r.AddInput(mustInput(t, "pir", 4)))
	require.NoError(t, r.AddOutput(mustOutput(t, "fan", 27)))

	in, ok := r.Input("pir")
	require.True(t, ok)
	assert.Equal(t, 4, in.Pin())

	_, ok = r.Input("fan")
	assert.False(t, ok, "outputs are not inputs")

	out, ok := r.Output("fan")
	require.True(t, ok)
	assert.Equal(t, 27, out.Pin())

	assert.Equal(t, []string{"door", "pir"}, r.InputNames())
	assert.Equal(t, []string{"fan"}, r.OutputNames())
	assert.Len(t, r.Inputs(), 2)
	assert.Len(t, r.Outputs(), 1)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.AddInput(mustInput(t, "door", 17)))

	assert.ErrorIs(t, r.AddOutput(mustOutput(t, "door", 5)), ErrDuplicateName)
	assert.ErrorIs(t, r.AddOutput(mustOutput(t, "fan", 17)), ErrDuplicatePin)
	assert.Empty(t, r.Outputs())
}
