package device

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sweeney/gpio-manager/internal/metrics"
)

// Listener is notified after every detected state change of a device.
// It receives no arguments; it re-reads the device's query surface itself.
// OnChanged runs on the polling goroutine and should not block.
type Listener interface {
	OnChanged() error
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func() error

// OnChanged calls f.
func (f ListenerFunc) OnChanged() error {
	return f()
}

type nopListener struct{}

func (nopListener) OnChanged() error { return nil }

// Nop is the listener every device starts with.
var Nop Listener = nopListener{}

// Multi returns a listener that notifies every listener in order. A failing
// or panicking listener does not prevent the others from running; their
// errors are joined.
func Multi(listeners ...Listener) Listener {
	ls := make([]Listener, 0, len(listeners))
	for _, l := range listeners {
		if l != nil {
			ls = append(ls, l)
		}
	}
	return ListenerFunc(func() error {
		var errs []error
		for _, l := range ls {
			if err := safeCall(l); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// safeCall invokes l, turning a panic into an error.
func safeCall(l Listener) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panic: %v", r)
		}
	}()
	return l.OnChanged()
}

// notify calls l and logs any failure. It never propagates the failure: a
// broken consumer must not stop hardware monitoring.
func notify(logger zerolog.Logger, device string, l Listener) {
	if err := safeCall(l); err != nil {
		metrics.RecordListenerFailure(device)
		logger.Error().Err(err).Msg("listener failed")
	}
}
