package device

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	applog "github.com/sweeney/gpio-manager/internal/log"
)

// Option configures a device.
type Option func(*options)

type options struct {
	now    func() time.Time
	logger *zerolog.Logger
}

// WithClock overrides the time source used for transition timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger overrides the device logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = &l }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		l := applog.WithComponent("device")
		o.logger = &l
	}
	return o
}

// WindowLabel formats a smoothing window for JSON keys and metric labels,
// e.g. "60s" or "1500ms".
func WindowLabel(d time.Duration) string {
	if d%time.Second == 0 {
		return fmt.Sprintf("%ds", int64(d/time.Second))
	}
	return fmt.Sprintf("%dms", d.Milliseconds())
}
