package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/gpio-manager/internal/config"
	"github.com/sweeney/gpio-manager/internal/device"
	"github.com/sweeney/gpio-manager/internal/gpio"
	"github.com/sweeney/gpio-manager/internal/homekit"
	applog "github.com/sweeney/gpio-manager/internal/log"
	"github.com/sweeney/gpio-manager/internal/mqtt"
	"github.com/sweeney/gpio-manager/internal/status"
	"github.com/sweeney/gpio-manager/internal/tools"
	"github.com/sweeney/gpio-manager/internal/web"
)

// hardware owns the chip and every line requested from it.
type hardware struct {
	chip  gpio.Chip
	lines []gpio.InputLine
	reg   *device.Registry
}

// openHardware requests every configured line and registers the devices.
// Outputs start OFF. On failure everything acquired so far is released.
func openHardware(cfg config.Config, chip gpio.Chip, opts ...device.Option) (*hardware, error) {
	hw := &hardware{chip: chip, reg: device.NewRegistry()}
	if err := hw.open(cfg, opts); err != nil {
		hw.Close()
		return nil, err
	}
	return hw, nil
}

func (h *hardware) open(cfg config.Config, opts []device.Option) error {
	for _, c := range cfg.Inputs {
		bias, err := gpio.ParseBias(c.Bias)
		if err != nil {
			return err
		}
		line, err := h.chip.RequestInput(c.Pin, bias)
		if err != nil {
			return fmt.Errorf("input %s: %w", c.Name, err)
		}
		h.lines = append(h.lines, line)

		in, err := device.NewInput(line, device.InputConfig{
			Pin:         c.Pin,
			Name:        c.Name,
			Description: c.Description,
			Reverted:    c.Reverted,
			Windows:     cfg.InputWindows(c),
		}, opts...)
		if err != nil {
			return err
		}
		if err := h.reg.AddInput(in); err != nil {
			return err
		}
	}

	for _, c := range cfg.Outputs {
		line, err := h.chip.RequestOutput(c.Pin, c.Reverted)
		if err != nil {
			return fmt.Errorf("output %s: %w", c.Name, err)
		}
		h.lines = append(h.lines, line)

		out, err := device.NewOutput(line, device.OutputConfig{
			Pin:         c.Pin,
			Name:        c.Name,
			Description: c.Description,
			Reverted:    c.Reverted,
		}, opts...)
		if err != nil {
			return err
		}
		if err := h.reg.AddOutput(out); err != nil {
			return err
		}
	}
	return nil
}

// Close releases every line, then the chip.
func (h *hardware) Close() error {
	var errs []error
	for _, l := range h.lines {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	h.lines = nil
	if err := h.chip.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// daemon ties the devices to every consumer and runs them until shutdown.
type daemon struct {
	cfg     config.Config
	reg     *device.Registry
	tracker *status.Tracker
	log     zerolog.Logger

	pub      mqtt.Publisher // nil without a broker
	hub      *web.Hub
	bridge   *homekit.Bridge // nil unless enabled
	services []func(context.Context) error
}

func newDaemon(cfg config.Config, reg *device.Registry, version string) *daemon {
	d := &daemon{
		cfg: cfg,
		reg: reg,
		log: applog.WithComponent("daemon"),
		hub: web.NewHub(applog.WithComponent("ws")),
	}
	d.tracker = status.NewTracker(time.Now(), status.Config{
		PollMs:      cfg.PollInterval.Milliseconds(),
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
		Windows:     cfg.Windows,
		Broker:      cfg.MQTT.Broker,
		HTTPAddr:    cfg.HTTP.Addr,
		ToolsAddr:   cfg.Tools.Addr,
		HomeKit:     cfg.HomeKit.Enabled,
	}, reg)

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, d.tracker, d.hub, applog.WithComponent("http"))
		d.services = append(d.services, srv.Run)
	}
	if cfg.HomeKit.Enabled {
		d.bridge = homekit.New(homekit.Config{
			Name:     cfg.HomeKit.Name,
			Pin:      cfg.HomeKit.Pin,
			Dir:      cfg.HomeKit.Dir,
			Addr:     cfg.HomeKit.Addr,
			Firmware: version,
		}, reg, applog.WithComponent("homekit"))
		d.services = append(d.services, d.bridge.Run)
	}
	if cfg.Tools.Addr != "" {
		srv := tools.New(cfg.Tools.Addr, version, reg, applog.WithComponent("tools"))
		d.services = append(d.services, srv.Run)
	}
	return d
}

// wire registers one combined listener per device.
func (d *daemon) wire() {
	for _, in := range d.reg.Inputs() {
		ls := d.common(in.Name())
		if d.bridge != nil {
			ls = append(ls, d.bridge.InputListener(in.Name()))
		}
		in.RegisterListener(device.Multi(ls...))
	}
	for _, out := range d.reg.Outputs() {
		ls := d.common(out.Name())
		if d.bridge != nil {
			ls = append(ls, d.bridge.OutputListener(out.Name()))
		}
		out.RegisterListener(device.Multi(ls...))
	}
}

func (d *daemon) common(name string) []device.Listener {
	ls := []device.Listener{d.hub.DeviceListener(d.reg, name)}
	if d.pub != nil {
		ls = append(ls, mqtt.StateListener(d.pub, d.reg, name))
	}
	return ls
}

func (d *daemon) publishSystem(event, reason string) {
	if d.pub == nil {
		return
	}
	if cs, ok := d.pub.(mqtt.ConnectionStatus); ok {
		d.tracker.SetMQTTConnected(cs.IsConnected())
	}
	snap := d.tracker.Snapshot()
	ev := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   event != mqtt.EventHeartbeat,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := d.pub.PublishSystem(ev); err != nil {
		d.log.Warn().Err(err).Str("event", event).Msg("publish system event failed")
		return
	}
	d.log.Info().Str("event", event).Str("reason", reason).Msg("published system event")
}

// run polls every input and runs the services until a signal arrives, ctx
// is cancelled or a service fails.
func (d *daemon) run(ctx context.Context, sig <-chan os.Signal, heartbeat <-chan time.Time) error {
	d.publishSystem(mqtt.EventStartup, "")
	if d.pub != nil {
		if err := mqtt.PublishAll(d.pub, d.reg); err != nil {
			d.log.Warn().Err(err).Msg("publish initial state failed")
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	for _, in := range d.reg.Inputs() {
		g.Go(func() error {
			in.Run(gctx, d.cfg.PollInterval)
			return nil
		})
	}
	for _, svc := range d.services {
		g.Go(func() error { return svc(gctx) })
	}
	g.Go(func() error {
		for {
			select {
			case s := <-sig:
				d.log.Info().Str("signal", s.String()).Msg("shutting down")
				d.publishSystem(mqtt.EventShutdown, signalName(s))
				cancel()
				return nil
			case <-gctx.Done():
				d.publishSystem(mqtt.EventShutdown, "STOPPED")
				return nil
			case <-heartbeat:
				d.publishSystem(mqtt.EventHeartbeat, "")
			}
		}
	})

	return g.Wait()
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}
