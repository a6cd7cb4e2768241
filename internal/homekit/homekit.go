// Package homekit exposes inputs as contact sensors and outputs as switches
// on a HomeKit bridge.
package homekit

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/brutella/hap"
	"github.com/brutella/hap/accessory"
	"github.com/brutella/hap/characteristic"
	"github.com/brutella/hap/service"
	"github.com/rs/zerolog"

	"github.com/sweeney/gpio-manager/internal/device"
	"github.com/sweeney/gpio-manager/internal/logic"
)

const manufacturer = "gpio-manager"

// Config configures the bridge accessory and its HAP server.
type Config struct {
	Name     string
	Pin      string // 8-digit setup code
	Dir      string // pairing store
	Addr     string // empty picks a random port
	Firmware string
}

type sensor struct {
	acc     *accessory.A
	contact *service.ContactSensor
	fault   *characteristic.StatusFault
}

// Bridge mirrors registry devices as HomeKit accessories.
type Bridge struct {
	cfg    Config
	reg    *device.Registry
	log    zerolog.Logger
	bridge *accessory.Bridge

	sensors  map[string]*sensor
	switches map[string]*accessory.Switch
	order    []*accessory.A
}

// New builds one accessory per registered device. Inputs start out faulted
// until their first poll.
func New(cfg Config, reg *device.Registry, log zerolog.Logger) *Bridge {
	b := &Bridge{
		cfg: cfg,
		reg: reg,
		log: log,
		bridge: accessory.NewBridge(accessory.Info{
			Name:         cfg.Name,
			Manufacturer: manufacturer,
			Firmware:     cfg.Firmware,
		}),
		sensors:  make(map[string]*sensor),
		switches: make(map[string]*accessory.Switch),
	}

	for _, in := range reg.Inputs() {
		s := &sensor{
			acc: accessory.New(accessory.Info{
				Name:         in.Name(),
				SerialNumber: fmt.Sprintf("input:%02d", in.Pin()),
				Manufacturer: manufacturer,
				Firmware:     cfg.Firmware,
			}, accessory.TypeSensor),
			contact: service.NewContactSensor(),
			fault:   characteristic.NewStatusFault(),
		}
		s.contact.AddC(s.fault.C)
		s.acc.AddS(s.contact.S)
		s.acc.Id = accessoryID("input", in.Name())
		b.sensors[in.Name()] = s
		b.order = append(b.order, s.acc)
		b.syncInput(in)
	}

	for _, out := range reg.Outputs() {
		sw := accessory.NewSwitch(accessory.Info{
			Name:         out.Name(),
			SerialNumber: fmt.Sprintf("output:%02d", out.Pin()),
			Manufacturer: manufacturer,
			Firmware:     cfg.Firmware,
		})
		sw.Id = accessoryID("output", out.Name())
		sw.Switch.On.SetValue(out.IsOn())
		sw.Switch.On.OnValueRemoteUpdate(b.remoteSwitch(out, sw))
		b.switches[out.Name()] = sw
		b.order = append(b.order, sw.A)
	}
	return b
}

// accessoryID keeps accessory ids stable across restarts so pairings survive.
func accessoryID(kind, name string) uint64 {
	h := fnv.New64()
	h.Write([]byte(kind + "_" + name))
	return h.Sum64()
}

func (b *Bridge) remoteSwitch(out *device.Output, sw *accessory.Switch) func(bool) {
	return func(on bool) {
		if err := out.Switch(on); err != nil {
			b.log.Error().Err(err).Str("output", out.Name()).Msg("homekit switch failed")
			sw.Switch.On.SetValue(out.IsOn())
		}
	}
}

// Accessories returns the device accessories in registry order.
func (b *Bridge) Accessories() []*accessory.A {
	return append([]*accessory.A(nil), b.order...)
}

func contactState(on bool) int {
	if on {
		return characteristic.ContactSensorStateContactNotDetected
	}
	return characteristic.ContactSensorStateContactDetected
}

func (b *Bridge) syncInput(in *device.DebouncedInput) {
	s, ok := b.sensors[in.Name()]
	if !ok {
		return
	}
	state := in.State()
	if state == logic.StateUnknown {
		s.fault.SetValue(characteristic.StatusFaultGeneralFault)
		return
	}
	s.fault.SetValue(characteristic.StatusFaultNoFault)
	s.contact.ContactSensorState.SetValue(contactState(state == logic.StateOn))
}

// InputListener returns a listener that mirrors the named input.
func (b *Bridge) InputListener(name string) device.Listener {
	return device.ListenerFunc(func() error {
		in, ok := b.reg.Input(name)
		if !ok {
			return fmt.Errorf("%w: input %s", device.ErrNotFound, name)
		}
		b.syncInput(in)
		return nil
	})
}

// OutputListener returns a listener that mirrors the named output.
func (b *Bridge) OutputListener(name string) device.Listener {
	return device.ListenerFunc(func() error {
		out, ok := b.reg.Output(name)
		if !ok {
			return fmt.Errorf("%w: output %s", device.ErrNotFound, name)
		}
		sw, ok := b.switches[name]
		if !ok {
			return fmt.Errorf("%w: accessory %s", device.ErrNotFound, name)
		}
		sw.Switch.On.SetValue(out.IsOn())
		return nil
	})
}

// Run serves HAP until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	server, err := hap.NewServer(hap.NewFsStore(b.cfg.Dir), b.bridge.A, b.order...)
	if err != nil {
		return fmt.Errorf("create homekit server: %w", err)
	}
	server.Pin = b.cfg.Pin
	if b.cfg.Addr != "" {
		server.Addr = b.cfg.Addr
	}

	b.log.Info().Str("name", b.cfg.Name).Int("accessories", len(b.order)).Msg("homekit bridge starting")
	if err := server.ListenAndServe(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("homekit server: %w", err)
	}
	return nil
}
