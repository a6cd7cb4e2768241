// Command gpio-manager polls GPIO inputs, drives GPIO outputs and publishes
// their state over MQTT, HTTP, HomeKit and a tool server.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweeney/gpio-manager/internal/config"
	"github.com/sweeney/gpio-manager/internal/device"
	"github.com/sweeney/gpio-manager/internal/gpio"
	applog "github.com/sweeney/gpio-manager/internal/log"
	"github.com/sweeney/gpio-manager/internal/logic"
	"github.com/sweeney/gpio-manager/internal/mqtt"
)

var version = "dev"

// openChip is replaced in tests.
var openChip = func(name string) (gpio.Chip, error) {
	return gpio.NewRealChip(name)
}

type flags struct {
	configPath string
	pins       []string
	printState bool
	logLevel   string
	httpAddr   string
	broker     string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:          "gpio-manager",
		Short:        "Debounce GPIO inputs, drive outputs and publish their state",
		Version:      version,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			if err := applog.Configure(applog.Config{Level: cfg.Log.Level}); err != nil {
				return err
			}
			return run(cmd, cfg, f.printState)
		},
	}

	bindFlags(cmd, &f)
	return cmd
}

func bindFlags(cmd *cobra.Command, f *flags) {
	fl := cmd.Flags()
	fl.StringVarP(&f.configPath, "config", "c", "", "YAML configuration file")
	fl.StringArrayVar(&f.pins, "pin", nil, `add a pin as kind:name:pin[:reverted], e.g. "in:door:17" (repeatable)`)
	fl.BoolVar(&f.printState, "print-state", false, "read every input once, print its state and exit")
	fl.StringVar(&f.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	fl.StringVar(&f.httpAddr, "http", config.DefaultHTTPAddr, "HTTP status address (empty to disable)")
	fl.StringVar(&f.broker, "broker", "", "MQTT broker URL, e.g. tcp://localhost:1883 (empty to disable)")
}

// loadConfig reads the config file, if any, and applies flags on top of it.
// Flags only override the file when they were given explicitly.
func loadConfig(cmd *cobra.Command, f flags) (config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		var err error
		if cfg, err = config.Load(f.configPath); err != nil {
			return config.Config{}, err
		}
	}
	for _, spec := range f.pins {
		if err := cfg.AddPinSpec(spec); err != nil {
			return config.Config{}, err
		}
	}

	changed := cmd.Flags().Changed
	if changed("http") {
		cfg.HTTP.Addr = f.httpAddr
	}
	if changed("broker") {
		cfg.MQTT.Broker = f.broker
	}
	if changed("log-level") {
		cfg.Log.Level = f.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	if len(cfg.Inputs)+len(cfg.Outputs) == 0 {
		return config.Config{}, fmt.Errorf("%w: no pins configured (use --config or --pin)", config.ErrInvalid)
	}
	return cfg, nil
}

func run(cmd *cobra.Command, cfg config.Config, printOnly bool) error {
	log := applog.WithComponent("main")

	chip, err := openChip(cfg.Chip)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	hw, err := openHardware(cfg, chip)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := hw.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("release gpio")
		}
	}()

	if printOnly {
		return printState(cmd.OutOrStdout(), hw.reg)
	}

	d := newDaemon(cfg, hw.reg, version)
	if cfg.MQTT.Broker != "" {
		pub, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:             cfg.MQTT.Broker,
			ClientID:           cfg.MQTT.ClientID,
			Prefix:             cfg.MQTT.TopicPrefix,
			OnCommand:          mqtt.NewCommander(hw.reg, cfg.MQTT.TopicPrefix).Handle,
			OnConnectionChange: d.tracker.SetMQTTConnected,
		})
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer pub.Close()
		d.pub = pub
	}
	d.wire()

	var heartbeat <-chan time.Time
	if cfg.Heartbeat > 0 {
		t := time.NewTicker(cfg.Heartbeat)
		defer t.Stop()
		heartbeat = t.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	log.Info().
		Int("inputs", len(cfg.Inputs)).
		Int("outputs", len(cfg.Outputs)).
		Dur("poll", cfg.PollInterval).
		Dur("heartbeat", cfg.Heartbeat).
		Str("broker", cfg.MQTT.Broker).
		Str("version", version).
		Msg("started")

	return d.run(cmd.Context(), sigCh, heartbeat)
}

// printState reads every input once and prints one line per device.
func printState(w io.Writer, reg *device.Registry) error {
	var errs []error
	for _, in := range reg.Inputs() {
		if err := in.Check(); err != nil {
			errs = append(errs, err)
		}
		fmt.Fprintf(w, "%s: %s\n", in.Name(), in.State())
	}
	for _, out := range reg.Outputs() {
		fmt.Fprintf(w, "%s: %s (output)\n", out.Name(), logic.StateOf(out.IsOn()))
	}
	return errors.Join(errs...)
}
