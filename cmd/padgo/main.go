package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"syscall"

	"github.com/cjeanneret/PadGo/internal/config"
	"github.com/cjeanneret/PadGo/internal/debug"
	"github.com/cjeanneret/PadGo/internal/hw/gamepad"
	"github.com/cjeanneret/PadGo/internal/hw/gpio"
	"github.com/cjeanneret/PadGo/internal/hw/indicator"
	"github.com/cjeanneret/PadGo/internal/hw/serialport"
	"github.com/cjeanneret/PadGo/internal/logic/bridge"
	"github.com/cjeanneret/PadGo/internal/protocol"
	"github.com/cjeanneret/PadGo/internal/web"
)

// mockPortName stands in for the port when serial.mock is set and none is configured.
const mockPortName = "mock"

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	portName := flag.String("port", "", "override serial port (e.g. /dev/ttyUSB0, COM3)")
	deadzone := flag.Int("deadzone", -1, "override stick deadzone (0-32766)")
	debugLevel := flag.Int("debug", -1, "override debug level (0-4)")
	listPorts := flag.Bool("list-ports", false, "list serial ports and exit")
	flag.Parse()

	if *listPorts {
		if err := printPorts(os.Stdout, serialport.ListPorts); err != nil {
			log.Fatalf("list ports failed: %v", err)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid config path: %v", err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	overrides := cliOverrides{Port: *portName, Deadzone: *deadzone, DebugLevel: *debugLevel}
	if err := validateCLIOverrides(overrides); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}
	applyOverrides(cfg, overrides)

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)

	if err := checkCodes(); err != nil {
		log.Fatalf("invalid control codes: %v", err)
	}

	// Serial link
	debug.Step(1, "Connecting to the mount")
	port, err := resolvePort(cfg)
	if err != nil {
		log.Fatalf("resolve serial port failed: %v", err)
	}
	opts, err := serialOptions(cfg)
	if err != nil {
		log.Fatalf("invalid serial settings: %v", err)
	}
	debug.PrintStruct("Serial options", opts)
	opener := serialport.Opener(serialport.OpenSerial)
	if cfg.Serial.Mock {
		opener = serialport.OpenLogPort
	}
	link, err := serialport.Connect(ctx, opener, port, opts, serialport.Retry{
		Attempts: cfg.Serial.ConnectAttempts,
		Backoff:  cfg.ConnectBackoff(),
	})
	if err != nil {
		log.Fatalf("connect failed: %v", err)
	}
	defer link.Close()
	debug.Value("Serial port", link.Path())

	// Controller
	debug.Step(2, "Initializing controller source")
	source, err := newSource(cfg)
	if err != nil {
		log.Fatalf("init controller failed: %v", err)
	}
	defer source.Close()

	// Status LEDs
	debug.Step(3, "Initializing status LEDs")
	ind, closeInd, err := newIndicator(cfg, gpio.NewDriver)
	if err != nil {
		log.Fatalf("init indicator failed: %v", err)
	}
	defer closeInd()

	b := bridge.New(link, source, bridgeConfig(cfg), ind)

	if p := webPort.port(); p > 0 {
		webAddr := fmt.Sprintf(":%d", p)
		broadcaster := web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
		b.SetInboundSink(broadcaster.BroadcastInbound)

		srv := web.NewServer(webAddr, broadcaster, b)
		go func() {
			if err := srv.Run(ctx); err != nil {
				log.Printf("web server: %v", err)
			}
		}()
	}

	debug.Section("Bridge running")
	if err := b.Run(ctx); err != nil {
		log.Fatalf("bridge stopped: %v", err)
	}
	debug.Info("Bye")
}

// cliOverrides holds flag values that take precedence over the config file.
// Empty or negative values mean "use config".
type cliOverrides struct {
	Port       string
	Deadzone   int
	DebugLevel int
}

// validateCLIOverrides checks that set overrides are within valid ranges.
func validateCLIOverrides(o cliOverrides) error {
	if o.Deadzone >= 32767 || o.Deadzone < -1 {
		return fmt.Errorf("deadzone must be between 0 and 32766, got %d", o.Deadzone)
	}
	if o.DebugLevel > 4 || o.DebugLevel < -1 {
		return fmt.Errorf("debug level must be between 0 and 4, got %d", o.DebugLevel)
	}
	return nil
}

// applyOverrides mutates cfg with the overrides that are set.
func applyOverrides(cfg *config.Config, o cliOverrides) {
	if o.Port != "" {
		cfg.Serial.Port = o.Port
	}
	if o.Deadzone >= 0 {
		dz := o.Deadzone
		cfg.Controller.Deadzone = &dz
	}
	if o.DebugLevel >= 0 {
		cfg.Defaults.DebugLevel = o.DebugLevel
	}
}

// checkCodes verifies that the mount can split both code sets out of the byte stream.
func checkCodes() error {
	if err := protocol.CheckPrefixFree(protocol.ButtonCodes()); err != nil {
		return fmt.Errorf("button codes: %w", err)
	}
	named := make([]string, 0, len(protocol.ControlCodes))
	for _, code := range protocol.ControlCodes {
		named = append(named, code)
	}
	sort.Strings(named)
	if err := protocol.CheckPrefixFree(named); err != nil {
		return fmt.Errorf("named codes: %w", err)
	}
	return nil
}

// resolvePort returns the configured port. In mock mode a missing port is not fatal.
func resolvePort(cfg *config.Config) (string, error) {
	port, err := cfg.ResolvePort()
	if err != nil && cfg.Serial.Mock {
		debug.Info("No serial port configured, using %q", mockPortName)
		return mockPortName, nil
	}
	return port, err
}

func serialOptions(cfg *config.Config) (serialport.Options, error) {
	return serialport.Options{
		BaudRate:    cfg.Serial.BaudRate,
		DataBits:    cfg.Serial.DataBits,
		StopBits:    cfg.Serial.StopBits,
		Parity:      cfg.Serial.Parity,
		ReadTimeout: cfg.ReadTimeout(),
	}.Normalize()
}

func bridgeConfig(cfg *config.Config) bridge.Config {
	return bridge.Config{
		Deadzone:       cfg.DeadzoneValue(),
		SendDelay:      cfg.SendDelay(),
		PollInterval:   cfg.PollInterval(),
		MaxIndex:       cfg.Controller.MaxIndex,
		RescanInterval: cfg.RescanInterval(),
	}
}

// newMapping applies the controller mapping sections on top of the default layout.
func newMapping(cfg *config.Config) (gamepad.Mapping, error) {
	m := gamepad.DefaultMapping()
	ctl := cfg.Controller
	if ctl.PanAxis != nil {
		m.Pan = gamepad.AxisMapping{Index: ctl.PanAxis.Index, Invert: ctl.PanAxis.Invert}
	}
	if ctl.TiltAxis != nil {
		m.Tilt = gamepad.AxisMapping{Index: ctl.TiltAxis.Index, Invert: ctl.TiltAxis.Invert}
	}
	if ctl.DPad != nil {
		m.DPadX = ctl.DPad.XAxis
		m.DPadY = ctl.DPad.YAxis
	}
	if len(ctl.Buttons) > 0 {
		m.Buttons = nil
		names := make([]string, 0, len(ctl.Buttons))
		for name := range ctl.Buttons {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if err := m.SetButton(name, ctl.Buttons[name]); err != nil {
				return m, fmt.Errorf("controller.buttons: %w", err)
			}
		}
	}
	return m, nil
}

// newSource selects the controller source based on configuration.
func newSource(cfg *config.Config) (gamepad.Source, error) {
	if cfg.Controller.Mock {
		debug.Info("Using MOCK controller (development mode)")
		return gamepad.NewScriptedSource(gamepad.Snapshot{Seq: 1}), nil
	}
	m, err := newMapping(cfg)
	if err != nil {
		return nil, err
	}
	debug.PrintStruct("Controller mapping", m)
	return gamepad.NewJoystickSource(m), nil
}

// newIndicator builds the status LEDs. It returns a nil Indicator when no pin is set.
func newIndicator(cfg *config.Config, newDriver func(mock bool) (gpio.Driver, error)) (bridge.Indicator, func(), error) {
	if !cfg.IndicatorEnabled() {
		return nil, func() {}, nil
	}

	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	drv, err := newDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		return nil, nil, err
	}
	leds, err := indicator.NewLEDs(drv, pinOrDisabled(cfg.Indicator.LinkPin), pinOrDisabled(cfg.Indicator.ActivityPin))
	if err != nil {
		_ = drv.Close()
		return nil, nil, err
	}
	cleanup := func() {
		if err := leds.Off(); err != nil {
			log.Printf("switching LEDs off failed: %v", err)
		}
		if err := drv.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}
	return leds, cleanup, nil
}

func pinOrDisabled(pin int) int {
	if pin == 0 {
		return indicator.Disabled
	}
	return pin
}

// printPorts writes one line per serial port found by list.
func printPorts(w io.Writer, list func() ([]serialport.PortInfo, error)) error {
	ports, err := list()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Fprintln(w, "no serial ports found")
		return nil
	}
	for _, p := range ports {
		fmt.Fprintln(w, p.String())
	}
	return nil
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
