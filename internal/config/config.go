package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes bounds the size of a configuration file.
const MaxConfigFileBytes = 64 << 10

// ErrConfigurationMissing means no serial port could be determined.
var ErrConfigurationMissing = errors.New("serial port not configured")

// SerialConfig describes the link to the mount.
type SerialConfig struct {
	Port             string `yaml:"port"`               // e.g., "/dev/ttyUSB0" or "COM3"
	PortFile         string `yaml:"port_file"`          // file whose first line names the port, used when port is empty
	BaudRate         int    `yaml:"baud_rate"`          // default 57600
	DataBits         int    `yaml:"data_bits"`          // default 8
	StopBits         int    `yaml:"stop_bits"`          // 1 or 2
	Parity           string `yaml:"parity"`             // N, E or O
	ReadTimeoutMs    int    `yaml:"read_timeout_ms"`    // how long a drain waits for inbound bytes
	ConnectAttempts  int    `yaml:"connect_attempts"`   // default 5
	ConnectBackoffMs int    `yaml:"connect_backoff_ms"` // default 1000
	Mock             bool   `yaml:"mock"`               // log frames instead of opening a port
}

// AxisConfig selects a joystick axis.
type AxisConfig struct {
	Index  int  `yaml:"index"`
	Invert bool `yaml:"invert"`
}

// DPadConfig names the hat axes of the D-pad. -1 disables one.
type DPadConfig struct {
	XAxis int `yaml:"x_axis"`
	YAxis int `yaml:"y_axis"`
}

// ControllerConfig describes the game controller.
// Unset mapping sections keep the Xbox One layout.
type ControllerConfig struct {
	MaxIndex         int            `yaml:"max_index"`          // indices 0..max_index-1 are scanned
	PollIntervalMs   int            `yaml:"poll_interval_ms"`   // pause between polls
	RescanIntervalMs int            `yaml:"rescan_interval_ms"` // pause between scans when nothing answers
	Deadzone         *int           `yaml:"deadzone,omitempty"` // default 8689
	PanAxis          *AxisConfig    `yaml:"pan_axis,omitempty"`
	TiltAxis         *AxisConfig    `yaml:"tilt_axis,omitempty"`
	DPad             *DPadConfig    `yaml:"dpad,omitempty"`
	Buttons          map[string]int `yaml:"buttons,omitempty"` // button name -> joystick button number
	Mock             bool           `yaml:"mock"`              // replay a resting controller instead of reading a device
}

// BridgeConfig tunes the command loop.
type BridgeConfig struct {
	SendDelayMs int `yaml:"send_delay_ms"` // pause after each velocity frame
}

// IndicatorConfig holds the status LED pins (BCM). 0 = not used.
type IndicatorConfig struct {
	LinkPin     int `yaml:"link_pin"`
	ActivityPin int `yaml:"activity_pin"`
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Serial     SerialConfig     `yaml:"serial"`
	Controller ControllerConfig `yaml:"controller"`
	Bridge     BridgeConfig     `yaml:"bridge"`
	Indicator  IndicatorConfig  `yaml:"indicator"`
	Defaults   DefaultsConfig   `yaml:"defaults"`
}

// ValidateConfigPath accepts only .yaml files located directly in a configs/ directory.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q must not contain '..'", path)
		}
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must end in .yaml", path)
	}
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file larger than %d bytes", MaxConfigFileBytes)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() error {
	s := &c.Serial
	if s.BaudRate == 0 {
		s.BaudRate = 57600
	}
	if s.BaudRate < 0 {
		return fmt.Errorf("serial.baud_rate must be > 0, got %d", s.BaudRate)
	}
	if s.DataBits == 0 {
		s.DataBits = 8
	}
	if s.StopBits == 0 {
		s.StopBits = 1
	}
	if s.Parity == "" {
		s.Parity = "N"
	}
	if s.ReadTimeoutMs <= 0 {
		s.ReadTimeoutMs = 50
	}
	if s.ConnectAttempts <= 0 {
		s.ConnectAttempts = 5
	}
	if s.ConnectBackoffMs <= 0 {
		s.ConnectBackoffMs = 1000
	}

	ctl := &c.Controller
	if ctl.MaxIndex <= 0 {
		ctl.MaxIndex = 4
	}
	if ctl.PollIntervalMs <= 0 {
		ctl.PollIntervalMs = 5
	}
	if ctl.RescanIntervalMs <= 0 {
		ctl.RescanIntervalMs = 1000
	}
	if ctl.Deadzone == nil {
		dz := 8689 // factory right stick deadzone
		ctl.Deadzone = &dz
	}
	if *ctl.Deadzone < 0 || *ctl.Deadzone >= 32767 {
		return fmt.Errorf("controller.deadzone must be between 0 and 32766, got %d", *ctl.Deadzone)
	}
	for _, a := range []*AxisConfig{ctl.PanAxis, ctl.TiltAxis} {
		if a != nil && a.Index < 0 {
			return fmt.Errorf("controller axis index must be >= 0, got %d", a.Index)
		}
	}
	for name, idx := range ctl.Buttons {
		if idx < 0 || idx > 31 {
			return fmt.Errorf("controller.buttons.%s must be between 0 and 31, got %d", name, idx)
		}
	}

	if c.Bridge.SendDelayMs <= 0 {
		c.Bridge.SendDelayMs = 10
	}

	if c.Indicator.LinkPin < 0 || c.Indicator.ActivityPin < 0 {
		return fmt.Errorf("indicator pins must be >= 0")
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	return nil
}

// ResolvePort returns serial.port, or the first line of serial.port_file when
// the port is not set. The error wraps ErrConfigurationMissing.
func (c *Config) ResolvePort() (string, error) {
	if p := strings.TrimSpace(c.Serial.Port); p != "" {
		return p, nil
	}
	if c.Serial.PortFile == "" {
		return "", fmt.Errorf("%w: set serial.port or serial.port_file", ErrConfigurationMissing)
	}
	return ReadPortName(c.Serial.PortFile)
}

// ReadPortName reads the port identifier from the first line of path.
func ReadPortName(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrConfigurationMissing, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", fmt.Errorf("%w: %s: %w", ErrConfigurationMissing, path, err)
		}
		return "", fmt.Errorf("%w: %s is empty", ErrConfigurationMissing, path)
	}
	name := strings.TrimSpace(sc.Text())
	if name == "" {
		return "", fmt.Errorf("%w: %s has an empty first line", ErrConfigurationMissing, path)
	}
	return name, nil
}

// ReadTimeout returns how long a drain waits for inbound bytes.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Serial.ReadTimeoutMs) * time.Millisecond
}

// ConnectBackoff returns the pause between two connection attempts.
func (c *Config) ConnectBackoff() time.Duration {
	return time.Duration(c.Serial.ConnectBackoffMs) * time.Millisecond
}

// PollInterval returns the pause between two controller polls.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Controller.PollIntervalMs) * time.Millisecond
}

// RescanInterval returns the pause between two controller scans.
func (c *Config) RescanInterval() time.Duration {
	return time.Duration(c.Controller.RescanIntervalMs) * time.Millisecond
}

// SendDelay returns the pause after each velocity frame.
func (c *Config) SendDelay() time.Duration {
	return time.Duration(c.Bridge.SendDelayMs) * time.Millisecond
}

// DeadzoneValue returns the stick deadzone.
func (c *Config) DeadzoneValue() int16 {
	if c.Controller.Deadzone == nil {
		return 8689
	}
	return int16(*c.Controller.Deadzone)
}

// IndicatorEnabled reports whether at least one status LED is wired.
func (c *Config) IndicatorEnabled() bool {
	return c.Indicator.LinkPin > 0 || c.Indicator.ActivityPin > 0
}
