package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes caps the accepted config file size. Parameter files
// are a few hundred bytes; anything bigger is a mistake.
const MaxConfigFileBytes = 1 << 20

// ValidateConfigPath checks a user-supplied config path before it is
// opened: it must end in .yaml and live in a configs/ directory, which
// also rejects traversal attempts once the path is resolved.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	if filepath.Ext(path) != ".yaml" {
		return fmt.Errorf("config file must have a .yaml extension: %s", path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config file must live in a configs/ directory: %s", path)
	}
	return nil
}

// SwashConfig describes the swashplate head geometry.
// Servo positions are azimuth angles in degrees around the main shaft,
// measured from the nose, positive clockwise seen from above.
type SwashConfig struct {
	Type          string `yaml:"type"`             // "ccpm" (three-point electronic mixing) or "h1" (mechanical mixing)
	Servo1PosDeg  int    `yaml:"servo1_pos_deg"`   // e.g., -60
	Servo2PosDeg  int    `yaml:"servo2_pos_deg"`   // e.g., 60
	Servo3PosDeg  int    `yaml:"servo3_pos_deg"`   // e.g., 180
	PhaseAngleDeg int    `yaml:"phase_angle_deg"`  // rotates the whole cyclic response (-90..90)
}

// TailConfig selects the tail rotor drive and its parameters.
type TailConfig struct {
	Type             string `yaml:"type"`               // "servo", "servo_extgyro", "dd_varpitch", "dd_fixedpitch"
	ExtGyroGainUnits int    `yaml:"ext_gyro_gain"`      // gain sent to the external gyro aux channel (0-1000)
	DirectDriveSpeed int    `yaml:"dd_tail_speed"`      // held speed for a variable-pitch direct-drive tail (0-1000)
}

// TachConfig is optional: a pulse tachometer on the main rotor head.
// When present the governor uses measured speed instead of mirroring
// its own ramp.
type TachConfig struct {
	Pin          int `yaml:"pin"`            // BCM pin wired to the pickup (hall/optical)
	PulsesPerRev int `yaml:"pulses_per_rev"` // magnets/marks per rotor revolution
	FullScaleRPM int `yaml:"full_scale_rpm"` // head speed that maps to 1000 units
}

// RotorConfig configures the main rotor speed controller.
type RotorConfig struct {
	Governor      string      `yaml:"governor"`       // "setpoint" (ramped ESC control) or "none" (external throttle)
	CriticalSpeed int         `yaml:"critical_speed"` // flight-readiness threshold (0-1000)
	RampSeconds   float64     `yaml:"ramp_seconds"`   // full-range spool time, 0 to 1000 units
	Tach          *TachConfig `yaml:"tach,omitempty"` // optional head speed sensor
}

// ChannelConfig maps logical outputs to PWM channel numbers (0-15).
type ChannelConfig struct {
	Swash1   int `yaml:"swash1"`
	Swash2   int `yaml:"swash2"`
	Swash3   int `yaml:"swash3"`
	Tail     int `yaml:"tail"`
	Aux      int `yaml:"aux"`      // external gyro gain, or direct-drive tail ESC
	RotorESC int `yaml:"rotor_esc"`
}

// DefaultsConfig contains generic runtime parameters.
type DefaultsConfig struct {
	LoopRateHz int  `yaml:"loop_rate_hz"` // control loop frequency (50-400)
	DebugLevel int  `yaml:"debug_level"`  // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockPWM    bool `yaml:"mock_pwm"`     // use mock PWM output (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Swash              SwashConfig    `yaml:"swash"`
	Tail               TailConfig     `yaml:"tail"`
	Rotor              RotorConfig    `yaml:"rotor"`
	CollectiveYawScale float64        `yaml:"collective_yaw_scale"` // tail feed-forward per unit of collective (-10..10)
	Flybar             bool           `yaml:"flybar"`               // mechanical flybar head (no electronic stabilization needed)
	Channels           *ChannelConfig `yaml:"channels,omitempty"`   // optional, defaults to 0,1,2,3,6,7
	Pins               map[int]int    `yaml:"pins,omitempty"`       // channel -> BCM pin, required per claimed channel on real hardware
	Defaults           DefaultsConfig `yaml:"defaults"`
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), MaxConfigFileBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	// Basic validation
	if cfg.Swash.Type == "" {
		cfg.Swash.Type = "ccpm"
	}
	if cfg.Swash.Servo1PosDeg == 0 && cfg.Swash.Servo2PosDeg == 0 && cfg.Swash.Servo3PosDeg == 0 {
		// All-zero geometry is degenerate; use the standard 120° CCPM head.
		cfg.Swash.Servo1PosDeg = -60
		cfg.Swash.Servo2PosDeg = 60
		cfg.Swash.Servo3PosDeg = 180
	}
	if cfg.Swash.PhaseAngleDeg < -90 || cfg.Swash.PhaseAngleDeg > 90 {
		return nil, fmt.Errorf("swash.phase_angle_deg must be between -90 and 90, got %d", cfg.Swash.PhaseAngleDeg)
	}

	if cfg.Tail.Type == "" {
		cfg.Tail.Type = "servo"
	}
	if cfg.Tail.ExtGyroGainUnits < 0 || cfg.Tail.ExtGyroGainUnits > 1000 {
		return nil, fmt.Errorf("tail.ext_gyro_gain must be between 0 and 1000, got %d", cfg.Tail.ExtGyroGainUnits)
	}
	if cfg.Tail.ExtGyroGainUnits == 0 {
		cfg.Tail.ExtGyroGainUnits = 350
	}
	if cfg.Tail.DirectDriveSpeed < 0 || cfg.Tail.DirectDriveSpeed > 1000 {
		return nil, fmt.Errorf("tail.dd_tail_speed must be between 0 and 1000, got %d", cfg.Tail.DirectDriveSpeed)
	}
	if cfg.Tail.DirectDriveSpeed == 0 {
		cfg.Tail.DirectDriveSpeed = 500
	}

	if cfg.Rotor.Governor == "" {
		cfg.Rotor.Governor = "setpoint"
	}
	if cfg.Rotor.CriticalSpeed < 0 || cfg.Rotor.CriticalSpeed > 1000 {
		return nil, fmt.Errorf("rotor.critical_speed must be between 0 and 1000, got %d", cfg.Rotor.CriticalSpeed)
	}
	if cfg.Rotor.CriticalSpeed == 0 {
		cfg.Rotor.CriticalSpeed = 500
	}
	if cfg.Rotor.RampSeconds < 0 {
		return nil, fmt.Errorf("rotor.ramp_seconds must be >= 0, got %.2f", cfg.Rotor.RampSeconds)
	}
	if cfg.Rotor.RampSeconds == 0 {
		cfg.Rotor.RampSeconds = 2
	}
	if cfg.Rotor.Tach != nil {
		if cfg.Rotor.Tach.Pin < 2 || cfg.Rotor.Tach.Pin > 27 {
			return nil, fmt.Errorf("rotor.tach.pin must be a BCM pin between 2 and 27, got %d", cfg.Rotor.Tach.Pin)
		}
		if cfg.Rotor.Tach.PulsesPerRev <= 0 {
			cfg.Rotor.Tach.PulsesPerRev = 1
		}
		if cfg.Rotor.Tach.FullScaleRPM <= 0 {
			return nil, fmt.Errorf("rotor.tach.full_scale_rpm must be > 0, got %d", cfg.Rotor.Tach.FullScaleRPM)
		}
	}

	if cfg.CollectiveYawScale < -10 || cfg.CollectiveYawScale > 10 {
		return nil, fmt.Errorf("collective_yaw_scale must be between -10 and 10, got %.2f", cfg.CollectiveYawScale)
	}

	if cfg.Channels == nil {
		cfg.Channels = &ChannelConfig{Swash1: 0, Swash2: 1, Swash3: 2, Tail: 3, Aux: 6, RotorESC: 7}
	}
	if err := cfg.Channels.validate(); err != nil {
		return nil, err
	}

	for ch, pin := range cfg.Pins {
		if ch < 0 || ch > 15 {
			return nil, fmt.Errorf("pins: channel %d out of range 0-15", ch)
		}
		if pin < 2 || pin > 27 {
			return nil, fmt.Errorf("pins: channel %d mapped to invalid BCM pin %d", ch, pin)
		}
	}

	if cfg.Defaults.LoopRateHz == 0 {
		cfg.Defaults.LoopRateHz = 100
	}
	if cfg.Defaults.LoopRateHz < 50 || cfg.Defaults.LoopRateHz > 400 {
		return nil, fmt.Errorf("defaults.loop_rate_hz must be between 50 and 400, got %d", cfg.Defaults.LoopRateHz)
	}
	if cfg.Defaults.DebugLevel < 0 || cfg.Defaults.DebugLevel > 4 {
		return nil, fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", cfg.Defaults.DebugLevel)
	}

	return &cfg, nil
}

func (c *ChannelConfig) validate() error {
	named := []struct {
		name string
		ch   int
	}{
		{"swash1", c.Swash1},
		{"swash2", c.Swash2},
		{"swash3", c.Swash3},
		{"tail", c.Tail},
		{"aux", c.Aux},
		{"rotor_esc", c.RotorESC},
	}
	seen := make(map[int]string, len(named))
	for _, n := range named {
		if n.ch < 0 || n.ch > 15 {
			return fmt.Errorf("channels.%s must be between 0 and 15, got %d", n.name, n.ch)
		}
		if prev, dup := seen[n.ch]; dup {
			return fmt.Errorf("channels.%s and channels.%s both use channel %d", prev, n.name, n.ch)
		}
		seen[n.ch] = n.name
	}
	return nil
}

// TickPeriod returns the duration of one control loop tick.
func (c *Config) TickPeriod() time.Duration {
	return time.Second / time.Duration(c.Defaults.LoopRateHz)
}

// LoopRateHz returns the control loop frequency.
func (c *Config) LoopRateHz() int {
	return c.Defaults.LoopRateHz
}

// RampSeconds returns the rotor spool time for the full 0-1000 range.
func (c *Config) RampSeconds() float64 {
	return c.Rotor.RampSeconds
}

// HasTach reports whether a head speed sensor is configured.
func (c *Config) HasTach() bool {
	return c.Rotor.Tach != nil
}
