package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/cjeanneret/HeliGo/internal/config"
	"github.com/cjeanneret/HeliGo/internal/debug"
	"github.com/cjeanneret/HeliGo/internal/hw/pwm"
	"github.com/cjeanneret/HeliGo/internal/hw/tacho"
	"github.com/cjeanneret/HeliGo/internal/logic/flight"
	"github.com/cjeanneret/HeliGo/internal/logic/heli"
	"github.com/cjeanneret/HeliGo/internal/logic/swash"
	"github.com/cjeanneret/HeliGo/internal/web"
)

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start the bench console on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	criticalSpeed := flag.Int("critical_speed", 0, "override rotor flight-readiness speed (1-1000)")
	rampSeconds := flag.Float64("ramp_seconds", 0, "override rotor spool time in seconds (max 300)")
	gyroGain := flag.Int("gyro_gain", 0, "override external gyro gain (1-1000)")
	flag.Parse()

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

	// Validate CLI overrides (only non-zero values are applied; zero means "use config default")
	if err := validateCLIOverrides(*criticalSpeed, *rampSeconds, *gyroGain); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}
	applyOverrides(cfg, *criticalSpeed, *rampSeconds, *gyroGain)

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)

	// Translate the file into the mixing core's parameters before any
	// hardware opens; enum fallbacks get logged here.
	hcfg := motorsConfigFromFile(cfg)

	// Initialize PWM driver
	debug.Value("Mock PWM", cfg.Defaults.MockPWM)
	debug.Step(1, "Initializing PWM driver")
	driver, err := pwm.NewDriver(cfg.Defaults.MockPWM, cfg.Pins)
	if err != nil {
		log.Fatalf("init PWM failed: %v", err)
	}
	defer func() {
		if err := driver.Close(); err != nil {
			log.Printf("closing PWM driver failed: %v", err)
		}
	}()

	// Head speed pickup, only meaningful on real hardware. The counter
	// must stop before the deferred driver Close releases rpio.
	if cfg.HasTach() && !cfg.Defaults.MockPWM {
		debug.Step(2, "Starting head speed pickup")
		counter := tacho.NewRPiCounter(cfg.Rotor.Tach.Pin)
		defer counter.Stop()
		hcfg.MainSpeedSensor = tacho.NewEstimator(counter, cfg.Rotor.Tach.PulsesPerRev, cfg.Rotor.Tach.FullScaleRPM)
		debug.Value("Tach pulses/rev", cfg.Rotor.Tach.PulsesPerRev)
		debug.Value("Tach full-scale RPM", cfg.Rotor.Tach.FullScaleRPM)
	}

	// Build the mixing core
	debug.Step(3, "Building mixing core")
	motors := heli.NewMotors(driver, hcfg)
	debug.Value("Swash type", hcfg.Swash.Type)
	debug.Value("Tail type", hcfg.Tail)
	debug.Value("Governor", hcfg.Governor)
	debug.Value("Motor mask", fmt.Sprintf("0x%04X", motors.MotorMask()))

	// Every channel the unit claims must reach a real pin, or a control
	// surface would silently go dead.
	if !cfg.Defaults.MockPWM {
		if missing := missingPins(motors.MotorMask(), cfg.Pins); len(missing) > 0 {
			log.Fatalf("pins: claimed channel(s) %v have no BCM pin mapped", missing)
		}
	}

	debug.Step(4, "Starting flight loop")
	loop := flight.New(motors, cfg.LoopRateHz())
	debug.Value("Loop rate", fmt.Sprintf("%d Hz", cfg.LoopRateHz()))

	if port := webPort.port(); port > 0 {
		webAddr := fmt.Sprintf(":%d", port)
		broadcaster := web.NewBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))

		srv := web.NewServer(webAddr, loop, broadcaster, webParams(cfg, hcfg))

		loopErr := make(chan error, 1)
		go func() { loopErr <- loop.Run(ctx) }()

		debug.Step(5, "Starting bench console")
		if err := srv.Run(ctx); err != nil {
			log.Fatalf("web server: %v", err)
		}
		if err := <-loopErr; err != nil {
			log.Fatalf("flight loop: %v", err)
		}
		return
	}

	{
		// Headless: tick until interrupted, outputs held at their
		// disarmed neutrals. Good for checking wiring and the debug
		// stream without the console.
		if err := loop.Run(ctx); err != nil {
			log.Fatalf("flight loop: %v", err)
		}
	}
}

// motorsConfigFromFile translates the YAML layer into the mixing core's
// parameter snapshot. Unrecognised enum strings degrade to their safe
// default with a logged warning; a typo in a parameter file must never
// keep the head from moving.
func motorsConfigFromFile(cfg *config.Config) heli.Config {
	swashType, err := swash.ParseType(cfg.Swash.Type)
	if err != nil {
		log.Printf("config: %v", err)
	}
	tailType, err := heli.ParseTailType(cfg.Tail.Type)
	if err != nil {
		log.Printf("config: %v", err)
	}
	governor, err := heli.ParseGovernorMode(cfg.Rotor.Governor)
	if err != nil {
		log.Printf("config: %v", err)
	}

	return heli.Config{
		Swash: swash.Geometry{
			Type:          swashType,
			Servo1PosDeg:  cfg.Swash.Servo1PosDeg,
			Servo2PosDeg:  cfg.Swash.Servo2PosDeg,
			Servo3PosDeg:  cfg.Swash.Servo3PosDeg,
			PhaseAngleDeg: cfg.Swash.PhaseAngleDeg,
		},
		Tail:                 tailType,
		ExtGyroGain:          int16(cfg.Tail.ExtGyroGainUnits),
		DirectDriveTailSpeed: int16(cfg.Tail.DirectDriveSpeed),
		CollectiveYawScale:   cfg.CollectiveYawScale,
		Flybar:               cfg.Flybar,
		Governor:             governor,
		CriticalSpeed:        int16(cfg.Rotor.CriticalSpeed),
		RampSeconds:          cfg.Rotor.RampSeconds,
		LoopRateHz:           cfg.LoopRateHz(),
		Channels:             channelsFromConfig(cfg.Channels),
	}
}

// channelsFromConfig maps the optional YAML channel block onto the
// core's layout, defaulting to the conventional one.
func channelsFromConfig(c *config.ChannelConfig) heli.Channels {
	if c == nil {
		return heli.DefaultChannels()
	}
	return heli.Channels{
		Swash1:   c.Swash1,
		Swash2:   c.Swash2,
		Swash3:   c.Swash3,
		Tail:     c.Tail,
		Aux:      c.Aux,
		RotorESC: c.RotorESC,
	}
}

// missingPins returns the claimed channels (set bits in mask) that have
// no BCM pin mapping.
func missingPins(mask uint16, pins map[int]int) []int {
	var missing []int
	for ch := 0; ch < 16; ch++ {
		if mask&(1<<ch) == 0 {
			continue
		}
		if _, ok := pins[ch]; !ok {
			missing = append(missing, ch)
		}
	}
	return missing
}

// webParams builds the read-only configuration echo for the console
// from the effective values, after enum fallbacks and CLI overrides.
func webParams(cfg *config.Config, hcfg heli.Config) web.Params {
	return web.Params{
		SwashType:          hcfg.Swash.Type.String(),
		Servo1PosDeg:       cfg.Swash.Servo1PosDeg,
		Servo2PosDeg:       cfg.Swash.Servo2PosDeg,
		Servo3PosDeg:       cfg.Swash.Servo3PosDeg,
		PhaseAngleDeg:      cfg.Swash.PhaseAngleDeg,
		TailType:           hcfg.Tail.String(),
		ExtGyroGain:        cfg.Tail.ExtGyroGainUnits,
		DirectDriveSpeed:   cfg.Tail.DirectDriveSpeed,
		CollectiveYawScale: cfg.CollectiveYawScale,
		Flybar:             cfg.Flybar,
		GovernorMode:       hcfg.Governor.String(),
		CriticalSpeed:      cfg.Rotor.CriticalSpeed,
		RampSeconds:        cfg.Rotor.RampSeconds,
		LoopRateHz:         cfg.LoopRateHz(),
		MockPWM:            cfg.Defaults.MockPWM,
	}
}

// validateCLIOverrides checks that non-zero CLI overrides are within valid ranges.
// Zero values are ignored (they mean "use config default").
func validateCLIOverrides(critical int, ramp float64, gain int) error {
	if critical != 0 {
		if critical < 1 || critical > 1000 {
			return fmt.Errorf("critical_speed must be between 1 and 1000, got %d", critical)
		}
	}
	if ramp != 0 {
		if math.IsNaN(ramp) || math.IsInf(ramp, 0) || ramp <= 0 || ramp > 300 {
			return fmt.Errorf("ramp_seconds must be between 0 and 300, got %g", ramp)
		}
	}
	if gain != 0 {
		if gain < 1 || gain > 1000 {
			return fmt.Errorf("gyro_gain must be between 1 and 1000, got %d", gain)
		}
	}
	return nil
}

// applyOverrides mutates cfg with CLI overrides. Only non-zero values are applied.
func applyOverrides(cfg *config.Config, critical int, ramp float64, gain int) {
	if critical > 0 {
		cfg.Rotor.CriticalSpeed = critical
	}
	if ramp > 0 {
		cfg.Rotor.RampSeconds = ramp
	}
	if gain > 0 {
		cfg.Tail.ExtGyroGainUnits = gain
	}
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
