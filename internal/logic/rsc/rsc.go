package rsc

import (
	"math"

	"github.com/cjeanneret/HeliGo/internal/debug"
	"github.com/cjeanneret/HeliGo/internal/hw/pwm"
)

// State is the observed spool state of a rotor. It is derived from the
// ramp each time it is asked for, never stored.
type State int

const (
	// Stopped: no demand and the ramp has fully wound down.
	Stopped State = iota
	// Ramping: the output is still moving toward the demand, in either
	// direction.
	Ramping
	// AtSpeed: the output has reached a nonzero demand.
	AtSpeed
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Ramping:
		return "ramping"
	case AtSpeed:
		return "at-speed"
	default:
		return "unknown"
	}
}

// SpeedSensor supplies a measured rotor speed in normalized units
// (0-1000). Wired when the rig has a head speed pickup; without one the
// controller mirrors its own ramp as the best available estimate.
type SpeedSensor interface {
	EstimatedSpeed() int16
}

// Controller ramps one rotor's output toward the desired speed and owns
// the PWM channel that carries it. Real ESCs and heavy rotor heads do
// not take step demands, so every change walks at a fixed per-tick
// increment derived from the configured spool time.
//
// All methods are called from the control loop goroutine only.
type Controller struct {
	out     pwm.Writer
	channel int
	name    string

	loopRateHz  int
	rampSeconds float64
	critical    int16
	increment   int16

	desired int16
	ramp    int16
	sensor  SpeedSensor

	lastState State
}

// Option configures a Controller.
type Option func(*Controller)

// WithName labels the controller in debug output.
func WithName(name string) Option {
	return func(c *Controller) { c.name = name }
}

// WithRampTime sets the spool time for the full 0-1000 range.
func WithRampTime(seconds float64) Option {
	return func(c *Controller) { c.rampSeconds = seconds }
}

// WithCriticalSpeed sets the flight-readiness threshold.
func WithCriticalSpeed(speed int16) Option {
	return func(c *Controller) { c.critical = clampSpeed(speed) }
}

// WithSpeedSensor plugs in a measured speed source.
func WithSpeedSensor(s SpeedSensor) Option {
	return func(c *Controller) { c.sensor = s }
}

// New creates a rotor speed controller writing to the given channel.
// Defaults: 2 s spool time, critical speed 500, no sensor.
func New(out pwm.Writer, channel int, loopRateHz int, opts ...Option) *Controller {
	c := &Controller{
		out:         out,
		channel:     channel,
		name:        "rotor",
		loopRateHz:  loopRateHz,
		rampSeconds: 2,
		critical:    500,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.RecalcScalers()
	return c
}

// RecalcScalers rederives the per-tick ramp increment from the spool
// time and loop rate. Cheap and idempotent, meant for a low-rate
// housekeeping cadence.
//
// increment = 1000 / (ramp_seconds × loop_rate), floor 1 so long spool
// times at low loop rates still make progress. A zero spool time means
// the full range in a single tick.
func (c *Controller) RecalcScalers() {
	if c.rampSeconds <= 0 || c.loopRateHz <= 0 {
		c.increment = 1000
		return
	}
	inc := int16(math.Round(1000 / (c.rampSeconds * float64(c.loopRateHz))))
	if inc < 1 {
		inc = 1
	}
	c.increment = inc
}

// SetDesiredSpeed sets the spool target, clamped to 0-1000. The output
// only ever approaches it through the ramp.
func (c *Controller) SetDesiredSpeed(v int16) {
	c.desired = clampSpeed(v)
}

// DesiredSpeed returns the current spool target.
func (c *Controller) DesiredSpeed() int16 {
	return c.desired
}

// SetRampTime changes the spool time for the full 0-1000 range.
func (c *Controller) SetRampTime(seconds float64) {
	c.rampSeconds = seconds
	c.RecalcScalers()
}

// SetCriticalSpeed changes the flight-readiness threshold.
func (c *Controller) SetCriticalSpeed(speed int16) {
	c.critical = clampSpeed(speed)
}

// CriticalSpeed returns the flight-readiness threshold.
func (c *Controller) CriticalSpeed() int16 {
	return c.critical
}

// EstimatedSpeed returns the measured speed when a sensor is wired,
// otherwise the ramp value.
func (c *Controller) EstimatedSpeed() int16 {
	if c.sensor != nil {
		return clampSpeed(c.sensor.EstimatedSpeed())
	}
	return c.ramp
}

// SpeedAboveCritical reports whether the estimated speed is strictly
// above the critical threshold. Exactly at threshold is not above it.
func (c *Controller) SpeedAboveCritical() bool {
	return c.EstimatedSpeed() > c.critical
}

// State derives the spool state from the ramp and target.
func (c *Controller) State() State {
	if c.ramp == c.desired {
		if c.desired == 0 {
			return Stopped
		}
		return AtSpeed
	}
	return Ramping
}

// Update advances the ramp one tick toward the desired speed and
// writes the result to the owned channel. The last increment lands
// exactly on the target, never past it.
func (c *Controller) Update() {
	if c.ramp < c.desired {
		c.ramp += c.increment
		if c.ramp > c.desired {
			c.ramp = c.desired
		}
	} else if c.ramp > c.desired {
		c.ramp -= c.increment
		if c.ramp < c.desired {
			c.ramp = c.desired
		}
	}

	c.out.WriteChannel(c.channel, throttlePulse(c.ramp))

	if s := c.State(); s != c.lastState {
		debug.Governor(c.name, s.String(), c.desired, c.ramp)
		c.lastState = s
	}
}

// Stop drops the target and the ramp to zero immediately and forces the
// output to minimum. This is the kill path; normal shutdown goes
// through SetDesiredSpeed(0) and lets the ramp wind down.
func (c *Controller) Stop() {
	c.desired = 0
	c.ramp = 0
	c.out.WriteChannel(c.channel, throttlePulse(0))
	if c.lastState != Stopped {
		debug.Governor(c.name, "stopped (forced)", 0, 0)
		c.lastState = Stopped
	}
}

// Channel returns the PWM channel this controller owns.
func (c *Controller) Channel() int {
	return c.channel
}

// throttlePulse maps a 0-1000 speed to the 1000-2000 µs ESC range.
func throttlePulse(v int16) uint16 {
	return uint16(1000 + int(v))
}

func clampSpeed(v int16) int16 {
	if v > 1000 {
		return 1000
	}
	if v < 0 {
		return 0
	}
	return v
}
