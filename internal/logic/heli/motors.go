package heli

import (
	"fmt"
	"math"

	"github.com/cjeanneret/HeliGo/internal/debug"
	"github.com/cjeanneret/HeliGo/internal/hw/pwm"
	"github.com/cjeanneret/HeliGo/internal/logic/rsc"
	"github.com/cjeanneret/HeliGo/internal/logic/swash"
)

// GovernorMode selects who runs the main rotor ESC.
type GovernorMode int

const (
	// GovernorSetpoint: this unit ramps the ESC toward the commanded
	// speed and claims the rotor ESC channel.
	GovernorSetpoint GovernorMode = iota
	// GovernorNone: throttle is managed outside (nitro engine, separate
	// governor unit). The rotor ESC channel stays free and arming never
	// waits for spool-up.
	GovernorNone
)

// ParseGovernorMode maps a config string to a governor mode.
func ParseGovernorMode(s string) (GovernorMode, error) {
	switch s {
	case "setpoint":
		return GovernorSetpoint, nil
	case "none":
		return GovernorNone, nil
	default:
		return GovernorSetpoint, fmt.Errorf("unknown governor mode %q, using setpoint", s)
	}
}

func (g GovernorMode) String() string {
	switch g {
	case GovernorSetpoint:
		return "setpoint"
	case GovernorNone:
		return "none"
	default:
		return "unknown"
	}
}

// Channels maps the unit's logical outputs to PWM channel numbers.
type Channels struct {
	Swash1   int
	Swash2   int
	Swash3   int
	Tail     int
	Aux      int
	RotorESC int
}

// DefaultChannels is the conventional layout: swash on 0-2, tail servo
// on 3, aux on 6, rotor ESC on 7.
func DefaultChannels() Channels {
	return Channels{Swash1: 0, Swash2: 1, Swash3: 2, Tail: 3, Aux: 6, RotorESC: 7}
}

// Config is the orchestrator's parameter snapshot.
type Config struct {
	Swash                swash.Geometry
	Tail                 TailType
	ExtGyroGain          int16   // 0-1000, refreshed on the aux channel for servo_extgyro
	DirectDriveTailSpeed int16   // held speed for dd_varpitch
	CollectiveYawScale   float64 // tail feed-forward per collective magnitude, ±10
	Flybar               bool
	Governor             GovernorMode
	CriticalSpeed        int16
	RampSeconds          float64
	LoopRateHz           int
	Channels             Channels
	MainSpeedSensor      rsc.SpeedSensor // optional measured head speed
}

// Demand is one tick's worth of normalized control input. Roll, pitch
// and yaw are full-throw ±1000; collective is ±1000 around mid pitch.
type Demand struct {
	Roll       int16
	Pitch      int16
	Collective int16
	Yaw        int16
}

// Motors owns every output of a single-rotor helicopter: three swash
// servos, the tail, the aux channel and the rotor ESC. One caller, one
// goroutine; the control loop drives one Output* call per tick.
type Motors struct {
	out   pwm.Writer
	cfg   Config
	mixer *swash.Mixer

	mainRotor *rsc.Controller
	tailRotor *rsc.Controller

	desiredSpeed int16 // commanded main rotor speed
}

// NewMotors builds the orchestrator. Channel assignments, tail type
// and governor mode are fixed for the life of the instance; tunables
// move through ApplyConfig.
func NewMotors(out pwm.Writer, cfg Config) *Motors {
	if cfg.LoopRateHz <= 0 {
		cfg.LoopRateHz = 100
	}
	cfg.ExtGyroGain = clampSpeed(cfg.ExtGyroGain)
	cfg.DirectDriveTailSpeed = clampSpeed(cfg.DirectDriveTailSpeed)
	cfg.CollectiveYawScale = clampYawScale(cfg.CollectiveYawScale)

	m := &Motors{
		out:   out,
		cfg:   cfg,
		mixer: swash.NewMixer(cfg.Swash),
	}

	mainOpts := []rsc.Option{
		rsc.WithName("main"),
		rsc.WithRampTime(cfg.RampSeconds),
		rsc.WithCriticalSpeed(cfg.CriticalSpeed),
	}
	if cfg.MainSpeedSensor != nil {
		mainOpts = append(mainOpts, rsc.WithSpeedSensor(cfg.MainSpeedSensor))
	}
	m.mainRotor = rsc.New(out, cfg.Channels.RotorESC, cfg.LoopRateHz, mainOpts...)
	m.tailRotor = rsc.New(out, cfg.Channels.Aux, cfg.LoopRateHz,
		rsc.WithName("tail"),
		rsc.WithRampTime(cfg.RampSeconds),
	)

	debug.Info("Motors: %s head, %s tail, governor %s, mask %#04x",
		cfg.Swash.Type, cfg.Tail, cfg.Governor, m.MotorMask())
	return m
}

// ApplyConfig takes over the tunable parameters from a reloaded config:
// geometry, gains, thresholds, spool time. Structural fields (tail
// type, governor mode, channels, loop rate) need a restart and are left
// alone.
func (m *Motors) ApplyConfig(cfg Config) {
	if cfg.Tail != m.cfg.Tail || cfg.Governor != m.cfg.Governor || cfg.Channels != m.cfg.Channels {
		debug.Info("Structural config change (tail/governor/channels) ignored, restart to apply")
	}

	m.cfg.Swash = cfg.Swash
	m.cfg.ExtGyroGain = clampSpeed(cfg.ExtGyroGain)
	m.cfg.DirectDriveTailSpeed = clampSpeed(cfg.DirectDriveTailSpeed)
	m.cfg.CollectiveYawScale = clampYawScale(cfg.CollectiveYawScale)
	m.cfg.Flybar = cfg.Flybar
	m.cfg.CriticalSpeed = clampSpeed(cfg.CriticalSpeed)
	m.cfg.RampSeconds = cfg.RampSeconds

	m.mixer.Recalc(m.cfg.Swash)
	m.mainRotor.SetCriticalSpeed(m.cfg.CriticalSpeed)
	m.mainRotor.SetRampTime(m.cfg.RampSeconds)
	m.tailRotor.SetRampTime(m.cfg.RampSeconds)
}

// RecalcScalers refreshes everything derived from parameters: the swash
// factor table and the rotor ramp increments. Runs at about 1 Hz, off
// the per-tick path.
func (m *Motors) RecalcScalers() {
	m.mixer.Recalc(m.cfg.Swash)
	m.mainRotor.RecalcScalers()
	m.tailRotor.RecalcScalers()
}

// OutputArmedStabilizing is the armed per-tick output: mix the demand
// onto the swash, route yaw with its torque feed-forward to the tail,
// advance the rotor ramps.
func (m *Motors) OutputArmedStabilizing(d Demand) {
	roll := clampFullThrow(d.Roll)
	pitch := clampFullThrow(d.Pitch)
	collective := clampFullThrow(d.Collective)
	yaw := clampFullThrow(d.Yaw)

	yaw += m.collectiveYawFF(collective)

	m.moveActuators(roll, pitch, collective, yaw)
	m.updateRotors()
}

// OutputDisarmed is the disarmed per-tick output: swash and tail held
// neutral, rotor targets forced to zero so the ramps wind down.
func (m *Motors) OutputDisarmed() {
	m.desiredSpeed = 0
	m.moveActuators(0, 0, 0, 0)
	m.updateRotors()
}

// OutputTest writes one raw pulse to the actuator with the given
// sequence number: 1-3 swash servos, 4 tail servo, 5 rotor ESC, 6 aux.
// Numbers outside the claimed set are a no-op, so equipment sharing
// unclaimed channels is never disturbed. The caller must ensure the
// vehicle is disarmed.
func (m *Motors) OutputTest(motorSeq int, pulseUs uint16) {
	ch := -1
	switch motorSeq {
	case 1:
		ch = m.cfg.Channels.Swash1
	case 2:
		ch = m.cfg.Channels.Swash2
	case 3:
		ch = m.cfg.Channels.Swash3
	case 4:
		if m.cfg.Tail.usesTailServo() {
			ch = m.cfg.Channels.Tail
		}
	case 5:
		if m.cfg.Governor == GovernorSetpoint {
			ch = m.cfg.Channels.RotorESC
		}
	case 6:
		if m.cfg.Tail.usesAuxChannel() {
			ch = m.cfg.Channels.Aux
		}
	}
	if ch < 0 {
		debug.Verbose("Motor test seq %d not fitted on this configuration, ignored", motorSeq)
		return
	}

	m.out.WriteChannel(ch, pulseUs)
	// The original gyro gain must come back after a raw tail pulse,
	// otherwise the gyro holds a bogus gain until the next armed tick.
	if motorSeq == 4 && m.cfg.Tail == TailServoExtGyro {
		m.writeGyroGain()
	}
	debug.MotorTest(motorSeq, ch, pulseUs)
}

// ForceStop is the kill path: ESC channels to minimum and servos to
// neutral, bypassing every ramp. ESCs first, they are the hazard.
func (m *Motors) ForceStop() {
	m.desiredSpeed = 0
	if m.cfg.Governor == GovernorSetpoint {
		m.mainRotor.Stop()
	}
	if m.cfg.Tail.directDrive() {
		m.tailRotor.Stop()
	}

	m.out.WriteChannel(m.cfg.Channels.Swash1, servoPulse(0))
	m.out.WriteChannel(m.cfg.Channels.Swash2, servoPulse(0))
	m.out.WriteChannel(m.cfg.Channels.Swash3, servoPulse(0))
	if m.cfg.Tail.usesTailServo() {
		m.out.WriteChannel(m.cfg.Channels.Tail, servoPulse(0))
	}

	debug.Live("FORCE STOP: all ESCs at minimum, servos neutral")
}

// AllowArming reports flight readiness: the main rotor is spinning
// above its critical speed, or rotor speed is somebody else's job and
// there is nothing to wait for. The caller decides what to do with a
// refusal; this is a query, not an error.
func (m *Motors) AllowArming() bool {
	if m.cfg.Governor == GovernorNone {
		return true
	}
	return m.mainRotor.SpeedAboveCritical()
}

// SetDesiredRotorSpeed commands the main rotor speed (0-1000). The ESC
// output only ever walks toward it through the ramp.
func (m *Motors) SetDesiredRotorSpeed(v int16) {
	m.desiredSpeed = clampSpeed(v)
}

// DesiredRotorSpeed returns the commanded main rotor speed.
func (m *Motors) DesiredRotorSpeed() int16 {
	return m.desiredSpeed
}

// EstimatedRotorSpeed returns the best available main rotor speed:
// measured when a sensor is fitted, the ramp value otherwise.
func (m *Motors) EstimatedRotorSpeed() int16 {
	return m.mainRotor.EstimatedSpeed()
}

// RotorSpeedAboveCritical reports whether the main rotor estimate is
// strictly above the critical threshold.
func (m *Motors) RotorSpeedAboveCritical() bool {
	return m.mainRotor.SpeedAboveCritical()
}

// RotorState returns the main rotor spool state.
func (m *Motors) RotorState() rsc.State {
	return m.mainRotor.State()
}

// TailRotorState returns the tail rotor spool state. Only meaningful
// for direct-drive tails; servo tails report stopped.
func (m *Motors) TailRotorState() rsc.State {
	return m.tailRotor.State()
}

// TailType returns the configured tail drive.
func (m *Motors) TailType() TailType {
	return m.cfg.Tail
}

// SupportsYawPassthrough is true only for the external-gyro tail: the
// gyro closes the yaw loop, so raw pilot yaw may be passed straight
// through.
func (m *Motors) SupportsYawPassthrough() bool {
	return m.cfg.Tail == TailServoExtGyro
}

// HasFlybar reports whether the head carries a mechanical flybar.
func (m *Motors) HasFlybar() bool {
	return m.cfg.Flybar
}

// PhaseAngleDeg returns the configured swash phase angle.
func (m *Motors) PhaseAngleDeg() int {
	return m.cfg.Swash.PhaseAngleDeg
}

// ExtGyroGain returns the external gyro gain setting.
func (m *Motors) ExtGyroGain() int16 {
	return m.cfg.ExtGyroGain
}

// SetExtGyroGain stores a new gyro gain (0-1000). The aux channel picks
// it up on the next tick.
func (m *Motors) SetExtGyroGain(v int16) {
	m.cfg.ExtGyroGain = clampSpeed(v)
}

// MotorMask reports the PWM channels this unit claims as a bitmask.
// Upstream allocators keep off these channels; everything else stays
// free for gimbals and payloads. The set depends on the configuration:
// an external-gyro servo tail with no governor claims exactly the three
// swash servos and the tail servo plus the gyro aux channel, while a
// plain servo tail with no governor claims exactly four channels.
func (m *Motors) MotorMask() uint16 {
	mask := uint16(1)<<m.cfg.Channels.Swash1 |
		uint16(1)<<m.cfg.Channels.Swash2 |
		uint16(1)<<m.cfg.Channels.Swash3
	if m.cfg.Tail.usesTailServo() {
		mask |= uint16(1) << m.cfg.Channels.Tail
	}
	if m.cfg.Tail.usesAuxChannel() {
		mask |= uint16(1) << m.cfg.Channels.Aux
	}
	if m.cfg.Governor == GovernorSetpoint {
		mask |= uint16(1) << m.cfg.Channels.RotorESC
	}
	return mask
}

// moveActuators routes one tick of axis outputs to the physical
// channels: three mixed swash servos, then yaw to whatever drives the
// tail.
func (m *Motors) moveActuators(roll, pitch, collective, yaw int16) {
	outs := m.mixer.Mix(roll, pitch, collective)
	m.out.WriteChannel(m.cfg.Channels.Swash1, servoPulse(outs[0]))
	m.out.WriteChannel(m.cfg.Channels.Swash2, servoPulse(outs[1]))
	m.out.WriteChannel(m.cfg.Channels.Swash3, servoPulse(outs[2]))
	debug.Mix(roll, pitch, collective, yaw, outs[0], outs[1], outs[2])

	m.moveTail(yaw)
}

// moveTail applies yaw to the tail. For a fixed-pitch direct drive the
// yaw demand becomes the tail motor speed; negative demand cannot
// reverse the prop and clamps to stopped.
func (m *Motors) moveTail(yaw int16) {
	if m.cfg.Tail == TailDirectDriveFixedPitch {
		m.tailRotor.SetDesiredSpeed(clampSpeed(yaw))
		return
	}

	m.out.WriteChannel(m.cfg.Channels.Tail, servoPulse(clampFullThrow(yaw)))
	if m.cfg.Tail == TailServoExtGyro {
		m.writeGyroGain()
	}
}

// updateRotors advances the speed controllers that are actually fitted.
func (m *Motors) updateRotors() {
	if m.cfg.Governor == GovernorSetpoint {
		m.mainRotor.SetDesiredSpeed(m.desiredSpeed)
		m.mainRotor.Update()
	}

	switch m.cfg.Tail {
	case TailDirectDriveVarPitch:
		// The tail holds its configured speed whenever the main rotor
		// is commanded to spin.
		if m.desiredSpeed > 0 {
			m.tailRotor.SetDesiredSpeed(m.cfg.DirectDriveTailSpeed)
		} else {
			m.tailRotor.SetDesiredSpeed(0)
		}
		m.tailRotor.Update()
	case TailDirectDriveFixedPitch:
		m.tailRotor.Update()
	}
}

// collectiveYawFF is the torque feed-forward: more blade pitch needs
// more tail thrust, in either collective direction. Suppressed when the
// rotor is not commanded to spin (no torque to trim) and for the
// external-gyro tail (the gyro owns torque compensation).
//
// offset = scale × |collective| / 10, with scale in ±10, so full
// collective at full scale commands full tail throw.
func (m *Motors) collectiveYawFF(collective int16) int16 {
	if m.cfg.Tail == TailServoExtGyro || m.desiredSpeed <= 0 {
		return 0
	}
	c := math.Abs(float64(collective))
	return int16(math.Round(m.cfg.CollectiveYawScale * c / 10))
}

// writeGyroGain refreshes the external gyro gain on the aux channel.
func (m *Motors) writeGyroGain() {
	m.out.WriteChannel(m.cfg.Channels.Aux, uint16(1000+int(m.cfg.ExtGyroGain)))
}

// servoPulse maps a ±1000 deflection to the 1000-2000 µs servo range,
// 1500 neutral.
func servoPulse(v int16) uint16 {
	return uint16(1500 + int(v)/2)
}

func clampFullThrow(v int16) int16 {
	if v > 1000 {
		return 1000
	}
	if v < -1000 {
		return -1000
	}
	return v
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

func clampYawScale(v float64) float64 {
	if v > 10 {
		return 10
	}
	if v < -10 {
		return -10
	}
	return v
}
