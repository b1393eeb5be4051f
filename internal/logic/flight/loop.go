// Package flight runs the mixing core on a fixed-period control loop
// and owns all of its mutable state. Commands from other goroutines
// (the web console, tests) execute as closures between ticks, so the
// core itself never needs locking.
package flight

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cjeanneret/HeliGo/internal/debug"
	"github.com/cjeanneret/HeliGo/internal/logic/heli"
)

// ErrStopped is returned by every command once the loop has shut down.
var ErrStopped = errors.New("flight loop not running")

// Bounds on a single motor test so a forgotten bench request cannot
// stream a raw pulse forever.
const (
	defaultTestHold = 2 * time.Second
	maxTestHold     = 10 * time.Second
)

// Loop drives a Motors unit at a fixed rate. Zero value is not usable;
// construct with New and hand Run to a goroutine.
type Loop struct {
	motors *heli.Motors
	rateHz int
	period time.Duration

	cmds chan request
	done chan struct{}

	// Everything below is owned by the Run goroutine.
	armed    bool
	estopped bool
	demand   heli.Demand

	testSeq   int
	testPulse uint16
	testTicks int

	ticks uint64
}

type request struct {
	fn   func()
	done chan struct{}
}

// New wires a loop around the mixing core at the given rate.
func New(m *heli.Motors, loopRateHz int) *Loop {
	if loopRateHz <= 0 {
		loopRateHz = 100
	}
	return &Loop{
		motors: m,
		rateHz: loopRateHz,
		period: time.Second / time.Duration(loopRateHz),
		cmds:   make(chan request, 16),
		done:   make(chan struct{}),
	}
}

// Run ticks the core until ctx is cancelled, then safes the outputs and
// returns. Call it exactly once; commands issued after it returns get
// ErrStopped.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)

	ticker := time.NewTicker(l.period)
	defer ticker.Stop()

	debug.Info("Flight loop running at %d Hz (tick %v)", l.rateHz, l.period)
	for {
		select {
		case <-ctx.Done():
			l.armed = false
			l.motors.ForceStop()
			debug.Info("Flight loop stopped, outputs safed")
			return nil
		case req := <-l.cmds:
			req.fn()
			close(req.done)
		case <-ticker.C:
			l.tick()
		}
	}
}

// do runs fn on the loop goroutine and waits for it to finish.
func (l *Loop) do(fn func()) error {
	req := request{fn: fn, done: make(chan struct{})}
	select {
	case l.cmds <- req:
	case <-l.done:
		return ErrStopped
	}
	select {
	case <-req.done:
		return nil
	case <-l.done:
		return ErrStopped
	}
}

// tick is one control period.
func (l *Loop) tick() {
	l.ticks++
	if l.ticks%uint64(l.rateHz) == 0 {
		l.motors.RecalcScalers()
	}

	switch {
	case l.armed:
		l.motors.OutputArmedStabilizing(l.demand)
	case l.testTicks > 0:
		l.motors.OutputTest(l.testSeq, l.testPulse)
		l.testTicks--
	default:
		l.motors.OutputDisarmed()
	}
}

// Arm enables armed output. Refused while the emergency stop is latched
// and while any rotor speed is commanded: spool-up happens armed, a
// pre-commanded speed would spool the head the instant the outputs go
// live.
func (l *Loop) Arm() error {
	var err error
	if derr := l.do(func() { err = l.arm() }); derr != nil {
		return derr
	}
	return err
}

func (l *Loop) arm() error {
	if l.estopped {
		return fmt.Errorf("emergency stop latched, disarm to reset")
	}
	if l.armed {
		return fmt.Errorf("already armed")
	}
	if v := l.motors.DesiredRotorSpeed(); v != 0 {
		return fmt.Errorf("rotor speed %d commanded, must be zero to arm", v)
	}
	l.testTicks = 0
	l.armed = true
	l.demand = heli.Demand{}
	debug.Arm(true)
	return nil
}

// Disarm always succeeds and clears the emergency stop latch. From the
// next tick the surfaces hold neutral while the rotors wind down on
// their ramps.
func (l *Loop) Disarm() error {
	return l.do(l.disarm)
}

func (l *Loop) disarm() {
	if l.armed {
		debug.Arm(false)
	}
	l.armed = false
	l.estopped = false
	l.demand = heli.Demand{}
}

// EmergencyStop kills the outputs immediately and latches: arming is
// refused until an explicit Disarm clears the latch.
func (l *Loop) EmergencyStop() error {
	return l.do(l.estop)
}

func (l *Loop) estop() {
	l.armed = false
	l.estopped = true
	l.demand = heli.Demand{}
	l.testTicks = 0
	l.motors.ForceStop()
}

// SetDemand replaces the commanded axes for the next armed tick.
// Refused while disarmed, where demand is ignored anyway.
func (l *Loop) SetDemand(d heli.Demand) error {
	var err error
	if derr := l.do(func() { err = l.setDemand(d) }); derr != nil {
		return derr
	}
	return err
}

func (l *Loop) setDemand(d heli.Demand) error {
	if !l.armed {
		return fmt.Errorf("not armed")
	}
	l.demand = d
	return nil
}

// SetRotorSpeed commands the main rotor target, clamped to 0-1000 by
// the core. Refused while disarmed, where the target is forced back to
// zero every tick.
func (l *Loop) SetRotorSpeed(v int16) error {
	var err error
	if derr := l.do(func() { err = l.setRotorSpeed(v) }); derr != nil {
		return derr
	}
	return err
}

func (l *Loop) setRotorSpeed(v int16) error {
	if !l.armed {
		return fmt.Errorf("not armed")
	}
	l.motors.SetDesiredRotorSpeed(v)
	return nil
}

// SetExtGyroGain adjusts the external gyro gain live, armed or not.
func (l *Loop) SetExtGyroGain(v int16) error {
	return l.do(func() { l.motors.SetExtGyroGain(v) })
}

// MotorTest streams one raw pulse on the actuator with the given
// sequence number for the hold duration, then falls back to the
// disarmed output. Refused while armed or latched; sequence numbers not
// fitted on this configuration are a no-op per the core contract.
func (l *Loop) MotorTest(motorSeq int, pulseUs uint16, hold time.Duration) error {
	var err error
	if derr := l.do(func() { err = l.motorTest(motorSeq, pulseUs, hold) }); derr != nil {
		return derr
	}
	return err
}

func (l *Loop) motorTest(motorSeq int, pulseUs uint16, hold time.Duration) error {
	if l.armed {
		return fmt.Errorf("motor test refused while armed")
	}
	if l.estopped {
		return fmt.Errorf("emergency stop latched, disarm to reset")
	}
	if hold <= 0 {
		hold = defaultTestHold
	}
	if hold > maxTestHold {
		hold = maxTestHold
	}
	l.testSeq = motorSeq
	l.testPulse = pulseUs
	l.testTicks = int(hold.Seconds() * float64(l.rateHz))
	return nil
}

// Status is one coherent snapshot of the rig, taken between ticks.
type Status struct {
	Armed            bool `json:"armed"`
	EmergencyStopped bool `json:"emergency_stopped"`
	TestActive       bool `json:"test_active"`

	Roll       int16 `json:"roll"`
	Pitch      int16 `json:"pitch"`
	Collective int16 `json:"collective"`
	Yaw        int16 `json:"yaw"`

	DesiredRotorSpeed   int16  `json:"desired_rotor_speed"`
	EstimatedRotorSpeed int16  `json:"estimated_rotor_speed"`
	RotorAboveCritical  bool   `json:"rotor_above_critical"`
	AllowArming         bool   `json:"allow_arming"`
	RotorState          string `json:"rotor_state"`
	TailRotorState      string `json:"tail_rotor_state,omitempty"`

	TailType       string `json:"tail_type"`
	YawPassthrough bool   `json:"yaw_passthrough"`
	Flybar         bool   `json:"flybar"`
	PhaseAngleDeg  int    `json:"phase_angle_deg"`
	ExtGyroGain    int16  `json:"ext_gyro_gain"`
	MotorMask      uint16 `json:"motor_mask"`

	LoopRateHz int    `json:"loop_rate_hz"`
	Ticks      uint64 `json:"ticks"`
}

// Status reports the current snapshot.
func (l *Loop) Status() (Status, error) {
	var s Status
	if err := l.do(func() { s = l.snapshot() }); err != nil {
		return Status{}, err
	}
	return s, nil
}

func (l *Loop) snapshot() Status {
	m := l.motors
	s := Status{
		Armed:            l.armed,
		EmergencyStopped: l.estopped,
		TestActive:       l.testTicks > 0,

		Roll:       l.demand.Roll,
		Pitch:      l.demand.Pitch,
		Collective: l.demand.Collective,
		Yaw:        l.demand.Yaw,

		DesiredRotorSpeed:   m.DesiredRotorSpeed(),
		EstimatedRotorSpeed: m.EstimatedRotorSpeed(),
		RotorAboveCritical:  m.RotorSpeedAboveCritical(),
		AllowArming:         m.AllowArming(),
		RotorState:          m.RotorState().String(),

		TailType:       m.TailType().String(),
		YawPassthrough: m.SupportsYawPassthrough(),
		Flybar:         m.HasFlybar(),
		PhaseAngleDeg:  m.PhaseAngleDeg(),
		ExtGyroGain:    m.ExtGyroGain(),
		MotorMask:      m.MotorMask(),

		LoopRateHz: l.rateHz,
		Ticks:      l.ticks,
	}
	if t := m.TailType(); t == heli.TailDirectDriveVarPitch || t == heli.TailDirectDriveFixedPitch {
		s.TailRotorState = m.TailRotorState().String()
	}
	return s
}
