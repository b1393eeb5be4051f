package rsc

import (
	"testing"
)

// recordingWriter captures channel writes for assertions.
type recordingWriter struct {
	writes []write
}

type write struct {
	channel int
	pulse   uint16
}

func (r *recordingWriter) WriteChannel(channel int, pulseUs uint16) {
	r.writes = append(r.writes, write{channel, pulseUs})
}

func (r *recordingWriter) last() write {
	if len(r.writes) == 0 {
		return write{-1, 0}
	}
	return r.writes[len(r.writes)-1]
}

func tick(c *Controller, n int) {
	for i := 0; i < n; i++ {
		c.Update()
	}
}

func TestDefaultIncrement(t *testing.T) {
	c := New(&recordingWriter{}, 7, 100)
	// 2 s over the full range at 100 Hz is 5 units per tick.
	if c.increment != 5 {
		t.Errorf("increment = %d, want 5", c.increment)
	}
}

func TestRampUp_ExactTickCount(t *testing.T) {
	w := &recordingWriter{}
	c := New(w, 7, 100)
	c.SetDesiredSpeed(800)

	// 800 units at 5 units/tick is exactly 160 ticks.
	tick(c, 159)
	if c.EstimatedSpeed() != 795 {
		t.Fatalf("after 159 ticks estimated = %d, want 795", c.EstimatedSpeed())
	}
	if c.State() != Ramping {
		t.Errorf("state after 159 ticks = %v, want ramping", c.State())
	}

	tick(c, 1)
	if c.EstimatedSpeed() != 800 {
		t.Errorf("after 160 ticks estimated = %d, want 800", c.EstimatedSpeed())
	}
	if c.State() != AtSpeed {
		t.Errorf("state = %v, want at-speed", c.State())
	}
	if got := w.last(); got.channel != 7 || got.pulse != 1800 {
		t.Errorf("last write = %+v, want channel 7 pulse 1800", got)
	}
}

func TestRampNeverOvershoots(t *testing.T) {
	c := New(&recordingWriter{}, 7, 100)
	c.SetDesiredSpeed(803) // not a multiple of the increment

	prev := int16(0)
	for i := 0; i < 500; i++ {
		c.Update()
		v := c.EstimatedSpeed()
		if v > 803 {
			t.Fatalf("tick %d: ramp %d passed the target 803", i, v)
		}
		if v < prev {
			t.Fatalf("tick %d: ramp moved backwards (%d -> %d)", i, prev, v)
		}
		prev = v
	}
	if prev != 803 {
		t.Errorf("final ramp = %d, want exactly 803", prev)
	}
}

func TestRampDown(t *testing.T) {
	w := &recordingWriter{}
	c := New(w, 7, 100)
	c.SetDesiredSpeed(500)
	tick(c, 100) // at speed

	c.SetDesiredSpeed(0)
	tick(c, 99)
	if c.EstimatedSpeed() != 5 {
		t.Fatalf("after 99 down ticks estimated = %d, want 5", c.EstimatedSpeed())
	}
	if c.State() != Ramping {
		t.Errorf("state = %v, want ramping while winding down", c.State())
	}

	tick(c, 1)
	if c.State() != Stopped {
		t.Errorf("state = %v, want stopped", c.State())
	}
	if got := w.last(); got.pulse != 1000 {
		t.Errorf("last pulse = %d, want 1000 at stop", got.pulse)
	}
}

func TestSetDesiredSpeed_Clamped(t *testing.T) {
	c := New(&recordingWriter{}, 7, 100)

	c.SetDesiredSpeed(1500)
	if c.DesiredSpeed() != 1000 {
		t.Errorf("DesiredSpeed() = %d, want clamp at 1000", c.DesiredSpeed())
	}

	c.SetDesiredSpeed(-20)
	if c.DesiredSpeed() != 0 {
		t.Errorf("DesiredSpeed() = %d, want clamp at 0", c.DesiredSpeed())
	}
}

func TestSpeedAboveCritical_StrictComparison(t *testing.T) {
	c := New(&recordingWriter{}, 7, 100, WithCriticalSpeed(500))
	c.SetDesiredSpeed(500)
	tick(c, 100)

	// Exactly at the threshold is not above it.
	if c.EstimatedSpeed() != 500 {
		t.Fatalf("estimated = %d, want 500", c.EstimatedSpeed())
	}
	if c.SpeedAboveCritical() {
		t.Error("SpeedAboveCritical() = true at exactly the threshold")
	}

	c.SetDesiredSpeed(505)
	tick(c, 1)
	if !c.SpeedAboveCritical() {
		t.Error("SpeedAboveCritical() = false one increment above the threshold")
	}
}

func TestZeroCriticalSpeed(t *testing.T) {
	c := New(&recordingWriter{}, 7, 100, WithCriticalSpeed(0))

	if c.SpeedAboveCritical() {
		t.Error("SpeedAboveCritical() = true for a stopped rotor with critical 0")
	}

	c.SetDesiredSpeed(100)
	tick(c, 1)
	if !c.SpeedAboveCritical() {
		t.Error("SpeedAboveCritical() = false with any spin and critical 0")
	}
}

type fixedSensor int16

func (s fixedSensor) EstimatedSpeed() int16 { return int16(s) }

func TestSpeedSensor_OverridesRampMirror(t *testing.T) {
	c := New(&recordingWriter{}, 7, 100, WithSpeedSensor(fixedSensor(640)), WithCriticalSpeed(500))

	// Ramp has not moved, but the measured speed rules.
	if c.EstimatedSpeed() != 640 {
		t.Errorf("EstimatedSpeed() = %d, want sensor value 640", c.EstimatedSpeed())
	}
	if !c.SpeedAboveCritical() {
		t.Error("SpeedAboveCritical() = false with measured 640 over critical 500")
	}
}

func TestSpeedSensor_Clamped(t *testing.T) {
	c := New(&recordingWriter{}, 7, 100, WithSpeedSensor(fixedSensor(3000)))
	if c.EstimatedSpeed() != 1000 {
		t.Errorf("EstimatedSpeed() = %d, want clamp at 1000", c.EstimatedSpeed())
	}

	c = New(&recordingWriter{}, 7, 100, WithSpeedSensor(fixedSensor(-50)))
	if c.EstimatedSpeed() != 0 {
		t.Errorf("EstimatedSpeed() = %d, want clamp at 0", c.EstimatedSpeed())
	}
}

func TestStop_BypassesRamp(t *testing.T) {
	w := &recordingWriter{}
	c := New(w, 7, 100)
	c.SetDesiredSpeed(1000)
	tick(c, 200) // spinning fast

	c.Stop()
	if c.EstimatedSpeed() != 0 {
		t.Errorf("estimated after Stop() = %d, want 0", c.EstimatedSpeed())
	}
	if c.State() != Stopped {
		t.Errorf("state after Stop() = %v, want stopped", c.State())
	}
	if got := w.last(); got.pulse != 1000 {
		t.Errorf("last pulse = %d, want minimum 1000", got.pulse)
	}
}

func TestRecalcScalers(t *testing.T) {
	cases := []struct {
		name    string
		seconds float64
		rateHz  int
		want    int16
	}{
		{"default", 2, 100, 5},
		{"fast_loop", 2, 400, 1},   // 1000/800 rounds to 1
		{"slow_spool", 30, 50, 1},  // 0.67 floors to 1
		{"instant", 0, 100, 1000},  // no spool time: full range at once
		{"one_second", 1, 100, 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := New(&recordingWriter{}, 7, tc.rateHz, WithRampTime(tc.seconds))
			if c.increment != tc.want {
				t.Errorf("increment = %d, want %d", c.increment, tc.want)
			}
		})
	}
}

func TestSetRampTime_TakesEffect(t *testing.T) {
	c := New(&recordingWriter{}, 7, 100)
	c.SetRampTime(1)
	if c.increment != 10 {
		t.Errorf("increment after SetRampTime(1) = %d, want 10", c.increment)
	}
}

func TestUpdate_WritesEveryTick(t *testing.T) {
	w := &recordingWriter{}
	c := New(w, 3, 100)
	c.SetDesiredSpeed(0)
	tick(c, 5)

	// Even a stopped rotor refreshes its output each tick.
	if len(w.writes) != 5 {
		t.Fatalf("writes = %d, want 5", len(w.writes))
	}
	for i, wr := range w.writes {
		if wr.channel != 3 || wr.pulse != 1000 {
			t.Errorf("write %d = %+v, want channel 3 pulse 1000", i, wr)
		}
	}
}
