package tacho

import (
	"testing"
	"time"
)

// fakeClock advances only when told to, making windows deterministic.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestEstimator(counter Counter, pulsesPerRev, fullScaleRPM int) (*Estimator, *fakeClock) {
	e := NewEstimator(counter, pulsesPerRev, fullScaleRPM)
	clock := &fakeClock{t: time.Unix(1000, 0)}
	e.now = clock.now
	return e, clock
}

func TestEstimator_FirstCallReturnsZero(t *testing.T) {
	e, _ := newTestEstimator(CounterFunc(func() uint64 { return 42 }), 1, 2600)
	if got := e.EstimatedSpeed(); got != 0 {
		t.Errorf("first EstimatedSpeed() = %d, want 0", got)
	}
}

func TestEstimator_ComputesNormalizedSpeed(t *testing.T) {
	// 1300 RPM at full scale 2600 should read as 500 units.
	// With 2 pulses per rev over a 100 ms window: 1300 rev/min is
	// ~21.67 rev/s, so 43.33 pulses/s, so 4.333 pulses per window.
	// Use a full second window for round numbers: 43 pulses + 1/3.
	var count uint64
	e, clock := newTestEstimator(CounterFunc(func() uint64 { return count }), 2, 2600)

	e.EstimatedSpeed() // prime the window
	count = 130        // 130 pulses = 65 revs in 3 s = 1300 RPM
	clock.advance(3 * time.Second)

	if got := e.EstimatedSpeed(); got != 500 {
		t.Errorf("EstimatedSpeed() = %d, want 500", got)
	}
}

func TestEstimator_CachesInsideWindow(t *testing.T) {
	var count uint64
	e, clock := newTestEstimator(CounterFunc(func() uint64 { return count }), 1, 1000)

	e.EstimatedSpeed()
	count = 100 // 100 pulses in 6 s = 1000 RPM = full scale
	clock.advance(6 * time.Second)
	if got := e.EstimatedSpeed(); got != 1000 {
		t.Fatalf("EstimatedSpeed() = %d, want 1000", got)
	}

	// Inside the next window the cached value must come back even
	// though the counter keeps moving.
	count = 105
	clock.advance(10 * time.Millisecond)
	if got := e.EstimatedSpeed(); got != 1000 {
		t.Errorf("EstimatedSpeed() inside window = %d, want cached 1000", got)
	}
}

func TestEstimator_ClampsAboveFullScale(t *testing.T) {
	var count uint64
	e, clock := newTestEstimator(CounterFunc(func() uint64 { return count }), 1, 100)

	e.EstimatedSpeed()
	count = 1000 // way beyond full scale
	clock.advance(time.Second)

	if got := e.EstimatedSpeed(); got != 1000 {
		t.Errorf("EstimatedSpeed() = %d, want clamp at 1000", got)
	}
}

func TestEstimator_StoppedRotorReadsZero(t *testing.T) {
	e, clock := newTestEstimator(CounterFunc(func() uint64 { return 7 }), 1, 2600)

	e.EstimatedSpeed()
	clock.advance(time.Second) // no new pulses

	if got := e.EstimatedSpeed(); got != 0 {
		t.Errorf("EstimatedSpeed() = %d, want 0 for a stopped rotor", got)
	}
}

func TestNewEstimator_GuardsDegenerateParams(t *testing.T) {
	e := NewEstimator(CounterFunc(func() uint64 { return 0 }), 0, 0)
	if e.pulsesPerRev != 1 || e.fullScaleRPM != 1 {
		t.Errorf("degenerate params not guarded: pulsesPerRev=%d fullScaleRPM=%d", e.pulsesPerRev, e.fullScaleRPM)
	}
}
