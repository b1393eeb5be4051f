package tacho

import (
	"math"
	"time"

	"github.com/cjeanneret/HeliGo/internal/debug"
)

// Counter is a monotonically increasing pulse count from a rotor head
// pickup (hall sensor or optical mark). Implementations must be safe to
// read while the pickup goroutine is counting.
type Counter interface {
	Count() uint64
}

// CounterFunc adapts a plain function to the Counter interface.
type CounterFunc func() uint64

func (f CounterFunc) Count() uint64 { return f() }

// measureWindow is how much time must pass before the estimate is
// recomputed. Short windows make the RPM reading too grainy: at 100 Hz
// ticks a single pulse would read as thousands of RPM.
const measureWindow = 100 * time.Millisecond

// Estimator converts pulse counts into a normalized head speed
// (0-1000, where 1000 is the configured full-scale RPM). It is read
// from the control loop only; the concurrent part is the Counter.
type Estimator struct {
	counter      Counter
	pulsesPerRev int
	fullScaleRPM int
	now          func() time.Time

	lastCount uint64
	lastTime  time.Time
	speed     int16
}

// NewEstimator creates a head speed estimator. pulsesPerRev is the
// number of pickup pulses per rotor revolution, fullScaleRPM the head
// speed that maps to 1000 units.
func NewEstimator(counter Counter, pulsesPerRev, fullScaleRPM int) *Estimator {
	if pulsesPerRev < 1 {
		pulsesPerRev = 1
	}
	if fullScaleRPM < 1 {
		fullScaleRPM = 1
	}
	return &Estimator{
		counter:      counter,
		pulsesPerRev: pulsesPerRev,
		fullScaleRPM: fullScaleRPM,
		now:          time.Now,
	}
}

// EstimatedSpeed returns the latest normalized head speed. Between
// measurement windows it returns the previous estimate, so it is cheap
// to call every tick.
func (e *Estimator) EstimatedSpeed() int16 {
	now := e.now()
	if e.lastTime.IsZero() {
		e.lastTime = now
		e.lastCount = e.counter.Count()
		return 0
	}

	dt := now.Sub(e.lastTime)
	if dt < measureWindow {
		return e.speed
	}

	count := e.counter.Count()
	pulses := count - e.lastCount
	revs := float64(pulses) / float64(e.pulsesPerRev)
	rpm := revs / dt.Minutes()

	v := math.Round(rpm / float64(e.fullScaleRPM) * 1000)
	if v > 1000 {
		v = 1000
	}
	if v < 0 {
		v = 0
	}

	e.speed = int16(v)
	e.lastCount = count
	e.lastTime = now

	debug.Trace("Tacho: %d pulses in %v -> %.0f rpm (%d units)", pulses, dt, rpm, e.speed)
	return e.speed
}
