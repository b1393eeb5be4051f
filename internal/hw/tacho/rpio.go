package tacho

import (
	"sync/atomic"
	"time"

	"github.com/cjeanneret/HeliGo/internal/debug"
	"github.com/stianeikeland/go-rpio/v4"
)

// pollPeriod is the pickup polling interval. go-rpio edge detection is
// a latched flag, not an interrupt, so the flag must be checked faster
// than pulses arrive. 2 kHz covers a multi-magnet head with margin.
const pollPeriod = 500 * time.Microsecond

// RPiCounter counts rising edges on a BCM pin using go-rpio edge
// detection. The PWM driver owns the rpio open/close lifecycle; create
// the counter after the driver and stop it before the driver closes.
type RPiCounter struct {
	pin   rpio.Pin
	count atomic.Uint64
	stop  chan struct{}
	done  chan struct{}
}

// NewRPiCounter arms edge detection on the pin and starts the polling
// goroutine.
func NewRPiCounter(bcmPin int) *RPiCounter {
	debug.Info("Tacho pickup on BCM pin %d", bcmPin)

	p := rpio.Pin(bcmPin)
	p.Input()
	p.PullDown()
	p.Detect(rpio.RiseEdge)

	c := &RPiCounter{
		pin:  p,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go c.poll()
	return c
}

func (c *RPiCounter) poll() {
	defer close(c.done)
	tick := time.NewTicker(pollPeriod)
	defer tick.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-tick.C:
			if c.pin.EdgeDetected() {
				c.count.Add(1)
			}
		}
	}
}

// Count returns the total pulses seen since start.
func (c *RPiCounter) Count() uint64 {
	return c.count.Load()
}

// Stop disarms edge detection and ends the polling goroutine.
func (c *RPiCounter) Stop() {
	close(c.stop)
	<-c.done
	c.pin.Detect(rpio.NoEdge)
	debug.Trace("Tacho pickup stopped")
}
