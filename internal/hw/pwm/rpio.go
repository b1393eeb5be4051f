package pwm

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/HeliGo/internal/debug"
	"github.com/stianeikeland/go-rpio/v4"
)

// RPiDriver is the real implementation for Raspberry Pi using go-rpio
// hardware PWM. Hardware PWM only exists on BCM 12, 13, 18 and 19 on a
// bare Pi; driving more channels needs an external PWM board, so the
// channel-to-pin map is explicit and only mapped channels are driven.
type RPiDriver struct {
	pins map[int]rpio.Pin

	mu   sync.Mutex
	last map[int]uint16
}

// NewRPiRealDriver creates a real PWM driver for Raspberry Pi.
// Requires running on a Raspberry Pi with access to /dev/gpiomem or as root.
func NewRPiRealDriver(channelPins map[int]int) (*RPiDriver, error) {
	debug.Info("Initializing real PWM driver (go-rpio)")

	if len(channelPins) == 0 {
		return nil, fmt.Errorf("no PWM pins configured (set pins: in the config, or use mock_pwm)")
	}

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open GPIO: %w (are you running on a Raspberry Pi?)", err)
	}

	debug.Verbose("GPIO memory mapped successfully")

	r := &RPiDriver{
		pins: make(map[int]rpio.Pin, len(channelPins)),
		last: make(map[int]uint16, len(channelPins)),
	}
	for ch, pin := range channelPins {
		p := rpio.Pin(pin)
		p.Mode(rpio.Pwm)
		// Clock the PWM block so one duty step is one microsecond,
		// then hold the line low until the first real write.
		p.Freq(RefreshHz * CycleSteps)
		p.DutyCycle(0, CycleSteps)
		r.pins[ch] = p
		debug.Verbose("Channel %d on BCM pin %d at %d Hz", ch, pin, RefreshHz)
	}

	return r, nil
}

func (r *RPiDriver) WriteChannel(channel int, pulseUs uint16) {
	p, ok := r.pins[channel]
	if !ok {
		debug.Trace("WriteChannel: channel %d has no pin, dropped", channel)
		return
	}

	pulseUs = clampPulse(pulseUs)
	p.DutyCycle(uint32(pulseUs), CycleSteps)

	r.mu.Lock()
	r.last[channel] = pulseUs
	r.mu.Unlock()

	debug.Output("WriteChannel", channel, pulseUs)
}

func (r *RPiDriver) Snapshot() map[int]uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[int]uint16, len(r.last))
	for ch, p := range r.last {
		out[ch] = p
	}
	return out
}

func (r *RPiDriver) Close() error {
	debug.Trace("PWM Close (real driver)")

	// Stop all pulses and park the pins as inputs (safe state).
	// ESCs treat a dead line as signal loss and cut the motor.
	for ch, p := range r.pins {
		debug.Verbose("Silencing channel %d", ch)
		p.DutyCycle(0, CycleSteps)
		p.Input()
	}

	return rpio.Close()
}
