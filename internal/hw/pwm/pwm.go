package pwm

import (
	"sync"

	"github.com/cjeanneret/HeliGo/internal/debug"
)

// Standard analog servo/ESC frame: 50 Hz refresh, pulse width coded in
// microseconds. One PWM step equals one microsecond.
const (
	RefreshHz  = 50
	CycleSteps = 20000 // steps per 20 ms frame
)

// Writer pushes microsecond pulse widths to numbered output channels.
// Writes cannot fail once a driver is up: the underlying register pokes
// return nothing, so errors exist only at setup and teardown.
type Writer interface {
	WriteChannel(channel int, pulseUs uint16)
}

// Driver is a Writer with a hardware lifecycle and introspection for
// the bench console.
type Driver interface {
	Writer
	// Snapshot returns the last pulse written to each channel.
	Snapshot() map[int]uint16
	Close() error
}

// NewDriver creates a PWM driver based on the chosen mode.
// If mock is true, returns a MockDriver (for dev/test).
// If mock is false, returns a real RPiDriver; pins maps each output
// channel to the BCM pin carrying it.
func NewDriver(mock bool, pins map[int]int) (Driver, error) {
	if mock {
		debug.Info("Using MOCK PWM driver (development mode)")
		return NewMockDriver(), nil
	}
	return NewRPiRealDriver(pins)
}

// MockDriver records writes and logs them. Used for development on PC
// or testing; Snapshot feeds the console's output display.
type MockDriver struct {
	mu   sync.Mutex
	last map[int]uint16
}

func NewMockDriver() *MockDriver {
	return &MockDriver{last: make(map[int]uint16)}
}

func (m *MockDriver) WriteChannel(channel int, pulseUs uint16) {
	pulseUs = clampPulse(pulseUs)
	m.mu.Lock()
	m.last[channel] = pulseUs
	m.mu.Unlock()
	debug.Output("WriteChannel", channel, pulseUs)
}

func (m *MockDriver) Snapshot() map[int]uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int]uint16, len(m.last))
	for ch, p := range m.last {
		out[ch] = p
	}
	return out
}

func (m *MockDriver) Close() error {
	debug.Trace("PWM Close (mock)")
	return nil
}

// clampPulse limits a pulse to one frame. A pulse of 0 means the
// channel emits no signal at all.
func clampPulse(pulseUs uint16) uint16 {
	if pulseUs > CycleSteps {
		return CycleSteps
	}
	return pulseUs
}
