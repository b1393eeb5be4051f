package swash

import (
	"fmt"
	"math"

	"github.com/cjeanneret/HeliGo/internal/debug"
)

// Type selects how cyclic and collective reach the blades.
type Type int

const (
	// TypeCCPM mixes all three axes electronically across three servos
	// spaced around the swashplate (cyclic/collective pitch mixing).
	TypeCCPM Type = iota
	// TypeH1 drives a mechanically mixed head: each servo moves exactly
	// one axis, the linkage does the rest.
	TypeH1
)

// ParseType maps a config string to a swash type. Unknown strings fall
// back to CCPM alongside the error so a misconfigured head still moves.
func ParseType(s string) (Type, error) {
	switch s {
	case "ccpm":
		return TypeCCPM, nil
	case "h1":
		return TypeH1, nil
	default:
		return TypeCCPM, fmt.Errorf("unknown swash type %q, using ccpm", s)
	}
}

func (t Type) String() string {
	switch t {
	case TypeCCPM:
		return "ccpm"
	case TypeH1:
		return "h1"
	default:
		return "unknown"
	}
}

// Geometry describes where the three swash servos sit around the main
// shaft (azimuth degrees, measured from the nose) and how far the whole
// cyclic response is rotated to compensate rotor phase lag.
type Geometry struct {
	Type          Type
	Servo1PosDeg  int
	Servo2PosDeg  int
	Servo3PosDeg  int
	PhaseAngleDeg int
}

// Factors holds the per-servo mixing weights for each control axis.
type Factors struct {
	Roll       [3]float64
	Pitch      [3]float64
	Collective [3]float64
}

// Mixer turns normalized roll/pitch/collective demands into three servo
// deflections. The factor table is computed when the geometry changes,
// never in the per-tick path.
type Mixer struct {
	geom    Geometry
	factors Factors
}

// NewMixer creates a mixer and computes the factor table for the given
// geometry.
func NewMixer(geom Geometry) *Mixer {
	m := &Mixer{}
	m.apply(geom)
	debug.Factors("roll", m.factors.Roll[0], m.factors.Roll[1], m.factors.Roll[2])
	debug.Factors("pitch", m.factors.Pitch[0], m.factors.Pitch[1], m.factors.Pitch[2])
	debug.Factors("collective", m.factors.Collective[0], m.factors.Collective[1], m.factors.Collective[2])
	return m
}

// Recalc recomputes the factor table for a new geometry. Safe to call
// at a low rate with unchanged parameters: same geometry in, same
// factors out, no per-tick cost.
func (m *Mixer) Recalc(geom Geometry) {
	if geom == m.geom {
		return
	}
	m.apply(geom)
	debug.Verbose("Swash factors recomputed: %s head, phase %d°", geom.Type, geom.PhaseAngleDeg)
}

// apply fills the factor table.
//
// CCPM weight of the servo at azimuth a, with phase angle p:
//   roll   = cos(a + 90° + p)
//   pitch  = cos(a + p)
//   collective = 1
// A servo at ±90° from the nose therefore carries pure roll, a servo at
// the nose or tail pure pitch, and collective lifts all three together.
//
// H1 bypasses electronic mixing: servo1 carries roll, servo2 pitch,
// servo3 collective.
func (m *Mixer) apply(geom Geometry) {
	m.geom = geom

	if geom.Type == TypeH1 {
		m.factors = Factors{
			Roll:       [3]float64{1, 0, 0},
			Pitch:      [3]float64{0, 1, 0},
			Collective: [3]float64{0, 0, 1},
		}
		return
	}

	pos := [3]float64{
		float64(geom.Servo1PosDeg),
		float64(geom.Servo2PosDeg),
		float64(geom.Servo3PosDeg),
	}
	phase := float64(geom.PhaseAngleDeg)
	for i, a := range pos {
		m.factors.Roll[i] = math.Cos(radians(a + 90 + phase))
		m.factors.Pitch[i] = math.Cos(radians(a + phase))
		m.factors.Collective[i] = 1
	}
}

// Factors returns the current factor table.
func (m *Mixer) Factors() Factors {
	return m.factors
}

// Geometry returns the geometry the factors were computed from.
func (m *Mixer) Geometry() Geometry {
	return m.geom
}

// Mix applies the factor table to the three demands and returns the
// servo deflections. Demands and results are clamped to ±1000, so a
// full-throw combined input cannot push a servo past its range.
func (m *Mixer) Mix(roll, pitch, collective int16) [3]int16 {
	r := float64(clamp(roll))
	p := float64(clamp(pitch))
	c := float64(clamp(collective))

	var out [3]int16
	for i := 0; i < 3; i++ {
		v := m.factors.Roll[i]*r + m.factors.Pitch[i]*p + m.factors.Collective[i]*c
		out[i] = clamp(int16(math.Round(v)))
	}
	return out
}

func clamp(v int16) int16 {
	if v > 1000 {
		return 1000
	}
	if v < -1000 {
		return -1000
	}
	return v
}

// radians converts degrees to radians.
func radians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
