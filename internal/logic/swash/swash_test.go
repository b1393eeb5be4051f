package swash

import (
	"math"
	"testing"
)

// defaultGeometry is the standard 120° CCPM head: servos at -60°, 60°
// and 180° with no phase shift.
func defaultGeometry() Geometry {
	return Geometry{
		Type:         TypeCCPM,
		Servo1PosDeg: -60,
		Servo2PosDeg: 60,
		Servo3PosDeg: 180,
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestParseType(t *testing.T) {
	cases := []struct {
		in      string
		want    Type
		wantErr bool
	}{
		{"ccpm", TypeCCPM, false},
		{"h1", TypeH1, false},
		{"", TypeCCPM, true},
		{"h2", TypeCCPM, true},
	}
	for _, tc := range cases {
		got, err := ParseType(tc.in)
		if got != tc.want {
			t.Errorf("ParseType(%q) = %v, want %v", tc.in, got, tc.want)
		}
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseType(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
		}
	}
}

func TestFactors_DefaultCCPMHead(t *testing.T) {
	m := NewMixer(defaultGeometry())
	f := m.Factors()

	// roll = cos(a + 90°): servos at ±60° get equal and opposite
	// weights, the rear servo none.
	wantRoll := [3]float64{math.Cos(30 * math.Pi / 180), math.Cos(150 * math.Pi / 180), 0}
	// pitch = cos(a): front pair shares half weight each, rear servo
	// carries full opposite weight.
	wantPitch := [3]float64{0.5, 0.5, -1}

	for i := 0; i < 3; i++ {
		if !almostEqual(f.Roll[i], wantRoll[i]) {
			t.Errorf("roll factor servo%d = %v, want %v", i+1, f.Roll[i], wantRoll[i])
		}
		if !almostEqual(f.Pitch[i], wantPitch[i]) {
			t.Errorf("pitch factor servo%d = %v, want %v", i+1, f.Pitch[i], wantPitch[i])
		}
		if !almostEqual(f.Collective[i], 1) {
			t.Errorf("collective factor servo%d = %v, want 1", i+1, f.Collective[i])
		}
	}

	// Symmetric head: roll weights cancel across the plate.
	if sum := f.Roll[0] + f.Roll[1] + f.Roll[2]; !almostEqual(sum, 0) {
		t.Errorf("roll factors sum = %v, want 0", sum)
	}
	if sum := f.Pitch[0] + f.Pitch[1] + f.Pitch[2]; !almostEqual(sum, 0) {
		t.Errorf("pitch factors sum = %v, want 0", sum)
	}
}

func TestMix_PureRoll(t *testing.T) {
	m := NewMixer(defaultGeometry())
	out := m.Mix(500, 0, 0)

	if out[0] != 433 || out[1] != -433 || out[2] != 0 {
		t.Errorf("Mix(roll=500) = %v, want [433 -433 0]", out)
	}
}

func TestMix_PurePitch(t *testing.T) {
	m := NewMixer(defaultGeometry())
	out := m.Mix(0, 600, 0)

	if out[0] != 300 || out[1] != 300 || out[2] != -600 {
		t.Errorf("Mix(pitch=600) = %v, want [300 300 -600]", out)
	}
}

func TestMix_PureCollective(t *testing.T) {
	m := NewMixer(defaultGeometry())
	out := m.Mix(0, 0, 250)

	for i, v := range out {
		if v != 250 {
			t.Errorf("Mix(collective=250) servo%d = %d, want 250 (uniform lift)", i+1, v)
		}
	}
}

func TestMix_ClampsInputs(t *testing.T) {
	m := NewMixer(defaultGeometry())

	// Out-of-range demand behaves exactly like the saturated demand.
	over := m.Mix(0, 0, 32000)
	sat := m.Mix(0, 0, 1000)
	if over != sat {
		t.Errorf("Mix with collective=32000 = %v, want same as collective=1000 (%v)", over, sat)
	}
}

func TestMix_ClampsCombinedOutputs(t *testing.T) {
	m := NewMixer(defaultGeometry())

	// pitch -1000 + collective 1000 drives servo3 to 2000 before the
	// output clamp.
	out := m.Mix(0, -1000, 1000)
	if out[2] != 1000 {
		t.Errorf("servo3 = %d, want clamp at 1000", out[2])
	}

	out = m.Mix(0, 1000, -1000)
	if out[2] != -1000 {
		t.Errorf("servo3 = %d, want clamp at -1000", out[2])
	}
}

func TestMix_H1KeepsAxesSeparated(t *testing.T) {
	m := NewMixer(Geometry{Type: TypeH1})

	out := m.Mix(120, -340, 560)
	if out[0] != 120 || out[1] != -340 || out[2] != 560 {
		t.Errorf("H1 Mix(120, -340, 560) = %v, want pass-through [120 -340 560]", out)
	}

	// Collective must not bleed into the cyclic servos.
	out = m.Mix(0, 0, 800)
	if out[0] != 0 || out[1] != 0 || out[2] != 800 {
		t.Errorf("H1 Mix(collective=800) = %v, want [0 0 800]", out)
	}
}

func TestPhaseAngle_RotatesResponse(t *testing.T) {
	geomZero := defaultGeometry()
	geom90 := defaultGeometry()
	geom90.PhaseAngleDeg = 90

	f0 := NewMixer(geomZero).Factors()
	f90 := NewMixer(geom90).Factors()

	// A 90° phase shift swaps the axes: what was the pitch response
	// becomes the negated roll response and vice versa.
	for i := 0; i < 3; i++ {
		if !almostEqual(f90.Roll[i], -f0.Pitch[i]) {
			t.Errorf("servo%d roll@90° = %v, want %v", i+1, f90.Roll[i], -f0.Pitch[i])
		}
		if !almostEqual(f90.Pitch[i], f0.Roll[i]) {
			t.Errorf("servo%d pitch@90° = %v, want %v", i+1, f90.Pitch[i], f0.Roll[i])
		}
	}
}

func TestRecalc_IdempotentAndReactive(t *testing.T) {
	m := NewMixer(defaultGeometry())
	before := m.Factors()

	m.Recalc(defaultGeometry())
	if m.Factors() != before {
		t.Error("Recalc with unchanged geometry altered the factors")
	}

	shifted := defaultGeometry()
	shifted.PhaseAngleDeg = 10
	m.Recalc(shifted)
	if m.Factors() == before {
		t.Error("Recalc with new phase angle left the factors unchanged")
	}
	if m.Geometry() != shifted {
		t.Errorf("Geometry() = %+v, want %+v", m.Geometry(), shifted)
	}
}

func TestDegenerateGeometry_StillDefined(t *testing.T) {
	// All servos stacked at the same azimuth: useless head, but the
	// outputs must stay finite and clamped.
	m := NewMixer(Geometry{Type: TypeCCPM})

	out := m.Mix(1000, 1000, 1000)
	for i, v := range out {
		if v < -1000 || v > 1000 {
			t.Errorf("servo%d = %d, out of ±1000", i+1, v)
		}
	}
}
