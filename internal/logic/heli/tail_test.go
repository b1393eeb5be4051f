package heli

import "testing"

func TestParseTailType(t *testing.T) {
	cases := []struct {
		in   string
		want TailType
	}{
		{"servo", TailServo},
		{"servo_extgyro", TailServoExtGyro},
		{"dd_varpitch", TailDirectDriveVarPitch},
		{"dd_fixedpitch", TailDirectDriveFixedPitch},
	}
	for _, tc := range cases {
		got, err := ParseTailType(tc.in)
		if err != nil {
			t.Errorf("ParseTailType(%q) error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("ParseTailType(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseTailType_UnknownFallsBackToServo(t *testing.T) {
	got, err := ParseTailType("rocket")
	if err == nil {
		t.Error("expected an error for an unknown tail type")
	}
	if got != TailServo {
		t.Errorf("fallback = %v, want TailServo", got)
	}
}

func TestTailTypeString(t *testing.T) {
	cases := []struct {
		in   TailType
		want string
	}{
		{TailServo, "servo"},
		{TailServoExtGyro, "servo_extgyro"},
		{TailDirectDriveVarPitch, "dd_varpitch"},
		{TailDirectDriveFixedPitch, "dd_fixedpitch"},
		{TailType(42), "unknown"},
	}
	for _, tc := range cases {
		if got := tc.in.String(); got != tc.want {
			t.Errorf("String(%d) = %q, want %q", int(tc.in), got, tc.want)
		}
	}
}

func TestTailTypePredicates(t *testing.T) {
	cases := []struct {
		tail        TailType
		servo       bool
		aux         bool
		directDrive bool
	}{
		{TailServo, true, false, false},
		{TailServoExtGyro, true, true, false},
		{TailDirectDriveVarPitch, true, true, true},
		{TailDirectDriveFixedPitch, false, true, true},
	}
	for _, tc := range cases {
		if got := tc.tail.usesTailServo(); got != tc.servo {
			t.Errorf("%s.usesTailServo() = %v, want %v", tc.tail, got, tc.servo)
		}
		if got := tc.tail.usesAuxChannel(); got != tc.aux {
			t.Errorf("%s.usesAuxChannel() = %v, want %v", tc.tail, got, tc.aux)
		}
		if got := tc.tail.directDrive(); got != tc.directDrive {
			t.Errorf("%s.directDrive() = %v, want %v", tc.tail, got, tc.directDrive)
		}
	}
}
