package heli

import "fmt"

// TailType selects how the tail rotor is driven. It decides which
// channels the unit claims, where yaw authority goes, and whether the
// tail has its own speed controller.
type TailType int

const (
	// TailServo: plain pitch servo on a shaft-driven tail.
	TailServo TailType = iota
	// TailServoExtGyro: pitch servo plus an external gyro between this
	// unit and the servo. The gyro expects its gain on the aux channel
	// and owns torque compensation.
	TailServoExtGyro
	// TailDirectDriveVarPitch: electric tail motor held at constant
	// speed by its own controller, yaw still via the pitch servo.
	TailDirectDriveVarPitch
	// TailDirectDriveFixedPitch: electric tail motor whose speed IS the
	// yaw authority. No tail servo at all.
	TailDirectDriveFixedPitch
)

// ParseTailType maps a config string to a tail type. Unknown strings
// fall back to the plain servo tail alongside the error: a wrong label
// must never leave the tail dead.
func ParseTailType(s string) (TailType, error) {
	switch s {
	case "servo":
		return TailServo, nil
	case "servo_extgyro":
		return TailServoExtGyro, nil
	case "dd_varpitch":
		return TailDirectDriveVarPitch, nil
	case "dd_fixedpitch":
		return TailDirectDriveFixedPitch, nil
	default:
		return TailServo, fmt.Errorf("unknown tail type %q, using servo", s)
	}
}

func (t TailType) String() string {
	switch t {
	case TailServo:
		return "servo"
	case TailServoExtGyro:
		return "servo_extgyro"
	case TailDirectDriveVarPitch:
		return "dd_varpitch"
	case TailDirectDriveFixedPitch:
		return "dd_fixedpitch"
	default:
		return "unknown"
	}
}

// usesTailServo reports whether a pitch servo sits on the tail channel.
func (t TailType) usesTailServo() bool {
	return t != TailDirectDriveFixedPitch
}

// usesAuxChannel reports whether the aux channel carries something:
// gyro gain or a direct-drive tail ESC.
func (t TailType) usesAuxChannel() bool {
	return t != TailServo
}

// directDrive reports whether the tail motor has its own speed
// controller on the aux channel.
func (t TailType) directDrive() bool {
	return t == TailDirectDriveVarPitch || t == TailDirectDriveFixedPitch
}
