package debug

import (
	"fmt"
	"io"
	"log"
	"os"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (geometry, masks, arming gates)
	LevelLive    = 2 // Live info (arm/disarm, governor state changes)
	LevelVerbose = 3 // Verbose (mixing maths, ramp details)
	LevelTrace   = 4 // Trace (per-channel PWM writes, very low level)
)

var (
	level  int
	logger *log.Logger
)

// Init initializes the debug system with a level (0-4).
// 0 = no output
// 1 = important info (swash geometry, motor mask, arming readiness)
// 2 = live info (arm/disarm, rotor state transitions, motor tests)
// 3 = verbose (factor calculations, feed-forward, ramp increments)
// 4 = trace (every PWM channel write)
func Init(debugLevel int) {
	level = debugLevel
	if level > LevelOff {
		logger = log.New(os.Stdout, "[HeliGo] ", log.LstdFlags|log.Lmicroseconds)
	}
}

// SetOutput redirects debug output, e.g. to a multi-writer that also
// feeds the web console event stream.
func SetOutput(w io.Writer) {
	if logger != nil {
		logger.SetOutput(w)
	}
}

// Level returns the current debug level.
func Level() int {
	return level
}

// IsEnabled returns true if debug level is >= the requested level.
func IsEnabled(minLevel int) bool {
	return level >= minLevel
}

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	if level >= LevelInfo && logger != nil {
		logger.Printf("[INFO] "+format, args...)
	}
}

// Summary prints an important summary (level 1).
func Summary(title string) {
	if level >= LevelOff && logger != nil {
		logger.Printf("═══════════════════════════════════════")
		logger.Printf("  %s", title)
		logger.Printf("═══════════════════════════════════════")
	}
}

// Factors prints the computed swash factor rows (level 1).
func Factors(axis string, s1, s2, s3 float64) {
	if level >= LevelInfo && logger != nil {
		logger.Printf("[INFO] Swash %s factors: servo1=%+.4f servo2=%+.4f servo3=%+.4f", axis, s1, s2, s3)
	}
}

// Value prints a named value in formatted form (level 1).
func Value(name string, value interface{}) {
	if level >= LevelInfo && logger != nil {
		logger.Printf("[INFO]   %s = %v", name, value)
	}
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	if level >= LevelLive && logger != nil {
		logger.Printf("[LIVE] "+format, args...)
	}
}

// Arm prints an arming transition (level 2).
func Arm(armed bool) {
	if level >= LevelLive && logger != nil {
		if armed {
			logger.Printf("[LIVE] Motors ARMED")
		} else {
			logger.Printf("[LIVE] Motors DISARMED")
		}
	}
}

// Governor prints a rotor speed controller transition (level 2).
func Governor(name string, state string, desired, ramp int16) {
	if level >= LevelLive && logger != nil {
		logger.Printf("[LIVE] Rotor %s: %s (desired=%d ramp=%d)", name, state, desired, ramp)
	}
}

// MotorTest prints a bench motor test write (level 2).
func MotorTest(seq int, channel int, pulseUs uint16) {
	if level >= LevelLive && logger != nil {
		logger.Printf("[LIVE] Motor test seq=%d: channel=%d pulse=%dus", seq, channel, pulseUs)
	}
}

// --- Level 3 functions (Verbose): everything ---

// Verbose prints a level 3 message (verbose).
func Verbose(format string, args ...interface{}) {
	if level >= LevelVerbose && logger != nil {
		logger.Printf("[VERBOSE] "+format, args...)
	}
}

// Printf is an alias for Verbose for compatibility.
func Printf(format string, args ...interface{}) {
	Verbose(format, args...)
}

// Println prints a level 3 message followed by a newline.
func Println(args ...interface{}) {
	if level >= LevelVerbose && logger != nil {
		logger.Println(args...)
	}
}

// PrintStruct prints a struct in formatted form (level 3).
func PrintStruct(name string, v interface{}) {
	if level >= LevelVerbose && logger != nil {
		logger.Printf("[VERBOSE] %s: %+v", name, v)
	}
}

// Step prints a numbered initialization step (level 3).
func Step(num int, description string) {
	if level >= LevelVerbose && logger != nil {
		logger.Printf("[VERBOSE] Step %d: %s", num, description)
	}
}

// Section prints a section separator (level 3).
func Section(name string) {
	if level >= LevelVerbose && logger != nil {
		logger.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		logger.Printf("  %s", name)
		logger.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	}
}

// Mix prints the per-tick mixing outcome (level 3).
func Mix(roll, pitch, collective, yaw int16, s1, s2, s3 int16) {
	if level >= LevelVerbose && logger != nil {
		logger.Printf("[VERBOSE] Mix in(r=%d p=%d c=%d y=%d) -> swash(%d, %d, %d)", roll, pitch, collective, yaw, s1, s2, s3)
	}
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message (trace, PWM).
func Trace(format string, args ...interface{}) {
	if level >= LevelTrace && logger != nil {
		logger.Printf("[TRACE] "+format, args...)
	}
}

// Output prints a PWM channel write (level 4).
func Output(operation string, channel int, pulseUs uint16) {
	if level >= LevelTrace && logger != nil {
		logger.Printf("[PWM] %s channel=%d pulse=%dus", operation, channel, pulseUs)
	}
}

// --- General functions ---

// Error prints a debug error (level 1+).
func Error(err error) {
	if level >= LevelInfo && logger != nil {
		logger.Printf("[ERROR] %v", err)
	}
}

// Fmt is a helper function that returns a formatted string
// only if debug is enabled (to avoid unnecessary allocations).
func Fmt(format string, args ...interface{}) string {
	if level > 0 {
		return fmt.Sprintf(format, args...)
	}
	return ""
}
