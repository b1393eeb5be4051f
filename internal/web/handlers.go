package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"net/http"
	"time"

	"github.com/cjeanneret/HeliGo/internal/logic/flight"
	"github.com/cjeanneret/HeliGo/internal/logic/heli"
)

// maxBodyBytes caps API request bodies. Every legitimate payload is a
// handful of small fields.
const maxBodyBytes = 1 << 16

// Controller is what the console needs from the flight loop, split out
// so handler tests can drive a fake without ticking real hardware.
type Controller interface {
	Arm() error
	Disarm() error
	EmergencyStop() error
	SetDemand(d heli.Demand) error
	SetRotorSpeed(v int16) error
	SetExtGyroGain(v int16) error
	MotorTest(motorSeq int, pulseUs uint16, hold time.Duration) error
	Status() (flight.Status, error)
}

// Params is the active configuration echoed at GET /api/config. Fixed
// at startup; live state lives in the status snapshot instead.
type Params struct {
	SwashType          string  `json:"swash_type"`
	Servo1PosDeg       int     `json:"servo1_pos_deg"`
	Servo2PosDeg       int     `json:"servo2_pos_deg"`
	Servo3PosDeg       int     `json:"servo3_pos_deg"`
	PhaseAngleDeg      int     `json:"phase_angle_deg"`
	TailType           string  `json:"tail_type"`
	ExtGyroGain        int     `json:"ext_gyro_gain"`
	DirectDriveSpeed   int     `json:"direct_drive_speed"`
	CollectiveYawScale float64 `json:"collective_yaw_scale"`
	Flybar             bool    `json:"flybar"`
	GovernorMode       string  `json:"governor_mode"`
	CriticalSpeed      int     `json:"critical_speed"`
	RampSeconds        float64 `json:"ramp_seconds"`
	LoopRateHz         int     `json:"loop_rate_hz"`
	MockPWM            bool    `json:"mock_pwm"`
}

// Handlers holds dependencies for the console endpoints.
// If ctrl is nil every command endpoint returns 503.
type Handlers struct {
	ctrl     Controller
	events   *Broadcaster
	params   Params
	staticFS fs.FS
}

func NewHandlers(ctrl Controller, events *Broadcaster, params Params, staticFS fs.FS) *Handlers {
	return &Handlers{
		ctrl:     ctrl,
		events:   events,
		params:   params,
		staticFS: staticFS,
	}
}

// ---------- request payloads ----------

// DemandRequest carries the four commanded axes, full throw ±1000.
// Out-of-range values are clamped by the core, never rejected.
type DemandRequest struct {
	Roll       int16 `json:"roll"`
	Pitch      int16 `json:"pitch"`
	Collective int16 `json:"collective"`
	Yaw        int16 `json:"yaw"`
}

// RotorRequest commands the main rotor speed target (0-1000).
type RotorRequest struct {
	DesiredSpeed int16 `json:"desired_speed"`
}

// ArmRequest switches the armed state.
type ArmRequest struct {
	Armed bool `json:"armed"`
}

// GainRequest adjusts the external gyro gain (0-1000).
type GainRequest struct {
	Gain int16 `json:"gain"`
}

// MotorTestRequest selects one actuator and the raw pulse to stream.
type MotorTestRequest struct {
	Motor   int     `json:"motor"`
	PulseUs int     `json:"pulse_us"`
	Seconds float64 `json:"seconds"`
}

// ValidateMotorTest bounds a bench test request: sequence numbers 1-6,
// pulse within the 1000-2000 µs actuator range, hold of at most 10 s
// (0 picks the default hold).
func ValidateMotorTest(req MotorTestRequest) error {
	if req.Motor < 1 || req.Motor > 6 {
		return fmt.Errorf("motor must be between 1 and 6")
	}
	if req.PulseUs < 1000 || req.PulseUs > 2000 {
		return fmt.Errorf("pulse_us must be between 1000 and 2000")
	}
	if math.IsNaN(req.Seconds) || math.IsInf(req.Seconds, 0) {
		return fmt.Errorf("seconds must be a finite number")
	}
	if req.Seconds < 0 || req.Seconds > 10 {
		return fmt.Errorf("seconds must be between 0 and 10")
	}
	return nil
}

// ---------- handlers ----------

func (h *Handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w)
	if !ok {
		return
	}
	s, err := ctrl.Status()
	if err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, s)
}

func (h *Handlers) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.params)
}

func (h *Handlers) handleDemand(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w)
	if !ok {
		return
	}
	var req DemandRequest
	if !h.decode(w, r, &req) {
		return
	}
	err := ctrl.SetDemand(heli.Demand{
		Roll:       req.Roll,
		Pitch:      req.Pitch,
		Collective: req.Collective,
		Yaw:        req.Yaw,
	})
	if err != nil {
		h.commandError(w, err)
		return
	}
	writeOK(w)
}

func (h *Handlers) handleRotor(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w)
	if !ok {
		return
	}
	var req RotorRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := ctrl.SetRotorSpeed(req.DesiredSpeed); err != nil {
		h.commandError(w, err)
		return
	}
	writeOK(w)
}

func (h *Handlers) handleArm(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w)
	if !ok {
		return
	}
	var req ArmRequest
	if !h.decode(w, r, &req) {
		return
	}
	var err error
	if req.Armed {
		err = ctrl.Arm()
	} else {
		err = ctrl.Disarm()
	}
	if err != nil {
		h.commandError(w, err)
		return
	}
	writeOK(w)
}

func (h *Handlers) handleMotorTest(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w)
	if !ok {
		return
	}
	var req MotorTestRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := ValidateMotorTest(req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	hold := time.Duration(req.Seconds * float64(time.Second))
	if err := ctrl.MotorTest(req.Motor, uint16(req.PulseUs), hold); err != nil {
		h.commandError(w, err)
		return
	}
	writeOK(w)
}

func (h *Handlers) handleEstop(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w)
	if !ok {
		return
	}
	if err := ctrl.EmergencyStop(); err != nil {
		h.commandError(w, err)
		return
	}
	h.events.Broadcast("error", "EMERGENCY STOP")
	writeOK(w)
}

func (h *Handlers) handleGyroGain(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w)
	if !ok {
		return
	}
	var req GainRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := ctrl.SetExtGyroGain(req.Gain); err != nil {
		h.commandError(w, err)
		return
	}
	writeOK(w)
}

// handleEvents streams broadcaster events over SSE.
func (h *Handlers) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.events.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// serveIndex serves the console page (root path only).
func (h *Handlers) serveIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// ---------- helpers ----------

func (h *Handlers) controller(w http.ResponseWriter) (Controller, bool) {
	if h.ctrl == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "flight loop not attached")
		return nil, false
	}
	return h.ctrl, true
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

// commandError maps loop refusals: a stopped loop is an outage, every
// other refusal is a state conflict the console must resolve first.
func (h *Handlers) commandError(w http.ResponseWriter, err error) {
	if errors.Is(err, flight.ErrStopped) {
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSONError(w, http.StatusConflict, err.Error())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	if msg == "" {
		msg = http.StatusText(status)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
