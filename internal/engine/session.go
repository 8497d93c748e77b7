package engine

import (
	"time"

	"github.com/claude/repcoach/internal/models"
)

// Phase is the session's coarse lifecycle stage.
type Phase string

const (
	PhaseCalibrating Phase = "calibrating"
	PhaseActive      Phase = "active"
)

// RepState is the posture tag tracked by the repetition state machine.
type RepState string

const (
	StateStart RepState = "start"
	StateDown  RepState = "down"
	StateUp    RepState = "up"
)

// Session is the complete per-connection engine state. It is a plain value:
// Step and Configure take a Session and return the next one, so a caller can
// keep the previous value or compare snapshots freely.
type Session struct {
	Mode              models.Mode
	Reps              int
	Phase             Phase
	State             RepState
	CalibrationFrames int
	Angles            Smoother
	LastRep           time.Time // zero until the first counted rep
	EmphasisTicks     int
}

// Angle returns the current smoothed angle.
func (s Session) Angle() float64 {
	return s.Angles.Mean()
}

// Active reports whether calibration has completed.
func (s Session) Active() bool {
	return s.Phase == PhaseActive
}

// fresh returns a reset session for mode. Mode is assigned last.
func fresh(mode models.Mode) Session {
	var s Session
	s.Reps = 0
	s.Phase = PhaseCalibrating
	s.State = StateStart
	s.CalibrationFrames = 0
	s.Angles.Reset()
	s.LastRep = time.Time{}
	s.EmphasisTicks = 0
	s.Mode = mode
	return s
}
