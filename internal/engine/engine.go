// Package engine is the exercise repetition state engine: it smooths joint
// angles, calibrates, classifies posture, counts repetitions and produces one
// feedback event per frame.
//
// The engine holds no per-connection state. Callers keep a Session value and
// thread it through Step and Configure, which makes every transition testable
// without any I/O.
package engine

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/claude/repcoach/internal/geometry"
	"github.com/claude/repcoach/internal/models"
)

// ErrUnknownMode is returned when a config event names an unsupported exercise.
var ErrUnknownMode = errors.New("unknown exercise mode")

// Config holds the tuned constants of the state machine.
type Config struct {
	RepCooldown       time.Duration // minimum time between two counted reps
	EmphasisFrames    int           // frames highlighted after a counted rep
	CalibrationTarget int           // ready frames required before tracking
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		RepCooldown:       600 * time.Millisecond,
		EmphasisFrames:    15,
		CalibrationTarget: 10,
	}
}

// Validate rejects configurations the state machine cannot run with.
func (c Config) Validate() error {
	if c.RepCooldown < 0 {
		return fmt.Errorf("rep cooldown must not be negative, got %s", c.RepCooldown)
	}
	if c.EmphasisFrames < 0 {
		return fmt.Errorf("emphasis frames must not be negative, got %d", c.EmphasisFrames)
	}
	if c.CalibrationTarget <= 0 {
		return fmt.Errorf("calibration target must be positive, got %d", c.CalibrationTarget)
	}
	return nil
}

// Engine evaluates frames against the policy of each session's mode.
type Engine struct {
	cfg      Config
	policies map[models.Mode]Policy
}

// New creates an Engine with the Curl and Squat policies registered.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	e := &Engine{cfg: cfg, policies: make(map[models.Mode]Policy)}
	for _, p := range []Policy{Curl{}, Squat{}} {
		e.policies[p.Mode()] = p
	}
	return e, nil
}

// Config returns the engine's tunables.
func (e *Engine) Config() Config {
	return e.cfg
}

// Policy returns the policy registered for mode.
func (e *Engine) Policy(mode models.Mode) (Policy, bool) {
	p, ok := e.policies[mode]
	return p, ok
}

// NewSession returns a calibrating session for mode.
func (e *Engine) NewSession(mode models.Mode) (Session, error) {
	if _, ok := e.policies[mode]; !ok {
		return Session{}, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	return fresh(mode), nil
}

// Configure applies a config event. Every mutable field is reset, including
// when the mode is unchanged; applying the same event twice yields the same
// session. On error the input session is returned untouched.
func (e *Engine) Configure(s Session, ev models.ConfigEvent) (Session, error) {
	mode, err := models.ParseMode(ev.Mode)
	if err != nil {
		return s, fmt.Errorf("%w: %q", ErrUnknownMode, ev.Mode)
	}
	if _, ok := e.policies[mode]; !ok {
		return s, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	return fresh(mode), nil
}

// Step processes one frame. lm is nil when no body was detected. now is the
// frame's timestamp and drives the rep cooldown.
func (e *Engine) Step(s Session, lm *models.LandmarkSet, now time.Time) (Session, models.Event) {
	p, ok := e.policies[s.Mode]
	if !ok {
		panic(fmt.Sprintf("engine: session has no policy for mode %q", s.Mode))
	}

	pose, ok := p.Select(lm)
	if !ok {
		return s, neutralEvent(s)
	}

	// Samples are whole degrees, truncated, before smoothing.
	raw := math.Trunc(geometry.JointAngle(&pose.A, &pose.B, &pose.C))
	angle := s.Angles.Add(raw)
	count := func() bool { return countRep(&s, now, e.cfg) }

	var (
		v        Verdict
		progress int
	)
	if s.Phase == PhaseActive {
		v = p.Evaluate(&s, pose, angle, count)
	} else {
		v, progress = calibrate(&s, p.Calibration(), angle, e.cfg.CalibrationTarget)
	}

	ev := emit(&s, v, angle, progress, pose.Keypoints)
	return s, ev
}
