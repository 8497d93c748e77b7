package engine

import (
	"math"
	"testing"
	"time"

	"github.com/claude/repcoach/internal/models"
)

var t0 = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

// frameAt returns the timestamp of frame i at ~30 fps.
func frameAt(i int) time.Time {
	return t0.Add(time.Duration(i) * 33 * time.Millisecond)
}

func rad(deg float64) float64 { return deg * math.Pi / 180 }

// rotate turns the unit vector (ux, uy) by deg degrees.
func rotate(ux, uy, deg float64) (float64, float64) {
	a := rad(deg)
	return ux*math.Cos(a) - uy*math.Sin(a), ux*math.Sin(a) + uy*math.Cos(a)
}

func lowConfidenceSet() *models.LandmarkSet {
	var lm models.LandmarkSet
	for i := range lm {
		lm[i].Confidence = 0.1
	}
	return &lm
}

// armSet builds a left arm whose elbow angle is angle degrees and whose upper
// arm leans tilt degrees from vertical.
func armSet(angle, tilt float64) *models.LandmarkSet {
	lm := lowConfidenceSet()
	shoulder := models.Point{X: 200, Y: 100}
	elbow := models.Point{X: shoulder.X + 100*math.Sin(rad(tilt)), Y: shoulder.Y + 100*math.Cos(rad(tilt))}
	ux, uy := (shoulder.X-elbow.X)/100, (shoulder.Y-elbow.Y)/100
	wx, wy := rotate(ux, uy, angle)
	wrist := models.Point{X: elbow.X + 100*wx, Y: elbow.Y + 100*wy}

	lm[models.LeftShoulder] = models.Landmark{Point: shoulder, Confidence: 0.9}
	lm[models.LeftElbow] = models.Landmark{Point: elbow, Confidence: 0.9}
	lm[models.LeftWrist] = models.Landmark{Point: wrist, Confidence: 0.9}
	return lm
}

// legSet builds a left leg whose knee angle is knee degrees and whose torso
// leans lean degrees from vertical.
func legSet(knee, lean float64) *models.LandmarkSet {
	lm := lowConfidenceSet()
	hip := models.Point{X: 200, Y: 300}
	kneeP := models.Point{X: 200, Y: 400}
	ax, ay := rotate(0, -1, knee)
	ankle := models.Point{X: kneeP.X + 100*ax, Y: kneeP.Y + 100*ay}
	shoulder := models.Point{X: hip.X + 150*math.Sin(rad(lean)), Y: hip.Y - 150*math.Cos(rad(lean))}

	lm[models.LeftShoulder] = models.Landmark{Point: shoulder, Confidence: 0.9}
	lm[models.LeftHip] = models.Landmark{Point: hip, Confidence: 0.9}
	lm[models.LeftKnee] = models.Landmark{Point: kneeP, Confidence: 0.9}
	lm[models.LeftAnkle] = models.Landmark{Point: ankle, Confidence: 0.9}
	return lm
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func newTestSession(t *testing.T, e *Engine, mode models.Mode) Session {
	t.Helper()
	s, err := e.NewSession(mode)
	if err != nil {
		t.Fatalf("NewSession(%s): %v", mode, err)
	}
	return s
}

// activeSession returns a session past calibration with the window filled
// with angle, as if the user had been holding that position.
func activeSession(mode models.Mode, state RepState, angle float64) Session {
	s := fresh(mode)
	s.Phase = PhaseActive
	s.State = state
	for i := 0; i < WindowSize; i++ {
		s.Angles.Add(angle)
	}
	return s
}
