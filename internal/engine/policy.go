package engine

import (
	"github.com/claude/repcoach/internal/geometry"
	"github.com/claude/repcoach/internal/models"
)

// Pose is the set of landmarks a policy tracks in one frame.
type Pose struct {
	A, B, C   models.Point // joint triple; B is the vertex
	Lean      float64      // tilt checked by the policy's form rule, degrees
	Keypoints models.Keypoints
}

// Thresholds gate the calibration phase on the smoothed angle.
type Thresholds struct {
	Ready     float64 // above: counts toward calibration
	Committed float64 // below: user is already mid-rep, start tracking now
}

// Verdict is the feedback produced for one frame.
type Verdict struct {
	Feedback string
	Color    models.Color
	Remark   string
}

// Policy is the exercise-specific rule set: which landmarks matter, which
// thresholds apply and which form checks run.
type Policy interface {
	Mode() models.Mode

	// Calibration returns the ready/committed thresholds for this exercise.
	Calibration() Thresholds

	// Select picks the tracked landmarks. It returns false when the set is nil
	// or the confidence gate fails; no angle is computed for that frame.
	Select(lm *models.LandmarkSet) (Pose, bool)

	// Evaluate classifies an active-phase frame. It may move s.State and calls
	// count when the pose reaches the rep-completing threshold; count applies
	// the shared state machine rules and reports whether a rep was recorded.
	Evaluate(s *Session, p Pose, angle float64, count func() bool) Verdict
}

func keypoint(p models.Point) [2]int {
	return [2]int{geometry.ToDisplayInt(p.X), geometry.ToDisplayInt(p.Y)}
}
