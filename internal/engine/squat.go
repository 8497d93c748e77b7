package engine

import (
	"github.com/claude/repcoach/internal/geometry"
	"github.com/claude/repcoach/internal/models"
)

const (
	squatMinConfidence = 0.3

	squatLeanLimit  = 50.0  // torso tilt from vertical
	squatDepthAngle = 95.0  // knee angle at good depth
	squatStandAngle = 160.0 // knee angle when standing, rep completes

	squatReadyAngle     = 160.0
	squatCommittedAngle = 140.0
)

// Squat tracks the left knee angle and the torso lean.
type Squat struct{}

func (Squat) Mode() models.Mode { return models.ModeSquat }

func (Squat) Calibration() Thresholds {
	return Thresholds{Ready: squatReadyAngle, Committed: squatCommittedAngle}
}

func (Squat) Select(lm *models.LandmarkSet) (Pose, bool) {
	if !lm.Usable(models.LeftHip, squatMinConfidence) || !lm.Usable(models.LeftKnee, squatMinConfidence) {
		return Pose{}, false
	}

	hip, knee, ankle := lm[models.LeftHip].Point, lm[models.LeftKnee].Point, lm[models.LeftAnkle].Point
	shoulder := lm[models.LeftShoulder].Point
	return Pose{
		A:    hip,
		B:    knee,
		C:    ankle,
		Lean: geometry.VerticalTilt(&shoulder, &hip),
		Keypoints: models.Keypoints{
			"hip":      keypoint(hip),
			"knee":     keypoint(knee),
			"ankle":    keypoint(ankle),
			"shoulder": keypoint(shoulder),
		},
	}, true
}

func (Squat) Evaluate(s *Session, p Pose, angle float64, count func() bool) Verdict {
	switch {
	case p.Lean > squatLeanLimit:
		return Verdict{Feedback: FeedbackChestUp, Color: models.ColorRed, Remark: RemarkChestUp}

	case angle < squatDepthAngle:
		s.State = StateDown
		return Verdict{Feedback: FeedbackGoodDepth, Color: models.ColorGreen}

	case angle > squatStandAngle:
		count()
		return Verdict{Feedback: FeedbackStand, Color: models.ColorCyan}

	default:
		return Verdict{Feedback: FeedbackLower, Color: models.ColorOrange}
	}
}
