package engine

import (
	"github.com/claude/repcoach/internal/geometry"
	"github.com/claude/repcoach/internal/models"
)

const (
	curlMinShoulderConfidence = 0.5

	curlDownAngle  = 140.0 // arm extended
	curlUpAngle    = 80.0  // arm flexed, rep completes
	curlSwingLimit = 35.0  // elbow drift from vertical

	curlReadyAngle     = 150.0
	curlCommittedAngle = 130.0
)

var (
	curlLeft  = [3]int{models.LeftShoulder, models.LeftElbow, models.LeftWrist}
	curlRight = [3]int{models.RightShoulder, models.RightElbow, models.RightWrist}
)

// Curl tracks the elbow angle of whichever arm is better visible.
type Curl struct{}

func (Curl) Mode() models.Mode { return models.ModeCurl }

func (Curl) Calibration() Thresholds {
	return Thresholds{Ready: curlReadyAngle, Committed: curlCommittedAngle}
}

// Select re-picks the arm every frame so the user can turn or occlude one side.
func (Curl) Select(lm *models.LandmarkSet) (Pose, bool) {
	if lm == nil {
		return Pose{}, false
	}
	side := curlRight
	if lm.ConfidenceSum(curlLeft[:]...) > lm.ConfidenceSum(curlRight[:]...) {
		side = curlLeft
	}
	if !lm.Usable(side[0], curlMinShoulderConfidence) {
		return Pose{}, false
	}

	shoulder, elbow, wrist := lm[side[0]].Point, lm[side[1]].Point, lm[side[2]].Point
	return Pose{
		A:    shoulder,
		B:    elbow,
		C:    wrist,
		Lean: geometry.VerticalTilt(&shoulder, &elbow),
		Keypoints: models.Keypoints{
			"shoulder": keypoint(shoulder),
			"elbow":    keypoint(elbow),
			"wrist":    keypoint(wrist),
		},
	}, true
}

func (Curl) Evaluate(s *Session, p Pose, angle float64, count func() bool) Verdict {
	switch {
	case angle > curlDownAngle:
		s.State = StateDown
		return Verdict{Feedback: FeedbackStretch, Color: models.ColorCyan}

	case angle < curlUpAngle:
		count()
		// Form is judged on every flexed frame, counted or not.
		if p.Lean > curlSwingLimit {
			return Verdict{Feedback: FeedbackElbowSwing, Color: models.ColorOrange, Remark: RemarkElbowSwing}
		}
		return Verdict{Feedback: FeedbackPerfect, Color: models.ColorGreen}

	default:
		return Verdict{Feedback: FeedbackCurling, Color: models.ColorOrange}
	}
}
