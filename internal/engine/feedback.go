package engine

import (
	"github.com/claude/repcoach/internal/geometry"
	"github.com/claude/repcoach/internal/models"
)

// Feedback labels.
const (
	FeedbackStandInFrame = "stand in frame"
	FeedbackHoldStart    = "hold start position"
	FeedbackReadyFmt     = "ready %d%%"

	FeedbackStretch    = "stretch"
	FeedbackCurling    = "curling"
	FeedbackPerfect    = "perfect"
	FeedbackElbowSwing = "elbow swing"

	FeedbackChestUp   = "chest up"
	FeedbackGoodDepth = "good depth"
	FeedbackStand     = "stand"
	FeedbackLower     = "lower"
)

// Advisory remarks attached to form warnings.
const (
	RemarkElbowSwing = "Lock your elbows by your side!"
	RemarkChestUp    = "Keep chest high to save your back!"
)

// neutralEvent reports the session as-is when no body could be tracked.
func neutralEvent(s Session) models.Event {
	return models.Event{
		Reps:      s.Reps,
		Feedback:  FeedbackStandInFrame,
		Color:     models.ColorGray,
		Keypoints: models.Keypoints{},
		Mode:      s.Mode,
		Phase:     string(s.Phase),
	}
}

// emit builds the frame event and consumes one emphasis tick.
func emit(s *Session, v Verdict, angle float64, progress int, kp models.Keypoints) models.Event {
	emphasis := s.EmphasisTicks > 0
	if emphasis {
		s.EmphasisTicks--
	}
	if kp == nil {
		kp = models.Keypoints{}
	}
	return models.Event{
		Reps:      s.Reps,
		Feedback:  v.Feedback,
		Color:     v.Color,
		Angle:     geometry.ToDisplayInt(angle),
		AIRemark:  v.Remark,
		Keypoints: kp,
		Mode:      s.Mode,
		Phase:     string(s.Phase),
		Progress:  progress,
		Emphasis:  emphasis,
	}
}
