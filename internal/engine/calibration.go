package engine

import (
	"fmt"
	"math"

	"github.com/claude/repcoach/internal/models"
)

// calibrate advances the calibration phase for one frame and returns the
// verdict to show with the progress percent. A frame below the committed
// threshold activates the session but is not itself evaluated.
func calibrate(s *Session, th Thresholds, angle float64, target int) (v Verdict, progress int) {
	switch {
	case angle > th.Ready:
		s.CalibrationFrames++
		progress = int(math.Round(100 * float64(s.CalibrationFrames) / float64(target)))
		if s.CalibrationFrames > target {
			s.Phase = PhaseActive
		}
		return Verdict{Feedback: fmt.Sprintf(FeedbackReadyFmt, progress), Color: models.ColorYellow}, progress

	case angle < th.Committed:
		s.Phase = PhaseActive
		return Verdict{Feedback: FeedbackStandInFrame, Color: models.ColorGray}, 0

	default:
		return Verdict{Feedback: FeedbackHoldStart, Color: models.ColorRed}, 0
	}
}
