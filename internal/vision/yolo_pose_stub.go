//go:build !gocv

package vision

import "log/slog"

// NewYOLOPose reports ErrUnavailable; build with -tags gocv for pose
// estimation. Landmark frames from clients still work without it.
func NewYOLOPose(opts Options, log *slog.Logger) (Estimator, error) {
	return nil, ErrUnavailable
}
