// Package vision turns camera frames into landmarks and draws the tracked
// limb back onto the frame. The YOLOv8-pose implementation needs OpenCV and is
// only built with the gocv tag.
package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/claude/repcoach/internal/models"
)

var (
	// ErrUnavailable is returned by NewYOLOPose in builds without OpenCV.
	ErrUnavailable = errors.New("pose estimation not available in this build")
	// ErrEmptyFrame is returned for messages that carry no image data.
	ErrEmptyFrame = errors.New("empty frame")
)

// Estimator runs pose estimation on encoded camera frames.
type Estimator interface {
	Process(ctx context.Context, jpeg []byte) (Frame, error)
	Close() error
}

// Frame is one decoded camera frame with its pose result. Close must be
// called once the frame has been rendered or dropped.
type Frame interface {
	// Landmarks returns the selected person, or nil when nobody was detected.
	Landmarks() *models.LandmarkSet
	// Render draws the overlay for ev and returns the frame as base64 JPEG.
	Render(ev models.Event) (string, error)
	Close()
}

// Options configures the YOLOv8-pose estimator.
type Options struct {
	ModelPath   string
	Confidence  float32
	IoU         float32
	InputSize   int
	MaxWidth    int
	JPEGQuality int
}

// DefaultOptions returns the tuned defaults for yolov8n-pose.
func DefaultOptions() Options {
	return Options{
		ModelPath:   "models/yolov8n-pose.onnx",
		Confidence:  0.25,
		IoU:         0.45,
		InputSize:   640,
		MaxWidth:    480,
		JPEGQuality: 35,
	}
}

// DecodeFrame extracts JPEG bytes from a text message: either a data URL
// ("data:image/jpeg;base64,...") or bare base64.
func DecodeFrame(msg []byte) ([]byte, error) {
	payload := strings.TrimSpace(string(msg))
	if i := strings.IndexByte(payload, ','); i >= 0 {
		payload = payload[i+1:]
	}
	if payload == "" {
		return nil, ErrEmptyFrame
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// Some encoders drop the padding.
		var rawErr error
		if data, rawErr = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "=")); rawErr != nil {
			return nil, fmt.Errorf("decoding frame: %w", err)
		}
	}
	if len(data) == 0 {
		return nil, ErrEmptyFrame
	}
	return data, nil
}

// ScaledSize returns the frame size after limiting the width to maxWidth,
// keeping the aspect ratio. Frames already narrow enough are unchanged.
func ScaledSize(w, h, maxWidth int) (int, int) {
	if maxWidth <= 0 || w <= maxWidth {
		return w, h
	}
	return maxWidth, h * maxWidth / w
}
