package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Mode identifies the exercise being tracked.
type Mode string

const (
	ModeCurl  Mode = "curl"
	ModeSquat Mode = "squat"
)

// DefaultMode is used when a config message omits the mode.
const DefaultMode = ModeSquat

// ParseMode normalizes a mode name. Unknown names return an error.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeCurl:
		return ModeCurl, nil
	case ModeSquat:
		return ModeSquat, nil
	case "":
		return DefaultMode, nil
	}
	return "", fmt.Errorf("unknown exercise mode %q", s)
}

// Color is a semantic rendering tag for feedback text.
type Color string

const (
	ColorGray   Color = "gray"
	ColorRed    Color = "red"
	ColorYellow Color = "yellow"
	ColorOrange Color = "orange"
	ColorCyan   Color = "cyan"
	ColorGreen  Color = "green"
)

// Keypoints maps a landmark role (e.g. "elbow") to integer pixel coordinates.
type Keypoints map[string][2]int

// Event is the feedback message emitted for every processed frame.
type Event struct {
	Reps      int       `json:"reps"`
	Feedback  string    `json:"feedback"`
	Color     Color     `json:"color"`
	Angle     int       `json:"angle"`
	AIRemark  string    `json:"ai_remark"`
	Keypoints Keypoints `json:"keypoints"`

	Mode     Mode   `json:"mode"`
	Phase    string `json:"phase"`
	Progress int    `json:"progress,omitempty"` // calibration percent
	Emphasis bool   `json:"emphasis"`

	// Base64 JPEG with the overlay drawn, set only when an image pipeline is configured.
	ProcessedImage string `json:"processed_image,omitempty"`
}

// ConfigEvent switches the exercise mode and resets the session.
type ConfigEvent struct {
	Config bool   `json:"config"`
	Mode   string `json:"mode"`
}

// FrameMessage carries client-side landmarks instead of an image.
// A null landmarks field means no body was detected.
type FrameMessage struct {
	TimestampMs int64        `json:"t_ms,omitempty"`
	Landmarks   *LandmarkSet `json:"landmarks"`
}

// MessageKind classifies an inbound text message.
type MessageKind int

const (
	MessageImage MessageKind = iota
	MessageConfig
	MessageLandmarks
)

// ClassifyMessage inspects a text message without fully decoding it. JSON
// objects carrying a "config" key are config events, objects carrying a
// "landmarks" key are landmark frames, everything else is treated as an image.
func ClassifyMessage(data []byte) MessageKind {
	trimmed := strings.TrimSpace(string(data))
	if !strings.HasPrefix(trimmed, "{") {
		return MessageImage
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &probe); err != nil {
		return MessageImage
	}
	if _, ok := probe["config"]; ok {
		return MessageConfig
	}
	if _, ok := probe["landmarks"]; ok {
		return MessageLandmarks
	}
	return MessageImage
}
