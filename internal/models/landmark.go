package models

import (
	"encoding/json"
	"fmt"
	"math"
)

// COCO keypoint indices as emitted by YOLOv8-pose.
const (
	Nose = iota
	LeftEye
	RightEye
	LeftEar
	RightEar
	LeftShoulder
	RightShoulder
	LeftElbow
	RightElbow
	LeftWrist
	RightWrist
	LeftHip
	RightHip
	LeftKnee
	RightKnee
	LeftAnkle
	RightAnkle
	NumKeypoints
)

// Point is a 2D image coordinate in pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Landmark is a tracked body point with a detection confidence in [0,1].
type Landmark struct {
	Point
	Confidence float64 `json:"confidence"`
}

// UnmarshalJSON accepts either the compact [x, y, confidence] triple used on the
// wire or an object with x, y and confidence fields.
func (l *Landmark) UnmarshalJSON(data []byte) error {
	var triple []float64
	if err := json.Unmarshal(data, &triple); err == nil {
		if len(triple) != 3 {
			return fmt.Errorf("landmark: want 3 values, got %d", len(triple))
		}
		l.X, l.Y, l.Confidence = triple[0], triple[1], triple[2]
		return nil
	}

	var obj struct {
		X          float64 `json:"x"`
		Y          float64 `json:"y"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("landmark: %w", err)
	}
	l.X, l.Y, l.Confidence = obj.X, obj.Y, obj.Confidence
	return nil
}

// MarshalJSON writes the compact [x, y, confidence] form.
func (l Landmark) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]float64{l.X, l.Y, l.Confidence})
}

// LandmarkSet holds one person's 17 landmarks in COCO order.
// A nil *LandmarkSet means no body was detected in the frame.
type LandmarkSet [NumKeypoints]Landmark

// UnmarshalJSON requires exactly NumKeypoints entries.
func (s *LandmarkSet) UnmarshalJSON(data []byte) error {
	var points []Landmark
	if err := json.Unmarshal(data, &points); err != nil {
		return err
	}
	if len(points) != NumKeypoints {
		return fmt.Errorf("landmark set: want %d points, got %d", NumKeypoints, len(points))
	}
	copy(s[:], points)
	return nil
}

// Usable reports whether landmark i exists and its confidence exceeds min.
func (s *LandmarkSet) Usable(i int, min float64) bool {
	if s == nil || i < 0 || i >= NumKeypoints {
		return false
	}
	c := s[i].Confidence
	return !math.IsNaN(c) && c > min
}

// At returns a pointer to the position of landmark i, or nil if the set is nil
// or the index is out of range.
func (s *LandmarkSet) At(i int) *Point {
	if s == nil || i < 0 || i >= NumKeypoints {
		return nil
	}
	p := s[i].Point
	return &p
}

// ConfidenceSum adds the confidences of the given landmarks.
func (s *LandmarkSet) ConfidenceSum(idx ...int) float64 {
	if s == nil {
		return 0
	}
	var sum float64
	for _, i := range idx {
		if i >= 0 && i < NumKeypoints {
			sum += s[i].Confidence
		}
	}
	return sum
}
