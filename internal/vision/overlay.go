package vision

import (
	"image"
	"image/color"
	"strconv"

	"github.com/claude/repcoach/internal/engine"
	"github.com/claude/repcoach/internal/models"
)

// Overlay colors.
var (
	colorGlow   = color.RGBA{R: 255, G: 255, B: 0, A: 255}
	colorActive = color.RGBA{G: 255, A: 255}
	colorIdle   = color.RGBA{R: 255, A: 255}
	colorBack   = color.RGBA{R: 255, G: 255, A: 255}
	colorWarn   = color.RGBA{R: 255, A: 255}
	colorLabel  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

const (
	thicknessGlow   = 10
	thicknessNormal = 4
	thicknessLabel  = 2
)

// Segment is one line of the overlay.
type Segment struct {
	From, To  image.Point
	Color     color.RGBA
	Thickness int
}

// Overlay is everything drawn on a frame for one event.
type Overlay struct {
	Segments []Segment
	Label    string
	LabelAt  image.Point
}

// Empty reports whether there is nothing to draw.
func (o Overlay) Empty() bool {
	return len(o.Segments) == 0
}

// limb roles per mode: proximal, joint, distal.
var limbRoles = map[models.Mode][3]string{
	models.ModeCurl:  {"shoulder", "elbow", "wrist"},
	models.ModeSquat: {"hip", "knee", "ankle"},
}

// PlanOverlay computes the overlay for ev: the tracked limb (glowing while a
// rep is emphasized, green when active, red while calibrating), the squat
// back line, and the angle next to the joint.
func PlanOverlay(ev models.Event) Overlay {
	roles, ok := limbRoles[ev.Mode]
	if !ok {
		return Overlay{}
	}
	a, okA := ev.Keypoints[roles[0]]
	b, okB := ev.Keypoints[roles[1]]
	c, okC := ev.Keypoints[roles[2]]
	if !okA || !okB || !okC {
		return Overlay{}
	}

	limbColor, thickness := colorIdle, thicknessNormal
	switch {
	case ev.Emphasis:
		limbColor, thickness = colorGlow, thicknessGlow
	case ev.Phase == string(engine.PhaseActive):
		limbColor = colorActive
	}

	joint := pt(b)
	o := Overlay{
		Segments: []Segment{
			{From: pt(a), To: joint, Color: limbColor, Thickness: thickness},
			{From: joint, To: pt(c), Color: limbColor, Thickness: thickness},
		},
		Label:   strconv.Itoa(ev.Angle),
		LabelAt: joint.Add(image.Pt(-40, -20)),
	}

	if ev.Mode == models.ModeSquat {
		o.LabelAt = joint.Add(image.Pt(-50, -20))
		if s, ok := ev.Keypoints["shoulder"]; ok {
			back := colorBack
			if ev.AIRemark == engine.RemarkChestUp {
				back = colorWarn
			}
			o.Segments = append(o.Segments, Segment{From: pt(s), To: pt(a), Color: back, Thickness: thicknessNormal})
		}
	}
	return o
}

func pt(p [2]int) image.Point {
	return image.Pt(p[0], p[1])
}
