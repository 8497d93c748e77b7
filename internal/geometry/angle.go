// Package geometry computes joint angles from body landmarks.
//
// All functions are total: missing points, zero-length rays and NaN
// intermediates yield 0 instead of an error so a single bad frame never
// interrupts a live feedback stream.
package geometry

import (
	"math"

	"github.com/claude/repcoach/internal/models"
	"gonum.org/v1/gonum/spatial/r2"
)

func vec(p *models.Point) r2.Vec {
	return r2.Vec{X: p.X, Y: p.Y}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// JointAngle returns the angle at vertex b between the rays b→a and b→c,
// in degrees within [0, 180].
func JointAngle(a, b, c *models.Point) float64 {
	if a == nil || b == nil || c == nil {
		return 0
	}
	ba := r2.Sub(vec(a), vec(b))
	bc := r2.Sub(vec(c), vec(b))

	denom := r2.Norm(ba) * r2.Norm(bc)
	if denom == 0 || !finite(denom) {
		return 0
	}
	cos := r2.Dot(ba, bc) / denom
	if math.IsNaN(cos) {
		return 0
	}
	cos = math.Max(-1, math.Min(1, cos))

	deg := math.Acos(cos) * 180 / math.Pi
	if !finite(deg) {
		return 0
	}
	return deg
}

// VerticalTilt returns how far the line p–q leans from true vertical, in
// degrees within [0, 90]. Used for elbow drift and torso lean.
func VerticalTilt(p, q *models.Point) float64 {
	if p == nil || q == nil {
		return 0
	}
	d := r2.Sub(vec(p), vec(q))
	deg := math.Atan2(math.Abs(d.X), math.Abs(d.Y)) * 180 / math.Pi
	if !finite(deg) {
		return 0
	}
	return deg
}

// ToDisplayInt truncates v toward zero, mapping NaN and ±Inf to 0.
func ToDisplayInt(v float64) int {
	if !finite(v) {
		return 0
	}
	return int(v)
}
