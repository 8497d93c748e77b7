package vision

import (
	"image"

	"github.com/claude/repcoach/internal/models"
)

// yolov8-pose output rows: 4 box values, 1 person score, 17×3 keypoints.
const (
	poseBoxValues = 4
	poseRows      = poseBoxValues + 1 + models.NumKeypoints*3
)

// candidate is one person proposal decoded from the network output, already
// scaled to frame pixels.
type candidate struct {
	Box       image.Rectangle
	Score     float32
	Landmarks models.LandmarkSet
}

// decodePoseOutput parses a channel-major [56, n] output tensor. Proposals at
// or below minScore are skipped. sx and sy scale network input pixels to frame
// pixels.
func decodePoseOutput(data []float32, n int, minScore float32, sx, sy float32) []candidate {
	if n <= 0 || len(data) < poseRows*n {
		return nil
	}
	at := func(row, i int) float32 { return data[row*n+i] }

	var out []candidate
	for i := 0; i < n; i++ {
		score := at(poseBoxValues, i)
		if score <= minScore {
			continue
		}
		cx, cy, w, h := at(0, i), at(1, i), at(2, i), at(3, i)
		c := candidate{
			Box: image.Rect(
				int((cx-w/2)*sx), int((cy-h/2)*sy),
				int((cx+w/2)*sx), int((cy+h/2)*sy),
			),
			Score: score,
		}
		for k := 0; k < models.NumKeypoints; k++ {
			row := poseBoxValues + 1 + k*3
			c.Landmarks[k] = models.Landmark{
				Point:      models.Point{X: float64(at(row, i) * sx), Y: float64(at(row+1, i) * sy)},
				Confidence: float64(at(row+2, i)),
			}
		}
		out = append(out, c)
	}
	return out
}

// largestPerson returns the index of the candidate with the largest box area,
// or -1 for an empty slice. Ties keep the earlier candidate.
func largestPerson(cands []candidate) int {
	best, bestArea := -1, -1
	for i, c := range cands {
		area := c.Box.Dx() * c.Box.Dy()
		if area > bestArea {
			best, bestArea = i, area
		}
	}
	return best
}
