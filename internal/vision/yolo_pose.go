//go:build gocv

package vision

import (
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"

	"github.com/claude/repcoach/internal/models"
	"gocv.io/x/gocv"
)

// YOLOPose runs a YOLOv8-pose ONNX model through OpenCV's DNN module.
type YOLOPose struct {
	net  gocv.Net
	opts Options
	log  *slog.Logger
	mu   sync.Mutex
}

// NewYOLOPose loads the model at opts.ModelPath.
func NewYOLOPose(opts Options, log *slog.Logger) (Estimator, error) {
	if _, err := os.Stat(opts.ModelPath); err != nil {
		return nil, fmt.Errorf("model file %s: %w", opts.ModelPath, err)
	}
	net := gocv.ReadNetFromONNX(opts.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("loading pose model from %s", opts.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	log.Info("pose model loaded", "path", opts.ModelPath, "input", opts.InputSize)
	return &YOLOPose{net: net, opts: opts, log: log}, nil
}

// Process decodes jpeg, limits its width and runs inference. The returned
// Frame owns the decoded image.
func (y *YOLOPose) Process(ctx context.Context, jpeg []byte) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if img.Empty() {
		img.Close()
		return nil, fmt.Errorf("decode image: %w", ErrEmptyFrame)
	}

	if w, h := ScaledSize(img.Cols(), img.Rows(), y.opts.MaxWidth); w != img.Cols() {
		resized := gocv.NewMat()
		gocv.Resize(img, &resized, image.Pt(w, h), 0, 0, gocv.InterpolationLinear)
		img.Close()
		img = resized
	}

	lm, err := y.infer(img)
	if err != nil {
		img.Close()
		return nil, err
	}
	return &matFrame{img: img, landmarks: lm, quality: y.opts.JPEGQuality}, nil
}

func (y *YOLOPose) infer(img gocv.Mat) (*models.LandmarkSet, error) {
	size := image.Pt(y.opts.InputSize, y.opts.InputSize)
	blob := gocv.BlobFromImage(img, 1.0/255.0, size, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	y.mu.Lock()
	y.net.SetInput(blob, "")
	output := y.net.Forward("")
	y.mu.Unlock()
	defer output.Close()

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("reading pose output: %w", err)
	}
	n := len(data) / poseRows
	sx := float32(img.Cols()) / float32(y.opts.InputSize)
	sy := float32(img.Rows()) / float32(y.opts.InputSize)

	cands := decodePoseOutput(data, n, y.opts.Confidence, sx, sy)
	if len(cands) == 0 {
		return nil, nil
	}

	boxes := make([]image.Rectangle, len(cands))
	scores := make([]float32, len(cands))
	for i, c := range cands {
		boxes[i], scores[i] = c.Box, c.Score
	}
	kept := gocv.NMSBoxes(boxes, scores, y.opts.Confidence, y.opts.IoU)
	survivors := make([]candidate, 0, len(kept))
	for _, i := range kept {
		survivors = append(survivors, cands[i])
	}

	best := largestPerson(survivors)
	if best < 0 {
		return nil, nil
	}
	lm := survivors[best].Landmarks
	y.log.Debug("pose detected", "people", len(survivors), "score", survivors[best].Score)
	return &lm, nil
}

// Close releases the network.
func (y *YOLOPose) Close() error {
	y.mu.Lock()
	defer y.mu.Unlock()
	return y.net.Close()
}

type matFrame struct {
	img       gocv.Mat
	landmarks *models.LandmarkSet
	quality   int
}

func (f *matFrame) Landmarks() *models.LandmarkSet {
	return f.landmarks
}

func (f *matFrame) Render(ev models.Event) (string, error) {
	o := PlanOverlay(ev)
	for _, s := range o.Segments {
		gocv.Line(&f.img, s.From, s.To, s.Color, s.Thickness)
	}
	if !o.Empty() {
		gocv.PutText(&f.img, o.Label, o.LabelAt, gocv.FontHersheySimplex, 1, colorLabel, thicknessLabel)
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, f.img, []int{int(gocv.IMWriteJpegQuality), f.quality})
	if err != nil {
		return "", fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()
	return base64.StdEncoding.EncodeToString(buf.GetBytes()), nil
}

func (f *matFrame) Close() {
	f.img.Close()
}
