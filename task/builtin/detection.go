package builtin

import (
	"fmt"
	"image"
	"image/color"

	"github.com/Jiadezhende/CleanSightBackend/frame"
	"github.com/Jiadezhende/CleanSightBackend/task"
)

// DetectionTaskName is the registry name of the keypoint detection task. The
// bending and cleanliness tasks declare it as a dependency.
const DetectionTaskName = "detection"

var detectionColor = color.RGBA{R: 255, A: 255}

// DetectionTask locates the endoscope in the frame and emits its keypoints.
// It has no dependencies and runs in the parallel phase.
type DetectionTask struct{}

// NewDetectionTask creates the keypoint detection task.
func NewDetectionTask() *DetectionTask {
	return &DetectionTask{}
}

func (d *DetectionTask) Name() string { return DetectionTaskName }

func (d *DetectionTask) RequiresContext() []string { return nil }

// Infer finds the region of interest and derives keypoints from it. The
// current detector is geometry based: it centers a bounding box on the frame
// and reports its corners plus the center, matching the placeholder stage of
// the deployed model.
func (d *DetectionTask) Infer(rec *frame.Record, tctx task.Context) task.Result {
	img, err := frame.Decode(rec.Image)
	if err != nil {
		return task.Failure(fmt.Sprintf("decode frame: %v", err))
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	cx, cy := w/2, h/2

	rw := min(200, w/4)
	rh := min(200, h/4)
	x1 := max(0, cx-rw/2)
	y1 := max(0, cy-rh/2)
	x2 := min(w, cx+rw/2)
	y2 := min(h, cy+rh/2)

	kps := []frame.Keypoint{
		{Name: "center", X: float64(cx), Y: float64(cy), Confidence: 1},
		{Name: "bbox_tl", X: float64(x1), Y: float64(y1), Confidence: 1},
		{Name: "bbox_br", X: float64(x2), Y: float64(y2), Confidence: 1},
	}

	return task.Result{
		Success:   true,
		Keypoints: kps,
		Data: map[string]any{
			"bbox":            []int{x1, y1, x2, y2},
			"detection_count": 1,
		},
	}
}

// Visualize draws the bounding box and keypoint markers.
func (d *DetectionTask) Visualize(rec *frame.Record, result task.Result) *frame.Record {
	canvas, err := frame.NewCanvas(rec.Image)
	if err != nil {
		return rec
	}

	if bbox, ok := result.Data["bbox"].([]int); ok && len(bbox) == 4 {
		canvas.DrawRect(image.Rect(bbox[0], bbox[1], bbox[2], bbox[3]), detectionColor, 2)
	}
	for _, kp := range result.Keypoints {
		canvas.DrawMarker(int(kp.X), int(kp.Y), detectionColor, 4)
	}

	jpeg, err := canvas.EncodeJPEG()
	if err != nil {
		return rec
	}
	out := rec.WithImage(jpeg)
	out.Keypoints = append(out.Keypoints, result.Keypoints...)
	return out
}
