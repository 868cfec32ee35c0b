package builtin

import (
	"image"
	"image/color"

	"github.com/Jiadezhende/CleanSightBackend/frame"
	"github.com/Jiadezhende/CleanSightBackend/task"
)

// BendingTaskName is the registry name of the endoscope bending detection
// task.
const BendingTaskName = "endoscope_bending_detection"

var bendingColor = color.RGBA{R: 255, G: 128, A: 255}

// BendingDetectionTask detects endoscope bending from the detection task's
// bounding box geometry and increments the cleaning task's bend count when a
// bend is observed. It depends on detection and runs in the serial phase.
type BendingDetectionTask struct {
	// AspectThreshold is the width to height ratio past which the box is
	// read as a bent scope. Zero means the default of 1.8.
	AspectThreshold float64
}

// NewBendingDetectionTask creates the bending detection task with the
// default aspect threshold.
func NewBendingDetectionTask() *BendingDetectionTask {
	return &BendingDetectionTask{}
}

func (b *BendingDetectionTask) Name() string { return BendingTaskName }

func (b *BendingDetectionTask) RequiresContext() []string {
	return []string{DetectionTaskName}
}

func (b *BendingDetectionTask) Infer(rec *frame.Record, tctx task.Context) task.Result {
	detRes, ok := tctx.Results[DetectionTaskName]
	if !ok || !detRes.Success {
		return task.Failure("bending detection requires a detection result")
	}
	bbox, ok := detRes.Data["bbox"].([]int)
	if !ok || len(bbox) != 4 {
		return task.Failure("detection result carries no bounding box")
	}

	threshold := b.AspectThreshold
	if threshold == 0 {
		threshold = 1.8
	}

	w := bbox[2] - bbox[0]
	h := bbox[3] - bbox[1]
	bent := false
	aspect := 0.0
	if h > 0 {
		aspect = float64(w) / float64(h)
		bent = aspect >= threshold
	}

	res := task.Result{
		Success: true,
		Data: map[string]any{
			"bending_detected": bent,
			"aspect_ratio":     aspect,
			"bbox":             bbox,
		},
	}
	if bent {
		res.Delta = &task.Delta{IncrementBend: true}
	}
	return res
}

// Visualize outlines the bounding box when a bend was detected.
func (b *BendingDetectionTask) Visualize(rec *frame.Record, result task.Result) *frame.Record {
	bent, _ := result.Data["bending_detected"].(bool)
	if !bent {
		return rec
	}
	bbox, ok := result.Data["bbox"].([]int)
	if !ok || len(bbox) != 4 {
		return rec
	}

	canvas, err := frame.NewCanvas(rec.Image)
	if err != nil {
		return rec
	}
	canvas.DrawRect(image.Rect(bbox[0], bbox[1], bbox[2], bbox[3]), bendingColor, 3)

	jpeg, err := canvas.EncodeJPEG()
	if err != nil {
		return rec
	}
	return rec.WithImage(jpeg)
}
