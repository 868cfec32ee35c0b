package builtin

import (
	"fmt"
	"image"
	"image/color"

	"github.com/Jiadezhende/CleanSightBackend/frame"
	"github.com/Jiadezhende/CleanSightBackend/task"
)

// BubbleTaskName is the registry name of the bubble detection task.
const BubbleTaskName = "bubble_detection"

var bubbleColor = color.RGBA{R: 255, B: 255, A: 255}

// bubble is one detected bright spot.
type bubble struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Radius int `json:"radius"`
}

// BubbleDetectionTask detects air bubbles on the endoscope surface and
// judges whether the scope is fully submerged. It has no dependencies and
// runs in the parallel phase.
//
// The detector scans a luminance grid: small bright spots against their
// surroundings count as bubbles, and the overall mean luminance decides
// submersion (a submerged scope photographs dark).
type BubbleDetectionTask struct {
	// BrightDelta is the luminance lead a cell needs over the frame mean to
	// count as a bubble. Zero means the default of 60.
	BrightDelta int

	// SubmergedMax is the mean luminance at or below which the frame is
	// considered fully submerged. Zero means the default of 80.
	SubmergedMax int
}

// NewBubbleDetectionTask creates the bubble detection task with default
// thresholds.
func NewBubbleDetectionTask() *BubbleDetectionTask {
	return &BubbleDetectionTask{}
}

func (b *BubbleDetectionTask) Name() string { return BubbleTaskName }

func (b *BubbleDetectionTask) RequiresContext() []string { return nil }

func (b *BubbleDetectionTask) thresholds() (brightDelta, submergedMax int) {
	brightDelta = b.BrightDelta
	if brightDelta == 0 {
		brightDelta = 60
	}
	submergedMax = b.SubmergedMax
	if submergedMax == 0 {
		submergedMax = 80
	}
	return brightDelta, submergedMax
}

func (b *BubbleDetectionTask) Infer(rec *frame.Record, tctx task.Context) task.Result {
	img, err := frame.Decode(rec.Image)
	if err != nil {
		return task.Failure(fmt.Sprintf("decode frame: %v", err))
	}

	brightDelta, submergedMax := b.thresholds()
	bubbles, mean := scanForBubbles(img, brightDelta)

	detected := len(bubbles) > 0
	submerged := mean <= submergedMax

	return task.Result{
		Success: true,
		Data: map[string]any{
			"bubble_count":    len(bubbles),
			"bubbles":         bubbles,
			"detected":        detected,
			"mean_luminance":  mean,
			"fully_submerged": submerged,
		},
		Delta: &task.Delta{
			BubbleDetected: task.Bool(detected),
			FullySubmerged: task.Bool(submerged),
		},
	}
}

// Visualize circles each detected bubble.
func (b *BubbleDetectionTask) Visualize(rec *frame.Record, result task.Result) *frame.Record {
	bubbles, ok := result.Data["bubbles"].([]bubble)
	if !ok || len(bubbles) == 0 {
		return rec
	}

	canvas, err := frame.NewCanvas(rec.Image)
	if err != nil {
		return rec
	}
	for _, bb := range bubbles {
		canvas.DrawCircle(bb.X, bb.Y, bb.Radius, bubbleColor)
		canvas.DrawMarker(bb.X, bb.Y, bubbleColor, 2)
	}

	jpeg, err := canvas.EncodeJPEG()
	if err != nil {
		return rec
	}
	return rec.WithImage(jpeg)
}

// scanForBubbles walks the image in a coarse cell grid. It returns the cells
// whose average luminance exceeds the frame mean by brightDelta, merged into
// bubble candidates, plus the frame mean itself.
func scanForBubbles(img image.Image, brightDelta int) ([]bubble, int) {
	const cell = 16

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < cell || h < cell {
		return nil, meanLuminance(img, b)
	}

	cols := w / cell
	rows := h / cell
	cellMeans := make([]int, cols*rows)

	total := 0
	for cy := 0; cy < rows; cy++ {
		for cx := 0; cx < cols; cx++ {
			r := image.Rect(
				b.Min.X+cx*cell, b.Min.Y+cy*cell,
				b.Min.X+(cx+1)*cell, b.Min.Y+(cy+1)*cell,
			)
			m := meanLuminance(img, r)
			cellMeans[cy*cols+cx] = m
			total += m
		}
	}
	mean := total / (cols * rows)

	var bubbles []bubble
	for cy := 0; cy < rows; cy++ {
		for cx := 0; cx < cols; cx++ {
			if cellMeans[cy*cols+cx]-mean >= brightDelta {
				bubbles = append(bubbles, bubble{
					X:      b.Min.X + cx*cell + cell/2,
					Y:      b.Min.Y + cy*cell + cell/2,
					Radius: cell / 2,
				})
			}
		}
	}
	return bubbles, mean
}

// meanLuminance averages the 8-bit luminance over a rectangle, sampling
// every other pixel.
func meanLuminance(img image.Image, r image.Rectangle) int {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return 0
	}

	var sum, n int64
	for y := r.Min.Y; y < r.Max.Y; y += 2 {
		for x := r.Min.X; x < r.Max.X; x += 2 {
			c := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			sum += int64(c.Y)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return int(sum / n)
}
