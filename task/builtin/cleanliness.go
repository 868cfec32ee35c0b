package builtin

import (
	"image"
	"image/color"

	"github.com/Jiadezhende/CleanSightBackend/frame"
	"github.com/Jiadezhende/CleanSightBackend/task"
)

// CleanlinessTaskName is the registry name of the cleanliness scoring task.
const CleanlinessTaskName = "cleanliness"

// Cleanliness grade thresholds on the 0-100 score.
const (
	gradeExcellentMin = 90
	gradeGoodMin      = 70
	gradeFairMin      = 50
)

// CleanlinessTask scores surface cleanliness from the outputs of the
// detection and bubble tasks. It declares both as dependencies and therefore
// runs in the serial phase.
type CleanlinessTask struct {
	// BubblePenalty is the score deduction per detected bubble. Zero means
	// the default of 5.
	BubblePenalty float64
}

// NewCleanlinessTask creates the cleanliness task with default weights.
func NewCleanlinessTask() *CleanlinessTask {
	return &CleanlinessTask{}
}

func (c *CleanlinessTask) Name() string { return CleanlinessTaskName }

func (c *CleanlinessTask) RequiresContext() []string {
	return []string{DetectionTaskName, BubbleTaskName}
}

func (c *CleanlinessTask) Infer(rec *frame.Record, tctx task.Context) task.Result {
	penalty := c.BubblePenalty
	if penalty == 0 {
		penalty = 5
	}

	score := 100.0
	bubbleCount := 0
	if bubbleRes, ok := tctx.Results[BubbleTaskName]; ok && bubbleRes.Success {
		if n, ok := bubbleRes.Data["bubble_count"].(int); ok {
			bubbleCount = n
		}
	}
	score -= float64(bubbleCount) * penalty

	// A frame with no endoscope in view tells us nothing about cleanliness.
	detRes, ok := tctx.Results[DetectionTaskName]
	if !ok || !detRes.Success {
		return task.Failure("cleanliness requires a detection result")
	}

	if score < 0 {
		score = 0
	} else if score > 100 {
		score = 100
	}

	return task.Result{
		Success: true,
		Data: map[string]any{
			"score": score,
			"grade": gradeFor(score),
			"factors": map[string]any{
				"bubble_count": bubbleCount,
			},
		},
	}
}

func gradeFor(score float64) string {
	switch {
	case score >= gradeExcellentMin:
		return "Excellent"
	case score >= gradeGoodMin:
		return "Good"
	case score >= gradeFairMin:
		return "Fair"
	default:
		return "Poor"
	}
}

func gradeColor(grade string) color.RGBA {
	switch grade {
	case "Excellent":
		return color.RGBA{G: 255, A: 255}
	case "Good":
		return color.RGBA{R: 255, G: 255, A: 255}
	case "Fair":
		return color.RGBA{R: 255, G: 165, A: 255}
	default:
		return color.RGBA{R: 255, A: 255}
	}
}

// Visualize draws a score bar in the top-right corner, filled in proportion
// to the score and colored by grade.
func (c *CleanlinessTask) Visualize(rec *frame.Record, result task.Result) *frame.Record {
	score, ok := result.Data["score"].(float64)
	if !ok {
		return rec
	}
	grade, _ := result.Data["grade"].(string)

	canvas, err := frame.NewCanvas(rec.Image)
	if err != nil {
		return rec
	}

	const barWidth, barHeight = 100, 10
	b := canvas.Bounds()
	barX := b.Max.X - barWidth - 20
	barY := 20
	col := gradeColor(grade)

	canvas.FillRect(image.Rect(barX, barY, barX+barWidth, barY+barHeight), color.RGBA{R: 100, G: 100, B: 100, A: 255})
	fill := int(float64(barWidth) * score / 100)
	canvas.FillRect(image.Rect(barX, barY, barX+fill, barY+barHeight), col)
	canvas.DrawRect(image.Rect(barX, barY, barX+barWidth, barY+barHeight), col, 1)

	jpeg, err := canvas.EncodeJPEG()
	if err != nil {
		return rec
	}
	return rec.WithImage(jpeg)
}
