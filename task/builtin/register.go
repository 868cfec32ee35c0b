package builtin

import (
	"github.com/Jiadezhende/CleanSightBackend/task"
)

// RegisterAll registers the stock tasks in their canonical order: the
// independent detectors first, then the dependent analyzers.
func RegisterAll(r *task.Registry) error {
	for _, t := range []task.Task{
		NewDetectionTask(),
		NewBubbleDetectionTask(),
		NewCleanlinessTask(),
		NewBendingDetectionTask(),
	} {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}
