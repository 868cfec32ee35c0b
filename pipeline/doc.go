// Package pipeline runs the registered inference tasks over a single frame:
// independent tasks fan out on a bounded worker pool, dependent tasks run
// serially with an accumulating context, and the successful results are
// composed into one annotated frame. Task failures are recorded in the
// result map; they never drop the frame.
package pipeline
