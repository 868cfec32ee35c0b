// Package builtin provides the stock inference tasks shipped with the
// service: endoscope keypoint detection, bubble detection, cleanliness
// scoring and bending detection. The vision models behind them are
// intentionally lightweight image heuristics; swapping in a real model is a
// matter of replacing the analysis functions without touching the task
// contract.
package builtin
