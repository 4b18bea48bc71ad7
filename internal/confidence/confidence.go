// Package confidence implements the single confidence formula (spec §4.3)
// that every Backend Client applies to its result; the Router returns the
// client's value unchanged. It is a leaf package so the clients need no
// import of the router to compute it.
package confidence

import "github.com/apto-as/trinitas-core/internal/task"

const substantivePayloadLength = 100

// Compute applies spec §4.3 to the last decimal: base 0.5, +0.4 for L1/L2,
// +0.2 for L3, +0.0 for L4/L5, +0.1 if tools were invoked, +0.1 if the
// payload is "substantive" (>= 100 units). The clamp to [0,1] happens only
// as the final step (spec §9 - the source clamps early and loses
// information; this spec mandates clamping last).
func Compute(level task.Level, toolsInvoked bool, payloadLength int) float64 {
	score := 0.5

	switch level {
	case task.L1, task.L2:
		score += 0.4
	case task.L3:
		score += 0.2
	}

	if toolsInvoked {
		score += 0.1
	}
	if payloadLength >= substantivePayloadLength {
		score += 0.1
	}

	return clamp(score)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
