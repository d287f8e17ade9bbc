package executor

import "symbiogen/internal/seed"

// AtomicityInput is the Define-phase atomicity judgment input (spec §4.5).
type AtomicityInput struct {
	Complexity    float64
	ToolCount     int
	DurationS     float64
}

// AtomicityThresholds carries the configured gate (spec §6 atomicity).
type AtomicityThresholds struct {
	Complexity float64 // default 0.7
	ToolCount  int     // default 3
	DurationS  float64 // default 300
}

// Classify judges atomicity: atomic iff complexity is below the configured
// threshold, tool dependency count is at or below the configured max, and
// estimated duration is below the configured ceiling (spec §4.5).
func Classify(in AtomicityInput, th AtomicityThresholds) seed.Atomicity {
	if in.Complexity < th.Complexity && in.ToolCount <= th.ToolCount && in.DurationS < th.DurationS {
		return seed.Atomic
	}
	return seed.NonAtomic
}
