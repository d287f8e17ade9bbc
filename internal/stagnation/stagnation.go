// Package stagnation implements the stateless stagnation detector and the
// persona-based lateral thinking engine (spec §4.6). The detector takes no
// state of its own; everything it needs travels in an ExecutionHistory.
package stagnation

// Pattern is a detected stagnation signature.
type Pattern string

const (
	Spinning            Pattern = "spinning"
	Oscillation         Pattern = "oscillation"
	NoDrift             Pattern = "no_drift"
	DiminishingReturns  Pattern = "diminishing_returns"
)

// Iteration is one generation's worth of phase-output observation.
type Iteration struct {
	OutputHash   string
	DriftScore   float64
	ProgressRate float64 // improvement rate relative to the episode's initial rate
}

// ExecutionHistory is the stateless input the detector reasons over (spec
// §4.6). Ordered oldest-first.
type ExecutionHistory struct {
	Iterations []Iteration
}

// Thresholds carries the configured detector cutoffs (spec §6 stagnation).
type Thresholds struct {
	Spinning           int     // consecutive identical hashes, default 3
	OscillationWindow  int     // default 6
	NoDriftDelta       float64 // default 0.01
	NoDriftCount       int     // default 5
	DiminishingPct     float64 // default 0.10
	DiminishingCount   int     // default 3
}

// Detect returns every pattern the history matches, in the table order of
// spec §4.6 (SPINNING, OSCILLATION, NO_DRIFT, DIMINISHING_RETURNS).
func Detect(h ExecutionHistory, th Thresholds) []Pattern {
	var found []Pattern
	if isSpinning(h, th) {
		found = append(found, Spinning)
	}
	if isOscillating(h, th) {
		found = append(found, Oscillation)
	}
	if isNoDrift(h, th) {
		found = append(found, NoDrift)
	}
	if isDiminishingReturns(h, th) {
		found = append(found, DiminishingReturns)
	}
	return found
}

// isSpinning detects >= Spinning consecutive identical output hashes at the
// tail of the history.
func isSpinning(h ExecutionHistory, th Thresholds) bool {
	n := th.Spinning
	if n <= 0 {
		n = 3
	}
	if len(h.Iterations) < n {
		return false
	}
	tail := h.Iterations[len(h.Iterations)-n:]
	first := tail[0].OutputHash
	if first == "" {
		return false
	}
	for _, it := range tail {
		if it.OutputHash != first {
			return false
		}
	}
	return true
}

// isOscillating detects an A->B->A->B cycle within the last OscillationWindow
// iterations.
func isOscillating(h ExecutionHistory, th Thresholds) bool {
	window := th.OscillationWindow
	if window <= 0 {
		window = 6
	}
	if len(h.Iterations) < 4 {
		return false
	}
	start := 0
	if len(h.Iterations) > window {
		start = len(h.Iterations) - window
	}
	seq := h.Iterations[start:]
	for i := 0; i+3 < len(seq); i++ {
		a, b, a2, b2 := seq[i].OutputHash, seq[i+1].OutputHash, seq[i+2].OutputHash, seq[i+3].OutputHash
		if a != "" && b != "" && a != b && a == a2 && b == b2 {
			return true
		}
	}
	return false
}

// isNoDrift detects NoDriftCount consecutive iterations whose drift delta
// stays below NoDriftDelta.
func isNoDrift(h ExecutionHistory, th Thresholds) bool {
	n := th.NoDriftCount
	if n <= 0 {
		n = 5
	}
	delta := th.NoDriftDelta
	if delta <= 0 {
		delta = 0.01
	}
	if len(h.Iterations) < n+1 {
		return false
	}
	tail := h.Iterations[len(h.Iterations)-(n+1):]
	for i := 1; i < len(tail); i++ {
		d := tail[i].DriftScore - tail[i-1].DriftScore
		if d < 0 {
			d = -d
		}
		if d >= delta {
			return false
		}
	}
	return true
}

// isDiminishingReturns detects DiminishingCount consecutive iterations whose
// progress rate falls below DiminishingPct of the episode's initial rate.
func isDiminishingReturns(h ExecutionHistory, th Thresholds) bool {
	n := th.DiminishingCount
	if n <= 0 {
		n = 3
	}
	pct := th.DiminishingPct
	if pct <= 0 {
		pct = 0.10
	}
	if len(h.Iterations) < n+1 {
		return false
	}
	initial := h.Iterations[0].ProgressRate
	if initial <= 0 {
		return false
	}
	tail := h.Iterations[len(h.Iterations)-n:]
	for _, it := range tail {
		if it.ProgressRate >= pct*initial {
			return false
		}
	}
	return true
}
