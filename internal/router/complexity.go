// Package router implements the Tiered Routing & Escalation/Downgrade Engine
// (PAL, spec §4.4). The complexity scoring function is pure; only the
// PatternStats map carries mutable state, and it has a single writer.
package router

// Tier is a cost tier for model/collaborator selection.
type Tier string

const (
	Frugal   Tier = "frugal"
	Standard Tier = "standard"
	Frontier Tier = "frontier"
)

// CostMultiplier returns the fixed cost multiplier for a tier (spec §3).
func CostMultiplier(t Tier) int {
	switch t {
	case Frugal:
		return 1
	case Standard:
		return 10
	case Frontier:
		return 30
	default:
		return 0
	}
}

// TaskContext is the routing input (spec §4.4).
type TaskContext struct {
	TokenCount  int
	ToolCount   int
	ACDepth     int
	Fingerprint string
}

// Weights are the complexity-score weights; must sum to 1.0 (spec §6
// router.weights, default {tokens:0.3, tools:0.3, depth:0.4}).
type Weights struct {
	Tokens float64
	Tools  float64
	Depth  float64
}

// Thresholds are the two complexity cut points; default {0.4, 0.7}.
type Thresholds struct {
	Low  float64 // below: FRUGAL
	High float64 // at or below: STANDARD; above: FRONTIER
}

func clampMin1(v, max float64) float64 {
	if v/max > 1.0 {
		return 1.0
	}
	return v / max
}

// Complexity computes the pure complexity score (spec §4.4). It is
// deterministic and idempotent: repeated calls with the same inputs yield
// identical bits.
func Complexity(tc TaskContext, w Weights) float64 {
	normTokens := clampMin1(float64(tc.TokenCount), 4000)
	normTools := clampMin1(float64(tc.ToolCount), 5)
	normDepth := clampMin1(float64(tc.ACDepth), 5)
	return w.Tokens*normTokens + w.Tools*normTools + w.Depth*normDepth
}

// TierForComplexity maps a complexity score to a tier using the configured
// thresholds. Boundary semantics (spec §8): complexity == Low routes to
// STANDARD (strict `<` for FRUGAL); complexity == High routes to STANDARD
// (strict `>` for FRONTIER).
func TierForComplexity(complexity float64, t Thresholds) Tier {
	switch {
	case complexity < t.Low:
		return Frugal
	case complexity > t.High:
		return Frontier
	default:
		return Standard
	}
}
