package router

import (
	"context"
	"fmt"
	"time"

	"symbiogen/internal/eventstore"
	"symbiogen/internal/logging"
)

// RoutingDecision is the Router's output (spec §3).
type RoutingDecision struct {
	Tier       Tier
	Complexity float64
	Rationale  string
	Fingerprint string
}

// Outcome records the result of executing at a routed tier, fed back via
// Record to update PatternStats.
type Outcome int

const (
	Success Outcome = iota
	Failure
)

// Router is the PAL engine: a pure complexity scorer plus a single-writer
// PatternStats map implementing escalation, downgrade, and pattern
// inheritance (spec §4.4).
type Router struct {
	weights    Weights
	thresholds Thresholds
	stats      *statsMap
	events     eventstore.Store
}

// New creates a Router. events may be nil for pure-function use in tests.
func New(weights Weights, thresholds Thresholds, events eventstore.Store) *Router {
	return &Router{weights: weights, thresholds: thresholds, stats: newStatsMap(), events: events}
}

// Route is the router's entry point. It computes the pure complexity score,
// then applies escalation/downgrade/inheritance adjustments recorded in
// PatternStats for tc.Fingerprint.
//
// Tie-break (spec §9 open question): when PatternStats already demands an
// escalation for this fingerprint, that escalation wins over the fresh
// complexity-derived tier — "escalation preference wins".
func (r *Router) Route(ctx context.Context, tc TaskContext) RoutingDecision {
	complexity := Complexity(tc, r.weights)
	baseTier := TierForComplexity(complexity, r.thresholds)

	r.stats.mu.Lock()
	stats, known := r.stats.byKey[tc.Fingerprint]
	if !known {
		stats = r.inheritOrInit(tc.Fingerprint, baseTier)
		r.stats.byKey[tc.Fingerprint] = stats
	}
	tier := baseTier
	rationale := fmt.Sprintf("complexity=%.3f -> %s", complexity, baseTier)
	if stats.CurrentTier != "" && stats.CurrentTier != baseTier {
		// An existing escalation/downgrade/inheritance outcome takes
		// precedence over the fresh score (tie-break rule above).
		tier = stats.CurrentTier
		rationale = fmt.Sprintf("complexity=%.3f -> %s, but pattern stats hold tier %s", complexity, baseTier, stats.CurrentTier)
	} else {
		stats.CurrentTier = tier
	}
	stats.LastUpdated = time.Now().UTC()
	r.stats.mu.Unlock()

	logging.Get(logging.CategoryRouter).Info("routed fingerprint=%s tier=%s complexity=%.3f", tc.Fingerprint, tier, complexity)

	if r.events != nil {
		_ = r.events.Append(ctx, eventstore.NewEvent(eventstore.AggregateRouting, tc.Fingerprint, "routing.tier.selected",
			map[string]interface{}{"tier": string(tier), "complexity": complexity}))
	}

	return RoutingDecision{Tier: tier, Complexity: complexity, Rationale: rationale, Fingerprint: tc.Fingerprint}
}

// inheritOrInit implements pattern inheritance (spec §4.4): if an existing
// fingerprint has Jaccard similarity >= InheritanceThreshold, the new
// fingerprint adopts its current_tier on first scoring. Per §9's default,
// inheritance is read-only: the new fingerprint's own counters start fresh
// and are never written back to the donor.
func (r *Router) inheritOrInit(fingerprint string, baseTier Tier) *PatternStats {
	for existing, stats := range r.stats.byKey {
		if existing == fingerprint {
			continue
		}
		if FingerprintSimilarity(existing, fingerprint) >= InheritanceThreshold {
			return &PatternStats{CurrentTier: stats.CurrentTier, LastUpdated: time.Now().UTC()}
		}
	}
	return &PatternStats{CurrentTier: baseTier, LastUpdated: time.Now().UTC()}
}

// Record feeds back an execution outcome for fingerprint at its current
// tier, applying the two-failure escalation / five-success downgrade rule.
// On success the failure counter resets; on failure the success counter
// resets (spec §8 invariant).
func (r *Router) Record(ctx context.Context, fingerprint string, outcome Outcome) {
	r.stats.mu.Lock()
	stats, ok := r.stats.byKey[fingerprint]
	if !ok {
		stats = &PatternStats{CurrentTier: Frugal}
		r.stats.byKey[fingerprint] = stats
	}

	var escalated, downgraded bool
	switch outcome {
	case Success:
		stats.ConsecutiveFailures = 0
		stats.ConsecutiveSuccesses++
		if stats.ConsecutiveSuccesses >= 5 && stats.CurrentTier != Frugal {
			stats.CurrentTier = demote(stats.CurrentTier)
			stats.ConsecutiveSuccesses = 0
			downgraded = true
		}
	case Failure:
		stats.ConsecutiveSuccesses = 0
		stats.ConsecutiveFailures++
		if stats.ConsecutiveFailures >= 2 {
			if stats.CurrentTier == Frontier {
				// Frontier-failure path: does not escalate further; signal
				// stagnation instead (spec §4.4).
				stats.ConsecutiveFailures = 0
				r.emit(ctx, fingerprint, "resilience.stagnation.detected", nil)
			} else {
				stats.CurrentTier = promote(stats.CurrentTier)
				stats.ConsecutiveFailures = 0
				escalated = true
			}
		}
	}
	stats.LastUpdated = time.Now().UTC()
	tier := stats.CurrentTier
	r.stats.mu.Unlock()

	if escalated {
		r.emit(ctx, fingerprint, "routing.tier.escalated", map[string]interface{}{"tier": string(tier)})
	}
	if downgraded {
		r.emit(ctx, fingerprint, "routing.tier.downgraded", map[string]interface{}{"tier": string(tier)})
	}
}

func (r *Router) emit(ctx context.Context, fingerprint, eventType string, payload map[string]interface{}) {
	logging.Get(logging.CategoryRouter).Info("%s fingerprint=%s", eventType, fingerprint)
	if r.events != nil {
		_ = r.events.Append(ctx, eventstore.NewEvent(eventstore.AggregateRouting, fingerprint, eventType, payload))
	}
}

func promote(t Tier) Tier {
	switch t {
	case Frugal:
		return Standard
	case Standard:
		return Frontier
	default:
		return Frontier
	}
}

func demote(t Tier) Tier {
	switch t {
	case Frontier:
		return Standard
	case Standard:
		return Frugal
	default:
		return Frugal
	}
}

// Stats returns a read-only snapshot of a fingerprint's current counters.
func (r *Router) Stats(fingerprint string) PatternStats {
	return r.stats.Snapshot(fingerprint)
}
