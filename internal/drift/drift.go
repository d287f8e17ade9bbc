package drift

import (
	"context"
	"fmt"

	"symbiogen/internal/eventstore"
	"symbiogen/internal/logging"
)

// Weights is the drift formula's weighting triple (spec §4.8: 0.5/0.3/0.2).
type Weights struct {
	Goal       float64
	Constraint float64
	Ontology   float64
}

// DefaultWeights returns the spec's fixed weighting.
func DefaultWeights() Weights { return Weights{Goal: 0.5, Constraint: 0.3, Ontology: 0.2} }

// Inputs is everything one drift measurement needs.
type Inputs struct {
	OriginalGoal      string
	CurrentGoal       string
	OriginalConstraints []string
	CurrentConstraints  []string
	BaseConcepts      []string
	EffectiveConcepts []string
}

// Components is the three unweighted drift terms, kept alongside the
// combined score for diagnostics and retrospectives.
type Components struct {
	Goal       float64
	Constraint float64
	Ontology   float64
}

// Measurement is one iteration's drift result.
type Measurement struct {
	Iteration  int
	Score      float64
	Components Components
	Healthy    bool
}

// Threshold is the spec's fixed drift healthy/trigger boundary.
const Threshold = 0.3

// Measure computes drift = weights.Goal*goal_drift + weights.Constraint*constraint_drift +
// weights.Ontology*ontology_drift for iteration (spec §4.8). Healthy iff score <= Threshold.
func Measure(iteration int, in Inputs, w Weights) Measurement {
	comp := Components{
		Goal:       GoalDrift(in.OriginalGoal, in.CurrentGoal),
		Constraint: ConstraintDrift(in.OriginalConstraints, in.CurrentConstraints),
		Ontology:   OntologyDrift(in.BaseConcepts, in.EffectiveConcepts),
	}
	score := w.Goal*comp.Goal + w.Constraint*comp.Constraint + w.Ontology*comp.Ontology
	return Measurement{Iteration: iteration, Score: score, Components: comp, Healthy: score <= Threshold}
}

// IsRetrospectiveDue reports whether iteration is a multiple of every
// (spec §4.8: "every three iterations a retrospective runs ... fire at 3,
// 6, 9, ...", iteration counter starting at 1).
func IsRetrospectiveDue(iteration, every int) bool {
	if every <= 0 {
		return false
	}
	return iteration%every == 0
}

// Retrospective is the outcome of comparing current state to the Seed
// every `retrospective_every` iterations.
type Retrospective struct {
	Iteration       int
	Measurement     Measurement
	Recommendations []string
	NotifyHuman     bool
}

// RunRetrospective builds a Retrospective for m, raising a human
// notification when drift remains high (spec §4.8).
func RunRetrospective(iteration int, m Measurement) Retrospective {
	r := Retrospective{Iteration: iteration, Measurement: m}
	if m.Components.Goal > Threshold {
		r.Recommendations = append(r.Recommendations, "goal restatement has diverged from the original goal; consider re-grounding the current AC tree in the Seed's goal text")
	}
	if m.Components.Constraint > Threshold {
		r.Recommendations = append(r.Recommendations, "constraint set has drifted; review which constraints were dropped or added since the Seed was frozen")
	}
	if m.Components.Ontology > Threshold {
		r.Recommendations = append(r.Recommendations, "effective ontology has diverged from the base ontology; review concept additions for unintended scope creep")
	}
	r.NotifyHuman = !m.Healthy
	return r
}

// Recorder persists drift measurements and retrospectives and emits the
// corresponding event-store facts, grounded on the teacher's
// internal/northstar Guardian+Store pairing generalized from "vision
// alignment" to "Seed drift".
type Recorder struct {
	store  *Store
	events eventstore.Store
	lineageID string
}

// NewRecorder creates a Recorder backed by store and events.
func NewRecorder(store *Store, events eventstore.Store, lineageID string) *Recorder {
	return &Recorder{store: store, events: events, lineageID: lineageID}
}

// RecordMeasurement persists m and appends a drift.measured event.
func (r *Recorder) RecordMeasurement(ctx context.Context, m Measurement) error {
	if r.store != nil {
		if err := r.store.SaveMeasurement(r.lineageID, m); err != nil {
			return fmt.Errorf("drift: failed to persist measurement: %w", err)
		}
	}
	logging.Get(logging.CategoryDrift).Info("lineage=%s iteration=%d drift=%.3f healthy=%t", r.lineageID, m.Iteration, m.Score, m.Healthy)
	if r.events != nil {
		_ = r.events.Append(ctx, eventstore.NewEvent(eventstore.AggregateEvolution, r.lineageID, "drift.measured",
			map[string]interface{}{"iteration": m.Iteration, "score": m.Score, "goal": m.Components.Goal, "constraint": m.Components.Constraint, "ontology": m.Components.Ontology}))
	}
	return nil
}

// RecordRetrospective persists retro and appends a drift.retrospective.completed
// event, plus a drift.retrospective.escalated event when NotifyHuman is set.
func (r *Recorder) RecordRetrospective(ctx context.Context, retro Retrospective) error {
	if r.store != nil {
		if err := r.store.SaveRetrospective(r.lineageID, retro); err != nil {
			return fmt.Errorf("drift: failed to persist retrospective: %w", err)
		}
	}
	logging.Get(logging.CategoryDrift).Info("lineage=%s retrospective at iteration=%d notify_human=%t", r.lineageID, retro.Iteration, retro.NotifyHuman)
	if r.events != nil {
		_ = r.events.Append(ctx, eventstore.NewEvent(eventstore.AggregateEvolution, r.lineageID, "drift.retrospective.completed",
			map[string]interface{}{"iteration": retro.Iteration, "recommendations": retro.Recommendations}))
		if retro.NotifyHuman {
			_ = r.events.Append(ctx, eventstore.NewEvent(eventstore.AggregateEvolution, r.lineageID, "drift.retrospective.escalated",
				map[string]interface{}{"iteration": retro.Iteration, "score": retro.Measurement.Score}))
		}
	}
	return nil
}
