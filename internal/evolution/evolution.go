// Package evolution implements the per-lineage generation state machine
// (spec §4.9). Every step is stateless over the process: callers
// reconstruct inputs from the event store and latest checkpoint, run
// Decide, then persist the resulting action as a new event.
package evolution

import (
	"context"

	"symbiogen/internal/eventstore"
	"symbiogen/internal/logging"
)

// Action is one of the five terminal-or-continuing outcomes of a
// generation step.
type Action string

const (
	Continue  Action = "CONTINUE"
	Converged Action = "CONVERGED"
	Stagnated Action = "STAGNATED"
	Exhausted Action = "EXHAUSTED"
	Failed    Action = "FAILED"
)

// StepInputs is everything one generation step's decision depends on.
type StepInputs struct {
	LineageID        string
	GenerationN      int
	MaxGenerations    int // default 30
	EvaluationPassed bool
	DriftHealthy     bool
	ProgressMeasurable bool
	SimilarityToPrevious float64
	ConvergenceThreshold float64 // default 0.95
	ExitConditionsSatisfied bool
	StagnationDetected      bool
	LateralRetriesExhausted bool // max retries (default 2) exhausted after lateral rotation
	UnrecoverableError      error
	ConsensusAbortedToHuman bool
}

// Decide applies the five-action state machine (spec §4.9). Precedence,
// since the spec enumerates the actions but does not order simultaneous
// triggers, is: an unrecoverable error or human-escalated consensus is
// FAILED regardless of any other condition; otherwise exhausted retries
// after lateral rotation is STAGNATED; otherwise a generation ceiling
// breach is EXHAUSTED; otherwise convergence wins over a bare CONTINUE.
func Decide(in StepInputs) Action {
	if in.UnrecoverableError != nil || in.ConsensusAbortedToHuman {
		return Failed
	}
	if in.StagnationDetected && in.LateralRetriesExhausted {
		return Stagnated
	}
	if in.GenerationN > in.MaxGenerations {
		return Exhausted
	}
	if in.SimilarityToPrevious >= in.ConvergenceThreshold && in.ExitConditionsSatisfied {
		return Converged
	}
	if in.EvaluationPassed && in.DriftHealthy && in.ProgressMeasurable {
		return Continue
	}
	// Evaluation failed or drift unhealthy without tripping stagnation or
	// the retry ceiling yet: the caller retries the same generation, which
	// is represented to the driver as CONTINUE with generation unchanged.
	return Continue
}

// Generation is one persisted step outcome (spec §3's Generation entity).
type Generation struct {
	LineageID            string
	GenerationNumber     int
	SeedHash             string
	OntologyVersion      string
	SimilarityToPrevious float64
	DriftScore           float64
	Action               Action
}

// Recorder appends generation-step outcomes to the event store.
type Recorder struct {
	events eventstore.Store
}

// NewRecorder creates a Recorder backed by events.
func NewRecorder(events eventstore.Store) *Recorder {
	return &Recorder{events: events}
}

// RecordStep appends an evolution.generation.{action} event for g, using
// the action's past-tense form (continued, converged, stagnated, exhausted,
// failed) as the event-type suffix.
func (r *Recorder) RecordStep(ctx context.Context, g Generation) error {
	logging.Get(logging.CategoryEvolution).Info("lineage=%s generation=%d action=%s similarity=%.3f drift=%.3f",
		g.LineageID, g.GenerationNumber, g.Action, g.SimilarityToPrevious, g.DriftScore)
	if r.events == nil {
		return nil
	}
	eventType := "evolution.generation." + actionEventSuffix(g.Action)
	return r.events.Append(ctx, eventstore.NewEvent(eventstore.AggregateEvolution, g.LineageID, eventType, map[string]interface{}{
		"generation":  g.GenerationNumber,
		"seed_hash":   g.SeedHash,
		"ontology_version": g.OntologyVersion,
		"similarity":  g.SimilarityToPrevious,
		"drift":       g.DriftScore,
	}))
}

func actionEventSuffix(a Action) string {
	switch a {
	case Continue:
		return "continued"
	case Converged:
		return "converged"
	case Stagnated:
		return "stagnated"
	case Exhausted:
		return "exhausted"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Reconstruct replays every event for lineageID and returns the current
// generation counter, which is
// one past the highest persisted evolution.generation.* event (spec §4.9:
// "state is reconstructed from the Event Store + latest checkpoint").
func Reconstruct(ctx context.Context, events eventstore.Store, lineageID string) (int, error) {
	evs, err := events.Replay(ctx, lineageID)
	if err != nil {
		return 0, err
	}
	highest := 0
	for _, ev := range evs {
		if !isGenerationEvent(ev.EventType) {
			continue
		}
		if gen, ok := ev.Payload["generation"].(int); ok && gen > highest {
			highest = gen
		}
		if genF, ok := ev.Payload["generation"].(float64); ok && int(genF) > highest {
			highest = int(genF)
		}
	}
	return highest + 1, nil
}

func isGenerationEvent(eventType string) bool {
	return len(eventType) > len("evolution.generation.") && eventType[:len("evolution.generation.")] == "evolution.generation."
}
