package stagnation

import (
	"context"
	"errors"

	"symbiogen/internal/eventstore"
	"symbiogen/internal/logging"
)

// Persona is a lateral-thinking stance applied when the detector fires.
type Persona string

const (
	Hacker      Persona = "hacker"
	Researcher  Persona = "researcher"
	Simplifier  Persona = "simplifier"
	Architect   Persona = "architect"
	Contrarian  Persona = "contrarian"
)

// affinity maps each persona to the patterns it is preferred for (spec
// §4.6). CONTRARIAN is affine to every pattern and comes last in
// allPersonas, so it loses every tie: for a single pattern it is chosen only
// once the other affine personas have failed, while for patterns spanning
// several personas' affinities it can outscore them all.
var affinity = map[Persona][]Pattern{
	Hacker:     {Spinning},
	Researcher: {NoDrift, DiminishingReturns},
	Simplifier: {DiminishingReturns, Oscillation},
	Architect:  {Oscillation, NoDrift},
	Contrarian: {Spinning, Oscillation, NoDrift, DiminishingReturns},
}

// allPersonas is the fixed rotation order; Contrarian comes last since it is
// the generic fallback.
var allPersonas = []Persona{Hacker, Researcher, Simplifier, Architect, Contrarian}

// ErrPersonasExhausted is returned when every persona has failed within the
// current stagnation episode and the caller must escalate to a human.
var ErrPersonasExhausted = errors.New("stagnation: all personas exhausted, escalate to human intervention")

// Episode tracks which personas have already failed within one stagnation
// episode, so Select never retries a dropped persona.
type Episode struct {
	failed map[Persona]bool
}

// NewEpisode starts a fresh stagnation episode with no personas dropped.
func NewEpisode() *Episode {
	return &Episode{failed: make(map[Persona]bool)}
}

// Fail drops persona from consideration for the remainder of this episode.
func (e *Episode) Fail(p Persona) {
	e.failed[p] = true
}

// Select picks the persona with the highest affinity for the given
// patterns, skipping any already failed in this episode. Ties break by
// allPersonas order. Returns ErrPersonasExhausted if every persona has
// already failed.
func (e *Episode) Select(patterns []Pattern) (Persona, error) {
	best := Persona("")
	bestScore := -1
	for _, p := range allPersonas {
		if e.failed[p] {
			continue
		}
		score := affinityScore(p, patterns)
		if score > bestScore {
			bestScore = score
			best = p
		}
	}
	if best == "" {
		return "", ErrPersonasExhausted
	}
	return best, nil
}

func affinityScore(p Persona, patterns []Pattern) int {
	affine := affinity[p]
	score := 0
	for _, pattern := range patterns {
		for _, a := range affine {
			if a == pattern {
				score++
				break
			}
		}
	}
	return score
}

// Rotate selects the next persona for patterns, emits
// `resilience.persona.rotated`, and returns it. The caller is responsible
// for calling Fail if the persona's suggestion does not resolve the
// stagnation.
func Rotate(ctx context.Context, episode *Episode, patterns []Pattern, seedID string, events eventstore.Store) (Persona, error) {
	persona, err := episode.Select(patterns)
	if err != nil {
		logging.Get(logging.CategoryStagnation).Warn("seed %s: %v", seedID, err)
		return "", err
	}
	logging.Get(logging.CategoryStagnation).Info("seed %s rotating to persona %s for patterns %v", seedID, persona, patterns)
	if events != nil {
		patternStrs := make([]string, len(patterns))
		for i, p := range patterns {
			patternStrs[i] = string(p)
		}
		_ = events.Append(ctx, eventstore.NewEvent(eventstore.AggregateResilience, seedID, "resilience.persona.rotated",
			map[string]interface{}{"persona": string(persona), "patterns": patternStrs}))
	}
	return persona, nil
}
