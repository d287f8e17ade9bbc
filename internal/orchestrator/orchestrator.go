// Package orchestrator implements the Orchestration Façade (spec §4.12): a
// single stateless-over-process entry point, evolve_step, that ties the
// Seed loader, Router, Executor, Stagnation detector, Evaluation pipeline,
// Drift measurement, and Evolutionary Loop state machine into one
// per-generation step. Grounded on the teacher's cmd/nerd top-level driver
// shape (initialize collaborators once, run one bounded unit of work, map
// the result to a process exit code) and internal/autopoiesis/ouroboros.go's
// general transactional-step idea, generalized to the Seed/Generation
// domain instead of tool-generation.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"symbiogen/internal/checkpoint"
	"symbiogen/internal/config"
	"symbiogen/internal/drift"
	"symbiogen/internal/eventstore"
	"symbiogen/internal/evaluation"
	"symbiogen/internal/evolution"
	"symbiogen/internal/executor"
	"symbiogen/internal/logging"
	"symbiogen/internal/router"
	"symbiogen/internal/seed"
	"symbiogen/internal/security"
	"symbiogen/internal/stagnation"
	"symbiogen/internal/tooling"
)

// Exit codes for the external driver script (spec §6: "canonical" mapping).
const (
	ExitConverged      = 0
	ExitStagnatedLimit = 10
	ExitExhausted      = 11
	ExitFailed         = 12
	ExitMaxCycles      = 14
)

// defaultVoteTimeout bounds one simple-consensus vote round. It is a fixed
// value; no configuration key overrides it.
const defaultVoteTimeout = 30 * 1_000_000_000 // 30s, expressed in time.Duration's ns unit

// StepResult is the evolve_step JSON envelope (spec §6).
type StepResult struct {
	Action     evolution.Action `json:"action"`
	Generation int              `json:"generation"`
	Similarity float64          `json:"similarity"`
	Drift      float64          `json:"drift"`
	Error      string           `json:"error,omitempty"`
}

// ExitCode maps a terminal action to the driver's canonical exit code.
// CONTINUE maps to 0 as well: the call itself succeeded, and a looping
// driver is expected to inspect the JSON action field (not the exit code)
// to decide whether to call evolve_step again. ExitMaxCycles is not
// returned here; it bounds the driver's own call count, not anything this
// façade decides.
func (r StepResult) ExitCode() int {
	switch r.Action {
	case evolution.Stagnated:
		return ExitStagnatedLimit
	case evolution.Exhausted:
		return ExitExhausted
	case evolution.Failed:
		return ExitFailed
	default:
		return ExitConverged
	}
}

// Evaluator supplies the judgment inputs the orchestrator cannot compute
// itself: mechanical checks to run, the semantic judge's scores, consensus
// voters, and exit-condition / goal-restatement checks. This is the narrow
// capability boundary the LLM- and tool-backed half of the system
// implements; the orchestrator only wires it into the evaluation pipeline
// (spec §9: "wire dependencies explicitly at the boundary, no runtime
// discovery").
type Evaluator interface {
	MechanicalChecks(acID string) []evaluation.MechanicalCheck
	Semantic(ctx context.Context, acID string) (evaluation.SemanticScores, error)
	Voters(acID string) []evaluation.Voter
	ExitConditionsSatisfied(ctx context.Context, sd *seed.Seed) (bool, error)
	RestatedGoal(ctx context.Context, sd *seed.Seed) (string, error)
}

// Dependencies bundles the external collaborators one lineage's steps need.
// None are constructed by the orchestrator; all are wired in by the caller
// at process start (cmd/evolve).
type Dependencies struct {
	Phases     executor.PhaseExecutor
	Validator  executor.Validator
	Compressor executor.Compressor
	Runner     tooling.Runner
	Strategy   evaluation.OntologyStrategy
	Evaluator  Evaluator
}

// generationState is the per-lineage snapshot carried across evolve_step
// calls via the Checkpoint store (spec §4.9: "state is reconstructed from
// the Event Store + latest checkpoint").
type generationState struct {
	OntologyEvents     []seed.OntologyEvent
	PrevConcepts       []string
	Iterations         []stagnation.Iteration
	FailedPersonas     []string
	LateralRetryCount  int
	PendingPersonaNote string
	History            []string
}

// maxHistory bounds how many iterations/history lines a lineage carries
// forward; unbounded growth would defeat the compressor's own triggers.
const maxHistory = 20

// Orchestrator is the façade. One instance serves every lineage; per-
// lineage state lives entirely in the Event Store and Checkpoint store.
type Orchestrator struct {
	cfg         *config.Config
	events      eventstore.Store
	checkpoints *checkpoint.Store
	driftStore  *drift.Store
	router      *router.Router
	deps        Dependencies
	metrics     *Metrics
}

// New creates an Orchestrator bound to its collaborators. metrics may be nil
// (observe is a no-op on a nil *Metrics), which test suites rely on to avoid
// registering collectors against the global Prometheus registry.
func New(cfg *config.Config, events eventstore.Store, checkpoints *checkpoint.Store, driftStore *drift.Store, r *router.Router, deps Dependencies, metrics *Metrics) *Orchestrator {
	return &Orchestrator{cfg: cfg, events: events, checkpoints: checkpoints, driftStore: driftStore, router: r, deps: deps, metrics: metrics}
}

// EvolveStep is the orchestration entry point (spec §6): one bounded unit
// of work for lineageID, optionally seeded from seedPath on the lineage's
// first call. serverCommandOverride, when set, is forwarded to mechanical
// checks as a tool-invocation argument, letting a driver point Stage 1 at a
// different build/test server without changing the Seed.
func (o *Orchestrator) EvolveStep(ctx context.Context, lineageID, seedPath, serverCommandOverride string) StepResult {
	start := time.Now()
	result, unrecoverable := o.step(ctx, lineageID, seedPath, serverCommandOverride)
	if unrecoverable != nil {
		logging.Get(logging.CategoryOrchestrator).Error("lineage=%s evolve_step failed: %v", lineageID, unrecoverable)
		result.Action = evolution.Failed
		result.Error = unrecoverable.Error()
	}
	o.metrics.observe(result, time.Since(start).Seconds())
	return result
}

func (o *Orchestrator) step(ctx context.Context, lineageID, seedPath, serverCommandOverride string) (StepResult, error) {
	sd, err := o.loadOrReconstructSeed(ctx, lineageID, seedPath)
	if err != nil {
		return StepResult{}, fmt.Errorf("orchestrator: seed: %w", err)
	}

	genNum, err := evolution.Reconstruct(ctx, o.events, lineageID)
	if err != nil {
		return StepResult{}, fmt.Errorf("orchestrator: reconstructing generation counter: %w", err)
	}

	state, unrecoverable := o.loadState(ctx, lineageID, genNum-1)

	tree := buildTree(sd)
	ontology := seed.NewEffectiveOntology(sd.OntologySchema())
	for _, ev := range state.OntologyEvents {
		_ = ontology.Append(ev)
	}

	roots := tree.Roots()
	seedSummary := buildSeedSummary(sd, state)
	var acErrs []string
	for _, root := range roots {
		if err := o.runExecutor(ctx, lineageID, tree, root.ID, seedSummary, state.History); err != nil {
			acErrs = append(acErrs, fmt.Sprintf("%s: %v", root.ID, err))
			logging.Get(logging.CategoryOrchestrator).Warn("lineage=%s AC %s failed: %v", lineageID, root.ID, err)
		}
	}

	currentConcepts := sortedConcepts(ontology.Concepts())
	baseConcepts := schemaConceptNames(sd.OntologySchema())
	restatedGoal := sd.Goal()
	if o.deps.Evaluator != nil {
		if g, err := o.deps.Evaluator.RestatedGoal(ctx, sd); err == nil && g != "" {
			restatedGoal = g
		}
	}

	// Generation-level signals for the Stage-3 consensus trigger matrix
	// (spec §4.7, rows 1/2/3/6): whether the ontology has already diverged
	// from the Seed's base schema, whether the goal restatement this
	// generation differs from the Seed's frozen goal text, and whether a
	// persona's lateral suggestion from the prior generation's stagnation
	// episode was carried into this generation's seed summary. Row 1
	// (SeedModificationProposed) has no source in this implementation: the
	// Seed is never mutated (spec §4.3), so no component ever proposes a
	// modification to it.
	triggers := generationTriggers{
		OntologyEvolution:        len(state.OntologyEvents) > 0,
		GoalReinterpretation:     restatedGoal != sd.Goal(),
		LateralSuggestionAdopted: state.PendingPersonaNote != "",
	}

	outcome, avgSemScore, consensusAborted, evalErr := o.evaluateGeneration(ctx, roots, serverCommandOverride, triggers)
	if evalErr != nil && !consensusAborted {
		logging.Get(logging.CategoryOrchestrator).Warn("lineage=%s evaluation error: %v", lineageID, evalErr)
	}

	dm := drift.Measure(genNum, drift.Inputs{
		OriginalGoal:        sd.Goal(),
		CurrentGoal:         restatedGoal,
		OriginalConstraints: sd.Constraints(),
		CurrentConstraints:  sd.Constraints(),
		BaseConcepts:        baseConcepts,
		EffectiveConcepts:   currentConcepts,
	}, o.driftWeights())

	if o.driftStore != nil {
		rec := drift.NewRecorder(o.driftStore, o.events, lineageID)
		_ = rec.RecordMeasurement(ctx, dm)
		if drift.IsRetrospectiveDue(genNum, o.cfg.Drift.RetrospectiveEvery) {
			retro := drift.RunRetrospective(genNum, dm)
			_ = rec.RecordRetrospective(ctx, retro)
		}
	}

	similarity := 1.0
	if len(state.PrevConcepts) > 0 {
		similarity = 1 - drift.OntologyDrift(state.PrevConcepts, currentConcepts)
	}

	outputHash := hashOutputs(tree)
	iterations := append(append([]stagnation.Iteration(nil), state.Iterations...), stagnation.Iteration{
		OutputHash: outputHash, DriftScore: dm.Score, ProgressRate: avgSemScore,
	})
	if len(iterations) > maxHistory {
		iterations = iterations[len(iterations)-maxHistory:]
	}

	patterns := stagnation.Detect(stagnation.ExecutionHistory{Iterations: iterations}, o.stagnationThresholds())
	stagnationDetected := len(patterns) > 0

	episode := stagnation.NewEpisode()
	for _, name := range state.FailedPersonas {
		episode.Fail(stagnation.Persona(name))
	}
	retryCount := state.LateralRetryCount
	lateralRetriesExhausted := false
	pendingNote := ""
	failedPersonas := append([]string(nil), state.FailedPersonas...)
	if stagnationDetected {
		retryCount++
		persona, perr := stagnation.Rotate(ctx, episode, patterns, lineageID, o.events)
		switch {
		case perr != nil:
			lateralRetriesExhausted = true
		case retryCount > o.cfg.Evolution.MaxRetries:
			lateralRetriesExhausted = true
			failedPersonas = append(failedPersonas, string(persona))
		default:
			pendingNote = fmt.Sprintf("PERSONA: %s suggests a lateral approach for %v", persona, patterns)
		}
	} else {
		retryCount = 0
	}

	evaluationPassed := outcome != nil && outcome.Pass
	exitConditionsSatisfied := false
	if o.deps.Evaluator != nil {
		exitConditionsSatisfied, _ = o.deps.Evaluator.ExitConditionsSatisfied(ctx, sd)
	}

	decision := evolution.Decide(evolution.StepInputs{
		LineageID:               lineageID,
		GenerationN:             genNum,
		MaxGenerations:          o.cfg.Evolution.MaxGenerations,
		EvaluationPassed:        evaluationPassed,
		DriftHealthy:            dm.Healthy,
		ProgressMeasurable:      avgSemScore > 0,
		SimilarityToPrevious:    similarity,
		ConvergenceThreshold:    o.cfg.Evolution.ConvergenceSimilarity,
		ExitConditionsSatisfied: exitConditionsSatisfied,
		StagnationDetected:      stagnationDetected,
		LateralRetriesExhausted: lateralRetriesExhausted,
		UnrecoverableError:      unrecoverable,
		ConsensusAbortedToHuman: consensusAborted,
	})

	newState := generationState{
		OntologyEvents:      state.OntologyEvents,
		PrevConcepts:        currentConcepts,
		Iterations:          iterations,
		FailedPersonas:      failedPersonas,
		LateralRetryCount:   retryCount,
		PendingPersonaNote:  pendingNote,
		History:             appendHistory(state.History, acErrs, pendingNote),
	}
	if _, err := o.checkpoints.Save(ctx, lineageID, string(decision), genNum, newState); err != nil && unrecoverable == nil {
		unrecoverable = fmt.Errorf("checkpoint save: %w", err)
		decision = evolution.Failed
	}

	fingerprint := router.Fingerprint(sd.Goal())
	if o.router != nil {
		if evaluationPassed {
			o.router.Record(ctx, fingerprint, router.Success)
		} else {
			o.router.Record(ctx, fingerprint, router.Failure)
		}
	}

	evoRec := evolution.NewRecorder(o.events)
	_ = evoRec.RecordStep(ctx, evolution.Generation{
		LineageID: lineageID, GenerationNumber: genNum, SeedHash: sd.MustHash(),
		OntologyVersion:      fmt.Sprintf("%d-events", len(state.OntologyEvents)),
		SimilarityToPrevious: similarity, DriftScore: dm.Score, Action: decision,
	})

	result := StepResult{Action: decision, Generation: genNum, Similarity: similarity, Drift: dm.Score}
	if unrecoverable != nil {
		return result, unrecoverable
	}
	return result, nil
}

// loadOrReconstructSeed loads sd from seedPath on a lineage's first call, or
// replays the lineage's seed.created event on every subsequent call. The
// full seed YAML is stored verbatim in the event payload specifically so
// that reconstruction is exact, honoring the "stateless over process"
// requirement without inventing a second Seed serialization format.
func (o *Orchestrator) loadOrReconstructSeed(ctx context.Context, lineageID, seedPath string) (*seed.Seed, error) {
	if seedPath != "" {
		data, err := os.ReadFile(seedPath)
		if err != nil {
			return nil, fmt.Errorf("reading seed file %s: %w", seedPath, err)
		}
		if err := security.CheckSeedFile(data); err != nil {
			return nil, err
		}
		sd, err := seed.LoadYAML(lineageID, data)
		if err != nil {
			return nil, err
		}
		_ = o.events.Append(ctx, eventstore.NewEvent(eventstore.AggregateEvolution, lineageID, "seed.created",
			map[string]interface{}{"goal": sd.Goal(), "hash": sd.MustHash(), "yaml": string(data)}))
		return sd, nil
	}

	evs, err := o.events.Replay(ctx, lineageID)
	if err != nil {
		return nil, fmt.Errorf("replaying lineage %s: %w", lineageID, err)
	}
	for i := len(evs) - 1; i >= 0; i-- {
		if evs[i].EventType != "seed.created" {
			continue
		}
		yamlText, _ := evs[i].Payload["yaml"].(string)
		return seed.LoadYAML(lineageID, []byte(yamlText))
	}
	return nil, fmt.Errorf("lineage %s has no Seed yet; seed_path is required on the first call", lineageID)
}

// loadState reconstructs a lineage's generation state from its checkpoint,
// returning a fresh zero state for the lineage's first generation. A
// CorruptionError is returned (not swallowed) since it marks the lineage
// unrecoverable (spec §4.2: rollback slots exhausted).
func (o *Orchestrator) loadState(ctx context.Context, lineageID string, priorGen int) (generationState, error) {
	var state generationState
	if priorGen < 1 {
		return state, nil
	}
	cp, _, err := o.checkpoints.Load(ctx, lineageID)
	if err != nil {
		if _, corrupt := err.(*checkpoint.CorruptionError); corrupt {
			return state, fmt.Errorf("checkpoint corruption exhausted rollback: %w", err)
		}
		return state, nil
	}
	if err := cp.Unmarshal(&state); err != nil {
		return generationState{}, fmt.Errorf("checkpoint unmarshal: %w", err)
	}
	return state, nil
}

// buildTree constructs a fresh AC tree rooted at sd's flat acceptance
// criteria. Per-generation decomposition is re-derived by the executor each
// step rather than carried forward in the checkpoint; what persists across
// generations is the checkpointed generationState.
func buildTree(sd *seed.Seed) *seed.Tree {
	tree := seed.NewTree()
	for i, text := range sd.AcceptanceCriteria() {
		tree.AddRoot(fmt.Sprintf("ac-%d", i), text)
	}
	return tree
}

func (o *Orchestrator) runExecutor(ctx context.Context, lineageID string, tree *seed.Tree, acID, seedSummary string, history []string) error {
	atomicity := executor.AtomicityThresholds{
		Complexity: o.cfg.Atomicity.Complexity,
		ToolCount:  o.cfg.Atomicity.ToolCount,
		DurationS:  float64(o.cfg.Atomicity.DurationS),
	}
	exec := executor.New(lineageID, tree, o.deps.Phases, o.deps.Validator, o.deps.Compressor, atomicity, o.events)
	return exec.RunNode(ctx, acID, seedSummary, history)
}

// generationTriggers carries the Stage-3 consensus trigger-matrix rows (spec
// §4.7) that are decided once per generation rather than per AC: whether the
// ontology has already evolved away from the Seed's base schema (row 2),
// whether this generation's restated goal diverges from the Seed's frozen
// goal text (row 3), and whether a persona's lateral-thinking suggestion
// from the prior generation was adopted into this one (row 6). Every AC
// root's pipeline run is seeded with the same generationTriggers alongside
// its own per-AC drift/uncertainty scores (rows 4-5).
type generationTriggers struct {
	OntologyEvolution        bool
	GoalReinterpretation     bool
	LateralSuggestionAdopted bool
}

// evaluateGeneration runs the three-stage pipeline once per AC root and
// folds the results into a single pass/fail signal, the mean Stage-2 score
// (used as this generation's progress-rate proxy), and a consensus-aborted
// flag. serverCommandOverride, when set, is attached to every mechanical
// check's tool invocation so a driver can redirect Stage 1 without
// rewriting the Seed (spec §6 evolve_step's optional
// server_command_override argument). gen carries the generation-level rows
// of the consensus trigger matrix (spec §4.7); per-AC drift/uncertainty are
// added on top of it for each root.
func (o *Orchestrator) evaluateGeneration(ctx context.Context, roots []*seed.ACNode, serverCommandOverride string, gen generationTriggers) (outcome *evaluation.Outcome, avgSemScore float64, consensusAborted bool, err error) {
	if o.deps.Evaluator == nil || len(roots) == 0 {
		return nil, 0, false, nil
	}
	pipeline := evaluation.NewPipeline(o.deps.Strategy, true, o.deps.Runner)

	var last evaluation.Outcome
	var scoreSum float64
	for _, root := range roots {
		checks := o.deps.Evaluator.MechanicalChecks(root.ID)
		if serverCommandOverride != "" {
			for i := range checks {
				if checks[i].Invocation.Args == nil {
					checks[i].Invocation.Args = map[string]any{}
				}
				checks[i].Invocation.Args["server_command"] = serverCommandOverride
			}
		}
		sem, serr := o.deps.Evaluator.Semantic(ctx, root.ID)
		if serr != nil {
			return nil, 0, false, fmt.Errorf("semantic scoring %s: %w", root.ID, serr)
		}
		scoreSum += sem.Score
		voters := o.deps.Evaluator.Voters(root.ID)
		trigger := evaluation.TriggerInputs{
			OntologyEvolution:        gen.OntologyEvolution,
			GoalReinterpretation:     gen.GoalReinterpretation,
			LateralSuggestionAdopted: gen.LateralSuggestionAdopted,
			Drift:                    sem.Drift,
			Stage2Uncertainty:        sem.Uncertainty,
		}

		in := evaluation.Input{
			ACID: root.ID, MechanicalChecks: checks, CoverageMin: o.cfg.Evaluation.Mechanical.CoverageMin,
			Semantic: sem, SemanticThresholds: evaluation.SemanticThresholds{
				Score: o.cfg.Evaluation.Semantic.Pass, GoalAlignment: o.cfg.Evaluation.Semantic.Goal,
				Drift: o.cfg.Evaluation.Semantic.Drift, Uncertainty: o.cfg.Evaluation.Semantic.Uncertainty,
			},
			StandardAvailable: true, Trigger: trigger, VoteTimeout: defaultVoteTimeout, Voters: voters,
		}
		out, evalErr := pipeline.Evaluate(ctx, in)
		if evalErr != nil {
			if evalErr == evaluation.ErrConsensusEscalated {
				return &out, scoreSum / float64(len(roots)), true, evalErr
			}
			return &out, scoreSum / float64(len(roots)), false, evalErr
		}
		last = out
		if !out.Pass {
			return &last, scoreSum / float64(len(roots)), false, nil
		}
	}
	return &last, scoreSum / float64(len(roots)), false, nil
}

func hashOutputs(tree *seed.Tree) string {
	var sb strings.Builder
	for _, n := range tree.AllNodes() {
		sb.WriteString(n.ID)
		sb.WriteString(":")
		sb.WriteString(string(n.Status))
		sb.WriteString(";")
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

func buildSeedSummary(sd *seed.Seed, state generationState) string {
	var sb strings.Builder
	sb.WriteString("SEED: ")
	sb.WriteString(sd.Goal())
	for _, h := range state.History {
		sb.WriteString("\nHISTORY: ")
		sb.WriteString(h)
	}
	if state.PendingPersonaNote != "" {
		sb.WriteString("\nFACT: ")
		sb.WriteString(state.PendingPersonaNote)
	}
	return sb.String()
}

func appendHistory(prev []string, acErrs []string, note string) []string {
	history := append([]string(nil), prev...)
	history = append(history, acErrs...)
	if note != "" {
		history = append(history, note)
	}
	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}
	return history
}

func sortedConcepts(in []string) []string {
	out := append([]string(nil), in...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

func schemaConceptNames(schema seed.OntologySchema) []string {
	names := make([]string, 0, len(schema.Fields))
	for _, f := range schema.Fields {
		names = append(names, f.Name)
	}
	return sortedConcepts(names)
}

func (o *Orchestrator) driftWeights() drift.Weights {
	return drift.Weights{Goal: o.cfg.Drift.Weights.Goal, Constraint: o.cfg.Drift.Weights.Constraint, Ontology: o.cfg.Drift.Weights.Ontology}
}

func (o *Orchestrator) stagnationThresholds() stagnation.Thresholds {
	return stagnation.Thresholds{
		Spinning: o.cfg.Stagnation.Spinning, OscillationWindow: 6,
		NoDriftCount: o.cfg.Stagnation.NoDrift, DiminishingCount: o.cfg.Stagnation.DiminishingReturns,
	}
}
