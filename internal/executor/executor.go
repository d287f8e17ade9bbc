package executor

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"symbiogen/internal/eventstore"
	"symbiogen/internal/logging"
	"symbiogen/internal/seed"
)

// PhaseResult is what a single Discover/Define/Design/Deliver invocation
// produces. ProposedChildren is only meaningful when returned from Define
// and AtomicityInput classifies as non-atomic.
type PhaseResult struct {
	Output           string
	Atomicity        AtomicityInput
	ProposedChildren []string
}

// PhaseExecutor performs the actual work of one phase for one AC. It is the
// executor's only collaborator touching an LLM or tools; everything else in
// this package is pure orchestration.
type PhaseExecutor interface {
	Execute(ctx context.Context, phase Phase, fc FilteredContext) (PhaseResult, error)
}

// Validator checks a subagent's result for structural completeness and
// principle compliance (spec §4.5). A failing validator does not abort the
// parent; the failure is logged and the sibling continues.
type Validator interface {
	Validate(result PhaseResult) error
}

// Compressor compresses a parent summary to a fixed budget for ACs at
// depth >= 3 (spec §4.5, §4.10).
type Compressor interface {
	Compress(ctx context.Context, summary string) (string, error)
}

// compressionDepth is the depth at which FilteredContext summaries must be
// compressed before being handed to a child (spec §4.5).
const compressionDepth = 3

// Executor runs the Double-Diamond over an AC tree rooted at a Seed.
type Executor struct {
	tree       *seed.Tree
	phases     PhaseExecutor
	validator  Validator
	compressor Compressor
	atomicity  AtomicityThresholds
	events     eventstore.Store
	seedID     string
}

// New creates an Executor bound to tree and the given collaborators.
// compressor may be nil, in which case depth>=3 summaries pass through
// uncompressed (acceptable only in tests).
func New(seedID string, tree *seed.Tree, phases PhaseExecutor, validator Validator, compressor Compressor, atomicity AtomicityThresholds, events eventstore.Store) *Executor {
	return &Executor{seedID: seedID, tree: tree, phases: phases, validator: validator, compressor: compressor, atomicity: atomicity, events: events}
}

// RunNode drives a single AC through all four phases, decomposing and
// recursing into children when Define judges it non-atomic.
func (e *Executor) RunNode(ctx context.Context, acID string, seedSummary string, history []string) error {
	node, ok := e.tree.Get(acID)
	if !ok {
		return fmt.Errorf("executor: unknown AC %s", acID)
	}
	if err := e.tree.SetStatus(acID, seed.ACRunning); err != nil {
		return err
	}

	summary := seedSummary
	if node.Depth >= compressionDepth && e.compressor != nil {
		compressed, err := e.compressor.Compress(ctx, seedSummary)
		if err == nil {
			summary = compressed
		}
	}

	var lastOutput PhaseResult
	for phase := Discover; phase != ""; phase = Next(phase) {
		fc := NewFilteredContext(summary, acID, history, nil)
		var result PhaseResult
		err := withRetry(ctx, acID, phase, func(ctx context.Context) error {
			r, err := e.phases.Execute(ctx, phase, fc)
			if err != nil {
				return err
			}
			result = r
			return nil
		})
		e.emit(ctx, acID, fmt.Sprintf("execution.phase.%s.completed", phase), map[string]interface{}{"depth": node.Depth})
		if err != nil {
			_ = e.tree.SetStatus(acID, seed.ACFailed)
			logging.Get(logging.CategoryExecutor).Error("AC %s failed at phase %s: %v", acID, phase, err)
			return err
		}

		if e.validator != nil {
			if verr := e.validator.Validate(result); verr != nil {
				logging.Get(logging.CategoryExecutor).Warn("AC %s phase %s validation failed: %v (parent context: %s)", acID, phase, verr, summary)
				e.emit(ctx, acID, "execution.validation.failed", map[string]interface{}{"phase": string(phase), "reason": verr.Error()})
			}
		}

		lastOutput = result

		if phase == Define {
			atomicityClass := Classify(result.Atomicity, e.atomicity)
			if atomicityClass == seed.NonAtomic {
				if err := e.decompose(ctx, acID, result.ProposedChildren, summary, history); err != nil {
					_ = e.tree.SetStatus(acID, seed.ACFailed)
					return err
				}
				_ = e.tree.SetStatus(acID, seed.ACDone)
				return nil
			}
		}
	}

	_ = lastOutput
	return e.tree.SetStatus(acID, seed.ACDone)
}

// decompose splits a non-atomic AC into 2-5 children (spec §4.5 hard
// limit), dependency-sorts and runs them in parallel via errgroup, and
// awaits all before returning.
func (e *Executor) decompose(ctx context.Context, parentID string, childTexts []string, summary string, history []string) error {
	if len(childTexts) < 2 || len(childTexts) > 5 {
		return fmt.Errorf("executor: AC %s proposed %d children, must be 2-5", parentID, len(childTexts))
	}

	childIDs := make([]string, 0, len(childTexts))
	for i, text := range childTexts {
		childID := fmt.Sprintf("%s.%d", parentID, i)
		if _, err := e.tree.AddChild(parentID, childID, text); err != nil {
			return fmt.Errorf("executor: decomposing %s: %w", parentID, err)
		}
		childIDs = append(childIDs, childID)
	}
	e.emit(ctx, parentID, "execution.ac.decomposed", map[string]interface{}{"child_count": len(childIDs)})

	// Siblings run independently: one child exhausting its retries must not
	// cancel the others mid-flight, so this group shares ctx directly
	// rather than the cancel-propagating context errgroup.WithContext
	// would hand back.
	var g errgroup.Group
	for _, childID := range childIDs {
		childID := childID
		g.Go(func() error {
			return e.RunNode(ctx, childID, summary, history)
		})
	}
	return g.Wait()
}

func (e *Executor) emit(ctx context.Context, acID, eventType string, payload map[string]interface{}) {
	if e.events == nil {
		return
	}
	_ = e.events.Append(ctx, eventstore.NewEvent(eventstore.AggregateExecution, e.seedID, eventType, mergePayload(acID, payload)))
}

func mergePayload(acID string, payload map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{"ac_id": acID}
	for k, v := range payload {
		out[k] = v
	}
	return out
}
