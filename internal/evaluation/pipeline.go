package evaluation

import (
	"context"
	"fmt"
	"time"

	"symbiogen/internal/logging"
	"symbiogen/internal/tooling"
)

// OntologyStrategy is the active strategy (Interview/Contrarian/Devil) the
// around-advice aspect runs before every pipeline invocation (spec §4.7).
type OntologyStrategy interface {
	CacheKey(acID string) string
	Analyze(ctx context.Context, acID string) (AnalysisResult, error)
}

// Input bundles everything one pipeline invocation needs.
type Input struct {
	ACID              string
	MechanicalChecks  []MechanicalCheck
	CoverageMin       float64
	Semantic          SemanticScores
	SemanticThresholds SemanticThresholds
	StandardAvailable bool
	Trigger           TriggerInputs
	VoteTimeout       time.Duration
	Voters            []Voter
}

// Stage identifies which pipeline stage produced a verdict.
type Stage string

const (
	StageMechanical Stage = "mechanical"
	StageSemantic   Stage = "semantic"
	StageConsensus  Stage = "consensus"
)

// Outcome is the pipeline's final verdict.
type Outcome struct {
	Pass             bool
	FailedAt         Stage
	Mechanical       MechanicalResult
	Semantic         SemanticResult
	Consensus        *SimpleResult
	ConsensusRan     bool
	PreAnalysisErr   error
}

// Pipeline runs the three evaluation stages in order, short-circuiting on
// the first failure, wrapped in the around-advice analysis aspect.
type Pipeline struct {
	strategy   OntologyStrategy
	cache      *TTLCache
	strictMode bool
	runner     tooling.Runner
}

// NewPipeline creates a Pipeline. strategy may be nil to skip the
// around-advice aspect entirely.
func NewPipeline(strategy OntologyStrategy, strictMode bool, runner tooling.Runner) *Pipeline {
	return &Pipeline{strategy: strategy, cache: NewTTLCache(DefaultCacheTTL, DefaultCacheSize), strictMode: strictMode, runner: runner}
}

// Evaluate runs the pipeline for in. If the around-advice pre-analysis
// fails and strict mode is on, the core operation (the three stages) is
// never attempted.
func (p *Pipeline) Evaluate(ctx context.Context, in Input) (Outcome, error) {
	if p.strategy != nil {
		key := p.strategy.CacheKey(in.ACID)
		analysis, cached := p.cache.Get(key)
		if !cached {
			result, err := p.strategy.Analyze(ctx, in.ACID)
			if err != nil {
				logging.Get(logging.CategoryEvaluation).Warn("pre-analysis failed for %s: %v", in.ACID, err)
				if p.strictMode {
					return Outcome{PreAnalysisErr: err}, fmt.Errorf("evaluation: strict-mode pre-analysis failed: %w", err)
				}
				analysis = AnalysisResult{Err: err}
			} else {
				analysis = result
			}
			p.cache.Put(key, analysis)
		}
	}

	mech := RunMechanical(ctx, in.MechanicalChecks, p.runner, in.CoverageMin)
	if !mech.Pass() {
		return Outcome{Pass: false, FailedAt: StageMechanical, Mechanical: mech}, nil
	}

	sem := EvaluateSemantic(in.Semantic, in.SemanticThresholds, in.StandardAvailable)
	if !sem.Pass {
		return Outcome{Pass: false, FailedAt: StageSemantic, Mechanical: mech, Semantic: sem}, nil
	}

	if !ShouldTriggerConsensus(in.Trigger) {
		return Outcome{Pass: true, Mechanical: mech, Semantic: sem}, nil
	}

	result, err := RunSimpleVote(ctx, in.Voters, in.VoteTimeout)
	if err != nil {
		return Outcome{Pass: false, FailedAt: StageConsensus, Mechanical: mech, Semantic: sem, Consensus: &result, ConsensusRan: true}, err
	}

	return Outcome{Pass: result.Approved, FailedAt: stageIfFailed(result.Approved), Mechanical: mech, Semantic: sem, Consensus: &result, ConsensusRan: true}, nil
}

func stageIfFailed(approved bool) Stage {
	if approved {
		return ""
	}
	return StageConsensus
}
