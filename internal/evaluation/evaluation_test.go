package evaluation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"symbiogen/internal/tooling"
)

type fakeRunner struct {
	available map[string]bool
	output    map[string]string
	err       map[string]error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{available: map[string]bool{}, output: map[string]string{}, err: map[string]error{}}
}

func (r *fakeRunner) Available(tool string) bool { return r.available[tool] }

func (r *fakeRunner) Run(ctx context.Context, inv tooling.Invocation) tooling.Result {
	return tooling.Result{Tool: inv.Tool, Output: r.output[inv.Tool], Err: r.err[inv.Tool]}
}

func passingMechanicalChecks() []MechanicalCheck {
	return []MechanicalCheck{
		{Name: "lint", Invocation: tooling.Invocation{Tool: "golangci-lint"}},
		{Name: "coverage", Invocation: tooling.Invocation{Tool: "go-cover"}, CoverageOf: true},
	}
}

func passingRunner() *fakeRunner {
	r := newFakeRunner()
	r.available["golangci-lint"] = true
	r.available["go-cover"] = true
	r.output["go-cover"] = "0.85"
	return r
}

func passingSemantic() (SemanticScores, SemanticThresholds) {
	return SemanticScores{ACCompliance: true, Score: 0.9, GoalAlignment: 0.8, Drift: 0.1, Uncertainty: 0.1},
		SemanticThresholds{Score: 0.8, GoalAlignment: 0.7, Drift: 0.3, Uncertainty: 0.3}
}

type fixedVoter struct{ approve bool }

func (v fixedVoter) Vote(ctx context.Context) (bool, error) { return v.approve, nil }

type erroringVoter struct{}

func (erroringVoter) Vote(ctx context.Context) (bool, error) { return false, errors.New("voter timed out") }

func TestPipeline_ShortCircuitsOnMechanicalFailure(t *testing.T) {
	runner := newFakeRunner() // nothing available
	p := NewPipeline(nil, false, runner)
	scores, th := passingSemantic()

	out, err := p.Evaluate(context.Background(), Input{
		ACID:               "ac-1",
		MechanicalChecks:   passingMechanicalChecks(),
		CoverageMin:        0.7,
		Semantic:           scores,
		SemanticThresholds: th,
		StandardAvailable:  true,
	})

	require.NoError(t, err)
	assert.False(t, out.Pass)
	assert.Equal(t, StageMechanical, out.FailedAt)
}

func TestPipeline_ShortCircuitsOnSemanticFailure(t *testing.T) {
	p := NewPipeline(nil, false, passingRunner())
	scores, th := passingSemantic()
	scores.Score = 0.1 // below threshold

	out, err := p.Evaluate(context.Background(), Input{
		ACID:               "ac-1",
		MechanicalChecks:   passingMechanicalChecks(),
		CoverageMin:        0.7,
		Semantic:           scores,
		SemanticThresholds: th,
		StandardAvailable:  true,
	})

	require.NoError(t, err)
	assert.False(t, out.Pass)
	assert.Equal(t, StageSemantic, out.FailedAt)
}

func TestPipeline_PassesWithoutConsensusWhenTriggerMatrixClean(t *testing.T) {
	p := NewPipeline(nil, false, passingRunner())
	scores, th := passingSemantic()

	out, err := p.Evaluate(context.Background(), Input{
		ACID:               "ac-1",
		MechanicalChecks:   passingMechanicalChecks(),
		CoverageMin:        0.7,
		Semantic:           scores,
		SemanticThresholds: th,
		StandardAvailable:  true,
		Trigger:            TriggerInputs{Drift: 0.1, Stage2Uncertainty: 0.1},
	})

	require.NoError(t, err)
	assert.True(t, out.Pass)
	assert.False(t, out.ConsensusRan)
}

func TestPipeline_TriggerMatrixFiresConsensusOnDriftAlone(t *testing.T) {
	p := NewPipeline(nil, false, passingRunner())
	scores, th := passingSemantic()

	out, err := p.Evaluate(context.Background(), Input{
		ACID:               "ac-1",
		MechanicalChecks:   passingMechanicalChecks(),
		CoverageMin:        0.7,
		Semantic:           scores,
		SemanticThresholds: th,
		StandardAvailable:  true,
		Trigger:            TriggerInputs{Drift: 0.31},
		VoteTimeout:        time.Second,
		Voters:             []Voter{fixedVoter{true}, fixedVoter{true}, fixedVoter{false}},
	})

	require.NoError(t, err)
	assert.True(t, out.ConsensusRan)
	assert.True(t, out.Pass)
}

func TestPipeline_TriggerMatrixFiresConsensusOnGenerationLevelRowsAlone(t *testing.T) {
	// Rows 2/3/6 (OntologyEvolution, GoalReinterpretation,
	// LateralSuggestionAdopted) are decided once per generation by the
	// orchestrator rather than from this AC's own drift/uncertainty scores
	// (rows 4/5). Each must independently fire consensus even with drift
	// and uncertainty both well under threshold.
	cases := []struct {
		name    string
		trigger TriggerInputs
	}{
		{"ontology evolution", TriggerInputs{OntologyEvolution: true}},
		{"goal reinterpretation", TriggerInputs{GoalReinterpretation: true}},
		{"lateral suggestion adopted", TriggerInputs{LateralSuggestionAdopted: true}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewPipeline(nil, false, passingRunner())
			scores, th := passingSemantic()
			tc.trigger.Drift = 0.1
			tc.trigger.Stage2Uncertainty = 0.1

			out, err := p.Evaluate(context.Background(), Input{
				ACID:               "ac-1",
				MechanicalChecks:   passingMechanicalChecks(),
				CoverageMin:        0.7,
				Semantic:           scores,
				SemanticThresholds: th,
				StandardAvailable:  true,
				Trigger:            tc.trigger,
				VoteTimeout:        time.Second,
				Voters:             []Voter{fixedVoter{true}, fixedVoter{true}, fixedVoter{false}},
			})

			require.NoError(t, err)
			assert.True(t, out.ConsensusRan, "generation-level trigger row should have reached the consensus stage")
			assert.True(t, out.Pass)
		})
	}
}

func TestPipeline_ConsensusEscalationFailsPipeline(t *testing.T) {
	p := NewPipeline(nil, false, passingRunner())
	scores, th := passingSemantic()

	out, err := p.Evaluate(context.Background(), Input{
		ACID:               "ac-1",
		MechanicalChecks:   passingMechanicalChecks(),
		CoverageMin:        0.7,
		Semantic:           scores,
		SemanticThresholds: th,
		StandardAvailable:  true,
		Trigger:            TriggerInputs{SeedModificationProposed: true},
		VoteTimeout:        time.Second,
		Voters:             []Voter{erroringVoter{}, erroringVoter{}, fixedVoter{true}},
	})

	require.ErrorIs(t, err, ErrConsensusEscalated)
	assert.False(t, out.Pass)
	assert.Equal(t, StageConsensus, out.FailedAt)
}

type fakeStrategy struct {
	key      string
	result   AnalysisResult
	err      error
	calls    int
}

func (s *fakeStrategy) CacheKey(acID string) string { return s.key }

func (s *fakeStrategy) Analyze(ctx context.Context, acID string) (AnalysisResult, error) {
	s.calls++
	return s.result, s.err
}

func TestPipeline_StrictModeAbortsOnPreAnalysisFailure(t *testing.T) {
	strategy := &fakeStrategy{key: "k1", err: errors.New("ontology analysis unavailable")}
	p := NewPipeline(strategy, true, passingRunner())
	scores, th := passingSemantic()

	out, err := p.Evaluate(context.Background(), Input{
		ACID:               "ac-1",
		MechanicalChecks:   passingMechanicalChecks(),
		CoverageMin:        0.7,
		Semantic:           scores,
		SemanticThresholds: th,
		StandardAvailable:  true,
	})

	require.Error(t, err)
	assert.Error(t, out.PreAnalysisErr)
	assert.False(t, out.Pass)
}

func TestPipeline_NonStrictModeContinuesOnPreAnalysisFailure(t *testing.T) {
	strategy := &fakeStrategy{key: "k1", err: errors.New("ontology analysis unavailable")}
	p := NewPipeline(strategy, false, passingRunner())
	scores, th := passingSemantic()

	out, err := p.Evaluate(context.Background(), Input{
		ACID:               "ac-1",
		MechanicalChecks:   passingMechanicalChecks(),
		CoverageMin:        0.7,
		Semantic:           scores,
		SemanticThresholds: th,
		StandardAvailable:  true,
	})

	require.NoError(t, err)
	assert.True(t, out.Pass)
}

func TestPipeline_CachesPreAnalysisResultAcrossCalls(t *testing.T) {
	strategy := &fakeStrategy{key: "k1", result: AnalysisResult{Summary: "seed is coherent"}}
	p := NewPipeline(strategy, false, passingRunner())
	scores, th := passingSemantic()

	in := Input{
		ACID:               "ac-1",
		MechanicalChecks:   passingMechanicalChecks(),
		CoverageMin:        0.7,
		Semantic:           scores,
		SemanticThresholds: th,
		StandardAvailable:  true,
	}

	_, err := p.Evaluate(context.Background(), in)
	require.NoError(t, err)
	_, err = p.Evaluate(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, 1, strategy.calls, "second call should hit the cache instead of re-analyzing")
}

func TestTTLCache_ExpiresEntries(t *testing.T) {
	c := NewTTLCache(10*time.Millisecond, 10)
	now := time.Now()
	c.now = func() time.Time { return now }
	c.Put("k", AnalysisResult{Summary: "x"})

	_, ok := c.Get("k")
	assert.True(t, ok)

	now = now.Add(20 * time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestTTLCache_EvictsOldestOverCapacity(t *testing.T) {
	c := NewTTLCache(time.Minute, 2)
	c.Put("a", AnalysisResult{Summary: "a"})
	c.Put("b", AnalysisResult{Summary: "b"})
	c.Put("c", AnalysisResult{Summary: "c"})

	_, ok := c.Get("a")
	assert.False(t, ok, "oldest entry should have been evicted")

	_, ok = c.Get("b")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestTTLCache_GetRefreshesRecency(t *testing.T) {
	c := NewTTLCache(time.Minute, 2)
	c.Put("a", AnalysisResult{Summary: "a"})
	c.Put("b", AnalysisResult{Summary: "b"})

	_, ok := c.Get("a") // touch a, making b the oldest
	require.True(t, ok)

	c.Put("c", AnalysisResult{Summary: "c"})

	_, ok = c.Get("b")
	assert.False(t, ok, "b should be evicted since a was refreshed more recently")
	_, ok = c.Get("a")
	assert.True(t, ok)
}
