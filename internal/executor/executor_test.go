package executor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"symbiogen/internal/eventstore"
	"symbiogen/internal/seed"
)

func init() {
	sleepFn = func(time.Duration) {} // don't actually wait in tests
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func defaultAtomicity() AtomicityThresholds {
	return AtomicityThresholds{Complexity: 0.7, ToolCount: 3, DurationS: 300}
}

// scriptedPhaseExecutor returns canned results per phase, optionally
// erroring a fixed number of times before succeeding (to exercise backoff).
type scriptedPhaseExecutor struct {
	mu          sync.Mutex
	failUntil   map[Phase]int
	attempts    map[Phase]int
	defineAtomic AtomicityInput
	children    []string
}

func (s *scriptedPhaseExecutor) Execute(ctx context.Context, phase Phase, fc FilteredContext) (PhaseResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempts == nil {
		s.attempts = map[Phase]int{}
	}
	s.attempts[phase]++
	if s.failUntil != nil && s.attempts[phase] <= s.failUntil[phase] {
		return PhaseResult{}, errors.New("transient failure")
	}
	if phase == Define {
		if strings.Contains(fc.CurrentAC, ".") {
			// child ACs ("parent.N") are atomic, so decomposition stops at depth 1
			return PhaseResult{Output: "defined", Atomicity: AtomicityInput{Complexity: 0.1, ToolCount: 1, DurationS: 10}}, nil
		}
		return PhaseResult{Output: "defined", Atomicity: s.defineAtomic, ProposedChildren: s.children}, nil
	}
	return PhaseResult{Output: string(phase)}, nil
}

func statusOf(tree *seed.Tree, id string) seed.ACStatus {
	n, _ := tree.Get(id)
	return n.Status
}

func TestRunNode_AtomicCompletesAllFourPhases(t *testing.T) {
	tree := seed.NewTree()
	tree.AddRoot("ac-1", "do the thing")
	phases := &scriptedPhaseExecutor{defineAtomic: AtomicityInput{Complexity: 0.1, ToolCount: 1, DurationS: 10}}

	ex := New("seed-1", tree, phases, nil, nil, defaultAtomicity(), eventstore.NewMemoryStore())
	err := ex.RunNode(context.Background(), "ac-1", "goal summary", nil)
	require.NoError(t, err)
	assert.Equal(t, seed.ACDone, statusOf(tree, "ac-1"))
}

func TestRunNode_NonAtomicDecomposesAndRunsChildrenInParallel(t *testing.T) {
	tree := seed.NewTree()
	tree.AddRoot("ac-1", "do the big thing")
	phases := &scriptedPhaseExecutor{
		defineAtomic: AtomicityInput{Complexity: 0.9, ToolCount: 5, DurationS: 400},
		children:     []string{"sub a", "sub b", "sub c"},
	}

	ex := New("seed-1", tree, phases, nil, nil, defaultAtomicity(), eventstore.NewMemoryStore())
	err := ex.RunNode(context.Background(), "ac-1", "goal summary", nil)
	require.NoError(t, err)

	assert.Equal(t, seed.ACDone, statusOf(tree, "ac-1"))
	children := tree.Children("ac-1")
	require.Len(t, children, 3)
	for _, c := range children {
		assert.Equal(t, seed.ACDone, c.Status)
		assert.Equal(t, 1, c.Depth)
	}
}

func TestRunNode_RetriesThenSucceeds(t *testing.T) {
	tree := seed.NewTree()
	tree.AddRoot("ac-1", "flaky thing")
	phases := &scriptedPhaseExecutor{
		failUntil:    map[Phase]int{Discover: 2},
		defineAtomic: AtomicityInput{Complexity: 0.1, ToolCount: 0, DurationS: 1},
	}

	ex := New("seed-1", tree, phases, nil, nil, defaultAtomicity(), eventstore.NewMemoryStore())
	err := ex.RunNode(context.Background(), "ac-1", "summary", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, phases.attempts[Discover])
}

func TestRunNode_ExhaustsRetriesReturnsExecutionError(t *testing.T) {
	tree := seed.NewTree()
	tree.AddRoot("ac-1", "always fails")
	phases := &scriptedPhaseExecutor{failUntil: map[Phase]int{Discover: 99}}

	ex := New("seed-1", tree, phases, nil, nil, defaultAtomicity(), eventstore.NewMemoryStore())
	err := ex.RunNode(context.Background(), "ac-1", "summary", nil)
	require.Error(t, err)
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, Discover, execErr.Phase)
	assert.Equal(t, seed.ACFailed, statusOf(tree, "ac-1"))
}

func TestDecompose_RejectsOutOfRangeChildCount(t *testing.T) {
	tree := seed.NewTree()
	tree.AddRoot("ac-1", "thing")
	phases := &scriptedPhaseExecutor{
		defineAtomic: AtomicityInput{Complexity: 0.9, ToolCount: 5, DurationS: 400},
		children:     []string{"only one"},
	}

	ex := New("seed-1", tree, phases, nil, nil, defaultAtomicity(), eventstore.NewMemoryStore())
	err := ex.RunNode(context.Background(), "ac-1", "summary", nil)
	require.Error(t, err)
}

func TestClassify_AtomicityGate(t *testing.T) {
	th := defaultAtomicity()
	assert.Equal(t, seed.Atomic, Classify(AtomicityInput{Complexity: 0.5, ToolCount: 2, DurationS: 100}, th))
	assert.Equal(t, seed.NonAtomic, Classify(AtomicityInput{Complexity: 0.7, ToolCount: 2, DurationS: 100}, th), "complexity at threshold is not atomic (strict <)")
	assert.Equal(t, seed.NonAtomic, Classify(AtomicityInput{Complexity: 0.5, ToolCount: 4, DurationS: 100}, th))
	assert.Equal(t, seed.NonAtomic, Classify(AtomicityInput{Complexity: 0.5, ToolCount: 2, DurationS: 300}, th))
}

func TestFilteredContext_TrimsToLastThreeHistoryEntries(t *testing.T) {
	fc := NewFilteredContext("summary", "ac-1", []string{"a", "b", "c", "d", "e"}, nil)
	assert.Equal(t, []string{"c", "d", "e"}, fc.RecentHistory)
}

type failingValidator struct{ calls int }

func (f *failingValidator) Validate(result PhaseResult) error {
	f.calls++
	return errors.New("incomplete")
}

func TestRunNode_ValidationFailureDoesNotAbortSibling(t *testing.T) {
	tree := seed.NewTree()
	tree.AddRoot("ac-1", "parent")
	phases := &scriptedPhaseExecutor{
		defineAtomic: AtomicityInput{Complexity: 0.9, ToolCount: 5, DurationS: 400},
		children:     []string{"child a", "child b"},
	}
	v := &failingValidator{}
	ex := New("seed-1", tree, phases, v, nil, defaultAtomicity(), eventstore.NewMemoryStore())
	err := ex.RunNode(context.Background(), "ac-1", "summary", nil)
	require.NoError(t, err, "validation failures are logged, not fatal")
	for _, c := range tree.Children("ac-1") {
		assert.Equal(t, seed.ACDone, c.Status)
	}
}
