package evaluation

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Voter is one of the three (or two, degraded) simple-consensus
// participants (spec §4.7 Stage 3, simple mode).
type Voter interface {
	Vote(ctx context.Context) (approve bool, err error)
}

// SimpleResult is the outcome of a simple consensus vote.
type SimpleResult struct {
	Approved    bool
	VotesFor    int
	VotesAgainst int
	VotersLost  int
	Escalated   bool
}

// ErrConsensusEscalated is returned when two or more voters are lost, or
// fewer than two voters are available at all, and the pipeline must abort
// to human review (spec §4.7).
var ErrConsensusEscalated = errors.New("evaluation: consensus lost >= 2 voters, escalating to human review")

// RunSimpleVote runs every voter concurrently under timeout, then applies
// the 2/3-majority / 2-voter-unanimity / escalate-on-two-lost rule.
func RunSimpleVote(ctx context.Context, voters []Voter, timeout time.Duration) (SimpleResult, error) {
	type outcome struct {
		approve bool
		lost    bool
	}
	outcomes := make([]outcome, len(voters))

	var g errgroup.Group
	var mu sync.Mutex
	for i, v := range voters {
		i, v := i, v
		g.Go(func() error {
			vctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			approve, err := v.Vote(vctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				outcomes[i] = outcome{lost: true}
				return nil
			}
			outcomes[i] = outcome{approve: approve}
			return nil
		})
	}
	_ = g.Wait()

	lost := 0
	votesFor := 0
	votesAgainst := 0
	for _, o := range outcomes {
		if o.lost {
			lost++
			continue
		}
		if o.approve {
			votesFor++
		} else {
			votesAgainst++
		}
	}

	live := votesFor + votesAgainst
	if lost >= 2 || live < 2 {
		return SimpleResult{VotersLost: lost, Escalated: true}, ErrConsensusEscalated
	}

	var approved bool
	switch live {
	case 3:
		approved = votesFor >= 2 // 2/3 majority
	case 2:
		// degraded: requires unanimity
		approved = votesFor == 2
	default:
		approved = votesFor > votesAgainst
	}

	return SimpleResult{Approved: approved, VotesFor: votesFor, VotesAgainst: votesAgainst, VotersLost: lost}, nil
}

// Probe is one of the DEVIL'S ADVOCATE's four ontological probes (spec
// §4.7).
type Probe string

const (
	Essence            Probe = "essence"
	RootCause          Probe = "root_cause"
	Prerequisites      Probe = "prerequisites"
	HiddenAssumptions  Probe = "hidden_assumptions"
)

// AllProbes is the fixed probe set the DEVIL'S ADVOCATE always runs.
var AllProbes = []Probe{Essence, RootCause, Prerequisites, HiddenAssumptions}

// Advocate argues in favor of the proposal under review.
type Advocate interface {
	Argue(ctx context.Context) (string, error)
}

// DevilsAdvocateResult is the challenger's verdict after running every
// probe.
type DevilsAdvocateResult struct {
	ProbeFindings  map[Probe]string
	IsRootSolution bool
}

// DevilsAdvocate challenges the proposal across AllProbes.
type DevilsAdvocate interface {
	Probe(ctx context.Context, probes []Probe) (DevilsAdvocateResult, error)
}

// Verdict is the judge's synthesis outcome.
type Verdict string

const (
	Approved    Verdict = "approved"
	Rejected    Verdict = "rejected"
	Conditional Verdict = "conditional"
)

// Judge synthesizes the advocate's argument and the devil's advocate's
// challenge into a final verdict.
type Judge interface {
	Synthesize(ctx context.Context, argument string, challenge DevilsAdvocateResult) (Verdict, error)
}

// DeliberativeResult is the two-round deliberative consensus outcome.
type DeliberativeResult struct {
	Argument  string
	Challenge DevilsAdvocateResult
	Verdict   Verdict
}

// RunDeliberative runs round 1 (advocate and devil's advocate concurrently)
// then round 2 (judge synthesis), per spec §4.7 Stage 3 deliberative mode.
func RunDeliberative(ctx context.Context, advocate Advocate, devil DevilsAdvocate, judge Judge) (DeliberativeResult, error) {
	var argument string
	var challenge DevilsAdvocateResult

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a, err := advocate.Argue(gctx)
		argument = a
		return err
	})
	g.Go(func() error {
		c, err := devil.Probe(gctx, AllProbes)
		challenge = c
		return err
	})
	if err := g.Wait(); err != nil {
		return DeliberativeResult{}, err
	}

	verdict, err := judge.Synthesize(ctx, argument, challenge)
	if err != nil {
		return DeliberativeResult{}, err
	}

	return DeliberativeResult{Argument: argument, Challenge: challenge, Verdict: verdict}, nil
}
