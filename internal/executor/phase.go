// Package executor implements the Double-Diamond Executor (spec §4.5): each
// acceptance criterion traverses Discover -> Define -> Design -> Deliver,
// decomposing into 2-5 children at Define when judged non-atomic, with
// subagents isolated behind a FilteredContext.
package executor

import (
	"context"
	"fmt"
	"time"
)

// Phase is a stage of the double-diamond.
type Phase string

const (
	Discover Phase = "discover"
	Define   Phase = "define"
	Design   Phase = "design"
	Deliver  Phase = "deliver"
)

// order is the fixed phase traversal sequence.
var order = []Phase{Discover, Define, Design, Deliver}

// Next returns the phase following p, or "" if p is the last phase.
func Next(p Phase) Phase {
	for i, ph := range order {
		if ph == p && i+1 < len(order) {
			return order[i+1]
		}
	}
	return ""
}

// ExecutionError is raised when a phase exhausts its retry budget (spec
// §4.5, §4.9).
type ExecutionError struct {
	ACID  string
	Phase Phase
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("executor: AC %s exhausted retries at phase %s: %v", e.ACID, e.Phase, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// backoffBase and maxAttempts implement the exponential backoff (base 2s,
// up to 3 attempts) required at every phase boundary (spec §4.5).
const (
	backoffBase = 2 * time.Second
	maxAttempts = 3
)

// backoffDelay returns the delay before attempt n (1-indexed): 2s, 4s, 8s.
func backoffDelay(attempt int) time.Duration {
	d := backoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

// sleepFn is overridable in tests to avoid real waiting.
var sleepFn = time.Sleep

// withRetry runs fn up to maxAttempts times, sleeping with exponential
// backoff between attempts, returning ExecutionError on exhaustion.
func withRetry(ctx context.Context, acID string, phase Phase, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < maxAttempts {
			sleepFn(backoffDelay(attempt))
		}
	}
	return &ExecutionError{ACID: acID, Phase: phase, Err: lastErr}
}
