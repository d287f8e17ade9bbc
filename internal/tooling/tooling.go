// Package tooling defines the narrow external collaborator the executor
// calls to run concrete tool commands during Discover/Design (spec §4.5's
// "tool dependency count" input) and during mechanical evaluation (§4.7
// stage 1).
package tooling

import "context"

// Invocation describes a single tool call request.
type Invocation struct {
	Tool string
	Args map[string]any
}

// Result wraps a tool invocation's outcome with timing metadata.
type Result struct {
	Tool       string
	Output     string
	Err        error
	DurationMs int64
}

func (r Result) IsSuccess() bool { return r.Err == nil }

// Runner executes a tool invocation. Implementations decide what tools
// actually exist; the executor only depends on this interface.
type Runner interface {
	Run(ctx context.Context, inv Invocation) Result
	Available(tool string) bool
}
