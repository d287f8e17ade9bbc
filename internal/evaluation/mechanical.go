// Package evaluation implements the three-stage evaluation pipeline (spec
// §4.7): mechanical checks at cost 0, semantic scoring at Standard tier, and
// consensus voting at Frontier tier, wrapped in a cacheable around-advice
// aspect.
package evaluation

import (
	"context"
	"fmt"

	"symbiogen/internal/tooling"
)

// MechanicalCheck is one external tool invocation Stage 1 runs (lint,
// build, test, static-analysis, coverage).
type MechanicalCheck struct {
	Name       string
	Invocation tooling.Invocation
	CoverageOf bool // true for the coverage check, whose pass is threshold-gated
}

// MechanicalResult is Stage 1's output: a boolean pass per check, plus
// diagnostics for any tool that was unavailable.
type MechanicalResult struct {
	Passes      map[string]bool
	Diagnostics []string
}

// Pass reports whether every check passed.
func (r MechanicalResult) Pass() bool {
	for _, ok := range r.Passes {
		if !ok {
			return false
		}
	}
	return true
}

// RunMechanical executes every check via runner. A missing tool yields a
// diagnostic with its install command instead of silently passing (spec
// §4.7 Stage 1).
func RunMechanical(ctx context.Context, checks []MechanicalCheck, runner tooling.Runner, coverageMin float64) MechanicalResult {
	result := MechanicalResult{Passes: make(map[string]bool, len(checks))}
	for _, check := range checks {
		if !runner.Available(check.Invocation.Tool) {
			result.Passes[check.Name] = false
			result.Diagnostics = append(result.Diagnostics, fmt.Sprintf("tool %q not found: install it before re-running %s", check.Invocation.Tool, check.Name))
			continue
		}
		res := runner.Run(ctx, check.Invocation)
		if check.CoverageOf {
			cov, ok := coverageValue(res.Output)
			result.Passes[check.Name] = ok && cov >= coverageMin && res.IsSuccess()
			if ok && cov < coverageMin {
				result.Diagnostics = append(result.Diagnostics, fmt.Sprintf("%s: coverage %.2f below minimum %.2f", check.Name, cov, coverageMin))
			}
			continue
		}
		result.Passes[check.Name] = res.IsSuccess()
		if !res.IsSuccess() && res.Err != nil {
			result.Diagnostics = append(result.Diagnostics, fmt.Sprintf("%s: %v", check.Name, res.Err))
		}
	}
	return result
}

// coverageValue is a narrow stand-in for parsing a tool's coverage output;
// concrete runners are expected to emit a bare float in Output for the
// coverage check.
func coverageValue(output string) (float64, bool) {
	var v float64
	if _, err := fmt.Sscanf(output, "%f", &v); err != nil {
		return 0, false
	}
	return v, true
}
