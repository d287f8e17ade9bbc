// Package compressor implements context compression (spec §4.10):
// LLM-based summarization with a deterministic truncation fallback,
// triggered by context age, token count, or AC-tree depth, grounded on the
// teacher's internal/context.Compressor (LLM-summary-with-fallback,
// binary-search token trimming) simplified to this domain's flat,
// line-tagged context blocks instead of Mangle facts.
package compressor

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"symbiogen/internal/eventstore"
	"symbiogen/internal/llm"
	"symbiogen/internal/logging"
)

// TriggerInputs is everything one compression-trigger check needs.
type TriggerInputs struct {
	Age        time.Duration
	TokenCount int
	Depth      int
}

// Trigger thresholds (spec §4.10).
const (
	MaxAge      = 6 * time.Hour
	MaxTokens   = 100_000
	TriggerDepth = 3
)

// ShouldCompress reports whether any of the three triggers holds.
func ShouldCompress(in TriggerInputs) bool {
	return in.Age > MaxAge || in.TokenCount > MaxTokens || in.Depth >= TriggerDepth
}

// topFacts bounds how many "FACT:" lines the deterministic fallback keeps.
const topFacts = 5

// recentHistoryLines bounds how many "HISTORY:" lines the fallback keeps.
const recentHistoryLines = 3

// CountTokens approximates a token count the same crude way the teacher's
// TokenCounter does: roughly 4 characters per token, rune-safe.
func CountTokens(s string) int {
	n := utf8.RuneCountInString(s)
	if n == 0 {
		return 0
	}
	tokens := n / 4
	if tokens == 0 {
		return 1
	}
	return tokens
}

// Compressor implements the executor.Compressor interface: it takes a
// flat, line-tagged context summary (lines prefixed SEED:/AC:/HISTORY:/FACT:)
// and returns a compressed one, preferring LLM summarization and falling
// back to deterministic truncation on failure.
type Compressor struct {
	client llm.Client
	events eventstore.Store
	seedID string
}

// New creates a Compressor. client may be nil, in which case every call
// uses the deterministic fallback.
func New(client llm.Client, events eventstore.Store, seedID string) *Compressor {
	return &Compressor{client: client, events: events, seedID: seedID}
}

// Compress summarizes summary, preserving at minimum seed_summary,
// current_ac, the last three history entries, and key facts (spec §4.10).
func (c *Compressor) Compress(ctx context.Context, summary string) (string, error) {
	before := CountTokens(summary)

	var compressed string
	if c.client != nil {
		result, err := c.client.CompleteWithSystem(ctx, compressionSystemPrompt, summary)
		if err != nil {
			logging.Get(logging.CategoryCompressor).Warn("LLM compression failed, using deterministic fallback: %v", err)
			compressed = deterministicFallback(summary)
		} else {
			compressed = strings.TrimSpace(result)
		}
	} else {
		compressed = deterministicFallback(summary)
	}

	after := CountTokens(compressed)
	logging.Get(logging.CategoryCompressor).Info("seed=%s compressed %d -> %d tokens", c.seedID, before, after)

	if c.events != nil {
		_ = c.events.Append(ctx, eventstore.NewEvent(eventstore.AggregateExecution, c.seedID, "context.compressed",
			map[string]interface{}{"tokens_before": before, "tokens_after": after}))
	}

	return compressed, nil
}

const compressionSystemPrompt = "You compress an evolutionary-engine's working context. " +
	"Preserve the SEED:, AC:, HISTORY:, and FACT: tagged lines' meaning; " +
	"collapse everything else. Keep at most the last three HISTORY: entries and the five highest-signal FACT: entries. " +
	"Respond with the compressed context only, using the same line tags."

// deterministicFallback keeps only Seed + current AC + top facts + the
// most recent history entries (spec §4.10: "fall back to deterministic
// truncation that keeps only Seed + current AC + top 5 facts").
func deterministicFallback(summary string) string {
	var seed, ac string
	var history, facts []string

	for _, line := range strings.Split(summary, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "SEED:"):
			seed = trimmed
		case strings.HasPrefix(trimmed, "AC:"):
			ac = trimmed
		case strings.HasPrefix(trimmed, "HISTORY:"):
			history = append(history, trimmed)
		case strings.HasPrefix(trimmed, "FACT:"):
			facts = append(facts, trimmed)
		}
	}

	if len(history) > recentHistoryLines {
		history = history[len(history)-recentHistoryLines:]
	}
	if len(facts) > topFacts {
		facts = facts[:topFacts]
	}

	var out []string
	if seed != "" {
		out = append(out, seed)
	}
	if ac != "" {
		out = append(out, ac)
	}
	out = append(out, history...)
	out = append(out, facts...)

	if len(out) == 0 {
		return fmt.Sprintf("(compressed: no structured context preserved from %d-byte input)", len(summary))
	}
	return strings.Join(out, "\n")
}
