package compressor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"symbiogen/internal/eventstore"
)

func TestShouldCompress_FiresOnAge(t *testing.T) {
	assert.True(t, ShouldCompress(TriggerInputs{Age: 7 * time.Hour}))
	assert.False(t, ShouldCompress(TriggerInputs{Age: 5 * time.Hour}))
}

func TestShouldCompress_FiresOnTokenCount(t *testing.T) {
	assert.True(t, ShouldCompress(TriggerInputs{TokenCount: 100_001}))
	assert.False(t, ShouldCompress(TriggerInputs{TokenCount: 99_999}))
}

func TestShouldCompress_FiresOnDepth(t *testing.T) {
	assert.True(t, ShouldCompress(TriggerInputs{Depth: 3}))
	assert.False(t, ShouldCompress(TriggerInputs{Depth: 2}))
}

type fakeClient struct {
	response string
	err      error
}

func (c fakeClient) Complete(ctx context.Context, prompt string) (string, error) { return c.response, c.err }

func (c fakeClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.response, c.err
}

const sampleContext = `SEED: print hello to the console
AC: ac-1 implement greeting
HISTORY: attempt 1 failed lint
HISTORY: attempt 2 passed lint
HISTORY: attempt 3 passed tests
HISTORY: attempt 4 passed build
FACT: uses fmt.Println
FACT: target is a CLI
FACT: no network access
FACT: Go 1.22
FACT: no external deps
FACT: coverage is 0.85`

func TestCompress_UsesLLMWhenAvailable(t *testing.T) {
	events := eventstore.NewMemoryStore()
	c := New(fakeClient{response: "SEED: print hello\nAC: ac-1"}, events, "seed-1")

	out, err := c.Compress(context.Background(), sampleContext)
	require.NoError(t, err)
	assert.Equal(t, "SEED: print hello\nAC: ac-1", out)
}

func TestCompress_FallsBackOnLLMError(t *testing.T) {
	events := eventstore.NewMemoryStore()
	c := New(fakeClient{err: errors.New("provider timeout")}, events, "seed-1")

	out, err := c.Compress(context.Background(), sampleContext)
	require.NoError(t, err)
	assert.Contains(t, out, "SEED:")
	assert.Contains(t, out, "AC:")
}

func TestCompress_DeterministicFallbackKeepsSeedACAndBoundedFactsAndHistory(t *testing.T) {
	c := New(nil, nil, "seed-1")

	out, err := c.Compress(context.Background(), sampleContext)
	require.NoError(t, err)

	assert.Contains(t, out, "SEED: print hello to the console")
	assert.Contains(t, out, "AC: ac-1 implement greeting")

	historyCount := 0
	factCount := 0
	for _, line := range splitLines(out) {
		if hasPrefix(line, "HISTORY:") {
			historyCount++
		}
		if hasPrefix(line, "FACT:") {
			factCount++
		}
	}
	assert.Equal(t, recentHistoryLines, historyCount)
	assert.Equal(t, topFacts, factCount)
	assert.NotContains(t, out, "attempt 1 failed lint", "oldest history entry should be dropped, keeping only the last three")
}

func TestCompress_EmitsBeforeAfterTokenEvent(t *testing.T) {
	ctx := context.Background()
	events := eventstore.NewMemoryStore()
	c := New(nil, events, "seed-1")

	_, err := c.Compress(ctx, sampleContext)
	require.NoError(t, err)

	evs, err := events.Replay(ctx, "seed-1")
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, "context.compressed", evs[0].EventType)
	assert.Contains(t, evs[0].Payload, "tokens_before")
	assert.Contains(t, evs[0].Payload, "tokens_after")
}

func TestCountTokens_ApproximatesFourCharsPerToken(t *testing.T) {
	assert.Equal(t, 0, CountTokens(""))
	assert.Equal(t, 1, CountTokens("abcd"))
	assert.Equal(t, 2, CountTokens("abcdefgh"))
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i, r := range s {
		if r == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
