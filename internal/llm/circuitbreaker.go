package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// CircuitBreakerClient wraps a Client with github.com/sony/gobreaker so a
// model collaborator that starts failing (timeouts, provider outage) trips
// open rather than letting every generation in a run block on it in turn.
// Modeled on the pack's resilience adapter pattern of decorating an existing
// interface rather than threading breaker state through call sites.
type CircuitBreakerClient struct {
	inner   Client
	breaker *gobreaker.CircuitBreaker
}

// NewCircuitBreakerClient wraps inner with a breaker named name. It opens
// after 5 consecutive failures and probes again after 30s in half-open.
func NewCircuitBreakerClient(name string, inner Client) *CircuitBreakerClient {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &CircuitBreakerClient{inner: inner, breaker: gobreaker.NewCircuitBreaker(settings)}
}

func (c *CircuitBreakerClient) Complete(ctx context.Context, prompt string) (string, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.inner.Complete(ctx, prompt)
	})
	if err != nil {
		return "", fmt.Errorf("llm: circuit breaker: %w", err)
	}
	return out.(string), nil
}

func (c *CircuitBreakerClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.inner.CompleteWithSystem(ctx, systemPrompt, userPrompt)
	})
	if err != nil {
		return "", fmt.Errorf("llm: circuit breaker: %w", err)
	}
	return out.(string), nil
}

// State reports the breaker's current state for diagnostics/logging.
func (c *CircuitBreakerClient) State() gobreaker.State {
	return c.breaker.State()
}
