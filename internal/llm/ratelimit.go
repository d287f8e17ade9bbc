package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedClient wraps a Client with golang.org/x/time/rate so a lineage
// running many generations in a tight loop cannot exceed the model
// collaborator's request budget. Modeled on the pack's ratelimit.RateLimiter
// (token bucket over a configured rate and burst), narrowed to the single
// Client boundary this package defines.
type RateLimitedClient struct {
	inner   Client
	limiter *rate.Limiter
}

// NewRateLimitedClient wraps inner, allowing requestsPerSecond steady-state
// throughput with up to burst requests in a single instant.
func NewRateLimitedClient(inner Client, requestsPerSecond float64, burst int) *RateLimitedClient {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedClient{inner: inner, limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst)}
}

func (r *RateLimitedClient) Complete(ctx context.Context, prompt string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.inner.Complete(ctx, prompt)
}

func (r *RateLimitedClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.inner.CompleteWithSystem(ctx, systemPrompt, userPrompt)
}
