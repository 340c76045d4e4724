package llm

import (
	"context"

	"golang.org/x/time/rate"

	"parley/internal/domain"
)

// Compile-time interface checks.
var (
	_ domain.LLMProvider          = (*RateLimitedProvider)(nil)
	_ domain.StreamingLLMProvider = (*RateLimitedProvider)(nil)
)

// RateLimitedProvider paces calls to the wrapped provider with a client-side
// token bucket, keeping a chatty session under vendor request budgets before
// the server ever answers 429.
type RateLimitedProvider struct {
	inner   domain.LLMProvider
	limiter *rate.Limiter
}

// NewRateLimitedProvider wraps inner with an rps-requests-per-second limiter
// (burst 1). Callers should pass rps > 0; a non-positive rps returns inner
// unwrapped.
func NewRateLimitedProvider(inner domain.LLMProvider, rps float64) domain.LLMProvider {
	if rps <= 0 {
		return inner
	}
	return &RateLimitedProvider{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Chat implements domain.LLMProvider.
func (p *RateLimitedProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return p.inner.Chat(ctx, req)
}

// ChatStream implements domain.StreamingLLMProvider.
func (p *RateLimitedProvider) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	sp, ok := p.inner.(domain.StreamingLLMProvider)
	if !ok {
		return nil, domain.NewDomainError("RateLimitedProvider.ChatStream", domain.ErrProviderNotFound,
			"inner provider does not support streaming")
	}
	return sp.ChatStream(ctx, req)
}

// Name implements domain.LLMProvider.
func (p *RateLimitedProvider) Name() string { return p.inner.Name() }
