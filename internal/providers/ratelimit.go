package providers

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"
)

// RateLimitedProvider throttles calls to the underlying provider with a
// token bucket. One batch request consumes one token regardless of its
// input count.
type RateLimitedProvider struct {
	inner   EmbeddingProvider
	limiter *rate.Limiter
}

// WithRateLimit wraps a provider. rpm is requests per minute, burst the
// max burst allowed. If rpm <= 0 the limiter is effectively disabled.
func WithRateLimit(inner EmbeddingProvider, rpm, burst int) *RateLimitedProvider {
	if burst <= 0 {
		burst = 5
	}
	r := rate.Limit(rate.Inf)
	if rpm > 0 {
		r = rate.Limit(float64(rpm) / 60.0)
	}
	return &RateLimitedProvider{
		inner:   inner,
		limiter: rate.NewLimiter(r, burst),
	}
}

func (p *RateLimitedProvider) Name() string    { return p.inner.Name() }
func (p *RateLimitedProvider) Model() string   { return p.inner.Model() }
func (p *RateLimitedProvider) Dimensions() int { return p.inner.Dimensions() }

func (p *RateLimitedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		slog.Warn("provider.rate_limited", "provider", p.inner.Name(), "error", err)
		return nil, err
	}
	return p.inner.Embed(ctx, text)
}

func (p *RateLimitedProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		slog.Warn("provider.rate_limited", "provider", p.inner.Name(), "error", err)
		return nil, err
	}
	return p.inner.EmbedBatch(ctx, texts)
}
