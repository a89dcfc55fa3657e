package providers

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryConfig controls exponential backoff for failed provider calls.
type RetryConfig struct {
	MaxRetries int           // max retry attempts (default 3, 0 = no retry)
	BaseDelay  time.Duration // initial backoff delay (default 2s)
	MaxDelay   time.Duration // maximum backoff delay (default 30s)
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// executeWithRetry runs fn, retrying on error with exponential backoff +
// jitter. Stops early when the context is canceled.
func executeWithRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var err error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		if attempt < cfg.MaxRetries {
			delay := backoffWithJitter(cfg.BaseDelay, cfg.MaxDelay, attempt)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return err
}

// backoffWithJitter computes delay = min(base * 2^attempt, max) + jitter(±25%).
func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	delay := base << uint(attempt) // base * 2^attempt
	if delay > max {
		delay = max
	}

	// Jitter: ±25% of delay
	quarter := delay / 4
	if quarter > 0 {
		jitter := time.Duration(rand.Int64N(int64(quarter*2))) - quarter
		delay += jitter
	}

	return delay
}

// RetryingProvider wraps a provider with backoff retry on failures.
type RetryingProvider struct {
	inner EmbeddingProvider
	cfg   RetryConfig
}

func WithRetry(inner EmbeddingProvider, cfg RetryConfig) *RetryingProvider {
	return &RetryingProvider{inner: inner, cfg: cfg}
}

func (p *RetryingProvider) Name() string    { return p.inner.Name() }
func (p *RetryingProvider) Model() string   { return p.inner.Model() }
func (p *RetryingProvider) Dimensions() int { return p.inner.Dimensions() }

func (p *RetryingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := executeWithRetry(ctx, p.cfg, func() error {
		var err error
		vec, err = p.inner.Embed(ctx, text)
		return err
	})
	return vec, err
}

func (p *RetryingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var vecs [][]float32
	err := executeWithRetry(ctx, p.cfg, func() error {
		var err error
		vecs, err = p.inner.EmbedBatch(ctx, texts)
		return err
	})
	return vecs, err
}
