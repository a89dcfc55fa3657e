// Package providers implements embedding providers behind a single
// interface: an OpenAI-compatible HTTP client, the DashScope variant,
// and a deterministic local fallback. Decorators add caching, rate
// limiting, and retry around any provider.
package providers

import "context"

// EmbeddingProvider converts text into fixed-dimensionality vectors.
// Embed and EmbedBatch must return vectors of Dimensions() width for
// the provider's whole lifetime.
type EmbeddingProvider interface {
	Name() string
	Model() string
	Dimensions() int
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one vector per input, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}
