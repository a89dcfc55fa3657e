package providers

import (
	"context"

	"golang.org/x/sync/errgroup"
)

const (
	// EmbedChunkSize is the max inputs per upstream request.
	EmbedChunkSize = 100
	// embedConcurrency bounds in-flight chunk requests.
	embedConcurrency = 4
)

// EmbedAll embeds an arbitrary number of texts through a provider,
// splitting them into chunks of EmbedChunkSize and fanning the chunks
// out with bounded concurrency. Output order matches input order. On
// error the returned slice holds the chunks that completed; entries for
// failed chunks are nil.
func EmbedAll(ctx context.Context, provider EmbeddingProvider, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for start := 0; start < len(texts); start += EmbedChunkSize {
		if err := ctx.Err(); err != nil {
			break
		}
		start := start
		end := min(start+EmbedChunkSize, len(texts))

		g.Go(func() error {
			vecs, err := provider.EmbedBatch(ctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(out[start:end], vecs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return out, err
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}
	return out, nil
}
