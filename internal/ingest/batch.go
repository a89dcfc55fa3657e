package ingest

import (
	"context"
	"os"

	"golang.org/x/sync/errgroup"
)

// DefaultParseWorkers bounds the parse fan-out. Parsing is pure CPU
// work with no shared state, so per-conversation parallelism is safe.
const DefaultParseWorkers = 8

// ParseAllParallel linearizes a batch across a bounded worker pool.
// Output order matches input order; dropped conversations leave gaps
// that are compacted before returning. Respects ctx cancellation
// between conversations.
func ParseAllParallel(ctx context.Context, raws []RawConversation, workers int) []ParsedConversation {
	if workers <= 0 {
		workers = DefaultParseWorkers
	}
	if len(raws) < 2 || workers == 1 {
		return ParseAll(raws)
	}

	results := make([]*ParsedConversation, len(raws))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range raws {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results[i] = Parse(raws[i])
			return nil
		})
	}
	g.Wait()

	out := make([]ParsedConversation, 0, len(raws))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

// LoadExportFile reads and parses an export document from disk.
func LoadExportFile(ctx context.Context, path string, workers int) ([]ParsedConversation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raws, err := UnmarshalExport(data)
	if err != nil {
		return nil, err
	}
	return ParseAllParallel(ctx, raws, workers), nil
}
