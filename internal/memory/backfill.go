package memory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/memclaw/internal/providers"
	"github.com/nextlevelbuilder/memclaw/internal/store"
)

// backfillBatchSize is how many vector-less entries each pass loads.
const backfillBatchSize = 50

// Backfill embeds entries that were stored without a vector (provider
// outage at create time). Each pass loads a batch of ids and embeds
// them through the provider's chunked batch path; entries whose chunk
// failed keep their null embedding and are picked up on the next run,
// so a partial pass is resumable, not an error state to undo.
// Returns the number of entries embedded.
func (s *Service) Backfill(ctx context.Context) (int, error) {
	if s.provider == nil {
		return 0, fmt.Errorf("memory: no embedding provider configured")
	}

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		ids, err := s.store.MissingEmbeddings(ctx, backfillBatchSize)
		if err != nil {
			return total, fmt.Errorf("list missing embeddings: %w", err)
		}
		if len(ids) == 0 {
			break
		}

		entries := make([]*store.MemoryEntry, 0, len(ids))
		texts := make([]string, 0, len(ids))
		for _, id := range ids {
			entry, err := s.store.Get(ctx, id)
			if err != nil || entry == nil {
				continue
			}
			entries = append(entries, entry)
			texts = append(texts, embedText(entry))
		}

		vecs, embErr := providers.EmbedAll(ctx, s.provider, texts)
		for i, entry := range entries {
			if i >= len(vecs) || len(vecs[i]) == 0 {
				continue
			}
			entry.Embedding = vecs[i]
			entry.Degraded = false
			entry.UpdatedAt = time.Now().UTC()
			if err := s.store.Upsert(ctx, entry); err != nil {
				return total, fmt.Errorf("store entry %s: %w", entry.ID, err)
			}
			total++
		}
		// Stop on provider error so a dead provider does not spin.
		if embErr != nil {
			return total, fmt.Errorf("embed batch: %w", embErr)
		}

		if len(ids) < backfillBatchSize {
			break
		}
	}

	if total > 0 {
		slog.Info("memory.backfill_complete", "embedded", total)
	}
	return total, nil
}

// BackfillLoop runs Backfill every interval until the context is
// cancelled. Provider errors are logged and retried on the next tick.
func (s *Service) BackfillLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if n, err := s.Backfill(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("memory.backfill_failed", "embedded", n, "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
