package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nextlevelbuilder/memclaw/internal/store"
)

// mergedSummaryLimit caps the synthesized summary of a merged memory.
const mergedSummaryLimit = 200

// Summarizer condenses the content of merged memories into a short
// summary. Implementations may call an LLM; the default concatenates.
type Summarizer interface {
	Summarize(ctx context.Context, contents []string) (string, error)
}

// concatSummarizer joins contents and truncates. Never fails, so merge
// always has a summary to store.
type concatSummarizer struct{}

func (concatSummarizer) Summarize(_ context.Context, contents []string) (string, error) {
	joined := strings.Join(contents, "; ")
	if len(joined) > mergedSummaryLimit {
		// Back up to a rune boundary so the cut never splits UTF-8.
		cut := mergedSummaryLimit
		for cut > 0 && !utf8.RuneStart(joined[cut]) {
			cut--
		}
		joined = joined[:cut]
	}
	return joined, nil
}

// mergeOrInsert looks for existing memories similar to entry at or
// above the merge threshold. With no candidates the entry is stored
// unmodified. Otherwise the entry absorbs every candidate: contents
// are combined, tags unioned, the highest importance wins, and the
// absorbed entries are deleted. Merging is idempotent — re-ingesting
// the same fact folds into the survivor instead of accumulating.
func (s *Service) mergeOrInsert(ctx context.Context, entry *store.MemoryEntry) (*store.MemoryEntry, error) {
	candidates, err := s.store.Search(ctx, entry.Embedding, store.SearchOptions{
		SimilarityThreshold: s.cfg.MergeThreshold,
		Limit:               10,
		UserID:              entry.UserID,
	})
	if err != nil {
		return nil, fmt.Errorf("merge candidate search: %w", err)
	}

	if len(candidates) == 0 {
		if err := s.store.Upsert(ctx, entry); err != nil {
			return nil, fmt.Errorf("store memory: %w", err)
		}
		return entry, nil
	}

	contents := []string{entry.Content}
	tagSet := map[string]bool{}
	for _, t := range entry.Tags {
		tagSet[t] = true
	}
	mergedFrom := make([]string, 0, len(candidates))
	importance := entry.Importance
	pinned := entry.Pinned

	for _, c := range candidates {
		if c.Entry.Content != entry.Content {
			contents = append(contents, c.Entry.Content)
		}
		for _, t := range c.Entry.Tags {
			tagSet[t] = true
		}
		if c.Entry.Importance > importance {
			importance = c.Entry.Importance
		}
		pinned = pinned || c.Entry.Pinned
		mergedFrom = append(mergedFrom, c.Entry.ID)
	}

	entry.Content = strings.Join(contents, "\n")
	entry.Tags = sortedKeys(tagSet)
	entry.Importance = importance
	entry.Pinned = pinned
	if entry.Metadata == nil {
		entry.Metadata = map[string]any{}
	}
	entry.Metadata["merged_from"] = mergedFrom

	summary, err := s.summarize.Summarize(ctx, contents)
	if err != nil {
		slog.Warn("memory.summarize_failed", "error", err)
		summary, _ = concatSummarizer{}.Summarize(ctx, contents)
	}
	entry.Summary = summary

	// Re-embed the combined content; keep the original vector when the
	// provider is unavailable so the survivor stays searchable.
	if vec := s.tryEmbed(ctx, embedText(entry)); vec != nil {
		entry.Embedding = vec
	}
	entry.UpdatedAt = time.Now().UTC()

	if err := s.store.Upsert(ctx, entry); err != nil {
		return nil, fmt.Errorf("store merged memory: %w", err)
	}
	for _, id := range mergedFrom {
		if err := s.store.Delete(ctx, id); err != nil && err != store.ErrNotFound {
			slog.Warn("memory.merge_cleanup_failed", "id", id, "error", err)
		}
	}

	slog.Info("memory.merged", "survivor", entry.ID, "absorbed", len(mergedFrom))
	return entry, nil
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
