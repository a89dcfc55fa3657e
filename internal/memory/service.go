// Package memory implements the memory engine for MemClaw: creating,
// merging, searching, updating, and deleting remembered facts backed by
// a vector-capable store and an embedding provider.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/memclaw/internal/providers"
	"github.com/nextlevelbuilder/memclaw/internal/store"
)

// ErrMissingEmbedding is returned by similarity operations on an entry
// that has no vector (the provider was down when it was created and it
// has not been backfilled yet).
var ErrMissingEmbedding = errors.New("memory: entry has no embedding")

// Config controls memory behavior.
type Config struct {
	MergeThreshold float64       // similarity at or above which new memories merge (default 0.8)
	AutoMerge      bool          // merge on create
	EmbedTimeout   time.Duration // per-create budget for the provider call
	UserID         string        // default owner for created memories
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MergeThreshold: 0.8,
		AutoMerge:      true,
		EmbedTimeout:   30 * time.Second,
	}
}

// Service orchestrates the store and the embedding provider.
type Service struct {
	store     store.MemoryStore
	provider  providers.EmbeddingProvider
	summarize Summarizer
	cfg       Config
}

// NewService creates a memory service. summarize may be nil; merged
// content is then summarized by simple concatenation.
func NewService(st store.MemoryStore, provider providers.EmbeddingProvider, summarize Summarizer, cfg Config) *Service {
	if cfg.MergeThreshold <= 0 {
		cfg.MergeThreshold = 0.8
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = 30 * time.Second
	}
	if summarize == nil {
		summarize = concatSummarizer{}
	}
	return &Service{store: st, provider: provider, summarize: summarize, cfg: cfg}
}

// CreateInput carries the caller-supplied fields of a new memory.
type CreateInput struct {
	Content      string
	Summary      string
	Topic        string
	Sentiment    string
	Role         string
	Tags         []string
	Importance   float64
	SourceType   string
	SourceChatID string
	UserID       string
	Metadata     map[string]any
}

// Create stores a new memory. Embedding failure never fails the create:
// the entry is persisted without a vector and picked up later by
// backfill. When auto-merge is on and an embedding was obtained, the
// new memory is merged into sufficiently similar existing ones.
func (s *Service) Create(ctx context.Context, in CreateInput) (*store.MemoryEntry, error) {
	if in.Content == "" {
		return nil, fmt.Errorf("memory: empty content")
	}
	userID := firstNonEmpty(in.UserID, s.cfg.UserID)
	if err := store.ValidateUserID(userID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	entry := &store.MemoryEntry{
		ID:           uuid.Must(uuid.NewV7()).String(),
		UserID:       userID,
		Content:      in.Content,
		Summary:      in.Summary,
		Topic:        in.Topic,
		Sentiment:    in.Sentiment,
		Role:         in.Role,
		Tags:         in.Tags,
		Importance:   in.Importance,
		SourceType:   in.SourceType,
		SourceChatID: in.SourceChatID,
		Metadata:     in.Metadata,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	entry.Embedding = s.tryEmbed(ctx, embedText(entry))
	entry.Degraded = len(entry.Embedding) == 0

	if s.cfg.AutoMerge && len(entry.Embedding) > 0 {
		return s.mergeOrInsert(ctx, entry)
	}

	if err := s.store.Upsert(ctx, entry); err != nil {
		return nil, fmt.Errorf("store memory: %w", err)
	}
	return entry, nil
}

// tryEmbed calls the provider with the configured timeout. A nil return
// means the provider failed; the caller degrades rather than erroring.
func (s *Service) tryEmbed(ctx context.Context, text string) []float32 {
	if s.provider == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.EmbedTimeout)
	defer cancel()

	vec, err := s.provider.Embed(ctx, text)
	if err != nil {
		slog.Warn("memory.embed_failed", "provider", s.provider.Name(), "error", err)
		return nil
	}
	return vec
}

// embedText picks what gets embedded: the content, falling back to the
// summary only when content is blank.
func embedText(e *store.MemoryEntry) string {
	if e.Content != "" {
		return e.Content
	}
	return e.Summary
}

// Get returns (nil, nil) when the id does not exist.
func (s *Service) Get(ctx context.Context, id string) (*store.MemoryEntry, error) {
	return s.store.Get(ctx, id)
}

// Search embeds the query and runs a similarity search.
func (s *Service) Search(ctx context.Context, query string, opts store.SearchOptions) ([]store.ScoredEntry, error) {
	if s.provider == nil {
		return nil, fmt.Errorf("memory: no embedding provider configured")
	}
	vec, err := s.provider.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return s.store.Search(ctx, vec, opts)
}

// FindSimilar returns entries similar to an existing memory.
func (s *Service) FindSimilar(ctx context.Context, id string, opts store.SearchOptions) ([]store.ScoredEntry, error) {
	entry, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, store.ErrNotFound
	}
	if len(entry.Embedding) == 0 {
		return nil, ErrMissingEmbedding
	}

	// The entry itself scores 1.0 and would occupy a result slot, so
	// ask for one extra and drop it.
	opts = opts.WithDefaults()
	searchOpts := opts
	searchOpts.Limit = opts.Limit + 1

	results, err := s.store.Search(ctx, entry.Embedding, searchOpts)
	if err != nil {
		return nil, err
	}
	out := make([]store.ScoredEntry, 0, len(results))
	for _, r := range results {
		if r.Entry.ID != id {
			out = append(out, r)
		}
	}
	if len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// UpdateInput carries optional field updates; nil pointers are left
// unchanged.
type UpdateInput struct {
	Content    *string
	Summary    *string
	Topic      *string
	Sentiment  *string
	Tags       []string
	Importance *float64
	Pinned     *bool
	Metadata   map[string]any
}

// Update applies a partial update. Changing content or summary
// re-embeds the entry; a provider failure there keeps the old vector
// and marks nothing, matching create's degrade-not-fail behavior.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*store.MemoryEntry, error) {
	entry, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, store.ErrNotFound
	}

	reEmbed := false
	if in.Content != nil && *in.Content != entry.Content {
		entry.Content = *in.Content
		reEmbed = true
	}
	if in.Summary != nil && *in.Summary != entry.Summary {
		entry.Summary = *in.Summary
		reEmbed = true
	}
	if in.Topic != nil {
		entry.Topic = *in.Topic
	}
	if in.Sentiment != nil {
		entry.Sentiment = *in.Sentiment
	}
	if in.Tags != nil {
		entry.Tags = in.Tags
	}
	if in.Importance != nil {
		entry.Importance = *in.Importance
	}
	if in.Pinned != nil {
		entry.Pinned = *in.Pinned
	}
	if in.Metadata != nil {
		if entry.Metadata == nil {
			entry.Metadata = map[string]any{}
		}
		for k, v := range in.Metadata {
			entry.Metadata[k] = v
		}
	}

	if reEmbed {
		if vec := s.tryEmbed(ctx, embedText(entry)); vec != nil {
			entry.Embedding = vec
			entry.Degraded = false
		}
	}

	entry.UpdatedAt = time.Now().UTC()
	if err := s.store.Upsert(ctx, entry); err != nil {
		return nil, fmt.Errorf("store memory: %w", err)
	}
	return entry, nil
}

// Delete removes a memory. Returns store.ErrNotFound for unknown ids.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
