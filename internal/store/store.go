// Package store defines the durable shapes of the memory engine —
// MemoryEntry and the MemoryStore datastore contract — plus the vector
// helpers shared by its backends (sqlite, postgres/pgvector).
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Update/Delete on a missing id. Get returns
// (nil, nil) instead; lookups of absent memories are not errors.
var ErrNotFound = errors.New("store: memory not found")

// MemoryEntry is one stored, retrievable unit of remembered
// information. The id is globally unique and immutable after creation;
// the embedding, when present, has the fixed dimensionality of the
// configured provider for its whole lifetime.
type MemoryEntry struct {
	ID           string         `json:"id"`
	UserID       string         `json:"user_id,omitempty"`
	Content      string         `json:"content"`
	Embedding    []float32      `json:"embedding,omitempty"`
	Degraded     bool           `json:"degraded,omitempty"` // embedding came from a fallback, not the real provider
	Importance   float64        `json:"importance"`
	Tags         []string       `json:"tags"`
	Summary      string         `json:"summary,omitempty"`
	Topic        string         `json:"topic,omitempty"`
	Sentiment    string         `json:"sentiment,omitempty"`
	Role         string         `json:"role,omitempty"`
	SourceType   string         `json:"source_type"`
	SourceChatID string         `json:"source_chat_id,omitempty"`
	Pinned       bool           `json:"pinned"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// HasTags reports whether the entry's tags are a superset of want.
func (e *MemoryEntry) HasTags(want []string) bool {
	if len(want) == 0 {
		return true
	}
	set := make(map[string]bool, len(e.Tags))
	for _, t := range e.Tags {
		set[t] = true
	}
	for _, t := range want {
		if !set[t] {
			return false
		}
	}
	return true
}

// ScoredEntry pairs an entry with its similarity to a query vector.
type ScoredEntry struct {
	Entry      MemoryEntry `json:"entry"`
	Similarity float64     `json:"similarity"`
}

// SearchOptions configures a similarity search.
type SearchOptions struct {
	SimilarityThreshold float64  // minimum similarity (default 0.7)
	Limit               int      // top-K (default 10)
	FilterTags          []string // entries must carry every listed tag
	UserID              string   // restrict to one user's memories ("" = all)
}

// DefaultSearchOptions returns the standard retrieval parameters.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{SimilarityThreshold: 0.7, Limit: 10}
}

// WithDefaults fills unset search parameters with the standard values.
func (o SearchOptions) WithDefaults() SearchOptions {
	if o.SimilarityThreshold == 0 {
		o.SimilarityThreshold = 0.7
	}
	if o.Limit <= 0 {
		o.Limit = 10
	}
	return o
}

// MemoryStore is the durable backend contract: point lookup, upsert,
// delete, and approximate-nearest-neighbor search over the embedding
// column with equality/containment filters. Single-record writes are
// atomic in the backend; this package adds no locking of its own.
type MemoryStore interface {
	// Get returns (nil, nil) when the id does not exist.
	Get(ctx context.Context, id string) (*MemoryEntry, error)
	Upsert(ctx context.Context, entry *MemoryEntry) error
	// Delete returns ErrNotFound when the id does not exist.
	Delete(ctx context.Context, id string) error
	// Search returns entries at or above the similarity threshold,
	// ranked by similarity descending.
	Search(ctx context.Context, queryEmbedding []float32, opts SearchOptions) ([]ScoredEntry, error)
	// MissingEmbeddings lists ids of entries with no stored embedding,
	// up to limit — the backfill work queue.
	MissingEmbeddings(ctx context.Context, limit int) ([]string, error)
	Close() error
}
