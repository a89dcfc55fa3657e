// Package sqlite implements store.MemoryStore on a local SQLite file.
// Embeddings are stored as binary blobs and searched in-process with
// cosine similarity, which holds up fine for personal-scale memory
// sets. Larger deployments use the postgres backend.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/memclaw/internal/store"
)

// Store implements store.MemoryStore backed by SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) the database at path and initializes the schema.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Info("memory.store_opened", "backend", "sqlite", "path", path)
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			embedding BLOB,
			degraded INTEGER NOT NULL DEFAULT 0,
			importance REAL NOT NULL DEFAULT 0,
			tags TEXT NOT NULL DEFAULT '[]',
			summary TEXT NOT NULL DEFAULT '',
			topic TEXT NOT NULL DEFAULT '',
			sentiment TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT '',
			source_type TEXT NOT NULL DEFAULT '',
			source_chat_id TEXT NOT NULL DEFAULT '',
			pinned INTEGER NOT NULL DEFAULT 0,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_source_chat ON memories(source_chat_id)`,
		// Embedding cache for deduplication across re-imports.
		`CREATE TABLE IF NOT EXISTS embedding_cache (
			hash TEXT PRIMARY KEY,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			embedding BLOB NOT NULL,
			dims INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:min(len(stmt), 60)], err)
		}
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*store.MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT id, user_id, content, embedding, degraded, importance,
		tags, summary, topic, sentiment, role, source_type, source_chat_id, pinned, metadata,
		created_at, updated_at FROM memories WHERE id = ?`, id)

	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get memory: %w", err)
	}
	return entry, nil
}

func (s *Store) Upsert(ctx context.Context, e *store.MemoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var emb []byte
	if len(e.Embedding) > 0 {
		var err error
		emb, err = store.EncodeVector(e.Embedding)
		if err != nil {
			return fmt.Errorf("encode embedding: %w", err)
		}
	}

	tags, err := json.Marshal(e.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO memories
		(id, user_id, content, embedding, degraded, importance, tags, summary, topic, sentiment,
		 role, source_type, source_chat_id, pinned, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Content, emb, boolInt(e.Degraded), e.Importance, string(tags),
		e.Summary, e.Topic, e.Sentiment, e.Role, e.SourceType, e.SourceChatID,
		boolInt(e.Pinned), string(meta), e.CreatedAt.UnixMilli(), e.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert memory: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM memories WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Search loads all embedded entries matching the filters and ranks them
// by cosine similarity in-process.
func (s *Store) Search(ctx context.Context, queryEmbedding []float32, opts store.SearchOptions) ([]store.ScoredEntry, error) {
	opts = opts.WithDefaults()

	s.mu.RLock()
	defer s.mu.RUnlock()

	q := `SELECT id, user_id, content, embedding, degraded, importance, tags, summary, topic,
		sentiment, role, source_type, source_chat_id, pinned, metadata, created_at, updated_at
		FROM memories WHERE embedding IS NOT NULL`
	var args []any
	if opts.UserID != "" {
		q += " AND user_id = ?"
		args = append(args, opts.UserID)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()

	var results []store.ScoredEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			continue
		}
		if !entry.HasTags(opts.FilterTags) {
			continue
		}
		sim := store.CosineSimilarity(queryEmbedding, entry.Embedding)
		if sim >= opts.SimilarityThreshold {
			results = append(results, store.ScoredEntry{Entry: *entry, Similarity: sim})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

func (s *Store) MissingEmbeddings(ctx context.Context, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM memories WHERE embedding IS NULL ORDER BY created_at ASC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("missing embeddings query: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Count returns the number of stored memories.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	s.db.QueryRow("SELECT COUNT(*) FROM memories").Scan(&n)
	return n
}

// GetCachedEmbedding returns a cached embedding by content hash.
func (s *Store) GetCachedEmbedding(contentHash, provider, model string) ([]float32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var blob []byte
	err := s.db.QueryRow("SELECT embedding FROM embedding_cache WHERE hash = ? AND provider = ? AND model = ?",
		contentHash, provider, model).Scan(&blob)
	if err != nil {
		return nil, false
	}
	vec, err := store.DecodeVector(blob)
	if err != nil {
		return nil, false
	}
	return vec, true
}

// CacheEmbedding stores an embedding in the cache table.
func (s *Store) CacheEmbedding(contentHash, provider, model string, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, err := store.EncodeVector(embedding)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO embedding_cache (hash, provider, model, embedding, dims, updated_at)
		VALUES (?, ?, ?, ?, ?, strftime('%s','now'))`,
		contentHash, provider, model, blob, len(embedding))
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// scanner abstracts *sql.Row and *sql.Rows for scanEntry.
type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*store.MemoryEntry, error) {
	var e store.MemoryEntry
	var emb []byte
	var degraded, pinned int
	var tags, meta string
	var createdAt, updatedAt int64

	err := row.Scan(&e.ID, &e.UserID, &e.Content, &emb, &degraded, &e.Importance, &tags,
		&e.Summary, &e.Topic, &e.Sentiment, &e.Role, &e.SourceType, &e.SourceChatID,
		&pinned, &meta, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if len(emb) > 0 {
		if vec, err := store.DecodeVector(emb); err == nil {
			e.Embedding = vec
		}
	}
	e.Degraded = degraded != 0
	e.Pinned = pinned != 0
	json.Unmarshal([]byte(tags), &e.Tags)
	json.Unmarshal([]byte(meta), &e.Metadata)
	e.CreatedAt = msToTime(createdAt)
	e.UpdatedAt = msToTime(updatedAt)
	return &e, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func msToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
