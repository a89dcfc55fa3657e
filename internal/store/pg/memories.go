package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/nextlevelbuilder/memclaw/internal/store"
)

// Store implements store.MemoryStore backed by Postgres + pgvector.
type Store struct {
	db   *sql.DB
	dims int
}

// New wraps an open connection and ensures the schema exists. dims is
// the embedding dimensionality of the configured provider; the vector
// column is created with that width.
func New(db *sql.DB, dims int) (*Store, error) {
	if dims <= 0 {
		dims = 1536
	}
	s := &Store{db: db, dims: dims}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			embedding vector(%d),
			degraded BOOLEAN NOT NULL DEFAULT FALSE,
			importance DOUBLE PRECISION NOT NULL DEFAULT 0,
			tags TEXT[] NOT NULL DEFAULT '{}',
			summary TEXT NOT NULL DEFAULT '',
			topic TEXT NOT NULL DEFAULT '',
			sentiment TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT '',
			source_type TEXT NOT NULL DEFAULT '',
			source_chat_id TEXT NOT NULL DEFAULT '',
			pinned BOOLEAN NOT NULL DEFAULT FALSE,
			metadata JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`, s.dims),
		`CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_tags ON memories USING GIN(tags)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*store.MemoryEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, user_id, content, embedding::text, degraded,
		importance, tags, summary, topic, sentiment, role, source_type, source_chat_id,
		pinned, metadata, created_at, updated_at FROM memories WHERE id = $1`, id)

	entry, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get memory: %w", err)
	}
	return entry, nil
}

func (s *Store) Upsert(ctx context.Context, e *store.MemoryEntry) error {
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	var emb interface{}
	if len(e.Embedding) > 0 {
		emb = vectorToString(e.Embedding)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO memories
		(id, user_id, content, embedding, degraded, importance, tags, summary, topic, sentiment,
		 role, source_type, source_chat_id, pinned, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4::vector, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content, embedding = EXCLUDED.embedding,
			degraded = EXCLUDED.degraded, importance = EXCLUDED.importance,
			tags = EXCLUDED.tags, summary = EXCLUDED.summary, topic = EXCLUDED.topic,
			sentiment = EXCLUDED.sentiment, role = EXCLUDED.role,
			source_type = EXCLUDED.source_type, source_chat_id = EXCLUDED.source_chat_id,
			pinned = EXCLUDED.pinned, metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at`,
		e.ID, e.UserID, e.Content, emb, e.Degraded, e.Importance, pqStringArray(e.Tags),
		e.Summary, e.Topic, e.Sentiment, e.Role, e.SourceType, e.SourceChatID,
		e.Pinned, string(meta), e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert memory: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM memories WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Search ranks by cosine similarity in the database. Tag filtering uses
// the array containment operator so the GIN index applies.
func (s *Store) Search(ctx context.Context, queryEmbedding []float32, opts store.SearchOptions) ([]store.ScoredEntry, error) {
	opts = opts.WithDefaults()
	vecStr := vectorToString(queryEmbedding)

	q := `SELECT id, user_id, content, embedding::text, degraded, importance, tags, summary,
		topic, sentiment, role, source_type, source_chat_id, pinned, metadata,
		created_at, updated_at, 1 - (embedding <=> $1::vector) AS score
		FROM memories WHERE embedding IS NOT NULL
		AND 1 - (embedding <=> $1::vector) >= $2`
	args := []interface{}{vecStr, opts.SimilarityThreshold}

	if opts.UserID != "" {
		args = append(args, opts.UserID)
		q += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if len(opts.FilterTags) > 0 {
		args = append(args, pqStringArray(opts.FilterTags))
		q += fmt.Sprintf(" AND tags @> $%d::text[]", len(args))
	}
	args = append(args, opts.Limit)
	q += fmt.Sprintf(" ORDER BY embedding <=> $1::vector LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}
	defer rows.Close()

	var results []store.ScoredEntry
	for rows.Next() {
		entry, score, err := scanScoredMemory(rows)
		if err != nil {
			continue
		}
		results = append(results, store.ScoredEntry{Entry: *entry, Similarity: score})
	}
	return results, nil
}

func (s *Store) MissingEmbeddings(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM memories WHERE embedding IS NULL ORDER BY created_at ASC LIMIT $1", limit)
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

func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*store.MemoryEntry, error) {
	var e store.MemoryEntry
	var embText *string
	var tags, meta []byte

	err := row.Scan(&e.ID, &e.UserID, &e.Content, &embText, &e.Degraded, &e.Importance, &tags,
		&e.Summary, &e.Topic, &e.Sentiment, &e.Role, &e.SourceType, &e.SourceChatID,
		&e.Pinned, &meta, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	e.Embedding = parseVector(derefStr(embText))
	scanStringArray(tags, &e.Tags)
	json.Unmarshal(meta, &e.Metadata)
	return &e, nil
}

func scanScoredMemory(row rowScanner) (*store.MemoryEntry, float64, error) {
	var e store.MemoryEntry
	var embText *string
	var tags, meta []byte
	var score float64

	err := row.Scan(&e.ID, &e.UserID, &e.Content, &embText, &e.Degraded, &e.Importance, &tags,
		&e.Summary, &e.Topic, &e.Sentiment, &e.Role, &e.SourceType, &e.SourceChatID,
		&e.Pinned, &meta, &e.CreatedAt, &e.UpdatedAt, &score)
	if err != nil {
		return nil, 0, err
	}

	e.Embedding = parseVector(derefStr(embText))
	scanStringArray(tags, &e.Tags)
	json.Unmarshal(meta, &e.Metadata)
	return &e, score, nil
}

// parseVector reads a pgvector text literal ("[1,2,3]") back into floats.
func parseVector(s string) []float32 {
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil
	}
	var out []float32
	start := 1
	for i := 1; i <= len(s)-1; i++ {
		if i == len(s)-1 || s[i] == ',' {
			var f float64
			if _, err := fmt.Sscanf(s[start:i], "%g", &f); err == nil {
				out = append(out, float32(f))
			}
			start = i + 1
		}
	}
	return out
}
