package providers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// PersistentCache is an optional second cache tier; the sqlite store's
// embedding_cache table satisfies it.
type PersistentCache interface {
	GetCachedEmbedding(contentHash, provider, model string) ([]float32, bool)
	CacheEmbedding(contentHash, provider, model string, embedding []float32) error
}

// CachingProvider fronts a provider with an in-process LRU and an
// optional persistent cache, keyed by content hash. Re-importing the
// same export never re-embeds unchanged text.
type CachingProvider struct {
	inner      EmbeddingProvider
	memory     *lru.Cache[string, []float32]
	persistent PersistentCache // may be nil
}

// WithCache wraps a provider with an LRU of the given size and an
// optional persistent tier (pass nil to skip).
func WithCache(inner EmbeddingProvider, size int, persistent PersistentCache) (*CachingProvider, error) {
	if size <= 0 {
		size = 4096
	}
	memory, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &CachingProvider{inner: inner, memory: memory, persistent: persistent}, nil
}

func (p *CachingProvider) Name() string    { return p.inner.Name() }
func (p *CachingProvider) Model() string   { return p.inner.Model() }
func (p *CachingProvider) Dimensions() int { return p.inner.Dimensions() }

// ContentHash returns the cache key for a text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func (p *CachingProvider) lookup(hash string) ([]float32, bool) {
	if vec, ok := p.memory.Get(hash); ok {
		return vec, true
	}
	if p.persistent != nil {
		if vec, ok := p.persistent.GetCachedEmbedding(hash, p.inner.Name(), p.inner.Model()); ok {
			p.memory.Add(hash, vec)
			return vec, true
		}
	}
	return nil, false
}

func (p *CachingProvider) remember(hash string, vec []float32) {
	p.memory.Add(hash, vec)
	if p.persistent != nil {
		p.persistent.CacheEmbedding(hash, p.inner.Name(), p.inner.Model(), vec)
	}
}

func (p *CachingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	hash := ContentHash(text)
	if vec, ok := p.lookup(hash); ok {
		return vec, nil
	}

	vec, err := p.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	p.remember(hash, vec)
	return vec, nil
}

func (p *CachingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	for i, t := range texts {
		hash := ContentHash(t)
		if vec, ok := p.lookup(hash); ok {
			out[i] = vec
			continue
		}
		missing = append(missing, t)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) > 0 {
		vecs, err := p.inner.EmbedBatch(ctx, missing)
		if err != nil {
			return nil, err
		}
		for j, vec := range vecs {
			i := missingIdx[j]
			out[i] = vec
			p.remember(ContentHash(texts[i]), vec)
		}
	}
	return out, nil
}
