package providers

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// MockProvider produces deterministic vectors derived from a content
// hash. Useful in tests and as an offline fallback; vectors from it
// carry no semantic meaning, so callers should mark entries built on
// them as degraded.
type MockProvider struct {
	dims int
}

func NewMockProvider(dims int) *MockProvider {
	if dims <= 0 {
		dims = 64
	}
	return &MockProvider{dims: dims}
}

func (p *MockProvider) Name() string    { return "mock" }
func (p *MockProvider) Model() string   { return "hash" }
func (p *MockProvider) Dimensions() int { return p.dims }

func (p *MockProvider) Embed(_ context.Context, text string) ([]float32, error) {
	return hashVector(text, p.dims), nil
}

func (p *MockProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = hashVector(t, p.dims)
	}
	return out, nil
}

// hashVector expands sha256(text) into a unit vector of the given width.
func hashVector(text string, dims int) []float32 {
	seed := sha256.Sum256([]byte(text))
	vec := make([]float32, dims)

	var norm float64
	state := seed
	for i := 0; i < dims; i++ {
		if i%8 == 0 && i > 0 {
			state = sha256.Sum256(state[:])
		}
		bits := binary.LittleEndian.Uint32(state[(i%8)*4 : (i%8)*4+4])
		// Map to [-1, 1).
		v := float32(int32(bits)) / float32(math.MaxInt32)
		vec[i] = v
		norm += float64(v) * float64(v)
	}

	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec
}
