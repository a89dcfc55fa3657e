package store

import (
	"math"
	"testing"
)

func TestCosineSimilarity_Bounds(t *testing.T) {
	vectors := [][]float32{
		{1, 0, 0},
		{0.5, 0.5, 0.7},
		{-1, 2, -3},
		{0.001, 100, 0.5},
	}

	for i, a := range vectors {
		for j, b := range vectors {
			sim := CosineSimilarity(a, b)
			if sim < -1.0000001 || sim > 1.0000001 {
				t.Errorf("sim(v%d, v%d) = %f, out of [-1,1]", i, j, sim)
			}
			// Symmetry.
			if rev := CosineSimilarity(b, a); math.Abs(sim-rev) > 1e-12 {
				t.Errorf("sim(v%d, v%d) = %f but reversed = %f", i, j, sim, rev)
			}
		}
		// Self-similarity ≈ 1.
		if sim := CosineSimilarity(a, a); math.Abs(sim-1) > 1e-9 {
			t.Errorf("sim(v%d, v%d) = %f, want ~1", i, i, sim)
		}
	}
}

func TestCosineSimilarity_ZeroVector(t *testing.T) {
	zero := []float32{0, 0, 0}
	other := []float32{1, 2, 3}

	if sim := CosineSimilarity(zero, other); sim != 0 {
		t.Errorf("zero vector sim = %f, want 0", sim)
	}
	if sim := CosineSimilarity(zero, zero); sim != 0 {
		t.Errorf("zero-zero sim = %f, want 0 (never NaN)", sim)
	}
	if math.IsNaN(CosineSimilarity(zero, other)) {
		t.Error("similarity must never be NaN")
	}
}

func TestCosineSimilarity_LengthMismatch(t *testing.T) {
	if sim := CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}); sim != 0 {
		t.Errorf("mismatched lengths sim = %f, want 0", sim)
	}
}

func TestVectorEncodeDecode(t *testing.T) {
	vec := []float32{0.1, -2.5, 3.25, 0}

	blob, err := EncodeVector(vec)
	if err != nil {
		t.Fatalf("EncodeVector: %v", err)
	}

	back, err := DecodeVector(blob)
	if err != nil {
		t.Fatalf("DecodeVector: %v", err)
	}
	if len(back) != len(vec) {
		t.Fatalf("decoded length = %d, want %d", len(back), len(vec))
	}
	for i := range vec {
		if back[i] != vec[i] {
			t.Errorf("value %d = %f, want %f", i, back[i], vec[i])
		}
	}
}

func TestVectorEncode_Invalid(t *testing.T) {
	if _, err := EncodeVector(nil); err == nil {
		t.Error("empty vector should fail to encode")
	}
	if _, err := EncodeVector([]float32{float32(math.NaN())}); err == nil {
		t.Error("NaN value should fail to encode")
	}
	if _, err := DecodeVector([]byte{1, 2}); err == nil {
		t.Error("short blob should fail to decode")
	}
}

func TestHasTags(t *testing.T) {
	e := MemoryEntry{Tags: []string{"work", "golang", "projects"}}

	if !e.HasTags(nil) {
		t.Error("empty filter should always match")
	}
	if !e.HasTags([]string{"work", "golang"}) {
		t.Error("subset filter should match")
	}
	if e.HasTags([]string{"work", "personal"}) {
		t.Error("filter with missing tag should not match")
	}
}
