package store

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	vectorBlobHeaderSize = 4
	vectorValueByteSize  = 4
)

// CosineSimilarity computes dot(a,b) / (‖a‖·‖b‖). Returns 0 when the
// vectors differ in length or either has zero norm — callers must never
// see NaN from a degenerate vector.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// EncodeVector encodes a float32 vector into a binary blob.
// Format: [4-byte little-endian dimension][N x 4-byte little-endian float32 values].
func EncodeVector(vector []float32) ([]byte, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("encode vector: empty vector")
	}

	blob := make([]byte, vectorBlobHeaderSize+len(vector)*vectorValueByteSize)
	binary.LittleEndian.PutUint32(blob[:vectorBlobHeaderSize], uint32(len(vector)))

	offset := vectorBlobHeaderSize
	for i, value := range vector {
		f := float64(value)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("encode vector: invalid value at index %d", i)
		}
		binary.LittleEndian.PutUint32(blob[offset:offset+vectorValueByteSize], math.Float32bits(value))
		offset += vectorValueByteSize
	}

	return blob, nil
}

// DecodeVector decodes a blob created by EncodeVector.
func DecodeVector(blob []byte) ([]float32, error) {
	if len(blob) < vectorBlobHeaderSize {
		return nil, fmt.Errorf("decode vector: invalid blob length: %d", len(blob))
	}

	dim := int(binary.LittleEndian.Uint32(blob[:vectorBlobHeaderSize]))
	if dim <= 0 {
		return nil, fmt.Errorf("decode vector: invalid dimension: %d", dim)
	}
	if len(blob) != vectorBlobHeaderSize+dim*vectorValueByteSize {
		return nil, fmt.Errorf("decode vector: dimension mismatch: dim=%d payload=%d",
			dim, len(blob)-vectorBlobHeaderSize)
	}

	vector := make([]float32, dim)
	offset := vectorBlobHeaderSize
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[offset : offset+vectorValueByteSize])
		vector[i] = math.Float32frombits(bits)
		offset += vectorValueByteSize
	}

	return vector, nil
}
