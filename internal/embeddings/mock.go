package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// Mock is a deterministic embedding provider for tests and offline use.
// Vectors are derived from a content hash, so identical text always embeds
// to the identical vector.
type Mock struct {
	dimension int

	// Calls counts Embed invocations, for tests.
	Calls int
}

// NewMock creates a mock provider with the given dimension.
func NewMock(dimension int) *Mock {
	return &Mock{dimension: dimension}
}

func (m *Mock) ModelName() string { return "mock" }

func (m *Mock) Dimension() int { return m.dimension }

// Embed derives a unit-length pseudo-embedding from each text's hash.
func (m *Mock) Embed(_ context.Context, texts []string) ([][]float32, error) {
	m.Calls++
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, m.dimension)
		seed := sha256.Sum256([]byte(text))
		var norm float64
		for j := range vec {
			word := binary.LittleEndian.Uint32(seed[(j*4)%28:])
			// Mix in position so components differ
			v := float64(word^uint32(j*2654435761)) / float64(math.MaxUint32)
			vec[j] = float32(v*2 - 1)
			norm += float64(vec[j]) * float64(vec[j])
		}
		norm = math.Sqrt(norm)
		if norm > 0 {
			for j := range vec {
				vec[j] = float32(float64(vec[j]) / norm)
			}
		}
		out[i] = vec
	}
	return out, nil
}
