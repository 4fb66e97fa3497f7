// Package simple provides a deterministic embedding generator used when no
// Gemini API key is configured. Vectors are seeded from the SHA256 of the
// input text, so development runs stay reproducible without network calls.
package simple

import (
	"billevents/internal/port/outbound"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"time"
)

// embedDim matches the gemini-embedding-001 dimensionality the policy event
// schema stores.
const embedDim = 768

// Generator implements a deterministic stub EmbeddingService.
type Generator struct{}

// New creates a new simple embedding generator.
func New() *Generator { return &Generator{} }

// GenerateEmbedding returns a deterministic 768-d unit vector for the text.
// The values are derived from a simple PRNG seeded by SHA256(text).
func (g *Generator) GenerateEmbedding(_ context.Context, text string) (*outbound.EmbeddingResult, error) {
	// Seed from SHA256(text)
	sum := sha256.Sum256([]byte(text))

	// Xorshift64* PRNG seeded from the hash (takes 8 bytes).
	// If the seed is zero, pick a non-zero constant.
	seed := binary.LittleEndian.Uint64(sum[:8])
	if seed == 0 {
		seed = 0x9e3779b97f4a7c15
	}
	x := seed

	out := make([]float32, embedDim)
	var norm float64
	for i := 0; i < embedDim; i++ {
		// xorshift64*
		x ^= x >> 12
		x ^= x << 25
		x ^= x >> 27
		x *= 0x2545F4914F6CDD1D

		// Map the upper 53 bits to a float in [0,1), then shift to [-1,1].
		mantissa := (x >> 11) & ((1 << 53) - 1)
		f := 2.0*(float64(mantissa)/float64(1<<53)) - 1.0
		out[i] = float32(f)
		norm += f * f
	}

	// L2 normalize so downstream similarity math sees unit vectors.
	norm = math.Sqrt(norm)
	if norm > 0 {
		inv := float32(1.0 / norm)
		for i := range out {
			out[i] *= inv
		}
	}

	return &outbound.EmbeddingResult{
		Vector:      out,
		Dimensions:  len(out),
		Model:       "simple-deterministic",
		GeneratedAt: time.Now(),
	}, nil
}

// GenerateBatchEmbeddings generates embeddings for multiple texts, returned
// in input order.
func (g *Generator) GenerateBatchEmbeddings(ctx context.Context, texts []string) ([]*outbound.EmbeddingResult, error) {
	results := make([]*outbound.EmbeddingResult, len(texts))
	for i, text := range texts {
		result, err := g.GenerateEmbedding(ctx, text)
		if err != nil {
			return nil, err
		}
		results[i] = result
	}
	return results, nil
}
