package simple

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateEmbedding(t *testing.T) {
	g := New()

	t.Run("produces a unit vector of the expected width", func(t *testing.T) {
		result, err := g.GenerateEmbedding(context.Background(), "An Act to amend the Clean Air Act")
		require.NoError(t, err)
		assert.Len(t, result.Vector, 768)
		assert.Equal(t, 768, result.Dimensions)
		assert.Equal(t, "simple-deterministic", result.Model)

		var norm float64
		for _, v := range result.Vector {
			norm += float64(v) * float64(v)
		}
		assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-3)
	})

	t.Run("is deterministic per input", func(t *testing.T) {
		first, err := g.GenerateEmbedding(context.Background(), "same text")
		require.NoError(t, err)
		second, err := g.GenerateEmbedding(context.Background(), "same text")
		require.NoError(t, err)
		assert.Equal(t, first.Vector, second.Vector)

		other, err := g.GenerateEmbedding(context.Background(), "different text")
		require.NoError(t, err)
		assert.NotEqual(t, first.Vector, other.Vector)
	})
}

func TestGenerateBatchEmbeddings(t *testing.T) {
	g := New()

	results, err := g.GenerateBatchEmbeddings(context.Background(), []string{"first event", "second event"})
	require.NoError(t, err)
	require.Len(t, results, 2)

	single, err := g.GenerateEmbedding(context.Background(), "first event")
	require.NoError(t, err)
	assert.Equal(t, single.Vector, results[0].Vector)
	assert.NotEqual(t, results[0].Vector, results[1].Vector)
}
