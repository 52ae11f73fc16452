package embedder

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	dimension int
	calls     atomic.Int32
	texts     atomic.Int32
	err       error
}

func (c *countingEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(1)
	c.texts.Add(int32(len(texts)))
	if c.err != nil {
		return nil, c.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = make([]float32, c.dimension)
		out[i][0] = float32(len(text))
	}
	return out, nil
}

func (c *countingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func hashingConfig(dim int) *Config {
	return &Config{ID: "test", Provider: ProviderHashing, Dimension: dim, BatchSize: 4}
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestHashingEmbedder(t *testing.T) {
	ctx := context.Background()
	t.Run("Should produce deterministic normalized vectors", func(t *testing.T) {
		adapter, err := New(hashingConfig(128))
		require.NoError(t, err)
		first, err := adapter.EmbedQuery(ctx, "Grilled chicken breast")
		require.NoError(t, err)
		second, err := adapter.EmbedQuery(ctx, "grilled CHICKEN breast")
		require.NoError(t, err)
		require.Len(t, first, 128)
		assert.Equal(t, first, second)
		assert.InDelta(t, 1.0, cosine(first, first), 1e-6)
	})

	t.Run("Should rank related text above unrelated text", func(t *testing.T) {
		adapter, err := New(hashingConfig(256))
		require.NoError(t, err)
		vectors, err := adapter.EmbedDocuments(ctx, []string{
			"Grilled chicken breast: 165 kcal per 100 g, 31 g protein.",
			"Steamed white rice: 130 kcal per 100 g.",
		})
		require.NoError(t, err)
		query, err := adapter.EmbedQuery(ctx, "grilled chicken breast")
		require.NoError(t, err)
		assert.Greater(t, cosine(query, vectors[0]), cosine(query, vectors[1]))
	})

	t.Run("Should return a zero vector for text without tokens", func(t *testing.T) {
		client := NewHashingClient(8)
		out, err := client.CreateEmbedding(ctx, []string{"  ...  "})
		require.NoError(t, err)
		assert.Equal(t, make([]float32, 8), out[0])
	})
}

func TestAdapter(t *testing.T) {
	ctx := context.Background()
	t.Run("Should validate configuration", func(t *testing.T) {
		_, err := New(&Config{ID: "x", Provider: ProviderOpenAI, Dimension: 8, BatchSize: 1})
		assert.ErrorIs(t, err, errMissingModel)
		_, err = New(&Config{ID: "x", Provider: ProviderHashing, Dimension: 0, BatchSize: 1})
		assert.ErrorIs(t, err, errInvalidDimension)
		_, err = New(&Config{ID: "x", Provider: "chroma", Model: "m", Dimension: 8, BatchSize: 1})
		assert.Error(t, err)
	})

	t.Run("Should serve repeated texts from the cache", func(t *testing.T) {
		impl := &countingEmbedder{dimension: 4}
		adapter, err := Wrap(hashingConfig(4), impl)
		require.NoError(t, err)
		require.NoError(t, adapter.EnableCache(16))
		_, err = adapter.EmbedDocuments(ctx, []string{"a", "bb", "a"})
		require.NoError(t, err)
		assert.EqualValues(t, 2, impl.texts.Load())
		vector, err := adapter.EmbedQuery(ctx, "bb")
		require.NoError(t, err)
		assert.EqualValues(t, 1, impl.calls.Load())
		assert.InDelta(t, 2, vector[0], 0)
		vector[0] = 99
		again, err := adapter.EmbedQuery(ctx, "bb")
		require.NoError(t, err)
		assert.InDelta(t, 2, again[0], 0)
	})

	t.Run("Should reject vectors of the wrong dimension", func(t *testing.T) {
		adapter, err := Wrap(hashingConfig(8), &countingEmbedder{dimension: 4})
		require.NoError(t, err)
		_, err = adapter.EmbedDocuments(ctx, []string{"a"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "dimension mismatch")
	})

	t.Run("Should wrap provider errors", func(t *testing.T) {
		boom := errors.New("429 rate limit")
		adapter, err := Wrap(hashingConfig(4), &countingEmbedder{dimension: 4, err: boom})
		require.NoError(t, err)
		_, err = adapter.EmbedQuery(ctx, "a")
		assert.ErrorIs(t, err, boom)
	})
}
