package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedEmbedding(t *testing.T) {
	ctx := context.Background()
	l2, l3 := newFakeTier(), newFakeDurable()
	engine := newTestEngine(t, testConfig(), l2, l3)

	vector := []float32{0.1, -0.5, 2.25}
	require.NoError(t, engine.SetEmbedding(ctx, "hello world", vector))

	got, found, err := engine.GetEmbedding(ctx, "hello world")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, vector, got)

	_, found, err = engine.GetEmbedding(ctx, "never seen")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestTypedResponse(t *testing.T) {
	ctx := context.Background()
	l2, l3 := newFakeTier(), newFakeDurable()
	engine := newTestEngine(t, testConfig(), l2, l3)

	history := []string{"earlier question", "earlier answer"}
	require.NoError(t, engine.SetResponse(ctx, "what now?", history, "be helpful", 0.2, "do this"))

	got, found, err := engine.GetResponse(ctx, "what now?", history, "be helpful", 0.2)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "do this", got)

	// A different temperature is a different cache entry.
	_, found, err = engine.GetResponse(ctx, "what now?", history, "be helpful", 0.9)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestTypedAnalysis(t *testing.T) {
	ctx := context.Background()
	l2, l3 := newFakeTier(), newFakeDurable()
	engine := newTestEngine(t, testConfig(), l2, l3)

	analysis := map[string]any{
		"sentiment": "positive",
		"topics":    []any{"billing", "renewal"},
	}
	require.NoError(t, engine.SetAnalysis(ctx, "sess42", 10, analysis))

	got, found, err := engine.GetAnalysis(ctx, "sess42", 10)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "positive", got["sentiment"])

	// A different limit is a different cache entry.
	_, found, err = engine.GetAnalysis(ctx, "sess42", 20)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestTypedDecodeFailure(t *testing.T) {
	ctx := context.Background()
	l2, l3 := newFakeTier(), newFakeDurable()
	engine := newTestEngine(t, testConfig(), l2, l3)

	// Poison the key with bytes that are not a float slice.
	engine.Set(ctx, EmbeddingKey("poisoned"), []byte("not json"), time.Minute, TypeEmbedding)

	_, found, err := engine.GetEmbedding(ctx, "poisoned")
	assert.False(t, found)
	assert.ErrorIs(t, err, ErrSerialization)
}
