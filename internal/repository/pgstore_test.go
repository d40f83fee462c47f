//go:build integration

package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memoria-ai/memoria/internal/domain"
	"github.com/memoria-ai/memoria/internal/vector"
)

// basisVector returns a 1536-dim unit vector along one axis. Cosine
// similarity is 1 for the same axis and 0 for different axes, which makes
// threshold assertions exact.
func basisVector(axis int) []float32 {
	v := make([]float32, 1536)
	v[axis] = 1
	return v
}

func TestPgVectorStore_InsertAndQuery(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(ctx, t)
	store := NewPgVectorStore(pool)

	items := []domain.VectorItem{
		{Hash: domain.VectorHash("the dragon sleeps", 1, 0), Text: "the dragon sleeps",
			Metadata: map[string]any{"source": "lorebook"}, Vector: basisVector(0)},
		{Hash: domain.VectorHash("the knight rides", 1, 1), Text: "the knight rides",
			Metadata: map[string]any{"source": "manual"}, Vector: basisVector(1)},
	}
	require.NoError(t, store.Insert(ctx, "alice_kb1", items))

	hits, err := store.Query(ctx, vector.QueryInput{
		CollectionID: "alice_kb1",
		Embedding:    basisVector(0),
		TopK:         10,
		Threshold:    0.5,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "the dragon sleeps", hits[0].Text)
	assert.Equal(t, items[0].Hash, hits[0].Hash)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.Equal(t, "lorebook", hits[0].Metadata["source"])
}

func TestPgVectorStore_QueryOrdersBySimilarity(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(ctx, t)
	store := NewPgVectorStore(pool)

	// A blended vector is closer to axis 0 than axis 1.
	blended := make([]float32, 1536)
	blended[0] = 0.9
	blended[1] = 0.1

	require.NoError(t, store.Insert(ctx, "alice_kb1", []domain.VectorItem{
		{Hash: "h0", Text: "near", Vector: basisVector(0)},
		{Hash: "h1", Text: "far", Vector: basisVector(1)},
	}))

	hits, err := store.Query(ctx, vector.QueryInput{
		CollectionID: "alice_kb1",
		Embedding:    blended,
		TopK:         10,
	})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "near", hits[0].Text)
	assert.Equal(t, "far", hits[1].Text)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestPgVectorStore_QueryTopK(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(ctx, t)
	store := NewPgVectorStore(pool)

	items := make([]domain.VectorItem, 5)
	for i := range items {
		v := basisVector(0)
		v[1] = float32(i) // increasing distance from the probe
		items[i] = domain.VectorItem{Hash: domain.VectorHash("t", 2, i), Text: "t", Vector: v}
	}
	require.NoError(t, store.Insert(ctx, "alice_kb1", items))

	hits, err := store.Query(ctx, vector.QueryInput{
		CollectionID: "alice_kb1",
		Embedding:    basisVector(0),
		TopK:         3,
	})
	require.NoError(t, err)
	assert.Len(t, hits, 3)
}

func TestPgVectorStore_InsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(ctx, t)
	store := NewPgVectorStore(pool)

	item := domain.VectorItem{Hash: "same-hash", Text: "once", Vector: basisVector(0)}
	require.NoError(t, store.Insert(ctx, "alice_kb1", []domain.VectorItem{item}))
	require.NoError(t, store.Insert(ctx, "alice_kb1", []domain.VectorItem{item}))

	hashes, err := store.List(ctx, "alice_kb1")
	require.NoError(t, err)
	assert.Equal(t, []string{"same-hash"}, hashes)
}

func TestPgVectorStore_CollectionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(ctx, t)
	store := NewPgVectorStore(pool)

	require.NoError(t, store.Insert(ctx, "alice_kb1", []domain.VectorItem{
		{Hash: "a", Text: "alice text", Vector: basisVector(0)},
	}))
	require.NoError(t, store.Insert(ctx, "bob_kb1", []domain.VectorItem{
		{Hash: "b", Text: "bob text", Vector: basisVector(0)},
	}))

	hits, err := store.Query(ctx, vector.QueryInput{
		CollectionID: "alice_kb1",
		Embedding:    basisVector(0),
		TopK:         10,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "alice text", hits[0].Text)
}

func TestPgVectorStore_Purge(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(ctx, t)
	store := NewPgVectorStore(pool)

	require.NoError(t, store.Insert(ctx, "alice_kb1", []domain.VectorItem{
		{Hash: "a", Text: "gone", Vector: basisVector(0)},
	}))
	require.NoError(t, store.Insert(ctx, "alice_kb2", []domain.VectorItem{
		{Hash: "b", Text: "kept", Vector: basisVector(0)},
	}))

	require.NoError(t, store.Purge(ctx, "alice_kb1"))

	hashes, err := store.List(ctx, "alice_kb1")
	require.NoError(t, err)
	assert.Empty(t, hashes)

	hashes, err = store.List(ctx, "alice_kb2")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, hashes)
}

func TestPgVectorStore_MissingCollectionIsNotAnError(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(ctx, t)
	store := NewPgVectorStore(pool)

	hits, err := store.Query(ctx, vector.QueryInput{
		CollectionID: "nobody_kb9",
		Embedding:    basisVector(0),
		TopK:         10,
	})
	require.NoError(t, err)
	assert.Empty(t, hits)

	hashes, err := store.List(ctx, "nobody_kb9")
	require.NoError(t, err)
	assert.Empty(t, hashes)
}

func TestPgVectorStore_EmptyCollectionID(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(ctx, t)
	store := NewPgVectorStore(pool)

	err := store.Insert(ctx, "", []domain.VectorItem{{Hash: "a", Vector: basisVector(0)}})
	assert.ErrorIs(t, err, domain.ErrMissingCollectionID)

	_, err = store.Query(ctx, vector.QueryInput{Embedding: basisVector(0)})
	assert.ErrorIs(t, err, domain.ErrMissingCollectionID)

	assert.ErrorIs(t, store.Purge(ctx, ""), domain.ErrMissingCollectionID)

	_, err = store.List(ctx, "")
	assert.ErrorIs(t, err, domain.ErrMissingCollectionID)
}
