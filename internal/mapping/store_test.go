package mapping

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStorePutGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, Mapping{
		Original: "Wu1", Desired: "ReactModule", Confidence: 0.9, Module: "react",
	}))

	m, err := store.Get(ctx, "Wu1")
	require.NoError(t, err)
	assert.Equal(t, "ReactModule", m.Desired)
	assert.Equal(t, 0.9, m.Confidence)
	assert.Equal(t, "react", m.Module)
	assert.NotZero(t, m.UpdatedAt)
}

func TestStoreGetMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStorePutRejectsEmptyNames(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	assert.Error(t, store.Put(ctx, Mapping{Original: "", Desired: "x"}))
	assert.Error(t, store.Put(ctx, Mapping{Original: "x", Desired: ""}))
}

func TestStoreConfidenceWins(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, Mapping{Original: "a1", Desired: "strongName", Confidence: 0.9}))

	// A weaker guess must not replace the stronger one.
	require.NoError(t, store.Put(ctx, Mapping{Original: "a1", Desired: "weakName", Confidence: 0.3}))
	m, err := store.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "strongName", m.Desired)

	// A stronger guess does replace it.
	require.NoError(t, store.Put(ctx, Mapping{Original: "a1", Desired: "strongerName", Confidence: 0.95}))
	m, err = store.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "strongerName", m.Desired)
}

func TestStorePutBatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutBatch(ctx, []Mapping{
		{Original: "a", Desired: "alpha", Confidence: 0.5},
		{Original: "b", Desired: "beta", Confidence: 0.8},
		{Original: "c", Desired: "gamma", Confidence: 0.2},
	}))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	// Highest confidence first.
	assert.Equal(t, "b", list[0].Original)
	assert.Equal(t, "a", list[1].Original)
	assert.Equal(t, "c", list[2].Original)
}

func TestStoreDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, Mapping{Original: "a", Desired: "alpha", Confidence: 0.5}))
	require.NoError(t, store.Delete(ctx, "a"))

	_, err := store.Get(ctx, "a")
	assert.True(t, errors.Is(err, ErrNotFound))

	err = store.Delete(ctx, "a")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStoreExport(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutBatch(ctx, []Mapping{
		{Original: "a", Desired: "alpha", Confidence: 0.9},
		{Original: "b", Desired: "beta", Confidence: 0.4},
	}))

	exported, err := store.Export(ctx, 0.5)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "alpha"}, exported)

	all, err := store.Export(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, Mapping{Original: "a", Desired: "alpha", Confidence: 0.7}))
	require.NoError(t, store.Close())

	reopened, err := NewStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	m, err := reopened.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "alpha", m.Desired)
}
