package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoragePutGet(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	err = store.Put(ctx, "pads/abc/objects.json", []byte(`{"name":"trip"}`))
	require.NoError(t, err)

	data, err := store.Get(ctx, "pads/abc/objects.json")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"name":"trip"}`), data)
}

func TestLocalStoragePutReplaces(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "k", []byte("one")))
	require.NoError(t, store.Put(ctx, "k", []byte("two")))

	data, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), data)
}

func TestLocalStorageGetMissing(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestLocalStorageDelete(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "k", []byte("v")))
	require.NoError(t, store.Delete(ctx, "k"))

	exists, err := store.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)

	// Deleting a missing key is not an error.
	assert.NoError(t, store.Delete(ctx, "k"))
}

func TestLocalStorageList(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "pads/a/objects.json", []byte("1")))
	require.NoError(t, store.Put(ctx, "pads/a/geometry.bin", []byte("2")))
	require.NoError(t, store.Put(ctx, "pads/b/objects.json", []byte("3")))

	keys, err := store.List(ctx, "pads/a")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"pads/a/objects.json", "pads/a/geometry.bin"}, keys)

	all, err := store.List(ctx, "pads")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := store.List(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, none)
}
