package badgerkv

import (
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

func TestStore_PutGet(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Put("transcription:jobs", "trx-1", []byte(`{"id":"trx-1"}`)))

	got, err := store.Get("transcription:jobs", "trx-1")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"trx-1"}`, string(got))
}

func TestStore_GetNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get("transcription:jobs", "nonexistent")
	assert.Error(t, err)
}

func TestStore_Delete(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Put("chat:conversations", "conv-1", []byte("x")))
	require.NoError(t, store.Delete("chat:conversations", "conv-1"))

	_, err := store.Get("chat:conversations", "conv-1")
	assert.Error(t, err)
}

func TestStore_ListStaysInNamespace(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Put("chat:turns:conv-a", "turn-1", []byte("1")))
	require.NoError(t, store.Put("chat:turns:conv-a", "turn-2", []byte("2")))
	// A namespace sharing the prefix must not leak into the listing.
	require.NoError(t, store.Put("chat:turns:conv-ab", "turn-3", []byte("3")))

	keys, err := store.List("chat:turns:conv-a", "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"turn-1", "turn-2"}, keys)

	keys, err = store.List("chat:turns:conv-a", "turn-2")
	require.NoError(t, err)
	assert.Equal(t, []string{"turn-2"}, keys)
}
