package filestore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/agentd/internal/history"
)

func TestLocalRoundTrip(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	h := history.New()
	require.NoError(t, h.AddUserPrompt("hello"))
	snapshot, err := h.MarshalJSON()
	require.NoError(t, err)

	require.NoError(t, store.Save("sess-1", snapshot))

	got, err := store.Load("sess-1")
	require.NoError(t, err)
	assert.Equal(t, snapshot, got)

	restored := history.New()
	require.NoError(t, restored.UnmarshalJSON(got))
	assert.Equal(t, 1, restored.Len())
}

func TestLocalSaveOverwrites(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Save("sess-1", []byte("one")))
	require.NoError(t, store.Save("sess-1", []byte("two")))

	got, err := store.Load("sess-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), got)
}

func TestLocalMissing(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load("no-such-session")
	assert.ErrorIs(t, err, ErrNotFound)

	// Delete of a missing snapshot is not an error.
	assert.NoError(t, store.Delete("no-such-session"))
}

func TestLocalRejectsTraversal(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocal(root)
	require.NoError(t, err)

	require.NoError(t, store.Save("../escape", []byte("x")))
	// Separators are flattened, so the file stays inside the root.
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Join(root, entries[0].Name()), filepath.Join(root, ".._escape.json"))
}

func TestMemoryRoundTrip(t *testing.T) {
	store := NewMemory()

	require.NoError(t, store.Save("s", []byte("blob")))
	got, err := store.Load("s")
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), got)

	// The stored copy is isolated from caller mutation.
	got[0] = 'x'
	again, err := store.Load("s")
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), again)

	require.NoError(t, store.Delete("s"))
	_, err = store.Load("s")
	assert.True(t, errors.Is(err, ErrNotFound))
}
