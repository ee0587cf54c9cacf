package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Storage {
	t.Helper()

	file, err := NewFileStorage(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)

	db, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return map[string]Storage{
		"file":   file,
		"sqlite": db,
		"memory": NewMemoryStorage(),
	}
}

func TestStorageRoundTrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(KeyConversations)
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Set(KeyConversations, []byte(`[1,2]`)))
			got, err := s.Get(KeyConversations)
			require.NoError(t, err)
			assert.Equal(t, `[1,2]`, string(got))

			require.NoError(t, s.Set(KeyConversations, []byte(`[3]`)))
			got, err = s.Get(KeyConversations)
			require.NoError(t, err)
			assert.Equal(t, `[3]`, string(got))

			require.NoError(t, s.Delete(KeyConversations))
			_, err = s.Get(KeyConversations)
			require.ErrorIs(t, err, ErrNotFound)

			// deleting twice is fine
			require.NoError(t, s.Delete(KeyConversations))
		})
	}
}

func TestStorageRejectsInvalidKeys(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, s.Set("../escape", []byte("x")))
			_, err := s.Get("")
			assert.Error(t, err)
			assert.Error(t, s.Delete("a/b"))
		})
	}
}

func TestJSONHelpers(t *testing.T) {
	s := NewMemoryStorage()
	require.NoError(t, SetJSON(s, KeySpeechLanguage, "hi-IN"))

	var lang string
	require.NoError(t, GetJSON(s, KeySpeechLanguage, &lang))
	assert.Equal(t, "hi-IN", lang)

	require.NoError(t, s.Set(KeyAuthToken, []byte("{not json")))
	var token string
	assert.ErrorContains(t, GetJSON(s, KeyAuthToken, &token), "failed to parse auth-token")
}

func TestFileStorageLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStorage(dir)
	require.NoError(t, err)
	require.NoError(t, s.Set(KeyActiveConversation, []byte(`"abc"`)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "active-conversation.json", entries[0].Name())
}

func TestSQLiteStoragePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(KeyAuthToken, []byte(`"tok"`)))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStorage(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get(KeyAuthToken)
	require.NoError(t, err)
	assert.Equal(t, `"tok"`, string(got))
}
