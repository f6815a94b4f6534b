package kvstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()

	file, err := NewFile(filepath.Join(t.TempDir(), "kv"))
	require.NoError(t, err)

	bdb, err := OpenBadger(BadgerConfig{InMemory: true})
	require.NoError(t, err)

	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)

	stores := map[string]Store{
		"memory": NewMemory(),
		"file":   file,
		"badger": bdb,
		"sqlite": sqlite,
	}
	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})
	return stores
}

func TestStores_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(ctx, "offline_queue")
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Set(ctx, "offline_queue", []byte(`[1]`)))
			require.NoError(t, s.Set(ctx, "offline_queue", []byte(`[1,2]`)))

			got, err := s.Get(ctx, "offline_queue")
			require.NoError(t, err)
			assert.Equal(t, `[1,2]`, string(got))

			require.NoError(t, s.Delete(ctx, "offline_queue"))
			require.NoError(t, s.Delete(ctx, "offline_queue"))
			_, err = s.Get(ctx, "offline_queue")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestPersistentStoresSurviveReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	for _, backend := range []string{BackendBadger, BackendSQLite, BackendFile} {
		t.Run(backend, func(t *testing.T) {
			s, err := Open(backend, filepath.Join(dir, backend), nil)
			require.NoError(t, err)
			require.NoError(t, s.Set(ctx, "k", []byte("v")))
			require.NoError(t, s.Close())

			reopened, err := Open(backend, filepath.Join(dir, backend), nil)
			require.NoError(t, err)
			defer reopened.Close()

			got, err := reopened.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, "v", string(got))
		})
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open("etcd", t.TempDir(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store backend")
}

func TestFile_EscapesKeys(t *testing.T) {
	s, err := NewFile(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "../escape/attempt", []byte("x")))
	got, err := s.Get(ctx, "../escape/attempt")
	require.NoError(t, err)
	assert.Equal(t, "x", string(got))
}
