package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backends returns a fresh instance of every KV implementation for
// round-trip testing.
func backends(t *testing.T) map[string]KV {
	t.Helper()

	file, err := NewFile(filepath.Join(t.TempDir(), "state"))
	require.NoError(t, err)

	sqlite, err := NewSQLite(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]KV{
		"memory": NewMemory(),
		"file":   file,
		"sqlite": sqlite,
	}
}

func TestKVRoundTrip(t *testing.T) {
	ctx := context.Background()

	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := kv.Load(ctx, KeyProgressSnapshot)
			assert.ErrorIs(t, err, ErrKeyNotFound, "missing key must report ErrKeyNotFound")

			require.NoError(t, kv.Save(ctx, KeyProgressSnapshot, []byte(`{"a":1}`)))

			data, err := kv.Load(ctx, KeyProgressSnapshot)
			require.NoError(t, err)
			assert.Equal(t, []byte(`{"a":1}`), data)

			// Overwrite replaces the previous blob.
			require.NoError(t, kv.Save(ctx, KeyProgressSnapshot, []byte(`{"a":2}`)))
			data, err = kv.Load(ctx, KeyProgressSnapshot)
			require.NoError(t, err)
			assert.Equal(t, []byte(`{"a":2}`), data)

			require.NoError(t, kv.Delete(ctx, KeyProgressSnapshot))
			_, err = kv.Load(ctx, KeyProgressSnapshot)
			assert.ErrorIs(t, err, ErrKeyNotFound)

			// Deleting a missing key is not an error.
			assert.NoError(t, kv.Delete(ctx, KeyProgressSnapshot))
		})
	}
}

func TestKVKeysAreIndependent(t *testing.T) {
	ctx := context.Background()

	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, kv.Save(ctx, KeyProgressSnapshot, []byte("snapshot")))
			require.NoError(t, kv.Save(ctx, KeyOutboxQueue, []byte("queue")))

			require.NoError(t, kv.Delete(ctx, KeyProgressSnapshot))

			data, err := kv.Load(ctx, KeyOutboxQueue)
			require.NoError(t, err)
			assert.Equal(t, []byte("queue"), data, "keys must be persisted independently")
		})
	}
}

func TestFileSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "state")

	first, err := NewFile(dir)
	require.NoError(t, err)
	require.NoError(t, first.Save(ctx, KeyOutboxQueue, []byte("pending")))

	second, err := NewFile(dir)
	require.NoError(t, err)
	data, err := second.Load(ctx, KeyOutboxQueue)
	require.NoError(t, err)
	assert.Equal(t, []byte("pending"), data, "a reopened store must see prior writes")
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	first, err := NewSQLite(path)
	require.NoError(t, err)
	require.NoError(t, first.Save(ctx, KeyOutboxQueue, []byte("pending")))
	require.NoError(t, first.Close())

	second, err := NewSQLite(path)
	require.NoError(t, err)
	defer func() { _ = second.Close() }()

	data, err := second.Load(ctx, KeyOutboxQueue)
	require.NoError(t, err)
	assert.Equal(t, []byte("pending"), data, "a reopened store must see prior writes")
}
