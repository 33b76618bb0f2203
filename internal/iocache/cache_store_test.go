package iocache

import (
	"testing"

	"github.com/smittestopp/smittestoppbackend/internal/contract"
	"github.com/smittestopp/smittestoppbackend/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCacheStoreSQLite tests the cache round trip against an in-memory
// SQLite database.
func TestCacheStoreSQLite(t *testing.T) {
	store, err := NewCacheStore(schema.SQLiteBackend, ":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	t.Run("miss before set", func(t *testing.T) {
		_, _, _, err := store.Get("absent")
		assert.ErrorIs(t, err, contract.ErrCacheMiss)
	})

	t.Run("set and get", func(t *testing.T) {
		require.NoError(t, store.Set("key-1", []byte("payload"), 1, 1000))
		value, version, ts, err := store.Get("key-1")
		require.NoError(t, err)
		assert.Equal(t, []byte("payload"), value)
		assert.Equal(t, 1, version)
		assert.Equal(t, int64(1000), ts)
	})

	t.Run("set overwrites", func(t *testing.T) {
		require.NoError(t, store.Set("key-1", []byte("updated"), 2, 2000))
		value, version, ts, err := store.Get("key-1")
		require.NoError(t, err)
		assert.Equal(t, []byte("updated"), value)
		assert.Equal(t, 2, version)
		assert.Equal(t, int64(2000), ts)
	})

	t.Run("status counts entries", func(t *testing.T) {
		require.NoError(t, store.Set("key-2", []byte("more"), 1, 500))
		status, err := store.GetStatus()
		require.NoError(t, err)
		assert.Equal(t, schema.SQLiteBackend, status.Backend)
		assert.Equal(t, int64(2), status.Entries)
		assert.Equal(t, int64(500), status.OldestSet)
	})

	t.Run("clear empties the cache", func(t *testing.T) {
		require.NoError(t, store.Clear())
		_, _, _, err := store.Get("key-1")
		assert.ErrorIs(t, err, contract.ErrCacheMiss)
		status, err := store.GetStatus()
		require.NoError(t, err)
		assert.Zero(t, status.Entries)
	})
}

// TestCacheStoreNoneBackend tests the always-miss store.
func TestCacheStoreNoneBackend(t *testing.T) {
	store, err := NewCacheStore(schema.NoneBackend, "")
	require.NoError(t, err)

	_, _, _, err = store.Get("anything")
	assert.ErrorIs(t, err, contract.ErrCacheMiss)

	assert.NoError(t, store.Set("anything", []byte("x"), 1, 0))
	assert.NoError(t, store.Clear())

	status, err := store.GetStatus()
	require.NoError(t, err)
	assert.Equal(t, schema.NoneBackend, status.Backend)
	assert.Zero(t, status.Entries)

	assert.NoError(t, store.Close())
}

// TestCacheStoreUnsupportedBackend tests backend validation.
func TestCacheStoreUnsupportedBackend(t *testing.T) {
	_, err := NewCacheStore(schema.DatabaseBackend("oracle"), "")
	assert.ErrorIs(t, err, contract.ErrUnsupportedBackend)
}

// TestManager tests that the manager wires both stores.
func TestManager(t *testing.T) {
	manager, err := NewManager(schema.NoneBackend, "")
	require.NoError(t, err)

	require.NotNil(t, manager.GetFeatureStore())
	require.NotNil(t, manager.GetRunStore())

	_, _, _, err = manager.GetFeatureStore().Get("anything")
	assert.ErrorIs(t, err, contract.ErrCacheMiss)

	assert.NoError(t, manager.Close())
}
