package pebble

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclear/auctiond/internal/storage/database"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestReadWriteDelete(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.Read(ctx, []byte("missing"))
	assert.ErrorIs(t, err, database.ErrKeyNotFound)

	require.NoError(t, db.Write(ctx, []byte("k"), []byte("v")))
	got, err := db.Read(ctx, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, db.Delete(ctx, []byte("k")))
	_, err = db.Read(ctx, []byte("k"))
	assert.ErrorIs(t, err, database.ErrKeyNotFound)
}

func TestBatch(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Write(ctx, []byte("old"), []byte("1")))
	require.NoError(t, db.Batch(ctx, []database.BatchOperation{
		{Type: database.BatchPut, Key: []byte("a"), Value: []byte("1")},
		{Type: database.BatchPut, Key: []byte("b"), Value: []byte("2")},
		{Type: database.BatchDelete, Key: []byte("old")},
	}))

	got, err := db.Read(ctx, []byte("b"))
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), got)
	_, err = db.Read(ctx, []byte("old"))
	assert.ErrorIs(t, err, database.ErrKeyNotFound)
}

func TestIterator(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for _, k := range []string{"lot/1", "lot/2", "bid/1"} {
		require.NoError(t, db.Write(ctx, []byte(k), []byte(k)))
	}

	it, err := db.Iterator(ctx, []byte("lot/"), database.PrefixEnd([]byte("lot/")))
	require.NoError(t, err)
	defer it.Close()

	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	require.NoError(t, it.Error())
	assert.Equal(t, []string{"lot/1", "lot/2"}, keys)
}

func TestClosed(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	ctx := context.Background()
	_, err = db.Read(ctx, []byte("k"))
	assert.ErrorIs(t, err, database.ErrClosed)
	assert.ErrorIs(t, db.Write(ctx, []byte("k"), []byte("v")), database.ErrClosed)
}

func TestManager(t *testing.T) {
	mgr := NewManager(t.TempDir())

	a, err := mgr.Get("lots")
	require.NoError(t, err)
	b, err := mgr.Get("lots")
	require.NoError(t, err)
	assert.Same(t, a, b)

	c, err := mgr.Get("other")
	require.NoError(t, err)
	assert.NotSame(t, a, c)

	require.NoError(t, mgr.Close())
}
