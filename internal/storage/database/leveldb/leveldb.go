// Package leveldb backs the database.DB contract with goleveldb, kept as an
// alternative engine for deployments that cannot take the pebble dependency.
package leveldb

import (
	"context"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/openclear/auctiond/internal/storage/database"
)

var syncWrite = &opt.WriteOptions{Sync: true}

type DB struct {
	db *leveldb.DB
}

// Open opens (or creates) a leveldb database at path.
func Open(path string) (*DB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb at %s: %w", path, err)
	}
	return &DB{db: db}, nil
}

func (l *DB) Read(ctx context.Context, key []byte) ([]byte, error) {
	if l.db == nil {
		return nil, database.ErrClosed
	}
	val, err := l.db.Get(key, nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, database.ErrKeyNotFound
		}
		return nil, err
	}
	return val, nil
}

func (l *DB) Write(ctx context.Context, key, value []byte) error {
	if l.db == nil {
		return database.ErrClosed
	}
	return l.db.Put(key, value, syncWrite)
}

func (l *DB) Delete(ctx context.Context, key []byte) error {
	if l.db == nil {
		return database.ErrClosed
	}
	return l.db.Delete(key, syncWrite)
}

func (l *DB) Batch(ctx context.Context, ops []database.BatchOperation) error {
	if l.db == nil {
		return database.ErrClosed
	}
	batch := new(leveldb.Batch)
	for _, op := range ops {
		switch op.Type {
		case database.BatchPut:
			batch.Put(op.Key, op.Value)
		case database.BatchDelete:
			batch.Delete(op.Key)
		default:
			return fmt.Errorf("unknown batch operation type %d", op.Type)
		}
	}
	return l.db.Write(batch, syncWrite)
}

func (l *DB) Iterator(ctx context.Context, start, end []byte) (database.Iterator, error) {
	if l.db == nil {
		return nil, database.ErrClosed
	}
	iter := l.db.NewIterator(&util.Range{Start: start, Limit: end}, nil)
	return &iterator{iter: iter}, nil
}

func (l *DB) Close() error {
	if l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	return err
}

type iterator struct {
	iter goleveldbIterator
}

// goleveldbIterator is the subset of goleveldb's iterator the wrapper needs.
type goleveldbIterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Error() error
	Release()
}

func (it *iterator) Next() bool { return it.iter.Next() }

func (it *iterator) Key() []byte {
	k := it.iter.Key()
	out := make([]byte, len(k))
	copy(out, k)
	return out
}

func (it *iterator) Value() []byte {
	v := it.iter.Value()
	out := make([]byte, len(v))
	copy(out, v)
	return out
}

func (it *iterator) Error() error { return it.iter.Error() }

func (it *iterator) Close() error {
	it.iter.Release()
	return it.iter.Error()
}
