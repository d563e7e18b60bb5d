// Package pebble backs the database.DB contract with a cockroachdb/pebble
// store, the daemon's default engine.
package pebble

import (
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/openclear/auctiond/internal/storage/database"
)

// DB wraps one open pebble instance.
type DB struct {
	db *pebble.DB
}

// Open opens (or creates) a pebble database at path.
func Open(path string) (*DB, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	return &DB{db: db}, nil
}

func (p *DB) Read(ctx context.Context, key []byte) ([]byte, error) {
	if p.db == nil {
		return nil, database.ErrClosed
	}
	val, closer, err := p.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, database.ErrKeyNotFound
		}
		return nil, err
	}
	defer closer.Close()

	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (p *DB) Write(ctx context.Context, key, value []byte) error {
	if p.db == nil {
		return database.ErrClosed
	}
	return p.db.Set(key, value, pebble.Sync)
}

func (p *DB) Delete(ctx context.Context, key []byte) error {
	if p.db == nil {
		return database.ErrClosed
	}
	return p.db.Delete(key, pebble.Sync)
}

func (p *DB) Batch(ctx context.Context, ops []database.BatchOperation) error {
	if p.db == nil {
		return database.ErrClosed
	}
	batch := p.db.NewBatch()
	defer batch.Close()

	for _, op := range ops {
		var err error
		switch op.Type {
		case database.BatchPut:
			err = batch.Set(op.Key, op.Value, nil)
		case database.BatchDelete:
			err = batch.Delete(op.Key, nil)
		default:
			err = fmt.Errorf("unknown batch operation type %d", op.Type)
		}
		if err != nil {
			return err
		}
	}
	return batch.Commit(pebble.Sync)
}

func (p *DB) Iterator(ctx context.Context, start, end []byte) (database.Iterator, error) {
	if p.db == nil {
		return nil, database.ErrClosed
	}
	iter, err := p.db.NewIter(&pebble.IterOptions{LowerBound: start, UpperBound: end})
	if err != nil {
		return nil, err
	}
	return &iterator{iter: iter}, nil
}

func (p *DB) Close() error {
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	return err
}

type iterator struct {
	iter    *pebble.Iterator
	started bool
}

func (it *iterator) Next() bool {
	if !it.started {
		it.started = true
		return it.iter.First()
	}
	return it.iter.Next()
}

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
func (it *iterator) Close() error { return it.iter.Close() }
