// Package database defines the key-value contract the auction house's
// persistence layer is written against. Backends (pebble, leveldb, memory)
// implement it behind a common Manager so the daemon can switch engines by
// configuration.
package database

import (
	"context"
	"errors"
)

var (
	// ErrClosed is returned when operating on a closed database.
	ErrClosed = errors.New("database is closed")

	// ErrKeyNotFound is returned when a key does not exist.
	ErrKeyNotFound = errors.New("key not found")
)

// DB is the operation set every backend must support.
type DB interface {
	Read(ctx context.Context, key []byte) ([]byte, error)
	Write(ctx context.Context, key, value []byte) error
	Delete(ctx context.Context, key []byte) error

	// Batch applies all operations atomically.
	Batch(ctx context.Context, ops []BatchOperation) error

	// Iterator traverses keys in [start, end). A nil start begins at the
	// first key; a nil end runs to the last.
	Iterator(ctx context.Context, start, end []byte) (Iterator, error)

	Close() error
}

// Iterator walks database entries in key order.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Error() error
	Close() error
}

// BatchOperation is a single put or delete inside a batch.
type BatchOperation struct {
	Type  BatchOpType
	Key   []byte
	Value []byte
}

type BatchOpType int

const (
	BatchPut BatchOpType = iota
	BatchDelete
)

// PrefixEnd returns the smallest key greater than every key with the given
// prefix, for use as an iterator upper bound. Nil means the prefix covers
// the whole keyspace tail.
func PrefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] != 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
