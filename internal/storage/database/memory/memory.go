// Package memory is an in-process database.DB used by tests and by the
// server's ephemeral mode.
package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/openclear/auctiond/internal/storage/database"
)

type DB struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

func New() *DB {
	return &DB{data: make(map[string][]byte)}
}

func (m *DB) Read(ctx context.Context, key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, database.ErrClosed
	}
	val, ok := m.data[string(key)]
	if !ok {
		return nil, database.ErrKeyNotFound
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (m *DB) Write(ctx context.Context, key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return database.ErrClosed
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	m.data[string(key)] = stored
	return nil
}

func (m *DB) Delete(ctx context.Context, key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return database.ErrClosed
	}
	delete(m.data, string(key))
	return nil
}

func (m *DB) Batch(ctx context.Context, ops []database.BatchOperation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return database.ErrClosed
	}
	for _, op := range ops {
		switch op.Type {
		case database.BatchPut:
			stored := make([]byte, len(op.Value))
			copy(stored, op.Value)
			m.data[string(op.Key)] = stored
		case database.BatchDelete:
			delete(m.data, string(op.Key))
		}
	}
	return nil
}

func (m *DB) Iterator(ctx context.Context, start, end []byte) (database.Iterator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, database.ErrClosed
	}

	var keys []string
	for k := range m.data {
		kb := []byte(k)
		if start != nil && bytes.Compare(kb, start) < 0 {
			continue
		}
		if end != nil && bytes.Compare(kb, end) >= 0 {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	it := &iterator{idx: -1}
	for _, k := range keys {
		val := make([]byte, len(m.data[k]))
		copy(val, m.data[k])
		it.keys = append(it.keys, []byte(k))
		it.values = append(it.values, val)
	}
	return it, nil
}

func (m *DB) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.data = nil
	return nil
}

type iterator struct {
	keys   [][]byte
	values [][]byte
	idx    int
}

func (it *iterator) Next() bool {
	it.idx++
	return it.idx < len(it.keys)
}

func (it *iterator) Key() []byte   { return it.keys[it.idx] }
func (it *iterator) Value() []byte { return it.values[it.idx] }
func (it *iterator) Error() error  { return nil }
func (it *iterator) Close() error  { return nil }
