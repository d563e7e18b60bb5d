package pebble

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/openclear/auctiond/internal/storage/database"
)

// Manager hands out named pebble databases under a shared root directory
// and closes them together on shutdown.
type Manager struct {
	mu   sync.Mutex
	path string
	dbs  map[string]*DB
}

func NewManager(path string) *Manager {
	return &Manager{
		path: path,
		dbs:  make(map[string]*DB),
	}
}

// Get returns the database with the given name, opening it on first use.
func (m *Manager) Get(name string) (database.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if db, ok := m.dbs[name]; ok {
		return db, nil
	}
	db, err := Open(filepath.Join(m.path, name+".db"))
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", name, err)
	}
	m.dbs[name] = db
	return db, nil
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for name, db := range m.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close database %q: %w", name, err)
		}
		delete(m.dbs, name)
	}
	return firstErr
}
