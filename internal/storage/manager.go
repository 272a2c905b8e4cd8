// Package storage wires the relational job/item store and the key/value
// store behind the StorageManager interface.
package storage

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/common"
	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/storage/badger"
	"github.com/ternarybob/prospector/internal/storage/sqlite"
	"github.com/timshannon/badgerhold/v4"
)

// Manager implements the StorageManager interface
type Manager struct {
	sqliteDB *sqlite.SQLiteDB
	badgerDB *badger.BadgerDB
	job      interfaces.JobStorage
	item     interfaces.ItemStorage
	kv       interfaces.KeyValueStorage
	logger   arbor.ILogger
}

// NewManager opens both storage backends and constructs the typed stores
func NewManager(logger arbor.ILogger, config *common.StorageConfig) (*Manager, error) {
	sqliteDB, err := sqlite.NewSQLiteDB(logger, &config.SQLite)
	if err != nil {
		return nil, err
	}

	badgerDB, err := badger.NewBadgerDB(logger, &config.Badger)
	if err != nil {
		sqliteDB.Close()
		return nil, err
	}

	return &Manager{
		sqliteDB: sqliteDB,
		badgerDB: badgerDB,
		job:      sqlite.NewJobStorage(sqliteDB, logger),
		item:     sqlite.NewItemStorage(sqliteDB, logger),
		kv:       badger.NewKVStorage(badgerDB, logger),
		logger:   logger,
	}, nil
}

// JobStorage returns the job storage interface
func (m *Manager) JobStorage() interfaces.JobStorage {
	return m.job
}

// ItemStorage returns the item storage interface
func (m *Manager) ItemStorage() interfaces.ItemStorage {
	return m.item
}

// KeyValueStorage returns the key/value storage interface
func (m *Manager) KeyValueStorage() interfaces.KeyValueStorage {
	return m.kv
}

// BadgerStore exposes the underlying badgerhold store for components that
// persist their own record types (the research source cache).
func (m *Manager) BadgerStore() *badgerhold.Store {
	return m.badgerDB.Store()
}

// Close closes both backends
func (m *Manager) Close() error {
	var firstErr error
	if m.badgerDB != nil {
		if err := m.badgerDB.Close(); err != nil {
			firstErr = err
		}
	}
	if m.sqliteDB != nil {
		if err := m.sqliteDB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
