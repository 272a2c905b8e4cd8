package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/common"
	_ "modernc.org/sqlite"
)

// SQLiteDB manages the SQLite database connection
type SQLiteDB struct {
	db     *sql.DB
	logger arbor.ILogger
	config *common.SQLiteConfig
}

// NewSQLiteDB creates a new SQLite database connection
func NewSQLiteDB(logger arbor.ILogger, config *common.SQLiteConfig) (*SQLiteDB, error) {
	// Ensure the directory exists
	dir := filepath.Dir(config.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Open database connection
	// modernc.org/sqlite uses "sqlite" driver name (not "sqlite3").
	// Pragmas ride in the DSN because they are per-connection; applying
	// them with Exec would configure only one connection in the pool.
	db, err := sql.Open("sqlite", config.Path+"?"+dsnPragmas(config))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLiteDB{
		db:     db,
		logger: logger,
		config: config,
	}

	// Run migrations
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info().Str("path", config.Path).Msg("SQLite database initialized")
	return s, nil
}

// dsnPragmas builds the per-connection pragma query string
func dsnPragmas(config *common.SQLiteConfig) string {
	pragmas := []string{
		fmt.Sprintf("_pragma=cache_size(-%d)", config.CacheSizeMB*1024), // Negative for KB
		fmt.Sprintf("_pragma=busy_timeout(%d)", config.BusyTimeoutMS),
		"_pragma=foreign_keys(1)", // Item rows cascade-delete with their job
		"_pragma=synchronous(NORMAL)",
	}

	if config.WALMode {
		pragmas = append(pragmas, "_pragma=journal_mode(WAL)")
	}

	return strings.Join(pragmas, "&")
}

// DB returns the underlying database connection
func (s *SQLiteDB) DB() *sql.DB {
	return s.db
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// BeginTx starts a new transaction
func (s *SQLiteDB) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}

// Ping verifies the database connection
func (s *SQLiteDB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
