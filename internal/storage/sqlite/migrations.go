package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// migrate runs database migrations
func (s *SQLiteDB) migrate() error {
	ctx := context.Background()

	// Create migrations table
	if err := s.createMigrationsTable(ctx); err != nil {
		return err
	}

	// Run migrations
	migrations := []migration{
		{version: 1, name: "initial_schema", up: migrateV1},
		{version: 2, name: "item_result_columns", up: migrateV2},
	}

	for _, m := range migrations {
		if err := s.runMigration(ctx, m); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
		}
	}

	return nil
}

type migration struct {
	version int
	name    string
	up      func(context.Context, *sql.Tx) error
}

func (s *SQLiteDB) createMigrationsTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at INTEGER NOT NULL
	)`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

func (s *SQLiteDB) runMigration(ctx context.Context, m migration) error {
	// Check if migration already applied
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.version).Scan(&count)
	if err != nil {
		return err
	}

	if count > 0 {
		return nil // Already applied
	}

	// Start transaction
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Run migration
	if err := m.up(ctx, tx); err != nil {
		return err
	}

	// Record migration
	_, err = tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, strftime('%s', 'now'))",
		m.version, m.name)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// migrateV1 creates the job and item tables
func migrateV1(ctx context.Context, tx *sql.Tx) error {
	queries := []string{
		// Research jobs: the durable aggregate for a batch
		`CREATE TABLE IF NOT EXISTS research_jobs (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			total_prospects INTEGER NOT NULL DEFAULT 0,
			completed_count INTEGER NOT NULL DEFAULT 0,
			failed_count INTEGER NOT NULL DEFAULT 0,
			skipped_count INTEGER NOT NULL DEFAULT 0,
			settings_json TEXT,
			created_at INTEGER DEFAULT (strftime('%s', 'now')),
			started_at INTEGER,
			completed_at INTEGER
		)`,

		// Research items: one row per prospect, the unit of claim and retry
		`CREATE TABLE IF NOT EXISTS research_items (
			id TEXT PRIMARY KEY,
			job_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			item_index INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			input_json TEXT,
			prospect_name TEXT NOT NULL DEFAULT '',
			prospect_company TEXT,
			prospect_address TEXT,
			prospect_city TEXT,
			prospect_state TEXT,
			prospect_zip TEXT,
			retry_count INTEGER NOT NULL DEFAULT 0,
			processing_started_at INTEGER,
			processing_completed_at INTEGER,
			processing_duration_ms INTEGER,
			error_message TEXT,
			last_retry_at INTEGER,
			created_at INTEGER DEFAULT (strftime('%s', 'now')),
			FOREIGN KEY (job_id) REFERENCES research_jobs(id) ON DELETE CASCADE,
			UNIQUE(job_id, item_index)
		)`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_jobs_user ON research_jobs(user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_status ON research_jobs(status)`,
		`CREATE INDEX IF NOT EXISTS idx_items_job_status ON research_items(job_id, status, item_index)`,
		`CREATE INDEX IF NOT EXISTS idx_items_started ON research_items(job_id, processing_started_at)`,
	}

	for _, query := range queries {
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w\nQuery: %s", err, query)
		}
	}

	return nil
}

// migrateV2 adds denormalized result columns so listings and stats can read
// score and tier without parsing result_json
func migrateV2(ctx context.Context, tx *sql.Tx) error {
	queries := []string{
		`ALTER TABLE research_items ADD COLUMN result_json TEXT`,
		`ALTER TABLE research_items ADD COLUMN score REAL`,
		`ALTER TABLE research_items ADD COLUMN tier TEXT`,
		`ALTER TABLE research_items ADD COLUMN verified INTEGER DEFAULT 0`,
		`CREATE INDEX IF NOT EXISTS idx_items_tier ON research_items(job_id, tier) WHERE tier IS NOT NULL`,
	}

	for _, query := range queries {
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w\nQuery: %s", err, query)
		}
	}

	return nil
}
