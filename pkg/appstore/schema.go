package appstore

import (
	"context"
	"database/sql"
	"fmt"
)

const SchemaVersion = 1

// Migrate creates (or upgrades) the schema in-place.
func Migrate(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("db is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schema_meta (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			schema_version INTEGER NOT NULL
		);`,
		`INSERT INTO schema_meta (id, schema_version)
			VALUES (1, 0)
			ON CONFLICT(id) DO NOTHING;`,

		// fields holds application.Fields as JSON; the other columns are
		// copies for filtering and ordering.
		`CREATE TABLE IF NOT EXISTS applications (
			id TEXT PRIMARY KEY,
			job_name TEXT,
			job_type INTEGER NOT NULL,
			execution_mode INTEGER NOT NULL,
			state INTEGER NOT NULL,
			tracking INTEGER NOT NULL,
			fields TEXT NOT NULL,
			create_time TEXT,
			modify_time TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_applications_state ON applications(state);`,
		`CREATE INDEX IF NOT EXISTS idx_applications_tracking ON applications(tracking);`,

		`CREATE TABLE IF NOT EXISTS state_transitions (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			app_id TEXT NOT NULL,
			run_id TEXT,
			from_state INTEGER NOT NULL,
			to_state INTEGER NOT NULL,
			action TEXT,
			occurred_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_state_transitions_app ON state_transitions(app_id, seq);`,
	}

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w", err)
		}
	}

	var current int
	if err := tx.QueryRowContext(ctx, `SELECT schema_version FROM schema_meta WHERE id=1`).Scan(&current); err != nil {
		return fmt.Errorf("read schema_version: %w", err)
	}
	if current != SchemaVersion {
		if _, err := tx.ExecContext(ctx, `UPDATE schema_meta SET schema_version=? WHERE id=1`, SchemaVersion); err != nil {
			return fmt.Errorf("update schema_version: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
