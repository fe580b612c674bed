package database

import (
	"database/sql"
	"fmt"
)

// migrations contains all database migrations
var migrations = []struct {
	name string
	sql  string
}{
	{
		name: "initial_schema",
		sql: `
        -- Rules table, one row per rule in list order
        CREATE TABLE IF NOT EXISTS rules (
            id INTEGER PRIMARY KEY,
            position INTEGER NOT NULL,
            site TEXT NOT NULL,
            kind TEXT NOT NULL DEFAULT 'always',
            start_time TEXT NOT NULL DEFAULT '',
            end_time TEXT NOT NULL DEFAULT '',
            subpage_mode TEXT NOT NULL DEFAULT 'none',
            subpage_whitelist TEXT NOT NULL DEFAULT '[]',
            subpage_blacklist TEXT NOT NULL DEFAULT '[]',
            updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
        );

        -- Sync runs table
        CREATE TABLE IF NOT EXISTS sync_runs (
            id INTEGER PRIMARY KEY,
            pass_id TEXT NOT NULL,
            trigger_name TEXT NOT NULL,
            started_at TIMESTAMP NOT NULL,
            completed_at TIMESTAMP NOT NULL,
            rules_loaded INTEGER NOT NULL DEFAULT 0,
            directives_compiled INTEGER NOT NULL DEFAULT 0,
            replaced BOOLEAN NOT NULL DEFAULT 0,
            status TEXT NOT NULL,
            error_message TEXT NOT NULL DEFAULT ''
        );

        CREATE INDEX IF NOT EXISTS idx_rules_position ON rules(position);
        CREATE INDEX IF NOT EXISTS idx_sync_runs_started ON sync_runs(started_at);
        `,
	},
}

// MigrationRunner handles database migrations
type MigrationRunner struct {
	db *sql.DB
}

// NewMigrationRunner creates a new migration runner
func NewMigrationRunner(db *sql.DB) *MigrationRunner {
	return &MigrationRunner{db: db}
}

// Run applies all pending migrations in one transaction
func (m *MigrationRunner) Run() (err error) {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.Exec(`
        CREATE TABLE IF NOT EXISTS migrations (
            id INTEGER PRIMARY KEY,
            name TEXT NOT NULL UNIQUE,
            applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := appliedMigrations(tx)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if applied[migration.name] {
			continue
		}
		if _, err = tx.Exec(migration.sql); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.name, err)
		}
		if _, err = tx.Exec("INSERT INTO migrations (name) VALUES (?)", migration.name); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", migration.name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Applied returns the names of migrations already recorded
func (m *MigrationRunner) Applied() (map[string]bool, error) {
	tx, err := m.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	return appliedMigrations(tx)
}

func appliedMigrations(tx *sql.Tx) (map[string]bool, error) {
	rows, err := tx.Query("SELECT name FROM migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan migration: %w", err)
		}
		applied[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating migrations: %w", err)
	}
	return applied, nil
}
