package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/MahdiGraph/SiteSniper/internal/models"
)

// Store is the database/sql implementation of RuleStore
type Store struct {
	db       *sql.DB
	migrator *MigrationRunner
}

// NewStore creates a new database store
func NewStore(dbPath string) (*Store, error) {
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer
	db.SetMaxOpenConns(1)

	store := &Store{
		db:       db,
		migrator: NewMigrationRunner(db),
	}

	if err := store.migrator.Run(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// LoadRules reads the rule list in position order
func (s *Store) LoadRules(ctx context.Context) ([]models.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, site, kind, start_time, end_time, subpage_mode, subpage_whitelist, subpage_blacklist
        FROM rules ORDER BY position ASC, id ASC
    `)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	rules := []models.Rule{}
	for rows.Next() {
		var (
			r                    models.Rule
			kind, mode           string
			whitelist, blacklist string
		)
		if err := rows.Scan(&r.ID, &r.Site, &kind, &r.StartTime, &r.EndTime, &mode, &whitelist, &blacklist); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		r.Kind = models.RuleKind(kind)
		r.SubpageMode = models.SubpageMode(mode)
		if r.SubpageWhitelist, err = decodeList(whitelist); err != nil {
			return nil, fmt.Errorf("rule %d whitelist: %w", r.ID, err)
		}
		if r.SubpageBlacklist, err = decodeList(blacklist); err != nil {
			return nil, fmt.Errorf("rule %d blacklist: %w", r.ID, err)
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return rules, nil
}

// SaveRules replaces the stored rule list in one transaction
func (s *Store) SaveRules(ctx context.Context, rules []models.Rule) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM rules"); err != nil {
		return fmt.Errorf("failed to clear rules: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO rules (position, site, kind, start_time, end_time, subpage_mode, subpage_whitelist, subpage_blacklist, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
    `)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for i, r := range rules {
		whitelist, blacklist := encodeList(r.SubpageWhitelist), encodeList(r.SubpageBlacklist)
		if _, err = stmt.ExecContext(ctx, i, r.Site, string(r.Kind), r.StartTime, r.EndTime, string(r.SubpageMode), whitelist, blacklist, now); err != nil {
			return fmt.Errorf("failed to insert rule %q: %w", r.Site, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rules: %w", err)
	}
	return nil
}

// RecordSync stores a finished pass
func (s *Store) RecordSync(ctx context.Context, run *models.SyncRun) error {
	result, err := s.db.ExecContext(ctx, `
        INSERT INTO sync_runs (pass_id, trigger_name, started_at, completed_at, rules_loaded, directives_compiled, replaced, status, error_message)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, run.PassID, run.Trigger, run.StartedAt, run.CompletedAt, run.RulesLoaded, run.DirectivesCompiled, run.Replaced, run.Status, run.ErrorMessage)
	if err != nil {
		return fmt.Errorf("failed to record sync run: %w", err)
	}
	run.ID, err = result.LastInsertId()
	return err
}

// LastSync returns the most recent pass
func (s *Store) LastSync(ctx context.Context) (*models.SyncRun, error) {
	runs, err := s.RecentSyncs(ctx, 1)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return &runs[0], nil
}

// RecentSyncs returns up to limit passes, newest first
func (s *Store) RecentSyncs(ctx context.Context, limit int) ([]models.SyncRun, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, pass_id, trigger_name, started_at, completed_at, rules_loaded, directives_compiled, replaced, status, error_message
        FROM sync_runs ORDER BY id DESC LIMIT ?
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer rows.Close()

	var runs []models.SyncRun
	for rows.Next() {
		var run models.SyncRun
		if err := rows.Scan(&run.ID, &run.PassID, &run.Trigger, &run.StartedAt, &run.CompletedAt,
			&run.RulesLoaded, &run.DirectivesCompiled, &run.Replaced, &run.Status, &run.ErrorMessage); err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// HasSchema reports whether the file at dbPath was created by Store
func HasSchema(dbPath string) bool {
	if !fileExists(dbPath) {
		return false
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return false
	}
	defer db.Close()

	var name string
	err = db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'migrations'").Scan(&name)
	return err == nil
}

func encodeList(list []string) string {
	if list == nil {
		list = []string{}
	}
	b, _ := json.Marshal(list)
	return string(b)
}

func decodeList(s string) ([]string, error) {
	list := []string{}
	if s == "" {
		return list, nil
	}
	if err := json.Unmarshal([]byte(s), &list); err != nil {
		return nil, err
	}
	return list, nil
}
