package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/MahdiGraph/SiteSniper/internal/models"
)

// GormStore is the GORM implementation of RuleStore
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-based database store
func NewGormStore(dbPath string) (*GormStore, error) {
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	config := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(sqlite.Open(dbPath+"?_journal=WAL&_busy_timeout=5000"), config)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	store := &GormStore{db: db}
	if err := store.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// migrate runs auto-migration for all models
func (s *GormStore) migrate() error {
	return s.db.AutoMigrate(
		&RuleRecord{},
		&SyncRunRecord{},
	)
}

// Close closes the database connection
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// LoadRules reads the rule list in position order
func (s *GormStore) LoadRules(ctx context.Context) ([]models.Rule, error) {
	var records []RuleRecord
	if err := s.db.WithContext(ctx).Order("position ASC").Order("id ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}

	rules := make([]models.Rule, 0, len(records))
	for _, rec := range records {
		rules = append(rules, rec.toModel())
	}
	return rules, nil
}

// SaveRules replaces the stored rule list in one transaction
func (s *GormStore) SaveRules(ctx context.Context, rules []models.Rule) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&RuleRecord{}).Error; err != nil {
			return fmt.Errorf("failed to clear rules: %w", err)
		}
		if len(rules) == 0 {
			return nil
		}

		records := make([]RuleRecord, 0, len(rules))
		for i, r := range rules {
			records = append(records, newRuleRecord(i, r))
		}
		if err := tx.Create(&records).Error; err != nil {
			return fmt.Errorf("failed to insert rules: %w", err)
		}
		return nil
	})
}

// RecordSync stores a finished pass
func (s *GormStore) RecordSync(ctx context.Context, run *models.SyncRun) error {
	rec := SyncRunRecord{
		PassID:             run.PassID,
		Trigger:            run.Trigger,
		StartedAt:          run.StartedAt,
		CompletedAt:        run.CompletedAt,
		RulesLoaded:        run.RulesLoaded,
		DirectivesCompiled: run.DirectivesCompiled,
		Replaced:           run.Replaced,
		Status:             run.Status,
		ErrorMessage:       run.ErrorMessage,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to record sync run: %w", err)
	}
	run.ID = int64(rec.ID)
	return nil
}

// LastSync returns the most recent pass
func (s *GormStore) LastSync(ctx context.Context) (*models.SyncRun, error) {
	runs, err := s.RecentSyncs(ctx, 1)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return &runs[0], nil
}

// RecentSyncs returns up to limit passes, newest first
func (s *GormStore) RecentSyncs(ctx context.Context, limit int) ([]models.SyncRun, error) {
	if limit <= 0 {
		limit = 10
	}
	var records []SyncRunRecord
	if err := s.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}

	runs := make([]models.SyncRun, 0, len(records))
	for _, rec := range records {
		runs = append(runs, rec.toModel())
	}
	return runs, nil
}
