package database

import (
	"context"
	"errors"

	"github.com/MahdiGraph/SiteSniper/internal/models"
)

// ErrClosed is returned by stores after Close
var ErrClosed = errors.New("database is closed")

// RuleStore is the persistence collaborator for the rule list and the
// history of reconciliation passes
type RuleStore interface {
	// LoadRules returns the full rule list in list order
	LoadRules(ctx context.Context) ([]models.Rule, error)
	// SaveRules replaces the stored rule list
	SaveRules(ctx context.Context, rules []models.Rule) error

	// RecordSync stores a finished pass and assigns its ID
	RecordSync(ctx context.Context, run *models.SyncRun) error
	// LastSync returns the most recent pass, or nil if none was recorded
	LastSync(ctx context.Context) (*models.SyncRun, error)
	// RecentSyncs returns up to limit passes, newest first
	RecentSyncs(ctx context.Context, limit int) ([]models.SyncRun, error)

	Close() error
}
