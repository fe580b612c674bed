package database

import (
	"time"

	"github.com/MahdiGraph/SiteSniper/internal/models"
)

// RuleRecord is the GORM row of one rule
type RuleRecord struct {
	ID               uint     `gorm:"primaryKey"`
	Position         int      `gorm:"index;not null"`
	Site             string   `gorm:"not null"`
	Kind             string   `gorm:"not null;default:'always'"`
	StartTime        string   `gorm:"not null;default:''"`
	EndTime          string   `gorm:"not null;default:''"`
	SubpageMode      string   `gorm:"not null;default:'none'"`
	SubpageWhitelist []string `gorm:"serializer:json;not null"`
	SubpageBlacklist []string `gorm:"serializer:json;not null"`
	UpdatedAt        time.Time
}

// TableName shares the table with Store
func (RuleRecord) TableName() string { return "rules" }

func newRuleRecord(position int, r models.Rule) RuleRecord {
	whitelist, blacklist := r.SubpageWhitelist, r.SubpageBlacklist
	if whitelist == nil {
		whitelist = []string{}
	}
	if blacklist == nil {
		blacklist = []string{}
	}
	return RuleRecord{
		Position:         position,
		Site:             r.Site,
		Kind:             string(r.Kind),
		StartTime:        r.StartTime,
		EndTime:          r.EndTime,
		SubpageMode:      string(r.SubpageMode),
		SubpageWhitelist: whitelist,
		SubpageBlacklist: blacklist,
	}
}

func (rec RuleRecord) toModel() models.Rule {
	r := models.Rule{
		ID:               int64(rec.ID),
		Site:             rec.Site,
		Kind:             models.RuleKind(rec.Kind),
		StartTime:        rec.StartTime,
		EndTime:          rec.EndTime,
		SubpageMode:      models.SubpageMode(rec.SubpageMode),
		SubpageWhitelist: rec.SubpageWhitelist,
		SubpageBlacklist: rec.SubpageBlacklist,
	}
	if r.SubpageWhitelist == nil {
		r.SubpageWhitelist = []string{}
	}
	if r.SubpageBlacklist == nil {
		r.SubpageBlacklist = []string{}
	}
	return r
}

// SyncRunRecord is the GORM row of one reconciliation pass
type SyncRunRecord struct {
	ID                 uint      `gorm:"primaryKey"`
	PassID             string    `gorm:"not null"`
	Trigger            string    `gorm:"column:trigger_name;not null"`
	StartedAt          time.Time `gorm:"index;not null"`
	CompletedAt        time.Time `gorm:"not null"`
	RulesLoaded        int       `gorm:"default:0"`
	DirectivesCompiled int       `gorm:"default:0"`
	Replaced           bool      `gorm:"default:false"`
	Status             string    `gorm:"not null"`
	ErrorMessage       string    `gorm:"default:''"`
}

// TableName shares the table with Store
func (SyncRunRecord) TableName() string { return "sync_runs" }

func (rec SyncRunRecord) toModel() models.SyncRun {
	return models.SyncRun{
		ID:                 int64(rec.ID),
		PassID:             rec.PassID,
		Trigger:            rec.Trigger,
		StartedAt:          rec.StartedAt,
		CompletedAt:        rec.CompletedAt,
		RulesLoaded:        rec.RulesLoaded,
		DirectivesCompiled: rec.DirectivesCompiled,
		Replaced:           rec.Replaced,
		Status:             rec.Status,
		ErrorMessage:       rec.ErrorMessage,
	}
}
