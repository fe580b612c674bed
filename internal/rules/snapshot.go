package rules

import (
	"strings"
	"time"

	"github.com/MahdiGraph/SiteSniper/internal/models"
)

// NormalizeRule fills every optional field of a stored rule once, so that
// evaluation code never needs "or default" fallbacks.
func NormalizeRule(r models.Rule) models.Rule {
	n := r.Clone()
	n.Site = strings.ToLower(strings.TrimSpace(n.Site))
	n.StartTime = strings.TrimSpace(n.StartTime)
	n.EndTime = strings.TrimSpace(n.EndTime)

	n.Kind = models.RuleKind(strings.ToLower(strings.TrimSpace(string(n.Kind))))
	if n.Kind == "" {
		n.Kind = models.KindAlways
	}

	n.SubpageMode = models.SubpageMode(strings.ToLower(strings.TrimSpace(string(n.SubpageMode))))
	if n.SubpageMode == "" {
		n.SubpageMode = models.SubpageNone
	}

	if n.SubpageWhitelist == nil || n.SubpageMode != models.SubpageWhitelist {
		n.SubpageWhitelist = []string{}
	}
	if n.SubpageBlacklist == nil || n.SubpageMode != models.SubpageBlacklist {
		n.SubpageBlacklist = []string{}
	}
	return n
}

// Snapshot is an immutable, fully normalized copy of the rule list taken at
// one point in time. It is rebuilt from storage on every triggering event.
type Snapshot struct {
	rules    []models.Rule
	loadedAt time.Time
}

// NewSnapshot normalizes rules into a new snapshot, preserving order
func NewSnapshot(stored []models.Rule, loadedAt time.Time) *Snapshot {
	normalized := make([]models.Rule, 0, len(stored))
	for _, r := range stored {
		normalized = append(normalized, NormalizeRule(r))
	}
	return &Snapshot{rules: normalized, loadedAt: loadedAt}
}

// EmptySnapshot holds no rules
func EmptySnapshot() *Snapshot {
	return &Snapshot{}
}

// Len returns the number of rules
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}

// LoadedAt returns when the rules were read from storage
func (s *Snapshot) LoadedAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.loadedAt
}

// Range calls fn for every rule in list order until fn returns false
func (s *Snapshot) Range(fn func(index int, rule models.Rule) bool) {
	if s == nil {
		return
	}
	for i, r := range s.rules {
		if !fn(i, r) {
			return
		}
	}
}

// Rules returns a deep copy of the rule list
func (s *Snapshot) Rules() []models.Rule {
	if s == nil {
		return nil
	}
	out := make([]models.Rule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r.Clone())
	}
	return out
}
