package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/MahdiGraph/SiteSniper/internal/database"
	"github.com/MahdiGraph/SiteSniper/internal/models"
	"github.com/MahdiGraph/SiteSniper/internal/rules"
	"github.com/MahdiGraph/SiteSniper/pkg/logger"
)

var (
	// ErrDuplicateRule is returned when a rule with the same site, type and times exists
	ErrDuplicateRule = errors.New("this rule (or an identical one) already exists")
	// ErrIndexOutOfRange is returned for edits and removals past the end of the list
	ErrIndexOutOfRange = errors.New("rule index out of range")
)

// SaveError reports a failed write. The in-memory rule list already holds
// the change and is not rolled back.
type SaveError struct {
	Err error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("failed to save rules: %v", e.Err)
}

func (e *SaveError) Unwrap() error {
	return e.Err
}

// RuleService owns the editable rule list and writes it through to the store
type RuleService struct {
	store    database.RuleStore
	logger   *logger.Logger
	onChange func()

	mu     sync.Mutex
	rules  []models.Rule
	loaded bool
}

// NewRuleService creates a rule service. onChange, if set, runs after every
// successful save so the agent can be told to reload.
func NewRuleService(store database.RuleStore, log *logger.Logger, onChange func()) *RuleService {
	if log == nil {
		log = logger.Discard()
	}
	return &RuleService{store: store, logger: log, onChange: onChange}
}

// Load reads the rule list from the store. On failure the previous list is kept.
func (s *RuleService) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *RuleService) load(ctx context.Context) error {
	stored, err := s.store.LoadRules(ctx)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}
	normalized := make([]models.Rule, 0, len(stored))
	for _, r := range stored {
		normalized = append(normalized, rules.NormalizeRule(r))
	}
	s.rules = normalized
	s.loaded = true
	return nil
}

func (s *RuleService) ensureLoaded(ctx context.Context) error {
	if s.loaded {
		return nil
	}
	return s.load(ctx)
}

// List returns a copy of the rule list
func (s *RuleService) List(ctx context.Context) ([]models.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	out := make([]models.Rule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r.Clone())
	}
	return out, nil
}

// Add validates rule and appends it
func (s *RuleService) Add(ctx context.Context, rule models.Rule) (models.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return models.Rule{}, err
	}

	r, err := prepare(rule)
	if err != nil {
		return models.Rule{}, err
	}
	if s.indexOfKey(r.Key(), -1) >= 0 {
		return models.Rule{}, ErrDuplicateRule
	}

	s.rules = append(s.rules, r)
	s.logger.Infof("Added %s rule for %s", r.Kind, r.Site)
	return r, s.save(ctx)
}

// Update replaces the rule at index
func (s *RuleService) Update(ctx context.Context, index int, rule models.Rule) (models.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return models.Rule{}, err
	}
	if index < 0 || index >= len(s.rules) {
		return models.Rule{}, ErrIndexOutOfRange
	}

	r, err := prepare(rule)
	if err != nil {
		return models.Rule{}, err
	}
	if s.indexOfKey(r.Key(), index) >= 0 {
		return models.Rule{}, ErrDuplicateRule
	}

	r.ID = s.rules[index].ID
	s.rules[index] = r
	s.logger.Infof("Updated rule %d (%s)", index, r.Site)
	return r, s.save(ctx)
}

// Remove deletes the rule at index and returns it
func (s *RuleService) Remove(ctx context.Context, index int) (models.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return models.Rule{}, err
	}
	if index < 0 || index >= len(s.rules) {
		return models.Rule{}, ErrIndexOutOfRange
	}

	removed := s.rules[index]
	s.rules = append(s.rules[:index:index], s.rules[index+1:]...)
	s.logger.Infof("Removed rule %d (%s)", index, removed.Site)
	return removed, s.save(ctx)
}

// ImportResult summarizes an import
type ImportResult struct {
	Added   int
	Skipped []string
}

// Import reads rules in the browser extension's storage format, either an
// object with a "blockedRules" array or a bare array. Invalid and duplicate
// entries are skipped. With replace set, the current list is discarded first.
func (s *RuleService) Import(ctx context.Context, data []byte, replace bool) (ImportResult, error) {
	var result ImportResult
	if !gjson.ValidBytes(data) {
		return result, fmt.Errorf("import data is not valid JSON")
	}

	list := gjson.GetBytes(data, "blockedRules")
	if !list.Exists() {
		list = gjson.ParseBytes(data)
	}
	if !list.IsArray() {
		return result, fmt.Errorf("import data holds no rule array")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return result, err
	}

	next := s.rules
	if replace {
		next = nil
	}
	next = append([]models.Rule(nil), next...)

	seen := make(map[string]bool, len(next))
	for _, r := range next {
		seen[r.Key()] = true
	}

	list.ForEach(func(key, value gjson.Result) bool {
		r, err := prepare(ruleFromJSON(value))
		if err != nil {
			result.Skipped = append(result.Skipped, fmt.Sprintf("entry %d: %v", key.Int(), err))
			return true
		}
		if seen[r.Key()] {
			result.Skipped = append(result.Skipped, fmt.Sprintf("entry %d: %v", key.Int(), ErrDuplicateRule))
			return true
		}
		seen[r.Key()] = true
		next = append(next, r)
		result.Added++
		return true
	})

	s.rules = next
	s.logger.Infof("Imported %d rules (%d skipped)", result.Added, len(result.Skipped))
	return result, s.save(ctx)
}

// Export renders the rule list in the browser extension's storage format
func (s *RuleService) Export(ctx context.Context) ([]byte, error) {
	list, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(struct {
		BlockedRules []models.Rule `json:"blockedRules"`
	}{list}, "", "  ")
}

func ruleFromJSON(v gjson.Result) models.Rule {
	list := func(path string) []string {
		out := []string{}
		for _, item := range v.Get(path).Array() {
			out = append(out, item.String())
		}
		return out
	}
	return models.Rule{
		Site:             v.Get("site").String(),
		Kind:             models.RuleKind(v.Get("type").String()),
		StartTime:        v.Get("startTime").String(),
		EndTime:          v.Get("endTime").String(),
		SubpageMode:      models.SubpageMode(v.Get("subpageMode").String()),
		SubpageWhitelist: list("subpageWhitelist"),
		SubpageBlacklist: list("subpageBlacklist"),
	}
}

// prepare normalizes and validates a rule for storage. The www. prefix is
// kept as entered; matching covers both forms anyway.
func prepare(rule models.Rule) (models.Rule, error) {
	r := rules.NormalizeRule(rule)
	for i, p := range r.SubpageWhitelist {
		r.SubpageWhitelist[i] = strings.TrimSpace(p)
	}
	for i, p := range r.SubpageBlacklist {
		r.SubpageBlacklist[i] = strings.TrimSpace(p)
	}
	if err := rules.Validate(r); err != nil {
		return models.Rule{}, err
	}
	return r, nil
}

func (s *RuleService) indexOfKey(key string, skip int) int {
	for i, r := range s.rules {
		if i != skip && r.Key() == key {
			return i
		}
	}
	return -1
}

func (s *RuleService) save(ctx context.Context) error {
	if err := s.store.SaveRules(ctx, s.rules); err != nil {
		s.logger.Errorf("Failed to save rules: %v", err)
		return &SaveError{Err: err}
	}
	if s.onChange != nil {
		s.onChange()
	}
	return nil
}
