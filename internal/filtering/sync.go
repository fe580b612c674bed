package filtering

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/MahdiGraph/SiteSniper/internal/compiler"
	"github.com/MahdiGraph/SiteSniper/internal/database"
	"github.com/MahdiGraph/SiteSniper/internal/metrics"
	"github.com/MahdiGraph/SiteSniper/internal/models"
	"github.com/MahdiGraph/SiteSniper/internal/rules"
	"github.com/MahdiGraph/SiteSniper/internal/sink"
	"github.com/MahdiGraph/SiteSniper/pkg/logger"
)

// Pass triggers
const (
	TriggerStartup      = "startup"
	TriggerRulesUpdated = "rules_updated"
	TriggerTick         = "tick"
	TriggerManual       = "manual"
)

// SyncManager reconciles the sink with the directives compiled from a rule snapshot
type SyncManager struct {
	compiler     *compiler.Compiler
	sink         sink.Sink
	db           database.RuleStore
	logger       *logger.Logger
	mu           sync.RWMutex
	lastSyncTime time.Time
	lastRun      *models.SyncRun
	passLogs     bool
}

// NewSyncManager creates a new sync manager. db may be nil, in which case
// passes are not recorded.
func NewSyncManager(
	c *compiler.Compiler,
	s sink.Sink,
	db database.RuleStore,
	logger *logger.Logger,
) *SyncManager {
	return &SyncManager{
		compiler: c,
		sink:     s,
		db:       db,
		logger:   logger,
	}
}

// Sync compiles snap at now and replaces the sink's directive set if it
// differs structurally. Replacement is all-or-nothing. Nothing is retried:
// the next trigger gets another chance.
func (s *SyncManager) Sync(ctx context.Context, snap *rules.Snapshot, now time.Time, trigger string) (*models.SyncRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := &models.SyncRun{
		PassID:      uuid.NewString(),
		Trigger:     trigger,
		StartedAt:   time.Now(),
		RulesLoaded: snap.Len(),
	}
	log := s.logger.WithPass(run.PassID)
	if s.passLogs && trigger != TriggerTick {
		if err := s.logger.SetPassLog(run.PassID); err != nil {
			log.Warnf("Failed to open pass log: %v", err)
		} else {
			defer s.logger.SetPassLog("")
		}
	}
	log.Debugf("Starting %s pass over %d rules", trigger, snap.Len())

	err := s.reconcile(ctx, log, snap, now, run)

	run.CompletedAt = time.Now()
	if err != nil {
		run.Status = models.SyncStatusFailed
		run.ErrorMessage = err.Error()
	}
	s.finish(ctx, log, run)
	return run, err
}

func (s *SyncManager) reconcile(ctx context.Context, log *logrus.Entry, snap *rules.Snapshot, now time.Time, run *models.SyncRun) error {
	directives := s.compiler.Compile(snap, rules.MinutesSinceMidnight(now))
	run.DirectivesCompiled = len(directives)

	existing, err := s.sink.GetCurrent(ctx)
	if err != nil {
		return fmt.Errorf("failed to read installed directives: %w", err)
	}

	if len(existing) == 0 && len(directives) == 0 {
		log.Debug("No directives installed and none to add")
		run.Status = models.SyncStatusUnchanged
		return nil
	}
	if compiler.Equivalent(existing, directives) {
		log.Debugf("Installed directives are current (%d)", len(existing))
		run.Status = models.SyncStatusUnchanged
		return nil
	}

	removeIDs := make([]int, 0, len(existing))
	for _, d := range existing {
		removeIDs = append(removeIDs, d.ID)
	}

	if err := s.sink.Replace(ctx, removeIDs, directives); err != nil {
		log.WithFields(logrus.Fields{
			"rules":      encodeForLog(snap.Rules()),
			"attempted":  encodeForLog(directives),
			"previous":   encodeForLog(existing),
			"remove_ids": removeIDs,
		}).Errorf("Failed to replace directives: %v", err)
		return fmt.Errorf("failed to replace directives: %w", err)
	}
	run.Replaced = true
	run.Status = models.SyncStatusApplied

	final, err := s.sink.GetCurrent(ctx)
	if err != nil {
		log.Warnf("Directives replaced but re-reading them failed: %v", err)
		return nil
	}
	log.Infof("Directives updated: %d removed, %d now installed", len(removeIDs), len(final))
	for _, d := range final {
		log.Debugf("  #%d priority=%d %s %s", d.ID, d.Priority, d.Action.Type, describeCondition(d.Condition))
	}
	recordInstalled(final)
	return nil
}

func (s *SyncManager) finish(ctx context.Context, log *logrus.Entry, run *models.SyncRun) {
	metrics.SyncPasses.WithLabelValues(run.Trigger, run.Status).Inc()
	metrics.SyncDuration.Observe(run.CompletedAt.Sub(run.StartedAt).Seconds())
	metrics.RulesLoaded.Set(float64(run.RulesLoaded))

	if s.db != nil {
		if err := s.db.RecordSync(ctx, run); err != nil {
			log.Warnf("Failed to record sync run: %v", err)
		}
	}

	s.lastSyncTime = run.CompletedAt
	copied := *run
	s.lastRun = &copied
}

// EnablePassLogs mirrors the log lines of every pass not triggered by the
// periodic tick into its own file
func (s *SyncManager) EnablePassLogs() {
	s.mu.Lock()
	s.passLogs = true
	s.mu.Unlock()
}

// GetLastSyncTime returns when the last pass finished
func (s *SyncManager) GetLastSyncTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSyncTime
}

// LastRun returns the last pass of this manager, nil before the first one
func (s *SyncManager) LastRun() *models.SyncRun {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastRun == nil {
		return nil
	}
	copied := *s.lastRun
	return &copied
}

// ValidateSync reports whether the sink holds exactly what snap compiles to at now
func (s *SyncManager) ValidateSync(ctx context.Context, snap *rules.Snapshot, now time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	existing, err := s.sink.GetCurrent(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read installed directives: %w", err)
	}
	directives := s.compiler.Compile(snap, rules.MinutesSinceMidnight(now))
	return compiler.Equivalent(existing, directives), nil
}

func recordInstalled(directives []models.Directive) {
	counts := map[models.ActionType]int{
		models.ActionRedirect: 0,
		models.ActionBlock:    0,
		models.ActionAllow:    0,
	}
	for _, d := range directives {
		counts[d.Action.Type]++
	}
	for action, n := range counts {
		metrics.DirectivesInstalled.WithLabelValues(string(action)).Set(float64(n))
	}
}

func describeCondition(c models.Condition) string {
	if c.URLFilter != "" {
		return c.URLFilter
	}
	return fmt.Sprintf("%v", c.RequestDomains)
}

func encodeForLog(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("<unencodable: %v>", err)
	}
	return string(b)
}
