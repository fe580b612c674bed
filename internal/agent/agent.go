package agent

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nightlyone/lockfile"

	"github.com/MahdiGraph/SiteSniper/internal/database"
	"github.com/MahdiGraph/SiteSniper/internal/decision"
	"github.com/MahdiGraph/SiteSniper/internal/filtering"
	"github.com/MahdiGraph/SiteSniper/internal/metrics"
	"github.com/MahdiGraph/SiteSniper/internal/models"
	"github.com/MahdiGraph/SiteSniper/internal/rules"
	"github.com/MahdiGraph/SiteSniper/pkg/logger"
)

// Options configures the agent loop
type Options struct {
	// LockPath is the absolute path of the single-instance lock; empty disables locking
	LockPath     string
	TickInterval time.Duration
	Location     *time.Location
	// BlockPageURL is where blocked navigations are sent
	BlockPageURL string
	// Clock overrides time.Now, for tests
	Clock func() time.Time
}

// NavigationResult is the agent's answer to a navigation event
type NavigationResult struct {
	TabID    int
	URL      string
	Decision decision.Decision
	// RedirectURL is the block page to load instead, empty when allowed
	RedirectURL string
}

type navigationRequest struct {
	tabID int
	url   string
	reply chan NavigationResult
}

type hostRequest struct {
	host  string
	reply chan bool
}

// Agent owns the rule snapshot and handles every event on one goroutine:
// startup, rule updates, periodic ticks and navigations
type Agent struct {
	opts        Options
	db          database.RuleStore
	syncManager *filtering.SyncManager
	engine      *decision.Engine
	logger      *logger.Logger

	snapshot atomic.Pointer[rules.Snapshot]

	updates     chan struct{}
	navigations chan navigationRequest
	hosts       chan hostRequest
	ready       chan struct{}
}

// NewAgent creates a new agent
func NewAgent(
	opts Options,
	db database.RuleStore,
	syncManager *filtering.SyncManager,
	engine *decision.Engine,
	logger *logger.Logger,
) *Agent {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Minute
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	a := &Agent{
		opts:        opts,
		db:          db,
		syncManager: syncManager,
		engine:      engine,
		logger:      logger,
		updates:     make(chan struct{}, 1),
		navigations: make(chan navigationRequest),
		hosts:       make(chan hostRequest),
		ready:       make(chan struct{}),
	}
	a.snapshot.Store(rules.EmptySnapshot())
	return a
}

// Run acquires the instance lock and processes events until ctx is done
func (a *Agent) Run(ctx context.Context) error {
	if a.opts.LockPath != "" {
		lock, err := lockfile.New(a.opts.LockPath)
		if err != nil {
			return fmt.Errorf("failed to create lock: %w", err)
		}
		if err := lock.TryLock(); err != nil {
			return fmt.Errorf("failed to acquire lock: %w", err)
		}
		defer lock.Unlock()
	}

	a.logger.Info("Agent started")
	a.handleRulesChanged(ctx, filtering.TriggerStartup)
	close(a.ready)

	ticker := time.NewTicker(a.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("Agent stopping")
			return nil

		case <-a.updates:
			a.handleRulesChanged(ctx, filtering.TriggerRulesUpdated)

		case <-ticker.C:
			a.handleRulesChanged(ctx, filtering.TriggerTick)

		case req := <-a.navigations:
			req.reply <- a.handleNavigation(req.tabID, req.url)

		case req := <-a.hosts:
			req.reply <- a.engine.HostBlocked(req.host, a.snapshot.Load(), a.minutesNow())
		}
	}
}

// Ready is closed once the startup pass has finished
func (a *Agent) Ready() <-chan struct{} {
	return a.ready
}

// NotifyRulesUpdated asks the loop to reload rules and recompile. Calls made
// while a reload is already pending are coalesced.
func (a *Agent) NotifyRulesUpdated() {
	select {
	case a.updates <- struct{}{}:
	default:
	}
}

// Navigate evaluates a navigation the declarative filter did not intercept
func (a *Agent) Navigate(ctx context.Context, tabID int, rawURL string) (NavigationResult, error) {
	req := navigationRequest{tabID: tabID, url: rawURL, reply: make(chan NavigationResult, 1)}
	select {
	case a.navigations <- req:
	case <-ctx.Done():
		return NavigationResult{}, ctx.Err()
	}
	select {
	case res := <-req.reply:
		return res, nil
	case <-ctx.Done():
		return NavigationResult{}, ctx.Err()
	}
}

// HostBlocked reports whether every URL on host is currently blocked
func (a *Agent) HostBlocked(ctx context.Context, host string) (bool, error) {
	req := hostRequest{host: host, reply: make(chan bool, 1)}
	select {
	case a.hosts <- req:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	select {
	case blocked := <-req.reply:
		return blocked, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Snapshot returns the rule snapshot the agent currently evaluates against
func (a *Agent) Snapshot() *rules.Snapshot {
	return a.snapshot.Load()
}

// LastRun returns the most recent pass
func (a *Agent) LastRun() *models.SyncRun {
	return a.syncManager.LastRun()
}

// Now returns the agent's clock in its configured location
func (a *Agent) Now() time.Time {
	return a.opts.Clock().In(a.opts.Location)
}

func (a *Agent) minutesNow() int {
	return rules.MinutesSinceMidnight(a.Now())
}

// handleRulesChanged reloads rules from storage and reconciles the sink. A
// failed load keeps the previous snapshot so blocking never drops to nothing.
func (a *Agent) handleRulesChanged(ctx context.Context, trigger string) {
	now := a.Now()
	stored, err := a.db.LoadRules(ctx)
	if err != nil {
		metrics.RuleLoadFailures.Inc()
		a.logger.Errorf("Failed to load rules (%s), keeping %d rules from %s: %v",
			trigger, a.snapshot.Load().Len(), a.snapshot.Load().LoadedAt().Format(time.RFC3339), err)
	} else {
		a.snapshot.Store(rules.NewSnapshot(stored, now))
	}

	if _, err := a.syncManager.Sync(ctx, a.snapshot.Load(), now, trigger); err != nil {
		a.logger.Warnf("Pass %s did not update directives: %v", trigger, err)
	}
}

func (a *Agent) handleNavigation(tabID int, rawURL string) NavigationResult {
	d := a.engine.Evaluate(rawURL, a.snapshot.Load(), a.minutesNow())
	metrics.Decisions.WithLabelValues("navigation", metrics.Outcome(d.Blocked)).Inc()

	res := NavigationResult{TabID: tabID, URL: rawURL, Decision: d}
	if d.Blocked {
		res.RedirectURL = decision.BlockPageURL(a.opts.BlockPageURL, rawURL)
		a.logger.Infof("Tab %d: blocking %s (rule %d, %s)", tabID, rawURL, d.RuleIndex, d.Reason)
	}
	return res
}
