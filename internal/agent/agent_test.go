package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MahdiGraph/SiteSniper/internal/compiler"
	"github.com/MahdiGraph/SiteSniper/internal/decision"
	"github.com/MahdiGraph/SiteSniper/internal/filtering"
	"github.com/MahdiGraph/SiteSniper/internal/models"
	"github.com/MahdiGraph/SiteSniper/internal/rules"
	"github.com/MahdiGraph/SiteSniper/internal/sink"
	"github.com/MahdiGraph/SiteSniper/pkg/logger"
)

type fakeStore struct {
	mu      sync.Mutex
	rules   []models.Rule
	loadErr error
	loads   int
	runs    []models.SyncRun
}

func (f *fakeStore) set(rs []models.Rule, loadErr error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = rs
	f.loadErr = loadErr
}

func (f *fakeStore) loadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads
}

func (f *fakeStore) LoadRules(context.Context) ([]models.Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return append([]models.Rule(nil), f.rules...), nil
}

func (f *fakeStore) SaveRules(_ context.Context, rs []models.Rule) error {
	f.set(rs, nil)
	return nil
}

func (f *fakeStore) RecordSync(_ context.Context, run *models.SyncRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, *run)
	return nil
}

func (f *fakeStore) LastSync(context.Context) (*models.SyncRun, error)          { return nil, nil }
func (f *fakeStore) RecentSyncs(context.Context, int) ([]models.SyncRun, error) { return nil, nil }
func (f *fakeStore) Close() error                                               { return nil }

var noon = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func startAgent(t *testing.T, store *fakeStore) (*Agent, *sink.MemorySink) {
	t.Helper()
	log := logger.Discard()
	mem := sink.NewMemorySink()
	mgr := filtering.NewSyncManager(compiler.New(compiler.Options{Logger: log}), mem, store, log)
	a := NewAgent(Options{
		TickInterval: time.Hour,
		Location:     time.UTC,
		BlockPageURL: "http://127.0.0.1:8321/blocked",
		Clock:        func() time.Time { return noon },
	}, store, mgr, decision.New(log), log)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- a.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-errc; err != nil {
			t.Errorf("Run: %v", err)
		}
	})

	select {
	case <-a.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("agent did not finish startup")
	}
	return a, mem
}

func navigate(t *testing.T, a *Agent, url string) NavigationResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := a.Navigate(ctx, 7, url)
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStartupInstallsDirectivesAndBlocksNavigation(t *testing.T) {
	store := &fakeStore{rules: []models.Rule{{Site: "example.com", Kind: models.KindAlways}}}
	a, mem := startAgent(t, store)

	if !mem.Blocks("https://www.example.com/", models.ResourceMainFrame) {
		t.Fatal("startup pass did not install a block for example.com")
	}
	if a.Snapshot().Len() != 1 {
		t.Fatalf("snapshot has %d rules", a.Snapshot().Len())
	}
	if run := a.LastRun(); run == nil || run.Trigger != filtering.TriggerStartup {
		t.Fatalf("last run=%+v", run)
	}

	res := navigate(t, a, "https://example.com/news?id=1")
	if !res.Decision.Blocked || res.TabID != 7 {
		t.Fatalf("result=%+v", res)
	}
	want := "http://127.0.0.1:8321/blocked?url=https%3A%2F%2Fexample.com%2Fnews%3Fid%3D1"
	if res.RedirectURL != want {
		t.Fatalf("redirect=%q want %q", res.RedirectURL, want)
	}

	if res := navigate(t, a, "https://other.org/"); res.Decision.Blocked || res.RedirectURL != "" {
		t.Fatalf("other.org result=%+v", res)
	}
}

func TestRulesUpdatedReloadsAndRecompiles(t *testing.T) {
	store := &fakeStore{}
	a, mem := startAgent(t, store)

	if mem.Blocks("https://example.com/", models.ResourceMainFrame) {
		t.Fatal("blocked before any rule exists")
	}

	store.set([]models.Rule{{
		Site:             "example.com",
		Kind:             models.KindAlways,
		SubpageMode:      models.SubpageBlacklist,
		SubpageBlacklist: []string{"/shorts"},
	}}, nil)
	a.NotifyRulesUpdated()

	waitFor(t, "blacklist to take effect", func() bool {
		return navigate(t, a, "https://example.com/shorts/abc").Decision.Blocked
	})
	if navigate(t, a, "https://example.com/watch").Decision.Blocked {
		t.Fatal("non-blacklisted path blocked")
	}
	if !mem.Blocks("https://example.com/shorts/abc", models.ResourceMainFrame) {
		t.Fatal("sink not updated")
	}
}

func TestLoadFailureKeepsPreviousRules(t *testing.T) {
	store := &fakeStore{rules: []models.Rule{{Site: "example.com", Kind: models.KindAlways}}}
	a, mem := startAgent(t, store)

	before := store.loadCount()
	store.set(nil, errors.New("disk on fire"))
	a.NotifyRulesUpdated()
	waitFor(t, "reload attempt", func() bool { return store.loadCount() > before })

	if !navigate(t, a, "https://example.com/").Decision.Blocked {
		t.Fatal("previous rules dropped after a failed load")
	}
	if !mem.Blocks("https://example.com/", models.ResourceMainFrame) {
		t.Fatal("directives removed after a failed load")
	}
}

func TestHostBlocked(t *testing.T) {
	store := &fakeStore{rules: []models.Rule{
		{Site: "example.com", Kind: models.KindAlways},
		{Site: "video.net", Kind: models.KindAlways, SubpageMode: models.SubpageBlacklist, SubpageBlacklist: []string{"/shorts"}},
	}}
	a, _ := startAgent(t, store)

	ctx := context.Background()
	for host, want := range map[string]bool{
		"example.com:443": true,
		"video.net:443":   false,
		"other.org":       false,
	} {
		got, err := a.HostBlocked(ctx, host)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("HostBlocked(%q)=%v want %v", host, got, want)
		}
	}
}

func TestNavigateHonoursContext(t *testing.T) {
	a := NewAgent(Options{}, &fakeStore{}, nil, decision.New(nil), logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := a.Navigate(ctx, 1, "https://example.com/"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
}

func TestRunRejectsRelativeLockPath(t *testing.T) {
	a := NewAgent(Options{LockPath: "relative.lock"}, &fakeStore{}, nil, decision.New(nil), logger.Discard())
	if err := a.Run(context.Background()); err == nil {
		t.Fatal("expected an error for a relative lock path")
	}
}

func TestCheckURLsKeepsOrder(t *testing.T) {
	snap := rules.NewSnapshot([]models.Rule{
		{Site: "example.com", Kind: models.KindAlways},
		{Site: "work.io", Kind: models.KindTimed, StartTime: "09:00", EndTime: "17:00"},
	}, noon)

	urls := []string{
		"https://example.com/a",
		"https://other.org/",
		"https://work.io/",
		"http://%zz",
		"https://www.example.com/",
	}
	got, err := CheckURLs(context.Background(), decision.New(nil), snap, 12*60, urls, 3)
	if err == nil {
		t.Fatal("expected an error for the malformed url")
	}
	want := []bool{true, false, true, false, true}
	if len(got) != len(want) {
		t.Fatalf("got %d decisions", len(got))
	}
	for i := range want {
		if got[i].Blocked != want[i] {
			t.Errorf("%s: blocked=%v want %v", urls[i], got[i].Blocked, want[i])
		}
	}

	// Outside the window the timed rule is inactive
	got, err = CheckURLs(context.Background(), decision.New(nil), snap, 20*60, urls[2:3], 1)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Blocked {
		t.Fatal("timed rule active outside its window")
	}
}

func TestWorkerPoolSubmitRequiresStart(t *testing.T) {
	p := NewWorkerPool(2)
	if err := p.Submit(context.Background(), &CheckURLItem{}); err == nil {
		t.Fatal("submit to a stopped pool should fail")
	}
}

type countItem struct{ n *atomic.Int64 }

func (c countItem) Process(context.Context) error {
	c.n.Add(1)
	return nil
}

func TestWorkerPoolStopDuringSubmit(t *testing.T) {
	p := NewWorkerPool(1)
	p.Start(context.Background())

	drained := make(chan int)
	go func() {
		n := 0
		for range p.Results() {
			n++
		}
		drained <- n
	}()

	var processed atomic.Int64
	var accepted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if err := p.Submit(context.Background(), countItem{n: &processed}); err != nil {
					return
				}
				accepted.Add(1)
			}
		}()
	}

	time.Sleep(time.Millisecond)
	p.Stop()
	wg.Wait()

	results := <-drained
	if int64(results) != accepted.Load() || processed.Load() != accepted.Load() {
		t.Fatalf("accepted=%d processed=%d results=%d", accepted.Load(), processed.Load(), results)
	}
	if err := p.Submit(context.Background(), countItem{n: &processed}); err == nil {
		t.Fatal("Submit after Stop should fail")
	}
}
