package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/MahdiGraph/SiteSniper/internal/agent"
	"github.com/MahdiGraph/SiteSniper/internal/decision"
	"github.com/MahdiGraph/SiteSniper/internal/models"
	"github.com/MahdiGraph/SiteSniper/internal/sink"
	"github.com/MahdiGraph/SiteSniper/pkg/logger"
)

type fakeNavigator struct {
	mu       sync.Mutex
	notified int
	ready    chan struct{}
	lastTab  int
}

func (f *fakeNavigator) Navigate(_ context.Context, tabID int, rawURL string) (agent.NavigationResult, error) {
	f.mu.Lock()
	f.lastTab = tabID
	f.mu.Unlock()
	res := agent.NavigationResult{TabID: tabID, URL: rawURL, Decision: decision.Decision{RuleIndex: -1, Reason: decision.ReasonNoMatch}}
	if strings.Contains(rawURL, "example.com") {
		rule := models.Rule{Site: "example.com", Kind: models.KindAlways, SubpageMode: models.SubpageNone}
		res.Decision = decision.Decision{Blocked: true, Rule: &rule, RuleIndex: 0, Reason: decision.ReasonSite}
		res.RedirectURL = decision.BlockPageURL("http://127.0.0.1:8321/blocked", rawURL)
	}
	return res, nil
}

func (f *fakeNavigator) NotifyRulesUpdated() {
	f.mu.Lock()
	f.notified++
	f.mu.Unlock()
}

func (f *fakeNavigator) Ready() <-chan struct{} { return f.ready }

func (f *fakeNavigator) counts() (notified, lastTab int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.notified, f.lastTab
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeNavigator, *sink.MemorySink) {
	t.Helper()
	nav := &fakeNavigator{ready: make(chan struct{})}
	mem := sink.NewMemorySink()
	srv := httptest.NewServer(NewServer("", nav, mem, logger.Discard()).Routes())
	t.Cleanup(srv.Close)
	return srv, nav, mem
}

func TestNavigationEndpoint(t *testing.T) {
	srv, nav, _ := newTestServer(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantBlock  bool
	}{
		{"blocked", `{"tabId":3,"url":"https://example.com/x"}`, http.StatusOK, true},
		{"allowed", `{"tabId":4,"url":"https://other.org/"}`, http.StatusOK, false},
		{"missing url", `{"tabId":5}`, http.StatusBadRequest, false},
		{"bad json", `{`, http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/v1/navigation", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status=%d want %d", resp.StatusCode, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var got NavigationResponse
			if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
				t.Fatal(err)
			}
			if got.Blocked != tt.wantBlock {
				t.Fatalf("blocked=%v want %v", got.Blocked, tt.wantBlock)
			}
			if tt.wantBlock && (got.RedirectURL == "" || got.Rule == nil || got.Rule.Site != "example.com") {
				t.Fatalf("response=%+v", got)
			}
		})
	}

	if _, last := nav.counts(); last != 4 {
		t.Fatalf("last tab=%d", last)
	}
}

func TestRulesUpdatedNotifiesAgent(t *testing.T) {
	srv, nav, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/v1/rules/updated", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if n, _ := nav.counts(); resp.StatusCode != http.StatusAccepted || n != 1 {
		t.Fatalf("status=%d notified=%d", resp.StatusCode, n)
	}

	resp, err = http.Get(srv.URL + "/v1/rules/updated")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET status=%d", resp.StatusCode)
	}
}

func TestDirectivesEndpoint(t *testing.T) {
	srv, _, mem := newTestServer(t)

	get := func() []models.Directive {
		resp, err := http.Get(srv.URL + "/v1/directives")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		var ds []models.Directive
		if err := json.NewDecoder(resp.Body).Decode(&ds); err != nil {
			t.Fatal(err)
		}
		return ds
	}

	if ds := get(); len(ds) != 0 {
		t.Fatalf("got %d directives before install", len(ds))
	}

	d := models.Directive{
		ID:       1,
		Priority: 1,
		Action:   models.Action{Type: models.ActionBlock},
		Condition: models.Condition{
			RequestDomains: []string{"example.com"},
			ResourceTypes:  models.AllResourceTypes(),
		},
	}
	if err := mem.Replace(context.Background(), nil, []models.Directive{d}); err != nil {
		t.Fatal(err)
	}
	if ds := get(); len(ds) != 1 || ds[0].ID != 1 {
		t.Fatalf("directives=%+v", ds)
	}
}

func TestReadiness(t *testing.T) {
	srv, nav, _ := newTestServer(t)

	status := func() int {
		resp, err := http.Get(srv.URL + "/readyz")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if s := status(); s != http.StatusServiceUnavailable {
		t.Fatalf("before startup status=%d", s)
	}
	close(nav.ready)
	if s := status(); s != http.StatusOK {
		t.Fatalf("after startup status=%d", s)
	}
}

func TestBlockedPageEscapesURL(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/blocked?url=" + "https%3A%2F%2Fexample.com%2F%3Cscript%3E")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	buf := new(strings.Builder)
	if _, err := io.Copy(buf, resp.Body); err != nil {
		t.Fatal(err)
	}
	body := buf.String()
	if strings.Contains(body, "<script>") {
		t.Fatal("block page did not escape the url")
	}
	if !strings.Contains(body, "https://example.com/&lt;script&gt;") {
		t.Fatalf("block page missing url: %s", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
}
