package proxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/MahdiGraph/SiteSniper/internal/agent"
	"github.com/MahdiGraph/SiteSniper/internal/decision"
	"github.com/MahdiGraph/SiteSniper/pkg/logger"
)

type hostEvaluator struct {
	blockedHost string
	blockPage   string
}

func (h hostEvaluator) Navigate(_ context.Context, tabID int, rawURL string) (agent.NavigationResult, error) {
	res := agent.NavigationResult{TabID: tabID, URL: rawURL, Decision: decision.Decision{RuleIndex: -1}}
	u, err := url.Parse(rawURL)
	if err == nil && u.Hostname() == h.blockedHost {
		res.Decision = decision.Decision{Blocked: true, Reason: decision.ReasonSite}
		res.RedirectURL = decision.BlockPageURL(h.blockPage, rawURL)
	}
	return res, nil
}

func (h hostEvaluator) HostBlocked(_ context.Context, host string) (bool, error) {
	return strings.HasPrefix(host, h.blockedHost+":"), nil
}

func proxiedClient(t *testing.T, blockedHost string) *http.Client {
	t.Helper()
	return clientFor(t, hostEvaluator{blockedHost: blockedHost, blockPage: "http://127.0.0.1:8321/blocked"})
}

func clientFor(t *testing.T, evaluator Evaluator) *http.Client {
	t.Helper()
	p := New("", evaluator, logger.Discard())
	srv := httptest.NewServer(p.Handler())
	t.Cleanup(srv.Close)

	proxyURL, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	return &http.Client{
		Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func TestBlockedRequestIsRedirected(t *testing.T) {
	client := proxiedClient(t, "blocked.test")

	resp, err := client.Get("http://blocked.test/feed?page=2")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status=%d want 302", resp.StatusCode)
	}
	want := "http://127.0.0.1:8321/blocked?url=http%3A%2F%2Fblocked.test%2Ffeed%3Fpage%3D2"
	if got := resp.Header.Get("Location"); got != want {
		t.Fatalf("Location=%q want %q", got, want)
	}
}

func TestBlockedRequestWithoutBlockPageIsForbidden(t *testing.T) {
	client := clientFor(t, hostEvaluator{blockedHost: "blocked.test", blockPage: "/blocked"})

	resp, err := client.Get("http://blocked.test/feed")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden || resp.Header.Get("Location") != "" {
		t.Fatalf("status=%d location=%q want 403 without redirect", resp.StatusCode, resp.Header.Get("Location"))
	}
}

func TestAllowedRequestIsForwarded(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))
	defer origin.Close()

	client := proxiedClient(t, "blocked.test")
	resp, err := client.Get(origin.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d want 200", resp.StatusCode)
	}
}

func TestBlockedHostTunnelIsRefused(t *testing.T) {
	client := proxiedClient(t, "blocked.test")
	if _, err := client.Get("https://blocked.test/"); err == nil {
		t.Fatal("expected the CONNECT to a blocked host to fail")
	}
}
