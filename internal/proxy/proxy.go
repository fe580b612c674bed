package proxy

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/elazarl/goproxy"

	"github.com/MahdiGraph/SiteSniper/internal/agent"
	"github.com/MahdiGraph/SiteSniper/internal/metrics"
	"github.com/MahdiGraph/SiteSniper/pkg/logger"
)

// decisionTimeout bounds how long a proxied request waits on the agent loop
const decisionTimeout = 5 * time.Second

// Evaluator is the part of the agent the proxy consults
type Evaluator interface {
	Navigate(ctx context.Context, tabID int, rawURL string) (agent.NavigationResult, error)
	HostBlocked(ctx context.Context, host string) (bool, error)
}

// Proxy is an HTTP forward proxy that turns every plain HTTP request into a
// navigation event and redirects blocked ones to the block page. Tunnelled
// (CONNECT) traffic only exposes a host, so it is refused when the whole
// host is blocked and passed through otherwise.
type Proxy struct {
	proxy     *goproxy.ProxyHttpServer
	evaluator Evaluator
	logger    *logger.Logger
	server    *http.Server
}

// New creates the proxy
func New(addr string, evaluator Evaluator, log *logger.Logger) *Proxy {
	p := &Proxy{
		proxy:     goproxy.NewProxyHttpServer(),
		evaluator: evaluator,
		logger:    log,
	}
	p.proxy.Logger = log

	p.proxy.OnRequest().HandleConnectFunc(p.handleConnect)
	p.proxy.OnRequest().DoFunc(p.handleRequest)

	p.server = &http.Server{
		Addr:        addr,
		Handler:     p.proxy,
		IdleTimeout: 60 * time.Second,
	}
	return p
}

// Handler returns the proxy as an http.Handler
func (p *Proxy) Handler() http.Handler {
	return p.proxy
}

// Start serves until ctx is done
func (p *Proxy) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.logger.Infof("Proxy listening on %s", p.server.Addr)
		if err := p.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.logger.Errorf("Proxy server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.server.Shutdown(shutdownCtx); err != nil {
			p.logger.Warnf("Proxy shutdown: %v", err)
		}
	}()
}

func (p *Proxy) handleRequest(r *http.Request, pctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
	ctx, cancel := context.WithTimeout(r.Context(), decisionTimeout)
	defer cancel()

	res, err := p.evaluator.Navigate(ctx, int(pctx.Session), r.URL.String())
	if err != nil {
		// Fail open when the agent does not answer
		p.logger.Warnf("Proxy: no decision for %s: %v", r.URL, err)
		return r, nil
	}
	metrics.Decisions.WithLabelValues("proxy", metrics.Outcome(res.Decision.Blocked)).Inc()
	if !res.Decision.Blocked {
		return r, nil
	}

	if res.RedirectURL == "" {
		resp := goproxy.NewResponse(r, goproxy.ContentTypeText, http.StatusForbidden, "blocked by SiteSniper\n")
		resp.Header.Set("Cache-Control", "no-store")
		return r, resp
	}
	resp := goproxy.NewResponse(r, goproxy.ContentTypeText, http.StatusFound, "blocked by SiteSniper\n")
	resp.Header.Set("Location", res.RedirectURL)
	resp.Header.Set("Cache-Control", "no-store")
	return r, resp
}

func (p *Proxy) handleConnect(host string, pctx *goproxy.ProxyCtx) (*goproxy.ConnectAction, string) {
	ctx, cancel := context.WithTimeout(context.Background(), decisionTimeout)
	defer cancel()

	blocked, err := p.evaluator.HostBlocked(ctx, host)
	if err != nil {
		p.logger.Warnf("Proxy: no decision for CONNECT %s: %v", host, err)
		return goproxy.OkConnect, host
	}
	metrics.Decisions.WithLabelValues("proxy_connect", metrics.Outcome(blocked)).Inc()
	if blocked {
		p.logger.Infof("Proxy: refusing tunnel to %s", host)
		return goproxy.RejectConnect, host
	}
	return goproxy.OkConnect, host
}
