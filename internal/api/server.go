package api

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MahdiGraph/SiteSniper/internal/agent"
	"github.com/MahdiGraph/SiteSniper/internal/models"
	"github.com/MahdiGraph/SiteSniper/internal/sink"
	"github.com/MahdiGraph/SiteSniper/pkg/logger"
)

// Navigator is the part of the agent the API drives
type Navigator interface {
	Navigate(ctx context.Context, tabID int, rawURL string) (agent.NavigationResult, error)
	NotifyRulesUpdated()
	Ready() <-chan struct{}
}

// NavigationRequest is the body of POST /v1/navigation
type NavigationRequest struct {
	TabID int    `json:"tabId"`
	URL   string `json:"url"`
}

// NavigationResponse tells the caller whether to load the block page instead
type NavigationResponse struct {
	Blocked     bool         `json:"blocked"`
	RedirectURL string       `json:"redirectUrl,omitempty"`
	Reason      string       `json:"reason"`
	Rule        *models.Rule `json:"rule,omitempty"`
}

// Server wraps the HTTP server and handlers
type Server struct {
	server    *http.Server
	navigator Navigator
	sink      sink.Sink
	logger    *logger.Logger
}

// NewServer creates a new HTTP API server listening on addr
func NewServer(addr string, navigator Navigator, s sink.Sink, log *logger.Logger) *Server {
	srv := &Server{
		navigator: navigator,
		sink:      s,
		logger:    log,
	}
	srv.server = &http.Server{
		Addr:         addr,
		Handler:      srv.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return srv
}

// Routes builds the router
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/blocked", s.handleBlockedPage)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/rules/updated", s.handleRulesUpdated)
		r.Post("/navigation", s.handleNavigation)
		r.Get("/directives", s.handleDirectives)
	})
	return r
}

// Start serves until ctx is done, then shuts down gracefully
func (s *Server) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.logger.Infof("API listening on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("API server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warnf("API shutdown: %v", err)
		}
	}()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	select {
	case <-s.navigator.Ready():
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	default:
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
	}
}

func (s *Server) handleRulesUpdated(w http.ResponseWriter, r *http.Request) {
	s.navigator.NotifyRulesUpdated()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) handleNavigation(w http.ResponseWriter, r *http.Request) {
	var req NavigationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if req.URL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "url is required"})
		return
	}

	res, err := s.navigator.Navigate(r.Context(), req.TabID, req.URL)
	if err != nil {
		s.logger.Warnf("Navigation for tab %d not evaluated: %v", req.TabID, err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, NavigationResponse{
		Blocked:     res.Decision.Blocked,
		RedirectURL: res.RedirectURL,
		Reason:      res.Decision.Reason,
		Rule:        res.Decision.Rule,
	})
}

func (s *Server) handleDirectives(w http.ResponseWriter, r *http.Request) {
	directives, err := s.sink.GetCurrent(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if directives == nil {
		directives = []models.Directive{}
	}
	writeJSON(w, http.StatusOK, directives)
}

var blockedPage = template.Must(template.New("blocked").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Site blocked</title></head>
<body>
<h1>This page is blocked</h1>
{{if .}}<p>SiteSniper blocked <code>{{.}}</code>.</p>{{end}}
</body>
</html>
`))

func (s *Server) handleBlockedPage(w http.ResponseWriter, r *http.Request) {
	original := r.URL.Query().Get("url")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := blockedPage.Execute(w, original); err != nil {
		s.logger.Warnf("Failed to render block page: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
