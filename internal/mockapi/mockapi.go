// Package mockapi is a local stand-in for the enrichment service, used by
// the -mock-api flag and by tests. It answers catalog questions with their
// canned responses and everything else with a generic comparison.
package mockapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/chatenrich/demo"
	"github.com/hazyhaar/chatenrich/enrichment"
)

// Server serves GET /health and POST /answer.
type Server struct {
	catalog *demo.Catalog
	latency time.Duration
	now     func() time.Time
	logger  *slog.Logger
	calls   atomic.Int64
}

// Option configures a Server.
type Option func(*Server)

// WithCatalog sets the canned answers. Default: demo.Default().
func WithCatalog(c *demo.Catalog) Option {
	return func(s *Server) { s.catalog = c }
}

// WithLatency delays every answer.
func WithLatency(d time.Duration) Option {
	return func(s *Server) { s.latency = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a Server.
func New(opts ...Option) *Server {
	s := &Server{catalog: demo.Default(), now: time.Now, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Calls returns how many /answer requests were served.
func (s *Server) Calls() int64 { return s.calls.Load() }

// Handler returns the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", s.handleHealth)
	r.Post("/answer", s.handleAnswer)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, enrichment.Health{
		Status:            "ok",
		DatabaseConnected: true,
		Timestamp:         s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req enrichment.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, enrichment.Result{Error: "invalid request body"})
		return
	}
	q := strings.TrimSpace(req.Query)
	if q == "" {
		writeJSON(w, http.StatusBadRequest, enrichment.Result{Error: "query is required"})
		return
	}
	s.calls.Add(1)

	if s.latency > 0 {
		t := time.NewTimer(s.latency)
		defer t.Stop()
		select {
		case <-t.C:
		case <-r.Context().Done():
			return
		}
	}

	if e, ok := s.catalog.Lookup(q); ok {
		s.logger.Info("mockapi: catalog answer", "query", q, "demo_id", e.ID)
		writeJSON(w, http.StatusOK, e.Response)
		return
	}
	s.logger.Info("mockapi: generic answer", "query", q, "web_search", req.EnableWebSearch)
	writeJSON(w, http.StatusOK, generic(q, req))
}

func generic(q string, req enrichment.Request) enrichment.Result {
	res := enrichment.Result{
		Answer: fmt.Sprintf("Here is what buyers report about \"%s\":\n\n"+
			"- **Reliability** matters more than launch-day reviews.\n"+
			"- Compare total cost of ownership, not sticker price.\n"+
			"- Check return policies before you buy.", q),
		Sources: []enrichment.Source{
			{Title: "Consumer survey", Description: "Aggregated owner feedback across retailers.", Type: "survey"},
			{Title: "Return-rate data", Description: "Return rates by brand over the last 12 months.", Type: "dataset"},
		},
		Metadata: map[string]any{"enriched": req.EnableWebSearch, "mock": true},
		Success:  true,
	}
	if req.TemplateID != "" {
		res.Metadata["templateId"] = req.TemplateID
	}
	return res
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
