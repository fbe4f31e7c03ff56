// Package ops exposes the operator surface: health, pipeline stats and
// dead-letter re-drive.
package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/you/dispatchd/internal/domain"
	"github.com/you/dispatchd/internal/pipeline"
)

type Store interface {
	Ping(ctx context.Context) error
	CountByStatus(ctx context.Context) (map[domain.Status]int64, error)
	RequeueDead(ctx context.Context, campaignID string) (int64, error)
}

type Server struct {
	store    Store
	registry *pipeline.Registry
	pipe     *pipeline.Pipeline
	log      *zap.Logger
	srv      *http.Server
}

func NewServer(addr string, store Store, registry *pipeline.Registry, pipe *pipeline.Pipeline, log *zap.Logger) *Server {
	s := &Server{store: store, registry: registry, pipe: pipe, log: log}

	rtr := chi.NewRouter()
	rtr.Get("/healthz", s.handleHealth)
	rtr.Get("/stats", s.handleStats)
	rtr.Post("/jobs/requeue-dead", s.handleRequeueDead)

	s.srv = &http.Server{Addr: addr, Handler: rtr, ReadHeaderTimeout: 5 * time.Second}
	return s
}

func (s *Server) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		http.Error(w, "store unreachable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.CountByStatus(r.Context())
	if err != nil {
		s.log.Error("status counts failed", zap.Error(err))
		http.Error(w, "store error", http.StatusInternalServerError)
		return
	}
	depth := 0
	if s.pipe != nil {
		depth = s.pipe.QueueDepth()
	}
	writeJSON(w, map[string]any{
		"jobs":        counts,
		"counters":    s.registry.Snapshot(),
		"queue_depth": depth,
	})
}

func (s *Server) handleRequeueDead(w http.ResponseWriter, r *http.Request) {
	campaignID := r.URL.Query().Get("campaign_id")
	n, err := s.store.RequeueDead(r.Context(), campaignID)
	if err != nil {
		s.log.Error("requeue dead failed", zap.Error(err))
		http.Error(w, "store error", http.StatusInternalServerError)
		return
	}
	s.log.Info("requeued dead jobs", zap.Int64("count", n), zap.String("campaign_id", campaignID))
	writeJSON(w, map[string]int64{"requeued": n})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
