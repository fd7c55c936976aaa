package api

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"listing-sync/internal/config"
	"listing-sync/internal/observer"
	"listing-sync/internal/ratelimit"
	"listing-sync/internal/telemetry"
)

// Server exposes the engine's read APIs to dashboards. Pull-style only; any
// push transport is built by the presentation layer on top of these.
type Server struct {
	cfg     config.Config
	obs     *observer.Observer
	limiter *ratelimit.Limiter
	log     *zap.SugaredLogger
}

// New constructs the monitoring API server. limiter may be nil.
func New(cfg config.Config, obs *observer.Observer, limiter *ratelimit.Limiter, log *zap.SugaredLogger) *Server {
	return &Server{cfg: cfg, obs: obs, limiter: limiter, log: log}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Get("/jobs/active", s.handleActiveJobs)
	r.Get("/jobs/{id}", s.handleGetSnapshot)
	r.Get("/jobs/{id}/events", s.handleGetEvents)
	return r
}

func (s *Server) handleActiveJobs(w http.ResponseWriter, r *http.Request) {
	ids, err := s.obs.ActiveJobIDs(r.Context())
	if err != nil {
		s.log.Errorw("list active jobs", "error", err)
		http.Error(w, "failed to list active jobs", http.StatusInternalServerError)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"job_ids": ids})
}

func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap := s.obs.GetSnapshot(id)
	if snap == nil {
		// Not tracked in this process. The dashboard shows "no data yet";
		// absence of a snapshot is not proof the job never existed.
		http.Error(w, "job not tracked", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil {
		allowed, err := s.limiter.Allow(r.Context(), clientKey(r))
		if err != nil {
			s.log.Warnw("rate limiter unavailable", "error", err)
		} else if !allowed {
			telemetry.ReadRejects.Inc()
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
	}

	id := chi.URLParam(r, "id")

	limit := s.cfg.EventPageLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	if s.cfg.EventPageLimitMax > 0 && limit > s.cfg.EventPageLimitMax {
		limit = s.cfg.EventPageLimitMax
	}

	var cursor int64
	if v := r.URL.Query().Get("cursor"); v != "" {
		c, err := strconv.ParseInt(v, 10, 64)
		if err != nil || c <= 0 {
			http.Error(w, "invalid cursor", http.StatusBadRequest)
			return
		}
		cursor = c
	}

	page, err := s.obs.GetEvents(r.Context(), id, limit, cursor)
	if err != nil {
		s.log.Errorw("query events", "job_id", id, "error", err)
		http.Error(w, "failed to query events", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func clientKey(r *http.Request) string {
	if v := r.Header.Get("X-Client-ID"); v != "" {
		return v
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
