package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/elonfeng/skylimit/internal/scheduler"
	"github.com/elonfeng/skylimit/internal/store"
	"github.com/elonfeng/skylimit/pkg/quota"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Computer triggers a quota computation on demand.
type Computer interface {
	Compute(ctx context.Context) (*quota.Snapshot, error)
}

// Server provides the HTTP API.
type Server struct {
	store    store.Store
	computer Computer
	gatherer prometheus.Gatherer
	log      logrus.FieldLogger
	router   chi.Router
	started  time.Time
}

// New creates a new HTTP server. A nil computer disables POST /api/v1/compute
// and a nil gatherer disables /metrics.
func New(s store.Store, computer Computer, gatherer prometheus.Gatherer, log logrus.FieldLogger) *Server {
	srv := &Server{
		store:    s,
		computer: computer,
		gatherer: gatherer,
		log:      log,
		started:  time.Now(),
	}
	srv.routes()
	return srv
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/v1", func(r chi.Router) {
			r.Get("/snapshot", s.handleSnapshot)
			r.Get("/snapshot/entries", s.handleEntries)
			r.Get("/snapshot/entries/{id}", s.handleEntry)
			r.Get("/follows", s.handleFollows)
			r.Post("/compute", s.handleCompute)
		})
	})

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	s.router = r
}

// ListenAndServe serves on port until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	if port == 0 {
		port = 8080
	}
	hs := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.WithField("addr", hs.Addr).Info("skylimit server listening")
		errc <- hs.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.started).Seconds(),
	}
	snap, err := s.store.CurrentSnapshot(r.Context())
	switch {
	case err != nil:
		resp["db"] = false
	case snap != nil:
		resp["db"] = true
		resp["snapshot"] = snap.ID
		resp["computed_at"] = snap.ComputedAt
	default:
		resp["db"] = true
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) currentSnapshot(w http.ResponseWriter, r *http.Request) (*quota.Snapshot, bool) {
	snap, err := s.store.CurrentSnapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	if snap == nil {
		writeError(w, http.StatusNotFound, "no snapshot computed yet")
		return nil, false
	}
	return snap, true
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.currentSnapshot(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// entryOrders maps the sort query parameter to a less function.
var entryOrders = map[string]func(a, b quota.UserEntry) bool{
	"id": func(a, b quota.UserEntry) bool { return a.ID < b.ID },
	// Most throttled first.
	"prob": func(a, b quota.UserEntry) bool {
		if a.NetProb != b.NetProb {
			return a.NetProb < b.NetProb
		}
		return a.ID < b.ID
	},
	// Loudest first.
	"rate": func(a, b quota.UserEntry) bool {
		if a.TotalDaily != b.TotalDaily {
			return a.TotalDaily > b.TotalDaily
		}
		return a.ID < b.ID
	},
}

func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request) {
	order := r.URL.Query().Get("sort")
	if order == "" {
		order = "id"
	}
	less, ok := entryOrders[order]
	if !ok {
		writeError(w, http.StatusBadRequest, "sort must be one of id, prob, rate")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	snap, ok := s.currentSnapshot(w, r)
	if !ok {
		return
	}

	entries := make([]quota.UserEntry, len(snap.Entries))
	copy(entries, snap.Entries)
	sort.SliceStable(entries, func(i, j int) bool { return less(entries[i], entries[j]) })
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"snapshot": snap.ID,
		"quota":    snap.QuotaNumber,
		"data":     entries,
		"count":    len(entries),
	})
}

func (s *Server) handleEntry(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.currentSnapshot(w, r)
	if !ok {
		return
	}
	entry, found := snap.Entry(chi.URLParam(r, "id"))
	if !found {
		writeError(w, http.StatusNotFound, "source not in snapshot")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleFollows(w http.ResponseWriter, r *http.Request) {
	follows, err := s.store.ListFollows(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	counts, err := s.store.CountEventsBySource(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	type followInfo struct {
		ID           string    `json:"id"`
		Handle       string    `json:"handle"`
		FeedURL      string    `json:"feed_url,omitempty"`
		Weight       float64   `json:"weight"`
		Followed     bool      `json:"followed"`
		Topics       []string  `json:"topics,omitempty"`
		TrackedSince time.Time `json:"tracked_since"`
		Events       int       `json:"events"`
	}

	infos := make([]followInfo, 0, len(follows))
	for _, f := range follows {
		infos = append(infos, followInfo{
			ID:           f.ID,
			Handle:       f.Handle,
			FeedURL:      f.FeedURL,
			Weight:       f.Weight,
			Followed:     f.Followed(),
			Topics:       f.Topics,
			TrackedSince: f.TrackedSince,
			Events:       counts[f.ID],
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  infos,
		"count": len(infos),
	})
}

func (s *Server) handleCompute(w http.ResponseWriter, r *http.Request) {
	if s.computer == nil {
		writeError(w, http.StatusNotImplemented, "compute is disabled")
		return
	}

	snap, err := s.computer.Compute(r.Context())
	switch {
	case errors.Is(err, scheduler.ErrBusy):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, quota.ErrNoData):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		s.log.WithError(err).Error("on-demand compute failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"snapshot": snap.ID,
		"quota":    snap.QuotaNumber,
		"sources":  len(snap.Entries),
		"complete": snap.Intervals.Complete,
		"expected": snap.Intervals.Expected,
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
