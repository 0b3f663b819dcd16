// Package api provides the read-only HTTP API for observing a running
// simulation. The step loop publishes snapshots; handlers only ever read the
// latest published one.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/talgya/gossip-market/internal/engine"
	"github.com/talgya/gossip-market/internal/persistence"
	"github.com/talgya/gossip-market/internal/report"
)

const (
	defaultAgentLimit = 100
	maxAgentLimit     = 1000
)

// Server serves simulation state over HTTP.
type Server struct {
	Addr      string
	DB        *persistence.DB // stored runs, optional
	RateLimit float64         // requests per second per client; 0 disables

	snap   atomic.Pointer[engine.Snapshot]
	series atomic.Pointer[report.Series]
	srv    *http.Server
}

// SetSeries makes s the live series served by /api/v1/series.
func (s *Server) SetSeries(series *report.Series) {
	s.series.Store(series)
}

// Publish makes snap the state served to readers.
func (s *Server) Publish(snap *engine.Snapshot) {
	s.snap.Store(snap)
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/status", getOnly(s.handleStatus))
	mux.HandleFunc("/api/v1/markets", getOnly(s.handleMarkets))
	mux.HandleFunc("/api/v1/agents", getOnly(s.handleAgents))
	mux.HandleFunc("/api/v1/agent/", getOnly(s.handleAgentDetail))
	mux.HandleFunc("/api/v1/series", getOnly(s.handleSeries))
	mux.HandleFunc("/api/v1/runs", getOnly(s.handleRuns))

	var h http.Handler = mux
	if s.RateLimit > 0 {
		h = RateLimitMiddleware(NewRateLimiter(s.RateLimit, int(s.RateLimit)+1), h)
	}
	return h
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	s.srv = &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", s.Addr)

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Shutdown stops a server started with Start.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func getOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

// current returns the latest snapshot or writes 503.
func (s *Server) current(w http.ResponseWriter) *engine.Snapshot {
	snap := s.snap.Load()
	if snap == nil {
		http.Error(w, "simulation not started", http.StatusServiceUnavailable)
	}
	return snap
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.current(w)
	if snap == nil {
		return
	}
	status := map[string]any{
		"run_id":       snap.RunID,
		"step":         snap.Step,
		"run_length":   snap.RunLength,
		"markets":      len(snap.Markets),
		"agents":       len(snap.Agents),
		"total_cash":   snap.TotalCash,
		"median_cash":  snap.MedianCash,
		"friends_mean": snap.FriendsMean,
		"stats":        snap.Stats,
		"halted":       snap.Halted,
	}
	writeJSON(w, status)
}

func (s *Server) handleMarkets(w http.ResponseWriter, r *http.Request) {
	snap := s.current(w)
	if snap == nil {
		return
	}
	writeJSON(w, snap.Markets)
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	snap := s.current(w)
	if snap == nil {
		return
	}

	offset, limit := 0, defaultAgentLimit
	if o := r.URL.Query().Get("offset"); o != "" {
		v, err := strconv.Atoi(o)
		if err != nil || v < 0 {
			http.Error(w, "invalid offset", http.StatusBadRequest)
			return
		}
		offset = v
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		v, err := strconv.Atoi(l)
		if err != nil || v <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(v, maxAgentLimit)
	}

	type agentSummary struct {
		ID      int       `json:"id"`
		Cash    float64   `json:"cash"`
		Assets  []int     `json:"assets"`
		Beliefs []float64 `json:"beliefs"`
		Friends int       `json:"friends"`
		Pending int       `json:"pending"`
	}

	result := []agentSummary{}
	end := min(offset+limit, len(snap.Agents))
	for i := offset; i < end; i++ {
		a := snap.Agents[i]
		result = append(result, agentSummary{
			ID:      int(a.ID),
			Cash:    a.Cash,
			Assets:  a.Assets,
			Beliefs: a.Beliefs,
			Friends: len(a.Friends),
			Pending: a.Pending,
		})
	}
	writeJSON(w, map[string]any{
		"total":  len(snap.Agents),
		"offset": offset,
		"agents": result,
	})
}

func (s *Server) handleAgentDetail(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(r.URL.Path, "/")
	if len(parts) < 5 || parts[4] == "" {
		http.Error(w, "missing agent id", http.StatusBadRequest)
		return
	}
	id, err := strconv.Atoi(parts[4])
	if err != nil {
		http.Error(w, "invalid agent id", http.StatusBadRequest)
		return
	}

	snap := s.current(w)
	if snap == nil {
		return
	}
	if id < 0 || id >= len(snap.Agents) {
		http.Error(w, "agent not found", http.StatusNotFound)
		return
	}
	writeJSON(w, snap.Agents[id])
}

// handleSeries serves ?name= from the live run, or from a stored run when
// ?run= is given. Without a name it lists the available series.
func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	runID := r.URL.Query().Get("run")

	if runID != "" {
		if s.DB == nil {
			http.Error(w, "database not available", http.StatusServiceUnavailable)
			return
		}
		if name == "" {
			names, err := s.DB.SeriesNames(runID)
			if err != nil {
				slog.Error("series names query failed", "run_id", runID, "error", err)
				http.Error(w, "query failed", http.StatusInternalServerError)
				return
			}
			writeJSON(w, names)
			return
		}
		pts, err := s.DB.LoadSeries(runID, name)
		if err != nil {
			slog.Error("series query failed", "run_id", runID, "name", name, "error", err)
			http.Error(w, "query failed", http.StatusInternalServerError)
			return
		}
		if len(pts) == 0 {
			http.Error(w, "series not found", http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]any{"run_id": runID, "name": name, "points": pts})
		return
	}

	live := s.series.Load()
	if live == nil {
		http.Error(w, "no live series", http.StatusServiceUnavailable)
		return
	}
	if name == "" {
		writeJSON(w, live.Names())
		return
	}
	pts := live.Points(name)
	if pts == nil {
		http.Error(w, "series not found", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{"name": name, "points": pts})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	runs, err := s.DB.Runs()
	if err != nil {
		slog.Error("runs query failed", "error", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}

	type runSummary struct {
		ID         string `json:"id"`
		Seed       int64  `json:"seed"`
		Repetition int    `json:"repetition"`
		Steps      int    `json:"steps"`
		Halted     string `json:"halted,omitempty"`
		StartedAt  string `json:"started_at"`
		FinishedAt string `json:"finished_at,omitempty"`
	}
	result := make([]runSummary, len(runs))
	for i, run := range runs {
		result[i] = runSummary{
			ID:         run.ID,
			Seed:       run.Seed,
			Repetition: run.Repetition,
			Steps:      run.Steps,
			Halted:     run.Halted,
			StartedAt:  run.StartedAt.Format(time.RFC3339),
		}
		if !run.FinishedAt.IsZero() {
			result[i].FinishedAt = run.FinishedAt.Format(time.RFC3339)
		}
	}
	writeJSON(w, result)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
