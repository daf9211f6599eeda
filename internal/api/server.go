// Package api provides the HTTP surface of a running learner.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane) and only
// set flags the coordinator reads at its next iteration boundary.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/atomic"

	"github.com/talgya/clipwright/internal/agents"
	"github.com/talgya/clipwright/internal/engine"
	"github.com/talgya/clipwright/internal/monitor"
	"github.com/talgya/clipwright/internal/persistence"
)

const (
	maxSSEConns    = 2
	defaultHistory = 50
	maxHistory     = 1000
)

// BridgeStats reports game bridge health.
type BridgeStats interface {
	Failures() uint64
	Rejected() uint64
}

// Server serves the run's state and controls over HTTP.
type Server struct {
	Coord    *engine.Coordinator
	Monitor  *monitor.Monitor
	DB       *persistence.DB // optional; history is unavailable without it
	Bridge   BridgeStats     // optional
	Addr     string
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	started  time.Time
	sseConns atomic.Int32
	httpSrv  *http.Server
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	if s.started.IsZero() {
		s.started = time.Now()
	}
	chartLimiter := NewRateLimiter(60, time.Minute)

	mux := http.NewServeMux()

	// Public endpoints.
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/snapshot", s.handleSnapshot)
	mux.HandleFunc("/api/v1/history", s.handleHistory)
	mux.HandleFunc("/api/v1/checkpoints", s.handleCheckpoints)
	mux.HandleFunc("/api/v1/charts", RateLimitMiddleware(chartLimiter, s.handleCharts))
	mux.HandleFunc("/api/v1/stream", s.handleStream)
	mux.Handle("/metrics", promhttp.HandlerFor(s.Monitor.Registry(), promhttp.HandlerOpts{}))

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/control/start", s.adminOnly(s.handleStart))
	mux.HandleFunc("/api/v1/control/stop", s.adminOnly(s.handleStop))
	mux.HandleFunc("/api/v1/control/save", s.adminOnly(s.handleSave))
	mux.HandleFunc("/api/v1/control/delay", s.adminOnly(s.handleDelay))
	mux.HandleFunc("/api/v1/control/checkpoint", s.adminOnly(s.handleCheckpoint))

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	s.httpSrv = &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", s.Addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Shutdown stops the listener started by Start.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// corsMiddleware adds CORS headers for allowed dashboard origins.
// CLIPWRIGHT_CORS_ORIGINS is a comma-separated list; localhost dev servers
// are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CLIPWRIGHT_CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly restricts a control handler to authenticated POSTs.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no CLIPWRIGHT_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"name":              "clipwright",
		"iteration":         s.Coord.Iteration(),
		"running":           s.Coord.Running(),
		"paused":            s.Coord.Paused(),
		"tick_delay_ms":     s.Coord.TickDelay().Milliseconds(),
		"checkpoint_every":  s.Coord.CheckpointEvery(),
		"dropped_snapshots": s.Coord.Dropped(),
		"started":           humanize.Time(s.started),
	}
	if s.Bridge != nil {
		status["observer_failures"] = s.Bridge.Failures()
		status["rejected_actions"] = s.Bridge.Rejected()
	}
	if s.DB != nil {
		status["run_id"] = s.DB.RunID()
		if counts, err := s.DB.CountTicks(); err == nil {
			status["ticks_recorded"] = counts
		} else {
			slog.Warn("tick counts unavailable", "error", err)
		}
	}

	if snap, ok := s.Monitor.Latest(); ok {
		agentInfo := make(map[string]any, len(monitor.Agents))
		for _, name := range monitor.Agents {
			b := snap.Block(name)
			if b == nil {
				continue
			}
			agentInfo[name] = map[string]any{
				"last_action": b.Action,
				"reward":      b.Reward,
				"exploration": b.Exploration,
				"states":      humanize.Comma(int64(b.States)),
			}
		}
		if b := snap.Price; b != nil {
			for _, c := range b.Counters {
				if c.Name == "demand" {
					status["demand_level"] = agents.DemandLevel(c.Value)
				}
			}
		}
		status["agents"] = agentInfo
	}

	writeJSON(w, status)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.Monitor.Latest()
	if !ok {
		http.Error(w, "no snapshot yet", http.StatusNotFound)
		return
	}
	writeJSON(w, snap)
}

// parseLimit reads ?limit= clamped to (0, maxHistory].
func parseLimit(r *http.Request) int {
	limit := defaultHistory
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= maxHistory {
			limit = v
		}
	}
	return limit
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}

	agent := r.URL.Query().Get("agent")
	if agent != "" && !knownAgent(agent) {
		http.Error(w, fmt.Sprintf("unknown agent %q", agent), http.StatusBadRequest)
		return
	}

	ticks, err := s.DB.RecentTicks(agent, parseLimit(r))
	if err != nil {
		slog.Error("tick history query failed", "error", err)
		writeJSON(w, []persistence.Tick{})
		return
	}
	writeJSON(w, ticks)
}

func (s *Server) handleCheckpoints(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	cps, err := s.DB.Checkpoints(parseLimit(r))
	if err != nil {
		slog.Error("checkpoint query failed", "error", err)
		writeJSON(w, []persistence.Checkpoint{})
		return
	}
	writeJSON(w, cps)
}

func knownAgent(name string) bool {
	for _, a := range monitor.Agents {
		if a == name {
			return true
		}
	}
	return false
}

func (s *Server) handleCharts(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.Monitor.Render(w); err != nil {
		slog.Error("chart render failed", "error", err)
	}
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.Coord.Start()
	slog.Info("learning resumed")
	writeJSON(w, map[string]any{"paused": false})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.Coord.Pause()
	slog.Info("learning paused")
	writeJSON(w, map[string]any{"paused": true})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	s.Coord.RequestSave()
	writeJSON(w, map[string]any{
		"iteration": s.Coord.Iteration(),
		"message":   "save requested",
	})
}

func (s *Server) handleDelay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DelayMS int64 `json:"delay_ms"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.DelayMS > 60_000 {
		http.Error(w, "delay_ms must be 0-60000", http.StatusBadRequest)
		return
	}
	if err := s.Coord.SetTickDelay(time.Duration(req.DelayMS) * time.Millisecond); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	slog.Info("tick delay changed", "delay_ms", req.DelayMS)
	writeJSON(w, map[string]int64{"delay_ms": s.Coord.TickDelay().Milliseconds()})
}

func (s *Server) handleCheckpoint(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Every uint64 `json:"every"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := s.Coord.SetCheckpointEvery(req.Every); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	slog.Info("checkpoint interval changed", "every", req.Every)
	writeJSON(w, map[string]uint64{"every": s.Coord.CheckpointEvery()})
}

// handleStream pushes each new snapshot as a server-sent event.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.sseConns.Inc() > maxSSEConns {
		s.sseConns.Dec()
		http.Error(w, "too many SSE connections", http.StatusServiceUnavailable)
		return
	}
	defer s.sseConns.Dec()

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	poll := time.NewTicker(time.Second)
	defer poll.Stop()
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	var last uint64
	for {
		select {
		case <-poll.C:
			snap, ok := s.Monitor.Latest()
			if !ok || snap.Iteration == last {
				continue
			}
			last = snap.Iteration
			writeSSESnapshot(w, snap)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// writeSSESnapshot writes a single snapshot in SSE format.
func writeSSESnapshot(w http.ResponseWriter, snap engine.Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: snapshot\nid: %d\ndata: %s\n\n", snap.Iteration, data)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
