// Package api provides the HTTP API for observing a running walk.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
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
	"sync/atomic"
	"time"

	"github.com/talgya/deer-motility/internal/engine"
	"github.com/talgya/deer-motility/internal/persistence"
	"github.com/talgya/deer-motility/internal/terrain"
	"github.com/talgya/deer-motility/internal/world"
)

const (
	maxSSEConns      = 4
	sseCatchUp       = 50
	sseHeartbeat     = 15 * time.Second
	defaultTracePage = 500
	maxTracePage     = 5000
)

// Server serves the session state over HTTP.
type Server struct {
	Session  *engine.Session
	Driver   *engine.Driver // Optional; nil disables speed control
	DB       *persistence.DB
	RunID    string
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	// Active SSE connection count (atomic).
	sseConns int32

	srv *http.Server
}

// Handler builds the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	// Whole-grid payloads are rate limited.
	gridLimiter := NewRateLimiter(120, time.Minute)

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/trace", s.handleTrace)
	mux.HandleFunc("/api/v1/overlay", RateLimitMiddleware(gridLimiter, s.handleOverlay))
	mux.HandleFunc("/api/v1/map", RateLimitMiddleware(gridLimiter, s.handleMap))
	mux.HandleFunc("/api/v1/stream", s.handleStream)

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("/api/v1/snapshot", s.adminOnly(s.handleSnapshot))
	mux.HandleFunc("/api/v1/stop", s.adminOnly(s.handleStop))

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	s.srv = &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Shutdown stops the server started by Start.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set MOTILITY_CORS_ORIGINS to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("MOTILITY_CORS_ORIGINS"); env != "" {
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
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && token == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through (for endpoints that support both GET and POST).
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no MOTILITY_ADMIN_KEY set)", http.StatusForbidden)
				return
			}

			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}

		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	cfg := s.Session.Config()
	trace := s.Session.Trace()
	status := map[string]any{
		"run_id":     s.RunID,
		"state":      s.Session.State().String(),
		"step":       len(trace),
		"steps":      cfg.Steps,
		"position":   s.Session.Position(),
		"start":      s.Session.Start(),
		"light_mode": cfg.LightMode,
		"perception": cfg.Perception.String(),
		"total_cost": trace.TotalCost(),
		"terrain":    trace.TagCounts(),
	}
	if s.Driver != nil {
		status["speed"] = s.Driver.Speed()
		status["running"] = s.Driver.Running()
	}
	writeJSON(w, status)
}

// handleTrace returns one page of the trace: ?offset=N&limit=M.
func (s *Server) handleTrace(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		http.Error(w, "invalid offset", http.StatusBadRequest)
		return
	}
	limit, err := queryInt(r, "limit", defaultTracePage)
	if err != nil || limit <= 0 {
		http.Error(w, "invalid limit", http.StatusBadRequest)
		return
	}
	if limit > maxTracePage {
		limit = maxTracePage
	}

	entries := s.Session.TraceSince(offset)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	writeJSON(w, map[string]any{
		"offset":  offset,
		"total":   s.Session.Steps(),
		"entries": entries,
	})
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	o := s.Session.Overlay()
	writeJSON(w, map[string]any{
		"length":     o.L,
		"width":      o.W,
		"light_mode": o.Light,
		"visited":    o.VisitedCount(),
		"alpha":      o.Values(),
	})
}

type classEntry struct {
	terrain.Class
	Hex string `json:"hex"`
}

// handleMap returns the class table and every cell's class index, row-major.
func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	g := s.Session.Grid()
	classes := s.Session.Table().Classes()
	entries := make([]classEntry, len(classes))
	for i, c := range classes {
		entries[i] = classEntry{Class: c, Hex: c.Color.Hex()}
	}

	raw := g.Cells()
	cells := make([]int, len(raw))
	for i, c := range raw {
		cells[i] = int(c)
	}
	writeJSON(w, map[string]any{
		"length":  g.L,
		"width":   g.W,
		"classes": entries,
		"cells":   cells,
		"counts":  world.TerrainCounts(g, len(classes)),
	})
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if s.Driver == nil {
		http.Error(w, "no driver attached", http.StatusServiceUnavailable)
		return
	}
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > engine.MaxSpeed {
			http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
			return
		}
		s.Driver.SetSpeed(req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Driver.Speed()})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}

	if err := s.DB.SaveSession(s.RunID, s.Session); err != nil {
		slog.Error("snapshot save failed", "error", err)
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"step":    s.Session.Steps(),
		"message": "snapshot saved",
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.Driver != nil {
		s.Driver.Stop()
	} else {
		s.Session.Finish()
	}
	writeJSON(w, map[string]any{
		"step":  s.Session.Steps(),
		"state": s.Session.State().String(),
	})
}

// handleStream provides an SSE endpoint for real-time step streaming.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	// Connection limit.
	current := atomic.AddInt32(&s.sseConns, 1)
	if current > maxSSEConns {
		atomic.AddInt32(&s.sseConns, -1)
		http.Error(w, "too many SSE connections", http.StatusServiceUnavailable)
		return
	}
	defer atomic.AddInt32(&s.sseConns, -1)

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// SSE headers.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Subscribe before reading the catch-up so no step falls in between.
	subID, ch := s.Session.Subscribe()
	defer s.Session.Unsubscribe(subID)

	start := max(s.Session.Steps()-sseCatchUp, 0)
	catchUp := s.Session.TraceSince(start)
	sent := start + len(catchUp)
	for _, e := range catchUp {
		writeSSEEvent(w, "step", e)
	}
	flusher.Flush()

	slog.Info("SSE client connected", "sub_id", subID)

	// Stream loop with heartbeat.
	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				// The session finished, either on its last step or stopped early.
				writeSSEEvent(w, "finished", map[string]any{
					"steps": s.Session.Steps(),
					"state": s.Session.State().String(),
				})
				flusher.Flush()
				return
			}
			if ev.Entry.Step < sent {
				continue
			}
			writeSSEEvent(w, "step", ev.Entry)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			slog.Info("SSE client disconnected", "sub_id", subID)
			return
		}
	}
}

// writeSSEEvent writes a single event in SSE format.
func writeSSEEvent(w http.ResponseWriter, name string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
