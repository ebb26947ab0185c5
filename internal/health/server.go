package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"kstat-sampler/internal/history"
	"kstat-sampler/internal/metrics"
)

const (
	defaultSeriesWindow = time.Hour
	defaultSeriesLimit  = 500
	maxSeriesLimit      = 5000
)

// History is the persisted snapshot store behind /snapshot and /series.
type History interface {
	LatestSnapshot(ctx context.Context, host string) (metrics.Snapshot, error)
	Series(ctx context.Context, host, family, entity, field string, from time.Time, limit int) ([]history.Point, error)
}

// Bus reports the state of the event bus connection.
type Bus interface {
	IsConnected() bool
}

type Option func(*Server)

func WithHistory(h History) Option {
	return func(s *Server) { s.history = h }
}

func WithBus(b Bus) Option {
	return func(s *Server) { s.bus = b }
}

type HealthResponse struct {
	Status              string `json:"status"`
	Service             string `json:"service"`
	Host                string `json:"host"`
	UptimeSeconds       int64  `json:"uptime_seconds"`
	Timestamp           int64  `json:"timestamp"`
	LastCycle           uint64 `json:"last_cycle"`
	LastSuccess         int64  `json:"last_success,omitempty"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	LastError           string `json:"last_error,omitempty"`
	NATS                string `json:"nats,omitempty"`
}

// Server reports the state of the sampling loop over HTTP.
type Server struct {
	host       string
	staleAfter time.Duration
	now        func() time.Time
	started    time.Time
	history    History
	bus        Bus

	mu       sync.RWMutex
	last     *metrics.Snapshot
	lastOK   time.Time
	lastErr  string
	failures int
}

// NewServer returns a Server that turns unhealthy when no cycle has
// succeeded for staleAfter.
func NewServer(host string, staleAfter time.Duration, opts ...Option) *Server {
	s := &Server{host: host, staleAfter: staleAfter, now: time.Now, started: time.Now()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) RecordSnapshot(snap metrics.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &snap
	s.lastOK = s.now()
	s.failures = 0
	s.lastErr = ""
}

func (s *Server) RecordFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
	s.lastErr = err.Error()
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /snapshot", s.snapshotHandler)
	mux.HandleFunc("GET /series", s.seriesHandler)
	return mux
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	now := s.now()
	resp := HealthResponse{
		Service:             "kstat-sampler",
		Host:                s.host,
		UptimeSeconds:       int64(now.Sub(s.started).Seconds()),
		Timestamp:           now.Unix(),
		ConsecutiveFailures: s.failures,
		LastError:           s.lastErr,
	}
	if s.last != nil {
		resp.LastCycle = s.last.Cycle
		resp.LastSuccess = s.lastOK.Unix()
	}
	busDown := false
	if s.bus != nil {
		resp.NATS = "connected"
		if !s.bus.IsConnected() {
			resp.NATS = "disconnected"
			busDown = true
		}
	}
	code := http.StatusOK
	switch {
	case s.lastOK.IsZero() && s.failures == 0:
		resp.Status = "starting"
	case s.lastOK.IsZero(), s.staleAfter > 0 && now.Sub(s.lastOK) > s.staleAfter:
		resp.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	case s.failures > 0, busDown:
		resp.Status = "degraded"
	default:
		resp.Status = "healthy"
	}
	s.mu.RUnlock()

	writeJSON(w, code, resp)
}

// snapshotHandler serves the last snapshot of this process, or the latest
// stored one when nothing was sampled since start.
func (s *Server) snapshotHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	last := s.last
	s.mu.RUnlock()

	if last != nil {
		writeJSON(w, http.StatusOK, last)
		return
	}
	if s.history == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no snapshot yet"})
		return
	}
	snap, err := s.history.LatestSnapshot(r.Context(), s.host)
	if errors.Is(err, history.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no snapshot yet"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// seriesHandler serves one stored field over time:
// /series?family=net&entity=eth0&field=recv&since=30m&limit=100
func (s *Server) seriesHandler(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "history disabled"})
		return
	}
	q := r.URL.Query()
	family, field := q.Get("family"), q.Get("field")
	if family == "" || field == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "family and field are required"})
		return
	}

	window := defaultSeriesWindow
	if v := q.Get("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid since"})
			return
		}
		window = d
	}
	limit := defaultSeriesLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = min(n, maxSeriesLimit)
	}

	points, err := s.history.Series(r.Context(), s.host, family, q.Get("entity"), field, s.now().Add(-window), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, points)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
