package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kstat-sampler/internal/history"
	"kstat-sampler/internal/metrics"
)

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestHealthLifecycle(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewServer("db1", time.Minute)
	s.now = func() time.Time { return now }
	s.started = now
	h := s.Routes()

	tests := []struct {
		name   string
		step   func()
		code   int
		status string
	}{
		{"before first cycle", func() {}, http.StatusOK, "starting"},
		{"first cycle failed", func() { s.RecordFailure(errors.New("dial tcp: timeout")) }, http.StatusServiceUnavailable, "unhealthy"},
		{"cycle succeeded", func() { s.RecordSnapshot(metrics.Snapshot{Host: "db1", Cycle: 1}) }, http.StatusOK, "healthy"},
		{"transient failure", func() { s.RecordFailure(errors.New("read timeout")) }, http.StatusOK, "degraded"},
		{"stale", func() { now = now.Add(2 * time.Minute) }, http.StatusServiceUnavailable, "unhealthy"},
	}

	for _, tt := range tests {
		tt.step()
		rec, body := get(t, h, "/health")
		assert.Equal(t, tt.code, rec.Code, tt.name)
		assert.Equal(t, tt.status, body["status"], tt.name)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	}

	_, body := get(t, h, "/health")
	assert.Equal(t, "read timeout", body["last_error"])
	assert.Equal(t, float64(1), body["consecutive_failures"])
	assert.Equal(t, float64(1), body["last_cycle"])
	assert.Equal(t, "db1", body["host"])
}

func TestSnapshotEndpoint(t *testing.T) {
	s := NewServer("db1", time.Minute)
	h := s.Routes()

	rec, body := get(t, h, "/snapshot")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no snapshot yet", body["error"])

	s.RecordSnapshot(metrics.Snapshot{ID: "x", Host: "db1", Cycle: 3, CPU: metrics.Stats{"user": 13.7}})

	rec, body = get(t, h, "/snapshot")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"user":13.70`)
	assert.Equal(t, float64(3), body["cycle"])
}

func TestRoutesRejectOtherMethods(t *testing.T) {
	rec := httptest.NewRecorder()
	NewServer("db1", time.Minute).Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func newTestHistory(t *testing.T) *history.Repository {
	t.Helper()
	db, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, history.Migrate(db))
	return history.NewRepository(db)
}

type fakeBus struct{ connected bool }

func (b *fakeBus) IsConnected() bool { return b.connected }

func TestSnapshotFallsBackToHistory(t *testing.T) {
	repo := newTestHistory(t)
	h := NewServer("db1", time.Minute, WithHistory(repo)).Routes()

	rec, body := get(t, h, "/snapshot")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no snapshot yet", body["error"])

	require.NoError(t, repo.InsertSnapshot(context.Background(), metrics.Snapshot{
		ID: "stored", Host: "db1", Timestamp: time.Now().UTC(), Cycle: 41, Elapsed: 60,
		CPU: metrics.Stats{"user": 2.5},
	}))

	rec, body = get(t, h, "/snapshot")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "stored", body["id"])
	assert.Equal(t, float64(41), body["cycle"])
	assert.Contains(t, rec.Body.String(), `"user":2.50`)
}

func TestSnapshotPrefersLiveSnapshot(t *testing.T) {
	repo := newTestHistory(t)
	require.NoError(t, repo.InsertSnapshot(context.Background(), metrics.Snapshot{
		ID: "stored", Host: "db1", Timestamp: time.Now().UTC(), Cycle: 41,
	}))
	s := NewServer("db1", time.Minute, WithHistory(repo))
	s.RecordSnapshot(metrics.Snapshot{ID: "live", Host: "db1", Cycle: 1})

	_, body := get(t, s.Routes(), "/snapshot")
	assert.Equal(t, "live", body["id"])
}

func TestSeriesEndpoint(t *testing.T) {
	repo := newTestHistory(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, recv := range []float64{1, 2, 3} {
		require.NoError(t, repo.InsertSnapshot(ctx, metrics.Snapshot{
			ID:        "s" + string(rune('a'+i)),
			Host:      "db1",
			Timestamp: now.Add(time.Duration(i-2) * 20 * time.Minute),
			Cycle:     uint64(i + 1),
			Net:       []metrics.Entity{{ID: "eth0", Stats: metrics.Stats{"recv": recv, "send": 0}}},
		}))
	}
	s := NewServer("db1", time.Minute, WithHistory(repo))
	s.now = func() time.Time { return now }
	h := s.Routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/series?family=net&entity=eth0&field=recv&since=30m", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var points []history.Point
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &points))
	require.Len(t, points, 2)
	assert.Equal(t, 2.0, points[0].Value)
	assert.Equal(t, 3.0, points[1].Value)
	assert.True(t, points[1].TS.Equal(now))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/series?family=net&entity=eth0&field=recv&since=2h&limit=1", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &points))
	require.Len(t, points, 1)
	assert.Equal(t, 1.0, points[0].Value)

	tests := []struct {
		name string
		path string
	}{
		{"missing field", "/series?family=net"},
		{"bad since", "/series?family=net&field=recv&since=yesterday"},
		{"bad limit", "/series?family=net&field=recv&limit=-1"},
	}
	for _, tt := range tests {
		rec, body := get(t, h, tt.path)
		assert.Equal(t, http.StatusBadRequest, rec.Code, tt.name)
		assert.NotEmpty(t, body["error"], tt.name)
	}
}

func TestSeriesWithoutHistory(t *testing.T) {
	rec, body := get(t, NewServer("db1", time.Minute).Routes(), "/series?family=cpu&field=user")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "history disabled", body["error"])
}

func TestHealthReportsBusState(t *testing.T) {
	bus := &fakeBus{connected: true}
	s := NewServer("db1", time.Minute, WithBus(bus))
	s.RecordSnapshot(metrics.Snapshot{Host: "db1", Cycle: 1})
	h := s.Routes()

	rec, body := get(t, h, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "connected", body["nats"])

	bus.connected = false
	rec, body = get(t, h, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "disconnected", body["nats"])

	_, body = get(t, NewServer("db1", time.Minute).Routes(), "/health")
	assert.NotContains(t, body, "nats")
}
