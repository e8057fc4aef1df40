package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/olps/internal/database"
	"github.com/aristath/olps/internal/metrics"
	"github.com/aristath/olps/internal/modules/selection"
)

type stubJob struct {
	err  error
	runs int
}

func (j *stubJob) Name() string { return "rebalance" }

func (j *stubJob) Run() error {
	j.runs++
	return j.err
}

func setupServer(t *testing.T, job *stubJob) (*Server, *database.DB, *metrics.Registry) {
	t.Helper()
	log := zerolog.New(nil).Level(zerolog.Disabled)

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "selection.db"),
		Profile: database.ProfileCache,
		Name:    "selection",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())

	registry := metrics.NewRegistry()
	service := selection.NewService(
		selection.NewPriceRepository(db.Conn(), log),
		selection.NewRunRepository(db.Conn(), log),
		selection.ServiceConfig{Beta: selection.DefaultBeta},
		registry,
		log,
	)

	cfg := Config{
		Log:     log,
		DB:      db,
		Service: service,
		Metrics: registry,
		Port:    0,
		DevMode: true,
	}
	if job != nil {
		cfg.RebalanceJob = job
	}
	return New(cfg), db, registry
}

func TestHealth(t *testing.T) {
	s, _, _ := setupServer(t, nil)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "healthy", response["status"])
	assert.Equal(t, "ok", response["database"])
	assert.Equal(t, "olps", response["service"])
}

func TestHealth_DatabaseDown(t *testing.T) {
	s, db, _ := setupServer(t, nil)
	require.NoError(t, db.Close())

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSelectionRoutesAndMetrics(t *testing.T) {
	s, _, _ := setupServer(t, nil)

	body, err := json.Marshal(map[string]interface{}{"returns": []float64{1.05, 0.98, 1.02}})
	require.NoError(t, err)
	req := httptest.NewRequest("POST", "/api/selection/allocate", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest("GET", "/metrics", nil)
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	exposition, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	assert.Contains(t, string(exposition), `olps_solves_total{solver="projected_gradient"`)
	assert.Contains(t, string(exposition), "olps_solve_duration_seconds")
}

func TestCORSPreflight(t *testing.T) {
	s, _, _ := setupServer(t, nil)

	req := httptest.NewRequest("OPTIONS", "/api/selection/allocate", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSystemStatus(t *testing.T) {
	s, _, _ := setupServer(t, nil)

	req := httptest.NewRequest("GET", "/api/system/status", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var response SystemStatusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "healthy", response.Status)
	assert.Greater(t, response.Goroutines, 0)
	assert.GreaterOrEqual(t, response.MemoryPercent, 0.0)
	assert.NotEmpty(t, response.Timestamp)
}

func TestDatabaseStats(t *testing.T) {
	s, _, _ := setupServer(t, nil)

	body := []byte(`{"asset":"AAA","points":[{"date":"2024-01-02","close":100},{"date":"2024-01-03","close":101}]}`)
	req := httptest.NewRequest("POST", "/api/selection/prices", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	req = httptest.NewRequest("GET", "/api/system/database/stats", nil)
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var response DatabaseStatsResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	require.Len(t, response.Databases, 1)
	info := response.Databases[0]
	assert.Equal(t, "selection", info.Name)
	assert.True(t, info.Healthy)
	assert.Equal(t, 1, info.Assets)
	assert.Equal(t, 2, info.Prices)
	assert.Equal(t, 0, info.Runs)
	assert.Empty(t, info.LastRun)
}

func TestTriggerRebalance(t *testing.T) {
	t.Run("not registered", func(t *testing.T) {
		s, _, _ := setupServer(t, nil)
		req := httptest.NewRequest("POST", "/api/system/jobs/rebalance", nil)
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("success", func(t *testing.T) {
		job := &stubJob{}
		s, _, _ := setupServer(t, job)
		req := httptest.NewRequest("POST", "/api/system/jobs/rebalance", nil)
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, job.runs)
	})

	t.Run("failure", func(t *testing.T) {
		job := &stubJob{err: errors.New("no prices")}
		s, _, _ := setupServer(t, job)
		req := httptest.NewRequest("POST", "/api/system/jobs/rebalance", nil)
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}
