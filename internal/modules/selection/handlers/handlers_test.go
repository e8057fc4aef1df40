package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/aristath/olps/internal/database"
	"github.com/aristath/olps/internal/modules/selection"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := zerolog.New(nil).Level(zerolog.Disabled)

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "selection.db"),
		Profile: database.ProfileCache,
		Name:    "selection",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())

	service := selection.NewService(
		selection.NewPriceRepository(db.Conn(), logger),
		selection.NewRunRepository(db.Conn(), logger),
		selection.ServiceConfig{Beta: selection.DefaultBeta},
		nil,
		logger,
	)

	router := chi.NewRouter()
	router.Route("/api", func(r chi.Router) {
		NewHandler(service, logger).RegisterRoutes(r)
	})
	return router
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var response map[string]interface{}
	if w.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	}
	return w, response
}

func TestHandleAllocate(t *testing.T) {
	router := setupRouter(t)

	w, response := doJSON(t, router, "POST", "/api/selection/allocate", map[string]interface{}{
		"returns": []float64{1.05, 0.98, 1.02},
		"beta":    0.0,
	})

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, response, "data")
	require.Contains(t, response, "metadata")
	data := response["data"].(map[string]interface{})
	weights := data["weights"].([]interface{})
	require.Len(t, weights, 3)
	assert.InDelta(t, 1.0, weights[0].(float64), 1e-6)
	assert.Equal(t, "projected_gradient", data["solver"])
	assert.Equal(t, 0.0, data["beta"])
}

func TestHandleAllocate_Errors(t *testing.T) {
	router := setupRouter(t)

	tests := []struct {
		name     string
		body     interface{}
		expected int
	}{
		{"all zero returns", map[string]interface{}{"returns": []float64{0, 0, 0}}, http.StatusUnprocessableEntity},
		{"negative return", map[string]interface{}{"returns": []float64{1.01, -0.5}}, http.StatusUnprocessableEntity},
		{"missing returns", map[string]interface{}{}, http.StatusBadRequest},
		{"unknown solver", map[string]interface{}{"returns": []float64{1, 1}, "solver": "simplex"}, http.StatusBadRequest},
		{"negative beta", map[string]interface{}{"returns": []float64{1, 1}, "beta": -1}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, response := doJSON(t, router, "POST", "/api/selection/allocate", tt.body)
			assert.Equal(t, tt.expected, w.Code)
			assert.Contains(t, response, "error")
		})
	}

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/selection/allocate", bytes.NewReader([]byte("{")))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandleBacktest_SaveAndFetch(t *testing.T) {
	router := setupRouter(t)

	w, response := doJSON(t, router, "POST", "/api/selection/backtest", map[string]interface{}{
		"assets": []string{"AAA", "BBB"},
		"prices": [][]float64{
			{100, 50},
			{102, 49},
			{101, 51},
			{105, 50},
		},
		"strategy": "ftrl",
		"beta":     0.5,
		"save":     true,
	})
	require.Equal(t, http.StatusOK, w.Code)

	data := response["data"].(map[string]interface{})
	id := data["id"].(string)
	require.NotEmpty(t, id)
	result := data["result"].(map[string]interface{})
	assert.Len(t, result["weights"], 4)
	assert.Len(t, result["next_weights"], 2)

	w, response = doJSON(t, router, "GET", "/api/selection/runs/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	fetched := response["data"].(map[string]interface{})
	assert.Equal(t, id, fetched["id"])
	assert.Equal(t, "ftrl", fetched["strategy"])

	w, response = doJSON(t, router, "GET", "/api/selection/runs?limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, response["data"], 1)
}

func TestHandleBacktest_InvalidPrices(t *testing.T) {
	router := setupRouter(t)

	w, _ := doJSON(t, router, "POST", "/api/selection/backtest", map[string]interface{}{
		"assets": []string{"AAA", "BBB"},
		"prices": [][]float64{{100, 50}, {0, 49}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleGetRun_NotFound(t *testing.T) {
	router := setupRouter(t)

	w, _ := doJSON(t, router, "GET", "/api/selection/runs/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleListRuns_InvalidLimit(t *testing.T) {
	router := setupRouter(t)

	w, _ := doJSON(t, router, "GET", "/api/selection/runs?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleSavePricesThenRebalance(t *testing.T) {
	router := setupRouter(t)

	series := map[string][]float64{
		"AAA": {100, 101, 103, 104},
		"BBB": {50, 49.5, 49, 50.5},
	}
	dates := []string{"2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"}
	for asset, closes := range series {
		points := make([]map[string]interface{}, 0, len(closes))
		for i, c := range closes {
			points = append(points, map[string]interface{}{"date": dates[i], "close": c})
		}
		w, response := doJSON(t, router, "POST", "/api/selection/prices", map[string]interface{}{
			"asset":  asset,
			"points": points,
		})
		require.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, float64(len(closes)), response["data"].(map[string]interface{})["stored"])
	}

	w, response := doJSON(t, router, "POST", "/api/selection/rebalance", map[string]interface{}{
		"assets": []string{"AAA", "BBB"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	data := response["data"].(map[string]interface{})
	assert.NotEmpty(t, data["run_id"])
	next := data["next_weights"].([]interface{})
	require.Len(t, next, 2)
	assert.InDelta(t, 1.0, next[0].(float64)+next[1].(float64), 1e-6)
}

func TestHandleSavePrices_BadDate(t *testing.T) {
	router := setupRouter(t)

	w, _ := doJSON(t, router, "POST", "/api/selection/prices", map[string]interface{}{
		"asset":  "AAA",
		"points": []map[string]interface{}{{"date": "02/01/2024", "close": 100}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
