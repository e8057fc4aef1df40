// Package handlers provides HTTP handlers for portfolio selection.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/olps/internal/modules/selection"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles selection HTTP requests
type Handler struct {
	service *selection.Service
	log     zerolog.Logger
}

// NewHandler creates a new selection handler
func NewHandler(service *selection.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "selection").Logger(),
	}
}

// RebalanceRequest selects the assets to rebalance; empty means every stored asset.
type RebalanceRequest struct {
	Assets []string `json:"assets"`
}

// PricePointRequest is one close in a SavePricesRequest.
type PricePointRequest struct {
	Date  string  `json:"date"` // YYYY-MM-DD
	Close float64 `json:"close"`
}

// SavePricesRequest stores closes for one asset.
type SavePricesRequest struct {
	Asset  string              `json:"asset"`
	Points []PricePointRequest `json:"points"`
}

// HandleAllocate handles POST /api/selection/allocate
func (h *Handler) HandleAllocate(w http.ResponseWriter, r *http.Request) {
	var req selection.AllocateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	allocation, err := h.service.Allocate(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, envelope(allocation))
}

// HandleBacktest handles POST /api/selection/backtest
func (h *Handler) HandleBacktest(w http.ResponseWriter, r *http.Request) {
	var req selection.BacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	run, err := h.service.Backtest(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, envelope(run))
}

// HandleRebalance handles POST /api/selection/rebalance
func (h *Handler) HandleRebalance(w http.ResponseWriter, r *http.Request) {
	var req RebalanceRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.log.Error().Err(err).Msg("Failed to decode request body")
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	run, err := h.service.Rebalance(r.Context(), req.Assets)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"run_id":       run.ID,
		"assets":       run.Assets,
		"next_weights": run.Result.Next,
		"summary":      run.Result.Summary,
	}))
}

// HandleListRuns handles GET /api/selection/runs
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	runs, err := h.service.ListRuns(r.Context(), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}

	items := make([]map[string]interface{}, 0, len(runs))
	for _, run := range runs {
		items = append(items, map[string]interface{}{
			"id":         run.ID,
			"strategy":   run.Strategy,
			"beta":       run.Beta,
			"solver":     run.Solver,
			"assets":     run.Assets,
			"periods":    len(run.Result.Weights),
			"failures":   run.Result.Failures,
			"summary":    run.Result.Summary,
			"created_at": run.CreatedAt.Format(time.RFC3339),
		})
	}

	h.writeJSON(w, http.StatusOK, envelope(items))
}

// HandleGetRun handles GET /api/selection/runs/{id}
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.service.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, envelope(run))
}

// HandleSavePrices handles POST /api/selection/prices
func (h *Handler) HandleSavePrices(w http.ResponseWriter, r *http.Request) {
	var req SavePricesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	points := make([]selection.PricePoint, 0, len(req.Points))
	for _, p := range req.Points {
		date, err := time.Parse(selection.DateLayout, p.Date)
		if err != nil {
			http.Error(w, "Dates must use YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		points = append(points, selection.PricePoint{Date: date, Close: p.Close})
	}

	if err := h.service.SavePrices(r.Context(), req.Asset, points); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, envelope(map[string]interface{}{
		"asset":  req.Asset,
		"stored": len(points),
	}))
}

func envelope(data interface{}) map[string]interface{} {
	return map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
}

// writeError maps service errors to HTTP status codes
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, selection.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, selection.ErrRunNotFound):
		status = http.StatusNotFound
	case errors.Is(err, selection.ErrOptimizationFailure):
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Selection request failed")
	} else {
		h.log.Warn().Err(err).Int("status", status).Msg("Selection request rejected")
	}

	h.writeJSON(w, status, map[string]interface{}{
		"error": err.Error(),
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
