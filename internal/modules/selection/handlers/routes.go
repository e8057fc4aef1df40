package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all selection routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/selection", func(r chi.Router) {
		r.Post("/allocate", h.HandleAllocate)
		r.Post("/backtest", h.HandleBacktest)
		r.Post("/rebalance", h.HandleRebalance)
		r.Post("/prices", h.HandleSavePrices)
		r.Get("/runs", h.HandleListRuns)
		r.Get("/runs/{id}", h.HandleGetRun)
	})
}
