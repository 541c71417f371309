package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers price history and lookup routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stocks/{ticker}", h.HandleGetStockHistory) // Raw stored closes for a symbol
	r.Get("/search/{symbol}", h.HandleSearch)          // Current quote via fallback chain
	r.Post("/historical/prices", h.HandleIngestPrices) // Idempotent close ingestion
}
