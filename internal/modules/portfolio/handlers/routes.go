package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers account and position listing routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/account", h.HandleGetAccount) // Cash account (auto-created)
	r.Get("/stocks", h.HandleGetStocks)   // Open positions
}
