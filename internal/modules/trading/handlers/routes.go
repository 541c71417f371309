package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers order routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/stocks", h.HandleBuy)                     // Buy (opens or adds to a position)
	r.Delete("/stocks/delete_by_symbol", h.HandleSell) // Sell a quantity or "all"
}
