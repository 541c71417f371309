package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers ledger routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/transactions", h.HandleGetTransactions) // Append-only trade log
}
