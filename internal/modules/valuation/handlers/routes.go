package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers valuation routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/portfolio", func(r chi.Router) {
		r.Get("/value", h.HandleGetValue)     // Value series over stored closes
		r.Get("/summary", h.HandleGetSummary) // Current valuation and series statistics
	})
}
