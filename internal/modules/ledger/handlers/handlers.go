// Package handlers provides HTTP handlers for the transaction log.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/aristath/papertrader/internal/domain"
	"github.com/aristath/papertrader/internal/modules/trading"
	"github.com/rs/zerolog"
)

// Handler handles ledger HTTP requests
type Handler struct {
	transactions *trading.TransactionRepository
	log          zerolog.Logger
}

// NewHandler creates a new ledger handler
func NewHandler(transactions *trading.TransactionRepository, log zerolog.Logger) *Handler {
	return &Handler{
		transactions: transactions,
		log:          log.With().Str("handler", "ledger").Logger(),
	}
}

// TransactionResponse is one GET /transactions row
type TransactionResponse struct {
	Reference     string  `json:"reference"`
	Symbol        string  `json:"symbol"`
	Date          string  `json:"date"`
	Type          string  `json:"type"`
	ID            int64   `json:"id"`
	Quantity      int64   `json:"quantity"`
	PurchasePrice float64 `json:"purchase_price"`
	Total         float64 `json:"total"`
}

// HandleGetTransactions handles GET /transactions?symbol=&type=&limit=
func (h *Handler) HandleGetTransactions(w http.ResponseWriter, r *http.Request) {
	filter := trading.HistoryFilter{Symbol: r.URL.Query().Get("symbol")}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			h.writeError(w, http.StatusBadRequest, domain.NewError(domain.KindValidation, "limit must be a positive integer, got %q", limitStr))
			return
		}
		filter.Limit = limit
	}

	if kindStr := r.URL.Query().Get("type"); kindStr != "" {
		kind, err := domain.TradeKindFromString(kindStr)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, domain.WrapError(domain.KindValidation, err, "invalid type filter"))
			return
		}
		filter.Kind = kind
	}

	history, err := h.transactions.GetHistory(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load transactions")
		h.writeError(w, http.StatusInternalServerError, domain.WrapError(domain.KindPersistence, err, "failed to load transactions"))
		return
	}

	result := make([]TransactionResponse, 0, len(history))
	for _, t := range history {
		result = append(result, TransactionResponse{
			ID:            t.ID,
			Reference:     t.Reference,
			Symbol:        t.Symbol,
			Date:          t.Date,
			Type:          string(t.Kind),
			Quantity:      t.Quantity,
			PurchasePrice: domain.ToFloat(t.Price),
			Total:         domain.ToFloat(t.Total()),
		})
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, map[string]string{"error": err.Error(), "kind": string(domain.KindOf(err))})
}
