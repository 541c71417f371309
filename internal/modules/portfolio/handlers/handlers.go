// Package handlers provides HTTP handlers for the account and open positions.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/aristath/papertrader/internal/domain"
	"github.com/aristath/papertrader/internal/modules/portfolio"
	"github.com/rs/zerolog"
)

// Handler handles portfolio HTTP requests
type Handler struct {
	service  *portfolio.PortfolioService
	currency string
	log      zerolog.Logger
}

// NewHandler creates a new portfolio handler
func NewHandler(service *portfolio.PortfolioService, currency string, log zerolog.Logger) *Handler {
	return &Handler{
		service:  service,
		currency: currency,
		log:      log.With().Str("handler", "portfolio").Logger(),
	}
}

// AccountResponse is the GET /account payload
type AccountResponse struct {
	Currency       string  `json:"currency"`
	BalanceDisplay string  `json:"balance_display"`
	ID             int64   `json:"id"`
	Balance        float64 `json:"balance"`
}

// StockResponse is one GET /stocks row. purchase_price is the weighted-average cost.
type StockResponse struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	ID            int64   `json:"id"`
	PurchasePrice float64 `json:"purchase_price"`
	Quantity      int64   `json:"quantity"`
}

// NewStockResponse converts a position for output
func NewStockResponse(p domain.Position) StockResponse {
	return StockResponse{
		ID:            p.ID,
		Symbol:        p.Symbol,
		Name:          p.Name,
		PurchasePrice: domain.ToFloat(p.AverageCost),
		Quantity:      p.Quantity,
	}
}

// HandleGetAccount returns the cash account, creating it on first read
func (h *Handler) HandleGetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.GetAccount(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load account")
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	h.writeJSON(w, http.StatusOK, AccountResponse{
		ID:             account.ID,
		Balance:        domain.ToFloat(account.Balance),
		Currency:       h.currency,
		BalanceDisplay: domain.FormatMoney(account.Balance, h.currency),
	})
}

// HandleGetStocks lists open positions
func (h *Handler) HandleGetStocks(w http.ResponseWriter, r *http.Request) {
	positions, err := h.service.ListPositions(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list positions")
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	result := make([]StockResponse, 0, len(positions))
	for _, p := range positions {
		result = append(result, NewStockResponse(p))
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
