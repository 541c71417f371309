// Package handlers provides HTTP handlers for buy and sell orders.
package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/aristath/papertrader/internal/domain"
	portfoliohandlers "github.com/aristath/papertrader/internal/modules/portfolio/handlers"
	"github.com/aristath/papertrader/internal/modules/trading"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Handler handles trade HTTP requests
type Handler struct {
	service *trading.TradingService
	log     zerolog.Logger
}

// NewHandler creates a new trading handler
func NewHandler(service *trading.TradingService, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "trading").Logger(),
	}
}

// BuyRequest is the POST /stocks body
type BuyRequest struct {
	PurchasePrice *decimal.Decimal `json:"purchase_price"`
	Symbol        string           `json:"symbol"`
	Name          string           `json:"name"`
	Quantity      json.RawMessage  `json:"quantity"`
}

// BuyResponse is the POST /stocks payload
type BuyResponse struct {
	Message          string                          `json:"message"`
	Stock            portfoliohandlers.StockResponse `json:"stock"`
	TotalCost        float64                         `json:"total_cost"`
	RemainingBalance float64                         `json:"remaining_balance"`
}

// SellRequest is the DELETE /stocks/delete_by_symbol body
type SellRequest struct {
	Symbol   string          `json:"symbol"`
	Quantity json.RawMessage `json:"quantity"`
}

// SellResponse is the DELETE /stocks/delete_by_symbol payload. Exactly one
// of RemainingShares and PositionClosed is present.
type SellResponse struct {
	RemainingShares  *int64  `json:"remaining_shares,omitempty"`
	Message          string  `json:"message"`
	SaleProceeds     float64 `json:"sale_proceeds"`
	CurrentPrice     float64 `json:"current_price"`
	ProfitLoss       float64 `json:"profit_loss"`
	RemainingBalance float64 `json:"remaining_balance"`
	PositionClosed   bool    `json:"position_closed,omitempty"`
}

// HandleBuy handles POST /stocks
func (h *Handler) HandleBuy(w http.ResponseWriter, r *http.Request) {
	var req BuyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.NewError(domain.KindValidation, "invalid request body: %v", err))
		return
	}

	quantity, all, err := parseQuantity(req.Quantity)
	if err == nil && all {
		err = domain.NewError(domain.KindValidation, `quantity "all" is only valid when selling`)
	}
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.service.Buy(r.Context(), trading.BuyRequest{
		Symbol:   req.Symbol,
		Name:     strings.TrimSpace(req.Name),
		Quantity: quantity,
		Price:    req.PurchasePrice,
	})
	if err != nil {
		h.writeTradeError(w, err, http.StatusBadRequest)
		return
	}

	h.writeJSON(w, http.StatusCreated, BuyResponse{
		Message:          result.Message,
		Stock:            portfoliohandlers.NewStockResponse(result.Position),
		TotalCost:        domain.ToFloat(result.TotalCost),
		RemainingBalance: domain.ToFloat(result.RemainingBalance),
	})
}

// HandleSell handles DELETE /stocks/delete_by_symbol
func (h *Handler) HandleSell(w http.ResponseWriter, r *http.Request) {
	var req SellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.NewError(domain.KindValidation, "invalid request body: %v", err))
		return
	}
	if strings.TrimSpace(req.Symbol) == "" {
		h.writeError(w, http.StatusBadRequest, domain.NewError(domain.KindValidation, "symbol is required"))
		return
	}

	quantity, all, err := parseQuantity(req.Quantity)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.service.Sell(r.Context(), trading.SellRequest{
		Symbol:   req.Symbol,
		Quantity: quantity,
		All:      all,
	})
	if err != nil {
		h.writeTradeError(w, err, http.StatusInternalServerError)
		return
	}

	resp := SellResponse{
		Message:          result.Message,
		SaleProceeds:     domain.ToFloat(result.Proceeds),
		CurrentPrice:     domain.ToFloat(result.Price),
		ProfitLoss:       domain.ToFloat(result.RealizedPnL),
		RemainingBalance: domain.ToFloat(result.RemainingBalance),
		PositionClosed:   result.PositionClosed,
	}
	if !result.PositionClosed {
		remaining := result.RemainingQuantity
		resp.RemainingShares = &remaining
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// parseQuantity accepts a JSON integer, an integer string, or "all".
func parseQuantity(raw json.RawMessage) (int64, bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false, domain.NewError(domain.KindValidation, "quantity is required")
	}

	text := string(raw)
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false, domain.NewError(domain.KindValidation, "invalid quantity %s", text)
		}
		if strings.EqualFold(strings.TrimSpace(s), "all") {
			return 0, true, nil
		}
		text = strings.TrimSpace(s)
	}

	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, false, domain.NewError(domain.KindValidation, "quantity must be a whole number of shares, got %s", string(raw))
	}
	if n <= 0 {
		return 0, false, domain.NewError(domain.KindValidation, "quantity must be positive, got %d", n)
	}
	return n, false, nil
}

// writeTradeError maps engine errors to status codes. priceStatus is the
// status used for price_unavailable, which differs between buy and sell.
func (h *Handler) writeTradeError(w http.ResponseWriter, err error, priceStatus int) {
	var de *domain.Error
	if !errors.As(err, &de) {
		h.log.Error().Err(err).Msg("Unclassified trade error")
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	switch de.Kind {
	case domain.KindValidation, domain.KindInsufficientFunds, domain.KindInsufficientShares:
		h.writeError(w, http.StatusBadRequest, err)
	case domain.KindPositionNotFound:
		h.writeError(w, http.StatusNotFound, err)
	case domain.KindPriceUnavailable:
		h.writeError(w, priceStatus, err)
	default:
		h.log.Error().Err(err).Msg("Trade failed")
		h.writeError(w, http.StatusInternalServerError, err)
	}
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
