// Package handlers provides HTTP handlers for price history and symbol lookup.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aristath/papertrader/internal/domain"
	"github.com/aristath/papertrader/internal/modules/historical"
	"github.com/aristath/papertrader/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Quoter resolves a current price for a symbol
type Quoter interface {
	GetPrice(ctx context.Context, symbol string) (*services.Quote, error)
}

// Handler handles historical data HTTP requests
type Handler struct {
	service *historical.Service
	quoter  Quoter
	log     zerolog.Logger
}

// NewHandler creates a new historical data handler
func NewHandler(service *historical.Service, quoter Quoter, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		quoter:  quoter,
		log:     log.With().Str("handler", "historical").Logger(),
	}
}

// PriceRow is one stored closing price
type PriceRow struct {
	Symbol       string  `json:"symbol"`
	Date         string  `json:"date"`
	ID           int64   `json:"id"`
	ClosingPrice float64 `json:"closing_price"`
}

// HandleGetStockHistory handles GET /stocks/{ticker}
func (h *Handler) HandleGetStockHistory(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")

	samples, err := h.service.GetHistory(r.Context(), ticker)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if len(samples) == 0 {
		h.writeError(w, http.StatusNotFound, domain.NewError(domain.KindValidation, "no price history for %s", domain.NormalizeSymbol(ticker)))
		return
	}

	rows := make([]PriceRow, 0, len(samples))
	for _, s := range samples {
		rows = append(rows, PriceRow{ID: s.ID, Symbol: s.Symbol, Date: s.Date, ClosingPrice: domain.ToFloat(s.ClosingPrice)})
	}
	h.writeJSON(w, http.StatusOK, rows)
}

// SearchResponse is the GET /search/{symbol} payload
type SearchResponse struct {
	Symbol       string  `json:"symbol"`
	Name         string  `json:"name"`
	Currency     string  `json:"currency"`
	Date         string  `json:"date,omitempty"`
	Source       string  `json:"source"`
	CurrentPrice float64 `json:"current_price"`
}

// HandleSearch handles GET /search/{symbol}
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	quote, err := h.quoter.GetPrice(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, SearchResponse{
		Symbol:       quote.Symbol,
		Name:         quote.Name,
		Currency:     quote.Currency,
		Date:         quote.Date,
		Source:       string(quote.Source),
		CurrentPrice: domain.ToFloat(quote.Price),
	})
}

type ingestRow struct {
	Symbol       string          `json:"symbol"`
	Date         string          `json:"date"`
	ClosingPrice decimal.Decimal `json:"closing_price"`
}

// HandleIngestPrices handles POST /historical/prices with a JSON array of
// {symbol, date, closing_price}. Existing (symbol, date) keys are skipped.
func (h *Handler) HandleIngestPrices(w http.ResponseWriter, r *http.Request) {
	var rows []ingestRow
	if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.NewError(domain.KindValidation, "invalid request body: %v", err))
		return
	}

	samples := make([]domain.PriceSample, 0, len(rows))
	for _, row := range rows {
		samples = append(samples, domain.PriceSample{Symbol: row.Symbol, Date: row.Date, ClosingPrice: row.ClosingPrice})
	}

	result, err := h.service.IngestPriceSamples(r.Context(), samples)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		h.log.Error().Err(err).Msg("Unclassified error")
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	switch de.Kind {
	case domain.KindValidation:
		h.writeError(w, http.StatusBadRequest, err)
	case domain.KindPriceUnavailable, domain.KindPositionNotFound:
		h.writeError(w, http.StatusNotFound, err)
	default:
		h.log.Error().Err(err).Msg("Request failed")
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
