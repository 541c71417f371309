// Package handlers provides HTTP handlers for portfolio valuation.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/aristath/papertrader/internal/domain"
	"github.com/aristath/papertrader/internal/modules/valuation"
	"github.com/rs/zerolog"
)

// Handler handles valuation HTTP requests
type Handler struct {
	service *valuation.Service
	log     zerolog.Logger
}

// NewHandler creates a new valuation handler
func NewHandler(service *valuation.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "valuation").Logger(),
	}
}

// ValuePointResponse is one GET /portfolio/value entry
type ValuePointResponse struct {
	SMA        *float64 `json:"sma,omitempty"`
	Date       string   `json:"date"`
	TotalValue float64  `json:"total_value"`
}

// HandleGetValue handles GET /portfolio/value?days=&sma=&mode=
func (h *Handler) HandleGetValue(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := valuation.SeriesOptions{Mode: valuation.Mode(q.Get("mode"))}

	var err error
	if opts.WindowDays, err = positiveParam(q.Get("days"), "days"); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	if opts.SMAPeriod, err = positiveParam(q.Get("sma"), "sma"); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	points, err := h.service.ComputeSeries(r.Context(), opts)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	result := make([]ValuePointResponse, 0, len(points))
	for _, p := range points {
		resp := ValuePointResponse{Date: p.Date, TotalValue: domain.ToFloat(p.TotalValue)}
		if p.SMA != nil {
			v := domain.ToFloat(*p.SMA)
			resp.SMA = &v
		}
		result = append(result, resp)
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HoldingResponse is one position in the summary
type HoldingResponse struct {
	Symbol           string  `json:"symbol"`
	Name             string  `json:"name"`
	PriceSource      string  `json:"price_source,omitempty"`
	Quantity         int64   `json:"quantity"`
	AverageCost      float64 `json:"average_cost"`
	CurrentPrice     float64 `json:"current_price"`
	MarketValue      float64 `json:"market_value"`
	UnrealizedPnL    float64 `json:"unrealized_pnl"`
	UnrealizedPnLPct float64 `json:"unrealized_pnl_pct"`
	PriceStale       bool    `json:"price_stale"`
}

// SeriesResponse summarizes the value series
type SeriesResponse struct {
	Days        int     `json:"days"`
	First       float64 `json:"first"`
	Last        float64 `json:"last"`
	ChangePct   float64 `json:"change_pct"`
	Mean        float64 `json:"mean"`
	StdDev      float64 `json:"stddev"`
	Volatility  float64 `json:"volatility"`
	MaxDrawdown float64 `json:"max_drawdown"`
}

// SummaryResponse is the GET /portfolio/summary payload
type SummaryResponse struct {
	Positions      []HoldingResponse `json:"positions"`
	Series         SeriesResponse    `json:"series"`
	Balance        float64           `json:"balance"`
	PositionsValue float64           `json:"positions_value"`
	TotalValue     float64           `json:"total_value"`
	CostBasis      float64           `json:"cost_basis"`
	UnrealizedPnL  float64           `json:"unrealized_pnl"`
}

// HandleGetSummary handles GET /portfolio/summary
func (h *Handler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.GetSummary(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	resp := SummaryResponse{
		Positions:      make([]HoldingResponse, 0, len(summary.Positions)),
		Balance:        domain.ToFloat(summary.Balance),
		PositionsValue: domain.ToFloat(summary.PositionsValue),
		TotalValue:     domain.ToFloat(summary.TotalValue),
		CostBasis:      domain.ToFloat(summary.CostBasis),
		UnrealizedPnL:  domain.ToFloat(summary.UnrealizedPnL),
		Series: SeriesResponse{
			Days:        summary.Series.Days,
			First:       summary.Series.First,
			Last:        summary.Series.Last,
			ChangePct:   summary.Series.ChangePct,
			Mean:        summary.Series.Mean,
			StdDev:      summary.Series.StdDev,
			Volatility:  summary.Series.Volatility,
			MaxDrawdown: summary.Series.MaxDrawdown,
		},
	}
	for _, p := range summary.Positions {
		resp.Positions = append(resp.Positions, HoldingResponse{
			Symbol:           p.Symbol,
			Name:             p.Name,
			PriceSource:      p.PriceSource,
			Quantity:         p.Quantity,
			AverageCost:      domain.ToFloat(p.AverageCost),
			CurrentPrice:     domain.ToFloat(p.CurrentPrice),
			MarketValue:      domain.ToFloat(p.MarketValue),
			UnrealizedPnL:    domain.ToFloat(p.UnrealizedPnL),
			UnrealizedPnLPct: p.UnrealizedPnLPct,
			PriceStale:       p.PriceStale,
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// positiveParam parses an optional positive integer query parameter; empty yields 0
func positiveParam(value, name string) (int, error) {
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return 0, domain.NewError(domain.KindValidation, "%s must be a positive integer, got %q", name, value)
	}
	return n, nil
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var de *domain.Error
	if errors.As(err, &de) && de.Kind == domain.KindValidation {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	h.log.Error().Err(err).Msg("Valuation failed")
	h.writeError(w, http.StatusInternalServerError, err)
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
