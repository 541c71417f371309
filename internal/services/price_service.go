package services

import (
	"context"
	"errors"
	"time"

	"github.com/aristath/papertrader/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// QuoteSource records which step of the fallback chain produced a price
type QuoteSource string

const (
	SourceLive        QuoteSource = "live"
	SourceRecentClose QuoteSource = "recent_close"
	SourceStoredClose QuoteSource = "stored_close"
)

// Quote is a resolved price for a symbol
type Quote struct {
	Symbol   string          `json:"symbol"`
	Name     string          `json:"name"`
	Currency string          `json:"currency"`
	Date     string          `json:"date"`
	Source   QuoteSource     `json:"source"`
	Price    decimal.Decimal `json:"price"`
}

// LatestCloseReader reads the newest stored close for a symbol.
// Returns nil, nil when the symbol has no history.
type LatestCloseReader interface {
	GetLatestClose(ctx context.Context, symbol string) (*domain.PriceSample, error)
}

// PriceService resolves a trade price: live quote, then the oracle's most
// recent close, then the newest close in local price history.
type PriceService struct {
	oracle  domain.PriceOracle
	store   LatestCloseReader
	timeout time.Duration
	log     zerolog.Logger
}

// NewPriceService creates a new price service. store may be nil.
func NewPriceService(oracle domain.PriceOracle, store LatestCloseReader, timeout time.Duration, log zerolog.Logger) *PriceService {
	return &PriceService{
		oracle:  oracle,
		store:   store,
		timeout: timeout,
		log:     log.With().Str("service", "price").Logger(),
	}
}

// GetPrice walks the fallback chain. Every oracle call shares one deadline
// of s.timeout; failure of all steps yields a price_unavailable error.
func (s *PriceService) GetPrice(ctx context.Context, symbol string) (*Quote, error) {
	symbol = domain.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, domain.NewError(domain.KindValidation, "symbol is required")
	}

	var lastErr error

	if s.oracle != nil {
		oracleCtx := ctx
		if s.timeout > 0 {
			var cancel context.CancelFunc
			oracleCtx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}

		q, err := s.oracle.GetCurrentPrice(oracleCtx, symbol)
		if quote := s.accept(symbol, q, err, SourceLive); quote != nil {
			return quote, nil
		}
		lastErr = pickErr(lastErr, err)

		q, err = s.oracle.GetRecentClose(oracleCtx, symbol)
		if quote := s.accept(symbol, q, err, SourceRecentClose); quote != nil {
			return quote, nil
		}
		lastErr = pickErr(lastErr, err)
	}

	if s.store != nil {
		sample, err := s.store.GetLatestClose(ctx, symbol)
		if err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to read stored close")
			lastErr = pickErr(lastErr, err)
		} else if sample != nil && sample.ClosingPrice.IsPositive() {
			s.log.Info().Str("symbol", symbol).Str("date", sample.Date).Msg("Using stored close as price")
			return &Quote{
				Symbol: symbol,
				Date:   sample.Date,
				Source: SourceStoredClose,
				Price:  sample.ClosingPrice,
			}, nil
		}
	}

	if lastErr == nil {
		lastErr = domain.ErrQuoteNotFound
	}
	return nil, domain.WrapError(domain.KindPriceUnavailable, lastErr, "no price available for %s", symbol)
}

func (s *PriceService) accept(symbol string, q *domain.OracleQuote, err error, source QuoteSource) *Quote {
	if err != nil {
		if !errors.Is(err, domain.ErrQuoteNotFound) {
			s.log.Warn().Err(err).Str("symbol", symbol).Str("source", string(source)).Msg("Oracle lookup failed")
		}
		return nil
	}
	if q == nil || !q.Price.IsPositive() {
		return nil
	}
	return &Quote{
		Symbol:   symbol,
		Name:     q.Name,
		Currency: q.Currency,
		Date:     q.Date,
		Source:   source,
		Price:    q.Price,
	}
}

// pickErr keeps the most informative error: a real failure beats "not found".
func pickErr(current, next error) error {
	if next == nil {
		return current
	}
	if current == nil || errors.Is(current, domain.ErrQuoteNotFound) {
		return next
	}
	return current
}

// GetPrices resolves prices for several symbols. Symbols whose price is
// unavailable are absent from the result.
func (s *PriceService) GetPrices(ctx context.Context, symbols []string) map[string]*Quote {
	out := make(map[string]*Quote, len(symbols))
	for _, symbol := range symbols {
		q, err := s.GetPrice(ctx, symbol)
		if err != nil {
			continue
		}
		out[q.Symbol] = q
	}
	return out
}
