package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrQuoteNotFound is returned by a PriceOracle that has no price for a symbol.
var ErrQuoteNotFound = errors.New("quote not found")

// OracleQuote is a single price reported by a PriceOracle.
type OracleQuote struct {
	Symbol   string
	Name     string
	Currency string
	Date     string
	Price    decimal.Decimal
}

// PriceOracle is the external market-data source. The engine never computes prices itself.
// Implementations must honour ctx deadlines.
type PriceOracle interface {
	// GetCurrentPrice returns a live quote, or ErrQuoteNotFound.
	GetCurrentPrice(ctx context.Context, symbol string) (*OracleQuote, error)

	// GetRecentClose returns the most recent daily close, or ErrQuoteNotFound.
	GetRecentClose(ctx context.Context, symbol string) (*OracleQuote, error)

	// GetHistoricalCloses returns symbol -> date -> close for the given period (e.g. "1mo").
	// Symbols without data are absent from the result.
	GetHistoricalCloses(ctx context.Context, symbols []string, period string) (map[string]map[string]decimal.Decimal, error)
}
