// Package domain provides core domain models and types.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date format used for transactions and price samples.
const DateLayout = "2006-01-02"

// AccountID is the primary key of the singleton account row.
const AccountID int64 = 1

// TradeKind is the direction of a ledger transaction
type TradeKind string

const (
	TradeKindBuy  TradeKind = "BUY"
	TradeKindSell TradeKind = "SELL"
)

// TradeKindFromString parses a trade kind, case-insensitively.
func TradeKindFromString(s string) (TradeKind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(TradeKindBuy):
		return TradeKindBuy, nil
	case string(TradeKindSell):
		return TradeKindSell, nil
	default:
		return "", fmt.Errorf("invalid trade kind: %q", s)
	}
}

// Account is the single cash account backing the portfolio.
// Version is bumped on every balance change and used for compare-and-swap updates.
type Account struct {
	UpdatedAt time.Time       `json:"updated_at"`
	Balance   decimal.Decimal `json:"balance"`
	ID        int64           `json:"id"`
	Version   int64           `json:"version"`
}

// Position is the open holding of one symbol.
// A position with zero quantity never exists; closing a position deletes it.
type Position struct {
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Symbol      string          `json:"symbol"`
	Name        string          `json:"name"`
	AverageCost decimal.Decimal `json:"average_cost"`
	ID          int64           `json:"id"`
	Quantity    int64           `json:"quantity"`
}

// Validate checks the position invariants before it is persisted.
func (p Position) Validate() error {
	if p.Symbol == "" {
		return NewError(KindValidation, "position symbol is required")
	}
	if p.Quantity <= 0 {
		return NewError(KindValidation, "position quantity must be positive, got %d", p.Quantity)
	}
	if !p.AverageCost.IsPositive() {
		return NewError(KindValidation, "position average cost must be positive, got %s", p.AverageCost)
	}
	return nil
}

// CostBasis returns quantity * average cost.
func (p Position) CostBasis() decimal.Decimal {
	return p.AverageCost.Mul(decimal.NewFromInt(p.Quantity))
}

// Transaction is one immutable row of the trade ledger.
type Transaction struct {
	ExecutedAt time.Time       `json:"executed_at"`
	Reference  string          `json:"reference"`
	Symbol     string          `json:"symbol"`
	Date       string          `json:"date"`
	Kind       TradeKind       `json:"type"`
	Price      decimal.Decimal `json:"price"`
	ID         int64           `json:"id"`
	Quantity   int64           `json:"quantity"`
}

// Total returns quantity * price.
func (t Transaction) Total() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Quantity))
}

// Validate checks the transaction fields before insertion.
func (t Transaction) Validate() error {
	if t.Symbol == "" {
		return NewError(KindValidation, "transaction symbol is required")
	}
	if t.Kind != TradeKindBuy && t.Kind != TradeKindSell {
		return NewError(KindValidation, "transaction kind must be BUY or SELL, got %q", t.Kind)
	}
	if t.Quantity <= 0 {
		return NewError(KindValidation, "transaction quantity must be positive, got %d", t.Quantity)
	}
	if !t.Price.IsPositive() {
		return NewError(KindValidation, "transaction price must be positive, got %s", t.Price)
	}
	if _, err := time.Parse(DateLayout, t.Date); err != nil {
		return NewError(KindValidation, "transaction date must be YYYY-MM-DD, got %q", t.Date)
	}
	return nil
}

// PriceSample is one historical closing price, unique per (symbol, date).
type PriceSample struct {
	Symbol       string          `json:"symbol"`
	Date         string          `json:"date"`
	ClosingPrice decimal.Decimal `json:"closing_price"`
	ID           int64           `json:"id"`
}

// Validate checks a sample before ingestion.
func (s PriceSample) Validate() error {
	if s.Symbol == "" {
		return NewError(KindValidation, "sample symbol is required")
	}
	if _, err := time.Parse(DateLayout, s.Date); err != nil {
		return NewError(KindValidation, "sample date must be YYYY-MM-DD, got %q", s.Date)
	}
	if !s.ClosingPrice.IsPositive() {
		return NewError(KindValidation, "sample closing price must be positive, got %s", s.ClosingPrice)
	}
	return nil
}

// ValuePoint is one entry of the valuation series.
type ValuePoint struct {
	SMA        *decimal.Decimal `json:"sma,omitempty"`
	Date       string           `json:"date"`
	TotalValue decimal.Decimal  `json:"total_value"`
}

// NormalizeSymbol trims and upper-cases a ticker symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// FormatDate renders t as a calendar date in its own location.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
