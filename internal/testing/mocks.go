package testing

import (
	"context"
	"sync"

	"github.com/aristath/papertrader/internal/domain"
	"github.com/shopspring/decimal"
)

// FakeOracle is an in-memory domain.PriceOracle.
// Unset symbols return domain.ErrQuoteNotFound.
type FakeOracle struct {
	current    map[string]*domain.OracleQuote
	closes     map[string]*domain.OracleQuote
	history    map[string]map[string]decimal.Decimal
	currentErr error
	closeErr   error
	historyErr error
	calls      map[string]int
	mu         sync.Mutex
}

// NewFakeOracle creates an empty fake oracle
func NewFakeOracle() *FakeOracle {
	return &FakeOracle{
		current: make(map[string]*domain.OracleQuote),
		closes:  make(map[string]*domain.OracleQuote),
		history: make(map[string]map[string]decimal.Decimal),
		calls:   make(map[string]int),
	}
}

// SetCurrentPrice sets the live quote for symbol
func (f *FakeOracle) SetCurrentPrice(symbol, name, price string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current[symbol] = &domain.OracleQuote{
		Symbol: symbol, Name: name, Currency: "USD", Price: decimal.RequireFromString(price),
	}
}

// SetRecentClose sets the recent close for symbol
func (f *FakeOracle) SetRecentClose(symbol, date, price string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes[symbol] = &domain.OracleQuote{
		Symbol: symbol, Currency: "USD", Date: date, Price: decimal.RequireFromString(price),
	}
}

// SetHistory sets date -> close for symbol
func (f *FakeOracle) SetHistory(symbol string, closes map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := make(map[string]decimal.Decimal, len(closes))
	for date, price := range closes {
		m[date] = decimal.RequireFromString(price)
	}
	f.history[symbol] = m
}

// SetErrors makes every call of the given kind fail. Nil clears it.
func (f *FakeOracle) SetErrors(current, recentClose, history error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.currentErr = current
	f.closeErr = recentClose
	f.historyErr = history
}

// Calls returns how many times method was invoked
func (f *FakeOracle) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// GetCurrentPrice implements domain.PriceOracle
func (f *FakeOracle) GetCurrentPrice(ctx context.Context, symbol string) (*domain.OracleQuote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["GetCurrentPrice"]++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.currentErr != nil {
		return nil, f.currentErr
	}
	q, ok := f.current[symbol]
	if !ok {
		return nil, domain.ErrQuoteNotFound
	}
	cp := *q
	return &cp, nil
}

// GetRecentClose implements domain.PriceOracle
func (f *FakeOracle) GetRecentClose(ctx context.Context, symbol string) (*domain.OracleQuote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["GetRecentClose"]++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.closeErr != nil {
		return nil, f.closeErr
	}
	q, ok := f.closes[symbol]
	if !ok {
		return nil, domain.ErrQuoteNotFound
	}
	cp := *q
	return &cp, nil
}

// GetHistoricalCloses implements domain.PriceOracle
func (f *FakeOracle) GetHistoricalCloses(ctx context.Context, symbols []string, period string) (map[string]map[string]decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["GetHistoricalCloses"]++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	out := make(map[string]map[string]decimal.Decimal)
	for _, s := range symbols {
		if h, ok := f.history[s]; ok {
			cp := make(map[string]decimal.Decimal, len(h))
			for d, p := range h {
				cp[d] = p
			}
			out[s] = cp
		}
	}
	return out, nil
}

var _ domain.PriceOracle = (*FakeOracle)(nil)
