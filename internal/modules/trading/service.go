// Package trading applies buy and sell orders to the cash account, the
// open positions and the transaction ledger.
package trading

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/papertrader/internal/database"
	"github.com/aristath/papertrader/internal/domain"
	"github.com/aristath/papertrader/internal/events"
	"github.com/aristath/papertrader/internal/modules/portfolio"
	"github.com/aristath/papertrader/internal/services"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// PriceResolver supplies the execution price when an order carries none
type PriceResolver interface {
	GetPrice(ctx context.Context, symbol string) (*services.Quote, error)
}

// BuyRequest is a validated buy order. Price nil means "at market".
type BuyRequest struct {
	Price    *decimal.Decimal
	Symbol   string
	Name     string
	Quantity int64
}

// BuyResult describes a completed buy
type BuyResult struct {
	Message          string
	Position         domain.Position
	Transaction      domain.Transaction
	TotalCost        decimal.Decimal
	RemainingBalance decimal.Decimal
	PositionOpened   bool
}

// SellRequest is a validated sell order. All sells the whole position and
// ignores Quantity.
type SellRequest struct {
	Symbol   string
	Quantity int64
	All      bool
}

// SellResult describes a completed sell
type SellResult struct {
	Message           string
	Transaction       domain.Transaction
	Price             decimal.Decimal
	Proceeds          decimal.Decimal
	RealizedPnL       decimal.Decimal
	RemainingBalance  decimal.Decimal
	RemainingQuantity int64
	PositionClosed    bool
}

// Config holds engine settings
type Config struct {
	Currency   string
	MaxRetries int
}

// TradingService is the accounting engine. Every trade runs as one SQL
// transaction; trades are serialized in-process and the account row is
// updated with a version compare-and-swap, so a lost race is retried.
type TradingService struct {
	db           *sql.DB
	accounts     *portfolio.AccountRepository
	positions    *portfolio.PositionRepository
	transactions *TransactionRepository
	prices       PriceResolver
	events       *events.Manager
	onNewSymbol  func(symbol string)
	now          func() time.Time
	currency     string
	maxRetries   int
	mu           sync.Mutex
	log          zerolog.Logger
}

// NewTradingService creates a new trading service
func NewTradingService(
	db *sql.DB,
	accounts *portfolio.AccountRepository,
	positions *portfolio.PositionRepository,
	transactions *TransactionRepository,
	prices PriceResolver,
	eventManager *events.Manager,
	cfg Config,
	log zerolog.Logger,
) *TradingService {
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &TradingService{
		db:           db,
		accounts:     accounts,
		positions:    positions,
		transactions: transactions,
		prices:       prices,
		events:       eventManager,
		now:          time.Now,
		currency:     cfg.Currency,
		maxRetries:   cfg.MaxRetries,
		log:          log.With().Str("service", "trading").Logger(),
	}
}

// SetNewPositionHook registers fn to run after a buy opens a position in a
// symbol that was not held. fn runs on the caller's goroutine after commit.
func (s *TradingService) SetNewPositionHook(fn func(symbol string)) {
	s.onNewSymbol = fn
}

// Buy executes a buy order
func (s *TradingService) Buy(ctx context.Context, req BuyRequest) (*BuyResult, error) {
	symbol := domain.NormalizeSymbol(req.Symbol)
	if symbol == "" {
		return nil, domain.NewError(domain.KindValidation, "symbol is required")
	}
	if req.Quantity <= 0 {
		return nil, domain.NewError(domain.KindValidation, "quantity must be a positive integer, got %d", req.Quantity)
	}
	if req.Price != nil && !req.Price.IsPositive() {
		return nil, domain.NewError(domain.KindValidation, "purchase price must be positive, got %s", req.Price)
	}

	var (
		price     decimal.Decimal
		quoteName string
	)
	if req.Price != nil {
		price = *req.Price
	} else {
		quote, err := s.prices.GetPrice(ctx, symbol)
		if err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("Buy rejected: no price")
			return nil, err
		}
		price = quote.Price
		quoteName = quote.Name
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var result *BuyResult
	err := s.withRetry(ctx, "buy "+symbol, func(tx *sql.Tx) error {
		r, err := s.executeBuy(ctx, tx, symbol, req.Quantity, price, req.Name, quoteName)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		s.logRejection(err, "buy", symbol)
		return nil, err
	}

	result.Message = fmt.Sprintf("Bought %d shares of %s at %s for %s",
		req.Quantity, symbol, s.format(price), s.format(result.TotalCost))

	s.log.Info().
		Str("symbol", symbol).
		Int64("quantity", req.Quantity).
		Str("price", price.String()).
		Str("balance", result.RemainingBalance.String()).
		Msg("Buy executed")

	s.events.Emit("trading", &events.TradeExecutedData{
		Symbol:    symbol,
		Side:      string(domain.TradeKindBuy),
		Reference: result.Transaction.Reference,
		Quantity:  req.Quantity,
		Price:     domain.ToFloat(price),
		Total:     domain.ToFloat(result.TotalCost),
		Balance:   domain.ToFloat(result.RemainingBalance),
	})
	if result.PositionOpened && s.onNewSymbol != nil {
		s.onNewSymbol(symbol)
	}

	return result, nil
}

func (s *TradingService) executeBuy(ctx context.Context, tx *sql.Tx, symbol string, quantity int64, price decimal.Decimal, name, quoteName string) (*BuyResult, error) {
	accounts := s.accounts.WithTx(tx)
	positions := s.positions.WithTx(tx)
	transactions := s.transactions.WithTx(tx)

	account, err := accounts.GetOrCreate(ctx)
	if err != nil {
		return nil, err
	}

	qty := decimal.NewFromInt(quantity)
	totalCost := price.Mul(qty)
	if account.Balance.LessThan(totalCost) {
		return nil, domain.NewError(domain.KindInsufficientFunds,
			"insufficient funds: need %s, have %s", s.format(totalCost), s.format(account.Balance))
	}

	pos, err := positions.GetBySymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}

	opened := pos == nil
	if opened {
		pos = &domain.Position{Symbol: symbol, Name: name, Quantity: quantity, AverageCost: price}
		if pos.Name == "" {
			pos.Name = quoteName
		}
		if err := positions.Insert(ctx, pos); err != nil {
			return nil, err
		}
	} else {
		oldQty := decimal.NewFromInt(pos.Quantity)
		pos.AverageCost = pos.CostBasis().Add(totalCost).Div(oldQty.Add(qty))
		pos.Quantity += quantity
		if name != "" {
			pos.Name = name
		} else if pos.Name == "" {
			pos.Name = quoteName
		}
		if err := positions.Update(ctx, pos); err != nil {
			return nil, err
		}
	}

	txn := domain.Transaction{
		Symbol:     symbol,
		Date:       domain.FormatDate(s.now()),
		Kind:       domain.TradeKindBuy,
		Quantity:   quantity,
		Price:      price,
		ExecutedAt: s.now(),
	}
	if err := transactions.Create(ctx, &txn); err != nil {
		return nil, err
	}

	newBalance := account.Balance.Sub(totalCost)
	if err := accounts.CompareAndSetBalance(ctx, account.Version, newBalance); err != nil {
		return nil, err
	}

	return &BuyResult{
		Position:         *pos,
		Transaction:      txn,
		TotalCost:        totalCost,
		RemainingBalance: newBalance,
		PositionOpened:   opened,
	}, nil
}

// Sell executes a sell order. Rejections are checked in order: no
// position, bad quantity, too few shares, then price lookup.
func (s *TradingService) Sell(ctx context.Context, req SellRequest) (*SellResult, error) {
	symbol := domain.NormalizeSymbol(req.Symbol)
	if symbol == "" {
		return nil, domain.NewError(domain.KindValidation, "symbol is required")
	}

	pos, err := s.positions.GetBySymbol(ctx, symbol)
	if err != nil {
		return nil, domain.WrapError(domain.KindPersistence, err, "failed to load position")
	}
	if _, err := resolveSellQuantity(pos, symbol, req); err != nil {
		s.logRejection(err, "sell", symbol)
		return nil, err
	}

	quote, err := s.prices.GetPrice(ctx, symbol)
	if err != nil {
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("Sell rejected: no price")
		return nil, err
	}
	price := quote.Price

	s.mu.Lock()
	defer s.mu.Unlock()

	var result *SellResult
	err = s.withRetry(ctx, "sell "+symbol, func(tx *sql.Tx) error {
		r, err := s.executeSell(ctx, tx, symbol, req, price)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		s.logRejection(err, "sell", symbol)
		return nil, err
	}

	sold := result.Transaction.Quantity
	if result.PositionClosed {
		result.Message = fmt.Sprintf("Sold all %d shares of %s at %s for %s; position closed",
			sold, symbol, s.format(price), s.format(result.Proceeds))
	} else {
		result.Message = fmt.Sprintf("Sold %d shares of %s at %s for %s; %d remaining",
			sold, symbol, s.format(price), s.format(result.Proceeds), result.RemainingQuantity)
	}

	s.log.Info().
		Str("symbol", symbol).
		Int64("quantity", sold).
		Str("price", price.String()).
		Str("realized_pnl", result.RealizedPnL.String()).
		Bool("closed", result.PositionClosed).
		Msg("Sell executed")

	s.events.Emit("trading", &events.TradeExecutedData{
		Symbol:    symbol,
		Side:      string(domain.TradeKindSell),
		Reference: result.Transaction.Reference,
		Quantity:  sold,
		Price:     domain.ToFloat(price),
		Total:     domain.ToFloat(result.Proceeds),
		Balance:   domain.ToFloat(result.RemainingBalance),
	})
	if result.PositionClosed {
		s.events.Emit("trading", &events.PositionClosedData{
			Symbol:      symbol,
			RealizedPnL: domain.ToFloat(result.RealizedPnL),
		})
	}

	return result, nil
}

// resolveSellQuantity validates a sell against the held position and
// returns the number of shares to sell
func resolveSellQuantity(pos *domain.Position, symbol string, req SellRequest) (int64, error) {
	if pos == nil {
		return 0, domain.NewError(domain.KindPositionNotFound, "no position held for %s", symbol)
	}
	quantity := req.Quantity
	if req.All {
		quantity = pos.Quantity
	}
	if quantity <= 0 {
		return 0, domain.NewError(domain.KindValidation, "quantity must be a positive integer, got %d", quantity)
	}
	if quantity > pos.Quantity {
		return 0, domain.NewError(domain.KindInsufficientShares,
			"insufficient shares of %s: requested %d, held %d", symbol, quantity, pos.Quantity)
	}
	return quantity, nil
}

func (s *TradingService) executeSell(ctx context.Context, tx *sql.Tx, symbol string, req SellRequest, price decimal.Decimal) (*SellResult, error) {
	accounts := s.accounts.WithTx(tx)
	positions := s.positions.WithTx(tx)
	transactions := s.transactions.WithTx(tx)

	// Re-read inside the transaction; the position may have changed since
	// the pre-check.
	pos, err := positions.GetBySymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}
	quantity, err := resolveSellQuantity(pos, symbol, req)
	if err != nil {
		return nil, err
	}

	account, err := accounts.GetOrCreate(ctx)
	if err != nil {
		return nil, err
	}

	qty := decimal.NewFromInt(quantity)
	proceeds := price.Mul(qty)
	pnl := price.Sub(pos.AverageCost).Mul(qty)
	remaining := pos.Quantity - quantity

	if remaining == 0 {
		if err := positions.Delete(ctx, symbol); err != nil {
			return nil, err
		}
	} else {
		pos.Quantity = remaining
		if err := positions.Update(ctx, pos); err != nil {
			return nil, err
		}
	}

	txn := domain.Transaction{
		Symbol:     symbol,
		Date:       domain.FormatDate(s.now()),
		Kind:       domain.TradeKindSell,
		Quantity:   quantity,
		Price:      price,
		ExecutedAt: s.now(),
	}
	if err := transactions.Create(ctx, &txn); err != nil {
		return nil, err
	}

	newBalance := account.Balance.Add(proceeds)
	if err := accounts.CompareAndSetBalance(ctx, account.Version, newBalance); err != nil {
		return nil, err
	}

	return &SellResult{
		Transaction:       txn,
		Price:             price,
		Proceeds:          proceeds,
		RealizedPnL:       pnl,
		RemainingBalance:  newBalance,
		RemainingQuantity: remaining,
		PositionClosed:    remaining == 0,
	}, nil
}

// withRetry runs fn in a transaction, retrying lost compare-and-swaps and
// SQLite lock contention up to maxRetries times. Domain rejections are
// returned unwrapped; anything else becomes a persistence error.
func (s *TradingService) withRetry(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	var lastErr error
	attempts := s.maxRetries + 1

	for attempt := 1; attempt <= attempts; attempt++ {
		err := database.WithTransaction(ctx, s.db, nil, fn)
		if err == nil {
			return nil
		}

		var de *domain.Error
		isDomain := errors.As(err, &de)
		if !(isDomain && de.Kind == domain.KindConflict) && !database.IsBusy(err) {
			if isDomain && de.Kind != domain.KindPersistence {
				return de
			}
			return domain.WrapError(domain.KindPersistence, err, "%s failed", op)
		}

		lastErr = err
		s.log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Msg("Trade conflicted, retrying")
	}

	return domain.WrapError(domain.KindPersistence, lastErr, "%s failed after %d attempts", op, attempts)
}

func (s *TradingService) logRejection(err error, side, symbol string) {
	if domain.IsBusinessRejection(err) {
		s.log.Warn().Str("kind", string(domain.KindOf(err))).Str("side", side).Str("symbol", symbol).Msg(err.Error())
		return
	}
	s.log.Error().Err(err).Str("side", side).Str("symbol", symbol).Msg("Trade failed")
}

func (s *TradingService) format(amount decimal.Decimal) string {
	return domain.FormatMoney(amount, s.currency)
}
