// Package valuation reconstructs portfolio value over time from stored
// closing prices and summarizes the current portfolio.
package valuation

import (
	"context"
	"database/sql"
	"time"

	"github.com/aristath/papertrader/internal/database"
	"github.com/aristath/papertrader/internal/domain"
	"github.com/aristath/papertrader/internal/modules/historical"
	"github.com/aristath/papertrader/internal/modules/portfolio"
	"github.com/aristath/papertrader/internal/modules/trading"
	"github.com/aristath/papertrader/internal/services"
	"github.com/aristath/papertrader/pkg/formulas"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DefaultWindowDays is the lookback used when none is configured
const DefaultWindowDays = 30

// Quoter resolves a current price for a symbol
type Quoter interface {
	GetPrice(ctx context.Context, symbol string) (*services.Quote, error)
}

// SeriesOptions controls ComputeSeries. Zero values use the defaults.
type SeriesOptions struct {
	Mode       Mode
	WindowDays int
	SMAPeriod  int
}

// Service is the valuation reconstructor. It only reads.
type Service struct {
	db            *sql.DB
	accounts      *portfolio.AccountRepository
	positions     *portfolio.PositionRepository
	transactions  *trading.TransactionRepository
	prices        *historical.PriceRepository
	quoter        Quoter
	now           func() time.Time
	defaultWindow int
	log           zerolog.Logger
}

// NewService creates a new valuation service. quoter is only needed by
// GetSummary.
func NewService(
	db *sql.DB,
	accounts *portfolio.AccountRepository,
	positions *portfolio.PositionRepository,
	transactions *trading.TransactionRepository,
	prices *historical.PriceRepository,
	quoter Quoter,
	defaultWindow int,
	log zerolog.Logger,
) *Service {
	if defaultWindow <= 0 {
		defaultWindow = DefaultWindowDays
	}
	return &Service{
		db:            db,
		accounts:      accounts,
		positions:     positions,
		transactions:  transactions,
		prices:        prices,
		quoter:        quoter,
		now:           time.Now,
		defaultWindow: defaultWindow,
		log:           log.With().Str("service", "valuation").Logger(),
	}
}

// ComputeValueSeries values the current holdings at every stored close in
// the last windowDays days. windowDays <= 0 uses the configured default.
func (s *Service) ComputeValueSeries(ctx context.Context, windowDays int) ([]domain.ValuePoint, error) {
	return s.ComputeSeries(ctx, SeriesOptions{WindowDays: windowDays})
}

// ComputeSeries builds the value series. Positions, ledger and prices are
// read in one transaction so a concurrent trade is seen entirely or not at all.
func (s *Service) ComputeSeries(ctx context.Context, opts SeriesOptions) ([]domain.ValuePoint, error) {
	mode, err := ParseMode(string(opts.Mode))
	if err != nil {
		return nil, err
	}
	if opts.SMAPeriod < 0 {
		return nil, domain.NewError(domain.KindValidation, "sma period must not be negative, got %d", opts.SMAPeriod)
	}
	window := opts.WindowDays
	if window <= 0 {
		window = s.defaultWindow
	}
	since := domain.FormatDate(s.now().AddDate(0, 0, -window))

	var points []domain.ValuePoint
	err = database.WithTransaction(ctx, s.db, nil, func(tx *sql.Tx) error {
		prices := s.prices.WithTx(tx)

		if mode == ModeCurrent {
			positions, err := s.positions.WithTx(tx).GetAll(ctx)
			if err != nil {
				return err
			}
			symbols := make([]string, 0, len(positions))
			for _, p := range positions {
				symbols = append(symbols, p.Symbol)
			}
			samples, err := prices.GetSince(ctx, symbols, since)
			if err != nil {
				return err
			}
			points = seriesFromPositions(positions, samples)
			return nil
		}

		ledger, err := s.transactions.WithTx(tx).GetAll(ctx)
		if err != nil {
			return err
		}
		seen := make(map[string]bool)
		symbols := make([]string, 0)
		for _, t := range ledger {
			if !seen[t.Symbol] {
				seen[t.Symbol] = true
				symbols = append(symbols, t.Symbol)
			}
		}
		samples, err := prices.GetSince(ctx, symbols, since)
		if err != nil {
			return err
		}
		points = seriesFromLedger(ledger, samples)
		return nil
	})
	if err != nil {
		return nil, domain.WrapError(domain.KindPersistence, err, "failed to compute value series")
	}

	if opts.SMAPeriod > 0 {
		applySMA(points, opts.SMAPeriod)
	}

	s.log.Debug().
		Str("mode", string(mode)).
		Int("window_days", window).
		Int("points", len(points)).
		Msg("Computed value series")

	return points, nil
}

func applySMA(points []domain.ValuePoint, period int) {
	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.TotalValue.InexactFloat64()
	}
	for i, v := range formulas.SMA(values, period) {
		if v == nil {
			continue
		}
		d := decimal.NewFromFloat(*v).Round(4)
		points[i].SMA = &d
	}
}

// HoldingSummary values one open position at its current price
type HoldingSummary struct {
	Symbol           string
	Name             string
	PriceSource      string
	AverageCost      decimal.Decimal
	CurrentPrice     decimal.Decimal
	MarketValue      decimal.Decimal
	CostBasis        decimal.Decimal
	UnrealizedPnL    decimal.Decimal
	Quantity         int64
	UnrealizedPnLPct float64
	PriceStale       bool
}

// SeriesStats describes the default-window value series
type SeriesStats struct {
	Days        int
	First       float64
	Last        float64
	ChangePct   float64
	Mean        float64
	StdDev      float64
	Volatility  float64
	MaxDrawdown float64
}

// Summary is a point-in-time view of the whole portfolio
type Summary struct {
	Positions      []HoldingSummary
	Balance        decimal.Decimal
	PositionsValue decimal.Decimal
	TotalValue     decimal.Decimal
	CostBasis      decimal.Decimal
	UnrealizedPnL  decimal.Decimal
	Series         SeriesStats
}

// GetSummary values every position at its current price. A position whose
// price cannot be resolved is valued at average cost and marked stale.
func (s *Service) GetSummary(ctx context.Context) (*Summary, error) {
	var (
		account   *domain.Account
		positions []domain.Position
	)
	err := database.WithTransaction(ctx, s.db, nil, func(tx *sql.Tx) error {
		var err error
		if account, err = s.accounts.WithTx(tx).GetOrCreate(ctx); err != nil {
			return err
		}
		positions, err = s.positions.WithTx(tx).GetAll(ctx)
		return err
	})
	if err != nil {
		return nil, domain.WrapError(domain.KindPersistence, err, "failed to load portfolio")
	}

	summary := &Summary{
		Balance:   account.Balance,
		Positions: make([]HoldingSummary, 0, len(positions)),
	}

	for _, p := range positions {
		h := HoldingSummary{
			Symbol:       p.Symbol,
			Name:         p.Name,
			Quantity:     p.Quantity,
			AverageCost:  p.AverageCost,
			CostBasis:    p.CostBasis(),
			CurrentPrice: p.AverageCost,
			PriceStale:   true,
		}
		if s.quoter != nil {
			if quote, err := s.quoter.GetPrice(ctx, p.Symbol); err == nil {
				h.CurrentPrice = quote.Price
				h.PriceSource = string(quote.Source)
				h.PriceStale = false
			} else {
				s.log.Warn().Err(err).Str("symbol", p.Symbol).Msg("Valuing position at cost")
			}
		}

		h.MarketValue = h.CurrentPrice.Mul(decimal.NewFromInt(p.Quantity))
		h.UnrealizedPnL = h.MarketValue.Sub(h.CostBasis)
		if h.CostBasis.IsPositive() {
			h.UnrealizedPnLPct = h.UnrealizedPnL.Div(h.CostBasis).Mul(decimal.NewFromInt(100)).Round(4).InexactFloat64()
		}

		summary.Positions = append(summary.Positions, h)
		summary.PositionsValue = summary.PositionsValue.Add(h.MarketValue)
		summary.CostBasis = summary.CostBasis.Add(h.CostBasis)
	}
	summary.UnrealizedPnL = summary.PositionsValue.Sub(summary.CostBasis)
	summary.TotalValue = summary.Balance.Add(summary.PositionsValue)

	points, err := s.ComputeValueSeries(ctx, 0)
	if err != nil {
		return nil, err
	}
	summary.Series = seriesStats(points)

	return summary, nil
}

func seriesStats(points []domain.ValuePoint) SeriesStats {
	stats := SeriesStats{Days: len(points)}
	if len(points) == 0 {
		return stats
	}

	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.TotalValue.InexactFloat64()
	}

	stats.First = values[0]
	stats.Last = values[len(values)-1]
	stats.ChangePct = formulas.ChangePct(stats.First, stats.Last)
	stats.Mean = formulas.Mean(values)
	stats.StdDev = formulas.StdDev(values)
	stats.Volatility = formulas.AnnualizedVolatility(formulas.Returns(values))
	stats.MaxDrawdown = formulas.MaxDrawdown(values)
	return stats
}
