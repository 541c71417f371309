package valuation

import (
	"context"
	"testing"

	"github.com/aristath/papertrader/internal/domain"
	"github.com/aristath/papertrader/internal/modules/historical"
	"github.com/aristath/papertrader/internal/modules/portfolio"
	"github.com/aristath/papertrader/internal/modules/trading"
	"github.com/aristath/papertrader/internal/services"
	testhelpers "github.com/aristath/papertrader/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc          *Service
	positions    *portfolio.PositionRepository
	transactions *trading.TransactionRepository
	prices       *historical.PriceRepository
	oracle       *testhelpers.FakeOracle
}

func newFixture(t *testing.T) *fixture {
	db, cleanup := testhelpers.NewTestDB(t, "portfolio")
	t.Cleanup(cleanup)

	log := zerolog.New(nil).Level(zerolog.Disabled)
	f := &fixture{
		positions:    portfolio.NewPositionRepository(db.Conn(), log),
		transactions: trading.NewTransactionRepository(db.Conn(), log),
		prices:       historical.NewPriceRepository(db.Conn(), log),
		oracle:       testhelpers.NewFakeOracle(),
	}
	accounts := portfolio.NewAccountRepository(db.Conn(), testhelpers.D("10000"), log)
	quoter := services.NewPriceService(f.oracle, nil, 0, log)

	f.svc = NewService(db.Conn(), accounts, f.positions, f.transactions, f.prices, quoter, 30, log)
	f.svc.now = testhelpers.FixedClock("2024-01-31")
	return f
}

func (f *fixture) hold(t *testing.T, symbol string, qty int64, avg string) {
	require.NoError(t, f.positions.Insert(context.Background(), &domain.Position{
		Symbol: symbol, Quantity: qty, AverageCost: testhelpers.D(avg),
	}))
}

func (f *fixture) close(t *testing.T, symbol, date, price string) {
	_, err := f.prices.Insert(context.Background(), ps(symbol, date, price))
	require.NoError(t, err)
}

func TestComputeValueSeries_NoPositions(t *testing.T) {
	f := newFixture(t)
	f.close(t, "AAPL", "2024-01-30", "100")

	points, err := f.svc.ComputeValueSeries(context.Background(), 30)
	require.NoError(t, err)
	assert.NotNil(t, points)
	assert.Empty(t, points)
}

func TestComputeValueSeries_OnePositionThreeSamples(t *testing.T) {
	f := newFixture(t)
	f.hold(t, "AAPL", 4, "90")
	f.close(t, "AAPL", "2024-01-29", "100")
	f.close(t, "AAPL", "2024-01-30", "102.5")
	f.close(t, "AAPL", "2024-01-26", "99")

	points, err := f.svc.ComputeValueSeries(context.Background(), 30)
	require.NoError(t, err)
	require.Len(t, points, 3)

	assert.Equal(t, "2024-01-26", points[0].Date)
	assert.True(t, points[0].TotalValue.Equal(testhelpers.D("396")))
	assert.True(t, points[1].TotalValue.Equal(testhelpers.D("400")))
	assert.True(t, points[2].TotalValue.Equal(testhelpers.D("410")))
}

func TestComputeValueSeries_Window(t *testing.T) {
	f := newFixture(t)
	f.hold(t, "AAPL", 1, "90")
	f.close(t, "AAPL", "2023-12-01", "80")
	f.close(t, "AAPL", "2024-01-21", "95")
	f.close(t, "AAPL", "2024-01-30", "100")

	points, err := f.svc.ComputeValueSeries(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, "2024-01-21", points[0].Date)

	// Zero uses the configured default of 30 days
	points, err = f.svc.ComputeValueSeries(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, points, 2)

	points, err = f.svc.ComputeValueSeries(context.Background(), 90)
	require.NoError(t, err)
	assert.Len(t, points, 3)
}

func TestComputeSeries_HistoricalMode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, tx := range []domain.Transaction{
		txn("AAPL", "2024-01-10", domain.TradeKindBuy, 2),
		txn("MSFT", "2024-01-11", domain.TradeKindBuy, 1),
		txn("MSFT", "2024-01-12", domain.TradeKindSell, 1),
	} {
		tx := tx
		require.NoError(t, f.transactions.Create(ctx, &tx))
	}
	f.hold(t, "AAPL", 2, "1")
	f.close(t, "AAPL", "2024-01-09", "50")
	f.close(t, "AAPL", "2024-01-11", "60")
	f.close(t, "MSFT", "2024-01-11", "300")
	f.close(t, "MSFT", "2024-01-12", "310")

	points, err := f.svc.ComputeSeries(ctx, SeriesOptions{Mode: ModeHistorical})
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "2024-01-11", points[0].Date)
	assert.True(t, points[0].TotalValue.Equal(testhelpers.D("420")))

	current, err := f.svc.ComputeSeries(ctx, SeriesOptions{Mode: ModeCurrent})
	require.NoError(t, err)
	require.Len(t, current, 2)
	assert.True(t, current[0].TotalValue.Equal(testhelpers.D("100")))
}

func TestComputeSeries_SMA(t *testing.T) {
	f := newFixture(t)
	f.hold(t, "AAPL", 1, "1")
	f.close(t, "AAPL", "2024-01-27", "10")
	f.close(t, "AAPL", "2024-01-28", "20")
	f.close(t, "AAPL", "2024-01-29", "30")

	points, err := f.svc.ComputeSeries(context.Background(), SeriesOptions{SMAPeriod: 2})
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Nil(t, points[0].SMA)
	require.NotNil(t, points[1].SMA)
	assert.True(t, points[1].SMA.Equal(testhelpers.D("15")))
	assert.True(t, points[2].SMA.Equal(testhelpers.D("25")))
}

func TestComputeSeries_InvalidOptions(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ComputeSeries(context.Background(), SeriesOptions{Mode: "fifo"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.ComputeSeries(context.Background(), SeriesOptions{SMAPeriod: -1})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestGetSummary(t *testing.T) {
	f := newFixture(t)
	f.hold(t, "AAPL", 10, "100")
	f.hold(t, "MSFT", 2, "400")
	f.oracle.SetCurrentPrice("AAPL", "Apple", "110")
	f.close(t, "AAPL", "2024-01-29", "100")
	f.close(t, "AAPL", "2024-01-30", "110")

	summary, err := f.svc.GetSummary(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.Positions, 2)
	aapl := summary.Positions[0]
	assert.Equal(t, "AAPL", aapl.Symbol)
	assert.False(t, aapl.PriceStale)
	assert.Equal(t, "live", aapl.PriceSource)
	assert.True(t, aapl.MarketValue.Equal(testhelpers.D("1100")))
	assert.True(t, aapl.UnrealizedPnL.Equal(testhelpers.D("100")))
	assert.InDelta(t, 10.0, aapl.UnrealizedPnLPct, 1e-9)

	msft := summary.Positions[1]
	assert.True(t, msft.PriceStale)
	assert.True(t, msft.MarketValue.Equal(testhelpers.D("800")))
	assert.True(t, msft.UnrealizedPnL.IsZero())

	assert.True(t, summary.Balance.Equal(testhelpers.D("10000")))
	assert.True(t, summary.PositionsValue.Equal(testhelpers.D("1900")))
	assert.True(t, summary.TotalValue.Equal(testhelpers.D("11900")))
	assert.True(t, summary.UnrealizedPnL.Equal(testhelpers.D("100")))

	assert.Equal(t, 2, summary.Series.Days)
	assert.InDelta(t, 1000.0, summary.Series.First, 1e-9)
	assert.InDelta(t, 1100.0, summary.Series.Last, 1e-9)
	assert.InDelta(t, 10.0, summary.Series.ChangePct, 1e-9)
}
