package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aristath/papertrader/internal/domain"
	testhelpers "github.com/aristath/papertrader/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCloseReader struct {
	sample *domain.PriceSample
	err    error
}

func (s *stubCloseReader) GetLatestClose(ctx context.Context, symbol string) (*domain.PriceSample, error) {
	return s.sample, s.err
}

type slowOracle struct {
	*testhelpers.FakeOracle
}

func (s slowOracle) GetCurrentPrice(ctx context.Context, symbol string) (*domain.OracleQuote, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s slowOracle) GetRecentClose(ctx context.Context, symbol string) (*domain.OracleQuote, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestGetPrice_LiveQuote(t *testing.T) {
	oracle := testhelpers.NewFakeOracle()
	oracle.SetCurrentPrice("AAPL", "Apple Inc.", "185.50")
	oracle.SetRecentClose("AAPL", "2024-01-02", "180")

	svc := NewPriceService(oracle, nil, time.Second, zerolog.Nop())
	q, err := svc.GetPrice(context.Background(), " aapl ")
	require.NoError(t, err)

	assert.Equal(t, "AAPL", q.Symbol)
	assert.Equal(t, SourceLive, q.Source)
	assert.Equal(t, "Apple Inc.", q.Name)
	assert.True(t, q.Price.Equal(testhelpers.D("185.50")))
	assert.Equal(t, 0, oracle.Calls("GetRecentClose"))
}

func TestGetPrice_FallsBackToRecentClose(t *testing.T) {
	oracle := testhelpers.NewFakeOracle()
	oracle.SetRecentClose("AAPL", "2024-01-02", "180")

	svc := NewPriceService(oracle, nil, time.Second, zerolog.Nop())
	q, err := svc.GetPrice(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, SourceRecentClose, q.Source)
	assert.Equal(t, "2024-01-02", q.Date)
	assert.True(t, q.Price.Equal(testhelpers.D("180")))
}

func TestGetPrice_FallsBackToStoredClose(t *testing.T) {
	oracle := testhelpers.NewFakeOracle()
	oracle.SetErrors(errors.New("network down"), errors.New("network down"), nil)
	store := &stubCloseReader{sample: &domain.PriceSample{Symbol: "AAPL", Date: "2024-01-01", ClosingPrice: testhelpers.D("175")}}

	svc := NewPriceService(oracle, store, time.Second, zerolog.Nop())
	q, err := svc.GetPrice(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, SourceStoredClose, q.Source)
	assert.True(t, q.Price.Equal(testhelpers.D("175")))
}

func TestGetPrice_Unavailable(t *testing.T) {
	oracle := testhelpers.NewFakeOracle()
	svc := NewPriceService(oracle, &stubCloseReader{}, time.Second, zerolog.Nop())

	_, err := svc.GetPrice(context.Background(), "NOPE")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
	assert.Equal(t, domain.KindPriceUnavailable, domain.KindOf(err))
}

func TestGetPrice_OracleErrorIsReported(t *testing.T) {
	oracle := testhelpers.NewFakeOracle()
	boom := errors.New("status 503")
	oracle.SetErrors(boom, nil, nil)

	svc := NewPriceService(oracle, nil, time.Second, zerolog.Nop())
	_, err := svc.GetPrice(context.Background(), "AAPL")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
	assert.ErrorIs(t, err, boom)
}

func TestGetPrice_TimeoutBecomesUnavailable(t *testing.T) {
	oracle := slowOracle{testhelpers.NewFakeOracle()}
	svc := NewPriceService(oracle, nil, 30*time.Millisecond, zerolog.Nop())

	start := time.Now()
	_, err := svc.GetPrice(context.Background(), "AAPL")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
	assert.Less(t, time.Since(start), time.Second)
}

func TestGetPrice_EmptySymbol(t *testing.T) {
	svc := NewPriceService(testhelpers.NewFakeOracle(), nil, time.Second, zerolog.Nop())
	_, err := svc.GetPrice(context.Background(), "  ")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestGetPrices_SkipsUnavailable(t *testing.T) {
	oracle := testhelpers.NewFakeOracle()
	oracle.SetCurrentPrice("AAPL", "Apple", "100")
	oracle.SetCurrentPrice("MSFT", "Microsoft", "200")

	svc := NewPriceService(oracle, nil, time.Second, zerolog.Nop())
	prices := svc.GetPrices(context.Background(), []string{"AAPL", "MSFT", "NOPE"})

	assert.Len(t, prices, 2)
	assert.True(t, prices["MSFT"].Price.Equal(testhelpers.D("200")))
}
