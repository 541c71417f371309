package historical

import (
	"context"
	"testing"

	"github.com/aristath/papertrader/internal/domain"
	testhelpers "github.com/aristath/papertrader/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *PriceRepository) {
	db, cleanup := testhelpers.NewTestDB(t, "portfolio")
	t.Cleanup(cleanup)
	log := zerolog.Nop()
	repo := NewPriceRepository(db.Conn(), log)
	return NewService(db.Conn(), repo, log), repo
}

func TestIngestPriceSamples_Idempotent(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	batch := []domain.PriceSample{sample("aapl", "2024-01-02", "100")}

	res, err := svc.IngestPriceSamples(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, IngestResult{Inserted: 1}, res)

	res, err = svc.IngestPriceSamples(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, IngestResult{Skipped: 1}, res)

	samples, err := repo.GetBySymbol(ctx, "AAPL")
	require.NoError(t, err)
	assert.Len(t, samples, 1)
}

func TestIngestPriceSamples_DoesNotOverwrite(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	_, err := svc.IngestPriceSamples(ctx, []domain.PriceSample{sample("AAPL", "2024-01-02", "100")})
	require.NoError(t, err)
	_, err = svc.IngestPriceSamples(ctx, []domain.PriceSample{sample("AAPL", "2024-01-02", "250")})
	require.NoError(t, err)

	samples, err := repo.GetBySymbol(ctx, "AAPL")
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.True(t, samples[0].ClosingPrice.Equal(testhelpers.D("100")))
}

func TestIngestPriceSamples_InvalidBatchWritesNothing(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	_, err := svc.IngestPriceSamples(ctx, []domain.PriceSample{
		sample("AAPL", "2024-01-02", "100"),
		sample("AAPL", "not-a-date", "100"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)

	has, err := repo.HasHistory(ctx, "AAPL")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestIngestCloses(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	res, err := svc.IngestCloses(ctx, map[string]map[string]decimal.Decimal{
		"AAPL": {"2024-01-02": testhelpers.D("185"), "2024-01-03": testhelpers.D("184")},
		"MSFT": {"2024-01-02": testhelpers.D("370"), "2024-01-03": decimal.Zero},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Inserted)

	samples, err := repo.GetSince(ctx, []string{"AAPL", "MSFT"}, "2024-01-01")
	require.NoError(t, err)
	assert.Len(t, samples, 3)
}

func TestGetHistory(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.IngestPriceSamples(ctx, []domain.PriceSample{
		sample("AAPL", "2024-01-03", "2"),
		sample("AAPL", "2024-01-02", "1"),
	})
	require.NoError(t, err)

	history, err := svc.GetHistory(ctx, "aapl")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "2024-01-02", history[0].Date)

	_, err = svc.GetHistory(ctx, "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}
