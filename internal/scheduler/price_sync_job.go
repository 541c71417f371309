package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/papertrader/internal/domain"
	"github.com/aristath/papertrader/internal/events"
	"github.com/aristath/papertrader/internal/modules/historical"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// HeldSymbolsProvider lists the symbols currently held
type HeldSymbolsProvider interface {
	HeldSymbols(ctx context.Context) ([]string, error)
}

// CloseIngester stores closing prices, skipping existing (symbol, date) keys
type CloseIngester interface {
	IngestCloses(ctx context.Context, closes map[string]map[string]decimal.Decimal) (historical.IngestResult, error)
}

// PriceSyncJob pulls recent daily closes for held symbols into price
// history. Ingestion is idempotent, so the job can be rerun freely.
type PriceSyncJob struct {
	holdings HeldSymbolsProvider
	oracle   domain.PriceOracle
	ingester CloseIngester
	events   *events.Manager
	period   string
	timeout  time.Duration
	log      zerolog.Logger
}

// PriceSyncJobName is the name used for manual triggers
const PriceSyncJobName = "price_sync"

// NewPriceSyncJob creates a new price sync job. period is an oracle range
// such as "1mo"; timeout bounds a whole run.
func NewPriceSyncJob(
	holdings HeldSymbolsProvider,
	oracle domain.PriceOracle,
	ingester CloseIngester,
	eventManager *events.Manager,
	period string,
	timeout time.Duration,
	log zerolog.Logger,
) *PriceSyncJob {
	if period == "" {
		period = "1mo"
	}
	return &PriceSyncJob{
		holdings: holdings,
		oracle:   oracle,
		ingester: ingester,
		events:   eventManager,
		period:   period,
		timeout:  timeout,
		log:      log.With().Str("job", PriceSyncJobName).Logger(),
	}
}

// Name returns the job name
func (j *PriceSyncJob) Name() string {
	return PriceSyncJobName
}

// Run syncs every held symbol
func (j *PriceSyncJob) Run() error {
	ctx := context.Background()
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	symbols, err := j.holdings.HeldSymbols(ctx)
	if err != nil {
		return fmt.Errorf("failed to list held symbols: %w", err)
	}
	if len(symbols) == 0 {
		j.log.Debug().Msg("No positions held, nothing to sync")
		return nil
	}

	_, err = j.SyncSymbols(ctx, symbols)
	return err
}

// SyncSymbols fetches and ingests closes for the given symbols
func (j *PriceSyncJob) SyncSymbols(ctx context.Context, symbols []string) (historical.IngestResult, error) {
	closes, err := j.oracle.GetHistoricalCloses(ctx, symbols, j.period)
	if err != nil {
		j.events.EmitError("scheduler", err, map[string]interface{}{"job": PriceSyncJobName})
		return historical.IngestResult{}, fmt.Errorf("failed to fetch historical closes: %w", err)
	}

	result, err := j.ingester.IngestCloses(ctx, closes)
	if err != nil {
		j.events.EmitError("scheduler", err, map[string]interface{}{"job": PriceSyncJobName})
		return result, fmt.Errorf("failed to ingest closes: %w", err)
	}

	synced := make([]string, 0, len(closes))
	for _, s := range symbols {
		if _, ok := closes[s]; ok {
			synced = append(synced, s)
		}
	}

	j.log.Info().
		Strs("symbols", synced).
		Int("inserted", result.Inserted).
		Int("skipped", result.Skipped).
		Msg("Price history synced")

	j.events.Emit("scheduler", &events.PricesSyncedData{
		Period:   j.period,
		Symbols:  synced,
		Inserted: result.Inserted,
	})

	return result, nil
}
