package historical

import (
	"context"
	"database/sql"
	"sort"

	"github.com/aristath/papertrader/internal/database"
	"github.com/aristath/papertrader/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// IngestResult counts the outcome of an ingestion batch
type IngestResult struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

// Service ingests and reads price history
type Service struct {
	db   *sql.DB
	repo *PriceRepository
	log  zerolog.Logger
}

// NewService creates a new historical price service
func NewService(db *sql.DB, repo *PriceRepository, log zerolog.Logger) *Service {
	return &Service{
		db:   db,
		repo: repo,
		log:  log.With().Str("service", "historical").Logger(),
	}
}

// IngestPriceSamples stores samples with first-write-wins semantics. The
// whole batch is validated before anything is written and is committed in
// one transaction; re-ingesting existing keys is a no-op.
func (s *Service) IngestPriceSamples(ctx context.Context, samples []domain.PriceSample) (IngestResult, error) {
	var result IngestResult
	if len(samples) == 0 {
		return result, nil
	}

	normalized := make([]domain.PriceSample, len(samples))
	for i, sample := range samples {
		sample.Symbol = domain.NormalizeSymbol(sample.Symbol)
		if err := sample.Validate(); err != nil {
			return result, err
		}
		normalized[i] = sample
	}

	err := database.WithTransaction(ctx, s.db, nil, func(tx *sql.Tx) error {
		repo := s.repo.WithTx(tx)
		for _, sample := range normalized {
			inserted, err := repo.Insert(ctx, sample)
			if err != nil {
				return err
			}
			if inserted {
				result.Inserted++
			} else {
				result.Skipped++
			}
		}
		return nil
	})
	if err != nil {
		return IngestResult{}, domain.WrapError(domain.KindPersistence, err, "failed to ingest price samples")
	}

	s.log.Debug().Int("inserted", result.Inserted).Int("skipped", result.Skipped).Msg("Ingested price samples")
	return result, nil
}

// IngestCloses flattens an oracle symbol -> date -> close map and ingests it
func (s *Service) IngestCloses(ctx context.Context, closes map[string]map[string]decimal.Decimal) (IngestResult, error) {
	var samples []domain.PriceSample
	for symbol, byDate := range closes {
		for date, price := range byDate {
			if !price.IsPositive() {
				continue
			}
			samples = append(samples, domain.PriceSample{Symbol: symbol, Date: date, ClosingPrice: price})
		}
	}
	sort.Slice(samples, func(i, j int) bool {
		if samples[i].Date != samples[j].Date {
			return samples[i].Date < samples[j].Date
		}
		return samples[i].Symbol < samples[j].Symbol
	})
	return s.IngestPriceSamples(ctx, samples)
}

// GetHistory returns all stored closes for symbol, oldest first
func (s *Service) GetHistory(ctx context.Context, symbol string) ([]domain.PriceSample, error) {
	symbol = domain.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, domain.NewError(domain.KindValidation, "symbol is required")
	}
	samples, err := s.repo.GetBySymbol(ctx, symbol)
	if err != nil {
		return nil, domain.WrapError(domain.KindPersistence, err, "failed to load price history")
	}
	return samples, nil
}

// HasHistory reports whether symbol has any stored close
func (s *Service) HasHistory(ctx context.Context, symbol string) (bool, error) {
	return s.repo.HasHistory(ctx, domain.NormalizeSymbol(symbol))
}
