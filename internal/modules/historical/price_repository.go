// Package historical stores daily closing prices and serves them to
// valuation, price fallback and symbol lookup.
package historical

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/aristath/papertrader/internal/database"
	"github.com/aristath/papertrader/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// PriceRepository handles price_history rows, unique per (symbol, date)
type PriceRepository struct {
	db  *sql.DB
	q   database.Querier
	log zerolog.Logger
}

// NewPriceRepository creates a new price history repository
func NewPriceRepository(db *sql.DB, log zerolog.Logger) *PriceRepository {
	return &PriceRepository{
		db:  db,
		q:   db,
		log: log.With().Str("repo", "price_history").Logger(),
	}
}

// WithTx returns a copy of the repository bound to tx
func (r *PriceRepository) WithTx(tx *sql.Tx) *PriceRepository {
	cp := *r
	cp.q = tx
	return &cp
}

// Insert stores a sample unless one already exists for (symbol, date).
// First write wins; reports whether a row was written.
func (r *PriceRepository) Insert(ctx context.Context, s domain.PriceSample) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		`INSERT OR IGNORE INTO price_history (symbol, date, closing_price) VALUES (?, ?, ?)`,
		s.Symbol, s.Date, s.ClosingPrice.String(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert price %s@%s: %w", s.Symbol, s.Date, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

const sampleColumns = `id, symbol, date, closing_price`

// GetBySymbol returns all samples for symbol, oldest first
func (r *PriceRepository) GetBySymbol(ctx context.Context, symbol string) ([]domain.PriceSample, error) {
	return r.query(ctx, `SELECT `+sampleColumns+` FROM price_history WHERE symbol = ? ORDER BY date`, symbol)
}

// GetLatestClose returns the newest sample for symbol, or nil if none
func (r *PriceRepository) GetLatestClose(ctx context.Context, symbol string) (*domain.PriceSample, error) {
	samples, err := r.query(ctx,
		`SELECT `+sampleColumns+` FROM price_history WHERE symbol = ? ORDER BY date DESC LIMIT 1`, symbol)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, nil
	}
	return &samples[0], nil
}

// GetSince returns samples for the given symbols dated on or after since
// (YYYY-MM-DD), ordered by date then symbol. An empty symbol list yields nothing.
func (r *PriceRepository) GetSince(ctx context.Context, symbols []string, since string) ([]domain.PriceSample, error) {
	if len(symbols) == 0 {
		return []domain.PriceSample{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(symbols)), ",")
	args := make([]interface{}, 0, len(symbols)+1)
	args = append(args, since)
	for _, s := range symbols {
		args = append(args, s)
	}

	query := `SELECT ` + sampleColumns + ` FROM price_history
		WHERE date >= ? AND symbol IN (` + placeholders + `)
		ORDER BY date, symbol`
	return r.query(ctx, query, args...)
}

// HasHistory reports whether any sample exists for symbol
func (r *PriceRepository) HasHistory(ctx context.Context, symbol string) (bool, error) {
	var exists int
	err := r.q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM price_history WHERE symbol = ?)`, symbol,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check history for %s: %w", symbol, err)
	}
	return exists == 1, nil
}

func (r *PriceRepository) query(ctx context.Context, query string, args ...interface{}) ([]domain.PriceSample, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query price history: %w", err)
	}
	defer rows.Close()

	samples := make([]domain.PriceSample, 0)
	for rows.Next() {
		var (
			s     domain.PriceSample
			price string
		)
		if err := rows.Scan(&s.ID, &s.Symbol, &s.Date, &price); err != nil {
			return nil, fmt.Errorf("failed to scan price sample: %w", err)
		}
		s.ClosingPrice, err = decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("invalid closing price %q for %s: %w", price, s.Symbol, err)
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating price history: %w", err)
	}
	return samples, nil
}
