package portfolio

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/papertrader/internal/database"
	"github.com/aristath/papertrader/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// PositionRepository handles position database operations
type PositionRepository struct {
	db  *sql.DB
	q   database.Querier
	now func() time.Time
	log zerolog.Logger
}

// NewPositionRepository creates a new position repository
func NewPositionRepository(db *sql.DB, log zerolog.Logger) *PositionRepository {
	return &PositionRepository{
		db:  db,
		q:   db,
		now: time.Now,
		log: log.With().Str("repo", "position").Logger(),
	}
}

// WithTx returns a copy of the repository bound to tx
func (r *PositionRepository) WithTx(tx *sql.Tx) *PositionRepository {
	cp := *r
	cp.q = tx
	return &cp
}

const positionColumns = `id, symbol, name, quantity, average_cost, created_at, updated_at`

// GetAll returns all open positions ordered by creation
func (r *PositionRepository) GetAll(ctx context.Context) ([]domain.Position, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+positionColumns+` FROM positions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	positions := make([]domain.Position, 0)
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}

	return positions, nil
}

// GetBySymbol returns the position for symbol, or nil if none is held
func (r *PositionRepository) GetBySymbol(ctx context.Context, symbol string) (*domain.Position, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+positionColumns+` FROM positions WHERE symbol = ?`, symbol)
	pos, err := scanPosition(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position %s: %w", symbol, err)
	}
	return &pos, nil
}

// Symbols returns the held symbols
func (r *PositionRepository) Symbols(ctx context.Context) ([]string, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT symbol FROM positions ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, s)
	}
	return symbols, rows.Err()
}

// Insert creates a new position and sets its ID and timestamps
func (r *PositionRepository) Insert(ctx context.Context, pos *domain.Position) error {
	if err := pos.Validate(); err != nil {
		return err
	}

	now := r.now()
	res, err := r.q.ExecContext(ctx,
		`INSERT INTO positions (symbol, name, quantity, average_cost, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		pos.Symbol, pos.Name, pos.Quantity, pos.AverageCost.String(), now.Unix(), now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert position %s: %w", pos.Symbol, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get position id: %w", err)
	}
	pos.ID = id
	pos.CreatedAt = time.Unix(now.Unix(), 0).UTC()
	pos.UpdatedAt = pos.CreatedAt
	return nil
}

// Update writes quantity, average cost and name for an existing position
func (r *PositionRepository) Update(ctx context.Context, pos *domain.Position) error {
	if err := pos.Validate(); err != nil {
		return err
	}

	now := r.now()
	res, err := r.q.ExecContext(ctx,
		`UPDATE positions SET name = ?, quantity = ?, average_cost = ?, updated_at = ? WHERE symbol = ?`,
		pos.Name, pos.Quantity, pos.AverageCost.String(), now.Unix(), pos.Symbol,
	)
	if err != nil {
		return fmt.Errorf("failed to update position %s: %w", pos.Symbol, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("failed to update position %s: not found", pos.Symbol)
	}
	pos.UpdatedAt = time.Unix(now.Unix(), 0).UTC()
	return nil
}

// Delete removes the position for symbol
func (r *PositionRepository) Delete(ctx context.Context, symbol string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM positions WHERE symbol = ?`, symbol)
	if err != nil {
		return fmt.Errorf("failed to delete position %s: %w", symbol, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("failed to delete position %s: not found", symbol)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(row rowScanner) (domain.Position, error) {
	var (
		pos                  domain.Position
		avgCost              string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&pos.ID, &pos.Symbol, &pos.Name, &pos.Quantity, &avgCost, &createdAt, &updatedAt); err != nil {
		return pos, err
	}

	cost, err := decimal.NewFromString(avgCost)
	if err != nil {
		return pos, fmt.Errorf("invalid average cost %q for %s: %w", avgCost, pos.Symbol, err)
	}
	pos.AverageCost = cost
	pos.CreatedAt = time.Unix(createdAt, 0).UTC()
	pos.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return pos, nil
}
