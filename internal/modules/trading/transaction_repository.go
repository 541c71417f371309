package trading

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/papertrader/internal/database"
	"github.com/aristath/papertrader/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// transactionColumns must match scanTransaction
const transactionColumns = `id, reference, symbol, date, kind, quantity, price, executed_at`

// HistoryFilter narrows GetHistory. Zero values mean no filtering.
type HistoryFilter struct {
	Symbol string
	Kind   domain.TradeKind
	Limit  int
}

// TransactionRepository handles the append-only trade ledger.
// Rows are never updated or deleted; the schema enforces this with triggers.
type TransactionRepository struct {
	db  *sql.DB
	q   database.Querier
	now func() time.Time
	log zerolog.Logger
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *sql.DB, log zerolog.Logger) *TransactionRepository {
	return &TransactionRepository{
		db:  db,
		q:   db,
		now: time.Now,
		log: log.With().Str("repo", "transaction").Logger(),
	}
}

// WithTx returns a copy of the repository bound to tx
func (r *TransactionRepository) WithTx(tx *sql.Tx) *TransactionRepository {
	cp := *r
	cp.q = tx
	return &cp
}

// Create appends a transaction. It fills in Reference (when empty),
// ExecutedAt and ID.
func (r *TransactionRepository) Create(ctx context.Context, t *domain.Transaction) error {
	t.Symbol = domain.NormalizeSymbol(t.Symbol)
	if err := t.Validate(); err != nil {
		return err
	}
	if t.Reference == "" {
		t.Reference = uuid.NewString()
	}
	if t.ExecutedAt.IsZero() {
		t.ExecutedAt = r.now()
	}

	res, err := r.q.ExecContext(ctx,
		`INSERT INTO transactions (reference, symbol, date, kind, quantity, price, executed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.Reference, t.Symbol, t.Date, string(t.Kind), t.Quantity, t.Price.String(), t.ExecutedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get transaction id: %w", err)
	}
	t.ID = id
	t.ExecutedAt = time.Unix(t.ExecutedAt.Unix(), 0).UTC()

	r.log.Debug().
		Str("reference", t.Reference).
		Str("symbol", t.Symbol).
		Str("kind", string(t.Kind)).
		Int64("quantity", t.Quantity).
		Msg("Transaction recorded")

	return nil
}

// GetHistory returns transactions ordered by date then insertion order.
// With a limit, the most recent rows are kept and still returned oldest first.
func (r *TransactionRepository) GetHistory(ctx context.Context, filter HistoryFilter) ([]domain.Transaction, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	if filter.Symbol != "" {
		where += " AND symbol = ?"
		args = append(args, domain.NormalizeSymbol(filter.Symbol))
	}
	if filter.Kind != "" {
		where += " AND kind = ?"
		args = append(args, string(filter.Kind))
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions` + where + ` ORDER BY date, id`
	if filter.Limit > 0 {
		query = `SELECT ` + transactionColumns + ` FROM (
			SELECT ` + transactionColumns + ` FROM transactions` + where + `
			ORDER BY date DESC, id DESC LIMIT ?
		) ORDER BY date, id`
		args = append(args, filter.Limit)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return result, nil
}

// GetAll returns the full ledger in order
func (r *TransactionRepository) GetAll(ctx context.Context) ([]domain.Transaction, error) {
	return r.GetHistory(ctx, HistoryFilter{})
}

// Count returns the number of ledger rows
func (r *TransactionRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (domain.Transaction, error) {
	var (
		t          domain.Transaction
		kind       string
		price      string
		executedAt int64
	)
	if err := row.Scan(&t.ID, &t.Reference, &t.Symbol, &t.Date, &kind, &t.Quantity, &price, &executedAt); err != nil {
		return t, err
	}

	k, err := domain.TradeKindFromString(kind)
	if err != nil {
		return t, err
	}
	t.Kind = k

	t.Price, err = decimal.NewFromString(price)
	if err != nil {
		return t, fmt.Errorf("invalid price %q for transaction %d: %w", price, t.ID, err)
	}
	t.ExecutedAt = time.Unix(executedAt, 0).UTC()
	return t, nil
}
