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

// AccountRepository handles the singleton cash account
type AccountRepository struct {
	db              *sql.DB
	q               database.Querier
	startingBalance decimal.Decimal
	now             func() time.Time
	log             zerolog.Logger
}

// NewAccountRepository creates a new account repository. startingBalance
// seeds the account the first time it is read.
func NewAccountRepository(db *sql.DB, startingBalance decimal.Decimal, log zerolog.Logger) *AccountRepository {
	return &AccountRepository{
		db:              db,
		q:               db,
		startingBalance: startingBalance,
		now:             time.Now,
		log:             log.With().Str("repo", "account").Logger(),
	}
}

// WithTx returns a copy of the repository bound to tx
func (r *AccountRepository) WithTx(tx *sql.Tx) *AccountRepository {
	cp := *r
	cp.q = tx
	return &cp
}

// GetOrCreate returns the account, seeding it with the starting balance if absent
func (r *AccountRepository) GetOrCreate(ctx context.Context) (*domain.Account, error) {
	res, err := r.q.ExecContext(ctx,
		`INSERT OR IGNORE INTO account (id, balance, version, updated_at) VALUES (?, ?, 0, ?)`,
		domain.AccountID, r.startingBalance.String(), r.now().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to seed account: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		r.log.Info().Str("balance", r.startingBalance.String()).Msg("Created account with starting balance")
	}

	return r.get(ctx)
}

func (r *AccountRepository) get(ctx context.Context) (*domain.Account, error) {
	var (
		account   domain.Account
		balance   string
		updatedAt int64
	)
	err := r.q.QueryRowContext(ctx,
		`SELECT id, balance, version, updated_at FROM account WHERE id = ?`, domain.AccountID,
	).Scan(&account.ID, &balance, &account.Version, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to read account: %w", err)
	}

	account.Balance, err = decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("failed to parse account balance %q: %w", balance, err)
	}
	account.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	return &account, nil
}

// CompareAndSetBalance writes newBalance only if the stored version still
// equals expectedVersion, bumping the version. A lost race returns a
// conflict error and changes nothing.
func (r *AccountRepository) CompareAndSetBalance(ctx context.Context, expectedVersion int64, newBalance decimal.Decimal) error {
	if newBalance.IsNegative() {
		return domain.NewError(domain.KindValidation, "account balance cannot go negative (%s)", newBalance)
	}

	res, err := r.q.ExecContext(ctx,
		`UPDATE account SET balance = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		newBalance.String(), r.now().Unix(), domain.AccountID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update account balance: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return domain.NewError(domain.KindConflict, "account changed concurrently (expected version %d)", expectedVersion)
	}
	return nil
}
