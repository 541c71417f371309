package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T, name string, profile DatabaseProfile) *DB {
	t.Helper()
	db, err := New(Config{
		Path:    filepath.Join(t.TempDir(), name+".db"),
		Profile: profile,
		Name:    name,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())
	return db
}

func TestBuildConnectionString_Profiles(t *testing.T) {
	ledger := buildConnectionString("/tmp/p.db", ProfileLedger)
	assert.Contains(t, ledger, "synchronous(FULL)")
	assert.Contains(t, ledger, "busy_timeout(5000)")

	cache := buildConnectionString("/tmp/c.db", ProfileCache)
	assert.Contains(t, cache, "synchronous(OFF)")
	assert.Contains(t, cache, "temp_store(MEMORY)")

	std := buildConnectionString("/tmp/s.db", ProfileStandard)
	assert.Contains(t, std, "synchronous(NORMAL)")
}

func TestMigrate_CreatesPortfolioTables(t *testing.T) {
	db := newTestDB(t, "portfolio", ProfileLedger)

	for _, table := range []string{"account", "positions", "transactions", "price_history"} {
		var name string
		err := db.Conn().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name = ?", table,
		).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}

	// Idempotent
	require.NoError(t, db.Migrate())
}

func TestMigrate_UnknownNameIsNoop(t *testing.T) {
	db := newTestDB(t, "scratch", ProfileStandard)

	var count int
	require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table'").Scan(&count))
	assert.Equal(t, 0, count)
}

func TestTransactionsAreImmutable(t *testing.T) {
	db := newTestDB(t, "portfolio", ProfileLedger)
	conn := db.Conn()

	_, err := conn.Exec(`INSERT INTO transactions (reference, symbol, date, kind, quantity, price, executed_at)
		VALUES ('ref-1', 'AAPL', '2024-01-02', 'BUY', 10, '100', 0)`)
	require.NoError(t, err)

	_, err = conn.Exec("UPDATE transactions SET quantity = 20 WHERE reference = 'ref-1'")
	assert.Error(t, err)

	_, err = conn.Exec("DELETE FROM transactions WHERE reference = 'ref-1'")
	assert.Error(t, err)

	var qty int
	require.NoError(t, conn.QueryRow("SELECT quantity FROM transactions WHERE reference = 'ref-1'").Scan(&qty))
	assert.Equal(t, 10, qty)
}

func TestPositionsRejectNonPositiveQuantity(t *testing.T) {
	db := newTestDB(t, "portfolio", ProfileLedger)

	_, err := db.Conn().Exec(`INSERT INTO positions (symbol, quantity, average_cost, created_at, updated_at)
		VALUES ('AAPL', 0, '100', 0, 0)`)
	assert.Error(t, err)
}

func TestWithTransaction_CommitsOnSuccess(t *testing.T) {
	db := newTestDB(t, "portfolio", ProfileLedger)

	err := WithTransaction(context.Background(), db.Conn(), nil, func(tx *sql.Tx) error {
		_, err := tx.Exec("INSERT INTO account (id, balance, version, updated_at) VALUES (1, '100', 0, 0)")
		return err
	})
	require.NoError(t, err)

	var balance string
	require.NoError(t, db.Conn().QueryRow("SELECT balance FROM account WHERE id = 1").Scan(&balance))
	assert.Equal(t, "100", balance)
}

func TestWithTransaction_RollsBackOnError(t *testing.T) {
	db := newTestDB(t, "portfolio", ProfileLedger)
	sentinel := errors.New("boom")

	err := WithTransaction(context.Background(), db.Conn(), nil, func(tx *sql.Tx) error {
		if _, err := tx.Exec("INSERT INTO account (id, balance, version, updated_at) VALUES (1, '100', 0, 0)"); err != nil {
			return err
		}
		return sentinel
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)

	var count int
	require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM account").Scan(&count))
	assert.Equal(t, 0, count)
}

func TestWithTransaction_RecoversPanic(t *testing.T) {
	db := newTestDB(t, "portfolio", ProfileLedger)

	err := WithTransaction(context.Background(), db.Conn(), nil, func(tx *sql.Tx) error {
		panic("kaboom")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestWithTransaction_NilDB(t *testing.T) {
	err := WithTransaction(context.Background(), nil, nil, func(tx *sql.Tx) error { return nil })
	assert.Error(t, err)
}

func TestIsBusy(t *testing.T) {
	assert.False(t, IsBusy(nil))
	assert.True(t, IsBusy(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.True(t, IsBusy(errors.New("SQLITE_BUSY")))
	assert.False(t, IsBusy(errors.New("no such table: positions")))
	assert.False(t, IsBusy(context.DeadlineExceeded))
}

func TestGetStats(t *testing.T) {
	db := newTestDB(t, "portfolio", ProfileLedger)

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Greater(t, stats.PageCount, int64(0))
	assert.Greater(t, stats.PageSize, int64(0))
	require.NoError(t, db.HealthCheck(context.Background()))
	require.NoError(t, db.WALCheckpoint(""))
}
