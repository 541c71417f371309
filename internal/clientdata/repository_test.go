package clientdata

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `
CREATE TABLE current_prices (symbol TEXT PRIMARY KEY, data BLOB NOT NULL, expires_at INTEGER NOT NULL);
CREATE TABLE recent_closes (symbol TEXT PRIMARY KEY, data BLOB NOT NULL, expires_at INTEGER NOT NULL);
`

type cachedQuote struct {
	Symbol string  `msgpack:"symbol"`
	Price  string  `msgpack:"price"`
	Volume float64 `msgpack:"volume"`
}

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	_, err = db.Exec(testSchema)
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestStoreAndGetIfFresh(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	in := cachedQuote{Symbol: "AAPL", Price: "189.25", Volume: 1200}
	require.NoError(t, repo.Store(ctx, TableCurrentPrices, "AAPL", in, time.Hour))

	var out cachedQuote
	found, err := repo.GetIfFresh(ctx, TableCurrentPrices, "AAPL", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, in, out)
}

func TestStore_ReplacesExisting(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Store(ctx, TableCurrentPrices, "AAPL", cachedQuote{Price: "1"}, time.Hour))
	require.NoError(t, repo.Store(ctx, TableCurrentPrices, "AAPL", cachedQuote{Price: "2"}, time.Hour))

	var out cachedQuote
	found, err := repo.Get(ctx, TableCurrentPrices, "AAPL", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "2", out.Price)
}

func TestGetIfFresh_ExpiredReturnsFalse_GetReturnsStale(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Store(ctx, TableRecentCloses, "MSFT", cachedQuote{Price: "410"}, -time.Minute))

	var fresh cachedQuote
	found, err := repo.GetIfFresh(ctx, TableRecentCloses, "MSFT", &fresh)
	require.NoError(t, err)
	assert.False(t, found)

	var stale cachedQuote
	found, err = repo.Get(ctx, TableRecentCloses, "MSFT", &stale)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "410", stale.Price)
}

func TestGet_MissingKey(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	var out cachedQuote
	found, err := repo.Get(context.Background(), TableCurrentPrices, "NOPE", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestInvalidTableRejected(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	assert.Error(t, repo.Store(ctx, "positions; DROP TABLE x", "A", 1, time.Hour))
	_, err := repo.Get(ctx, "unknown", "A", new(int))
	assert.Error(t, err)
	_, err = repo.DeleteExpired(ctx, "unknown")
	assert.Error(t, err)
}

func TestDelete(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Store(ctx, TableCurrentPrices, "AAPL", cachedQuote{}, time.Hour))
	require.NoError(t, repo.Delete(ctx, TableCurrentPrices, "AAPL"))

	found, err := repo.Get(ctx, TableCurrentPrices, "AAPL", &cachedQuote{})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDeleteAllExpired(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Store(ctx, TableCurrentPrices, "OLD", cachedQuote{}, -time.Hour))
	require.NoError(t, repo.Store(ctx, TableCurrentPrices, "NEW", cachedQuote{}, time.Hour))
	require.NoError(t, repo.Store(ctx, TableRecentCloses, "OLD", cachedQuote{}, -time.Hour))

	results, err := repo.DeleteAllExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), results[TableCurrentPrices])
	assert.Equal(t, int64(1), results[TableRecentCloses])

	found, err := repo.Get(ctx, TableCurrentPrices, "NEW", &cachedQuote{})
	require.NoError(t, err)
	assert.True(t, found)
}
