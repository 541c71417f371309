package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aristath/papertrader/internal/domain"
	"github.com/aristath/papertrader/internal/modules/portfolio"
	"github.com/go-chi/chi/v5"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE account (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			balance TEXT NOT NULL,
			version INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL
		);
		CREATE TABLE positions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL DEFAULT '',
			quantity INTEGER NOT NULL CHECK (quantity > 0),
			average_cost TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func setupRouter(t *testing.T) (chi.Router, *portfolio.PositionRepository) {
	db := setupTestDB(t)
	log := zerolog.New(nil).Level(zerolog.Disabled)

	accounts := portfolio.NewAccountRepository(db, decimal.NewFromInt(100000), log)
	positions := portfolio.NewPositionRepository(db, log)
	handler := NewHandler(portfolio.NewPortfolioService(accounts, positions, log), "USD", log)

	router := chi.NewRouter()
	handler.RegisterRoutes(router)
	return router, positions
}

func TestHandleGetAccount(t *testing.T) {
	router, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/account", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body AccountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(1), body.ID)
	assert.Equal(t, 100000.0, body.Balance)
	assert.Equal(t, "$100,000.00", body.BalanceDisplay)
}

func TestHandleGetStocks(t *testing.T) {
	router, positions := setupRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stocks", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	require.NoError(t, positions.Insert(context.Background(), &domain.Position{
		Symbol: "AAPL", Name: "Apple Inc.", Quantity: 20, AverageCost: decimal.NewFromInt(150),
	}))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stocks", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body []StockResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "AAPL", body[0].Symbol)
	assert.Equal(t, "Apple Inc.", body[0].Name)
	assert.Equal(t, 150.0, body[0].PurchasePrice)
	assert.Equal(t, int64(20), body[0].Quantity)
}
