package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aristath/papertrader/internal/modules/portfolio"
	"github.com/aristath/papertrader/internal/modules/trading"
	"github.com/aristath/papertrader/internal/services"
	testhelpers "github.com/aristath/papertrader/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T, startingBalance string) (chi.Router, *testhelpers.FakeOracle) {
	db, cleanup := testhelpers.NewTestDB(t, "portfolio")
	t.Cleanup(cleanup)

	log := zerolog.New(nil).Level(zerolog.Disabled)
	oracle := testhelpers.NewFakeOracle()

	svc := trading.NewTradingService(
		db.Conn(),
		portfolio.NewAccountRepository(db.Conn(), testhelpers.D(startingBalance), log),
		portfolio.NewPositionRepository(db.Conn(), log),
		trading.NewTransactionRepository(db.Conn(), log),
		services.NewPriceService(oracle, nil, time.Second, log),
		nil,
		trading.Config{Currency: "USD", MaxRetries: 3},
		log,
	)

	router := chi.NewRouter()
	NewHandler(svc, log).RegisterRoutes(router)
	return router, oracle
}

func do(router http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var out map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func TestHandleBuy_Created(t *testing.T) {
	router, _ := setupRouter(t, "100000")

	rec, body := do(router, http.MethodPost, "/stocks", `{"symbol":"aapl","quantity":10,"purchase_price":150.5,"name":"Apple"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	assert.Equal(t, 1505.0, body["total_cost"])
	assert.Equal(t, 98495.0, body["remaining_balance"])
	assert.Contains(t, body["message"], "AAPL")

	stock := body["stock"].(map[string]interface{})
	assert.Equal(t, "AAPL", stock["symbol"])
	assert.Equal(t, "Apple", stock["name"])
	assert.Equal(t, 150.5, stock["purchase_price"])
	assert.Equal(t, 10.0, stock["quantity"])
}

func TestHandleBuy_AtMarket(t *testing.T) {
	router, oracle := setupRouter(t, "100000")
	oracle.SetCurrentPrice("MSFT", "Microsoft", "400")

	rec, body := do(router, http.MethodPost, "/stocks", `{"symbol":"MSFT","quantity":"2"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 800.0, body["total_cost"])
}

func TestHandleBuy_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		kind   string
	}{
		{"malformed", `{"symbol":`, http.StatusBadRequest, "validation"},
		{"missing symbol", `{"quantity":1,"purchase_price":1}`, http.StatusBadRequest, "validation"},
		{"missing quantity", `{"symbol":"AAPL","purchase_price":1}`, http.StatusBadRequest, "validation"},
		{"fractional quantity", `{"symbol":"AAPL","quantity":1.5,"purchase_price":1}`, http.StatusBadRequest, "validation"},
		{"negative quantity", `{"symbol":"AAPL","quantity":-1,"purchase_price":1}`, http.StatusBadRequest, "validation"},
		{"all on buy", `{"symbol":"AAPL","quantity":"all","purchase_price":1}`, http.StatusBadRequest, "validation"},
		{"zero price", `{"symbol":"AAPL","quantity":1,"purchase_price":0}`, http.StatusBadRequest, "validation"},
		{"insufficient funds", `{"symbol":"AAPL","quantity":1000,"purchase_price":1000}`, http.StatusBadRequest, "insufficient_funds"},
		{"no price", `{"symbol":"ZZZ","quantity":1}`, http.StatusBadRequest, "price_unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := setupRouter(t, "100000")
			rec, body := do(router, http.MethodPost, "/stocks", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.kind, body["kind"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestHandleSell_Partial(t *testing.T) {
	router, oracle := setupRouter(t, "100000")
	rec, _ := do(router, http.MethodPost, "/stocks", `{"symbol":"AAPL","quantity":20,"purchase_price":150}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	oracle.SetCurrentPrice("AAPL", "Apple", "300")
	rec, body := do(router, http.MethodDelete, "/stocks/delete_by_symbol", `{"symbol":"AAPL","quantity":5}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, 1500.0, body["sale_proceeds"])
	assert.Equal(t, 300.0, body["current_price"])
	assert.Equal(t, 750.0, body["profit_loss"])
	assert.Equal(t, 98500.0, body["remaining_balance"])
	assert.Equal(t, 15.0, body["remaining_shares"])
	assert.NotContains(t, body, "position_closed")
}

func TestHandleSell_All(t *testing.T) {
	router, oracle := setupRouter(t, "100000")
	rec, _ := do(router, http.MethodPost, "/stocks", `{"symbol":"AAPL","quantity":3,"purchase_price":100}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	oracle.SetCurrentPrice("AAPL", "", "90")
	rec, body := do(router, http.MethodDelete, "/stocks/delete_by_symbol", `{"symbol":"aapl","quantity":"ALL"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, true, body["position_closed"])
	assert.Equal(t, -30.0, body["profit_loss"])
	assert.NotContains(t, body, "remaining_shares")
}

func TestHandleSell_Errors(t *testing.T) {
	router, _ := setupRouter(t, "100000")
	rec, _ := do(router, http.MethodPost, "/stocks", `{"symbol":"AAPL","quantity":3,"purchase_price":100}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	tests := []struct {
		name   string
		body   string
		status int
		kind   string
	}{
		{"no symbol", `{"quantity":1}`, http.StatusBadRequest, "validation"},
		{"bad quantity", `{"symbol":"AAPL","quantity":"lots"}`, http.StatusBadRequest, "validation"},
		{"not held", `{"symbol":"MSFT","quantity":1}`, http.StatusNotFound, "position_not_found"},
		{"too many", `{"symbol":"AAPL","quantity":4}`, http.StatusBadRequest, "insufficient_shares"},
		{"no price", `{"symbol":"AAPL","quantity":1}`, http.StatusInternalServerError, "price_unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := do(router, http.MethodDelete, "/stocks/delete_by_symbol", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.kind, body["kind"])
		})
	}
}

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		raw     string
		want    int64
		all     bool
		wantErr bool
	}{
		{`5`, 5, false, false},
		{`"7"`, 7, false, false},
		{`"all"`, 0, true, false},
		{`" All "`, 0, true, false},
		{`0`, 0, false, true},
		{`2.5`, 0, false, true},
		{`null`, 0, false, true},
		{``, 0, false, true},
		{`true`, 0, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, all, err := parseQuantity(json.RawMessage(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.all, all)
		})
	}
}
