package yahoo

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aristath/papertrader/internal/clientdata"
	"github.com/aristath/papertrader/internal/domain"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2024-01-02 14:30 UTC and 2024-01-03 14:30 UTC
const chartBody = `{
  "chart": {
    "result": [{
      "meta": {
        "currency": "USD",
        "symbol": "AAPL",
        "longName": "Apple Inc.",
        "shortName": "Apple",
        "regularMarketPrice": 185.64,
        "regularMarketTime": 1704310200,
        "chartPreviousClose": 184.25,
        "gmtoffset": -18000
      },
      "timestamp": [1704205800, 1704292200, 1704378600],
      "indicators": {"quote": [{"close": [185.64, 184.25, null]}]}
    }],
    "error": null
  }
}`

const notFoundBody = `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func newCacheRepo(t *testing.T) *clientdata.Repository {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	_, err = db.Exec(`
		CREATE TABLE current_prices (symbol TEXT PRIMARY KEY, data BLOB NOT NULL, expires_at INTEGER NOT NULL);
		CREATE TABLE recent_closes (symbol TEXT PRIMARY KEY, data BLOB NOT NULL, expires_at INTEGER NOT NULL);
	`)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return clientdata.NewRepository(db)
}

func TestGetCurrentPrice(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/AAPL", r.URL.Path)
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		_, _ = w.Write([]byte(chartBody))
	})

	client := NewClient(zerolog.Nop(), WithBaseURL(srv.URL))
	q, err := client.GetCurrentPrice(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, "AAPL", q.Symbol)
	assert.Equal(t, "Apple Inc.", q.Name)
	assert.Equal(t, "USD", q.Currency)
	assert.Equal(t, "185.64", q.Price.String())
	assert.Equal(t, "2024-01-03", q.Date)
}

func TestGetCurrentPrice_NotFound(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(notFoundBody))
	})

	client := NewClient(zerolog.Nop(), WithBaseURL(srv.URL))
	_, err := client.GetCurrentPrice(context.Background(), "ZZZZ")
	assert.ErrorIs(t, err, domain.ErrQuoteNotFound)
}

func TestGetCurrentPrice_ChartErrorNotFound(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(notFoundBody))
	})

	client := NewClient(zerolog.Nop(), WithBaseURL(srv.URL))
	_, err := client.GetCurrentPrice(context.Background(), "ZZZZ")
	assert.ErrorIs(t, err, domain.ErrQuoteNotFound)
}

func TestGetCurrentPrice_ServerError(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	client := NewClient(zerolog.Nop(), WithBaseURL(srv.URL))
	_, err := client.GetCurrentPrice(context.Background(), "AAPL")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrQuoteNotFound)
}

func TestGetCurrentPrice_TimeoutIsBounded(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	client := NewClient(zerolog.Nop(), WithBaseURL(srv.URL), WithTimeout(50*time.Millisecond))
	start := time.Now()
	_, err := client.GetCurrentPrice(context.Background(), "AAPL")
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestGetCurrentPrice_UsesCache(t *testing.T) {
	var calls int32
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(chartBody))
	})

	client := NewClient(zerolog.Nop(), WithBaseURL(srv.URL), WithCache(newCacheRepo(t), time.Minute))
	ctx := context.Background()

	first, err := client.GetCurrentPrice(ctx, "AAPL")
	require.NoError(t, err)
	second, err := client.GetCurrentPrice(ctx, "AAPL")
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.True(t, first.Price.Equal(second.Price))
	assert.Equal(t, first.Name, second.Name)
}

func TestGetRecentClose_LastNonNullBar(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5d", r.URL.Query().Get("range"))
		_, _ = w.Write([]byte(chartBody))
	})

	client := NewClient(zerolog.Nop(), WithBaseURL(srv.URL))
	q, err := client.GetRecentClose(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, "184.25", q.Price.String())
	assert.Equal(t, "2024-01-03", q.Date)
}

func TestGetRecentClose_StaleCacheOnFailure(t *testing.T) {
	var fail atomic.Bool
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(chartBody))
	})

	repo := newCacheRepo(t)
	client := NewClient(zerolog.Nop(), WithBaseURL(srv.URL), WithCache(repo, time.Minute))
	ctx := context.Background()

	_, err := client.GetRecentClose(ctx, "AAPL")
	require.NoError(t, err)

	// Expire everything so the next call goes upstream.
	require.NoError(t, repo.Store(ctx, clientdata.TableRecentCloses, "AAPL", cachedQuote{
		Symbol: "AAPL", Price: "184.25", Date: "2024-01-03",
	}, -time.Minute))
	fail.Store(true)

	q, err := client.GetRecentClose(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "184.25", q.Price.String())
}

func TestGetHistoricalCloses(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1mo", r.URL.Query().Get("range"))
		if strings.HasSuffix(r.URL.Path, "/MISSING") {
			_, _ = w.Write([]byte(notFoundBody))
			return
		}
		_, _ = w.Write([]byte(chartBody))
	})

	client := NewClient(zerolog.Nop(), WithBaseURL(srv.URL))
	result, err := client.GetHistoricalCloses(context.Background(), []string{"AAPL", "MISSING"}, "1mo")
	require.NoError(t, err)

	require.Contains(t, result, "AAPL")
	assert.NotContains(t, result, "MISSING")
	closes := result["AAPL"]
	assert.Len(t, closes, 2)
	assert.Equal(t, "185.64", closes["2024-01-02"].String())
	assert.Equal(t, "184.25", closes["2024-01-03"].String())
}

func TestGetHistoricalCloses_AllFail(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	client := NewClient(zerolog.Nop(), WithBaseURL(srv.URL))
	_, err := client.GetHistoricalCloses(context.Background(), []string{"AAPL"}, "1mo")
	assert.Error(t, err)
}

func TestRateLimiterHonoursContext(t *testing.T) {
	client := NewClient(zerolog.Nop(), WithBaseURL("http://127.0.0.1:1"), WithRateLimit(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GetCurrentPrice(ctx, "AAPL")
	assert.Error(t, err)
}
