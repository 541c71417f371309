// Package yahoo implements the price oracle on top of the Yahoo Finance chart API.
package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aristath/papertrader/internal/clientdata"
	"github.com/aristath/papertrader/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL   = "https://query1.finance.yahoo.com"
	DefaultTimeout   = 10 * time.Second
	DefaultRateLimit = 5 // requests per second
)

// Client is a Yahoo Finance chart API client
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      *clientdata.Repository
	quoteTTL   time.Duration
	log        zerolog.Logger
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithCache enables the persistent quote cache. A zero ttl keeps the default.
func WithCache(repo *clientdata.Repository, ttl time.Duration) ClientOption {
	return func(c *Client) {
		c.cache = repo
		if ttl > 0 {
			c.quoteTTL = ttl
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a new Yahoo Finance client
func NewClient(log zerolog.Logger, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		quoteTTL:   clientdata.TTLCurrentPrice,
		log:        log.With().Str("client", "yahoo").Logger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// chartResponse is the subset of /v8/finance/chart we consume
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Currency           string  `json:"currency"`
		Symbol             string  `json:"symbol"`
		LongName           string  `json:"longName"`
		ShortName          string  `json:"shortName"`
		RegularMarketPrice float64 `json:"regularMarketPrice"`
		RegularMarketTime  int64   `json:"regularMarketTime"`
		ChartPreviousClose float64 `json:"chartPreviousClose"`
		GMTOffset          int64   `json:"gmtoffset"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Close []*float64 `json:"close"`
		} `json:"quote"`
	} `json:"indicators"`
}

func (r *chartResult) name() string {
	if r.Meta.LongName != "" {
		return r.Meta.LongName
	}
	return r.Meta.ShortName
}

// date converts a chart timestamp to the exchange-local calendar date
func (r *chartResult) date(ts int64) string {
	return time.Unix(ts+r.Meta.GMTOffset, 0).UTC().Format(domain.DateLayout)
}

// closes returns date -> close for every bar with a usable close
func (r *chartResult) closes() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(r.Timestamp))
	if len(r.Indicators.Quote) == 0 {
		return out
	}
	series := r.Indicators.Quote[0].Close
	for i, ts := range r.Timestamp {
		if i >= len(series) || series[i] == nil || *series[i] <= 0 {
			continue
		}
		out[r.date(ts)] = toDecimal(*series[i])
	}
	return out
}

// lastClose returns the most recent bar with a usable close
func (r *chartResult) lastClose() (string, decimal.Decimal, bool) {
	if len(r.Indicators.Quote) == 0 {
		return "", decimal.Zero, false
	}
	series := r.Indicators.Quote[0].Close
	for i := len(r.Timestamp) - 1; i >= 0; i-- {
		if i < len(series) && series[i] != nil && *series[i] > 0 {
			return r.date(r.Timestamp[i]), toDecimal(*series[i]), true
		}
	}
	return "", decimal.Zero, false
}

func toDecimal(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(4)
}

// fetchChart calls the chart endpoint for one symbol
func (c *Client) fetchChart(ctx context.Context, symbol, rangeParam string) (*chartResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	params := url.Values{}
	params.Set("interval", "1d")
	params.Set("range", rangeParam)
	reqURL := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.baseURL, url.PathEscape(symbol), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.log.Warn().Err(err).Str("symbol", symbol).Dur("elapsed", elapsed).Msg("Chart request failed")
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrQuoteNotFound
	}
	if resp.StatusCode != http.StatusOK {
		c.log.Warn().Str("symbol", symbol).Int("status", resp.StatusCode).Dur("elapsed", elapsed).Msg("Chart API non-OK response")
		return nil, fmt.Errorf("chart API error: status %d for %s", resp.StatusCode, symbol)
	}

	var body chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if body.Chart.Error != nil {
		if strings.EqualFold(body.Chart.Error.Code, "Not Found") {
			return nil, domain.ErrQuoteNotFound
		}
		return nil, fmt.Errorf("chart API error for %s: %s", symbol, body.Chart.Error.Description)
	}
	if len(body.Chart.Result) == 0 {
		return nil, domain.ErrQuoteNotFound
	}

	c.log.Debug().Str("symbol", symbol).Str("range", rangeParam).Dur("elapsed", elapsed).Msg("Chart API call")
	return &body.Chart.Result[0], nil
}

// cachedQuote is the structure stored in the cache
type cachedQuote struct {
	Symbol   string `msgpack:"symbol"`
	Name     string `msgpack:"name"`
	Currency string `msgpack:"currency"`
	Date     string `msgpack:"date"`
	Price    string `msgpack:"price"`
}

func (q cachedQuote) toOracle() (*domain.OracleQuote, bool) {
	price, err := decimal.NewFromString(q.Price)
	if err != nil || !price.IsPositive() {
		return nil, false
	}
	return &domain.OracleQuote{Symbol: q.Symbol, Name: q.Name, Currency: q.Currency, Date: q.Date, Price: price}, true
}

func fromOracle(q *domain.OracleQuote) cachedQuote {
	return cachedQuote{Symbol: q.Symbol, Name: q.Name, Currency: q.Currency, Date: q.Date, Price: q.Price.String()}
}

func (c *Client) cachedFresh(ctx context.Context, table, symbol string) (*domain.OracleQuote, bool) {
	if c.cache == nil {
		return nil, false
	}
	var cq cachedQuote
	found, err := c.cache.GetIfFresh(ctx, table, symbol, &cq)
	if err != nil || !found {
		return nil, false
	}
	return cq.toOracle()
}

func (c *Client) cachedStale(ctx context.Context, table, symbol string) (*domain.OracleQuote, bool) {
	if c.cache == nil {
		return nil, false
	}
	var cq cachedQuote
	found, err := c.cache.Get(ctx, table, symbol, &cq)
	if err != nil || !found {
		return nil, false
	}
	return cq.toOracle()
}

func (c *Client) store(ctx context.Context, table string, q *domain.OracleQuote, ttl time.Duration) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Store(ctx, table, q.Symbol, fromOracle(q), ttl); err != nil {
		c.log.Warn().Err(err).Str("symbol", q.Symbol).Str("table", table).Msg("Failed to cache quote")
	}
}

// GetCurrentPrice returns the live market price
func (c *Client) GetCurrentPrice(ctx context.Context, symbol string) (*domain.OracleQuote, error) {
	if q, ok := c.cachedFresh(ctx, clientdata.TableCurrentPrices, symbol); ok {
		return q, nil
	}

	chart, err := c.fetchChart(ctx, symbol, "1d")
	if err != nil {
		return nil, err
	}
	if chart.Meta.RegularMarketPrice <= 0 {
		return nil, domain.ErrQuoteNotFound
	}

	date := time.Now().UTC().Format(domain.DateLayout)
	if chart.Meta.RegularMarketTime > 0 {
		date = chart.date(chart.Meta.RegularMarketTime)
	}

	q := &domain.OracleQuote{
		Symbol:   symbol,
		Name:     chart.name(),
		Currency: chart.Meta.Currency,
		Date:     date,
		Price:    toDecimal(chart.Meta.RegularMarketPrice),
	}
	c.store(ctx, clientdata.TableCurrentPrices, q, c.quoteTTL)
	return q, nil
}

// GetRecentClose returns the most recent daily close. On upstream failure a
// stale cached close is returned if one exists.
func (c *Client) GetRecentClose(ctx context.Context, symbol string) (*domain.OracleQuote, error) {
	if q, ok := c.cachedFresh(ctx, clientdata.TableRecentCloses, symbol); ok {
		return q, nil
	}

	chart, err := c.fetchChart(ctx, symbol, "5d")
	if err != nil {
		if !errors.Is(err, domain.ErrQuoteNotFound) {
			if q, ok := c.cachedStale(ctx, clientdata.TableRecentCloses, symbol); ok {
				c.log.Warn().Err(err).Str("symbol", symbol).Msg("Chart API failed, using stale cached close")
				return q, nil
			}
		}
		return nil, err
	}

	date, price, ok := chart.lastClose()
	if !ok {
		if chart.Meta.ChartPreviousClose <= 0 {
			return nil, domain.ErrQuoteNotFound
		}
		price = toDecimal(chart.Meta.ChartPreviousClose)
		date = ""
	}

	q := &domain.OracleQuote{
		Symbol:   symbol,
		Name:     chart.name(),
		Currency: chart.Meta.Currency,
		Date:     date,
		Price:    price,
	}
	c.store(ctx, clientdata.TableRecentCloses, q, clientdata.TTLRecentClose)
	return q, nil
}

// GetHistoricalCloses returns symbol -> date -> close over period
// (1d, 5d, 1mo, 3mo, 6mo, 1y, 2y, 5y, 10y, ytd, max). Symbols the API does
// not know are omitted. An error is returned only if no symbol could be fetched.
func (c *Client) GetHistoricalCloses(ctx context.Context, symbols []string, period string) (map[string]map[string]decimal.Decimal, error) {
	result := make(map[string]map[string]decimal.Decimal, len(symbols))
	var lastErr error

	for _, symbol := range symbols {
		chart, err := c.fetchChart(ctx, symbol, period)
		if errors.Is(err, domain.ErrQuoteNotFound) {
			c.log.Debug().Str("symbol", symbol).Msg("No history for symbol")
			continue
		}
		if err != nil {
			lastErr = err
			c.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to fetch history")
			continue
		}
		if closes := chart.closes(); len(closes) > 0 {
			result[symbol] = closes
		}
	}

	if len(result) == 0 && lastErr != nil {
		return nil, lastErr
	}

	c.log.Debug().Int("requested", len(symbols)).Int("fetched", len(result)).Str("period", period).Msg("Fetched historical closes")
	return result, nil
}

var _ domain.PriceOracle = (*Client)(nil)
