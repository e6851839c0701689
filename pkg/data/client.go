// Package data is the ingestion boundary: it fetches OHLCV bars from the
// market data API and layers a local CSV file cache and a Redis cache in
// front of it, both with time-based invalidation. Bars leave this package
// sorted ascending, deduplicated by timestamp and integrity-checked; the
// simulation core never sees raw feed output.
package data

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/algomatic/go-backtest/pkg/types"
)

// DefaultTimeout is the per-request timeout applied to API calls.
const DefaultTimeout = 30 * time.Second

// MaxRetries is the number of retry attempts for transient errors.
const MaxRetries = 3

// ClientConfig holds optional configuration for the bar API client.
type ClientConfig struct {
	// Timeout per HTTP request. Zero means DefaultTimeout.
	Timeout time.Duration

	// MaxRetries for transient errors. Zero means the package default.
	MaxRetries int

	// Logger for debug/info output. Nil uses slog.Default().
	Logger *slog.Logger
}

// Client fetches bars from the market data REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	logger     *slog.Logger
}

// NewClient creates a bar API client. baseURL includes scheme and host,
// e.g. "http://localhost:8000". A nil config uses the defaults.
func NewClient(baseURL string, cfg *ClientConfig) *Client {
	timeout := DefaultTimeout
	retries := MaxRetries
	logger := slog.Default()
	if cfg != nil {
		if cfg.Timeout > 0 {
			timeout = cfg.Timeout
		}
		if cfg.MaxRetries > 0 {
			retries = cfg.MaxRetries
		}
		if cfg.Logger != nil {
			logger = cfg.Logger
		}
	}
	logger.Debug("bar API client initialised",
		"base_url", baseURL, "timeout", timeout, "max_retries", retries)
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: retries,
		logger:     logger,
	}
}

type barsResponse struct {
	Symbol   string       `json:"symbol"`
	Interval string       `json:"interval"`
	Count    int          `json:"count"`
	Bars     []barPayload `json:"bars"`
}

type barPayload struct {
	Timestamp string  `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

type apiError struct {
	Detail string `json:"detail"`
}

// FetchBars downloads bars for one symbol/interval/range. The result is
// sorted ascending, deduplicated by timestamp and validated before it is
// returned.
func (c *Client) FetchBars(ctx context.Context, symbol string, interval types.Interval, start, end time.Time) ([]types.Bar, error) {
	params := url.Values{
		"symbol":   {symbol},
		"interval": {string(interval)},
		"start":    {start.Format(time.RFC3339)},
		"end":      {end.Format(time.RFC3339)},
	}
	c.logger.Debug("fetching bars", "symbol", symbol, "interval", interval)

	body, err := c.doGet(ctx, "/api/bars", params)
	if err != nil {
		return nil, fmt.Errorf("FetchBars: %w", err)
	}
	var resp barsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("FetchBars: decoding response: %w", err)
	}

	bars := make([]types.Bar, 0, len(resp.Bars))
	for _, b := range resp.Bars {
		ts, err := parseTimestamp(b.Timestamp)
		if err != nil {
			c.logger.Warn("skipping bar with unparseable timestamp", "ts", b.Timestamp, "err", err)
			continue
		}
		bars = append(bars, types.Bar{
			Timestamp: ts,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}
	bars = Normalize(bars)
	if err := types.ValidateBars(bars); err != nil {
		return nil, fmt.Errorf("FetchBars: %w", err)
	}
	c.logger.Info("fetched bars", "symbol", symbol, "interval", interval, "count", len(bars))
	return bars, nil
}

// Normalize sorts bars ascending by timestamp and drops duplicates,
// keeping the first occurrence of each timestamp.
func Normalize(bars []types.Bar) []types.Bar {
	sort.SliceStable(bars, func(a, b int) bool {
		return bars[a].Timestamp.Before(bars[b].Timestamp)
	})
	out := bars[:0]
	for i, b := range bars {
		if i > 0 && b.Timestamp.Equal(out[len(out)-1].Timestamp) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// doGet executes a GET request with retries and exponential backoff.
func (c *Client) doGet(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * 500 * time.Millisecond
			c.logger.Debug("retrying request", "attempt", attempt, "backoff", backoff, "url", u)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			c.logger.Warn("HTTP request failed", "url", u, "attempt", attempt, "err", err)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("reading response body: %w", readErr)
			continue
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return body, nil
		case resp.StatusCode == 400 || resp.StatusCode == 404:
			var apiErr apiError
			if json.Unmarshal(body, &apiErr) == nil && apiErr.Detail != "" {
				return nil, fmt.Errorf("api error (status %d): %s", resp.StatusCode, apiErr.Detail)
			}
			return nil, fmt.Errorf("api error (status %d)", resp.StatusCode)
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("server error (status %d)", resp.StatusCode)
			c.logger.Warn("server error, will retry", "status", resp.StatusCode, "attempt", attempt)
			continue
		default:
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
	}
	return nil, fmt.Errorf("all %d retries exhausted: %w", c.maxRetries, lastErr)
}

// parseTimestamp tries the timestamp formats the feed is known to emit.
func parseTimestamp(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, f := range formats {
		t, err := time.Parse(f, s)
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp format: %s", s)
}
