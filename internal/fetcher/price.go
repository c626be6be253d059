package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"energy-desk/internal/httpclient"
	"energy-desk/internal/volatility"
)

const chartPath = "/v8/finance/chart/"

// PriceOptions parameterise the Yahoo Finance chart fetcher.
type PriceOptions struct {
	BaseURL        string
	Timeout        time.Duration
	RequestsPerSec float64
	MaxRetries     uint64
	UserAgent      string
}

// Yahoo fetches OHLC bars from the Yahoo Finance chart API.
type Yahoo struct {
	opts    PriceOptions
	logger  zerolog.Logger
	client  *httpclient.Client
	baseURL string
}

// NewYahoo constructs a price feed.
func NewYahoo(opts PriceOptions, logger zerolog.Logger) *Yahoo {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://query1.finance.yahoo.com"
	}
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = "energydesk/1.0"
	}

	return &Yahoo{
		opts:   opts,
		logger: logger.With().Str("component", "price_feed").Logger(),
		client: httpclient.New(httpclient.Options{
			Timeout:        opts.Timeout,
			RequestsPerSec: opts.RequestsPerSec,
			MaxRetries:     opts.MaxRetries,
			UserAgent:      ua,
		}),
		baseURL: baseURL,
	}
}

// FetchBars downloads bars for symbol over lookback (e.g. "5y") at interval
// (e.g. "1d"). Bars with missing prices are dropped, the rest are sorted and
// de-duplicated by timestamp. Daily and longer bars are stamped at midnight
// UTC of their exchange-local trading date.
func (y *Yahoo) FetchBars(ctx context.Context, symbol, lookback, interval string) ([]volatility.PriceBar, error) {
	if strings.TrimSpace(symbol) == "" {
		return nil, errors.New("symbol required")
	}
	if lookback == "" {
		lookback = "5y"
	}
	if interval == "" {
		interval = "1d"
	}

	query := url.Values{}
	query.Set("range", lookback)
	query.Set("interval", interval)
	query.Set("includePrePost", "false")
	endpoint := y.baseURL + chartPath + url.PathEscape(symbol) + "?" + query.Encode()

	body, err := y.client.Get(ctx, endpoint, http.Header{"Accept": []string{"application/json"}})
	if err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) {
			return nil, parseChartError(statusErr.StatusCode, []byte(statusErr.Body))
		}
		return nil, fmt.Errorf("fetch %s bars: %w", symbol, err)
	}

	var res chartResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("decode chart response: %w", err)
	}
	if res.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo chart error: %s", res.Chart.Error.describe())
	}
	if len(res.Chart.Result) == 0 {
		return nil, fmt.Errorf("yahoo chart returned no data for %s", symbol)
	}

	bars, dropped := res.Chart.Result[0].bars(isDaily(interval))
	y.logger.Debug().
		Str("symbol", symbol).
		Str("range", lookback).
		Str("interval", interval).
		Int("bars", len(bars)).
		Int("dropped", dropped).
		Msg("price bars fetched")
	return bars, nil
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Symbol    string `json:"symbol"`
		Currency  string `json:"currency"`
		GMTOffset int64  `json:"gmtoffset"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open  []*float64 `json:"open"`
			High  []*float64 `json:"high"`
			Low   []*float64 `json:"low"`
			Close []*float64 `json:"close"`
		} `json:"quote"`
	} `json:"indicators"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (e *chartError) describe() string {
	if e.Description != "" {
		return e.Description
	}
	return e.Code
}

func (r chartResult) bars(daily bool) ([]volatility.PriceBar, int) {
	if len(r.Indicators.Quote) == 0 {
		return []volatility.PriceBar{}, len(r.Timestamp)
	}
	q := r.Indicators.Quote[0]

	byTime := make(map[int64]volatility.PriceBar, len(r.Timestamp))
	dropped := 0
	for i, ts := range r.Timestamp {
		open, high, low, closePx := at(q.Open, i), at(q.High, i), at(q.Low, i), at(q.Close, i)
		if open == nil || high == nil || low == nil || closePx == nil {
			dropped++
			continue
		}
		stamp := time.Unix(ts, 0).UTC()
		if daily {
			local := time.Unix(ts+r.Meta.GMTOffset, 0).UTC()
			stamp = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
		}
		// later rows for the same stamp win
		byTime[stamp.Unix()] = volatility.PriceBar{Timestamp: stamp, Open: *open, High: *high, Low: *low, Close: *closePx}
	}

	bars := make([]volatility.PriceBar, 0, len(byTime))
	for _, b := range byTime {
		bars = append(bars, b)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	return bars, dropped
}

func at(values []*float64, i int) *float64 {
	if i >= len(values) {
		return nil
	}
	return values[i]
}

func isDaily(interval string) bool {
	switch interval {
	case "1d", "5d", "1wk", "1mo", "3mo":
		return true
	default:
		return false
	}
}

func parseChartError(status int, payload []byte) error {
	var res chartResponse
	if err := json.Unmarshal(payload, &res); err == nil && res.Chart.Error != nil {
		return fmt.Errorf("yahoo chart error (%d): %s", status, res.Chart.Error.describe())
	}
	if len(payload) > 0 {
		return fmt.Errorf("yahoo chart error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("yahoo chart error (%d)", status)
}

var _ PriceFeed = (*Yahoo)(nil)
