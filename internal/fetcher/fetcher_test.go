package fetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func ptr(v float64) *float64 { return &v }

func chartPayload(timestamps []int64, open, high, low, closes []*float64) map[string]any {
	return map[string]any{
		"chart": map[string]any{
			"result": []any{
				map[string]any{
					"meta":      map[string]any{"symbol": "NG=F", "currency": "USD", "gmtoffset": -14400},
					"timestamp": timestamps,
					"indicators": map[string]any{
						"quote": []any{
							map[string]any{"open": open, "high": high, "low": low, "close": closes},
						},
					},
				},
			},
			"error": nil,
		},
	}
}

func TestYahooFetchBarsSuccess(t *testing.T) {
	// 2024-01-03 and 2024-01-02 04:00 UTC (midnight New York), delivered out of order.
	ts := []int64{1704254400, 1704168000, 1704340800}
	var gotPath, gotRange, gotInterval string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotRange = r.URL.Query().Get("range")
		gotInterval = r.URL.Query().Get("interval")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chartPayload(ts,
			[]*float64{ptr(2.6), ptr(2.5), ptr(2.7)},
			[]*float64{ptr(2.8), ptr(2.7), nil},
			[]*float64{ptr(2.5), ptr(2.4), ptr(2.6)},
			[]*float64{ptr(2.7), ptr(2.6), ptr(2.65)},
		))
	}))
	defer srv.Close()

	y := NewYahoo(PriceOptions{BaseURL: srv.URL, Timeout: time.Second, RequestsPerSec: 100}, noopLogger())
	bars, err := y.FetchBars(context.Background(), "NG=F", "5y", "1d")
	require.NoError(t, err)

	assert.Equal(t, "/v8/finance/chart/NG=F", gotPath)
	assert.Equal(t, "5y", gotRange)
	assert.Equal(t, "1d", gotInterval)

	require.Len(t, bars, 2, "bar with a missing high is dropped")
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), bars[0].Timestamp)
	assert.Equal(t, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), bars[1].Timestamp)
	assert.Equal(t, 2.6, bars[0].Close)
	assert.Equal(t, 2.8, bars[1].High)
}

func TestYahooFetchBarsDuplicateStampKeepsLast(t *testing.T) {
	ts := []int64{1704168000, 1704168060}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chartPayload(ts,
			[]*float64{ptr(1), ptr(2)},
			[]*float64{ptr(1), ptr(2)},
			[]*float64{ptr(1), ptr(2)},
			[]*float64{ptr(1), ptr(2)},
		))
	}))
	defer srv.Close()

	y := NewYahoo(PriceOptions{BaseURL: srv.URL, RequestsPerSec: 100}, noopLogger())
	bars, err := y.FetchBars(context.Background(), "NG=F", "", "")
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 2.0, bars[0].Close)
}

func TestYahooFetchBarsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"chart": map[string]any{
				"result": nil,
				"error":  map[string]string{"code": "Not Found", "description": "No data found, symbol may be delisted"},
			},
		})
	}))
	defer srv.Close()

	y := NewYahoo(PriceOptions{BaseURL: srv.URL, RequestsPerSec: 100}, noopLogger())
	_, err := y.FetchBars(context.Background(), "XX=F", "5y", "1d")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "symbol may be delisted")
}

func TestYahooFetchBarsMissingSymbol(t *testing.T) {
	y := NewYahoo(PriceOptions{}, noopLogger())
	_, err := y.FetchBars(context.Background(), " ", "5y", "1d")
	require.Error(t, err)
}

func TestNewsFetchSuccess(t *testing.T) {
	var got map[string]string
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = map[string]string{}
		for k := range r.URL.Query() {
			got[k] = r.URL.Query().Get(k)
		}
		gotKey = r.Header.Get("X-Api-Key")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":       "ok",
			"totalResults": 3,
			"articles": []any{
				map[string]any{
					"source":      map[string]string{"name": "Reuters"},
					"title":       "Freeport LNG outage",
					"description": "Export terminal offline for two weeks",
					"url":         "https://example.test/a",
					"publishedAt": "2024-05-01T12:00:00Z",
				},
				map[string]any{"title": "Storage build", "description": ""},
				map[string]any{"title": " ", "description": " "},
			},
		})
	}))
	defer srv.Close()

	now := time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC)
	n := NewNewsAPI(NewsOptions{
		BaseURL:        srv.URL,
		APIKey:         "secret",
		RequestsPerSec: 100,
		Now:            func() time.Time { return now },
	}, noopLogger())

	items, err := n.FetchNews(context.Background(), NewsQuery{Topic: "natural gas", DaysAgo: 3})
	require.NoError(t, err)

	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "natural gas", got["q"])
	assert.Equal(t, "en", got["language"])
	assert.Equal(t, "relevancy", got["sortBy"])
	assert.Equal(t, "5", got["pageSize"])
	assert.Equal(t, "2024-05-07", got["from"])
	assert.Equal(t, "2024-05-07", got["to"])

	require.Len(t, items, 2)
	assert.Equal(t, "Freeport LNG outage. Export terminal offline for two weeks", items[0].Text)
	assert.Equal(t, "Reuters", items[0].Source)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), items[0].PublishedAt)
	assert.Equal(t, "Storage build", items[1].Text)
	assert.True(t, items[1].PublishedAt.IsZero())
}

func TestNewsFetchLiveOmitsDateRange(t *testing.T) {
	var hasFrom bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasFrom = r.URL.Query()["from"]
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "articles": []any{}})
	}))
	defer srv.Close()

	n := NewNewsAPI(NewsOptions{BaseURL: srv.URL, APIKey: "k", RequestsPerSec: 100}, noopLogger())
	items, err := n.FetchNews(context.Background(), NewsQuery{Topic: "crude oil"})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.False(t, hasFrom)
}

func TestNewsFetchUnauthorized(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  "error",
			"code":    "apiKeyInvalid",
			"message": "Your API key is invalid or incorrect.",
		})
	}))
	defer srv.Close()

	n := NewNewsAPI(NewsOptions{BaseURL: srv.URL, APIKey: "bad", RequestsPerSec: 100}, noopLogger())
	_, err := n.FetchNews(context.Background(), NewsQuery{Topic: "natural gas"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key is invalid")
	assert.Equal(t, 1, calls)
}

func TestNewsFetchRequiresKeyAndTopic(t *testing.T) {
	n := NewNewsAPI(NewsOptions{}, noopLogger())
	_, err := n.FetchNews(context.Background(), NewsQuery{Topic: "gas"})
	require.Error(t, err)

	n = NewNewsAPI(NewsOptions{APIKey: "k"}, noopLogger())
	_, err = n.FetchNews(context.Background(), NewsQuery{Topic: ""})
	require.Error(t, err)
	_, err = n.FetchNews(context.Background(), NewsQuery{Topic: "gas", DaysAgo: -1})
	require.Error(t, err)
}
