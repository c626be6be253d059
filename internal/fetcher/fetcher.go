package fetcher

import (
	"context"
	"time"

	"energy-desk/internal/volatility"
)

// PriceFeed retrieves chronologically ordered OHLC bars for an instrument.
type PriceFeed interface {
	FetchBars(ctx context.Context, symbol, lookback, interval string) ([]volatility.PriceBar, error)
}

// NewsQuery selects the articles to analyse. DaysAgo > 0 restricts the
// search to that single past day for historical replays.
type NewsQuery struct {
	Topic   string
	DaysAgo int
}

// NewsItem is one raw article handed to the inference step.
type NewsItem struct {
	Title       string
	Text        string
	Source      string
	URL         string
	PublishedAt time.Time
}

// NewsFeed retrieves raw news items for a topic.
type NewsFeed interface {
	FetchNews(ctx context.Context, query NewsQuery) ([]NewsItem, error)
}
