package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"energy-desk/internal/httpclient"
)

const newsDateLayout = "2006-01-02"

// NewsOptions parameterise the NewsAPI fetcher.
type NewsOptions struct {
	BaseURL        string
	APIKey         string
	Language       string
	PageSize       int
	Timeout        time.Duration
	RequestsPerSec float64
	MaxRetries     uint64
	Now            func() time.Time
}

// NewsAPI fetches articles from the NewsAPI "everything" endpoint.
type NewsAPI struct {
	opts    NewsOptions
	logger  zerolog.Logger
	client  *httpclient.Client
	baseURL string
	now     func() time.Time
}

// NewNewsAPI constructs a news feed.
func NewNewsAPI(opts NewsOptions, logger zerolog.Logger) *NewsAPI {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://newsapi.org"
	}
	if opts.Language == "" {
		opts.Language = "en"
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 5
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &NewsAPI{
		opts:   opts,
		logger: logger.With().Str("component", "news_feed").Logger(),
		client: httpclient.New(httpclient.Options{
			Timeout:        opts.Timeout,
			RequestsPerSec: opts.RequestsPerSec,
			MaxRetries:     opts.MaxRetries,
		}),
		baseURL: baseURL,
		now:     now,
	}
}

// FetchNews returns the most relevant articles for the topic. Articles with
// neither title nor description are skipped.
func (n *NewsAPI) FetchNews(ctx context.Context, q NewsQuery) ([]NewsItem, error) {
	if strings.TrimSpace(n.opts.APIKey) == "" {
		return nil, errors.New("news api key not configured")
	}
	topic := strings.TrimSpace(q.Topic)
	if topic == "" {
		return nil, errors.New("news topic required")
	}
	if q.DaysAgo < 0 {
		return nil, fmt.Errorf("days ago must be >= 0, got %d", q.DaysAgo)
	}

	query := url.Values{}
	query.Set("q", topic)
	query.Set("language", n.opts.Language)
	query.Set("sortBy", "relevancy")
	query.Set("pageSize", strconv.Itoa(n.opts.PageSize))
	if q.DaysAgo > 0 {
		day := n.now().UTC().AddDate(0, 0, -q.DaysAgo).Format(newsDateLayout)
		query.Set("from", day)
		query.Set("to", day)
	}
	endpoint := n.baseURL + "/v2/everything?" + query.Encode()

	body, err := n.client.Get(ctx, endpoint, http.Header{"X-Api-Key": []string{n.opts.APIKey}})
	if err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) {
			return nil, parseNewsError(statusErr.StatusCode, []byte(statusErr.Body))
		}
		return nil, fmt.Errorf("fetch news: %w", err)
	}

	var res newsResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("decode news response: %w", err)
	}
	if res.Status != "" && res.Status != "ok" {
		return nil, fmt.Errorf("newsapi error: %s", res.describe())
	}

	items := make([]NewsItem, 0, len(res.Articles))
	for _, a := range res.Articles {
		text := articleText(a.Title, a.Description)
		if text == "" {
			continue
		}
		item := NewsItem{
			Title:  strings.TrimSpace(a.Title),
			Text:   text,
			Source: a.Source.Name,
			URL:    a.URL,
		}
		if ts, err := time.Parse(time.RFC3339, a.PublishedAt); err == nil {
			item.PublishedAt = ts.UTC()
		}
		items = append(items, item)
	}

	n.logger.Debug().
		Str("topic", topic).
		Int("days_ago", q.DaysAgo).
		Int("total", res.TotalResults).
		Int("items", len(items)).
		Msg("news fetched")
	return items, nil
}

func articleText(title, description string) string {
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)
	switch {
	case title == "":
		return description
	case description == "":
		return title
	default:
		return title + ". " + description
	}
}

type newsResponse struct {
	Status       string `json:"status"`
	Code         string `json:"code"`
	Message      string `json:"message"`
	TotalResults int    `json:"totalResults"`
	Articles     []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		PublishedAt string `json:"publishedAt"`
	} `json:"articles"`
}

func (r newsResponse) describe() string {
	switch {
	case r.Message != "":
		return r.Message
	case r.Code != "":
		return r.Code
	default:
		return r.Status
	}
}

func parseNewsError(status int, payload []byte) error {
	var res newsResponse
	if err := json.Unmarshal(payload, &res); err == nil && (res.Message != "" || res.Code != "") {
		return fmt.Errorf("newsapi error (%d): %s", status, res.describe())
	}
	if len(payload) > 0 {
		return fmt.Errorf("newsapi error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("newsapi error (%d)", status)
}

var _ NewsFeed = (*NewsAPI)(nil)
