package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"energy-desk/internal/alerting"
	"energy-desk/internal/fetcher"
	"energy-desk/internal/signal"
)

const maxSeen = 2048

// Outcome is the result of pushing one text through inference, validation
// and risk evaluation.
type Outcome struct {
	ID          string
	Source      string
	PublishedAt time.Time
	Signal      signal.MarketSignal
	Tier        signal.RiskTier
}

// NewsReport summarises one news batch.
type NewsReport struct {
	Fetched   int
	Duplicate int
	Noise     int
	Failed    int
	Signals   []Outcome
}

// errNoise marks records classified as OTHER.
var errNoise = errors.New("signal classified as noise")

// AnalyzeNews fetches news for the query and converts each item into a
// signal. Items failing inference or validation are counted and skipped.
// Items already analysed by a previous live batch are skipped too.
func (s *Service) AnalyzeNews(ctx context.Context, query fetcher.NewsQuery) (NewsReport, error) {
	if s.news == nil || s.inferrer == nil {
		return NewsReport{}, fmt.Errorf("news analysis not configured")
	}
	if query.Topic == "" {
		query.Topic = s.opts.NewsTopic
	}

	started := s.now()
	defer func() { s.metrics.RecordLatency("news", s.now().Sub(started)) }()

	items, err := s.news.FetchNews(ctx, query)
	if err != nil {
		return NewsReport{}, fmt.Errorf("fetch news: %w", err)
	}

	report := NewsReport{Fetched: len(items)}
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		live := query.DaysAgo == 0
		if live && s.seenBefore(item) {
			report.Duplicate++
			continue
		}

		out, err := s.ProcessText(ctx, item.Text)
		// inference failures stay unmarked so the next live batch retries them
		var verr *signal.ValidationError
		if live && (err == nil || errors.Is(err, errNoise) || errors.As(err, &verr)) {
			s.markSeen(item)
		}
		switch {
		case errors.Is(err, errNoise):
			report.Noise++
			continue
		case err != nil:
			report.Failed++
			s.logger.Warn().Err(err).Str("title", item.Title).Msg("news item skipped")
			continue
		}
		out.Source = item.Source
		out.PublishedAt = item.PublishedAt
		report.Signals = append(report.Signals, out)
	}

	s.logger.Info().
		Str("topic", query.Topic).
		Int("days_ago", query.DaysAgo).
		Int("fetched", report.Fetched).
		Int("signals", len(report.Signals)).
		Int("noise", report.Noise).
		Int("failed", report.Failed).
		Int("duplicate", report.Duplicate).
		Msg("news analysed")
	return report, nil
}

// ProcessText infers, validates and evaluates a single text. Noise records
// return an error wrapping errNoise, see IsNoise.
func (s *Service) ProcessText(ctx context.Context, text string) (Outcome, error) {
	if s.inferrer == nil {
		return Outcome{}, fmt.Errorf("inference not configured")
	}
	raw, err := s.inferrer.Infer(ctx, text)
	if err != nil {
		s.metrics.RecordError("inference")
		return Outcome{}, fmt.Errorf("infer: %w", err)
	}

	sig, err := signal.Validate(raw)
	if err != nil {
		s.metrics.RecordError("validation")
		return Outcome{}, err
	}
	if sig.Category.IsNoise() {
		return Outcome{}, fmt.Errorf("%q: %w", sig.Headline, errNoise)
	}

	tier := signal.Evaluate(sig)
	s.metrics.RecordSignal(sig.Category.String(), tier.String())
	return Outcome{ID: newID(), Signal: sig, Tier: tier}, nil
}

// IsNoise reports whether err came from an OTHER classification.
func IsNoise(err error) bool {
	return errors.Is(err, errNoise)
}

// Dispatch routes ALERT outcomes to the notifier and logs LOG outcomes.
func (s *Service) Dispatch(ctx context.Context, outcomes []Outcome) {
	for _, out := range outcomes {
		if out.Tier != signal.TierAlert {
			s.logger.Info().
				Str("signal_id", out.ID).
				Str("category", out.Signal.Category.String()).
				Str("sentiment", out.Signal.Sentiment.String()).
				Str("headline", out.Signal.Headline).
				Msg("signal logged")
			continue
		}

		sig := out.Signal
		note := alerting.Notification{ID: out.ID, At: s.now().UTC(), Signal: &sig, Tier: out.Tier}
		if err := s.notify(ctx, note); err != nil {
			s.logger.Error().Err(err).Str("signal_id", out.ID).Msg("failed to dispatch signal alert")
		}
	}
}

func seenKey(item fetcher.NewsItem) string {
	key := strings.ToLower(strings.TrimSpace(item.URL))
	if key == "" {
		key = strings.ToLower(strings.TrimSpace(item.Text))
	}
	return key
}

func (s *Service) seenBefore(item fetcher.NewsItem) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seen[seenKey(item)]
	return ok
}

// markSeen records an item that reached a final outcome.
func (s *Service) markSeen(item fetcher.NewsItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.seen) >= maxSeen {
		s.seen = make(map[string]struct{})
	}
	s.seen[seenKey(item)] = struct{}{}
}

func newID() string {
	return uuid.NewString()
}
