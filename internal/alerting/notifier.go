package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"energy-desk/internal/regime"
	"energy-desk/internal/signal"
)

// RegimeChange describes an escalation of the volatility regime.
type RegimeChange struct {
	Symbol     string
	From       regime.Label
	To         regime.Label
	Trend      regime.Direction
	Price      float64
	VolPct     float64
	Thresholds regime.Thresholds
}

// Notification wraps one alert. Exactly one of Signal or Regime is set.
type Notification struct {
	ID            string
	At            time.Time
	Signal        *signal.MarketSignal
	Tier          signal.RiskTier
	Regime        *RegimeChange
	AdditionalMsg string
}

// Key identifies notifications that should be throttled together.
func (n Notification) Key() string {
	switch {
	case n.Regime != nil:
		return "regime:" + n.Regime.Symbol + ":" + n.Regime.To.String()
	case n.Signal != nil:
		return "signal:" + strings.ToLower(strings.TrimSpace(n.Signal.Headline))
	default:
		return "note:" + n.ID
	}
}

// Notifier defines alert delivery.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier pushes messages via the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier builds a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify calls sendMessage with the rendered text.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    RenderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	decodeErr := json.NewDecoder(resp.Body).Decode(&result)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && result.Description != "" {
			return fmt.Errorf("telegram status %d: %s", resp.StatusCode, result.Description)
		}
		return fmt.Errorf("telegram status %d", resp.StatusCode)
	}
	if decodeErr == nil && !result.OK {
		return fmt.Errorf("telegram returned ok=false: %s", result.Description)
	}

	n.logger.Info().
		Str("alert_id", note.ID).
		Str("key", note.Key()).
		Msg("alert sent (telegram)")
	return nil
}

// LogNotifier writes alerts to the log when no channel is configured.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier builds a log-only notifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

// Notify logs the rendered message.
func (n *LogNotifier) Notify(_ context.Context, note Notification) error {
	n.logger.Warn().
		Str("alert_id", note.ID).
		Str("key", note.Key()).
		Str("text", RenderMessage(note)).
		Msg("alert")
	return nil
}

// Throttle drops notifications whose key fired within the cooldown.
type Throttle struct {
	next     Notifier
	cooldown time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

// NewThrottle wraps next. A non-positive cooldown disables throttling.
func NewThrottle(next Notifier, cooldown time.Duration) *Throttle {
	return &Throttle{next: next, cooldown: cooldown, now: time.Now, last: make(map[string]time.Time)}
}

// Notify forwards unless the same key was delivered recently.
func (t *Throttle) Notify(ctx context.Context, note Notification) error {
	key := note.Key()
	now := t.now()

	t.mu.Lock()
	if prev, ok := t.last[key]; ok && t.cooldown > 0 && now.Sub(prev) < t.cooldown {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	if err := t.next.Notify(ctx, note); err != nil {
		return err
	}

	t.mu.Lock()
	t.last[key] = now
	t.mu.Unlock()
	return nil
}

// RenderMessage formats a notification as plain text.
func RenderMessage(note Notification) string {
	builder := strings.Builder{}
	switch {
	case note.Regime != nil:
		r := note.Regime
		builder.WriteString(fmt.Sprintf("[Volatility Regime] %s %s -> %s\n", r.Symbol, r.From, r.To))
		builder.WriteString(fmt.Sprintf("Price: %s\n", fixed(r.Price, 3)))
		builder.WriteString(fmt.Sprintf("Volatility: %s%% (noise %s%%, high %s%%, critical %s%%)\n",
			fixed(r.VolPct, 2), fixed(r.Thresholds.Noise, 2), fixed(r.Thresholds.High, 2), fixed(r.Thresholds.Critical, 2)))
		builder.WriteString(fmt.Sprintf("Trend: %s\n", r.Trend))
	case note.Signal != nil:
		s := note.Signal
		builder.WriteString(fmt.Sprintf("[%s] %s\n", note.Tier, s.Headline))
		builder.WriteString(fmt.Sprintf("Category: %s\n", s.Category.Label()))
		builder.WriteString(fmt.Sprintf("Sentiment: %s\n", s.Sentiment))
		builder.WriteString(fmt.Sprintf("Assets: %s\n", strings.Join(s.AffectedAssets, ", ")))
		builder.WriteString(fmt.Sprintf("Summary: %s\n", s.Summary))
		builder.WriteString(fmt.Sprintf("Action: %s\n", s.TradingRecommendation))
	}
	if !note.At.IsZero() {
		builder.WriteString(fmt.Sprintf("Time: %s UTC\n", note.At.UTC().Format(time.RFC3339)))
	}
	if note.AdditionalMsg != "" {
		builder.WriteString(note.AdditionalMsg)
	}
	return builder.String()
}

func fixed(v float64, places int32) string {
	return decimal.NewFromFloat(v).StringFixed(places)
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = (*Throttle)(nil)
)
