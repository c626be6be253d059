package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Inferrer turns free text into an untrusted structured record. The caller
// validates the record before using it.
type Inferrer interface {
	Infer(ctx context.Context, text string) (map[string]any, error)
}

// Provider names accepted by New.
const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("model returned no text")

// Options configure an inference backend.
type Options struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int64

	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// New builds the configured provider wrapped in a circuit breaker.
func New(ctx context.Context, opts Options, logger zerolog.Logger) (Inferrer, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("inference api key not configured for provider %q", opts.Provider)
	}

	var (
		backend Inferrer
		err     error
	)
	switch strings.ToLower(strings.TrimSpace(opts.Provider)) {
	case ProviderAnthropic, "claude":
		backend = NewClaude(opts, logger)
	case ProviderGemini, "google":
		backend, err = NewGemini(ctx, opts, logger)
	default:
		return nil, fmt.Errorf("unknown inference provider %q", opts.Provider)
	}
	if err != nil {
		return nil, err
	}
	return NewGuarded(backend, opts.Provider, opts.BreakerFailures, opts.BreakerCooldown, logger), nil
}

const systemPrompt = `You are an analyst on an energy commodities desk covering natural gas, crude oil and LNG.
Read the news text and answer with a single JSON object and nothing else, using exactly these keys:
  "headline": a short headline for the event,
  "affected_assets": a list of affected commodities or instruments,
  "category": one of "Supply Shock", "Weather Event", "Macro Economic", "Inventory Report", "Geopolitical Tension", "Other / Noise",
  "sentiment": one of "Bullish", "Bearish", "Neutral",
  "summary": one sentence on the market impact,
  "trading_recommendation": a short actionable note for the desk.
Judge sentiment by physical supply and demand. Disruptions to supply (attacks, strikes, outages, leaks) are Bullish.
New supply or exports coming online are Bearish. Demand destruction (mild weather, recession) is Bearish.
Regulatory or statistical news without a physical effect is Neutral.`

// ExtractRecord pulls the first JSON object out of a model reply, tolerating
// markdown code fences and surrounding prose.
func ExtractRecord(reply string) (map[string]any, error) {
	text := strings.TrimSpace(reply)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no json object in model reply")
	}

	var record map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &record); err != nil {
		return nil, fmt.Errorf("decode model reply: %w", err)
	}
	return record, nil
}
