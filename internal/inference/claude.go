package inference

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"
)

const defaultClaudeModel = "claude-3-5-haiku-latest"

// Claude runs inference against the Anthropic Messages API.
type Claude struct {
	client anthropic.Client
	opts   Options
	logger zerolog.Logger
}

// NewClaude builds an Anthropic backed inferrer.
func NewClaude(opts Options, logger zerolog.Logger) *Claude {
	if opts.Model == "" {
		opts.Model = defaultClaudeModel
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1024
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey), option.WithMaxRetries(1)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(opts.Timeout))
	}

	return &Claude{
		client: anthropic.NewClient(reqOpts...),
		opts:   opts,
		logger: logger.With().Str("component", "inference").Str("provider", ProviderAnthropic).Logger(),
	}
}

// Infer sends text with the fixed instruction and decodes the JSON reply.
func (c *Claude) Infer(ctx context.Context, text string) (map[string]any, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.opts.Model),
		MaxTokens: c.opts.MaxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
		Temperature: anthropic.Float(c.opts.Temperature),
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("claude messages: %w", err)
	}

	var reply strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			reply.WriteString(block.Text)
		}
	}
	if reply.Len() == 0 {
		return nil, ErrEmptyResponse
	}

	c.logger.Debug().
		Str("model", c.opts.Model).
		Int64("input_tokens", resp.Usage.InputTokens).
		Int64("output_tokens", resp.Usage.OutputTokens).
		Msg("inference completed")
	return ExtractRecord(reply.String())
}

var _ Inferrer = (*Claude)(nil)
