package inference

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.0-flash"

// Gemini runs inference against the Google Gemini API.
type Gemini struct {
	client *genai.Client
	opts   Options
	logger zerolog.Logger
}

// NewGemini builds a Gemini backed inferrer.
func NewGemini(ctx context.Context, opts Options, logger zerolog.Logger) (*Gemini, error) {
	if opts.Model == "" {
		opts.Model = defaultGeminiModel
	}

	cfg := &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	if opts.Timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &Gemini{
		client: client,
		opts:   opts,
		logger: logger.With().Str("component", "inference").Str("provider", ProviderGemini).Logger(),
	}, nil
}

// Infer sends text with the fixed instruction and decodes the JSON reply.
func (g *Gemini) Infer(ctx context.Context, text string) (map[string]any, error) {
	config := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(float32(g.opts.Temperature)),
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
	}
	if g.opts.MaxTokens > 0 {
		config.MaxOutputTokens = int32(g.opts.MaxTokens)
	}

	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}
	resp, err := g.client.Models.GenerateContent(ctx, g.opts.Model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	var reply strings.Builder
	if resp != nil {
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				reply.WriteString(part.Text)
			}
			if reply.Len() > 0 {
				break
			}
		}
	}
	if reply.Len() == 0 {
		return nil, ErrEmptyResponse
	}

	g.logger.Debug().Str("model", g.opts.Model).Msg("inference completed")
	return ExtractRecord(reply.String())
}

var _ Inferrer = (*Gemini)(nil)
