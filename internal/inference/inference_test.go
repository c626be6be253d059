package inference

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractRecord(t *testing.T) {
	cases := map[string]string{
		"plain":  `{"category":"Supply Shock"}`,
		"fenced": "```json\n{\"category\":\"Supply Shock\"}\n```",
		"prose":  "Here is the analysis:\n{\"category\":\"Supply Shock\"}\nLet me know.",
	}
	for name, reply := range cases {
		t.Run(name, func(t *testing.T) {
			rec, err := ExtractRecord(reply)
			require.NoError(t, err)
			assert.Equal(t, "Supply Shock", rec["category"])
		})
	}

	_, err := ExtractRecord("no structured answer")
	require.Error(t, err)
	_, err = ExtractRecord("{not json}")
	require.Error(t, err)
}

func TestStaticReturnsCopy(t *testing.T) {
	s := NewStatic(map[string]any{"category": "Geopolitical Tension"})
	rec, err := s.Infer(context.Background(), "anything")
	require.NoError(t, err)
	rec["category"] = "changed"

	again, err := s.Infer(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, "Geopolitical Tension", again["category"])
}

func TestLoadStatic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"sentiment":"Bullish","affected_assets":["NG"]}`), 0o600))

	s, err := LoadStatic(path)
	require.NoError(t, err)
	rec, err := s.Infer(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "Bullish", rec["sentiment"])
	assert.Equal(t, []any{"NG"}, rec["affected_assets"])

	_, err = LoadStatic(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

type failing struct{ calls int }

func (f *failing) Infer(context.Context, string) (map[string]any, error) {
	f.calls++
	return nil, errors.New("provider down")
}

func TestGuardedTripsAfterFailures(t *testing.T) {
	inner := &failing{}
	g := NewGuarded(inner, "test", 2, time.Hour, zerolog.Nop())

	for i := 0; i < 2; i++ {
		_, err := g.Infer(context.Background(), "x")
		require.EqualError(t, err, "provider down")
	}
	_, err := g.Infer(context.Background(), "x")
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, "open", g.State())
}

func TestGuardedPassesRecord(t *testing.T) {
	g := NewGuarded(NewStatic(map[string]any{"headline": "h"}), "test", 0, 0, zerolog.Nop())
	rec, err := g.Infer(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "h", rec["headline"])
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(context.Background(), Options{Provider: "openai", APIKey: "k"}, zerolog.Nop())
	require.Error(t, err)

	_, err = New(context.Background(), Options{Provider: ProviderAnthropic}, zerolog.Nop())
	require.Error(t, err)
}

func TestClaudeInfer(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		_ = json.NewDecoder(r.Body).Decode(&body)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    "msg_1",
			"type":  "message",
			"role":  "assistant",
			"model": "claude-test",
			"content": []any{map[string]any{
				"type": "text",
				"text": "```json\n{\"headline\":\"Pipeline blast\",\"category\":\"Supply Shock\"}\n```",
			}},
			"stop_reason": "end_turn",
			"usage":       map[string]any{"input_tokens": 10, "output_tokens": 20},
		})
	}))
	defer srv.Close()

	c := NewClaude(Options{APIKey: "test-key", BaseURL: srv.URL, Model: "claude-test", Timeout: time.Second}, zerolog.Nop())
	rec, err := c.Infer(context.Background(), "Explosion at a gas pipeline")
	require.NoError(t, err)
	assert.Equal(t, "Pipeline blast", rec["headline"])
	assert.Equal(t, "Supply Shock", rec["category"])

	assert.Equal(t, "claude-test", body["model"])
	assert.EqualValues(t, 1024, body["max_tokens"])
}
