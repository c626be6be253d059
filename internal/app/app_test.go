package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energy-desk/internal/alerting"
	"energy-desk/internal/config"
	"energy-desk/internal/fetcher"
	"energy-desk/internal/signal"
	"energy-desk/internal/storage"
	"energy-desk/internal/volatility"
)

const testConfig = `app:
  name: energydesk-test
market:
  primary_symbol: NG=F
  secondary_symbol: CL=F
volatility_thresholds:
  noise: 1
  high: 3
  critical: 5
alerting:
  enabled: true
  cooldown: 0s
`

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// testBars builds n daily bars with a drifting close and a wide final range.
func testBars(n int) []volatility.PriceBar {
	bars := make([]volatility.PriceBar, n)
	for i := range bars {
		c := 100 + float64(i%7)
		r := 1 + float64(i%4)
		if i == n-1 {
			r = 20
		}
		bars[i] = volatility.PriceBar{
			Timestamp: start.AddDate(0, 0, i),
			Open:      c,
			High:      c + r/2,
			Low:       c - r/2,
			Close:     c,
		}
	}
	return bars
}

type stubPrices struct {
	bars []volatility.PriceBar
}

func (s stubPrices) FetchBars(context.Context, string, string, string) ([]volatility.PriceBar, error) {
	return s.bars, nil
}

type stubNews struct {
	items []fetcher.NewsItem
}

func (s stubNews) FetchNews(context.Context, fetcher.NewsQuery) ([]fetcher.NewsItem, error) {
	return s.items, nil
}

type byText map[string]map[string]any

func (b byText) Infer(_ context.Context, text string) (map[string]any, error) {
	rec, ok := b[text]
	if !ok {
		return nil, errors.New("inference failed")
	}
	return rec, nil
}

type captureNotifier struct {
	notes []alerting.Notification
}

func (c *captureNotifier) Notify(_ context.Context, n alerting.Notification) error {
	c.notes = append(c.notes, n)
	return nil
}

type harness struct {
	app      *App
	out      *bytes.Buffer
	path     string
	store    *storage.FileStore
	notifier *captureNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	out := &bytes.Buffer{}
	store := storage.NewFileStore(path)
	notifier := &captureNotifier{}
	bars := testBars(40)

	a := NewApp(cfg, zerolog.Nop())
	a.out = out
	a.now = func() time.Time { return bars[len(bars)-1].Timestamp.Add(24 * time.Hour) }
	a.prices = stubPrices{bars: bars}
	a.store = store
	a.notifier = notifier

	return &harness{app: a, out: out, path: path, store: store, notifier: notifier}
}

func TestCalibrateDryRunLeavesStoreUntouched(t *testing.T) {
	h := newHarness(t)
	before, err := os.ReadFile(h.path)
	require.NoError(t, err)

	require.NoError(t, h.app.Calibrate(context.Background(), CalibrateOptions{DryRun: true}))

	output := h.out.String()
	assert.Contains(t, output, "39 points")
	assert.Contains(t, output, "no (dry run)")

	after, err := os.ReadFile(h.path)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestCalibrateSavesThresholds(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.app.Calibrate(context.Background(), CalibrateOptions{}))
	assert.Contains(t, h.out.String(), "yes")

	rec, err := h.store.Load(context.Background(), "NG=F")
	require.NoError(t, err)
	assert.Equal(t, "NG=F", rec.Symbol)
	assert.Equal(t, 39, rec.HistoryPoints)
	assert.True(t, rec.Thresholds.Ordered())
	assert.Greater(t, rec.Thresholds.Critical, 0.0)

	// other sections survive the rewrite
	reloaded, err := config.Load(h.path)
	require.NoError(t, err)
	assert.Equal(t, "energydesk-test", reloaded.App.Name)
	assert.Equal(t, rec.Thresholds, reloaded.VolatilityThresholds)
}

func TestCalibrateShortHistoryKeepsThresholds(t *testing.T) {
	h := newHarness(t)
	h.app.prices = stubPrices{bars: testBars(5)}

	err := h.app.Calibrate(context.Background(), CalibrateOptions{})
	require.Error(t, err)

	rec, err := h.store.Load(context.Background(), "NG=F")
	require.NoError(t, err)
	assert.Equal(t, 5.0, rec.Thresholds.Critical)
}

func TestStatusPrintsRegime(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.app.Status(context.Background(), StatusOptions{Lookback: "1m"}))

	output := h.out.String()
	assert.Contains(t, output, "NG=F")
	assert.Contains(t, output, "CRITICAL")
	assert.Contains(t, output, "RSI(14)")
	assert.Contains(t, output, "CL=F")
}

func TestStatusRejectsUnknownLookback(t *testing.T) {
	h := newHarness(t)
	err := h.app.Status(context.Background(), StatusOptions{Lookback: "2W"})
	require.Error(t, err)
	assert.Empty(t, h.out.String())
}

func TestExportWritesCSV(t *testing.T) {
	h := newHarness(t)
	csvPath := filepath.Join(t.TempDir(), "out", "vol.csv")

	require.NoError(t, h.app.Export(context.Background(), ExportOptions{CSVPath: csvPath, MaxPoints: 10}))

	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 11)
	assert.Equal(t, []string{"ts", "close", "prev_close", "true_range", "vol_pct", "regime"}, rows[0])
	assert.Equal(t, "CRITICAL", rows[len(rows)-1][5])
}

func TestExportRequiresOutput(t *testing.T) {
	h := newHarness(t)
	require.Error(t, h.app.Export(context.Background(), ExportOptions{}))
}

func TestDownsamplePointsKeepsEnds(t *testing.T) {
	points := make([]volatility.Point, 9)
	for i := range points {
		points[i].VolPct = float64(i)
	}

	got := downsamplePoints(points, 3)
	require.Len(t, got, 3)
	assert.Equal(t, 0.0, got[0].VolPct)
	assert.Equal(t, 4.0, got[1].VolPct)
	assert.Equal(t, 8.0, got[2].VolPct)

	assert.Len(t, downsamplePoints(points, 0), 9)
	assert.Equal(t, 8.0, downsamplePoints(points, 1)[0].VolPct)
}

func TestSimulateSignalDefaultFixtureAlerts(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.app.SimulateSignal(context.Background(), SimulateOptions{Notify: true}))

	output := h.out.String()
	assert.Contains(t, output, "accepted")
	assert.Contains(t, output, "ALERT")
	require.Len(t, h.notifier.notes, 1)
	assert.Equal(t, signal.TierAlert, h.notifier.notes[0].Tier)
	assert.Equal(t, signal.SupplyShock, h.notifier.notes[0].Signal.Category)
}

func TestSimulateSignalFixtures(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
		return p
	}

	t.Run("noise is dropped", func(t *testing.T) {
		h := newHarness(t)
		path := write("noise.json", `{"headline":"h","affected_assets":"Natural Gas","category":"Other / Noise","sentiment":"Neutral","summary":"s","trading_recommendation":"r"}`)

		require.NoError(t, h.app.SimulateSignal(context.Background(), SimulateOptions{FixturePath: path, Notify: true}))
		assert.Contains(t, h.out.String(), "dropped")
		assert.Empty(t, h.notifier.notes)
	})

	t.Run("invalid record is rejected", func(t *testing.T) {
		h := newHarness(t)
		path := write("bad.json", `{"headline":"h","affected_assets":[],"category":"Supply Shock","sentiment":"bullish","summary":"s","trading_recommendation":"r"}`)

		err := h.app.SimulateSignal(context.Background(), SimulateOptions{FixturePath: path})
		var verr *signal.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields(), "sentiment")
		assert.Contains(t, h.out.String(), "rejected")
	})

	t.Run("log tier does not notify", func(t *testing.T) {
		h := newHarness(t)
		path := write("inventory.json", `{"headline":"Storage build beats estimates","affected_assets":["Natural Gas"],"category":"INVENTORY","sentiment":"Bearish","summary":"s","trading_recommendation":"r"}`)

		require.NoError(t, h.app.SimulateSignal(context.Background(), SimulateOptions{FixturePath: path, Notify: true}))
		assert.Contains(t, h.out.String(), "LOG")
		assert.Empty(t, h.notifier.notes)
	})
}

func TestNewsPrintsSignals(t *testing.T) {
	h := newHarness(t)
	h.app.news = stubNews{items: []fetcher.NewsItem{
		{Title: "a", Text: "pipeline outage", URL: "https://example.com/a"},
		{Title: "b", Text: "celebrity gossip", URL: "https://example.com/b"},
		{Title: "c", Text: "garbled", URL: "https://example.com/c"},
	}}
	h.app.inferrer = byText{
		"pipeline outage": {
			"headline":               "Pipeline outage cuts supply",
			"affected_assets":        "Natural Gas",
			"category":               "SUPPLY_SHOCK",
			"sentiment":              "Bullish",
			"summary":                "s",
			"trading_recommendation": "Buy the front month",
		},
		"celebrity gossip": {
			"headline":               "Gossip",
			"affected_assets":        "None",
			"category":               "OTHER",
			"sentiment":              "Neutral",
			"summary":                "s",
			"trading_recommendation": "none",
		},
	}

	require.NoError(t, h.app.News(context.Background(), NewsOptions{Notify: true}))

	output := h.out.String()
	assert.Contains(t, output, "natural gas (live), 3 fetched, 1 signals, 1 noise, 1 failed")
	assert.Contains(t, output, "Pipeline outage cuts supply")
	assert.True(t, strings.Contains(output, "ALERT"))
	require.Len(t, h.notifier.notes, 1)
}

func TestNewsRejectsNegativeDays(t *testing.T) {
	h := newHarness(t)
	require.Error(t, h.app.News(context.Background(), NewsOptions{DaysAgo: -1}))
}
