package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"energy-desk/internal/regime"
	"energy-desk/internal/volatility"
)

// ExportOptions hold parameters for exporting the volatility series.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	Range     string
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// Export renders the volatility series as CSV and/or PNG with the regime
// threshold lines.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)
	if opts.Range == "" {
		opts.Range = a.Config.Market.HistoryRange
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc, err := a.newService(ctx, serviceDeps{store: store})
	if err != nil {
		return err
	}
	if _, err := a.loadThresholds(ctx, svc); err != nil {
		return err
	}
	thresholds := svc.Thresholds()

	symbol := a.Config.Market.PrimarySymbol
	bars, err := a.priceFeed().FetchBars(ctx, symbol, opts.Range, a.Config.Market.BarInterval)
	if err != nil {
		return err
	}
	points, err := volatility.Compute(bars)
	if err != nil {
		return err
	}
	points = window(points, opts.From, opts.To)
	if opts.From != nil && opts.To != nil && !opts.From.Before(*opts.To) {
		return errors.New("from must be before to")
	}
	if len(points) == 0 {
		a.Logger.Info().Msg("no points found for export window")
		return nil
	}

	downsampled := downsamplePoints(points, opts.MaxPoints)
	a.Logger.Info().Int("total", len(points)).Int("exported", len(downsampled)).Msg("exporting volatility series")

	if opts.CSVPath != "" {
		if err := writePointsCSV(opts.CSVPath, downsampled, thresholds); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writePointsPNG(opts.PNGPath, symbol, downsampled, thresholds, a.Config.Export.ChartWidth, a.Config.Export.ChartHeight); err != nil {
			return err
		}
	}

	return nil
}

// window keeps points with from <= ts < to.
func window(points []volatility.Point, from, to *time.Time) []volatility.Point {
	out := make([]volatility.Point, 0, len(points))
	for _, p := range points {
		if from != nil && p.Timestamp.Before(*from) {
			continue
		}
		if to != nil && !p.Timestamp.Before(*to) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func downsamplePoints(points []volatility.Point, max int) []volatility.Point {
	if max <= 0 || len(points) <= max {
		return points
	}
	if max == 1 {
		return points[len(points)-1:]
	}

	result := make([]volatility.Point, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func writePointsCSV(path string, points []volatility.Point, t regime.Thresholds) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{"ts", "close", "prev_close", "true_range", "vol_pct", "regime"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, p := range points {
		record := []string{
			p.Timestamp.UTC().Format(time.RFC3339),
			strconv.FormatFloat(p.Close, 'f', -1, 64),
			strconv.FormatFloat(p.PrevClose, 'f', -1, 64),
			strconv.FormatFloat(p.TrueRange, 'f', -1, 64),
			strconv.FormatFloat(p.VolPct, 'f', 4, 64),
			regime.Classify(p.VolPct, t).String(),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writePointsPNG(path, symbol string, points []volatility.Point, t regime.Thresholds, width, height int) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	if width <= 0 {
		width = 1280
	}
	if height <= 0 {
		height = 480
	}

	x := make([]time.Time, len(points))
	vol := make([]float64, len(points))
	closes := make([]float64, len(points))
	for i, p := range points {
		x[i] = p.Timestamp
		vol[i] = p.VolPct
		closes[i] = p.Close
	}
	level := func(v float64) []float64 {
		out := make([]float64, len(points))
		for i := range out {
			out[i] = v
		}
		return out
	}

	pctFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Title:  symbol + " volatility regime",
		Width:  width,
		Height: height,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Volatility (%)",
			ValueFormatter: pctFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Close",
			ValueFormatter: pctFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{Name: "vol_pct", XValues: x, YValues: vol},
			chart.TimeSeries{
				Name:    "noise",
				XValues: x,
				YValues: level(t.Noise),
				Style:   chart.Style{StrokeColor: chart.ColorAlternateGray, StrokeDashArray: []float64{5, 5}},
			},
			chart.TimeSeries{
				Name:    "high",
				XValues: x,
				YValues: level(t.High),
				Style:   chart.Style{StrokeColor: chart.ColorOrange, StrokeDashArray: []float64{5, 5}},
			},
			chart.TimeSeries{
				Name:    "critical",
				XValues: x,
				YValues: level(t.Critical),
				Style:   chart.Style{StrokeColor: chart.ColorRed, StrokeDashArray: []float64{5, 5}},
			},
			chart.TimeSeries{Name: "close", XValues: x, YValues: closes, YAxis: chart.YAxisSecondary},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
