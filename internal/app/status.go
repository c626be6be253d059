package app

import (
	"context"
	"fmt"
	"math"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"energy-desk/internal/indicators"
	"energy-desk/internal/volatility"
)

var lookbackBars = map[string]int{"1M": 30, "3M": 90, "6M": 180, "1Y": 365}

// StatusOptions configure the status command.
type StatusOptions struct {
	Lookback string
}

// Status prints a one-shot market snapshot for the primary symbol.
func (a *App) Status(ctx context.Context, opts StatusOptions) error {
	lookback, ok := lookbackBars[strings.ToUpper(strings.TrimSpace(opts.Lookback))]
	if !ok {
		return fmt.Errorf("invalid --lookback %q, want one of 1M, 3M, 6M, 1Y", opts.Lookback)
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

	snap, err := svc.Snapshot(ctx)
	if err != nil {
		return err
	}

	closes := indicators.Closes(snap.Bars)
	rsi := indicators.RSI(closes, a.Config.Calibration.RSIPeriod)

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Symbol\t%s\n", snap.Symbol)
	fmt.Fprintf(w, "As of\t%s\n", day(snap.At))
	fmt.Fprintf(w, "Price\t%s\n", formatFloat(snap.Price, 3))
	fmt.Fprintf(w, "Volatility\t%s (%s vs noise)\n", pct(snap.VolPct), signedPct(snap.Delta))
	fmt.Fprintf(w, "Trend (1M)\t%s %s\n", pct(snap.TrendMean), snap.Trend)
	fmt.Fprintf(w, "Regime\t%s\n", snap.Label)
	fmt.Fprintf(w, "Thresholds\tnoise %s, high %s, critical %s\n",
		pct(snap.Thresholds.Noise), pct(snap.Thresholds.High), pct(snap.Thresholds.Critical))
	if len(rsi) > 0 && !math.IsNaN(rsi[len(rsi)-1]) {
		fmt.Fprintf(w, "RSI(%d)\t%s%s\n", a.Config.Calibration.RSIPeriod, formatFloat(rsi[len(rsi)-1], 1), rsiZone(rsi[len(rsi)-1]))
	}

	if secondary := a.Config.Market.SecondarySymbol; secondary != "" {
		if err := a.writeComparison(ctx, w, snap.Bars, secondary, opts.Lookback, lookback); err != nil {
			a.Logger.Warn().Err(err).Str("secondary", secondary).Msg("comparison unavailable")
			fmt.Fprintf(w, "%s\tunavailable\n", secondary)
		}
	}
	return w.Flush()
}

func (a *App) writeComparison(ctx context.Context, w *tabwriter.Writer, primary []volatility.PriceBar, symbol, label string, lookback int) error {
	bars, err := a.priceFeed().FetchBars(ctx, symbol, a.Config.Market.LiveRange, a.Config.Market.BarInterval)
	if err != nil {
		return err
	}
	pairs := indicators.Align(primary, bars)
	if len(pairs) > lookback {
		pairs = pairs[len(pairs)-lookback:]
	}
	if len(pairs) < 2 {
		return fmt.Errorf("only %d common dates", len(pairs))
	}

	primaryCloses := make([]float64, len(pairs))
	secondaryCloses := make([]float64, len(pairs))
	for i, p := range pairs {
		primaryCloses[i], secondaryCloses[i] = p.Primary, p.Secondary
	}
	primaryNorm, err := indicators.Normalize(primaryCloses)
	if err != nil {
		return err
	}
	secondaryNorm, err := indicators.Normalize(secondaryCloses)
	if err != nil {
		return err
	}
	primaryPerf := primaryNorm[len(primaryNorm)-1]
	secondaryPerf := secondaryNorm[len(secondaryNorm)-1]
	fmt.Fprintf(w, "Performance (%s)\t%s %s, %s %s\n",
		strings.ToUpper(label), a.Config.Market.PrimarySymbol, signedPct(primaryPerf), symbol, signedPct(secondaryPerf))

	corr, err := indicators.Correlation(pairs)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Correlation (%s)\t%s\n", strings.ToUpper(label), formatFloat(corr, 2))
	return nil
}

func rsiZone(v float64) string {
	switch {
	case v > 70:
		return " overbought"
	case v < 30:
		return " oversold"
	default:
		return ""
	}
}

func formatFloat(v float64, places int32) string {
	return decimal.NewFromFloat(v).StringFixed(places)
}

func pct(v float64) string {
	return formatFloat(v, 2) + "%"
}

func signedPct(v float64) string {
	s := pct(v)
	if v > 0 {
		return "+" + s
	}
	return s
}
