package app

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"
)

// CalibrateOptions configure the calibrate command.
type CalibrateOptions struct {
	DryRun bool
}

// Calibrate recomputes regime thresholds from the long history and persists
// them unless DryRun is set. The previous thresholds stay in place on error.
func (a *App) Calibrate(ctx context.Context, opts CalibrateOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc, err := a.newService(ctx, serviceDeps{store: store})
	if err != nil {
		return err
	}
	prev, err := a.loadThresholds(ctx, svc)
	if err != nil {
		return err
	}

	now := a.now().UTC()
	res, err := svc.Calibrate(ctx, now, !opts.DryRun)
	if err != nil {
		return fmt.Errorf("calibrate %s: %w", a.Config.Market.PrimarySymbol, err)
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Symbol\t%s\n", a.Config.Market.PrimarySymbol)
	fmt.Fprintf(w, "History\t%d points (%s to %s)\n", res.HistoryPoints, day(res.HistoryStart), day(res.HistoryEnd))
	fmt.Fprintf(w, "Recent window\t%d points since %s\n", res.RecentPoints, day(res.RecentStart))
	fmt.Fprintln(w, "Level\tPrevious\tCalibrated")
	fmt.Fprintf(w, "noise\t%s\t%s\n", pct(prev.Thresholds.Noise), pct(res.Thresholds.Noise))
	fmt.Fprintf(w, "high\t%s\t%s\n", pct(prev.Thresholds.High), pct(res.Thresholds.High))
	fmt.Fprintf(w, "critical\t%s\t%s\n", pct(prev.Thresholds.Critical), pct(res.Thresholds.Critical))
	if res.Degraded {
		fmt.Fprintln(w, "Note\trecent window empty, long-term statistics used for high and noise")
	}
	if res.Inverted {
		fmt.Fprintln(w, "Warning\tthresholds are not ordered noise <= high <= critical")
	}
	if opts.DryRun {
		fmt.Fprintln(w, "Saved\tno (dry run)")
	} else {
		fmt.Fprintln(w, "Saved\tyes")
	}
	return w.Flush()
}

func day(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02")
}
