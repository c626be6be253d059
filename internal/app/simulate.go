package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"energy-desk/internal/inference"
	"energy-desk/internal/service"
	"energy-desk/internal/signal"
)

// SimulateOptions configure the simulate-signal command.
type SimulateOptions struct {
	FixturePath string
	Text        string
	Notify      bool
}

// defaultFixture is a supply shock record used when no fixture file is given.
var defaultFixture = map[string]any{
	"headline":               "Explosion halts flows on major gas export pipeline",
	"affected_assets":        []any{"Natural Gas", "TTF"},
	"category":               "Supply Shock",
	"sentiment":              "Bullish",
	"summary":                "Unplanned outage removes export capacity for at least two weeks.",
	"trading_recommendation": "Expect front-month strength; review short exposure.",
}

// SimulateSignal pushes a fixture record through validation, risk evaluation
// and, when requested, the alert channel.
func (a *App) SimulateSignal(ctx context.Context, opts SimulateOptions) error {
	inf := inference.NewStatic(defaultFixture)
	if opts.FixturePath != "" {
		loaded, err := inference.LoadStatic(opts.FixturePath)
		if err != nil {
			return err
		}
		inf = loaded
	}
	if opts.Notify && !a.Config.Alerting.Enabled {
		return errors.New("alerting is disabled; enable alerting.enabled to send simulated alerts")
	}

	svc, err := a.newService(ctx, serviceDeps{inferrer: inf, notify: opts.Notify})
	if err != nil {
		return err
	}

	text := opts.Text
	if text == "" {
		text = "simulated news item"
	}
	out, err := svc.ProcessText(ctx, text)
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	switch {
	case service.IsNoise(err):
		fmt.Fprintln(w, "Result\tdropped (category OTHER)")
		return w.Flush()
	case err != nil:
		var verr *signal.ValidationError
		if errors.As(err, &verr) {
			fmt.Fprintln(w, "Result\trejected")
			for _, issue := range verr.Issues {
				fmt.Fprintf(w, "%s\t%s\n", issue.Field, issue.Reason)
			}
			if flushErr := w.Flush(); flushErr != nil {
				return flushErr
			}
		}
		return err
	}

	sig := out.Signal
	fmt.Fprintf(w, "Result\taccepted\n")
	fmt.Fprintf(w, "ID\t%s\n", out.ID)
	fmt.Fprintf(w, "Tier\t%s\n", out.Tier)
	fmt.Fprintf(w, "Headline\t%s\n", sanitizeInline(sig.Headline))
	fmt.Fprintf(w, "Category\t%s (%s)\n", sig.Category.Label(), sig.Category)
	fmt.Fprintf(w, "Sentiment\t%s\n", sig.Sentiment)
	fmt.Fprintf(w, "Assets\t%s\n", strings.Join(sig.AffectedAssets, ", "))
	if err := w.Flush(); err != nil {
		return err
	}

	if opts.Notify {
		svc.Dispatch(ctx, []service.Outcome{out})
	}
	return nil
}
