package app

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"energy-desk/internal/fetcher"
	"energy-desk/internal/service"
)

// NewsOptions configure the news command.
type NewsOptions struct {
	Topic   string
	DaysAgo int
	Notify  bool
}

// News analyses one batch of articles and prints the validated signals.
func (a *App) News(ctx context.Context, opts NewsOptions) error {
	if opts.DaysAgo < 0 {
		return fmt.Errorf("--days-ago must be >= 0")
	}
	topic := strings.TrimSpace(opts.Topic)
	if topic == "" {
		topic = a.Config.News.Topic
	}

	svc, err := a.newService(ctx, serviceDeps{news: true, notify: opts.Notify})
	if err != nil {
		return err
	}

	report, err := svc.AnalyzeNews(ctx, fetcher.NewsQuery{Topic: topic, DaysAgo: opts.DaysAgo})
	if err != nil {
		return err
	}
	if opts.Notify {
		svc.Dispatch(ctx, report.Signals)
	}

	return a.writeSignals(topic, opts.DaysAgo, report)
}

func (a *App) writeSignals(topic string, daysAgo int, report service.NewsReport) error {
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	mode := "live"
	if daysAgo > 0 {
		mode = fmt.Sprintf("%d days ago", daysAgo)
	}
	fmt.Fprintf(w, "Topic: %s (%s), %d fetched, %d signals, %d noise, %d failed\n",
		topic, mode, report.Fetched, len(report.Signals), report.Noise, report.Failed)
	if len(report.Signals) == 0 {
		fmt.Fprintln(w, "no actionable signals")
		return w.Flush()
	}

	fmt.Fprintln(w, "Tier\tCategory\tSentiment\tAssets\tHeadline\tRecommendation")
	for _, out := range report.Signals {
		sig := out.Signal
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			out.Tier,
			sig.Category.Label(),
			sig.Sentiment,
			sanitizeInline(strings.Join(sig.AffectedAssets, ", ")),
			sanitizeInline(sig.Headline),
			sanitizeInline(sig.TradingRecommendation),
		)
	}
	return w.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	cleaned = strings.ReplaceAll(cleaned, "\t", " ")
	return cleaned
}
