package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"energy-desk/internal/metrics"
	"energy-desk/internal/scheduler"
	"energy-desk/internal/service"
)

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	var recorder service.Metrics
	if a.Config.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		recorder = metrics.New(reg)

		srv := metrics.NewServer(a.Config.Metrics.Listen, reg, a.Logger)
		go func() {
			if err := srv.Run(ctx); err != nil {
				a.Logger.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	newsOn := a.Config.News.Enabled && a.Config.News.APIKey != ""
	if a.Config.News.Enabled && !newsOn {
		a.Logger.Warn().Msg("news.api_key not configured; news analysis disabled")
	}

	svc, err := a.newService(ctx, serviceDeps{store: store, news: newsOn, notify: true, metrics: recorder})
	if err != nil {
		return err
	}
	if _, err := a.loadThresholds(ctx, svc); err != nil {
		return err
	}

	sched, err := scheduler.New(scheduler.Options{StartupDelay: a.Config.Scheduler.StartupDelay}, a.Logger, svc.Jobs()...)
	if err != nil {
		return err
	}

	a.Logger.Info().
		Str("symbol", a.Config.Market.PrimarySymbol).
		Dur("refresh_interval", a.Config.Scheduler.RefreshInterval).
		Dur("calibrate_interval", a.Config.Scheduler.CalibrateInterval).
		Bool("news", newsOn).
		Msg("starting desk service")
	err = sched.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("desk service stopped")
	return nil
}
