package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"energy-desk/internal/alerting"
	"energy-desk/internal/config"
	"energy-desk/internal/fetcher"
	"energy-desk/internal/inference"
	"energy-desk/internal/service"
	"energy-desk/internal/storage"
	"energy-desk/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	out io.Writer
	now func() time.Time

	// collaborators injected by tests; built from Config when nil
	prices   fetcher.PriceFeed
	news     fetcher.NewsFeed
	inferrer inference.Inferrer
	store    storage.ThresholdStore
	notifier alerting.Notifier
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config: cfg,
		Logger: logger.With().Str("component", "app").Logger(),
		out:    os.Stdout,
		now:    time.Now,
	}
}

func (a *App) priceFeed() fetcher.PriceFeed {
	if a.prices != nil {
		return a.prices
	}
	m := a.Config.Market
	ua := m.UserAgent
	if ua == "" {
		ua = version.UserAgent()
	}
	a.prices = fetcher.NewYahoo(fetcher.PriceOptions{
		BaseURL:        m.BaseURL,
		Timeout:        m.RequestTimeout,
		RequestsPerSec: m.RequestsPerSec,
		MaxRetries:     m.MaxRetries,
		UserAgent:      ua,
	}, a.Logger)
	return a.prices
}

func (a *App) newsFeed() fetcher.NewsFeed {
	if a.news != nil {
		return a.news
	}
	n := a.Config.News
	a.news = fetcher.NewNewsAPI(fetcher.NewsOptions{
		BaseURL:        n.BaseURL,
		APIKey:         n.APIKey,
		Language:       n.Language,
		PageSize:       n.PageSize,
		Timeout:        n.RequestTimeout,
		RequestsPerSec: n.RequestsPerSec,
		MaxRetries:     a.Config.Market.MaxRetries,
		Now:            a.now,
	}, a.Logger)
	return a.news
}

func (a *App) newInferrer(ctx context.Context) (inference.Inferrer, error) {
	if a.inferrer != nil {
		return a.inferrer, nil
	}
	c := a.Config.Inference
	inf, err := inference.New(ctx, inference.Options{
		Provider:        c.Provider,
		Model:           c.Model,
		APIKey:          c.APIKey,
		BaseURL:         c.BaseURL,
		Timeout:         c.Timeout,
		Temperature:     c.Temperature,
		MaxTokens:       c.MaxTokens,
		BreakerFailures: c.BreakerFailures,
		BreakerCooldown: c.BreakerCooldown,
	}, a.Logger)
	if err != nil {
		return nil, err
	}
	a.inferrer = inf
	return inf, nil
}

func (a *App) newNotifier() alerting.Notifier {
	if a.notifier != nil {
		return a.notifier
	}
	var next alerting.Notifier = alerting.NewLogNotifier(a.Logger)
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		next = alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return alerting.NewThrottle(next, a.Config.Alerting.Cooldown)
}

// openStore returns the configured threshold store and its closer.
func (a *App) openStore(ctx context.Context) (storage.ThresholdStore, func(), error) {
	if a.store != nil {
		return a.store, func() {}, nil
	}

	switch a.Config.Thresholds.Store {
	case config.StorePostgres:
		pool, err := storage.NewPool(ctx, a.Config.Database)
		if err != nil {
			return nil, nil, err
		}
		applied, err := storage.Migrate(ctx, pool, a.Config.Database.MigrationsPath)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		a.Logger.Debug().Strs("migrations", applied).Msg("migrations applied")

		store := storage.NewStore(pool)
		return store, store.Close, nil
	default:
		path := a.Config.ThresholdsPath()
		a.Logger.Debug().Str("path", path).Msg("using file threshold store")
		return storage.NewFileStore(path), func() {}, nil
	}
}

// serviceDeps selects which optional collaborators a command needs.
type serviceDeps struct {
	store    storage.ThresholdStore
	news     bool
	notify   bool
	inferrer inference.Inferrer
	metrics  service.Metrics
}

func (a *App) newService(ctx context.Context, d serviceDeps) (*service.Service, error) {
	cfg := a.Config
	deps := service.Deps{
		Prices:   a.priceFeed(),
		Store:    d.store,
		Inferrer: d.inferrer,
		Metrics:  d.metrics,
	}
	if d.news {
		deps.News = a.newsFeed()
		if deps.Inferrer == nil {
			inf, err := a.newInferrer(ctx)
			if err != nil {
				return nil, err
			}
			deps.Inferrer = inf
		}
	}
	if d.notify {
		deps.Notifier = a.newNotifier()
	}

	svc, err := service.New(service.Options{
		Symbol:            cfg.Market.PrimarySymbol,
		HistoryRange:      cfg.Market.HistoryRange,
		LiveRange:         cfg.Market.LiveRange,
		BarInterval:       cfg.Market.BarInterval,
		Calibration:       cfg.Calibration.Options(),
		TrendWindow:       cfg.Calibration.TrendWindow,
		NewsEnabled:       d.news && cfg.News.Enabled,
		NewsTopic:         cfg.News.Topic,
		AlertsEnabled:     d.notify && cfg.Alerting.Enabled,
		LockKey:           cfg.Scheduler.AdvisoryLockKey,
		RefreshInterval:   cfg.Scheduler.RefreshInterval,
		CalibrateInterval: cfg.Scheduler.CalibrateInterval,
		AlignToInterval:   cfg.Scheduler.AlignToInterval,
	}, deps, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("build service: %w", err)
	}
	return svc, nil
}

// loadThresholds puts the stored record, or the configured section, in force.
func (a *App) loadThresholds(ctx context.Context, svc *service.Service) (storage.Record, error) {
	rec, err := svc.LoadThresholds(ctx, a.Config.VolatilityThresholds)
	if err != nil {
		return storage.Record{}, err
	}
	if !rec.Thresholds.Ordered() {
		a.Logger.Warn().
			Float64("noise", rec.Thresholds.Noise).
			Float64("high", rec.Thresholds.High).
			Float64("critical", rec.Thresholds.Critical).
			Msg("thresholds are not ordered noise <= high <= critical")
	}
	return rec, nil
}
