package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"energy-desk/internal/alerting"
	"energy-desk/internal/fetcher"
	"energy-desk/internal/inference"
	"energy-desk/internal/regime"
	"energy-desk/internal/scheduler"
	"energy-desk/internal/storage"
	"energy-desk/internal/volatility"
)

// ErrLockHeld is returned when another instance holds the calibration lock.
var ErrLockHeld = errors.New("calibration lock held by another instance")

// Metrics is the subset of the recorder the service publishes to.
type Metrics interface {
	RecordVolatility(symbol string, price, volPct float64, regime int)
	RecordThresholds(symbol string, noise, high, critical float64)
	RecordSignal(category, tier string)
	RecordError(kind string)
	RecordLatency(op string, d time.Duration)
}

// Options tune the service.
type Options struct {
	Symbol       string
	HistoryRange string
	LiveRange    string
	BarInterval  string
	Calibration  regime.Options
	TrendWindow  int

	NewsEnabled bool
	NewsTopic   string

	AlertsEnabled bool
	LockKey       int64

	RefreshInterval   time.Duration
	CalibrateInterval time.Duration
	AlignToInterval   bool
}

// Deps are the collaborators of the service. Only Prices is mandatory.
type Deps struct {
	Prices   fetcher.PriceFeed
	News     fetcher.NewsFeed
	Inferrer inference.Inferrer
	Store    storage.ThresholdStore
	Notifier alerting.Notifier
	Metrics  Metrics
}

// Service orchestrates price refresh, calibration, news analysis and alerting.
type Service struct {
	opts     Options
	prices   fetcher.PriceFeed
	news     fetcher.NewsFeed
	inferrer inference.Inferrer
	store    storage.ThresholdStore
	locker   storage.AdvisoryLocker
	notifier alerting.Notifier
	metrics  Metrics
	logger   zerolog.Logger
	now      func() time.Time

	mu         sync.RWMutex
	thresholds regime.Thresholds
	lastLabel  *regime.Label
	seen       map[string]struct{}
}

// New constructs the desk service.
func New(opts Options, deps Deps, logger zerolog.Logger) (*Service, error) {
	if deps.Prices == nil {
		return nil, fmt.Errorf("price feed required")
	}
	if opts.Symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	if opts.TrendWindow <= 0 {
		opts.TrendWindow = regime.DefaultTrendWindow
	}
	if opts.HistoryRange == "" {
		opts.HistoryRange = "5y"
	}
	if opts.LiveRange == "" {
		opts.LiveRange = "2y"
	}
	if opts.BarInterval == "" {
		opts.BarInterval = "1d"
	}

	var locker storage.AdvisoryLocker
	if l, ok := deps.Store.(storage.AdvisoryLocker); ok {
		locker = l
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &Service{
		opts:     opts,
		prices:   deps.Prices,
		news:     deps.News,
		inferrer: deps.Inferrer,
		store:    deps.Store,
		locker:   locker,
		notifier: deps.Notifier,
		metrics:  metrics,
		logger:   logger.With().Str("component", "service").Str("symbol", opts.Symbol).Logger(),
		now:      time.Now,
		seen:     make(map[string]struct{}),
	}, nil
}

// Thresholds returns the thresholds currently in force.
func (s *Service) Thresholds() regime.Thresholds {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.thresholds
}

// SetThresholds replaces the thresholds in force.
func (s *Service) SetThresholds(t regime.Thresholds) {
	s.mu.Lock()
	s.thresholds = t
	s.mu.Unlock()
	s.metrics.RecordThresholds(s.opts.Symbol, t.Noise, t.High, t.Critical)
}

// LoadThresholds reads the persisted record, falling back to the given
// thresholds when the store is empty or absent.
func (s *Service) LoadThresholds(ctx context.Context, fallback regime.Thresholds) (storage.Record, error) {
	if s.store == nil {
		s.SetThresholds(fallback)
		return storage.Record{Symbol: s.opts.Symbol, Thresholds: fallback}, nil
	}
	rec, err := s.store.Load(ctx, s.opts.Symbol)
	if errors.Is(err, storage.ErrNoThresholds) {
		s.logger.Info().Msg("no stored thresholds, using configured values")
		s.SetThresholds(fallback)
		return storage.Record{Symbol: s.opts.Symbol, Thresholds: fallback}, nil
	}
	if err != nil {
		return storage.Record{}, fmt.Errorf("load thresholds: %w", err)
	}
	s.SetThresholds(rec.Thresholds)
	return rec, nil
}

// Jobs returns the periodic jobs driven by the scheduler.
func (s *Service) Jobs() []scheduler.Job {
	jobs := []scheduler.Job{{
		Name:         "refresh",
		Interval:     s.opts.RefreshInterval,
		AlignToStart: s.opts.AlignToInterval,
		RunOnStart:   true,
		Tick:         s.Refresh,
	}}
	if s.opts.CalibrateInterval > 0 {
		jobs = append(jobs, scheduler.Job{
			Name:         "calibrate",
			Interval:     s.opts.CalibrateInterval,
			AlignToStart: s.opts.AlignToInterval,
			Tick: func(ctx context.Context, at time.Time) error {
				_, err := s.Calibrate(ctx, at, true)
				if errors.Is(err, ErrLockHeld) {
					return nil
				}
				return err
			},
		})
	}
	return jobs
}

// Refresh runs one monitoring tick: regime snapshot, then news.
func (s *Service) Refresh(ctx context.Context, at time.Time) error {
	started := s.now()
	defer func() { s.metrics.RecordLatency("refresh", s.now().Sub(started)) }()

	if s.Thresholds().IsZero() {
		s.logger.Warn().Msg("no thresholds in force, calibrating before refresh")
		if _, err := s.Calibrate(ctx, at, true); err != nil && !errors.Is(err, ErrLockHeld) {
			s.logger.Error().Err(err).Msg("initial calibration failed")
		}
	}

	var errs []error
	if err := s.refreshRegime(ctx, at); err != nil {
		s.metrics.RecordError("refresh_regime")
		errs = append(errs, err)
	}
	if s.opts.NewsEnabled && s.news != nil && s.inferrer != nil {
		report, err := s.AnalyzeNews(ctx, fetcher.NewsQuery{Topic: s.opts.NewsTopic})
		if err != nil {
			s.metrics.RecordError("refresh_news")
			errs = append(errs, err)
		} else {
			s.Dispatch(ctx, report.Signals)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) refreshRegime(ctx context.Context, at time.Time) error {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}
	s.metrics.RecordVolatility(s.opts.Symbol, snap.Price, snap.VolPct, int(snap.Label))

	s.logger.Info().
		Time("bar", snap.At).
		Float64("price", snap.Price).
		Float64("vol_pct", snap.VolPct).
		Str("regime", snap.Label.String()).
		Str("trend", snap.Trend.String()).
		Msg("regime refreshed")

	s.mu.Lock()
	prev := s.lastLabel
	label := snap.Label
	s.lastLabel = &label
	s.mu.Unlock()

	if snap.Thresholds.IsZero() || !escalated(prev, label) {
		return nil
	}
	from := regime.Calm
	if prev != nil {
		from = *prev
	}
	return s.notify(ctx, alerting.Notification{
		ID: newID(),
		At: at,
		Regime: &alerting.RegimeChange{
			Symbol:     s.opts.Symbol,
			From:       from,
			To:         label,
			Trend:      snap.Trend,
			Price:      snap.Price,
			VolPct:     snap.VolPct,
			Thresholds: snap.Thresholds,
		},
	})
}

// escalated reports a move into HIGH or CRITICAL from a calmer regime.
func escalated(prev *regime.Label, cur regime.Label) bool {
	if cur < regime.High {
		return false
	}
	return prev == nil || cur > *prev
}

func (s *Service) notify(ctx context.Context, note alerting.Notification) error {
	if !s.opts.AlertsEnabled || s.notifier == nil {
		s.logger.Info().Str("alert_id", note.ID).Str("key", note.Key()).Msg("alerting disabled, alert not sent")
		return nil
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.metrics.RecordError("notify")
		return fmt.Errorf("dispatch alert: %w", err)
	}
	return nil
}

// Snapshot is the current regime view of the primary symbol.
type Snapshot struct {
	Symbol     string
	At         time.Time
	Price      float64
	VolPct     float64
	Delta      float64
	TrendMean  float64
	Trend      regime.Direction
	Label      regime.Label
	Thresholds regime.Thresholds
	Bars       []volatility.PriceBar
	Points     []volatility.Point
}

// Snapshot fetches live bars and classifies the latest point.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	bars, err := s.prices.FetchBars(ctx, s.opts.Symbol, s.opts.LiveRange, s.opts.BarInterval)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch bars: %w", err)
	}
	points, err := volatility.Compute(bars)
	if err != nil {
		return Snapshot{}, fmt.Errorf("compute volatility: %w", err)
	}
	if len(points) == 0 {
		return Snapshot{}, fmt.Errorf("not enough bars for %s: got %d", s.opts.Symbol, len(bars))
	}

	t := s.Thresholds()
	last := points[len(points)-1]
	mean, _ := regime.RecentMean(points, s.opts.TrendWindow)

	return Snapshot{
		Symbol:     s.opts.Symbol,
		At:         last.Timestamp,
		Price:      last.Close,
		VolPct:     last.VolPct,
		Delta:      last.VolPct - t.Noise,
		TrendMean:  mean,
		Trend:      regime.Trend(mean, t),
		Label:      regime.Classify(last.VolPct, t),
		Thresholds: t,
		Bars:       bars,
		Points:     points,
	}, nil
}

// Calibrate recomputes thresholds from the long history as of now. When
// persist is set the record is saved to the store. On failure the thresholds
// in force are left unchanged.
func (s *Service) Calibrate(ctx context.Context, now time.Time, persist bool) (regime.Result, error) {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return regime.Result{}, err
	}
	if !proceed {
		s.logger.Debug().Msg("skip calibration because advisory lock held elsewhere")
		return regime.Result{}, ErrLockHeld
	}
	if unlock != nil {
		defer unlock()
	}

	started := s.now()
	defer func() { s.metrics.RecordLatency("calibrate", s.now().Sub(started)) }()

	bars, err := s.prices.FetchBars(ctx, s.opts.Symbol, s.opts.HistoryRange, s.opts.BarInterval)
	if err != nil {
		s.metrics.RecordError("calibrate_fetch")
		return regime.Result{}, fmt.Errorf("fetch history: %w", err)
	}
	history, err := volatility.Compute(bars)
	if err != nil {
		s.metrics.RecordError("calibrate_data")
		return regime.Result{}, fmt.Errorf("compute history: %w", err)
	}

	res, err := regime.Calibrate(history, now, s.opts.Calibration)
	if err != nil {
		var inputErr *regime.CalibrationInputError
		if errors.As(err, &inputErr) {
			s.logger.Warn().Int("points", inputErr.Points).Int("required", inputErr.Required).
				Msg("history too short, keeping previous thresholds")
		}
		s.metrics.RecordError("calibrate")
		return regime.Result{}, err
	}

	event := s.logger.Info()
	if res.Degraded || res.Inverted {
		event = s.logger.Warn()
	}
	event.
		Float64("noise", res.Thresholds.Noise).
		Float64("high", res.Thresholds.High).
		Float64("critical", res.Thresholds.Critical).
		Bool("degraded", res.Degraded).
		Bool("inverted", res.Inverted).
		Int("history_points", res.HistoryPoints).
		Int("recent_points", res.RecentPoints).
		Msg("calibration completed")

	if persist {
		if s.store == nil {
			return res, fmt.Errorf("persist thresholds: %w", storage.ErrNotConfigured)
		}
		if err := s.store.Save(ctx, s.opts.Symbol, storage.RecordFromResult(s.opts.Symbol, res, now)); err != nil {
			s.metrics.RecordError("calibrate_save")
			return res, fmt.Errorf("persist thresholds: %w", err)
		}
		s.SetThresholds(res.Thresholds)
	}
	return res, nil
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.opts.LockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.opts.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

type noopMetrics struct{}

func (noopMetrics) RecordVolatility(string, float64, float64, int)    {}
func (noopMetrics) RecordThresholds(string, float64, float64, float64) {}
func (noopMetrics) RecordSignal(string, string)                        {}
func (noopMetrics) RecordError(string)                                 {}
func (noopMetrics) RecordLatency(string, time.Duration)                {}
