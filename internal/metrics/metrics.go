package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Recorder publishes desk metrics to Prometheus.
type Recorder struct {
	volPct      *prometheus.GaugeVec
	lastPrice   *prometheus.GaugeVec
	regime      *prometheus.GaugeVec
	thresholds  *prometheus.GaugeVec
	signals     *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

// New registers the desk collectors on reg. A nil reg uses the default registry.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Recorder{
		volPct: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "energydesk_vol_pct",
				Help: "Latest true range as percent of previous close",
			},
			[]string{"symbol"},
		),
		lastPrice: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "energydesk_last_price",
				Help: "Last close for a symbol",
			},
			[]string{"symbol"},
		),
		regime: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "energydesk_regime",
				Help: "Current volatility regime (0 calm, 1 active, 2 high, 3 critical)",
			},
			[]string{"symbol"},
		),
		thresholds: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "energydesk_threshold_pct",
				Help: "Calibrated regime threshold",
			},
			[]string{"symbol", "level"},
		),
		signals: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "energydesk_signals_total",
				Help: "News signals by category and risk tier",
			},
			[]string{"category", "tier"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "energydesk_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "energydesk_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordVolatility records the latest vol_pct, close and regime for a symbol.
func (r *Recorder) RecordVolatility(symbol string, price, volPct float64, regime int) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
	r.volPct.WithLabelValues(symbol).Set(volPct)
	r.regime.WithLabelValues(symbol).Set(float64(regime))
}

// RecordThresholds records the active thresholds for a symbol.
func (r *Recorder) RecordThresholds(symbol string, noise, high, critical float64) {
	r.thresholds.WithLabelValues(symbol, "noise").Set(noise)
	r.thresholds.WithLabelValues(symbol, "high").Set(high)
	r.thresholds.WithLabelValues(symbol, "critical").Set(critical)
}

// RecordSignal counts a validated news signal.
func (r *Recorder) RecordSignal(category, tier string) {
	r.signals.WithLabelValues(category, tier).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency.
func (r *Recorder) RecordLatency(op string, d time.Duration) {
	r.latency.WithLabelValues(op).Observe(d.Seconds())
}

// Server exposes /metrics over HTTP.
type Server struct {
	srv    *http.Server
	logger zerolog.Logger
}

// NewServer builds a metrics endpoint on addr serving gatherer.
func NewServer(addr string, gatherer prometheus.Gatherer, logger zerolog.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// Handler returns the server mux.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.srv.Addr).Msg("metrics listening")
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
