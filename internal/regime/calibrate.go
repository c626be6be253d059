package regime

import (
	"fmt"
	"time"

	"energy-desk/internal/volatility"
)

const (
	// DefaultRecentWindow is the tactical window used for the high and noise levels.
	DefaultRecentWindow = 180 * 24 * time.Hour
	// DefaultPercentile is the tail percentile for the high and critical levels.
	DefaultPercentile = 95.0
	// DefaultMinPoints is the shortest history accepted for a calibration run.
	DefaultMinPoints = 20
)

// Options tune a calibration run.
type Options struct {
	RecentWindow time.Duration
	Percentile   float64
	MinPoints    int
}

// DefaultOptions mirrors the production calibration: P95 over the full
// history, P95 and mean over the last 180 days.
func DefaultOptions() Options {
	return Options{
		RecentWindow: DefaultRecentWindow,
		Percentile:   DefaultPercentile,
		MinPoints:    DefaultMinPoints,
	}
}

// Result is the outcome of a calibration run.
type Result struct {
	Thresholds Thresholds
	// Degraded is set when the recent window was empty and the long-term
	// statistics were used for the high and noise levels.
	Degraded bool
	// Inverted is set when the calibrated values do not satisfy
	// noise <= high <= critical. The values are kept as computed.
	Inverted      bool
	HistoryPoints int
	RecentPoints  int
	HistoryStart  time.Time
	HistoryEnd    time.Time
	RecentStart   time.Time
}

// CalibrationInputError reports a history too short to calibrate from.
// Callers should keep their previous thresholds.
type CalibrationInputError struct {
	Points   int
	Required int
}

func (e *CalibrationInputError) Error() string {
	return fmt.Sprintf("regime: calibration needs at least %d points, got %d", e.Required, e.Points)
}

// Calibrate derives regime thresholds from a volatility history as of now.
// It performs no I/O; persisting the result is the caller's job.
func Calibrate(history []volatility.Point, now time.Time, opts Options) (Result, error) {
	opts = opts.withDefaults()
	if len(history) < opts.MinPoints {
		return Result{}, &CalibrationInputError{Points: len(history), Required: opts.MinPoints}
	}

	all := volatility.VolPcts(history)
	critical, err := Percentile(all, opts.Percentile)
	if err != nil {
		return Result{}, err
	}

	cutoff := now.Add(-opts.RecentWindow)
	recent := make([]float64, 0, len(history))
	for _, p := range history {
		if !p.Timestamp.Before(cutoff) {
			recent = append(recent, p.VolPct)
		}
	}

	res := Result{
		HistoryPoints: len(history),
		RecentPoints:  len(recent),
		HistoryStart:  history[0].Timestamp,
		HistoryEnd:    history[len(history)-1].Timestamp,
		RecentStart:   cutoff,
	}

	var high, noise float64
	if len(recent) == 0 {
		res.Degraded = true
		high = critical
		if noise, err = Mean(all); err != nil {
			return Result{}, err
		}
	} else {
		if high, err = Percentile(recent, opts.Percentile); err != nil {
			return Result{}, err
		}
		if noise, err = Mean(recent); err != nil {
			return Result{}, err
		}
	}

	res.Thresholds = Thresholds{Noise: noise, High: high, Critical: critical}.rounded()
	res.Inverted = !res.Thresholds.Ordered()
	return res, nil
}

func (o Options) withDefaults() Options {
	if o.RecentWindow <= 0 {
		o.RecentWindow = DefaultRecentWindow
	}
	if o.Percentile <= 0 || o.Percentile > 100 {
		o.Percentile = DefaultPercentile
	}
	if o.MinPoints < 1 {
		o.MinPoints = 1
	}
	return o
}
