package inference

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// ErrUnavailable is returned while the breaker is open.
var ErrUnavailable = errors.New("inference provider unavailable")

// Guarded trips after consecutive provider failures so a dead provider does
// not stall every news batch.
type Guarded struct {
	next   Inferrer
	cb     *gobreaker.CircuitBreaker
	logger zerolog.Logger
}

// NewGuarded wraps next. failures <= 0 defaults to 3, cooldown <= 0 to one minute.
func NewGuarded(next Inferrer, name string, failures uint32, cooldown time.Duration, logger zerolog.Logger) *Guarded {
	if failures == 0 {
		failures = 3
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	log := logger.With().Str("component", "inference_breaker").Str("provider", name).Logger()

	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("breaker state changed")
		},
	}
	return &Guarded{next: next, cb: gobreaker.NewCircuitBreaker(st), logger: log}
}

// Infer forwards to the wrapped inferrer unless the breaker is open.
func (g *Guarded) Infer(ctx context.Context, text string) (map[string]any, error) {
	out, err := g.cb.Execute(func() (interface{}, error) {
		return g.next.Infer(ctx, text)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrUnavailable
	}
	if err != nil {
		return nil, err
	}
	record, _ := out.(map[string]any)
	return record, nil
}

// State exposes the breaker state for status output.
func (g *Guarded) State() string {
	return g.cb.State().String()
}

var _ Inferrer = (*Guarded)(nil)
