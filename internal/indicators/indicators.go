// Package indicators holds the secondary market indicators shown next to the
// volatility regime: RSI and a primary/secondary performance comparison.
package indicators

import (
	"errors"
	"math"
	"time"

	"energy-desk/internal/volatility"
)

// DefaultRSIPeriod is the classic 14-bar RSI window.
const DefaultRSIPeriod = 14

// RSI computes the relative strength index of closes using simple rolling
// means of gains and losses. Entries before the first full window are NaN, as is
// any window with neither gains nor losses.
func RSI(closes []float64, period int) []float64 {
	if period <= 0 {
		period = DefaultRSIPeriod
	}
	out := make([]float64, len(closes))
	for i := range out {
		out[i] = math.NaN()
	}
	if len(closes) < period {
		return out
	}

	// the first bar has no change and counts as a zero move
	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains[i] = change
		} else {
			losses[i] = -change
		}
	}

	var gainSum, lossSum float64
	for i := range closes {
		gainSum += gains[i]
		lossSum += losses[i]
		if i >= period {
			gainSum -= gains[i-period]
			lossSum -= losses[i-period]
		}
		if i < period-1 {
			continue
		}
		avgGain := gainSum / float64(period)
		avgLoss := lossSum / float64(period)
		switch {
		case avgLoss == 0 && avgGain == 0:
			// flat window
		case avgLoss == 0:
			out[i] = 100
		default:
			out[i] = 100 - 100/(1+avgGain/avgLoss)
		}
	}
	return out
}

// Closes extracts the close column from bars.
func Closes(bars []volatility.PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Pair is one timestamp present in both series.
type Pair struct {
	Timestamp time.Time
	Primary   float64
	Secondary float64
}

// Align keeps the closes whose timestamps appear in both series, in the
// primary series' order.
func Align(primary, secondary []volatility.PriceBar) []Pair {
	index := make(map[int64]float64, len(secondary))
	for _, b := range secondary {
		index[b.Timestamp.Unix()] = b.Close
	}
	out := make([]Pair, 0, len(primary))
	for _, b := range primary {
		if v, ok := index[b.Timestamp.Unix()]; ok {
			out = append(out, Pair{Timestamp: b.Timestamp, Primary: b.Close, Secondary: v})
		}
	}
	return out
}

// Normalize expresses each value as a percent change from the first one.
func Normalize(values []float64) ([]float64, error) {
	if len(values) == 0 {
		return nil, nil
	}
	if values[0] == 0 {
		return nil, errors.New("indicators: cannot normalize from a zero base")
	}
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = (v/values[0] - 1) * 100
	}
	return out, nil
}

// Correlation is the Pearson correlation of the aligned closes. It fails
// with fewer than two pairs or a constant series.
func Correlation(pairs []Pair) (float64, error) {
	n := float64(len(pairs))
	if len(pairs) < 2 {
		return 0, errors.New("indicators: correlation needs at least two pairs")
	}
	var sumX, sumY float64
	for _, p := range pairs {
		sumX += p.Primary
		sumY += p.Secondary
	}
	meanX, meanY := sumX/n, sumY/n

	var cov, varX, varY float64
	for _, p := range pairs {
		dx, dy := p.Primary-meanX, p.Secondary-meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0, errors.New("indicators: correlation undefined for a constant series")
	}
	return cov / math.Sqrt(varX*varY), nil
}
