package regime

import (
	"errors"
	"math"
	"sort"
)

var errEmptySample = errors.New("regime: empty sample")

// Percentile returns the p-th percentile (0..100) of values using linear
// interpolation between the order statistics at rank p/100*(n-1). The lerp
// is evaluated from the nearer neighbour so results match numpy's "linear"
// method bit for bit.
func Percentile(values []float64, p float64) (float64, error) {
	if len(values) == 0 {
		return 0, errEmptySample
	}
	if math.IsNaN(p) || p < 0 || p > 100 {
		return 0, errors.New("regime: percentile must be within [0, 100]")
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	rank := p / 100 * float64(len(sorted)-1)
	lo := math.Floor(rank)
	i := int(lo)
	if i >= len(sorted)-1 {
		return sorted[len(sorted)-1], nil
	}
	return lerp(sorted[i], sorted[i+1], rank-lo), nil
}

func lerp(a, b, t float64) float64 {
	if a == b {
		return a
	}
	diff := b - a
	if t >= 0.5 {
		return b - diff*(1-t)
	}
	return a + diff*t
}

// Mean is the arithmetic mean of values.
func Mean(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, errEmptySample
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), nil
}
