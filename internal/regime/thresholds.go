package regime

import (
	"fmt"
	"math"
	"strconv"
)

// Thresholds are the three volatility levels, in percent of price, that split
// the regime ladder.
type Thresholds struct {
	Noise    float64 `mapstructure:"noise" yaml:"noise" json:"noise"`
	High     float64 `mapstructure:"high" yaml:"high" json:"high"`
	Critical float64 `mapstructure:"critical" yaml:"critical" json:"critical"`
}

// Ordered reports whether noise <= high <= critical.
func (t Thresholds) Ordered() bool {
	return t.Noise <= t.High && t.High <= t.Critical
}

// IsZero reports whether no threshold has been set.
func (t Thresholds) IsZero() bool {
	return t.Noise == 0 && t.High == 0 && t.Critical == 0
}

// Validate rejects values the classifier cannot use.
func (t Thresholds) Validate() error {
	for name, v := range map[string]float64{"noise": t.Noise, "high": t.High, "critical": t.Critical} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("threshold %s is not finite", name)
		}
		if v < 0 {
			return fmt.Errorf("threshold %s cannot be negative", name)
		}
	}
	return nil
}

func (t Thresholds) rounded() Thresholds {
	return Thresholds{Noise: round2(t.Noise), High: round2(t.High), Critical: round2(t.Critical)}
}

// round2 rounds the exact binary value to two decimals, ties to even.
func round2(v float64) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	if err != nil {
		return v
	}
	return r
}
