package regime

import "energy-desk/internal/volatility"

// Label is a discrete market state, ordered by severity.
type Label int

const (
	Calm Label = iota
	Active
	High
	Critical
)

func (l Label) String() string {
	switch l {
	case Calm:
		return "CALM"
	case Active:
		return "ACTIVE"
	case High:
		return "HIGH"
	case Critical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Direction is the one-month drift of volatility against the noise level.
type Direction int

const (
	Cooling Direction = iota
	Heating
)

func (d Direction) String() string {
	if d == Heating {
		return "HEATING"
	}
	return "COOLING"
}

// DefaultTrendWindow is one trading month of daily bars.
const DefaultTrendWindow = 22

// Classify walks the ladder from the top with strict comparisons, so a value
// exactly on a threshold lands in the lower regime.
func Classify(current float64, t Thresholds) Label {
	switch {
	case current > t.Critical:
		return Critical
	case current > t.High:
		return High
	case current > t.Noise:
		return Active
	default:
		return Calm
	}
}

// Trend compares a recent mean volatility with the noise level.
func Trend(recentMean float64, t Thresholds) Direction {
	if recentMean-t.Noise > 0 {
		return Heating
	}
	return Cooling
}

// RecentMean averages vol_pct over the last n points, or over all of them
// when fewer are available. ok is false for an empty series.
func RecentMean(points []volatility.Point, n int) (mean float64, ok bool) {
	if len(points) == 0 {
		return 0, false
	}
	if n > 0 && n < len(points) {
		points = points[len(points)-n:]
	}
	m, err := Mean(volatility.VolPcts(points))
	if err != nil {
		return 0, false
	}
	return m, true
}
