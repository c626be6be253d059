package volatility

import (
	"fmt"
	"math"
	"time"
)

// PriceBar is one OHLC session as delivered by the price feed.
type PriceBar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
}

// Point is the True Range observation derived from a bar and its predecessor's close.
type Point struct {
	Timestamp time.Time
	Close     float64
	PrevClose float64
	TrueRange float64
	VolPct    float64
}

// DataQualityError reports a bar sequence that cannot produce a volatility series.
type DataQualityError struct {
	Index     int
	Timestamp time.Time
	Reason    string
}

func (e *DataQualityError) Error() string {
	return fmt.Sprintf("volatility: bar %d (%s): %s", e.Index, e.Timestamp.UTC().Format(time.RFC3339), e.Reason)
}

// Compute derives one Point per bar after the first. The first bar has no
// previous close and yields nothing. Bars must be strictly increasing in time.
func Compute(bars []PriceBar) ([]Point, error) {
	if len(bars) <= 1 {
		return []Point{}, nil
	}
	if err := checkBar(0, bars[0]); err != nil {
		return nil, err
	}

	points := make([]Point, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		prev, bar := bars[i-1], bars[i]
		if err := checkBar(i, bar); err != nil {
			return nil, err
		}
		if !bar.Timestamp.After(prev.Timestamp) {
			return nil, &DataQualityError{Index: i, Timestamp: bar.Timestamp, Reason: "timestamps not strictly increasing"}
		}
		if prev.Close == 0 {
			return nil, &DataQualityError{Index: i, Timestamp: bar.Timestamp, Reason: "previous close is zero"}
		}

		tr := TrueRange(bar.High, bar.Low, prev.Close)
		points = append(points, Point{
			Timestamp: bar.Timestamp,
			Close:     bar.Close,
			PrevClose: prev.Close,
			TrueRange: tr,
			VolPct:    tr / prev.Close * 100,
		})
	}
	return points, nil
}

// TrueRange is the largest of |high-low|, |high-prevClose| and |low-prevClose|.
func TrueRange(high, low, prevClose float64) float64 {
	return math.Max(math.Abs(high-low), math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
}

// VolPcts extracts the vol_pct column.
func VolPcts(points []Point) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.VolPct
	}
	return out
}

func checkBar(i int, bar PriceBar) error {
	for _, v := range [...]float64{bar.Open, bar.High, bar.Low, bar.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &DataQualityError{Index: i, Timestamp: bar.Timestamp, Reason: "non-finite price"}
		}
	}
	return nil
}
