package storage

import (
	"time"

	"energy-desk/internal/regime"
)

// Record is the persisted volatility_thresholds configuration for a symbol.
type Record struct {
	Symbol        string
	Thresholds    regime.Thresholds
	Degraded      bool
	HistoryPoints int
	RecentPoints  int
	CalibratedAt  time.Time
}

// RecordFromResult builds the record persisted after a calibration run.
func RecordFromResult(symbol string, res regime.Result, calibratedAt time.Time) Record {
	return Record{
		Symbol:        symbol,
		Thresholds:    res.Thresholds,
		Degraded:      res.Degraded,
		HistoryPoints: res.HistoryPoints,
		RecentPoints:  res.RecentPoints,
		CalibratedAt:  calibratedAt.UTC(),
	}
}
