package signal

// RiskTier is the priority assigned to a validated signal.
type RiskTier int

const (
	TierLog RiskTier = iota
	TierAlert
)

func (t RiskTier) String() string {
	if t == TierAlert {
		return "ALERT"
	}
	return "LOG"
}

// MarshalText renders ALERT or LOG.
func (t RiskTier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// CriticalCategories are the categories that page the desk.
func CriticalCategories() []EventCategory {
	return []EventCategory{SupplyShock, Geopolitical, WeatherEvent}
}

// Evaluate maps a signal to ALERT when its category is critical, LOG otherwise.
func Evaluate(sig MarketSignal) RiskTier {
	switch sig.Category {
	case SupplyShock, Geopolitical, WeatherEvent:
		return TierAlert
	default:
		return TierLog
	}
}
