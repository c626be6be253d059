package signal

import (
	"fmt"
	"strings"
)

// EventCategory classifies the market event a news item describes.
type EventCategory int

const (
	SupplyShock EventCategory = iota + 1
	WeatherEvent
	MacroEconomic
	Inventory
	Geopolitical
	Other
)

var categoryNames = map[EventCategory][2]string{
	SupplyShock:   {"SUPPLY_SHOCK", "Supply Shock"},
	WeatherEvent:  {"WEATHER_EVENT", "Weather Event"},
	MacroEconomic: {"MACRO_ECONOMIC", "Macro Economic"},
	Inventory:     {"INVENTORY", "Inventory Report"},
	Geopolitical:  {"GEOPOLITICAL", "Geopolitical Tension"},
	Other:         {"OTHER", "Other / Noise"},
}

// Categories lists every category in declaration order.
func Categories() []EventCategory {
	return []EventCategory{SupplyShock, WeatherEvent, MacroEconomic, Inventory, Geopolitical, Other}
}

// String returns the enum name, e.g. SUPPLY_SHOCK.
func (c EventCategory) String() string {
	if names, ok := categoryNames[c]; ok {
		return names[0]
	}
	return fmt.Sprintf("EventCategory(%d)", int(c))
}

// Label returns the human-readable name used in prompts and alerts.
func (c EventCategory) Label() string {
	if names, ok := categoryNames[c]; ok {
		return names[1]
	}
	return c.String()
}

// IsNoise reports whether the category is the OTHER bucket.
func (c EventCategory) IsNoise() bool { return c == Other }

// MarshalText renders the enum name.
func (c EventCategory) MarshalText() ([]byte, error) {
	if _, ok := categoryNames[c]; !ok {
		return nil, fmt.Errorf("invalid event category %d", int(c))
	}
	return []byte(c.String()), nil
}

// ParseCategory accepts an enum name or display label, ignoring case and
// surrounding whitespace. Unknown tags are rejected, never mapped to Other.
func ParseCategory(s string) (EventCategory, error) {
	key := strings.TrimSpace(s)
	for _, c := range Categories() {
		names := categoryNames[c]
		if strings.EqualFold(key, names[0]) || strings.EqualFold(key, names[1]) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown event category %q", s)
}

// Sentiment is the expected direction of the price impact.
type Sentiment int

const (
	Bullish Sentiment = iota + 1
	Bearish
	Neutral
)

func (s Sentiment) String() string {
	switch s {
	case Bullish:
		return "Bullish"
	case Bearish:
		return "Bearish"
	case Neutral:
		return "Neutral"
	default:
		return fmt.Sprintf("Sentiment(%d)", int(s))
	}
}

// MarshalText renders the sentiment tag.
func (s Sentiment) MarshalText() ([]byte, error) {
	if s < Bullish || s > Neutral {
		return nil, fmt.Errorf("invalid sentiment %d", int(s))
	}
	return []byte(s.String()), nil
}

// ParseSentiment matches exactly one of Bullish, Bearish or Neutral.
func ParseSentiment(s string) (Sentiment, error) {
	switch s {
	case "Bullish":
		return Bullish, nil
	case "Bearish":
		return Bearish, nil
	case "Neutral":
		return Neutral, nil
	default:
		return 0, fmt.Errorf("unknown sentiment %q", s)
	}
}
