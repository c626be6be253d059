package signal

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixture() map[string]any {
	return map[string]any{
		"headline":               "Missile strike hits Ukrainian gas storage",
		"affected_assets":        []any{"Natural Gas", "TTF"},
		"category":               "Supply Shock",
		"sentiment":              "Bullish",
		"summary":                "Storage capacity destroyed ahead of winter.",
		"trading_recommendation": "Monitor TTF-HH spread",
	}
}

func with(key string, value any) map[string]any {
	rec := fixture()
	if value == nil {
		delete(rec, key)
	} else {
		rec[key] = value
	}
	return rec
}

func TestValidateAcceptsFixture(t *testing.T) {
	sig, err := Validate(fixture())
	require.NoError(t, err)

	assert.Equal(t, "Missile strike hits Ukrainian gas storage", sig.Headline)
	assert.Equal(t, []string{"Natural Gas", "TTF"}, sig.AffectedAssets)
	assert.Equal(t, SupplyShock, sig.Category)
	assert.Equal(t, Bullish, sig.Sentiment)
	assert.Equal(t, "Monitor TTF-HH spread", sig.TradingRecommendation)
}

func TestValidateWrapsSingleAsset(t *testing.T) {
	sig, err := Validate(with("affected_assets", "Natural Gas"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Natural Gas"}, sig.AffectedAssets)
}

func TestValidateFromJSON(t *testing.T) {
	payload := `{"headline":"EIA storage build","affected_assets":"Natural Gas","category":"INVENTORY",
		"sentiment":"Bearish","summary":"Build above consensus.","trading_recommendation":"Fade rallies","confidence":0.7}`

	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(payload), &raw))

	sig, err := Validate(raw)
	require.NoError(t, err)
	assert.Equal(t, Inventory, sig.Category)
	assert.Equal(t, Bearish, sig.Sentiment)
	assert.Equal(t, []string{"Natural Gas"}, sig.AffectedAssets)
}

func TestValidateRejectsUnknownCategory(t *testing.T) {
	sig, err := Validate(with("category", "Not A Category"))

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"category"}, verr.Fields())
	assert.Contains(t, verr.Error(), "Not A Category")
	assert.Equal(t, MarketSignal{}, sig)
}

func TestValidateCategoryForms(t *testing.T) {
	cases := map[string]EventCategory{
		"Supply Shock":         SupplyShock,
		"SUPPLY_SHOCK":         SupplyShock,
		"  weather event ":     WeatherEvent,
		"Macro Economic":       MacroEconomic,
		"Inventory Report":     Inventory,
		"inventory":            Inventory,
		"Geopolitical Tension": Geopolitical,
		"Other / Noise":        Other,
		"OTHER":                Other,
	}
	for in, want := range cases {
		sig, err := Validate(with("category", in))
		require.NoError(t, err, in)
		assert.Equal(t, want, sig.Category, in)
	}
}

func TestValidateSentimentIsExact(t *testing.T) {
	for _, bad := range []string{"bullish", "BEARISH", "Neutral/Bearish", " Bullish", "Positive"} {
		_, err := Validate(with("sentiment", bad))
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, bad)
		assert.Equal(t, []string{"sentiment"}, verr.Fields(), bad)
	}

	sig, err := Validate(with("sentiment", "Neutral"))
	require.NoError(t, err)
	assert.Equal(t, Neutral, sig.Sentiment)
}

func TestValidateAssetShapes(t *testing.T) {
	bad := []any{
		[]any{},
		[]any{"Natural Gas", 42},
		[]any{"Natural Gas", ""},
		"   ",
		42.0,
		map[string]any{"name": "Natural Gas"},
	}
	for _, v := range bad {
		_, err := Validate(with("affected_assets", v))
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, "%#v", v)
		assert.Equal(t, []string{"affected_assets"}, verr.Fields())
	}
}

func TestValidateMissingFields(t *testing.T) {
	for _, field := range []string{"headline", "affected_assets", "category", "sentiment", "summary", "trading_recommendation"} {
		_, err := Validate(with(field, nil))
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, field)
		assert.Equal(t, []string{field}, verr.Fields(), field)
	}
}

func TestValidateCollectsAllIssues(t *testing.T) {
	rec := fixture()
	rec["headline"] = 12
	rec["summary"] = "   "
	rec["category"] = "Weather"
	rec["sentiment"] = "up"

	_, err := Validate(rec)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ElementsMatch(t, []string{"headline", "summary", "category", "sentiment"}, verr.Fields())
}

func TestValidateNilRecord(t *testing.T) {
	_, err := Validate(nil)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestNormalizeAssetsTypedSlice(t *testing.T) {
	assets, err := NormalizeAssets([]string{"Brent", " WTI "})
	require.NoError(t, err)
	assert.Equal(t, []string{"Brent", " WTI "}, assets)
}

func TestNormalizeAssetsKeepsNamesAsGiven(t *testing.T) {
	assets, err := NormalizeAssets([]any{"  Brent ", "Henry Hub"})
	require.NoError(t, err)
	assert.Equal(t, []string{"  Brent ", "Henry Hub"}, assets)

	single, err := NormalizeAssets(" TTF ")
	require.NoError(t, err)
	assert.Equal(t, []string{" TTF "}, single)

	_, err = NormalizeAssets([]any{"Brent", "  "})
	require.Error(t, err)
}

func TestEvaluate(t *testing.T) {
	tiers := map[EventCategory]RiskTier{
		SupplyShock:   TierAlert,
		Geopolitical:  TierAlert,
		WeatherEvent:  TierAlert,
		MacroEconomic: TierLog,
		Inventory:     TierLog,
		Other:         TierLog,
	}
	for category, want := range tiers {
		assert.Equal(t, want, Evaluate(MarketSignal{Category: category}), category.String())
	}
	assert.Equal(t, "ALERT", TierAlert.String())
	assert.Equal(t, "LOG", TierLog.String())
	assert.ElementsMatch(t, []EventCategory{SupplyShock, Geopolitical, WeatherEvent}, CriticalCategories())
}

func TestSignalJSON(t *testing.T) {
	sig, err := Validate(fixture())
	require.NoError(t, err)

	out, err := json.Marshal(sig)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"category":"SUPPLY_SHOCK"`)
	assert.Contains(t, string(out), `"sentiment":"Bullish"`)
	assert.Equal(t, "Supply Shock", sig.Category.Label())
	assert.True(t, Other.IsNoise())
}
