package signal

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MarketSignal is a validated, immutable summary of a news item's expected
// market impact.
type MarketSignal struct {
	Headline              string        `json:"headline"`
	AffectedAssets        []string      `json:"affected_assets"`
	Category              EventCategory `json:"category"`
	Sentiment             Sentiment     `json:"sentiment"`
	Summary               string        `json:"summary"`
	TradingRecommendation string        `json:"trading_recommendation"`
}

// FieldIssue describes one rejected field.
type FieldIssue struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError lists every field that failed validation.
type ValidationError struct {
	Issues []FieldIssue
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, issue.Field+": "+issue.Reason)
	}
	return "signal validation failed: " + strings.Join(parts, "; ")
}

// Fields returns the names of the rejected fields.
func (e *ValidationError) Fields() []string {
	out := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		out = append(out, issue.Field)
	}
	return out
}

// candidate is the record after type extraction and asset normalization,
// before enum parsing.
type candidate struct {
	Headline              string   `json:"headline" validate:"required"`
	AffectedAssets        []string `json:"affected_assets" validate:"required,min=1,dive,required"`
	Category              string   `json:"category" validate:"required"`
	Sentiment             string   `json:"sentiment" validate:"required,oneof=Bullish Bearish Neutral"`
	Summary               string   `json:"summary" validate:"required"`
	TradingRecommendation string   `json:"trading_recommendation" validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate turns an untrusted record from the inference step into a
// MarketSignal. It never returns a partially populated signal.
func Validate(raw map[string]any) (MarketSignal, error) {
	if raw == nil {
		return MarketSignal{}, &ValidationError{Issues: []FieldIssue{{Field: "record", Reason: "record is empty"}}}
	}

	var (
		issues []FieldIssue
		c      candidate
	)
	addIssue := func(field, reason string) {
		for _, existing := range issues {
			if existing.Field == field {
				return
			}
		}
		issues = append(issues, FieldIssue{Field: field, Reason: reason})
	}

	stringField := func(name string, dst *string) {
		v, ok := raw[name]
		if !ok || v == nil {
			return // reported as required below
		}
		s, ok := v.(string)
		if !ok {
			addIssue(name, fmt.Sprintf("must be a string, got %T", v))
			return
		}
		*dst = strings.TrimSpace(s)
	}
	stringField("headline", &c.Headline)
	stringField("category", &c.Category)
	stringField("summary", &c.Summary)
	stringField("trading_recommendation", &c.TradingRecommendation)
	if v, ok := raw["sentiment"]; ok && v != nil {
		if s, ok := v.(string); ok {
			c.Sentiment = s
		} else {
			addIssue("sentiment", fmt.Sprintf("must be a string, got %T", v))
		}
	}

	if v, ok := raw["affected_assets"]; ok && v != nil {
		assets, err := NormalizeAssets(v)
		if err != nil {
			addIssue("affected_assets", err.Error())
		} else {
			c.AffectedAssets = assets
		}
	}

	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return MarketSignal{}, fmt.Errorf("validate signal: %w", err)
		}
		for _, fe := range fieldErrs {
			addIssue(topField(fe), issueMessage(fe))
		}
	}

	var category EventCategory
	if c.Category != "" {
		parsed, err := ParseCategory(c.Category)
		if err != nil {
			addIssue("category", err.Error())
		}
		category = parsed
	}

	if len(issues) > 0 {
		return MarketSignal{}, &ValidationError{Issues: issues}
	}

	// oneof above guarantees the tag is known
	sentiment, _ := ParseSentiment(c.Sentiment)

	return MarketSignal{
		Headline:              c.Headline,
		AffectedAssets:        c.AffectedAssets,
		Category:              category,
		Sentiment:             sentiment,
		Summary:               c.Summary,
		TradingRecommendation: c.TradingRecommendation,
	}, nil
}

// NormalizeAssets wraps a single asset name into a list and passes a list of
// strings through unchanged. Blank names, empty lists and other shapes are
// rejected.
func NormalizeAssets(v any) ([]string, error) {
	switch val := v.(type) {
	case string:
		if strings.TrimSpace(val) == "" {
			return nil, errors.New("asset name is blank")
		}
		return []string{val}, nil
	case []string:
		return normalizeList(val)
	case []any:
		names := make([]string, 0, len(val))
		for i, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("element %d must be a string, got %T", i, item)
			}
			names = append(names, s)
		}
		return normalizeList(names)
	default:
		return nil, fmt.Errorf("must be a string or a list of strings, got %T", v)
	}
}

func normalizeList(in []string) ([]string, error) {
	if len(in) == 0 {
		return nil, errors.New("asset list is empty")
	}
	out := make([]string, len(in))
	for i, s := range in {
		if strings.TrimSpace(s) == "" {
			return nil, fmt.Errorf("element %d is blank", i)
		}
		out[i] = s
	}
	return out, nil
}

func topField(fe validator.FieldError) string {
	// affected_assets[0] -> affected_assets
	name := fe.Field()
	if i := strings.IndexByte(name, '['); i > 0 {
		return name[:i]
	}
	return name
}

func issueMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must contain at least %s item(s)", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}
