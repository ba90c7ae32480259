package domain

import (
	"errors"
	"strings"
)

// Condition filters a search by product state
type Condition string

const (
	ConditionNew  Condition = "new"
	ConditionUsed Condition = "used"
	ConditionAny  Condition = "any"
)

const (
	// DefaultNumResults is used when the user does not ask for a specific count
	DefaultNumResults = 10

	// MinNumResults and MaxNumResults bound how many listings a single search may request
	MinNumResults = 1
	MaxNumResults = 50

	// FallbackNameLimit caps how much of the raw query is reused as a product name
	// when extraction fails
	FallbackNameLimit = 100
)

var (
	ErrProductNameTooShort  = errors.New("product name must be at least 2 characters")
	ErrInvalidMaxPrice      = errors.New("max price must be greater than zero")
	ErrNumResultsOutOfRange = errors.New("num results must be between 1 and 50")
	ErrInvalidCondition     = errors.New("condition must be new, used or any")
)

// StructuredQuery is the machine-actionable search intent extracted from a
// natural language request. It is constructed once per request and never
// mutated afterwards.
type StructuredQuery struct {
	ProductName  string                 `json:"product_name"`
	MaxPrice     *float64               `json:"max_price,omitempty"`
	Condition    Condition              `json:"condition"`
	NumResults   int                    `json:"num_results"`
	ExtraFilters map[string]interface{} `json:"extra_filters,omitempty"`
}

// NewStructuredQuery validates and builds a StructuredQuery. The product name
// is trimmed before the length check; out-of-range values are rejected rather
// than clamped so callers can fall back deliberately.
func NewStructuredQuery(productName string, maxPrice *float64, condition Condition, numResults int, extraFilters map[string]interface{}) (StructuredQuery, error) {
	name := strings.TrimSpace(productName)
	if len(name) < 2 {
		return StructuredQuery{}, ErrProductNameTooShort
	}
	if maxPrice != nil && *maxPrice <= 0 {
		return StructuredQuery{}, ErrInvalidMaxPrice
	}
	if numResults < MinNumResults || numResults > MaxNumResults {
		return StructuredQuery{}, ErrNumResultsOutOfRange
	}
	switch condition {
	case ConditionNew, ConditionUsed, ConditionAny:
	default:
		return StructuredQuery{}, ErrInvalidCondition
	}

	return StructuredQuery{
		ProductName:  name,
		MaxPrice:     maxPrice,
		Condition:    condition,
		NumResults:   numResults,
		ExtraFilters: extraFilters,
	}, nil
}

// FallbackQuery is the degraded query used when extraction fails: the raw text
// itself becomes the product name, truncated, with defaults everywhere else.
func FallbackQuery(rawText string) StructuredQuery {
	name := rawText
	if runes := []rune(name); len(runes) > FallbackNameLimit {
		name = string(runes[:FallbackNameLimit])
	}
	return StructuredQuery{
		ProductName: name,
		Condition:   ConditionAny,
		NumResults:  DefaultNumResults,
	}
}
