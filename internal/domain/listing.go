package domain

import "errors"

// Canonical condition labels shown to users. Unrecognized source values map
// to ConditionLabelUnspecified.
const (
	ConditionLabelNew         = "Nuevo"
	ConditionLabelUsed        = "Usado"
	ConditionLabelUnspecified = "No especificado"
)

// DefaultCurrency is the currency assumed for scraped prices
const DefaultCurrency = "COP"

var (
	ErrListingMissingTitle = errors.New("listing requires a title")
	ErrListingMissingURL   = errors.New("listing requires a url")
	ErrListingInvalidPrice = errors.New("listing price must be greater than zero")
)

// Listing is one normalized marketplace offer. Listings are immutable value
// records; they carry no identity beyond structural equality.
type Listing struct {
	Title            string  `json:"title"`
	Price            float64 `json:"price"`
	Currency         string  `json:"currency"`
	ConditionLabel   string  `json:"condition"`
	Thumbnail        string  `json:"thumbnail,omitempty"`
	URL              string  `json:"url"`
	FreeShipping     bool    `json:"free_shipping"`
	Location         string  `json:"location,omitempty"`
	SellerReputation string  `json:"seller_reputation,omitempty"`
}

// NewListing builds a Listing, rejecting any candidate that lacks the
// required title, price or URL. Callers treat a rejection as "drop this
// item", never as a batch failure.
func NewListing(title string, price float64, currency, conditionLabel, thumbnail, rawURL string, freeShipping bool, location string) (Listing, error) {
	if title == "" {
		return Listing{}, ErrListingMissingTitle
	}
	if price <= 0 {
		return Listing{}, ErrListingInvalidPrice
	}
	if rawURL == "" {
		return Listing{}, ErrListingMissingURL
	}
	if currency == "" {
		currency = DefaultCurrency
	}
	if conditionLabel == "" {
		conditionLabel = ConditionLabelUnspecified
	}

	return Listing{
		Title:          title,
		Price:          price,
		Currency:       currency,
		ConditionLabel: conditionLabel,
		Thumbnail:      thumbnail,
		URL:            rawURL,
		FreeShipping:   freeShipping,
		Location:       location,
	}, nil
}

// Tier identifies which retrieval strategy produced an outcome.
type Tier string

const (
	TierLive      Tier = "live"
	TierAPI       Tier = "api"
	TierSynthetic Tier = "synthetic"
)

// RetrievalOutcome is the result of one retrieval strategy run. Listings are
// ordered as extracted and never exceed the requested count.
type RetrievalOutcome struct {
	Listings   []Listing `json:"listings"`
	SourceTier Tier      `json:"source_tier"`
	Degraded   bool      `json:"degraded"`
}
