package retrieval

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"halcon/internal/domain"

	"go.uber.org/zap"
)

// ListingsHost serves the rendered search result pages
const ListingsHost = "https://listado.mercadolibre.com.co"

var (
	ErrNavigation = errors.New("search page navigation failed")
	ErrAPIRequest = errors.New("search api request failed")
	ErrNoStrategy = errors.New("no retrieval strategy configured")
)

// Strategy is one way of obtaining listings for a structured query. All
// strategies share the same output contract: at most query.NumResults
// listings, in source order, or an error when the source itself is
// unreachable. Zero listings is a valid outcome, not an error.
type Strategy interface {
	Tier() domain.Tier
	Fetch(ctx context.Context, query domain.StructuredQuery) ([]domain.Listing, error)
}

// Orchestrator runs an ordered cascade of retrieval strategies. Which tiers
// run, and in what order, is decided by configuration at composition time
// rather than hard-coded here: a tier is consulted only when every tier
// before it produced zero listings. A strategy error is fatal for the whole
// request; it is never papered over by a later tier.
type Orchestrator struct {
	strategies []Strategy
	logger     *zap.Logger
}

func NewOrchestrator(strategies []Strategy, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		strategies: strategies,
		logger:     logger,
	}
}

// Retrieve executes the cascade for one immutable query.
func (o *Orchestrator) Retrieve(ctx context.Context, query domain.StructuredQuery) (domain.RetrievalOutcome, error) {
	if len(o.strategies) == 0 {
		return domain.RetrievalOutcome{}, ErrNoStrategy
	}

	outcome := domain.RetrievalOutcome{Listings: []domain.Listing{}}
	for _, strategy := range o.strategies {
		listings, err := strategy.Fetch(ctx, query)
		if err != nil {
			return domain.RetrievalOutcome{}, fmt.Errorf("tier %s: %w", strategy.Tier(), err)
		}

		if len(listings) > query.NumResults {
			listings = listings[:query.NumResults]
		}
		outcome.Listings = listings
		outcome.SourceTier = strategy.Tier()
		outcome.Degraded = strategy.Tier() == domain.TierSynthetic

		if len(listings) > 0 {
			o.logger.Info("Retrieval tier produced listings",
				zap.String("tier", string(strategy.Tier())),
				zap.Int("count", len(listings)),
				zap.Bool("degraded", outcome.Degraded),
			)
			return outcome, nil
		}

		o.logger.Info("Retrieval tier returned zero listings",
			zap.String("tier", string(strategy.Tier())),
			zap.String("product_name", query.ProductName),
		)
	}

	// Every tier came back empty; an empty list is a valid answer.
	return outcome, nil
}

// BuildSearchURL produces the canonical search URL for the live tier: the
// product name as an encoded path segment, a price window when a ceiling was
// extracted, and a condition filter unless the query accepts any condition.
func BuildSearchURL(query domain.StructuredQuery) string {
	searchURL := ListingsHost + "/" + url.PathEscape(query.ProductName)

	var params []string
	if query.MaxPrice != nil {
		params = append(params, fmt.Sprintf("price=0-%d", int64(*query.MaxPrice)))
	}
	if query.Condition != domain.ConditionAny {
		params = append(params, "condition="+string(query.Condition))
	}
	if len(params) > 0 {
		searchURL += "?" + strings.Join(params, "&")
	}
	return searchURL
}
