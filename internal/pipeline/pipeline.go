package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"halcon/internal/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Extractor turns raw text into a structured query, reporting whether it had
// to fall back to the degraded query.
type Extractor interface {
	Extract(ctx context.Context, rawText string) (domain.StructuredQuery, bool)
}

// Retriever executes the retrieval cascade for a structured query.
type Retriever interface {
	Retrieve(ctx context.Context, query domain.StructuredQuery) (domain.RetrievalOutcome, error)
}

// Result is the discovery pipeline's answer for one request. It is what both
// the REST handler and the messaging flow consume.
type Result struct {
	SearchID        string                 `json:"search_id"`
	Query           string                 `json:"query"`
	StructuredQuery domain.StructuredQuery `json:"structured_query"`
	Listings        []domain.Listing       `json:"listings"`
	SourceTier      domain.Tier            `json:"source_tier"`
	Degraded        bool                   `json:"degraded"`
	Cached          bool                   `json:"cached"`
}

// Pipeline is the single entry point for product discovery: intent
// extraction, then the retrieval cascade, with an optional short-lived cache
// in front of retrieval. Extraction failures degrade; only retrieval
// failures propagate.
type Pipeline struct {
	extractor Extractor
	retriever Retriever
	cache     *redis.Client
	cacheTTL  time.Duration
	logger    *zap.Logger
}

// New creates a Pipeline. cache may be nil to disable result caching.
func New(extractor Extractor, retriever Retriever, cache *redis.Client, cacheTTL time.Duration, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		extractor: extractor,
		retriever: retriever,
		cache:     cache,
		cacheTTL:  cacheTTL,
		logger:    logger,
	}
}

// Search runs the full discovery flow for one natural language query.
// numResultsHint, when positive, overrides the extracted result count; it is
// clamped to the valid range.
func (p *Pipeline) Search(ctx context.Context, queryText string, numResultsHint int) (*Result, error) {
	searchID := uuid.New().String()
	log := p.logger.With(zap.String("search_id", searchID))

	query, degraded := p.extractor.Extract(ctx, queryText)
	if numResultsHint > 0 {
		query.NumResults = clampNumResults(numResultsHint)
	}

	log.Info("Structured query ready",
		zap.String("product_name", query.ProductName),
		zap.Bool("degraded_extraction", degraded),
	)

	if cached := p.cacheLookup(ctx, query, log); cached != nil {
		cached.SearchID = searchID
		cached.Query = queryText
		cached.Degraded = cached.Degraded || degraded
		return cached, nil
	}

	outcome, err := p.retriever.Retrieve(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieve listings: %w", err)
	}

	result := &Result{
		SearchID:        searchID,
		Query:           queryText,
		StructuredQuery: query,
		Listings:        outcome.Listings,
		SourceTier:      outcome.SourceTier,
		Degraded:        degraded || outcome.Degraded,
	}

	// Synthetic and degraded outcomes are never cached; they should not
	// outlive the condition that produced them.
	if !result.Degraded && len(result.Listings) > 0 {
		p.cacheStore(ctx, query, result, log)
	}
	return result, nil
}

func cacheKey(query domain.StructuredQuery) string {
	maxPrice := float64(0)
	if query.MaxPrice != nil {
		maxPrice = *query.MaxPrice
	}
	return fmt.Sprintf("search:%s:%.0f:%s:%d", query.ProductName, maxPrice, query.Condition, query.NumResults)
}

type cachedOutcome struct {
	StructuredQuery domain.StructuredQuery `json:"structured_query"`
	Listings        []domain.Listing       `json:"listings"`
	SourceTier      domain.Tier            `json:"source_tier"`
}

func (p *Pipeline) cacheLookup(ctx context.Context, query domain.StructuredQuery, log *zap.Logger) *Result {
	if p.cache == nil {
		return nil
	}

	raw, err := p.cache.Get(ctx, cacheKey(query)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Warn("Cache lookup failed", zap.Error(err))
		}
		return nil
	}

	var cached cachedOutcome
	if err := json.Unmarshal(raw, &cached); err != nil {
		log.Warn("Dropping unreadable cache entry", zap.Error(err))
		return nil
	}

	log.Info("Serving cached listings", zap.Int("count", len(cached.Listings)))
	return &Result{
		StructuredQuery: cached.StructuredQuery,
		Listings:        cached.Listings,
		SourceTier:      cached.SourceTier,
		Cached:          true,
	}
}

func (p *Pipeline) cacheStore(ctx context.Context, query domain.StructuredQuery, result *Result, log *zap.Logger) {
	if p.cache == nil {
		return
	}

	raw, err := json.Marshal(cachedOutcome{
		StructuredQuery: result.StructuredQuery,
		Listings:        result.Listings,
		SourceTier:      result.SourceTier,
	})
	if err != nil {
		return
	}

	// Best effort: a cache write failure never fails the search.
	if err := p.cache.Set(ctx, cacheKey(query), raw, p.cacheTTL).Err(); err != nil {
		log.Warn("Cache store failed", zap.Error(err))
	}
}

func clampNumResults(n int) int {
	if n < domain.MinNumResults {
		return domain.MinNumResults
	}
	if n > domain.MaxNumResults {
		return domain.MaxNumResults
	}
	return n
}
