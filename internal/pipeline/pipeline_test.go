package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"halcon/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type stubExtractor struct {
	query    domain.StructuredQuery
	degraded bool
}

func (s *stubExtractor) Extract(_ context.Context, _ string) (domain.StructuredQuery, bool) {
	return s.query, s.degraded
}

type stubRetriever struct {
	outcome domain.RetrievalOutcome
	err     error
	calls   int
}

func (s *stubRetriever) Retrieve(_ context.Context, _ domain.StructuredQuery) (domain.RetrievalOutcome, error) {
	s.calls++
	return s.outcome, s.err
}

func pipelineQuery() domain.StructuredQuery {
	return domain.StructuredQuery{
		ProductName: "iPhone 13",
		Condition:   domain.ConditionAny,
		NumResults:  10,
	}
}

func pipelineListings(t *testing.T) []domain.Listing {
	t.Helper()
	listing, err := domain.NewListing("iPhone 13 128GB", 1850000, "COP", domain.ConditionLabelNew, "", "https://articulo.mercadolibre.com.co/MCO-1", true, "Bogotá")
	if err != nil {
		t.Fatalf("building listing: %v", err)
	}
	return []domain.Listing{listing}
}

func TestSearchHappyPath(t *testing.T) {
	retriever := &stubRetriever{
		outcome: domain.RetrievalOutcome{
			Listings:   pipelineListings(t),
			SourceTier: domain.TierLive,
		},
	}
	p := New(&stubExtractor{query: pipelineQuery()}, retriever, nil, 0, zap.NewNop())

	result, err := p.Search(context.Background(), "busco iphone 13", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.SearchID == "" {
		t.Error("search id should be set")
	}
	if result.Query != "busco iphone 13" {
		t.Errorf("unexpected query text %q", result.Query)
	}
	if result.SourceTier != domain.TierLive {
		t.Errorf("unexpected tier %s", result.SourceTier)
	}
	if result.Degraded || result.Cached {
		t.Error("live result should be neither degraded nor cached")
	}
	if len(result.Listings) != 1 {
		t.Errorf("expected 1 listing, got %d", len(result.Listings))
	}
}

func TestSearchRetrievalErrorPropagates(t *testing.T) {
	failure := errors.New("navigation failed")
	p := New(&stubExtractor{query: pipelineQuery()}, &stubRetriever{err: failure}, nil, 0, zap.NewNop())

	_, err := p.Search(context.Background(), "busco iphone 13", 0)
	if !errors.Is(err, failure) {
		t.Fatalf("expected wrapped retrieval error, got %v", err)
	}
}

func TestSearchDegradedExtractionIsReported(t *testing.T) {
	retriever := &stubRetriever{
		outcome: domain.RetrievalOutcome{
			Listings:   pipelineListings(t),
			SourceTier: domain.TierLive,
		},
	}
	p := New(&stubExtractor{query: pipelineQuery(), degraded: true}, retriever, nil, 0, zap.NewNop())

	result, err := p.Search(context.Background(), "busco iphone 13", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Degraded {
		t.Error("degraded extraction must surface on the result")
	}
}

func TestSearchNumResultsHintIsClamped(t *testing.T) {
	tests := []struct {
		hint int
		want int
	}{
		{hint: 5, want: 5},
		{hint: 500, want: domain.MaxNumResults},
		{hint: 0, want: 10}, // zero keeps the extracted count
	}

	for _, tt := range tests {
		retriever := &stubRetriever{outcome: domain.RetrievalOutcome{SourceTier: domain.TierLive, Listings: []domain.Listing{}}}
		p := New(&stubExtractor{query: pipelineQuery()}, retriever, nil, 0, zap.NewNop())

		result, err := p.Search(context.Background(), "busco iphone 13", tt.hint)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.StructuredQuery.NumResults != tt.want {
			t.Errorf("hint %d: expected %d results requested, got %d", tt.hint, tt.want, result.StructuredQuery.NumResults)
		}
	}
}

func TestSearchCachesSuccessfulResults(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	retriever := &stubRetriever{
		outcome: domain.RetrievalOutcome{
			Listings:   pipelineListings(t),
			SourceTier: domain.TierLive,
		},
	}
	p := New(&stubExtractor{query: pipelineQuery()}, retriever, cache, time.Minute, zap.NewNop())

	first, err := p.Search(context.Background(), "busco iphone 13", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Cached {
		t.Error("first search should not be cached")
	}

	second, err := p.Search(context.Background(), "busco iphone 13", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !second.Cached {
		t.Error("second search should be served from cache")
	}
	if retriever.calls != 1 {
		t.Errorf("retriever should run once, ran %d times", retriever.calls)
	}
	if second.SearchID == first.SearchID {
		t.Error("cached result must still get a fresh search id")
	}
	if len(second.Listings) != 1 {
		t.Errorf("expected 1 cached listing, got %d", len(second.Listings))
	}
}

func TestSearchDoesNotCacheDegradedResults(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	retriever := &stubRetriever{
		outcome: domain.RetrievalOutcome{
			Listings:   pipelineListings(t),
			SourceTier: domain.TierSynthetic,
			Degraded:   true,
		},
	}
	p := New(&stubExtractor{query: pipelineQuery()}, retriever, cache, time.Minute, zap.NewNop())

	for i := 0; i < 2; i++ {
		result, err := p.Search(context.Background(), "busco iphone 13", 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Cached {
			t.Error("degraded results must never come from cache")
		}
	}
	if retriever.calls != 2 {
		t.Errorf("retriever should run every time, ran %d times", retriever.calls)
	}
}

func TestSearchCacheFailureIsNotFatal(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	// Take the cache down before searching
	mr.Close()

	retriever := &stubRetriever{
		outcome: domain.RetrievalOutcome{
			Listings:   pipelineListings(t),
			SourceTier: domain.TierLive,
		},
	}
	p := New(&stubExtractor{query: pipelineQuery()}, retriever, cache, time.Minute, zap.NewNop())

	result, err := p.Search(context.Background(), "busco iphone 13", 0)
	if err != nil {
		t.Fatalf("cache outage should not fail the search: %v", err)
	}
	if len(result.Listings) != 1 {
		t.Errorf("expected 1 listing, got %d", len(result.Listings))
	}
}
