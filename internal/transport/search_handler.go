package transport

import (
	"context"
	"net/http"
	"time"

	"halcon/internal/domain"
	"halcon/internal/middleware"
	"halcon/internal/pipeline"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// SearchRequest is the REST search payload
type SearchRequest struct {
	Query      string `json:"query" validate:"required,min=3,max=500"`
	UserID     string `json:"user_id,omitempty"`
	NumResults int    `json:"num_results,omitempty" validate:"omitempty,gte=1,lte=50"`
}

// SearchResponse is the REST search envelope
type SearchResponse struct {
	Success           bool                   `json:"success"`
	Query             string                 `json:"query"`
	StructuredRequest domain.StructuredQuery `json:"structured_request"`
	Results           []domain.Listing       `json:"results"`
	TotalFound        int                    `json:"total_found"`
	SourceTier        domain.Tier            `json:"source_tier"`
	Degraded          bool                   `json:"degraded"`
	Cached            bool                   `json:"cached"`
	ExecutionTimeMs   float64                `json:"execution_time_ms"`
	Timestamp         time.Time              `json:"timestamp"`
}

// Searcher is the discovery pipeline as the REST layer sees it.
type Searcher interface {
	Search(ctx context.Context, queryText string, numResultsHint int) (*pipeline.Result, error)
}

// SearchHandler exposes the discovery pipeline over REST
type SearchHandler struct {
	searcher Searcher
	logger   *zap.Logger
}

func NewSearchHandler(searcher Searcher, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{
		searcher: searcher,
		logger:   logger,
	}
}

// RegisterRoutes registers search routes
func (h *SearchHandler) RegisterRoutes(r chi.Router, rateLimit func(http.Handler) http.Handler) {
	r.Route("/api/v1/search", func(r chi.Router) {
		if rateLimit != nil {
			r.Use(rateLimit)
		}
		r.Post("/", h.Search)
	})
}

// Search handles one natural language product search
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest

	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Search validation failed", zap.Error(err))

		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	start := time.Now()

	result, err := h.searcher.Search(r.Context(), req.Query, req.NumResults)
	if err != nil {
		// The only hard failure the pipeline surfaces is the retrieval
		// layer being unable to reach the marketplace.
		h.logger.Error("Search failed", zap.String("query", req.Query), zap.Error(err))
		middleware.RespondWithErrorCode(w, http.StatusServiceUnavailable, "SCRAPER_ERROR", "product retrieval is unavailable")
		return
	}

	h.logger.Info("Search completed",
		zap.String("search_id", result.SearchID),
		zap.Int("total_found", len(result.Listings)),
		zap.String("source_tier", string(result.SourceTier)),
		zap.Bool("degraded", result.Degraded),
	)

	middleware.RespondWithJSON(w, http.StatusOK, SearchResponse{
		Success:           true,
		Query:             req.Query,
		StructuredRequest: result.StructuredQuery,
		Results:           result.Listings,
		TotalFound:        len(result.Listings),
		SourceTier:        result.SourceTier,
		Degraded:          result.Degraded,
		Cached:            result.Cached,
		ExecutionTimeMs:   float64(time.Since(start).Microseconds()) / 1000.0,
		Timestamp:         time.Now().UTC(),
	})
}
