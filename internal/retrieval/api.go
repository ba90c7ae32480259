package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"halcon/internal/domain"
	"halcon/internal/normalize"

	"go.uber.org/zap"
)

// DefaultAPIHost is the marketplace's public search API
const DefaultAPIHost = "https://api.mercadolibre.com"

// DefaultSiteID selects the Colombian marketplace site
const DefaultSiteID = "MCO"

// apiMaxLimit is the endpoint's own cap on a single page of results
const apiMaxLimit = 50

// APIStrategy queries the marketplace's structured search endpoint. It shares
// the live tier's filter semantics but consumes clean JSON instead of
// defensive markup, making it an alternative data source rather than a
// degraded one.
type APIStrategy struct {
	client      *http.Client
	host        string
	siteID      string
	accessToken string
	userAgent   string
	logger      *zap.Logger
}

func NewAPIStrategy(host, siteID, accessToken, userAgent string, timeout time.Duration, logger *zap.Logger) *APIStrategy {
	if host == "" {
		host = DefaultAPIHost
	}
	if siteID == "" {
		siteID = DefaultSiteID
	}
	return &APIStrategy{
		client:      &http.Client{Timeout: timeout},
		host:        host,
		siteID:      siteID,
		accessToken: accessToken,
		userAgent:   userAgent,
		logger:      logger,
	}
}

func (s *APIStrategy) Tier() domain.Tier { return domain.TierAPI }

type apiSearchResponse struct {
	Results []apiItem `json:"results"`
}

type apiItem struct {
	Title      string  `json:"title"`
	Price      float64 `json:"price"`
	CurrencyID string  `json:"currency_id"`
	Condition  string  `json:"condition"`
	Thumbnail  string  `json:"thumbnail"`
	Permalink  string  `json:"permalink"`
	Shipping   struct {
		FreeShipping bool `json:"free_shipping"`
	} `json:"shipping"`
	Address struct {
		StateName string `json:"state_name"`
		CityName  string `json:"city_name"`
	} `json:"address"`
	Seller struct {
		Reputation struct {
			LevelID string `json:"level_id"`
		} `json:"seller_reputation"`
	} `json:"seller"`
}

// Fetch issues a single search request mirroring the live tier's filters.
func (s *APIStrategy) Fetch(ctx context.Context, query domain.StructuredQuery) ([]domain.Listing, error) {
	limit := query.NumResults
	if limit > apiMaxLimit {
		limit = apiMaxLimit
	}

	params := url.Values{}
	params.Set("q", query.ProductName)
	params.Set("limit", strconv.Itoa(limit))
	if query.MaxPrice != nil {
		params.Set("price", fmt.Sprintf("0-%d", int64(*query.MaxPrice)))
	}
	if query.Condition != domain.ConditionAny {
		params.Set("condition", string(query.Condition))
	}

	endpoint := fmt.Sprintf("%s/sites/%s/search?%s", s.host, s.siteID, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAPIRequest, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "es-CO,es;q=0.9,en;q=0.8")
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	if s.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.accessToken)
	}

	s.logger.Info("Querying marketplace search API",
		zap.String("site", s.siteID),
		zap.String("q", query.ProductName),
		zap.Int("limit", limit),
	)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrAPIRequest, resp.StatusCode)
	}

	var payload apiSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrAPIRequest, err)
	}

	listings := make([]domain.Listing, 0, len(payload.Results))
	for _, item := range payload.Results {
		listing, err := s.parseItem(item)
		if err != nil {
			s.logger.Debug("Skipping api item", zap.Error(err))
			continue
		}
		listings = append(listings, listing)
	}
	return listings, nil
}

func (s *APIStrategy) parseItem(item apiItem) (domain.Listing, error) {
	listing, err := domain.NewListing(
		item.Title,
		item.Price,
		item.CurrencyID,
		normalize.Condition(item.Condition),
		normalize.UpscaleThumbnail(item.Thumbnail),
		item.Permalink,
		item.Shipping.FreeShipping,
		normalize.Location(item.Address.CityName, item.Address.StateName),
	)
	if err != nil {
		return domain.Listing{}, err
	}
	listing.SellerReputation = item.Seller.Reputation.LevelID
	return listing, nil
}
