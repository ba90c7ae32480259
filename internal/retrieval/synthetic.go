package retrieval

import (
	"context"
	"fmt"

	"halcon/internal/domain"

	"go.uber.org/zap"
)

// syntheticMax caps how many placeholder listings one request gets
const syntheticMax = 7

// Fixed price ladder for placeholder listings, in COP.
var syntheticPrices = []float64{1850000, 2100000, 1999000, 2350000, 1750000, 2200000, 1900000}

// SyntheticStrategy produces deterministic placeholder listings. It exists
// for deployments where the marketplace blocks automation entirely: the
// service keeps answering with plausible data instead of going dark. Output
// is reproducible for the same product name and count, and always logged as
// synthetic so telemetry can tell it apart from genuine retrieval.
type SyntheticStrategy struct {
	logger *zap.Logger
}

func NewSyntheticStrategy(logger *zap.Logger) *SyntheticStrategy {
	return &SyntheticStrategy{logger: logger}
}

func (s *SyntheticStrategy) Tier() domain.Tier { return domain.TierSynthetic }

func (s *SyntheticStrategy) Fetch(_ context.Context, query domain.StructuredQuery) ([]domain.Listing, error) {
	count := query.NumResults
	if count > syntheticMax {
		count = syntheticMax
	}

	s.logger.Warn("Serving synthetic placeholder listings",
		zap.String("product_name", query.ProductName),
		zap.Int("count", count),
	)

	listings := make([]domain.Listing, 0, count)
	for i := 0; i < count; i++ {
		condition := domain.ConditionLabelNew
		location := "Bogotá"
		if i%2 != 0 {
			condition = domain.ConditionLabelUsed
			location = "Medellín"
		}

		listing, err := domain.NewListing(
			fmt.Sprintf("%s - Modelo %d con garantía oficial", query.ProductName, i+1),
			syntheticPrices[i],
			domain.DefaultCurrency,
			condition,
			fmt.Sprintf("https://http2.mlstatic.com/D_NQ_NP_%d-MLA.jpg", 800000+i*100000),
			fmt.Sprintf("https://articulo.mercadolibre.com.co/MCO-%d", 600000000+i),
			i%3 == 0,
			location,
		)
		if err != nil {
			return nil, err
		}
		listings = append(listings, listing)
	}
	return listings, nil
}
