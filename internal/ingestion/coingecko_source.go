package ingestion

import (
	"context"

	"crypto-feature-pipeline/internal/coingecko"
	"crypto-feature-pipeline/internal/domain"
)

// MarketChartClient is the subset of the CoinGecko client used here.
type MarketChartClient interface {
	MarketChart(ctx context.Context, coinID, vsCurrency string, days int) (*coingecko.MarketChart, error)
}

// CoinGeckoSource implements PriceSource on top of the market_chart endpoint.
type CoinGeckoSource struct {
	client     MarketChartClient
	vsCurrency string
}

// NewCoinGeckoSource creates a new CoinGeckoSource quoting in vsCurrency.
func NewCoinGeckoSource(client MarketChartClient, vsCurrency string) *CoinGeckoSource {
	if vsCurrency == "" {
		vsCurrency = "usd"
	}
	return &CoinGeckoSource{client: client, vsCurrency: vsCurrency}
}

// Fetch returns hour-aligned raw points labeled with domain.SymbolLabel(coinID).
// Every point carries the full response body as its audit payload.
func (s *CoinGeckoSource) Fetch(ctx context.Context, coinID string, days int) ([]*domain.RawPoint, error) {
	chart, err := s.client.MarketChart(ctx, coinID, s.vsCurrency, days)
	if err != nil {
		return nil, err
	}

	symbol := domain.SymbolLabel(coinID)
	points := make([]*domain.RawPoint, 0, len(chart.Prices))
	for _, p := range chart.Prices {
		points = append(points, &domain.RawPoint{
			Symbol:     symbol,
			Timestamp:  p.Timestamp,
			Close:      p.Price,
			Source:     domain.SourceCoinGecko,
			RawPayload: chart.Raw,
		})
	}

	return AlignHourly(points), nil
}
