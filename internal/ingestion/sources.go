package ingestion

import (
	"context"

	"crypto-feature-pipeline/internal/domain"
)

// PriceSource provides hourly raw points from an external feed.
type PriceSource interface {
	// Fetch returns up to `days` of hourly points for coinID.
	// Points may be unordered; callers enforce ordering and dedup.
	Fetch(ctx context.Context, coinID string, days int) ([]*domain.RawPoint, error)
}
