package normalization

import (
	"math"

	"crypto-feature-pipeline/internal/domain"
)

// CleanRawPoints turns stored raw points into a series fit for
// DeriveFeatures. Points with a zero timestamp or a non-finite close are
// dropped, duplicate timestamps keep the first occurrence, and the result is
// sorted by timestamp ASC. The second return value counts dropped points.
func CleanRawPoints(raw []*domain.RawPoint) ([]domain.PricePoint, int) {
	series := make([]domain.PricePoint, 0, len(raw))
	seen := make(map[int64]struct{}, len(raw))
	dropped := 0

	for _, p := range raw {
		if p == nil || p.Timestamp.IsZero() || math.IsNaN(p.Close) || math.IsInf(p.Close, 0) {
			dropped++
			continue
		}
		key := p.Timestamp.UnixMilli()
		if _, dup := seen[key]; dup {
			dropped++
			continue
		}
		seen[key] = struct{}{}
		series = append(series, domain.PricePoint{Timestamp: p.Timestamp.UTC(), Close: p.Close})
	}

	SortPricePoints(series)
	return series, dropped
}
