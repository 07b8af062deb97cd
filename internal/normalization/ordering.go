package normalization

import (
	"sort"

	"crypto-feature-pipeline/internal/domain"
)

// SortPricePoints orders points by timestamp ASC. Ties keep input order.
func SortPricePoints(points []domain.PricePoint) {
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})
}
