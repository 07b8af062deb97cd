package ingestion

import (
	"errors"
	"math"
	"sort"
	"time"

	"crypto-feature-pipeline/internal/domain"
)

// ErrInvalidOrdering is returned when points are not strictly ordered.
var ErrInvalidOrdering = errors.New("points are not in deterministic order")

// SortRawPoints orders points by (symbol ASC, timestamp ASC).
// Ties keep input order.
func SortRawPoints(points []*domain.RawPoint) {
	sort.SliceStable(points, func(i, j int) bool {
		return compareRawPoints(points[i], points[j]) < 0
	})
}

// ValidateRawPointOrdering checks that points are strictly ordered by
// (symbol, timestamp). Returns ErrInvalidOrdering if not.
func ValidateRawPointOrdering(points []*domain.RawPoint) error {
	for i := 1; i < len(points); i++ {
		if compareRawPoints(points[i-1], points[i]) >= 0 {
			return ErrInvalidOrdering
		}
	}
	return nil
}

// AlignHourly floors timestamps to the UTC hour and keeps the first
// observation of each (symbol, hour). A non-finite first observation gives
// way to a later finite one in the same hour. The result is sorted.
func AlignHourly(points []*domain.RawPoint) []*domain.RawPoint {
	type bucket struct {
		symbol string
		hour   int64
	}

	seen := make(map[bucket]int, len(points))
	aligned := make([]*domain.RawPoint, 0, len(points))
	for _, p := range points {
		if p == nil {
			continue
		}
		hour := p.Timestamp.UTC().Truncate(time.Hour)
		b := bucket{p.Symbol, hour.UnixMilli()}
		if idx, dup := seen[b]; dup {
			if !isFinite(aligned[idx].Close) && isFinite(p.Close) {
				pointCopy := *p
				pointCopy.Timestamp = hour
				aligned[idx] = &pointCopy
			}
			continue
		}
		seen[b] = len(aligned)

		pointCopy := *p
		pointCopy.Timestamp = hour
		aligned = append(aligned, &pointCopy)
	}

	SortRawPoints(aligned)
	return aligned
}

// DropNonFinite removes nil points and points whose close is NaN or
// infinite. It returns the kept points in input order and the drop count.
func DropNonFinite(points []*domain.RawPoint) ([]*domain.RawPoint, int) {
	kept := make([]*domain.RawPoint, 0, len(points))
	for _, p := range points {
		if p == nil || !isFinite(p.Close) {
			continue
		}
		kept = append(kept, p)
	}
	return kept, len(points) - len(kept)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// compareRawPoints returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
//
// Order: (symbol ASC, timestamp ASC)
func compareRawPoints(a, b *domain.RawPoint) int {
	if a.Symbol != b.Symbol {
		if a.Symbol < b.Symbol {
			return -1
		}
		return 1
	}
	if !a.Timestamp.Equal(b.Timestamp) {
		if a.Timestamp.Before(b.Timestamp) {
			return -1
		}
		return 1
	}
	return 0
}
