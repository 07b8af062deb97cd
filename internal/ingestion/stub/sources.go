package stub

import (
	"context"
	"sync"

	"crypto-feature-pipeline/internal/domain"
)

// StubPriceSource returns fixed in-memory points for testing.
// Points can be intentionally unordered to test sorting.
// Implements ingestion.PriceSource interface.
type StubPriceSource struct {
	mu     sync.Mutex
	points []*domain.RawPoint
	err    error
	calls  int
}

// NewStubPriceSource creates a new stub price source with the given points.
func NewStubPriceSource(points []*domain.RawPoint) *StubPriceSource {
	return &StubPriceSource{points: points}
}

// NewFailingPriceSource creates a stub that always returns err.
func NewFailingPriceSource(err error) *StubPriceSource {
	return &StubPriceSource{err: err}
}

// SetPoints replaces the points returned by subsequent fetches.
func (s *StubPriceSource) SetPoints(points []*domain.RawPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = points
}

// Calls returns how many times Fetch was invoked.
func (s *StubPriceSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Fetch returns copies of the configured points, or the configured error.
func (s *StubPriceSource) Fetch(ctx context.Context, _ string, _ int) ([]*domain.RawPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}

	result := make([]*domain.RawPoint, 0, len(s.points))
	for _, p := range s.points {
		pointCopy := *p
		result = append(result, &pointCopy)
	}
	return result, nil
}
