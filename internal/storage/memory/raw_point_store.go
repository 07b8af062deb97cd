package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"crypto-feature-pipeline/internal/domain"
	"crypto-feature-pipeline/internal/storage"
)

// RawPointStore is an in-memory implementation of storage.RawPointStore.
type RawPointStore struct {
	mu   sync.RWMutex
	data map[string]*domain.RawPoint // keyed by (symbol, timestamp_ms)
}

// NewRawPointStore creates a new in-memory raw point store.
func NewRawPointStore() *RawPointStore {
	return &RawPointStore{
		data: make(map[string]*domain.RawPoint),
	}
}

// rawPointKey generates a unique key for a raw point.
func rawPointKey(symbol string, timestampMs int64) string {
	return fmt.Sprintf("%s|%d", symbol, timestampMs)
}

// ListExistingKeys returns the timestamps already stored for symbol.
func (s *RawPointStore) ListExistingKeys(_ context.Context, symbol string) (map[int64]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make(map[int64]struct{})
	for _, p := range s.data {
		if p.Symbol == symbol {
			keys[p.Key()] = struct{}{}
		}
	}
	return keys, nil
}

// InsertBatch adds points, skipping existing keys. Validation failure
// rejects the whole batch before anything is written.
func (s *RawPointStore) InsertBatch(_ context.Context, points []*domain.RawPoint) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}

	// First pass: validate
	for _, p := range points {
		if p == nil || p.Symbol == "" || p.Timestamp.IsZero() {
			return 0, storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Second pass: insert what is new
	inserted := 0
	for _, p := range points {
		key := rawPointKey(p.Symbol, p.Key())
		if _, exists := s.data[key]; exists {
			continue
		}
		pointCopy := *p
		pointCopy.Timestamp = p.Timestamp.UTC()
		if p.RawPayload != nil {
			pointCopy.RawPayload = append([]byte(nil), p.RawPayload...)
		}
		s.data[key] = &pointCopy
		inserted++
	}

	return inserted, nil
}

// ReadAll retrieves all points for symbol, ordered by timestamp ASC.
func (s *RawPointStore) ReadAll(_ context.Context, symbol string) ([]*domain.RawPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.RawPoint
	for _, p := range s.data {
		if p.Symbol == symbol {
			pointCopy := *p
			result = append(result, &pointCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})

	return result, nil
}

// Len returns the total number of stored points across all symbols.
func (s *RawPointStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

var _ storage.RawPointStore = (*RawPointStore)(nil)
