package memory

import (
	"context"
	"sort"
	"sync"

	"crypto-feature-pipeline/internal/domain"
	"crypto-feature-pipeline/internal/storage"
)

// FeatureStore is an in-memory implementation of storage.FeatureStore.
type FeatureStore struct {
	mu   sync.RWMutex
	data map[int64]*domain.FeatureRow // keyed by timestamp_ms
}

// NewFeatureStore creates a new in-memory feature store.
func NewFeatureStore() *FeatureStore {
	return &FeatureStore{
		data: make(map[int64]*domain.FeatureRow),
	}
}

// InsertBatch adds rows, skipping timestamps that already exist.
func (s *FeatureStore) InsertBatch(_ context.Context, rows []*domain.FeatureRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	for _, r := range rows {
		if r == nil || r.Timestamp.IsZero() {
			return 0, storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, r := range rows {
		key := r.Timestamp.UnixMilli()
		if _, exists := s.data[key]; exists {
			continue
		}
		rowCopy := *r
		rowCopy.Timestamp = r.Timestamp.UTC()
		s.data[key] = &rowCopy
		inserted++
	}

	return inserted, nil
}

// ReadAll retrieves all rows, ordered by timestamp ASC.
func (s *FeatureStore) ReadAll(_ context.Context) ([]*domain.FeatureRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.FeatureRow, 0, len(s.data))
	for _, r := range s.data {
		rowCopy := *r
		result = append(result, &rowCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})

	return result, nil
}

// Latest retrieves the newest row. Returns storage.ErrNotFound if empty.
func (s *FeatureStore) Latest(_ context.Context) (*domain.FeatureRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.FeatureRow
	for _, r := range s.data {
		if latest == nil || r.Timestamp.After(latest.Timestamp) {
			latest = r
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}

	rowCopy := *latest
	return &rowCopy, nil
}

// Len returns the number of stored rows.
func (s *FeatureStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

var _ storage.FeatureStore = (*FeatureStore)(nil)
