package normalization

import (
	"context"
	"fmt"

	"crypto-feature-pipeline/internal/domain"
	"crypto-feature-pipeline/internal/storage"
)

// Upserter persists derived feature rows. Rows whose timestamp is already
// stored are skipped, never overwritten.
type Upserter struct {
	store storage.FeatureStore
}

// NewUpserter creates a new Upserter.
func NewUpserter(store storage.FeatureStore) *Upserter {
	return &Upserter{store: store}
}

// Write stores rows in one batch and returns how many were new.
func (u *Upserter) Write(ctx context.Context, rows []*domain.FeatureRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	inserted, err := u.store.InsertBatch(ctx, rows)
	if err != nil {
		return 0, fmt.Errorf("write features: %w", err)
	}
	return inserted, nil
}
