package storage

import (
	"context"

	"crypto-feature-pipeline/internal/domain"
)

// RawPointStore provides access to prices_hourly storage.
// Rows are append-only: an insert never overwrites an existing (symbol, timestamp).
type RawPointStore interface {
	// ListExistingKeys returns the timestamps (unix ms) already stored for symbol.
	ListExistingKeys(ctx context.Context, symbol string) (map[int64]struct{}, error)

	// InsertBatch adds points in a single transaction, skipping any whose key
	// already exists. Returns the number of rows actually inserted.
	InsertBatch(ctx context.Context, points []*domain.RawPoint) (int, error)

	// ReadAll retrieves all points for symbol, ordered by timestamp ASC.
	ReadAll(ctx context.Context, symbol string) ([]*domain.RawPoint, error)
}

// FeatureStore provides access to crypto_features storage.
// Rows are append-only: an insert never overwrites an existing timestamp.
type FeatureStore interface {
	// InsertBatch adds rows in a single transaction, skipping any whose
	// timestamp already exists. Returns the number of rows actually inserted.
	InsertBatch(ctx context.Context, rows []*domain.FeatureRow) (int, error)

	// ReadAll retrieves all rows, ordered by timestamp ASC.
	ReadAll(ctx context.Context) ([]*domain.FeatureRow, error)

	// Latest retrieves the row with the greatest timestamp. Returns ErrNotFound if empty.
	Latest(ctx context.Context) (*domain.FeatureRow, error)
}
