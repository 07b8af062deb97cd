package sqlite

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"crypto-feature-pipeline/internal/domain"
	"crypto-feature-pipeline/internal/storage"
)

// RawPointStore implements storage.RawPointStore using SQLite.
type RawPointStore struct {
	db *gorm.DB
}

// NewRawPointStore creates a new RawPointStore.
func NewRawPointStore(db *gorm.DB) *RawPointStore {
	return &RawPointStore{db: db}
}

var _ storage.RawPointStore = (*RawPointStore)(nil)

// ListExistingKeys returns the stored timestamps (unix ms) for symbol.
func (s *RawPointStore) ListExistingKeys(ctx context.Context, symbol string) (map[int64]struct{}, error) {
	var ts []int64
	err := s.db.WithContext(ctx).Model(&PriceModel{}).
		Where("symbol = ?", symbol).
		Pluck("ts_ms", &ts).Error
	if err != nil {
		return nil, fmt.Errorf("list raw keys: %w", err)
	}

	keys := make(map[int64]struct{}, len(ts))
	for _, k := range ts {
		keys[k] = struct{}{}
	}
	return keys, nil
}

// InsertBatch writes points in one transaction, skipping (symbol, ts)
// pairs that already exist. Returns the number of rows inserted.
func (s *RawPointStore) InsertBatch(ctx context.Context, points []*domain.RawPoint) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}

	models := make([]PriceModel, 0, len(points))
	for _, p := range points {
		if p == nil || p.Symbol == "" || p.Timestamp.IsZero() {
			return 0, storage.ErrInvalidInput
		}
		models = append(models, PriceModel{
			Symbol:     p.Symbol,
			TsMs:       p.Key(),
			Close:      p.Close,
			Source:     p.Source,
			RawPayload: p.RawPayload,
		})
	}

	var inserted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "ts_ms"}},
			DoNothing: true,
		}).CreateInBatches(&models, insertBatchSize)
		inserted = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, fmt.Errorf("insert raw points: %w", err)
	}
	return int(inserted), nil
}

// ReadAll retrieves every point for symbol, ordered by timestamp ASC.
func (s *RawPointStore) ReadAll(ctx context.Context, symbol string) ([]*domain.RawPoint, error) {
	var models []PriceModel
	err := s.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("ts_ms ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("read raw points: %w", err)
	}

	points := make([]*domain.RawPoint, 0, len(models))
	for _, m := range models {
		points = append(points, &domain.RawPoint{
			Symbol:     m.Symbol,
			Timestamp:  time.UnixMilli(m.TsMs).UTC(),
			Close:      m.Close,
			Source:     m.Source,
			RawPayload: m.RawPayload,
		})
	}
	return points, nil
}
