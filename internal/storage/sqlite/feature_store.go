package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"crypto-feature-pipeline/internal/domain"
	"crypto-feature-pipeline/internal/storage"
)

// FeatureStore implements storage.FeatureStore using SQLite.
type FeatureStore struct {
	db *gorm.DB
}

// NewFeatureStore creates a new FeatureStore.
func NewFeatureStore(db *gorm.DB) *FeatureStore {
	return &FeatureStore{db: db}
}

var _ storage.FeatureStore = (*FeatureStore)(nil)

func toFeatureModel(r *domain.FeatureRow) FeatureModel {
	return FeatureModel{
		TsMs:           r.Timestamp.UnixMilli(),
		Close:          r.Close,
		Lag1h:          r.Lag1h,
		Lag2h:          r.Lag2h,
		Lag3h:          r.Lag3h,
		Lag6h:          r.Lag6h,
		Lag12h:         r.Lag12h,
		Lag24h:         r.Lag24h,
		MA6h:           r.MA6h,
		MA12h:          r.MA12h,
		RSI:            r.RSI,
		MACD:           r.MACD,
		MACDSignal:     r.MACDSignal,
		BollingerHBand: r.BollingerHBand,
		BollingerLBand: r.BollingerLBand,
	}
}

func (m FeatureModel) toDomain() *domain.FeatureRow {
	return &domain.FeatureRow{
		Timestamp:      time.UnixMilli(m.TsMs).UTC(),
		Close:          m.Close,
		Lag1h:          m.Lag1h,
		Lag2h:          m.Lag2h,
		Lag3h:          m.Lag3h,
		Lag6h:          m.Lag6h,
		Lag12h:         m.Lag12h,
		Lag24h:         m.Lag24h,
		MA6h:           m.MA6h,
		MA12h:          m.MA12h,
		RSI:            m.RSI,
		MACD:           m.MACD,
		MACDSignal:     m.MACDSignal,
		BollingerHBand: m.BollingerHBand,
		BollingerLBand: m.BollingerLBand,
	}
}

// InsertBatch writes rows in one transaction, skipping timestamps that
// already exist. Returns the number of rows inserted.
func (s *FeatureStore) InsertBatch(ctx context.Context, rows []*domain.FeatureRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	models := make([]FeatureModel, 0, len(rows))
	for _, r := range rows {
		if r == nil || r.Timestamp.IsZero() {
			return 0, storage.ErrInvalidInput
		}
		models = append(models, toFeatureModel(r))
	}

	var inserted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "ts_ms"}},
			DoNothing: true,
		}).CreateInBatches(&models, insertBatchSize)
		inserted = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, fmt.Errorf("insert features: %w", err)
	}
	return int(inserted), nil
}

// ReadAll retrieves all rows, ordered by timestamp ASC.
func (s *FeatureStore) ReadAll(ctx context.Context) ([]*domain.FeatureRow, error) {
	var models []FeatureModel
	if err := s.db.WithContext(ctx).Order("ts_ms ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("read features: %w", err)
	}

	rows := make([]*domain.FeatureRow, 0, len(models))
	for _, m := range models {
		rows = append(rows, m.toDomain())
	}
	return rows, nil
}

// Latest retrieves the newest row. Returns storage.ErrNotFound if empty.
func (s *FeatureStore) Latest(ctx context.Context) (*domain.FeatureRow, error) {
	var m FeatureModel
	err := s.db.WithContext(ctx).Order("ts_ms DESC").First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest feature: %w", err)
	}
	return m.toDomain(), nil
}
