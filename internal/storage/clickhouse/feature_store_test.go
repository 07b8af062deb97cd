package clickhouse

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-feature-pipeline/internal/domain"
	"crypto-feature-pipeline/internal/storage"
)

var baseHour = time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)

func featureRow(hour int, price float64) *domain.FeatureRow {
	return &domain.FeatureRow{
		Timestamp:      baseHour.Add(time.Duration(hour) * time.Hour),
		Close:          price,
		Lag1h:          price - 1,
		Lag2h:          price - 2,
		Lag3h:          price - 3,
		Lag6h:          price - 6,
		Lag12h:         price - 12,
		Lag24h:         price - 24,
		MA6h:           price - 0.5,
		MA12h:          price - 1.5,
		RSI:            61.25,
		MACD:           0.75,
		MACDSignal:     0.5,
		BollingerHBand: price + 4,
		BollingerLBand: price - 4,
	}
}

func TestFeatureStore_InsertBatchAndReadAll(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewFeatureStore(conn)

	inserted, err := store.InsertBatch(ctx, []*domain.FeatureRow{
		featureRow(2, 102), featureRow(0, 100), featureRow(1, 101),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, inserted)

	rows, err := store.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for i, r := range rows {
		assert.Equal(t, featureRow(i, float64(100+i)), r)
	}
}

func TestFeatureStore_SkipsExisting(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewFeatureStore(conn)

	_, err := store.InsertBatch(ctx, []*domain.FeatureRow{featureRow(0, 100), featureRow(1, 101)})
	require.NoError(t, err)

	// Overlapping batch with a conflicting value for hour 1
	inserted, err := store.InsertBatch(ctx, []*domain.FeatureRow{
		featureRow(1, 999), featureRow(2, 102), featureRow(2, 102),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)

	rows, err := store.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, 101.0, rows[1].Close, "existing row must not be overwritten")

	again, err := store.InsertBatch(ctx, []*domain.FeatureRow{featureRow(0, 100), featureRow(1, 101), featureRow(2, 102)})
	require.NoError(t, err)
	assert.Equal(t, 0, again)
}

func TestFeatureStore_Latest(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewFeatureStore(conn)

	_, err := store.Latest(ctx)
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	_, err = store.InsertBatch(ctx, []*domain.FeatureRow{featureRow(0, 100), featureRow(5, 105)})
	require.NoError(t, err)

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, featureRow(5, 105), latest)
}

func TestFeatureStore_InvalidInput(t *testing.T) {
	store := NewFeatureStore(nil)

	_, err := store.InsertBatch(context.Background(), []*domain.FeatureRow{featureRow(0, 1), nil})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	n, err := store.InsertBatch(context.Background(), nil)
	assert.NoError(t, err)
	assert.Equal(t, 0, n)
}
