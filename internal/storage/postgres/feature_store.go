package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"crypto-feature-pipeline/internal/domain"
	"crypto-feature-pipeline/internal/storage"
)

// FeatureStore implements storage.FeatureStore using PostgreSQL.
type FeatureStore struct {
	pool *Pool
}

// NewFeatureStore creates a new FeatureStore.
func NewFeatureStore(pool *Pool) *FeatureStore {
	return &FeatureStore{pool: pool}
}

// Compile-time interface check.
var _ storage.FeatureStore = (*FeatureStore)(nil)

const selectFeatures = `
	SELECT ts, close,
		lag_1h, lag_2h, lag_3h, lag_6h, lag_12h, lag_24h,
		ma_6h, ma_12h, rsi, macd, macd_signal,
		bollinger_hband, bollinger_lband
	FROM crypto_features
`

// InsertBatch writes rows in one transaction, skipping timestamps that
// already exist. Returns the number of rows inserted.
func (s *FeatureStore) InsertBatch(ctx context.Context, rows []*domain.FeatureRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	args := make([][]any, 0, len(rows))
	for _, r := range rows {
		if r == nil || r.Timestamp.IsZero() {
			return 0, storage.ErrInvalidInput
		}
		args = append(args, []any{
			r.Timestamp.UTC(), r.Close,
			r.Lag1h, r.Lag2h, r.Lag3h, r.Lag6h, r.Lag12h, r.Lag24h,
			r.MA6h, r.MA12h, r.RSI, r.MACD, r.MACDSignal,
			r.BollingerHBand, r.BollingerLBand,
		})
	}

	query := `
		INSERT INTO crypto_features (
			ts, close,
			lag_1h, lag_2h, lag_3h, lag_6h, lag_12h, lag_24h,
			ma_6h, ma_12h, rsi, macd, macd_signal,
			bollinger_hband, bollinger_lband
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (ts) DO NOTHING
	`

	inserted, err := s.pool.insertSkipping(ctx, query, args)
	if err != nil {
		return 0, fmt.Errorf("insert features: %w", err)
	}
	return inserted, nil
}

// ReadAll retrieves all rows, ordered by timestamp ASC.
func (s *FeatureStore) ReadAll(ctx context.Context) ([]*domain.FeatureRow, error) {
	rows, err := s.pool.Query(ctx, selectFeatures+` ORDER BY ts ASC`)
	if err != nil {
		return nil, fmt.Errorf("read features: %w", err)
	}
	defer rows.Close()

	var result []*domain.FeatureRow
	for rows.Next() {
		r, err := scanFeatureRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan feature row: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feature rows: %w", err)
	}
	return result, nil
}

// Latest retrieves the newest row. Returns storage.ErrNotFound if empty.
func (s *FeatureStore) Latest(ctx context.Context) (*domain.FeatureRow, error) {
	row := s.pool.QueryRow(ctx, selectFeatures+` ORDER BY ts DESC LIMIT 1`)
	r, err := scanFeatureRow(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest feature: %w", err)
	}
	return r, nil
}

// scanFeatureRow scans a single row into a FeatureRow.
func scanFeatureRow(row pgx.Row) (*domain.FeatureRow, error) {
	var r domain.FeatureRow
	err := row.Scan(
		&r.Timestamp, &r.Close,
		&r.Lag1h, &r.Lag2h, &r.Lag3h, &r.Lag6h, &r.Lag12h, &r.Lag24h,
		&r.MA6h, &r.MA12h, &r.RSI, &r.MACD, &r.MACDSignal,
		&r.BollingerHBand, &r.BollingerLBand,
	)
	if err != nil {
		return nil, err
	}
	r.Timestamp = r.Timestamp.UTC()
	return &r, nil
}
