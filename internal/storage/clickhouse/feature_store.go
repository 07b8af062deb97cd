package clickhouse

import (
	"context"
	"fmt"
	"time"

	"crypto-feature-pipeline/internal/domain"
	"crypto-feature-pipeline/internal/storage"
)

const featureColumns = `
	ts, close,
	lag_1h, lag_2h, lag_3h, lag_6h, lag_12h, lag_24h,
	ma_6h, ma_12h, rsi, macd, macd_signal,
	bollinger_hband, bollinger_lband
`

// FeatureStore implements storage.FeatureStore using ClickHouse.
type FeatureStore struct {
	conn *Conn
}

// NewFeatureStore creates a new FeatureStore.
func NewFeatureStore(conn *Conn) *FeatureStore {
	return &FeatureStore{conn: conn}
}

// Compile-time interface check.
var _ storage.FeatureStore = (*FeatureStore)(nil)

// InsertBatch appends rows whose timestamp is not stored yet.
// MergeTree does not enforce uniqueness, so existing timestamps in the
// batch range are read first and skipped.
func (s *FeatureStore) InsertBatch(ctx context.Context, rows []*domain.FeatureRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	for _, r := range rows {
		if r == nil || r.Timestamp.IsZero() {
			return 0, storage.ErrInvalidInput
		}
	}

	minTs, maxTs := rows[0].Timestamp, rows[0].Timestamp
	for _, r := range rows[1:] {
		if r.Timestamp.Before(minTs) {
			minTs = r.Timestamp
		}
		if r.Timestamp.After(maxTs) {
			maxTs = r.Timestamp
		}
	}

	existing, err := s.existingKeys(ctx, minTs, maxTs)
	if err != nil {
		return 0, fmt.Errorf("check existing features: %w", err)
	}

	staged := make([]*domain.FeatureRow, 0, len(rows))
	for _, r := range rows {
		key := r.Timestamp.UnixMilli()
		if _, ok := existing[key]; ok {
			continue
		}
		existing[key] = struct{}{}
		staged = append(staged, r)
	}
	if len(staged) == 0 {
		return 0, nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO crypto_features (`+featureColumns+`)`)
	if err != nil {
		return 0, fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range staged {
		err = batch.Append(
			r.Timestamp.UTC(), r.Close,
			r.Lag1h, r.Lag2h, r.Lag3h, r.Lag6h, r.Lag12h, r.Lag24h,
			r.MA6h, r.MA12h, r.RSI, r.MACD, r.MACDSignal,
			r.BollingerHBand, r.BollingerLBand,
		)
		if err != nil {
			return 0, fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return 0, fmt.Errorf("send batch: %w", err)
	}

	return len(staged), nil
}

// ReadAll retrieves all rows, ordered by timestamp ASC.
func (s *FeatureStore) ReadAll(ctx context.Context) ([]*domain.FeatureRow, error) {
	rows, err := s.conn.Query(ctx, `SELECT `+featureColumns+` FROM crypto_features FINAL ORDER BY ts ASC`)
	if err != nil {
		return nil, fmt.Errorf("query features: %w", err)
	}
	defer rows.Close()

	return scanFeatureRows(rows)
}

// Latest retrieves the newest row. Returns storage.ErrNotFound if empty.
func (s *FeatureStore) Latest(ctx context.Context) (*domain.FeatureRow, error) {
	rows, err := s.conn.Query(ctx, `SELECT `+featureColumns+` FROM crypto_features FINAL ORDER BY ts DESC LIMIT 1`)
	if err != nil {
		return nil, fmt.Errorf("query latest feature: %w", err)
	}
	defer rows.Close()

	result, err := scanFeatureRows(rows)
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, storage.ErrNotFound
	}
	return result[0], nil
}

func (s *FeatureStore) existingKeys(ctx context.Context, from, to time.Time) (map[int64]struct{}, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT toUnixTimestamp64Milli(ts) FROM crypto_features
		WHERE ts >= ? AND ts <= ?
	`, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make(map[int64]struct{})
	for rows.Next() {
		var ms int64
		if err := rows.Scan(&ms); err != nil {
			return nil, err
		}
		keys[ms] = struct{}{}
	}
	return keys, rows.Err()
}

// chRows is the subset of driver.Rows used by the scanners.
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanFeatureRows(rows chRows) ([]*domain.FeatureRow, error) {
	var result []*domain.FeatureRow

	for rows.Next() {
		var r domain.FeatureRow
		err := rows.Scan(
			&r.Timestamp, &r.Close,
			&r.Lag1h, &r.Lag2h, &r.Lag3h, &r.Lag6h, &r.Lag12h, &r.Lag24h,
			&r.MA6h, &r.MA12h, &r.RSI, &r.MACD, &r.MACDSignal,
			&r.BollingerHBand, &r.BollingerLBand,
		)
		if err != nil {
			return nil, fmt.Errorf("scan feature row: %w", err)
		}
		r.Timestamp = r.Timestamp.UTC()
		result = append(result, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feature rows: %w", err)
	}

	return result, nil
}
