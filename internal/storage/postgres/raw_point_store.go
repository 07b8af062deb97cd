package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"crypto-feature-pipeline/internal/domain"
	"crypto-feature-pipeline/internal/storage"
)

// RawPointStore implements storage.RawPointStore using PostgreSQL.
type RawPointStore struct {
	pool *Pool
}

// NewRawPointStore creates a new RawPointStore.
func NewRawPointStore(pool *Pool) *RawPointStore {
	return &RawPointStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RawPointStore = (*RawPointStore)(nil)

// ListExistingKeys returns the stored timestamps (unix ms) for symbol.
func (s *RawPointStore) ListExistingKeys(ctx context.Context, symbol string) (map[int64]struct{}, error) {
	rows, err := s.pool.Query(ctx, `SELECT ts FROM prices_hourly WHERE symbol = $1`, symbol)
	if err != nil {
		return nil, fmt.Errorf("list raw keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[int64]struct{})
	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("scan raw key: %w", err)
		}
		keys[ts.UnixMilli()] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate raw keys: %w", err)
	}
	return keys, nil
}

// InsertBatch writes points in one transaction, skipping (symbol, ts)
// pairs that already exist. Returns the number of rows inserted.
func (s *RawPointStore) InsertBatch(ctx context.Context, points []*domain.RawPoint) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}

	args := make([][]any, 0, len(points))
	for _, p := range points {
		if p == nil || p.Symbol == "" || p.Timestamp.IsZero() {
			return 0, storage.ErrInvalidInput
		}
		args = append(args, []any{p.Symbol, p.Timestamp.UTC(), p.Close, p.Source, p.RawPayload})
	}

	query := `
		INSERT INTO prices_hourly (symbol, ts, close, source, raw_payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (symbol, ts) DO NOTHING
	`

	inserted, err := s.pool.insertSkipping(ctx, query, args)
	if err != nil {
		return 0, fmt.Errorf("insert raw points: %w", err)
	}
	return inserted, nil
}

// ReadAll retrieves every point for symbol, ordered by timestamp ASC.
func (s *RawPointStore) ReadAll(ctx context.Context, symbol string) ([]*domain.RawPoint, error) {
	query := `
		SELECT symbol, ts, close, source, raw_payload
		FROM prices_hourly
		WHERE symbol = $1
		ORDER BY ts ASC
	`

	rows, err := s.pool.Query(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("read raw points: %w", err)
	}
	defer rows.Close()

	return scanRawPoints(rows)
}

// scanRawPoints scans multiple rows into a slice of RawPoint.
func scanRawPoints(rows pgx.Rows) ([]*domain.RawPoint, error) {
	var points []*domain.RawPoint
	for rows.Next() {
		var p domain.RawPoint
		if err := rows.Scan(&p.Symbol, &p.Timestamp, &p.Close, &p.Source, &p.RawPayload); err != nil {
			return nil, fmt.Errorf("scan raw point: %w", err)
		}
		p.Timestamp = p.Timestamp.UTC()
		points = append(points, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate raw points: %w", err)
	}
	return points, nil
}
