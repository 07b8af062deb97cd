package verification

import (
	"context"
	"fmt"

	"crypto-feature-pipeline/internal/domain"
	"crypto-feature-pipeline/internal/normalization"
	"crypto-feature-pipeline/internal/storage"
)

// ReplayVerifier re-derives features from a symbol's raw history and
// compares them with the feature store.
type ReplayVerifier struct {
	rawStore     storage.RawPointStore
	featureStore storage.FeatureStore
	symbol       string
}

// NewReplayVerifier creates a new ReplayVerifier.
func NewReplayVerifier(raw storage.RawPointStore, features storage.FeatureStore, symbol string) *ReplayVerifier {
	return &ReplayVerifier{
		rawStore:     raw,
		featureStore: features,
		symbol:       symbol,
	}
}

// Verify implements Verifier.
func (v *ReplayVerifier) Verify(ctx context.Context) (*Report, error) {
	raw, err := v.rawStore.ReadAll(ctx, v.symbol)
	if err != nil {
		return nil, fmt.Errorf("read raw history: %w", err)
	}
	stored, err := v.featureStore.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("read features: %w", err)
	}

	series, _ := normalization.CleanRawPoints(raw)
	derived := normalization.DeriveFeatures(series)

	byTs := make(map[int64]*domain.FeatureRow, len(derived))
	for _, row := range derived {
		byTs[row.Timestamp.UnixMilli()] = row
	}

	report := &Report{}
	seen := make(map[int64]struct{}, len(stored))
	for _, row := range stored {
		key := row.Timestamp.UnixMilli()
		seen[key] = struct{}{}

		want, ok := byTs[key]
		if !ok {
			report.Orphaned = append(report.Orphaned, row.Timestamp)
			continue
		}

		report.Checked++
		divergences := CompareFeatureRows(row, want)
		if len(divergences) == 0 {
			report.Matched++
			continue
		}
		report.Divergent = append(report.Divergent, RowResult{
			Timestamp:   row.Timestamp,
			Divergences: divergences,
		})
	}

	for _, row := range derived {
		if _, ok := seen[row.Timestamp.UnixMilli()]; !ok {
			report.Missing = append(report.Missing, row.Timestamp)
		}
	}

	return report, nil
}
