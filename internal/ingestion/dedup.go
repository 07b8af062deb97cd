package ingestion

import (
	"context"
	"fmt"

	"crypto-feature-pipeline/internal/domain"
	"crypto-feature-pipeline/internal/storage"
)

// ErrSymbolMismatch is returned when a batch carries a point labelled with a
// symbol other than the one being reconciled. It wraps storage.ErrInvalidInput.
var ErrSymbolMismatch = fmt.Errorf("symbol mismatch: %w", storage.ErrInvalidInput)

// Deduplicator persists only raw points whose (symbol, timestamp) is not
// already stored. Re-running with the same or an overlapping batch is safe.
type Deduplicator struct {
	store storage.RawPointStore
}

// NewDeduplicator creates a new Deduplicator over store.
func NewDeduplicator(store storage.RawPointStore) *Deduplicator {
	return &Deduplicator{store: store}
}

// Reconcile stages incoming points that are absent from the store and not
// repeated within the batch, writes them in one batch, and returns how many
// rows the store actually inserted.
//
// Existing keys are read from the store on every call. Rows written
// concurrently by another writer are skipped by the store and simply not
// counted. All points must carry the given symbol.
func (d *Deduplicator) Reconcile(ctx context.Context, symbol string, incoming []*domain.RawPoint) (int, error) {
	if len(incoming) == 0 {
		return 0, nil
	}

	for _, p := range incoming {
		if p == nil {
			return 0, fmt.Errorf("reconcile %s: nil point: %w", symbol, storage.ErrInvalidInput)
		}
		if p.Symbol != symbol {
			return 0, fmt.Errorf("reconcile %s: got %s: %w", symbol, p.Symbol, ErrSymbolMismatch)
		}
	}

	existing, err := d.store.ListExistingKeys(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("list existing keys: %w", err)
	}

	staged := make([]*domain.RawPoint, 0, len(incoming))
	for _, p := range incoming {
		key := p.Key()
		if _, ok := existing[key]; ok {
			continue
		}
		existing[key] = struct{}{}
		staged = append(staged, p)
	}

	if len(staged) == 0 {
		return 0, nil
	}

	// Enforce deterministic ordering
	SortRawPoints(staged)

	inserted, err := d.store.InsertBatch(ctx, staged)
	if err != nil {
		return 0, fmt.Errorf("insert raw batch: %w", err)
	}

	return inserted, nil
}
