// Package verification checks that stored feature rows match the rows
// re-derived from the stored raw history.
package verification

import (
	"context"
	"math"
	"time"

	"crypto-feature-pipeline/internal/domain"
)

// FloatTolerance is the tolerance for float64 comparisons.
const FloatTolerance = 1e-7

// FieldDivergence represents a mismatch between stored and re-derived values.
type FieldDivergence struct {
	Field    string
	Expected float64 // stored value
	Actual   float64 // re-derived value
}

// RowResult lists the divergent fields of one stored row.
type RowResult struct {
	Timestamp   time.Time
	Divergences []FieldDivergence
}

// Report contains the results of a full verification pass.
type Report struct {
	Checked   int         // stored rows that have a re-derived counterpart
	Matched   int         // rows equal within FloatTolerance
	Divergent []RowResult // rows with at least one divergent field
	Missing   []time.Time // re-derived rows absent from the store
	Orphaned  []time.Time // stored rows the raw history no longer produces
}

// OK reports whether the store is consistent with the raw history.
func (r *Report) OK() bool {
	return len(r.Divergent) == 0 && len(r.Missing) == 0 && len(r.Orphaned) == 0
}

// Verifier verifies stored features against the raw history.
type Verifier interface {
	Verify(ctx context.Context) (*Report, error)
}

// CompareFeatureRows compares two rows for the same timestamp and returns
// divergent fields. Uses FloatTolerance for every field.
func CompareFeatureRows(stored, derived *domain.FeatureRow) []FieldDivergence {
	fields := []struct {
		name     string
		exp, act float64
	}{
		{"Close", stored.Close, derived.Close},
		{"Lag1h", stored.Lag1h, derived.Lag1h},
		{"Lag2h", stored.Lag2h, derived.Lag2h},
		{"Lag3h", stored.Lag3h, derived.Lag3h},
		{"Lag6h", stored.Lag6h, derived.Lag6h},
		{"Lag12h", stored.Lag12h, derived.Lag12h},
		{"Lag24h", stored.Lag24h, derived.Lag24h},
		{"MA6h", stored.MA6h, derived.MA6h},
		{"MA12h", stored.MA12h, derived.MA12h},
		{"RSI", stored.RSI, derived.RSI},
		{"MACD", stored.MACD, derived.MACD},
		{"MACDSignal", stored.MACDSignal, derived.MACDSignal},
		{"BollingerHBand", stored.BollingerHBand, derived.BollingerHBand},
		{"BollingerLBand", stored.BollingerLBand, derived.BollingerLBand},
	}

	var divergences []FieldDivergence
	for _, f := range fields {
		if !floatEquals(f.exp, f.act) {
			divergences = append(divergences, FieldDivergence{Field: f.name, Expected: f.exp, Actual: f.act})
		}
	}
	return divergences
}

// floatEquals compares two float64 values within FloatTolerance.
func floatEquals(a, b float64) bool {
	return math.Abs(a-b) <= FloatTolerance
}
