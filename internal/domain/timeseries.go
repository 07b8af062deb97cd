package domain

import (
	"strings"
	"time"
)

// Source identifiers recorded on raw rows.
const (
	SourceCoinGecko = "coingecko"
)

// RawPoint is one hourly observation as received from the upstream feed.
// Corresponds to prices_hourly table. Unique on (Symbol, Timestamp).
type RawPoint struct {
	Symbol     string    // asset label, e.g. "BTC"
	Timestamp  time.Time // hour bucket (UTC)
	Close      float64   // observed price at Timestamp
	Source     string    // upstream identifier, e.g. "coingecko"
	RawPayload []byte    // upstream response kept for audit, may be nil
}

// Key returns the natural key of the point in unix milliseconds.
func (p *RawPoint) Key() int64 {
	return p.Timestamp.UnixMilli()
}

// PricePoint is a cleaned (timestamp, close) pair fed to feature derivation.
type PricePoint struct {
	Timestamp time.Time
	Close     float64
}

// SymbolLabel maps an upstream coin id to the label stored on raw rows.
// "bitcoin" and "btc" become "BTC", anything else is upper-cased.
func SymbolLabel(coinID string) string {
	id := strings.ToLower(strings.TrimSpace(coinID))
	if id == "bitcoin" || id == "btc" {
		return "BTC"
	}
	return strings.ToUpper(id)
}
