package domain

import "time"

// FeatureRow holds the technical-analysis features derived for one hourly
// timestamp. Corresponds to crypto_features table. Only fully defined rows
// are ever materialized, so no field is nullable.
type FeatureRow struct {
	Timestamp      time.Time // hour the row describes (UTC), unique key
	Close          float64   // close at Timestamp
	Lag1h          float64   // close 1 position earlier
	Lag2h          float64   // close 2 positions earlier
	Lag3h          float64   // close 3 positions earlier
	Lag6h          float64   // close 6 positions earlier
	Lag12h         float64   // close 12 positions earlier
	Lag24h         float64   // close 24 positions earlier
	MA6h           float64   // mean of the trailing 6 closes
	MA12h          float64   // mean of the trailing 12 closes
	RSI            float64   // Wilder RSI(14), in [0, 100]
	MACD           float64   // EMA12 - EMA26
	MACDSignal     float64   // EMA9 of MACD
	BollingerHBand float64   // SMA20 + 2 * stddev20
	BollingerLBand float64   // SMA20 - 2 * stddev20
}
