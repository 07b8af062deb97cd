package normalization

import (
	"math"

	"crypto-feature-pipeline/internal/domain"
)

// Indicator parameters.
const (
	MAShortWindow   = 6
	MALongWindow    = 12
	RSIPeriod       = 14
	MACDFastSpan    = 12
	MACDSlowSpan    = 26
	MACDSignalSpan  = 9
	BollingerWindow = 20
	BollingerK      = 2.0
)

// LagHorizons are the lag offsets, in positions, materialized on every row.
var LagHorizons = [6]int{1, 2, 3, 6, 12, 24}

// MinHistory is the number of points required before the first fully
// defined row. It is set by the slow MACD average. Longer inputs yield
// len(series) - WarmUp rows.
const (
	MinHistory = MACDSlowSpan
	WarmUp     = MinHistory - 1
)

// DeriveFeatures computes one FeatureRow per position of a cleaned,
// timestamp-ascending series and keeps only rows where every indicator is
// defined.
//
// Formulas:
//   - lag_h = close[t-h] for h in LagHorizons
//   - ma_6h, ma_12h = trailing arithmetic means
//   - rsi = Wilder RSI(14), 100 when average loss is 0
//   - macd = EMA12 - EMA26, macd_signal = EMA9 of macd seeded at its first value
//   - bollinger bands = SMA20 +/- 2 * population stddev20
//
// Positions are treated as hourly steps; gaps in the series are not filled.
// Output is deterministic, ascending, and never longer than the input.
func DeriveFeatures(series []domain.PricePoint) []*domain.FeatureRow {
	if len(series) < MinHistory {
		return nil
	}

	closes := make([]float64, len(series))
	for i, p := range series {
		closes[i] = p.Close
	}

	var lags [len(LagHorizons)][]*float64
	for j, h := range LagHorizons {
		lags[j] = lagSeries(closes, h)
	}

	maShort := rollingMean(closes, MAShortWindow)
	maLong := rollingMean(closes, MALongWindow)
	rsi := wilderRSI(closes, RSIPeriod)

	emaFast := emaSeries(closes, MACDFastSpan)
	emaSlow := emaSeries(closes, MACDSlowSpan)
	macd := make([]*float64, len(closes))
	for i := range closes {
		if emaFast[i] != nil && emaSlow[i] != nil {
			v := *emaFast[i] - *emaSlow[i]
			macd[i] = &v
		}
	}
	signal := emaDefined(macd, MACDSignalSpan)

	bbMid := rollingMean(closes, BollingerWindow)
	bbStd := rollingStd(closes, BollingerWindow, bbMid)

	result := make([]*domain.FeatureRow, 0, len(series)-WarmUp)
	for i, p := range series {
		fields := []*float64{
			lags[0][i], lags[1][i], lags[2][i], lags[3][i], lags[4][i], lags[5][i],
			maShort[i], maLong[i], rsi[i], macd[i], signal[i], bbMid[i], bbStd[i],
		}
		if !allFinite(fields) {
			continue
		}

		result = append(result, &domain.FeatureRow{
			Timestamp:      p.Timestamp,
			Close:          p.Close,
			Lag1h:          *lags[0][i],
			Lag2h:          *lags[1][i],
			Lag3h:          *lags[2][i],
			Lag6h:          *lags[3][i],
			Lag12h:         *lags[4][i],
			Lag24h:         *lags[5][i],
			MA6h:           *maShort[i],
			MA12h:          *maLong[i],
			RSI:            *rsi[i],
			MACD:           *macd[i],
			MACDSignal:     *signal[i],
			BollingerHBand: *bbMid[i] + BollingerK*(*bbStd[i]),
			BollingerLBand: *bbMid[i] - BollingerK*(*bbStd[i]),
		})
	}

	return result
}

// allFinite reports whether every value is defined and finite.
func allFinite(values []*float64) bool {
	for _, v := range values {
		if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
			return false
		}
	}
	return true
}
