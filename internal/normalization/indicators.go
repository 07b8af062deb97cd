package normalization

import "math"

// Each helper returns a series aligned with its input. A nil entry means the
// indicator is undefined at that position.

// lagSeries returns values shifted back by h positions.
func lagSeries(values []float64, h int) []*float64 {
	out := make([]*float64, len(values))
	for i := h; i < len(values); i++ {
		v := values[i-h]
		out[i] = &v
	}
	return out
}

// rollingMean returns the trailing arithmetic mean over window points.
// Each window is summed directly so results do not drift with series length.
func rollingMean(values []float64, window int) []*float64 {
	out := make([]*float64, len(values))
	if window <= 0 {
		return out
	}
	for i := window - 1; i < len(values); i++ {
		sum := 0.0
		for _, v := range values[i-window+1 : i+1] {
			sum += v
		}
		mean := sum / float64(window)
		out[i] = &mean
	}
	return out
}

// rollingStd returns the trailing population standard deviation over window
// points, using the already computed rolling means.
func rollingStd(values []float64, window int, means []*float64) []*float64 {
	out := make([]*float64, len(values))
	for i := window - 1; i < len(values); i++ {
		if means[i] == nil {
			continue
		}
		mean := *means[i]
		sq := 0.0
		for _, v := range values[i-window+1 : i+1] {
			d := v - mean
			sq += d * d
		}
		std := math.Sqrt(sq / float64(window))
		out[i] = &std
	}
	return out
}

// emaSeries returns the exponential moving average with smoothing
// alpha = 2/(span+1). The recursion starts at the first value and the result
// is reported once span observations have been seen.
func emaSeries(values []float64, span int) []*float64 {
	out := make([]*float64, len(values))
	if len(values) == 0 || span <= 0 {
		return out
	}
	alpha := 2.0 / float64(span+1)
	ema := values[0]
	for i, v := range values {
		if i > 0 {
			ema += alpha * (v - ema)
		}
		if i >= span-1 {
			e := ema
			out[i] = &e
		}
	}
	return out
}

// emaDefined returns the exponential moving average of a partially defined
// series. The recursion starts at the first defined value and reports from
// there on. Undefined entries after the start keep the previous average.
func emaDefined(values []*float64, span int) []*float64 {
	out := make([]*float64, len(values))
	alpha := 2.0 / float64(span+1)
	var ema *float64
	for i, v := range values {
		if v == nil {
			if ema != nil {
				e := *ema
				out[i] = &e
			}
			continue
		}
		if ema == nil {
			seed := *v
			ema = &seed
		} else {
			*ema += alpha * (*v - *ema)
		}
		e := *ema
		out[i] = &e
	}
	return out
}

// wilderRSI returns the relative strength index over period using Wilder
// smoothing (alpha = 1/period) of gains and losses. Smoothing starts at the
// first price change and RSI is reported once period changes have been seen.
// A zero average loss yields 100.
func wilderRSI(values []float64, period int) []*float64 {
	out := make([]*float64, len(values))
	if len(values) < 2 || period <= 0 {
		return out
	}
	alpha := 1.0 / float64(period)
	var avgGain, avgLoss float64
	for i := 1; i < len(values); i++ {
		change := values[i] - values[i-1]
		gain := math.Max(change, 0)
		loss := math.Max(-change, 0)
		if i == 1 {
			avgGain, avgLoss = gain, loss
		} else {
			avgGain += alpha * (gain - avgGain)
			avgLoss += alpha * (loss - avgLoss)
		}
		if i < period {
			continue
		}
		rsi := 100.0
		if avgLoss != 0 {
			rsi = 100 - 100/(1+avgGain/avgLoss)
		}
		out[i] = &rsi
	}
	return out
}
