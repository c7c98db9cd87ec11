// Package indicators computes the technical series fed into market snapshots.
// Every function returns a slice aligned with its input; positions inside the
// warm-up window hold NaN.
package indicators

import "math"

// Candle is the OHLCV input for range-based indicators.
type Candle struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// SMA is the simple moving average.
func SMA(values []float64, period int) []float64 {
	if period <= 0 {
		return []float64{}
	}
	out := nanSeries(len(values))
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA seeds with the SMA of the first complete window of non-NaN values and
// carries the previous value forward across NaN gaps.
func EMA(values []float64, period int) []float64 {
	if period <= 0 {
		return []float64{}
	}
	out := nanSeries(len(values))
	seedAt := -1
	for i := period - 1; i < len(values) && seedAt < 0; i++ {
		sum, ok := 0.0, true
		for _, v := range values[i-period+1 : i+1] {
			if math.IsNaN(v) {
				ok = false
				break
			}
			sum += v
		}
		if ok {
			seedAt = i
			out[i] = sum / float64(period)
		}
	}
	if seedAt < 0 {
		return out
	}
	k := 2.0 / float64(period+1)
	for i := seedAt + 1; i < len(values); i++ {
		if math.IsNaN(values[i]) {
			out[i] = out[i-1]
			continue
		}
		out[i] = out[i-1] + (values[i]-out[i-1])*k
	}
	return out
}

// MACD returns the 12/26 MACD line, its 9 period signal and the histogram.
func MACD(closes []float64) (line, signal, hist []float64) {
	fast, slow := EMA(closes, 12), EMA(closes, 26)
	line = nanSeries(len(closes))
	for i := range closes {
		if !math.IsNaN(fast[i]) && !math.IsNaN(slow[i]) {
			line[i] = fast[i] - slow[i]
		}
	}
	signal = EMA(line, 9)
	hist = nanSeries(len(closes))
	for i := range closes {
		if !math.IsNaN(line[i]) && !math.IsNaN(signal[i]) {
			hist[i] = line[i] - signal[i]
		}
	}
	return line, signal, hist
}

// RSI uses Wilder smoothing.
func RSI(closes []float64, period int) []float64 {
	if period <= 0 {
		return []float64{}
	}
	out := nanSeries(len(closes))
	if len(closes) <= period {
		return out
	}
	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := closes[i] - closes[i-1]
		gain += math.Max(d, 0)
		loss += math.Max(-d, 0)
	}
	gain /= float64(period)
	loss /= float64(period)
	out[period] = strength(gain, loss)
	for i := period + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		gain = (gain*float64(period-1) + math.Max(d, 0)) / float64(period)
		loss = (loss*float64(period-1) + math.Max(-d, 0)) / float64(period)
		out[i] = strength(gain, loss)
	}
	return out
}

func strength(gain, loss float64) float64 {
	switch {
	case gain == 0 && loss == 0:
		return 50
	case loss == 0:
		return 100
	default:
		return 100 - 100/(1+gain/loss)
	}
}

// ATR is the Wilder-smoothed average true range.
func ATR(candles []Candle, period int) []float64 {
	if period <= 0 {
		return []float64{}
	}
	out := nanSeries(len(candles))
	if len(candles) < period {
		return out
	}
	tr := make([]float64, len(candles))
	for i, c := range candles {
		tr[i] = c.High - c.Low
		if i > 0 {
			prev := candles[i-1].Close
			tr[i] = math.Max(tr[i], math.Max(math.Abs(c.High-prev), math.Abs(c.Low-prev)))
		}
	}
	sum := 0.0
	for _, v := range tr[:period] {
		sum += v
	}
	out[period-1] = sum / float64(period)
	for i := period; i < len(tr); i++ {
		out[i] = (out[i-1]*float64(period-1) + tr[i]) / float64(period)
	}
	return out
}

// Last returns the most recent non-NaN value, or 0 when there is none.
func Last(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) {
			return series[i]
		}
	}
	return 0
}

// Tail returns up to n trailing values with NaN replaced by 0.
func Tail(series []float64, n int) []float64 {
	if n <= 0 || len(series) == 0 {
		return []float64{}
	}
	if n > len(series) {
		n = len(series)
	}
	out := make([]float64, n)
	for i, v := range series[len(series)-n:] {
		if !math.IsNaN(v) {
			out[i] = v
		}
	}
	return out
}

// PercentChange is (to-from)/from*100, zero when from is not positive.
func PercentChange(from, to float64) float64 {
	if from <= 0 {
		return 0
	}
	return (to - from) / from * 100
}
