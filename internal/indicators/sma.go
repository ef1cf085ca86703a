// Package indicators computes the technical indicators strategies read out
// of a market context: SMA, EMA, Wilder RSI and Bollinger Bands, per spec
// §4.5. Formulas follow the teacher's internal/indicators package
// (ma.go/rsi.go/engine.go); this rewrite replaces the teacher's simplified
// RSI (no Wilder smoothing) with the Wilder-averaged version the spec
// requires and adds EMA/Bollinger, which the teacher did not have.
package indicators

import "math"

// SMA is the arithmetic mean of the last period values of values. Returns 0
// if there are fewer than period samples.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	sum := 0.0
	for i := len(values) - period; i < len(values); i++ {
		sum += values[i]
	}
	return sum / float64(period)
}

// StdDev is the population standard deviation of the last period values.
func StdDev(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	mean := SMA(values, period)
	window := values[len(values)-period:]
	var sumSq float64
	for _, v := range window {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(period))
}
