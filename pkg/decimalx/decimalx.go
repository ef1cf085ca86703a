// Package decimalx holds shared decimal helpers used across the trading
// core so every component agrees on rounding and zero-value semantics.
package decimalx

import "github.com/shopspring/decimal"

// Zero is the canonical zero value, used instead of decimal.Decimal{} so
// comparisons via Equal are unambiguous even before any arithmetic runs.
var Zero = decimal.NewFromInt(0)

// Scale used when persisting decimals as fixed-point integers (columnar
// store, sqlite REAL columns round-trip through float64 instead).
const FixedPointScale = 1e8

// ToFixedPoint converts a decimal to a scaled int64 for compact on-disk
// storage in the columnar candle store.
func ToFixedPoint(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromFloat(FixedPointScale)).Round(0).IntPart()
}

// FromFixedPoint is the inverse of ToFixedPoint.
func FromFixedPoint(v int64) decimal.Decimal {
	return decimal.NewFromInt(v).Div(decimal.NewFromFloat(FixedPointScale))
}

// WeightedAverage returns (Σ value·weight)/(Σ weight), or zero if the total
// weight is zero. Used for VWAP and average-entry-price calculations.
func WeightedAverage(values, weights []decimal.Decimal) decimal.Decimal {
	totalWeight := Zero
	weightedSum := Zero
	for i := range values {
		weightedSum = weightedSum.Add(values[i].Mul(weights[i]))
		totalWeight = totalWeight.Add(weights[i])
	}
	if totalWeight.IsZero() {
		return Zero
	}
	return weightedSum.Div(totalWeight)
}

// Max returns the larger of two decimals.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Min returns the smaller of two decimals.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
