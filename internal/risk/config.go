package risk

import "time"

// Config holds the ten-check thresholds of spec §4.6. Grounded on the
// teacher's RiskConfig (internal/risk/types.go), trimmed to exactly the
// parameters the spec's checks reference and renamed to match the spec's
// own vocabulary.
type Config struct {
	MaxDailyLoss          float64 // fraction of initial equity, e.g. 0.05
	MaxDailyTrades        int
	MaxDailyVolume        float64
	MaxPositionSize       float64 // fraction of portfolio value
	MaxTotalExposure      float64 // fraction of portfolio value
	MaxConcentration      float64 // fraction of portfolio value, per asset
	TradeCooldown         time.Duration
	MaxDrawdownPct        float64
	MaxConsecutiveLosses  int
	MaxSlippagePct        float64
	MaxPriceDeviationPct  float64
	CircuitBreakerDuration time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxDailyLoss:           0.05,
		MaxDailyTrades:         50,
		MaxDailyVolume:         100000.0,
		MaxPositionSize:        0.10,
		MaxTotalExposure:       0.60,
		MaxConcentration:       0.25,
		TradeCooldown:          2 * time.Second,
		MaxDrawdownPct:         20.0,
		MaxConsecutiveLosses:   5,
		MaxSlippagePct:         0.01,
		MaxPriceDeviationPct:   0.02,
		CircuitBreakerDuration: time.Hour,
	}
}
