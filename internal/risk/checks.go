package risk

import (
	"fmt"
	"math"
	"time"
)

// TradeParams is the order-shaped input to checkTrade, per spec §4.6.
type TradeParams struct {
	Pair             string
	Side             string // buy or sell
	Amount           float64
	Price            float64
	ExpectedPrice    float64 // for slippage checks; zero means skip
	ExecutionPrice   float64 // filled price, for slippage checks; zero means skip
	MarketPrice      float64 // for price-deviation checks; zero means skip
}

// Portfolio is the account-shaped input to checkTrade, per spec §4.6.
type Portfolio struct {
	InitialEquity   float64
	EquityNow       float64
	PortfolioValue  float64
	CurrentExposure float64
	AssetValues     map[string]float64 // current notional per asset
}

func (p TradeParams) value() float64 { return p.Amount * p.Price }

// CheckResult is one check's verdict, per spec §4.6.
type CheckResult struct {
	Name    string
	Allowed bool
	Reason  string
	Metrics map[string]float64
}

func allow(name string, metrics map[string]float64) CheckResult {
	return CheckResult{Name: name, Allowed: true, Metrics: metrics}
}

func deny(name, reason string, metrics map[string]float64) CheckResult {
	return CheckResult{Name: name, Allowed: false, Reason: reason, Metrics: metrics}
}

// checkCircuitBreaker is check 1: denies while the breaker is tripped, per
// spec §4.6's "now - triggeredAt < duration -> deny; else clear".
func checkCircuitBreaker(s *userState) CheckResult {
	if s.circuitBreakerActive() {
		return deny("circuitBreaker", "circuit breaker active", nil)
	}
	s.clearCircuitBreaker()
	return allow("circuitBreaker", nil)
}

// checkDailyLoss is check 2.
func checkDailyLoss(s *userState, cfg Config, p Portfolio) CheckResult {
	loss := math.Abs(math.Min(0, s.DailyRealizedPnL))
	limit := p.InitialEquity * cfg.MaxDailyLoss
	metrics := map[string]float64{"dailyLoss": loss, "limit": limit}
	if loss >= limit {
		return deny("dailyLoss", fmt.Sprintf("daily loss %.2f >= limit %.2f", loss, limit), metrics)
	}
	return allow("dailyLoss", metrics)
}

// checkDailyTradeCount is check 3.
func checkDailyTradeCount(s *userState, cfg Config) CheckResult {
	metrics := map[string]float64{"count": float64(s.DailyTradeCount), "limit": float64(cfg.MaxDailyTrades)}
	if s.DailyTradeCount >= cfg.MaxDailyTrades {
		return deny("dailyTradeCount", "daily trade count limit reached", metrics)
	}
	return allow("dailyTradeCount", metrics)
}

// checkDailyVolume is check 4.
func checkDailyVolume(s *userState, cfg Config, trade TradeParams) CheckResult {
	projected := s.DailyVolume + trade.value()
	metrics := map[string]float64{"projected": projected, "limit": cfg.MaxDailyVolume}
	if projected > cfg.MaxDailyVolume {
		return deny("dailyVolume", "daily volume limit exceeded", metrics)
	}
	return allow("dailyVolume", metrics)
}

// checkPositionSize is check 5.
func checkPositionSize(cfg Config, trade TradeParams, p Portfolio) CheckResult {
	if p.PortfolioValue <= 0 {
		return allow("positionSize", nil)
	}
	ratio := trade.value() / p.PortfolioValue
	metrics := map[string]float64{"ratio": ratio, "limit": cfg.MaxPositionSize}
	if ratio > cfg.MaxPositionSize {
		return deny("positionSize", "position size exceeds portfolio fraction limit", metrics)
	}
	return allow("positionSize", metrics)
}

// checkTotalExposure is check 6.
func checkTotalExposure(cfg Config, trade TradeParams, p Portfolio) CheckResult {
	if p.PortfolioValue <= 0 {
		return allow("totalExposure", nil)
	}
	ratio := (p.CurrentExposure + trade.value()) / p.PortfolioValue
	metrics := map[string]float64{"ratio": ratio, "limit": cfg.MaxTotalExposure}
	if ratio > cfg.MaxTotalExposure {
		return deny("totalExposure", "total exposure exceeds portfolio fraction limit", metrics)
	}
	return allow("totalExposure", metrics)
}

// checkAssetConcentration is check 7.
func checkAssetConcentration(cfg Config, trade TradeParams, p Portfolio) CheckResult {
	if p.PortfolioValue <= 0 {
		return allow("assetConcentration", nil)
	}
	current := p.AssetValues[trade.Pair]
	ratio := (current + trade.value()) / p.PortfolioValue
	metrics := map[string]float64{"ratio": ratio, "limit": cfg.MaxConcentration}
	if ratio > cfg.MaxConcentration {
		return deny("assetConcentration", "asset concentration exceeds limit", metrics)
	}
	return allow("assetConcentration", metrics)
}

// checkCooldown is check 8.
func checkCooldown(s *userState, cfg Config) CheckResult {
	if s.LastTradeAt.IsZero() {
		return allow("cooldown", nil)
	}
	elapsed := time.Since(s.LastTradeAt)
	metrics := map[string]float64{"elapsedMs": float64(elapsed.Milliseconds()), "cooldownMs": float64(cfg.TradeCooldown.Milliseconds())}
	if elapsed < cfg.TradeCooldown {
		return deny("cooldown", "trade cooldown has not elapsed", metrics)
	}
	return allow("cooldown", metrics)
}

// checkDrawdown is check 9: updates the running peak equity and denies if
// the drawdown from peak exceeds the configured percentage.
func checkDrawdown(s *userState, cfg Config, p Portfolio) CheckResult {
	if p.EquityNow > s.PeakEquity {
		s.PeakEquity = p.EquityNow
	}
	if s.PeakEquity <= 0 {
		return allow("drawdown", nil)
	}
	drawdownPct := (s.PeakEquity - p.EquityNow) / s.PeakEquity * 100
	metrics := map[string]float64{"drawdownPct": drawdownPct, "limit": cfg.MaxDrawdownPct}
	if drawdownPct >= cfg.MaxDrawdownPct {
		return deny("drawdown", fmt.Sprintf("drawdown %.2f%% exceeds limit %.2f%%", drawdownPct, cfg.MaxDrawdownPct), metrics)
	}
	return allow("drawdown", metrics)
}

// checkConsecutiveLossesSlippageDeviation is check 10, combining three
// related guards per spec §4.6: consecutive loss streak, execution
// slippage against the expected fill price, and price deviation from the
// current market price.
func checkConsecutiveLossesSlippageDeviation(s *userState, cfg Config, trade TradeParams) CheckResult {
	metrics := map[string]float64{"consecutiveLosses": float64(s.ConsecutiveLosses)}
	if s.ConsecutiveLosses >= cfg.MaxConsecutiveLosses {
		return deny("consecutiveLosses", "consecutive loss streak limit reached", metrics)
	}

	if trade.ExpectedPrice > 0 && trade.ExecutionPrice > 0 {
		slippage := math.Abs(trade.ExecutionPrice-trade.ExpectedPrice) / trade.ExpectedPrice
		metrics["slippagePct"] = slippage
		if slippage > cfg.MaxSlippagePct {
			return deny("slippage", "execution slippage exceeds limit", metrics)
		}
	}

	if trade.MarketPrice > 0 {
		deviation := math.Abs(trade.Price-trade.MarketPrice) / trade.MarketPrice
		metrics["priceDeviationPct"] = deviation
		if deviation > cfg.MaxPriceDeviationPct {
			return deny("priceDeviation", "order price deviates too far from market price", metrics)
		}
	}

	return allow("consecutiveLossesSlippageDeviation", metrics)
}

// circuitBreakerTrips returns true when a failed check's name belongs to
// the set that trips the breaker, per spec §4.6.
func circuitBreakerTrips(name string) bool {
	switch name {
	case "drawdown", "consecutiveLosses", "dailyLoss", "dailyTradeCount", "dailyVolume":
		return true
	}
	return false
}
