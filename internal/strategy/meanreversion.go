package strategy

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// MeanReversionConfig holds the tunable parameters of the BB+RSI mean
// reversion strategy, per spec §4.5.
type MeanReversionConfig struct {
	RSIOverbought    float64
	RSIOversold      float64
	TakeProfitAtMean bool
	StopLossPct      float64
	BalanceFraction  float64 // fraction of balance to size the entry
}

func DefaultMeanReversionConfig() MeanReversionConfig {
	return MeanReversionConfig{
		RSIOverbought:    70,
		RSIOversold:      30,
		TakeProfitAtMean: true,
		StopLossPct:      0.02,
		BalanceFraction:  0.1,
	}
}

// MeanReversion implements the Mean Reversion (BB+RSI) strategy of spec
// §4.5, adapted from the teacher's BollingerStrategy (bollinger.go) with
// RSI confirmation and confidence scoring added.
type MeanReversion struct {
	mu     sync.Mutex
	id     string
	cfg    MeanReversionConfig
	entry  decimal.Decimal
	inLong bool
}

func NewMeanReversion(id string, cfg MeanReversionConfig) *MeanReversion {
	return &MeanReversion{id: id, cfg: cfg}
}

func (m *MeanReversion) ID() string   { return m.id }
func (m *MeanReversion) Type() string { return "mean_reversion" }

func (m *MeanReversion) GetConfig() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]any{
		"rsiOverbought":    m.cfg.RSIOverbought,
		"rsiOversold":      m.cfg.RSIOversold,
		"takeProfitAtMean": m.cfg.TakeProfitAtMean,
		"stopLossPct":      m.cfg.StopLossPct,
		"balanceFraction":  m.cfg.BalanceFraction,
	}
}

func (m *MeanReversion) UpdateParams(params map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := params["rsiOverbought"].(float64); ok {
		m.cfg.RSIOverbought = v
	}
	if v, ok := params["rsiOversold"].(float64); ok {
		m.cfg.RSIOversold = v
	}
	if v, ok := params["takeProfitAtMean"].(bool); ok {
		m.cfg.TakeProfitAtMean = v
	}
	if v, ok := params["stopLossPct"].(float64); ok {
		m.cfg.StopLossPct = v
	}
	if v, ok := params["balanceFraction"].(float64); ok {
		m.cfg.BalanceFraction = v
	}
	return nil
}

// GenerateSignal implements the entry/exit rules of spec §4.5: entry short
// if price>bb.upper && rsi>rsiOverbought; entry long if price<bb.lower &&
// rsi<rsiOversold; exit at bb.middle if takeProfitAtMean, or at the stop
// entry*(1±stopLossPct).
func (m *MeanReversion) GenerateSignal(ctx MarketContext) (Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bb := ctx.Indicators.Bollinger
	rsi := ctx.Indicators.RSI14
	price := decimal.NewFromFloat(ctx.Price)

	hold := Signal{StrategyID: m.id, Pair: ctx.Pair, Action: ActionHold, Timestamp: ctx.Timestamp}

	if m.entry.IsZero() {
		switch {
		case ctx.Price > bb.Upper && rsi > m.cfg.RSIOverbought:
			m.entry = price
			m.inLong = false
			return m.signal(ctx, ActionSell, confidence(rsi, m.cfg.RSIOverbought, ctx.Price, bb.Upper, true),
				fmt.Sprintf("price %.4f above bb.upper %.4f, rsi %.1f overbought", ctx.Price, bb.Upper, rsi)), nil
		case ctx.Price < bb.Lower && rsi < m.cfg.RSIOversold:
			m.entry = price
			m.inLong = true
			return m.signal(ctx, ActionBuy, confidence(rsi, m.cfg.RSIOversold, ctx.Price, bb.Lower, false),
				fmt.Sprintf("price %.4f below bb.lower %.4f, rsi %.1f oversold", ctx.Price, bb.Lower, rsi)), nil
		}
		return hold, nil
	}

	// Manage an open position: take-profit at the mean, or stop loss.
	stop := m.stopPrice()
	if m.inLong {
		if m.cfg.TakeProfitAtMean && ctx.Price >= bb.Middle {
			m.entry = decimal.Zero
			return m.signal(ctx, ActionSell, 0.9, "take-profit at bb.middle"), nil
		}
		if price.LessThanOrEqual(stop) {
			m.entry = decimal.Zero
			return m.signal(ctx, ActionSell, 1.0, "stop loss"), nil
		}
	} else {
		if m.cfg.TakeProfitAtMean && ctx.Price <= bb.Middle {
			m.entry = decimal.Zero
			return m.signal(ctx, ActionBuy, 0.9, "take-profit at bb.middle"), nil
		}
		if price.GreaterThanOrEqual(stop) {
			m.entry = decimal.Zero
			return m.signal(ctx, ActionBuy, 1.0, "stop loss"), nil
		}
	}
	return hold, nil
}

func (m *MeanReversion) stopPrice() decimal.Decimal {
	one := decimal.NewFromInt(1)
	pct := decimal.NewFromFloat(m.cfg.StopLossPct)
	if m.inLong {
		return m.entry.Mul(one.Sub(pct))
	}
	return m.entry.Mul(one.Add(pct))
}

func (m *MeanReversion) signal(ctx MarketContext, action Action, confidence float64, reason string) Signal {
	return Signal{
		StrategyID: m.id,
		Pair:       ctx.Pair,
		Action:     action,
		Amount:     decimal.NewFromFloat(m.cfg.BalanceFraction),
		Price:      decimal.NewFromFloat(ctx.Price),
		Confidence: confidence,
		Reason:     reason,
		Timestamp:  ctx.Timestamp,
	}
}

// confidence blends RSI extremity and band distance, clamped to [0.5,1],
// per spec §4.5.
func confidence(rsi, threshold, price, band float64, overbought bool) float64 {
	rsiExtremity := 0.0
	if overbought {
		rsiExtremity = (rsi - threshold) / (100 - threshold)
	} else {
		rsiExtremity = (threshold - rsi) / threshold
	}
	bandDistance := 0.0
	if band != 0 {
		bandDistance = absFloat(price-band) / absFloat(band)
	}
	c := 0.5 + 0.25*rsiExtremity + 0.25*bandDistance
	if c < 0.5 {
		c = 0.5
	}
	if c > 1 {
		c = 1
	}
	return c
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
