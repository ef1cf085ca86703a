package backtest

import (
	"context"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradingcore/internal/indicators"
	"tradingcore/internal/strategy"
)

const indicatorWindow = 20

// Engine replays a candle series through a strategy, per spec §4.10.
// Grounded on cryptofunk's Engine.Step/Run loop; state is reset on every
// Run so repeated runs with the same inputs are deterministic, per spec §8.
type Engine struct {
	cfg  Config
	log  *zap.Logger
	pair string
}

func NewEngine(cfg Config, pair string, log *zap.Logger) *Engine {
	return &Engine{cfg: cfg, log: log, pair: pair}
}

// Run replays candles through strat, per spec §4.10's execution model.
func (e *Engine) Run(ctx context.Context, strat strategy.Strategy, candles []strategy.Candle) (Summary, error) {
	start := time.Now()

	balance := e.cfg.InitialBalance
	holdings := decimal.Zero
	peak := e.cfg.InitialBalance

	var trades []Trade
	var equityCurve []EquityPoint
	var signals []strategy.Signal
	var drawdowns []Drawdown
	var lots []lot

	winning, losing := 0, 0
	avgWin, avgLoss := decimal.Zero, decimal.Zero
	var closes []float64

	for i, c := range candles {
		select {
		case <-ctx.Done():
			return Summary{}, ctx.Err()
		default:
		}

		closes = append(closes, c.Close)
		mctx := e.buildContext(c, closes, candles[:i+1])

		signal, err := strat.GenerateSignal(mctx)
		if err != nil {
			if e.log != nil {
				e.log.Warn("backtest: strategy error", zap.Error(err), zap.Int("index", i))
			}
		} else if signal.Action != strategy.ActionHold {
			signals = append(signals, signal)
			balance, holdings, lots = e.execute(signal, c.Close, balance, holdings, lots, &trades, &winning, &losing, &avgWin, &avgLoss, closes)
		}

		equity := balance.Add(holdings.Mul(decimal.NewFromFloat(c.Close)))
		equityCurve = append(equityCurve, EquityPoint{Timestamp: c.Timestamp, Equity: equity})

		if equity.GreaterThan(peak) {
			peak = equity
		}
		drawdown := peak.Sub(equity)
		drawdownPct := 0.0
		if peak.IsPositive() {
			pct, _ := drawdown.Div(peak).Float64()
			drawdownPct = pct * 100
		}
		drawdowns = append(drawdowns, Drawdown{Timestamp: c.Timestamp, Drawdown: drawdown, DrawdownPct: drawdownPct})
	}

	if holdings.IsPositive() && len(candles) > 0 {
		last := candles[len(candles)-1]
		closeSignal := strategy.Signal{Pair: e.pair, Action: strategy.ActionSell, Amount: decimal.NewFromInt(1), Price: decimal.NewFromFloat(last.Close), Reason: "end of backtest"}
		balance, holdings, lots = e.execute(closeSignal, last.Close, balance, holdings, lots, &trades, &winning, &losing, &avgWin, &avgLoss, closes)
		equityCurve[len(equityCurve)-1] = EquityPoint{Timestamp: last.Timestamp, Equity: balance}
	}

	summary := e.summarize(balance, trades, equityCurve, drawdowns, winning, losing, avgWin, avgLoss)
	summary.Signals = signals
	summary.Drawdowns = drawdowns
	summary.DurationMS = durationSince(start)
	return summary, nil
}

// buildContext constructs the marketCtx strategies see, with indicators
// derived from the full close history seen so far (matching
// internal/market.Aggregator.Snapshot's convention) and RecentCandles
// limited to the prior indicatorWindow candles, per spec §4.10.
func (e *Engine) buildContext(c strategy.Candle, closes []float64, history []strategy.Candle) strategy.MarketContext {
	bb := indicators.BollingerBands(closes, 20, 2.0)

	windowStart := 0
	if len(closes) > indicatorWindow {
		windowStart = len(closes) - indicatorWindow
	}

	return strategy.MarketContext{
		Timestamp: c.Timestamp,
		Pair:      e.pair,
		Price:     c.Close,
		Open:      c.Open,
		High:      c.High,
		Low:       c.Low,
		Close:     c.Close,
		Volume:    c.Volume,
		RecentCandles: history[windowStart:],
		Indicators: strategy.IndicatorSet{
			SMA20: indicators.SMA(closes, 20),
			SMA50: indicators.SMA(closes, 50),
			EMA12: indicators.EMA(closes, 12),
			EMA26: indicators.EMA(closes, 26),
			RSI14: indicators.RSI(closes, 14),
			Bollinger: strategy.BollingerBands{
				Upper: bb.Upper, Middle: bb.Middle, Lower: bb.Lower,
			},
		},
	}
}

// execute applies one signal's amount normalization, slippage and fee
// model, per spec §4.10. Insufficient balance/holdings silently skips.
func (e *Engine) execute(
	signal strategy.Signal, closePrice float64,
	balance, holdings decimal.Decimal, lots []lot,
	trades *[]Trade, winning, losing *int, avgWin, avgLoss *decimal.Decimal,
	closes []float64,
) (decimal.Decimal, decimal.Decimal, []lot) {
	execPrice := e.applySlippage(signal.Action, closePrice, closes)
	fee := e.cfg.TakerFee

	switch signal.Action {
	case strategy.ActionBuy:
		amount := normalizeBuyAmount(signal.Amount, balance, execPrice)
		if !amount.IsPositive() {
			return balance, holdings, lots
		}
		cost := amount.Mul(execPrice)
		feeAmt := cost.Mul(fee)
		total := cost.Add(feeAmt)
		if total.GreaterThan(balance) {
			if e.log != nil {
				e.log.Debug("backtest: insufficient balance, skipping buy")
			}
			return balance, holdings, lots
		}

		balance = balance.Sub(total)
		holdings = holdings.Add(amount)
		lots = append(lots, lot{amount: amount, price: execPrice})
		*trades = append(*trades, Trade{Timestamp: signal.Timestamp, Side: strategy.ActionBuy, Amount: amount, Price: execPrice, Fee: feeAmt, Reason: signal.Reason})

	case strategy.ActionSell:
		amount := normalizeSellAmount(signal.Amount, holdings)
		if !amount.IsPositive() || amount.GreaterThan(holdings) {
			if e.log != nil {
				e.log.Debug("backtest: insufficient holdings, skipping sell")
			}
			return balance, holdings, lots
		}
		proceeds := amount.Mul(execPrice)
		feeAmt := proceeds.Mul(fee)
		balance = balance.Add(proceeds).Sub(feeAmt)
		holdings = holdings.Sub(amount)

		realized, remaining := matchFIFO(lots, amount, execPrice)
		lots = remaining
		if realized.Sub(feeAmt).IsPositive() {
			*winning++
			*avgWin = runningAverage(*avgWin, realized.Sub(feeAmt), *winning)
		} else {
			*losing++
			*avgLoss = runningAverage(*avgLoss, realized.Sub(feeAmt).Abs(), *losing)
		}
		*trades = append(*trades, Trade{Timestamp: signal.Timestamp, Side: strategy.ActionSell, Amount: amount, Price: execPrice, Fee: feeAmt, Reason: signal.Reason})
	}

	return balance, holdings, lots
}

// normalizeBuyAmount implements spec §4.10's amount normalization for buys:
// amount in (0,1] is a fraction of current balance.
func normalizeBuyAmount(amount, balance, execPrice decimal.Decimal) decimal.Decimal {
	if amount.IsPositive() && amount.LessThanOrEqual(decimal.NewFromInt(1)) {
		if !execPrice.IsPositive() {
			return decimal.Zero
		}
		return balance.Mul(amount).Div(execPrice)
	}
	return amount
}

// normalizeSellAmount mirrors normalizeBuyAmount for sells: a fractional
// amount sells that fraction of current holdings rather than of balance,
// since holdings (not balance) is what a sell can draw down.
func normalizeSellAmount(amount, holdings decimal.Decimal) decimal.Decimal {
	if amount.IsPositive() && amount.LessThanOrEqual(decimal.NewFromInt(1)) {
		return holdings.Mul(amount)
	}
	if amount.GreaterThan(holdings) {
		return holdings
	}
	return amount
}

// applySlippage implements spec §4.10's three slippage models against the
// adverse direction for each side.
func (e *Engine) applySlippage(side strategy.Action, closePrice float64, closes []float64) decimal.Decimal {
	target := decimal.NewFromFloat(closePrice)
	var slip float64

	switch e.cfg.SlippageModel {
	case SlippageFixed:
		slip = e.cfg.SlippageBps / 10000
	case SlippageDynamic:
		volatility := returnsStdDev(closes, indicatorWindow)
		slip = (e.cfg.SlippageBps / 10000) * (1 + volatility)
	default:
		slip = 0
	}

	slipDec := decimal.NewFromFloat(slip)
	if side == strategy.ActionBuy {
		return target.Mul(decimal.NewFromInt(1).Add(slipDec))
	}
	return target.Mul(decimal.NewFromInt(1).Sub(slipDec))
}

// returnsStdDev is the standard deviation of percentage returns over the
// last period closes, used as the dynamic slippage model's volatility term.
func returnsStdDev(closes []float64, period int) float64 {
	if len(closes) < period+1 {
		return 0
	}
	window := closes[len(closes)-period-1:]
	returns := make([]float64, 0, len(window)-1)
	for i := 1; i < len(window); i++ {
		if window[i-1] == 0 {
			continue
		}
		returns = append(returns, (window[i]-window[i-1])/window[i-1])
	}
	return indicators.StdDev(returns, len(returns))
}

// matchFIFO consumes amount from lots in FIFO order, returning the realized
// P&L (exitPx-entryPx)*matchedAmount and the remaining unmatched lots, per
// spec §8's trade-pairing testable property.
func matchFIFO(lots []lot, amount, execPrice decimal.Decimal) (decimal.Decimal, []lot) {
	realized := decimal.Zero
	remaining := amount
	idx := 0
	for idx < len(lots) && remaining.IsPositive() {
		l := lots[idx]
		matched := l.amount
		if matched.GreaterThan(remaining) {
			matched = remaining
		}
		realized = realized.Add(execPrice.Sub(l.price).Mul(matched))
		l.amount = l.amount.Sub(matched)
		remaining = remaining.Sub(matched)
		if l.amount.IsZero() {
			idx++
		} else {
			lots[idx] = l
			break
		}
	}
	return realized, lots[idx:]
}

func runningAverage(avg, value decimal.Decimal, count int) decimal.Decimal {
	if count <= 1 {
		return value
	}
	n := decimal.NewFromInt(int64(count))
	return avg.Add(value.Sub(avg).Div(n))
}

// summarize computes the summary{} shape of spec §4.10, including the
// annualized Sharpe ratio from per-step percentage returns of the equity
// curve (factor √252, per spec §4.10).
func (e *Engine) summarize(finalBalance decimal.Decimal, trades []Trade, equityCurve []EquityPoint, drawdowns []Drawdown, winning, losing int, avgWin, avgLoss decimal.Decimal) Summary {
	totalReturnPct := 0.0
	if e.cfg.InitialBalance.IsPositive() {
		pct, _ := finalBalance.Sub(e.cfg.InitialBalance).Div(e.cfg.InitialBalance).Float64()
		totalReturnPct = pct * 100
	}

	totalTrades := len(trades)
	winRate := 0.0
	if winning+losing > 0 {
		winRate = float64(winning) / float64(winning+losing)
	}

	profitFactor := 0.0
	totalWin, _ := avgWin.Mul(decimal.NewFromInt(int64(winning))).Float64()
	totalLoss, _ := avgLoss.Mul(decimal.NewFromInt(int64(losing))).Float64()
	if totalLoss > 0 {
		profitFactor = totalWin / totalLoss
	} else if totalWin > 0 {
		profitFactor = math.Inf(1)
	}

	maxDrawdown := decimal.Zero
	maxDrawdownPct := 0.0
	for _, d := range drawdowns {
		if d.Drawdown.GreaterThan(maxDrawdown) {
			maxDrawdown = d.Drawdown
			maxDrawdownPct = d.DrawdownPct
		}
	}

	return Summary{
		InitialBalance: e.cfg.InitialBalance,
		FinalBalance:   finalBalance,
		TotalReturnPct: totalReturnPct,
		TotalTrades:    totalTrades,
		Winning:        winning,
		Losing:         losing,
		WinRate:        winRate,
		AvgWin:         avgWin,
		AvgLoss:        avgLoss,
		ProfitFactor:   profitFactor,
		MaxDrawdown:    maxDrawdown,
		MaxDrawdownPct: maxDrawdownPct,
		SharpeRatio:    sharpeRatio(equityCurve),
		Trades:         trades,
		EquityCurve:    equityCurve,
	}
}

// sharpeRatio is the annualized Sharpe ratio (factor √252) computed from
// per-step percentage returns of the equity curve, per spec §4.10.
func sharpeRatio(equityCurve []EquityPoint) float64 {
	if len(equityCurve) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(equityCurve)-1)
	for i := 1; i < len(equityCurve); i++ {
		prev, _ := equityCurve[i-1].Equity.Float64()
		curr, _ := equityCurve[i].Equity.Float64()
		if prev == 0 {
			continue
		}
		returns = append(returns, (curr-prev)/prev)
	}
	if len(returns) == 0 {
		return 0
	}

	mean := indicators.SMA(returns, len(returns))
	std := indicators.StdDev(returns, len(returns))
	if std == 0 {
		return 0
	}
	return (mean / std) * math.Sqrt(252)
}
