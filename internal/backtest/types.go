// Package backtest implements the deterministic backtest engine of spec
// §4.10: replay a candle series through a strategy, execute signals against
// a simulated balance/holdings ledger with slippage and fee models, and
// summarize performance. Grounded on the cryptofunk pkg/backtest Engine
// (time-step loop shape, position lifecycle, equity-curve/drawdown
// bookkeeping) and the cexoms internal/backtest engine (decimal-based
// ledger, Sharpe-from-returns computation), adapted from float64 to
// decimal.Decimal and from a multi-symbol portfolio to the spec's
// single-pair replay driven by the shared strategy.Strategy contract.
package backtest

import (
	"time"

	"github.com/shopspring/decimal"

	"tradingcore/internal/strategy"
)

// SlippageModel selects how executed price deviates from the candle close,
// per spec §4.10.
type SlippageModel string

const (
	SlippageNone    SlippageModel = "none"
	SlippageFixed   SlippageModel = "fixed"
	SlippageDynamic SlippageModel = "dynamic"
)

// Config is the backtest configuration of spec §6 ("Backtest:" keys).
type Config struct {
	InitialBalance decimal.Decimal
	MakerFee       decimal.Decimal
	TakerFee       decimal.Decimal
	SlippageModel  SlippageModel
	SlippageBps    float64
}

func DefaultConfig() Config {
	return Config{
		InitialBalance: decimal.NewFromInt(10000),
		MakerFee:       decimal.NewFromFloat(0.001),
		TakerFee:       decimal.NewFromFloat(0.002),
		SlippageModel:  SlippageNone,
		SlippageBps:    5,
	}
}

// Trade is one executed fill during a backtest run.
type Trade struct {
	Timestamp int64
	Side      strategy.Action
	Amount    decimal.Decimal
	Price     decimal.Decimal
	Fee       decimal.Decimal
	Reason    string
}

// EquityPoint is one sample of the equity curve, per spec §4.10.
type EquityPoint struct {
	Timestamp int64
	Equity    decimal.Decimal
}

// Drawdown is one sample of the drawdown series, per spec §4.10.
type Drawdown struct {
	Timestamp   int64
	Drawdown    decimal.Decimal
	DrawdownPct float64
}

// Summary is the result shape of spec §4.10.
type Summary struct {
	InitialBalance decimal.Decimal
	FinalBalance   decimal.Decimal
	TotalReturnPct float64
	TotalTrades    int
	Winning        int
	Losing         int
	WinRate        float64
	AvgWin         decimal.Decimal
	AvgLoss        decimal.Decimal
	ProfitFactor   float64
	MaxDrawdown    decimal.Decimal
	MaxDrawdownPct float64
	SharpeRatio    float64
	DurationMS     int64

	Trades      []Trade
	EquityCurve []EquityPoint
	Signals     []strategy.Signal
	Drawdowns   []Drawdown
}

// lot is one unmatched buy used for FIFO win/loss pairing, per spec §8's
// "Trade pairing" testable property.
type lot struct {
	amount decimal.Decimal
	price  decimal.Decimal
}

func durationSince(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
