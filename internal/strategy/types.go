// Package strategy implements the strategy runtime of spec §4.5: the
// shared Strategy contract, a non-reentrant scheduler, and the three
// built-in strategies (mean reversion, momentum, grid). The contract and
// per-instance state machine follow the teacher's internal/strategy
// package (types.go, bollinger.go), generalized from OnTick(symbol,
// price, ind) to generateSignal(MarketContext) so a strategy can reason
// about the full indicator set the spec requires.
package strategy

import (
	"time"

	"github.com/shopspring/decimal"
)

// Action is a strategy's trade decision.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Signal is the decision emitted by generateSignal, published on the event
// bus as trading:strategySignal for actions other than hold.
type Signal struct {
	StrategyID string
	UserID     string
	Pair       string
	Action     Action
	Amount     decimal.Decimal
	Price      decimal.Decimal
	Confidence float64
	Reason     string
	Timestamp  int64
}

// IndicatorSet is the indicators{...} object of the marketCtx spec'd in
// §4.5: sma20, sma50, ema12, ema26, rsi14 and the Bollinger bands.
type IndicatorSet struct {
	SMA20     float64
	SMA50     float64
	EMA12     float64
	EMA26     float64
	RSI14     float64
	Bollinger BollingerBands
}

// BollingerBands mirrors indicators.Bollinger without importing the
// internal/indicators package name into every strategy file's field tags.
type BollingerBands struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// Candle is the OHLCV shape strategies see in MarketContext.RecentCandles.
type Candle struct {
	Timestamp int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// MarketContext is the snapshot passed to generateSignal, per spec §4.5.
type MarketContext struct {
	Timestamp     int64
	Pair          string
	Price         float64
	Open          float64
	High          float64
	Low           float64
	Close         float64
	Volume        float64
	RecentCandles []Candle
	Indicators    IndicatorSet
}

// State is a strategy instance's lifecycle state, per spec §4.5:
// inactive -> active -> {paused|inactive|error}; paused -> active|inactive;
// error is terminal until reset by deactivate+activate.
type State string

const (
	StateInactive State = "inactive"
	StateActive   State = "active"
	StatePaused   State = "paused"
	StateError    State = "error"
)

// Strategy is the contract every built-in strategy implements.
type Strategy interface {
	ID() string
	Type() string
	GenerateSignal(ctx MarketContext) (Signal, error)
	UpdateParams(params map[string]any) error
	GetConfig() map[string]any
}

// TradeRecord is what the coordinator hands a strategy after one of its
// signals results in a filled order, per spec §4.9's
// "orderFilled -> ... + strategy.recordTrade".
type TradeRecord struct {
	Pair        string
	Side        Action
	Amount      decimal.Decimal
	Price       decimal.Decimal
	Fee         decimal.Decimal
	RealizedPnL decimal.Decimal
	Timestamp   int64
}

// TradeRecorder is an optional capability a Strategy implementation may
// satisfy to react to its own fills (e.g. resetting trailing-stop state).
// None of the three built-ins need it today; recordTrade becomes a no-op
// for strategies that don't implement it.
type TradeRecorder interface {
	RecordTrade(t TradeRecord)
}

// transition reports whether moving from s to next is legal under the
// state machine above.
func (s State) transition(next State) bool {
	switch s {
	case StateInactive:
		return next == StateActive
	case StateActive:
		return next == StatePaused || next == StateInactive || next == StateError
	case StatePaused:
		return next == StateActive || next == StateInactive
	case StateError:
		return false // only deactivate+activate (two transitions) clears it
	}
	return false
}

func nowMillis() int64 { return time.Now().UnixMilli() }
