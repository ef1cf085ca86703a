package backtest

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradingcore/internal/strategy"
)

func decD(v string) decimal.Decimal {
	d, _ := decimal.NewFromString(v)
	return d
}

func linearCandles(n int, startPrice, endPrice float64) []strategy.Candle {
	candles := make([]strategy.Candle, n)
	step := (endPrice - startPrice) / float64(n-1)
	for i := 0; i < n; i++ {
		price := startPrice + step*float64(i)
		candles[i] = strategy.Candle{Timestamp: int64(i), Open: price, High: price, Low: price, Close: price, Volume: 1}
	}
	return candles
}

func TestRunOnAscendingSeriesProducesSingleWinningTrade(t *testing.T) {
	candles := linearCandles(60, 100, 160)
	strat := strategy.NewMomentum("m1", strategy.DefaultMomentumConfig())
	engine := NewEngine(DefaultConfig(), "BTC/USDT", nil)

	summary, err := engine.Run(context.Background(), strat, candles)
	require.NoError(t, err)

	assert.Greater(t, summary.TotalReturnPct, 0.0)
	assert.Equal(t, 1.0, summary.WinRate)
	assert.Equal(t, 0.0, summary.MaxDrawdownPct)
	assert.GreaterOrEqual(t, summary.TotalTrades, 2) // entry buy + forced close sell
}

func TestRunIsDeterministicAcrossRuns(t *testing.T) {
	candles := linearCandles(40, 50, 40) // descending; sell signals with no holdings are skipped
	cfg := DefaultConfig()

	run := func() Summary {
		strat := strategy.NewMomentum("m1", strategy.DefaultMomentumConfig())
		engine := NewEngine(cfg, "BTC/USDT", nil)
		summary, err := engine.Run(context.Background(), strat, candles)
		require.NoError(t, err)
		return summary
	}

	a := run()
	b := run()
	assert.True(t, a.FinalBalance.Equal(b.FinalBalance))
	assert.Equal(t, a.TotalTrades, b.TotalTrades)
	assert.Equal(t, len(a.EquityCurve), len(b.EquityCurve))
}

func TestMatchFIFOPairsSellAgainstEarliestUnmatchedBuy(t *testing.T) {
	lots := []lot{{amount: decD("1"), price: decD("100")}, {amount: decD("1"), price: decD("110")}}
	realized, remaining := matchFIFO(lots, decD("1"), decD("120"))

	assert.True(t, realized.Equal(decD("20"))) // matched the 100-priced lot first
	require.Len(t, remaining, 1)
	assert.True(t, remaining[0].price.Equal(decD("110")))
}

func TestNormalizeBuyAmountTreatsFractionAsBalanceShare(t *testing.T) {
	amount := normalizeBuyAmount(decD("0.1"), decD("1000"), decD("100"))
	assert.True(t, amount.Equal(decD("1"))) // 1000*0.1/100
}

func TestNormalizeSellAmountCapsAtHoldings(t *testing.T) {
	amount := normalizeSellAmount(decD("5"), decD("2"))
	assert.True(t, amount.Equal(decD("2")))
}
