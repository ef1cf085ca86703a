package optimize

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradingcore/internal/backtest"
	"tradingcore/internal/strategy"
)

func TestEnumerateProducesCartesianProduct(t *testing.T) {
	grid := ParamGrid{
		"macdThreshold":    {0.0, 0.1},
		"minTrendStrength": {0.1, 0.2, 0.3},
	}
	combos := Enumerate(grid)
	assert.Len(t, combos, 6)
}

func TestEnumerateEmptyGridReturnsOneEmptyCombo(t *testing.T) {
	combos := Enumerate(ParamGrid{})
	require.Len(t, combos, 1)
	assert.Empty(t, combos[0])
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

func TestComputeSplitsCoverWalkForwardWindows(t *testing.T) {
	candles := linearCandles(300, 100, 400)
	cfg := Config{TrainRatio: 0.7, NSplits: 3}
	splits := computeSplits(candles, cfg)
	require.Len(t, splits, 3)

	splitSize := 300 / 3
	trainSize := int(float64(splitSize) * 0.7)
	testSize := splitSize - trainSize
	assert.Len(t, splits[0].train, trainSize)
	assert.Len(t, splits[0].test, testSize)
}

func TestOptimizeRunsNSplitsTimesCombosBacktests(t *testing.T) {
	candles := linearCandles(300, 100, 400)
	grid := ParamGrid{"minTrendStrength": {0.05, 0.9}}
	cfg := Config{TrainRatio: 0.7, NSplits: 3, Metric: MetricTotalReturn, MinTrades: 1}

	result, err := Optimize(context.Background(), "momentum", "BTC/USDT", candles, grid, cfg, backtest.DefaultConfig(), nil)
	require.NoError(t, err)
	require.Len(t, result.Splits, 3)

	for _, sp := range result.Splits {
		assert.LessOrEqual(t, len(sp.AllResults), 2)
	}
}

func TestScoreComputesEachMetric(t *testing.T) {
	s := backtest.Summary{SharpeRatio: 1.0, TotalReturnPct: 10, ProfitFactor: 2, WinRate: 0.6, MaxDrawdownPct: 5}

	assert.Equal(t, 1.0, score(MetricSharpeRatio, s))
	assert.Equal(t, 10.0, score(MetricTotalReturn, s))
	assert.Equal(t, 2.0, score(MetricCalmarRatio, s))
	assert.InDelta(t, 0.3*1+0.25*10+0.2*2+0.15*0.6-0.1*5, score(MetricComposite, s), 0.0001)
}
