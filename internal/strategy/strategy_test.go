package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeanReversionEntryShortOnOverboughtBreakout(t *testing.T) {
	mr := NewMeanReversion("mr1", DefaultMeanReversionConfig())
	ctx := MarketContext{
		Pair:  "BTC/USDT",
		Price: 105,
		Indicators: IndicatorSet{
			RSI14:     75,
			Bollinger: BollingerBands{Upper: 100, Middle: 95, Lower: 90},
		},
		Timestamp: 1,
	}
	sig, err := mr.GenerateSignal(ctx)
	require.NoError(t, err)
	assert.Equal(t, ActionSell, sig.Action)
}

func TestMeanReversionEntryLongOnOversoldBreakdown(t *testing.T) {
	mr := NewMeanReversion("mr2", DefaultMeanReversionConfig())
	ctx := MarketContext{
		Pair:  "BTC/USDT",
		Price: 85,
		Indicators: IndicatorSet{
			RSI14:     20,
			Bollinger: BollingerBands{Upper: 100, Middle: 95, Lower: 90},
		},
		Timestamp: 1,
	}
	sig, err := mr.GenerateSignal(ctx)
	require.NoError(t, err)
	assert.Equal(t, ActionBuy, sig.Action)
}

func TestMeanReversionExitsAtMean(t *testing.T) {
	mr := NewMeanReversion("mr3", DefaultMeanReversionConfig())
	entryCtx := MarketContext{
		Pair: "BTC/USDT", Price: 85,
		Indicators: IndicatorSet{RSI14: 20, Bollinger: BollingerBands{Upper: 100, Middle: 95, Lower: 90}},
		Timestamp:  1,
	}
	_, err := mr.GenerateSignal(entryCtx)
	require.NoError(t, err)

	exitCtx := entryCtx
	exitCtx.Price = 96
	exitCtx.Timestamp = 2
	sig, err := mr.GenerateSignal(exitCtx)
	require.NoError(t, err)
	assert.Equal(t, ActionSell, sig.Action)
}

func TestMomentumLongEntryOnEMACrossWithMACDConfirmation(t *testing.T) {
	m := NewMomentum("mom1", DefaultMomentumConfig())
	ctx := MarketContext{
		Pair: "ETH/USDT", Price: 2000,
		Indicators: IndicatorSet{EMA12: 2010, EMA26: 1990},
		RecentCandles: []Candle{
			{Close: 1900}, {Close: 1950}, {Close: 2000},
		},
		Timestamp: 1,
	}
	sig, err := m.GenerateSignal(ctx)
	require.NoError(t, err)
	assert.Equal(t, ActionBuy, sig.Action)
}

func TestMomentumHoldsWhenTrendWeak(t *testing.T) {
	m := NewMomentum("mom2", DefaultMomentumConfig())
	ctx := MarketContext{
		Pair: "ETH/USDT", Price: 2000,
		Indicators: IndicatorSet{EMA12: 2010, EMA26: 1990},
		RecentCandles: []Candle{
			{Close: 2000}, {Close: 2001}, {Close: 2000}, {Close: 2001}, {Close: 2000},
		},
		Timestamp: 1,
	}
	sig, err := m.GenerateSignal(ctx)
	require.NoError(t, err)
	assert.Equal(t, ActionHold, sig.Action)
}

func TestGridBuysOnLowerLevelCross(t *testing.T) {
	cfg := DefaultGridConfig(100)
	cfg.Levels = 4
	cfg.GridSpacingPct = 0.05
	g := NewGrid("g1", cfg)

	sig, err := g.GenerateSignal(MarketContext{Pair: "BTC/USDT", Price: 89, Timestamp: 1})
	require.NoError(t, err)
	assert.Equal(t, ActionBuy, sig.Action)
}

func TestSchedulerStateMachine(t *testing.T) {
	sched := NewScheduler(nil, nil, nil)
	strat := NewGrid("g2", DefaultGridConfig(100))
	sched.Register(strat, "user1", "BTC/USDT", 10)

	require.NoError(t, sched.Activate("g2"))
	require.Error(t, sched.Activate("g2")) // active->active is not a legal transition
	require.NoError(t, sched.Pause("g2"))
	require.NoError(t, sched.Activate("g2"))
	require.NoError(t, sched.Deactivate("g2"))
}

func TestSchedulerUnknownStrategy(t *testing.T) {
	sched := NewScheduler(nil, nil, nil)
	assert.Error(t, sched.Activate("missing"))
}
