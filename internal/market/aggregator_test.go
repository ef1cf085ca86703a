package market

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradingcore/pkg/venue"
)

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func TestHandleEventCachesTickerPerExchange(t *testing.T) {
	a := NewAggregator(nil, nil)

	a.handleEvent(venue.Event{
		Kind: venue.EventData, Type: venue.DataTicker, Exchange: "binance", Pair: "BTC/USDT",
		Data: venue.Ticker{BestBid: d(100), BestAsk: d(101)},
	})
	a.handleEvent(venue.Event{
		Kind: venue.EventData, Type: venue.DataTicker, Exchange: "kraken", Pair: "BTC/USDT",
		Data: venue.Ticker{BestBid: d(99), BestAsk: d(102)},
	})

	ps := a.pairs["BTC/USDT"]
	require.NotNil(t, ps)
	assert.Len(t, ps.tickers, 2)
}

func TestEmitAggregatesComputesBestBidAskAndVWAP(t *testing.T) {
	a := NewAggregator(nil, nil)

	a.handleEvent(venue.Event{Kind: venue.EventData, Type: venue.DataTicker, Exchange: "binance", Pair: "BTC/USDT",
		Data: venue.Ticker{BestBid: d(100), BestAsk: d(101)}})
	a.handleEvent(venue.Event{Kind: venue.EventData, Type: venue.DataTicker, Exchange: "kraken", Pair: "BTC/USDT",
		Data: venue.Ticker{BestBid: d(99), BestAsk: d(102)}})
	a.handleEvent(venue.Event{Kind: venue.EventData, Type: venue.DataTrade, Exchange: "binance", Pair: "BTC/USDT",
		Data: venue.Trade{Price: d(100), Amount: d(2)}})
	a.handleEvent(venue.Event{Kind: venue.EventData, Type: venue.DataTrade, Exchange: "binance", Pair: "BTC/USDT",
		Data: venue.Trade{Price: d(102), Amount: d(1)}})

	a.mu.RLock()
	ps := a.pairs["BTC/USDT"]
	vwap, totalVolume := vwapFromTrades(ps.recentTrades)
	a.mu.RUnlock()

	// (100*2 + 102*1) / 3 = 100.666...
	assert.True(t, vwap.Sub(decimal.NewFromFloat(100.6666666666)).Abs().LessThan(decimal.NewFromFloat(0.0001)))
	assert.True(t, totalVolume.Equal(d(3)))
}

func TestEmitAggregatesPopulatesCachedSnapshot(t *testing.T) {
	a := NewAggregator(nil, nil)

	a.handleEvent(venue.Event{Kind: venue.EventData, Type: venue.DataTicker, Exchange: "binance", Pair: "BTC/USDT",
		Data: venue.Ticker{BestBid: d(100), BestAsk: d(101)}})

	_, ok := a.CachedSnapshot("BTC/USDT")
	assert.False(t, ok, "no aggregate has been emitted yet")

	a.emitAggregates()

	snap, ok := a.CachedSnapshot("BTC/USDT")
	require.True(t, ok)
	assert.True(t, snap.BestBid.Equal(d(100)))
	assert.True(t, snap.BestAsk.Equal(d(101)))
}

func TestSnapshotReturnsFalseWithoutCandles(t *testing.T) {
	a := NewAggregator(nil, nil)
	_, ok := a.Snapshot("BTC/USDT")
	assert.False(t, ok)
}

func TestSnapshotBuildsMarketContextFromTrades(t *testing.T) {
	a := NewAggregator(nil, nil)
	for i := 0; i < 25; i++ {
		a.handleEvent(venue.Event{
			Kind: venue.EventData, Type: venue.DataTrade, Exchange: "binance", Pair: "BTC/USDT",
			Data: venue.Trade{Price: d(100 + float64(i)), Amount: d(1)}, Timestamp: int64(i),
		})
	}

	ctx, ok := a.Snapshot("BTC/USDT")
	require.True(t, ok)
	assert.Equal(t, "BTC/USDT", ctx.Pair)
	assert.Equal(t, 124.0, ctx.Close)
	assert.Len(t, ctx.RecentCandles, 25)
	assert.Greater(t, ctx.Indicators.SMA20, 0.0)
}
