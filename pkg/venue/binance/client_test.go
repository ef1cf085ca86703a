package binance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePair(t *testing.T) {
	assert.Equal(t, "btcusdt", NormalizePair("BTC/USDT"))
	assert.Equal(t, "ethbtc", NormalizePair("ETH-BTC"))
}

func TestWireSymbolIsUpperCaseAndSeparatorFree(t *testing.T) {
	assert.Equal(t, "BTCUSDT", wireSymbol("BTC/USDT"))
}

func TestCanonicalPairRoundTripsThroughSubscribe(t *testing.T) {
	c := NewClient(false)
	_ = c.Subscribe("ticker", "BTC/USDT")
	assert.Equal(t, "BTC/USDT", c.canonicalPair("BTCUSDT"))
}

func TestCanonicalPairFallsBackToWireSymbolWhenUnsubscribed(t *testing.T) {
	c := NewClient(false)
	assert.Equal(t, "ETHUSDT", c.canonicalPair("ETHUSDT"))
}

func TestHandleMessageEmitsCanonicalPair(t *testing.T) {
	c := NewClient(false)
	_ = c.Subscribe("ticker", "BTC/USDT")

	c.handleMessage([]byte(`{"stream":"btcusdt@bookTicker","data":{"s":"BTCUSDT","b":"30000.00","a":"30001.00"}}`))

	select {
	case ev := <-c.Events():
		assert.Equal(t, "BTC/USDT", ev.Pair)
	default:
		t.Fatal("expected a ticker event")
	}
}
