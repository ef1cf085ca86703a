package kraken

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePairAppliesBTCAlias(t *testing.T) {
	assert.Equal(t, "XBT/USD", NormalizePair("BTC/USD"))
}

func TestNormalizePairLeavesOtherAssetsUnchanged(t *testing.T) {
	assert.Equal(t, "ETH/USD", NormalizePair("ETH/USD"))
}

func TestCanonicalPairRoundTripsThroughSubscribe(t *testing.T) {
	c := NewClient()
	_ = c.Subscribe("ticker", "BTC/USD")
	assert.Equal(t, "BTC/USD", c.canonicalPair("XBT/USD"))
}

func TestCanonicalPairFallsBackToWirePairWhenUnsubscribed(t *testing.T) {
	c := NewClient()
	assert.Equal(t, "XBT/EUR", c.canonicalPair("XBT/EUR"))
}
