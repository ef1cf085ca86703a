package columnar

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkCandle(ts int64, close float64) Candle {
	d := decimal.NewFromFloat(close)
	return Candle{Timestamp: ts, Open: d, High: d, Low: d, Close: d, Volume: decimal.NewFromInt(1)}
}

func TestStoreAppendAndReadRangeRoundTrip(t *testing.T) {
	s := New(t.TempDir())

	jan := int64(1704067200000) // 2024-01-01T00:00:00Z
	candles := []Candle{
		mkCandle(jan, 100),
		mkCandle(jan+60000, 101),
		mkCandle(jan+120000, 102),
	}

	require.NoError(t, s.AppendCandles("BTC/USDT", "1m", candles))

	got, err := s.ReadRange("BTC/USDT", "1m", jan, jan+120000)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, jan, got[0].Timestamp)
	assert.True(t, got[2].Close.Equal(decimal.NewFromFloat(102)))
}

func TestStoreAppendDedupesLastWriteWins(t *testing.T) {
	s := New(t.TempDir())
	jan := int64(1704067200000)

	require.NoError(t, s.AppendCandles("BTC/USDT", "1m", []Candle{mkCandle(jan, 100)}))
	require.NoError(t, s.AppendCandles("BTC/USDT", "1m", []Candle{mkCandle(jan, 999)}))

	got, err := s.ReadRange("BTC/USDT", "1m", jan, jan)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Close.Equal(decimal.NewFromFloat(999)))
}

func TestStoreAppendAcrossMonthBoundary(t *testing.T) {
	s := New(t.TempDir())

	jan31 := int64(1706745540000) // 2024-01-31T23:59:00Z
	feb1 := int64(1706745600000)  // 2024-02-01T00:00:00Z

	require.NoError(t, s.AppendCandles("ETH/USDT", "1m", []Candle{mkCandle(jan31, 1), mkCandle(feb1, 2)}))

	got, err := s.ReadRange("ETH/USDT", "1m", jan31, feb1)
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestStoreGetAvailableRangeEmpty(t *testing.T) {
	s := New(t.TempDir())
	r, err := s.GetAvailableRange("BTC/USDT", "1m")
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestStoreGetAvailableRange(t *testing.T) {
	s := New(t.TempDir())
	jan := int64(1704067200000)
	require.NoError(t, s.AppendCandles("BTC/USDT", "1m", []Candle{
		mkCandle(jan, 100),
		mkCandle(jan+60000, 101),
	}))

	r, err := s.GetAvailableRange("BTC/USDT", "1m")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, 2, r.TotalCandles)
	assert.Equal(t, 1, r.TotalFiles)
	assert.Equal(t, jan, r.Earliest)
	assert.Equal(t, jan+60000, r.Latest)
}

func TestStoreDeleteBefore(t *testing.T) {
	s := New(t.TempDir())
	jan := int64(1704067200000)
	require.NoError(t, s.AppendCandles("BTC/USDT", "1m", []Candle{
		mkCandle(jan, 100),
		mkCandle(jan+60000, 101),
		mkCandle(jan+120000, 102),
	}))

	require.NoError(t, s.DeleteBefore("BTC/USDT", "1m", jan+120000))

	got, err := s.ReadRange("BTC/USDT", "1m", jan, jan+120000)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, jan+120000, got[0].Timestamp)
}

func TestCandleValid(t *testing.T) {
	c := mkCandle(1, 100)
	assert.True(t, c.Valid())

	bad := c
	bad.Volume = decimal.NewFromInt(-1)
	assert.False(t, bad.Valid())

	bad2 := c
	bad2.Low = decimal.NewFromFloat(200)
	assert.False(t, bad2.Valid())
}
