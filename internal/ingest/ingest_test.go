package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradingcore/internal/columnar"
	"tradingcore/pkg/store"
)

type fakeClient struct {
	batches [][]columnar.Candle
	calls   int
}

func (f *fakeClient) Exchange() string { return "fake" }

func (f *fakeClient) FetchCandles(ctx context.Context, pair, timeframe string, start int64, limit int) ([]columnar.Candle, error) {
	if f.calls >= len(f.batches) {
		return nil, nil
	}
	b := f.batches[f.calls]
	f.calls++
	return b, nil
}

func candle(ts int64, price float64) columnar.Candle {
	d := decimal.NewFromFloat(price)
	return columnar.Candle{Timestamp: ts, Open: d, High: d, Low: d, Close: d, Volume: decimal.NewFromInt(1)}
}

func newTestStore(t *testing.T) *store.Store {
	st, err := store.Open(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestIngestAppendsChunksAndMarksCompleted(t *testing.T) {
	st := newTestStore(t)
	col := columnar.New(t.TempDir())

	base := int64(1704067200000)
	client := &fakeClient{batches: [][]columnar.Candle{
		{candle(base, 100), candle(base+60000, 101)},
		{candle(base+120000, 102)},
	}}

	cfg := DefaultConfig()
	cfg.RateLimit = time.Millisecond
	ig := New(st, col, client, cfg, nil)

	err := ig.Ingest(context.Background(), ig.NewJobID(), "BTC/USDT", "1m", time.UnixMilli(base), time.UnixMilli(base+180000), 1)
	require.NoError(t, err)

	got, err := col.ReadRange("BTC/USDT", "1m", base, base+120000)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestValidateCandleRejectsBadRecords(t *testing.T) {
	good := candle(1, 100)
	assert.True(t, validateCandle(good))

	bad := good
	bad.Open = decimal.Zero
	assert.False(t, validateCandle(bad))

	bad2 := good
	bad2.High = decimal.NewFromInt(1)
	bad2.Low = decimal.NewFromInt(100)
	assert.False(t, validateCandle(bad2))
}

func TestDetectGapsWithNoDataSourceReportsFullRange(t *testing.T) {
	st := newTestStore(t)
	col := columnar.New(t.TempDir())
	ig := New(st, col, &fakeClient{}, DefaultConfig(), nil)

	gaps, err := ig.DetectGaps(context.Background(), "BTC/USDT", "1m")
	require.NoError(t, err)
	require.Len(t, gaps, 1)
	assert.Equal(t, epoch2020, gaps[0].GapStart)
}
