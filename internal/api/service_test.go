package api

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradingcore/internal/columnar"
	"tradingcore/internal/ingest"
	"tradingcore/pkg/store"
)

func newTestStore(t *testing.T) *store.Store {
	st, err := store.Open(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func candle(ts int64, price float64) columnar.Candle {
	d := decimal.NewFromFloat(price)
	return columnar.Candle{Timestamp: ts, Open: d, High: d, Low: d, Close: d, Volume: decimal.NewFromInt(1)}
}

func seedAscendingCandles(t *testing.T, col *columnar.Store, pair, tf string, n int, startPrice float64) (int64, int64) {
	base := int64(1704067200000)
	step := int64(60000)
	candles := make([]columnar.Candle, n)
	for i := 0; i < n; i++ {
		candles[i] = candle(base+int64(i)*step, startPrice+float64(i))
	}
	require.NoError(t, col.AppendCandles(pair, tf, candles))
	return base, base + int64(n-1)*step
}

func TestRunBacktestPersistsRecord(t *testing.T) {
	st := newTestStore(t)
	col := columnar.New(t.TempDir())
	from, to := seedAscendingCandles(t, col, "BTC/USDT", "1m", 60, 100)

	svc := NewBacktestService(st, col, nil)
	rec, err := svc.RunBacktest(context.Background(), RunBacktestRequest{
		UserID:       "user-1",
		Pair:         "BTC/USDT",
		Timeframe:    "1m",
		Exchange:     "binance",
		StrategyType: "momentum",
		From:         time.UnixMilli(from),
		To:           time.UnixMilli(to + 60000),
	})
	require.NoError(t, err)
	assert.Equal(t, store.BacktestRun, rec.Type)
	assert.NotEmpty(t, rec.ID)

	got, err := svc.GetBacktest(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
}

func TestListBacktestsFiltersByUser(t *testing.T) {
	st := newTestStore(t)
	col := columnar.New(t.TempDir())
	from, to := seedAscendingCandles(t, col, "ETH/USDT", "1m", 60, 100)

	svc := NewBacktestService(st, col, nil)
	_, err := svc.RunBacktest(context.Background(), RunBacktestRequest{
		UserID: "user-1", Pair: "ETH/USDT", Timeframe: "1m", StrategyType: "momentum",
		From: time.UnixMilli(from), To: time.UnixMilli(to + 60000),
	})
	require.NoError(t, err)

	recs, err := svc.ListBacktests(context.Background(), store.ListBacktestFilter{UserID: "user-1"})
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	recs, err = svc.ListBacktests(context.Background(), store.ListBacktestFilter{UserID: "user-2"})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

type fakeExchangeClient struct{ exchange string }

func (f *fakeExchangeClient) Exchange() string { return f.exchange }
func (f *fakeExchangeClient) FetchCandles(ctx context.Context, pair, timeframe string, start int64, limit int) ([]columnar.Candle, error) {
	return nil, nil
}

func TestIngestSynchronousReturnsOneJobIDPerPairTimeframe(t *testing.T) {
	st := newTestStore(t)
	col := columnar.New(t.TempDir())
	ig := ingest.New(st, col, &fakeExchangeClient{exchange: "fake"}, ingest.DefaultConfig(), nil)
	svc := NewHistoricalDataService(ig, st, col, nil)

	ids, err := svc.Ingest(context.Background(), IngestRequest{
		Pairs:      []string{"BTC/USDT", "ETH/USDT"},
		Timeframes: []string{"1m"},
		StartDate:  time.UnixMilli(1704067200000),
		EndDate:    time.UnixMilli(1704067200000 + 60000),
		Async:      false,
	})
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestGapsReportsFullRangeWithNoDataSource(t *testing.T) {
	st := newTestStore(t)
	col := columnar.New(t.TempDir())
	ig := ingest.New(st, col, &fakeExchangeClient{exchange: "fake"}, ingest.DefaultConfig(), nil)
	svc := NewHistoricalDataService(ig, st, col, nil)

	gaps, err := svc.Gaps(context.Background(), "BTC/USDT", "1m")
	require.NoError(t, err)
	require.Len(t, gaps, 1)
}

func TestReadReturnsStoredCandlesAsDTOs(t *testing.T) {
	st := newTestStore(t)
	col := columnar.New(t.TempDir())
	from, to := seedAscendingCandles(t, col, "BTC/USDT", "1m", 5, 100)

	ig := ingest.New(st, col, &fakeExchangeClient{exchange: "fake"}, ingest.DefaultConfig(), nil)
	svc := NewHistoricalDataService(ig, st, col, nil)

	rows, err := svc.Read(context.Background(), "BTC/USDT", "1m", time.UnixMilli(from), time.UnixMilli(to), 0)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, 100.0, rows[0].Close)
}
