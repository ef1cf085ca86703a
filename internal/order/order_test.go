package order

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradingcore/pkg/store"
)

func newTestManager(t *testing.T) *Manager {
	st, err := store.Open(t.TempDir() + "/orders.db")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewManager(st, nil, nil, nil, nil)
}

func TestCreateOrderValidatesRequiredFields(t *testing.T) {
	m := newTestManager(t)
	_, err := m.CreateOrder(context.Background(), Order{})
	assert.Error(t, err)
}

func TestCreateOrderRejectsBadPair(t *testing.T) {
	m := newTestManager(t)
	_, err := m.CreateOrder(context.Background(), Order{
		UserID: "u1", Exchange: "binance", Pair: "btcusdt", Type: "market", Side: "buy",
		Amount: decimal.NewFromInt(1),
	})
	assert.Error(t, err)
}

func TestCreateOrderRequiresPriceForLimit(t *testing.T) {
	m := newTestManager(t)
	_, err := m.CreateOrder(context.Background(), Order{
		UserID: "u1", Exchange: "binance", Pair: "BTC/USDT", Type: "limit", Side: "buy",
		Amount: decimal.NewFromInt(1),
	})
	assert.Error(t, err)
}

func TestCreateOrderSucceedsAndProcessesToFilled(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	o, err := m.CreateOrder(ctx, Order{
		UserID: "u1", Exchange: "binance", Pair: "BTC/USDT", Type: "limit", Side: "buy",
		Amount: decimal.NewFromInt(1), Price: decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, o.Status)

	m.process(ctx, o)

	got, ok := m.GetOrder(o.ID)
	require.True(t, ok)
	assert.Equal(t, StatusFilled, got.Status)
	assert.True(t, got.FilledAmount.Equal(decimal.NewFromInt(1)))
	assert.True(t, got.AveragePrice.Equal(decimal.NewFromInt(100)))
}

func TestUpdateOrderRejectsIncreaseAndTerminalOrders(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	o, err := m.CreateOrder(ctx, Order{
		UserID: "u1", Exchange: "binance", Pair: "BTC/USDT", Type: "limit", Side: "buy",
		Amount: decimal.NewFromInt(2), Price: decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	_, err = m.UpdateOrder(ctx, o.ID, decimal.NewFromInt(3))
	assert.Error(t, err)

	updated, err := m.UpdateOrder(ctx, o.ID, decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.True(t, updated.Amount.Equal(decimal.NewFromInt(1)))

	m.process(ctx, updated)
	_, err = m.UpdateOrder(ctx, o.ID, decimal.NewFromFloat(0.5))
	assert.Error(t, err)
}

func TestCancelOrderRejectsTerminal(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	o, err := m.CreateOrder(ctx, Order{
		UserID: "u1", Exchange: "binance", Pair: "BTC/USDT", Type: "market", Side: "buy",
		Amount: decimal.NewFromInt(1), Price: decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	require.NoError(t, m.CancelOrder(ctx, o.ID))
	assert.Error(t, m.CancelOrder(ctx, o.ID))
}

func TestCreateOrderPopulatesTTLCache(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	o, err := m.CreateOrder(ctx, Order{
		UserID: "u1", Exchange: "binance", Pair: "BTC/USDT", Type: "limit", Side: "buy",
		Amount: decimal.NewFromInt(1), Price: decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	cached, ok := m.cacheGet(ctx, o.ID)
	require.True(t, ok)
	assert.Equal(t, o.ID, cached.ID)
	assert.Equal(t, StatusPending, cached.Status)
}

func TestGetOrderFallsBackToIndexOnCacheMiss(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	o, err := m.CreateOrder(ctx, Order{
		UserID: "u1", Exchange: "binance", Pair: "BTC/USDT", Type: "limit", Side: "buy",
		Amount: decimal.NewFromInt(1), Price: decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	require.NoError(t, m.cache.Del(ctx, m.cacheKey(o.ID)))

	got, ok := m.GetOrder(o.ID)
	require.True(t, ok)
	assert.Equal(t, o.ID, got.ID)
}

func TestGetOrderStatsCountsByStatus(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	o1, _ := m.CreateOrder(ctx, Order{UserID: "u1", Exchange: "binance", Pair: "BTC/USDT", Type: "market", Side: "buy", Amount: decimal.NewFromInt(1), Price: decimal.NewFromInt(100)})
	o2, _ := m.CreateOrder(ctx, Order{UserID: "u1", Exchange: "binance", Pair: "ETH/USDT", Type: "market", Side: "buy", Amount: decimal.NewFromInt(1), Price: decimal.NewFromInt(100)})

	m.process(ctx, o1)
	require.NoError(t, m.CancelOrder(ctx, o2.ID))

	stats := m.GetOrderStats("u1")
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Filled)
	assert.Equal(t, 1, stats.Cancelled)
}
