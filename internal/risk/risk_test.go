package risk

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradingcore/pkg/store"
)

func newTestManager(t *testing.T) *Manager {
	st, err := store.Open(t.TempDir() + "/risk.db")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewManager(DefaultConfig(), st, nil, nil)
}

func TestCheckTradeDeniesOnDailyLossLimit(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	s := m.stateFor(ctx, "u1")
	s.DailyRealizedPnL = -600 // 600 loss against 10000 equity * 5% = 500 limit

	portfolio := Portfolio{InitialEquity: 10000, EquityNow: 9400, PortfolioValue: 9400}
	trade := TradeParams{Pair: "BTC/USDT", Side: "buy", Amount: 0.01, Price: 30000}

	result := m.CheckTrade(ctx, "u1", trade, portfolio)

	assert.False(t, result.Allowed)
	require.Len(t, result.FailedChecks, 1)
	assert.Equal(t, "dailyLoss", result.FailedChecks[0].Name)
}

func TestCheckTradeDeniesOnCooldown(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	s := m.stateFor(ctx, "u2")
	s.LastTradeAt = time.Now()

	portfolio := Portfolio{InitialEquity: 10000, EquityNow: 10000, PortfolioValue: 10000}
	trade := TradeParams{Pair: "BTC/USDT", Amount: 0.01, Price: 100}

	result := m.CheckTrade(ctx, "u2", trade, portfolio)

	assert.False(t, result.Allowed)
	assertContainsFailed(t, result, "cooldown")
}

func TestCheckTradeAllowsWhenWithinLimits(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	portfolio := Portfolio{InitialEquity: 10000, EquityNow: 10000, PortfolioValue: 10000}
	trade := TradeParams{Pair: "BTC/USDT", Amount: 0.01, Price: 100}

	result := m.CheckTrade(ctx, "u3", trade, portfolio)
	assert.True(t, result.Allowed)
	assert.Empty(t, result.FailedChecks)
}

func TestDrawdownTripsCircuitBreakerAndBlocksFollowingTrade(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	portfolio := Portfolio{InitialEquity: 10000, EquityNow: 10000, PortfolioValue: 10000}
	trade := TradeParams{Pair: "BTC/USDT", Amount: 0.01, Price: 100}
	_ = m.CheckTrade(ctx, "u4", trade, portfolio)

	portfolio.EquityNow = 7000 // 30% drawdown from 10000 peak, exceeds 20% default limit
	portfolio.PortfolioValue = 7000
	result := m.CheckTrade(ctx, "u4", trade, portfolio)

	assert.False(t, result.Allowed)
	assertContainsFailed(t, result, "drawdown")

	next := m.CheckTrade(ctx, "u4", trade, portfolio)
	assert.False(t, next.Allowed)
	assertContainsFailed(t, next, "circuitBreaker")
}

func TestResetClearsCircuitBreaker(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	s := m.stateFor(ctx, "u5")
	s.triggerCircuitBreaker(time.Hour, []string{"drawdown"})
	assert.True(t, s.circuitBreakerActive())

	m.Reset(ctx, "u5")
	assert.False(t, m.stateFor(ctx, "u5").circuitBreakerActive())
}

func TestOnOrderFilledUpdatesAccountingAndConsecutiveLosses(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.onOrderFilled(ctx, TradeFill{UserID: "u6", Pair: "BTC/USDT", Amount: 1, Price: 100, PnL: -50}))
	require.NoError(t, m.onOrderFilled(ctx, TradeFill{UserID: "u6", Pair: "BTC/USDT", Amount: 1, Price: 100, PnL: -50}))

	s := m.stateFor(ctx, "u6")
	assert.Equal(t, 2, s.DailyTradeCount)
	assert.Equal(t, -100.0, s.DailyRealizedPnL)
	assert.Equal(t, 2, s.ConsecutiveLosses)

	require.NoError(t, m.onOrderFilled(ctx, TradeFill{UserID: "u6", Pair: "BTC/USDT", Amount: 1, Price: 100, PnL: 25}))
	assert.Equal(t, 0, m.stateFor(ctx, "u6").ConsecutiveLosses)
}

func assertContainsFailed(t *testing.T, result Result, name string) {
	t.Helper()
	for _, c := range result.FailedChecks {
		if c.Name == name {
			return
		}
	}
	t.Fatalf("expected failed check %q, got %+v", name, result.FailedChecks)
}
