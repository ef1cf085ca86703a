package position

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(v string) decimal.Decimal {
	d, _ := decimal.NewFromString(v)
	return d
}

func TestUpdateFromTradeBuyComputesAverageEntry(t *testing.T) {
	m := NewManager(nil)
	ctx := context.Background()

	p, err := m.UpdateFromTrade(ctx, "u1", "binance", "BTC", Trade{
		Side: "buy", Amount: dec("1"), Price: dec("100"), Fee: dec("1"),
	})
	require.NoError(t, err)
	assert.True(t, p.AvgEntryPrice.Equal(dec("101"))) // (0+101)/1

	p, err = m.UpdateFromTrade(ctx, "u1", "binance", "BTC", Trade{
		Side: "buy", Amount: dec("1"), Price: dec("99"), Fee: dec("1"),
	})
	require.NoError(t, err)
	// totalCost = 101 + 100 = 201, totalAmount = 2 -> avg 100.5
	assert.True(t, p.AvgEntryPrice.Equal(dec("100.5")))
	assert.True(t, p.TotalAmount.Equal(dec("2")))
}

func TestUpdateFromTradeSellComputesRealizedPnL(t *testing.T) {
	m := NewManager(nil)
	ctx := context.Background()

	_, err := m.UpdateFromTrade(ctx, "u1", "binance", "BTC", Trade{
		Side: "buy", Amount: dec("2"), Price: dec("100"), Fee: dec("0"),
	})
	require.NoError(t, err)

	p, err := m.UpdateFromTrade(ctx, "u1", "binance", "BTC", Trade{
		Side: "sell", Amount: dec("1"), Price: dec("120"), Fee: dec("1"),
	})
	require.NoError(t, err)

	// costBasis = 1*100 = 100, realized = 120 - 1 - 100 = 19
	assert.True(t, p.RealizedPnL.Equal(dec("19")))
	assert.True(t, p.TotalAmount.Equal(dec("1")))
	assert.True(t, p.TotalCost.Equal(dec("100")))
}

func TestLockAndUnlockAmountRejectOverflow(t *testing.T) {
	m := NewManager(nil)
	ctx := context.Background()

	_, err := m.UpdateFromTrade(ctx, "u1", "binance", "BTC", Trade{
		Side: "buy", Amount: dec("1"), Price: dec("100"), Fee: dec("0"),
	})
	require.NoError(t, err)

	assert.Error(t, m.LockAmount(ctx, "u1", "binance", "BTC", dec("2")))
	require.NoError(t, m.LockAmount(ctx, "u1", "binance", "BTC", dec("1")))

	assert.Error(t, m.UnlockAmount(ctx, "u1", "binance", "BTC", dec("2")))
	require.NoError(t, m.UnlockAmount(ctx, "u1", "binance", "BTC", dec("1")))

	p, ok := m.Get("u1", "binance", "BTC")
	require.True(t, ok)
	assert.True(t, p.AvailableAmount.Equal(dec("1")))
	assert.True(t, p.LockedAmount.Equal(dec("0")))
}

func TestUpdateUnrealizedPnLZeroWhenFlat(t *testing.T) {
	m := NewManager(nil)
	ctx := context.Background()

	p := m.UpdateUnrealizedPnL(ctx, "u1", "binance", "BTC", dec("100"))
	assert.True(t, p.UnrealizedPnL.Equal(decimal.Zero))

	_, err := m.UpdateFromTrade(ctx, "u1", "binance", "BTC", Trade{
		Side: "buy", Amount: dec("1"), Price: dec("100"), Fee: dec("0"),
	})
	require.NoError(t, err)

	p = m.UpdateUnrealizedPnL(ctx, "u1", "binance", "BTC", dec("150"))
	assert.True(t, p.UnrealizedPnL.Equal(dec("50")))
}

func TestGetAllocationSharesSumToOne(t *testing.T) {
	m := NewManager(nil)
	ctx := context.Background()

	_, err := m.UpdateFromTrade(ctx, "u1", "binance", "BTC", Trade{Side: "buy", Amount: dec("1"), Price: dec("100"), Fee: dec("0")})
	require.NoError(t, err)
	_, err = m.UpdateFromTrade(ctx, "u1", "binance", "ETH", Trade{Side: "buy", Amount: dec("10"), Price: dec("10"), Fee: dec("0")})
	require.NoError(t, err)

	entries := m.GetAllocation("u1", nil)
	require.Len(t, entries, 2)

	total := 0.0
	for _, e := range entries {
		total += e.Share
	}
	assert.InDelta(t, 1.0, total, 0.0001)
}

func TestGetPnLReportSumsRealizedFromSells(t *testing.T) {
	m := NewManager(nil)
	ctx := context.Background()

	_, err := m.UpdateFromTrade(ctx, "u1", "binance", "BTC", Trade{Side: "buy", Amount: dec("2"), Price: dec("100"), Fee: dec("0")})
	require.NoError(t, err)
	_, err = m.UpdateFromTrade(ctx, "u1", "binance", "BTC", Trade{Side: "sell", Amount: dec("1"), Price: dec("120"), Fee: dec("0")})
	require.NoError(t, err)

	report := m.GetPnLReport("u1", PeriodAll)
	assert.True(t, report.RealizedPnL.Equal(dec("20")))
	assert.Equal(t, 1, report.TradeCount)
}
