package position

import (
	"time"

	"github.com/shopspring/decimal"
)

// PnLPeriod is one of the windows getPnLReport accepts, per spec §4.8.
type PnLPeriod string

const (
	Period24h PnLPeriod = "24h"
	Period7d  PnLPeriod = "7d"
	Period30d PnLPeriod = "30d"
	PeriodAll PnLPeriod = "all"
)

func (p PnLPeriod) window() time.Duration {
	switch p {
	case Period24h:
		return 24 * time.Hour
	case Period7d:
		return 7 * 24 * time.Hour
	case Period30d:
		return 30 * 24 * time.Hour
	default:
		return 0 // all
	}
}

// AllocationEntry is one asset's value share in getAllocation.
type AllocationEntry struct {
	Asset string
	Value decimal.Decimal
	Share float64 // value / total, 0..1
}

// PortfolioSummary is getPortfolioSummary's return shape, per spec §4.8.
type PortfolioSummary struct {
	TotalValue    decimal.Decimal
	TotalCost     decimal.Decimal
	RealizedPnL   decimal.Decimal
	UnrealizedPnL decimal.Decimal
	TotalFees     decimal.Decimal
	Positions     []Position
}

// PnLReport is getPnLReport's return shape, per spec §4.8.
type PnLReport struct {
	Period      PnLPeriod
	RealizedPnL decimal.Decimal
	TradeCount  int
}

func positionValue(p Position, currentPrice decimal.Decimal) decimal.Decimal {
	if currentPrice.IsZero() {
		return p.TotalAmount.Mul(p.AvgEntryPrice)
	}
	return p.TotalAmount.Mul(currentPrice)
}

// GetPortfolioSummary aggregates every held position for userID across all
// exchanges, using prices for current marks (keyed by asset, zero value
// means "mark at average entry price").
func (m *Manager) GetPortfolioSummary(userID string, prices map[string]decimal.Decimal) PortfolioSummary {
	summary := PortfolioSummary{
		TotalValue: decimal.Zero, TotalCost: decimal.Zero,
		RealizedPnL: decimal.Zero, UnrealizedPnL: decimal.Zero, TotalFees: decimal.Zero,
	}
	m.positions.Range(func(k, v any) bool {
		lock := m.lockFor(k.(string))
		lock.Lock()
		defer lock.Unlock()

		p := v.(*Position)
		if p.UserID != userID || !p.TotalAmount.IsPositive() {
			return true
		}
		summary.TotalValue = summary.TotalValue.Add(positionValue(*p, prices[p.Asset]))
		summary.TotalCost = summary.TotalCost.Add(p.TotalCost)
		summary.RealizedPnL = summary.RealizedPnL.Add(p.RealizedPnL)
		summary.UnrealizedPnL = summary.UnrealizedPnL.Add(p.UnrealizedPnL)
		summary.TotalFees = summary.TotalFees.Add(p.TotalFees)
		summary.Positions = append(summary.Positions, *p)
		return true
	})
	return summary
}

// GetAllocation returns each held asset's share of total portfolio value,
// per spec §4.8.
func (m *Manager) GetAllocation(userID string, prices map[string]decimal.Decimal) []AllocationEntry {
	summary := m.GetPortfolioSummary(userID, prices)
	if summary.TotalValue.IsZero() {
		return nil
	}

	entries := make([]AllocationEntry, 0, len(summary.Positions))
	for _, p := range summary.Positions {
		value := positionValue(p, prices[p.Asset])
		share, _ := value.Div(summary.TotalValue).Float64()
		entries = append(entries, AllocationEntry{Asset: p.Asset, Value: value, Share: share})
	}
	return entries
}

// GetPnLReport sums realized P&L from trades within the requested window,
// per spec §4.8.
func (m *Manager) GetPnLReport(userID string, period PnLPeriod) PnLReport {
	report := PnLReport{Period: period, RealizedPnL: decimal.Zero}
	window := period.window()
	cutoff := time.Time{}
	if window > 0 {
		cutoff = time.Now().Add(-window)
	}

	m.positions.Range(func(k, v any) bool {
		lock := m.lockFor(k.(string))
		lock.Lock()
		defer lock.Unlock()

		p := v.(*Position)
		if p.UserID != userID {
			return true
		}
		for _, t := range p.Trades {
			if t.Side != "sell" {
				continue
			}
			if !cutoff.IsZero() && t.At.Before(cutoff) {
				continue
			}
			report.RealizedPnL = report.RealizedPnL.Add(t.RealizedPnL)
			report.TradeCount++
		}
		return true
	})
	return report
}
