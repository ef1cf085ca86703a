// Package coordinator implements the Trading Coordinator of spec §4.9: it
// subscribes to the event bus and wires strategySignal through the risk
// manager into order creation, orderFilled back into position accounting
// and strategy feedback, and circuitBreakerTriggered into a user-wide
// strategy/order shutdown. It holds only narrow capability interfaces over
// each component (no back-references to the concrete managers), following
// the teacher's own style of wiring components solely through the bus and
// small handler functions rather than a monolithic "god object".
package coordinator

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradingcore/internal/events"
	"tradingcore/internal/market"
	"tradingcore/internal/order"
	"tradingcore/internal/position"
	"tradingcore/internal/risk"
	"tradingcore/internal/strategy"
	"tradingcore/pkg/pair"
)

// RiskChecker is the risk capability the coordinator needs.
type RiskChecker interface {
	CheckTrade(ctx context.Context, userID string, trade risk.TradeParams, portfolio risk.Portfolio) risk.Result
}

// OrderGateway is the order capability the coordinator needs.
type OrderGateway interface {
	CreateOrder(ctx context.Context, o order.Order) (order.Order, error)
	GetUserOrders(userID string, f order.Filters) []order.Order
	CancelOrder(ctx context.Context, id string) error
}

// PositionLedger is the position capability the coordinator needs.
type PositionLedger interface {
	UpdateFromTrade(ctx context.Context, userID, exchange, asset string, t position.Trade) (position.Position, error)
	GetPortfolioSummary(userID string, prices map[string]decimal.Decimal) position.PortfolioSummary
}

// StrategyController is the strategy-scheduler capability the coordinator
// needs.
type StrategyController interface {
	DeactivateAllForUser(userID string) []string
	RecordTrade(strategyID string, t strategy.TradeRecord) bool
}

// MarketSnapshot is the market capability the coordinator needs: the most
// recent TTL-cached aggregated price for a pair, used to populate
// risk.TradeParams.MarketPrice for the price-deviation check. A miss (no
// snapshot cached yet, or one older than cache.TTLTicker) simply leaves
// MarketPrice at zero, which risk treats as "skip this check".
type MarketSnapshot interface {
	CachedSnapshot(pair string) (market.AggregatedPrice, bool)
}

// Coordinator wires spec §4.9's three flows. DefaultExchange is the venue
// used when creating orders/positions from a strategy signal, since
// strategy signals reason over an aggregated multi-venue pair view rather
// than a single venue.
type Coordinator struct {
	mu sync.Mutex

	bus        *events.Bus
	risk       RiskChecker
	orders     OrderGateway
	positions  PositionLedger
	strategies StrategyController
	market     MarketSnapshot
	log        *zap.Logger

	DefaultExchange string

	initialEquity map[string]float64
}

func New(bus *events.Bus, riskMgr RiskChecker, orderMgr OrderGateway, positionMgr PositionLedger, strategies StrategyController, mkt MarketSnapshot, log *zap.Logger) *Coordinator {
	return &Coordinator{
		bus:             bus,
		risk:            riskMgr,
		orders:          orderMgr,
		positions:       positionMgr,
		strategies:      strategies,
		market:          mkt,
		log:             log,
		DefaultExchange: "primary",
		initialEquity:   make(map[string]float64),
	}
}

// Start subscribes the coordinator's handlers to the bus, per spec §4.9.
func (c *Coordinator) Start() {
	c.bus.Subscribe(events.EventStrategySignal, c.handleSignal, events.SubscribeOptions{})
	c.bus.Subscribe(events.EventOrderFilled, c.handleOrderFilled, events.SubscribeOptions{})
	c.bus.Subscribe(events.EventRiskCircuitBreakerTripped, c.handleCircuitBreaker, events.SubscribeOptions{})
}

// handleSignal implements "strategySignal -> risk.checkTrade -> on allow ->
// orderManager.createOrder", per spec §4.9.
func (c *Coordinator) handleSignal(ctx context.Context, payload any) error {
	sig, ok := payload.(strategy.Signal)
	if !ok {
		return nil
	}
	if sig.Action == strategy.ActionHold {
		return nil
	}

	portfolio := c.buildPortfolio(sig.UserID, sig.Pair, sig.Price)
	trade := risk.TradeParams{
		Pair:   sig.Pair,
		Side:   string(sig.Action),
		Amount: amountFloat(sig.Amount),
		Price:  priceFloat(sig.Price),
	}
	if c.market != nil {
		if snap, ok := c.market.CachedSnapshot(sig.Pair); ok {
			trade.MarketPrice, _ = snap.VWAP.Float64()
		}
	}

	result := c.risk.CheckTrade(ctx, sig.UserID, trade, portfolio)
	if !result.Allowed {
		if c.bus != nil {
			c.bus.Publish(ctx, events.EventSignalBlocked, map[string]any{
				"signal":       sig,
				"failedChecks": result.FailedChecks,
			}, events.PublishOptions{})
		}
		return nil
	}

	o := order.Order{
		UserID:   sig.UserID,
		Exchange: c.DefaultExchange,
		Pair:     sig.Pair,
		Type:     "market",
		Side:     string(sig.Action),
		Amount:   sig.Amount,
		Price:    sig.Price,
		StrategyID: sig.StrategyID,
	}
	_, err := c.orders.CreateOrder(ctx, o)
	if err != nil {
		if c.log != nil {
			c.log.Warn("coordinator: order creation failed", zap.String("strategyId", sig.StrategyID), zap.Error(err))
		}
		return err
	}
	return nil
}

// handleOrderFilled implements "orderFilled -> positionManager.
// updatePositionFromTrade + strategy.recordTrade + emit orderCompleted",
// per spec §4.9. orderCompleted itself is emitted by internal/order's
// processor; this handler only performs the position/strategy side effects.
func (c *Coordinator) handleOrderFilled(ctx context.Context, payload any) error {
	o, ok := payload.(order.Order)
	if !ok {
		return nil
	}

	base, _ := pair.Split(o.Pair)
	var fillAmount, fillFee decimal.Decimal
	if len(o.Fills) > 0 {
		last := o.Fills[len(o.Fills)-1]
		fillAmount, fillFee = last.Amount, last.Fee
	} else {
		fillAmount, fillFee = o.FilledAmount, o.Fee
	}

	trade := position.Trade{Side: o.Side, Amount: fillAmount, Price: o.AveragePrice, Fee: fillFee, At: o.UpdatedAt}
	pos, err := c.positions.UpdateFromTrade(ctx, o.UserID, o.Exchange, base, trade)
	if err != nil {
		if c.log != nil {
			c.log.Warn("coordinator: position update failed", zap.String("orderId", o.ID), zap.Error(err))
		}
		return err
	}

	if o.StrategyID != "" {
		c.strategies.RecordTrade(o.StrategyID, strategy.TradeRecord{
			Pair: o.Pair, Side: strategy.Action(o.Side), Amount: fillAmount,
			Price: o.AveragePrice, Fee: fillFee, RealizedPnL: pos.RealizedPnL,
		})
	}
	return nil
}

// handleCircuitBreaker implements "circuitBreakerTriggered -> deactivate
// all user strategies + cancel all active user orders", per spec §4.9.
func (c *Coordinator) handleCircuitBreaker(ctx context.Context, payload any) error {
	data, ok := payload.(map[string]any)
	if !ok {
		return nil
	}
	userID, _ := data["userId"].(string)
	if userID == "" {
		return nil
	}

	c.strategies.DeactivateAllForUser(userID)

	for _, o := range c.orders.GetUserOrders(userID, order.Filters{}) {
		if o.Status == order.StatusFilled || o.Status == order.StatusCancelled || o.Status == order.StatusRejected || o.Status == order.StatusExpired {
			continue
		}
		if err := c.orders.CancelOrder(ctx, o.ID); err != nil && c.log != nil {
			c.log.Warn("coordinator: cancel on circuit breaker failed", zap.String("orderId", o.ID), zap.Error(err))
		}
	}
	return nil
}

// buildPortfolio assembles a risk.Portfolio snapshot from the position
// ledger, marking the signal's own pair at its signal price for want of a
// live aggregator quote at the point of this call. initialEquity is
// lazily seeded from the first observed equity per user, since the
// coordinator has no separate account-equity ledger of its own.
func (c *Coordinator) buildPortfolio(userID, signalPair string, price decimal.Decimal) risk.Portfolio {
	prices := map[string]decimal.Decimal{}
	if base, _ := pair.Split(signalPair); base != "" && price.IsPositive() {
		prices[base] = price
	}
	summary :=c.positions.GetPortfolioSummary(userID, prices)

	equityNow, _ := summary.TotalValue.Float64()

	c.mu.Lock()
	initial, seen := c.initialEquity[userID]
	if !seen {
		initial = equityNow
		c.initialEquity[userID] = initial
	}
	c.mu.Unlock()

	assetValues := make(map[string]float64, len(summary.Positions))
	for _, p := range summary.Positions {
		val, _ := p.TotalAmount.Mul(p.AvgEntryPrice).Float64()
		assetValues[p.Asset] = val
	}
	if base, _ := pair.Split(signalPair); base != "" {
		if _, ok := assetValues[base]; !ok {
			assetValues[base] = 0
		}
	}

	return risk.Portfolio{
		InitialEquity:   initial,
		EquityNow:       equityNow,
		PortfolioValue:  equityNow,
		CurrentExposure: equityNow,
		AssetValues:     assetValues,
	}
}

func amountFloat(d decimal.Decimal) float64 {
	v, _ := d.Float64()
	return v
}

func priceFloat(d decimal.Decimal) float64 {
	v, _ := d.Float64()
	return v
}
