package coordinator

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradingcore/internal/events"
	"tradingcore/internal/order"
	"tradingcore/internal/position"
	"tradingcore/internal/risk"
	"tradingcore/internal/strategy"
)

type fakeRisk struct {
	result risk.Result
}

func (f *fakeRisk) CheckTrade(ctx context.Context, userID string, trade risk.TradeParams, portfolio risk.Portfolio) risk.Result {
	return f.result
}

type fakeOrders struct {
	created   []order.Order
	cancelled []string
	byUser    []order.Order
	createErr error
}

func (f *fakeOrders) CreateOrder(ctx context.Context, o order.Order) (order.Order, error) {
	if f.createErr != nil {
		return order.Order{}, f.createErr
	}
	o.ID = "order-1"
	f.created = append(f.created, o)
	return o, nil
}

func (f *fakeOrders) GetUserOrders(userID string, filters order.Filters) []order.Order {
	return f.byUser
}

func (f *fakeOrders) CancelOrder(ctx context.Context, id string) error {
	f.cancelled = append(f.cancelled, id)
	return nil
}

type fakePositions struct {
	updated  []position.Trade
	updateID string
	summary  position.PortfolioSummary
	result   position.Position
}

func (f *fakePositions) UpdateFromTrade(ctx context.Context, userID, exchange, asset string, t position.Trade) (position.Position, error) {
	f.updated = append(f.updated, t)
	f.updateID = asset
	return f.result, nil
}

func (f *fakePositions) GetPortfolioSummary(userID string, prices map[string]decimal.Decimal) position.PortfolioSummary {
	return f.summary
}

type fakeStrategies struct {
	deactivated  []string
	recorded     []strategy.TradeRecord
	recordedFor  string
	recordResult bool
}

func (f *fakeStrategies) DeactivateAllForUser(userID string) []string {
	f.deactivated = append(f.deactivated, userID)
	return []string{"strat-1"}
}

func (f *fakeStrategies) RecordTrade(strategyID string, t strategy.TradeRecord) bool {
	f.recordedFor = strategyID
	f.recorded = append(f.recorded, t)
	return f.recordResult
}

func newTestCoordinator(r *fakeRisk, o *fakeOrders, p *fakePositions, s *fakeStrategies) (*Coordinator, *events.Bus) {
	bus := events.NewBus()
	c := New(bus, r, o, p, s, nil, nil)
	c.Start()
	return c, bus
}

func TestHandleSignalAllowedCreatesOrder(t *testing.T) {
	r := &fakeRisk{result: risk.Result{Allowed: true}}
	o := &fakeOrders{}
	p := &fakePositions{}
	s := &fakeStrategies{}
	c, _ := newTestCoordinator(r, o, p, s)

	sig := strategy.Signal{
		StrategyID: "strat-1",
		UserID:     "user-1",
		Pair:       "BTC/USDT",
		Action:     strategy.ActionBuy,
		Amount:     decimal.NewFromFloat(0.5),
		Price:      decimal.NewFromFloat(30000),
	}
	err := c.handleSignal(context.Background(), sig)
	require.NoError(t, err)

	require.Len(t, o.created, 1)
	assert.Equal(t, "user-1", o.created[0].UserID)
	assert.Equal(t, "BTC/USDT", o.created[0].Pair)
	assert.Equal(t, c.DefaultExchange, o.created[0].Exchange)
	assert.Equal(t, string(strategy.ActionBuy), o.created[0].Side)
}

func TestHandleSignalDeniedPublishesSignalBlocked(t *testing.T) {
	r := &fakeRisk{result: risk.Result{Allowed: false, FailedChecks: []risk.CheckResult{{Name: "dailyLoss", Reason: "exceeded daily loss limit"}}}}
	o := &fakeOrders{}
	p := &fakePositions{}
	s := &fakeStrategies{}
	c, bus := newTestCoordinator(r, o, p, s)

	received := make(chan map[string]any, 1)
	bus.Subscribe(events.EventSignalBlocked, func(ctx context.Context, payload any) error {
		received <- payload.(map[string]any)
		return nil
	}, events.SubscribeOptions{})

	sig := strategy.Signal{
		StrategyID: "strat-1",
		UserID:     "user-1",
		Pair:       "BTC/USDT",
		Action:     strategy.ActionSell,
		Amount:     decimal.NewFromFloat(1),
		Price:      decimal.NewFromFloat(30000),
	}
	err := c.handleSignal(context.Background(), sig)
	require.NoError(t, err)
	assert.Empty(t, o.created)

	select {
	case payload := <-received:
		checks := payload["failedChecks"].([]risk.CheckResult)
		require.Len(t, checks, 1)
		assert.Equal(t, "dailyLoss", checks[0].Name)
	default:
		t.Fatal("expected trading:signalBlocked to be published")
	}
}

func TestHandleSignalHoldIsNoop(t *testing.T) {
	r := &fakeRisk{result: risk.Result{Allowed: true}}
	o := &fakeOrders{}
	p := &fakePositions{}
	s := &fakeStrategies{}
	c, _ := newTestCoordinator(r, o, p, s)

	err := c.handleSignal(context.Background(), strategy.Signal{Action: strategy.ActionHold})
	require.NoError(t, err)
	assert.Empty(t, o.created)
}

func TestHandleOrderFilledUpdatesPositionAndRecordsTrade(t *testing.T) {
	r := &fakeRisk{}
	o := &fakeOrders{}
	p := &fakePositions{result: position.Position{RealizedPnL: decimal.NewFromFloat(12.5)}}
	s := &fakeStrategies{}
	c, _ := newTestCoordinator(r, o, p, s)

	ord := order.Order{
		ID:            "order-1",
		UserID:        "user-1",
		Exchange:      "primary",
		Pair:          "BTC/USDT",
		Side:          "buy",
		Status:        order.StatusFilled,
		FilledAmount:  decimal.NewFromFloat(0.5),
		AveragePrice:  decimal.NewFromFloat(30000),
		Fee:           decimal.NewFromFloat(1.5),
		StrategyID:    "strat-1",
	}
	err := c.handleOrderFilled(context.Background(), ord)
	require.NoError(t, err)

	require.Len(t, p.updated, 1)
	assert.Equal(t, "BTC", p.updateID)
	assert.True(t, p.updated[0].Amount.Equal(decimal.NewFromFloat(0.5)))

	require.Len(t, s.recorded, 1)
	assert.Equal(t, "strat-1", s.recordedFor)
	assert.True(t, s.recorded[0].RealizedPnL.Equal(decimal.NewFromFloat(12.5)))
}

func TestHandleOrderFilledWithoutStrategyIDSkipsRecordTrade(t *testing.T) {
	r := &fakeRisk{}
	o := &fakeOrders{}
	p := &fakePositions{}
	s := &fakeStrategies{}
	c, _ := newTestCoordinator(r, o, p, s)

	ord := order.Order{
		ID:           "order-1",
		UserID:       "user-1",
		Pair:         "ETH/USDT",
		Side:         "sell",
		FilledAmount: decimal.NewFromFloat(2),
		AveragePrice: decimal.NewFromFloat(2000),
	}
	err := c.handleOrderFilled(context.Background(), ord)
	require.NoError(t, err)
	assert.Empty(t, s.recorded)
}

func TestHandleCircuitBreakerDeactivatesAndCancelsOrders(t *testing.T) {
	r := &fakeRisk{}
	o := &fakeOrders{byUser: []order.Order{
		{ID: "order-open", Status: order.StatusOpen},
		{ID: "order-filled", Status: order.StatusFilled},
		{ID: "order-partial", Status: order.StatusPartial},
	}}
	p := &fakePositions{}
	s := &fakeStrategies{}
	c, _ := newTestCoordinator(r, o, p, s)

	err := c.handleCircuitBreaker(context.Background(), map[string]any{"userId": "user-1"})
	require.NoError(t, err)

	assert.Equal(t, []string{"user-1"}, s.deactivated)
	assert.ElementsMatch(t, []string{"order-open", "order-partial"}, o.cancelled)
}

func TestHandleCircuitBreakerIgnoresMalformedPayload(t *testing.T) {
	r := &fakeRisk{}
	o := &fakeOrders{}
	p := &fakePositions{}
	s := &fakeStrategies{}
	c, _ := newTestCoordinator(r, o, p, s)

	err := c.handleCircuitBreaker(context.Background(), "not a map")
	require.NoError(t, err)
	assert.Empty(t, s.deactivated)
}
