package order

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradingcore/internal/errs"
	"tradingcore/internal/events"
	"tradingcore/pkg/cache"
	exchange "tradingcore/pkg/exchanges/common"
	"tradingcore/pkg/store"
)

// Filters narrows getUserOrders, per spec §4.7.
type Filters struct {
	Pair   string
	Status Status
}

// Stats is getOrderStats's return shape, per spec §4.7.
type Stats struct {
	Total     int
	Open      int
	Filled    int
	Cancelled int
	Rejected  int
}

// Manager implements createOrder/getOrder/getUserOrders/updateOrder/
// cancelOrder/getOrderStats of spec §4.7, backed by a TTL cache (24h,
// per cache.TTLOrder) in front of a pkg/store blob table for durability,
// and a single-worker queue processor that submits to a venue Gateway.
// GetOrder reads the cache first and only falls through to the
// in-memory index once an entry has aged out; every write updates both.
// Grounded on the teacher's internal/order/executor.go submission flow,
// replacing its DB-specific, per-strategy gateway resolution with a
// single injected exchange.Gateway per Manager instance.
type Manager struct {
	mu        sync.RWMutex
	orders    map[string]*Order
	validator ValidatorConfig
	store     *store.Store
	bus       *events.Bus
	gateway   exchange.Gateway
	cache     cache.Cache
	queue     *Queue
	log       *zap.Logger
}

// NewManager wires a Manager. c may be nil, in which case an in-memory
// cache.Memory backs order lookups; pass cache.NewRedis(...) in production
// to share the order cache across processes.
func NewManager(st *store.Store, bus *events.Bus, gw exchange.Gateway, c cache.Cache, log *zap.Logger) *Manager {
	if c == nil {
		c = cache.NewMemory()
	}
	return &Manager{
		orders:    make(map[string]*Order),
		validator: DefaultValidatorConfig(),
		store:     st,
		bus:       bus,
		gateway:   gw,
		cache:     c,
		queue:     NewQueue(256),
		log:       log,
	}
}

func (m *Manager) cacheKey(id string) string { return "order:" + id }

// cacheSet mirrors o into the TTL cache; failures are logged, not fatal,
// since m.orders/m.store remain the durable source of truth.
func (m *Manager) cacheSet(ctx context.Context, o Order) {
	data, err := json.Marshal(o)
	if err != nil {
		return
	}
	if err := m.cache.Set(ctx, m.cacheKey(o.ID), data, cache.TTLOrder); err != nil && m.log != nil {
		m.log.Warn("order: cache set failed", zap.String("orderId", o.ID), zap.Error(err))
	}
}

func (m *Manager) cacheGet(ctx context.Context, id string) (Order, bool) {
	data, ok, err := m.cache.Get(ctx, m.cacheKey(id))
	if err != nil || !ok {
		return Order{}, false
	}
	var o Order
	if err := json.Unmarshal(data, &o); err != nil {
		return Order{}, false
	}
	return o, true
}

// Start runs the single-worker queue processor until ctx is cancelled,
// per spec §4.7.
func (m *Manager) Start(ctx context.Context) {
	m.queue.Drain(ctx, func(o Order) { m.process(ctx, o) })
}

// CreateOrder validates, caches with persistence, enqueues, and emits
// orderCreated, per spec §4.7.
func (m *Manager) CreateOrder(ctx context.Context, o Order) (Order, error) {
	if err := m.validator.ValidateCreate(o); err != nil {
		return Order{}, err
	}

	o.ID = uuid.NewString()
	o.Status = StatusPending
	o.RemainingAmount = o.Amount
	o.FilledAmount = decimal.Zero
	o.AveragePrice = decimal.Zero
	o.Fee = decimal.Zero
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt

	m.mu.Lock()
	m.orders[o.ID] = &o
	m.mu.Unlock()

	m.persist(ctx, o)
	m.cacheSet(ctx, o)

	if m.bus != nil {
		m.bus.Publish(ctx, events.EventOrderCreated, o, events.PublishOptions{})
	}

	m.queue.Enqueue(o)
	return o, nil
}

func (m *Manager) GetOrder(id string) (Order, bool) {
	if o, ok := m.cacheGet(context.Background(), id); ok {
		return o, true
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

func (m *Manager) GetUserOrders(userID string, f Filters) []Order {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Order
	for _, o := range m.orders {
		if o.UserID != userID {
			continue
		}
		if f.Pair != "" && o.Pair != f.Pair {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, *o)
	}
	return out
}

// UpdateOrder applies spec §4.7's update rules: amount may only decrease
// and never below filledAmount; a terminal order cannot be updated.
func (m *Manager) UpdateOrder(ctx context.Context, id string, newAmount decimal.Decimal) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return Order{}, errs.New(errs.NotFound, "order not found")
	}
	if err := m.validator.ValidateUpdate(*o, newAmount); err != nil {
		return Order{}, err
	}

	o.Amount = newAmount
	o.RemainingAmount = newAmount.Sub(o.FilledAmount)
	o.UpdatedAt = time.Now()
	m.persist(ctx, *o)
	m.cacheSet(ctx, *o)
	return *o, nil
}

// CancelOrder transitions a non-terminal order to cancelled and emits
// orderCancelled, per spec §4.7.
func (m *Manager) CancelOrder(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return errs.New(errs.NotFound, "order not found")
	}
	if o.Status.terminal() {
		return errs.New(errs.Conflict, "cannot cancel a terminal order")
	}

	o.Status = StatusCancelled
	o.UpdatedAt = time.Now()
	m.persist(ctx, *o)
	m.cacheSet(ctx, *o)

	if m.bus != nil {
		m.bus.Publish(ctx, events.EventOrderCancelled, *o, events.PublishOptions{})
	}
	return nil
}

func (m *Manager) GetOrderStats(userID string) Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var s Stats
	for _, o := range m.orders {
		if o.UserID != userID {
			continue
		}
		s.Total++
		switch o.Status {
		case StatusOpen, StatusPartial, StatusPending:
			s.Open++
		case StatusFilled:
			s.Filled++
		case StatusCancelled:
			s.Cancelled++
		case StatusRejected:
			s.Rejected++
		}
	}
	return s
}

// process is the single-worker processor of spec §4.7: marks the order
// open, emits orderOpened, submits to the venue gateway (or simulates an
// immediate fill when no gateway is configured), and accounts the result.
func (m *Manager) process(ctx context.Context, o Order) {
	m.mu.Lock()
	current, ok := m.orders[o.ID]
	if !ok {
		m.mu.Unlock()
		return
	}
	current.Status = StatusOpen
	current.UpdatedAt = time.Now()
	snapshot := *current
	m.cacheSet(ctx, snapshot)
	m.mu.Unlock()

	if m.bus != nil {
		m.bus.Publish(ctx, events.EventOrderOpened, snapshot, events.PublishOptions{})
	}

	fillPrice, fillErr := m.submit(ctx, snapshot)
	if fillErr != nil {
		m.mu.Lock()
		current.Status = StatusRejected
		current.UpdatedAt = time.Now()
		m.persist(ctx, *current)
		m.cacheSet(ctx, *current)
		m.mu.Unlock()

		if m.bus != nil {
			m.bus.Publish(ctx, events.EventOrderRejected, map[string]string{"orderId": o.ID, "reason": fillErr.Error()}, events.PublishOptions{})
		}
		return
	}

	m.mu.Lock()
	current.applyFill(Fill{Price: fillPrice, Amount: current.RemainingAmount, At: time.Now()})
	final := *current
	m.persist(ctx, final)
	m.cacheSet(ctx, final)
	m.mu.Unlock()

	if m.bus == nil {
		return
	}
	if final.Status == StatusFilled {
		m.bus.Publish(ctx, events.EventOrderFilled, final, events.PublishOptions{})
		m.bus.Publish(ctx, events.EventOrderCompleted, final, events.PublishOptions{})
	} else {
		m.bus.Publish(ctx, events.EventOrderPartiallyFilled, final, events.PublishOptions{})
	}
}

// submit sends the order to the configured venue gateway, returning the
// execution price. With no gateway configured it simulates an immediate
// fill at the order's limit price (or zero for market orders, left to the
// caller's market-data layer to reconcile), matching the teacher's
// dry-run fallback behavior.
func (m *Manager) submit(ctx context.Context, o Order) (decimal.Decimal, error) {
	if m.gateway == nil {
		return o.Price, nil
	}

	req := exchange.OrderRequest{
		Symbol:      o.Pair,
		Side:        exchange.Side(sideUpper(o.Side)),
		Type:        exchange.OrderType(typeUpper(o.Type)),
		Qty:         o.Amount.InexactFloat64(),
		Price:       o.Price.InexactFloat64(),
		StopPrice:   o.StopPrice.InexactFloat64(),
		TimeInForce: exchange.TimeInForce(o.TIF),
		ClientID:    o.ID,
	}

	res, err := m.gateway.SubmitOrder(ctx, req)
	if err != nil {
		return decimal.Zero, err
	}
	if res.Status == exchange.StatusRejected {
		return decimal.Zero, fmt.Errorf("order rejected by venue")
	}
	return o.Price, nil
}

func sideUpper(s string) string {
	switch s {
	case "buy":
		return "BUY"
	case "sell":
		return "SELL"
	}
	return s
}

func typeUpper(t string) string {
	switch t {
	case "market":
		return "MARKET"
	case "limit":
		return "LIMIT"
	case "stop":
		return "STOP_LOSS"
	case "stop_limit":
		return "STOP_LOSS_LIMIT"
	default:
		return t
	}
}

func (m *Manager) persist(ctx context.Context, o Order) {
	if m.store == nil {
		return
	}
	data, err := json.Marshal(o)
	if err != nil {
		return
	}
	if err := m.store.SaveOrder(ctx, o.ID, o.UserID, string(o.Status), data); err != nil && m.log != nil {
		m.log.Warn("order: persist failed", zap.String("orderId", o.ID), zap.Error(err))
	}
}
