// Package risk implements the Risk Manager of spec §4.6: ten pre-trade
// checks run as a composite gate, a per-user circuit breaker, and a trade
// observer that keeps daily accounting current from fills. Grounded on
// the teacher's internal/risk/manager.go (mutex-guarded config/metrics,
// DB-backed persistence, log.Printf style), restructured from the
// teacher's single EvaluateSignal into the spec's named ten-check
// pipeline and its own CheckResult/composite-result shape.
package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"tradingcore/internal/events"
	"tradingcore/internal/order"
	"tradingcore/pkg/store"
)

// Result is checkTrade's composite verdict, per spec §4.6.
type Result struct {
	Allowed      bool
	Checks       []CheckResult
	FailedChecks []CheckResult
}

// Manager runs the ten pre-trade checks against per-user state, persisted
// through pkg/store's generic risk-state blob table.
type Manager struct {
	mu     sync.Mutex
	cfg    Config
	states map[string]*userState
	store  *store.Store
	bus    *events.Bus
	log    *zap.Logger
}

func NewManager(cfg Config, st *store.Store, bus *events.Bus, log *zap.Logger) *Manager {
	m := &Manager{cfg: cfg, states: make(map[string]*userState), store: st, bus: bus, log: log}
	if bus != nil {
		bus.Subscribe(events.EventOrderFilled, m.onOrderFilled, events.SubscribeOptions{})
	}
	return m
}

func (m *Manager) stateFor(ctx context.Context, userID string) *userState {
	if s, ok := m.states[userID]; ok {
		s.rolloverIfNewDay()
		return s
	}

	s := newUserState()
	if m.store != nil {
		if raw, err := m.store.LoadRiskState(ctx, userID); err == nil && raw != nil {
			_ = json.Unmarshal(raw, s)
		}
	}
	s.rolloverIfNewDay()
	m.states[userID] = s
	return s
}

func (m *Manager) persist(ctx context.Context, userID string, s *userState) {
	if m.store == nil {
		return
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return
	}
	if err := m.store.SaveRiskState(ctx, userID, raw); err != nil && m.log != nil {
		m.log.Warn("risk: persist state failed", zap.String("userId", userID), zap.Error(err))
	}
}

// CheckTrade runs all ten checks and returns the composite result, per
// spec §4.6. allowed = AND of every check's allowed flag. On any failure,
// emits risk:checkFailed; if a failure belongs to the circuit-breaker-
// triggering set, trips the breaker and emits risk:circuitBreakerTriggered.
func (m *Manager) CheckTrade(ctx context.Context, userID string, trade TradeParams, portfolio Portfolio) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.stateFor(ctx, userID)
	defer m.persist(ctx, userID, s)

	checks := []CheckResult{
		checkCircuitBreaker(s),
		checkDailyLoss(s, m.cfg, portfolio),
		checkDailyTradeCount(s, m.cfg),
		checkDailyVolume(s, m.cfg, trade),
		checkPositionSize(m.cfg, trade, portfolio),
		checkTotalExposure(m.cfg, trade, portfolio),
		checkAssetConcentration(m.cfg, trade, portfolio),
		checkCooldown(s, m.cfg),
		checkDrawdown(s, m.cfg, portfolio),
		checkConsecutiveLossesSlippageDeviation(s, m.cfg, trade),
	}

	result := Result{Allowed: true, Checks: checks}
	var breakerReasons []string
	for _, c := range checks {
		if c.Allowed {
			continue
		}
		result.Allowed = false
		result.FailedChecks = append(result.FailedChecks, c)
		if circuitBreakerTrips(c.Name) {
			breakerReasons = append(breakerReasons, c.Name)
		}
	}

	if !result.Allowed {
		if m.bus != nil {
			m.bus.Publish(ctx, events.EventRiskCheckFailed, result, events.PublishOptions{})
		}
		if len(breakerReasons) > 0 {
			m.trip(ctx, userID, s, breakerReasons)
		}
	}

	return result
}

func (m *Manager) trip(ctx context.Context, userID string, s *userState, reasons []string) {
	s.triggerCircuitBreaker(m.cfg.CircuitBreakerDuration, reasons)
	if m.bus != nil {
		m.bus.Publish(ctx, events.EventRiskCircuitBreakerTripped, map[string]any{
			"userId":      userID,
			"triggeredAt": s.CircuitBreakerTriggeredAt,
			"duration":    s.CircuitBreakerDuration,
			"reasons":     reasons,
		}, events.PublishOptions{})
	}
}

// Reset manually clears a user's circuit breaker, per spec §4.6.
func (m *Manager) Reset(ctx context.Context, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.stateFor(ctx, userID)
	s.clearCircuitBreaker()
	m.persist(ctx, userID, s)

	if m.bus != nil {
		m.bus.Publish(ctx, events.EventRiskCircuitBreakerReset, map[string]string{"userId": userID}, events.PublishOptions{})
	}
}

// TradeFill is the fill record the trade observer accounts. The order
// package publishes an order.Order on orderFilled, which the observer
// converts to a TradeFill with zero PnL, since an order carries no
// realized P&L; a TradeFill payload is accepted as is.
type TradeFill struct {
	UserID string
	Pair   string
	Amount float64
	Price  float64
	PnL    float64 // realized PnL net of fees, zero for non-closing fills
}

// onOrderFilled is the trade observer of spec §4.6: subscribes to
// trading:orderFilled, increments daily counters, updates realized PnL,
// and tracks consecutive losses (reset on a win).
func (m *Manager) onOrderFilled(ctx context.Context, payload any) error {
	fill, ok := payload.(TradeFill)
	if !ok {
		o, isOrder := payload.(order.Order)
		if !isOrder {
			return fmt.Errorf("risk: orderFilled payload has unexpected type %T", payload)
		}
		amount, _ := o.FilledAmount.Float64()
		price, _ := o.AveragePrice.Float64()
		fill = TradeFill{UserID: o.UserID, Pair: o.Pair, Amount: amount, Price: price}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.stateFor(ctx, fill.UserID)
	s.DailyTradeCount++
	s.DailyVolume += fill.Amount * fill.Price
	s.DailyRealizedPnL += fill.PnL
	s.LastTradeAt = time.Now()

	if fill.PnL < 0 {
		s.ConsecutiveLosses++
	} else if fill.PnL > 0 {
		s.ConsecutiveLosses = 0
	}

	m.persist(ctx, fill.UserID, s)
	return nil
}
