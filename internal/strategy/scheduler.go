package strategy

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"tradingcore/internal/events"
)

// MarketCache is the read side of the market-data aggregator the scheduler
// pulls a MarketContext from, per spec §4.5. internal/market.Aggregator
// satisfies this.
type MarketCache interface {
	Snapshot(pair string) (MarketContext, bool)
}

// instance tracks one registered strategy's runtime state: its current
// lifecycle State, its user/pair binding, and today's trade count for the
// daily-trade-limit check.
type instance struct {
	strategy       Strategy
	userID         string
	pair           string
	state          State
	maxDailyTrades int
	tradeDate      string
	tradeCount     int
}

// Scheduler maintains strategies[] and runningStrategies per spec §4.5: a
// periodic tick (default 30s) acquires a non-reentrant guard and iterates
// active strategies, building a MarketContext from the aggregator cache,
// invoking GenerateSignal, and emitting trading:strategySignal for any
// non-hold action. Adapted from the teacher's strategy Engine
// (engine.go), generalized from a single price-stream consumer to a
// ticker-driven scan over the aggregator's cached snapshots.
type Scheduler struct {
	mu         sync.Mutex
	instances  map[string]*instance
	cache      MarketCache
	bus        *events.Bus
	log        *zap.Logger
	tickPeriod time.Duration
	ticking    int32 // non-reentrant guard, CAS'd
}

func NewScheduler(cache MarketCache, bus *events.Bus, log *zap.Logger) *Scheduler {
	return &Scheduler{
		instances:  make(map[string]*instance),
		cache:      cache,
		bus:        bus,
		log:        log,
		tickPeriod: 30 * time.Second,
	}
}

// Register adds a strategy instance in the inactive state.
func (s *Scheduler) Register(strat Strategy, userID, pair string, maxDailyTrades int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances[strat.ID()] = &instance{
		strategy:       strat,
		userID:         userID,
		pair:           pair,
		state:          StateInactive,
		maxDailyTrades: maxDailyTrades,
	}
}

// Activate transitions a strategy inactive->active (or paused->active).
func (s *Scheduler) Activate(id string) error {
	return s.transition(id, StateActive)
}

// Deactivate transitions a strategy to inactive from any non-terminal
// state, and is also the first half of the only way to clear an errored
// strategy (deactivate then activate).
func (s *Scheduler) Deactivate(id string) error {
	s.mu.Lock()
	inst, ok := s.instances[id]
	if ok {
		inst.state = StateInactive
	}
	s.mu.Unlock()
	if !ok {
		return &unknownStrategyError{id}
	}
	return nil
}

// Pause transitions an active strategy to paused.
func (s *Scheduler) Pause(id string) error {
	return s.transition(id, StatePaused)
}

func (s *Scheduler) transition(id string, next State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[id]
	if !ok {
		return &unknownStrategyError{id}
	}
	if !inst.state.transition(next) {
		return &invalidTransitionError{from: inst.state, to: next}
	}
	inst.state = next
	return nil
}

// DeactivateAllForUser deactivates every registered strategy belonging to
// userID and returns their ids, for the coordinator's
// circuitBreakerTriggered handler (spec §4.9).
func (s *Scheduler) DeactivateAllForUser(userID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, inst := range s.instances {
		if inst.userID == userID {
			inst.state = StateInactive
			ids = append(ids, id)
		}
	}
	return ids
}

// RecordTrade forwards t to strategyID's instance if it implements
// TradeRecorder, per spec §4.9. Reports whether the strategy was found.
func (s *Scheduler) RecordTrade(strategyID string, t TradeRecord) bool {
	s.mu.Lock()
	inst, ok := s.instances[strategyID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	if recorder, ok := inst.strategy.(TradeRecorder); ok {
		recorder.RecordTrade(t)
	}
	return true
}

// Start runs the periodic tick loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.tickPeriod)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

// tick acquires the non-reentrant guard and scans all active strategies.
func (s *Scheduler) tick() {
	if !atomic.CompareAndSwapInt32(&s.ticking, 0, 1) {
		return // previous tick still running; skip this one
	}
	defer atomic.StoreInt32(&s.ticking, 0)

	s.mu.Lock()
	active := make([]*instance, 0, len(s.instances))
	for _, inst := range s.instances {
		if inst.state == StateActive {
			active = append(active, inst)
		}
	}
	s.mu.Unlock()

	for _, inst := range active {
		s.evaluate(inst)
	}
}

func (s *Scheduler) evaluate(inst *instance) {
	mctx, ok := s.cache.Snapshot(inst.pair)
	if !ok {
		return
	}

	s.mu.Lock()
	today := time.UnixMilli(mctx.Timestamp).Format("2006-01-02")
	if inst.tradeDate != today {
		inst.tradeDate = today
		inst.tradeCount = 0
	}
	limitHit := inst.maxDailyTrades > 0 && inst.tradeCount >= inst.maxDailyTrades
	s.mu.Unlock()
	if limitHit {
		return
	}

	signal, err := inst.strategy.GenerateSignal(mctx)
	if err != nil {
		s.mu.Lock()
		inst.state = StateError
		s.mu.Unlock()
		if s.log != nil {
			s.log.Error("strategy signal error", zap.String("strategyId", inst.strategy.ID()), zap.Error(err))
		}
		return
	}
	if signal.Action == ActionHold {
		return
	}

	signal.StrategyID = inst.strategy.ID()
	signal.UserID = inst.userID
	if signal.Pair == "" {
		signal.Pair = inst.pair
	}

	s.mu.Lock()
	inst.tradeCount++
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Publish(context.Background(), events.EventStrategySignal, signal, events.PublishOptions{})
	}
}

type unknownStrategyError struct{ id string }

func (e *unknownStrategyError) Error() string { return "strategy not registered: " + e.id }

type invalidTransitionError struct {
	from, to State
}

func (e *invalidTransitionError) Error() string {
	return "invalid strategy state transition: " + string(e.from) + " -> " + string(e.to)
}
