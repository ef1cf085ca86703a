// Package position implements the Position Manager of spec §4.8: cost-
// basis/realized-P&L accounting per "userId:exchange:asset", available/
// locked amount bookkeeping, and portfolio reports. Grounded on the
// teacher's internal/balance/manager.go (mutex-guarded cache, lock/unlock
// shape, available vs. locked split), generalized from one account-wide
// balance to a keyed map of positions and from float64 to decimal.
package position

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tradingcore/internal/errs"
	"tradingcore/pkg/store"
)

// Trade is one fill applied to a position via UpdateFromTrade. RealizedPnL
// is set only for sell trades, per spec §4.8's "record trade with its
// realized amount".
type Trade struct {
	Side        string // buy or sell
	Amount      decimal.Decimal
	Price       decimal.Decimal
	Fee         decimal.Decimal
	RealizedPnL decimal.Decimal
	At          time.Time
}

// Position is the per-asset accounting record of spec §4.8.
type Position struct {
	UserID   string
	Exchange string
	Asset    string

	TotalAmount     decimal.Decimal
	AvailableAmount decimal.Decimal
	LockedAmount    decimal.Decimal
	TotalCost       decimal.Decimal
	AvgEntryPrice   decimal.Decimal
	TotalFees       decimal.Decimal
	RealizedPnL     decimal.Decimal
	UnrealizedPnL   decimal.Decimal

	Trades []Trade
}

func key(userID, exchange, asset string) string {
	return userID + ":" + exchange + ":" + asset
}

// Manager keys positions by "userId:exchange:asset", per spec §4.8, guarding
// each key with its own *sync.Mutex rather than one lock for the whole
// table: two goroutines updating different users' positions never block
// each other. positions itself is a sync.Map so inserting a never-seen key
// needs no separate structural lock.
type Manager struct {
	locks     sync.Map // string -> *sync.Mutex
	positions sync.Map // string -> *Position
	store     *store.Store
}

func NewManager(st *store.Store) *Manager {
	return &Manager{store: st}
}

// lockFor returns the per-key mutex for k, creating it on first use.
func (m *Manager) lockFor(k string) *sync.Mutex {
	l, _ := m.locks.LoadOrStore(k, &sync.Mutex{})
	return l.(*sync.Mutex)
}

// get returns the position for (userID, exchange, asset), loading it from
// the store on first touch. Callers must hold lockFor(key(...)).
func (m *Manager) get(ctx context.Context, userID, exchange, asset string) *Position {
	k := key(userID, exchange, asset)
	if v, ok := m.positions.Load(k); ok {
		return v.(*Position)
	}

	p := &Position{
		UserID: userID, Exchange: exchange, Asset: asset,
		TotalAmount: decimal.Zero, AvailableAmount: decimal.Zero, LockedAmount: decimal.Zero,
		TotalCost: decimal.Zero, AvgEntryPrice: decimal.Zero, TotalFees: decimal.Zero,
		RealizedPnL: decimal.Zero, UnrealizedPnL: decimal.Zero,
	}
	if m.store != nil {
		if raw, err := m.store.LoadPosition(ctx, k); err == nil && raw != nil {
			_ = json.Unmarshal(raw, p)
		}
	}
	actual, _ := m.positions.LoadOrStore(k, p)
	return actual.(*Position)
}

func (m *Manager) persist(ctx context.Context, p *Position) {
	if m.store == nil {
		return
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	_ = m.store.SavePosition(ctx, key(p.UserID, p.Exchange, p.Asset), raw)
}

// UpdateFromTrade applies a fill's cost-basis/realized-P&L effect, per
// spec §4.8's exact buy/sell formulas.
func (m *Manager) UpdateFromTrade(ctx context.Context, userID, exchange, asset string, t Trade) (Position, error) {
	lock := m.lockFor(key(userID, exchange, asset))
	lock.Lock()
	defer lock.Unlock()

	p := m.get(ctx, userID, exchange, asset)

	switch t.Side {
	case "buy":
		cost := t.Amount.Mul(t.Price).Add(t.Fee)
		newTotalAmount := p.TotalAmount.Add(t.Amount)
		if newTotalAmount.IsPositive() {
			p.AvgEntryPrice = p.TotalCost.Add(cost).Div(newTotalAmount)
		}
		p.TotalAmount = newTotalAmount
		p.AvailableAmount = p.AvailableAmount.Add(t.Amount)
		p.TotalCost = p.TotalCost.Add(cost)
		p.TotalFees = p.TotalFees.Add(t.Fee)

	case "sell":
		costBasis := t.Amount.Mul(p.AvgEntryPrice)
		realized := t.Amount.Mul(t.Price).Sub(t.Fee).Sub(costBasis)

		p.TotalAmount = p.TotalAmount.Sub(t.Amount)
		p.AvailableAmount = p.AvailableAmount.Sub(t.Amount)
		p.TotalCost = decimal.Max(decimal.Zero, p.TotalCost.Sub(costBasis))
		p.RealizedPnL = p.RealizedPnL.Add(realized)
		p.TotalFees = p.TotalFees.Add(t.Fee)
		t.RealizedPnL = realized

	default:
		return Position{}, errs.New(errs.Validation, "trade side must be buy or sell")
	}

	p.Trades = append(p.Trades, t)
	m.persist(ctx, p)
	return *p, nil
}

// LockAmount moves amount from available to locked. Over-locking fails
// with a domain error, per spec §4.8.
func (m *Manager) LockAmount(ctx context.Context, userID, exchange, asset string, amount decimal.Decimal) error {
	lock := m.lockFor(key(userID, exchange, asset))
	lock.Lock()
	defer lock.Unlock()

	p := m.get(ctx, userID, exchange, asset)
	if amount.GreaterThan(p.AvailableAmount) {
		return errs.New(errs.Conflict, "cannot lock more than available amount")
	}
	p.AvailableAmount = p.AvailableAmount.Sub(amount)
	p.LockedAmount = p.LockedAmount.Add(amount)
	m.persist(ctx, p)
	return nil
}

// UnlockAmount moves amount from locked back to available. Over-unlocking
// fails with a domain error, per spec §4.8.
func (m *Manager) UnlockAmount(ctx context.Context, userID, exchange, asset string, amount decimal.Decimal) error {
	lock := m.lockFor(key(userID, exchange, asset))
	lock.Lock()
	defer lock.Unlock()

	p := m.get(ctx, userID, exchange, asset)
	if amount.GreaterThan(p.LockedAmount) {
		return errs.New(errs.Conflict, "cannot unlock more than locked amount")
	}
	p.LockedAmount = p.LockedAmount.Sub(amount)
	p.AvailableAmount = p.AvailableAmount.Add(amount)
	m.persist(ctx, p)
	return nil
}

// UpdateUnrealizedPnL recomputes unrealized = totalAmount*price - totalCost
// (zero when flat), per spec §4.8.
func (m *Manager) UpdateUnrealizedPnL(ctx context.Context, userID, exchange, asset string, currentPrice decimal.Decimal) Position {
	lock := m.lockFor(key(userID, exchange, asset))
	lock.Lock()
	defer lock.Unlock()

	p := m.get(ctx, userID, exchange, asset)
	if p.TotalAmount.IsPositive() {
		p.UnrealizedPnL = p.TotalAmount.Mul(currentPrice).Sub(p.TotalCost)
	} else {
		p.UnrealizedPnL = decimal.Zero
	}
	m.persist(ctx, p)
	return *p
}

func (m *Manager) Get(userID, exchange, asset string) (Position, bool) {
	k := key(userID, exchange, asset)
	lock := m.lockFor(k)
	lock.Lock()
	defer lock.Unlock()
	v, ok := m.positions.Load(k)
	if !ok {
		return Position{}, false
	}
	return *v.(*Position), true
}
