// Package order implements the Order Manager & Validator of spec §4.7: a
// lifecycle state machine, creation/update validation rules, and a
// single-worker queue processor that submits to a venue gateway and
// accounts fills. Grounded on the teacher's internal/order/{types,queue,
// executor}.go (Order shape, channel-backed Queue, Gateway submission
// flow), adapted to decimal monetary fields and the spec's exact
// lifecycle/validator rules.
package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is one state in the order lifecycle of spec §4.7.
type Status string

const (
	StatusPending  Status = "pending"
	StatusOpen     Status = "open"
	StatusPartial  Status = "partial"
	StatusFilled   Status = "filled"
	StatusCancelled Status = "cancelled"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

// terminal returns true for statuses a transition can never leave.
func (s Status) terminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// transitions enumerates the monotonic edges of spec §4.7's lifecycle.
var transitions = map[Status][]Status{
	StatusPending: {StatusOpen, StatusRejected},
	StatusOpen:    {StatusPartial, StatusFilled, StatusCancelled, StatusRejected, StatusExpired},
	StatusPartial: {StatusFilled, StatusCancelled, StatusExpired},
}

func (s Status) canTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Fill is one execution against an order.
type Fill struct {
	Price  decimal.Decimal
	Amount decimal.Decimal
	Fee    decimal.Decimal
	At     time.Time
}

// Order is the order-intent/lifecycle record of spec §4.7.
type Order struct {
	ID       string
	UserID   string
	Exchange string
	Pair     string
	Type     string // market, limit, stop, stop_limit, oco
	Side     string // buy, sell
	TIF      string // GTC, IOC, FOK

	Amount    decimal.Decimal
	Price     decimal.Decimal // required for limit/stop_limit/oco
	StopPrice decimal.Decimal // required for stop/stop_limit/oco

	Status Status
	Fills  []Fill

	FilledAmount   decimal.Decimal
	RemainingAmount decimal.Decimal
	AveragePrice   decimal.Decimal
	Fee            decimal.Decimal

	StrategyID string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// applyFill appends a fill and recomputes filledAmount/averagePrice/fee,
// transitioning to filled (remaining<=0) or partial, per spec §4.7.
func (o *Order) applyFill(f Fill) {
	o.Fills = append(o.Fills, f)

	prevFilled := o.FilledAmount
	prevNotional := o.AveragePrice.Mul(prevFilled)

	o.FilledAmount = o.FilledAmount.Add(f.Amount)
	o.Fee = o.Fee.Add(f.Fee)
	o.RemainingAmount = o.Amount.Sub(o.FilledAmount)

	newNotional := prevNotional.Add(f.Price.Mul(f.Amount))
	if o.FilledAmount.IsPositive() {
		o.AveragePrice = newNotional.Div(o.FilledAmount)
	}

	o.UpdatedAt = time.Now()
	if o.RemainingAmount.Sign() <= 0 {
		o.Status = StatusFilled
	} else {
		o.Status = StatusPartial
	}
}
