// Package columnar implements the columnar candle store described in spec
// §4.2: one compressed file per calendar month, merged and rewritten
// atomically on every append. Records are stored candle by candle
// (row-major), not column by column. The teacher persisted everything in
// SQLite and has no direct analog for this component; the layout and
// read-merge-rewrite discipline instead follow spec §4.2/§5 directly, using
// the teacher's write-tmp-then-rename habit seen in its WAL writer
// (order/persistent_queue.go).
package columnar

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Candle is the OHLCV record of spec §3. Timestamp is epoch milliseconds.
type Candle struct {
	Timestamp int64
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// Valid reports whether c satisfies spec §3's candle invariants.
func (c Candle) Valid() bool {
	if c.Volume.IsNegative() {
		return false
	}
	if !c.Close.IsPositive() {
		return false
	}
	lowOK := c.Low.LessThanOrEqual(c.Open) && c.Low.LessThanOrEqual(c.Close) && c.Low.LessThanOrEqual(c.High)
	highOK := c.High.GreaterThanOrEqual(c.Open) && c.High.GreaterThanOrEqual(c.Close)
	return lowOK && highOK
}

// dedupeAndSort merges a new batch into the existing candles, keeping the
// last write for any duplicate timestamp and returning the result sorted
// ascending by timestamp, per spec §4.2's append contract.
func dedupeAndSort(existing, incoming []Candle) []Candle {
	byTS := make(map[int64]Candle, len(existing)+len(incoming))
	for _, c := range existing {
		byTS[c.Timestamp] = c
	}
	for _, c := range incoming {
		byTS[c.Timestamp] = c // last write wins
	}

	out := make([]Candle, 0, len(byTS))
	for _, c := range byTS {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}
