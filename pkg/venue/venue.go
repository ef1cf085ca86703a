// Package venue defines the per-exchange WebSocket client contract of spec
// §4.4: connect/subscribe/unsubscribe/disconnect/getStatus, emitting a
// normalized event stream the market aggregator fans in. Grounded on the
// teacher's pkg/market/binance/websocket.go (StreamClient), generalized
// from Binance-only channel methods into a venue-agnostic interface so
// pkg/venue/binance and pkg/venue/kraken can share the aggregator and the
// reconnect/backoff/heartbeat policy in backoff.go.
package venue

import (
	"context"

	"github.com/shopspring/decimal"
)

// DataType is the normalized payload kind carried by an Event, per spec
// §4.4.
type DataType string

const (
	DataTicker           DataType = "ticker"
	DataOrderbook        DataType = "orderbook"
	DataOrderbookUpdate  DataType = "orderbook_update"
	DataTrade            DataType = "trade"
	DataAggregatedTrade  DataType = "aggregated_trade"
)

// EventKind distinguishes connection lifecycle events from data events.
type EventKind string

const (
	EventConnected    EventKind = "connected"
	EventDisconnected EventKind = "disconnected"
	EventError        EventKind = "error"
	EventData         EventKind = "data"
)

// Event is the normalized shape every venue client emits, per spec §4.4.
type Event struct {
	Kind     EventKind
	Type     DataType // only set when Kind == EventData
	Exchange string
	Pair     string
	Data     any
	Code     int    // close code; the binance and kraken clients leave it zero
	Reason   string // set on EventDisconnected or EventError
	Timestamp int64
}

// Ticker is the normalized ticker payload carried in Event.Data.
type Ticker struct {
	BestBid decimal.Decimal
	BestAsk decimal.Decimal
	Last    decimal.Decimal
}

// Trade is the normalized trade payload carried in Event.Data.
type Trade struct {
	Price     decimal.Decimal
	Amount    decimal.Decimal
	Side      string
	TradeTime int64
}

// OrderbookLevel is one price/size pair in a normalized order book.
type OrderbookLevel struct {
	Price  decimal.Decimal
	Amount decimal.Decimal
}

// Orderbook is the normalized order book snapshot/update payload.
type Orderbook struct {
	Bids []OrderbookLevel
	Asks []OrderbookLevel
}

// Status is the connection status reported by GetStatus.
type Status struct {
	Connected   bool
	Subscriptions []string // "channel:pair" keys currently subscribed
	LastMessageAt int64
	ReconnectAttempts int
}

// Client is the per-venue contract of spec §4.4.
type Client interface {
	Connect(ctx context.Context) error
	Subscribe(channel, pair string) error
	Unsubscribe(channel, pair string) error
	Disconnect() error
	GetStatus() Status
	// Events returns the channel the client publishes normalized Events
	// on. The channel is closed after Disconnect completes.
	Events() <-chan Event
	// Exchange identifies the venue, e.g. "binance", "kraken".
	Exchange() string
}
