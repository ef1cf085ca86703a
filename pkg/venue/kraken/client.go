// Package kraken implements venue.Client for Kraken's public WebSocket
// market-data feed, following the same structure as pkg/venue/binance but
// with Kraken's own symbol table and wire protocol (JSON arrays keyed by
// channel name rather than Binance's combined-stream envelope).
package kraken

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"tradingcore/pkg/venue"
)

const exchangeName = "kraken"

// assetAliases holds Kraken's non-standard asset codes, the canonical
// example being BTC -> XBT, per spec §4.3's pluggable per-venue
// normalization requirement.
var assetAliases = map[string]string{
	"BTC": "XBT",
}

// NormalizePair converts a canonical BASE/QUOTE pair into Kraken's
// slash-separated wire symbol with asset aliases applied, e.g.
// "BTC/USD" -> "XBT/USD".
func NormalizePair(pair string) string {
	parts := strings.SplitN(strings.ReplaceAll(pair, "-", "/"), "/", 2)
	if len(parts) != 2 {
		return pair
	}
	base, quote := parts[0], parts[1]
	if alias, ok := assetAliases[base]; ok {
		base = alias
	}
	return base + "/" + quote
}

// Client streams ticker/trade channels from Kraken's public WebSocket API.
type Client struct {
	dialer *websocket.Dialer
	url    string
	policy venue.ReconnectPolicy

	mu            sync.Mutex
	conn          *websocket.Conn
	subscriptions map[string]bool
	pairBySymbol  map[string]string // Kraken wire pair (e.g. "XBT/USD") -> canonical pair (e.g. "BTC/USD")
	connected     bool
	attempts      int
	lastMessageAt int64

	events   chan venue.Event
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewClient() *Client {
	return &Client{
		dialer:        websocket.DefaultDialer,
		url:           "wss://ws.kraken.com",
		policy:        venue.DefaultReconnectPolicy(),
		subscriptions: make(map[string]bool),
		pairBySymbol:  make(map[string]string),
		events:        make(chan venue.Event, 256),
		stopCh:        make(chan struct{}),
	}
}

func (c *Client) Exchange() string { return exchangeName }

func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("venue/kraken: dial: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.attempts = 0
	c.lastMessageAt = time.Now().UnixMilli()
	c.mu.Unlock()

	c.emit(venue.Event{Kind: venue.EventConnected, Exchange: exchangeName, Timestamp: time.Now().UnixMilli()})
	go c.readPump(ctx)
	go c.heartbeatWatchdog(ctx)
	return nil
}

func (c *Client) Subscribe(channel, pair string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions[channel+":"+pair] = true
	c.pairBySymbol[NormalizePair(pair)] = pair
	return c.send(pair, channel, "subscribe")
}

// canonicalPair maps Kraken's own wire pair as echoed back on a message
// (e.g. "XBT/USD") to the canonical pair it was subscribed under (e.g.
// "BTC/USD"), falling back to the wire pair for an unmatched message.
func (c *Client) canonicalPair(wirePair string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pair, ok := c.pairBySymbol[wirePair]; ok {
		return pair
	}
	return wirePair
}

func (c *Client) Unsubscribe(channel, pair string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscriptions, channel+":"+pair)
	return c.send(pair, channel, "unsubscribe")
}

// send must be called with c.mu held.
func (c *Client) send(pair, channel, event string) error {
	if c.conn == nil {
		return nil
	}
	msg := map[string]any{
		"event": event,
		"pair":  []string{NormalizePair(pair)},
		"subscription": map[string]string{
			"name": krakenChannelName(channel),
		},
	}
	return c.conn.WriteJSON(msg)
}

func krakenChannelName(channel string) string {
	switch venue.DataType(channel) {
	case venue.DataTicker:
		return "ticker"
	case venue.DataTrade:
		return "trade"
	case venue.DataOrderbook, venue.DataOrderbookUpdate:
		return "book"
	default:
		return channel
	}
}

func (c *Client) Disconnect() error {
	var err error
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.mu.Lock()
		c.connected = false
		if c.conn != nil {
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			err = c.conn.Close()
		}
		c.mu.Unlock()
		close(c.events)
	})
	return err
}

func (c *Client) GetStatus() venue.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.subscriptions))
	for k := range c.subscriptions {
		keys = append(keys, k)
	}
	return venue.Status{
		Connected:         c.connected,
		Subscriptions:     keys,
		LastMessageAt:     c.lastMessageAt,
		ReconnectAttempts: c.attempts,
	}
}

func (c *Client) Events() <-chan venue.Event { return c.events }

func (c *Client) emit(e venue.Event) {
	select {
	case c.events <- e:
	default:
	}
}

func (c *Client) readPump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		default:
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.stopCh:
				return
			default:
			}
			c.emit(venue.Event{Kind: venue.EventError, Exchange: exchangeName, Reason: err.Error(), Timestamp: time.Now().UnixMilli()})
			if !c.reconnect(ctx) {
				return
			}
			continue
		}

		c.mu.Lock()
		c.lastMessageAt = time.Now().UnixMilli()
		c.mu.Unlock()

		c.handleMessage(msg)
	}
}

func (c *Client) reconnect(ctx context.Context) bool {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	for attempt := 1; attempt <= c.policy.MaxReconnectAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return false
		case <-c.stopCh:
			return false
		case <-time.After(c.policy.Delay(attempt)):
		}

		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			c.mu.Lock()
			c.attempts = attempt
			c.mu.Unlock()
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.connected = true
		c.attempts = 0
		subs := make([]string, 0, len(c.subscriptions))
		for key := range c.subscriptions {
			subs = append(subs, key)
		}
		c.mu.Unlock()

		for _, key := range subs {
			parts := strings.SplitN(key, ":", 2)
			if len(parts) == 2 {
				_ = c.Subscribe(parts[0], parts[1])
			}
		}

		c.emit(venue.Event{Kind: venue.EventConnected, Exchange: exchangeName, Timestamp: time.Now().UnixMilli()})
		return true
	}

	c.emit(venue.Event{Kind: venue.EventDisconnected, Exchange: exchangeName, Reason: "max reconnect attempts exceeded", Timestamp: time.Now().UnixMilli()})
	return false
}

func (c *Client) heartbeatWatchdog(ctx context.Context) {
	ticker := time.NewTicker(c.policy.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			last := c.lastMessageAt
			conn := c.conn
			c.mu.Unlock()
			if last != 0 && time.Since(time.UnixMilli(last)) > c.policy.HeartbeatTimeout() {
				if conn != nil {
					_ = conn.Close()
				}
			}
		}
	}
}

// handleMessage parses Kraken's array-wrapped channel messages:
// [channelID, payload, channelName, pair].
func (c *Client) handleMessage(msg []byte) {
	var raw []json.RawMessage
	if err := json.Unmarshal(msg, &raw); err != nil || len(raw) < 4 {
		return
	}

	var channelName, pair string
	if err := json.Unmarshal(raw[2], &channelName); err != nil {
		return
	}
	_ = json.Unmarshal(raw[3], &pair)
	now := time.Now().UnixMilli()

	switch channelName {
	case "ticker":
		var payload struct {
			Bid []string `json:"b"`
			Ask []string `json:"a"`
		}
		if json.Unmarshal(raw[1], &payload) != nil || len(payload.Bid) == 0 || len(payload.Ask) == 0 {
			return
		}
		bid, _ := decimal.NewFromString(payload.Bid[0])
		ask, _ := decimal.NewFromString(payload.Ask[0])
		c.emit(venue.Event{
			Kind: venue.EventData, Type: venue.DataTicker, Exchange: exchangeName,
			Pair: c.canonicalPair(pair), Timestamp: now,
			Data: venue.Ticker{BestBid: bid, BestAsk: ask},
		})
	case "trade":
		var trades [][]string
		if json.Unmarshal(raw[1], &trades) != nil {
			return
		}
		for _, t := range trades {
			if len(t) < 4 {
				continue
			}
			price, _ := decimal.NewFromString(t[0])
			amount, _ := decimal.NewFromString(t[1])
			side := "buy"
			if t[3] == "s" {
				side = "sell"
			}
			c.emit(venue.Event{
				Kind: venue.EventData, Type: venue.DataTrade, Exchange: exchangeName,
				Pair: c.canonicalPair(pair), Timestamp: now,
				Data: venue.Trade{Price: price, Amount: amount, Side: side, TradeTime: now},
			})
		}
	}
}
