// Package binance implements venue.Client for Binance public market-data
// WebSocket streams, adapted from the teacher's
// pkg/market/binance/websocket.go StreamClient into the venue-agnostic
// Client contract of pkg/venue.
package binance

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

const exchangeName = "binance"

// NormalizePair converts a canonical BASE/QUOTE pair into Binance's
// lowercase concatenated stream symbol, per spec §4.3/§4.4's pluggable
// per-venue symbol normalization (e.g. BTC/USDT becomes "btcusdt" in the
// stream path; message payloads carry "BTCUSDT", see wireSymbol).
func NormalizePair(pair string) string {
	return strings.ToLower(strings.ReplaceAll(strings.ReplaceAll(pair, "/", ""), "-", ""))
}

// Client streams ticker/trade/depth channels from Binance's combined
// public WebSocket endpoint.
type Client struct {
	dialer   *websocket.Dialer
	streamURL string
	policy   venue.ReconnectPolicy

	mu            sync.Mutex
	conn          *websocket.Conn
	subscriptions map[string]bool   // "channel:pair"
	pairBySymbol  map[string]string // wire symbol (e.g. "BTCUSDT") -> canonical pair (e.g. "BTC/USDT")
	connected     bool
	attempts      int
	lastMessageAt int64

	events chan venue.Event
	stopCh chan struct{}
	stopOnce sync.Once
}

func NewClient(testnet bool) *Client {
	host := "stream.binance.com:9443"
	if testnet {
		host = "testnet.binance.vision"
	}
	return &Client{
		dialer:        websocket.DefaultDialer,
		streamURL:     "wss://" + host + "/stream",
		policy:        venue.DefaultReconnectPolicy(),
		subscriptions: make(map[string]bool),
		pairBySymbol:  make(map[string]string),
		events:        make(chan venue.Event, 256),
		stopCh:        make(chan struct{}),
	}
}

func (c *Client) Exchange() string { return exchangeName }

func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.streamURL, nil)
	if err != nil {
		return fmt.Errorf("venue/binance: dial: %w", err)
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
	key := channel + ":" + pair
	c.subscriptions[key] = true
	c.pairBySymbol[wireSymbol(pair)] = pair
	return c.sendSubscription(pair, channel, "SUBSCRIBE")
}

// wireSymbol returns the upper-cased, separator-free form Binance's own
// message payloads use for a pair's "s" field (e.g. "BTC/USDT" -> "BTCUSDT").
func wireSymbol(pair string) string {
	return strings.ToUpper(NormalizePair(pair))
}

// canonicalPair maps a raw Binance wire symbol back to the canonical pair
// it was subscribed under, falling back to the wire symbol itself for any
// message that arrives without a matching subscription.
func (c *Client) canonicalPair(symbol string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pair, ok := c.pairBySymbol[symbol]; ok {
		return pair
	}
	return symbol
}

func (c *Client) Unsubscribe(channel, pair string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := channel + ":" + pair
	delete(c.subscriptions, key)
	return c.sendSubscription(pair, channel, "UNSUBSCRIBE")
}

// sendSubscription must be called with c.mu held.
func (c *Client) sendSubscription(pair, channel, method string) error {
	if c.conn == nil {
		return nil
	}
	stream := fmt.Sprintf("%s@%s", NormalizePair(pair), binanceStreamSuffix(channel))
	msg := map[string]any{
		"method": method,
		"params": []string{stream},
		"id":     time.Now().UnixNano(),
	}
	return c.conn.WriteJSON(msg)
}

func binanceStreamSuffix(channel string) string {
	switch venue.DataType(channel) {
	case venue.DataTicker:
		return "bookTicker"
	case venue.DataTrade:
		return "trade"
	case venue.DataOrderbook, venue.DataOrderbookUpdate:
		return "depth"
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

		conn, _, err := c.dialer.DialContext(ctx, c.streamURL, nil)
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

type bookTickerMsg struct {
	Stream string `json:"stream"`
	Data   struct {
		Symbol string `json:"s"`
		Bid    string `json:"b"`
		Ask    string `json:"a"`
	} `json:"data"`
}

type tradeMsg struct {
	Stream string `json:"stream"`
	Data   struct {
		Symbol    string `json:"s"`
		Price     string `json:"p"`
		Qty       string `json:"q"`
		TradeTime int64  `json:"T"`
		IsBuyerMM bool   `json:"m"`
	} `json:"data"`
}

func (c *Client) handleMessage(msg []byte) {
	var envelope struct {
		Stream string          `json:"stream"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(msg, &envelope); err != nil || envelope.Stream == "" {
		return
	}

	now := time.Now().UnixMilli()
	switch {
	case strings.Contains(envelope.Stream, "bookTicker"):
		var m bookTickerMsg
		if json.Unmarshal(msg, &m) != nil {
			return
		}
		bid, _ := decimal.NewFromString(m.Data.Bid)
		ask, _ := decimal.NewFromString(m.Data.Ask)
		c.emit(venue.Event{
			Kind: venue.EventData, Type: venue.DataTicker, Exchange: exchangeName,
			Pair: c.canonicalPair(m.Data.Symbol), Timestamp: now,
			Data: venue.Ticker{BestBid: bid, BestAsk: ask},
		})
	case strings.Contains(envelope.Stream, "trade"):
		var m tradeMsg
		if json.Unmarshal(msg, &m) != nil {
			return
		}
		price, _ := decimal.NewFromString(m.Data.Price)
		qty, _ := decimal.NewFromString(m.Data.Qty)
		side := "buy"
		if m.Data.IsBuyerMM {
			side = "sell"
		}
		c.emit(venue.Event{
			Kind: venue.EventData, Type: venue.DataTrade, Exchange: exchangeName,
			Pair: c.canonicalPair(m.Data.Symbol), Timestamp: now,
			Data: venue.Trade{Price: price, Amount: qty, Side: side, TradeTime: m.Data.TradeTime},
		})
	}
}
