// Package market implements the Market-Data Aggregator of spec §4.4: a
// fan-in over one venue.Client per configured exchange, a per-(type,pair)
// cache, and a periodic aggregation loop that publishes a blended
// aggregatedPrice snapshot. Adapted from the teacher's
// internal/market/feed.go (Feed.Start/pollSnapshots goroutine-per-venue
// style), generalized from a single Binance feed to N pluggable
// venue.Client implementations.
package market

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradingcore/internal/events"
	"tradingcore/internal/indicators"
	"tradingcore/internal/strategy"
	"tradingcore/pkg/cache"
	"tradingcore/pkg/venue"
)

const maxRecentTrades = 1000
const maxRecentCandles = 200

// tickerEntry is the latest ticker observed from one exchange for one pair.
type tickerEntry struct {
	bid, ask decimal.Decimal
	ts       int64
}

// pairState accumulates what the aggregator knows about one canonical pair
// across all venues: per-exchange tickers, a bounded trade history and a
// rolling close-price window used to compute indicators for the
// strategy.MarketContext this aggregator hands out via Snapshot.
type pairState struct {
	tickers       map[string]tickerEntry // keyed by exchange
	recentTrades  []venue.Trade
	recentCandles []strategy.Candle
}

// Aggregator owns one venue.Client per exchange and fans their normalized
// events into a per-pair cache plus a periodic aggregatedPrice broadcast,
// per spec §4.4.
type Aggregator struct {
	mu      sync.RWMutex
	clients map[string]venue.Client // keyed by exchange name
	pairs   map[string]*pairState   // keyed by canonical pair

	bus                 *events.Bus
	log                 *zap.Logger
	aggregationInterval time.Duration

	// snapshots mirrors the latest AggregatedPrice per pair with a 5m TTL
	// (cache.TTLTicker) so a consumer that only polls occasionally (the
	// coordinator's risk checks, a future read API) sees a bounded-age
	// value instead of either the always-fresh in-memory pairs map or a
	// permanently stale one.
	snapshots cache.Cache
}

func NewAggregator(bus *events.Bus, log *zap.Logger) *Aggregator {
	return &Aggregator{
		clients:             make(map[string]venue.Client),
		pairs:               make(map[string]*pairState),
		bus:                 bus,
		log:                 log,
		aggregationInterval: time.Second,
		snapshots:           cache.NewMemory(),
	}
}

// AddVenue registers a venue client; Start will connect and fan it in.
func (a *Aggregator) AddVenue(c venue.Client) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.clients[c.Exchange()] = c
}

// Subscribe subscribes every registered venue client to channel/pair.
func (a *Aggregator) Subscribe(channel, pair string) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, c := range a.clients {
		_ = c.Subscribe(channel, pair)
	}
	a.ensurePair(pair)
}

func (a *Aggregator) ensurePair(pair string) *pairState {
	if ps, ok := a.pairs[pair]; ok {
		return ps
	}
	ps := &pairState{tickers: make(map[string]tickerEntry)}
	a.pairs[pair] = ps
	return ps
}

// Start connects every registered venue client and begins the fan-in and
// aggregation loops, running until ctx is cancelled.
func (a *Aggregator) Start(ctx context.Context) error {
	a.mu.RLock()
	clients := make([]venue.Client, 0, len(a.clients))
	for _, c := range a.clients {
		clients = append(clients, c)
	}
	a.mu.RUnlock()

	for _, c := range clients {
		if err := c.Connect(ctx); err != nil {
			return err
		}
		go a.fanIn(ctx, c)
	}

	go a.aggregationLoop(ctx)
	return nil
}

func (a *Aggregator) fanIn(ctx context.Context, c venue.Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.Events():
			if !ok {
				return
			}
			a.handleEvent(ev)
		}
	}
}

func (a *Aggregator) handleEvent(ev venue.Event) {
	if a.bus != nil {
		a.bus.Publish(context.Background(), events.EventMarketPriceUpdate, ev, events.PublishOptions{})
	}
	if ev.Kind != venue.EventData {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	ps := a.ensurePair(ev.Pair)

	switch ev.Type {
	case venue.DataTicker:
		t, ok := ev.Data.(venue.Ticker)
		if !ok {
			return
		}
		ps.tickers[ev.Exchange] = tickerEntry{bid: t.BestBid, ask: t.BestAsk, ts: ev.Timestamp}
	case venue.DataTrade:
		tr, ok := ev.Data.(venue.Trade)
		if !ok {
			return
		}
		ps.recentTrades = append(ps.recentTrades, tr)
		if len(ps.recentTrades) > maxRecentTrades {
			ps.recentTrades = ps.recentTrades[len(ps.recentTrades)-maxRecentTrades:]
		}
		price, _ := tr.Price.Float64()
		ps.recentCandles = append(ps.recentCandles, strategy.Candle{Timestamp: ev.Timestamp, Close: price})
		if len(ps.recentCandles) > maxRecentCandles {
			ps.recentCandles = ps.recentCandles[len(ps.recentCandles)-maxRecentCandles:]
		}
	}
}

// aggregationLoop recomputes and emits aggregatedPrice for every pair with
// at least one ticker, every aggregationInterval, per spec §4.4.
func (a *Aggregator) aggregationLoop(ctx context.Context) {
	ticker := time.NewTicker(a.aggregationInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.emitAggregates()
		}
	}
}

// AggregatedPrice is the event payload of spec §4.4.
type AggregatedPrice struct {
	Pair          string
	VWAP          decimal.Decimal
	BestBid       decimal.Decimal
	BestAsk       decimal.Decimal
	Spread        decimal.Decimal
	SpreadPct     decimal.Decimal
	TotalVolume   decimal.Decimal
	ExchangeCount int
	Exchanges     []string
	Timestamp     int64
}

func (a *Aggregator) emitAggregates() {
	a.mu.RLock()
	defer a.mu.RUnlock()

	now := time.Now().UnixMilli()
	for pair, ps := range a.pairs {
		if len(ps.tickers) == 0 {
			continue
		}

		var bestBid, bestAsk decimal.Decimal
		var exchanges []string
		first := true
		for ex, t := range ps.tickers {
			exchanges = append(exchanges, ex)
			if first || t.bid.GreaterThan(bestBid) {
				bestBid = t.bid
			}
			if first || t.ask.LessThan(bestAsk) {
				bestAsk = t.ask
			}
			first = false
		}

		vwap, totalVolume := vwapFromTrades(ps.recentTrades)
		spread := bestAsk.Sub(bestBid)
		spreadPct := decimal.Zero
		if !bestBid.IsZero() {
			spreadPct = spread.Div(bestBid)
		}

		payload := AggregatedPrice{
			Pair: pair, VWAP: vwap, BestBid: bestBid, BestAsk: bestAsk,
			Spread: spread, SpreadPct: spreadPct, TotalVolume: totalVolume,
			ExchangeCount: len(exchanges), Exchanges: exchanges, Timestamp: now,
		}
		a.cacheSnapshot(pair, payload)
		if a.bus != nil {
			a.bus.Publish(context.Background(), events.EventAggregatedPrice, payload, events.PublishOptions{})
		}
	}
}

func tickerCacheKey(pair string) string { return "ticker:" + pair }

func (a *Aggregator) cacheSnapshot(pair string, payload AggregatedPrice) {
	if a.snapshots == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := a.snapshots.Set(context.Background(), tickerCacheKey(pair), data, cache.TTLTicker); err != nil && a.log != nil {
		a.log.Warn("market: ticker cache set failed", zap.String("pair", pair), zap.Error(err))
	}
}

// CachedSnapshot returns the most recent AggregatedPrice published for pair,
// as long as it is no older than cache.TTLTicker.
func (a *Aggregator) CachedSnapshot(pair string) (AggregatedPrice, bool) {
	if a.snapshots == nil {
		return AggregatedPrice{}, false
	}
	data, ok, err := a.snapshots.Get(context.Background(), tickerCacheKey(pair))
	if err != nil || !ok {
		return AggregatedPrice{}, false
	}
	var payload AggregatedPrice
	if json.Unmarshal(data, &payload) != nil {
		return AggregatedPrice{}, false
	}
	return payload, true
}

// vwapFromTrades computes vwap = sum(price_i*volume_i)/sum(volume_i) over
// trades, per spec §4.4.
func vwapFromTrades(trades []venue.Trade) (vwap, totalVolume decimal.Decimal) {
	if len(trades) == 0 {
		return decimal.Zero, decimal.Zero
	}
	num := decimal.Zero
	den := decimal.Zero
	for _, t := range trades {
		num = num.Add(t.Price.Mul(t.Amount))
		den = den.Add(t.Amount)
	}
	if den.IsZero() {
		return decimal.Zero, decimal.Zero
	}
	return num.Div(den), den
}

// Snapshot builds a strategy.MarketContext from the cached state for pair,
// satisfying strategy.MarketCache. Indicators are computed over the
// rolling close-price window built from observed trades.
func (a *Aggregator) Snapshot(pair string) (strategy.MarketContext, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	ps, ok := a.pairs[pair]
	if !ok || len(ps.recentCandles) == 0 {
		return strategy.MarketContext{}, false
	}

	closes := make([]float64, len(ps.recentCandles))
	for i, c := range ps.recentCandles {
		closes[i] = c.Close
	}
	last := ps.recentCandles[len(ps.recentCandles)-1]

	bb := indicators.BollingerBands(closes, 20, 2.0)
	ctx := strategy.MarketContext{
		Timestamp:     last.Timestamp,
		Pair:          pair,
		Price:         last.Close,
		Close:         last.Close,
		RecentCandles: append([]strategy.Candle(nil), ps.recentCandles...),
		Indicators: strategy.IndicatorSet{
			SMA20: indicators.SMA(closes, 20),
			SMA50: indicators.SMA(closes, 50),
			EMA12: indicators.EMA(closes, 12),
			EMA26: indicators.EMA(closes, 26),
			RSI14: indicators.RSI(closes, 14),
			Bollinger: strategy.BollingerBands{
				Upper: bb.Upper, Middle: bb.Middle, Lower: bb.Lower,
			},
		},
	}
	return ctx, true
}
