// Package events implements the process-wide event bus described in spec
// §4.1: priority-ordered, timed, async pub/sub with a bounded history and
// metrics. Adapted from the teacher's internal/events/bus.go, which was a
// plain mutex-guarded slice-of-channels broker; this version keeps that
// registry shape but adds priority ordering, once-handlers, a ring-buffer
// history, per-handler async timeouts, and a metrics snapshot.
package events

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Handler receives a published payload. Handler errors are isolated: they
// are counted but never propagate to other handlers or to the publisher.
type Handler func(ctx context.Context, payload any) error

// SubscribeOptions controls dispatch order and lifetime of a subscription.
type SubscribeOptions struct {
	Priority int  // higher runs first
	Once     bool // auto-unsubscribe after first successful dispatch
}

// HistoryEntry is one retained record in the bus's ring buffer.
type HistoryEntry struct {
	ID    uint64
	Event Event
	Data  any
	TS    time.Time
}

// Metrics is the bus's running counters, per spec §4.1.
type Metrics struct {
	EventsPublished uint64
	EventsHandled   uint64
	Errors          uint64
	SubscriberCount int
}

type subscription struct {
	id       uint64
	priority int
	once     bool
	handler  Handler
}

// Bus is the single process-wide pub/sub broker. Callers hold it by
// reference (passed into every component's constructor) rather than through
// a package-level global, per spec §5/§9 — the only intentional shared
// mutable singleton is the one instance created in cmd/tradingcore.
type Bus struct {
	mu   sync.RWMutex
	subs map[Event][]*subscription
	hist []HistoryEntry

	historyLimit int
	nextSubID    uint64
	nextEventID  uint64

	metrics Metrics

	asyncTimeout time.Duration
}

// NewBus creates a bus with the default 1000-entry history ring buffer and
// 5s default async-handler timeout, per spec §4.1/§5.
func NewBus() *Bus {
	return &Bus{
		subs:         make(map[Event][]*subscription),
		historyLimit: 1000,
		asyncTimeout: 5 * time.Second,
	}
}

// Subscribe registers handler for event and returns an id usable with
// Unsubscribe.
func (b *Bus) Subscribe(event Event, handler Handler, opts SubscribeOptions) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSubID++
	sub := &subscription{
		id:       b.nextSubID,
		priority: opts.Priority,
		once:     opts.Once,
		handler:  handler,
	}
	b.subs[event] = append(b.subs[event], sub)
	sortByPriorityDesc(b.subs[event])
	b.metrics.SubscriberCount++
	return sub.id
}

func sortByPriorityDesc(subs []*subscription) {
	sort.SliceStable(subs, func(i, j int) bool { return subs[i].priority > subs[j].priority })
}

// Unsubscribe removes a subscription by id.
func (b *Bus) Unsubscribe(event Event, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(event, id)
}

func (b *Bus) removeLocked(event Event, id uint64) {
	subs := b.subs[event]
	for i, s := range subs {
		if s.id == id {
			b.subs[event] = append(subs[:i], subs[i+1:]...)
			if b.metrics.SubscriberCount > 0 {
				b.metrics.SubscriberCount--
			}
			return
		}
	}
}

// PublishOptions controls how handlers are dispatched.
type PublishOptions struct {
	Async     bool // run handlers concurrently with a per-handler timeout
	TimeoutMS int  // overrides the bus default async timeout when > 0
}

// Publish fans payload out to event's subscribers in descending-priority
// order. With Async=false (the default), handlers run sequentially in the
// caller's goroutine and a handler panic/error never aborts the remaining
// handlers. With Async=true, handlers run concurrently, each bounded by a
// timeout; Publish itself still blocks until every handler has returned or
// timed out (mirrors the teacher's synchronous-fan-out style, generalized
// to also support the spec's concurrent mode).
func (b *Bus) Publish(ctx context.Context, event Event, data any, opts PublishOptions) {
	b.recordHistory(event, data)

	b.mu.RLock()
	subs := make([]*subscription, len(b.subs[event]))
	copy(subs, b.subs[event])
	b.mu.RUnlock()

	atomic.AddUint64(&b.metrics.EventsPublished, 1)

	timeout := b.asyncTimeout
	if opts.TimeoutMS > 0 {
		timeout = time.Duration(opts.TimeoutMS) * time.Millisecond
	}

	if opts.Async {
		var wg sync.WaitGroup
		for _, s := range subs {
			wg.Add(1)
			go func(s *subscription) {
				defer wg.Done()
				b.dispatch(ctx, event, data, s, timeout)
			}(s)
		}
		wg.Wait()
		return
	}

	for _, s := range subs {
		b.dispatch(ctx, event, data, s, 0)
	}
}

func (b *Bus) dispatch(ctx context.Context, event Event, data any, s *subscription, timeout time.Duration) {
	runOne := func() error {
		return b.safeCall(ctx, s.handler, data)
	}

	var err error
	if timeout > 0 {
		done := make(chan error, 1)
		go func() { done <- runOne() }()
		select {
		case err = <-done:
		case <-time.After(timeout):
			err = context.DeadlineExceeded
		}
	} else {
		err = runOne()
	}

	if err != nil {
		atomic.AddUint64(&b.metrics.Errors, 1)
		return
	}
	atomic.AddUint64(&b.metrics.EventsHandled, 1)
	if s.once {
		b.Unsubscribe(event, s.id)
	}
}

// safeCall isolates a handler panic so it never propagates to the bus or
// sibling handlers, per spec §4.1 ("handler failures are isolated").
func (b *Bus) safeCall(ctx context.Context, h Handler, data any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = context.Canceled
		}
	}()
	return h(ctx, data)
}

func (b *Bus) recordHistory(event Event, data any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextEventID++
	b.hist = append(b.hist, HistoryEntry{ID: b.nextEventID, Event: event, Data: data, TS: time.Now()})
	if len(b.hist) > b.historyLimit {
		b.hist = b.hist[len(b.hist)-b.historyLimit:]
	}
}

// GetHistory returns the most recent limit entries, optionally filtered to
// a single event. limit<=0 returns everything retained.
func (b *Bus) GetHistory(event *Event, limit int) []HistoryEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []HistoryEntry
	for i := len(b.hist) - 1; i >= 0; i-- {
		e := b.hist[i]
		if event != nil && e.Event != *event {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// WaitFor blocks until an event matching filter arrives or timeout elapses.
// filter may be nil to accept the first occurrence of event.
func (b *Bus) WaitFor(ctx context.Context, event Event, timeout time.Duration, filter func(any) bool) (any, bool) {
	result := make(chan any, 1)
	id := b.Subscribe(event, func(_ context.Context, payload any) error {
		if filter == nil || filter(payload) {
			select {
			case result <- payload:
			default:
			}
		}
		return nil
	}, SubscribeOptions{Priority: 0, Once: false})
	defer b.Unsubscribe(event, id)

	select {
	case payload := <-result:
		return payload, true
	case <-time.After(timeout):
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

// GetMetrics returns a snapshot of the bus's running counters.
func (b *Bus) GetMetrics() Metrics {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Metrics{
		EventsPublished: atomic.LoadUint64(&b.metrics.EventsPublished),
		EventsHandled:   atomic.LoadUint64(&b.metrics.EventsHandled),
		Errors:          atomic.LoadUint64(&b.metrics.Errors),
		SubscriberCount: b.metrics.SubscriberCount,
	}
}
