package events

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishOrdersByPriority(t *testing.T) {
	bus := NewBus()
	var order []int
	var mu sync.Mutex

	record := func(n int) Handler {
		return func(_ context.Context, _ any) error {
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			return nil
		}
	}

	bus.Subscribe("evt", record(1), SubscribeOptions{Priority: 1})
	bus.Subscribe("evt", record(3), SubscribeOptions{Priority: 10})
	bus.Subscribe("evt", record(2), SubscribeOptions{Priority: 5})

	bus.Publish(context.Background(), "evt", nil, PublishOptions{})

	assert.Equal(t, []int{3, 2, 1}, order)
}

func TestHandlerErrorIsolated(t *testing.T) {
	bus := NewBus()
	var secondRan int32

	bus.Subscribe("evt", func(_ context.Context, _ any) error {
		panic("boom")
	}, SubscribeOptions{Priority: 10})
	bus.Subscribe("evt", func(_ context.Context, _ any) error {
		atomic.StoreInt32(&secondRan, 1)
		return nil
	}, SubscribeOptions{Priority: 0})

	bus.Publish(context.Background(), "evt", nil, PublishOptions{})

	assert.Equal(t, int32(1), atomic.LoadInt32(&secondRan))
	m := bus.GetMetrics()
	assert.Equal(t, uint64(1), m.Errors)
	assert.Equal(t, uint64(1), m.EventsHandled)
}

func TestOnceUnsubscribesAfterDispatch(t *testing.T) {
	bus := NewBus()
	var calls int32
	bus.Subscribe("evt", func(_ context.Context, _ any) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, SubscribeOptions{Once: true})

	bus.Publish(context.Background(), "evt", nil, PublishOptions{})
	bus.Publish(context.Background(), "evt", nil, PublishOptions{})

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestHistoryRingBuffer(t *testing.T) {
	bus := NewBus()
	bus.historyLimit = 3
	for i := 0; i < 5; i++ {
		bus.Publish(context.Background(), "evt", i, PublishOptions{})
	}
	hist := bus.GetHistory(nil, 0)
	require.Len(t, hist, 3)
	// most recent first
	assert.Equal(t, 4, hist[0].Data)
	assert.Equal(t, 2, hist[2].Data)
}

func TestWaitForTimesOut(t *testing.T) {
	bus := NewBus()
	_, ok := bus.WaitFor(context.Background(), "never", 20*time.Millisecond, nil)
	assert.False(t, ok)
}

func TestWaitForReceivesMatchingPayload(t *testing.T) {
	bus := NewBus()
	go func() {
		time.Sleep(5 * time.Millisecond)
		bus.Publish(context.Background(), "evt", 42, PublishOptions{})
	}()
	payload, ok := bus.WaitFor(context.Background(), "evt", time.Second, func(p any) bool {
		return p.(int) == 42
	})
	require.True(t, ok)
	assert.Equal(t, 42, payload)
}

func TestAsyncHandlerTimeoutIsolated(t *testing.T) {
	bus := NewBus()
	bus.Subscribe("evt", func(ctx context.Context, _ any) error {
		time.Sleep(50 * time.Millisecond)
		return nil
	}, SubscribeOptions{})

	start := time.Now()
	bus.Publish(context.Background(), "evt", nil, PublishOptions{Async: true, TimeoutMS: 5})
	assert.Less(t, time.Since(start), 40*time.Millisecond)

	m := bus.GetMetrics()
	assert.Equal(t, uint64(1), m.Errors)
}
