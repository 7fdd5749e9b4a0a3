package hooks

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus_Subscribe(t *testing.T) {
	bus := NewEventBus(0)
	defer bus.Shutdown()

	var called bool
	sub := bus.Subscribe(EventTierChanged, func(ctx *EventContext) {
		called = true
	})
	require.NotNil(t, sub)
	assert.NotEmpty(t, sub.ID)
	assert.Equal(t, EventTierChanged, sub.Event)

	bus.Publish(&EventContext{Event: EventTierChanged, Timestamp: time.Now(), Data: map[string]any{"to": "low"}})
	assert.True(t, called)
}

func TestEventBus_SubscribeWithFilter(t *testing.T) {
	bus := NewEventBus(0)
	defer bus.Shutdown()

	var calls int32
	bus.SubscribeWithFilter(EventTierChanged, func(ctx *EventContext) {
		atomic.AddInt32(&calls, 1)
	}, func(ctx *EventContext) bool {
		return ctx.Data["direction"] == "down"
	})

	bus.Publish(&EventContext{Event: EventTierChanged, Data: map[string]any{"direction": "down"}})
	bus.Publish(&EventContext{Event: EventTierChanged, Data: map[string]any{"direction": "up"}})
	bus.Publish(&EventContext{Event: EventDeliveryDropped, Data: map[string]any{"direction": "down"}})

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus(0)
	defer bus.Shutdown()

	var calls int32
	sub := bus.Subscribe(EventThroughputSample, func(*EventContext) { atomic.AddInt32(&calls, 1) })
	bus.Publish(&EventContext{Event: EventThroughputSample})
	sub.Unsubscribe()
	bus.Publish(&EventContext{Event: EventThroughputSample})

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestEventBus_PanickingSubscriberDoesNotStopOthers(t *testing.T) {
	bus := NewEventBus(0)
	defer bus.Shutdown()

	var called bool
	bus.Subscribe(EventTierChanged, func(*EventContext) { panic("boom") })
	bus.Subscribe(EventTierChanged, func(*EventContext) { called = true })

	assert.NotPanics(t, func() { bus.Publish(&EventContext{Event: EventTierChanged}) })
	assert.True(t, called)
}

func TestEventBus_Async(t *testing.T) {
	bus := NewEventBus(0)
	defer bus.Shutdown()

	received := make(chan bool, 1)
	bus.Subscribe(EventDeliveryConfirmed, func(*EventContext) { received <- true })

	bus.PublishAsync(&EventContext{Event: EventDeliveryConfirmed})

	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("Async event not received")
	}
}

func TestEventBus_FullQueueDrops(t *testing.T) {
	bus := NewEventBus(1)
	defer bus.Shutdown()

	block := make(chan struct{})
	started := make(chan struct{}, 1)
	bus.Subscribe(EventThroughputSample, func(*EventContext) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
	})

	bus.PublishAsync(&EventContext{Event: EventThroughputSample})
	<-started
	bus.PublishAsync(&EventContext{Event: EventThroughputSample})
	bus.PublishAsync(&EventContext{Event: EventThroughputSample})
	close(block)

	assert.Equal(t, uint64(1), bus.Dropped())
}

func TestEventBus_PublishAfterShutdown(t *testing.T) {
	bus := NewEventBus(0)
	bus.Shutdown()
	bus.Shutdown()

	assert.NotPanics(t, func() { bus.PublishAsync(&EventContext{Event: EventTierChanged}) })
}
