package hooks

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	log "github.com/sirupsen/logrus"
)

// Subscription is a handle for a registered subscriber.
type Subscription struct {
	ID          string
	Event       HookEvent
	Callback    func(*EventContext)
	Filter      func(*EventContext) bool
	Unsubscribe func()
}

// EventBus manages event distribution to subscribers. PublishAsync never blocks, so the engine
// loop can publish from inside its callbacks.
type EventBus struct {
	subscribers  map[HookEvent][]*Subscription
	mu           sync.RWMutex
	eventQueue   chan *EventContext
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
	shutdown     bool
	dropped      atomic.Uint64
}

// DefaultQueueSize is the async queue capacity used when none is given.
const DefaultQueueSize = 1000

// NewEventBus creates a new event bus with the given async queue capacity.
func NewEventBus(queueSize int) *EventBus {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	bus := &EventBus{
		subscribers: make(map[HookEvent][]*Subscription),
		eventQueue:  make(chan *EventContext, queueSize),
		ctx:         ctx,
		cancel:      cancel,
	}

	// Start async processor
	go bus.processQueue()

	return bus
}

// Subscribe registers a callback for a specific event type.
func (b *EventBus) Subscribe(event HookEvent, callback func(*EventContext)) *Subscription {
	return b.SubscribeWithFilter(event, callback, nil)
}

// SubscribeWithFilter registers a callback with an optional filter function.
func (b *EventBus) SubscribeWithFilter(event HookEvent, callback func(*EventContext), filter func(*EventContext) bool) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{
		ID:       uuid.NewString(),
		Event:    event,
		Callback: callback,
		Filter:   filter,
	}

	sub.Unsubscribe = func() {
		b.unsubscribe(sub)
	}

	b.subscribers[event] = append(b.subscribers[event], sub)
	return sub
}

func (b *EventBus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[sub.Event]
	for i, s := range subs {
		if s.ID == sub.ID {
			b.subscribers[sub.Event] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

// Publish distributes an event to all subscribers synchronously.
func (b *EventBus) Publish(ctx *EventContext) {
	b.mu.RLock()
	subs := b.subscribers[ctx.Event]
	// Copy slice to avoid holding lock during execution
	activeSubs := make([]*Subscription, len(subs))
	copy(activeSubs, subs)
	b.mu.RUnlock()

	for _, sub := range activeSubs {
		if sub.Filter == nil || sub.Filter(ctx) {
			// Execute safely
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.WithField("component", "hooks").Errorf("Panic in event subscriber for %s: %v", ctx.Event, r)
					}
				}()
				sub.Callback(ctx)
			}()
		}
	}
}

// PublishAsync distributes an event asynchronously via the queue. A full queue drops the event.
func (b *EventBus) PublishAsync(ctx *EventContext) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.shutdown {
		return
	}

	select {
	case b.eventQueue <- ctx:
	default:
		b.dropped.Add(1)
		log.WithField("component", "hooks").Warnf("Event queue full, dropping event: %s", ctx.Event)
	}
}

// Dropped returns how many async events were discarded because the queue was full.
func (b *EventBus) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *EventBus) processQueue() {
	for {
		select {
		case <-b.ctx.Done():
			return
		case event, ok := <-b.eventQueue:
			if !ok {
				// Channel closed
				return
			}
			if event != nil {
				b.Publish(event)
			}
		}
	}
}

// Shutdown stops the event bus processing.
func (b *EventBus) Shutdown() {
	b.shutdownOnce.Do(func() {
		b.mu.Lock()
		b.shutdown = true
		b.mu.Unlock()

		b.cancel()
		close(b.eventQueue)
	})
}
