package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"warrior/internal/domain"
)

type queued struct {
	ctx   context.Context
	event domain.Event
}

// subscription delivers events to one handler on its own goroutine, in
// publish order.
type subscription struct {
	id      uint64
	handler domain.EventHandler

	mu      sync.Mutex
	pending []queued
	closed  bool
	wake    chan struct{}
}

func (s *subscription) deliver(q queued) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.pending = append(s.pending, q)
	s.mu.Unlock()
	s.signal()
}

func (s *subscription) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.signal()
}

func (s *subscription) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Bus is an in-process, goroutine-safe event bus. Each subscriber sees
// events in the order they were published.
type Bus struct {
	mu      sync.RWMutex
	typed   map[domain.EventType][]*subscription
	allSubs []*subscription
	nextID  atomic.Uint64
	logger  *slog.Logger
	wg      sync.WaitGroup
	closed  atomic.Bool
}

// New creates an event bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{
		typed:  make(map[domain.EventType][]*subscription),
		logger: logger,
	}
}

// Publish queues an event for matching typed subscribers and all-event
// subscribers. It does not wait for handlers.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	if b.closed.Load() {
		return
	}

	b.mu.RLock()
	typed := append([]*subscription(nil), b.typed[event.Type]...)
	allSubs := append([]*subscription(nil), b.allSubs...)
	b.mu.RUnlock()

	q := queued{ctx: ctx, event: event}
	for _, sub := range typed {
		sub.deliver(q)
	}
	for _, sub := range allSubs {
		sub.deliver(q)
	}
}

func (b *Bus) run(sub *subscription) {
	defer b.wg.Done()
	for range sub.wake {
		for {
			sub.mu.Lock()
			batch := sub.pending
			sub.pending = nil
			closed := sub.closed
			sub.mu.Unlock()

			for _, q := range batch {
				b.invoke(sub, q)
			}
			if len(batch) == 0 {
				if closed {
					return
				}
				break
			}
		}
	}
}

func (b *Bus) invoke(sub *subscription, q queued) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", string(q.event.Type),
				"panic", r,
			)
		}
	}()
	sub.handler(q.ctx, q.event)
}

func (b *Bus) add(handler domain.EventHandler) *subscription {
	sub := &subscription{
		id:      b.nextID.Add(1),
		handler: handler,
		wake:    make(chan struct{}, 1),
	}
	b.wg.Add(1)
	go b.run(sub)
	return sub
}

// Subscribe registers a handler for a specific event type.
// Returns an unsubscribe function; events already queued are still delivered.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	sub := b.add(handler)

	b.mu.Lock()
	b.typed[eventType] = append(b.typed[eventType], sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		subs := b.typed[eventType]
		for i, s := range subs {
			if s.id == sub.id {
				b.typed[eventType] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
		sub.close()
	}
}

// SubscribeAll registers a handler that receives every event.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	sub := b.add(handler)

	b.mu.Lock()
	b.allSubs = append(b.allSubs, sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		for i, s := range b.allSubs {
			if s.id == sub.id {
				b.allSubs = append(b.allSubs[:i:i], b.allSubs[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
		sub.close()
	}
}

// Close prevents new publishes and waits for every queued event to be handled.
// Close is idempotent and safe to call multiple times.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.mu.RLock()
	var subs []*subscription
	for _, list := range b.typed {
		subs = append(subs, list...)
	}
	subs = append(subs, b.allSubs...)
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.close()
	}
	b.wg.Wait()
}
