// Package eventbus fans out admin-facing realm events to WebSocket/SSE
// subscribers, each filtered to the event types it asked for.
package eventbus

import (
	"sync"
	"sync/atomic"
)

// EventType is one member of the closed event catalog admin subscribers can
// filter on.
type EventType string

const (
	EventClientConnected    EventType = "client:connected"
	EventClientDisconnected EventType = "client:disconnected"
	EventMetricsUpdate      EventType = "metrics:update"
	EventErrorOccurred      EventType = "error:occurred"
	EventBanAdded           EventType = "ban:added"
	EventBanRemoved         EventType = "ban:removed"
	EventAuditEntry         EventType = "audit:entry"
)

// validEventTypes is used to silently drop unknown event names from a
// subscribe/unsubscribe command, per the closed catalog.
var validEventTypes = map[EventType]struct{}{
	EventClientConnected:    {},
	EventClientDisconnected: {},
	EventMetricsUpdate:      {},
	EventErrorOccurred:      {},
	EventBanAdded:           {},
	EventBanRemoved:         {},
	EventAuditEntry:         {},
}

// AllEventTypes returns every member of the closed event catalog, in a
// stable order. Used by subscribers (e.g. the SSE fallback) that want
// everything by default rather than an explicit subscribe list.
func AllEventTypes() []EventType {
	return []EventType{
		EventClientConnected,
		EventClientDisconnected,
		EventMetricsUpdate,
		EventErrorOccurred,
		EventBanAdded,
		EventBanRemoved,
		EventAuditEntry,
	}
}

// Event is one emitted admin event, ready for JSON encoding on the WS/SSE
// wire.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

const subscriberQueueDepth = 32

// subscriber is the bus's view of one connected admin listener: a bounded,
// non-blocking delivery channel plus the set of event types it wants.
type subscriber struct {
	ch     chan Event
	closed atomic.Bool

	mu     sync.Mutex
	filter map[EventType]struct{}
}

func (s *subscriber) wants(t EventType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.filter[t]
	return ok
}

func (s *subscriber) setFilter(types []EventType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range types {
		if _, ok := validEventTypes[t]; ok {
			s.filter[t] = struct{}{}
		}
	}
}

func (s *subscriber) clearFilter(types []EventType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range types {
		delete(s.filter, t)
	}
}

// Subscription is the handle a caller holds for one registered subscriber.
// Events() yields delivered events until Close is called or the bus drops
// the subscriber for a failed delivery.
type Subscription struct {
	bus *Bus
	sub *subscriber
}

func (s *Subscription) Events() <-chan Event { return s.sub.ch }

// Subscribe adds types to the filter, ignoring any type outside the event
// catalog.
func (s *Subscription) Subscribe(types []EventType) { s.sub.setFilter(types) }

// Unsubscribe removes types from the filter.
func (s *Subscription) Unsubscribe(types []EventType) { s.sub.clearFilter(types) }

// Close removes the subscription from the bus and closes its channel.
func (s *Subscription) Close() {
	s.bus.remove(s.sub)
}

// Bus fans out emitted events to every subscriber whose filter includes the
// event's type. Delivery is non-blocking: a subscriber whose channel is full
// (a broken or stalled socket) is dropped silently, matching the teacher's
// non-blocking, drop-on-backpressure send queue.
type Bus struct {
	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
}

func New() *Bus {
	return &Bus{subscribers: make(map[*subscriber]struct{})}
}

// NewSubscription registers a fresh subscriber with an empty filter; the
// caller must Subscribe to event types before it receives anything.
func (b *Bus) NewSubscription() *Subscription {
	sub := &subscriber{
		ch:     make(chan Event, subscriberQueueDepth),
		filter: make(map[EventType]struct{}),
	}
	b.mu.Lock()
	b.subscribers[sub] = struct{}{}
	b.mu.Unlock()
	return &Subscription{bus: b, sub: sub}
}

func (b *Bus) remove(sub *subscriber) {
	b.mu.Lock()
	_, ok := b.subscribers[sub]
	delete(b.subscribers, sub)
	b.mu.Unlock()
	if ok && sub.closed.CompareAndSwap(false, true) {
		close(sub.ch)
	}
}

// Emit delivers data to every subscriber whose filter includes typ. A
// subscriber whose delivery channel is full is dropped, not blocked on.
func (b *Bus) Emit(typ EventType, data any) {
	b.mu.Lock()
	targets := make([]*subscriber, 0, len(b.subscribers))
	for sub := range b.subscribers {
		if sub.wants(typ) {
			targets = append(targets, sub)
		}
	}
	b.mu.Unlock()

	evt := Event{Type: typ, Data: data}
	for _, sub := range targets {
		select {
		case sub.ch <- evt:
		default:
			b.remove(sub)
		}
	}
}

// SubscriberCount reports the number of currently registered subscribers,
// used by the admin status endpoint.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}
