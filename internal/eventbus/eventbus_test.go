package eventbus

import "testing"

func TestSubscriptionOnlyReceivesSubscribedTypes(t *testing.T) {
	b := New()
	sub := b.NewSubscription()
	defer sub.Close()

	sub.Subscribe([]EventType{EventClientConnected})

	b.Emit(EventClientConnected, "peer-1")
	b.Emit(EventBanAdded, "1.2.3.4")

	select {
	case evt := <-sub.Events():
		if evt.Type != EventClientConnected {
			t.Fatalf("type = %q, want %q", evt.Type, EventClientConnected)
		}
		if evt.Data != "peer-1" {
			t.Fatalf("data = %v, want peer-1", evt.Data)
		}
	default:
		t.Fatalf("expected a delivered event")
	}

	select {
	case evt := <-sub.Events():
		t.Fatalf("unexpected second event: %+v", evt)
	default:
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	sub := b.NewSubscription()
	defer sub.Close()

	sub.Subscribe([]EventType{EventClientConnected, EventBanAdded})
	sub.Unsubscribe([]EventType{EventBanAdded})

	b.Emit(EventBanAdded, "1.2.3.4")

	select {
	case evt := <-sub.Events():
		t.Fatalf("unexpected event after unsubscribe: %+v", evt)
	default:
	}
}

func TestSubscribeIgnoresUnknownEventTypes(t *testing.T) {
	b := New()
	sub := b.NewSubscription()
	defer sub.Close()

	sub.Subscribe([]EventType{"not:a:real:type"})
	b.Emit("not:a:real:type", nil)

	select {
	case evt := <-sub.Events():
		t.Fatalf("unexpected event for unknown type: %+v", evt)
	default:
	}
}

func TestCloseRemovesSubscriberAndClosesChannel(t *testing.T) {
	b := New()
	sub := b.NewSubscription()

	if got := b.SubscriberCount(); got != 1 {
		t.Fatalf("subscriber count = %d, want 1", got)
	}

	sub.Close()

	if got := b.SubscriberCount(); got != 0 {
		t.Fatalf("subscriber count after close = %d, want 0", got)
	}

	if _, ok := <-sub.Events(); ok {
		t.Fatalf("expected closed channel after Close")
	}
}

func TestEmitDropsSlowSubscriberInsteadOfBlocking(t *testing.T) {
	b := New()
	sub := b.NewSubscription()
	defer func() {
		// sub may already be removed by the drop below; Close is a no-op then.
		sub.Close()
	}()
	sub.Subscribe([]EventType{EventMetricsUpdate})

	// Fill the subscriber's bounded channel past capacity without draining it.
	for i := 0; i < subscriberQueueDepth+1; i++ {
		b.Emit(EventMetricsUpdate, i)
	}

	if got := b.SubscriberCount(); got != 0 {
		t.Fatalf("subscriber count = %d, want 0 after drop-on-backpressure", got)
	}
}

func TestAllEventTypesCoversCatalog(t *testing.T) {
	all := AllEventTypes()
	if len(all) != len(validEventTypes) {
		t.Fatalf("AllEventTypes returned %d types, want %d", len(all), len(validEventTypes))
	}
	for _, typ := range all {
		if _, ok := validEventTypes[typ]; !ok {
			t.Fatalf("AllEventTypes returned unknown type %q", typ)
		}
	}
}
