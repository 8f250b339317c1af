package queue

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMessageQueue_EnqueueDrainOrder(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	q := New(clk, 100)

	q.Enqueue("bob", Message{Type: "OFFER", Src: "alice", Dst: "bob"})
	q.Enqueue("bob", Message{Type: "CANDIDATE", Src: "alice", Dst: "bob"})

	got := q.Drain("bob")
	if len(got) != 2 || got[0].Type != "OFFER" || got[1].Type != "CANDIDATE" {
		t.Fatalf("unexpected drain order: %#v", got)
	}

	if got := q.Drain("bob"); len(got) != 0 {
		t.Fatalf("expected empty queue after drain, got %#v", got)
	}
}

func TestMessageQueue_DropOldestOnOverflow(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	q := New(clk, 2)

	var overflowed []string
	q.OnOverflow = func(dst string) { overflowed = append(overflowed, dst) }

	q.Enqueue("bob", Message{Type: "A"})
	q.Enqueue("bob", Message{Type: "B"})
	q.Enqueue("bob", Message{Type: "C"})

	got := q.Drain("bob")
	if len(got) != 2 || got[0].Type != "B" || got[1].Type != "C" {
		t.Fatalf("expected drop-oldest, got %#v", got)
	}
	if len(overflowed) != 1 || overflowed[0] != "bob" {
		t.Fatalf("expected one overflow callback for bob, got %#v", overflowed)
	}
}

func TestMessageQueue_LastReadAtUpdatedOnDrain(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	q := New(clk, 100)

	if _, ok := q.GetLastReadAt("bob"); ok {
		t.Fatalf("expected no lastReadAt before first drain")
	}

	q.Enqueue("bob", Message{Type: "OFFER"})
	clk.Advance(5 * time.Second)
	q.Drain("bob")

	lastReadAt, ok := q.GetLastReadAt("bob")
	if !ok || !lastReadAt.Equal(clk.Now()) {
		t.Fatalf("lastReadAt=%v ok=%v, want %v", lastReadAt, ok, clk.Now())
	}
}

func TestMessageQueue_DestinationsPastDeadline(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	q := New(clk, 100)

	q.Drain("bob") // sets lastReadAt without any pending messages
	q.Enqueue("bob", Message{Type: "OFFER", Src: "alice"})

	clk.Advance(10 * time.Second)

	stale := q.DestinationsPastDeadline(5 * time.Second)
	if len(stale["bob"]) != 1 || stale["bob"][0].Type != "OFFER" {
		t.Fatalf("unexpected stale set: %#v", stale)
	}

	// Never-drained destinations are not swept.
	q.Enqueue("carol", Message{Type: "OFFER"})
	clk.Advance(10 * time.Second)
	stale = q.DestinationsPastDeadline(5 * time.Second)
	if _, ok := stale["carol"]; ok {
		t.Fatalf("carol has never been drained and should not be swept")
	}
}

func TestMessageQueue_Clear(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	q := New(clk, 100)
	q.Enqueue("bob", Message{Type: "OFFER"})
	q.Clear("bob")
	if _, ok := q.GetLastReadAt("bob"); ok {
		t.Fatalf("expected no lastReadAt after Clear")
	}
	if got := q.Drain("bob"); len(got) != 0 {
		t.Fatalf("expected empty queue after Clear, got %#v", got)
	}
}
