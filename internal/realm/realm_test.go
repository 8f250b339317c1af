package realm

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

type fakeSender struct {
	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func (s *fakeSender) Send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, frame)
	return nil
}

func (s *fakeSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func TestRealm_GenerateID_NotAlreadyMapped(t *testing.T) {
	r := New(&fakeClock{now: time.Unix(0, 0)}, 0)
	id, err := r.GenerateID()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.PeerExists(id) {
		t.Fatalf("freshly generated id must not already exist")
	}
	if len(id) == 0 {
		t.Fatalf("expected non-empty id")
	}
}

func TestRealm_Admit_NewPeer(t *testing.T) {
	r := New(&fakeClock{now: time.Unix(0, 0)}, 0)
	sender := &fakeSender{}

	p, err := r.Admit("alice", "t1", sender)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID != "alice" || !p.Attached() {
		t.Fatalf("unexpected peer state: %#v", p)
	}
	if !r.PeerExists("alice") {
		t.Fatalf("expected alice to be registered")
	}
}

func TestRealm_Admit_RebindsOnMatchingToken(t *testing.T) {
	r := New(&fakeClock{now: time.Unix(0, 0)}, 0)
	first := &fakeSender{}
	second := &fakeSender{}

	p1, err := r.Admit("alice", "t1", first)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p2, err := r.Admit("alice", "t1", second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p1 != p2 {
		t.Fatalf("expected the same Peer to be rebound, not a new one")
	}

	p2.Send([]byte("hello"))
	if len(first.sent) != 0 || len(second.sent) != 1 {
		t.Fatalf("expected the rebound socket to receive sends: first=%v second=%v", first.sent, second.sent)
	}
}

func TestRealm_Admit_RejectsMismatchedToken(t *testing.T) {
	r := New(&fakeClock{now: time.Unix(0, 0)}, 0)
	if _, err := r.Admit("alice", "t1", &fakeSender{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := r.Admit("alice", "t2", &fakeSender{})
	if err != ErrIDTaken {
		t.Fatalf("got %v, want ErrIDTaken", err)
	}
}

func TestRealm_Admit_EnforcesConcurrentLimit(t *testing.T) {
	r := New(&fakeClock{now: time.Unix(0, 0)}, 1)
	if _, err := r.Admit("alice", "t1", &fakeSender{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Reconnecting the same id must not be blocked by the limit.
	if _, err := r.Admit("alice", "t1", &fakeSender{}); err != nil {
		t.Fatalf("rebind should not hit the capacity check: %v", err)
	}

	if _, err := r.Admit("bob", "t2", &fakeSender{}); err != ErrCapacity {
		t.Fatalf("got %v, want ErrCapacity", err)
	}
}

func TestRealm_RemovePeer(t *testing.T) {
	r := New(&fakeClock{now: time.Unix(0, 0)}, 0)
	r.Admit("alice", "t1", &fakeSender{})
	r.RemovePeer("alice")
	if r.PeerExists("alice") {
		t.Fatalf("expected alice to be removed")
	}
}

func TestRealm_DetachPreservesRegistration(t *testing.T) {
	r := New(&fakeClock{now: time.Unix(0, 0)}, 0)
	p, _ := r.Admit("alice", "t1", &fakeSender{})
	p.Detach()

	if !r.PeerExists("alice") {
		t.Fatalf("detach must not remove the peer from the realm")
	}
	if p.Attached() {
		t.Fatalf("expected peer to report detached")
	}
}

func TestRealm_GetPeerIdsAndCount(t *testing.T) {
	r := New(&fakeClock{now: time.Unix(0, 0)}, 0)
	r.Admit("alice", "t1", &fakeSender{})
	r.Admit("bob", "t2", &fakeSender{})

	if r.Count() != 2 {
		t.Fatalf("count = %d, want 2", r.Count())
	}
	ids := r.GetPeerIds()
	if len(ids) != 2 {
		t.Fatalf("unexpected ids: %v", ids)
	}
}
