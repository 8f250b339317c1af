package admincore

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

func TestSessionManager_CreateAndGet(t *testing.T) {
	m := NewSessionManager(time.Hour)

	sess, err := m.Create("alice", RoleAdmin)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sess.ID == "" {
		t.Fatalf("expected non-empty session id")
	}

	got, ok := m.Get(sess.ID)
	if !ok {
		t.Fatalf("expected session to be found")
	}
	if got.UserID != "alice" || got.Role != RoleAdmin {
		t.Fatalf("got = %+v, want user alice/admin", got)
	}
}

func TestSessionManager_GetExpiredSessionFails(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	m := &SessionManager{ttl: time.Minute, clock: clk, sessions: make(map[string]Session)}

	sess, err := m.Create("bob", RoleViewer)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	clk.Advance(2 * time.Minute)

	if _, ok := m.Get(sess.ID); ok {
		t.Fatalf("expected expired session to be rejected")
	}
	// Expired sessions are purged on Get.
	if _, ok := m.Get(sess.ID); ok {
		t.Fatalf("expected session to remain absent after expiry purge")
	}
}

func TestSessionManager_Destroy(t *testing.T) {
	m := NewSessionManager(time.Hour)

	sess, err := m.Create("carol", RoleAdmin)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	m.Destroy(sess.ID)

	if _, ok := m.Get(sess.ID); ok {
		t.Fatalf("expected destroyed session to be gone")
	}
}

func TestSessionManager_Purge(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	m := &SessionManager{ttl: time.Minute, clock: clk, sessions: make(map[string]Session)}

	if _, err := m.Create("dana", RoleViewer); err != nil {
		t.Fatalf("create: %v", err)
	}
	live, err := m.Create("eve", RoleAdmin)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	clk.Advance(2 * time.Minute)
	// Refresh eve's session so it survives the sweep.
	m.mu.Lock()
	live.ExpiresAt = clk.Now().Add(time.Hour)
	m.sessions[live.ID] = live
	m.mu.Unlock()

	removed := m.Purge()
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, ok := m.Get(live.ID); !ok {
		t.Fatalf("expected eve's refreshed session to survive purge")
	}
}
