package admincore

import (
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"
)

// Session is an authenticated admin principal bound to an opaque session
// token, set as the admin_session cookie.
type Session struct {
	ID        string
	UserID    string
	Role      Role
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (s Session) expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Clock abstracts time.Now for deterministic session-expiry tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// SessionManager holds server-side admin sessions minted by Create and
// looked up by AuthManager through the admin_session cookie; no admin route
// creates or destroys them. Entries are purged lazily on Get and by Core's
// background purger.
type SessionManager struct {
	ttl time.Duration
	clock Clock

	mu       sync.Mutex
	sessions map[string]Session
}

func NewSessionManager(ttl time.Duration) *SessionManager {
	return &SessionManager{
		ttl:      ttl,
		clock:    realClock{},
		sessions: make(map[string]Session),
	}
}

// Create mints a new session for userID/role and stores it keyed by a fresh
// CSPRNG token.
func (m *SessionManager) Create(userID string, role Role) (Session, error) {
	token, err := generateSessionToken()
	if err != nil {
		return Session{}, err
	}
	now := m.clock.Now()
	sess := Session{
		ID:        token,
		UserID:    userID,
		Role:      role,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	m.mu.Lock()
	m.sessions[token] = sess
	m.mu.Unlock()
	return sess, nil
}

// Get returns the session for id, rejecting it (and removing it) if expired.
func (m *SessionManager) Get(id string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return Session{}, false
	}
	if sess.expired(m.clock.Now()) {
		delete(m.sessions, id)
		return Session{}, false
	}
	return sess, true
}

// Destroy invalidates a session.
func (m *SessionManager) Destroy(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Purge removes every expired session and reports how many were dropped.
// Core's background purger calls it every SessionPurgeInterval.
func (m *SessionManager) Purge() int {
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, sess := range m.sessions {
		if sess.expired(now) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

func generateSessionToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
