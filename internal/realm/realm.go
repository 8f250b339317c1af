// Package realm is the registry of live peers: id generation, ownership,
// and the reconnect/rebind rules for the signaling server.
package realm

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"sync"
	"time"
)

// ErrIDTaken is returned by Admit when id is already bound to a live peer
// whose token does not match.
var ErrIDTaken = errors.New("id is already taken")

// ErrCapacity is returned by Admit when admitting a brand-new peer would
// exceed the realm's configured concurrentLimit. Reconnects that rebind an
// existing id never hit this check.
var ErrCapacity = errors.New("concurrent connection limit reached")

// Sender is the narrow capability a Peer's socket offers the realm: an
// outbound send and a close, never the adapter's concrete connection type.
type Sender interface {
	Send(frame []byte) error
	Close() error
}

// Peer is a live signaling client. At most one live Peer exists per id; a
// second connection presenting the same id is accepted only if its token
// matches, in which case the socket is rebound onto the existing Peer.
type Peer struct {
	ID    string
	Token string

	mu       sync.Mutex
	sender   Sender
	lastPing time.Time
}

// Bind attaches (or rebinds) sender as this peer's outbound socket.
func (p *Peer) Bind(sender Sender) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sender = sender
}

// Detach clears the peer's socket without removing it from the realm,
// leaving a window for the client to reconnect within aliveTimeout.
func (p *Peer) Detach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sender = nil
}

// Attached reports whether a socket is currently bound.
func (p *Peer) Attached() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sender != nil
}

// Send forwards frame to the peer's bound socket. Returns an error if the
// peer is detached or the underlying send fails.
func (p *Peer) Send(frame []byte) error {
	p.mu.Lock()
	sender := p.sender
	p.mu.Unlock()
	if sender == nil {
		return errors.New("peer is detached")
	}
	return sender.Send(frame)
}

// Close best-effort closes the bound socket, if any.
func (p *Peer) Close() error {
	p.mu.Lock()
	sender := p.sender
	p.sender = nil
	p.mu.Unlock()
	if sender == nil {
		return nil
	}
	return sender.Close()
}

// Touch records an inbound frame's arrival time, resetting the
// broken-connection sweeper's staleness clock.
func (p *Peer) Touch(now time.Time) {
	p.mu.Lock()
	p.lastPing = now
	p.mu.Unlock()
}

// LastPing reports the most recent Touch time.
func (p *Peer) LastPing() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastPing
}

// Clock abstracts time for deterministic sweeper tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Realm is the in-process registry of live peers. It exclusively owns its
// Peer set; callers never mutate a Peer's membership directly.
type Realm struct {
	clock       Clock
	concurrentLimit int

	mu    sync.Mutex
	peers map[string]*Peer
}

// New constructs a Realm. concurrentLimit <= 0 means unbounded.
func New(clock Clock, concurrentLimit int) *Realm {
	if clock == nil {
		clock = realClock{}
	}
	return &Realm{
		clock:           clock,
		concurrentLimit: concurrentLimit,
		peers:           make(map[string]*Peer),
	}
}

const generatedIDBytes = 12

// GenerateID returns a cryptographically random base64url id not currently
// mapped in the realm, retrying on collision. Math.random-style generators
// are forbidden: ids double as addressing tokens.
func (r *Realm) GenerateID() (string, error) {
	for attempt := 0; attempt < 8; attempt++ {
		buf := make([]byte, generatedIDBytes)
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		id := base64.RawURLEncoding.EncodeToString(buf)

		r.mu.Lock()
		_, exists := r.peers[id]
		r.mu.Unlock()
		if !exists {
			return id, nil
		}
	}
	return "", errors.New("failed to allocate unique peer id")
}

// Admit registers a new peer under id/token, or rebinds sender onto an
// existing live peer if id is already taken and its token matches.
// Returns ErrIDTaken if id is live under a different token.
func (r *Realm) Admit(id, token string, sender Sender) (*Peer, error) {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.peers[id]; ok {
		if existing.Token != token {
			return nil, ErrIDTaken
		}
		existing.Bind(sender)
		existing.Touch(now)
		return existing, nil
	}

	if r.concurrentLimit > 0 && len(r.peers) >= r.concurrentLimit {
		return nil, ErrCapacity
	}

	p := &Peer{ID: id, Token: token, sender: sender, lastPing: now}
	r.peers[id] = p
	return p, nil
}

// SetPeer inserts or replaces the peer registered under id directly, without
// Admit's token and capacity checks.
func (r *Realm) SetPeer(id string, p *Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[id] = p
}

// GetPeer returns the live peer for id, if any.
func (r *Realm) GetPeer(id string) (*Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[id]
	return p, ok
}

// RemovePeer deletes id from the realm unconditionally.
func (r *Realm) RemovePeer(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, id)
}

// PeerExists reports whether id is currently registered (attached or
// detached-but-not-yet-swept).
func (r *Realm) PeerExists(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.peers[id]
	return ok
}

// GetPeerIds returns every currently registered peer id, in no particular
// order.
func (r *Realm) GetPeerIds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.peers))
	for id := range r.peers {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of currently registered peers.
func (r *Realm) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

// Snapshot returns every registered peer, in no particular order. Used by
// sweepers and admin list/broadcast operations.
func (r *Realm) Snapshot() []*Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}
	return out
}
