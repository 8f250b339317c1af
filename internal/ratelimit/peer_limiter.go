package ratelimit

import "sync"

// PeerLimiter holds one TokenBucket per peer id, admitting inbound signaling
// messages. Buckets are created lazily on first use and must be dropped with
// RemoveClient when a peer disconnects for good (not on a transient detach,
// which preserves the bucket across a reconnect window).
type PeerLimiter struct {
	clock Clock

	maxTokens  int64
	refillRate int64

	mu      sync.Mutex
	buckets map[string]*TokenBucket
}

func NewPeerLimiter(clock Clock, maxTokens, refillRate int64) *PeerLimiter {
	if clock == nil {
		clock = RealClock{}
	}
	return &PeerLimiter{
		clock:      clock,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		buckets:    make(map[string]*TokenBucket),
	}
}

// TryConsume admits one message for the given peer id, creating a fresh full
// bucket on first use.
func (l *PeerLimiter) TryConsume(id string) bool {
	return l.bucketFor(id).Allow(1)
}

func (l *PeerLimiter) bucketFor(id string) *TokenBucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets[id]; ok {
		return b
	}
	b := NewTokenBucket(l.clock, l.maxTokens, l.refillRate)
	l.buckets[id] = b
	return b
}

// RemoveClient drops the bucket for id. Must be called on final disconnect,
// not on a transient detach that may still be reconnected within
// aliveTimeout.
func (l *PeerLimiter) RemoveClient(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, id)
}

// Clear drops every bucket.
func (l *PeerLimiter) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets = make(map[string]*TokenBucket)
}

// Snapshot reports the number of tracked peer buckets, used by the admin
// metrics surface without reaching into the limiter's internals.
func (l *PeerLimiter) Snapshot() (trackedPeers int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// UpdateLimits changes the bucket parameters applied to peers admitted from
// this point on; it does not resize buckets already in flight, matching the
// lazy-creation model (a peer picks up the new rate only once RemoveClient
// has dropped its bucket; a transient detach and reconnect keeps the old one).
func (l *PeerLimiter) UpdateLimits(maxTokens, refillRate int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.maxTokens = maxTokens
	l.refillRate = refillRate
}
