// Package lifecycle runs the two independent timed tasks that age peers and
// queued messages out of the realm: the broken-connection detector and the
// message-expiry pruner.
package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/wilsonzlin/conduit-relay/internal/queue"
	"github.com/wilsonzlin/conduit-relay/internal/realm"
)

// Clock abstracts time for deterministic sweeper tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// BrokenConnectionSweeper closes and removes any peer whose lastPing is
// older than aliveTimeout. OnClose, if set, is invoked with the removed
// peer's id so the caller can drop its rate-limiter bucket.
type BrokenConnectionSweeper struct {
	realm        *realm.Realm
	clock        Clock
	aliveTimeout time.Duration

	OnClose func(id string)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewBrokenConnectionSweeper(r *realm.Realm, clock Clock, aliveTimeout time.Duration) *BrokenConnectionSweeper {
	if clock == nil {
		clock = realClock{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &BrokenConnectionSweeper{
		realm:        r,
		clock:        clock,
		aliveTimeout: aliveTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start launches the ticking loop in a background goroutine.
func (s *BrokenConnectionSweeper) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTicker(s.aliveTimeout)
		defer t.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-t.C:
				s.Sweep()
			}
		}
	}()
}

// Sweep runs a single pass. Exported so tests can drive it deterministically
// without waiting on a real ticker.
func (s *BrokenConnectionSweeper) Sweep() {
	if s.realm == nil {
		return
	}
	now := s.clock.Now()
	for _, p := range s.realm.Snapshot() {
		if now.Sub(p.LastPing()) <= s.aliveTimeout {
			continue
		}
		p.Close()
		s.realm.RemovePeer(p.ID)
		if s.OnClose != nil {
			s.OnClose(p.ID)
		}
	}
}

// Stop cancels the loop and waits for it to exit. Idempotent.
func (s *BrokenConnectionSweeper) Stop() {
	s.cancel()
	s.wg.Wait()
}

// ExpireNotifier is the narrow capability the MessageExpirer uses to tell an
// attached destination that a queued message aged out, without depending on
// the signaling package's concrete message type.
type ExpireNotifier func(dst string, src string)

// MessageExpirer drains any destination whose queue has gone unread for
// longer than expireTimeout. If the destination is attached, it synthesizes
// an Expire notification per drained message reporting the original src;
// otherwise the drained messages are discarded.
type MessageExpirer struct {
	realm         *realm.Realm
	queue         *queue.MessageQueue
	clock         Clock
	expireTimeout time.Duration
	interval      time.Duration

	notify ExpireNotifier

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMessageExpirer(r *realm.Realm, q *queue.MessageQueue, clock Clock, expireTimeout, interval time.Duration, notify ExpireNotifier) *MessageExpirer {
	if clock == nil {
		clock = realClock{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &MessageExpirer{
		realm:         r,
		queue:         q,
		clock:         clock,
		expireTimeout: expireTimeout,
		interval:      interval,
		notify:        notify,
		ctx:           ctx,
		cancel:        cancel,
	}
}

func (e *MessageExpirer) Start() {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		t := time.NewTicker(e.interval)
		defer t.Stop()
		for {
			select {
			case <-e.ctx.Done():
				return
			case <-t.C:
				e.Sweep()
			}
		}
	}()
}

// Sweep runs a single pass. Exported so tests can drive it deterministically.
func (e *MessageExpirer) Sweep() {
	if e.queue == nil {
		return
	}
	stale := e.queue.DestinationsPastDeadline(e.expireTimeout)
	for dst, msgs := range stale {
		if e.realm == nil {
			continue
		}
		p, attached := e.realm.GetPeer(dst)
		if !attached || !p.Attached() {
			continue
		}
		if e.notify == nil {
			continue
		}
		for _, m := range msgs {
			e.notify(dst, m.Src)
		}
	}
}

func (e *MessageExpirer) Stop() {
	e.cancel()
	e.wg.Wait()
}
