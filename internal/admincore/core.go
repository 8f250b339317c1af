// Package admincore implements the control-plane services layered over a
// realm: authentication, sessions, bans, audit logging, and the mutating
// actions the admin router exposes.
package admincore

import (
	"context"
	"sync"
	"time"

	"github.com/wilsonzlin/conduit-relay/internal/eventbus"
	"github.com/wilsonzlin/conduit-relay/internal/metrics"
	"github.com/wilsonzlin/conduit-relay/internal/queue"
	"github.com/wilsonzlin/conduit-relay/internal/ratelimit"
	"github.com/wilsonzlin/conduit-relay/internal/realm"
)

// Config assembles everything AdminCore needs to attach to a running
// signaling server.
type Config struct {
	Realm   *realm.Realm
	Queue   *queue.MessageQueue
	Metrics *metrics.Metrics
	Limiter *ratelimit.PeerLimiter

	Auth   AuthConfig
	Flags  FeatureFlags
	Events *eventbus.Bus

	SessionTTL time.Duration

	AuditEnabled    bool
	AuditMaxEntries int

	SessionPurgeInterval time.Duration
}

// Core is the typed façade the admin router and event bus operate against.
// It owns the sub-components AuthManager/SessionManager/BanManager/
// AuditLogger/Actions and the background session purger. Attach starts the
// purger, Detach stops it without tearing down the component state, and
// Destroy stops every owned timer. Attaching installs no metrics
// instrumentation on the realm.
type Core struct {
	Realm   *realm.Realm
	Queue   *queue.MessageQueue
	Metrics *metrics.Metrics

	Auth     *AuthManager
	Sessions *SessionManager
	Bans     *BanManager
	Audit    *AuditLogger
	Actions  *Actions
	Events   *eventbus.Bus

	mu       sync.Mutex
	attached bool

	purgeCtx    context.Context
	purgeCancel context.CancelFunc
	purgeWG     sync.WaitGroup
	purgeInterval time.Duration
}

// New builds the admin core's component graph but does not start any
// background timers; call Attach for that.
func New(cfg Config) *Core {
	sessionTTL := cfg.SessionTTL
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	sessions := NewSessionManager(sessionTTL)
	auth := NewAuthManager(cfg.Auth, sessions)
	bans := NewBanManager()
	audit := NewAuditLogger(cfg.AuditEnabled, cfg.AuditMaxEntries)
	actions := NewActions(cfg.Realm, bans, audit, cfg.Limiter, cfg.Flags)

	if cfg.Events != nil {
		audit.OnEntry = func(entry AuditEntry) {
			cfg.Events.Emit(eventbus.EventAuditEntry, entry)
		}
		bans.OnAdded = func(ban Ban) {
			cfg.Events.Emit(eventbus.EventBanAdded, ban)
		}
		bans.OnRemoved = func(ban Ban) {
			cfg.Events.Emit(eventbus.EventBanRemoved, ban)
		}
	}

	purgeInterval := cfg.SessionPurgeInterval
	if purgeInterval <= 0 {
		purgeInterval = 10 * time.Minute
	}

	return &Core{
		Realm:         cfg.Realm,
		Queue:         cfg.Queue,
		Metrics:       cfg.Metrics,
		Auth:          auth,
		Sessions:      sessions,
		Bans:          bans,
		Audit:         audit,
		Actions:       actions,
		Events:        cfg.Events,
		purgeInterval: purgeInterval,
	}
}

// Attach starts the background session purger and marks the core as live.
// Idempotent: attaching an already-attached core is a no-op.
func (c *Core) Attach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attached {
		return
	}
	c.attached = true

	ctx, cancel := context.WithCancel(context.Background())
	c.purgeCtx = ctx
	c.purgeCancel = cancel
	c.purgeWG.Add(1)
	go func() {
		defer c.purgeWG.Done()
		t := time.NewTicker(c.purgeInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				c.Sessions.Purge()
			}
		}
	}()
}

// Detach marks the core as unattached. Actions remain callable (they are
// audit-only in spirit regardless of attachment; there is no separate
// "rejected" mode since every mutation here already composes cleanly over a
// realm that may be empty), but the background purge loop is stopped so a
// detached core leaves no goroutine running.
func (c *Core) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.attached {
		return
	}
	c.attached = false
	if c.purgeCancel != nil {
		c.purgeCancel()
		c.purgeWG.Wait()
	}
}

// Attached reports whether Attach has been called without a matching Detach.
func (c *Core) Attached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attached
}

// Destroy stops every timer the core owns. Safe to call multiple times and
// safe to call without a prior Attach.
func (c *Core) Destroy() {
	c.Detach()
}
