package admincore

import (
	"errors"

	"github.com/wilsonzlin/conduit-relay/internal/ratelimit"
	"github.com/wilsonzlin/conduit-relay/internal/realm"
)

// ErrUnknownFeature is returned by ToggleFeature for an unrecognized name.
var ErrUnknownFeature = errors.New("unknown feature")

// FeatureFlags holds the setters for the mutable runtime toggles an admin
// can flip. Each is backed by an atomic.Bool on the live signaling
// server/router, so updates are visible to in-flight connections without a
// restart.
type FeatureFlags struct {
	SetDiscoveryEnabled func(bool)
	SetRelayEnabled     func(bool)
}

// Actions composes the realm, ban list, and audit log into the mutating
// operations the admin router exposes. Every method takes actorUserID so
// the audit trail is non-optional: there is no way to call these without
// leaving a record.
type Actions struct {
	realm   *realm.Realm
	bans    *BanManager
	audit   *AuditLogger
	limiter *ratelimit.PeerLimiter
	flags   FeatureFlags
}

func NewActions(r *realm.Realm, bans *BanManager, audit *AuditLogger, limiter *ratelimit.PeerLimiter, flags FeatureFlags) *Actions {
	return &Actions{realm: r, bans: bans, audit: audit, limiter: limiter, flags: flags}
}

// DisconnectClient closes id's socket and removes it from the realm.
func (a *Actions) DisconnectClient(id, actorID string) (found bool) {
	if peer, ok := a.realm.GetPeer(id); ok {
		_ = peer.Close()
		a.realm.RemovePeer(id)
		found = true
	}
	if a.limiter != nil {
		a.limiter.RemoveClient(id)
	}
	a.audit.Log("disconnect_client", actorID, map[string]any{"id": id, "found": found})
	return found
}

// BanClient records a ban for id, then disconnects it if currently present.
func (a *Actions) BanClient(id, reason, actorID string) Ban {
	ban := a.bans.BanClient(id, reason)
	if peer, ok := a.realm.GetPeer(id); ok {
		_ = peer.Close()
		a.realm.RemovePeer(id)
	}
	if a.limiter != nil {
		a.limiter.RemoveClient(id)
	}
	a.audit.Log("ban_client", actorID, map[string]any{"id": id, "reason": reason})
	return ban
}

// UnbanClient lifts a peer-id ban. It does not reconnect anything; it only
// clears the ban-list entry.
func (a *Actions) UnbanClient(id, actorID string) bool {
	ok := a.bans.UnbanClient(id)
	a.audit.Log("unban_client", actorID, map[string]any{"id": id, "was_banned": ok})
	return ok
}

// BanIP records an IP ban. Disconnection is advisory: the realm does not
// track peer IPs, so this only takes effect if a deployment's adapter
// cross-checks IsIPBanned before admitting a connection.
func (a *Actions) BanIP(ip, reason, actorID string) Ban {
	ban := a.bans.BanIP(ip, reason)
	a.audit.Log("ban_ip", actorID, map[string]any{"ip": ip, "reason": reason})
	return ban
}

func (a *Actions) UnbanIP(ip, actorID string) bool {
	ok := a.bans.UnbanIP(ip)
	a.audit.Log("unban_ip", actorID, map[string]any{"ip": ip, "was_banned": ok})
	return ok
}

// BroadcastMessage sends frame to every currently registered peer, returning
// how many sends succeeded.
func (a *Actions) BroadcastMessage(frame []byte, actorID string) (recipientCount int) {
	for _, peer := range a.realm.Snapshot() {
		if err := peer.Send(frame); err == nil {
			recipientCount++
		}
	}
	a.audit.Log("broadcast", actorID, map[string]any{"recipientCount": recipientCount})
	return recipientCount
}

// UpdateRateLimits mutates the peer limiter's bucket parameters applied to
// newly admitted peers.
func (a *Actions) UpdateRateLimits(maxTokens, refillRate int64, actorID string) {
	if a.limiter != nil {
		a.limiter.UpdateLimits(maxTokens, refillRate)
	}
	a.audit.Log("update_rate_limits", actorID, map[string]any{
		"maxTokens":  maxTokens,
		"refillRate": refillRate,
	})
}

// ToggleFeature flips one of the closed set of runtime feature flags
// ("discovery", "relay"). Returns ErrUnknownFeature for anything else.
func (a *Actions) ToggleFeature(feature string, enabled bool, actorID string) error {
	var set func(bool)
	switch feature {
	case "discovery":
		set = a.flags.SetDiscoveryEnabled
	case "relay":
		set = a.flags.SetRelayEnabled
	default:
		return ErrUnknownFeature
	}
	if set != nil {
		set(enabled)
	}
	a.audit.Log("toggle_feature", actorID, map[string]any{"feature": feature, "enabled": enabled})
	return nil
}

// ResetMetrics is audit-only; the caller is responsible for actually
// resetting the metrics registry since Actions does not own it.
func (a *Actions) ResetMetrics(actorID string) {
	a.audit.Log("reset_metrics", actorID, nil)
}
