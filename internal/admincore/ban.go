package admincore

import (
	"sync"
	"time"
)

// BanKind distinguishes a peer-id ban from an IP ban. The two maps share no
// state: banning a peer id never implies banning its IP and vice versa.
type BanKind string

const (
	BanKindPeer BanKind = "peer"
	BanKindIP   BanKind = "ip"
)

// Ban is one ban-list entry.
type Ban struct {
	Value     string
	Kind      BanKind
	Reason    string
	BannedAt  time.Time
}

// BanManager holds the in-memory client and IP ban maps. Enforcement against
// live connections is left to the caller (the actions layer); BanManager
// itself only tracks membership.
type BanManager struct {
	clock Clock

	// OnAdded/OnRemoved, if set, are invoked after each mutation, letting the
	// event bus mirror ban:added/ban:removed without BanManager importing
	// eventbus itself.
	OnAdded   func(Ban)
	OnRemoved func(Ban)

	mu      sync.Mutex
	clients map[string]Ban
	ips     map[string]Ban
}

func NewBanManager() *BanManager {
	return &BanManager{
		clock:   realClock{},
		clients: make(map[string]Ban),
		ips:     make(map[string]Ban),
	}
}

func (b *BanManager) BanClient(id, reason string) Ban {
	ban := Ban{Value: id, Kind: BanKindPeer, Reason: reason, BannedAt: b.clock.Now()}
	b.mu.Lock()
	b.clients[id] = ban
	b.mu.Unlock()
	if b.OnAdded != nil {
		b.OnAdded(ban)
	}
	return ban
}

func (b *BanManager) UnbanClient(id string) bool {
	b.mu.Lock()
	ban, ok := b.clients[id]
	if ok {
		delete(b.clients, id)
	}
	b.mu.Unlock()
	if ok && b.OnRemoved != nil {
		b.OnRemoved(ban)
	}
	return ok
}

func (b *BanManager) IsClientBanned(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.clients[id]
	return ok
}

func (b *BanManager) BanIP(ip, reason string) Ban {
	ban := Ban{Value: ip, Kind: BanKindIP, Reason: reason, BannedAt: b.clock.Now()}
	b.mu.Lock()
	b.ips[ip] = ban
	b.mu.Unlock()
	if b.OnAdded != nil {
		b.OnAdded(ban)
	}
	return ban
}

func (b *BanManager) UnbanIP(ip string) bool {
	b.mu.Lock()
	ban, ok := b.ips[ip]
	if ok {
		delete(b.ips, ip)
	}
	b.mu.Unlock()
	if ok && b.OnRemoved != nil {
		b.OnRemoved(ban)
	}
	return ok
}

func (b *BanManager) IsIPBanned(ip string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.ips[ip]
	return ok
}

// ListClients returns every banned peer id, in no particular order.
func (b *BanManager) ListClients() []Ban {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Ban, 0, len(b.clients))
	for _, ban := range b.clients {
		out = append(out, ban)
	}
	return out
}

// ListIPs returns every banned IP, in no particular order.
func (b *BanManager) ListIPs() []Ban {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Ban, 0, len(b.ips))
	for _, ban := range b.ips {
		out = append(out, ban)
	}
	return out
}

// Clear empties both ban maps, used by DELETE /bans.
func (b *BanManager) Clear() {
	b.mu.Lock()
	b.clients = make(map[string]Ban)
	b.ips = make(map[string]Ban)
	b.mu.Unlock()
}
