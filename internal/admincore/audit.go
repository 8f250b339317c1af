package admincore

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// AuditEntry is one append-only record of an admin-initiated action.
type AuditEntry struct {
	ID        string
	Timestamp time.Time
	Action    string
	ActorID   string
	Details   map[string]any
}

// AuditFilter narrows a Query call. Zero-value fields are unconstrained.
type AuditFilter struct {
	UserID string
	Action string
	Start  time.Time
	End    time.Time
	Limit  int
}

// AuditLogger is an append-only bounded ring: when it wraps, the oldest
// entry is displaced. In disabled mode Log still synthesizes and returns an
// entry (so callers can emit it on the event bus) but never stores it.
type AuditLogger struct {
	clock   Clock
	enabled bool

	// OnEntry, if set, is invoked with every synthesized entry (even in
	// disabled mode), letting the event bus mirror audit:entry to admin
	// subscribers without AuditLogger importing eventbus itself.
	OnEntry func(AuditEntry)

	mu      sync.Mutex
	entries []AuditEntry
	next    int
	size    int
	cap     int
}

func NewAuditLogger(enabled bool, maxEntries int) *AuditLogger {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &AuditLogger{
		clock:   realClock{},
		enabled: enabled,
		entries: make([]AuditEntry, maxEntries),
		cap:     maxEntries,
	}
}

// Log synthesizes a new entry and, if the logger is enabled, stores it,
// displacing the oldest entry once the ring is full.
func (a *AuditLogger) Log(action, actorID string, details map[string]any) AuditEntry {
	entry := AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: a.clock.Now(),
		Action:    action,
		ActorID:   actorID,
		Details:   details,
	}
	if a.enabled {
		a.mu.Lock()
		a.entries[a.next] = entry
		a.next = (a.next + 1) % a.cap
		if a.size < a.cap {
			a.size++
		}
		a.mu.Unlock()
	}
	if a.OnEntry != nil {
		a.OnEntry(entry)
	}
	return entry
}

// Query returns entries matching filter, oldest first, most-recently-added
// last, capped by filter.Limit if set.
func (a *AuditLogger) Query(filter AuditFilter) []AuditEntry {
	a.mu.Lock()
	ordered := make([]AuditEntry, 0, a.size)
	start := 0
	if a.size == a.cap {
		start = a.next
	}
	for i := 0; i < a.size; i++ {
		ordered = append(ordered, a.entries[(start+i)%a.cap])
	}
	a.mu.Unlock()

	out := make([]AuditEntry, 0, len(ordered))
	for _, e := range ordered {
		if filter.UserID != "" && e.ActorID != filter.UserID {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		if !filter.Start.IsZero() && e.Timestamp.Before(filter.Start) {
			continue
		}
		if !filter.End.IsZero() && e.Timestamp.After(filter.End) {
			continue
		}
		out = append(out, e)
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[len(out)-filter.Limit:]
	}
	return out
}

// Clear empties the ring, used by DELETE /audit.
func (a *AuditLogger) Clear() {
	a.mu.Lock()
	a.entries = make([]AuditEntry, a.cap)
	a.next = 0
	a.size = 0
	a.mu.Unlock()
}

// Len reports the number of stored entries.
func (a *AuditLogger) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.size
}
