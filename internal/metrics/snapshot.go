package metrics

import (
	"context"
	"runtime"
	"sync"
	"time"
)

type ClientsSnapshot struct {
	Total     int `json:"total"`
	Connected int `json:"connected"`
	Peak      int `json:"peak"`
}

type MessagesSnapshot struct {
	Relayed             uint64  `json:"relayed"`
	Queued              uint64  `json:"queued"`
	ThroughputPerSecond float64 `json:"throughputPerSecond"`
}

type RateLimitSnapshot struct {
	Hits       uint64 `json:"hits"`
	Rejections uint64 `json:"rejections"`
}

type ErrorsSnapshot struct {
	Total  uint64            `json:"total"`
	ByType map[string]uint64 `json:"byType"`
}

// MemorySnapshot is best-effort: Go's runtime does not expose RSS or
// non-heap "external" allocations the way a V8-style runtime does, so
// External is always 0 and RSS approximates total OS-obtained memory via
// runtime.MemStats.Sys. Documented in DESIGN.md as a standard-library-only
// choice: no pack dependency exposes OS-level RSS without a platform-specific
// /proc read, which is out of scope for a single-process in-memory core.
type MemorySnapshot struct {
	HeapUsed  uint64 `json:"heapUsed"`
	HeapTotal uint64 `json:"heapTotal"`
	External  uint64 `json:"external"`
	RSS       uint64 `json:"rss"`
}

// MetricsSnapshot is a dense immutable record captured periodically.
type MetricsSnapshot struct {
	Timestamp time.Time         `json:"timestamp"`
	Clients   ClientsSnapshot   `json:"clients"`
	Messages  MessagesSnapshot  `json:"messages"`
	RateLimit RateLimitSnapshot `json:"rateLimit"`
	Errors    ErrorsSnapshot    `json:"errors"`
	Memory    MemorySnapshot    `json:"memory"`
}

// ClientCounts is supplied by the realm at snapshot time: the metrics
// package has no direct view of live peers.
type ClientCounts func() (total, connected int)

// SnapshotProducer fires on snapshotIntervalMs, computing throughput as
// Δ(messagesRelayed)/Δt since the previous snapshot, and appends a
// MetricsSnapshot to a bounded history buffer (trimmed first by retentionMs
// age, then by maxSnapshots count).
type SnapshotProducer struct {
	metrics      *Metrics
	clients      ClientCounts
	retention    time.Duration
	maxSnapshots int
	interval     time.Duration

	// OnSnapshot, if set, is invoked with every produced snapshot, letting
	// the admin event bus mirror metrics:update without this package
	// importing eventbus itself.
	OnSnapshot func(MetricsSnapshot)

	mu                  sync.Mutex
	history             []MetricsSnapshot
	lastMessagesRelayed uint64
	lastAt              time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSnapshotProducer(m *Metrics, clients ClientCounts, retention time.Duration, maxSnapshots int, interval time.Duration) *SnapshotProducer {
	ctx, cancel := context.WithCancel(context.Background())
	return &SnapshotProducer{
		metrics:      m,
		clients:      clients,
		retention:    retention,
		maxSnapshots: maxSnapshots,
		interval:     interval,
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (p *SnapshotProducer) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		t := time.NewTicker(p.interval)
		defer t.Stop()
		for {
			select {
			case <-p.ctx.Done():
				return
			case <-t.C:
				p.Produce(time.Now())
			}
		}
	}()
}

func (p *SnapshotProducer) Stop() {
	p.cancel()
	p.wg.Wait()
}

// Produce builds a MetricsSnapshot as of now, records it on the throughput
// series, and appends it to the bounded history. Exported so tests can drive
// it deterministically without waiting on a real ticker.
func (p *SnapshotProducer) Produce(now time.Time) MetricsSnapshot {
	relayed := p.metrics.Get(MessagesRelayed)

	p.mu.Lock()
	var throughput float64
	if !p.lastAt.IsZero() {
		dt := now.Sub(p.lastAt).Seconds()
		if dt > 0 {
			throughput = float64(relayed-p.lastMessagesRelayed) / dt
		}
	}
	p.lastMessagesRelayed = relayed
	p.lastAt = now
	p.mu.Unlock()

	p.metrics.Throughput.Add(now, throughput)

	var total, connected int
	if p.clients != nil {
		total, connected = p.clients()
	}
	_, _, peak := p.metrics.Gauge(GaugeActiveConnections)

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	errByType := p.metrics.ErrorsByType()
	var errTotal uint64
	for _, v := range errByType {
		errTotal += v
	}

	snap := MetricsSnapshot{
		Timestamp: now,
		Clients: ClientsSnapshot{
			Total:     total,
			Connected: connected,
			Peak:      int(peak),
		},
		Messages: MessagesSnapshot{
			Relayed:             relayed,
			Queued:              p.metrics.Get(MessagesQueued),
			ThroughputPerSecond: throughput,
		},
		RateLimit: RateLimitSnapshot{
			Hits:       p.metrics.Get(RateLimitHits),
			Rejections: p.metrics.Get(RateLimitRejections),
		},
		Errors: ErrorsSnapshot{
			Total:  errTotal,
			ByType: errByType,
		},
		Memory: MemorySnapshot{
			HeapUsed:  mem.HeapAlloc,
			HeapTotal: mem.HeapSys,
			External:  0,
			RSS:       mem.Sys,
		},
	}

	p.mu.Lock()
	p.history = append(p.history, snap)
	p.trimLocked(now)
	p.mu.Unlock()

	if p.OnSnapshot != nil {
		p.OnSnapshot(snap)
	}

	return snap
}

func (p *SnapshotProducer) trimLocked(now time.Time) {
	if p.retention > 0 {
		cutoff := now.Add(-p.retention)
		i := 0
		for i < len(p.history) && p.history[i].Timestamp.Before(cutoff) {
			i++
		}
		if i > 0 {
			p.history = p.history[i:]
		}
	}
	if p.maxSnapshots > 0 && len(p.history) > p.maxSnapshots {
		p.history = p.history[len(p.history)-p.maxSnapshots:]
	}
}

// History returns a copy of the retained snapshot history, oldest first.
func (p *SnapshotProducer) History() []MetricsSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]MetricsSnapshot, len(p.history))
	copy(out, p.history)
	return out
}

// Latest returns the most recently produced snapshot, if any.
func (p *SnapshotProducer) Latest() (MetricsSnapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.history) == 0 {
		return MetricsSnapshot{}, false
	}
	return p.history[len(p.history)-1], true
}
