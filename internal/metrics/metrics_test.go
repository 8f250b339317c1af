package metrics

import (
	"testing"
	"time"
)

func TestMetrics_CountersAndErrors(t *testing.T) {
	m := New(8)
	m.Inc(ConnectionsOpened)
	m.Inc(ConnectionsOpened)
	m.Add(MessagesRelayed, 5)
	m.IncError(ErrorKindQueueOverflow)

	if got := m.Get(ConnectionsOpened); got != 2 {
		t.Fatalf("ConnectionsOpened = %d, want 2", got)
	}
	if got := m.Get(MessagesRelayed); got != 5 {
		t.Fatalf("MessagesRelayed = %d, want 5", got)
	}
	if got := m.ErrorsByType()[ErrorKindQueueOverflow]; got != 1 {
		t.Fatalf("queue_overflow = %d, want 1", got)
	}
}

func TestMetrics_GaugeTracksMinMax(t *testing.T) {
	m := New(8)
	m.SetGauge(GaugeActiveConnections, 3)
	m.SetGauge(GaugeActiveConnections, 7)
	m.SetGauge(GaugeActiveConnections, 2)

	current, min, max := m.Gauge(GaugeActiveConnections)
	if current != 2 || min != 2 || max != 7 {
		t.Fatalf("gauge = (%d, %d, %d), want (2, 2, 7)", current, min, max)
	}
}

func TestMetrics_Reset(t *testing.T) {
	m := New(8)
	m.Inc(ConnectionsOpened)
	m.SetGauge(GaugeActiveConnections, 5)
	m.Throughput.Add(time.Unix(0, 0), 1)

	m.Reset()

	if got := m.Get(ConnectionsOpened); got != 0 {
		t.Fatalf("expected reset counter, got %d", got)
	}
	if current, _, _ := m.Gauge(GaugeActiveConnections); current != 0 {
		t.Fatalf("expected reset gauge, got %d", current)
	}
	if got := m.Throughput.Size(); got != 0 {
		t.Fatalf("expected reset time series, got size %d", got)
	}
}

func TestMetrics_ResetIdempotentTwice(t *testing.T) {
	m := New(8)
	m.Inc(ConnectionsOpened)
	m.Reset()
	first := m.Snapshot()
	m.Reset()
	second := m.Snapshot()
	if len(first) != len(second) {
		t.Fatalf("two consecutive resets should yield the same post-state")
	}
}

func TestCircularTimeSeries_SizeAndOrder(t *testing.T) {
	ts := NewCircularTimeSeries(3)
	base := time.Unix(0, 0)
	for i := 0; i < 5; i++ {
		ts.Add(base.Add(time.Duration(i)*time.Second), float64(i))
	}

	if got := ts.Size(); got != 3 {
		t.Fatalf("size = %d, want 3", got)
	}

	points := ts.GetAll()
	if len(points) != 3 {
		t.Fatalf("GetAll len = %d, want 3", len(points))
	}
	for i, p := range points {
		wantValue := float64(i + 2) // entries 2, 3, 4 survive a 3-capacity ring
		if p.Value != wantValue {
			t.Fatalf("points[%d].Value = %v, want %v (not in chronological order)", i, p.Value, wantValue)
		}
	}
}

func TestSnapshotProducer_ComputesThroughputAndTrimsHistory(t *testing.T) {
	m := New(8)
	clients := func() (int, int) { return 2, 2 }

	p := NewSnapshotProducer(m, clients, 0, 2, time.Second)

	t0 := time.Unix(0, 0)
	m.Add(MessagesRelayed, 10)
	p.Produce(t0)

	m.Add(MessagesRelayed, 10)
	snap := p.Produce(t0.Add(time.Second))
	if snap.Messages.ThroughputPerSecond != 10 {
		t.Fatalf("throughput = %v, want 10", snap.Messages.ThroughputPerSecond)
	}

	m.Add(MessagesRelayed, 5)
	p.Produce(t0.Add(2 * time.Second))

	history := p.History()
	if len(history) != 2 {
		t.Fatalf("history len = %d, want 2 (maxSnapshots cap)", len(history))
	}
}
