package signaling

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/wilsonzlin/conduit-relay/internal/metrics"
	"github.com/wilsonzlin/conduit-relay/internal/queue"
	"github.com/wilsonzlin/conduit-relay/internal/realm"
	"github.com/wilsonzlin/conduit-relay/internal/validator"
)

type fakeSender struct {
	sent   [][]byte
	closed bool
	fail   bool
}

func (f *fakeSender) Send(frame []byte) error {
	if f.fail {
		return errors.New("send failed")
	}
	f.sent = append(f.sent, frame)
	return nil
}

func (f *fakeSender) Close() error {
	f.closed = true
	return nil
}

func newTestRouter(relayCfg RelayConfig) (*Router, *realm.Realm, *queue.MessageQueue, *metrics.Metrics) {
	r := realm.New(nil, 0)
	q := queue.New(nil, 10)
	m := metrics.New(8)
	return NewRouter(r, q, m, relayCfg), r, q, m
}

func TestRouter_HeartbeatTouchesPeerAndReplies(t *testing.T) {
	rt, r, _, _ := newTestRouter(RelayConfig{})
	sender := &fakeSender{}
	peer, err := r.Admit("alice", "tok", sender)
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}

	out, err := rt.Dispatch(peer, validator.RawMessage{Type: "HEARTBEAT"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	var decoded struct{ Type string }
	if jerr := json.Unmarshal(out, &decoded); jerr != nil || decoded.Type != "HEARTBEAT" {
		t.Fatalf("expected HEARTBEAT reply, got %s", out)
	}
}

func TestRouter_ForwardsToAttachedDestination(t *testing.T) {
	rt, r, _, m := newTestRouter(RelayConfig{})
	senderA := &fakeSender{}
	senderB := &fakeSender{}
	peerA, _ := r.Admit("alice", "tok-a", senderA)
	_, _ = r.Admit("bob", "tok-b", senderB)

	payload, _ := json.Marshal(map[string]string{"sdp": "v=0"})
	_, err := rt.Dispatch(peerA, validator.RawMessage{Type: "OFFER", Dst: "bob", Payload: payload})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if len(senderB.sent) != 1 {
		t.Fatalf("bob received %d frames, want 1", len(senderB.sent))
	}
	var decoded struct {
		Type string
		Src  string
	}
	_ = json.Unmarshal(senderB.sent[0], &decoded)
	if decoded.Type != "OFFER" || decoded.Src != "alice" {
		t.Fatalf("forwarded frame = %+v, want type=OFFER src=alice", decoded)
	}
	if got := m.Get(metrics.MessagesRelayed); got != 1 {
		t.Fatalf("MessagesRelayed = %d, want 1", got)
	}
}

func TestRouter_QueuesWhenDestinationOffline(t *testing.T) {
	rt, r, q, m := newTestRouter(RelayConfig{})
	sender := &fakeSender{}
	peer, _ := r.Admit("alice", "tok", sender)

	_, err := rt.Dispatch(peer, validator.RawMessage{Type: "OFFER", Dst: "bob"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	msgs := q.Drain("bob")
	if len(msgs) != 1 || msgs[0].Src != "alice" {
		t.Fatalf("queued messages = %+v, want one from alice", msgs)
	}
	if got := m.Get(metrics.MessagesQueued); got != 1 {
		t.Fatalf("MessagesQueued = %d, want 1", got)
	}
}

func TestRouter_RelayDisabledRejectsRelayMessages(t *testing.T) {
	rt, r, _, _ := newTestRouter(RelayConfig{Enabled: false})
	sender := &fakeSender{}
	peer, _ := r.Admit("alice", "tok", sender)

	out, err := rt.Dispatch(peer, validator.RawMessage{Type: "RELAY", Dst: "bob"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	var decoded struct {
		Type    string
		Payload struct{ Msg string }
	}
	_ = json.Unmarshal(out, &decoded)
	if decoded.Type != "ERROR" {
		t.Fatalf("expected ERROR reply, got %s", out)
	}
}

func TestRouter_RelayOversizeRejectedWithCount(t *testing.T) {
	rt, r, _, m := newTestRouter(RelayConfig{Enabled: true, MaxMessageSize: 4})
	sender := &fakeSender{}
	peer, _ := r.Admit("alice", "tok", sender)

	payload, _ := json.Marshal(map[string]string{"data": "way too big for four bytes"})
	out, err := rt.Dispatch(peer, validator.RawMessage{Type: "RELAY", Dst: "bob", Payload: payload})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	var decoded struct{ Type string }
	_ = json.Unmarshal(out, &decoded)
	if decoded.Type != "ERROR" {
		t.Fatalf("expected ERROR reply for oversize relay, got %s", out)
	}
	if got := m.ErrorsByType()[metrics.ErrorKindRelayOversize]; got != 1 {
		t.Fatalf("relay_oversize errors = %d, want 1", got)
	}
}

func TestRouter_RelayOpenAcksSender(t *testing.T) {
	rt, r, _, _ := newTestRouter(RelayConfig{Enabled: true, MaxMessageSize: 1024})
	sender := &fakeSender{}
	peer, _ := r.Admit("alice", "tok", sender)

	payload, _ := json.Marshal(map[string]string{"connectionId": "c1"})
	out, err := rt.Dispatch(peer, validator.RawMessage{Type: "RELAY_OPEN", Dst: "bob", Payload: payload})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	var decoded struct{ Type string }
	_ = json.Unmarshal(out, &decoded)
	if decoded.Type != "RELAY_OPEN" {
		t.Fatalf("expected RELAY_OPEN ack, got %s", out)
	}
}

func TestRouter_SendFailureFallsBackToQueue(t *testing.T) {
	rt, r, q, m := newTestRouter(RelayConfig{})
	senderA := &fakeSender{}
	senderB := &fakeSender{fail: true}
	peerA, _ := r.Admit("alice", "tok-a", senderA)
	_, _ = r.Admit("bob", "tok-b", senderB)

	_, err := rt.Dispatch(peerA, validator.RawMessage{Type: "OFFER", Dst: "bob"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got := m.ErrorsByType()[metrics.ErrorKindSendFailed]; got != 1 {
		t.Fatalf("send_failed errors = %d, want 1", got)
	}
	if msgs := q.Drain("bob"); len(msgs) != 1 {
		t.Fatalf("expected message re-queued after send failure, got %d", len(msgs))
	}
}
