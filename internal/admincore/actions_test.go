package admincore

import (
	"errors"
	"testing"

	"github.com/wilsonzlin/conduit-relay/internal/realm"
)

var errSendFailed = errors.New("send failed")

type fakeSender struct {
	sent     [][]byte
	closed   bool
	failSend bool
}

func (s *fakeSender) Send(frame []byte) error {
	if s.failSend {
		return errSendFailed
	}
	s.sent = append(s.sent, frame)
	return nil
}

func (s *fakeSender) Close() error {
	s.closed = true
	return nil
}

func newTestActions(t *testing.T) (*Actions, *realm.Realm, *AuditLogger) {
	t.Helper()
	r := realm.New(nil, 0)
	bans := NewBanManager()
	audit := NewAuditLogger(true, 100)
	a := NewActions(r, bans, audit, nil, FeatureFlags{})
	return a, r, audit
}

func TestActions_DisconnectClient(t *testing.T) {
	a, r, audit := newTestActions(t)

	if _, err := r.Admit("peer-1", "tok", &fakeSender{}); err != nil {
		t.Fatalf("admit: %v", err)
	}

	if found := a.DisconnectClient("peer-1", "actor-1"); !found {
		t.Fatalf("expected DisconnectClient to find peer-1")
	}
	if r.PeerExists("peer-1") {
		t.Fatalf("expected peer-1 removed from realm")
	}
	if audit.Len() != 1 {
		t.Fatalf("expected one audit entry, got %d", audit.Len())
	}

	if found := a.DisconnectClient("peer-1", "actor-1"); found {
		t.Fatalf("expected second disconnect to report not-found")
	}
}

func TestActions_BanClientDisconnectsAndRecords(t *testing.T) {
	a, r, _ := newTestActions(t)

	if _, err := r.Admit("peer-2", "tok", &fakeSender{}); err != nil {
		t.Fatalf("admit: %v", err)
	}

	ban := a.BanClient("peer-2", "abuse", "actor-1")
	if ban.Value != "peer-2" || ban.Kind != BanKindPeer {
		t.Fatalf("unexpected ban record: %+v", ban)
	}
	if r.PeerExists("peer-2") {
		t.Fatalf("expected banned peer to be removed from realm")
	}
	if !a.bans.IsClientBanned("peer-2") {
		t.Fatalf("expected peer-2 to be recorded as banned")
	}

	if !a.UnbanClient("peer-2", "actor-1") {
		t.Fatalf("expected unban to succeed")
	}
	if a.bans.IsClientBanned("peer-2") {
		t.Fatalf("expected peer-2 no longer banned")
	}
}

func TestActions_BroadcastMessageCountsSuccessfulSends(t *testing.T) {
	a, r, _ := newTestActions(t)

	ok := &fakeSender{}
	broken := &fakeSender{failSend: true}
	if _, err := r.Admit("peer-ok", "t1", ok); err != nil {
		t.Fatalf("admit: %v", err)
	}
	if _, err := r.Admit("peer-broken", "t2", broken); err != nil {
		t.Fatalf("admit: %v", err)
	}

	count := a.BroadcastMessage([]byte("hello"), "actor-1")
	if count != 1 {
		t.Fatalf("recipientCount = %d, want 1", count)
	}
	if len(ok.sent) != 1 {
		t.Fatalf("expected the healthy peer to receive the broadcast")
	}
}

func TestActions_ToggleFeature(t *testing.T) {
	var discoveryEnabled bool
	a := NewActions(realm.New(nil, 0), NewBanManager(), NewAuditLogger(true, 10), nil, FeatureFlags{
		SetDiscoveryEnabled: func(v bool) { discoveryEnabled = v },
	})

	if err := a.ToggleFeature("discovery", true, "actor-1"); err != nil {
		t.Fatalf("toggle discovery: %v", err)
	}
	if !discoveryEnabled {
		t.Fatalf("expected discovery flag flipped to true")
	}

	if err := a.ToggleFeature("not-a-feature", true, "actor-1"); err != ErrUnknownFeature {
		t.Fatalf("err = %v, want ErrUnknownFeature", err)
	}
}

func TestActions_BanIPIsAdvisoryOnly(t *testing.T) {
	a, _, _ := newTestActions(t)

	ban := a.BanIP("1.2.3.4", "spam", "actor-1")
	if ban.Kind != BanKindIP {
		t.Fatalf("expected IP ban kind, got %+v", ban)
	}
	if !a.bans.IsIPBanned("1.2.3.4") {
		t.Fatalf("expected IP recorded as banned")
	}

	if !a.UnbanIP("1.2.3.4", "actor-1") {
		t.Fatalf("expected unban IP to succeed")
	}
}
