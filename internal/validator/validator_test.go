package validator

import (
	"strings"
	"testing"
)

func TestValidateID(t *testing.T) {
	cases := []struct {
		name    string
		id      string
		wantErr Kind
	}{
		{"valid", "alice-123_ABC", ""},
		{"empty", "", KindEmpty},
		{"too long", strings.Repeat("a", 65), KindTooLong},
		{"invalid chars", "alice bob", KindInvalidChars},
		{"unicode rejected", "aliceé", KindInvalidChars},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateID(tc.id)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || err.Kind != tc.wantErr {
				t.Fatalf("got %v, want kind %s", err, tc.wantErr)
			}
		})
	}
}

func TestValidateToken_AcceptsBase64Padding(t *testing.T) {
	if err := ValidateToken("YWJjMTIz=="); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateID_MaxLengthBoundary(t *testing.T) {
	if err := ValidateID(strings.Repeat("a", 64)); err != nil {
		t.Fatalf("64 chars should be accepted: %v", err)
	}
	if err := ValidateID(strings.Repeat("a", 65)); err == nil || err.Kind != KindTooLong {
		t.Fatalf("65 chars should be rejected as too long, got %v", err)
	}
}

func TestValidateMessage(t *testing.T) {
	if err := ValidateMessage(RawMessage{Type: "HEARTBEAT"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateMessage(RawMessage{}); err == nil || err.Kind != KindMissingType {
		t.Fatalf("got %v, want missing type", err)
	}
	if err := ValidateMessage(RawMessage{Type: "BOGUS"}); err == nil || err.Kind != KindUnknownType {
		t.Fatalf("got %v, want unknown type", err)
	}
}

func TestValidateMessage_PayloadDepth(t *testing.T) {
	shallow := RawMessage{Type: "OFFER", Payload: []byte(`{"a":{"b":{"c":1}}}`)}
	if err := ValidateMessage(shallow); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deep := `1`
	for i := 0; i < 11; i++ {
		deep = `[` + deep + `]`
	}
	tooDeep := RawMessage{Type: "OFFER", Payload: []byte(`{"a":` + deep + `}`)}
	if err := ValidateMessage(tooDeep); err == nil || err.Kind != KindTooDeep {
		t.Fatalf("got %v, want too deep", err)
	}
}

func TestSafeParse_RejectsOversize(t *testing.T) {
	text := []byte(`{"type":"HEARTBEAT"}`)
	if _, err := SafeParse(text, len(text)-1); err == nil || err.Kind != KindOversize {
		t.Fatalf("got %v, want oversize", err)
	}
}

func TestSafeParse_RoundTrip(t *testing.T) {
	text := []byte(`{"type":"OFFER","src":"alice","dst":"bob","payload":{"sdp":"v=0"}}`)
	msg, err := SafeParse(text, 1024)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Type != "OFFER" || msg.Src != "alice" || msg.Dst != "bob" {
		t.Fatalf("unexpected parse result: %#v", msg)
	}
}
