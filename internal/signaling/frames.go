package signaling

import (
	"encoding/json"

	"github.com/wilsonzlin/conduit-relay/internal/validator"
)

// frame builds a server-to-client envelope of the given type. dst/payload are
// omitted from the wire message when zero-valued, matching the envelope
// schema's optional fields.
func frame(typ string, src, dst string, payload any) ([]byte, error) {
	msg := struct {
		Type    string          `json:"type"`
		Src     string          `json:"src,omitempty"`
		Dst     string          `json:"dst,omitempty"`
		Payload json.RawMessage `json:"payload,omitempty"`
	}{Type: typ, Src: src, Dst: dst}

	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		msg.Payload = raw
	}
	return json.Marshal(msg)
}

func openFrame(id string) ([]byte, error) {
	return frame("OPEN", "", "", map[string]string{"id": id})
}

func idTakenFrame() ([]byte, error) {
	return frame("ID-TAKEN", "", "", map[string]string{"msg": "ID is already taken"})
}

func errorFrame(msg string) ([]byte, error) {
	return frame("ERROR", "", "", map[string]string{"msg": msg})
}

func goAwayFrame(reason string) ([]byte, error) {
	var payload any
	if reason != "" {
		payload = map[string]string{"reason": reason}
	}
	return frame("GOAWAY", "", "", payload)
}

func expireFrame(src string) ([]byte, error) {
	return frame("EXPIRE", src, "", nil)
}

func heartbeatFrame() ([]byte, error) {
	return frame("HEARTBEAT", "", "", nil)
}

func relayOpenAckFrame(dst string, payload json.RawMessage) ([]byte, error) {
	msg := struct {
		Type    string          `json:"type"`
		Dst     string          `json:"dst,omitempty"`
		Payload json.RawMessage `json:"payload,omitempty"`
	}{Type: "RELAY_OPEN", Dst: dst, Payload: payload}
	return json.Marshal(msg)
}

// forward rewrites src to the sender's own id and reuses the inbound dst and
// payload untouched, per the forwarding rule in the signaling router spec.
func forward(typ validator.RawMessage, senderID string) ([]byte, error) {
	msg := struct {
		Type    string          `json:"type"`
		Src     string          `json:"src,omitempty"`
		Dst     string          `json:"dst,omitempty"`
		Payload json.RawMessage `json:"payload,omitempty"`
	}{Type: typ.Type, Src: senderID, Dst: typ.Dst, Payload: typ.Payload}
	return json.Marshal(msg)
}
