// Package validator implements the structural and bounded-size checks the
// core applies to inbound peer identifiers, tokens, keys, and JSON messages
// before any of it reaches the realm or the signaling router.
package validator

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// Kind enumerates the ways a validation check can fail. Callers compare
// against these with ==, never by matching the error string.
type Kind string

const (
	KindEmpty        Kind = "empty"
	KindTooLong      Kind = "too_long"
	KindInvalidChars Kind = "invalid_chars"
	KindNotObject    Kind = "not_object"
	KindMissingType  Kind = "missing_type"
	KindUnknownType  Kind = "unknown_type"
	KindTooDeep      Kind = "too_deep"
	KindOversize     Kind = "oversize"
)

const maxIDLength = 64

var (
	idPattern    = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	tokenPattern = regexp.MustCompile(`^[A-Za-z0-9_=-]{1,64}$`)
)

// Error reports a validation failure. It carries a Kind for programmatic
// dispatch (errors.As) and a human-readable message suitable for an ERROR
// frame back to the peer.
type Error struct {
	Kind  Kind
	Field string
	Msg   string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Msg)
	}
	return e.Msg
}

func newFieldError(field string, kind Kind, msg string) *Error {
	return &Error{Kind: kind, Field: field, Msg: msg}
}

func checkBounded(field, s string, pattern *regexp.Regexp) *Error {
	if s == "" {
		return newFieldError(field, KindEmpty, field+" must not be empty")
	}
	if len(s) > maxIDLength {
		return newFieldError(field, KindTooLong, field+" exceeds maximum length")
	}
	if !pattern.MatchString(s) {
		return newFieldError(field, KindInvalidChars, field+" contains invalid characters")
	}
	return nil
}

// ValidateID checks a peer id: ^[A-Za-z0-9_-]{1,64}$.
func ValidateID(id string) *Error {
	return checkBounded("id", id, idPattern)
}

// ValidateKey checks a client API key, same character class as an id.
func ValidateKey(key string) *Error {
	return checkBounded("key", key, idPattern)
}

// ValidateToken checks a reconnection token: ^[A-Za-z0-9_=-]{1,64}$ (accepts
// base64 padding).
func ValidateToken(token string) *Error {
	return checkBounded("token", token, tokenPattern)
}

// MessageTypes is the closed set of signaling message type enum values.
var MessageTypes = map[string]bool{
	"OPEN":        true,
	"LEAVE":       true,
	"CANDIDATE":   true,
	"OFFER":       true,
	"ANSWER":      true,
	"EXPIRE":      true,
	"HEARTBEAT":   true,
	"ID-TAKEN":    true,
	"ERROR":       true,
	"RELAY":       true,
	"RELAY_OPEN":  true,
	"RELAY_CLOSE": true,
	"GOAWAY":      true,
}

const maxPayloadDepth = 10

// RawMessage is the decoded shape of a signaling text frame prior to
// type-specific handling. Payload is kept as a generic value: the validator
// only cares about overall structure, not per-type fields (see Design Notes
// on schemaless payloads).
type RawMessage struct {
	Type    string          `json:"type"`
	Src     string          `json:"src,omitempty"`
	Dst     string          `json:"dst,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SafeParse rejects oversized input before attempting to parse it, then
// decodes the structural envelope and validates it with ValidateMessage.
func SafeParse(text []byte, maxBytes int) (RawMessage, *Error) {
	if maxBytes > 0 && len(text) > maxBytes {
		return RawMessage{}, &Error{Kind: KindOversize, Msg: "message exceeds maximum size"}
	}
	var raw RawMessage
	if err := json.Unmarshal(text, &raw); err != nil {
		return RawMessage{}, &Error{Kind: KindNotObject, Msg: "message is not a valid JSON object"}
	}
	if verr := ValidateMessage(raw); verr != nil {
		return RawMessage{}, verr
	}
	return raw, nil
}

// ValidateMessage requires a string type drawn from the enumerated set and a
// payload (if present) with nesting depth <= 10, arrays and objects both
// counting one level.
func ValidateMessage(msg RawMessage) *Error {
	if msg.Type == "" {
		return &Error{Kind: KindMissingType, Msg: "message missing type"}
	}
	if !MessageTypes[msg.Type] {
		return &Error{Kind: KindUnknownType, Msg: fmt.Sprintf("unsupported message type %q", msg.Type)}
	}
	if len(msg.Payload) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(msg.Payload, &v); err != nil {
		return &Error{Kind: KindNotObject, Msg: "payload is not valid JSON"}
	}
	if depthOf(v, 0) > maxPayloadDepth {
		return &Error{Kind: KindTooDeep, Msg: "payload nesting exceeds maximum depth"}
	}
	return nil
}

func depthOf(v interface{}, current int) int {
	switch t := v.(type) {
	case map[string]interface{}:
		max := current
		for _, child := range t {
			if d := depthOf(child, current+1); d > max {
				max = d
			}
		}
		return max
	case []interface{}:
		max := current
		for _, child := range t {
			if d := depthOf(child, current+1); d > max {
				max = d
			}
		}
		return max
	default:
		return current
	}
}
