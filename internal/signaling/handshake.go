package signaling

import (
	"crypto/subtle"
	"net/http"

	"github.com/wilsonzlin/conduit-relay/internal/validator"
)

// Handshake is the result of validating a peer's connection credentials,
// carried in the WebSocket URL's query string rather than a first message:
// ws://host:port{path}/conduit?key={apiKey}&id={peerId}&token={token}.
type Handshake struct {
	ID    string
	Token string
}

// handshakeError reports handshake-specific failures that are not
// themselves a validator.Error (e.g. a key mismatch).
type handshakeError struct {
	msg string
}

func (e *handshakeError) Error() string { return e.msg }

// ParseHandshake validates the key/id/token query parameters of an inbound
// WebSocket upgrade request against key (the configured client API key).
// The id is optional: when absent, callers should generate one via
// realm.GenerateID instead.
func ParseHandshake(r *http.Request, key string) (Handshake, error) {
	q := r.URL.Query()

	if key != "" {
		given := q.Get("key")
		if subtle.ConstantTimeCompare([]byte(given), []byte(key)) != 1 {
			return Handshake{}, &handshakeError{msg: "invalid key"}
		}
	}

	id := q.Get("id")
	if id != "" {
		if verr := validator.ValidateID(id); verr != nil {
			return Handshake{}, verr
		}
	}

	token := q.Get("token")
	if token != "" {
		if verr := validator.ValidateToken(token); verr != nil {
			return Handshake{}, verr
		}
	}

	return Handshake{ID: id, Token: token}, nil
}
