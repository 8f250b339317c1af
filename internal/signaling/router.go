package signaling

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/wilsonzlin/conduit-relay/internal/metrics"
	"github.com/wilsonzlin/conduit-relay/internal/queue"
	"github.com/wilsonzlin/conduit-relay/internal/realm"
	"github.com/wilsonzlin/conduit-relay/internal/validator"
)

// Clock abstracts time for deterministic router tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RelayConfig controls the optional best-effort relay channel (RELAY,
// RELAY_OPEN, RELAY_CLOSE message types).
type RelayConfig struct {
	Enabled        bool
	MaxMessageSize int
}

// Router implements the signaling dispatch table: it is the only component
// that knows how each message type is forwarded, queued, or replied to.
//
// It has no knowledge of WebSocket framing; Send takes an already-validated
// RawMessage and a Peer identity, and returns the outbound frames to deliver
// to the sender and/or the destination.
type Router struct {
	realm   *realm.Realm
	queue   *queue.MessageQueue
	metrics *metrics.Metrics

	relayEnabled   atomic.Bool
	maxMessageSize int

	clock Clock
}

func NewRouter(r *realm.Realm, q *queue.MessageQueue, m *metrics.Metrics, relay RelayConfig) *Router {
	rt := &Router{realm: r, queue: q, metrics: m, maxMessageSize: relay.MaxMessageSize, clock: realClock{}}
	rt.relayEnabled.Store(relay.Enabled)
	return rt
}

// SetRelayEnabled flips the relay channel on or off at runtime, used by the
// admin toggleFeature("relay", ...) action.
func (rt *Router) SetRelayEnabled(enabled bool) {
	rt.relayEnabled.Store(enabled)
}

// Dispatch routes one inbound message from sender. It returns:
//   - toSender: a frame to write back to the sender's own socket, if any
//     (e.g. a heartbeat reply, an oversize-relay error, a RELAY_OPEN ack)
//
// Forwarding to the destination (when one is attached) and enqueueing (when
// it is not) both happen as a side effect of this call; Dispatch does not
// hand the caller a destination frame to deliver, since delivery may race
// with the destination detaching mid-call and must be resolved under the
// realm's own locking.
func (rt *Router) Dispatch(sender *realm.Peer, msg validator.RawMessage) (toSender []byte, err error) {
	switch msg.Type {
	case "HEARTBEAT":
		sender.Touch(rt.clock.Now())
		return heartbeatFrame()

	case "OFFER", "ANSWER", "CANDIDATE", "LEAVE":
		return nil, rt.forward(sender, msg)

	case "RELAY", "RELAY_CLOSE":
		if !rt.relayEnabled.Load() {
			return errorFrame("relay is disabled")
		}
		if oversize := rt.relayPayloadOversize(msg.Payload); oversize {
			rt.metrics.IncError(metrics.ErrorKindRelayOversize)
			return errorFrame("relay payload too large")
		}
		return nil, rt.forward(sender, msg)

	case "RELAY_OPEN":
		if !rt.relayEnabled.Load() {
			return errorFrame("relay is disabled")
		}
		if oversize := rt.relayPayloadOversize(msg.Payload); oversize {
			rt.metrics.IncError(metrics.ErrorKindRelayOversize)
			return errorFrame("relay payload too large")
		}
		if err := rt.forward(sender, msg); err != nil {
			return nil, err
		}
		return relayOpenAckFrame(msg.Dst, msg.Payload)

	default:
		// The validator's closed enum already rejects anything else before it
		// reaches the router; EXPIRE/ID-TAKEN/ERROR/GOAWAY/OPEN are
		// server-to-client only and never dispatched from a client frame.
		return errorFrame("unsupported message type")
	}
}

func (rt *Router) relayPayloadOversize(payload json.RawMessage) bool {
	if rt.maxMessageSize <= 0 || len(payload) == 0 {
		return false
	}
	var wrapper struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(payload, &wrapper); err != nil {
		return false
	}
	return len(wrapper.Data) > rt.maxMessageSize
}

// forward rewrites src to the sender's own id, then either delivers directly
// to an attached destination or enqueues for later delivery.
func (rt *Router) forward(sender *realm.Peer, msg validator.RawMessage) error {
	if msg.Dst == "" {
		return nil
	}

	out, err := forward(msg, sender.ID)
	if err != nil {
		return err
	}

	if dst, ok := rt.realm.GetPeer(msg.Dst); ok {
		if sendErr := dst.Send(out); sendErr == nil {
			rt.metrics.Inc(metrics.MessagesRelayed)
			return nil
		}
		rt.metrics.IncError(metrics.ErrorKindSendFailed)
	}

	rt.queue.Enqueue(msg.Dst, queue.Message{Type: msg.Type, Src: sender.ID, Dst: msg.Dst, Payload: msg.Payload})
	rt.metrics.Inc(metrics.MessagesQueued)
	return nil
}
