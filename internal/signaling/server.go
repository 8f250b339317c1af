// Package signaling implements the peer-facing WebSocket surface: handshake
// admission, the generic {type,src,dst,payload} message dispatch table, and
// graceful shutdown.
package signaling

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wilsonzlin/conduit-relay/internal/eventbus"
	"github.com/wilsonzlin/conduit-relay/internal/metrics"
	"github.com/wilsonzlin/conduit-relay/internal/origin"
	"github.com/wilsonzlin/conduit-relay/internal/ratelimit"
	"github.com/wilsonzlin/conduit-relay/internal/realm"
	"github.com/wilsonzlin/conduit-relay/internal/validator"
)

const serverName = "conduit-relay"
const serverVersion = "1"

const wsWriteWait = 1 * time.Second

// Config wires together the dependencies a signaling Server needs. The
// realm, queue, limiter, and metrics are shared with the admin core, which
// observes them through its own narrower capability interfaces.
type Config struct {
	Realm   *realm.Realm
	Limiter *ratelimit.PeerLimiter
	Metrics *metrics.Metrics
	Router  *Router
	Events  *eventbus.Bus

	Key            string
	Path           string
	AllowedOrigins []string
	AllowDiscovery bool

	MaxMessageBytes int64

	Log *slog.Logger
}

// Server implements the peer-facing WebSocket and HTTP discovery surface.
type Server struct {
	realm   *realm.Realm
	limiter *ratelimit.PeerLimiter
	metrics *metrics.Metrics
	router  *Router
	events  *eventbus.Bus

	key            string
	path           string
	allowedOrigins []string
	allowDiscovery atomic.Bool

	maxMessageBytes int64

	log *slog.Logger

	mu       sync.Mutex
	shutdown bool
	sockets  map[*wsSession]struct{}
}

func NewServer(cfg Config) *Server {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	maxMessageBytes := cfg.MaxMessageBytes
	if maxMessageBytes <= 0 {
		maxMessageBytes = 64 * 1024
	}
	path := cfg.Path
	if path == "" {
		path = "/"
	}
	s := &Server{
		realm:           cfg.Realm,
		limiter:         cfg.Limiter,
		metrics:         cfg.Metrics,
		router:          cfg.Router,
		events:          cfg.Events,
		key:             cfg.Key,
		path:            path,
		allowedOrigins:  cfg.AllowedOrigins,
		maxMessageBytes: maxMessageBytes,
		log:             log,
		sockets:         make(map[*wsSession]struct{}),
	}
	s.allowDiscovery.Store(cfg.AllowDiscovery)
	return s
}

// SetAllowDiscovery flips the /conduits discovery listing on or off at
// runtime, used by the admin toggleFeature("discovery", ...) action.
func (s *Server) SetAllowDiscovery(enabled bool) {
	s.allowDiscovery.Store(enabled)
}

// RegisterRoutes mounts the peer-facing HTTP/WebSocket endpoints described
// in the configuration surface's external interfaces: the conduit WebSocket
// itself, a JSON identity probe, a fresh-id minting endpoint, and an
// optional discovery listing.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	base := strings.TrimSuffix(s.path, "/")

	if base != "" {
		mux.HandleFunc("GET "+base, s.handleIndex)
	}
	mux.HandleFunc("GET "+base+"/", s.handleIndex)
	mux.HandleFunc("GET "+base+"/"+s.key+"/id", s.handleFreshID)
	mux.HandleFunc("GET "+base+"/"+s.key+"/conduits", s.handleConduits)
	mux.HandleFunc("GET "+base+"/conduit", s.handleWebSocket)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"name": serverName, "version": serverVersion})
}

func (s *Server) handleFreshID(w http.ResponseWriter, r *http.Request) {
	id, err := s.realm.GenerateID()
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(id))
}

func (s *Server) handleConduits(w http.ResponseWriter, r *http.Request) {
	if !s.allowDiscovery.Load() {
		http.Error(w, "discovery disabled", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, s.realm.GetPeerIds())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.allowedOrigins) == 0 {
		return true
	}
	originHeader := strings.TrimSpace(r.Header.Get("Origin"))
	if originHeader == "" {
		return true
	}
	normalizedOrigin, originHost, ok := origin.NormalizeHeader(originHeader)
	if !ok {
		return false
	}
	return origin.IsAllowed(normalizedOrigin, originHost, r.Host, s.allowedOrigins)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.checkOrigin(r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	hs, err := ParseHandshake(r, s.key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	s.mu.Lock()
	shuttingDown := s.shutdown
	s.mu.Unlock()
	if shuttingDown {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}

	upgrader := websocket.Upgrader{CheckOrigin: s.checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	id := hs.ID
	if id == "" {
		id, err = s.realm.GenerateID()
		if err != nil {
			_ = conn.Close()
			return
		}
	}

	ws := &wsSession{
		srv:   s,
		conn:  conn,
		id:    id,
		token: hs.Token,
	}
	ws.run()
}

func (s *Server) trackSocket(ws *wsSession) {
	s.mu.Lock()
	s.sockets[ws] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrackSocket(ws *wsSession) {
	s.mu.Lock()
	delete(s.sockets, ws)
	s.mu.Unlock()
}

// Shutdown broadcasts GOAWAY to every live socket, waits a short grace
// period, then closes each connection with code 1001 (going away). It is
// idempotent and safe to call multiple times.
func (s *Server) Shutdown(reason string) {
	s.mu.Lock()
	s.shutdown = true
	sockets := make([]*wsSession, 0, len(s.sockets))
	for ws := range s.sockets {
		sockets = append(sockets, ws)
	}
	s.mu.Unlock()

	s.log.Info("signaling server shutting down", "sockets", len(sockets), "reason", reason)

	goAway, err := goAwayFrame(reason)
	if err == nil {
		for _, ws := range sockets {
			_ = ws.send(goAway)
		}
	}

	time.Sleep(100 * time.Millisecond)

	for _, ws := range sockets {
		ws.closeWith(websocket.CloseGoingAway, "server shutting down")
	}
}

// wsSession owns one live WebSocket connection and drives its read loop.
type wsSession struct {
	srv   *Server
	conn  *websocket.Conn
	id    string
	token string

	peer *realm.Peer

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Send implements realm.Sender: the realm calls this to deliver a frame
// forwarded or relayed from another peer.
func (ws *wsSession) Send(frame []byte) error {
	return ws.send(frame)
}

func (ws *wsSession) send(frame []byte) error {
	ws.writeMu.Lock()
	defer ws.writeMu.Unlock()
	_ = ws.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return ws.conn.WriteMessage(websocket.TextMessage, frame)
}

func (ws *wsSession) emitError(kind, msg string) {
	if ws.srv.events == nil {
		return
	}
	ws.srv.events.Emit(eventbus.EventErrorOccurred, map[string]string{"id": ws.id, "kind": kind, "message": msg})
}

func (ws *wsSession) fail(msg string, closeCode int, closeReason string) {
	if out, err := errorFrame(msg); err == nil {
		_ = ws.send(out)
	}
	ws.closeWith(closeCode, closeReason)
}

func (ws *wsSession) closeWith(code int, reason string) {
	ws.writeMu.Lock()
	defer ws.writeMu.Unlock()
	_ = ws.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
}

// Close implements realm.Sender: the realm/lifecycle sweeper calls this to
// best-effort close a stale or superseded socket. It never touches realm
// membership itself; that is the caller's responsibility.
func (ws *wsSession) Close() error {
	ws.closeOnce.Do(func() {
		_ = ws.conn.Close()
	})
	return nil
}

func (ws *wsSession) run() {
	defer func() {
		ws.srv.untrackSocket(ws)
		if ws.peer != nil {
			ws.peer.Detach()
			ws.srv.metrics.Inc(metrics.ConnectionsClosed)
			ws.srv.metrics.IncGauge(metrics.GaugeActiveConnections, -1)
			if ws.srv.events != nil {
				ws.srv.events.Emit(eventbus.EventClientDisconnected, map[string]string{"id": ws.id})
			}
		}
		_ = ws.Close()
	}()

	peer, err := ws.srv.realm.Admit(ws.id, ws.token, ws)
	if err != nil {
		switch {
		case errors.Is(err, realm.ErrIDTaken):
			if out, ferr := idTakenFrame(); ferr == nil {
				_ = ws.send(out)
			}
			ws.closeWith(websocket.ClosePolicyViolation, "id already taken")
		case errors.Is(err, realm.ErrCapacity):
			ws.fail("server at capacity", websocket.ClosePolicyViolation, "capacity")
		default:
			ws.fail("internal error", websocket.CloseInternalServerErr, "internal error")
		}
		return
	}
	ws.peer = peer
	ws.srv.trackSocket(ws)

	ws.srv.metrics.Inc(metrics.ConnectionsOpened)
	ws.srv.metrics.IncGauge(metrics.GaugeActiveConnections, 1)
	if ws.srv.events != nil {
		ws.srv.events.Emit(eventbus.EventClientConnected, map[string]string{"id": ws.id})
	}

	ws.conn.SetReadLimit(ws.srv.maxMessageBytes)

	if out, err := openFrame(ws.id); err == nil {
		if sendErr := ws.send(out); sendErr != nil {
			return
		}
	}

	for {
		msgType, data, err := ws.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			ws.fail("expected text message", websocket.CloseUnsupportedData, "expected text message")
			return
		}

		raw, verr := validator.SafeParse(data, int(ws.srv.maxMessageBytes))
		if verr != nil {
			ws.srv.metrics.IncError(metrics.ErrorKindMessageHandling)
			// Malformed message bodies are rejected but the socket stays open;
			// only id/token/key handshake failures close the connection.
			if out, ferr := errorFrame(verr.Error()); ferr == nil {
				_ = ws.send(out)
			}
			ws.emitError("message_handling", verr.Error())
			continue
		}

		if ws.srv.limiter != nil && !ws.srv.limiter.TryConsume(ws.id) {
			ws.srv.metrics.Inc(metrics.RateLimitRejections)
			if out, ferr := errorFrame("Rate limit exceeded"); ferr == nil {
				_ = ws.send(out)
			}
			continue
		}
		ws.srv.metrics.Inc(metrics.RateLimitHits)

		toSender, err := ws.srv.router.Dispatch(peer, raw)
		if err != nil {
			ws.srv.metrics.IncError(metrics.ErrorKindMessageHandling)
			continue
		}
		if toSender != nil {
			_ = ws.send(toSender)
		}
	}
}

// NotifyExpired builds and delivers an EXPIRE frame to dst reporting the
// original sender src. It is the realm.Peer-facing half of an
// lifecycle.ExpireNotifier, wired up at startup once the realm is known.
func NotifyExpired(r *realm.Realm, dst, src string) {
	p, ok := r.GetPeer(dst)
	if !ok {
		return
	}
	out, err := expireFrame(src)
	if err != nil {
		return
	}
	_ = p.Send(out)
}
