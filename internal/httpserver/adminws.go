package httpserver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wilsonzlin/conduit-relay/internal/eventbus"
)

const (
	adminWSWriteWait = 1 * time.Second
	adminWSReadLimit = 4 * 1024
)

// adminEventSocket bridges one authenticated admin WebSocket connection to an
// eventbus.Subscription: events flow out as {type,data} frames, subscribe /
// unsubscribe / ping commands flow in as {type,data} frames.
type adminEventSocket struct {
	log     *slog.Logger
	conn    *websocket.Conn
	sub     *eventbus.Subscription
	heartbeat time.Duration

	writeMu sync.Mutex
}

type adminWSCommand struct {
	Type string `json:"type"`
	Data struct {
		Events []eventbus.EventType `json:"events"`
	} `json:"data"`
}

func (s *server) handleAdminEvents(w http.ResponseWriter, r *http.Request) {
	auth := s.adminAuth.AuthenticateRequest(r)
	if !auth.Valid {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{CheckOrigin: s.checkAdminOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	sock := &adminEventSocket{
		log:       s.log,
		conn:      conn,
		sub:       s.events.NewSubscription(),
		heartbeat: s.adminWSHeartbeat,
	}
	sock.run()
}

// handleAdminEventsSSE is the text/event-stream fallback for operators whose
// proxy blocks WebSocket upgrades: same eventbus.Subscription, one "data:"
// line per event, with the events query param filtering the subscription
// (comma-separated event type names; everything by default).
func (s *server) handleAdminEventsSSE(w http.ResponseWriter, r *http.Request) {
	auth := s.adminAuth.AuthenticateRequest(r)
	if !auth.Valid {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub := s.events.NewSubscription()
	defer sub.Close()

	types := eventbus.AllEventTypes()
	if raw := strings.TrimSpace(r.URL.Query().Get("events")); raw != "" {
		types = types[:0]
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				types = append(types, eventbus.EventType(name))
			}
		}
	}
	sub.Subscribe(types)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub.Events():
			if !ok {
				return
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, payload); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (sock *adminEventSocket) send(v any) error {
	sock.writeMu.Lock()
	defer sock.writeMu.Unlock()
	_ = sock.conn.SetWriteDeadline(time.Now().Add(adminWSWriteWait))
	return sock.conn.WriteJSON(v)
}

func (sock *adminEventSocket) run() {
	defer func() {
		sock.sub.Close()
		_ = sock.conn.Close()
	}()

	sock.conn.SetReadLimit(adminWSReadLimit)

	done := make(chan struct{})
	go sock.readLoop(done)

	interval := sock.heartbeat
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case evt, ok := <-sock.sub.Events():
			if !ok {
				return
			}
			if err := sock.send(evt); err != nil {
				return
			}
		case <-ticker.C:
			sock.writeMu.Lock()
			_ = sock.conn.SetWriteDeadline(time.Now().Add(adminWSWriteWait))
			err := sock.conn.WriteMessage(websocket.PingMessage, nil)
			sock.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// readLoop drives the client->server half: subscribe/unsubscribe filter
// updates and ping/pong keepalive. It never touches the realm; it only
// narrows or widens this socket's event filter.
func (sock *adminEventSocket) readLoop(done chan<- struct{}) {
	defer close(done)
	for {
		_, data, err := sock.conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd adminWSCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			continue
		}
		switch cmd.Type {
		case "subscribe":
			sock.sub.Subscribe(cmd.Data.Events)
		case "unsubscribe":
			sock.sub.Unsubscribe(cmd.Data.Events)
		case "ping":
			_ = sock.send(map[string]string{"type": "pong"})
		}
	}
}
