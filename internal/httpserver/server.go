package httpserver

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/wilsonzlin/conduit-relay/internal/admincore"
	"github.com/wilsonzlin/conduit-relay/internal/adminrouter"
	"github.com/wilsonzlin/conduit-relay/internal/config"
	"github.com/wilsonzlin/conduit-relay/internal/eventbus"
	"github.com/wilsonzlin/conduit-relay/internal/metrics"
	"github.com/wilsonzlin/conduit-relay/internal/origin"
	"github.com/wilsonzlin/conduit-relay/internal/signaling"
)

type BuildInfo struct {
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
}

// Deps are the already-constructed components this HTTP surface mounts.
// Signaling owns the peer-facing WebSocket and discovery routes; Admin is
// the compiled admin route table; AdminAuth and Events back the admin
// event-bus WebSocket, which lives here rather than in adminrouter since it
// is a long-lived connection, not a request/response route.
type Deps struct {
	Signaling *signaling.Server
	Admin     *adminrouter.Router
	AdminAuth *admincore.AuthManager
	Events    *eventbus.Bus
}

type server struct {
	log   *slog.Logger
	cfg   config.Config
	build BuildInfo

	ready atomic.Bool

	metrics *metrics.Metrics

	events           *eventbus.Bus
	adminAuth        *admincore.AuthManager
	adminWSHeartbeat time.Duration
	adminLimiter     *rate.Limiter

	mux *http.ServeMux
	srv *http.Server
}

func New(cfg config.Config, logger *slog.Logger, build BuildInfo, deps Deps) *server {
	s := &server{
		log:              logger,
		cfg:              cfg,
		build:            build,
		events:           deps.Events,
		adminAuth:        deps.AdminAuth,
		adminWSHeartbeat: cfg.Admin.WebSocket.HeartbeatInterval,
		mux:              http.NewServeMux(),
	}

	if cfg.Admin.GlobalRateLimitRPS > 0 {
		s.adminLimiter = rate.NewLimiter(rate.Limit(cfg.Admin.GlobalRateLimitRPS), cfg.Admin.GlobalRateLimitBurst)
	}

	s.registerRoutes(deps)

	handler := chain(s.mux,
		recoverMiddleware(s.log),
		requestIDMiddleware(),
		requestLoggerMiddleware(s.log),
		s.originMiddleware(),
	)

	s.srv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

// SetMetrics wires a shared metrics registry into the server and mounts its
// Prometheus exposition handler at GET /metrics. Must only be called once,
// during startup before Serve.
func (s *server) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
	if m != nil {
		s.mux.Handle("GET /metrics", metrics.PrometheusHandler(m))
	}
}

// Mux returns the underlying ServeMux for registering additional routes.
// It must only be used during startup before Serve is called.
func (s *server) Mux() *http.ServeMux {
	return s.mux
}

func (s *server) Serve(l net.Listener) error {
	s.ready.Store(true)
	s.log.Info("http server serving", "addr", l.Addr().String())
	return s.srv.Serve(l)
}

func (s *server) Shutdown(ctx context.Context) error {
	s.ready.Store(false)
	return s.srv.Shutdown(ctx)
}

func (s *server) registerRoutes(deps Deps) {
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	s.mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ready": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ready": true})
	})

	s.mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.build)
	})

	if s.metrics != nil {
		s.mux.Handle("GET /metrics", metrics.PrometheusHandler(s.metrics))
	}

	if deps.Signaling != nil {
		deps.Signaling.RegisterRoutes(s.mux)
	}

	if deps.Admin != nil {
		base := strings.TrimSuffix(s.cfg.Admin.Path, "/") + "/" + s.cfg.Admin.APIVersion
		s.mux.Handle(base+"/", s.adminThrottle(deps.Admin))
		if s.cfg.Admin.WebSocket.Enabled {
			wsPath := strings.TrimSuffix(s.cfg.Admin.WebSocket.Path, "/")
			if wsPath == "" {
				wsPath = "/ws"
			}
			s.mux.HandleFunc("GET "+base+wsPath, s.handleAdminEvents)
		}
		// SSE fallback for operators behind proxies that block WS upgrades.
		s.mux.HandleFunc("GET "+base+"/events", s.handleAdminEventsSSE)
	}
}

// adminThrottle applies a coarse process-wide rate limit in front of the
// whole admin mux, independent of the peer-facing per-id token bucket.
// Disabled entirely when GlobalRateLimitRPS is non-positive.
func (s *server) adminThrottle(next http.Handler) http.Handler {
	if s.adminLimiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.adminLimiter.Allow() {
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkAdminOrigin reuses the same allowed-origins policy as the peer-facing
// socket: no Origin header or no configured allowlist means any origin is
// accepted, otherwise the header must normalize to a listed origin.
func (s *server) checkAdminOrigin(r *http.Request) bool {
	originHeader := strings.TrimSpace(r.Header.Get("Origin"))
	if originHeader == "" || len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	normalizedOrigin, originHost, ok := origin.NormalizeHeader(originHeader)
	if !ok {
		return false
	}
	return origin.IsAllowed(normalizedOrigin, originHost, r.Host, s.cfg.AllowedOrigins)
}

type middleware func(http.Handler) http.Handler

func chain(handler http.Handler, middlewares ...middleware) http.Handler {
	h := handler
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

func recoverMiddleware(logger *slog.Logger) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic in http handler", "recover", rec, "stack", string(debug.Stack()))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func requestIDMiddleware() middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				var buf [16]byte
				if _, err := rand.Read(buf[:]); err == nil {
					reqID = hex.EncodeToString(buf[:])
				}
			}
			if reqID != "" {
				r.Header.Set("X-Request-ID", reqID)
				w.Header().Set("X-Request-ID", reqID)
			}
			next.ServeHTTP(w, r)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	// WebSocket upgrades typically bypass WriteHeader, so track 101 explicitly to
	// avoid logging these requests as 200 OK.
	if w.status == http.StatusOK {
		w.status = http.StatusSwitchingProtocols
	}
	return hijacker.Hijack()
}

func (w *statusWriter) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func requestLoggerMiddleware(logger *slog.Logger) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()

			next.ServeHTTP(sw, r)

			reqID := r.Header.Get("X-Request-ID")
			logger.Info("http_request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_addr", r.RemoteAddr,
				"request_id", reqID,
			)
		})
	}
}

// writeJSON writes a JSON response body and sets the Content-Type header.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(v)
}

func (s *server) Close() error {
	s.ready.Store(false)
	return s.srv.Close()
}
