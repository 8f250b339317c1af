package httpserver

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/wilsonzlin/conduit-relay/internal/admincore"
	"github.com/wilsonzlin/conduit-relay/internal/adminrouter"
	"github.com/wilsonzlin/conduit-relay/internal/config"
	"github.com/wilsonzlin/conduit-relay/internal/eventbus"
	"github.com/wilsonzlin/conduit-relay/internal/metrics"
	"github.com/wilsonzlin/conduit-relay/internal/queue"
	"github.com/wilsonzlin/conduit-relay/internal/ratelimit"
	"github.com/wilsonzlin/conduit-relay/internal/realm"
	"github.com/wilsonzlin/conduit-relay/internal/signaling"
)

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func testDeps(t *testing.T, cfg config.Config) Deps {
	t.Helper()

	r := realm.New(realClock{}, 0)
	q := queue.New(realClock{}, 0)
	m := metrics.New(64)
	limiter := ratelimit.NewPeerLimiter(realClock{}, 100, 10)
	bus := eventbus.New()

	sig := signaling.NewServer(signaling.Config{
		Realm:   r,
		Limiter: limiter,
		Metrics: m,
		Router:  signaling.NewRouter(r, q, m, signaling.RelayConfig{Enabled: true, MaxMessageSize: 1 << 16}),
		Events:  bus,
		Path:    "/",
		Log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	core := admincore.New(admincore.Config{
		Realm:   r,
		Queue:   q,
		Metrics: m,
		Limiter: limiter,
		Auth:    admincore.AuthConfig{APIKeyEnabled: true, APIKey: "test-key"},
		Flags: admincore.FeatureFlags{
			SetDiscoveryEnabled: sig.SetAllowDiscovery,
		},
		Events:          bus,
		AuditEnabled:    true,
		AuditMaxEntries: 100,
	})
	core.Attach()
	t.Cleanup(core.Destroy)

	adminR := adminrouter.New(cfg.Admin.Path+"/"+cfg.Admin.APIVersion, core.Auth, adminrouter.DefaultRoutes(adminrouter.Deps{
		Core:      core,
		Snapshots: metrics.NewSnapshotProducer(m, func() (int, int) { n := r.Count(); return n, n }, time.Hour, 100, time.Minute),
		Metrics:   m,
		Realm:     r,
		Queue:     q,
		StartedAt: time.Now(),
	}))

	return Deps{
		Signaling: sig,
		Admin:     adminR,
		AdminAuth: core.Auth,
		Events:    bus,
	}
}

func startTestServer(t *testing.T, cfg config.Config, deps Deps) string {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	build := BuildInfo{Commit: "abc", BuildTime: "time"}
	srv := New(cfg, log, build, deps)
	srv.SetMetrics(metrics.New(8))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		<-errCh
	})

	return "http://" + ln.Addr().String()
}

func baseTestConfig() config.Config {
	return config.Config{
		ListenAddr:      "127.0.0.1:0",
		LogFormat:       config.LogFormatText,
		LogLevel:        slog.LevelInfo,
		ShutdownTimeout: 2 * time.Second,
		Mode:            config.ModeDev,
		Admin: config.AdminConfig{
			Path:       "/admin",
			APIVersion: "v1",
		},
	}
}

func TestHealthzReadyzVersion(t *testing.T) {
	cfg := baseTestConfig()
	baseURL := startTestServer(t, cfg, testDeps(t, cfg))

	t.Run("healthz", func(t *testing.T) {
		resp, err := http.Get(baseURL + "/healthz")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
	})

	t.Run("readyz", func(t *testing.T) {
		resp, err := http.Get(baseURL + "/readyz")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
	})

	t.Run("version", func(t *testing.T) {
		resp, err := http.Get(baseURL + "/version")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
	})
}

func TestAdminRouteRequiresAuth(t *testing.T) {
	cfg := baseTestConfig()
	baseURL := startTestServer(t, cfg, testDeps(t, cfg))

	resp, err := http.Get(baseURL + "/admin/v1/status")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestAdminRouteAcceptsAPIKey(t *testing.T) {
	cfg := baseTestConfig()
	baseURL := startTestServer(t, cfg, testDeps(t, cfg))

	req, err := http.NewRequest(http.MethodGet, baseURL+"/admin/v1/status", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("X-API-Key", "test-key")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestPeerDiscoveryRouteMounted(t *testing.T) {
	cfg := baseTestConfig()
	baseURL := startTestServer(t, cfg, testDeps(t, cfg))

	resp, err := http.Get(baseURL + "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}
