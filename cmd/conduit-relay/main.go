package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/wilsonzlin/conduit-relay/internal/admincore"
	"github.com/wilsonzlin/conduit-relay/internal/adminrouter"
	"github.com/wilsonzlin/conduit-relay/internal/config"
	"github.com/wilsonzlin/conduit-relay/internal/eventbus"
	"github.com/wilsonzlin/conduit-relay/internal/httpserver"
	"github.com/wilsonzlin/conduit-relay/internal/lifecycle"
	"github.com/wilsonzlin/conduit-relay/internal/metrics"
	"github.com/wilsonzlin/conduit-relay/internal/queue"
	"github.com/wilsonzlin/conduit-relay/internal/ratelimit"
	"github.com/wilsonzlin/conduit-relay/internal/realm"
	"github.com/wilsonzlin/conduit-relay/internal/signaling"
)

var (
	// Set via -ldflags at build time. Values may be empty in local/dev builds.
	buildCommit = ""
	buildTime   = ""
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	logger.Info("starting conduit-relay",
		"listen_addr", cfg.ListenAddr,
		"mode", cfg.Mode,
		"path", cfg.Path,
		"relay_enabled", cfg.Relay.Enabled,
		"rate_limit_enabled", cfg.RateLimit.Enabled,
		"allow_discovery", cfg.AllowDiscovery,
		"admin_path", cfg.Admin.Path,
		"admin_api_version", cfg.Admin.APIVersion,
	)

	logStartupSecurityWarnings(logger, cfg)

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("failed to listen", "err", err)
		os.Exit(1)
	}

	commit, commitTime := resolveBuildInfo(buildCommit, buildTime)

	r := realm.New(nil, cfg.ConcurrentLimit)
	q := queue.New(nil, cfg.QueueMaxPerDest)
	m := metrics.New(int(cfg.Admin.Metrics.MaxSnapshots))
	q.OnOverflow = func(string) { m.IncError(metrics.ErrorKindQueueOverflow) }
	limiter := ratelimit.NewPeerLimiter(nil, cfg.RateLimit.MaxTokens, cfg.RateLimit.RefillRate)
	if !cfg.RateLimit.Enabled {
		limiter = nil
	}
	bus := eventbus.New()

	router := signaling.NewRouter(r, q, m, signaling.RelayConfig{
		Enabled:        cfg.Relay.Enabled,
		MaxMessageSize: cfg.Relay.MaxMessageSize,
	})

	sig := signaling.NewServer(signaling.Config{
		Realm:           r,
		Limiter:         limiter,
		Metrics:         m,
		Router:          router,
		Events:          bus,
		Key:             cfg.Key,
		Path:            cfg.Path,
		AllowedOrigins:  cfg.AllowedOrigins,
		AllowDiscovery:  cfg.AllowDiscovery,
		MaxMessageBytes: int64(cfg.Relay.MaxMessageSize),
		Log:             logger,
	})

	snapshotInterval := time.Duration(cfg.Admin.Metrics.SnapshotIntervalMs) * time.Millisecond
	snapshots := metrics.NewSnapshotProducer(
		m,
		func() (total, connected int) { n := r.Count(); return n, n },
		time.Duration(cfg.Admin.Metrics.RetentionMs)*time.Millisecond,
		cfg.Admin.Metrics.MaxSnapshots,
		snapshotInterval,
	)
	snapshots.OnSnapshot = func(snap metrics.MetricsSnapshot) {
		bus.Emit(eventbus.EventMetricsUpdate, snap)
	}
	snapshots.Start()

	sweeper := lifecycle.NewBrokenConnectionSweeper(r, nil, cfg.AliveTimeout)
	if limiter != nil {
		sweeper.OnClose = limiter.RemoveClient
	}
	sweeper.Start()

	expirer := lifecycle.NewMessageExpirer(r, q, nil, cfg.ExpireTimeout, cfg.CleanupOutMsgs, func(dst, src string) {
		signaling.NotifyExpired(r, dst, src)
	})
	expirer.Start()

	core := admincore.New(admincore.Config{
		Realm:   r,
		Queue:   q,
		Metrics: m,
		Limiter: limiter,
		Auth:    adminAuthConfig(cfg.Admin.Auth),
		Flags: admincore.FeatureFlags{
			SetDiscoveryEnabled: sig.SetAllowDiscovery,
			SetRelayEnabled:     router.SetRelayEnabled,
		},
		Events:               bus,
		SessionTTL:           cfg.Admin.Auth.SessionTimeout,
		AuditEnabled:         cfg.Admin.Audit.Enabled,
		AuditMaxEntries:      cfg.Admin.Audit.MaxEntries,
		SessionPurgeInterval: 10 * time.Minute,
	})
	core.Attach()

	adminBase := cfg.Admin.Path + "/" + cfg.Admin.APIVersion
	adminR := adminrouter.New(adminBase, core.Auth, adminrouter.DefaultRoutes(adminrouter.Deps{
		Core:               core,
		Snapshots:          snapshots,
		Metrics:            m,
		Realm:              r,
		Queue:              q,
		StartedAt:          time.Now(),
		NonSensitiveConfig: func() map[string]any { return nonSensitiveConfig(cfg) },
	}))

	srv := httpserver.New(cfg, logger, httpserver.BuildInfo{Commit: commit, BuildTime: commitTime}, httpserver.Deps{
		Signaling: sig,
		Admin:     adminR,
		AdminAuth: core.Auth,
		Events:    bus,
	})
	srv.SetMetrics(m)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		shutdownComponents(sig, core, sweeper, expirer, snapshots)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server exited", "err", err)
			os.Exit(1)
		}
		return
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	sig.Shutdown("server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "err", err)
	}
	shutdownComponents(sig, core, sweeper, expirer, snapshots)

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server exited after shutdown", "err", err)
		os.Exit(1)
	}
}

func shutdownComponents(sig *signaling.Server, core *admincore.Core, sweeper *lifecycle.BrokenConnectionSweeper, expirer *lifecycle.MessageExpirer, snapshots *metrics.SnapshotProducer) {
	sweeper.Stop()
	expirer.Stop()
	snapshots.Stop()
	core.Destroy()
}

func adminAuthConfig(a config.AdminAuthConfig) admincore.AuthConfig {
	return admincore.AuthConfig{
		APIKeyEnabled:    a.Enabled(config.AdminAuthAPIKey),
		APIKey:           a.APIKey,
		JWTEnabled:       a.Enabled(config.AdminAuthJWT),
		JWTSecret:        a.JWTSecret,
		BasicEnabled:     a.Enabled(config.AdminAuthBasic),
		BasicCredentials: a.BasicCredentials,
	}
}

// nonSensitiveConfig is the subset of live configuration GET /admin/v1/config
// exposes: never the admin API key, JWT secret, or basic password hashes.
func nonSensitiveConfig(cfg config.Config) map[string]any {
	return map[string]any{
		"mode":            cfg.Mode,
		"path":            cfg.Path,
		"allowedOrigins":  cfg.AllowedOrigins,
		"allowDiscovery":  cfg.AllowDiscovery,
		"relay": map[string]any{
			"enabled":        cfg.Relay.Enabled,
			"maxMessageSize": cfg.Relay.MaxMessageSize,
		},
		"rateLimit": map[string]any{
			"enabled":    cfg.RateLimit.Enabled,
			"maxTokens":  cfg.RateLimit.MaxTokens,
			"refillRate": cfg.RateLimit.RefillRate,
		},
		"admin": map[string]any{
			"path":          cfg.Admin.Path,
			"apiVersion":    cfg.Admin.APIVersion,
			"authMethods":   cfg.Admin.Auth.Methods,
			"websocket": map[string]any{
				"enabled": cfg.Admin.WebSocket.Enabled,
				"path":    cfg.Admin.WebSocket.Path,
			},
		},
	}
}

func resolveBuildInfo(commit, buildTime string) (string, string) {
	// Prefer ldflags-injected values (production builds) but fall back to the
	// Go build info when available (useful for `go run` / dev builds).
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "" {
					commit = s.Value
				}
			case "vcs.time":
				if buildTime == "" {
					buildTime = s.Value
				}
			}
		}
	}
	return commit, buildTime
}
