package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wilsonzlin/conduit-relay/internal/origin"
)

const (
	EnvListenAddr      = "CONDUIT_LISTEN_ADDR"
	EnvPath            = "CONDUIT_PATH"
	EnvKey             = "CONDUIT_KEY"
	EnvAllowedOrigins  = "ALLOWED_ORIGINS"
	EnvRequireSecure   = "CONDUIT_REQUIRE_SECURE"
	EnvLogFormat       = "CONDUIT_LOG_FORMAT"
	EnvLogLevel        = "CONDUIT_LOG_LEVEL"
	EnvShutdownTimeout = "CONDUIT_SHUTDOWN_TIMEOUT"
	EnvMode            = "CONDUIT_MODE"

	EnvConcurrentLimit   = "CONCURRENT_LIMIT"
	EnvAliveTimeout      = "ALIVE_TIMEOUT"
	EnvExpireTimeout     = "EXPIRE_TIMEOUT"
	EnvCleanupOutMsgs    = "CLEANUP_OUT_MSGS"
	EnvRelayEnabled      = "RELAY_ENABLED"
	EnvRelayMaxBytes     = "RELAY_MAX_MESSAGE_SIZE"
	EnvRateLimitEnabled  = "RATE_LIMIT_ENABLED"
	EnvRateLimitMax      = "RATE_LIMIT_MAX_TOKENS"
	EnvRateLimitRefill   = "RATE_LIMIT_REFILL_RATE"
	EnvAllowDiscovery    = "ALLOW_DISCOVERY"
	EnvQueueMaxPerDest   = "QUEUE_MAX_PER_DEST"
	EnvSnapshotIntervalMs = "METRICS_SNAPSHOT_INTERVAL_MS"
	EnvMetricsRetentionMs = "METRICS_RETENTION_MS"
	EnvMetricsMaxSnapshots = "METRICS_MAX_SNAPSHOTS"

	EnvAdminPath           = "ADMIN_PATH"
	EnvAdminAPIVersion     = "ADMIN_API_VERSION"
	EnvAdminAuthMethods    = "ADMIN_AUTH_METHODS"
	EnvAdminAPIKey         = "ADMIN_API_KEY"
	EnvAdminJWTSecret      = "ADMIN_JWT_SECRET"
	EnvAdminJWTExpiresIn   = "ADMIN_JWT_EXPIRES_IN"
	EnvAdminBasicCreds     = "ADMIN_BASIC_CREDENTIALS"
	EnvAdminSessionTimeout = "ADMIN_SESSION_TIMEOUT"
	EnvAdminAuditEnabled   = "ADMIN_AUDIT_ENABLED"
	EnvAdminAuditMaxEnt    = "ADMIN_AUDIT_MAX_ENTRIES"
	EnvAdminWSEnabled      = "ADMIN_WEBSOCKET_ENABLED"
	EnvAdminWSPath         = "ADMIN_WEBSOCKET_PATH"
	EnvAdminWSHeartbeat    = "ADMIN_WEBSOCKET_HEARTBEAT_INTERVAL"
	EnvAdminGlobalRateRPS  = "ADMIN_GLOBAL_RATE_LIMIT_RPS"
	EnvAdminGlobalRateBurst = "ADMIN_GLOBAL_RATE_LIMIT_BURST"

	DefaultListenAddr      = "127.0.0.1:9000"
	DefaultPath            = "/"
	DefaultShutdown        = 15 * time.Second
	DefaultMode       Mode = ModeDev

	DefaultConcurrentLimit = 5000
	DefaultAliveTimeout    = 60 * time.Second
	DefaultExpireTimeout   = 5 * time.Second
	DefaultCleanupOutMsgs  = 1 * time.Second
	DefaultRelayMaxBytes   = 64 * 1024
	DefaultRateLimitMax    = 30
	DefaultRateLimitRefill = 10
	DefaultQueueMaxPerDest = 100

	DefaultSnapshotIntervalMs = 10_000
	DefaultMetricsRetentionMs = 24 * 60 * 60 * 1000
	DefaultMetricsMaxSnapshots = 8640

	DefaultAdminPath           = "/admin"
	DefaultAdminAPIVersion     = "v1"
	DefaultAdminJWTExpiresIn   = 1 * time.Hour
	DefaultAdminSessionTimeout = 30 * time.Minute
	DefaultAdminAuditMaxEnt    = 10_000
	DefaultAdminWSPath         = "/ws"
	DefaultAdminWSHeartbeat    = 30 * time.Second
	DefaultAdminGlobalRateRPS   = 50
	DefaultAdminGlobalRateBurst = 200
)

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// AdminAuthMethod enumerates the admin authentication methods that can be
// enabled, any subset at a time.
type AdminAuthMethod string

const (
	AdminAuthAPIKey AdminAuthMethod = "apiKey"
	AdminAuthJWT    AdminAuthMethod = "jwt"
	AdminAuthBasic  AdminAuthMethod = "basic"
)

// RelayConfig controls the optional WebSocket relay fallback transport.
type RelayConfig struct {
	Enabled       bool
	MaxMessageSize int
}

// RateLimitConfig controls the per-peer token bucket admission limiter.
type RateLimitConfig struct {
	Enabled    bool
	MaxTokens  int64
	RefillRate int64
}

// AdminAuthConfig controls the admin control plane's AuthManager.
type AdminAuthConfig struct {
	Methods []AdminAuthMethod

	APIKey    string
	JWTSecret string
	JWTExpiresIn time.Duration

	// BasicCredentials maps username -> bcrypt hash.
	BasicCredentials map[string]string

	SessionTimeout time.Duration
}

func (c AdminAuthConfig) Enabled(m AdminAuthMethod) bool {
	for _, x := range c.Methods {
		if x == m {
			return true
		}
	}
	return false
}

// AdminMetricsConfig controls C7's periodic snapshot history buffer.
type AdminMetricsConfig struct {
	RetentionMs       int64
	SnapshotIntervalMs int64
	MaxSnapshots      int
}

// AdminAuditConfig controls C8's AuditLogger.
type AdminAuditConfig struct {
	Enabled    bool
	MaxEntries int
	LogLevel   string
}

// AdminWebSocketConfig controls the admin event-bus WS surface.
type AdminWebSocketConfig struct {
	Enabled           bool
	Path              string
	HeartbeatInterval time.Duration
}

// AdminConfig groups every admin.* setting.
type AdminConfig struct {
	Path       string
	APIVersion string

	Auth      AdminAuthConfig
	Metrics   AdminMetricsConfig
	Audit     AdminAuditConfig
	WebSocket AdminWebSocketConfig

	// GlobalRateLimitRPS/Burst configure the coarse golang.org/x/time/rate
	// throttle placed in front of the whole admin mux, independent of the
	// peer-facing per-id token bucket.
	GlobalRateLimitRPS   float64
	GlobalRateLimitBurst int
}

// Config is the single process-wide configuration record. It is built by
// merging defaults with environment variables and then flags (flags win).
// Per the core's external-collaborator boundary, this package never parses
// an on-disk configuration file; that remains the adapter's responsibility.
type Config struct {
	ListenAddr      string
	Path            string
	Key             string
	AllowedOrigins  []string
	RequireSecure   bool
	LogFormat       LogFormat
	LogLevel        slog.Level
	ShutdownTimeout time.Duration
	Mode            Mode

	ConcurrentLimit int
	AliveTimeout    time.Duration
	ExpireTimeout   time.Duration
	CleanupOutMsgs  time.Duration

	Relay     RelayConfig
	RateLimit RateLimitConfig

	AllowDiscovery bool
	QueueMaxPerDest int

	Admin AdminConfig
}

func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	modeDefault := envOrDefault(lookup, EnvMode, string(DefaultMode))
	logFormatDefault := envOrDefault(lookup, EnvLogFormat, defaultLogFormatForMode(modeDefault))
	logLevelDefault := envOrDefault(lookup, EnvLogLevel, defaultLogLevelForMode(modeDefault))

	listenAddr := envOrDefault(lookup, EnvListenAddr, DefaultListenAddr)
	path := envOrDefault(lookup, EnvPath, DefaultPath)
	key := envOrDefault(lookup, EnvKey, "")
	allowedOriginsStr := envOrDefault(lookup, EnvAllowedOrigins, "")

	requireSecure, err := envBoolOrDefault(lookup, EnvRequireSecure, false)
	if err != nil {
		return Config{}, err
	}

	shutdownTimeout, err := envDurationOrDefault(lookup, EnvShutdownTimeout, DefaultShutdown)
	if err != nil {
		return Config{}, err
	}

	concurrentLimit, err := envIntOrDefault(lookup, EnvConcurrentLimit, DefaultConcurrentLimit)
	if err != nil {
		return Config{}, err
	}
	aliveTimeout, err := envDurationOrDefault(lookup, EnvAliveTimeout, DefaultAliveTimeout)
	if err != nil {
		return Config{}, err
	}
	expireTimeout, err := envDurationOrDefault(lookup, EnvExpireTimeout, DefaultExpireTimeout)
	if err != nil {
		return Config{}, err
	}
	cleanupOutMsgs, err := envDurationOrDefault(lookup, EnvCleanupOutMsgs, DefaultCleanupOutMsgs)
	if err != nil {
		return Config{}, err
	}

	relayEnabled, err := envBoolOrDefault(lookup, EnvRelayEnabled, true)
	if err != nil {
		return Config{}, err
	}
	relayMaxBytes, err := envIntOrDefault(lookup, EnvRelayMaxBytes, DefaultRelayMaxBytes)
	if err != nil {
		return Config{}, err
	}

	rateLimitEnabled, err := envBoolOrDefault(lookup, EnvRateLimitEnabled, true)
	if err != nil {
		return Config{}, err
	}
	rateLimitMax, err := envInt64OrDefault(lookup, EnvRateLimitMax, DefaultRateLimitMax)
	if err != nil {
		return Config{}, err
	}
	rateLimitRefill, err := envInt64OrDefault(lookup, EnvRateLimitRefill, DefaultRateLimitRefill)
	if err != nil {
		return Config{}, err
	}

	allowDiscovery, err := envBoolOrDefault(lookup, EnvAllowDiscovery, false)
	if err != nil {
		return Config{}, err
	}
	queueMaxPerDest, err := envIntOrDefault(lookup, EnvQueueMaxPerDest, DefaultQueueMaxPerDest)
	if err != nil {
		return Config{}, err
	}

	snapshotIntervalMs, err := envInt64OrDefault(lookup, EnvSnapshotIntervalMs, DefaultSnapshotIntervalMs)
	if err != nil {
		return Config{}, err
	}
	metricsRetentionMs, err := envInt64OrDefault(lookup, EnvMetricsRetentionMs, DefaultMetricsRetentionMs)
	if err != nil {
		return Config{}, err
	}
	metricsMaxSnapshots, err := envIntOrDefault(lookup, EnvMetricsMaxSnapshots, DefaultMetricsMaxSnapshots)
	if err != nil {
		return Config{}, err
	}

	adminPath := envOrDefault(lookup, EnvAdminPath, DefaultAdminPath)
	adminAPIVersion := envOrDefault(lookup, EnvAdminAPIVersion, DefaultAdminAPIVersion)
	adminAuthMethodsStr := envOrDefault(lookup, EnvAdminAuthMethods, string(AdminAuthAPIKey))
	adminAPIKey := envOrDefault(lookup, EnvAdminAPIKey, "")
	adminJWTSecret := envOrDefault(lookup, EnvAdminJWTSecret, "")
	adminJWTExpiresIn, err := envDurationOrDefault(lookup, EnvAdminJWTExpiresIn, DefaultAdminJWTExpiresIn)
	if err != nil {
		return Config{}, err
	}
	adminBasicCredsStr := envOrDefault(lookup, EnvAdminBasicCreds, "")
	adminSessionTimeout, err := envDurationOrDefault(lookup, EnvAdminSessionTimeout, DefaultAdminSessionTimeout)
	if err != nil {
		return Config{}, err
	}
	adminAuditEnabled, err := envBoolOrDefault(lookup, EnvAdminAuditEnabled, true)
	if err != nil {
		return Config{}, err
	}
	adminAuditMaxEnt, err := envIntOrDefault(lookup, EnvAdminAuditMaxEnt, DefaultAdminAuditMaxEnt)
	if err != nil {
		return Config{}, err
	}
	adminWSEnabled, err := envBoolOrDefault(lookup, EnvAdminWSEnabled, true)
	if err != nil {
		return Config{}, err
	}
	adminWSPath := envOrDefault(lookup, EnvAdminWSPath, DefaultAdminWSPath)
	adminWSHeartbeat, err := envDurationOrDefault(lookup, EnvAdminWSHeartbeat, DefaultAdminWSHeartbeat)
	if err != nil {
		return Config{}, err
	}
	adminGlobalRateRPS, err := envFloatOrDefault(lookup, EnvAdminGlobalRateRPS, DefaultAdminGlobalRateRPS)
	if err != nil {
		return Config{}, err
	}
	adminGlobalRateBurst, err := envIntOrDefault(lookup, EnvAdminGlobalRateBurst, DefaultAdminGlobalRateBurst)
	if err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet("conduit-relay", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var modeStr, logFormatStr, logLevelStr string

	fs.StringVar(&listenAddr, "listen-addr", listenAddr, "HTTP listen address (host:port)")
	fs.StringVar(&path, "path", path, "Base path for peer-facing endpoints (env "+EnvPath+")")
	fs.StringVar(&key, "key", key, "Client API key required on /conduit connections (env "+EnvKey+")")
	fs.StringVar(&allowedOriginsStr, "allowed-origins", allowedOriginsStr, "Comma-separated allowed browser origins (env "+EnvAllowedOrigins+")")
	fs.BoolVar(&requireSecure, "require-secure", requireSecure, "Reject non-TLS-looking connections (env "+EnvRequireSecure+")")
	fs.StringVar(&modeStr, "mode", modeDefault, "Run mode: dev or prod")
	fs.StringVar(&logFormatStr, "log-format", logFormatDefault, "Log format: text or json")
	fs.StringVar(&logLevelStr, "log-level", logLevelDefault, "Log level: debug, info, warn, error")
	fs.DurationVar(&shutdownTimeout, "shutdown-timeout", shutdownTimeout, "Graceful shutdown timeout")

	fs.IntVar(&concurrentLimit, "concurrent-limit", concurrentLimit, "Maximum concurrent peers (env "+EnvConcurrentLimit+")")
	fs.DurationVar(&aliveTimeout, "alive-timeout", aliveTimeout, "Broken-connection sweep interval/threshold (env "+EnvAliveTimeout+")")
	fs.DurationVar(&expireTimeout, "expire-timeout", expireTimeout, "Queued message expiry threshold (env "+EnvExpireTimeout+")")
	fs.DurationVar(&cleanupOutMsgs, "cleanup-interval", cleanupOutMsgs, "Message-expiry sweep interval (env "+EnvCleanupOutMsgs+")")

	fs.BoolVar(&relayEnabled, "relay-enabled", relayEnabled, "Enable RELAY/RELAY_OPEN/RELAY_CLOSE message types (env "+EnvRelayEnabled+")")
	fs.IntVar(&relayMaxBytes, "relay-max-message-size", relayMaxBytes, "Max encoded bytes for a relay payload (env "+EnvRelayMaxBytes+")")

	fs.BoolVar(&rateLimitEnabled, "rate-limit-enabled", rateLimitEnabled, "Enable the per-peer token bucket (env "+EnvRateLimitEnabled+")")
	fs.Int64Var(&rateLimitMax, "rate-limit-max-tokens", rateLimitMax, "Token bucket burst size (env "+EnvRateLimitMax+")")
	fs.Int64Var(&rateLimitRefill, "rate-limit-refill-rate", rateLimitRefill, "Token bucket refill rate per second (env "+EnvRateLimitRefill+")")

	fs.BoolVar(&allowDiscovery, "allow-discovery", allowDiscovery, "Expose GET {path}{key}/conduits (env "+EnvAllowDiscovery+")")
	fs.IntVar(&queueMaxPerDest, "queue-max-per-dest", queueMaxPerDest, "Max queued messages per offline destination (env "+EnvQueueMaxPerDest+")")

	fs.Int64Var(&snapshotIntervalMs, "metrics-snapshot-interval-ms", snapshotIntervalMs, "Metrics snapshot cadence in ms (env "+EnvSnapshotIntervalMs+")")
	fs.Int64Var(&metricsRetentionMs, "metrics-retention-ms", metricsRetentionMs, "Metrics snapshot history retention in ms (env "+EnvMetricsRetentionMs+")")
	fs.IntVar(&metricsMaxSnapshots, "metrics-max-snapshots", metricsMaxSnapshots, "Metrics snapshot history capacity (env "+EnvMetricsMaxSnapshots+")")

	fs.StringVar(&adminPath, "admin-path", adminPath, "Admin control-plane base path (env "+EnvAdminPath+")")
	fs.StringVar(&adminAPIVersion, "admin-api-version", adminAPIVersion, "Admin API version segment (env "+EnvAdminAPIVersion+")")
	fs.StringVar(&adminAuthMethodsStr, "admin-auth-methods", adminAuthMethodsStr, "Comma-separated admin auth methods: apiKey, jwt, basic (env "+EnvAdminAuthMethods+")")
	fs.StringVar(&adminAPIKey, "admin-api-key", adminAPIKey, "Admin API key (env "+EnvAdminAPIKey+")")
	fs.StringVar(&adminJWTSecret, "admin-jwt-secret", adminJWTSecret, "Admin JWT HMAC secret (env "+EnvAdminJWTSecret+")")
	fs.DurationVar(&adminJWTExpiresIn, "admin-jwt-expires-in", adminJWTExpiresIn, "Admin JWT issuance lifetime (env "+EnvAdminJWTExpiresIn+")")
	fs.StringVar(&adminBasicCredsStr, "admin-basic-credentials", adminBasicCredsStr, "Comma-separated user:bcryptHash pairs (env "+EnvAdminBasicCreds+")")
	fs.DurationVar(&adminSessionTimeout, "admin-session-timeout", adminSessionTimeout, "Admin cookie session lifetime (env "+EnvAdminSessionTimeout+")")
	fs.BoolVar(&adminAuditEnabled, "admin-audit-enabled", adminAuditEnabled, "Enable the admin audit ring buffer (env "+EnvAdminAuditEnabled+")")
	fs.IntVar(&adminAuditMaxEnt, "admin-audit-max-entries", adminAuditMaxEnt, "Admin audit ring buffer capacity (env "+EnvAdminAuditMaxEnt+")")
	fs.BoolVar(&adminWSEnabled, "admin-websocket-enabled", adminWSEnabled, "Enable the admin event-bus WebSocket (env "+EnvAdminWSEnabled+")")
	fs.StringVar(&adminWSPath, "admin-websocket-path", adminWSPath, "Admin event-bus WebSocket path, relative to admin-path (env "+EnvAdminWSPath+")")
	fs.DurationVar(&adminWSHeartbeat, "admin-websocket-heartbeat", adminWSHeartbeat, "Admin event-bus WS ping interval (env "+EnvAdminWSHeartbeat+")")
	fs.Float64Var(&adminGlobalRateRPS, "admin-global-rate-limit-rps", adminGlobalRateRPS, "Coarse admin-wide request rate limit (env "+EnvAdminGlobalRateRPS+")")
	fs.IntVar(&adminGlobalRateBurst, "admin-global-rate-limit-burst", adminGlobalRateBurst, "Coarse admin-wide request burst (env "+EnvAdminGlobalRateBurst+")")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	setFlags := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })

	mode, err := parseMode(modeStr)
	if err != nil {
		return Config{}, err
	}
	if _, ok := lookup(EnvLogFormat); !ok && !setFlags["log-format"] {
		logFormatStr = defaultLogFormatForMode(string(mode))
	}
	if _, ok := lookup(EnvLogLevel); !ok && !setFlags["log-level"] {
		logLevelStr = defaultLogLevelForMode(string(mode))
	}

	logFormat, err := parseLogFormat(logFormatStr)
	if err != nil {
		return Config{}, err
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	if listenAddr == "" {
		return Config{}, fmt.Errorf("listen address must not be empty")
	}
	if shutdownTimeout <= 0 {
		return Config{}, fmt.Errorf("shutdown timeout must be > 0")
	}
	if concurrentLimit <= 0 {
		return Config{}, fmt.Errorf("%s/--concurrent-limit must be > 0", EnvConcurrentLimit)
	}
	if aliveTimeout <= 0 {
		return Config{}, fmt.Errorf("%s/--alive-timeout must be > 0", EnvAliveTimeout)
	}
	if expireTimeout <= 0 {
		return Config{}, fmt.Errorf("%s/--expire-timeout must be > 0", EnvExpireTimeout)
	}
	if cleanupOutMsgs <= 0 {
		return Config{}, fmt.Errorf("%s/--cleanup-interval must be > 0", EnvCleanupOutMsgs)
	}
	if relayMaxBytes <= 0 {
		return Config{}, fmt.Errorf("%s/--relay-max-message-size must be > 0", EnvRelayMaxBytes)
	}
	if rateLimitMax <= 0 || rateLimitRefill <= 0 {
		return Config{}, fmt.Errorf("%s/%s must be > 0", EnvRateLimitMax, EnvRateLimitRefill)
	}
	if queueMaxPerDest <= 0 {
		return Config{}, fmt.Errorf("%s/--queue-max-per-dest must be > 0", EnvQueueMaxPerDest)
	}

	adminAuthMethods, err := parseAdminAuthMethods(adminAuthMethodsStr)
	if err != nil {
		return Config{}, err
	}
	for _, m := range adminAuthMethods {
		if m == AdminAuthAPIKey && strings.TrimSpace(adminAPIKey) == "" {
			return Config{}, fmt.Errorf("%s must be set when admin auth method %q is enabled", EnvAdminAPIKey, AdminAuthAPIKey)
		}
		if m == AdminAuthJWT && strings.TrimSpace(adminJWTSecret) == "" {
			return Config{}, fmt.Errorf("%s must be set when admin auth method %q is enabled", EnvAdminJWTSecret, AdminAuthJWT)
		}
	}
	adminBasicCreds, err := parseBasicCredentials(adminBasicCredsStr)
	if err != nil {
		return Config{}, err
	}

	allowedOrigins, err := parseAllowedOrigins(allowedOriginsStr)
	if err != nil {
		return Config{}, fmt.Errorf("%s/--allowed-origins: %w", EnvAllowedOrigins, err)
	}

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}

	cfg := Config{
		ListenAddr:      listenAddr,
		Path:            path,
		Key:             key,
		AllowedOrigins:  allowedOrigins,
		RequireSecure:   requireSecure,
		LogFormat:       logFormat,
		LogLevel:        level,
		ShutdownTimeout: shutdownTimeout,
		Mode:            mode,

		ConcurrentLimit: concurrentLimit,
		AliveTimeout:    aliveTimeout,
		ExpireTimeout:   expireTimeout,
		CleanupOutMsgs:  cleanupOutMsgs,

		Relay: RelayConfig{
			Enabled:        relayEnabled,
			MaxMessageSize: relayMaxBytes,
		},
		RateLimit: RateLimitConfig{
			Enabled:    rateLimitEnabled,
			MaxTokens:  rateLimitMax,
			RefillRate: rateLimitRefill,
		},

		AllowDiscovery:  allowDiscovery,
		QueueMaxPerDest: queueMaxPerDest,

		Admin: AdminConfig{
			Path:       adminPath,
			APIVersion: adminAPIVersion,
			Auth: AdminAuthConfig{
				Methods:          adminAuthMethods,
				APIKey:           adminAPIKey,
				JWTSecret:        adminJWTSecret,
				JWTExpiresIn:     adminJWTExpiresIn,
				BasicCredentials: adminBasicCreds,
				SessionTimeout:   adminSessionTimeout,
			},
			Metrics: AdminMetricsConfig{
				RetentionMs:        metricsRetentionMs,
				SnapshotIntervalMs: snapshotIntervalMs,
				MaxSnapshots:       metricsMaxSnapshots,
			},
			Audit: AdminAuditConfig{
				Enabled:    adminAuditEnabled,
				MaxEntries: adminAuditMaxEnt,
			},
			WebSocket: AdminWebSocketConfig{
				Enabled:           adminWSEnabled,
				Path:              adminWSPath,
				HeartbeatInterval: adminWSHeartbeat,
			},
			GlobalRateLimitRPS:   adminGlobalRateRPS,
			GlobalRateLimitBurst: adminGlobalRateBurst,
		},
	}

	return cfg, nil
}

func NewLogger(cfg Config) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}

	var handler slog.Handler
	switch cfg.LogFormat {
	case LogFormatText:
		handler = slog.NewTextHandler(os.Stdout, opts)
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}
	return slog.New(handler), nil
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(lookup func(string) (string, bool), key string, fallback int) (int, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envInt64OrDefault(lookup func(string) (string, bool), key string, fallback int64) (int64, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envFloatOrDefault(lookup func(string) (string, bool), key string, fallback float64) (float64, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envBoolOrDefault(lookup func(string) (string, bool), key string, fallback bool) (bool, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func envDurationOrDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func defaultLogFormatForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return string(LogFormatJSON)
	default:
		return string(LogFormatText)
	}
}

func defaultLogLevelForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return "info"
	default:
		return "debug"
	}
}

func parseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(ModeDev), "development":
		return ModeDev, nil
	case string(ModeProd), "production":
		return ModeProd, nil
	default:
		return "", fmt.Errorf("invalid mode %q (expected dev or prod)", raw)
	}
}

func parseLogFormat(raw string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(LogFormatText):
		return LogFormatText, nil
	case string(LogFormatJSON):
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid log format %q (expected text or json)", raw)
	}
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug, info, warn, error)", raw)
	}
}

func parseAdminAuthMethods(raw string) ([]AdminAuthMethod, error) {
	var out []AdminAuthMethod
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		switch AdminAuthMethod(entry) {
		case AdminAuthAPIKey, AdminAuthJWT, AdminAuthBasic:
			out = append(out, AdminAuthMethod(entry))
		default:
			return nil, fmt.Errorf("invalid admin auth method %q (expected apiKey, jwt, or basic)", entry)
		}
	}
	return out, nil
}

// parseBasicCredentials parses "user:bcryptHash,user2:bcryptHash2" pairs.
// Hashes are produced out-of-band with golang.org/x/crypto/bcrypt; this
// package never sees or stores a plaintext password.
func parseBasicCredentials(raw string) (map[string]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	out := map[string]string{}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		user, hash, ok := strings.Cut(entry, ":")
		if !ok || user == "" || hash == "" {
			return nil, fmt.Errorf("invalid basic credential entry %q (expected user:bcryptHash)", entry)
		}
		out[user] = hash
	}
	return out, nil
}

func parseAllowedOrigins(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out []string
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if entry == "*" {
			out = append(out, entry)
			continue
		}
		normalized, _, ok := origin.NormalizeHeader(entry)
		if !ok {
			return nil, fmt.Errorf("invalid origin %q (expected full origin like https://example.com)", entry)
		}
		out = append(out, normalized)
	}
	return out, nil
}
