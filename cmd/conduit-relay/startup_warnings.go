package main

import (
	"log/slog"

	"github.com/wilsonzlin/conduit-relay/internal/config"
)

func logStartupSecurityWarnings(logger *slog.Logger, cfg config.Config) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Key == "" {
		logger.Warn("startup security warning: CONDUIT_KEY is empty, the peer-facing conduit URL requires no shared key",
			"warning_code", "conduit_key_empty",
			"mode", cfg.Mode,
		)
	}

	if containsString(cfg.AllowedOrigins, "*") {
		logger.Warn("startup security warning: ALLOWED_ORIGINS contains '*' (allows any origin)",
			"warning_code", "allowed_origins_wildcard",
			"allowed_origins", cfg.AllowedOrigins,
			"mode", cfg.Mode,
		)
	}

	if len(cfg.AllowedOrigins) == 0 && cfg.Mode == config.ModeProd {
		logger.Warn("startup security warning: ALLOWED_ORIGINS is empty in prod mode, falling back to same-host origin checks",
			"warning_code", "allowed_origins_empty_prod",
			"mode", cfg.Mode,
		)
	}

	if len(cfg.Admin.Auth.Methods) == 0 {
		logger.Warn("startup security warning: no admin auth methods are enabled, the admin control plane is unreachable",
			"warning_code", "admin_auth_disabled",
			"mode", cfg.Mode,
		)
	}

	if cfg.Admin.Auth.Enabled(config.AdminAuthAPIKey) && cfg.Admin.Auth.APIKey == "" {
		logger.Warn("startup security warning: admin apiKey auth is enabled but ADMIN_API_KEY is empty",
			"warning_code", "admin_api_key_empty",
			"mode", cfg.Mode,
		)
	}

	if cfg.Admin.Auth.Enabled(config.AdminAuthJWT) && cfg.Admin.Auth.JWTSecret == "" {
		logger.Warn("startup security warning: admin jwt auth is enabled but ADMIN_JWT_SECRET is empty",
			"warning_code", "admin_jwt_secret_empty",
			"mode", cfg.Mode,
		)
	}

	if cfg.AllowDiscovery {
		logger.Warn("startup security warning: ALLOW_DISCOVERY exposes the full list of connected peer ids over HTTP",
			"warning_code", "allow_discovery_enabled",
			"mode", cfg.Mode,
		)
	}

	if !cfg.RateLimit.Enabled {
		logger.Warn("startup security warning: RATE_LIMIT_ENABLED=false disables per-peer admission throttling",
			"warning_code", "rate_limit_disabled",
			"mode", cfg.Mode,
		)
	}
}

func containsString(xs []string, target string) bool {
	for _, x := range xs {
		if x == target {
			return true
		}
	}
	return false
}
