// Package admincore implements the control-plane services layered over a
// realm: authentication, sessions, bans, audit logging, and the mutating
// actions the admin router exposes.
package admincore

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/wilsonzlin/conduit-relay/internal/auth"
)

// Role is the principal's authorization tier. A viewer passes
// authentication but is restricted to idempotent (GET) admin routes.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleViewer Role = "viewer"
)

// AuthResult is the outcome of authenticating one admin HTTP request.
type AuthResult struct {
	Valid  bool
	UserID string
	Role   Role
	Err    error
}

var errNoCredential = errors.New("no admin credential presented")

// AuthConfig enumerates which admin auth methods are enabled and the
// material each one needs. Any subset of apiKey/jwt/basic may be active at
// once; authenticateRequest tries each in a fixed order.
type AuthConfig struct {
	APIKeyEnabled bool
	APIKey        string

	JWTEnabled bool
	JWTSecret  string

	BasicEnabled bool
	// BasicCredentials maps username to a bcrypt password hash.
	BasicCredentials map[string]string
}

// AuthManager implements the admin core's authentication surface: one
// method per configured credential kind, plus the composite
// AuthenticateRequest that tries them in order against a single request.
type AuthManager struct {
	cfg      AuthConfig
	apiKey   auth.APIKeyVerifier
	jwt      *jwtIssuer
	sessions *SessionManager
}

func NewAuthManager(cfg AuthConfig, sessions *SessionManager) *AuthManager {
	m := &AuthManager{
		cfg:      cfg,
		apiKey:   auth.APIKeyVerifier{Expected: cfg.APIKey},
		sessions: sessions,
	}
	if cfg.JWTEnabled {
		m.jwt = newJWTIssuer(cfg.JWTSecret)
	}
	return m
}

// AuthenticateAPIKey validates key against the configured admin API key
// using a constant-time comparison.
func (m *AuthManager) AuthenticateAPIKey(key string) AuthResult {
	if !m.cfg.APIKeyEnabled {
		return AuthResult{Err: errNoCredential}
	}
	if err := m.apiKey.Verify(key); err != nil {
		return AuthResult{Err: err}
	}
	return AuthResult{Valid: true, UserID: "api-key", Role: RoleAdmin}
}

// AuthenticateJWT validates an admin JWT and extracts its role claim.
func (m *AuthManager) AuthenticateJWT(token string) AuthResult {
	if !m.cfg.JWTEnabled || m.jwt == nil {
		return AuthResult{Err: errNoCredential}
	}
	claims, err := m.jwt.verify(token)
	if err != nil {
		return AuthResult{Err: err}
	}
	role := RoleViewer
	if claims.Role == string(RoleAdmin) {
		role = RoleAdmin
	}
	return AuthResult{Valid: true, UserID: claims.Subject, Role: role}
}

// AuthenticateBasic validates HTTP basic credentials against the configured
// username/bcrypt-hash pairs.
func (m *AuthManager) AuthenticateBasic(username, password string) AuthResult {
	if !m.cfg.BasicEnabled {
		return AuthResult{Err: errNoCredential}
	}
	hash, ok := m.cfg.BasicCredentials[username]
	if !ok {
		return AuthResult{Err: auth.ErrInvalidCredentials}
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return AuthResult{Err: auth.ErrInvalidCredentials}
	}
	return AuthResult{Valid: true, UserID: username, Role: RoleAdmin}
}

// AuthenticateRequest applies the composite credential resolution order:
// Bearer JWT, then Basic, then X-API-Key header, then an admin_session
// cookie.
func (m *AuthManager) AuthenticateRequest(r *http.Request) AuthResult {
	if scheme, token := parseAuthorization(r); scheme != "" {
		switch strings.ToLower(scheme) {
		case "bearer":
			if res := m.AuthenticateJWT(token); res.Valid {
				return res
			}
		case "basic":
			if user, pass, ok := decodeBasic(token); ok {
				if res := m.AuthenticateBasic(user, pass); res.Valid {
					return res
				}
			}
		}
	}

	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		if res := m.AuthenticateAPIKey(key); res.Valid {
			return res
		}
	}

	if cookie, err := r.Cookie("admin_session"); err == nil && m.sessions != nil {
		if sess, ok := m.sessions.Get(cookie.Value); ok {
			return AuthResult{Valid: true, UserID: sess.UserID, Role: sess.Role}
		}
	}

	return AuthResult{Err: errNoCredential}
}

func parseAuthorization(r *http.Request) (scheme, token string) {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if v == "" {
		return "", ""
	}
	sep := strings.IndexByte(v, ' ')
	if sep == -1 {
		return "", ""
	}
	return strings.TrimSpace(v[:sep]), strings.TrimSpace(v[sep+1:])
}

func decodeBasic(token string) (user, pass string, ok bool) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", "", false
	}
	user, pass, found := strings.Cut(string(raw), ":")
	if !found {
		return "", "", false
	}
	return user, pass, true
}
