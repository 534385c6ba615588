// Package security resolves per-route security modes into request-gating
// middleware. Three modes are supported: none (pass-through), basic (HTTP
// Basic against a configured user table), and jwt (HMAC-signed bearer
// tokens). After a successful check the authenticated identity is attached
// to the request context and the SECURITY lifecycle hook runs with the live
// request, so custom policy hooks can still inspect or reject the request,
// including on "public" routes.
package security

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/GoCodeAlone/scaffold"
	"github.com/GoCodeAlone/scaffold/metrics"
)

// RouteMeta binds a gate to the route it protects, for diagnostics.
type RouteMeta struct {
	Mode     scaffold.SecurityMode
	Source   string
	FullPath string
	Method   scaffold.Method
}

// Provider resolves per-route security modes into middleware gates.
type Provider struct {
	config   *scaffold.Config
	hooks    *scaffold.HookManager
	services *scaffold.ServiceRegistry
	logger   scaffold.Logger
	metrics  *metrics.Collector
	method   *jwt.SigningMethodHMAC
}

// NewProvider creates a security provider bound to the application's hook
// manager and service registry. The metrics collector may be nil.
func NewProvider(cfg *scaffold.Config, hooks *scaffold.HookManager, services *scaffold.ServiceRegistry, logger scaffold.Logger, collector *metrics.Collector) *Provider {
	return &Provider{
		config:   cfg,
		hooks:    hooks,
		services: services,
		logger:   logger,
		metrics:  collector,
		method:   signingMethod(cfg.Auth.JWT.Algorithm),
	}
}

// signingMethod selects the HMAC variant by name, defaulting to HS512 for
// unspecified or unrecognized values.
func signingMethod(name string) *jwt.SigningMethodHMAC {
	switch strings.ToUpper(name) {
	case "HS256":
		return jwt.SigningMethodHS256
	case "HS384":
		return jwt.SigningMethodHS384
	default:
		return jwt.SigningMethodHS512
	}
}

// ResolveMode maps controller metadata to a security mode: "basic" selects
// basic, "jwt" or boolean true selects jwt, anything else is none.
func (p *Provider) ResolveMode(secure any) scaffold.SecurityMode {
	switch v := secure.(type) {
	case scaffold.SecurityMode:
		if v == scaffold.SecurityBasic || v == scaffold.SecurityJWT {
			return v
		}
	case string:
		switch strings.ToLower(v) {
		case "basic":
			return scaffold.SecurityBasic
		case "jwt":
			return scaffold.SecurityJWT
		}
	case bool:
		if v {
			return scaffold.SecurityJWT
		}
	}
	return scaffold.SecurityNone
}

// Middleware returns a gate bound to the route's mode. Globally disabling a
// mode (auth.basic.enabled / auth.jwt.enabled set to false) turns that
// mode's gate into a pass-through regardless of per-route metadata.
func (p *Provider) Middleware(meta RouteMeta) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id *Identity

			switch meta.Mode {
			case scaffold.SecurityBasic:
				if p.config.Auth.Basic.Enabled {
					authed, ok := p.checkBasic(w, r, meta)
					if !ok {
						return
					}
					id = authed
				}
			case scaffold.SecurityJWT:
				if p.config.Auth.JWT.Enabled {
					authed, ok := p.checkJWT(w, r, meta)
					if !ok {
						return
					}
					id = authed
				}
			}

			if id != nil {
				r = r.WithContext(WithIdentity(r.Context(), id))
			}

			if err := p.emitSecurityHook(r); err != nil {
				p.logger.Error("Security hook rejected request",
					"method", meta.Method, "path", meta.FullPath, "source", meta.Source, "error", err)
				p.metrics.AuthFailure("policy")
				WriteError(w, http.StatusInternalServerError, "request rejected", "policy")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// checkBasic validates an Authorization: Basic header against the configured
// user table. All failures are Unauthorized (401).
func (p *Provider) checkBasic(w http.ResponseWriter, r *http.Request, meta RouteMeta) (*Identity, bool) {
	payload, err := headerPayload(r, "Basic")
	if err != nil {
		p.reject(w, http.StatusUnauthorized, "missing_basic_header", meta, err)
		return nil, false
	}

	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		p.reject(w, http.StatusUnauthorized, "bad_base64", meta, fmt.Errorf("%w: %w", ErrMalformedAuthHeader, err))
		return nil, false
	}

	username, password, ok := strings.Cut(string(decoded), ":")
	if !ok {
		p.reject(w, http.StatusUnauthorized, "malformed_credentials", meta, ErrMalformedAuthHeader)
		return nil, false
	}

	if !p.verifyUser(username, password) {
		p.reject(w, http.StatusUnauthorized, "invalid_credentials", meta, ErrInvalidCredentials)
		return nil, false
	}

	return &Identity{Username: username, Scheme: "basic"}, true
}

// verifyUser compares the supplied password against the stored entry in
// constant time. Entries that look like bcrypt hashes go through bcrypt;
// plaintext entries use a fixed-time byte comparison. Unknown users still
// burn a comparison so lookups don't leak user existence through timing.
func (p *Provider) verifyUser(username, password string) bool {
	stored, known := p.config.Auth.Basic.Users[username]
	if !known {
		subtle.ConstantTimeCompare([]byte(password), []byte(password))
		return false
	}

	if strings.HasPrefix(stored, "$2a$") || strings.HasPrefix(stored, "$2b$") || strings.HasPrefix(stored, "$2y$") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1
}

// checkJWT validates an Authorization: Bearer token. A missing or malformed
// header is Unauthorized (401); a token that fails verification (bad
// signature, wrong algorithm, expired) is Forbidden (403).
func (p *Provider) checkJWT(w http.ResponseWriter, r *http.Request, meta RouteMeta) (*Identity, bool) {
	raw, err := headerPayload(r, "Bearer")
	if err != nil {
		p.reject(w, http.StatusUnauthorized, "missing_bearer_header", meta, err)
		return nil, false
	}

	claims, err := p.verifyToken(raw)
	if err != nil {
		p.reject(w, http.StatusForbidden, "token_rejected", meta, err)
		return nil, false
	}

	id := &Identity{Scheme: "jwt", Claims: claims}
	if sub, ok := claims["sub"].(string); ok {
		id.Username = sub
	}
	return id, true
}

// verifyToken parses and verifies an HMAC-signed token with the configured
// algorithm and secret, returning the decoded claims.
func (p *Provider) verifyToken(raw string) (map[string]any, error) {
	if p.config.Auth.JWT.Secret == "" {
		return nil, ErrSecretNotConfigured
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: %v", ErrUnexpectedSigningMethod, t.Header["alg"])
		}
		return []byte(p.config.Auth.JWT.Secret), nil
	}, jwt.WithValidMethods([]string{p.method.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrTokenInvalid
	}
	return map[string]any(claims), nil
}

// SignToken mints an HMAC-signed token with the configured algorithm and
// secret. The registered iat/exp claims are set from the current time.
func (p *Provider) SignToken(claims map[string]any, expiry time.Duration) (string, error) {
	if p.config.Auth.JWT.Secret == "" {
		return "", ErrSecretNotConfigured
	}

	now := time.Now()
	merged := jwt.MapClaims{
		"iat": now.Unix(),
		"exp": now.Add(expiry).Unix(),
	}
	for k, v := range claims {
		merged[k] = v
	}

	token := jwt.NewWithClaims(p.method, merged)
	signed, err := token.SignedString([]byte(p.config.Auth.JWT.Secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// emitSecurityHook runs the SECURITY phase with the live request attached.
func (p *Provider) emitSecurityHook(r *http.Request) error {
	return p.hooks.Emit(r.Context(), scaffold.PhaseSecurity, &scaffold.HookContext{
		Config:   p.config,
		Logger:   p.logger,
		Hooks:    p.hooks,
		Services: p.services,
		Request:  r,
	})
}

// reject writes a structured auth failure response and records it.
func (p *Provider) reject(w http.ResponseWriter, status int, reason string, meta RouteMeta, err error) {
	p.logger.Debug("Request rejected by security gate",
		"method", meta.Method, "path", meta.FullPath, "mode", meta.Mode, "source", meta.Source, "reason", reason, "error", err)
	p.metrics.AuthFailure(reason)

	if status == http.StatusForbidden {
		WriteError(w, status, "forbidden", reason)
		return
	}
	WriteError(w, status, "unauthorized", reason)
}

// headerPayload extracts the payload of an Authorization header with the
// given scheme, case-insensitively.
func headerPayload(r *http.Request, scheme string) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingAuthHeader
	}

	prefix, payload, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(prefix, scheme) || strings.TrimSpace(payload) == "" {
		return "", ErrMalformedAuthHeader
	}
	return strings.TrimSpace(payload), nil
}

// WriteError writes a structured JSON error body. Internals never leak: the
// message is a fixed phrase and code is an optional machine-readable reason.
func WriteError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	body := map[string]string{"error": message}
	if code != "" {
		body["code"] = code
	}
	_ = json.NewEncoder(w).Encode(body)
}
