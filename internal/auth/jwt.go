// Package auth provides JWT session authentication for the panel API.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Shubham6444/host/internal/accounts"
	apperrors "github.com/Shubham6444/host/internal/errors"
	"github.com/Shubham6444/host/internal/logging"
	"github.com/Shubham6444/host/internal/metrics"
	"github.com/Shubham6444/host/internal/vfs"
)

type contextKey string

const userContextKey contextKey = "user"

// CookieName is the session cookie set on login.
const CookieName = "panel_token"

// Claims holds JWT token claims. RegisteredClaims.ID is the session ID.
type Claims struct {
	UserID   int64    `json:"user_id"`
	Username string   `json:"username"`
	Role     vfs.Role `json:"role"`
	jwt.RegisteredClaims
}

// Caller converts claims into the identity the file layer works with.
func (c *Claims) Caller() vfs.Caller {
	return vfs.Caller{UserID: c.UserID, Username: c.Username, Role: c.Role, SessionID: c.ID}
}

// IsAdmin reports whether the token carries the admin role.
func (c *Claims) IsAdmin() bool { return c.Role == vfs.RoleAdmin }

// UserStore is what auth needs from the account service.
type UserStore interface {
	Authenticate(ctx context.Context, username, password string) (*accounts.User, error)
	EnsureExternal(ctx context.Context, username, email string, admin bool) (*accounts.User, error)
}

// tokenValidator checks tokens issued by an external identity provider.
type tokenValidator interface {
	ValidateToken(ctx context.Context, tokenStr string) (*Claims, error)
}

// Auth issues and validates session tokens.
type Auth struct {
	secret   []byte
	ttl      time.Duration
	sessions SessionStore
	users    UserStore
	oidc     tokenValidator
	onLogout []func(ctx context.Context, sessionID string)
}

// New creates a new Auth handler.
func New(jwtSecret string, ttl time.Duration, sessions SessionStore, users UserStore) *Auth {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Auth{secret: []byte(jwtSecret), ttl: ttl, sessions: sessions, users: users}
}

// SetOIDCProvider enables OIDC ID tokens as an alternative to local tokens.
func (a *Auth) SetOIDCProvider(p *OIDCProvider) {
	if p == nil {
		return
	}
	a.oidc = p
}

// HasOIDC returns true if an OIDC provider is configured.
func (a *Auth) HasOIDC() bool {
	return a.oidc != nil
}

// OnLogout registers a hook run after a session is revoked.
func (a *Auth) OnLogout(fn func(ctx context.Context, sessionID string)) {
	a.onLogout = append(a.onLogout, fn)
}

// IssueToken creates a session for u and returns its signed token.
func (a *Auth) IssueToken(ctx context.Context, u *accounts.User, userAgent, ip string) (string, *Claims, error) {
	now := time.Now()
	claims := &Claims{
		UserID:   u.ID,
		Username: u.Username,
		Role:     u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   fmt.Sprint(u.ID),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "panel",
		},
	}

	tokenStr, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}

	err = a.sessions.Create(ctx, &Session{
		ID:        claims.ID,
		UserID:    u.ID,
		UserAgent: userAgent,
		IP:        ip,
		CreatedAt: now,
		ExpiresAt: claims.ExpiresAt.Time,
	})
	if err != nil {
		return "", nil, fmt.Errorf("record session: %w", err)
	}
	return tokenStr, claims, nil
}

// Middleware validates the session token on every request. Local tokens
// are tried first, then OIDC ID tokens when a provider is configured.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := extractToken(r)
		if tokenStr == "" {
			metrics.RecordAuthAttempt(false)
			sendAuthError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		claims, err := a.Authenticate(r.Context(), tokenStr)
		if err != nil {
			metrics.RecordAuthAttempt(false)
			sendAuthError(w, http.StatusUnauthorized, err.Error())
			return
		}

		ctx := logging.WithUser(WithClaims(r.Context(), claims), claims.UserID, claims.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Authenticate validates a bearer token and returns its claims. Revoked
// sessions are rejected whichever issuer signed the token.
func (a *Auth) Authenticate(ctx context.Context, tokenStr string) (*Claims, error) {
	claims, err := a.validateToken(tokenStr)
	external := false
	if err != nil {
		if a.oidc == nil {
			return nil, errors.New("invalid token")
		}
		oc, oerr := a.oidc.ValidateToken(ctx, tokenStr)
		if oerr != nil {
			return nil, errors.New("invalid token")
		}
		claims, external = oc, true
	}

	revoked, rerr := a.sessions.IsRevoked(ctx, claims.ID)
	if rerr != nil {
		logging.Error("session revocation check failed", zap.Error(rerr))
		return nil, errors.New("session check failed")
	}
	if revoked {
		return nil, errors.New("session has ended")
	}
	if external {
		metrics.RecordAuthAttempt(true)
	}
	return claims, nil
}

// RequireAdmin rejects callers without the admin role. It must run after
// Middleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := GetClaims(r.Context())
		if claims == nil || !claims.IsAdmin() {
			sendAuthError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetClaims extracts claims from the request context.
func GetClaims(ctx context.Context) *Claims {
	claims, _ := ctx.Value(userContextKey).(*Claims)
	return claims
}

// WithClaims stores claims in ctx.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, userContextKey, claims)
}

// HandleLogin handles POST /api/login.
func (a *Auth) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.RecordAuthAttempt(false)
		sendAuthError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		metrics.RecordAuthAttempt(false)
		sendAuthError(w, http.StatusBadRequest, "username and password required")
		return
	}

	u, err := a.users.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		metrics.RecordAuthAttempt(false)
		if apperrors.Is(err, apperrors.KindForbidden) {
			logging.Warn("login failed", zap.String("username", req.Username))
			sendAuthError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		logging.Error("login lookup failed", zap.Error(err))
		sendAuthError(w, http.StatusInternalServerError, "login failed")
		return
	}

	tokenStr, claims, err := a.IssueToken(r.Context(), u, r.UserAgent(), ClientIP(r))
	if err != nil {
		metrics.RecordAuthAttempt(false)
		logging.Error("failed to issue token", zap.Error(err))
		sendAuthError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	metrics.RecordAuthAttempt(true)
	logging.Info("login successful", zap.String("username", u.Username))

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    tokenStr,
		Path:     "/",
		Expires:  claims.ExpiresAt.Time,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"token":      tokenStr,
		"expires_at": claims.ExpiresAt.Time,
		"user": map[string]interface{}{
			"id":       u.ID,
			"username": u.Username,
			"role":     u.Role,
		},
	})
}

// HandleLogout handles POST /api/logout. It must run after Middleware.
func (a *Auth) HandleLogout(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		sendAuthError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if claims.ID != "" {
		if strings.HasPrefix(claims.ID, oidcSessionPrefix) {
			// ID tokens have no session row until their first logout.
			if err := a.sessions.Create(r.Context(), externalSession(claims, r)); err != nil {
				logging.Error("failed to record session", zap.Error(err))
				sendAuthError(w, http.StatusInternalServerError, "logout failed")
				return
			}
		}
		if err := a.sessions.Revoke(r.Context(), claims.ID); err != nil {
			logging.Error("failed to revoke session", zap.Error(err))
			sendAuthError(w, http.StatusInternalServerError, "logout failed")
			return
		}
		for _, fn := range a.onLogout {
			fn(r.Context(), claims.ID)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func externalSession(claims *Claims, r *http.Request) *Session {
	now := time.Now()
	sess := &Session{
		ID:        claims.ID,
		UserID:    claims.UserID,
		UserAgent: r.UserAgent(),
		IP:        ClientIP(r),
		CreatedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
	}
	if claims.ExpiresAt != nil {
		sess.ExpiresAt = claims.ExpiresAt.Time
	}
	return sess
}

func (a *Auth) validateToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	// Query parameter fallback for downloads and EventSource.
	return r.URL.Query().Get("token")
}

// ClientIP returns the request's remote address without the port.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func sendAuthError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{"success": false, "error": msg})
}
