package webdav

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/webdav"

	"github.com/Shubham6444/host/internal/accounts"
	"github.com/Shubham6444/host/internal/auth"
	"github.com/Shubham6444/host/internal/logging"
	"github.com/Shubham6444/host/internal/metrics"
)

// TokenAuthenticator validates bearer tokens.
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Claims, error)
}

// PasswordAuthenticator checks basic-auth credentials.
type PasswordAuthenticator interface {
	Authenticate(ctx context.Context, username, password string) (*accounts.User, error)
}

// NewHandler creates a WebDAV HTTP handler with authentication, mounted
// at prefix.
func NewHandler(prefix string, fs *SandboxFS, tokens TokenAuthenticator, passwords PasswordAuthenticator) http.Handler {
	davHandler := &webdav.Handler{
		Prefix:     prefix,
		FileSystem: fs,
		LockSystem: webdav.NewMemLS(),
		Logger: func(r *http.Request, err error) {
			if err != nil {
				logging.WithContext(r.Context()).Debug("webdav request failed",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Error(err))
			}
		},
	}
	return BasicAuthMiddleware(tokens, passwords)(davHandler)
}

// BasicAuthMiddleware accepts either a bearer session token or HTTP basic
// credentials, since most WebDAV clients only speak basic auth.
func BasicAuthMiddleware(tokens TokenAuthenticator, passwords PasswordAuthenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var claims *auth.Claims

			if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
				c, err := tokens.Authenticate(r.Context(), strings.TrimPrefix(h, "Bearer "))
				if err == nil {
					claims = c
				}
			} else if username, password, ok := r.BasicAuth(); ok {
				u, err := passwords.Authenticate(r.Context(), username, password)
				if err == nil {
					claims = &auth.Claims{UserID: u.ID, Username: u.Username, Role: u.Role}
				}
			}

			if claims == nil {
				metrics.RecordAuthAttempt(false)
				w.Header().Set("WWW-Authenticate", `Basic realm="panel"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
		})
	}
}
