// Package api provides the HTTP server and handlers.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path"

	"go.uber.org/zap"

	"github.com/Shubham6444/host/internal/accounts"
	"github.com/Shubham6444/host/internal/activity"
	"github.com/Shubham6444/host/internal/auth"
	"github.com/Shubham6444/host/internal/backup"
	"github.com/Shubham6444/host/internal/clipboard"
	"github.com/Shubham6444/host/internal/config"
	apperrors "github.com/Shubham6444/host/internal/errors"
	"github.com/Shubham6444/host/internal/events"
	"github.com/Shubham6444/host/internal/logging"
	"github.com/Shubham6444/host/internal/metrics"
	"github.com/Shubham6444/host/internal/quota"
	"github.com/Shubham6444/host/internal/terminal"
	"github.com/Shubham6444/host/internal/upload"
	"github.com/Shubham6444/host/internal/vfs"
)

// maxJSONBody bounds JSON request bodies. The editor saves whole files.
const maxJSONBody = 16 << 20

// Deps bundles the server's collaborators. Backup and WebDAV may be nil.
type Deps struct {
	Config      *config.Config
	Auth        *auth.Auth
	Accounts    *accounts.Service
	Resolver    *vfs.Resolver
	Executor    *vfs.Executor
	Uploads     *upload.Ingestor
	Clipboard   *clipboard.Coordinator
	Terminal    *terminal.Gateway
	Activity    *activity.Log
	Broadcaster *events.Broadcaster
	RateLimiter *quota.RateLimiter
	Backup      *backup.Service
	WebDAV      http.Handler
}

// Server is the HTTP server.
type Server struct {
	config      *config.Config
	auth        *auth.Auth
	accounts    *accounts.Service
	resolver    *vfs.Resolver
	files       *vfs.Executor
	uploads     *upload.Ingestor
	clipboard   *clipboard.Coordinator
	terminal    *terminal.Gateway
	activity    *activity.Log
	broadcaster *events.Broadcaster
	rateLimiter *quota.RateLimiter
	backup      *backup.Service
	webdav      http.Handler
}

// NewServer creates a new server. Logging out clears the session's
// clipboard.
func NewServer(d Deps) *Server {
	s := &Server{
		config:      d.Config,
		auth:        d.Auth,
		accounts:    d.Accounts,
		resolver:    d.Resolver,
		files:       d.Executor,
		uploads:     d.Uploads,
		clipboard:   d.Clipboard,
		terminal:    d.Terminal,
		activity:    d.Activity,
		broadcaster: d.Broadcaster,
		rateLimiter: d.RateLimiter,
		backup:      d.Backup,
		webdav:      d.WebDAV,
	}
	s.auth.OnLogout(func(ctx context.Context, sessionID string) {
		if err := s.clipboard.Clear(ctx, sessionID); err != nil {
			logging.WithContext(ctx).Warn("failed to clear clipboard on logout", zap.Error(err))
		}
	})
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public endpoints (no auth required)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/login", s.auth.HandleLogin)
	mux.HandleFunc("POST /api/register", s.handleRegister)

	// WebDAV endpoint (has its own auth middleware)
	if s.webdav != nil {
		mux.Handle("/dav/", s.webdav)
	}

	// Protected endpoints
	protected := http.NewServeMux()

	// File manager
	protected.HandleFunc("GET /api/files/browse", s.handleBrowse)
	protected.HandleFunc("POST /api/files/folder", s.handleCreateFolder)
	protected.HandleFunc("POST /api/files/create", s.handleCreateFile)
	protected.HandleFunc("GET /api/files/content", s.handleContent)
	protected.HandleFunc("PUT /api/files/save", s.handleSave)
	protected.HandleFunc("PUT /api/files/rename", s.handleRename)
	protected.HandleFunc("DELETE /api/files/delete", s.handleDelete)
	protected.HandleFunc("DELETE /api/files/delete-multiple", s.handleDeleteMultiple)
	protected.HandleFunc("POST /api/files/compress", s.handleCompress)
	protected.HandleFunc("GET /api/files/properties", s.handleProperties)
	protected.Handle("GET /api/files/permissions", auth.RequireAdmin(http.HandlerFunc(s.handlePermissions)))
	protected.HandleFunc("GET /api/files/download", s.handleDownload)
	protected.HandleFunc("GET /api/files/events", s.handleEvents)

	// Clipboard
	protected.HandleFunc("POST /api/files/clipboard", s.handleSetClipboard)
	protected.HandleFunc("GET /api/files/clipboard", s.handleGetClipboard)
	protected.HandleFunc("POST /api/files/paste", s.handlePaste)

	// Uploads
	protected.HandleFunc("POST /api/upload", s.handleUpload)

	// Terminal
	protected.HandleFunc("POST /api/terminal/execute", s.handleTerminal)

	// Account
	protected.HandleFunc("POST /api/logout", s.auth.HandleLogout)
	protected.HandleFunc("GET /api/user", s.handleUser)
	protected.HandleFunc("GET /api/activity", s.handleActivity)

	// Admin
	protected.Handle("PUT /api/admin/users/{id}/file-limit", auth.RequireAdmin(http.HandlerFunc(s.handleSetFileLimit)))
	protected.Handle("POST /api/system/backup", auth.RequireAdmin(http.HandlerFunc(s.handleBackup)))

	// Wrap protected routes with auth then rate limiter
	getUser := func(ctx context.Context) (int64, bool) {
		claims := auth.GetClaims(ctx)
		if claims == nil {
			return 0, false
		}
		return claims.UserID, true
	}
	rateLimited := quota.RateLimitMiddleware(s.rateLimiter, s.config.RequestsPerMinute, getUser)(protected)
	mux.Handle("/api/", s.auth.Middleware(rateLimited))

	// Apply logging and metrics middleware
	return metrics.Middleware(logging.Middleware(mux))
}

// ─── Health ─────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// caller returns the identity the auth middleware put on the request.
func caller(r *http.Request) vfs.Caller {
	claims := auth.GetClaims(r.Context())
	if claims == nil {
		return vfs.Caller{}
	}
	return claims.Caller()
}

// resolve parses the wire namespace and resolves rel for the caller.
func (s *Server) resolve(r *http.Request, rootPath, rel string) (vfs.ResolvedPath, error) {
	ns, err := vfs.ParseNamespace(rootPath)
	if err != nil {
		return vfs.ResolvedPath{}, err
	}
	return s.resolver.Resolve(caller(r), ns, rel)
}

// joinRel joins a directory and a child name in wire form.
func joinRel(dir, name string) string {
	return path.Join("/", dir, name)
}

func displayPath(p vfs.ResolvedPath) string {
	return "/" + p.Rel
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(v); err != nil {
		return apperrors.New(apperrors.KindInvalidArgument, "invalid request body")
	}
	return nil
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	s.sendJSON(w, code, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindForbidden, apperrors.KindCommandBlocked:
		return http.StatusForbidden
	case apperrors.KindInvalidPath, apperrors.KindInvalidName, apperrors.KindInvalidArgument:
		return http.StatusBadRequest
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindAlreadyExists:
		return http.StatusConflict
	case apperrors.KindQuotaExceeded:
		return http.StatusRequestEntityTooLarge
	case apperrors.KindCommandTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// sendAppError writes err with the status of its kind. Internal errors are
// logged with their cause; the client only sees the safe message.
func (s *Server) sendAppError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperrors.KindOf(err)
	code := statusFor(kind)
	if code >= http.StatusInternalServerError {
		logging.WithContext(r.Context()).Error("request failed",
			zap.String("path", r.URL.Path), zap.Error(err))
	}
	s.sendError(w, code, apperrors.Message(err))
}

// record writes an activity entry for the caller.
func (s *Server) record(r *http.Request, typ, title, description string) {
	c := caller(r)
	s.activity.Record(r.Context(), activity.Entry{
		UserID:      c.UserID,
		Type:        typ,
		Title:       title,
		Description: description,
		IP:          auth.ClientIP(r),
		UserAgent:   r.UserAgent(),
	})
}

// publishEvent publishes an event to the broadcaster if available.
func (s *Server) publishEvent(r *http.Request, eventType string, p vfs.ResolvedPath, size int64) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.Publish(events.Event{
		Type:      eventType,
		Namespace: string(p.Namespace),
		Path:      displayPath(p),
		Size:      size,
		OwnerID:   caller(r).UserID,
	})
}
