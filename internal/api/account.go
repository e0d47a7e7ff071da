package api

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/Shubham6444/host/internal/activity"
	"github.com/Shubham6444/host/internal/auth"
	apperrors "github.com/Shubham6444/host/internal/errors"
	"github.com/Shubham6444/host/internal/logging"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendAppError(w, r, err)
		return
	}

	u, err := s.accounts.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		s.sendAppError(w, r, err)
		return
	}

	s.activity.Record(r.Context(), activity.Entry{
		UserID:    u.ID,
		Type:      activity.TypeAuth,
		Title:     "Account created",
		IP:        auth.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
	logging.WithContext(r.Context()).Info("user registered",
		zap.Int64("user_id", u.ID), zap.String("username", u.Username))
	s.sendJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	c := caller(r)
	u, err := s.accounts.Get(r.Context(), c.UserID)
	if err != nil {
		s.sendAppError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"user": map[string]interface{}{
			"id":        u.ID,
			"username":  u.Username,
			"email":     u.Email,
			"role":      u.Role,
			"fileLimit": s.accounts.EffectiveLimitMB(u),
			"createdAt": u.CreatedAt,
		},
	})
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.activity.Recent(r.Context(), caller(r).UserID, limit)
	if err != nil {
		s.sendAppError(w, r, apperrors.Wrap(apperrors.KindInternal, "could not load activity", err))
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": entries})
}

type fileLimitRequest struct {
	FileLimit int64 `json:"fileLimit"`
}

func (s *Server) handleSetFileLimit(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	var req fileLimitRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendAppError(w, r, err)
		return
	}

	if err := s.accounts.SetFileLimit(r.Context(), id, req.FileLimit); err != nil {
		s.sendAppError(w, r, err)
		return
	}

	s.record(r, activity.TypeSystem, "File limit changed",
		"user "+strconv.FormatInt(id, 10)+" set to "+strconv.FormatInt(req.FileLimit, 10)+" MB")
	s.sendJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	if s.backup == nil {
		s.sendError(w, http.StatusServiceUnavailable, "backups are not configured")
		return
	}

	res, err := s.backup.Run(r.Context())
	if err != nil {
		s.sendAppError(w, r, err)
		return
	}

	s.record(r, activity.TypeSystem, "Backup created", res.Name)
	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"backup":   res,
		"location": res.Location,
	})
}
