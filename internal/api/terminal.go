package api

import (
	"net/http"

	"github.com/Shubham6444/host/internal/activity"
	apperrors "github.com/Shubham6444/host/internal/errors"
	"github.com/Shubham6444/host/internal/vfs"
)

type terminalRequest struct {
	Command     string `json:"command"`
	CurrentPath string `json:"currentPath"`
	RootPath    string `json:"rootPath"`
}

func (s *Server) handleTerminal(w http.ResponseWriter, r *http.Request) {
	var req terminalRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendAppError(w, r, err)
		return
	}
	ns, err := vfs.ParseNamespace(req.RootPath)
	if err != nil {
		s.sendAppError(w, r, err)
		return
	}

	res, err := s.terminal.Execute(r.Context(), caller(r), ns, req.CurrentPath, req.Command)
	if err != nil {
		body := map[string]interface{}{
			"success": false,
			"error":   apperrors.Message(err),
		}
		if res != nil {
			body["output"] = res.Output
		}
		if apperrors.Is(err, apperrors.KindCommandBlocked) || apperrors.Is(err, apperrors.KindCommandTimeout) {
			s.record(r, activity.TypeTerminal, "Command rejected", req.Command)
		}
		s.sendJSON(w, statusFor(apperrors.KindOf(err)), body)
		return
	}

	s.record(r, activity.TypeTerminal, "Command executed", req.Command)
	s.sendJSON(w, http.StatusOK, res)
}
