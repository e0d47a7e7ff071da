package api

import (
	"fmt"
	"net/http"
	"path"

	"github.com/Shubham6444/host/internal/activity"
	"github.com/Shubham6444/host/internal/clipboard"
	"github.com/Shubham6444/host/internal/events"
	"github.com/Shubham6444/host/internal/metrics"
	"github.com/Shubham6444/host/internal/vfs"
)

type clipboardRequest struct {
	Items     []string `json:"items"`
	Operation string   `json:"operation"`
	RootPath  string   `json:"rootPath"`
}

func (s *Server) handleSetClipboard(w http.ResponseWriter, r *http.Request) {
	var req clipboardRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendAppError(w, r, err)
		return
	}
	if err := s.setSelection(r, req.RootPath, req.Items, req.Operation); err != nil {
		s.sendAppError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) setSelection(r *http.Request, rootPath string, items []string, operation string) error {
	ns, err := vfs.ParseNamespace(rootPath)
	if err != nil {
		return err
	}
	op, err := clipboard.ParseOperation(operation)
	if err != nil {
		return err
	}
	return s.clipboard.SetSelection(r.Context(), caller(r), ns, items, op)
}

func (s *Server) handleGetClipboard(w http.ResponseWriter, r *http.Request) {
	cb, err := s.clipboard.Get(r.Context(), caller(r))
	if err != nil {
		s.sendAppError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": cb})
}

type pasteRequest struct {
	Items          []string `json:"items"`
	Operation      string   `json:"operation"`
	TargetPath     string   `json:"targetPath"`
	RootPath       string   `json:"rootPath"`
	SourceRootPath string   `json:"sourceRootPath"`
}

// handlePaste applies the session clipboard into targetPath. Items sent
// with the request replace the clipboard first, so one call can copy.
func (s *Server) handlePaste(w http.ResponseWriter, r *http.Request) {
	var req pasteRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendAppError(w, r, err)
		return
	}

	if len(req.Items) > 0 {
		src := req.SourceRootPath
		if src == "" {
			src = req.RootPath
		}
		if err := s.setSelection(r, src, req.Items, req.Operation); err != nil {
			s.sendAppError(w, r, err)
			return
		}
	}

	ns, err := vfs.ParseNamespace(req.RootPath)
	if err != nil {
		s.sendAppError(w, r, err)
		return
	}
	res, err := s.clipboard.Paste(r.Context(), caller(r), ns, req.TargetPath)
	if err != nil && res == nil {
		s.sendAppError(w, r, err)
		return
	}

	ok := res.Succeeded()
	metrics.RecordFileOp("paste_"+string(res.Operation), ok)
	done := 0
	for _, item := range res.Results {
		if !item.Success {
			continue
		}
		done++
		if p, err := s.resolver.Resolve(caller(r), ns, joinRel(req.TargetPath, path.Base(item.Path))); err == nil {
			s.publishEvent(r, events.EventCreate, p, 0)
		}
	}
	s.record(r, activity.TypeFile, "Items pasted",
		fmt.Sprintf("%s: %d of %d items into %s", res.Operation, done, len(res.Results), joinRel(req.TargetPath, "")))

	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"success":   ok,
		"operation": res.Operation,
		"results":   res.Results,
		"cleared":   res.Cleared,
	})
}
