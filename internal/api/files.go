package api

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path"

	"go.uber.org/zap"

	"github.com/Shubham6444/host/internal/activity"
	apperrors "github.com/Shubham6444/host/internal/errors"
	"github.com/Shubham6444/host/internal/events"
	"github.com/Shubham6444/host/internal/logging"
	"github.com/Shubham6444/host/internal/metrics"
	"github.com/Shubham6444/host/internal/vfs"
)

// maxEditorBytes is the largest file the editor will load.
const maxEditorBytes = 5 << 20

// ─── Browse ─────────────────────────────────────────────────────────────────

func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p, err := s.resolve(r, q.Get("rootPath"), q.Get("path"))
	if err != nil {
		s.sendAppError(w, r, err)
		return
	}

	files, folders, err := vfs.List(p, vfs.ListOptions{
		SortBy: q.Get("sortBy"),
		Order:  q.Get("sortOrder"),
		Search: q.Get("search"),
	})
	if err != nil {
		s.sendAppError(w, r, err)
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"files":       files,
		"folders":     folders,
		"currentPath": displayPath(p),
		"rootPath":    string(p.Namespace),
	})
}

// ─── Create ─────────────────────────────────────────────────────────────────

type createFolderRequest struct {
	FolderName  string `json:"folderName"`
	CurrentPath string `json:"currentPath"`
	RootPath    string `json:"rootPath"`
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var req createFolderRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendAppError(w, r, err)
		return
	}
	if err := vfs.ValidateName(req.FolderName); err != nil {
		s.sendAppError(w, r, err)
		return
	}
	p, err := s.resolve(r, req.RootPath, joinRel(req.CurrentPath, req.FolderName))
	if err != nil {
		s.sendAppError(w, r, err)
		return
	}

	err = s.files.CreateFolder(p)
	metrics.RecordFileOp("mkdir", err == nil)
	if err != nil {
		s.sendAppError(w, r, err)
		return
	}

	s.record(r, activity.TypeFile, "Folder created", displayPath(p))
	s.publishEvent(r, events.EventCreate, p, 0)
	s.sendJSON(w, http.StatusOK, map[string]interface{}{"success": true, "path": displayPath(p)})
}

type createFileRequest struct {
	FileName    string `json:"fileName"`
	CurrentPath string `json:"currentPath"`
	Content     string `json:"content"`
	Template    string `json:"template"`
	RootPath    string `json:"rootPath"`
}

func (s *Server) handleCreateFile(w http.ResponseWriter, r *http.Request) {
	var req createFileRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendAppError(w, r, err)
		return
	}
	if err := vfs.ValidateName(req.FileName); err != nil {
		s.sendAppError(w, r, err)
		return
	}
	content := req.Content
	if content == "" {
		body, err := templateBody(req.Template)
		if err != nil {
			s.sendAppError(w, r, err)
			return
		}
		content = body
	}
	p, err := s.resolve(r, req.RootPath, joinRel(req.CurrentPath, req.FileName))
	if err != nil {
		s.sendAppError(w, r, err)
		return
	}

	err = s.files.CreateFile(p, []byte(content))
	metrics.RecordFileOp("create", err == nil)
	if err != nil {
		s.sendAppError(w, r, err)
		return
	}

	s.record(r, activity.TypeFile, "File created", displayPath(p))
	s.publishEvent(r, events.EventCreate, p, int64(len(content)))
	s.sendJSON(w, http.StatusOK, map[string]interface{}{"success": true, "path": displayPath(p)})
}

// ─── Editor ─────────────────────────────────────────────────────────────────

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p, err := s.resolve(r, q.Get("rootPath"), q.Get("path"))
	if err != nil {
		s.sendAppError(w, r, err)
		return
	}

	data, err := s.files.ReadFile(p, maxEditorBytes)
	if err != nil {
		s.sendAppError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

type saveRequest struct {
	FilePath string `json:"filePath"`
	Content  string `json:"content"`
	RootPath string `json:"rootPath"`
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendAppError(w, r, err)
		return
	}
	p, err := s.resolve(r, req.RootPath, req.FilePath)
	if err != nil {
		s.sendAppError(w, r, err)
		return
	}

	err = s.files.WriteFile(p, []byte(req.Content))
	metrics.RecordFileOp("save", err == nil)
	if err != nil {
		s.sendAppError(w, r, err)
		return
	}

	s.record(r, activity.TypeFile, "File saved", displayPath(p))
	s.publishEvent(r, events.EventModify, p, int64(len(req.Content)))
	s.sendJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// ─── Rename / Delete ────────────────────────────────────────────────────────

type renameRequest struct {
	OldPath  string `json:"oldPath"`
	NewName  string `json:"newName"`
	RootPath string `json:"rootPath"`
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendAppError(w, r, err)
		return
	}
	if err := vfs.ValidateName(req.NewName); err != nil {
		s.sendAppError(w, r, err)
		return
	}
	src, err := s.resolve(r, req.RootPath, req.OldPath)
	if err != nil {
		s.sendAppError(w, r, err)
		return
	}
	if src.IsRoot() {
		s.sendAppError(w, r, apperrors.New(apperrors.KindInvalidPath, "cannot rename the root folder"))
		return
	}
	dst, err := s.resolve(r, req.RootPath, joinRel(path.Dir("/"+src.Rel), req.NewName))
	if err != nil {
		s.sendAppError(w, r, err)
		return
	}

	err = s.files.Rename(src, req.NewName, dst)
	metrics.RecordFileOp("rename", err == nil)
	if err != nil {
		s.sendAppError(w, r, err)
		return
	}

	s.record(r, activity.TypeFile, "Item renamed", fmt.Sprintf("%s -> %s", displayPath(src), displayPath(dst)))
	s.publishEvent(r, events.EventRename, dst, 0)
	s.sendJSON(w, http.StatusOK, map[string]interface{}{"success": true, "path": displayPath(dst)})
}

type deleteRequest struct {
	ItemPath string `json:"itemPath"`
	RootPath string `json:"rootPath"`
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendAppError(w, r, err)
		return
	}
	p, err := s.resolve(r, req.RootPath, req.ItemPath)
	if err != nil {
		s.sendAppError(w, r, err)
		return
	}

	err = s.files.Delete(p)
	metrics.RecordFileOp("delete", err == nil)
	if err != nil {
		s.sendAppError(w, r, err)
		return
	}

	s.record(r, activity.TypeFile, "Item deleted", displayPath(p))
	s.publishEvent(r, events.EventDelete, p, 0)
	s.sendJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

type deleteManyRequest struct {
	ItemPaths []string `json:"itemPaths"`
	RootPath  string   `json:"rootPath"`
}

// handleDeleteMultiple always answers 200 with per-item results; success
// is true only when every item was removed.
func (s *Server) handleDeleteMultiple(w http.ResponseWriter, r *http.Request) {
	var req deleteManyRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendAppError(w, r, err)
		return
	}
	if len(req.ItemPaths) == 0 {
		s.sendError(w, http.StatusBadRequest, "no items given")
		return
	}
	ns, err := vfs.ParseNamespace(req.RootPath)
	if err != nil {
		s.sendAppError(w, r, err)
		return
	}

	c := caller(r)
	results := make([]vfs.ItemResult, len(req.ItemPaths))
	var resolved []vfs.ResolvedPath
	var slots []int
	for i, item := range req.ItemPaths {
		p, err := s.resolver.Resolve(c, ns, item)
		if err != nil {
			results[i] = vfs.ItemResult{Path: item, Error: apperrors.Message(err)}
			continue
		}
		resolved = append(resolved, p)
		slots = append(slots, i)
	}
	for j, res := range s.files.DeleteMany(resolved) {
		results[slots[j]] = res
	}

	allOK := true
	deleted := 0
	for i, res := range results {
		if !res.Success {
			allOK = false
			continue
		}
		deleted++
		if j := indexOf(slots, i); j >= 0 {
			s.publishEvent(r, events.EventDelete, resolved[j], 0)
		}
	}
	metrics.RecordFileOp("delete_many", allOK)
	s.record(r, activity.TypeFile, "Items deleted", fmt.Sprintf("%d of %d items", deleted, len(results)))

	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"success": allOK,
		"results": results,
	})
}

func indexOf(xs []int, v int) int {
	for i, x := range xs {
		if x == v {
			return i
		}
	}
	return -1
}

// ─── Compress ───────────────────────────────────────────────────────────────

type compressRequest struct {
	ItemPath string `json:"itemPath"`
	RootPath string `json:"rootPath"`
}

func (s *Server) handleCompress(w http.ResponseWriter, r *http.Request) {
	var req compressRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendAppError(w, r, err)
		return
	}
	p, err := s.resolve(r, req.RootPath, req.ItemPath)
	if err != nil {
		s.sendAppError(w, r, err)
		return
	}

	archive, err := s.files.Compress(r.Context(), p)
	metrics.RecordFileOp("compress", err == nil)
	if err != nil {
		s.sendAppError(w, r, err)
		return
	}

	if ap, err := s.resolve(r, req.RootPath, joinRel(path.Dir("/"+p.Rel), archive)); err == nil {
		s.publishEvent(r, events.EventArchive, ap, 0)
	}
	s.record(r, activity.TypeFile, "Archive created", archive)
	s.sendJSON(w, http.StatusOK, map[string]interface{}{"success": true, "archive": archive})
}

// ─── Inspect ────────────────────────────────────────────────────────────────

func (s *Server) handleProperties(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p, err := s.resolve(r, q.Get("rootPath"), q.Get("path"))
	if err != nil {
		s.sendAppError(w, r, err)
		return
	}
	props, err := s.files.Stat(p)
	if err != nil {
		s.sendAppError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": props})
}

func (s *Server) handlePermissions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p, err := s.resolve(r, q.Get("rootPath"), q.Get("path"))
	if err != nil {
		s.sendAppError(w, r, err)
		return
	}
	perms, err := s.files.Permissions(p)
	if err != nil {
		s.sendAppError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": perms})
}

// ─── Download ───────────────────────────────────────────────────────────────

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p, err := s.resolve(r, q.Get("rootPath"), q.Get("path"))
	if err != nil {
		s.sendAppError(w, r, err)
		return
	}

	f, err := os.Open(p.Abs)
	if err != nil {
		s.sendAppError(w, r, apperrors.FromOS("download", p.Abs, err))
		return
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		s.sendAppError(w, r, apperrors.FromOS("download", p.Abs, err))
		return
	}
	if fi.IsDir() {
		s.sendAppError(w, r, apperrors.New(apperrors.KindInvalidPath, "cannot download a folder"))
		return
	}

	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": fi.Name()}))
	http.ServeContent(w, r, fi.Name(), fi.ModTime(), f)
	metrics.RecordDownload(fi.Size())

	logging.WithContext(r.Context()).Debug("file downloaded",
		zap.String("path", displayPath(p)),
		zap.Int64("size", fi.Size()))
}
