package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"go.uber.org/zap"

	"github.com/Shubham6444/host/internal/activity"
	apperrors "github.com/Shubham6444/host/internal/errors"
	"github.com/Shubham6444/host/internal/events"
	"github.com/Shubham6444/host/internal/logging"
	"github.com/Shubham6444/host/internal/upload"
)

// multipartMemory is how much of a multipart body is held in memory
// before spilling to temp files.
const multipartMemory = 32 << 20

// multipartSlack is room for form fields and part headers on top of one
// file at the caller's limit.
const multipartSlack = 1 << 20

// requestCap is the body limit for an upload. It never drops below one
// file at the caller's limit so oversized files reach the per-file check
// and get the quota error.
func requestCap(maxRequest, fileLimit int64) int64 {
	if maxRequest <= 0 || fileLimit <= 0 {
		return maxRequest
	}
	if need := fileLimit + multipartSlack; need > maxRequest {
		return need
	}
	return maxRequest
}

// handleUpload stores multipart files into folderPath. Each file is
// handled on its own; the request fails only when none was stored.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	c := caller(r)
	limit, err := s.accounts.FileLimitBytes(r.Context(), c.UserID)
	if err != nil {
		s.sendAppError(w, r, err)
		return
	}

	if maxBody := requestCap(s.config.MaxRequestBytes, limit); maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.sendError(w, http.StatusRequestEntityTooLarge, "request too large")
			return
		}
		s.sendError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	headers = append(headers, r.MultipartForm.File["files[]"]...)
	if len(headers) == 0 {
		s.sendError(w, http.StatusBadRequest, "no files uploaded")
		return
	}

	dir, err := s.resolve(r, r.FormValue("rootPath"), r.FormValue("folderPath"))
	if err != nil {
		s.sendAppError(w, r, err)
		return
	}

	sources := make([]upload.Source, 0, len(headers))
	for _, fh := range headers {
		fh := fh
		sources = append(sources, upload.Source{
			Filename: fh.Filename,
			Size:     fh.Size,
			Open:     func() (io.ReadCloser, error) { return openPart(fh) },
		})
	}

	results := s.uploads.Ingest(r.Context(), c, dir, sources, limit)

	stored := 0
	var firstErr error
	for _, res := range results {
		if res.Err != nil {
			if firstErr == nil {
				firstErr = res.Err
			}
			continue
		}
		stored++
		if p, err := s.resolve(r, r.FormValue("rootPath"), "/"+res.Path); err == nil {
			s.publishEvent(r, events.EventUpload, p, res.Size)
		}
	}

	logging.WithContext(r.Context()).Info("upload processed",
		zap.String("dir", displayPath(dir)),
		zap.Int("files", len(results)),
		zap.Int("stored", stored))

	if stored == 0 {
		s.sendJSON(w, statusFor(apperrors.KindOf(firstErr)), map[string]interface{}{
			"success": false,
			"error":   apperrors.Message(firstErr),
			"files":   results,
		})
		return
	}

	s.record(r, activity.TypeUpload, "Files uploaded",
		fmt.Sprintf("%d of %d files to %s", stored, len(results), displayPath(dir)))
	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"files":   results,
	})
}

func openPart(fh *multipart.FileHeader) (io.ReadCloser, error) {
	return fh.Open()
}
