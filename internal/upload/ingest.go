// Package upload stores browser uploads in a resolved directory, enforcing
// the caller's per-file size limit.
package upload

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	apperrors "github.com/Shubham6444/host/internal/errors"
	"github.com/Shubham6444/host/internal/logging"
	"github.com/Shubham6444/host/internal/metrics"
	"github.com/Shubham6444/host/internal/vfs"
)

// Source is one incoming file. Size is the declared length, -1 if unknown.
type Source struct {
	Filename string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

// Result reports what happened to one source.
type Result struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Path     string `json:"path,omitempty"`
	Error    string `json:"error,omitempty"`

	Err error `json:"-"`
}

// Resolver is the part of vfs.Resolver the ingestor needs.
type Resolver interface {
	Resolve(c vfs.Caller, ns vfs.Namespace, rel string) (vfs.ResolvedPath, error)
}

// Ingestor writes uploads through the path resolver.
type Ingestor struct {
	resolver Resolver
}

// NewIngestor creates an ingestor.
func NewIngestor(resolver Resolver) *Ingestor {
	return &Ingestor{resolver: resolver}
}

var errTooLarge = errors.New("upload exceeds limit")

// SanitizeFilename replaces characters that are unsafe in file names with
// an underscore. The result is what gets stored.
func SanitizeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
			return '_'
		}
		if r < 0x20 || r == 0x7f {
			return '_'
		}
		return r
	}, name)
}

// Ingest stores every source in dir, each independently. A file larger
// than limitBytes is rejected with QuotaExceeded and leaves nothing on
// disk; the other files are unaffected. The destination directory is
// created on demand.
func (in *Ingestor) Ingest(ctx context.Context, c vfs.Caller, dir vfs.ResolvedPath, sources []Source, limitBytes int64) []Result {
	results := make([]Result, 0, len(sources))
	dirReady := false

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			results = append(results, failed(src, err))
			continue
		}

		name := SanitizeFilename(src.Filename)
		if err := vfs.ValidateName(name); err != nil {
			results = append(results, failed(src, err))
			continue
		}

		if limitBytes > 0 && src.Size > limitBytes {
			metrics.RecordQuotaRejection()
			results = append(results, failed(src, quotaError(src.Filename, limitBytes)))
			continue
		}

		target, err := in.resolver.Resolve(c, dir.Namespace, joinRel(dir.Rel, name))
		if err != nil {
			results = append(results, failed(src, err))
			continue
		}

		if !dirReady {
			if err := os.MkdirAll(dir.Abs, 0755); err != nil {
				results = append(results, failed(src, apperrors.FromOS("mkdir", dir.Abs, err)))
				continue
			}
			dirReady = true
		}

		n, err := in.store(src, target, limitBytes)
		if errors.Is(err, errTooLarge) {
			metrics.RecordQuotaRejection()
			err = quotaError(src.Filename, limitBytes)
		}
		if err != nil {
			logging.WithContext(ctx).Warn("upload rejected",
				logging.String("file", src.Filename), logging.Err(err))
			metrics.RecordUpload("error", 0)
			results = append(results, failed(src, err))
			continue
		}

		metrics.RecordUpload("success", n)
		results = append(results, Result{Filename: name, Size: n, Path: target.Rel})
	}
	return results
}

func (in *Ingestor) store(src Source, target vfs.ResolvedPath, limitBytes int64) (int64, error) {
	rc, err := src.Open()
	if err != nil {
		return 0, apperrors.Wrap(apperrors.KindInternal, "could not read upload", err)
	}
	defer rc.Close()

	var r io.Reader = rc
	if limitBytes > 0 {
		r = &limitedReader{r: rc, remaining: limitBytes}
	}
	return vfs.WriteStream(target, r)
}

// limitedReader fails with errTooLarge once more than the allowed number
// of bytes has been read, so the temp file is discarded.
type limitedReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		return 0, errTooLarge
	}
	// Ask for one byte past the limit to detect overflow.
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n, errTooLarge
	}
	return n, err
}

func quotaError(filename string, limitBytes int64) error {
	return apperrors.Newf(apperrors.KindQuotaExceeded,
		"File %s exceeds the %dMB limit", filename, limitBytes/(1024*1024))
}

func failed(src Source, err error) Result {
	return Result{Filename: src.Filename, Size: src.Size, Error: apperrors.Message(err), Err: err}
}

func joinRel(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}
