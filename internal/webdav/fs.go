// Package webdav exposes each user's sandbox over WebDAV. Every name the
// WebDAV handler touches is resolved through the same Resolver as the JSON
// API, for the authenticated caller's user namespace.
package webdav

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"golang.org/x/net/webdav"

	"github.com/Shubham6444/host/internal/auth"
	"github.com/Shubham6444/host/internal/metrics"
	"github.com/Shubham6444/host/internal/vfs"
)

var errTooLarge = errors.New("file exceeds upload limit")

// Resolver is the part of vfs.Resolver the filesystem needs.
type Resolver interface {
	Resolve(c vfs.Caller, ns vfs.Namespace, rel string) (vfs.ResolvedPath, error)
}

// LimitFunc returns the caller's per-file upload limit in bytes.
type LimitFunc func(ctx context.Context, userID int64) (int64, error)

// SandboxFS implements webdav.FileSystem on top of the caller's sandbox.
type SandboxFS struct {
	resolver Resolver
	limit    LimitFunc
}

// NewSandboxFS creates the filesystem. limit may be nil for no limit.
func NewSandboxFS(resolver Resolver, limit LimitFunc) *SandboxFS {
	return &SandboxFS{resolver: resolver, limit: limit}
}

func (s *SandboxFS) resolve(ctx context.Context, op, name string) (vfs.ResolvedPath, vfs.Caller, error) {
	claims := auth.GetClaims(ctx)
	if claims == nil {
		return vfs.ResolvedPath{}, vfs.Caller{}, &os.PathError{Op: op, Path: name, Err: os.ErrPermission}
	}
	c := claims.Caller()
	p, err := s.resolver.Resolve(c, vfs.NamespaceUser, name)
	if err != nil {
		return vfs.ResolvedPath{}, c, &os.PathError{Op: op, Path: name, Err: os.ErrPermission}
	}
	// First WebDAV visit before the user ever uploaded anything.
	if err := os.MkdirAll(p.Base, 0755); err != nil {
		return vfs.ResolvedPath{}, c, err
	}
	return p, c, nil
}

func (s *SandboxFS) Mkdir(ctx context.Context, name string, perm os.FileMode) error {
	p, _, err := s.resolve(ctx, "mkdir", name)
	if err != nil {
		return err
	}
	err = os.Mkdir(p.Abs, perm)
	metrics.RecordFileOp("dav_mkdir", err == nil)
	return err
}

func (s *SandboxFS) OpenFile(ctx context.Context, name string, flag int, perm os.FileMode) (webdav.File, error) {
	p, c, err := s.resolve(ctx, "open", name)
	if err != nil {
		return nil, err
	}
	if flag&(os.O_WRONLY|os.O_RDWR) == 0 || s.limit == nil {
		f, err := os.OpenFile(p.Abs, flag, perm)
		if err != nil {
			return nil, err
		}
		return f, nil
	}
	limit, err := s.limit(ctx, c.UserID)
	if err != nil {
		return nil, err
	}
	if flag&os.O_TRUNC != 0 {
		return replaceFile(p.Abs, flag, perm, limit)
	}
	f, err := os.OpenFile(p.Abs, flag, perm)
	if err != nil {
		return nil, err
	}
	return &limitedFile{File: f, remaining: limit}, nil
}

// replaceFile opens a temp file next to abs that takes its place on Close.
// Until then the old content stays intact.
func replaceFile(abs string, flag int, perm os.FileMode, limit int64) (webdav.File, error) {
	mode := perm &^ 0o022
	fi, err := os.Stat(abs)
	switch {
	case err == nil && flag&os.O_EXCL != 0:
		return nil, &os.PathError{Op: "open", Path: abs, Err: os.ErrExist}
	case err == nil && fi.IsDir():
		return nil, &os.PathError{Op: "open", Path: abs, Err: syscall.EISDIR}
	case err == nil:
		mode = fi.Mode().Perm()
	case !errors.Is(err, fs.ErrNotExist) || flag&os.O_CREATE == 0:
		return nil, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(abs), ".dav-upload-*")
	if err != nil {
		return nil, err
	}
	return &limitedFile{File: tmp, target: abs, mode: mode, remaining: limit}, nil
}
func (s *SandboxFS) RemoveAll(ctx context.Context, name string) error {
	p, _, err := s.resolve(ctx, "remove", name)
	if err != nil {
		return err
	}
	if p.IsRoot() {
		return &os.PathError{Op: "remove", Path: name, Err: os.ErrPermission}
	}
	err = os.RemoveAll(p.Abs)
	metrics.RecordFileOp("dav_delete", err == nil)
	return err
}

func (s *SandboxFS) Rename(ctx context.Context, oldName, newName string) error {
	src, _, err := s.resolve(ctx, "rename", oldName)
	if err != nil {
		return err
	}
	dst, _, err := s.resolve(ctx, "rename", newName)
	if err != nil {
		return err
	}
	if src.IsRoot() || dst.IsRoot() {
		return &os.PathError{Op: "rename", Path: oldName, Err: os.ErrPermission}
	}
	err = os.Rename(src.Abs, dst.Abs)
	metrics.RecordFileOp("dav_rename", err == nil)
	return err
}

func (s *SandboxFS) Stat(ctx context.Context, name string) (os.FileInfo, error) {
	p, _, err := s.resolve(ctx, "stat", name)
	if err != nil {
		return nil, err
	}
	return os.Stat(p.Abs)
}

// limitedFile refuses writes past the caller's upload limit. With a
// target set it writes a temp file that is renamed over target on Close,
// or discarded once the limit was hit.
type limitedFile struct {
	*os.File
	target    string
	mode      os.FileMode
	remaining int64
	exceeded  bool
}

func (f *limitedFile) Write(p []byte) (int, error) {
	if int64(len(p)) > f.remaining {
		f.exceeded = true
		return 0, errTooLarge
	}
	n, err := f.File.Write(p)
	f.remaining -= int64(n)
	return n, err
}

// ReadFrom hides (*os.File).ReadFrom so io.Copy goes through Write.
func (f *limitedFile) ReadFrom(r io.Reader) (int64, error) {
	return io.Copy(struct{ io.Writer }{f}, r)
}

func (f *limitedFile) Close() error {
	err := f.File.Close()
	if f.exceeded {
		metrics.RecordQuotaRejection()
	}
	if f.target == "" {
		return err
	}

	tmp := f.File.Name()
	if err == nil && f.exceeded {
		err = errTooLarge
	}
	if err == nil {
		err = os.Chmod(tmp, f.mode)
	}
	if err == nil {
		err = os.Rename(tmp, f.target)
	}
	if err != nil {
		os.Remove(tmp)
	}
	return err
}
