package vfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/otiai10/copy"

	apperrors "github.com/Shubham6444/host/internal/errors"
	"github.com/Shubham6444/host/internal/procexec"
)

// Executor performs mutating operations on resolved paths. Archiving is
// delegated to an external zip binary through the Runner.
type Executor struct {
	runner          procexec.Runner
	compressTimeout time.Duration
}

// NewExecutor creates an executor. A zero timeout means two minutes.
func NewExecutor(runner procexec.Runner, compressTimeout time.Duration) *Executor {
	if compressTimeout <= 0 {
		compressTimeout = 2 * time.Minute
	}
	return &Executor{runner: runner, compressTimeout: compressTimeout}
}

// ValidateName rejects names that would address anything but a direct child.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." {
		return apperrors.New(apperrors.KindInvalidName, "invalid name")
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return apperrors.New(apperrors.KindInvalidName, "name must not contain path separators")
	}
	return nil
}

// Exists reports whether anything (including a dangling link) is at p.
func Exists(p ResolvedPath) bool {
	_, err := os.Lstat(p.Abs)
	return err == nil
}

// CreateFolder creates p and any missing parents.
func (x *Executor) CreateFolder(p ResolvedPath) error {
	if Exists(p) {
		return apperrors.New(apperrors.KindAlreadyExists, "folder already exists")
	}
	if err := os.MkdirAll(p.Abs, 0755); err != nil {
		return apperrors.FromOS("mkdir", p.Abs, err)
	}
	return nil
}

// CreateFile creates a new file holding content. It never overwrites.
func (x *Executor) CreateFile(p ResolvedPath, content []byte) error {
	if p.IsRoot() {
		return apperrors.New(apperrors.KindInvalidPath, "cannot create a file at the root")
	}
	if err := os.MkdirAll(filepath.Dir(p.Abs), 0755); err != nil {
		return apperrors.FromOS("mkdir", filepath.Dir(p.Abs), err)
	}
	f, err := os.OpenFile(p.Abs, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return apperrors.New(apperrors.KindAlreadyExists, "file already exists")
		}
		return apperrors.FromOS("create", p.Abs, err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return apperrors.FromOS("write", p.Abs, err)
	}
	if err := f.Close(); err != nil {
		return apperrors.FromOS("close", p.Abs, err)
	}
	return nil
}

// ReadFile returns the content of a regular file no larger than maxBytes.
func (x *Executor) ReadFile(p ResolvedPath, maxBytes int64) ([]byte, error) {
	fi, err := os.Stat(p.Abs)
	if err != nil {
		return nil, apperrors.FromOS("stat", p.Abs, err)
	}
	if fi.IsDir() {
		return nil, apperrors.New(apperrors.KindInvalidPath, "path is a folder")
	}
	if maxBytes > 0 && fi.Size() > maxBytes {
		return nil, apperrors.Newf(apperrors.KindInvalidArgument,
			"file is too large to edit (limit %dMB)", maxBytes/(1024*1024))
	}
	data, err := os.ReadFile(p.Abs)
	if err != nil {
		return nil, apperrors.FromOS("read", p.Abs, err)
	}
	return data, nil
}

// WriteFile replaces the content of p atomically, creating it if needed.
func (x *Executor) WriteFile(p ResolvedPath, content []byte) error {
	if fi, err := os.Stat(p.Abs); err == nil && fi.IsDir() {
		return apperrors.New(apperrors.KindInvalidPath, "path is a folder")
	}
	_, err := WriteStream(p, bytes.NewReader(content))
	return err
}

// WriteStream copies r into p through a temp file in the same directory
// and renames it into place. On any error the temp file is removed, so a
// failed write leaves no partial content behind.
func WriteStream(p ResolvedPath, r io.Reader) (int64, error) {
	dir := filepath.Dir(p.Abs)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, apperrors.FromOS("mkdir", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".panel-*.tmp")
	if err != nil {
		return 0, apperrors.FromOS("create temp", dir, err)
	}
	tmpName := tmp.Name()

	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return n, apperrors.FromOS("write", p.Abs, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return n, apperrors.FromOS("close temp", p.Abs, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return n, apperrors.FromOS("chmod", p.Abs, err)
	}
	if err := os.Rename(tmpName, p.Abs); err != nil {
		os.Remove(tmpName)
		return n, apperrors.FromOS("rename temp", p.Abs, err)
	}
	return n, nil
}

// Rename gives p a new name in the same directory. dst must be the
// resolved sibling path for newName.
func (x *Executor) Rename(p ResolvedPath, newName string, dst ResolvedPath) error {
	if err := ValidateName(newName); err != nil {
		return err
	}
	if p.IsRoot() {
		return apperrors.New(apperrors.KindInvalidPath, "cannot rename the root folder")
	}
	if filepath.Dir(dst.Abs) != filepath.Dir(p.Abs) {
		return apperrors.New(apperrors.KindInvalidName, "rename must stay in the same folder")
	}
	if _, err := os.Lstat(p.Abs); err != nil {
		return apperrors.FromOS("rename", p.Abs, err)
	}
	if Exists(dst) {
		return apperrors.New(apperrors.KindAlreadyExists, "an item with that name already exists")
	}
	if err := os.Rename(p.Abs, dst.Abs); err != nil {
		return apperrors.FromOS("rename", p.Abs, err)
	}
	return nil
}

// Delete removes a file or a folder tree.
func (x *Executor) Delete(p ResolvedPath) error {
	if p.IsRoot() {
		return apperrors.New(apperrors.KindInvalidPath, "cannot delete the root folder")
	}
	if _, err := os.Lstat(p.Abs); err != nil {
		return apperrors.FromOS("delete", p.Abs, err)
	}
	if err := os.RemoveAll(p.Abs); err != nil {
		return apperrors.FromOS("delete", p.Abs, err)
	}
	return nil
}

// ItemResult reports the outcome for one item of a batch.
type ItemResult struct {
	Path    string `json:"path"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// DeleteMany deletes every path it is given, continuing past failures.
// An item that is already gone counts as deleted.
func (x *Executor) DeleteMany(paths []ResolvedPath) []ItemResult {
	results := make([]ItemResult, 0, len(paths))
	for _, p := range paths {
		err := x.Delete(p)
		if apperrors.Is(err, apperrors.KindNotFound) {
			err = nil
		}
		results = append(results, itemResult(p.Rel, err))
	}
	return results
}

func itemResult(rel string, err error) ItemResult {
	if err != nil {
		return ItemResult{Path: rel, Error: apperrors.Message(err)}
	}
	return ItemResult{Path: rel, Success: true}
}

// Copy copies src (file or tree) into the directory dstDir under the same
// name. Symlinks inside a copied tree are skipped; a link that is itself
// the item is recreated when its target stays inside the root.
func (x *Executor) Copy(ctx context.Context, src, dstDir ResolvedPath) (string, error) {
	dst, err := x.prepareTransfer(src, dstDir)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := copyItem(src, dst, "copy"); err != nil {
		return "", err
	}
	return dst, nil
}

// Move moves src into dstDir. A cross-device move falls back to copy
// followed by removal of the source.
func (x *Executor) Move(ctx context.Context, src, dstDir ResolvedPath) (string, error) {
	if src.IsRoot() {
		return "", apperrors.New(apperrors.KindInvalidPath, "cannot move the root folder")
	}
	dst, err := x.prepareTransfer(src, dstDir)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	err = os.Rename(src.Abs, dst)
	if err == nil {
		return dst, nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return "", apperrors.FromOS("move", src.Abs, err)
	}
	if err := copyItem(src, dst, "move"); err != nil {
		return "", err
	}
	if err := os.RemoveAll(src.Abs); err != nil {
		return "", apperrors.FromOS("move", src.Abs, err)
	}
	return dst, nil
}

// copyItem copies src to dst. A failed copy leaves nothing at dst.
func copyItem(src ResolvedPath, dst, op string) error {
	fi, err := os.Lstat(src.Abs)
	if err != nil {
		return apperrors.FromOS(op, src.Abs, err)
	}
	if fi.Mode()&fs.ModeSymlink != 0 {
		return copyLink(src, dst, op)
	}
	if err := copy.Copy(src.Abs, dst, copyOptions()); err != nil {
		os.RemoveAll(dst)
		return apperrors.FromOS(op, src.Abs, err)
	}
	return nil
}

// copyLink recreates the link at src as dst, pointing at the same target
// relative to its new location. Targets outside the root are refused.
func copyLink(src ResolvedPath, dst, op string) error {
	target, err := filepath.EvalSymlinks(src.Abs)
	if err != nil {
		return apperrors.New(apperrors.KindInvalidPath, "cannot copy a broken link")
	}
	realBase, err := filepath.EvalSymlinks(src.Base)
	if err != nil {
		return apperrors.FromOS(op, src.Base, err)
	}
	if _, ok := within(realBase, target); !ok {
		return apperrors.New(apperrors.KindInvalidPath, "cannot copy a link that leaves its root")
	}
	realDir, err := filepath.EvalSymlinks(filepath.Dir(dst))
	if err != nil {
		return apperrors.FromOS(op, filepath.Dir(dst), err)
	}
	rel, err := filepath.Rel(realDir, target)
	if err != nil {
		return apperrors.New(apperrors.KindInvalidPath, "cannot copy a link")
	}
	if err := os.Symlink(rel, dst); err != nil {
		return apperrors.FromOS(op, dst, err)
	}
	return nil
}

// prepareTransfer validates a copy or move and returns the target path.
func (x *Executor) prepareTransfer(src, dstDir ResolvedPath) (string, error) {
	srcInfo, err := os.Lstat(src.Abs)
	if err != nil {
		return "", apperrors.FromOS("stat", src.Abs, err)
	}
	fi, err := os.Stat(dstDir.Abs)
	if err != nil {
		return "", apperrors.FromOS("stat", dstDir.Abs, err)
	}
	if !fi.IsDir() {
		return "", apperrors.New(apperrors.KindInvalidPath, "destination is not a folder")
	}
	if _, inside := within(src.Abs, dstDir.Abs); inside {
		return "", apperrors.New(apperrors.KindInvalidPath, "cannot copy a folder into itself")
	}
	if srcInfo.IsDir() {
		// The destination may reach into the source through a link.
		realSrc, err := filepath.EvalSymlinks(src.Abs)
		if err != nil {
			return "", apperrors.FromOS("stat", src.Abs, err)
		}
		realDst, err := filepath.EvalSymlinks(dstDir.Abs)
		if err != nil {
			return "", apperrors.FromOS("stat", dstDir.Abs, err)
		}
		if _, inside := within(realSrc, realDst); inside {
			return "", apperrors.New(apperrors.KindInvalidPath, "cannot copy a folder into itself")
		}
	}

	name := filepath.Base(src.Abs)
	if src.IsRoot() {
		name = filepath.Base(src.Base)
	}
	dst := filepath.Join(dstDir.Abs, name)
	if _, err := os.Lstat(dst); err == nil {
		return "", apperrors.Newf(apperrors.KindAlreadyExists, "%s already exists in the destination", name)
	}
	return dst, nil
}

func copyOptions() copy.Options {
	return copy.Options{
		OnSymlink:     func(string) copy.SymlinkAction { return copy.Skip },
		PreserveTimes: true,
	}
}

// Compress writes <name>.zip next to p using the external zip tool.
// It returns the archive name.
func (x *Executor) Compress(ctx context.Context, p ResolvedPath) (string, error) {
	if p.IsRoot() {
		return "", apperrors.New(apperrors.KindInvalidPath, "cannot compress the root folder")
	}
	if _, err := os.Lstat(p.Abs); err != nil {
		return "", apperrors.FromOS("compress", p.Abs, err)
	}

	name := filepath.Base(p.Abs)
	archive := name + ".zip"
	parent := filepath.Dir(p.Abs)
	if _, err := os.Lstat(filepath.Join(parent, archive)); err == nil {
		return "", apperrors.Newf(apperrors.KindAlreadyExists, "%s already exists", archive)
	}

	// The ./ prefix keeps names starting with a dash from reading as flags.
	out, err := x.runner.Run(ctx, procexec.Command{
		Argv:      []string{"zip", "-r", "-q", "./" + archive, "./" + name},
		Dir:       parent,
		Timeout:   x.compressTimeout,
		MaxOutput: 64 * 1024,
	})
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindCompressionFailed, "compression failed", err)
	}
	if !out.Success() {
		// zip may leave a partial archive behind.
		os.Remove(filepath.Join(parent, archive))
		msg := strings.TrimSpace(out.Combined())
		if out.TimedOut {
			msg = "compression timed out"
		}
		return "", &apperrors.Error{
			Kind:    apperrors.KindCompressionFailed,
			Op:      "compress",
			Path:    p.Abs,
			Message: "compression failed",
			Err:     fmt.Errorf("zip exit %d: %s", out.ExitCode, msg),
		}
	}
	if _, err := os.Lstat(filepath.Join(parent, archive)); err != nil {
		return "", apperrors.Wrap(apperrors.KindCompressionFailed, "compression produced no archive", err)
	}
	return archive, nil
}
