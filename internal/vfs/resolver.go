// Package vfs maps caller-relative paths onto the host filesystem and
// performs the file manager operations on the resulting paths.
//
// Every operation takes a ResolvedPath, which can only be obtained from
// Resolver.Resolve. The resolver is the single place where namespace
// access and sandbox confinement are decided.
package vfs

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	apperrors "github.com/Shubham6444/host/internal/errors"
)

// Namespace names a root the caller can browse from.
type Namespace string

const (
	NamespaceUser   Namespace = "user"
	NamespaceSystem Namespace = "system"
	NamespaceHome   Namespace = "home"
	NamespaceVar    Namespace = "var"
	NamespaceEtc    Namespace = "etc"
	NamespaceTmp    Namespace = "tmp"
)

// Role is the caller's privilege level.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Caller identifies who is asking. SessionID keys per-session state
// such as the clipboard.
type Caller struct {
	UserID    int64
	Username  string
	Role      Role
	SessionID string
}

// IsAdmin reports whether the caller may use host namespaces.
func (c Caller) IsAdmin() bool { return c.Role == RoleAdmin }

// DefaultHostRoots maps the admin namespaces to host directories.
var DefaultHostRoots = map[Namespace]string{
	NamespaceSystem: "/",
	NamespaceHome:   "/home",
	NamespaceVar:    "/var",
	NamespaceEtc:    "/etc",
	NamespaceTmp:    "/tmp",
}

var displayNames = map[Namespace]string{
	NamespaceUser:   "My Files",
	NamespaceSystem: "System Root",
	NamespaceHome:   "Home Directory",
	NamespaceVar:    "Var Directory",
	NamespaceEtc:    "Config Files",
	NamespaceTmp:    "Temp Files",
}

// DisplayName is the label shown for a namespace root.
func (n Namespace) DisplayName() string {
	if d, ok := displayNames[n]; ok {
		return d
	}
	return string(n)
}

// ParseNamespace accepts the wire form of a namespace. Empty means user.
func ParseNamespace(s string) (Namespace, error) {
	if s == "" {
		return NamespaceUser, nil
	}
	ns := Namespace(strings.ToLower(s))
	if _, ok := displayNames[ns]; !ok {
		return "", apperrors.Newf(apperrors.KindInvalidPath, "unknown root %q", s)
	}
	return ns, nil
}

// ResolvedPath is a validated location. Abs is the host path, Rel the
// slash-separated path below Base ("" for the namespace root).
type ResolvedPath struct {
	Abs       string
	Namespace Namespace
	Rel       string
	Base      string
}

// IsRoot reports whether p is the namespace root itself.
func (p ResolvedPath) IsRoot() bool { return p.Rel == "" }

// Name is the final path element, or the namespace label for the root.
func (p ResolvedPath) Name() string {
	if p.IsRoot() {
		return p.Namespace.DisplayName()
	}
	return path.Base(p.Rel)
}

// Resolver turns (caller, namespace, relative path) into a ResolvedPath.
// It performs read-only filesystem access and is safe for concurrent use.
type Resolver struct {
	uploadsRoot string
	hostRoots   map[Namespace]string
}

// NewResolver creates a resolver. hostRoots may be nil to use
// DefaultHostRoots.
func NewResolver(uploadsRoot string, hostRoots map[Namespace]string) *Resolver {
	if hostRoots == nil {
		hostRoots = DefaultHostRoots
	}
	roots := make(map[Namespace]string, len(hostRoots))
	for ns, dir := range hostRoots {
		roots[ns] = filepath.Clean(dir)
	}
	return &Resolver{uploadsRoot: filepath.Clean(uploadsRoot), hostRoots: roots}
}

// SandboxRoot is the directory a user's files live in.
func (r *Resolver) SandboxRoot(userID int64) string {
	return filepath.Join(r.uploadsRoot, strconv.FormatInt(userID, 10))
}

// Resolve validates rel under namespace ns for caller c.
//
// Non-admin callers get Forbidden for any namespace but user. The joined
// path must stay inside the namespace base; for the user sandbox the check
// is repeated after following symlinks.
func (r *Resolver) Resolve(c Caller, ns Namespace, rel string) (ResolvedPath, error) {
	if ns == "" {
		ns = NamespaceUser
	}
	if _, ok := displayNames[ns]; !ok {
		return ResolvedPath{}, apperrors.Newf(apperrors.KindInvalidPath, "unknown root %q", ns)
	}
	if ns != NamespaceUser && !c.IsAdmin() {
		return ResolvedPath{}, apperrors.New(apperrors.KindForbidden, "access denied to this root")
	}
	if strings.ContainsRune(rel, 0) {
		return ResolvedPath{}, apperrors.New(apperrors.KindInvalidPath, "invalid path")
	}

	var base string
	if ns == NamespaceUser {
		if c.UserID <= 0 {
			return ResolvedPath{}, apperrors.New(apperrors.KindForbidden, "no user sandbox")
		}
		base = r.SandboxRoot(c.UserID)
	} else {
		var ok bool
		base, ok = r.hostRoots[ns]
		if !ok {
			return ResolvedPath{}, apperrors.Newf(apperrors.KindInvalidPath, "root %q is not configured", ns)
		}
	}

	// Backslashes are separators for Windows clients.
	rel = strings.ReplaceAll(rel, `\`, "/")
	abs := filepath.Join(base, filepath.FromSlash(rel))
	relToBase, ok := within(base, abs)
	if !ok {
		return ResolvedPath{}, apperrors.New(apperrors.KindInvalidPath, "path escapes its root")
	}

	if ns == NamespaceUser {
		if err := checkSymlinkEscape(base, abs); err != nil {
			return ResolvedPath{}, err
		}
	}

	return ResolvedPath{Abs: abs, Namespace: ns, Rel: relToBase, Base: base}, nil
}

// within reports whether p lies inside root (or is root) and returns the
// slash-separated path of p relative to root.
func within(root, p string) (string, bool) {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return "", false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", false
	}
	if rel == "." {
		return "", true
	}
	return filepath.ToSlash(rel), true
}

// checkSymlinkEscape resolves the deepest existing ancestor of abs and
// verifies it still lies inside base. A dangling symlink on the way is
// rejected because writing through it would land outside the check.
func checkSymlinkEscape(base, abs string) error {
	realBase, err := filepath.EvalSymlinks(base)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Sandbox not created yet: nothing below it can be a link.
			return nil
		}
		return apperrors.FromOS("resolve", base, err)
	}

	cur := abs
	for {
		real, err := filepath.EvalSymlinks(cur)
		if err == nil {
			if _, ok := within(realBase, real); !ok {
				return apperrors.New(apperrors.KindInvalidPath, "path escapes its root")
			}
			return nil
		}
		if fi, lerr := os.Lstat(cur); lerr == nil && fi.Mode()&fs.ModeSymlink != 0 {
			return apperrors.New(apperrors.KindInvalidPath, "path escapes its root")
		}
		if cur == base {
			return nil
		}
		cur = filepath.Dir(cur)
	}
}
