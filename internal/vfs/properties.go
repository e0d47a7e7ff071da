package vfs

import (
	"fmt"
	"io/fs"
	"os"
	"time"

	apperrors "github.com/Shubham6444/host/internal/errors"
)

// Properties describes a single file or folder.
type Properties struct {
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	Type        EntryType `json:"type"`
	Size        int64     `json:"size"`
	IsDirectory bool      `json:"isDirectory"`
	Created     time.Time `json:"created"`
	Modified    time.Time `json:"modified"`
	Permissions string    `json:"permissions"`
	Owner       uint32    `json:"owner"`
	Group       uint32    `json:"group"`
}

// PermissionBits is one read/write/execute triplet.
type PermissionBits struct {
	Read    bool `json:"read"`
	Write   bool `json:"write"`
	Execute bool `json:"execute"`
}

// Permissions is a decoded permission mode.
type Permissions struct {
	Octal  string         `json:"octal"`
	Owner  PermissionBits `json:"owner"`
	Group  PermissionBits `json:"group"`
	Others PermissionBits `json:"others"`
}

// OctalMode formats the permission bits of m as e.g. "755".
func OctalMode(m fs.FileMode) string {
	return fmt.Sprintf("%03o", uint32(m.Perm()))
}

// DecomposeMode splits the permission bits of m into owner, group and
// others triplets.
func DecomposeMode(m fs.FileMode) Permissions {
	perm := m.Perm()
	triplet := func(shift uint) PermissionBits {
		return PermissionBits{
			Read:    perm&(4<<shift) != 0,
			Write:   perm&(2<<shift) != 0,
			Execute: perm&(1<<shift) != 0,
		}
	}
	return Permissions{
		Octal:  OctalMode(m),
		Owner:  triplet(6),
		Group:  triplet(3),
		Others: triplet(0),
	}
}

// Stat returns the properties of p.
func (x *Executor) Stat(p ResolvedPath) (*Properties, error) {
	fi, err := os.Stat(p.Abs)
	if err != nil {
		return nil, apperrors.FromOS("stat", p.Abs, err)
	}
	props := &Properties{
		Name:        p.Name(),
		Path:        p.Abs,
		Type:        EntryFile,
		Size:        fi.Size(),
		IsDirectory: fi.IsDir(),
		Created:     fi.ModTime(),
		Modified:    fi.ModTime(),
		Permissions: OctalMode(fi.Mode()),
	}
	if fi.IsDir() {
		props.Type = EntryFolder
	}
	fillOwnership(p.Abs, fi, props)
	return props, nil
}

// Permissions returns the decoded permission bits of p.
func (x *Executor) Permissions(p ResolvedPath) (*Permissions, error) {
	fi, err := os.Stat(p.Abs)
	if err != nil {
		return nil, apperrors.FromOS("stat", p.Abs, err)
	}
	perms := DecomposeMode(fi.Mode())
	return &perms, nil
}
