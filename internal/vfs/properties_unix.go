//go:build unix && !linux

package vfs

import (
	"io/fs"
	"syscall"
)

func fillOwnership(abs string, fi fs.FileInfo, props *Properties) {
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		props.Owner = uint32(st.Uid)
		props.Group = uint32(st.Gid)
	}
}
