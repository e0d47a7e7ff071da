package vfs

import (
	"io/fs"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// fillOwnership sets uid, gid and, where the filesystem records it, the
// birth time.
func fillOwnership(abs string, fi fs.FileInfo, props *Properties) {
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		props.Owner = st.Uid
		props.Group = st.Gid
	}

	var stx unix.Statx_t
	if err := unix.Statx(unix.AT_FDCWD, abs, 0, unix.STATX_BTIME, &stx); err != nil {
		return
	}
	if stx.Mask&unix.STATX_BTIME != 0 {
		props.Created = time.Unix(stx.Btime.Sec, int64(stx.Btime.Nsec))
	}
}
