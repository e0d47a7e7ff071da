//go:build !unix

package vfs

import "io/fs"

func fillOwnership(abs string, fi fs.FileInfo, props *Properties) {}
