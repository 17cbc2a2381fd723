// Package fs provides the storage backends behind vfs: a read-write backend
// over an afero filesystem and a read-only backend over a git ref.
package fs

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/CageChen/watchfs/internal/vfs"
)

var (
	_ vfs.Backend = (*LocalFS)(nil)
	_ vfs.Trasher = (*LocalFS)(nil)
	_ vfs.Backend = (*GitFS)(nil)
)

// osPath converts a normalized vfs path to the form afero expects.
func osPath(p string) string {
	if p != "/" {
		p = strings.TrimSuffix(p, "/")
	}
	return filepath.FromSlash(p)
}

// slashPath converts an OS path back to vfs form.
func slashPath(p string, isDir bool) string {
	p = filepath.ToSlash(p)
	if isDir && !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

func baseName(path string) string {
	path = strings.TrimSuffix(path, "/")
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

// childPath joins a directory path and a child name.
func childPath(dir, name string) string {
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	return dir + name
}

func checkContext(ctx context.Context) error {
	return ctx.Err()
}
