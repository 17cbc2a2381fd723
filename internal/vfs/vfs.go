// Package vfs keeps a single, coherent, cached view of a file tree on top of a
// pluggable I/O backend and a pluggable change watcher.
//
// The FileSystem owns a flat index of File and Directory entries keyed by
// normalized path, the set of watched roots, and the bookkeeping that keeps
// changes made through this package from interleaving with changes reported
// by the watcher.
package vfs

import (
	"context"
	"io/fs"
)

// Capabilities describes optional backend and watcher behavior.
type Capabilities struct {
	// RecursiveWatch is set when one WatchPath call on a directory covers
	// its whole subtree.
	RecursiveWatch bool

	// NormalizeUNCPaths keeps a leading "//" during normalization.
	NormalizeUNCPaths bool
}

// Backend performs the physical I/O. Paths are normalized: directory paths
// end with "/".
type Backend interface {
	Capabilities() Capabilities

	Stat(ctx context.Context, path string) (Stats, error)
	Exists(ctx context.Context, path string) (bool, error)
	ReadDir(ctx context.Context, path string) ([]DirEntry, error)
	Mkdir(ctx context.Context, path string, perm fs.FileMode) (Stats, error)
	Rename(ctx context.Context, oldPath, newPath string) error
	ReadFile(ctx context.Context, path string, opts ReadOptions) ([]byte, Stats, error)

	// WriteFile writes data and reports whether the file was created. When
	// opts.ExpectedHash is set and the file exists with a different hash the
	// write fails with ErrContentsModified and nothing is written.
	WriteFile(ctx context.Context, path string, data []byte, opts WriteOptions) (Stats, bool, error)

	Unlink(ctx context.Context, path string) error
}

// Trasher is implemented by backends that can move entries to a trash can.
type Trasher interface {
	MoveToTrash(ctx context.Context, path string) error
}

// DirEntry is one child reported by Backend.ReadDir. Err is set when the
// child could be listed but not stat'ed.
type DirEntry struct {
	Name  string
	Stats Stats
	Err   error
}

// ReadOptions configures File.Read.
type ReadOptions struct {
	// Encoding names the expected text encoding. Empty means UTF-8.
	Encoding string
	// MaxSize rejects files larger than this many bytes. Zero disables the check.
	MaxSize int64
}

// WriteOptions configures File.Write.
type WriteOptions struct {
	// ExpectedHash guards the write. File.Write fills it from the cached
	// hash unless Blind is set.
	ExpectedHash string
	Blind        bool
	Perm         fs.FileMode
}

// ChangeFunc receives external changes. An empty path means anything may
// have changed. stats is nil when the watcher has none to offer.
type ChangeFunc func(path string, stats *Stats)

// Watcher delivers external change notifications.
type Watcher interface {
	Init(onChange ChangeFunc, onOffline func())
	WatchPath(ctx context.Context, path string, ignored []string) error
	UnwatchPath(ctx context.Context, path string) error
	UnwatchAll(ctx context.Context) error
}
