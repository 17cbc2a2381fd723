package vfs

import (
	"strconv"
	"strings"
	"time"
)

// Stats is an immutable snapshot of an entry's metadata. A refreshed Stats
// replaces a cached one as a whole.
type Stats struct {
	isFile   bool
	mtime    time.Time
	size     int64
	hash     string
	realPath string
}

// StatsOptions carries the fields used to build a Stats.
type StatsOptions struct {
	IsFile bool
	Mtime  time.Time
	Size   int64
	// Hash identifies the contents for guarded writes. Defaults to the
	// modification time when empty.
	Hash string
	// RealPath is the symlink-resolved path, if it differs.
	RealPath string
}

// NewStats builds a Stats value.
func NewStats(opts StatsOptions) Stats {
	hash := opts.Hash
	if hash == "" {
		hash = strconv.FormatInt(opts.Mtime.UnixNano(), 10)
	}
	realPath := opts.RealPath
	if realPath != "" && !opts.IsFile && !strings.HasSuffix(realPath, "/") {
		realPath += "/"
	}
	return Stats{
		isFile:   opts.IsFile,
		mtime:    opts.Mtime,
		size:     opts.Size,
		hash:     hash,
		realPath: realPath,
	}
}

// IsFile reports whether the entry is a file.
func (s Stats) IsFile() bool { return s.isFile }

// IsDirectory reports whether the entry is a directory.
func (s Stats) IsDirectory() bool { return !s.isFile }

// Mtime returns the modification time.
func (s Stats) Mtime() time.Time { return s.mtime }

// Size returns the size in bytes.
func (s Stats) Size() int64 { return s.size }

// Hash returns the consistency hash.
func (s Stats) Hash() string { return s.hash }

// RealPath returns the symlink-resolved path, or "" when the entry is not a link.
func (s Stats) RealPath() string { return s.realPath }

// newerThan reports whether s was modified strictly after other.
func (s Stats) newerThan(other Stats) bool {
	return s.mtime.After(other.mtime)
}
