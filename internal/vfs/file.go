package vfs

import (
	"context"
	"strings"
)

// File is an entry for a regular file. Watched files cache their contents
// alongside their Stats.
type File struct {
	entry

	contents []byte
	// hash of the last read or write, kept even when nothing is cached so an
	// unguarded caller still gets a conflict check on the next Write.
	hash string
}

func (f *File) clearContentsLocked() {
	f.stats = nil
	f.contents = nil
}

// Read returns the file contents and the Stats they were read with.
func (f *File) Read(ctx context.Context, opts ReadOptions) ([]byte, Stats, error) {
	if opts.Encoding != "" && !isUTF8(opts.Encoding) {
		return nil, Stats{}, &PathError{Op: "read", Path: f.Path(), Err: ErrUnsupportedEncoding}
	}

	f.fs.mu.Lock()
	path, err := f.livePathLocked("read")
	if err != nil {
		f.fs.mu.Unlock()
		return nil, Stats{}, err
	}
	if f.contents != nil && f.stats != nil {
		data := append([]byte(nil), f.contents...)
		s := *f.stats
		f.fs.mu.Unlock()
		return data, s, nil
	}
	f.fs.mu.Unlock()

	data, s, err := f.fs.backend.ReadFile(ctx, path, opts)
	if err != nil {
		f.clearCachedData()
		return nil, Stats{}, newPathError("read", path, err)
	}

	f.fs.mu.Lock()
	f.hash = s.Hash()
	if !f.removed && f.path == path && f.isWatchedLocked(false) {
		f.stats = &s
		f.contents = append([]byte(nil), data...)
	}
	f.fs.mu.Unlock()
	return data, s, nil
}

// Write replaces the file contents. Unless opts.Blind is set the write is
// guarded by the hash of the last read or write, and fails with
// ErrContentsModified when the file changed in between.
//
// Writing a new file reconciles its parent and publishes a ChangeEvent for
// the parent; overwriting publishes a ChangeEvent for the file.
func (f *File) Write(ctx context.Context, data []byte, opts WriteOptions) (Stats, error) {
	f.fs.mu.Lock()
	path, err := f.livePathLocked("write")
	if err != nil {
		f.fs.mu.Unlock()
		return Stats{}, err
	}
	if opts.Blind {
		opts.ExpectedHash = ""
	} else if opts.ExpectedHash == "" {
		opts.ExpectedHash = f.hash
	}
	parentPath := f.parentPath
	f.fs.mu.Unlock()

	f.fs.beginChange()
	s, created, err := f.fs.backend.WriteFile(ctx, path, data, opts)
	if err != nil {
		f.clearCachedData()
		f.fs.endChange()
		return Stats{}, newPathError("write", path, err)
	}

	f.fs.mu.Lock()
	f.hash = s.Hash()
	if f.isWatchedLocked(false) {
		f.stats = &s
		f.contents = append([]byte(nil), data...)
	}
	f.fs.mu.Unlock()

	if !created {
		f.fs.endChange(ChangeEvent{Entry: f})
		return s, nil
	}

	f.fs.endChangeWithParent(ctx, "write", parentPath)
	return s, nil
}

func isUTF8(encoding string) bool {
	switch strings.ToLower(strings.ReplaceAll(encoding, "-", "")) {
	case "utf8":
		return true
	}
	return false
}
