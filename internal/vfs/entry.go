package vfs

import "context"

// Entry is a File or a Directory. Exactly one Entry exists per normalized
// path while that path is indexed, so two entries are the same path if and
// only if they are the same value.
type Entry interface {
	ID() uint64
	Path() string
	Name() string
	ParentPath() string
	IsFile() bool
	IsDirectory() bool

	Exists(ctx context.Context) (bool, error)
	Stat(ctx context.Context) (Stats, error)
	Rename(ctx context.Context, newPath string) error
	Unlink(ctx context.Context) error
	MoveToTrash(ctx context.Context) error
	Visit(ctx context.Context, fn VisitFunc, opts VisitOptions) error

	base() *entry
}

// entry holds the state shared by files and directories. Every field is
// guarded by fs.mu.
type entry struct {
	fs    *FileSystem
	self  Entry
	id    uint64
	isDir bool

	path       string
	name       string
	parentPath string

	stats   *Stats
	removed bool

	// Last root the filter was evaluated against, and its result.
	root         *WatchedRoot
	rootIncluded bool
}

func (e *entry) base() *entry { return e }

func (e *entry) setPath(p string) {
	e.path = p
	e.name, e.parentPath = splitPath(p)
	e.root = nil
}

// ID returns the identity number assigned when the entry was created. It
// survives renames.
func (e *entry) ID() uint64 { return e.id }

// Path returns the normalized absolute path.
func (e *entry) Path() string {
	e.fs.mu.Lock()
	defer e.fs.mu.Unlock()
	return e.path
}

// Name returns the last path element.
func (e *entry) Name() string {
	e.fs.mu.Lock()
	defer e.fs.mu.Unlock()
	return e.name
}

// ParentPath returns the parent directory path, or "" for a root.
func (e *entry) ParentPath() string {
	e.fs.mu.Lock()
	defer e.fs.mu.Unlock()
	return e.parentPath
}

// IsFile reports whether the entry is a File.
func (e *entry) IsFile() bool { return !e.isDir }

// IsDirectory reports whether the entry is a Directory.
func (e *entry) IsDirectory() bool { return e.isDir }

// Removed reports whether the entry has been dropped from the index.
func (e *entry) Removed() bool {
	e.fs.mu.Lock()
	defer e.fs.mu.Unlock()
	return e.removed
}

// livePathLocked returns the current path, or ErrEntryRemoved.
func (e *entry) livePathLocked(op string) (string, error) {
	if e.removed {
		return e.path, &PathError{Op: op, Path: e.path, Err: ErrEntryRemoved}
	}
	return e.path, nil
}

func (e *entry) livePath(op string) (string, error) {
	e.fs.mu.Lock()
	defer e.fs.mu.Unlock()
	return e.livePathLocked(op)
}

// isWatchedLocked reports whether the entry lies in an active watched root
// and passes its filter. relaxed also accepts a root that is still starting.
func (e *entry) isWatchedLocked(relaxed bool) bool {
	root := e.fs.rootForLocked(e.path)
	if root == nil {
		e.root = nil
		return false
	}
	if root != e.root {
		e.root = root
		e.rootIncluded = root.includes(e.path)
	}
	if !e.rootIncluded {
		return false
	}
	switch root.status {
	case RootActive:
		return true
	case RootStarting:
		return relaxed
	default:
		return false
	}
}

func (e *entry) clearCachedDataLocked(preserveChildren bool) {
	if e.isDir {
		e.self.(*Directory).clearContentsLocked(preserveChildren)
		return
	}
	e.self.(*File).clearContentsLocked()
}

func (e *entry) clearCachedData() {
	e.fs.mu.Lock()
	defer e.fs.mu.Unlock()
	e.clearCachedDataLocked(false)
}

// Exists reports whether the entry exists. A cached Stats answers without
// I/O. A missing path is not an error.
func (e *entry) Exists(ctx context.Context) (bool, error) {
	e.fs.mu.Lock()
	path, err := e.livePathLocked("exists")
	if err != nil {
		e.fs.mu.Unlock()
		return false, err
	}
	if e.stats != nil {
		e.fs.mu.Unlock()
		return true, nil
	}
	e.fs.mu.Unlock()

	ok, err := e.fs.backend.Exists(ctx, path)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		e.clearCachedData()
		return false, newPathError("exists", path, err)
	}
	return ok, nil
}

// Stat returns the entry's Stats. Only watched entries cache the result;
// nothing would invalidate the cache of an unwatched one.
func (e *entry) Stat(ctx context.Context) (Stats, error) {
	e.fs.mu.Lock()
	path, err := e.livePathLocked("stat")
	if err != nil {
		e.fs.mu.Unlock()
		return Stats{}, err
	}
	if e.stats != nil {
		s := *e.stats
		e.fs.mu.Unlock()
		return s, nil
	}
	e.fs.mu.Unlock()

	s, err := e.fs.backend.Stat(ctx, path)
	if err != nil {
		e.clearCachedData()
		return Stats{}, newPathError("stat", path, err)
	}

	e.fs.mu.Lock()
	if !e.removed && e.path == path && e.isWatchedLocked(false) {
		e.stats = &s
	}
	e.fs.mu.Unlock()
	return s, nil
}

// Rename moves the entry to newPath. On success the index is rewritten
// before Rename returns and a RenameEvent is published afterwards. On failure
// the index is untouched.
func (e *entry) Rename(ctx context.Context, newPath string) error {
	normalized, err := e.fs.normalize(newPath, e.isDir)
	if err != nil {
		return err
	}
	oldPath, err := e.livePath("rename")
	if err != nil {
		return err
	}

	e.fs.beginChange()
	if err := e.fs.backend.Rename(ctx, oldPath, normalized); err != nil {
		e.clearCachedData()
		e.fs.endChange()
		return newPathError("rename", oldPath, err)
	}
	e.fs.handleRename(oldPath, normalized, e.isDir)
	e.fs.endChange(RenameEvent{OldPath: oldPath, NewPath: normalized})
	return nil
}

// Unlink deletes the entry. The parent directory is reconciled and a
// ChangeEvent for it is published.
func (e *entry) Unlink(ctx context.Context) error {
	return e.remove(ctx, "unlink", func(path string) error {
		return e.fs.backend.Unlink(ctx, path)
	})
}

// MoveToTrash moves the entry to the trash, or deletes it when the backend
// has no trash.
func (e *entry) MoveToTrash(ctx context.Context) error {
	trasher, ok := e.fs.backend.(Trasher)
	if !ok {
		return e.Unlink(ctx)
	}
	return e.remove(ctx, "trash", func(path string) error {
		return trasher.MoveToTrash(ctx, path)
	})
}

func (e *entry) remove(ctx context.Context, op string, do func(path string) error) error {
	e.fs.mu.Lock()
	path, err := e.livePathLocked(op)
	if err != nil {
		e.fs.mu.Unlock()
		return err
	}
	parentPath := e.parentPath
	e.clearCachedDataLocked(false)
	e.fs.mu.Unlock()

	e.fs.beginChange()
	err = do(path)
	if err != nil {
		e.fs.endChange()
		return newPathError(op, path, err)
	}
	e.fs.endChangeWithParent(ctx, op, parentPath)
	return nil
}
