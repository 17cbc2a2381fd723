package vfs

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// FileSystem owns the entry index and the watched roots, and mediates every
// state-changing operation so that changes made through it and changes
// reported by the watcher are applied in a consistent order.
//
// Change and rename handlers run one at a time on a dedicated goroutine.
// A handler may call any method except Flush and Close.
type FileSystem struct {
	backend       Backend
	watcher       Watcher
	caps          Capabilities
	logger        *zap.Logger
	metrics       Recorder
	visitDefaults VisitOptions

	mu       sync.Mutex
	index    *index
	roots    map[string]*WatchedRoot
	nextID   uint64
	changes  int
	external []externalChange
	inited   bool
	closed   bool

	listings   singleflight.Group
	dispatch   *dispatcher
	requests   *requestQueue
	changeSubs subscribers[ChangeEvent]
	renameSubs subscribers[RenameEvent]
}

// Option configures a FileSystem.
type Option func(*FileSystem)

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(logger *zap.Logger) Option {
	return func(fs *FileSystem) {
		if logger != nil {
			fs.logger = logger
		}
	}
}

// WithMetrics sets the measurement sink.
func WithMetrics(r Recorder) Option {
	return func(fs *FileSystem) {
		if r != nil {
			fs.metrics = r
		}
	}
}

// WithVisitDefaults overrides the traversal limits used when VisitOptions
// leaves them at zero.
func WithVisitDefaults(opts VisitOptions) Option {
	return func(fs *FileSystem) {
		fs.visitDefaults = opts.withDefaults(fs.visitDefaults)
	}
}

// New creates a FileSystem over backend. Call Init before watching.
func New(backend Backend, watcher Watcher, opts ...Option) *FileSystem {
	fs := &FileSystem{
		backend: backend,
		watcher: watcher,
		caps:    backend.Capabilities(),
		logger:  zap.NewNop(),
		metrics: nopRecorder{},
		visitDefaults: VisitOptions{
			MaxDepth:   DefaultVisitMaxDepth,
			MaxEntries: DefaultVisitMaxEntries,
		},
		index: newIndex(),
		roots: make(map[string]*WatchedRoot),
	}
	for _, opt := range opts {
		opt(fs)
	}
	fs.dispatch = newDispatcher(fs.logger)
	fs.requests = newRequestQueue()
	return fs
}

// Init registers the change and offline callbacks with the watcher. Calling
// it again has no effect.
func (fs *FileSystem) Init() {
	fs.mu.Lock()
	if fs.inited {
		fs.mu.Unlock()
		return
	}
	fs.inited = true
	fs.mu.Unlock()

	if fs.watcher != nil {
		fs.watcher.Init(fs.enqueueExternalChange, fs.handleOffline)
	}
}

// Close stops the watcher, waits for queued events to be delivered and
// releases the worker goroutines.
func (fs *FileSystem) Close() error {
	fs.mu.Lock()
	if fs.closed {
		fs.mu.Unlock()
		return nil
	}
	fs.closed = true
	fs.mu.Unlock()

	var err error
	if fs.watcher != nil {
		err = fs.watcher.UnwatchAll(context.Background())
	}
	fs.requests.close()
	fs.dispatch.close()
	return err
}

// Flush blocks until every queued event has been delivered. It must not be
// called from a change or rename handler.
func (fs *FileSystem) Flush() {
	fs.dispatch.wait()
}

// OnChange subscribes h to change events.
func (fs *FileSystem) OnChange(h func(ChangeEvent)) (cancel func()) {
	return fs.changeSubs.add(h)
}

// OnRename subscribes h to rename events.
func (fs *FileSystem) OnRename(h func(RenameEvent)) (cancel func()) {
	return fs.renameSubs.add(h)
}

func (fs *FileSystem) normalize(p string, isDirectory bool) (string, error) {
	n, err := NormalizePath(p, isDirectory, fs.caps.NormalizeUNCPaths)
	if err != nil {
		return "", &PathError{Op: "normalize", Path: p, Err: err}
	}
	return n, nil
}

// GetFileForPath returns the File for p, creating and indexing it if needed.
// No I/O is performed.
func (fs *FileSystem) GetFileForPath(p string) (*File, error) {
	path, err := fs.normalize(p, false)
	if err != nil {
		return nil, err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.fileForPathLocked(path), nil
}

// GetDirectoryForPath returns the Directory for p, creating and indexing it
// if needed. No I/O is performed.
func (fs *FileSystem) GetDirectoryForPath(p string) (*Directory, error) {
	path, err := fs.normalize(p, true)
	if err != nil {
		return nil, err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.directoryForPathLocked(path), nil
}

func (fs *FileSystem) fileForPathLocked(path string) *File {
	if f, ok := fs.index.get(path).(*File); ok {
		return f
	}
	fs.nextID++
	f := &File{}
	f.entry = entry{fs: fs, self: f, id: fs.nextID}
	f.setPath(path)
	fs.index.add(f)
	fs.metrics.SetIndexSize(fs.index.len())
	return f
}

func (fs *FileSystem) directoryForPathLocked(path string) *Directory {
	if d, ok := fs.index.get(path).(*Directory); ok {
		return d
	}
	fs.nextID++
	d := &Directory{}
	d.entry = entry{fs: fs, self: d, id: fs.nextID, isDir: true}
	d.setPath(path)
	fs.index.add(d)
	fs.metrics.SetIndexSize(fs.index.len())
	return d
}

// Resolve returns the entry for p together with its Stats, determining from
// the backend whether p is a file or a directory.
func (fs *FileSystem) Resolve(ctx context.Context, p string) (Entry, Stats, error) {
	filePath, dirPath, err := fs.resolveForms(p)
	if err != nil {
		return nil, Stats{}, err
	}

	fs.mu.Lock()
	var known Entry
	if filePath != "" {
		known = fs.index.get(filePath)
	}
	if known == nil {
		known = fs.index.get(dirPath)
	}
	fs.mu.Unlock()
	if known != nil {
		s, err := known.Stat(ctx)
		if err != nil {
			return nil, Stats{}, err
		}
		return known, s, nil
	}

	statPath := filePath
	if statPath == "" || strings.HasSuffix(p, "/") {
		statPath = dirPath
	}
	s, err := fs.backend.Stat(ctx, statPath)
	if err != nil {
		return nil, Stats{}, newPathError("resolve", statPath, err)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	var e Entry
	if s.IsFile() {
		if filePath == "" {
			return nil, Stats{}, &PathError{Op: "resolve", Path: p, Err: ErrInvalidPath}
		}
		e = fs.fileForPathLocked(filePath)
	} else {
		e = fs.directoryForPathLocked(dirPath)
	}
	if e.base().isWatchedLocked(false) {
		e.base().stats = &s
	}
	return e, s, nil
}

// resolveForms normalizes p both ways. filePath is empty when p names a root.
func (fs *FileSystem) resolveForms(p string) (filePath, dirPath string, err error) {
	dirPath, err = fs.normalize(p, true)
	if err != nil {
		return "", "", err
	}
	if _, parent := splitPath(dirPath); parent != "" {
		filePath = strings.TrimSuffix(dirPath, "/")
	}
	return filePath, dirPath, nil
}

// Exists reports whether p exists without indexing it.
func (fs *FileSystem) Exists(ctx context.Context, p string) (bool, error) {
	filePath, dirPath, err := fs.resolveForms(p)
	if err != nil {
		return false, err
	}
	path := filePath
	if path == "" || strings.HasSuffix(p, "/") {
		path = dirPath
	}
	ok, err := fs.backend.Exists(ctx, path)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, newPathError("exists", path, err)
	}
	return ok, nil
}

// ClearAllCaches drops every cached Stats, listing and file content and
// publishes a wholesale ChangeEvent.
func (fs *FileSystem) ClearAllCaches() {
	fs.handleWholesaleChange()
}

// WatchedRoots returns the current roots ordered by path.
func (fs *FileSystem) WatchedRoots() []RootInfo {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	infos := make([]RootInfo, 0, len(fs.roots))
	for _, r := range fs.roots {
		infos = append(infos, r.info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })
	return infos
}

// rootForLocked returns the root covering path, preferring a live root over
// one that is being torn down.
func (fs *FileSystem) rootForLocked(path string) *WatchedRoot {
	var found *WatchedRoot
	for _, r := range fs.roots {
		if !isWithin(path, r.path) {
			continue
		}
		if r.live() {
			return r
		}
		found = r
	}
	return found
}

// Watch starts change notification for the subtree under dir. filter, if
// non-nil, excludes children by name; globs are passed to the watcher as
// ignore patterns. A directory that overlaps any root in the set is rejected
// with ErrWatchOverlap, including a root whose unwatch is still in flight.
func (fs *FileSystem) Watch(ctx context.Context, dir *Directory, filter FilterFunc, globs []string) error {
	fs.mu.Lock()
	if fs.closed {
		fs.mu.Unlock()
		return ErrClosed
	}
	path, err := dir.livePathLocked("watch")
	if err != nil {
		fs.mu.Unlock()
		return err
	}
	for _, r := range fs.roots {
		if overlaps(r.path, path) {
			fs.mu.Unlock()
			return &PathError{Op: "watch", Path: path, Err: ErrWatchOverlap}
		}
	}
	root := &WatchedRoot{
		entry:  dir,
		path:   path,
		filter: filter,
		globs:  append([]string(nil), globs...),
		status: RootStarting,
	}
	fs.roots[path] = root
	dir.clearContentsLocked(false)
	fs.metrics.SetWatchedRoots(len(fs.roots))
	fs.mu.Unlock()

	err = fs.requests.do(ctx, func(ctx context.Context) error {
		return fs.watchEntry(ctx, dir, root)
	})

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err != nil {
		root.status = RootInactive
		if fs.roots[path] == root {
			delete(fs.roots, path)
		}
		fs.index.visitAll(func(e Entry) {
			if b := e.base(); isWithin(b.path, path) {
				b.clearCachedDataLocked(true)
			}
		})
		fs.metrics.SetWatchedRoots(len(fs.roots))
		fs.metrics.WatchFailure()
		fs.logger.Warn("failed to watch root", zap.String("path", path), zap.Error(err))
		return newPathError("watch", path, err)
	}
	if root.status == RootStarting {
		root.status = RootActive
	}
	return nil
}

// Unwatch stops change notification for the root at dir and drops every
// indexed entry below it, dir included.
func (fs *FileSystem) Unwatch(ctx context.Context, dir *Directory) error {
	fs.mu.Lock()
	path := dir.path
	root := fs.roots[path]
	if root == nil || root.status == RootInactive {
		fs.mu.Unlock()
		return &PathError{Op: "unwatch", Path: path, Err: ErrRootNotWatched}
	}
	root.status = RootInactive
	fs.mu.Unlock()

	if err := fs.teardownRoot(ctx, root); err != nil {
		return newPathError("unwatch", path, err)
	}
	return nil
}

// teardownRoot issues the physical unwatch for an inactive root, removes it
// and sweeps the index below it.
func (fs *FileSystem) teardownRoot(ctx context.Context, root *WatchedRoot) error {
	err := fs.requests.do(ctx, func(ctx context.Context) error {
		return fs.unwatchEntry(ctx, root.entry, root)
	})

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.roots[root.path] == root {
		delete(fs.roots, root.path)
	}
	var swept []Entry
	fs.index.visitAll(func(e Entry) {
		b := e.base()
		if !isWithin(b.path, root.path) {
			return
		}
		if r := fs.rootForLocked(b.path); r != nil && r != root && r.live() {
			return
		}
		b.clearCachedDataLocked(true)
		swept = append(swept, e)
	})
	for _, e := range swept {
		fs.index.remove(e)
	}
	fs.metrics.SetWatchedRoots(len(fs.roots))
	fs.metrics.SetIndexSize(fs.index.len())
	return err
}

// watchEntry issues the physical watch for dir. With a recursive watcher
// only the root itself needs a call; otherwise every directory of the
// filtered subtree is watched. Without a watcher the root only enables
// caching.
func (fs *FileSystem) watchEntry(ctx context.Context, dir *Directory, root *WatchedRoot) error {
	if fs.watcher == nil {
		return nil
	}
	if fs.caps.RecursiveWatch {
		if dir != root.entry {
			return nil
		}
		return fs.watcher.WatchPath(ctx, root.path, root.globs)
	}

	var dirs []string
	err := dir.Visit(ctx, func(e Entry) bool {
		if e.IsDirectory() {
			dirs = append(dirs, e.Path())
		}
		return true
	}, VisitOptions{})
	if err != nil {
		return err
	}

	var errs error
	for _, p := range dirs {
		errs = multierr.Append(errs, fs.watcher.WatchPath(ctx, p, root.globs))
	}
	return errs
}

// unwatchEntry issues the physical unwatch for dir. The watcher drops every
// watch below the path it is given.
func (fs *FileSystem) unwatchEntry(ctx context.Context, dir *Directory, root *WatchedRoot) error {
	if fs.watcher == nil || (fs.caps.RecursiveWatch && dir != root.entry) {
		return nil
	}
	fs.mu.Lock()
	path := dir.path
	fs.mu.Unlock()
	return fs.watcher.UnwatchPath(ctx, path)
}

// handleRename rewrites the index after oldPath moved to newPath.
func (fs *FileSystem) handleRename(oldPath, newPath string, isDirectory bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	_, oldParent := splitPath(oldPath)
	_, newParent := splitPath(newPath)

	moved := fs.index.renamed(oldPath, newPath, isDirectory)
	for _, e := range moved {
		b := e.base()
		if !b.isWatchedLocked(false) {
			b.clearCachedDataLocked(true)
		}
	}

	if d, ok := fs.index.get(oldParent).(*Directory); ok {
		d.pruneListingLocked()
	}
	if oldParent != newParent {
		if d, ok := fs.index.get(newParent).(*Directory); ok {
			d.clearContentsLocked(true)
		}
	}
}

// reconcileParent re-lists parentPath and returns the resulting ChangeEvent.
// The event is returned even when reconciliation failed.
func (fs *FileSystem) reconcileParent(ctx context.Context, parentPath string) (*ChangeEvent, error) {
	fs.mu.Lock()
	dir := fs.directoryForPathLocked(parentPath)
	fs.mu.Unlock()

	added, removed, err := fs.handleDirectoryChange(ctx, dir)
	return &ChangeEvent{Entry: dir, Added: added, Removed: removed}, err
}

// handleDirectoryChange re-lists dir and diffs the result against the cached
// listing by entry identity. When dir is watched, added directories are
// watched and removed ones unwatched before it returns. Without a previous
// listing there is nothing to diff and both sets are nil.
func (fs *FileSystem) handleDirectoryChange(ctx context.Context, dir *Directory) (added, removed []Entry, err error) {
	fs.mu.Lock()
	path, err := dir.livePathLocked("reconcile")
	if err != nil {
		fs.mu.Unlock()
		return nil, nil, err
	}
	hadOld := dir.contents != nil
	old := append([]Entry(nil), dir.contents...)
	dir.clearContentsLocked(false)
	fs.mu.Unlock()

	fs.listings.Forget(path)
	contents, readErr := dir.GetContents(ctx)

	if hadOld {
		added, removed = diffEntries(old, contents.Entries)
	}

	fs.mu.Lock()
	watched := dir.isWatchedLocked(false)
	root := dir.root
	if !watched {
		fs.index.visitAll(func(e Entry) {
			if b := e.base(); isWithin(b.path, path) {
				b.clearCachedDataLocked(true)
			}
		})
	} else {
		for _, e := range removed {
			e.base().clearCachedDataLocked(false)
		}
	}
	fs.mu.Unlock()

	if readErr != nil {
		return added, removed, readErr
	}
	if !watched || fs.caps.RecursiveWatch {
		return added, removed, nil
	}

	var errs error
	for _, e := range added {
		if d, ok := e.(*Directory); ok {
			errs = multierr.Append(errs, fs.requests.do(ctx, func(ctx context.Context) error {
				return fs.watchEntry(ctx, d, root)
			}))
		}
	}
	for _, e := range removed {
		if d, ok := e.(*Directory); ok {
			errs = multierr.Append(errs, fs.requests.do(ctx, func(ctx context.Context) error {
				return fs.unwatchEntry(ctx, d, root)
			}))
		}
	}
	if errs != nil {
		fs.logger.Warn("failed to update watches after directory change",
			zap.String("path", path), zap.Error(errs))
	}
	return added, removed, nil
}

// diffEntries returns the entries only in next and the entries only in prev.
func diffEntries(prev, next []Entry) (added, removed []Entry) {
	seen := make(map[Entry]bool, len(prev))
	for _, e := range prev {
		seen[e] = true
	}
	for _, e := range next {
		if seen[e] {
			delete(seen, e)
			continue
		}
		added = append(added, e)
	}
	for _, e := range prev {
		if seen[e] {
			removed = append(removed, e)
		}
	}
	return added, removed
}

// emit queues ev for delivery to subscribers.
func (fs *FileSystem) emit(ev Event) {
	fs.dispatch.post(func() { fs.deliver(ev) })
}

func (fs *FileSystem) deliver(ev Event) {
	switch ev := ev.(type) {
	case ChangeEvent:
		for _, h := range fs.changeSubs.snapshot() {
			h(ev)
		}
	case RenameEvent:
		for _, h := range fs.renameSubs.snapshot() {
			h(ev)
		}
	}
}
