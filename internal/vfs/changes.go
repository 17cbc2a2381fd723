package vfs

import (
	"context"
	"errors"
	"sort"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// externalChange is a watcher notification waiting for the active changes
// to settle.
type externalChange struct {
	path  string
	stats *Stats
}

// beginChange marks the start of a state-changing operation. External
// changes arriving until the matching endChange are deferred.
func (fs *FileSystem) beginChange() {
	fs.mu.Lock()
	fs.changes++
	fs.metrics.SetActiveChanges(fs.changes)
	fs.mu.Unlock()
}

// endChange queues events for delivery followed by the end of the change, so
// deferred external changes are only handled after the events went out.
func (fs *FileSystem) endChange(events ...Event) {
	for _, ev := range events {
		fs.emit(ev)
	}
	if !fs.dispatch.post(fs.finishChange) {
		fs.finishChange()
	}
}

// endChangeWithParent reconciles parentPath and ends the change with the
// resulting ChangeEvent.
func (fs *FileSystem) endChangeWithParent(ctx context.Context, op, parentPath string) {
	if parentPath == "" {
		fs.endChange()
		return
	}
	ev, err := fs.reconcileParent(ctx, parentPath)
	if err != nil && !IsNotFound(err) {
		fs.logger.Warn("reconcile parent failed",
			zap.String("op", op), zap.String("path", parentPath), zap.Error(err))
	}
	fs.endChange(*ev)
}

func (fs *FileSystem) finishChange() {
	fs.mu.Lock()
	fs.changes--
	if fs.changes < 0 {
		fs.logger.Error("active change counter underflow", zap.Int("count", fs.changes))
		fs.metrics.CounterUnderflow()
		fs.changes = 0
	}
	fs.metrics.SetActiveChanges(fs.changes)
	pending := fs.changes == 0 && len(fs.external) > 0 && !fs.closed
	fs.mu.Unlock()

	if pending {
		fs.drainExternalChanges()
	}
}

// enqueueExternalChange is the watcher's change callback.
func (fs *FileSystem) enqueueExternalChange(path string, stats *Stats) {
	if path != "" {
		if n, err := fs.normalize(path, strings.HasSuffix(path, "/")); err == nil {
			path = n
		}
	}
	c := externalChange{path: path}
	if stats != nil {
		s := *stats
		c.stats = &s
	}

	fs.mu.Lock()
	fs.external = append(fs.external, c)
	fs.metrics.SetDeferredChanges(len(fs.external))
	idle := fs.changes == 0
	fs.mu.Unlock()

	if idle {
		fs.dispatch.post(fs.drainExternalChanges)
	}
}

// drainExternalChanges handles deferred changes in arrival order until the
// queue is empty or a new change begins. It runs on the dispatcher.
func (fs *FileSystem) drainExternalChanges() {
	for {
		fs.mu.Lock()
		if fs.changes > 0 || len(fs.external) == 0 {
			fs.mu.Unlock()
			return
		}
		c := fs.external[0]
		fs.external[0] = externalChange{}
		fs.external = fs.external[1:]
		fs.metrics.SetDeferredChanges(len(fs.external))
		fs.mu.Unlock()

		fs.handleExternalChange(context.Background(), c)
	}
}

func (fs *FileSystem) handleExternalChange(ctx context.Context, c externalChange) {
	if c.path == "" {
		fs.metrics.ExternalChange(ChangeWholesale)
		fs.handleWholesaleChange()
		return
	}

	fs.mu.Lock()
	e := fs.index.get(c.path)
	if e == nil && !strings.HasSuffix(c.path, "/") {
		e = fs.index.get(c.path + "/")
	}
	if e == nil {
		fs.mu.Unlock()
		fs.metrics.ExternalChange(ChangeIgnored)
		return
	}

	switch e := e.(type) {
	case *File:
		if c.stats != nil && e.stats != nil && !c.stats.newerThan(*e.stats) {
			fs.mu.Unlock()
			fs.metrics.ExternalChange(ChangeStale)
			return
		}
		e.clearContentsLocked()
		watched := e.isWatchedLocked(false)
		if watched && c.stats != nil {
			e.stats = c.stats
		}
		fs.mu.Unlock()

		fs.metrics.ExternalChange(ChangeFile)
		if watched {
			fs.emit(ChangeEvent{Entry: e})
		}

	case *Directory:
		fs.mu.Unlock()
		fs.metrics.ExternalChange(ChangeDirectory)

		added, removed, err := fs.handleDirectoryChange(ctx, e)
		if err != nil && !errors.Is(err, ErrEntryRemoved) {
			fs.logger.Debug("directory reconcile failed",
				zap.String("path", c.path), zap.Error(err))
		}

		fs.mu.Lock()
		watched := !e.removed && e.isWatchedLocked(false)
		if watched && c.stats != nil {
			e.stats = c.stats
		}
		fs.mu.Unlock()

		if watched {
			fs.emit(ChangeEvent{Entry: e, Added: added, Removed: removed})
		}
	}
}

// handleWholesaleChange clears every cache and publishes a ChangeEvent with
// no entry.
func (fs *FileSystem) handleWholesaleChange() {
	fs.mu.Lock()
	fs.index.visitAll(func(e Entry) {
		e.base().clearCachedDataLocked(true)
	})
	fs.mu.Unlock()
	fs.emit(ChangeEvent{})
}

// handleOffline is the watcher's offline callback. Every root is torn down
// and consumers are told to re-derive their state.
func (fs *FileSystem) handleOffline() {
	fs.logger.Warn("file watcher went offline")
	fs.dispatch.post(func() {
		fs.mu.Lock()
		roots := make([]*WatchedRoot, 0, len(fs.roots))
		for _, r := range fs.roots {
			if r.status == RootInactive {
				continue
			}
			r.status = RootInactive
			roots = append(roots, r)
		}
		fs.mu.Unlock()
		sort.Slice(roots, func(i, j int) bool { return roots[i].path < roots[j].path })

		var errs error
		for _, r := range roots {
			errs = multierr.Append(errs, fs.teardownRoot(context.Background(), r))
		}
		if errs != nil {
			fs.logger.Warn("errors while unwatching after watcher went offline", zap.Error(errs))
		}
		fs.handleWholesaleChange()
	})
}
