package vfs

import "strings"

// RootStatus is the lifecycle state of a WatchedRoot.
type RootStatus int

// Root states. A root enters Starting as soon as Watch accepts it, Active
// once the watcher confirmed, and Inactive as soon as Unwatch begins.
const (
	RootInactive RootStatus = iota
	RootStarting
	RootActive
)

// String returns a human-readable representation of the status.
func (s RootStatus) String() string {
	switch s {
	case RootInactive:
		return "inactive"
	case RootStarting:
		return "starting"
	case RootActive:
		return "active"
	default:
		return "unknown"
	}
}

// FilterFunc decides whether the child name of parentPath belongs to a
// watched root.
type FilterFunc func(name, parentPath string) bool

// WatchedRoot is a subtree under change notification. Its fields are
// guarded by FileSystem.mu.
type WatchedRoot struct {
	entry  *Directory
	path   string
	filter FilterFunc
	globs  []string
	status RootStatus
}

// RootInfo is a snapshot of a WatchedRoot.
type RootInfo struct {
	Path   string
	Status RootStatus
	Globs  []string
}

func (r *WatchedRoot) info() RootInfo {
	return RootInfo{
		Path:   r.path,
		Status: r.status,
		Globs:  append([]string(nil), r.globs...),
	}
}

// includes reports whether p lies in the root and every path element below
// the root passes the filter.
func (r *WatchedRoot) includes(p string) bool {
	if !isWithin(p, r.path) {
		return false
	}
	if r.filter == nil {
		return true
	}
	rel := strings.TrimSuffix(p[len(r.path):], "/")
	if rel == "" {
		return true
	}
	parent := r.path
	for _, name := range strings.Split(rel, "/") {
		if !r.filter(name, parent) {
			return false
		}
		parent += name + "/"
	}
	return true
}

// accepts is the filter applied to a single child during traversal.
func (r *WatchedRoot) accepts(name, parentPath string) bool {
	return r.filter == nil || r.filter(name, parentPath)
}

// live reports whether the root blocks overlapping watches.
func (r *WatchedRoot) live() bool {
	return r.status == RootStarting || r.status == RootActive
}
