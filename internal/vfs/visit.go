package vfs

import (
	"context"
	"sort"
	"strings"
)

// Traversal limits used when VisitOptions leaves them at zero.
const (
	DefaultVisitMaxDepth   = 100
	DefaultVisitMaxEntries = 30000
)

// VisitFunc is called once per entry. Returning false skips the children of
// a directory without ending the traversal.
type VisitFunc func(Entry) bool

// VisitOptions bounds a traversal.
type VisitOptions struct {
	MaxDepth    int
	MaxEntries  int
	SortEntries bool
}

func (o VisitOptions) withDefaults(d VisitOptions) VisitOptions {
	if o.MaxDepth <= 0 {
		o.MaxDepth = d.MaxDepth
	}
	if o.MaxEntries <= 0 {
		o.MaxEntries = d.MaxEntries
	}
	return o
}

type visitState struct {
	fn      VisitFunc
	sort    bool
	budget  int
	visited map[string]bool
}

// Visit walks the entry and, for directories, its descendants depth first.
// Directories already reached through another path (symlink cycles) are not
// descended into again. The walk stops quietly at MaxDepth; when more than
// MaxEntries entries are reached it finishes with ErrTooManyEntries.
func (e *entry) Visit(ctx context.Context, fn VisitFunc, opts VisitOptions) error {
	opts = opts.withDefaults(e.fs.visitDefaults)
	path, err := e.livePath("visit")
	if err != nil {
		return err
	}
	s, err := e.Stat(ctx)
	if err != nil {
		return err
	}

	st := &visitState{
		fn:      fn,
		sort:    opts.SortEntries,
		budget:  opts.MaxEntries,
		visited: make(map[string]bool),
	}
	if err := st.visit(ctx, e.self, s, opts.MaxDepth); err != nil {
		return err
	}
	if st.budget < 0 {
		return &PathError{Op: "visit", Path: path, Err: ErrTooManyEntries}
	}
	return nil
}

func (st *visitState) visit(ctx context.Context, e Entry, s Stats, depth int) error {
	budget := st.budget
	st.budget--
	if budget <= 0 || depth < 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if e.IsDirectory() {
		canonical := s.RealPath()
		if canonical == "" {
			canonical = e.Path()
		}
		if st.visited[canonical] {
			return nil
		}
		st.visited[canonical] = true
	}

	if !st.fn(e) || e.IsFile() {
		return nil
	}

	contents, err := e.(*Directory).GetContents(ctx)
	if err != nil {
		// A child directory that vanished mid-walk is not fatal.
		return nil
	}

	children := make([]int, len(contents.Entries))
	for i := range children {
		children[i] = i
	}
	if st.sort {
		names := make([]string, len(contents.Entries))
		for i, child := range contents.Entries {
			names[i] = strings.ToLower(child.Name())
		}
		sort.SliceStable(children, func(a, b int) bool {
			return names[children[a]] < names[children[b]]
		})
	}

	for _, i := range children {
		if err := st.visit(ctx, contents.Entries[i], contents.Stats[i], depth-1); err != nil {
			return err
		}
	}
	return nil
}
