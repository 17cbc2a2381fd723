package vfs

import "strings"

// index maps normalized paths to entries. It is guarded by FileSystem.mu.
type index struct {
	entries map[string]Entry
}

func newIndex() *index {
	return &index{entries: make(map[string]Entry)}
}

func (ix *index) get(path string) Entry {
	return ix.entries[path]
}

func (ix *index) add(e Entry) {
	ix.entries[e.base().path] = e
}

// remove drops e and marks it removed so later operations on it fail with
// ErrEntryRemoved.
func (ix *index) remove(e Entry) {
	b := e.base()
	if cur, ok := ix.entries[b.path]; ok && cur == e {
		delete(ix.entries, b.path)
	}
	b.removed = true
}

func (ix *index) visitAll(fn func(Entry)) {
	for _, e := range ix.entries {
		fn(e)
	}
}

func (ix *index) len() int {
	return len(ix.entries)
}

// renamed rewrites every entry affected by moving oldPath to newPath. For a
// directory that is every path below oldPath, for a file only the exact path.
// All moves are collected before the map is touched so an ancestor and its
// descendants never interfere with each other.
func (ix *index) renamed(oldPath, newPath string, isDirectory bool) []Entry {
	type move struct {
		from, to string
		e        Entry
	}
	var moves []move
	for p, e := range ix.entries {
		switch {
		case isDirectory && strings.HasPrefix(p, oldPath):
			moves = append(moves, move{from: p, to: newPath + p[len(oldPath):], e: e})
		case !isDirectory && p == oldPath:
			moves = append(moves, move{from: p, to: newPath, e: e})
		}
	}

	for _, m := range moves {
		delete(ix.entries, m.from)
	}
	moved := make([]Entry, 0, len(moves))
	for _, m := range moves {
		if stale, ok := ix.entries[m.to]; ok && stale != m.e {
			// The destination was replaced on disk.
			stale.base().removed = true
		}
		m.e.base().setPath(m.to)
		ix.entries[m.to] = m.e
		moved = append(moved, m.e)
	}
	return moved
}
