package vfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func indexFixture(t *testing.T, paths ...string) (*FileSystem, map[string]Entry) {
	t.Helper()
	fs := &FileSystem{index: newIndex(), roots: map[string]*WatchedRoot{}, metrics: nopRecorder{}}
	entries := make(map[string]Entry)
	for _, p := range paths {
		if p[len(p)-1] == '/' {
			entries[p] = fs.directoryForPathLocked(p)
		} else {
			entries[p] = fs.fileForPathLocked(p)
		}
	}
	return fs, entries
}

func TestIndexRenamedDirectory(t *testing.T) {
	fs, e := indexFixture(t,
		"/a/b/", "/a/b/x.txt", "/a/b/sub/", "/a/b/sub/y.txt", "/a/bb/", "/a/bb/z.txt", "/a/")

	moved := fs.index.renamed("/a/b/", "/a/c/", true)
	assert.Len(t, moved, 4)

	for old, want := range map[string]string{
		"/a/b/":          "/a/c/",
		"/a/b/x.txt":     "/a/c/x.txt",
		"/a/b/sub/":      "/a/c/sub/",
		"/a/b/sub/y.txt": "/a/c/sub/y.txt",
	} {
		assert.Same(t, e[old], fs.index.get(want), want)
		assert.Nil(t, fs.index.get(old), old)
		assert.Equal(t, want, e[old].base().path)
	}

	assert.Same(t, e["/a/bb/"], fs.index.get("/a/bb/"))
	assert.Same(t, e["/a/bb/z.txt"], fs.index.get("/a/bb/z.txt"))
	assert.Equal(t, "/a/bb/z.txt", e["/a/bb/z.txt"].base().path)

	x := e["/a/b/x.txt"].base()
	assert.Equal(t, "x.txt", x.name)
	assert.Equal(t, "/a/c/", x.parentPath)
}

func TestIndexRenamedFileOnlyExactPath(t *testing.T) {
	fs, e := indexFixture(t, "/a/f", "/a/f.txt", "/a/f/")

	moved := fs.index.renamed("/a/f", "/a/g", false)
	require.Len(t, moved, 1)
	assert.Same(t, e["/a/f"], fs.index.get("/a/g"))
	assert.Same(t, e["/a/f.txt"], fs.index.get("/a/f.txt"))
	assert.Same(t, e["/a/f/"], fs.index.get("/a/f/"))
}

func TestIndexRenamedOverStaleDestination(t *testing.T) {
	fs, e := indexFixture(t, "/a/old.txt", "/a/new.txt")

	fs.index.renamed("/a/old.txt", "/a/new.txt", false)
	assert.Same(t, e["/a/old.txt"], fs.index.get("/a/new.txt"))
	assert.True(t, e["/a/new.txt"].base().removed)
	assert.False(t, e["/a/old.txt"].base().removed)
}

func TestIndexRemoveMarksEntry(t *testing.T) {
	fs, e := indexFixture(t, "/a/x.txt")

	fs.index.remove(e["/a/x.txt"])
	assert.Nil(t, fs.index.get("/a/x.txt"))
	assert.True(t, e["/a/x.txt"].base().removed)

	// A fresh lookup creates a new entry rather than resurrecting the old one.
	again := fs.fileForPathLocked("/a/x.txt")
	assert.NotSame(t, e["/a/x.txt"], Entry(again))
	assert.NotEqual(t, e["/a/x.txt"].ID(), again.ID())
}
