package vfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in    string
		isDir bool
		unc   bool
		want  string
	}{
		{"/a/b", false, false, "/a/b"},
		{"/a/b/", false, false, "/a/b"},
		{"/a//b///c", false, false, "/a/b/c"},
		{"/a/./b", false, false, "/a/b"},
		{"/a/x/../b", false, false, "/a/b"},
		{"/a/b", true, false, "/a/b/"},
		{"/a/b//", true, false, "/a/b/"},
		{"/", true, false, "/"},
		{"//", true, false, "/"},
		{"C:/Users//me/", true, false, "C:/Users/me/"},
		{"//server/share/x", false, true, "//server/share/x"},
		{"//server//share/", true, true, "//server/share/"},
		{"//server/share/x", false, false, "/server/share/x"},
	}
	for _, tt := range tests {
		got, err := NormalizePath(tt.in, tt.isDir, tt.unc)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestNormalizePathRejects(t *testing.T) {
	for _, p := range []string{"relative/a", "", "/..", "/a/../..", "C:/../x"} {
		_, err := NormalizePath(p, false, false)
		assert.ErrorIs(t, err, ErrInvalidPath, p)
	}

	_, err := NormalizePath("/", false, false)
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestNormalizePathIdempotent(t *testing.T) {
	inputs := []string{
		"/a/b/c", "/a//b/./c/../d", "/x/", "C:/a//b", "/a/b/../../c/",
		"//srv/share//dir/../f",
	}
	for _, in := range inputs {
		for _, isDir := range []bool{false, true} {
			for _, unc := range []bool{false, true} {
				once, err := NormalizePath(in, isDir, unc)
				require.NoError(t, err, in)
				twice, err := NormalizePath(once, isDir, unc)
				require.NoError(t, err, once)
				assert.Equal(t, once, twice)
				assert.NotContains(t, once, "/..")
				if isDir {
					assert.True(t, len(once) > 0 && once[len(once)-1] == '/')
				}
			}
		}
	}
}

func TestSplitPath(t *testing.T) {
	tests := []struct {
		in, name, parent string
	}{
		{"/", "", ""},
		{"/a", "a", "/"},
		{"/a/", "a", "/"},
		{"/a/b.txt", "b.txt", "/a/"},
		{"/a/b/", "b", "/a/"},
		{"C:/", "C:", ""},
		{"C:/x", "x", "C:/"},
	}
	for _, tt := range tests {
		name, parent := splitPath(tt.in)
		assert.Equal(t, tt.name, name, tt.in)
		assert.Equal(t, tt.parent, parent, tt.in)
	}
}

func TestOverlaps(t *testing.T) {
	assert.True(t, overlaps("/a/", "/a/b/"))
	assert.True(t, overlaps("/a/b/", "/a/"))
	assert.True(t, overlaps("/a/", "/a/"))
	assert.False(t, overlaps("/a/b/", "/a/bb/"))
}
