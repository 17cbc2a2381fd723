package vfs

import (
	"errors"
	"io/fs"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		in   error
		want error
	}{
		{&fs.PathError{Op: "open", Path: "/x", Err: fs.ErrNotExist}, ErrNotFound},
		{syscall.ENOENT, ErrNotFound},
		{fs.ErrExist, ErrAlreadyExists},
		{fs.ErrPermission, ErrPermissionDenied},
		{syscall.ENOSPC, ErrOutOfSpace},
		{syscall.EFBIG, ErrExceedsMaxFileSize},
	}
	for _, tt := range tests {
		got := Classify(tt.in)
		assert.ErrorIs(t, got, tt.want, tt.in.Error())
		assert.ErrorIs(t, got, tt.in, "cause is kept")
	}
}

func TestClassifyPassesUnknownThrough(t *testing.T) {
	odd := errors.New("backend exploded")
	assert.Same(t, odd, Classify(odd))
	assert.Nil(t, Classify(nil))
}

func TestPathError(t *testing.T) {
	err := newPathError("read", "/a.txt", fs.ErrNotExist)
	assert.True(t, IsNotFound(err))

	var pe *PathError
	assert.ErrorAs(t, err, &pe)
	assert.Equal(t, "read", pe.Op)
	assert.Equal(t, "/a.txt", pe.Path)
	assert.Contains(t, err.Error(), "/a.txt")
}
