package vfs

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
)

// Error kinds reported by entries and the file system. Backends may return
// these directly; anything else is classified by Classify.
var (
	ErrNotFound                 = errors.New("not found")
	ErrAlreadyExists            = errors.New("already exists")
	ErrOutOfSpace               = errors.New("out of space")
	ErrUnsupportedEncoding      = errors.New("unsupported encoding")
	ErrPermissionDenied         = errors.New("permission denied")
	ErrContentsModified         = errors.New("contents modified")
	ErrExceedsMaxFileSize       = errors.New("exceeds max file size")
	ErrNetworkDriveNotSupported = errors.New("network drive not supported")
	ErrTooManyEntries           = errors.New("too many entries")
	ErrRootNotWatched           = errors.New("root not watched")

	// ErrEntryRemoved is returned by every operation on an entry that has
	// been dropped from the index.
	ErrEntryRemoved = errors.New("entry removed from index")

	ErrInvalidPath  = errors.New("invalid path")
	ErrWatchOverlap = errors.New("watch overlaps an existing root")
	ErrClosed       = errors.New("file system closed")
)

// PathError records a failed operation on a path.
type PathError struct {
	Op   string
	Path string
	Err  error
}

// Error implements the error interface.
func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *PathError) Unwrap() error {
	return e.Err
}

func newPathError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PathError
	if errors.As(err, &pe) && pe.Op == op && pe.Path == path {
		return err
	}
	return &PathError{Op: op, Path: path, Err: Classify(err)}
}

// Classify maps raw backend errors onto the error kinds above. Errors with
// no specific mapping are returned unchanged so the original cause stays
// visible to the caller.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return err
		}
	}
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ENOENT):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, fs.ErrExist):
		return fmt.Errorf("%w: %w", ErrAlreadyExists, err)
	case errors.Is(err, fs.ErrPermission), errors.Is(err, syscall.EROFS):
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	case errors.Is(err, syscall.ENOSPC), errors.Is(err, syscall.EDQUOT):
		return fmt.Errorf("%w: %w", ErrOutOfSpace, err)
	case errors.Is(err, syscall.EFBIG):
		return fmt.Errorf("%w: %w", ErrExceedsMaxFileSize, err)
	}
	return err
}

var kinds = []error{
	ErrNotFound,
	ErrAlreadyExists,
	ErrOutOfSpace,
	ErrUnsupportedEncoding,
	ErrPermissionDenied,
	ErrContentsModified,
	ErrExceedsMaxFileSize,
	ErrNetworkDriveNotSupported,
	ErrTooManyEntries,
	ErrRootNotWatched,
	ErrEntryRemoved,
	ErrInvalidPath,
	ErrWatchOverlap,
	ErrClosed,
}

// IsNotFound reports whether err means the path does not exist.
func IsNotFound(err error) bool {
	return errors.Is(Classify(err), ErrNotFound)
}
