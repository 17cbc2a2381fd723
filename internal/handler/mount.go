// Package handler provides HTTP handlers for the watchfs REST API.
package handler

import (
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/CageChen/watchfs/internal/vfs"
)

// Mount is a configured root served by one FileSystem.
type Mount struct {
	Name     string
	Path     string // normalized directory path, ends in "/"
	ReadOnly bool
	FS       *vfs.FileSystem
	Filter   vfs.FilterFunc
	Globs    []string
}

// Mounts resolves request paths to the mount that serves them.
type Mounts struct {
	list []*Mount
}

// NewMounts orders mounts so that the longest path wins a lookup.
func NewMounts(mounts ...*Mount) *Mounts {
	list := append([]*Mount(nil), mounts...)
	sort.SliceStable(list, func(i, j int) bool { return len(list[i].Path) > len(list[j].Path) })
	return &Mounts{list: list}
}

// All returns the mounts ordered by path.
func (m *Mounts) All() []*Mount {
	out := append([]*Mount(nil), m.list...)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

var errOutsideMounts = errors.New("path is outside every root")

// Lookup returns the mount containing p.
func (m *Mounts) Lookup(p string) (*Mount, error) {
	if p == "" {
		return nil, vfs.ErrInvalidPath
	}
	// Security: prevent path traversal
	for _, part := range strings.Split(p, "/") {
		if part == ".." {
			return nil, vfs.ErrPermissionDenied
		}
	}
	for _, mount := range m.list {
		if strings.HasPrefix(p, mount.Path) || p+"/" == mount.Path {
			return mount, nil
		}
	}
	return nil, errOutsideMounts
}

// statusFor maps an error onto an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, vfs.ErrNotFound), errors.Is(err, errOutsideMounts):
		return http.StatusNotFound
	case errors.Is(err, vfs.ErrInvalidPath), errors.Is(err, vfs.ErrTooManyEntries),
		errors.Is(err, vfs.ErrUnsupportedEncoding):
		return http.StatusBadRequest
	case errors.Is(err, vfs.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, vfs.ErrContentsModified), errors.Is(err, vfs.ErrAlreadyExists),
		errors.Is(err, vfs.ErrWatchOverlap), errors.Is(err, vfs.ErrEntryRemoved):
		return http.StatusConflict
	case errors.Is(err, vfs.ErrExceedsMaxFileSize):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, vfs.ErrRootNotWatched):
		return http.StatusNotFound
	case errors.Is(err, vfs.ErrOutOfSpace):
		return http.StatusInsufficientStorage
	case errors.Is(err, vfs.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error()})
}

// queryPath returns the path query parameter, or the path field of a JSON body.
func queryPath(c *gin.Context) string {
	if p := c.Query("path"); p != "" {
		return p
	}
	var body struct {
		Path string `json:"path"`
	}
	if err := c.ShouldBindJSON(&body); err == nil {
		return body.Path
	}
	return ""
}
