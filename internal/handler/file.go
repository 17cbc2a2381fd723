package handler

import (
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/CageChen/watchfs/internal/preview"
	"github.com/CageChen/watchfs/internal/vfs"
)

// DefaultMaxFileSize caps reads and uploads.
const DefaultMaxFileSize = 16 << 20

// FileHandler handles file content API requests
type FileHandler struct {
	mounts   *Mounts
	renderer *preview.Renderer
	maxSize  int64
}

// NewFileHandler creates a new file handler
func NewFileHandler(mounts *Mounts, renderer *preview.Renderer, maxSize int64) *FileHandler {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	return &FileHandler{mounts: mounts, renderer: renderer, maxSize: maxSize}
}

func (h *FileHandler) file(c *gin.Context, p string) (*Mount, *vfs.File, bool) {
	mount, err := h.mounts.Lookup(p)
	if err != nil {
		abortWithError(c, err)
		return nil, nil, false
	}
	f, err := mount.FS.GetFileForPath(p)
	if err != nil {
		abortWithError(c, err)
		return nil, nil, false
	}
	return mount, f, true
}

func (h *FileHandler) read(c *gin.Context) (*vfs.File, []byte, vfs.Stats, bool) {
	_, f, ok := h.file(c, c.Query("path"))
	if !ok {
		return nil, nil, vfs.Stats{}, false
	}
	data, s, err := f.Read(c.Request.Context(), vfs.ReadOptions{
		Encoding: c.Query("encoding"),
		MaxSize:  h.maxSize,
	})
	if err != nil {
		abortWithError(c, err)
		return nil, nil, vfs.Stats{}, false
	}
	return f, data, s, true
}

// GetFile returns the raw file contents. The ETag carries the hash expected
// by a guarded PutFile.
func (h *FileHandler) GetFile(c *gin.Context) {
	f, data, s, ok := h.read(c)
	if !ok {
		return
	}

	contentType := mime.TypeByExtension(path.Ext(f.Name()))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	c.Header("ETag", quoteETag(s.Hash()))
	c.Data(http.StatusOK, contentType, data)
}

// GetPreview returns the rendered HTML for a file
func (h *FileHandler) GetPreview(c *gin.Context) {
	f, data, s, ok := h.read(c)
	if !ok {
		return
	}

	result, err := h.renderer.Render(f.Path(), data, s.Hash())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to render preview: " + err.Error(),
		})
		return
	}
	c.Header("ETag", quoteETag(s.Hash()))
	c.JSON(http.StatusOK, gin.H{
		"path":    f.Path(),
		"modTime": s.Mtime(),
		"preview": result,
	})
}

// PutFile writes the request body. With If-Match the write only succeeds if
// the file still has that hash; without it the write is unconditional.
func (h *FileHandler) PutFile(c *gin.Context) {
	mount, f, ok := h.file(c, c.Query("path"))
	if !ok {
		return
	}
	if mount.ReadOnly {
		abortWithError(c, vfs.ErrPermissionDenied)
		return
	}

	data, err := io.ReadAll(io.LimitReader(c.Request.Body, h.maxSize+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if int64(len(data)) > h.maxSize {
		abortWithError(c, vfs.ErrExceedsMaxFileSize)
		return
	}

	opts := vfs.WriteOptions{Blind: true}
	if match := c.GetHeader("If-Match"); match != "" {
		opts = vfs.WriteOptions{ExpectedHash: unquoteETag(match)}
	}

	s, err := f.Write(c.Request.Context(), data, opts)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.Header("ETag", quoteETag(s.Hash()))
	c.JSON(http.StatusOK, newStatResponse(f.Path(), s))
}

// DeleteFile moves a file or directory to the trash
func (h *FileHandler) DeleteFile(c *gin.Context) {
	p := c.Query("path")
	mount, err := h.mounts.Lookup(p)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if mount.ReadOnly {
		abortWithError(c, vfs.ErrPermissionDenied)
		return
	}

	e, _, err := mount.FS.Resolve(c.Request.Context(), p)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if e.Path() == mount.Path {
		abortWithError(c, vfs.ErrPermissionDenied)
		return
	}
	if err := e.MoveToTrash(c.Request.Context()); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RenameRequest is the body of a rename request
type RenameRequest struct {
	Old string `json:"old" binding:"required"`
	New string `json:"new" binding:"required"`
}

// Rename moves a file or directory within one mount
func (h *FileHandler) Rename(c *gin.Context) {
	var req RenameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	mount, err := h.mounts.Lookup(req.Old)
	if err != nil {
		abortWithError(c, err)
		return
	}
	target, err := h.mounts.Lookup(req.New)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if target != mount || mount.ReadOnly {
		abortWithError(c, vfs.ErrPermissionDenied)
		return
	}

	e, _, err := mount.FS.Resolve(c.Request.Context(), req.Old)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if err := e.Rename(c.Request.Context(), req.New); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": e.Path()})
}

// Mkdir creates a directory
func (h *FileHandler) Mkdir(c *gin.Context) {
	p := queryPath(c)
	mount, err := h.mounts.Lookup(p)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if mount.ReadOnly {
		abortWithError(c, vfs.ErrPermissionDenied)
		return
	}

	dir, err := mount.FS.GetDirectoryForPath(p)
	if err != nil {
		abortWithError(c, err)
		return
	}
	s, err := dir.Create(c.Request.Context(), 0)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newStatResponse(dir.Path(), s))
}

func quoteETag(hash string) string {
	return `"` + hash + `"`
}

func unquoteETag(tag string) string {
	return strings.Trim(strings.TrimPrefix(strings.TrimSpace(tag), "W/"), `"`)
}
