package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// WatchHandler starts and stops change notification for directories
type WatchHandler struct {
	mounts *Mounts
	logger *zap.Logger
}

// NewWatchHandler creates a new watch handler
func NewWatchHandler(mounts *Mounts, logger *zap.Logger) *WatchHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WatchHandler{mounts: mounts, logger: logger}
}

// Watch starts watching a directory with the filter and globs of its mount
func (h *WatchHandler) Watch(c *gin.Context) {
	p := queryPath(c)
	mount, err := h.mounts.Lookup(p)
	if err != nil {
		abortWithError(c, err)
		return
	}
	dir, err := mount.FS.GetDirectoryForPath(p)
	if err != nil {
		abortWithError(c, err)
		return
	}

	if err := mount.FS.Watch(c.Request.Context(), dir, mount.Filter, mount.Globs); err != nil {
		abortWithError(c, err)
		return
	}
	h.logger.Info("watching", zap.String("path", dir.Path()))
	c.JSON(http.StatusOK, gin.H{"path": dir.Path()})
}

// Unwatch stops watching a root
func (h *WatchHandler) Unwatch(c *gin.Context) {
	p := queryPath(c)
	mount, err := h.mounts.Lookup(p)
	if err != nil {
		abortWithError(c, err)
		return
	}
	dir, err := mount.FS.GetDirectoryForPath(p)
	if err != nil {
		abortWithError(c, err)
		return
	}

	if err := mount.FS.Unwatch(c.Request.Context(), dir); err != nil {
		abortWithError(c, err)
		return
	}
	h.logger.Info("stopped watching", zap.String("path", dir.Path()))
	c.Status(http.StatusNoContent)
}
