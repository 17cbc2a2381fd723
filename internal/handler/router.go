package handler

import "github.com/gin-gonic/gin"

// Handlers groups the API handlers of one server.
type Handlers struct {
	Tree  *TreeHandler
	File  *FileHandler
	Watch *WatchHandler
	WS    *WSHandler
}

// Register mounts the API routes on api.
func (h *Handlers) Register(api gin.IRouter) {
	api.GET("/roots", h.Tree.GetRoots)
	api.GET("/tree", h.Tree.GetTree)
	api.GET("/stat", h.Tree.GetStat)

	api.GET("/files", h.File.GetFile)
	api.PUT("/files", h.File.PutFile)
	api.DELETE("/files", h.File.DeleteFile)
	api.GET("/preview", h.File.GetPreview)
	api.POST("/rename", h.File.Rename)
	api.POST("/mkdir", h.File.Mkdir)

	api.POST("/watch", h.Watch.Watch)
	api.DELETE("/watch", h.Watch.Unwatch)

	api.GET("/ws", h.WS.HandleWS)
}
