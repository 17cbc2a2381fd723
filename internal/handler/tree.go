package handler

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/CageChen/watchfs/internal/vfs"
)

// TreeNode represents a file or directory in the tree
type TreeNode struct {
	Name     string      `json:"name"`
	Type     string      `json:"type"`
	Path     string      `json:"path,omitempty"`
	Children []*TreeNode `json:"children,omitempty"`
	ModTime  *time.Time  `json:"modTime,omitempty"`
	Size     int64       `json:"size,omitempty"`
	ReadOnly bool        `json:"readOnly,omitempty"`
}

// StatResponse is the JSON form of vfs.Stats
type StatResponse struct {
	Path     string    `json:"path"`
	IsFile   bool      `json:"isFile"`
	ModTime  time.Time `json:"modTime"`
	Size     int64     `json:"size"`
	Hash     string    `json:"hash"`
	RealPath string    `json:"realPath,omitempty"`
}

func newStatResponse(path string, s vfs.Stats) StatResponse {
	return StatResponse{
		Path:     path,
		IsFile:   s.IsFile(),
		ModTime:  s.Mtime(),
		Size:     s.Size(),
		Hash:     s.Hash(),
		RealPath: s.RealPath(),
	}
}

// RootResponse describes a mount and the watch state of its roots
type RootResponse struct {
	Name     string   `json:"name"`
	Path     string   `json:"path"`
	ReadOnly bool     `json:"readOnly"`
	Watched  []string `json:"watched"`
}

// TreeHandler handles directory tree API requests
type TreeHandler struct {
	mounts *Mounts
	limits vfs.VisitOptions
}

// NewTreeHandler creates a new tree handler. limits bounds every listing.
func NewTreeHandler(mounts *Mounts, limits vfs.VisitOptions) *TreeHandler {
	return &TreeHandler{mounts: mounts, limits: limits}
}

// GetTree returns the tree below the path query parameter, or one node per
// mount when no path is given.
func (h *TreeHandler) GetTree(c *gin.Context) {
	p := c.Query("path")
	if p == "" {
		var roots []*TreeNode
		for _, m := range h.mounts.All() {
			roots = append(roots, &TreeNode{
				Name:     m.Name,
				Type:     "directory",
				Path:     m.Path,
				ReadOnly: m.ReadOnly,
			})
		}
		c.JSON(http.StatusOK, gin.H{"type": "root", "children": roots})
		return
	}

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

	tree, err := h.buildTree(c, mount, dir)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, tree)
}

func (h *TreeHandler) buildTree(c *gin.Context, mount *Mount, dir *vfs.Directory) (*TreeNode, error) {
	ctx := c.Request.Context()
	nodes := make(map[string]*TreeNode)
	var root *TreeNode

	opts := h.limits
	opts.SortEntries = true
	err := dir.Visit(ctx, func(e vfs.Entry) bool {
		parent := nodes[e.ParentPath()]
		if e != vfs.Entry(dir) {
			if parent == nil {
				return false
			}
			if mount.Filter != nil && !mount.Filter(e.Name(), e.ParentPath()) {
				return false
			}
		}

		node := &TreeNode{Name: e.Name(), Path: e.Path(), ReadOnly: mount.ReadOnly}
		if e.IsDirectory() {
			node.Type = "directory"
			nodes[e.Path()] = node
		} else {
			node.Type = "file"
			if s, err := e.Stat(ctx); err == nil {
				modTime := s.Mtime()
				node.ModTime = &modTime
				node.Size = s.Size()
			}
		}

		if root == nil {
			root = node
		} else {
			parent.Children = append(parent.Children, node)
		}
		return true
	}, opts)
	if err != nil {
		return nil, err
	}

	for _, node := range nodes {
		sortChildren(node)
	}
	return root, nil
}

// sortChildren orders directories first, then files, both alphabetically
func sortChildren(n *TreeNode) {
	sort.SliceStable(n.Children, func(i, j int) bool {
		a, b := n.Children[i], n.Children[j]
		if a.Type != b.Type {
			return a.Type == "directory"
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})
}

// GetStat returns the stats of a file or directory
func (h *TreeHandler) GetStat(c *gin.Context) {
	p := c.Query("path")
	mount, err := h.mounts.Lookup(p)
	if err != nil {
		abortWithError(c, err)
		return
	}

	e, s, err := mount.FS.Resolve(c.Request.Context(), p)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newStatResponse(e.Path(), s))
}

// GetRoots lists the mounts and their watched roots
func (h *TreeHandler) GetRoots(c *gin.Context) {
	var out []RootResponse
	for _, m := range h.mounts.All() {
		resp := RootResponse{Name: m.Name, Path: m.Path, ReadOnly: m.ReadOnly, Watched: []string{}}
		for _, r := range m.FS.WatchedRoots() {
			if r.Status == vfs.RootActive || r.Status == vfs.RootStarting {
				resp.Watched = append(resp.Watched, r.Path)
			}
		}
		out = append(out, resp)
	}
	c.JSON(http.StatusOK, gin.H{"roots": out})
}
