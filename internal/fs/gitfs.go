package fs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/CageChen/watchfs/internal/vfs"
)

// GitFS implements a read-only vfs.Backend over a git ref (branch, tag, or
// commit). The ref's tree appears at mount, an absolute directory path.
// Hashes are git object ids, so a guarded write can never succeed by
// accident; every mutation fails with vfs.ErrPermissionDenied.
type GitFS struct {
	repoPath string
	ref      string
	mount    string
}

// NewGitFS creates a GitFS that serves ref of the repository at repoPath
// under mount.
func NewGitFS(repoPath, ref, mount string) *GitFS {
	if !strings.HasSuffix(mount, "/") {
		mount += "/"
	}
	return &GitFS{repoPath: repoPath, ref: ref, mount: mount}
}

// Capabilities reports no watching support beyond what the tree offers.
func (g *GitFS) Capabilities() vfs.Capabilities {
	return vfs.Capabilities{}
}

func (g *GitFS) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", g.repoPath}, args...)...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", err
	}
	return string(out), nil
}

// objPath maps a vfs path to a path inside the tree. The mount itself maps
// to "".
func (g *GitFS) objPath(path string) (string, error) {
	if path+"/" == g.mount {
		return "", nil
	}
	if !strings.HasPrefix(path, g.mount) {
		return "", vfs.ErrNotFound
	}
	return strings.Trim(path[len(g.mount):], "/"), nil
}

// treeEntry is one line of `git ls-tree -l`.
type treeEntry struct {
	name string
	kind string
	id   string
	size int64
}

// parseTree parses "<mode> <type> <id> <size>\t<name>" lines.
func parseTree(out string) []treeEntry {
	var entries []treeEntry
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		tabIdx := strings.IndexByte(line, '\t')
		if tabIdx < 0 {
			continue
		}
		fields := strings.Fields(line[:tabIdx])
		if len(fields) < 4 {
			continue
		}
		size, _ := strconv.ParseInt(fields[3], 10, 64)
		entries = append(entries, treeEntry{
			name: baseName(line[tabIdx+1:]),
			kind: fields[1],
			id:   fields[2],
			size: size,
		})
	}
	return entries
}

func (g *GitFS) stats(e treeEntry, mtime time.Time) vfs.Stats {
	return vfs.NewStats(vfs.StatsOptions{
		IsFile: e.kind != "tree",
		Mtime:  mtime,
		Size:   e.size,
		Hash:   e.id,
	})
}

// Stat returns metadata for the file or directory at path.
func (g *GitFS) Stat(ctx context.Context, path string) (vfs.Stats, error) {
	obj, err := g.objPath(path)
	if err != nil {
		return vfs.Stats{}, err
	}

	if obj == "" {
		id, err := g.git(ctx, "rev-parse", "--verify", g.ref+"^{tree}")
		if err != nil {
			return vfs.Stats{}, vfs.ErrNotFound
		}
		return g.stats(treeEntry{kind: "tree", id: strings.TrimSpace(id)}, g.modTime(ctx, "")), nil
	}

	out, err := g.git(ctx, "ls-tree", "-l", g.ref, "--", obj)
	if err != nil {
		return vfs.Stats{}, vfs.ErrNotFound
	}
	entries := parseTree(out)
	if len(entries) != 1 {
		return vfs.Stats{}, vfs.ErrNotFound
	}
	return g.stats(entries[0], g.modTime(ctx, obj)), nil
}

// Exists reports whether path is present in the ref.
func (g *GitFS) Exists(ctx context.Context, path string) (bool, error) {
	_, err := g.Stat(ctx, path)
	if vfs.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

// ReadDir lists the immediate children of the directory at path. Children
// carry the ref's commit time.
func (g *GitFS) ReadDir(ctx context.Context, path string) ([]vfs.DirEntry, error) {
	obj, err := g.objPath(path)
	if err != nil {
		return nil, err
	}

	args := []string{"ls-tree", "-l", g.ref}
	if obj != "" {
		args = append(args, "--", obj+"/")
	}
	out, err := g.git(ctx, args...)
	if err != nil {
		return nil, vfs.ErrNotFound
	}

	mtime := g.modTime(ctx, "")
	entries := parseTree(out)
	if len(entries) == 0 && obj != "" {
		// ls-tree prints nothing for a path that is not a tree.
		if _, err := g.Stat(ctx, path); err != nil {
			return nil, err
		}
	}
	result := make([]vfs.DirEntry, 0, len(entries))
	for _, e := range entries {
		result = append(result, vfs.DirEntry{Name: e.name, Stats: g.stats(e, mtime)})
	}
	return result, nil
}

// ReadFile reads the blob at path.
func (g *GitFS) ReadFile(ctx context.Context, path string, opts vfs.ReadOptions) ([]byte, vfs.Stats, error) {
	s, err := g.Stat(ctx, path)
	if err != nil {
		return nil, vfs.Stats{}, err
	}
	if s.IsDirectory() {
		return nil, vfs.Stats{}, fmt.Errorf("cannot read directory as file")
	}
	if opts.MaxSize > 0 && s.Size() > opts.MaxSize {
		return nil, vfs.Stats{}, vfs.ErrExceedsMaxFileSize
	}
	obj, _ := g.objPath(path)
	out, err := g.git(ctx, "cat-file", "blob", g.ref+":"+obj)
	if err != nil {
		if strings.Contains(err.Error(), "does not exist") || strings.Contains(err.Error(), "not exist") {
			return nil, vfs.Stats{}, vfs.ErrNotFound
		}
		return nil, vfs.Stats{}, err
	}
	return []byte(out), s, nil
}

// Mkdir is not supported.
func (g *GitFS) Mkdir(context.Context, string, fs.FileMode) (vfs.Stats, error) {
	return vfs.Stats{}, vfs.ErrPermissionDenied
}

// Rename is not supported.
func (g *GitFS) Rename(context.Context, string, string) error {
	return vfs.ErrPermissionDenied
}

// WriteFile is not supported.
func (g *GitFS) WriteFile(context.Context, string, []byte, vfs.WriteOptions) (vfs.Stats, bool, error) {
	return vfs.Stats{}, false, vfs.ErrPermissionDenied
}

// Unlink is not supported.
func (g *GitFS) Unlink(context.Context, string) error {
	return vfs.ErrPermissionDenied
}

// modTime returns the time of the last commit touching obj, or of the ref
// itself when obj is "".
func (g *GitFS) modTime(ctx context.Context, obj string) time.Time {
	args := []string{"log", "-1", "--format=%ct", g.ref}
	if obj != "" {
		args = append(args, "--", obj)
	}
	out, err := g.git(ctx, args...)
	if err != nil {
		return time.Time{}
	}
	ts := strings.TrimSpace(out)
	if ts == "" {
		return time.Time{}
	}
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
