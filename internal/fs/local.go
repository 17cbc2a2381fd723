package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"github.com/CageChen/watchfs/internal/vfs"
)

// LocalFS implements vfs.Backend on an afero filesystem. Production code
// uses the OS filesystem; tests use an in-memory one.
type LocalFS struct {
	fs       afero.Fs
	trashDir string
}

// LocalOption configures a LocalFS.
type LocalOption func(*LocalFS)

// WithTrashDir makes MoveToTrash move entries into dir instead of deleting
// them.
func WithTrashDir(dir string) LocalOption {
	return func(l *LocalFS) { l.trashDir = dir }
}

// NewLocalFS creates a LocalFS over fsys.
func NewLocalFS(fsys afero.Fs, opts ...LocalOption) *LocalFS {
	l := &LocalFS{fs: fsys}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewOSFS creates a LocalFS over the local disk.
func NewOSFS(opts ...LocalOption) *LocalFS {
	return NewLocalFS(afero.NewOsFs(), opts...)
}

// Capabilities reports no recursive watching; the fsnotify watcher watches
// one directory per call.
func (l *LocalFS) Capabilities() vfs.Capabilities {
	return vfs.Capabilities{}
}

// Afero returns the underlying filesystem.
func (l *LocalFS) Afero() afero.Fs {
	return l.fs
}

func (l *LocalFS) statsFor(path string, info os.FileInfo) vfs.Stats {
	isFile := !info.IsDir()
	return vfs.NewStats(vfs.StatsOptions{
		IsFile:   isFile,
		Mtime:    info.ModTime(),
		Size:     info.Size(),
		Hash:     contentHash(info.ModTime(), info.Size()),
		RealPath: l.realPath(path, !isFile),
	})
}

func contentHash(mtime time.Time, size int64) string {
	return strconv.FormatInt(mtime.UnixNano(), 10) + "-" + strconv.FormatInt(size, 10)
}

// realPath resolves path when it is a symbolic link, and returns "" for
// anything else.
func (l *LocalFS) realPath(path string, isDir bool) string {
	lst, ok := l.fs.(afero.Lstater)
	if !ok {
		return ""
	}
	name := osPath(path)
	info, lstatCalled, err := lst.LstatIfPossible(name)
	if err != nil || !lstatCalled || info.Mode()&os.ModeSymlink == 0 {
		return ""
	}

	var target string
	switch fsys := l.fs.(type) {
	case *afero.OsFs:
		target, err = filepath.EvalSymlinks(name)
	case afero.LinkReader:
		target, err = fsys.ReadlinkIfPossible(name)
		if err == nil && !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(name), target)
		}
	default:
		return ""
	}
	if err != nil {
		return ""
	}
	return slashPath(target, isDir)
}

// Stat returns the Stats of path, following symbolic links.
func (l *LocalFS) Stat(ctx context.Context, path string) (vfs.Stats, error) {
	if err := checkContext(ctx); err != nil {
		return vfs.Stats{}, err
	}
	info, err := l.fs.Stat(osPath(path))
	if err != nil {
		return vfs.Stats{}, vfs.Classify(err)
	}
	return l.statsFor(path, info), nil
}

// Exists reports whether path exists.
func (l *LocalFS) Exists(ctx context.Context, path string) (bool, error) {
	if err := checkContext(ctx); err != nil {
		return false, err
	}
	ok, err := afero.Exists(l.fs, osPath(path))
	if err != nil {
		return false, vfs.Classify(err)
	}
	return ok, nil
}

// ReadDir lists the children of path with their Stats. Children that cannot
// be stat'ed, such as dangling links, carry an error instead.
func (l *LocalFS) ReadDir(ctx context.Context, path string) ([]vfs.DirEntry, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	infos, err := afero.ReadDir(l.fs, osPath(path))
	if err != nil {
		return nil, vfs.Classify(err)
	}

	result := make([]vfs.DirEntry, 0, len(infos))
	for _, info := range infos {
		child := childPath(path, info.Name())
		if info.Mode()&os.ModeSymlink != 0 {
			target, err := l.fs.Stat(osPath(child))
			if err != nil {
				result = append(result, vfs.DirEntry{Name: info.Name(), Err: vfs.Classify(err)})
				continue
			}
			info = target
		}
		result = append(result, vfs.DirEntry{
			Name:  info.Name(),
			Stats: l.statsFor(child, info),
		})
	}
	return result, nil
}

// Mkdir creates the directory at path. Its parent must exist.
func (l *LocalFS) Mkdir(ctx context.Context, path string, perm fs.FileMode) (vfs.Stats, error) {
	if err := checkContext(ctx); err != nil {
		return vfs.Stats{}, err
	}
	if err := l.fs.Mkdir(osPath(path), perm); err != nil {
		return vfs.Stats{}, vfs.Classify(err)
	}
	return l.Stat(ctx, path)
}

// Rename moves oldPath to newPath. An existing destination is not
// overwritten.
func (l *LocalFS) Rename(ctx context.Context, oldPath, newPath string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	exists, err := afero.Exists(l.fs, osPath(newPath))
	if err != nil {
		return vfs.Classify(err)
	}
	if exists {
		return vfs.ErrAlreadyExists
	}
	if err := l.fs.Rename(osPath(oldPath), osPath(newPath)); err != nil {
		return vfs.Classify(err)
	}
	return nil
}

// ReadFile returns the contents of path and the Stats they were read with.
func (l *LocalFS) ReadFile(ctx context.Context, path string, opts vfs.ReadOptions) ([]byte, vfs.Stats, error) {
	s, err := l.Stat(ctx, path)
	if err != nil {
		return nil, vfs.Stats{}, err
	}
	if s.IsDirectory() {
		return nil, vfs.Stats{}, fmt.Errorf("%s is a directory", path)
	}
	if opts.MaxSize > 0 && s.Size() > opts.MaxSize {
		return nil, vfs.Stats{}, vfs.ErrExceedsMaxFileSize
	}
	data, err := afero.ReadFile(l.fs, osPath(path))
	if err != nil {
		return nil, vfs.Stats{}, vfs.Classify(err)
	}
	return data, s, nil
}

// WriteFile writes data to path. When opts.ExpectedHash is set and the file
// exists with another hash the write is refused with ErrContentsModified.
func (l *LocalFS) WriteFile(ctx context.Context, path string, data []byte, opts vfs.WriteOptions) (vfs.Stats, bool, error) {
	if err := checkContext(ctx); err != nil {
		return vfs.Stats{}, false, err
	}

	created := false
	cur, err := l.Stat(ctx, path)
	switch {
	case vfs.IsNotFound(err):
		created = true
	case err != nil:
		return vfs.Stats{}, false, err
	case cur.IsDirectory():
		return vfs.Stats{}, false, fmt.Errorf("%s is a directory", path)
	case opts.ExpectedHash != "" && cur.Hash() != opts.ExpectedHash:
		return vfs.Stats{}, false, vfs.ErrContentsModified
	}

	perm := opts.Perm
	if perm == 0 {
		perm = 0o644
	}
	if err := afero.WriteFile(l.fs, osPath(path), data, perm); err != nil {
		return vfs.Stats{}, false, vfs.Classify(err)
	}
	s, err := l.Stat(ctx, path)
	if err != nil {
		return vfs.Stats{}, false, err
	}
	return s, created, nil
}

// Unlink deletes path and, for a directory, everything below it.
func (l *LocalFS) Unlink(ctx context.Context, path string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	if _, err := l.fs.Stat(osPath(path)); err != nil {
		return vfs.Classify(err)
	}
	if err := l.fs.RemoveAll(osPath(path)); err != nil {
		return vfs.Classify(err)
	}
	return nil
}

// MoveToTrash moves path into the trash directory, or deletes it when none
// is configured.
func (l *LocalFS) MoveToTrash(ctx context.Context, path string) error {
	if l.trashDir == "" {
		return l.Unlink(ctx, path)
	}
	if err := checkContext(ctx); err != nil {
		return err
	}
	if err := l.fs.MkdirAll(l.trashDir, 0o755); err != nil {
		return vfs.Classify(err)
	}
	name := baseName(path)
	dest := filepath.Join(l.trashDir, name)
	for i := 1; ; i++ {
		exists, err := afero.Exists(l.fs, dest)
		if err != nil {
			return vfs.Classify(err)
		}
		if !exists {
			break
		}
		dest = filepath.Join(l.trashDir, fmt.Sprintf("%s.%d", name, i))
	}
	err := l.fs.Rename(osPath(path), dest)
	if errors.Is(err, syscall.EXDEV) {
		// The trash lives on another device: copy, then remove the original.
		if err := copyTree(l.fs, osPath(path), dest); err != nil {
			_ = l.fs.RemoveAll(dest)
			return vfs.Classify(err)
		}
		err = l.fs.RemoveAll(osPath(path))
	}
	if err != nil {
		return vfs.Classify(err)
	}
	return nil
}

// copyTree copies src to dst within fsys. Symlinks are recreated, not
// followed.
func copyTree(fsys afero.Fs, src, dst string) error {
	return afero.Walk(fsys, src, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		switch mode := info.Mode(); {
		case mode.IsDir():
			return fsys.MkdirAll(target, mode.Perm())
		case mode&os.ModeSymlink != 0:
			return copySymlink(fsys, p, target)
		default:
			return copyFile(fsys, p, target, mode.Perm())
		}
	})
}

func copyFile(fsys afero.Fs, src, dst string, perm fs.FileMode) error {
	in, err := fsys.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := fsys.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func copySymlink(fsys afero.Fs, src, dst string) error {
	reader, ok := fsys.(afero.LinkReader)
	if !ok {
		return &os.LinkError{Op: "readlink", Old: src, New: dst, Err: afero.ErrNoReadlink}
	}
	linker, ok := fsys.(afero.Linker)
	if !ok {
		return &os.LinkError{Op: "symlink", Old: src, New: dst, Err: afero.ErrNoSymlink}
	}
	target, err := reader.ReadlinkIfPossible(src)
	if err != nil {
		return err
	}
	return linker.SymlinkIfPossible(target, dst)
}
