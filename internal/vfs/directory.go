package vfs

import (
	"context"
	"io/fs"
)

// Directory is an entry for a directory. Watched directories cache their
// listing.
type Directory struct {
	entry

	contents      []Entry
	contentsStats []Stats
	contentsErrs  map[string]error
}

// Contents is a directory listing. Stats[i] belongs to Entries[i]; children
// that could be listed but not stat'ed appear only in Errors, keyed by path.
type Contents struct {
	Entries []Entry
	Stats   []Stats
	Errors  map[string]error
}

func (d *Directory) clearContentsLocked(preserveChildren bool) {
	d.stats = nil
	if !preserveChildren {
		if d.contents != nil {
			for _, child := range d.contents {
				child.base().clearCachedDataLocked(true)
			}
		} else {
			// Children may be indexed even though no listing is cached.
			d.fs.index.visitAll(func(child Entry) {
				if child.base().parentPath == d.path {
					child.base().clearCachedDataLocked(true)
				}
			})
		}
	}
	d.contents = nil
	d.contentsStats = nil
	d.contentsErrs = nil
}

func (d *Directory) cachedContentsLocked() Contents {
	c := Contents{
		Entries: append([]Entry(nil), d.contents...),
		Stats:   append([]Stats(nil), d.contentsStats...),
	}
	if len(d.contentsErrs) > 0 {
		c.Errors = make(map[string]error, len(d.contentsErrs))
		for k, v := range d.contentsErrs {
			c.Errors[k] = v
		}
	}
	return c
}

// pruneListingLocked drops children that were renamed away or replaced.
func (d *Directory) pruneListingLocked() {
	if d.contents == nil {
		return
	}
	entries := make([]Entry, 0, len(d.contents))
	stats := make([]Stats, 0, len(d.contentsStats))
	for i, child := range d.contents {
		b := child.base()
		if b.removed || b.parentPath != d.path {
			continue
		}
		entries = append(entries, child)
		stats = append(stats, d.contentsStats[i])
	}
	d.contents = entries
	d.contentsStats = stats
}

// GetContents lists the directory. Children excluded by the covering
// watched root's filter are left out. Concurrent calls for the same
// directory share one backend read.
func (d *Directory) GetContents(ctx context.Context) (Contents, error) {
	d.fs.mu.Lock()
	path, err := d.livePathLocked("readdir")
	if err != nil {
		d.fs.mu.Unlock()
		return Contents{}, err
	}
	if d.contents != nil {
		c := d.cachedContentsLocked()
		d.fs.mu.Unlock()
		return c, nil
	}
	d.fs.mu.Unlock()

	v, err, _ := d.fs.listings.Do(path, func() (any, error) {
		return d.readContents(ctx, path)
	})
	if err != nil {
		return Contents{}, err
	}
	return v.(Contents), nil
}

func (d *Directory) readContents(ctx context.Context, path string) (Contents, error) {
	list, err := d.fs.backend.ReadDir(ctx, path)

	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()

	if err != nil {
		d.clearContentsLocked(false)
		return Contents{}, newPathError("readdir", path, err)
	}

	watched := d.isWatchedLocked(true)
	root := d.fs.rootForLocked(path)

	var c Contents
	for _, child := range list {
		if root != nil && root.filter != nil && !root.filter(child.Name, path) {
			continue
		}
		childPath := path + child.Name
		if child.Err != nil {
			if c.Errors == nil {
				c.Errors = make(map[string]error)
			}
			c.Errors[childPath] = Classify(child.Err)
			continue
		}

		var e Entry
		if child.Stats.IsFile() {
			f := d.fs.fileForPathLocked(childPath)
			// A content change may be reported on the parent only.
			f.clearContentsLocked()
			e = f
		} else {
			e = d.fs.directoryForPathLocked(childPath + "/")
		}
		if watched {
			s := child.Stats
			e.base().stats = &s
		}
		c.Entries = append(c.Entries, e)
		c.Stats = append(c.Stats, child.Stats)
	}

	if watched && !d.removed && d.path == path {
		d.contents = c.Entries
		d.contentsStats = c.Stats
		d.contentsErrs = c.Errors
		return d.cachedContentsLocked(), nil
	}
	return c, nil
}

// Create makes the directory on disk. The parent is reconciled and a
// ChangeEvent for it is published.
func (d *Directory) Create(ctx context.Context, perm fs.FileMode) (Stats, error) {
	d.fs.mu.Lock()
	path, err := d.livePathLocked("mkdir")
	if err != nil {
		d.fs.mu.Unlock()
		return Stats{}, err
	}
	parentPath := d.parentPath
	d.fs.mu.Unlock()

	if perm == 0 {
		perm = 0o755
	}

	d.fs.beginChange()
	s, err := d.fs.backend.Mkdir(ctx, path, perm)
	if err != nil {
		d.clearCachedData()
		d.fs.endChange()
		return Stats{}, newPathError("mkdir", path, err)
	}

	d.fs.mu.Lock()
	if d.isWatchedLocked(false) {
		d.stats = &s
	}
	d.fs.mu.Unlock()

	d.fs.endChangeWithParent(ctx, "mkdir", parentPath)
	return s, nil
}
