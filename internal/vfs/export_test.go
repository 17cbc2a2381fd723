package vfs

var (
	BeginChange = (*FileSystem).beginChange
	EndChange   = (*FileSystem).endChange
)

func ActiveChanges(fs *FileSystem) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.changes
}

func Indexed(fs *FileSystem, path string) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.index.get(path) != nil
}

func CachedStats(e Entry) (Stats, bool) {
	b := e.base()
	b.fs.mu.Lock()
	defer b.fs.mu.Unlock()
	if b.stats == nil {
		return Stats{}, false
	}
	return *b.stats, true
}
