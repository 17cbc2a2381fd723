// Package watcher feeds fsnotify events into a vfs.FileSystem.
package watcher

import (
	"context"
	"errors"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/CageChen/watchfs/internal/vfs"
)

// DefaultDebounce is the coalescing window used when Options.Debounce is zero.
const DefaultDebounce = 100 * time.Millisecond

// StatFunc looks up fresh stats for a changed file.
type StatFunc func(ctx context.Context, path string) (vfs.Stats, error)

// Options configures a Watcher.
type Options struct {
	// Debounce is the per-path coalescing window. Negative disables it.
	Debounce time.Duration
	Logger   *zap.Logger
	// Stat, when set, attaches stats to file change notifications.
	Stat StatFunc
}

// Metrics is a point-in-time snapshot of watcher counters.
type Metrics struct {
	Watches         int
	EventsReceived  uint64
	EventsCoalesced uint64
	EventsDelivered uint64
}

// Watcher watches directories one level at a time. It implements vfs.Watcher.
type Watcher struct {
	watcher *fsnotify.Watcher
	logger  *zap.Logger
	stat    StatFunc

	mu        sync.Mutex
	onChange  vfs.ChangeFunc
	onOffline func()
	paths     map[string][]string
	debounce  *debouncer
	closed    bool
	done      chan struct{}

	received  atomic.Uint64
	coalesced atomic.Uint64
	delivered atomic.Uint64
}

var _ vfs.Watcher = (*Watcher)(nil)

// New creates a watcher and starts its event loop.
func New(opts Options) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	window := opts.Debounce
	if window == 0 {
		window = DefaultDebounce
	}

	w := &Watcher{
		watcher: fsw,
		logger:  logger.Named("watcher"),
		stat:    opts.Stat,
		paths:   make(map[string][]string),
		done:    make(chan struct{}),
	}
	if window > 0 {
		w.debounce = newDebouncer(window)
	}

	go w.eventLoop()
	return w, nil
}

// Init registers the callbacks. Events seen before Init are dropped.
func (w *Watcher) Init(onChange vfs.ChangeFunc, onOffline func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = onChange
	w.onOffline = onOffline
}

// WatchPath starts watching the directory at p. ignored holds glob patterns
// matched against the base name of changed children.
func (w *Watcher) WatchPath(_ context.Context, p string, ignored []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return vfs.ErrClosed
	}
	if err := w.watcher.Add(filepath.FromSlash(strings.TrimSuffix(p, "/"))); err != nil {
		return err
	}
	w.paths[dirKey(p)] = append([]string(nil), ignored...)
	return nil
}

// UnwatchPath stops watching p and every watched directory below it.
func (w *Watcher) UnwatchPath(_ context.Context, p string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.unwatchLocked(dirKey(p))
}

// UnwatchAll stops watching everything.
func (w *Watcher) UnwatchAll(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.unwatchLocked("")
}

func (w *Watcher) unwatchLocked(prefix string) error {
	var errs error
	for p := range w.paths {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		delete(w.paths, p)
		err := w.watcher.Remove(filepath.FromSlash(strings.TrimSuffix(p, "/")))
		if err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// Close stops the event loop and releases the underlying watches.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.debounce != nil {
		w.debounce.stop()
	}
	w.mu.Unlock()

	close(w.done)
	return w.watcher.Close()
}

// Metrics returns the current counters.
func (w *Watcher) Metrics() Metrics {
	w.mu.Lock()
	watches := len(w.paths)
	w.mu.Unlock()
	return Metrics{
		Watches:         watches,
		EventsReceived:  w.received.Load(),
		EventsCoalesced: w.coalesced.Load(),
		EventsDelivered: w.delivered.Load(),
	}
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				w.goOffline()
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				w.goOffline()
				return
			}
			w.handleError(err)
		}
	}
}

func (w *Watcher) goOffline() {
	w.mu.Lock()
	closed := w.closed
	fn := w.onOffline
	w.mu.Unlock()
	if closed {
		return
	}

	w.logger.Error("watcher stopped unexpectedly")
	if fn != nil {
		fn()
	}
}

func (w *Watcher) handleError(err error) {
	if errors.Is(err, fsnotify.ErrEventOverflow) {
		w.logger.Warn("event queue overflowed, reporting wholesale change")
		w.deliver("")
		return
	}
	w.logger.Warn("watcher error", zap.Error(err))
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	w.received.Add(1)

	target, ok := w.route(event)
	if !ok {
		return
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	if w.debounce == nil {
		w.mu.Unlock()
		w.deliver(target)
		return
	}
	if w.debounce.schedule(target, w.flush) {
		w.coalesced.Add(1)
	}
	w.mu.Unlock()
}

// route maps an fsnotify event to the path the file system should refresh.
// Structural changes refresh the parent listing; content changes refresh
// the file itself.
func (w *Watcher) route(event fsnotify.Event) (string, bool) {
	name := filepath.ToSlash(event.Name)
	parent := path.Dir(name)
	if parent != "/" {
		parent += "/"
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if matchAny(w.paths[parent], path.Base(name)) {
		return "", false
	}

	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		if !event.Has(fsnotify.Create) {
			// fsnotify drops the watch on a removed directory by itself.
			delete(w.paths, name+"/")
		}
		return parent, true
	case event.Has(fsnotify.Write), event.Has(fsnotify.Chmod):
		if _, ok := w.paths[name+"/"]; ok {
			return name + "/", true
		}
		return name, true
	}
	return "", false
}

func (w *Watcher) flush(p string) {
	w.mu.Lock()
	pending := !w.closed && w.debounce.pop(p)
	w.mu.Unlock()
	if pending {
		w.deliver(p)
	}
}

func (w *Watcher) deliver(p string) {
	w.mu.Lock()
	fn := w.onChange
	w.mu.Unlock()
	if fn == nil {
		return
	}

	var stats *vfs.Stats
	if p != "" && !strings.HasSuffix(p, "/") && w.stat != nil {
		if s, err := w.stat(context.Background(), p); err == nil {
			stats = &s
		}
	}

	w.logger.Debug("delivering change", zap.String("path", p), zap.Bool("stats", stats != nil))
	w.delivered.Add(1)
	fn(p, stats)
}

func dirKey(p string) string {
	if strings.HasSuffix(p, "/") {
		return p
	}
	return p + "/"
}

func matchAny(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if matched, _ := filepath.Match(pattern, name); matched {
			return true
		}
	}
	return false
}
