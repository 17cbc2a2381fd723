package watcher

import "time"

// debouncer coalesces repeated changes to the same routed path. It is
// guarded by Watcher.mu.
type debouncer struct {
	window  time.Duration
	pending map[string]*time.Timer
}

func newDebouncer(window time.Duration) *debouncer {
	return &debouncer{window: window, pending: make(map[string]*time.Timer)}
}

// schedule arms or re-arms the timer for path and reports whether an earlier
// change was coalesced.
func (d *debouncer) schedule(path string, flush func(string)) bool {
	if timer, ok := d.pending[path]; ok {
		timer.Reset(d.window)
		return true
	}
	d.pending[path] = time.AfterFunc(d.window, func() { flush(path) })
	return false
}

// pop reports whether path was pending and forgets it.
func (d *debouncer) pop(path string) bool {
	_, ok := d.pending[path]
	delete(d.pending, path)
	return ok
}

func (d *debouncer) stop() {
	for _, timer := range d.pending {
		timer.Stop()
	}
	d.pending = make(map[string]*time.Timer)
}
