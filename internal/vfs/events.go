package vfs

import "sync"

// Event is a ChangeEvent or a RenameEvent.
type Event interface {
	EventName() string
}

// ChangeEvent reports that an entry changed. Entry is nil for a wholesale
// change, after which consumers should re-derive their state. For
// directories Added and Removed hold the children that appeared and
// disappeared; both may be empty.
type ChangeEvent struct {
	Entry   Entry
	Added   []Entry
	Removed []Entry
}

// EventName returns "change".
func (ChangeEvent) EventName() string { return "change" }

// Wholesale reports whether anything may have changed.
func (e ChangeEvent) Wholesale() bool { return e.Entry == nil }

// RenameEvent reports that OldPath was moved to NewPath.
type RenameEvent struct {
	OldPath string
	NewPath string
}

// EventName returns "rename".
func (RenameEvent) EventName() string { return "rename" }

type subscriber[T any] struct {
	id int
	fn func(T)
}

// subscribers is an ordered observer list.
type subscribers[T any] struct {
	mu   sync.Mutex
	next int
	list []subscriber[T]
}

func (s *subscribers[T]) add(fn func(T)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	id := s.next
	s.list = append(s.list, subscriber[T]{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.list {
			if sub.id == id {
				s.list = append(s.list[:i:i], s.list[i+1:]...)
				return
			}
		}
	}
}

func (s *subscribers[T]) snapshot() []func(T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fns := make([]func(T), len(s.list))
	for i, sub := range s.list {
		fns[i] = sub.fn
	}
	return fns
}
