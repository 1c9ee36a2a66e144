// Package event provides listener registries with explicit subscription
// handles.
package event

import "sync"

// Subscription is returned by Listeners.Add. Cancel removes the listener;
// calling it more than once is a no-op.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// NewSubscription returns a handle running cancel once, for registries built
// on top of Listeners.
func NewSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel}
}

// Cancel unregisters the listener.
func (s *Subscription) Cancel() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

type entry[T any] struct {
	id uint64
	fn func(T)
}

// Listeners is a list of callbacks receiving values of type T.
// The zero value is ready to use. Listeners is safe for concurrent use,
// though Fire delivers synchronously on the calling goroutine.
type Listeners[T any] struct {
	mu      sync.Mutex
	nextID  uint64
	entries []entry[T]
}

// Add registers fn and returns the handle that removes it.
func (l *Listeners[T]) Add(fn func(T)) *Subscription {
	l.mu.Lock()
	l.nextID++
	id := l.nextID
	l.entries = append(l.entries, entry[T]{id: id, fn: fn})
	l.mu.Unlock()

	return &Subscription{cancel: func() { l.remove(id) }}
}

func (l *Listeners[T]) remove(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, e := range l.entries {
		if e.id == id {
			l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
			return
		}
	}
}

// Fire calls every listener in registration order. Listeners added or
// cancelled while firing take effect on the next Fire.
func (l *Listeners[T]) Fire(v T) {
	l.mu.Lock()
	snapshot := l.entries
	l.mu.Unlock()

	for _, e := range snapshot {
		e.fn(v)
	}
}

// Len returns the number of registered listeners.
func (l *Listeners[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
