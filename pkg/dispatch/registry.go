package dispatch

import "sync"

// Handle identifies a registered subscriber.
type Handle uint64

type subscriber[T any] struct {
	handle Handle
	fn     func(T)
}

// Registry is an ordered set of callbacks. Subscribers are notified in
// registration order. Add and Remove may be called at any time, including
// from inside a callback; a notification works on a snapshot taken when it
// starts. The zero value is ready to use.
type Registry[T any] struct {
	mu   sync.Mutex
	next Handle
	subs []subscriber[T]
}

// Add registers fn and returns its handle. A nil fn is ignored and yields 0.
func (r *Registry[T]) Add(fn func(T)) Handle {
	if fn == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	r.subs = append(r.subs, subscriber[T]{handle: r.next, fn: fn})
	return r.next
}

// Remove unregisters h. It reports whether h was registered.
func (r *Registry[T]) Remove(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, s := range r.subs {
		if s.handle == h {
			// Copy so in-flight snapshots keep their view
			subs := make([]subscriber[T], 0, len(r.subs)-1)
			subs = append(subs, r.subs[:i]...)
			subs = append(subs, r.subs[i+1:]...)
			r.subs = subs
			return true
		}
	}
	return false
}

// Notify calls every subscriber with v, synchronously, in order.
func (r *Registry[T]) Notify(v T) {
	r.mu.Lock()
	subs := r.subs
	r.mu.Unlock()

	for _, s := range subs {
		s.fn(v)
	}
}

// Len returns the number of subscribers.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}
