// Package observe keeps a registry of callbacks interested in a value.
package observe

import "sync"

// Registry fans a value out to subscribers. Callbacks run synchronously on
// the publishing goroutine and must not call back into the publisher.
type Registry[T any] struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(T)
}

// Subscribe registers fn and returns a function removing it.
func (r *Registry[T]) Subscribe(fn func(T)) (cancel func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.subs == nil {
		r.subs = make(map[int]func(T))
	}
	id := r.nextID
	r.nextID++
	r.subs[id] = fn
	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}

// Publish delivers v to every current subscriber.
func (r *Registry[T]) Publish(v T) {
	r.mu.Lock()
	fns := make([]func(T), 0, len(r.subs))
	for _, fn := range r.subs {
		fns = append(fns, fn)
	}
	r.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}
