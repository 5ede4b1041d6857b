package vulkan

import "sync"

// registry maps the opaque uint64 handles handed to the render core onto driver objects.
// Handle 0 is never minted.
type registry[T any] struct {
	mu    sync.RWMutex
	next  uint64
	items map[uint64]T
}

func (r *registry[T]) add(v T) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.items == nil {
		r.items = make(map[uint64]T)
	}
	r.next++
	r.items[r.next] = v
	return r.next
}

func (r *registry[T]) get(h uint64) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.items[h]
	return v, ok
}

// must returns the zero value for unknown handles, which the driver treats as null.
func (r *registry[T]) must(h uint64) T {
	v, _ := r.get(h)
	return v
}

func (r *registry[T]) remove(h uint64) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.items[h]
	delete(r.items, h)
	return v, ok
}

func (r *registry[T]) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.items)
}

// removeIf drops every entry matching pred.
func (r *registry[T]) removeIf(pred func(T) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for h, v := range r.items {
		if pred(v) {
			delete(r.items, h)
		}
	}
}

// drain empties the registry and returns what was left in it.
func (r *registry[T]) drain() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]T, 0, len(r.items))
	for _, v := range r.items {
		out = append(out, v)
	}
	clear(r.items)
	return out
}
