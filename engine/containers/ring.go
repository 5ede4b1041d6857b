package containers

import "errors"

var (
	ErrRingEmpty = errors.New("ring is empty")
)

// Ring is a fixed-size circular sequence with a cursor. Next advances the cursor modulo the
// size; the slots themselves are reused, never reallocated.
type Ring[T any] struct {
	data  []T
	index int
}

// NewRing creates a ring of size slots, each initialised by fill (may be nil).
func NewRing[T any](size int, fill func(i int) T) *Ring[T] {
	r := &Ring[T]{data: make([]T, size)}
	if fill != nil {
		for i := range r.data {
			r.data[i] = fill(i)
		}
	}
	return r
}

// Get returns the slot under the cursor.
func (r *Ring[T]) Get() (T, error) {
	if len(r.data) == 0 {
		var zero T
		return zero, ErrRingEmpty
	}
	return r.data[r.index], nil
}

// Set replaces the slot under the cursor.
func (r *Ring[T]) Set(value T) {
	if len(r.data) > 0 {
		r.data[r.index] = value
	}
}

// Next advances the cursor and returns the new index.
func (r *Ring[T]) Next() int {
	if len(r.data) > 0 {
		r.index = (r.index + 1) % len(r.data)
	}
	return r.index
}

func (r *Ring[T]) Index() int {
	return r.index
}

func (r *Ring[T]) Len() int {
	return len(r.data)
}

// Each visits every slot in storage order.
func (r *Ring[T]) Each(fn func(i int, value T)) {
	for i, v := range r.data {
		fn(i, v)
	}
}

// Reset drops every slot and sets the cursor back to zero.
func (r *Ring[T]) Reset() {
	clear(r.data)
	r.index = 0
}
