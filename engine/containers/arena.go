package containers

// Handle is a stable reference into an Arena. The zero Handle is never valid.
type Handle struct {
	index      uint32
	generation uint32
}

func (h Handle) Valid() bool {
	return h.generation != 0
}

type slot[T any] struct {
	value      T
	generation uint32
	used       bool
}

// Arena stores values in a slice and hands out generation-checked handles, so stale handles
// to freed slots are detected instead of aliasing the new occupant.
type Arena[T any] struct {
	slots []slot[T]
	free  []uint32
	count int
}

func NewArena[T any]() *Arena[T] {
	return &Arena[T]{}
}

func (a *Arena[T]) Insert(value T) Handle {
	var index uint32
	if n := len(a.free); n > 0 {
		index = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		a.slots = append(a.slots, slot[T]{})
		index = uint32(len(a.slots) - 1)
	}
	s := &a.slots[index]
	s.generation++
	s.value = value
	s.used = true
	a.count++
	return Handle{index: index, generation: s.generation}
}

func (a *Arena[T]) Get(h Handle) (T, bool) {
	if s := a.lookup(h); s != nil {
		return s.value, true
	}
	var zero T
	return zero, false
}

// Ptr returns a pointer into the arena valid until the next Insert.
func (a *Arena[T]) Ptr(h Handle) *T {
	if s := a.lookup(h); s != nil {
		return &s.value
	}
	return nil
}

func (a *Arena[T]) Remove(h Handle) (T, bool) {
	s := a.lookup(h)
	if s == nil {
		var zero T
		return zero, false
	}
	value := s.value
	var zero T
	s.value = zero
	s.used = false
	a.free = append(a.free, h.index)
	a.count--
	return value, true
}

func (a *Arena[T]) Len() int {
	return a.count
}

// Each visits live values in slot order.
func (a *Arena[T]) Each(fn func(h Handle, value T)) {
	for i := range a.slots {
		if s := &a.slots[i]; s.used {
			fn(Handle{index: uint32(i), generation: s.generation}, s.value)
		}
	}
}

func (a *Arena[T]) lookup(h Handle) *slot[T] {
	if !h.Valid() || int(h.index) >= len(a.slots) {
		return nil
	}
	s := &a.slots[h.index]
	if !s.used || s.generation != h.generation {
		return nil
	}
	return s
}
