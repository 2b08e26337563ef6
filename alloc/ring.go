package alloc

func newRing[T any](capacity uint64) *ring[T] {
	return &ring[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// ring keeps items released to the allocator so they might be reused.
type ring[T any] struct {
	items []T

	capacity       uint64
	getPtr, putPtr uint64
	count          uint64
}

func (r *ring[T]) Get() (T, bool) {
	if r.count == 0 {
		var t T
		return t, false
	}
	if r.getPtr == r.capacity {
		r.getPtr = 0
	}
	item := r.items[r.getPtr]
	r.getPtr++
	r.count--
	return item, true
}

func (r *ring[T]) Put(item T) {
	if r.count == r.capacity {
		// This is really critical because it means that we deallocated more than allocated.
		panic("no space left in the ring")
	}
	if r.putPtr == r.capacity {
		r.putPtr = 0
	}

	r.items[r.putPtr] = item
	r.putPtr++
	r.count++
}

func (r *ring[T]) Len() uint64 {
	return r.count
}
