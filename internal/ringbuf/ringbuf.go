// Package ringbuf provides a fixed-capacity FIFO ring buffer that evicts its
// oldest element when full. It backs the bounded per-instrument histories of
// the signal engine: price windows, indicator snapshots and divergence proxies.
//
// A Ring is owned by a single goroutine and performs no locking.
package ringbuf

// Ring is a bounded FIFO of T. Pushing into a full ring overwrites the oldest
// element, so Len never exceeds Cap.
type Ring[T any] struct {
	buf   []T
	start int // index of the oldest element
	n     int

	// Number of elements overwritten since creation.
	evicted uint64
}

// New creates a ring holding at most capacity elements. Minimum capacity is 1.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v. When the ring is full the oldest element is evicted and
// Push returns true.
func (r *Ring[T]) Push(v T) bool {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = v
		r.n++
		return false
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
	r.evicted++
	return true
}

// At returns the i-th element, 0 being the oldest. Panics if i is out of range.
func (r *Ring[T]) At(i int) T {
	if i < 0 || i >= r.n {
		panic("ringbuf: index out of range")
	}
	return r.buf[(r.start+i)%len(r.buf)]
}

// AppendTo appends the contents, oldest first, to dst and returns the result.
// Passing dst[:0] lets callers reuse one scratch slice per tick.
func (r *Ring[T]) AppendTo(dst []T) []T {
	for i := 0; i < r.n; i++ {
		dst = append(dst, r.buf[(r.start+i)%len(r.buf)])
	}
	return dst
}

// Tail appends the newest min(k, Len) elements, oldest first, to dst.
func (r *Ring[T]) Tail(dst []T, k int) []T {
	if k > r.n {
		k = r.n
	}
	for i := r.n - k; i < r.n; i++ {
		dst = append(dst, r.buf[(r.start+i)%len(r.buf)])
	}
	return dst
}

// Values returns a freshly allocated copy of the contents, oldest first.
func (r *Ring[T]) Values() []T {
	return r.AppendTo(make([]T, 0, r.n))
}

// Len returns the current number of elements.
func (r *Ring[T]) Len() int { return r.n }

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Evicted returns the total number of elements overwritten by Push.
func (r *Ring[T]) Evicted() uint64 { return r.evicted }

// Reset empties the ring. Capacity and the eviction counter are kept.
func (r *Ring[T]) Reset() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.start = 0
	r.n = 0
}
