// Package handles maps Go values to opaque numeric handles that can cross
// the C boundary without pinning Go pointers. Each arena slot carries a
// generation counter bumped on free, so a stale handle (freed slot or a
// recycled slot from an earlier lifetime) is detected and rejected rather
// than resolving to the wrong value.
package handles

import "sync"

// Handle is the opaque value handed across the boundary. The low 32 bits
// are the slot index plus one (so the zero Handle is never valid), the
// high 32 bits are the slot's generation at allocation time.
type Handle uint64

// InvalidHandle never resolves.
const InvalidHandle Handle = 0

type slot[T any] struct {
	gen   uint32
	live  bool
	value T
}

// Arena is a generation-checked slot store. Safe for concurrent use.
type Arena[T any] struct {
	mu    sync.Mutex
	slots []slot[T]
	free  []uint32
}

// NewArena creates an empty arena.
func NewArena[T any]() *Arena[T] {
	return &Arena[T]{}
}

// Put stores a value and returns its handle. Freed slots are recycled
// with a bumped generation.
func (a *Arena[T]) Put(v T) Handle {
	a.mu.Lock()
	defer a.mu.Unlock()

	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
		a.slots[idx].live = true
		a.slots[idx].value = v
	} else {
		idx = uint32(len(a.slots))
		a.slots = append(a.slots, slot[T]{live: true, value: v})
	}
	return pack(idx, a.slots[idx].gen)
}

// Get resolves a handle. The second return is false for the zero handle,
// an out-of-range index, a freed slot, or a generation mismatch.
func (a *Arena[T]) Get(h Handle) (T, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var zero T
	idx, _, ok := a.locate(h)
	if !ok {
		return zero, false
	}
	return a.slots[idx].value, true
}

// Remove frees a handle's slot and returns the stored value. The slot's
// generation is bumped so the handle (and any copy of it) goes stale
// immediately.
func (a *Arena[T]) Remove(h Handle) (T, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var zero T
	idx, _, ok := a.locate(h)
	if !ok {
		return zero, false
	}

	v := a.slots[idx].value
	a.slots[idx].live = false
	a.slots[idx].gen++
	a.slots[idx].value = zero
	a.free = append(a.free, idx)
	return v, true
}

// Len returns the number of live slots.
func (a *Arena[T]) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.slots) - len(a.free)
}

// locate validates a handle. Caller holds a.mu.
func (a *Arena[T]) locate(h Handle) (uint32, uint32, bool) {
	if h == InvalidHandle {
		return 0, 0, false
	}
	idx, gen := unpack(h)
	if int(idx) >= len(a.slots) {
		return 0, 0, false
	}
	s := a.slots[idx]
	if !s.live || s.gen != gen {
		return 0, 0, false
	}
	return idx, gen, true
}

func pack(idx, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(idx+1))
}

func unpack(h Handle) (idx, gen uint32) {
	return uint32(h&0xffffffff) - 1, uint32(h >> 32)
}
