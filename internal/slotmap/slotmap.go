// Package slotmap provides a generation-checked arena addressed by integer
// handles.
//
// A handle packs a 32-bit slot index with a 32-bit generation. Removing a
// value bumps the slot's generation, so stale handles fail to resolve even
// after the slot is reused. Handle zero is never issued and can be used as
// "no handle" by callers.
package slotmap

// Handle identifies a value in a Map.
type Handle uint64

// Index returns the slot index encoded in the handle.
func (h Handle) Index() uint32 { return uint32(h) } //nolint:gosec // low 32 bits by construction

// Generation returns the generation encoded in the handle.
func (h Handle) Generation() uint32 { return uint32(h >> 32) }

func makeHandle(index, generation uint32) Handle {
	return Handle(uint64(generation)<<32 | uint64(index))
}

type slot[V any] struct {
	value      V
	generation uint32
	occupied   bool
}

// Map stores values behind generation-checked handles.
// Map is not safe for concurrent use.
type Map[V any] struct {
	slots []slot[V]
	free  []uint32
	len   int
}

// New creates an empty map.
func New[V any]() *Map[V] {
	return &Map[V]{}
}

// Insert stores v and returns its handle.
func (m *Map[V]) Insert(v V) Handle {
	var idx uint32
	if n := len(m.free); n > 0 {
		idx = m.free[n-1]
		m.free = m.free[:n-1]
	} else {
		idx = uint32(len(m.slots)) //nolint:gosec // slot count stays far below 2^32
		// Generation starts at 1 so that handle zero is never valid.
		m.slots = append(m.slots, slot[V]{generation: 1})
	}
	s := &m.slots[idx]
	s.value = v
	s.occupied = true
	m.len++
	return makeHandle(idx, s.generation)
}

// Get returns the value for h, or false if h is unknown or stale.
func (m *Map[V]) Get(h Handle) (V, bool) {
	if s := m.lookup(h); s != nil {
		return s.value, true
	}
	var zero V
	return zero, false
}

// Contains reports whether h resolves.
func (m *Map[V]) Contains(h Handle) bool {
	return m.lookup(h) != nil
}

// Remove deletes the value for h and returns it.
func (m *Map[V]) Remove(h Handle) (V, bool) {
	s := m.lookup(h)
	if s == nil {
		var zero V
		return zero, false
	}
	v := s.value
	var zero V
	s.value = zero
	s.occupied = false
	s.generation++
	if s.generation == 0 {
		s.generation = 1
	}
	m.free = append(m.free, h.Index())
	m.len--
	return v, true
}

// Len returns the number of live values.
func (m *Map[V]) Len() int { return m.len }

// Range calls fn for every live value until fn returns false.
func (m *Map[V]) Range(fn func(Handle, V) bool) {
	for i := range m.slots {
		s := &m.slots[i]
		if !s.occupied {
			continue
		}
		if !fn(makeHandle(uint32(i), s.generation), s.value) { //nolint:gosec // i < len(slots)
			return
		}
	}
}

func (m *Map[V]) lookup(h Handle) *slot[V] {
	idx := h.Index()
	if int(idx) >= len(m.slots) {
		return nil
	}
	s := &m.slots[idx]
	if !s.occupied || s.generation != h.Generation() {
		return nil
	}
	return s
}
