package atlas

// Packer allocates rectangles inside a single fixed-size layer.
//
// Sizes passed to a Packer already include padding; the packer itself knows
// nothing about gutters.
type Packer interface {
	// Allocate reserves a width x height rectangle. ok is false when the
	// layer has no room.
	Allocate(width, height int) (r Rect, ok bool)

	// Free returns a rectangle to the layer. It reports false if r was not
	// a live allocation.
	Free(r Rect) bool

	// Reset clears all allocations.
	Reset()

	// UsedArea returns the total area of live allocations.
	UsedArea() int

	// AllocCount returns the number of live allocations.
	AllocCount() int
}

func newPacker(s Strategy, width, height int) Packer {
	if s == Shelf {
		return NewShelfPacker(width, height)
	}
	return NewGuillotinePacker(width, height)
}
