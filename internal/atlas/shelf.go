package atlas

// shelf represents a horizontal shelf in the shelf-packing algorithm.
type shelf struct {
	y      int // Top Y coordinate of this shelf
	height int // Height of this shelf (tallest item so far)
	nextX  int // Next available X position on this shelf
}

// ShelfPacker implements a simple shelf-packing algorithm for allocating
// rectangular regions within a fixed-size layer.
//
// The layer is divided into horizontal "shelves". Each new rectangle is
// placed on the first shelf it fits, or a new shelf is opened below the last
// one. Freed rectangles become holes that later allocations of equal or
// smaller size are carved out of before any shelf is touched.
type ShelfPacker struct {
	width  int
	height int

	shelves []*shelf
	holes   []Rect
	live    map[Rect]struct{}

	usedArea int
}

// NewShelfPacker creates a shelf packer for a width x height layer.
func NewShelfPacker(width, height int) *ShelfPacker {
	return &ShelfPacker{
		width:   width,
		height:  height,
		shelves: make([]*shelf, 0, 16),
		live:    make(map[Rect]struct{}),
	}
}

// Allocate finds space for a rectangle of the given size.
func (p *ShelfPacker) Allocate(width, height int) (Rect, bool) {
	if width <= 0 || height <= 0 {
		return Rect{}, false
	}
	if width > p.width || height > p.height {
		return Rect{}, false
	}

	if r, ok := p.allocateFromHole(width, height); ok {
		return p.commit(r), true
	}

	for _, s := range p.shelves {
		if p.fitsOnShelf(s, width, height) {
			return p.commit(p.allocateOnShelf(s, width, height)), true
		}
	}

	r, ok := p.allocateNewShelf(width, height)
	if !ok {
		return Rect{}, false
	}
	return p.commit(r), true
}

// allocateFromHole carves the request out of the first freed slot that is
// large enough. The leftover is split into right and bottom holes.
func (p *ShelfPacker) allocateFromHole(width, height int) (Rect, bool) {
	for i, h := range p.holes {
		if width > h.Width || height > h.Height {
			continue
		}
		p.holes = append(p.holes[:i], p.holes[i+1:]...)
		if right := (Rect{X: h.X + width, Y: h.Y, Width: h.Width - width, Height: height}); right.IsValid() {
			p.holes = append(p.holes, right)
		}
		if bottom := (Rect{X: h.X, Y: h.Y + height, Width: h.Width, Height: h.Height - height}); bottom.IsValid() {
			p.holes = append(p.holes, bottom)
		}
		return Rect{X: h.X, Y: h.Y, Width: width, Height: height}, true
	}
	return Rect{}, false
}

// fitsOnShelf checks if a rectangle fits on the given shelf.
func (p *ShelfPacker) fitsOnShelf(s *shelf, width, height int) bool {
	if s.nextX+width > p.width {
		return false
	}
	// Shelves are opened at the height of their first item and never grow.
	return height <= s.height
}

// allocateOnShelf allocates space on an existing shelf.
func (p *ShelfPacker) allocateOnShelf(s *shelf, width, height int) Rect {
	r := Rect{X: s.nextX, Y: s.y, Width: width, Height: height}
	s.nextX += width
	return r
}

// allocateNewShelf opens a shelf below the last one.
func (p *ShelfPacker) allocateNewShelf(width, height int) (Rect, bool) {
	newY := 0
	if len(p.shelves) > 0 {
		last := p.shelves[len(p.shelves)-1]
		newY = last.y + last.height
	}
	if newY+height > p.height {
		return Rect{}, false
	}

	p.shelves = append(p.shelves, &shelf{y: newY, height: height, nextX: width})
	return Rect{X: 0, Y: newY, Width: width, Height: height}, true
}

func (p *ShelfPacker) commit(r Rect) Rect {
	p.live[r] = struct{}{}
	p.usedArea += r.Area()
	return r
}

// Free turns a live allocation into a reusable hole.
func (p *ShelfPacker) Free(r Rect) bool {
	if _, ok := p.live[r]; !ok {
		return false
	}
	delete(p.live, r)
	p.usedArea -= r.Area()
	p.holes = append(p.holes, r)
	return true
}

// Reset clears all allocations, making the entire area available again.
func (p *ShelfPacker) Reset() {
	p.shelves = p.shelves[:0]
	p.holes = p.holes[:0]
	clear(p.live)
	p.usedArea = 0
}

// UsedArea returns the total area of allocated rectangles.
func (p *ShelfPacker) UsedArea() int { return p.usedArea }

// AllocCount returns the number of live allocations.
func (p *ShelfPacker) AllocCount() int { return len(p.live) }
