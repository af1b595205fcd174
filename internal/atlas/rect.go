package atlas

import "fmt"

// Rect is an axis-aligned rectangle in layer pixel space.
type Rect struct {
	// X is the left edge of the rectangle.
	X int
	// Y is the top edge of the rectangle.
	Y int
	// Width is the rectangle width.
	Width int
	// Height is the rectangle height.
	Height int
}

// IsValid returns true if the rectangle has positive dimensions.
func (r Rect) IsValid() bool {
	return r.Width > 0 && r.Height > 0
}

// MaxX returns the exclusive right edge.
func (r Rect) MaxX() int { return r.X + r.Width }

// MaxY returns the exclusive bottom edge.
func (r Rect) MaxY() int { return r.Y + r.Height }

// Area returns Width*Height.
func (r Rect) Area() int { return r.Width * r.Height }

// Contains returns true if the point (x, y) is inside the rectangle.
func (r Rect) Contains(x, y int) bool {
	return x >= r.X && x < r.MaxX() && y >= r.Y && y < r.MaxY()
}

// ContainsRect returns true if o lies fully inside r.
func (r Rect) ContainsRect(o Rect) bool {
	return o.X >= r.X && o.Y >= r.Y && o.MaxX() <= r.MaxX() && o.MaxY() <= r.MaxY()
}

// Overlaps returns true if the two rectangles share any pixel.
func (r Rect) Overlaps(o Rect) bool {
	return r.X < o.MaxX() && o.X < r.MaxX() && r.Y < o.MaxY() && o.Y < r.MaxY()
}

// String returns a string representation of the rectangle.
func (r Rect) String() string {
	return fmt.Sprintf("Rect(%d,%d %dx%d)", r.X, r.Y, r.Width, r.Height)
}
