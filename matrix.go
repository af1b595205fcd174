package kelp

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// orthoRH returns a right-handed orthographic projection with a [0, 1]
// depth range.
func orthoRH(left, right, bottom, top, near, far float32) mgl32.Mat4 {
	rw := 1 / (right - left)
	rh := 1 / (top - bottom)
	rn := 1 / (near - far)
	return mgl32.Mat4{
		2 * rw, 0, 0, 0,
		0, 2 * rh, 0, 0,
		0, 0, rn, 0,
		-(left + right) * rw, -(top + bottom) * rh, rn * near, 1,
	}
}

// View returns the camera's view matrix: it rotates and scales world space
// about (X, Y) and moves that point to the viewport center.
func (c Camera) View() mgl32.Mat4 {
	sin, cos := math32.Sincos(c.Angle)
	cs := cos * c.Scale
	ss := sin * c.Scale
	x := 0.5*c.Width - cs*c.X + ss*c.Y
	y := 0.5*c.Height - ss*c.X - cs*c.Y
	return mgl32.Mat4{
		cs, ss, 0, 0,
		-ss, cs, 0, 0,
		0, 0, 1, 0,
		x, y, 0, 1,
	}
}

// Matrix returns the column-major view-projection matrix mapping world
// pixels to clip space, with y pointing down.
func (c Camera) Matrix() mgl32.Mat4 {
	return orthoRH(0, c.Width, c.Height, 0, 0, 1).Mul4(c.View())
}

// Affine returns the 2x3 world matrix as its two linear columns and its
// translation. A unit-quad corner (u, v) maps to col1*u + col2*v + trans.
func (t Transform) Affine() (col1, col2, trans [2]float32) {
	sin, cos := math32.Sincos(t.Rotation)
	a := cos * t.ScaleX
	b := -sin * t.ScaleY
	c := sin * t.ScaleX
	d := cos * t.ScaleY
	x := t.X + t.OriginX - a*t.OriginX - b*t.OriginY
	y := t.Y + t.OriginY - c*t.OriginX - d*t.OriginY
	return [2]float32{a, c}, [2]float32{b, d}, [2]float32{x, y}
}

// Apply maps the unit-quad point (u, v) through t.
func (t Transform) Apply(u, v float32) mgl32.Vec2 {
	col1, col2, trans := t.Affine()
	return mgl32.Vec2{
		col1[0]*u + col2[0]*v + trans[0],
		col1[1]*u + col2[1]*v + trans[1],
	}
}
