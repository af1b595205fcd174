// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package atlas

import "math"

// GuillotinePacker implements guillotine bin packing over a free-rectangle
// list.
//
// Each allocation picks the free rectangle with the best short-side fit,
// places the request in its top-left corner and splits the remainder into
// two disjoint rectangles along the shorter leftover axis. Free merges the
// returned rectangle with neighbours that share a full edge, which undoes
// splits when allocations are released in any order.
type GuillotinePacker struct {
	width  int
	height int

	free []Rect
	live map[Rect]struct{}

	usedArea int
}

// NewGuillotinePacker creates a packer for a width x height layer.
func NewGuillotinePacker(width, height int) *GuillotinePacker {
	p := &GuillotinePacker{
		width:  width,
		height: height,
		live:   make(map[Rect]struct{}),
	}
	p.Reset()
	return p
}

// Allocate reserves a width x height rectangle.
func (p *GuillotinePacker) Allocate(width, height int) (Rect, bool) {
	if width <= 0 || height <= 0 {
		return Rect{}, false
	}

	best := -1
	bestShort, bestLong := math.MaxInt, math.MaxInt
	for i, f := range p.free {
		if width > f.Width || height > f.Height {
			continue
		}
		leftW, leftH := f.Width-width, f.Height-height
		short, long := min(leftW, leftH), max(leftW, leftH)
		if short < bestShort || (short == bestShort && long < bestLong) {
			best, bestShort, bestLong = i, short, long
		}
	}
	if best < 0 {
		return Rect{}, false
	}

	f := p.free[best]
	last := len(p.free) - 1
	p.free[best] = p.free[last]
	p.free = p.free[:last]

	r := Rect{X: f.X, Y: f.Y, Width: width, Height: height}
	leftW, leftH := f.Width-width, f.Height-height

	var right, bottom Rect
	if leftW < leftH {
		// Horizontal cut: the bottom piece spans the full width.
		right = Rect{X: f.X + width, Y: f.Y, Width: leftW, Height: height}
		bottom = Rect{X: f.X, Y: f.Y + height, Width: f.Width, Height: leftH}
	} else {
		// Vertical cut: the right piece spans the full height.
		right = Rect{X: f.X + width, Y: f.Y, Width: leftW, Height: f.Height}
		bottom = Rect{X: f.X, Y: f.Y + height, Width: width, Height: leftH}
	}
	if right.IsValid() {
		p.free = append(p.free, right)
	}
	if bottom.IsValid() {
		p.free = append(p.free, bottom)
	}

	p.live[r] = struct{}{}
	p.usedArea += r.Area()
	return r, true
}

// Free returns r to the free list and merges it with adjacent free space.
func (p *GuillotinePacker) Free(r Rect) bool {
	if _, ok := p.live[r]; !ok {
		return false
	}
	delete(p.live, r)
	p.usedArea -= r.Area()

	p.free = append(p.free, r)
	p.merge()
	return true
}

// merge repeatedly joins pairs of free rectangles that share a full edge.
func (p *GuillotinePacker) merge() {
	for merged := true; merged; {
		merged = false
		for i := 0; i < len(p.free) && !merged; i++ {
			for j := i + 1; j < len(p.free); j++ {
				if u, ok := union(p.free[i], p.free[j]); ok {
					p.free[i] = u
					p.free[j] = p.free[len(p.free)-1]
					p.free = p.free[:len(p.free)-1]
					merged = true
					break
				}
			}
		}
	}
}

// union returns the bounding rectangle of a and b when they tile it exactly.
func union(a, b Rect) (Rect, bool) {
	if a.Y == b.Y && a.Height == b.Height {
		if a.MaxX() == b.X {
			return Rect{X: a.X, Y: a.Y, Width: a.Width + b.Width, Height: a.Height}, true
		}
		if b.MaxX() == a.X {
			return Rect{X: b.X, Y: a.Y, Width: a.Width + b.Width, Height: a.Height}, true
		}
	}
	if a.X == b.X && a.Width == b.Width {
		if a.MaxY() == b.Y {
			return Rect{X: a.X, Y: a.Y, Width: a.Width, Height: a.Height + b.Height}, true
		}
		if b.MaxY() == a.Y {
			return Rect{X: a.X, Y: b.Y, Width: a.Width, Height: a.Height + b.Height}, true
		}
	}
	return Rect{}, false
}

// Reset clears all allocations.
func (p *GuillotinePacker) Reset() {
	p.free = append(p.free[:0], Rect{Width: p.width, Height: p.height})
	clear(p.live)
	p.usedArea = 0
}

// UsedArea returns the total area of live allocations.
func (p *GuillotinePacker) UsedArea() int { return p.usedArea }

// AllocCount returns the number of live allocations.
func (p *GuillotinePacker) AllocCount() int { return len(p.live) }

// FreeRects returns the number of rectangles on the free list.
func (p *GuillotinePacker) FreeRects() int { return len(p.free) }
