// Package atlas packs variable-sized textures into the layers of a shared
// GPU array texture.
//
// The package is pure bookkeeping: it never touches the GPU. The texture
// cache in internal/gpu owns the array texture and uploads pixels into the
// rectangles handed out here.
package atlas

import (
	"errors"
	"fmt"
)

// Atlas-related errors.
var (
	// ErrAtlasFull is returned when no active layer can fit the requested
	// size and the layer limit has been reached.
	ErrAtlasFull = errors.New("kelp: texture atlas is full")

	// ErrInvalidSize is returned for zero or negative allocation sizes.
	ErrInvalidSize = errors.New("kelp: invalid atlas allocation size")

	// ErrInvalidFree is returned when freeing a rectangle that is out of
	// bounds, on an unknown layer, or already free.
	ErrInvalidFree = errors.New("kelp: invalid atlas free")
)

// Default atlas settings.
const (
	// DefaultSize is the default layer dimension (2048x2048).
	DefaultSize = 2048

	// MinSize is the minimum layer dimension (256x256).
	MinSize = 256

	// DefaultMaxLayers is the default number of array layers.
	DefaultMaxLayers = 4

	// DefaultPadding is the gutter kept to the right of and below every
	// allocation. Padding is never allowed below 1 so linear filtering
	// cannot bleed between neighbours.
	DefaultPadding = 1
)

// Strategy selects the per-layer packing algorithm.
type Strategy int

const (
	// Guillotine splits free rectangles and merges them back on free.
	Guillotine Strategy = iota

	// Shelf packs rows of similar height, reusing freed slots.
	Shelf
)

// String returns the strategy name used in configuration files.
func (s Strategy) String() string {
	switch s {
	case Guillotine:
		return "guillotine"
	case Shelf:
		return "shelf"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy converts a configuration name into a Strategy.
// The empty string selects Guillotine.
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "", "guillotine":
		return Guillotine, nil
	case "shelf":
		return Shelf, nil
	default:
		return 0, fmt.Errorf("kelp: unknown atlas packing strategy %q", name)
	}
}

// Allocation is a rectangle on one atlas layer.
type Allocation struct {
	Layer int
	Rect  Rect
}

// String returns a string representation of the allocation.
func (a Allocation) String() string {
	return fmt.Sprintf("layer %d %s", a.Layer, a.Rect)
}

// Config holds configuration for creating an Allocator.
type Config struct {
	// Size is the width and height of every layer. Defaults to DefaultSize.
	Size int

	// MaxLayers bounds layer growth. Defaults to DefaultMaxLayers.
	MaxLayers int

	// Padding is the gutter between allocations. Clamped to at least 1.
	Padding int

	// Strategy selects the packer used for each layer.
	Strategy Strategy
}

// Allocator hands out rectangles across a growing set of layers.
//
// Layers are activated lazily: the first allocation that does not fit in any
// active layer opens the next one, up to MaxLayers. Allocator is not safe for
// concurrent use.
type Allocator struct {
	size      int
	maxLayers int
	padding   int
	strategy  Strategy

	layers []Packer
}

// New creates an allocator with a single active layer.
func New(cfg Config) *Allocator {
	size := cfg.Size
	if size <= 0 {
		size = DefaultSize
	}
	if size < MinSize {
		size = MinSize
	}
	maxLayers := cfg.MaxLayers
	if maxLayers <= 0 {
		maxLayers = DefaultMaxLayers
	}
	padding := cfg.Padding
	if padding < DefaultPadding {
		padding = DefaultPadding
	}

	a := &Allocator{
		size:      size,
		maxLayers: maxLayers,
		padding:   padding,
		strategy:  cfg.Strategy,
		layers:    make([]Packer, 0, maxLayers),
	}
	a.layers = append(a.layers, newPacker(cfg.Strategy, size, size))
	return a
}

// Allocate finds space for a width x height rectangle.
//
// The returned rectangle has exactly the requested size; the padding gutter
// is reserved to its right and bottom. Returns ErrAtlasFull when every layer
// up to MaxLayers is exhausted.
func (a *Allocator) Allocate(width, height int) (Allocation, error) {
	if width <= 0 || height <= 0 {
		return Allocation{}, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}

	paddedW := width + a.padding
	paddedH := height + a.padding
	if paddedW > a.size || paddedH > a.size {
		return Allocation{}, fmt.Errorf("%w: %dx%d does not fit a %dx%d layer",
			ErrAtlasFull, width, height, a.size, a.size)
	}

	for i, p := range a.layers {
		if r, ok := p.Allocate(paddedW, paddedH); ok {
			return Allocation{Layer: i, Rect: Rect{X: r.X, Y: r.Y, Width: width, Height: height}}, nil
		}
	}

	if len(a.layers) >= a.maxLayers {
		return Allocation{}, fmt.Errorf("%w: %d layers in use", ErrAtlasFull, len(a.layers))
	}

	p := newPacker(a.strategy, a.size, a.size)
	a.layers = append(a.layers, p)
	r, ok := p.Allocate(paddedW, paddedH)
	if !ok {
		return Allocation{}, ErrAtlasFull
	}
	return Allocation{Layer: len(a.layers) - 1, Rect: Rect{X: r.X, Y: r.Y, Width: width, Height: height}}, nil
}

// Free returns a rectangle previously produced by Allocate to its layer.
func (a *Allocator) Free(layer int, r Rect) error {
	if layer < 0 || layer >= len(a.layers) {
		return fmt.Errorf("%w: layer %d", ErrInvalidFree, layer)
	}
	padded := Rect{X: r.X, Y: r.Y, Width: r.Width + a.padding, Height: r.Height + a.padding}
	if !r.IsValid() || padded.X < 0 || padded.Y < 0 || padded.MaxX() > a.size || padded.MaxY() > a.size {
		return fmt.Errorf("%w: %s out of bounds", ErrInvalidFree, r)
	}
	if !a.layers[layer].Free(padded) {
		return fmt.Errorf("%w: %s on layer %d", ErrInvalidFree, r, layer)
	}
	return nil
}

// Reset clears every allocation and drops back to a single active layer.
func (a *Allocator) Reset() {
	a.layers = a.layers[:1]
	a.layers[0].Reset()
}

// Size returns the layer dimension in pixels.
func (a *Allocator) Size() int { return a.size }

// MaxLayers returns the layer limit.
func (a *Allocator) MaxLayers() int { return a.maxLayers }

// Layers returns the number of active layers.
func (a *Allocator) Layers() int { return len(a.layers) }

// Padding returns the gutter width.
func (a *Allocator) Padding() int { return a.padding }

// AllocCount returns the number of live allocations across all layers.
func (a *Allocator) AllocCount() int {
	n := 0
	for _, p := range a.layers {
		n += p.AllocCount()
	}
	return n
}

// Utilization returns the fraction of active layer area in use, padding
// included (0.0 to 1.0).
func (a *Allocator) Utilization() float64 {
	total := a.size * a.size * len(a.layers)
	if total == 0 {
		return 0
	}
	used := 0
	for _, p := range a.layers {
		used += p.UsedArea()
	}
	return float64(used) / float64(total)
}
