package kelp

import (
	"fmt"
	"image"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/kelp/internal/gpu"
	"github.com/gogpu/kelp/internal/slotmap"
	"golang.org/x/image/draw"
)

func slotHandle[H TextureHandle | TargetHandle](h H) slotmap.Handle {
	return slotmap.Handle(h)
}

// CreateTextureWithData packs a w x h RGBA8 texture into the atlas and
// uploads rgba, which must hold exactly w*h*4 bytes.
func (k *Kelp) CreateTextureWithData(w, h int, rgba []byte) (TextureHandle, error) {
	if err := k.usable(); err != nil {
		return 0, err
	}
	handle, err := k.textures.Create(w, h, rgba)
	if err != nil {
		return 0, err
	}
	return TextureHandle(handle), nil
}

// CreateEmptyTexture reserves atlas space for a w x h texture with
// undefined contents.
func (k *Kelp) CreateEmptyTexture(w, h int) (TextureHandle, error) {
	if err := k.usable(); err != nil {
		return 0, err
	}
	handle, err := k.textures.CreateEmpty(w, h)
	if err != nil {
		return 0, err
	}
	return TextureHandle(handle), nil
}

// CreateTextureFromImage converts img to RGBA8 and uploads it.
func (k *Kelp) CreateTextureFromImage(img image.Image) (TextureHandle, error) {
	if img == nil {
		return 0, fmt.Errorf("%w: nil image", ErrInvalidDimensions)
	}
	rgba := toRGBA(img)
	b := rgba.Bounds()
	return k.CreateTextureWithData(b.Dx(), b.Dy(), rgba.Pix)
}

// toRGBA returns img as a tightly packed *image.RGBA with its origin at
// (0, 0).
func toRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok && b.Min == (image.Point{}) && rgba.Stride == 4*b.Dx() {
		return rgba
	}
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// UpdateTexture replaces a texture's pixels.
func (k *Kelp) UpdateTexture(t TextureHandle, rgba []byte) error {
	if err := k.usable(); err != nil {
		return err
	}
	return k.textures.Update(slotHandle(t), rgba)
}

// UpdateTextureRegion replaces a w x h sub-rectangle at (x, y) of a
// texture.
func (k *Kelp) UpdateTextureRegion(t TextureHandle, x, y, w, h int, rgba []byte) error {
	if err := k.usable(); err != nil {
		return err
	}
	return k.textures.UpdateRegion(slotHandle(t), x, y, w, h, rgba)
}

// ReleaseTexture returns a texture's atlas space. The handle never
// resolves again. Lists built with it must not be submitted afterwards.
func (k *Kelp) ReleaseTexture(t TextureHandle) error {
	if err := k.usable(); err != nil {
		return err
	}
	return k.textures.Release(slotHandle(t))
}

// TextureSize returns the pixel size of a texture.
func (k *Kelp) TextureSize(t TextureHandle) (w, h int, err error) {
	if err := k.usable(); err != nil {
		return 0, 0, err
	}
	alloc, err := k.textures.Resolve(slotHandle(t))
	if err != nil {
		return 0, 0, err
	}
	return alloc.Rect.Width, alloc.Rect.Height, nil
}

// CreateRenderTarget creates a w x h off-screen target in the surface
// format. It can be drawn to by one list and sampled by later ones.
func (k *Kelp) CreateRenderTarget(w, h uint32) (TargetHandle, error) {
	if err := k.usable(); err != nil {
		return 0, err
	}
	handle, err := k.textures.CreateTarget(w, h)
	if err != nil {
		return 0, err
	}
	return TargetHandle(handle), nil
}

// ReleaseRenderTarget destroys a render target and its bind groups. It
// must be called between frames.
func (k *Kelp) ReleaseRenderTarget(t TargetHandle) error {
	if err := k.usable(); err != nil {
		return err
	}
	if k.frame != nil {
		return ErrFrameActive
	}
	h := slotHandle(t)
	if _, err := k.textures.ResolveTarget(h); err != nil {
		return err
	}
	k.groups.RemoveSource(gpu.TargetSource(h))
	return k.textures.ReleaseTarget(h)
}

// AtlasStats describes atlas occupancy.
type AtlasStats struct {
	Size        int
	Layers      int
	MaxLayers   int
	Allocations int
	Utilization float64
}

// AtlasStats returns current atlas occupancy.
func (k *Kelp) AtlasStats() AtlasStats {
	a := k.textures.Allocator()
	return AtlasStats{
		Size:        a.Size(),
		Layers:      a.Layers(),
		MaxLayers:   a.MaxLayers(),
		Allocations: a.AllocCount(),
		Utilization: a.Utilization(),
	}
}

// Texture wraps a TextureHandle with its renderer. It implements
// gpucontext.Texture, TextureUpdater and TextureRegionUpdater.
type Texture struct {
	k      *Kelp
	handle TextureHandle
	width  int
	height int
}

var (
	_ gpucontext.Texture              = (*Texture)(nil)
	_ gpucontext.TextureUpdater       = (*Texture)(nil)
	_ gpucontext.TextureRegionUpdater = (*Texture)(nil)
	_ gpucontext.TextureCreator       = (*Kelp)(nil)
)

// NewTextureFromRGBA implements gpucontext.TextureCreator.
func (k *Kelp) NewTextureFromRGBA(width, height int, data []byte) (gpucontext.Texture, error) {
	h, err := k.CreateTextureWithData(width, height, data)
	if err != nil {
		return nil, err
	}
	return &Texture{k: k, handle: h, width: width, height: height}, nil
}

// Handle returns the wrapped handle for use in AddInstances.
func (t *Texture) Handle() TextureHandle { return t.handle }

// Width returns the texture width in pixels.
func (t *Texture) Width() int { return t.width }

// Height returns the texture height in pixels.
func (t *Texture) Height() int { return t.height }

// UpdateData replaces the whole texture.
func (t *Texture) UpdateData(data []byte) error {
	return t.k.UpdateTexture(t.handle, data)
}

// UpdateRegion replaces a sub-rectangle of the texture.
func (t *Texture) UpdateRegion(x, y, w, h int, data []byte) error {
	return t.k.UpdateTextureRegion(t.handle, x, y, w, h, data)
}

// Release returns the texture's atlas space.
func (t *Texture) Release() error {
	return t.k.ReleaseTexture(t.handle)
}
