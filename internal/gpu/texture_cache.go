package gpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/kelp/internal/atlas"
	"github.com/gogpu/kelp/internal/slotmap"
	"github.com/gogpu/wgpu/hal"
)

// atlasFormat is the pixel format of the shared atlas array.
const atlasFormat = gputypes.TextureFormatRGBA8Unorm

// bytesPerPixel of atlasFormat.
const bytesPerPixel = 4

// TextureAllocation locates a logical texture inside the atlas array.
type TextureAllocation struct {
	Layer int
	Rect  atlas.Rect
}

// SourceKind distinguishes the atlas from a render target.
type SourceKind uint8

const (
	// SourceAtlas is the shared atlas array texture.
	SourceAtlas SourceKind = iota
	// SourceTarget is a single render target.
	SourceTarget
)

// Source is a sampled texture: the atlas or one render target. The zero
// value is the atlas. Source is comparable and used as a cache key.
type Source struct {
	Kind   SourceKind
	Target slotmap.Handle
}

// AtlasSource is the atlas array texture.
var AtlasSource = Source{Kind: SourceAtlas}

// TargetSource returns the Source for a render target handle.
func TargetSource(h slotmap.Handle) Source {
	return Source{Kind: SourceTarget, Target: h}
}

// RenderTarget is an off-screen color texture in the surface format.
type RenderTarget struct {
	Texture hal.Texture

	// SampleView is a one-layer 2DArray view so the sprite pipeline can
	// sample targets and the atlas through the same binding.
	SampleView hal.TextureView

	// AttachView is a plain 2D view used as a color attachment.
	AttachView hal.TextureView

	Width  uint32
	Height uint32

	usage gputypes.TextureUsage
}

// Transition returns the barrier moving the target to usage, and false if
// it is already there.
func (t *RenderTarget) Transition(usage gputypes.TextureUsage) (hal.TextureBarrier, bool) {
	if t.usage == usage {
		return hal.TextureBarrier{}, false
	}
	b := hal.TextureBarrier{
		Texture: t.Texture,
		Range: hal.TextureRange{
			Aspect:          gputypes.TextureAspectAll,
			MipLevelCount:   1,
			ArrayLayerCount: 1,
		},
		Usage: hal.TextureUsageTransition{OldUsage: t.usage, NewUsage: usage},
	}
	t.usage = usage
	return b, true
}

// Usage returns the last usage the target was transitioned to.
func (t *RenderTarget) Usage() gputypes.TextureUsage { return t.usage }

// TextureCacheConfig sizes the atlas.
type TextureCacheConfig struct {
	Atlas        atlas.Config
	TargetFormat gputypes.TextureFormat
}

// TextureCache maps texture and target handles to GPU storage. Logical
// textures are packed into one RGBA8 array texture created up front with
// the maximum layer count. Render targets are standalone textures.
type TextureCache struct {
	device hal.Device
	queue  hal.Queue

	alloc     *atlas.Allocator
	atlasTex  hal.Texture
	atlasView hal.TextureView

	targetFormat gputypes.TextureFormat

	textures *slotmap.Map[TextureAllocation]
	targets  *slotmap.Map[*RenderTarget]
}

// NewTextureCache creates the atlas array texture and an empty cache.
func NewTextureCache(device hal.Device, queue hal.Queue, cfg TextureCacheConfig) (*TextureCache, error) {
	if cfg.TargetFormat == gputypes.TextureFormatUndefined {
		cfg.TargetFormat = gputypes.TextureFormatBGRA8Unorm
	}
	c := &TextureCache{
		device:       device,
		queue:        queue,
		alloc:        atlas.New(cfg.Atlas),
		targetFormat: cfg.TargetFormat,
		textures:     slotmap.New[TextureAllocation](),
		targets:      slotmap.New[*RenderTarget](),
	}

	size := uint32(c.alloc.Size())        //nolint:gosec // clamped to [MinSize, 2^31)
	layers := uint32(c.alloc.MaxLayers()) //nolint:gosec // small positive count
	tex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         "kelp_atlas",
		Size:          hal.Extent3D{Width: size, Height: size, DepthOrArrayLayers: layers},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        atlasFormat,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create atlas texture: %w", err)
	}
	c.atlasTex = tex

	view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:           "kelp_atlas_view",
		Format:          atlasFormat,
		Dimension:       gputypes.TextureViewDimension2DArray,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   1,
		ArrayLayerCount: layers,
	})
	if err != nil {
		c.Destroy()
		return nil, fmt.Errorf("create atlas view: %w", err)
	}
	c.atlasView = view

	slogger().Debug("kelp: atlas created",
		"size", size,
		"layers", layers,
		"padding", c.alloc.Padding())
	return c, nil
}

func checkPixels(w, h int, data []byte) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, w, h)
	}
	if len(data) != w*h*bytesPerPixel {
		return fmt.Errorf("%w: %dx%d needs %d bytes, got %d",
			ErrInvalidDimensions, w, h, w*h*bytesPerPixel, len(data))
	}
	return nil
}

// Create allocates atlas space for a w x h texture and uploads rgba.
func (c *TextureCache) Create(w, h int, rgba []byte) (slotmap.Handle, error) {
	if err := checkPixels(w, h, rgba); err != nil {
		return 0, err
	}
	handle, err := c.CreateEmpty(w, h)
	if err != nil {
		return 0, err
	}
	alloc, _ := c.textures.Get(handle)
	if err := c.write(alloc, 0, 0, w, h, rgba); err != nil {
		_ = c.release(handle)
		return 0, err
	}
	return handle, nil
}

// CreateEmpty allocates atlas space without uploading. The contents are
// undefined until the first Update.
func (c *TextureCache) CreateEmpty(w, h int) (slotmap.Handle, error) {
	if w <= 0 || h <= 0 {
		return 0, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, w, h)
	}
	a, err := c.alloc.Allocate(w, h)
	if err != nil {
		if errors.Is(err, atlas.ErrInvalidSize) {
			return 0, fmt.Errorf("%w: %w", ErrInvalidDimensions, err)
		}
		return 0, err
	}
	handle := c.textures.Insert(TextureAllocation{Layer: a.Layer, Rect: a.Rect})
	slogger().Debug("kelp: texture allocated",
		"handle", uint64(handle),
		"layer", a.Layer,
		"rect", a.Rect.String())
	return handle, nil
}

// Update re-uploads the whole texture.
func (c *TextureCache) Update(handle slotmap.Handle, rgba []byte) error {
	alloc, err := c.Resolve(handle)
	if err != nil {
		return err
	}
	if err := checkPixels(alloc.Rect.Width, alloc.Rect.Height, rgba); err != nil {
		return err
	}
	return c.write(alloc, 0, 0, alloc.Rect.Width, alloc.Rect.Height, rgba)
}

// UpdateRegion uploads a sub-rectangle given in texture-local pixels.
func (c *TextureCache) UpdateRegion(handle slotmap.Handle, x, y, w, h int, rgba []byte) error {
	alloc, err := c.Resolve(handle)
	if err != nil {
		return err
	}
	if err := checkPixels(w, h, rgba); err != nil {
		return err
	}
	local := atlas.Rect{Width: alloc.Rect.Width, Height: alloc.Rect.Height}
	if x < 0 || y < 0 || !local.ContainsRect(atlas.Rect{X: x, Y: y, Width: w, Height: h}) {
		return fmt.Errorf("%w: region (%d,%d %dx%d) outside %dx%d texture",
			ErrInvalidDimensions, x, y, w, h, alloc.Rect.Width, alloc.Rect.Height)
	}
	return c.write(alloc, x, y, w, h, rgba)
}

func (c *TextureCache) write(alloc TextureAllocation, x, y, w, h int, rgba []byte) error {
	//nolint:gosec // atlas coordinates and sizes are bounded by the layer size
	err := c.queue.WriteTexture(
		&hal.ImageCopyTexture{
			Texture:  c.atlasTex,
			MipLevel: 0,
			Origin: hal.Origin3D{
				X: uint32(alloc.Rect.X + x),
				Y: uint32(alloc.Rect.Y + y),
				Z: uint32(alloc.Layer),
			},
			Aspect: gputypes.TextureAspectAll,
		},
		rgba,
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(w * bytesPerPixel),
			RowsPerImage: uint32(h),
		},
		&hal.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1},
	)
	if err != nil {
		return fmt.Errorf("write atlas texture: %w", err)
	}
	return nil
}

// Release frees the atlas rectangle. The handle never resolves again.
func (c *TextureCache) Release(handle slotmap.Handle) error {
	if !c.textures.Contains(handle) {
		return fmt.Errorf("%w: %#x", ErrInvalidTextureID, uint64(handle))
	}
	return c.release(handle)
}

func (c *TextureCache) release(handle slotmap.Handle) error {
	alloc, _ := c.textures.Remove(handle)
	if err := c.alloc.Free(alloc.Layer, alloc.Rect); err != nil {
		return fmt.Errorf("free atlas rect: %w", err)
	}
	return nil
}

// Resolve returns the allocation behind a texture handle.
func (c *TextureCache) Resolve(handle slotmap.Handle) (TextureAllocation, error) {
	alloc, ok := c.textures.Get(handle)
	if !ok {
		return TextureAllocation{}, fmt.Errorf("%w: %#x", ErrInvalidTextureID, uint64(handle))
	}
	return alloc, nil
}

// CreateTarget creates a w x h render target in the surface format.
func (c *TextureCache) CreateTarget(w, h uint32) (slotmap.Handle, error) {
	if w == 0 || h == 0 {
		return 0, fmt.Errorf("%w: target %dx%d", ErrInvalidDimensions, w, h)
	}
	tex, err := c.device.CreateTexture(&hal.TextureDescriptor{
		Label:         "kelp_render_target",
		Size:          hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        c.targetFormat,
		Usage: gputypes.TextureUsageRenderAttachment |
			gputypes.TextureUsageTextureBinding |
			gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return 0, fmt.Errorf("create render target: %w", err)
	}
	t := &RenderTarget{Texture: tex, Width: w, Height: h}

	t.SampleView, err = c.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:           "kelp_render_target_sample_view",
		Format:          c.targetFormat,
		Dimension:       gputypes.TextureViewDimension2DArray,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   1,
		ArrayLayerCount: 1,
	})
	if err != nil {
		c.destroyTarget(t)
		return 0, fmt.Errorf("create render target view: %w", err)
	}

	t.AttachView, err = c.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:           "kelp_render_target_attach_view",
		Format:          c.targetFormat,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   1,
		ArrayLayerCount: 1,
	})
	if err != nil {
		c.destroyTarget(t)
		return 0, fmt.Errorf("create render target view: %w", err)
	}

	handle := c.targets.Insert(t)
	slogger().Debug("kelp: render target created", "handle", uint64(handle), "width", w, "height", h)
	return handle, nil
}

// ResolveTarget returns the render target behind a handle.
func (c *TextureCache) ResolveTarget(handle slotmap.Handle) (*RenderTarget, error) {
	t, ok := c.targets.Get(handle)
	if !ok {
		return nil, fmt.Errorf("%w: %#x", ErrInvalidTargetID, uint64(handle))
	}
	return t, nil
}

// ReleaseTarget destroys a render target. Callers must drop its bind groups
// first.
func (c *TextureCache) ReleaseTarget(handle slotmap.Handle) error {
	t, ok := c.targets.Remove(handle)
	if !ok {
		return fmt.Errorf("%w: %#x", ErrInvalidTargetID, uint64(handle))
	}
	c.destroyTarget(t)
	return nil
}

func (c *TextureCache) destroyTarget(t *RenderTarget) {
	if t.AttachView != nil {
		c.device.DestroyTextureView(t.AttachView)
		t.AttachView = nil
	}
	if t.SampleView != nil {
		c.device.DestroyTextureView(t.SampleView)
		t.SampleView = nil
	}
	if t.Texture != nil {
		c.device.DestroyTexture(t.Texture)
		t.Texture = nil
	}
}

// SourceView returns the sampled view for src.
func (c *TextureCache) SourceView(src Source) (hal.TextureView, error) {
	if src.Kind == SourceAtlas {
		return c.atlasView, nil
	}
	t, err := c.ResolveTarget(src.Target)
	if err != nil {
		return nil, err
	}
	return t.SampleView, nil
}

// AtlasSize returns the edge length of an atlas layer in pixels.
func (c *TextureCache) AtlasSize() int { return c.alloc.Size() }

// Allocator exposes the atlas allocator for statistics.
func (c *TextureCache) Allocator() *atlas.Allocator { return c.alloc }

// Textures returns the number of live logical textures.
func (c *TextureCache) Textures() int { return c.textures.Len() }

// Targets returns the number of live render targets.
func (c *TextureCache) Targets() int { return c.targets.Len() }

// Destroy releases the atlas and every render target.
func (c *TextureCache) Destroy() {
	c.targets.Range(func(_ slotmap.Handle, t *RenderTarget) bool {
		c.destroyTarget(t)
		return true
	})
	c.targets = slotmap.New[*RenderTarget]()
	c.textures = slotmap.New[TextureAllocation]()
	c.alloc.Reset()
	if c.atlasView != nil {
		c.device.DestroyTextureView(c.atlasView)
		c.atlasView = nil
	}
	if c.atlasTex != nil {
		c.device.DestroyTexture(c.atlasTex)
		c.atlasTex = nil
	}
}
