package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/kelp/internal/cache"
	"github.com/gogpu/wgpu/hal"
)

// bindGroupKey identifies one texture bind group.
type bindGroupKey struct {
	source Source
	smooth bool
}

// BindGroupCache maps (source, filter) pairs to texture bind groups for
// group 1 of the sprite pipeline layout. Entries are created on first use
// and stay until Destroy, except for render targets released explicitly.
type BindGroupCache struct {
	device   hal.Device
	textures *TextureCache

	// Binding 0: texture_2d_array<f32>, Binding 1: sampler.
	layout hal.BindGroupLayout
	point  hal.Sampler
	linear hal.Sampler

	groups *cache.Cache[bindGroupKey, hal.BindGroup]
}

// NewBindGroupCache creates the texture bind group layout and both samplers.
func NewBindGroupCache(device hal.Device, textures *TextureCache) (*BindGroupCache, error) {
	c := &BindGroupCache{
		device:   device,
		textures: textures,
		groups:   cache.New[bindGroupKey, hal.BindGroup](),
	}

	layout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "kelp_texture_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageFragment,
				Texture: &gputypes.TextureBindingLayout{
					SampleType:    gputypes.TextureSampleTypeFloat,
					ViewDimension: gputypes.TextureViewDimension2DArray,
				},
			},
			{
				Binding:    1,
				Visibility: gputypes.ShaderStageFragment,
				Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create texture bind group layout: %w", err)
	}
	c.layout = layout

	point, err := device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "kelp_point_sampler",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeNearest,
		MinFilter:    gputypes.FilterModeNearest,
		MipmapFilter: gputypes.FilterModeNearest,
	})
	if err != nil {
		c.Destroy()
		return nil, fmt.Errorf("create point sampler: %w", err)
	}
	c.point = point

	linear, err := device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "kelp_linear_sampler",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeNearest,
	})
	if err != nil {
		c.Destroy()
		return nil, fmt.Errorf("create linear sampler: %w", err)
	}
	c.linear = linear

	return c, nil
}

// Layout returns the texture bind group layout.
func (c *BindGroupCache) Layout() hal.BindGroupLayout { return c.layout }

// Ensure creates the bind group for (src, smooth) if needed and returns its
// stable index.
func (c *BindGroupCache) Ensure(src Source, smooth bool) (int, error) {
	return c.groups.Ensure(bindGroupKey{source: src, smooth: smooth}, func() (hal.BindGroup, error) {
		return c.create(src, smooth)
	})
}

func (c *BindGroupCache) create(src Source, smooth bool) (hal.BindGroup, error) {
	view, err := c.textures.SourceView(src)
	if err != nil {
		return nil, err
	}
	sampler := c.point
	if smooth {
		sampler = c.linear
	}
	group, err := c.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "kelp_texture_bind_group",
		Layout: c.layout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.TextureViewBinding{TextureView: view.NativeHandle()}},
			{Binding: 1, Resource: gputypes.SamplerBinding{Sampler: sampler.NativeHandle()}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create texture bind group: %w", err)
	}
	slogger().Debug("kelp: bind group created",
		"source_kind", src.Kind,
		"target", uint64(src.Target),
		"smooth", smooth)
	return group, nil
}

// Index returns the index of an ensured bind group.
func (c *BindGroupCache) Index(src Source, smooth bool) (int, error) {
	i, ok := c.groups.Index(bindGroupKey{source: src, smooth: smooth})
	if !ok {
		return -1, fmt.Errorf("%w: source %d/%#x smooth=%v",
			ErrInvalidBindGroupID, src.Kind, uint64(src.Target), smooth)
	}
	return i, nil
}

// Get returns the bind group for an ensured key.
func (c *BindGroupCache) Get(src Source, smooth bool) (hal.BindGroup, error) {
	i, err := c.Index(src, smooth)
	if err != nil {
		return nil, err
	}
	return c.At(i)
}

// At returns the bind group at index i.
func (c *BindGroupCache) At(i int) (hal.BindGroup, error) {
	g, ok := c.groups.At(i)
	if !ok {
		return nil, fmt.Errorf("%w: index %d", ErrInvalidBindGroupID, i)
	}
	return g, nil
}

// RemoveSource destroys every bind group that samples src.
func (c *BindGroupCache) RemoveSource(src Source) {
	removed := c.groups.DeleteFunc(func(k bindGroupKey, _ hal.BindGroup) bool {
		return k.source == src
	})
	for _, g := range removed {
		c.device.DestroyBindGroup(g)
	}
}

// Len returns the number of live bind groups.
func (c *BindGroupCache) Len() int { return c.groups.Len() }

// Stats returns hit and miss counters.
func (c *BindGroupCache) Stats() cache.Stats { return c.groups.Stats() }

// Destroy releases all bind groups, samplers and the layout.
func (c *BindGroupCache) Destroy() {
	if c.device == nil {
		return
	}
	for _, g := range c.groups.DeleteFunc(func(bindGroupKey, hal.BindGroup) bool { return true }) {
		c.device.DestroyBindGroup(g)
	}
	if c.linear != nil {
		c.device.DestroySampler(c.linear)
		c.linear = nil
	}
	if c.point != nil {
		c.device.DestroySampler(c.point)
		c.point = nil
	}
	if c.layout != nil {
		c.device.DestroyBindGroupLayout(c.layout)
		c.layout = nil
	}
}
