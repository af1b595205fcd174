package gpu

import (
	_ "embed"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/kelp/internal/cache"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

// Embedded sprite shader source.
//
//go:embed shaders/sprite.wgsl
var spriteShaderSource string

// SpriteShaderSource returns the built-in WGSL sprite shader. Custom
// variants must keep its vertex inputs, bind groups and entry points.
func SpriteShaderSource() string { return spriteShaderSource }

// BuiltinShader is the variant name of the built-in sprite shader.
const BuiltinShader = ""

// BlendMode selects the color blend equation of a pipeline.
type BlendMode uint8

const (
	// BlendAlpha is straight-alpha source-over.
	BlendAlpha BlendMode = iota
	// BlendAdditive adds the source, weighted by its alpha, to the target.
	BlendAdditive
)

// String returns the blend mode name.
func (b BlendMode) String() string {
	switch b {
	case BlendAlpha:
		return "alpha"
	case BlendAdditive:
		return "additive"
	default:
		return fmt.Sprintf("BlendMode(%d)", uint8(b))
	}
}

// Valid reports whether b is a known blend mode.
func (b BlendMode) Valid() bool { return b <= BlendAdditive }

// State returns the GPU blend state for b.
func (b BlendMode) State() gputypes.BlendState {
	if b == BlendAdditive {
		add := gputypes.BlendComponent{
			SrcFactor: gputypes.BlendFactorSrcAlpha,
			DstFactor: gputypes.BlendFactorOne,
			Operation: gputypes.BlendOperationAdd,
		}
		return gputypes.BlendState{Color: add, Alpha: add}
	}
	return gputypes.BlendStateAlpha()
}

type pipelineKey struct {
	shader string
	blend  BlendMode
}

// PipelineCache maps (shader variant, blend mode) pairs to render
// pipelines. All pipelines share one layout:
//
//	group 0: camera uniform (dynamic offset, vertex)
//	group 1: texture_2d_array + sampler (fragment)
type PipelineCache struct {
	device hal.Device
	format gputypes.TextureFormat

	cameraLayout  hal.BindGroupLayout
	textureLayout hal.BindGroupLayout
	pipeLayout    hal.PipelineLayout

	sources map[string]string
	modules map[string]hal.ShaderModule

	pipelines *cache.Cache[pipelineKey, hal.RenderPipeline]
}

// NewPipelineCache creates the camera layout and the shared pipeline
// layout. Shader modules and pipelines are created on first use.
func NewPipelineCache(device hal.Device, format gputypes.TextureFormat, textureLayout hal.BindGroupLayout) (*PipelineCache, error) {
	c := &PipelineCache{
		device:        device,
		format:        format,
		textureLayout: textureLayout,
		sources:       map[string]string{BuiltinShader: spriteShaderSource},
		modules:       make(map[string]hal.ShaderModule),
		pipelines:     cache.New[pipelineKey, hal.RenderPipeline](),
	}

	cameraLayout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "kelp_camera_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageVertex,
				Buffer: &gputypes.BufferBindingLayout{
					Type:             gputypes.BufferBindingTypeUniform,
					HasDynamicOffset: true,
					MinBindingSize:   CameraUniformSize,
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create camera layout: %w", err)
	}
	c.cameraLayout = cameraLayout

	pipeLayout, err := device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "kelp_sprite_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{c.cameraLayout, c.textureLayout},
	})
	if err != nil {
		c.Destroy()
		return nil, fmt.Errorf("create sprite pipeline layout: %w", err)
	}
	c.pipeLayout = pipeLayout

	return c, nil
}

// ValidateShader checks WGSL source by compiling it with naga.
func ValidateShader(wgsl string) error {
	if _, err := naga.Compile(wgsl); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidShader, err)
	}
	return nil
}

// RegisterShader adds a named shader variant. The source is validated now
// and compiled into a module on the first Ensure that uses it.
func (c *PipelineCache) RegisterShader(name, wgsl string) error {
	if _, ok := c.sources[name]; ok {
		return fmt.Errorf("%w: %q", ErrShaderExists, name)
	}
	if err := ValidateShader(wgsl); err != nil {
		return fmt.Errorf("shader %q: %w", name, err)
	}
	c.sources[name] = wgsl
	slogger().Debug("kelp: shader registered", "name", name, "bytes", len(wgsl))
	return nil
}

// HasShader reports whether a variant name is known.
func (c *PipelineCache) HasShader(name string) bool {
	_, ok := c.sources[name]
	return ok
}

// Ensure creates the pipeline for (shader, blend) if needed and returns its
// stable index.
func (c *PipelineCache) Ensure(shader string, blend BlendMode) (int, error) {
	if !blend.Valid() {
		return -1, fmt.Errorf("%w: blend mode %d", ErrInvalidPipelineID, blend)
	}
	if !c.HasShader(shader) {
		return -1, fmt.Errorf("%w: unknown shader %q", ErrInvalidPipelineID, shader)
	}
	return c.pipelines.Ensure(pipelineKey{shader: shader, blend: blend}, func() (hal.RenderPipeline, error) {
		return c.create(shader, blend)
	})
}

func (c *PipelineCache) module(shader string) (hal.ShaderModule, error) {
	if m, ok := c.modules[shader]; ok {
		return m, nil
	}
	label := "kelp_sprite_shader"
	if shader != BuiltinShader {
		label = "kelp_shader_" + shader
	}
	m, err := c.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{WGSL: c.sources[shader]},
	})
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", label, err)
	}
	c.modules[shader] = m
	return m, nil
}

func (c *PipelineCache) create(shader string, blend BlendMode) (hal.RenderPipeline, error) {
	module, err := c.module(shader)
	if err != nil {
		return nil, err
	}

	state := blend.State()
	pipeline, err := c.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "kelp_sprite_pipeline",
		Layout: c.pipeLayout,
		Vertex: hal.VertexState{
			Module:     module,
			EntryPoint: "vs_main",
			Buffers:    spriteVertexLayout(),
		},
		Fragment: &hal.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{
				{
					Format:    c.format,
					Blend:     &state,
					WriteMask: gputypes.ColorWriteMaskAll,
				},
			},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleStrip,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create sprite pipeline: %w", err)
	}
	slogger().Debug("kelp: pipeline created",
		"shader", shader,
		"blend", blend.String(),
		"format", c.format.String())
	return pipeline, nil
}

// Index returns the index of an ensured pipeline.
func (c *PipelineCache) Index(shader string, blend BlendMode) (int, error) {
	i, ok := c.pipelines.Index(pipelineKey{shader: shader, blend: blend})
	if !ok {
		return -1, fmt.Errorf("%w: shader %q blend %s", ErrInvalidPipelineID, shader, blend)
	}
	return i, nil
}

// Get returns the pipeline at index i.
func (c *PipelineCache) Get(i int) (hal.RenderPipeline, error) {
	p, ok := c.pipelines.At(i)
	if !ok {
		return nil, fmt.Errorf("%w: index %d", ErrInvalidPipelineID, i)
	}
	return p, nil
}

// CameraLayout returns the group 0 layout.
func (c *PipelineCache) CameraLayout() hal.BindGroupLayout { return c.cameraLayout }

// Format returns the color target format of every pipeline.
func (c *PipelineCache) Format() gputypes.TextureFormat { return c.format }

// Len returns the number of compiled pipelines.
func (c *PipelineCache) Len() int { return c.pipelines.Len() }

// Stats returns hit and miss counters.
func (c *PipelineCache) Stats() cache.Stats { return c.pipelines.Stats() }

// Destroy releases pipelines, shader modules and layouts in reverse
// creation order. The texture layout belongs to the BindGroupCache.
func (c *PipelineCache) Destroy() {
	if c.device == nil {
		return
	}
	for _, p := range c.pipelines.DeleteFunc(func(pipelineKey, hal.RenderPipeline) bool { return true }) {
		c.device.DestroyRenderPipeline(p)
	}
	for name, m := range c.modules {
		c.device.DestroyShaderModule(m)
		delete(c.modules, name)
	}
	if c.pipeLayout != nil {
		c.device.DestroyPipelineLayout(c.pipeLayout)
		c.pipeLayout = nil
	}
	if c.cameraLayout != nil {
		c.device.DestroyBindGroupLayout(c.cameraLayout)
		c.cameraLayout = nil
	}
}
