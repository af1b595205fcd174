package kelp

import (
	"fmt"

	"github.com/gogpu/kelp/internal/gpu"
	"github.com/gogpu/kelp/internal/slotmap"
)

// batch is a run of consecutive instances sharing one texture source,
// filter, blend mode and shader.
type batch struct {
	source gpu.Source
	smooth bool
	blend  BlendMode
	shader string
	count  uint32
}

// RenderList is one render pass worth of sprites: a destination, a camera,
// an optional clear color and an ordered list of batches. Instances are
// converted to their GPU layout as they are added, so a list can be
// submitted any number of times.
type RenderList struct {
	target *TargetHandle
	camera Camera
	clear  *Color

	instances []gpu.InstanceGPU
	batches   []batch
}

// NewRenderList creates an empty list. A nil target draws to the surface;
// a nil clear color keeps the target's existing contents.
func NewRenderList(target *TargetHandle, camera Camera, clear *Color) *RenderList {
	l := &RenderList{camera: camera}
	if target != nil {
		t := *target
		l.target = &t
	}
	if clear != nil {
		c := *clear
		l.clear = &c
	}
	return l
}

// AddInstances appends one batch drawing instances from source with the
// built-in sprite shader. It returns the list for chaining.
func (l *RenderList) AddInstances(k *Kelp, source Sampled, smooth bool, blend BlendMode, instances []Instance) (*RenderList, error) {
	return l.AddInstancesWithShader(k, source, smooth, blend, gpu.BuiltinShader, instances)
}

// AddInstancesWithShader is AddInstances with a shader variant registered
// through RegisterShader.
func (l *RenderList) AddInstancesWithShader(k *Kelp, source Sampled, smooth bool, blend BlendMode, shader string, instances []Instance) (*RenderList, error) {
	if err := k.usable(); err != nil {
		return l, err
	}
	if !blend.Valid() {
		return l, fmt.Errorf("%w: blend mode %d", ErrInvalidPipelineID, blend)
	}
	if !k.pipelines.HasShader(shader) {
		return l, fmt.Errorf("%w: unknown shader %q", ErrInvalidPipelineID, shader)
	}

	region, err := k.resolveSource(source)
	if err != nil {
		return l, err
	}
	if len(instances) == 0 {
		return l, nil
	}

	for i := range instances {
		l.instances = append(l.instances, region.convert(&instances[i], smooth))
	}
	l.batches = append(l.batches, batch{
		source: region.source,
		smooth: smooth,
		blend:  blend,
		shader: shader,
		count:  uint32(len(instances)), //nolint:gosec // bounded by memory
	})
	return l, nil
}

// Len returns the number of instances in the list.
func (l *RenderList) Len() int { return len(l.instances) }

// Batches returns the number of batches in the list.
func (l *RenderList) Batches() int { return len(l.batches) }

// Camera returns the list's camera.
func (l *RenderList) Camera() Camera { return l.camera }

// Target returns the destination render target, or false for the surface.
func (l *RenderList) Target() (TargetHandle, bool) {
	if l.target == nil {
		return 0, false
	}
	return *l.target, true
}

// Reset empties the list, keeping its destination, camera and buffers.
func (l *RenderList) Reset() {
	l.instances = l.instances[:0]
	l.batches = l.batches[:0]
}

// sourceRegion maps texture-relative source coordinates into the sampled
// texture's normalized space.
type sourceRegion struct {
	source gpu.Source
	layer  float32

	// originX/Y and width/height locate the texture in pixels; normX/Y is
	// the size of the sampled texture.
	originX, originY float32
	width, height    float32
	normX, normY     float32
}

func (r *sourceRegion) convert(in *Instance, smooth bool) gpu.InstanceGPU {
	col1, col2, trans := in.World.Affine()
	var s float32
	if smooth {
		s = 1
	}
	return gpu.InstanceGPU{
		Color:       [4]float32{in.Color.R, in.Color.G, in.Color.B, in.Color.A},
		Mode:        in.Mode.vector(),
		LayerSmooth: [2]float32{r.layer, s},
		SourceTrans: [2]float32{
			(r.originX + in.Source.X) / r.normX,
			(r.originY + in.Source.Y) / r.normY,
		},
		SourceScale: [2]float32{
			in.Source.ScaleX * r.width / r.normX,
			in.Source.ScaleY * r.height / r.normY,
		},
		WorldCol1:  col1,
		WorldCol2:  col2,
		WorldTrans: trans,
	}
}

// resolveSource looks up where source lives on the GPU.
func (k *Kelp) resolveSource(source Sampled) (sourceRegion, error) {
	switch s := source.(type) {
	case TextureHandle:
		alloc, err := k.textures.Resolve(slotmap.Handle(s))
		if err != nil {
			return sourceRegion{}, err
		}
		size := float32(k.textures.AtlasSize())
		return sourceRegion{
			source:  gpu.AtlasSource,
			layer:   float32(alloc.Layer),
			originX: float32(alloc.Rect.X),
			originY: float32(alloc.Rect.Y),
			width:   float32(alloc.Rect.Width),
			height:  float32(alloc.Rect.Height),
			normX:   size,
			normY:   size,
		}, nil
	case TargetHandle:
		t, err := k.textures.ResolveTarget(slotmap.Handle(s))
		if err != nil {
			return sourceRegion{}, err
		}
		w, h := float32(t.Width), float32(t.Height)
		return sourceRegion{
			source: gpu.TargetSource(slotmap.Handle(s)),
			width:  w,
			height: h,
			normX:  w,
			normY:  h,
		}, nil
	case nil:
		return sourceRegion{}, fmt.Errorf("%w: nil source", ErrInvalidTextureID)
	default:
		return sourceRegion{}, fmt.Errorf("%w: unsupported source %T", ErrInvalidTextureID, source)
	}
}
