package gpu

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/gputypes"
)

// InstanceStride is the byte stride per instance in the instance buffer.
// Layout per instance (all f32):
//
//	color        vec4 = 16 bytes (location 1)
//	mode         vec4 = 16 bytes (location 2)
//	layer_smooth vec2 =  8 bytes (location 3)
//	source_trans vec2 =  8 bytes (location 4)
//	source_scale vec2 =  8 bytes (location 5)
//	world_col_1  vec2 =  8 bytes (location 6)
//	world_col_2  vec2 =  8 bytes (location 7)
//	world_trans  vec2 =  8 bytes (location 8)
//
// Total = 80 bytes per instance.
const InstanceStride = 80

// quadVertexStride is the byte stride of the unit quad vertex buffer.
const quadVertexStride = 8

// quadVertexCount is the number of triangle-strip vertices per sprite.
const quadVertexCount = 4

// CameraUniformSize is the size of the camera uniform (one mat4x4<f32>).
const CameraUniformSize = 64

// CameraSlotSize is the stride between camera uniforms. Dynamic uniform
// offsets must be multiples of minUniformBufferOffsetAlignment (256).
const CameraSlotSize = 256

// quadVertices is the unit quad as a triangle strip: (0,0), (1,0), (0,1), (1,1).
var quadVertices = [8]float32{0, 0, 1, 0, 0, 1, 1, 1}

// InstanceGPU is one sprite instance as laid out in the instance buffer.
type InstanceGPU struct {
	Color       [4]float32
	Mode        [4]float32
	LayerSmooth [2]float32
	SourceTrans [2]float32
	SourceScale [2]float32
	WorldCol1   [2]float32
	WorldCol2   [2]float32
	WorldTrans  [2]float32
}

func appendFloats(dst []byte, vs ...float32) []byte {
	for _, v := range vs {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
	}
	return dst
}

// AppendBytes appends the 80-byte little-endian encoding of g to dst.
func (g *InstanceGPU) AppendBytes(dst []byte) []byte {
	dst = appendFloats(dst, g.Color[:]...)
	dst = appendFloats(dst, g.Mode[:]...)
	dst = appendFloats(dst, g.LayerSmooth[:]...)
	dst = appendFloats(dst, g.SourceTrans[:]...)
	dst = appendFloats(dst, g.SourceScale[:]...)
	dst = appendFloats(dst, g.WorldCol1[:]...)
	dst = appendFloats(dst, g.WorldCol2[:]...)
	dst = appendFloats(dst, g.WorldTrans[:]...)
	return dst
}

// EncodeInstances appends every instance to dst.
func EncodeInstances(dst []byte, instances []InstanceGPU) []byte {
	if n := len(instances) * InstanceStride; cap(dst)-len(dst) < n {
		grown := make([]byte, len(dst), len(dst)+n)
		copy(grown, dst)
		dst = grown
	}
	for i := range instances {
		dst = instances[i].AppendBytes(dst)
	}
	return dst
}

// EncodeCamera returns the uniform bytes for a column-major 4x4 matrix.
func EncodeCamera(m [16]float32) []byte {
	return appendFloats(make([]byte, 0, CameraUniformSize), m[:]...)
}

func quadBytes() []byte {
	return appendFloats(make([]byte, 0, len(quadVertices)*4), quadVertices[:]...)
}

// spriteVertexLayout returns the vertex buffer layouts for the sprite
// pipeline. Matches VertexInput and InstanceInput in sprite.wgsl:
//
//	slot 0 (per vertex):   location 0 position
//	slot 1 (per instance): locations 1-8, see InstanceStride
func spriteVertexLayout() []gputypes.VertexBufferLayout {
	return []gputypes.VertexBufferLayout{
		{
			ArrayStride: quadVertexStride,
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0}, // position
			},
		},
		{
			ArrayStride: InstanceStride,
			StepMode:    gputypes.VertexStepModeInstance,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatFloat32x4, Offset: 0, ShaderLocation: 1},  // color
				{Format: gputypes.VertexFormatFloat32x4, Offset: 16, ShaderLocation: 2}, // mode
				{Format: gputypes.VertexFormatFloat32x2, Offset: 32, ShaderLocation: 3}, // layer_smooth
				{Format: gputypes.VertexFormatFloat32x2, Offset: 40, ShaderLocation: 4}, // source_trans
				{Format: gputypes.VertexFormatFloat32x2, Offset: 48, ShaderLocation: 5}, // source_scale
				{Format: gputypes.VertexFormatFloat32x2, Offset: 56, ShaderLocation: 6}, // world_col_1
				{Format: gputypes.VertexFormatFloat32x2, Offset: 64, ShaderLocation: 7}, // world_col_2
				{Format: gputypes.VertexFormatFloat32x2, Offset: 72, ShaderLocation: 8}, // world_trans
			},
		},
	}
}
