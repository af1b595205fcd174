// Package gpu owns every HAL object used by the kelp sprite renderer.
//
// It is an internal package. The root kelp package drives it through a small
// set of caches and per-frame helpers:
//
//   - Device: backend instance, surface, adapter selection and surface
//     configuration
//   - TextureCache: the shared atlas array texture plus render targets,
//     both addressed by generation-checked handles
//   - BindGroupCache: (source, filter) pairs to texture bind groups
//   - PipelineCache: (shader variant, blend mode) pairs to render pipelines
//   - FrameBuffers: persistent instance and camera buffers fed through a
//     mapped staging buffer
//   - Recorder: draw recording with redundant state elimination
//
// # Resource lifetime
//
// Bind groups and pipelines are created lazily and never evicted. Atlas
// space is returned only by an explicit release. The atlas array texture is
// created once with its maximum layer count, so growing the allocator never
// invalidates a bind group.
//
// # Coordinate conventions
//
// Sprites are drawn as a unit quad (0,0)-(1,1) expanded by a per-instance
// 2x3 affine transform. Texture coordinates are normalized against the atlas
// (or render target) size and index a texture_2d_array layer.
//
// # Thread safety
//
// Nothing in this package is safe for concurrent use. The renderer is
// single-threaded by contract.
package gpu
