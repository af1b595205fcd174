package gpu

import "errors"

// Resource resolution and validation errors. The root package re-exports
// these so errors.Is works on either name.
var (
	// ErrInvalidTextureID is returned for unknown or released texture handles.
	ErrInvalidTextureID = errors.New("kelp: invalid texture id")

	// ErrInvalidTargetID is returned for unknown or released render targets.
	ErrInvalidTargetID = errors.New("kelp: invalid target id")

	// ErrInvalidBindGroupID is returned when a bind group was never ensured.
	ErrInvalidBindGroupID = errors.New("kelp: invalid bind group id")

	// ErrInvalidPipelineID is returned when a pipeline was never ensured.
	ErrInvalidPipelineID = errors.New("kelp: invalid pipeline id")

	// ErrInvalidDimensions is returned for zero sizes or mismatched pixel data.
	ErrInvalidDimensions = errors.New("kelp: invalid dimensions")

	// ErrInvalidShader is returned when WGSL fails validation.
	ErrInvalidShader = errors.New("kelp: invalid shader")

	// ErrShaderExists is returned when a shader variant name is reused.
	ErrShaderExists = errors.New("kelp: shader variant already registered")

	// ErrNoAdapter is returned when the backend exposes no usable adapter.
	ErrNoAdapter = errors.New("kelp: no suitable adapter")

	// ErrNoDevice is returned when the adapter refuses to open a device.
	ErrNoDevice = errors.New("kelp: failed to open device")

	// ErrSwapchain is returned when the surface texture cannot be acquired.
	ErrSwapchain = errors.New("kelp: failed to acquire surface texture")
)
