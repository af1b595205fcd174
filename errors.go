package kelp

import (
	"errors"

	"github.com/gogpu/kelp/internal/atlas"
	"github.com/gogpu/kelp/internal/gpu"
)

// Lifecycle and setup errors.
var (
	// ErrNoCurrentFrame is returned when a frame operation runs outside
	// BeginFrame/PresentFrame.
	ErrNoCurrentFrame = errors.New("kelp: no current frame")

	// ErrFrameActive is returned by BeginFrame and SetSurfaceSize while a
	// frame is live.
	ErrFrameActive = errors.New("kelp: frame already active")

	// ErrClosed is returned by every method after Close.
	ErrClosed = errors.New("kelp: renderer closed")

	// ErrNoBackend is returned when no GPU backend matches the configuration.
	ErrNoBackend = errors.New("kelp: no GPU backend available")

	// ErrFeatureNotEnabled is returned by DrawOverlay when no overlay was
	// configured.
	ErrFeatureNotEnabled = errors.New("kelp: feature not enabled")

	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("kelp: invalid config")
)

// Resource, device and capacity errors shared with the internal packages.
var (
	ErrInvalidTextureID   = gpu.ErrInvalidTextureID
	ErrInvalidTargetID    = gpu.ErrInvalidTargetID
	ErrInvalidBindGroupID = gpu.ErrInvalidBindGroupID
	ErrInvalidPipelineID  = gpu.ErrInvalidPipelineID
	ErrInvalidDimensions  = gpu.ErrInvalidDimensions
	ErrInvalidShader      = gpu.ErrInvalidShader
	ErrShaderExists       = gpu.ErrShaderExists
	ErrNoAdapter          = gpu.ErrNoAdapter
	ErrNoDevice           = gpu.ErrNoDevice
	ErrSwapchain          = gpu.ErrSwapchain
	ErrAtlasFull          = atlas.ErrAtlasFull
)
