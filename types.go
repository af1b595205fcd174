package kelp

import (
	"fmt"

	"github.com/gogpu/kelp/internal/gpu"
)

// TextureHandle identifies a logical texture packed into the atlas. The
// zero value is never a valid handle.
type TextureHandle uint64

// TargetHandle identifies an off-screen render target. The zero value is
// never a valid handle.
type TargetHandle uint64

// Sampled is a texture source for a batch: a TextureHandle or a
// TargetHandle.
type Sampled interface {
	sampled()
}

func (TextureHandle) sampled() {}
func (TargetHandle) sampled()  {}

// BlendMode selects how a batch is composited onto its target.
type BlendMode = gpu.BlendMode

// Blend modes.
const (
	// BlendAlpha is straight-alpha source-over.
	BlendAlpha = gpu.BlendAlpha
	// BlendAdditive adds the source, weighted by its alpha.
	BlendAdditive = gpu.BlendAdditive
)

// InstanceMode selects how an instance's color combines with its texel.
type InstanceMode uint8

const (
	// ModeMultiply tints the texel by the instance color.
	ModeMultiply InstanceMode = 1
	// ModeWash replaces the texel color, keeping the texel alpha as
	// coverage.
	ModeWash InstanceMode = 2
	// ModeVeto draws the texel unchanged.
	ModeVeto InstanceMode = 3
)

// String returns the mode name.
func (m InstanceMode) String() string {
	switch m {
	case 0, ModeMultiply:
		return "multiply"
	case ModeWash:
		return "wash"
	case ModeVeto:
		return "veto"
	default:
		return fmt.Sprintf("InstanceMode(%d)", uint8(m))
	}
}

// vector returns the one-hot shader selector. The zero mode is Multiply.
func (m InstanceMode) vector() [4]float32 {
	switch m {
	case ModeWash:
		return [4]float32{0, 1, 0, 0}
	case ModeVeto:
		return [4]float32{0, 0, 1, 0}
	default:
		return [4]float32{1, 0, 0, 0}
	}
}

// Color is a straight-alpha RGBA color with components in [0, 1].
type Color struct {
	R, G, B, A float32
}

// White is opaque white, the identity tint for ModeMultiply.
var White = Color{R: 1, G: 1, B: 1, A: 1}

// Camera positions the view. (X, Y) is the world point drawn at the center
// of a Width x Height viewport, rotated by Angle radians and magnified by
// Scale.
type Camera struct {
	X, Y          float32
	Width, Height float32
	Angle         float32
	Scale         float32
}

// SourceTransform selects a sub-rectangle of a texture. X and Y are a pixel
// offset into the texture. ScaleX and ScaleY are fractions of the texture
// size; 1 covers the whole texture.
type SourceTransform struct {
	X, Y           float32
	ScaleX, ScaleY float32
}

// FullSource samples the entire texture.
var FullSource = SourceTransform{ScaleX: 1, ScaleY: 1}

// Transform is a 2D pose. The unit quad is scaled by (ScaleX, ScaleY),
// rotated by Rotation radians about (OriginX, OriginY) and translated by
// (X, Y). Sprites are usually drawn with their pixel size as the scale.
type Transform struct {
	X, Y             float32
	ScaleX, ScaleY   float32
	Rotation         float32
	OriginX, OriginY float32
}

// Instance is one sprite.
type Instance struct {
	Color  Color
	Mode   InstanceMode
	Source SourceTransform
	World  Transform
}

// WindowKind names the platform windowing system of a Window.
type WindowKind uint8

const (
	// WindowNone has no surface; rendering goes to render targets only.
	WindowNone WindowKind = iota
	// WindowWin32 is a Win32 HWND with its HINSTANCE as Display.
	WindowWin32
	// WindowXlib is an Xlib Window with its Display.
	WindowXlib
	// WindowWayland is a wl_surface with its wl_display.
	WindowWayland
	// WindowAppKit is an NSView or CAMetalLayer.
	WindowAppKit
)

// String returns the window system name.
func (k WindowKind) String() string {
	switch k {
	case WindowNone:
		return "none"
	case WindowWin32:
		return "win32"
	case WindowXlib:
		return "xlib"
	case WindowWayland:
		return "wayland"
	case WindowAppKit:
		return "appkit"
	default:
		return fmt.Sprintf("WindowKind(%d)", uint8(k))
	}
}

// Window carries the raw platform handles of the presentation surface.
// A zero Handle opens the renderer headless.
type Window struct {
	Display uintptr
	Handle  uintptr
	Kind    WindowKind
	Width   uint32
	Height  uint32
}

// Headless reports whether w has no surface.
func (w Window) Headless() bool { return w.Handle == 0 || w.Kind == WindowNone }
