// Package kelp is a 2D instanced sprite renderer built on gogpu/wgpu.
//
// # Overview
//
// Kelp draws batches of transformed, textured quads to a window surface or
// to off-screen render targets. Textures are packed into a shared array
// atlas, and GPU objects (bind groups, pipelines) are created lazily and
// cached for the lifetime of the renderer.
//
// # Quick Start
//
//	k, err := kelp.Initialise(kelp.Window{
//		Display: display,
//		Handle:  hwnd,
//		Kind:    kelp.WindowXlib,
//		Width:   800,
//		Height:  600,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer k.Close()
//
//	tex, _ := k.CreateTextureWithData(32, 32, pixels)
//
//	list := kelp.NewRenderList(nil, kelp.Camera{X: 400, Y: 300, Width: 800, Height: 600, Scale: 1}, &kelp.Color{A: 1})
//	list.AddInstances(k, tex, false, kelp.BlendAlpha, []kelp.Instance{{
//		Color:  kelp.White,
//		Source: kelp.FullSource,
//		World:  kelp.Transform{X: 400, Y: 300, ScaleX: 32, ScaleY: 32},
//	}})
//
//	if err := k.BeginFrame(); err != nil {
//		// ErrSwapchain is recoverable: resize and retry next frame.
//	}
//	k.SubmitRenderList(list)
//	k.PresentFrame()
//
// # Frame Lifecycle
//
// A frame is opened by BeginFrame and closed by PresentFrame. Any number of
// render lists may be submitted in between; they are drawn in submission
// order. Textures and render targets can be created at any time.
//
// # Coordinate System
//
// World space is in pixels:
//   - Origin (0,0) at top-left
//   - X increases right
//   - Y increases down
//
// A Camera centers its (X, Y) in the viewport, rotated by Angle and
// magnified by Scale.
//
// # Concurrency
//
// Kelp is not safe for concurrent use. All calls must come from one
// goroutine, normally the one owning the window.
package kelp

// Version is the current version of the library.
const Version = "0.1.0"
