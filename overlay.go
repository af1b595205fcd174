package kelp

import (
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"
)

// Overlay draws immediate-mode UI on top of a frame, after every render
// list. Implementations create their GPU objects in Init from the
// renderer's device and record into the overlay encoder in Draw.
type Overlay interface {
	// Init is called once by Initialise. provider also exposes HalDevice
	// and HalQueue.
	Init(provider gpucontext.DeviceProvider) error

	// Draw records the UI described by data into enc, targeting view.
	Draw(enc hal.CommandEncoder, view hal.TextureView, width, height uint32, data any) error

	// Destroy releases the overlay's GPU objects. The device is idle.
	Destroy()
}
