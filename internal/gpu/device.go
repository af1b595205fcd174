package gpu

import (
	"fmt"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// DeviceConfig selects how a Device is opened.
type DeviceConfig struct {
	// Backend creates the instance. Required.
	Backend hal.Backend

	// Display and Window are the raw platform handles for the surface.
	Display uintptr
	Window  uintptr

	// Headless skips surface creation entirely.
	Headless bool

	// Power biases adapter selection.
	Power gputypes.PowerPreference
}

// Device bundles the HAL objects a renderer needs: instance, optional
// surface, adapter, logical device and queue.
type Device struct {
	instance hal.Instance
	surface  hal.Surface
	adapter  hal.Adapter
	info     gputypes.AdapterInfo
	device   hal.Device
	queue    hal.Queue

	format      gputypes.TextureFormat
	presentMode gputypes.PresentMode
	width       uint32
	height      uint32
	configured  bool

	// borrowed devices belong to the host and are never destroyed here.
	borrowed bool
}

// OpenDevice creates an instance on cfg.Backend, optionally a surface for
// the given window, picks an adapter and opens a logical device on it.
func OpenDevice(cfg DeviceConfig) (*Device, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("%w: no backend", ErrNoAdapter)
	}
	instance, err := cfg.Backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}

	d := &Device{instance: instance, format: gputypes.TextureFormatBGRA8Unorm}

	if !cfg.Headless {
		surface, err := instance.CreateSurface(cfg.Display, cfg.Window)
		if err != nil {
			instance.Destroy()
			return nil, fmt.Errorf("create surface: %w", err)
		}
		d.surface = surface
	}

	adapters := instance.EnumerateAdapters(d.surface)
	selected := selectAdapter(adapters, d.surface, cfg.Power)
	if selected == nil {
		d.Destroy()
		return nil, ErrNoAdapter
	}
	d.adapter = selected.Adapter
	d.info = selected.Info

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		d.Destroy()
		return nil, fmt.Errorf("%w: %w", ErrNoDevice, err)
	}
	d.device = openDev.Device
	d.queue = openDev.Queue

	slogger().Info("kelp: adapter selected",
		"name", d.info.Name,
		"type", d.info.DeviceType.String(),
		"backend", cfg.Backend.Variant().String(),
		"headless", cfg.Headless)
	return d, nil
}

// WrapDevice adopts a device and queue owned by the host. The result is
// headless and Destroy leaves the device alive.
func WrapDevice(device hal.Device, queue hal.Queue, format gputypes.TextureFormat) *Device {
	if format == gputypes.TextureFormatUndefined {
		format = gputypes.TextureFormatBGRA8Unorm
	}
	return &Device{
		device:   device,
		queue:    queue,
		format:   format,
		borrowed: true,
	}
}

// adapterRank orders device types for a power preference. Lower is better.
func adapterRank(t gputypes.DeviceType, power gputypes.PowerPreference) int {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU:
		if power == gputypes.PowerPreferenceLowPower {
			return 1
		}
		return 0
	case gputypes.DeviceTypeIntegratedGPU:
		if power == gputypes.PowerPreferenceLowPower {
			return 0
		}
		return 1
	case gputypes.DeviceTypeVirtualGPU:
		return 2
	case gputypes.DeviceTypeCPU:
		return 3
	default:
		return 4
	}
}

// selectAdapter returns the best ranked adapter that can present to
// surface, or nil. Ties keep enumeration order.
func selectAdapter(adapters []hal.ExposedAdapter, surface hal.Surface, power gputypes.PowerPreference) *hal.ExposedAdapter {
	var selected *hal.ExposedAdapter
	best := 0
	for i := range adapters {
		a := &adapters[i]
		if surface != nil && a.Adapter.SurfaceCapabilities(surface) == nil {
			continue
		}
		rank := adapterRank(a.Info.DeviceType, power)
		if selected == nil || rank < best {
			selected, best = a, rank
		}
	}
	return selected
}

// Configure (re)configures the surface for the given size. In headless mode
// only the size is recorded.
func (d *Device) Configure(width, height uint32, mode gputypes.PresentMode) error {
	if width == 0 || height == 0 {
		return fmt.Errorf("%w: surface %dx%d", ErrInvalidDimensions, width, height)
	}
	d.width, d.height = width, height
	if d.surface == nil {
		return nil
	}

	caps := d.adapter.SurfaceCapabilities(d.surface)
	if caps == nil {
		return fmt.Errorf("%w: adapter cannot present to surface", ErrSwapchain)
	}
	d.format = chooseFormat(caps.Formats)
	d.presentMode = choosePresentMode(caps.PresentModes, mode)

	err := d.surface.Configure(d.device, &hal.SurfaceConfiguration{
		Width:       width,
		Height:      height,
		Format:      d.format,
		Usage:       gputypes.TextureUsageRenderAttachment,
		PresentMode: d.presentMode,
		AlphaMode:   chooseAlphaMode(caps.AlphaModes),
	})
	if err != nil {
		return fmt.Errorf("configure surface: %w", err)
	}
	d.configured = true

	slogger().Info("kelp: surface configured",
		"width", width,
		"height", height,
		"format", d.format.String(),
		"present_mode", d.presentMode.String())
	return nil
}

func chooseFormat(formats []gputypes.TextureFormat) gputypes.TextureFormat {
	for _, want := range []gputypes.TextureFormat{
		gputypes.TextureFormatBGRA8Unorm,
		gputypes.TextureFormatRGBA8Unorm,
	} {
		for _, f := range formats {
			if f == want {
				return f
			}
		}
	}
	if len(formats) > 0 {
		return formats[0]
	}
	return gputypes.TextureFormatBGRA8Unorm
}

// choosePresentMode falls back to FIFO, which every surface supports.
func choosePresentMode(modes []gputypes.PresentMode, want gputypes.PresentMode) gputypes.PresentMode {
	for _, m := range modes {
		if m == want {
			return want
		}
	}
	return gputypes.PresentModeFifo
}

func chooseAlphaMode(modes []gputypes.CompositeAlphaMode) gputypes.CompositeAlphaMode {
	for _, m := range modes {
		if m == gputypes.CompositeAlphaModeOpaque {
			return m
		}
	}
	if len(modes) > 0 {
		return modes[0]
	}
	return gputypes.CompositeAlphaModeOpaque
}

// Acquire returns the next surface texture. Failures wrap ErrSwapchain and
// are recoverable by reconfiguring.
func (d *Device) Acquire() (*hal.AcquiredSurfaceTexture, error) {
	if d.surface == nil || !d.configured {
		return nil, fmt.Errorf("%w: surface not configured", ErrSwapchain)
	}
	acquired, err := d.surface.AcquireTexture(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSwapchain, err)
	}
	if acquired.Suboptimal {
		slogger().Warn("kelp: surface texture suboptimal", "width", d.width, "height", d.height)
	}
	return acquired, nil
}

// Present queues tex for display.
func (d *Device) Present(tex hal.SurfaceTexture) error {
	if err := d.queue.Present(d.surface, tex, nil); err != nil {
		return fmt.Errorf("%w: present: %w", ErrSwapchain, err)
	}
	return nil
}

// Discard drops an acquired surface texture without presenting it.
func (d *Device) Discard(tex hal.SurfaceTexture) {
	if d.surface != nil && tex != nil {
		d.surface.DiscardTexture(tex)
	}
}

// WaitSubmission blocks until the queue has completed submission index, or
// timeout elapses, after which it falls back to a full device wait.
func (d *Device) WaitSubmission(index uint64, timeout time.Duration) error {
	if index == 0 || d.queue.PollCompleted() >= index {
		return nil
	}
	start := time.Now()
	deadline := start.Add(timeout)
	for d.queue.PollCompleted() < index {
		if time.Now().After(deadline) {
			slogger().Warn("kelp: submission wait timed out, waiting for idle",
				"index", index, "timeout", timeout)
			if err := d.device.WaitIdle(); err != nil {
				return fmt.Errorf("wait idle: %w", err)
			}
			return nil
		}
		time.Sleep(50 * time.Microsecond)
	}
	slogger().Debug("kelp: staging wait", "index", index, "elapsed", time.Since(start))
	return nil
}

// Destroy releases everything the Device owns in reverse creation order.
func (d *Device) Destroy() {
	if d.borrowed {
		d.device = nil
		d.queue = nil
		return
	}
	if d.device != nil {
		if err := d.device.WaitIdle(); err != nil {
			slogger().Warn("kelp: wait idle on destroy", "err", err)
		}
	}
	if d.surface != nil {
		if d.configured && d.device != nil {
			d.surface.Unconfigure(d.device)
		}
		d.configured = false
	}
	if d.device != nil {
		d.device.Destroy()
		d.device = nil
		d.queue = nil
	}
	if d.surface != nil {
		d.surface.Destroy()
		d.surface = nil
	}
	if d.adapter != nil {
		d.adapter.Destroy()
		d.adapter = nil
	}
	if d.instance != nil {
		d.instance.Destroy()
		d.instance = nil
	}
}

// HAL returns the logical device.
func (d *Device) HAL() hal.Device { return d.device }

// Queue returns the device queue.
func (d *Device) Queue() hal.Queue { return d.queue }

// Surface returns the window surface, or nil when headless.
func (d *Device) Surface() hal.Surface { return d.surface }

// Adapter returns the selected adapter, or nil for a wrapped device.
func (d *Device) Adapter() hal.Adapter { return d.adapter }

// Info returns metadata for the selected adapter.
func (d *Device) Info() gputypes.AdapterInfo { return d.info }

// Format returns the surface (and render target) texture format.
func (d *Device) Format() gputypes.TextureFormat { return d.format }

// Size returns the configured surface size.
func (d *Device) Size() (width, height uint32) { return d.width, d.height }

// Headless reports whether the device has no surface.
func (d *Device) Headless() bool { return d.surface == nil }
