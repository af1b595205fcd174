package kelp

import (
	"fmt"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/kelp/internal/gpu"
	"github.com/gogpu/wgpu/hal"
)

// Kelp is a sprite renderer bound to one GPU device. It owns the device
// (unless borrowed from a provider), the texture atlas, every cached GPU
// object and the per-frame buffers.
//
// Kelp is not safe for concurrent use.
type Kelp struct {
	cfg         Config
	presentMode gputypes.PresentMode
	timeout     time.Duration

	device    *gpu.Device
	textures  *gpu.TextureCache
	groups    *gpu.BindGroupCache
	pipelines *gpu.PipelineCache
	buffers   *gpu.FrameBuffers
	recorder  *gpu.Recorder
	overlay   Overlay

	frame    *frameState
	inflight inflight
	stats    FrameStats
	closed   bool
}

var _ gpucontext.DeviceProvider = (*Kelp)(nil)

// Initialise opens a device on the configured backend and creates the
// renderer. A Window with a zero Handle opens it headless; lists must then
// target render targets.
func Initialise(win Window, opts ...Option) (*Kelp, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.config.Validate(); err != nil {
		return nil, err
	}

	backend, name := o.backend, "custom"
	if backend == nil {
		var err error
		backend, name, err = resolveBackend(o.config.Backend)
		if err != nil {
			return nil, err
		}
	}
	power, _ := o.config.power()

	device, err := gpu.OpenDevice(gpu.DeviceConfig{
		Backend:  backend,
		Display:  win.Display,
		Window:   win.Handle,
		Headless: win.Headless(),
		Power:    power,
	})
	if err != nil {
		return nil, err
	}

	k := newKelp(o.config, device)
	if !win.Headless() || (win.Width > 0 && win.Height > 0) {
		if err := device.Configure(win.Width, win.Height, k.presentMode); err != nil {
			device.Destroy()
			return nil, err
		}
	}
	if err := k.init(o.overlay); err != nil {
		k.destroy()
		return nil, err
	}

	Logger().Info("kelp: initialised",
		"backend", name,
		"adapter", device.Info().Name,
		"window", win.Kind.String(),
		"format", device.Format().String())
	return k, nil
}

// InitialiseWithProvider creates a headless renderer sharing a device owned
// by the host. The provider must also implement HalDevice() any and
// HalQueue() any returning hal.Device and hal.Queue. Close leaves the
// host's device alive.
func InitialiseWithProvider(provider gpucontext.DeviceProvider, opts ...Option) (*Kelp, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("%w: provider does not expose HAL types", ErrNoDevice)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: provider HalDevice is not hal.Device", ErrNoDevice)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: provider HalQueue is not hal.Queue", ErrNoDevice)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.config.Validate(); err != nil {
		return nil, err
	}

	k := newKelp(o.config, gpu.WrapDevice(device, queue, provider.SurfaceFormat()))
	if err := k.init(o.overlay); err != nil {
		k.destroy()
		return nil, err
	}
	Logger().Info("kelp: initialised with shared device",
		"adapter", provider.AdapterInfo().Name,
		"format", k.device.Format().String())
	return k, nil
}

func newKelp(cfg Config, device *gpu.Device) *Kelp {
	mode, _ := cfg.presentMode()
	return &Kelp{
		cfg:         cfg,
		presentMode: mode,
		timeout:     time.Duration(cfg.FrameTimeout),
		device:      device,
	}
}

// init creates the caches and buffers. On error the caller destroys k.
func (k *Kelp) init(overlay Overlay) error {
	dev, queue := k.device.HAL(), k.device.Queue()

	var err error
	k.textures, err = gpu.NewTextureCache(dev, queue, gpu.TextureCacheConfig{
		Atlas:        k.cfg.atlasConfig(),
		TargetFormat: k.device.Format(),
	})
	if err != nil {
		return err
	}
	k.groups, err = gpu.NewBindGroupCache(dev, k.textures)
	if err != nil {
		return err
	}
	k.pipelines, err = gpu.NewPipelineCache(dev, k.device.Format(), k.groups.Layout())
	if err != nil {
		return err
	}
	k.buffers, err = gpu.NewFrameBuffers(dev, queue, k.pipelines.CameraLayout(), k.cfg.frameBufferConfig())
	if err != nil {
		return err
	}
	k.recorder = gpu.NewRecorder(k.pipelines, k.groups, k.buffers.QuadBuffer())

	if overlay != nil {
		if err := overlay.Init(k); err != nil {
			return fmt.Errorf("init overlay: %w", err)
		}
		k.overlay = overlay
	}
	return nil
}

// usable returns ErrClosed once Close has run.
func (k *Kelp) usable() error {
	if k == nil || k.closed {
		return ErrClosed
	}
	return nil
}

// Close abandons any live frame, waits for the GPU and releases every
// resource. Calling Close again is a no-op.
func (k *Kelp) Close() error {
	if k == nil || k.closed {
		return nil
	}
	if k.frame != nil {
		k.abandonFrame()
	}
	if dev := k.device.HAL(); dev != nil {
		if err := dev.WaitIdle(); err != nil {
			Logger().Warn("kelp: wait idle on close", "err", err)
		}
	}
	k.destroy()
	Logger().Info("kelp: closed")
	return nil
}

func (k *Kelp) destroy() {
	k.closed = true
	k.inflight.release(k.device.HAL())
	if k.overlay != nil {
		k.overlay.Destroy()
		k.overlay = nil
	}
	if k.buffers != nil {
		k.buffers.Destroy()
	}
	if k.pipelines != nil {
		k.pipelines.Destroy()
	}
	if k.groups != nil {
		k.groups.Destroy()
	}
	if k.textures != nil {
		k.textures.Destroy()
	}
	k.device.Destroy()
}

// Config returns the configuration the renderer was created with.
func (k *Kelp) Config() Config { return k.cfg }

// Headless reports whether the renderer has no surface.
func (k *Kelp) Headless() bool { return k.device.Headless() }

// SurfaceSize returns the configured surface size.
func (k *Kelp) SurfaceSize() (width, height uint32) { return k.device.Size() }

// Device implements gpucontext.DeviceProvider.
func (k *Kelp) Device() gpucontext.Device {
	if d := k.device.HAL(); d != nil {
		return d
	}
	return nil
}

// Queue implements gpucontext.DeviceProvider.
func (k *Kelp) Queue() gpucontext.Queue {
	if q := k.device.Queue(); q != nil {
		return q
	}
	return nil
}

// Adapter implements gpucontext.DeviceProvider. It is nil for a shared
// device.
func (k *Kelp) Adapter() gpucontext.Adapter {
	if a := k.device.Adapter(); a != nil {
		return a
	}
	return nil
}

// SurfaceFormat implements gpucontext.DeviceProvider. Render targets use
// the same format.
func (k *Kelp) SurfaceFormat() gputypes.TextureFormat { return k.device.Format() }

// AdapterInfo implements gpucontext.DeviceProvider.
func (k *Kelp) AdapterInfo() gpucontext.AdapterInfo {
	info := k.device.Info()
	return gpucontext.AdapterInfo{Name: info.Name, Type: adapterType(info.DeviceType)}
}

func adapterType(t gputypes.DeviceType) gpucontext.AdapterType {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU:
		return gpucontext.AdapterTypeDiscrete
	case gputypes.DeviceTypeIntegratedGPU:
		return gpucontext.AdapterTypeIntegrated
	case gputypes.DeviceTypeCPU:
		return gpucontext.AdapterTypeSoftware
	default:
		return gpucontext.AdapterTypeUnknown
	}
}

// HalDevice returns the hal.Device for components sharing this renderer's
// device.
func (k *Kelp) HalDevice() any { return k.device.HAL() }

// HalQueue returns the hal.Queue for components sharing this renderer's
// device.
func (k *Kelp) HalQueue() any { return k.device.Queue() }

// RegisterShader adds a named WGSL variant of the sprite shader for
// AddInstancesWithShader. It must keep the built-in shader's vertex
// inputs, bind groups and entry points.
func (k *Kelp) RegisterShader(name, wgsl string) error {
	if err := k.usable(); err != nil {
		return err
	}
	return k.pipelines.RegisterShader(name, wgsl)
}

// SpriteShaderSource returns the built-in WGSL sprite shader, the starting
// point for RegisterShader variants.
func SpriteShaderSource() string { return gpu.SpriteShaderSource() }
