package kelp

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/kelp/internal/gpu"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testWindow is a 64x64 window; the noop backend accepts any handle.
var testWindow = Window{Handle: 1, Kind: WindowXlib, Width: 64, Height: 64}

func newTestKelp(t *testing.T, opts ...Option) *Kelp {
	t.Helper()
	cfg := DefaultConfig()
	cfg.AtlasSize = 256
	cfg.AtlasLayers = 2
	opts = append([]Option{WithConfig(cfg), WithBackend(noop.API{})}, opts...)
	k, err := Initialise(testWindow, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = k.Close() })
	return k
}

func newTestTexture(t *testing.T, k *Kelp, w, h int) TextureHandle {
	t.Helper()
	tex, err := k.CreateTextureWithData(w, h, make([]byte, w*h*4))
	require.NoError(t, err)
	return tex
}

func testCamera() Camera {
	return Camera{X: 32, Y: 32, Width: 64, Height: 64, Scale: 1}
}

func TestInitialise(t *testing.T) {
	k := newTestKelp(t)
	assert.False(t, k.Headless())
	w, h := k.SurfaceSize()
	assert.Equal(t, uint32(64), w)
	assert.Equal(t, uint32(64), h)
	assert.Equal(t, gputypes.TextureFormatBGRA8Unorm, k.SurfaceFormat())
	assert.Equal(t, "Noop Adapter", k.AdapterInfo().Name)
	assert.Equal(t, gpucontext.AdapterTypeUnknown, k.AdapterInfo().Type)
	assert.NotNil(t, k.Device())
	assert.NotNil(t, k.Queue())
	assert.NotNil(t, k.Adapter())
	assert.Zero(t, k.pipelines.Len(), "pipelines are created lazily")
}

func TestInitialiseErrors(t *testing.T) {
	bad := DefaultConfig()
	bad.AtlasLayers = 0
	_, err := Initialise(Window{}, WithConfig(bad), WithBackend(noop.API{}))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Initialise(Window{Handle: 1, Kind: WindowXlib}, WithBackend(noop.API{}))
	assert.ErrorIs(t, err, ErrInvalidDimensions)
}

func TestHeadless(t *testing.T) {
	k, err := Initialise(Window{}, WithBackend(noop.API{}))
	require.NoError(t, err)
	defer k.Close()
	assert.True(t, k.Headless())

	target, err := k.CreateRenderTarget(32, 32)
	require.NoError(t, err)
	tex := newTestTexture(t, k, 8, 8)

	require.NoError(t, k.BeginFrame())
	onTarget := NewRenderList(&target, testCamera(), &Color{A: 1})
	_, err = onTarget.AddInstances(k, tex, false, BlendAlpha, sprites(2))
	require.NoError(t, err)
	require.NoError(t, k.SubmitRenderList(onTarget))

	onSurface := NewRenderList(nil, testCamera(), nil)
	_, err = onSurface.AddInstances(k, tex, false, BlendAlpha, sprites(1))
	require.NoError(t, err)
	assert.ErrorIs(t, k.SubmitRenderList(onSurface), ErrInvalidTargetID)
	require.NoError(t, k.PresentFrame())
	assert.Equal(t, 1, k.Stats().DrawCalls)
}

func TestFrameLifecycleErrors(t *testing.T) {
	k := newTestKelp(t)
	list := NewRenderList(nil, testCamera(), nil)

	assert.ErrorIs(t, k.SubmitRenderList(list), ErrNoCurrentFrame)
	assert.ErrorIs(t, k.PresentFrame(), ErrNoCurrentFrame)

	require.NoError(t, k.BeginFrame())
	assert.True(t, k.FrameActive())
	assert.ErrorIs(t, k.BeginFrame(), ErrFrameActive)
	assert.ErrorIs(t, k.SetSurfaceSize(128, 128), ErrFrameActive)
	require.NoError(t, k.PresentFrame())
	assert.False(t, k.FrameActive())

	assert.ErrorIs(t, k.SetSurfaceSize(0, 10), ErrInvalidDimensions)
	require.NoError(t, k.SetSurfaceSize(128, 96))
	w, h := k.SurfaceSize()
	assert.Equal(t, uint32(128), w)
	assert.Equal(t, uint32(96), h)
}

func TestEmptySubmitIsNoop(t *testing.T) {
	k := newTestKelp(t)
	tex := newTestTexture(t, k, 8, 8)

	require.NoError(t, k.BeginFrame())
	require.NoError(t, k.SubmitRenderList(nil))
	require.NoError(t, k.SubmitRenderList(NewRenderList(nil, testCamera(), &Color{A: 1})))

	empty := NewRenderList(nil, testCamera(), nil)
	_, err := empty.AddInstances(k, tex, false, BlendAlpha, nil)
	require.NoError(t, err)
	require.NoError(t, k.SubmitRenderList(empty))
	require.NoError(t, k.PresentFrame())

	assert.Equal(t, FrameStats{}, k.Stats())
	assert.Zero(t, k.pipelines.Len())
	assert.Zero(t, k.groups.Len())
}

func TestSingleBatchScenario(t *testing.T) {
	k := newTestKelp(t)
	tex := newTestTexture(t, k, 64, 64)

	list := NewRenderList(nil, testCamera(), &Color{A: 1})
	_, err := list.AddInstances(k, tex, false, BlendAlpha, sprites(3))
	require.NoError(t, err)

	require.NoError(t, k.BeginFrame())
	require.NoError(t, k.SubmitRenderList(list))
	require.NoError(t, k.PresentFrame())

	assert.Equal(t, FrameStats{
		Lists:          1,
		RenderPasses:   1,
		DrawCalls:      1,
		PipelineBinds:  1,
		BindGroupBinds: 1,
		Instances:      3,
	}, k.Stats())
	assert.Equal(t, 1, k.pipelines.Len())
	i, err := k.pipelines.Index(gpu.BuiltinShader, BlendAlpha)
	require.NoError(t, err)
	assert.Equal(t, 0, i)
}

func TestTwoBatchScenario(t *testing.T) {
	k := newTestKelp(t)
	a := newTestTexture(t, k, 16, 16)
	b := newTestTexture(t, k, 16, 16)

	// Both textures live in the atlas, so the batches share pipeline and
	// bind group state.
	list := NewRenderList(nil, testCamera(), nil)
	_, err := list.AddInstances(k, a, false, BlendAlpha, sprites(2))
	require.NoError(t, err)
	_, err = list.AddInstances(k, b, false, BlendAlpha, sprites(4))
	require.NoError(t, err)

	require.NoError(t, k.BeginFrame())
	require.NoError(t, k.SubmitRenderList(list))
	stats := k.Stats()
	require.NoError(t, k.PresentFrame())

	assert.Equal(t, stats, k.Stats(), "live stats match the presented frame")
	assert.Equal(t, 2, stats.DrawCalls)
	assert.Equal(t, 1, stats.PipelineBinds)
	assert.Equal(t, 1, stats.BindGroupBinds)
	assert.Equal(t, 6, stats.Instances)
}

func TestStateChangesRebind(t *testing.T) {
	k := newTestKelp(t)
	tex := newTestTexture(t, k, 16, 16)

	list := NewRenderList(nil, testCamera(), nil)
	for _, step := range []struct {
		smooth bool
		blend  BlendMode
	}{
		{false, BlendAlpha},
		{true, BlendAlpha},
		{true, BlendAdditive},
		{true, BlendAdditive},
	} {
		_, err := list.AddInstances(k, tex, step.smooth, step.blend, sprites(1))
		require.NoError(t, err)
	}

	require.NoError(t, k.BeginFrame())
	require.NoError(t, k.SubmitRenderList(list))
	require.NoError(t, k.PresentFrame())

	stats := k.Stats()
	assert.Equal(t, 4, stats.DrawCalls)
	assert.Equal(t, 2, stats.PipelineBinds)
	assert.Equal(t, 2, stats.BindGroupBinds)
	assert.Equal(t, 2, k.pipelines.Len())
	assert.Equal(t, 2, k.groups.Len())
}

func TestCachesPersistAcrossFrames(t *testing.T) {
	k := newTestKelp(t)
	tex := newTestTexture(t, k, 16, 16)
	list := NewRenderList(nil, testCamera(), nil)
	_, err := list.AddInstances(k, tex, false, BlendAlpha, sprites(5))
	require.NoError(t, err)

	for range 3 {
		require.NoError(t, k.BeginFrame())
		require.NoError(t, k.SubmitRenderList(list))
		require.NoError(t, k.SubmitRenderList(list))
		require.NoError(t, k.PresentFrame())
		assert.Equal(t, 2, k.Stats().Lists)
		assert.Equal(t, 10, k.Stats().Instances)
	}
	assert.Equal(t, 1, k.pipelines.Len())
	assert.Equal(t, 1, k.groups.Len())
}

func TestBufferGrowth(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AtlasSize = 256
	cfg.InstanceCapacity = 4
	cfg.CameraCapacity = 1
	k, err := Initialise(testWindow, WithConfig(cfg), WithBackend(noop.API{}))
	require.NoError(t, err)
	defer k.Close()
	tex := newTestTexture(t, k, 8, 8)

	list := NewRenderList(nil, testCamera(), nil)
	_, err = list.AddInstances(k, tex, false, BlendAlpha, sprites(10))
	require.NoError(t, err)

	require.NoError(t, k.BeginFrame())
	for range 3 {
		require.NoError(t, k.SubmitRenderList(list))
	}
	require.NoError(t, k.PresentFrame())

	instances, cameras := k.buffers.Capacity()
	assert.GreaterOrEqual(t, instances, 10)
	assert.GreaterOrEqual(t, cameras, 2)
	assert.Equal(t, 30, k.Stats().Instances)

	// The next frame destroys the replaced buffers.
	require.NoError(t, k.BeginFrame())
	assert.Zero(t, k.buffers.Retired())
	require.NoError(t, k.PresentFrame())
}

func TestRenderTargetRoundTrip(t *testing.T) {
	k := newTestKelp(t)
	tex := newTestTexture(t, k, 16, 16)
	target, err := k.CreateRenderTarget(32, 32)
	require.NoError(t, err)

	offscreen := NewRenderList(&target, Camera{X: 16, Y: 16, Width: 32, Height: 32, Scale: 1}, &Color{A: 0})
	_, err = offscreen.AddInstances(k, tex, false, BlendAlpha, sprites(2))
	require.NoError(t, err)

	onscreen := NewRenderList(nil, testCamera(), &Color{A: 1})
	_, err = onscreen.AddInstances(k, target, true, BlendAlpha, []Instance{{
		Color: White, Source: FullSource, World: Transform{ScaleX: 32, ScaleY: 32},
	}})
	require.NoError(t, err)

	rt, err := k.textures.ResolveTarget(slotHandle(target))
	require.NoError(t, err)

	require.NoError(t, k.BeginFrame())
	require.NoError(t, k.SubmitRenderList(offscreen))
	assert.Equal(t, gputypes.TextureUsageRenderAttachment, rt.Usage())
	require.NoError(t, k.SubmitRenderList(onscreen))
	assert.Equal(t, gputypes.TextureUsageTextureBinding, rt.Usage())

	// A target cannot sample itself.
	self := NewRenderList(&target, testCamera(), nil)
	_, err = self.AddInstances(k, target, true, BlendAlpha, sprites(1))
	require.NoError(t, err)
	assert.ErrorIs(t, k.SubmitRenderList(self), ErrInvalidTargetID)
	require.NoError(t, k.PresentFrame())

	assert.Equal(t, 2, k.Stats().RenderPasses)
	assert.Equal(t, 2, k.groups.Len())

	assert.ErrorIs(t, k.ReleaseRenderTarget(TargetHandle(0xbad)), ErrInvalidTargetID)
	require.NoError(t, k.ReleaseRenderTarget(target))
	assert.Equal(t, 1, k.groups.Len(), "target bind groups are removed with it")
	assert.ErrorIs(t, k.ReleaseRenderTarget(target), ErrInvalidTargetID)

	// Lists built before the release fail to submit.
	require.NoError(t, k.BeginFrame())
	assert.ErrorIs(t, k.SubmitRenderList(onscreen), ErrInvalidTargetID)
	require.NoError(t, k.PresentFrame())
}

func TestReleaseRenderTargetDuringFrame(t *testing.T) {
	k := newTestKelp(t)
	target, err := k.CreateRenderTarget(8, 8)
	require.NoError(t, err)
	require.NoError(t, k.BeginFrame())
	assert.ErrorIs(t, k.ReleaseRenderTarget(target), ErrFrameActive)
	require.NoError(t, k.PresentFrame())
	require.NoError(t, k.ReleaseRenderTarget(target))
}

func TestCustomShader(t *testing.T) {
	k := newTestKelp(t)
	tex := newTestTexture(t, k, 8, 8)

	assert.ErrorIs(t, k.RegisterShader("broken", "fn nope("), ErrInvalidShader)
	require.NoError(t, k.RegisterShader("plain", SpriteShaderSource()))
	assert.ErrorIs(t, k.RegisterShader("plain", SpriteShaderSource()), ErrShaderExists)

	list := NewRenderList(nil, testCamera(), nil)
	_, err := list.AddInstances(k, tex, false, BlendAlpha, sprites(1))
	require.NoError(t, err)
	_, err = list.AddInstancesWithShader(k, tex, false, BlendAlpha, "plain", sprites(1))
	require.NoError(t, err)

	require.NoError(t, k.BeginFrame())
	require.NoError(t, k.SubmitRenderList(list))
	require.NoError(t, k.PresentFrame())
	assert.Equal(t, 2, k.Stats().PipelineBinds)
	assert.Equal(t, 2, k.pipelines.Len())
}

func TestTextures(t *testing.T) {
	k := newTestKelp(t)

	_, err := k.CreateTextureWithData(4, 4, make([]byte, 10))
	assert.ErrorIs(t, err, ErrInvalidDimensions)
	_, err = k.CreateEmptyTexture(0, 4)
	assert.ErrorIs(t, err, ErrInvalidDimensions)
	_, err = k.CreateEmptyTexture(1024, 1024)
	assert.ErrorIs(t, err, ErrAtlasFull)
	_, err = k.CreateRenderTarget(0, 0)
	assert.ErrorIs(t, err, ErrInvalidDimensions)

	tex, err := k.CreateEmptyTexture(20, 10)
	require.NoError(t, err)
	w, h, err := k.TextureSize(tex)
	require.NoError(t, err)
	assert.Equal(t, []int{20, 10}, []int{w, h})

	require.NoError(t, k.UpdateTexture(tex, make([]byte, 20*10*4)))
	require.NoError(t, k.UpdateTextureRegion(tex, 10, 5, 10, 5, make([]byte, 10*5*4)))
	assert.ErrorIs(t, k.UpdateTextureRegion(tex, 15, 0, 10, 5, make([]byte, 10*5*4)), ErrInvalidDimensions)

	stats := k.AtlasStats()
	assert.Equal(t, 256, stats.Size)
	assert.Equal(t, 2, stats.MaxLayers)
	assert.Equal(t, 1, stats.Allocations)

	require.NoError(t, k.ReleaseTexture(tex))
	assert.ErrorIs(t, k.ReleaseTexture(tex), ErrInvalidTextureID)
	assert.ErrorIs(t, k.UpdateTexture(tex, make([]byte, 20*10*4)), ErrInvalidTextureID)
	_, _, err = k.TextureSize(tex)
	assert.ErrorIs(t, err, ErrInvalidTextureID)
}

func TestCreateTextureFromImage(t *testing.T) {
	k := newTestKelp(t)

	img := image.NewNRGBA(image.Rect(5, 5, 17, 13))
	img.Set(5, 5, color.NRGBA{R: 255, A: 128})
	tex, err := k.CreateTextureFromImage(img)
	require.NoError(t, err)
	w, h, err := k.TextureSize(tex)
	require.NoError(t, err)
	assert.Equal(t, 12, w)
	assert.Equal(t, 8, h)

	converted := toRGBA(img)
	assert.Equal(t, image.Rect(0, 0, 12, 8), converted.Bounds())
	assert.Equal(t, color.RGBA{R: 128, A: 128}, converted.RGBAAt(0, 0))

	_, err = k.CreateTextureFromImage(nil)
	assert.ErrorIs(t, err, ErrInvalidDimensions)
}

func TestTextureCreator(t *testing.T) {
	k := newTestKelp(t)
	var creator gpucontext.TextureCreator = k

	tex, err := creator.NewTextureFromRGBA(4, 2, make([]byte, 4*2*4))
	require.NoError(t, err)
	assert.Equal(t, 4, tex.Width())
	assert.Equal(t, 2, tex.Height())

	kt, ok := tex.(*Texture)
	require.True(t, ok)
	require.NoError(t, kt.UpdateData(make([]byte, 4*2*4)))
	require.NoError(t, kt.UpdateRegion(1, 0, 2, 2, make([]byte, 2*2*4)))
	require.NoError(t, kt.Release())
	assert.ErrorIs(t, kt.UpdateData(make([]byte, 4*2*4)), ErrInvalidTextureID)
}

// recordingOverlay counts Draw calls and checks its arguments.
type recordingOverlay struct {
	inited    bool
	draws     int
	destroyed bool
	fail      error
}

func (o *recordingOverlay) Init(p gpucontext.DeviceProvider) error {
	if _, ok := p.(interface{ HalDevice() any }); !ok {
		return errors.New("provider without HalDevice")
	}
	o.inited = true
	return nil
}

func (o *recordingOverlay) Draw(enc hal.CommandEncoder, view hal.TextureView, width, height uint32, _ any) error {
	if enc == nil || view == nil || width == 0 || height == 0 {
		return errors.New("bad overlay arguments")
	}
	o.draws++
	return o.fail
}

func (o *recordingOverlay) Destroy() { o.destroyed = true }

func TestOverlay(t *testing.T) {
	plain := newTestKelp(t)
	assert.ErrorIs(t, plain.DrawOverlay(nil), ErrFeatureNotEnabled)

	ov := &recordingOverlay{}
	k, err := Initialise(testWindow, WithBackend(noop.API{}), WithOverlay(ov))
	require.NoError(t, err)
	assert.True(t, ov.inited)

	assert.ErrorIs(t, k.DrawOverlay("ui"), ErrNoCurrentFrame)
	require.NoError(t, k.BeginFrame())
	require.NoError(t, k.DrawOverlay("ui"))
	ov.fail = errors.New("boom")
	assert.Error(t, k.DrawOverlay("ui"))
	require.NoError(t, k.PresentFrame())
	assert.Equal(t, 2, ov.draws)

	require.NoError(t, k.Close())
	assert.True(t, ov.destroyed)
}

func TestClose(t *testing.T) {
	k, err := Initialise(testWindow, WithBackend(noop.API{}))
	require.NoError(t, err)
	tex := newTestTexture(t, k, 4, 4)

	// Close abandons a live frame.
	require.NoError(t, k.BeginFrame())
	require.NoError(t, k.Close())
	require.NoError(t, k.Close())

	assert.ErrorIs(t, k.BeginFrame(), ErrClosed)
	assert.ErrorIs(t, k.SubmitRenderList(nil), ErrClosed)
	assert.ErrorIs(t, k.PresentFrame(), ErrClosed)
	assert.ErrorIs(t, k.ReleaseTexture(tex), ErrClosed)
	_, err = k.CreateEmptyTexture(4, 4)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = NewRenderList(nil, testCamera(), nil).AddInstances(k, tex, false, BlendAlpha, sprites(1))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestInitialiseWithProvider(t *testing.T) {
	host := newTestKelp(t)

	k, err := InitialiseWithProvider(host, WithConfig(host.Config()))
	require.NoError(t, err)
	assert.True(t, k.Headless())
	assert.Equal(t, host.SurfaceFormat(), k.SurfaceFormat())
	assert.Nil(t, k.Adapter())

	target, err := k.CreateRenderTarget(16, 16)
	require.NoError(t, err)
	tex := newTestTexture(t, k, 4, 4)
	list := NewRenderList(&target, Camera{Width: 16, Height: 16, Scale: 1}, &Color{A: 1})
	_, err = list.AddInstances(k, tex, false, BlendAlpha, sprites(1))
	require.NoError(t, err)
	require.NoError(t, k.BeginFrame())
	require.NoError(t, k.SubmitRenderList(list))
	require.NoError(t, k.PresentFrame())

	// Closing the borrower leaves the host's device usable.
	require.NoError(t, k.Close())
	require.NoError(t, host.BeginFrame())
	require.NoError(t, host.PresentFrame())
}

// bareProvider is a DeviceProvider without HAL accessors.
type bareProvider struct{}

func (bareProvider) Device() gpucontext.Device { return nil }
func (bareProvider) Queue() gpucontext.Queue { return nil }
func (bareProvider) SurfaceFormat() gputypes.TextureFormat { return gputypes.TextureFormatUndefined }
func (bareProvider) Adapter() gpucontext.Adapter { return nil }
func (bareProvider) AdapterInfo() gpucontext.AdapterInfo { return gpucontext.AdapterInfo{} }

func TestInitialiseWithProviderErrors(t *testing.T) {
	_, err := InitialiseWithProvider(bareProvider{})
	assert.ErrorIs(t, err, ErrNoDevice)
}
