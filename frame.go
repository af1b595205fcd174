package kelp

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/kelp/internal/gpu"
	"github.com/gogpu/wgpu/hal"
)

// FrameStats counts the GPU work recorded for one frame.
type FrameStats struct {
	Lists          int
	RenderPasses   int
	DrawCalls      int
	PipelineBinds  int
	BindGroupBinds int
	Instances      int
}

func (s *FrameStats) add(p gpu.PassStats) {
	s.Lists++
	s.RenderPasses += p.RenderPasses
	s.DrawCalls += p.DrawCalls
	s.PipelineBinds += p.PipelineBinds
	s.BindGroupBinds += p.BindGroupBinds
	s.Instances += p.Instances
}

// frameState lives between BeginFrame and PresentFrame.
type frameState struct {
	// acquired and view are nil when headless.
	acquired *hal.AcquiredSurfaceTexture
	view     hal.TextureView

	upload  hal.CommandEncoder
	draw    hal.CommandEncoder
	overlay hal.CommandEncoder

	scratch []byte
	stats   FrameStats
}

// encoders returns the frame's encoders in submission order.
func (f *frameState) encoders() []hal.CommandEncoder {
	encs := []hal.CommandEncoder{f.upload, f.draw}
	if f.overlay != nil {
		encs = append(encs, f.overlay)
	}
	return encs
}

// inflight holds the previous frame's GPU objects until its submission
// completes.
type inflight struct {
	index    uint64
	buffers  []hal.CommandBuffer
	encoders []hal.CommandEncoder
	views    []hal.TextureView
}

func (f *inflight) release(dev hal.Device) {
	if dev != nil {
		for _, cb := range f.buffers {
			dev.FreeCommandBuffer(cb)
		}
		for _, v := range f.views {
			dev.DestroyTextureView(v)
		}
	}
	for _, enc := range f.encoders {
		enc.Destroy()
	}
	*f = inflight{index: f.index}
}

// FrameActive reports whether a frame is between BeginFrame and
// PresentFrame.
func (k *Kelp) FrameActive() bool { return k.frame != nil }

// BeginFrame waits for the previous frame, acquires the next surface
// texture and opens the frame's command encoders. ErrSwapchain is
// recoverable: call SetSurfaceSize and try again.
func (k *Kelp) BeginFrame() error {
	if err := k.usable(); err != nil {
		return err
	}
	if k.frame != nil {
		return ErrFrameActive
	}

	// The staging buffer is rewritten below; the last submission must be
	// done reading it.
	if err := k.device.WaitSubmission(k.inflight.index, k.timeout); err != nil {
		return err
	}
	k.inflight.release(k.device.HAL())

	f := &frameState{}
	if !k.device.Headless() {
		acquired, err := k.device.Acquire()
		if err != nil {
			return err
		}
		view, err := k.device.HAL().CreateTextureView(acquired.Texture, &hal.TextureViewDescriptor{
			Label:           "kelp_surface_view",
			Format:          k.device.Format(),
			Dimension:       gputypes.TextureViewDimension2D,
			Aspect:          gputypes.TextureAspectAll,
			MipLevelCount:   1,
			ArrayLayerCount: 1,
		})
		if err != nil {
			k.device.Discard(acquired.Texture)
			return fmt.Errorf("%w: create surface view: %w", ErrSwapchain, err)
		}
		f.acquired = acquired
		f.view = view
	}

	var err error
	if f.upload, err = k.newEncoder("kelp_upload"); err == nil {
		if f.draw, err = k.newEncoder("kelp_draw"); err == nil && k.overlay != nil {
			f.overlay, err = k.newEncoder("kelp_overlay")
		}
	}
	if err == nil {
		err = k.buffers.Begin()
	}
	if err != nil {
		k.discardFrame(f)
		return err
	}

	k.recorder.Reset()
	k.frame = f
	return nil
}

func (k *Kelp) newEncoder(label string) (hal.CommandEncoder, error) {
	enc, err := k.device.HAL().CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("create %s encoder: %w", label, err)
	}
	if err := enc.BeginEncoding(label); err != nil {
		enc.Destroy()
		return nil, fmt.Errorf("begin %s encoding: %w", label, err)
	}
	return enc, nil
}

// discardFrame drops every object of an unsubmitted frame.
func (k *Kelp) discardFrame(f *frameState) {
	if err := k.buffers.Finish(); err != nil {
		Logger().Warn("kelp: unmap staging on discard", "err", err)
	}
	for _, enc := range f.encoders() {
		if enc != nil {
			enc.DiscardEncoding()
			enc.Destroy()
		}
	}
	if f.view != nil {
		k.device.HAL().DestroyTextureView(f.view)
	}
	if f.acquired != nil {
		k.device.Discard(f.acquired.Texture)
	}
}

// abandonFrame ends a live frame without submitting it.
func (k *Kelp) abandonFrame() {
	f := k.frame
	k.frame = nil
	k.discardFrame(f)
	Logger().Warn("kelp: frame abandoned", "lists", f.stats.Lists)
}

// SubmitRenderList records one render pass drawing list. Lists are drawn
// in submission order. An empty list is a no-op.
func (k *Kelp) SubmitRenderList(list *RenderList) error {
	if err := k.usable(); err != nil {
		return err
	}
	f := k.frame
	if f == nil {
		return ErrNoCurrentFrame
	}
	if list == nil || len(list.batches) == 0 || len(list.instances) == 0 {
		return nil
	}

	batches := make([]gpu.Batch, 0, len(list.batches))
	for _, b := range list.batches {
		p, err := k.pipelines.Ensure(b.shader, b.blend)
		if err != nil {
			return err
		}
		g, err := k.groups.Ensure(b.source, b.smooth)
		if err != nil {
			return err
		}
		batches = append(batches, gpu.Batch{Pipeline: p, BindGroup: g, Count: b.count})
	}

	view, target, err := k.destination(list)
	if err != nil {
		return err
	}

	barriers, err := k.transitions(list, target)
	if err != nil {
		return err
	}

	f.scratch = gpu.EncodeInstances(f.scratch[:0], list.instances)
	up, err := k.buffers.Stage(f.upload, f.scratch, gpu.EncodeCamera(list.camera.Matrix()))
	if err != nil {
		return err
	}

	if len(barriers) > 0 {
		f.draw.TransitionTextures(barriers)
	}
	stats, err := k.recorder.Record(f.draw, gpu.PassDesc{
		View:   view,
		Clear:  clearValue(list.clear),
		Upload: up,
	}, batches)
	if err != nil {
		return err
	}
	f.stats.add(stats)
	return nil
}

// destination returns the color attachment for list and, for off-screen
// lists, the render target.
func (k *Kelp) destination(list *RenderList) (hal.TextureView, *gpu.RenderTarget, error) {
	h, ok := list.Target()
	if !ok {
		if k.frame.view == nil {
			return nil, nil, fmt.Errorf("%w: headless renderer has no surface", ErrInvalidTargetID)
		}
		return k.frame.view, nil, nil
	}
	t, err := k.textures.ResolveTarget(slotHandle(h))
	if err != nil {
		return nil, nil, err
	}
	return t.AttachView, t, nil
}

// transitions moves every sampled render target to TextureBinding and the
// destination target to RenderAttachment.
func (k *Kelp) transitions(list *RenderList, target *gpu.RenderTarget) ([]hal.TextureBarrier, error) {
	var barriers []hal.TextureBarrier
	for _, b := range list.batches {
		if b.source.Kind != gpu.SourceTarget {
			continue
		}
		t, err := k.textures.ResolveTarget(b.source.Target)
		if err != nil {
			return nil, err
		}
		if t == target {
			return nil, fmt.Errorf("%w: render target sampled while drawn to", ErrInvalidTargetID)
		}
		if barrier, ok := t.Transition(gputypes.TextureUsageTextureBinding); ok {
			barriers = append(barriers, barrier)
		}
	}
	if target != nil {
		if barrier, ok := target.Transition(gputypes.TextureUsageRenderAttachment); ok {
			barriers = append(barriers, barrier)
		}
	}
	return barriers, nil
}

func clearValue(c *Color) *gputypes.Color {
	if c == nil {
		return nil
	}
	return &gputypes.Color{R: float64(c.R), G: float64(c.G), B: float64(c.B), A: float64(c.A)}
}

// DrawOverlay records the overlay's UI for data on top of the surface.
func (k *Kelp) DrawOverlay(data any) error {
	if err := k.usable(); err != nil {
		return err
	}
	if k.overlay == nil {
		return ErrFeatureNotEnabled
	}
	f := k.frame
	if f == nil {
		return ErrNoCurrentFrame
	}
	if f.view == nil {
		return fmt.Errorf("%w: overlay needs a surface", ErrFeatureNotEnabled)
	}
	w, h := k.device.Size()
	if err := k.overlay.Draw(f.overlay, f.view, w, h, data); err != nil {
		Logger().Warn("kelp: overlay draw failed", "err", err)
		return fmt.Errorf("draw overlay: %w", err)
	}
	return nil
}

// PresentFrame submits the frame's upload, draw and overlay commands in
// that order and presents the surface texture. The renderer returns to
// idle even when an error is returned.
func (k *Kelp) PresentFrame() error {
	if err := k.usable(); err != nil {
		return err
	}
	f := k.frame
	if f == nil {
		return ErrNoCurrentFrame
	}
	k.frame = nil

	if err := k.buffers.Finish(); err != nil {
		k.discardFrame(f)
		return err
	}

	encoders := f.encoders()
	cmds := make([]hal.CommandBuffer, 0, len(encoders))
	for i, enc := range encoders {
		cb, err := enc.EndEncoding()
		if err != nil {
			for _, rest := range encoders[i+1:] {
				rest.DiscardEncoding()
			}
			k.releaseUnsubmitted(f, cmds)
			return fmt.Errorf("end encoding: %w", err)
		}
		cmds = append(cmds, cb)
	}

	index, err := k.device.Queue().Submit(cmds)
	if err != nil {
		k.releaseUnsubmitted(f, cmds)
		return fmt.Errorf("submit: %w", err)
	}
	k.inflight = inflight{index: index, buffers: cmds, encoders: encoders}
	if f.view != nil {
		k.inflight.views = append(k.inflight.views, f.view)
	}
	k.stats = f.stats

	if f.acquired != nil {
		if err := k.device.Present(f.acquired.Texture); err != nil {
			return err
		}
	}
	return nil
}

func (k *Kelp) releaseUnsubmitted(f *frameState, cmds []hal.CommandBuffer) {
	dev := k.device.HAL()
	for _, cb := range cmds {
		dev.FreeCommandBuffer(cb)
	}
	for _, enc := range f.encoders() {
		enc.Destroy()
	}
	if f.view != nil {
		dev.DestroyTextureView(f.view)
	}
	if f.acquired != nil {
		k.device.Discard(f.acquired.Texture)
	}
}

// SetSurfaceSize reconfigures the surface. It must be called between
// frames.
func (k *Kelp) SetSurfaceSize(width, height uint32) error {
	if err := k.usable(); err != nil {
		return err
	}
	if k.frame != nil {
		return ErrFrameActive
	}
	return k.device.Configure(width, height, k.presentMode)
}

// Stats returns the counters of the live frame, or of the last presented
// frame when idle.
func (k *Kelp) Stats() FrameStats {
	if k.frame != nil {
		return k.frame.stats
	}
	return k.stats
}
