package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Batch is one draw: Count consecutive instances drawn with a resolved
// pipeline and texture bind group.
type Batch struct {
	Pipeline  int
	BindGroup int
	Count     uint32
}

// PassDesc describes one render pass over a render list.
type PassDesc struct {
	Label string

	// View is the color attachment.
	View hal.TextureView

	// Clear is the clear color. Nil loads the existing contents.
	Clear *gputypes.Color

	// Upload locates the list's instances and camera.
	Upload Upload
}

// PassStats counts recorded GPU work.
type PassStats struct {
	DrawCalls      int
	PipelineBinds  int
	BindGroupBinds int
	RenderPasses   int
	Instances      int
}

// Add accumulates o into s.
func (s *PassStats) Add(o PassStats) {
	s.DrawCalls += o.DrawCalls
	s.PipelineBinds += o.PipelineBinds
	s.BindGroupBinds += o.BindGroupBinds
	s.RenderPasses += o.RenderPasses
	s.Instances += o.Instances
}

// Recorder records render passes for resolved batches. SetPipeline and
// SetBindGroup are issued only when the cached index changes between
// consecutive batches of a pass.
type Recorder struct {
	pipelines *PipelineCache
	groups    *BindGroupCache
	quad      hal.Buffer

	stats PassStats
}

// NewRecorder creates a recorder over the given caches. quad is the unit
// quad vertex buffer bound to slot 0.
func NewRecorder(pipelines *PipelineCache, groups *BindGroupCache, quad hal.Buffer) *Recorder {
	return &Recorder{pipelines: pipelines, groups: groups, quad: quad}
}

type resolvedBatch struct {
	Batch
	pipeline hal.RenderPipeline
	group    hal.BindGroup
}

// Record encodes one render pass drawing batches in order. Every pipeline
// and bind group index is resolved before the pass begins so a failure
// leaves enc without an open pass.
func (r *Recorder) Record(enc hal.CommandEncoder, pass PassDesc, batches []Batch) (PassStats, error) {
	resolved := make([]resolvedBatch, 0, len(batches))
	for _, b := range batches {
		if b.Count == 0 {
			continue
		}
		p, err := r.pipelines.Get(b.Pipeline)
		if err != nil {
			return PassStats{}, err
		}
		g, err := r.groups.At(b.BindGroup)
		if err != nil {
			return PassStats{}, err
		}
		resolved = append(resolved, resolvedBatch{Batch: b, pipeline: p, group: g})
	}

	load := gputypes.LoadOpLoad
	var clearValue gputypes.Color
	if pass.Clear != nil {
		load = gputypes.LoadOpClear
		clearValue = *pass.Clear
	}
	label := pass.Label
	if label == "" {
		label = "kelp_sprite_pass"
	}
	rp := enc.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: label,
		ColorAttachments: []hal.RenderPassColorAttachment{
			{
				View:       pass.View,
				LoadOp:     load,
				StoreOp:    gputypes.StoreOpStore,
				ClearValue: clearValue,
			},
		},
	})
	if rp == nil {
		return PassStats{}, fmt.Errorf("begin render pass %q: encoder returned nil", label)
	}

	stats := PassStats{RenderPasses: 1}
	if len(resolved) > 0 {
		rp.SetVertexBuffer(0, r.quad, 0)
		rp.SetVertexBuffer(1, pass.Upload.InstanceBuffer, 0)
		rp.SetBindGroup(0, pass.Upload.CameraGroup, []uint32{pass.Upload.CameraOffset})
	}

	curPipeline, curGroup := -1, -1
	first := pass.Upload.FirstInstance
	for _, b := range resolved {
		if b.Pipeline != curPipeline {
			rp.SetPipeline(b.pipeline)
			curPipeline = b.Pipeline
			stats.PipelineBinds++
		}
		if b.BindGroup != curGroup {
			rp.SetBindGroup(1, b.group, nil)
			curGroup = b.BindGroup
			stats.BindGroupBinds++
		}
		rp.Draw(quadVertexCount, b.Count, 0, first)
		first += b.Count
		stats.DrawCalls++
		stats.Instances += int(b.Count)
	}
	rp.End()

	r.stats.Add(stats)
	return stats, nil
}

// Stats returns the totals since the last Reset.
func (r *Recorder) Stats() PassStats { return r.stats }

// Reset clears the totals.
func (r *Recorder) Reset() { r.stats = PassStats{} }
