package gpu

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

var errNotMapped = errors.New("kelp: staging buffer not mapped")

// Default frame buffer capacities.
const (
	DefaultInstanceCapacity = 16384
	DefaultCameraCapacity   = 64
)

// FrameBufferConfig sets the initial buffer capacities.
type FrameBufferConfig struct {
	// InstanceCapacity is the initial instance buffer size in instances.
	InstanceCapacity int

	// CameraCapacity is the initial number of camera slots, one per
	// submitted render list.
	CameraCapacity int
}

func (c FrameBufferConfig) withDefaults() FrameBufferConfig {
	if c.InstanceCapacity <= 0 {
		c.InstanceCapacity = DefaultInstanceCapacity
	}
	if c.CameraCapacity <= 0 {
		c.CameraCapacity = DefaultCameraCapacity
	}
	return c
}

// Upload locates one render list's data in the GPU buffers.
type Upload struct {
	// FirstInstance is the index of the list's first instance in
	// InstanceBuffer.
	FirstInstance uint32

	// CameraOffset is the dynamic offset of the list's camera uniform.
	CameraOffset uint32

	InstanceBuffer hal.Buffer
	CameraGroup    hal.BindGroup
}

// FrameBuffers owns the per-session vertex, instance, camera and staging
// buffers. Each frame maps the staging buffer once in Begin, stages every
// render list into it with Stage and unmaps it in Finish. Copies into the
// persistent buffers are recorded into the caller's upload encoder.
//
// Buffers grow by replacement. A replaced buffer may still be referenced by
// commands of the current frame, so it is retired and destroyed at the
// start of the next frame, after the caller has waited for the previous
// submission.
type FrameBuffers struct {
	device       hal.Device
	queue        hal.Queue
	cameraLayout hal.BindGroupLayout

	quad hal.Buffer

	instances      hal.Buffer
	instanceCap    uint64
	instanceCursor uint64

	cameras      hal.Buffer
	cameraCap    uint64
	cameraCursor uint64
	cameraGroup  hal.BindGroup

	staging       hal.Buffer
	stagingCap    uint64
	stagingCursor uint64
	mapped        []byte

	retiredBuffers []hal.Buffer
	retiredGroups  []hal.BindGroup
}

// NewFrameBuffers creates every buffer at its initial capacity and uploads
// the unit quad.
func NewFrameBuffers(device hal.Device, queue hal.Queue, cameraLayout hal.BindGroupLayout, cfg FrameBufferConfig) (*FrameBuffers, error) {
	cfg = cfg.withDefaults()
	b := &FrameBuffers{
		device:       device,
		queue:        queue,
		cameraLayout: cameraLayout,
	}

	quad := quadBytes()
	var err error
	b.quad, err = device.CreateBuffer(&hal.BufferDescriptor{
		Label: "kelp_quad_vertices",
		Size:  uint64(len(quad)),
		Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create quad buffer: %w", err)
	}
	if err := queue.WriteBuffer(b.quad, 0, quad); err != nil {
		b.Destroy()
		return nil, fmt.Errorf("write quad buffer: %w", err)
	}

	//nolint:gosec // capacities are positive after withDefaults
	instanceBytes := uint64(cfg.InstanceCapacity) * InstanceStride
	if err := b.growInstances(instanceBytes); err != nil {
		b.Destroy()
		return nil, err
	}
	//nolint:gosec // capacities are positive after withDefaults
	cameraBytes := uint64(cfg.CameraCapacity) * CameraSlotSize
	if err := b.growCameras(cameraBytes); err != nil {
		b.Destroy()
		return nil, err
	}
	if err := b.growStaging(instanceBytes + cameraBytes); err != nil {
		b.Destroy()
		return nil, err
	}
	return b, nil
}

// growInstances replaces the instance buffer with one of at least size
// bytes and resets its cursor.
func (b *FrameBuffers) growInstances(size uint64) error {
	buf, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "kelp_instances",
		Size:  size,
		Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create instance buffer: %w", err)
	}
	if b.instances != nil {
		b.retiredBuffers = append(b.retiredBuffers, b.instances)
		slogger().Debug("kelp: instance buffer grown", "from", b.instanceCap, "to", size)
	}
	b.instances = buf
	b.instanceCap = size
	b.instanceCursor = 0
	return nil
}

// growCameras replaces the camera buffer and its bind group.
func (b *FrameBuffers) growCameras(size uint64) error {
	buf, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "kelp_cameras",
		Size:  size,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create camera buffer: %w", err)
	}
	group, err := b.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "kelp_camera_bind_group",
		Layout: b.cameraLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{
				Buffer: buf.NativeHandle(),
				Offset: 0,
				Size:   CameraUniformSize,
			}},
		},
	})
	if err != nil {
		b.device.DestroyBuffer(buf)
		return fmt.Errorf("create camera bind group: %w", err)
	}
	if b.cameras != nil {
		b.retiredBuffers = append(b.retiredBuffers, b.cameras)
		b.retiredGroups = append(b.retiredGroups, b.cameraGroup)
		slogger().Debug("kelp: camera buffer grown", "from", b.cameraCap, "to", size)
	}
	b.cameras = buf
	b.cameraGroup = group
	b.cameraCap = size
	b.cameraCursor = 0
	return nil
}

// growStaging replaces the staging buffer. If a frame is in progress the
// old buffer is unmapped and the new one mapped.
func (b *FrameBuffers) growStaging(size uint64) error {
	buf, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "kelp_staging",
		Size:  size,
		Usage: gputypes.BufferUsageMapWrite | gputypes.BufferUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("create staging buffer: %w", err)
	}
	wasMapped := b.mapped != nil
	if b.staging != nil {
		if wasMapped {
			if err := b.device.UnmapBuffer(b.staging); err != nil {
				b.device.DestroyBuffer(buf)
				return fmt.Errorf("unmap staging buffer: %w", err)
			}
			b.mapped = nil
		}
		b.retiredBuffers = append(b.retiredBuffers, b.staging)
		slogger().Debug("kelp: staging buffer grown", "from", b.stagingCap, "to", size)
	}
	b.staging = buf
	b.stagingCap = size
	b.stagingCursor = 0
	if wasMapped {
		return b.mapStaging()
	}
	return nil
}

func (b *FrameBuffers) mapStaging() error {
	m, err := b.device.MapBuffer(b.staging, 0, b.stagingCap)
	if err != nil {
		return fmt.Errorf("map staging buffer: %w", err)
	}
	b.mapped = unsafe.Slice((*byte)(m.Ptr), b.stagingCap)
	return nil
}

// Begin starts a frame: it destroys buffers retired by the previous frame,
// rewinds every cursor and maps the staging buffer. The previous frame's
// submission must have completed.
func (b *FrameBuffers) Begin() error {
	b.destroyRetired()
	b.instanceCursor = 0
	b.cameraCursor = 0
	b.stagingCursor = 0
	if b.mapped != nil {
		return nil
	}
	return b.mapStaging()
}

// Stage copies one render list's instance bytes and camera uniform into the
// staging buffer and records the copies into enc.
func (b *FrameBuffers) Stage(enc hal.CommandEncoder, instances, camera []byte) (Upload, error) {
	if b.mapped == nil {
		return Upload{}, errNotMapped
	}
	n := uint64(len(instances))
	need := n + CameraUniformSize

	if b.instanceCursor+n > b.instanceCap {
		if err := b.growInstances(max(2*b.instanceCap, n)); err != nil {
			return Upload{}, err
		}
	}
	if b.cameraCursor+CameraSlotSize > b.cameraCap {
		if err := b.growCameras(2 * b.cameraCap); err != nil {
			return Upload{}, err
		}
	}
	if b.stagingCursor+need > b.stagingCap {
		if err := b.growStaging(max(2*b.stagingCap, need)); err != nil {
			return Upload{}, err
		}
	}

	src := b.stagingCursor
	copy(b.mapped[src:], instances)
	copy(b.mapped[src+n:src+need], camera)
	b.stagingCursor += need

	if n > 0 {
		enc.CopyBufferToBuffer(b.staging, b.instances, []hal.BufferCopy{
			{SrcOffset: src, DstOffset: b.instanceCursor, Size: n},
		})
	}
	enc.CopyBufferToBuffer(b.staging, b.cameras, []hal.BufferCopy{
		{SrcOffset: src + n, DstOffset: b.cameraCursor, Size: CameraUniformSize},
	})

	up := Upload{
		FirstInstance:  uint32(b.instanceCursor / InstanceStride), //nolint:gosec // bounded by buffer size
		CameraOffset:   uint32(b.cameraCursor),                    //nolint:gosec // bounded by buffer size
		InstanceBuffer: b.instances,
		CameraGroup:    b.cameraGroup,
	}
	b.instanceCursor += n
	b.cameraCursor += CameraSlotSize
	return up, nil
}

// Finish unmaps the staging buffer. Call before submitting the upload
// encoder.
func (b *FrameBuffers) Finish() error {
	if b.mapped == nil {
		return nil
	}
	b.mapped = nil
	if err := b.device.UnmapBuffer(b.staging); err != nil {
		return fmt.Errorf("unmap staging buffer: %w", err)
	}
	return nil
}

// QuadBuffer returns the unit quad vertex buffer.
func (b *FrameBuffers) QuadBuffer() hal.Buffer { return b.quad }

// Capacity returns the instance capacity in instances and the number of
// camera slots.
func (b *FrameBuffers) Capacity() (instances, cameras int) {
	return int(b.instanceCap / InstanceStride), int(b.cameraCap / CameraSlotSize) //nolint:gosec // bounded by buffer size
}

// Retired returns the number of buffers waiting for destruction.
func (b *FrameBuffers) Retired() int { return len(b.retiredBuffers) }

func (b *FrameBuffers) destroyRetired() {
	for _, g := range b.retiredGroups {
		b.device.DestroyBindGroup(g)
	}
	for _, buf := range b.retiredBuffers {
		b.device.DestroyBuffer(buf)
	}
	b.retiredGroups = b.retiredGroups[:0]
	b.retiredBuffers = b.retiredBuffers[:0]
}

// Destroy releases every buffer. The device must be idle.
func (b *FrameBuffers) Destroy() {
	if b.device == nil {
		return
	}
	if b.mapped != nil {
		_ = b.device.UnmapBuffer(b.staging)
		b.mapped = nil
	}
	b.destroyRetired()
	if b.cameraGroup != nil {
		b.device.DestroyBindGroup(b.cameraGroup)
		b.cameraGroup = nil
	}
	for _, buf := range []*hal.Buffer{&b.staging, &b.cameras, &b.instances, &b.quad} {
		if *buf != nil {
			b.device.DestroyBuffer(*buf)
			*buf = nil
		}
	}
}
