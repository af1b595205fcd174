package ffi

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gogpu/kelp"
)

// ErrLayout is returned when packed data does not match its layout.
var ErrLayout = errors.New("kelp/ffi: malformed packed data")

// Sizes of the packed layouts in bytes.
const (
	CameraSize        = 24
	ColorSize         = 16
	TransformSize     = 28
	InstanceSize      = 64
	InstanceBatchSize = 16
	WindowInfoSize    = 32
)

// Instance is the packed form of kelp.Instance:
// color 4×f32, mode u8, 3 pad bytes, source 4×f32, world 7×f32.
type Instance struct {
	Color  kelp.Color
	Mode   kelp.InstanceMode
	_      [3]byte
	Source kelp.SourceTransform
	World  kelp.Transform
}

// Source kinds of an InstanceBatch.
const (
	SourceTexture uint8 = 0
	SourceTarget  uint8 = 1
)

// InstanceBatch describes a run of consecutive instances sharing a
// source and render state.
type InstanceBatch struct {
	// Texture is a TextureHandle, or a TargetHandle when Kind is
	// SourceTarget.
	Texture uint64
	Smooth  uint8
	Blend   uint8
	Kind    uint8
	_       uint8
	Count   uint32
}

// Sampled returns the batch's source handle.
func (b InstanceBatch) Sampled() kelp.Sampled {
	if b.Kind == SourceTarget {
		return kelp.TargetHandle(b.Texture)
	}
	return kelp.TextureHandle(b.Texture)
}

// WindowInfo is the packed window description. Kind counts from zero:
// Win32, Xlib, Wayland, AppKit.
type WindowInfo struct {
	Kind    int32
	_       [4]byte
	Handle  uint64
	Display uint64
	Width   uint32
	Height  uint32
}

// Window converts w, reporting a zero Handle as headless.
func (w WindowInfo) Window() (kelp.Window, error) {
	if w.Kind < 0 || w.Kind > 3 {
		return kelp.Window{}, fmt.Errorf("%w: window kind %d", ErrLayout, w.Kind)
	}
	kind := kelp.WindowKind(w.Kind + 1)
	if w.Handle == 0 {
		kind = kelp.WindowNone
	}
	return kelp.Window{
		Display: uintptr(w.Display),
		Handle:  uintptr(w.Handle),
		Kind:    kind,
		Width:   w.Width,
		Height:  w.Height,
	}, nil
}

// decodeOne decodes exactly one value of type T from buf.
func decodeOne[T any](buf []byte, size int) (T, error) {
	var v T
	if len(buf) != size {
		return v, fmt.Errorf("%w: %T needs %d bytes, got %d", ErrLayout, v, size, len(buf))
	}
	if _, err := binary.Decode(buf, binary.NativeEndian, &v); err != nil {
		return v, fmt.Errorf("%w: %w", ErrLayout, err)
	}
	return v, nil
}

// decodeSlice decodes a packed array of T.
func decodeSlice[T any](buf []byte, size int) ([]T, error) {
	if len(buf)%size != 0 {
		var v T
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of %T", ErrLayout, len(buf), v)
	}
	out := make([]T, len(buf)/size)
	if len(out) == 0 {
		return out, nil
	}
	if _, err := binary.Decode(buf, binary.NativeEndian, out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLayout, err)
	}
	return out, nil
}

// DecodeCamera decodes a packed 6×f32 camera.
func DecodeCamera(buf []byte) (kelp.Camera, error) {
	return decodeOne[kelp.Camera](buf, CameraSize)
}

// DecodeColor decodes a packed 4×f32 color. An empty buf is "no color".
func DecodeColor(buf []byte) (*kelp.Color, error) {
	if len(buf) == 0 {
		return nil, nil
	}
	c, err := decodeOne[kelp.Color](buf, ColorSize)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// DecodeTransform decodes a packed 7×f32 world transform.
func DecodeTransform(buf []byte) (kelp.Transform, error) {
	return decodeOne[kelp.Transform](buf, TransformSize)
}

// DecodeWindow decodes a packed WindowInfo.
func DecodeWindow(buf []byte) (kelp.Window, error) {
	w, err := decodeOne[WindowInfo](buf, WindowInfoSize)
	if err != nil {
		return kelp.Window{}, err
	}
	return w.Window()
}

// DecodeInstances decodes a packed instance array.
func DecodeInstances(buf []byte) ([]kelp.Instance, error) {
	packed, err := decodeSlice[Instance](buf, InstanceSize)
	if err != nil {
		return nil, err
	}
	out := make([]kelp.Instance, len(packed))
	for i, p := range packed {
		out[i] = kelp.Instance{Color: p.Color, Mode: p.Mode, Source: p.Source, World: p.World}
	}
	return out, nil
}

// DecodeBatches decodes a packed InstanceBatch array.
func DecodeBatches(buf []byte) ([]InstanceBatch, error) {
	return decodeSlice[InstanceBatch](buf, InstanceBatchSize)
}

// EncodeInstances packs instances in the layout DecodeInstances reads.
func EncodeInstances(instances []kelp.Instance) []byte {
	packed := make([]Instance, len(instances))
	for i, in := range instances {
		packed[i] = Instance{Color: in.Color, Mode: in.Mode, Source: in.Source, World: in.World}
	}
	buf := make([]byte, len(packed)*InstanceSize)
	if len(packed) > 0 {
		// The buffer is sized from the layout, so Encode cannot fail.
		_, _ = binary.Encode(buf, binary.NativeEndian, packed)
	}
	return buf
}

// RenderBatch builds one render list from instances split by batches and
// submits it to k. The batch counts must sum to len(instances). A nil
// target draws to the surface.
func RenderBatch(k *kelp.Kelp, target *kelp.TargetHandle, camera kelp.Camera, clear *kelp.Color, instances []kelp.Instance, batches []InstanceBatch) error {
	total := 0
	for _, b := range batches {
		total += int(b.Count)
	}
	if total != len(instances) {
		return fmt.Errorf("%w: batches cover %d instances, got %d", ErrLayout, total, len(instances))
	}

	list := kelp.NewRenderList(target, camera, clear)
	offset := 0
	for _, b := range batches {
		n := int(b.Count)
		if _, err := list.AddInstances(k, b.Sampled(), b.Smooth != 0, kelp.BlendMode(b.Blend), instances[offset:offset+n]); err != nil {
			return err
		}
		offset += n
	}
	return k.SubmitRenderList(list)
}
