package gpu

import (
	"context"
	"fmt"

	"github.com/openfluke/webgpu/wgpu"
)

// bufferAllocator is the part of *wgpu.Device that creates buffers.
type bufferAllocator interface {
	CreateBuffer(descriptor *wgpu.BufferDescriptor) (*wgpu.Buffer, error)
	CreateBufferInit(descriptor *wgpu.BufferInitDescriptor) (*wgpu.Buffer, error)
}

// DeviceBuffer is a device allocation with the usage it was declared with.
type DeviceBuffer struct {
	Buffer *wgpu.Buffer
	Label  string
	Usage  wgpu.BufferUsage
	Size   uint64
}

// Binding binds the whole buffer to a slot.
func (b DeviceBuffer) Binding(slot uint32) Binding {
	return Binding{Slot: slot, Label: b.Label, Usage: b.Usage, Size: b.Size, Buffer: b.Buffer}
}

// Destroy frees the device memory.
func (b *DeviceBuffer) Destroy() {
	if b.Buffer != nil {
		b.Buffer.Destroy()
		b.Buffer = nil
	}
}

// newInitBuffer creates a buffer holding contents.
func newInitBuffer(dev bufferAllocator, label string, contents []byte, usage wgpu.BufferUsage) (DeviceBuffer, error) {
	buf, err := dev.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    label,
		Contents: contents,
		Usage:    usage,
	})
	if err == nil && buf == nil {
		err = fmt.Errorf("device returned no buffer")
	}
	if err != nil {
		return DeviceBuffer{}, fmt.Errorf("%w: %s: %v", ErrBufferAllocationFailed, label, err)
	}
	return DeviceBuffer{Buffer: buf, Label: label, Usage: usage, Size: uint64(len(contents))}, nil
}

// newBuffer creates a zero-initialized buffer of size bytes.
func newBuffer(dev bufferAllocator, label string, size uint64, usage wgpu.BufferUsage) (DeviceBuffer, error) {
	buf, err := dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: usage,
	})
	if err == nil && buf == nil {
		err = fmt.Errorf("device returned no buffer")
	}
	if err != nil {
		return DeviceBuffer{}, fmt.Errorf("%w: %s: %v", ErrBufferAllocationFailed, label, err)
	}
	return DeviceBuffer{Buffer: buf, Label: label, Usage: usage, Size: size}, nil
}

// NewFloatBuffer creates a buffer holding data. dev is normally the
// Context's Device.
func NewFloatBuffer(dev bufferAllocator, label string, data []float32, usage wgpu.BufferUsage) (DeviceBuffer, error) {
	return newInitBuffer(dev, label, wgpu.ToBytes(data), usage)
}

// ReadBuffer copies the first n floats of a CopySrc buffer into a fresh
// staging buffer in its own submission and reads them back.
func ReadBuffer(ctx context.Context, c *Context, buffer *wgpu.Buffer, n int) ([]float32, error) {
	sizeBytes := uint64(n) * 4
	if n <= 0 || sizeBytes > buffer.GetSize() {
		return nil, fmt.Errorf("%w: read of %d floats from a %d byte buffer", ErrMapRequestFailed, n, buffer.GetSize())
	}

	staging, err := NewStagingBuffer(c.Device, "ReadStaging", sizeBytes)
	if err != nil {
		return nil, err
	}
	defer staging.Destroy()

	encoder, err := c.Device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: command encoder: %v", ErrDeviceLost, err)
	}
	encoder.CopyBufferToBuffer(buffer, 0, staging.Buffer(), 0, sizeBytes)
	cmd, err := encoder.Finish(nil)
	encoder.Release()
	if err != nil {
		return nil, fmt.Errorf("%w: finish: %v", ErrDeviceLost, err)
	}
	c.Queue.Submit(cmd)
	cmd.Release()

	return ReadBack(ctx, c, staging, n)
}
