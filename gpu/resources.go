package gpu

import (
	"fmt"

	"github.com/openfluke/webgpu/wgpu"
)

// Binding slots of the matmul kernels.
const (
	SlotA uint32 = iota
	SlotB
	SlotResult
	SlotDimensions
)

// guardValue fills the tail of a guarded result buffer.
const guardValue float32 = -7777

// ResourceSet is the per-run set of device buffers: the two inputs, the
// result, the dimensions uniform, and the staging buffer the result is
// copied into for readback.
type ResourceSet struct {
	Size int

	A       DeviceBuffer
	B       DeviceBuffer
	Result  DeviceBuffer
	Dims    DeviceBuffer
	Staging *StagingBuffer
}

// NewResourceSet allocates and fills the buffers for one size × size
// multiplication. Inputs of different lengths fail with ErrSizeMismatch
// before anything is allocated. Allocation is fail-fast: buffers created
// before a failure are released and the error is returned.
func NewResourceSet(c *Context, a, b []float32, size int) (*ResourceSet, error) {
	return allocateResources(c.Device, c.MaxStorageBinding(), a, b, size, 0)
}

// allocateResources appends guard sentinel floats past the end of the
// result buffer when guard > 0.
func allocateResources(dev bufferAllocator, maxBinding uint64, a, b []float32, size, guard int) (*ResourceSet, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("%w: A has %d elements, B has %d", ErrSizeMismatch, len(a), len(b))
	}
	if size <= 0 || len(a) != size*size {
		return nil, fmt.Errorf("%w: %d elements for size %d", ErrSizeMismatch, len(a), size)
	}
	resultBytes := uint64(size*size+guard) * 4
	if maxBinding > 0 && resultBytes > maxBinding {
		return nil, fmt.Errorf("%w: %d bytes exceeds the %d byte storage binding limit",
			ErrBufferAllocationFailed, resultBytes, maxBinding)
	}
	if Debug {
		Log("Allocating buffers for %dx%d (%d bytes each)", size, size, size*size*4)
	}

	rs := &ResourceSet{Size: size}
	var err error
	fail := func(err error) (*ResourceSet, error) {
		rs.Release()
		return nil, err
	}

	if rs.A, err = NewFloatBuffer(dev, "Matrix A Buffer", a, wgpu.BufferUsageStorage); err != nil {
		return fail(err)
	}
	if rs.B, err = NewFloatBuffer(dev, "Matrix B Buffer", b, wgpu.BufferUsageStorage); err != nil {
		return fail(err)
	}

	resultUsage := wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc
	if guard > 0 {
		init := make([]float32, size*size+guard)
		for i := size * size; i < len(init); i++ {
			init[i] = guardValue
		}
		rs.Result, err = NewFloatBuffer(dev, "Result Buffer", init, resultUsage)
	} else {
		rs.Result, err = newBuffer(dev, "Result Buffer", resultBytes, resultUsage)
	}
	if err != nil {
		return fail(err)
	}

	if rs.Dims, err = newInitBuffer(dev, "Dimensions Buffer", NewDimensions(size, size).Bytes(), wgpu.BufferUsageUniform); err != nil {
		return fail(err)
	}
	if rs.Staging, err = NewStagingBuffer(dev, "Staging Buffer", rs.ResultBytes()); err != nil {
		return fail(err)
	}
	return rs, nil
}

// ResultBytes is the byte length of the product.
func (rs *ResourceSet) ResultBytes() uint64 {
	return uint64(rs.Size*rs.Size) * 4
}

// Bindings is the slot to buffer mapping the kernels expect.
func (rs *ResourceSet) Bindings() []Binding {
	return []Binding{
		rs.A.Binding(SlotA),
		rs.B.Binding(SlotB),
		rs.Result.Binding(SlotResult),
		rs.Dims.Binding(SlotDimensions),
	}
}

// BindGroup is an immutable slot to buffer association for one program.
// It must be recreated when any buffer changes.
type BindGroup struct {
	Entries []Binding

	group *wgpu.BindGroup
}

// Bind checks the buffers against the program's reflected layout and
// creates a bind group on the layout the device inferred for it.
func (rs *ResourceSet) Bind(c *Context, p *Program) (*BindGroup, error) {
	entries := rs.Bindings()
	if err := p.Layout().Check(entries); err != nil {
		return nil, err
	}

	wEntries := make([]wgpu.BindGroupEntry, len(entries))
	for i, e := range entries {
		wEntries[i] = wgpu.BindGroupEntry{Binding: e.Slot, Buffer: e.Buffer, Size: e.Size}
	}
	group, err := c.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   "Matrix Multiply Bind Group",
		Layout:  p.bindGroupLayout,
		Entries: wEntries,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBindingLayoutMismatch, err)
	}
	return &BindGroup{Entries: entries, group: group}, nil
}

// Release frees the bind group.
func (g *BindGroup) Release() {
	if g.group != nil {
		g.group.Release()
		g.group = nil
	}
}

// Release destroys every buffer in the set.
func (rs *ResourceSet) Release() {
	rs.A.Destroy()
	rs.B.Destroy()
	rs.Result.Destroy()
	rs.Dims.Destroy()
	if rs.Staging != nil {
		rs.Staging.Destroy()
		rs.Staging = nil
	}
}
