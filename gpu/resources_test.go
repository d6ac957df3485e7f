package gpu

import (
	"errors"
	"testing"

	"github.com/openfluke/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingAllocator records buffer requests and fails every one of them.
type countingAllocator struct {
	labels   []string
	contents [][]byte
	usages   []wgpu.BufferUsage
}

func (a *countingAllocator) CreateBuffer(d *wgpu.BufferDescriptor) (*wgpu.Buffer, error) {
	a.labels = append(a.labels, d.Label)
	a.usages = append(a.usages, d.Usage)
	return nil, errors.New("out of memory")
}

func (a *countingAllocator) CreateBufferInit(d *wgpu.BufferInitDescriptor) (*wgpu.Buffer, error) {
	a.labels = append(a.labels, d.Label)
	a.contents = append(a.contents, d.Contents)
	a.usages = append(a.usages, d.Usage)
	return nil, errors.New("out of memory")
}

func TestAllocateSizeMismatchAllocatesNothing(t *testing.T) {
	dev := &countingAllocator{}

	_, err := allocateResources(dev, 0, make([]float32, 4), make([]float32, 9), 2, 0)
	assert.True(t, errors.Is(err, ErrSizeMismatch), "got %v", err)

	_, err = allocateResources(dev, 0, make([]float32, 4), make([]float32, 4), 3, 0)
	assert.True(t, errors.Is(err, ErrSizeMismatch), "got %v", err)

	_, err = allocateResources(dev, 0, nil, nil, 0, 0)
	assert.True(t, errors.Is(err, ErrSizeMismatch), "got %v", err)

	assert.Empty(t, dev.labels)
}

func TestAllocateRespectsBindingLimit(t *testing.T) {
	dev := &countingAllocator{}
	_, err := allocateResources(dev, 15, make([]float32, 4), make([]float32, 4), 2, 0)
	assert.True(t, errors.Is(err, ErrBufferAllocationFailed), "got %v", err)
	assert.Empty(t, dev.labels)
}

func TestAllocateFailsFast(t *testing.T) {
	dev := &countingAllocator{}
	rs, err := allocateResources(dev, 0, make([]float32, 4), make([]float32, 4), 2, 0)
	assert.Nil(t, rs)
	assert.True(t, errors.Is(err, ErrBufferAllocationFailed), "got %v", err)
	assert.Equal(t, []string{"Matrix A Buffer"}, dev.labels)
	assert.Contains(t, err.Error(), "Matrix A Buffer")
}

func TestStagingBufferAllocationError(t *testing.T) {
	dev := &countingAllocator{}
	_, err := NewStagingBuffer(dev, "Staging Buffer", 64)
	assert.True(t, errors.Is(err, ErrBufferAllocationFailed), "got %v", err)
}

func TestNewFloatBufferUploadsData(t *testing.T) {
	dev := &countingAllocator{}
	_, err := NewFloatBuffer(dev, "Matrix A Buffer", []float32{1, 2, 3, 4}, wgpu.BufferUsageStorage)
	assert.True(t, errors.Is(err, ErrBufferAllocationFailed), "got %v", err)
	require.Len(t, dev.contents, 1)
	assert.Equal(t, wgpu.ToBytes([]float32{1, 2, 3, 4}), dev.contents[0])
	assert.Equal(t, []wgpu.BufferUsage{wgpu.BufferUsageStorage}, dev.usages)
}

func TestAllocateUploadsInputA(t *testing.T) {
	dev := &countingAllocator{}
	a := []float32{1, 2, 3, 4}
	_, err := allocateResources(dev, 0, a, []float32{5, 6, 7, 8}, 2, 0)
	require.Error(t, err)
	require.Len(t, dev.contents, 1)
	assert.Equal(t, wgpu.ToBytes(a), dev.contents[0])
	assert.Equal(t, wgpu.BufferUsageStorage, dev.usages[0])
}
