package gpu

import (
	"errors"
	"testing"

	"github.com/openfluke/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func matmulLayout(t *testing.T) Layout {
	t.Helper()
	ki, err := ParseKernel(MatmulSource, EntrySimple)
	require.NoError(t, err)
	return ki.Layout
}

// unallocatedSet mirrors the declared buffers of a ResourceSet without a
// device behind them.
func unallocatedSet(size int) *ResourceSet {
	n := uint64(size*size) * 4
	return &ResourceSet{
		Size:   size,
		A:      DeviceBuffer{Label: "Matrix A Buffer", Usage: wgpu.BufferUsageStorage, Size: n},
		B:      DeviceBuffer{Label: "Matrix B Buffer", Usage: wgpu.BufferUsageStorage, Size: n},
		Result: DeviceBuffer{Label: "Result Buffer", Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc, Size: n},
		Dims:   DeviceBuffer{Label: "Dimensions Buffer", Usage: wgpu.BufferUsageUniform, Size: DimensionsSize},
	}
}

func TestLayoutAcceptsResourceSet(t *testing.T) {
	rs := unallocatedSet(17)
	assert.NoError(t, matmulLayout(t).Check(rs.Bindings()))
	assert.Equal(t, rs.Bindings(), rs.Bindings(), "bindings are stable across calls")
}

func TestLayoutRejects(t *testing.T) {
	l := matmulLayout(t)
	cases := map[string]func(b []Binding) []Binding{
		"uniform slot bound to storage buffer": func(b []Binding) []Binding {
			b[SlotDimensions].Usage = wgpu.BufferUsageStorage
			return b
		},
		"storage slot bound to uniform buffer": func(b []Binding) []Binding {
			b[SlotResult].Usage = wgpu.BufferUsageUniform | wgpu.BufferUsageCopySrc
			return b
		},
		"missing slot": func(b []Binding) []Binding { return b[:3] },
		"extra slot": func(b []Binding) []Binding {
			return append(b, Binding{Slot: 7, Label: "stray", Usage: wgpu.BufferUsageStorage, Size: 4})
		},
		"slot bound twice": func(b []Binding) []Binding {
			b[SlotB].Slot = SlotA
			return b
		},
		"empty buffer": func(b []Binding) []Binding {
			b[SlotA].Size = 0
			return b
		},
		"unaligned uniform": func(b []Binding) []Binding {
			b[SlotDimensions].Size = 8
			return b
		},
	}
	for name, mutate := range cases {
		err := l.Check(mutate(unallocatedSet(4).Bindings()))
		assert.True(t, errors.Is(err, ErrBindingLayoutMismatch), "%s: got %v", name, err)
	}
}

func TestSlotKindUsage(t *testing.T) {
	assert.Equal(t, wgpu.BufferUsageUniform, UniformSlot.RequiredUsage())
	assert.Equal(t, wgpu.BufferUsageStorage, StorageSlot.RequiredUsage())
	assert.Equal(t, wgpu.BufferUsageStorage, ReadOnlyStorageSlot.RequiredUsage())
	assert.Equal(t, "uniform", UniformSlot.String())
}
