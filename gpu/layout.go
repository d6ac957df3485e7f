package gpu

import (
	"fmt"

	"github.com/openfluke/webgpu/wgpu"
)

// UniformAlignment is the minimum size granularity of a uniform binding.
const UniformAlignment = 16

// SlotKind is the class of resource a kernel binding expects.
type SlotKind int

const (
	ReadOnlyStorageSlot SlotKind = iota
	StorageSlot
	UniformSlot
)

func (k SlotKind) String() string {
	switch k {
	case ReadOnlyStorageSlot:
		return "read-only storage"
	case StorageSlot:
		return "read-write storage"
	case UniformSlot:
		return "uniform"
	}
	return fmt.Sprintf("SlotKind(%d)", int(k))
}

// RequiredUsage is the buffer capability a slot of this kind needs.
func (k SlotKind) RequiredUsage() wgpu.BufferUsage {
	if k == UniformSlot {
		return wgpu.BufferUsageUniform
	}
	return wgpu.BufferUsageStorage
}

// Slot is one binding declared by the kernel.
type Slot struct {
	Binding uint32
	Name    string
	Type    string
	Kind    SlotKind
}

// Layout is the set of slots a kernel expects, ordered by binding.
type Layout []Slot

// Binding associates a slot number with a concrete device buffer.
type Binding struct {
	Slot   uint32
	Label  string
	Usage  wgpu.BufferUsage
	Size   uint64
	Buffer *wgpu.Buffer
}

// Check validates bindings against the layout: every slot bound exactly
// once, nothing extra, each buffer's usage satisfying its slot, and
// uniform bindings sized to UniformAlignment.
func (l Layout) Check(bindings []Binding) error {
	bySlot := make(map[uint32]Binding, len(bindings))
	for _, b := range bindings {
		if _, dup := bySlot[b.Slot]; dup {
			return fmt.Errorf("%w: slot %d bound twice", ErrBindingLayoutMismatch, b.Slot)
		}
		bySlot[b.Slot] = b
	}
	for _, s := range l {
		b, ok := bySlot[s.Binding]
		if !ok {
			return fmt.Errorf("%w: slot %d (%s) is not bound", ErrBindingLayoutMismatch, s.Binding, s.Name)
		}
		delete(bySlot, s.Binding)
		if need := s.Kind.RequiredUsage(); b.Usage&need == 0 {
			return fmt.Errorf("%w: slot %d (%s) needs a %s buffer, %q lacks that usage",
				ErrBindingLayoutMismatch, s.Binding, s.Name, s.Kind, b.Label)
		}
		if b.Size == 0 {
			return fmt.Errorf("%w: slot %d (%s) bound to an empty buffer", ErrBindingLayoutMismatch, s.Binding, s.Name)
		}
		if s.Kind == UniformSlot && b.Size%UniformAlignment != 0 {
			return fmt.Errorf("%w: uniform slot %d (%s) size %d is not a multiple of %d",
				ErrBindingLayoutMismatch, s.Binding, s.Name, b.Size, UniformAlignment)
		}
	}
	for slot, b := range bySlot {
		return fmt.Errorf("%w: %q bound to slot %d which the kernel does not declare",
			ErrBindingLayoutMismatch, b.Label, slot)
	}
	return nil
}
