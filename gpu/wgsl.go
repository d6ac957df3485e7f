package gpu

import (
	"fmt"
	"sort"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
)

// KernelInterface is the host-visible contract of one compute entry point:
// the resources it binds in group 0 and its declared workgroup size.
type KernelInterface struct {
	Entry         string
	WorkgroupSize [3]uint32
	Layout        Layout
}

// ParseKernel reflects the group 0 bindings and the workgroup size of the
// given entry point from WGSL source. Bindings are taken from the whole
// module, so every entry point is expected to use all of them.
func ParseKernel(source, entry string) (*KernelInterface, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKernelCompile, err)
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKernelCompile, err)
	}
	return reflectKernel(module, entry)
}

func reflectKernel(module *ir.Module, entry string) (*KernelInterface, error) {
	ki := &KernelInterface{Entry: entry}
	found := false
	for _, ep := range module.EntryPoints {
		if ep.Name != entry || ep.Stage != ir.StageCompute {
			continue
		}
		for i, n := range ep.Workgroup {
			if n == 0 {
				return nil, fmt.Errorf("%w: entry %q: workgroup dimension %d is zero", ErrKernelCompile, entry, i)
			}
		}
		ki.WorkgroupSize = ep.Workgroup
		found = true
		break
	}
	if !found {
		return nil, fmt.Errorf("%w: no compute entry point %q", ErrKernelCompile, entry)
	}

	seen := map[uint32]string{}
	for _, gv := range module.GlobalVariables {
		if gv.Binding == nil || gv.Binding.Group != 0 {
			continue
		}
		b := gv.Binding.Binding
		if prev, dup := seen[b]; dup {
			return nil, fmt.Errorf("%w: binding %d declared by both %s and %s", ErrKernelCompile, b, prev, gv.Name)
		}
		seen[b] = gv.Name
		kind, err := slotKind(gv)
		if err != nil {
			return nil, fmt.Errorf("%w: binding %d: %v", ErrKernelCompile, b, err)
		}
		ki.Layout = append(ki.Layout, Slot{
			Binding: b,
			Name:    gv.Name,
			Type:    typeName(module, gv.Type),
			Kind:    kind,
		})
	}
	if len(ki.Layout) == 0 {
		return nil, fmt.Errorf("%w: no group 0 bindings", ErrKernelCompile)
	}
	sort.Slice(ki.Layout, func(i, j int) bool { return ki.Layout[i].Binding < ki.Layout[j].Binding })
	return ki, nil
}

func slotKind(gv ir.GlobalVariable) (SlotKind, error) {
	switch gv.Space {
	case ir.SpaceUniform:
		return UniformSlot, nil
	case ir.SpaceStorage:
		if gv.Access == ir.StorageRead {
			return ReadOnlyStorageSlot, nil
		}
		return StorageSlot, nil
	}
	return 0, fmt.Errorf("%s is not a buffer binding", gv.Name)
}

func typeName(module *ir.Module, h ir.TypeHandle) string {
	if int(h) >= len(module.Types) {
		return ""
	}
	t := module.Types[h]
	if t.Name != "" {
		return t.Name
	}
	switch inner := t.Inner.(type) {
	case ir.ArrayType:
		return "array<" + typeName(module, inner.Base) + ">"
	case ir.ScalarType:
		prefix := map[ir.ScalarKind]string{ir.ScalarSint: "i", ir.ScalarUint: "u", ir.ScalarFloat: "f"}[inner.Kind]
		if prefix != "" {
			return fmt.Sprintf("%s%d", prefix, int(inner.Width)*8)
		}
	}
	return fmt.Sprintf("%T", t.Inner)
}
