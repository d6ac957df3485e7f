package gpu

import (
	"fmt"

	"github.com/openfluke/webgpu/wgpu"
)

// Program is a compiled compute pipeline together with the binding
// interface reflected from its source.
type Program struct {
	Interface *KernelInterface

	pipeline        *wgpu.ComputePipeline
	bindGroupLayout *wgpu.BindGroupLayout
}

// Compile reflects the entry point's interface, checks that its workgroup
// matches TileSize × TileSize, and builds a pipeline whose bind group
// layout is inferred by the device from the kernel's declared bindings.
func Compile(c *Context, source, entry string) (*Program, error) {
	ki, err := ParseKernel(source, entry)
	if err != nil {
		return nil, err
	}
	if ki.WorkgroupSize != [3]uint32{TileSize, TileSize, 1} {
		return nil, fmt.Errorf("%w: entry %q declares workgroup %v, dispatch assumes %dx%d",
			ErrKernelCompile, entry, ki.WorkgroupSize, TileSize, TileSize)
	}
	if Debug {
		Log("Compiling %s with %d bindings", entry, len(ki.Layout))
	}

	module, err := c.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          entry + "_Shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: source},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: shader module: %v", ErrKernelCompile, err)
	}
	defer module.Release()

	pipeline, err := c.Device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: entry + "_Pipe",
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: entry,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: pipeline: %v", ErrKernelCompile, err)
	}

	return &Program{
		Interface:       ki,
		pipeline:        pipeline,
		bindGroupLayout: pipeline.GetBindGroupLayout(0),
	}, nil
}

// Layout is the slot contract resources must satisfy to bind to p.
func (p *Program) Layout() Layout { return p.Interface.Layout }

// Release frees the pipeline and its bind group layout.
func (p *Program) Release() {
	if p.bindGroupLayout != nil {
		p.bindGroupLayout.Release()
		p.bindGroupLayout = nil
	}
	if p.pipeline != nil {
		p.pipeline.Release()
		p.pipeline = nil
	}
}
