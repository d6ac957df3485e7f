package gpu

import (
	"fmt"

	"github.com/openfluke/webgpu/wgpu"
)

// Submission is the work sent to the queue for one run.
type Submission struct {
	Grid    Grid
	Staging *StagingBuffer
	Bytes   uint64
}

// Dispatch records one dispatch of the size × size grid and a byte-exact
// copy of the result into the staging buffer, and submits both in a single
// command buffer. Ordering within the submission makes the dispatch's
// writes visible to the copy. Out-of-range invocations are clipped by the
// kernel, not here.
func Dispatch(c *Context, p *Program, g *BindGroup, rs *ResourceSet) (*Submission, error) {
	grid := GridFor(rs.Size, TileSize)
	bytes := rs.ResultBytes()
	if Debug {
		Log("Dispatching %s over %dx%d workgroups", p.Interface.Entry, grid.X, grid.Y)
	}

	enc, err := c.Device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{
		Label: "Matrix Multiply Encoder",
	})
	if err != nil {
		return nil, fmt.Errorf("%w: command encoder: %v", ErrDeviceLost, err)
	}

	pass := enc.BeginComputePass(&wgpu.ComputePassDescriptor{
		Label: "Matrix Multiply Pass",
	})
	pass.SetPipeline(p.pipeline)
	pass.SetBindGroup(0, g.group, nil)
	pass.DispatchWorkgroups(grid.X, grid.Y, grid.Z)
	pass.End()

	enc.CopyBufferToBuffer(rs.Result.Buffer, 0, rs.Staging.Buffer(), 0, bytes)

	cmd, err := enc.Finish(nil)
	enc.Release()
	if err != nil {
		return nil, fmt.Errorf("%w: finish: %v", ErrDeviceLost, err)
	}
	c.Queue.Submit(cmd)
	cmd.Release()

	return &Submission{Grid: grid, Staging: rs.Staging, Bytes: bytes}, nil
}
