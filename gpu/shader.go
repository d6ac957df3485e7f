package gpu

import (
	_ "embed"
	"math"
)

// TileSize is the edge of the square workgroup every matmul entry point
// declares. The dispatch grid is computed from it.
const TileSize = 16

// Entry points of MatmulSource.
const (
	EntrySimple = "main_simple"
	EntryTiled  = "main_tiled"
)

// MatmulSource is the WGSL module holding both matmul entry points.
//
//go:embed shaders/matmul.wgsl
var MatmulSource string

// Warps returns the number of workgroups sufficient to cover n elements
// with the given number of threads per dimension: Ceil(n / threads).
func Warps(n, threads int) int {
	return int(math.Ceil(float64(n) / float64(threads)))
}

// Grid is the number of workgroups dispatched along each axis.
type Grid struct {
	X, Y, Z uint32
}

// GridFor covers a size × size output with tile × tile workgroups.
// The grid overshoots when size is not a multiple of tile; the kernel
// clips the extra invocations.
func GridFor(size, tile int) Grid {
	w := uint32(Warps(size, tile))
	return Grid{X: w, Y: w, Z: 1}
}

// Workgroups is the total number of workgroups in the grid.
func (g Grid) Workgroups() int {
	return int(g.X) * int(g.Y) * int(g.Z)
}
