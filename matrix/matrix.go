// Package matrix holds the host-side square matrices the GPU multiplies,
// plus the reference product and comparison used to check results.
package matrix

import (
	"fmt"

	"github.com/chewxy/math32"
)

// Matrix is a row-major size × size matrix: element (i, j) is
// Data[i*Size+j].
type Matrix struct {
	Size int
	Data []float32
}

// New returns a zero matrix.
func New(size int) Matrix {
	return Matrix{Size: size, Data: make([]float32, size*size)}
}

// FromSlice wraps data, which must hold exactly size*size values.
func FromSlice(size int, data []float32) (Matrix, error) {
	if size <= 0 {
		return Matrix{}, fmt.Errorf("matrix size must be positive, got %d", size)
	}
	if len(data) != size*size {
		return Matrix{}, fmt.Errorf("matrix of size %d needs %d values, got %d", size, size*size, len(data))
	}
	return Matrix{Size: size, Data: data}, nil
}

// At returns element (i, j).
func (m Matrix) At(i, j int) float32 {
	return m.Data[i*m.Size+j]
}

// Multiply is the straightforward triple-loop product a × b, accumulated
// in float64.
func Multiply(a, b Matrix) (Matrix, error) {
	if a.Size != b.Size || len(a.Data) != len(b.Data) {
		return Matrix{}, fmt.Errorf("size mismatch: %d vs %d", a.Size, b.Size)
	}
	n := a.Size
	c := New(n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var sum float64
			for k := 0; k < n; k++ {
				sum += float64(a.Data[i*n+k]) * float64(b.Data[k*n+j])
			}
			c.Data[i*n+j] = float32(sum)
		}
	}
	return c, nil
}

// MaxAbsDiff is the largest element-wise |got - want|. Slices of
// different length compare as +Inf.
func MaxAbsDiff(got, want []float32) float32 {
	if len(got) != len(want) {
		return math32.Inf(1)
	}
	var d float32
	for i := range got {
		d = math32.Max(d, math32.Abs(got[i]-want[i]))
	}
	return d
}

// ApproxEqual reports whether every element of got is within tol of want,
// relative to the magnitude of want once that exceeds 1.
func ApproxEqual(got, want []float32, tol float32) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if math32.IsNaN(got[i]) || math32.Abs(got[i]-want[i]) > tol*math32.Max(1, math32.Abs(want[i])) {
			return false
		}
	}
	return true
}
