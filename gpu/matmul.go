package gpu

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// Multiplier runs multiplications on one device with one compiled kernel.
// Every run gets its own ResourceSet, so runs may proceed concurrently.
type Multiplier struct {
	// Timeout bounds the wait for each readback. Zero waits indefinitely.
	Timeout time.Duration

	gc      *Context
	program *Program
}

// NewMultiplier compiles the given entry point of MatmulSource.
func NewMultiplier(c *Context, entry string) (*Multiplier, error) {
	p, err := Compile(c, MatmulSource, entry)
	if err != nil {
		return nil, err
	}
	return &Multiplier{gc: c, program: p}, nil
}

// Program is the compiled kernel runs are dispatched with.
func (m *Multiplier) Program() *Program { return m.program }

// Multiply computes a × b for row-major size × size inputs.
func (m *Multiplier) Multiply(ctx context.Context, a, b []float32, size int) ([]float32, error) {
	if m.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.Timeout)
		defer cancel()
	}

	rs, err := NewResourceSet(m.gc, a, b, size)
	if err != nil {
		return nil, err
	}
	defer rs.Release()

	bg, err := rs.Bind(m.gc, m.program)
	if err != nil {
		return nil, err
	}
	defer bg.Release()

	sub, err := Dispatch(m.gc, m.program, bg, rs)
	if err != nil {
		return nil, err
	}
	return ReadBack(ctx, m.gc, sub.Staging, size*size)
}

// Job is one multiplication in a batch.
type Job struct {
	A, B []float32
	Size int
}

// MultiplyBatch runs jobs concurrently, at most workers at a time when
// workers > 0. The first failure cancels the rest.
func (m *Multiplier) MultiplyBatch(ctx context.Context, jobs []Job, workers int) ([][]float32, error) {
	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	out := make([][]float32, len(jobs))
	for i, j := range jobs {
		g.Go(func() error {
			r, err := m.Multiply(gctx, j.A, j.B, j.Size)
			if err != nil {
				return fmt.Errorf("job %d: %w", i, err)
			}
			out[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Release frees the compiled kernel. The Context stays with its owner.
func (m *Multiplier) Release() {
	m.program.Release()
}

// Multiply is a single run: compile, allocate, bind, dispatch, read back,
// and release everything it created.
func Multiply(ctx context.Context, c *Context, a, b []float32, size int) ([]float32, error) {
	m, err := NewMultiplier(c, EntrySimple)
	if err != nil {
		return nil, err
	}
	defer m.Release()
	return m.Multiply(ctx, a, b, size)
}
