package gpu

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/openfluke/matmul/matrix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tolerance = 1e-4

// acquireOrSkip returns a device context, skipping the test on machines
// without a usable adapter.
func acquireOrSkip(t *testing.T) *Context {
	t.Helper()
	c, err := Acquire(Options{AllowFallback: true})
	if err != nil {
		t.Skipf("no GPU available: %v", err)
	}
	t.Cleanup(c.Release)
	return c
}

func randomMatrix(r *rand.Rand, n int) []float32 {
	out := make([]float32, n*n)
	for i := range out {
		out[i] = r.Float32()*2 - 1
	}
	return out
}

func reference(t *testing.T, a, b []float32, n int) []float32 {
	t.Helper()
	ma, err := matrix.FromSlice(n, a)
	require.NoError(t, err)
	mb, err := matrix.FromSlice(n, b)
	require.NoError(t, err)
	c, err := matrix.Multiply(ma, mb)
	require.NoError(t, err)
	return c.Data
}

func TestMultiplyKnownProducts(t *testing.T) {
	c := acquireOrSkip(t)
	ctx := context.Background()

	got, err := Multiply(ctx, c, []float32{1, 2, 3, 4}, []float32{5, 6, 7, 8}, 2)
	require.NoError(t, err)
	assert.Equal(t, []float32{19, 22, 43, 50}, got)

	got, err = Multiply(ctx, c, []float32{3}, []float32{4}, 1)
	require.NoError(t, err)
	assert.Equal(t, []float32{12}, got)
}

func TestMultiplyMatchesReference(t *testing.T) {
	c := acquireOrSkip(t)
	r := rand.New(rand.NewSource(42))

	for _, entry := range []string{EntrySimple, EntryTiled} {
		m, err := NewMultiplier(c, entry)
		require.NoError(t, err)
		m.Timeout = 10 * time.Second

		for _, n := range []int{1, 2, 15, 16, 17, 31, 64, 100, 256} {
			a, b := randomMatrix(r, n), randomMatrix(r, n)
			got, err := m.Multiply(context.Background(), a, b, n)
			require.NoError(t, err, "%s n=%d", entry, n)
			want := reference(t, a, b, n)
			assert.True(t, matrix.ApproxEqual(got, want, tolerance),
				"%s n=%d max diff %g", entry, n, matrix.MaxAbsDiff(got, want))
		}
		m.Release()
	}
}

func TestMultiplyIdentityAndZero(t *testing.T) {
	c := acquireOrSkip(t)
	const n = 17
	r := rand.New(rand.NewSource(7))
	a := randomMatrix(r, n)
	id := make([]float32, n*n)
	for i := 0; i < n; i++ {
		id[i*n+i] = 1
	}

	got, err := Multiply(context.Background(), c, a, id, n)
	require.NoError(t, err)
	assert.Equal(t, a, got)

	got, err = Multiply(context.Background(), c, a, make([]float32, n*n), n)
	require.NoError(t, err)
	assert.Equal(t, make([]float32, n*n), got)
}

func TestNoWritesPastResult(t *testing.T) {
	c := acquireOrSkip(t)
	const n, guard = 17, 64
	r := rand.New(rand.NewSource(3))
	a, b := randomMatrix(r, n), randomMatrix(r, n)

	for _, entry := range []string{EntrySimple, EntryTiled} {
		p, err := Compile(c, MatmulSource, entry)
		require.NoError(t, err)

		rs, err := allocateResources(c.Device, c.MaxStorageBinding(), a, b, n, guard)
		require.NoError(t, err)
		bg, err := rs.Bind(c, p)
		require.NoError(t, err)
		_, err = Dispatch(c, p, bg, rs)
		require.NoError(t, err)

		all, err := ReadBuffer(context.Background(), c, rs.Result.Buffer, n*n+guard)
		require.NoError(t, err)
		for i, v := range all[n*n:] {
			assert.Equal(t, guardValue, v, "%s: guard element %d overwritten", entry, i)
		}
		assert.True(t, matrix.ApproxEqual(all[:n*n], reference(t, a, b, n), tolerance))

		bg.Release()
		rs.Release()
		p.Release()
	}
}

func TestBindIsRepeatable(t *testing.T) {
	c := acquireOrSkip(t)
	p, err := Compile(c, MatmulSource, EntrySimple)
	require.NoError(t, err)
	defer p.Release()

	rs, err := NewResourceSet(c, []float32{1, 2, 3, 4}, []float32{5, 6, 7, 8}, 2)
	require.NoError(t, err)
	defer rs.Release()

	g1, err := rs.Bind(c, p)
	require.NoError(t, err)
	defer g1.Release()
	g2, err := rs.Bind(c, p)
	require.NoError(t, err)
	defer g2.Release()
	assert.Equal(t, g1.Entries, g2.Entries)
}

func TestNewResourceSetSizeMismatch(t *testing.T) {
	c := acquireOrSkip(t)
	_, err := NewResourceSet(c, make([]float32, 4), make([]float32, 9), 2)
	assert.True(t, errors.Is(err, ErrSizeMismatch), "got %v", err)
}

func TestCompileRejectsUnknownEntry(t *testing.T) {
	c := acquireOrSkip(t)
	_, err := Compile(c, MatmulSource, "main_missing")
	assert.True(t, errors.Is(err, ErrKernelCompile), "got %v", err)

	_, err = Compile(c, "@group(0) @binding(0) var<storage, read_write> o : array<f32>;\n"+
		"@compute @workgroup_size(8, 8) fn main() { o[0] = 1.0; }", "main")
	assert.True(t, errors.Is(err, ErrKernelCompile), "wrong workgroup size: got %v", err)
}

func TestMultiplyBatch(t *testing.T) {
	c := acquireOrSkip(t)
	m, err := NewMultiplier(c, EntryTiled)
	require.NoError(t, err)
	defer m.Release()

	r := rand.New(rand.NewSource(11))
	jobs := make([]Job, 6)
	for i := range jobs {
		n := 8 + 9*i
		jobs[i] = Job{A: randomMatrix(r, n), B: randomMatrix(r, n), Size: n}
	}
	out, err := m.MultiplyBatch(context.Background(), jobs, 3)
	require.NoError(t, err)
	require.Len(t, out, len(jobs))
	for i, j := range jobs {
		want := reference(t, j.A, j.B, j.Size)
		assert.True(t, matrix.ApproxEqual(out[i], want, tolerance), "job %d", i)
	}

	jobs = append(jobs, Job{A: make([]float32, 4), B: make([]float32, 1), Size: 2})
	_, err = m.MultiplyBatch(context.Background(), jobs, 0)
	assert.True(t, errors.Is(err, ErrSizeMismatch), "got %v", err)
}

func TestProgramReleaseFreesLayout(t *testing.T) {
	c := acquireOrSkip(t)
	p, err := Compile(c, MatmulSource, EntryTiled)
	require.NoError(t, err)
	require.NotNil(t, p.bindGroupLayout)

	p.Release()
	assert.Nil(t, p.pipeline)
	assert.Nil(t, p.bindGroupLayout)
	p.Release()
}
