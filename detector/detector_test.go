package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func desktopLimits() Limits {
	return Limits{
		MaxComputeInvocationsPerWorkgroup: 256,
		MaxComputeWorkgroupSizeX:          256,
		MaxComputeWorkgroupSizeY:          256,
		MaxComputeWorkgroupSizeZ:          64,
		MaxComputeWorkgroupsPerDimension:  65535,
		MaxStorageBufferBindingSize:       128 << 20,
		MaxBufferSize:                     256 << 20,
	}
}

func TestCheckCompute(t *testing.T) {
	l := desktopLimits()
	assert.NoError(t, CheckCompute(l, 16, 16))

	small := l
	small.MaxComputeInvocationsPerWorkgroup = 128
	assert.Error(t, CheckCompute(small, 16, 16), "256 invocations over a 128 limit")

	narrow := l
	narrow.MaxComputeWorkgroupSizeY = 8
	assert.Error(t, CheckCompute(narrow, 16, 16))

	noStorage := l
	noStorage.MaxStorageBufferBindingSize = 0
	assert.Error(t, CheckCompute(noStorage, 16, 16))
}

func TestChooseWorkgroup2D(t *testing.T) {
	x, y := chooseWorkgroup2D(desktopLimits())
	assert.Equal(t, uint32(16), x)
	assert.Equal(t, uint32(16), y)

	l := desktopLimits()
	l.MaxComputeInvocationsPerWorkgroup = 1024
	x, y = chooseWorkgroup2D(l)
	assert.Equal(t, uint32(32), x)
	assert.Equal(t, uint32(32), y)

	x, y = chooseWorkgroup2D(Limits{})
	assert.Equal(t, uint32(1), x)
	assert.Equal(t, uint32(1), y)
}

func TestMaxMatrixSize(t *testing.T) {
	l := desktopLimits()
	// 5792*5792*4 fits 128 MiB, 5793*5793*4 does not.
	assert.Equal(t, 5792, MaxMatrixSize(l, MatmulTile))

	l.MaxBufferSize = 1 << 20
	assert.Equal(t, 512, MaxMatrixSize(l, MatmulTile), "total buffer size caps the binding")

	l.MaxComputeWorkgroupsPerDimension = 4
	assert.Equal(t, 64, MaxMatrixSize(l, MatmulTile), "grid dimension caps the edge")

	assert.Zero(t, MaxMatrixSize(Limits{}, MatmulTile))
}

func TestReportJSON(t *testing.T) {
	rep := &Report{Name: "Test GPU", Limits: desktopLimits()}
	js, err := rep.JSON()
	require.NoError(t, err)
	assert.Contains(t, js, `"name": "Test GPU"`)
	assert.Contains(t, js, `"max_compute_invocations_per_workgroup": 256`)
	assert.Contains(t, js, `"max_matrix_size": 0`)
}
