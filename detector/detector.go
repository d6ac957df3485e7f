// Package detector describes a WebGPU adapter in terms of what a square
// matrix multiplication needs from it: workgroup limits, storage binding
// size and the largest product it can hold.
package detector

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/openfluke/webgpu/wgpu"
)

// Report is a portable summary of an adapter.
type Report struct {
	When        time.Time `json:"when"`
	Name        string    `json:"name"`
	Vendor      string    `json:"vendor"`
	Driver      string    `json:"driver"`
	Backend     string    `json:"backend"`
	AdapterType string    `json:"adapter_type"`
	VendorID    string    `json:"vendor_id_hex"`
	DeviceID    string    `json:"device_id_hex"`
	Limits      Limits    `json:"limits"`
	Features    []string  `json:"features"`

	Recommended Recommendations `json:"recommended"`
}

// Limits are the adapter limits a compute dispatch is checked against.
type Limits struct {
	MaxComputeInvocationsPerWorkgroup uint32 `json:"max_compute_invocations_per_workgroup"`
	MaxComputeWorkgroupSizeX          uint32 `json:"max_compute_workgroup_size_x"`
	MaxComputeWorkgroupSizeY          uint32 `json:"max_compute_workgroup_size_y"`
	MaxComputeWorkgroupSizeZ          uint32 `json:"max_compute_workgroup_size_z"`
	MaxComputeWorkgroupsPerDimension  uint32 `json:"max_compute_workgroups_per_dimension"`
	MaxComputeWorkgroupStorageSize    uint32 `json:"max_compute_workgroup_storage_size"`
	MaxStorageBufferBindingSize       uint64 `json:"max_storage_buffer_binding_size"`
	MaxUniformBufferBindingSize       uint64 `json:"max_uniform_buffer_binding_size"`
	MaxBufferSize                     uint64 `json:"max_buffer_size"`
}

type Recommendations struct {
	// Largest square workgroup the adapter can run.
	WorkgroupX uint32 `json:"workgroup_x"`
	WorkgroupY uint32 `json:"workgroup_y"`

	// Largest matrix edge a 16x16 kernel can multiply on this adapter.
	MaxMatrixSize int `json:"max_matrix_size"`
}

// MatmulTile is the workgroup edge of the matmul kernels.
const MatmulTile = 16

// JSON renders the report with two-space indentation.
func (r *Report) JSON() (string, error) {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DetectJSON inspects the default adapter and returns its report as JSON.
func DetectJSON() (string, error) {
	rep, err := Detect()
	if err != nil {
		return "", err
	}
	return rep.JSON()
}

// Detect describes the high-performance adapter on its own instance.
// Use Describe for an adapter already in use.
func Detect() (*Report, error) {
	inst := wgpu.CreateInstance(nil)
	if inst == nil {
		return nil, fmt.Errorf("wgpu.CreateInstance returned nil")
	}
	defer inst.Release()

	adapter, err := inst.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err == nil && adapter == nil {
		err = fmt.Errorf("no adapter")
	}
	if err != nil {
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	defer adapter.Release()

	return Describe(adapter), nil
}

// Describe builds a report for an adapter without creating a device.
func Describe(adapter *wgpu.Adapter) *Report {
	info := adapter.GetInfo()
	l := adapter.GetLimits().Limits
	lim := Limits{
		MaxComputeInvocationsPerWorkgroup: l.MaxComputeInvocationsPerWorkgroup,
		MaxComputeWorkgroupSizeX:          l.MaxComputeWorkgroupSizeX,
		MaxComputeWorkgroupSizeY:          l.MaxComputeWorkgroupSizeY,
		MaxComputeWorkgroupSizeZ:          l.MaxComputeWorkgroupSizeZ,
		MaxComputeWorkgroupsPerDimension:  l.MaxComputeWorkgroupsPerDimension,
		MaxComputeWorkgroupStorageSize:    l.MaxComputeWorkgroupStorageSize,
		MaxStorageBufferBindingSize:       l.MaxStorageBufferBindingSize,
		MaxUniformBufferBindingSize:       l.MaxUniformBufferBindingSize,
		MaxBufferSize:                     l.MaxBufferSize,
	}

	rep := &Report{
		When:        time.Now().UTC().Truncate(time.Second),
		Name:        strings.TrimSpace(info.Name),
		Vendor:      strings.TrimSpace(info.VendorName),
		Driver:      strings.TrimSpace(info.DriverDescription),
		Backend:     info.BackendType.String(),
		AdapterType: info.AdapterType.String(),
		VendorID:    fmt.Sprintf("0x%04x", info.VendorId),
		DeviceID:    fmt.Sprintf("0x%04x", info.DeviceId),
		Limits:      lim,
	}
	for _, f := range adapter.EnumerateFeatures() {
		rep.Features = append(rep.Features, f.String())
	}
	rep.Recommended.WorkgroupX, rep.Recommended.WorkgroupY = chooseWorkgroup2D(lim)
	rep.Recommended.MaxMatrixSize = MaxMatrixSize(lim, MatmulTile)
	return rep
}

// CheckCompute reports whether the limits allow a wgX × wgY compute
// workgroup over storage buffers. No optional features are required.
func CheckCompute(l Limits, wgX, wgY uint32) error {
	if err := fitsWorkgroup(l, wgX, wgY); err != nil {
		return err
	}
	if l.MaxStorageBufferBindingSize == 0 {
		return fmt.Errorf("adapter exposes no storage buffers")
	}
	return nil
}

// MaxMatrixSize is the largest n for which an n × n float32 matrix fits
// one storage binding and ceil(n/tile) workgroups fit one grid dimension.
func MaxMatrixSize(l Limits, tile int) int {
	bytes := l.MaxStorageBufferBindingSize
	if l.MaxBufferSize > 0 && l.MaxBufferSize < bytes {
		bytes = l.MaxBufferSize
	}
	n := int(math.Sqrt(float64(bytes / 4)))
	for n > 0 && uint64(n)*uint64(n)*4 > bytes {
		n--
	}
	for uint64(n+1)*uint64(n+1)*4 <= bytes {
		n++
	}
	if grid := int(l.MaxComputeWorkgroupsPerDimension) * tile; grid < n {
		n = grid
	}
	return n
}

func fitsWorkgroup(l Limits, wgX, wgY uint32) error {
	switch {
	case wgX > l.MaxComputeWorkgroupSizeX:
		return fmt.Errorf("workgroup x %d exceeds adapter limit %d", wgX, l.MaxComputeWorkgroupSizeX)
	case wgY > l.MaxComputeWorkgroupSizeY:
		return fmt.Errorf("workgroup y %d exceeds adapter limit %d", wgY, l.MaxComputeWorkgroupSizeY)
	case wgX*wgY > l.MaxComputeInvocationsPerWorkgroup:
		return fmt.Errorf("%d invocations per workgroup exceeds adapter limit %d", wgX*wgY, l.MaxComputeInvocationsPerWorkgroup)
	}
	return nil
}

func chooseWorkgroup2D(l Limits) (uint32, uint32) {
	for _, c := range []uint32{32, 16, 8, 4, 2} {
		if fitsWorkgroup(l, c, c) == nil {
			return c, c
		}
	}
	return 1, 1
}
