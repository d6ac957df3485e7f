package gpu

import (
	"fmt"
	"sync"

	"github.com/openfluke/matmul/detector"
	"github.com/openfluke/webgpu/wgpu"
)

// Options selects the physical device.
type Options struct {
	// LowPower prefers an integrated adapter over a high-performance one.
	LowPower bool

	// AllowFallback retries with a low-power and then a default adapter
	// when the preferred one cannot be obtained.
	AllowFallback bool
}

// Context owns the WebGPU instance, adapter, logical device and queue.
// It is created once by Acquire, passed by reference to every pipeline
// component, and destroyed once by Release.
type Context struct {
	Instance *wgpu.Instance
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Queue    *wgpu.Queue

	// Report describes the adapter the device was created on.
	Report *detector.Report

	release sync.Once
}

// Acquire selects a compute-capable adapter able to run TileSize × TileSize
// workgroups and creates a device on it with no optional features.
func Acquire(opts Options) (*Context, error) {
	c := &Context{}
	c.Instance = wgpu.CreateInstance(nil)
	if c.Instance == nil {
		return nil, fmt.Errorf("%w: failed to create WebGPU instance", ErrNoSuitableAdapter)
	}

	pp := wgpu.PowerPreferenceHighPerformance
	if opts.LowPower {
		pp = wgpu.PowerPreferenceLowPower
	}

	tryInit := func(o *wgpu.RequestAdapterOptions) error {
		if c.Adapter != nil {
			return nil
		}
		var err error
		c.Adapter, err = c.Instance.RequestAdapter(o)
		if err == nil && c.Adapter == nil {
			err = fmt.Errorf("no adapter returned")
		}
		return err
	}

	err := tryInit(&wgpu.RequestAdapterOptions{PowerPreference: pp})
	if err != nil && opts.AllowFallback {
		Logger.Warn("preferred adapter unavailable, falling back", "err", err)
		err = tryInit(&wgpu.RequestAdapterOptions{PowerPreference: wgpu.PowerPreferenceLowPower})
		if err != nil {
			err = tryInit(nil)
		}
	}
	if c.Adapter == nil {
		c.Instance.Release()
		return nil, fmt.Errorf("%w: %v", ErrNoSuitableAdapter, err)
	}

	c.Report = detector.Describe(c.Adapter)
	if err := detector.CheckCompute(c.Report.Limits, TileSize, TileSize); err != nil {
		c.Adapter.Release()
		c.Instance.Release()
		return nil, fmt.Errorf("%w: %s: %v", ErrNoSuitableAdapter, c.Report.Name, err)
	}
	Logger.Info("using GPU adapter", "name", c.Report.Name, "vendor", c.Report.Vendor, "backend", c.Report.Backend)

	c.Device, err = c.Adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "matmul",
	})
	if err != nil || c.Device == nil {
		c.Adapter.Release()
		c.Instance.Release()
		return nil, fmt.Errorf("%w: %v", ErrDeviceCreationFailed, err)
	}
	c.Queue = c.Device.GetQueue()
	if c.Queue == nil {
		c.Release()
		return nil, fmt.Errorf("%w: device has no queue", ErrDeviceCreationFailed)
	}
	return c, nil
}

// Poll drives the device's event processing. Map callbacks only fire from
// inside Poll. With wait set it blocks until submitted work is done.
// It reports whether the queue is empty.
func (c *Context) Poll(wait bool) bool {
	return c.Device.Poll(wait, nil)
}

// MaxStorageBinding is the largest storage buffer the device can bind.
func (c *Context) MaxStorageBinding() uint64 {
	if c.Report == nil {
		return 0
	}
	return c.Report.Limits.MaxStorageBufferBindingSize
}

// Release destroys the device, adapter and instance. It is safe to call
// more than once.
func (c *Context) Release() {
	c.release.Do(func() {
		if c.Device != nil {
			c.Device.Release()
		}
		if c.Adapter != nil {
			c.Adapter.Release()
		}
		if c.Instance != nil {
			c.Instance.Release()
		}
	})
}
