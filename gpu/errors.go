package gpu

import "errors"

// Error kinds surfaced by the pipeline. Every one of them is fatal for the run
// that produced it; callers match with errors.Is.
var (
	ErrNoSuitableAdapter      = errors.New("gpu: no suitable adapter")
	ErrDeviceCreationFailed   = errors.New("gpu: device creation failed")
	ErrKernelCompile          = errors.New("gpu: kernel compile error")
	ErrSizeMismatch           = errors.New("gpu: input matrix size mismatch")
	ErrBindingLayoutMismatch  = errors.New("gpu: binding layout mismatch")
	ErrBufferAllocationFailed = errors.New("gpu: buffer allocation failed")
	ErrMapRequestFailed       = errors.New("gpu: map request failed")
	ErrDeviceLost             = errors.New("gpu: device lost")
)
