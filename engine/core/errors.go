package core

import (
	"errors"
	"fmt"
)

var (
	ErrInit                = errors.New("renderer initialization failed")
	ErrNoDevice            = fmt.Errorf("%w: no suitable physical device", ErrInit)
	ErrNoSuitableQueue     = fmt.Errorf("%w: no queue family supports graphics and present", ErrInit)
	ErrSurfaceIncompatible = fmt.Errorf("%w: surface reports no formats or present modes", ErrInit)
	ErrShaderIO            = fmt.Errorf("%w: shader read failed", ErrInit)

	ErrSwapchainOutOfDate  = errors.New("swapchain out of date")
	ErrSwapchainSuboptimal = errors.New("swapchain suboptimal")

	ErrOutOfDeviceMemory    = errors.New("out of device memory")
	ErrOutOfHostMemory      = errors.New("out of host memory")
	ErrNoSuitableMemoryType = errors.New("no suitable memory type")
	ErrDeviceLost           = errors.New("device lost")
	ErrUnsupportedFormat    = errors.New("unsupported image format")

	ErrPoolFull                  = errors.New("mesh pool full")
	ErrPoolExists                = errors.New("mesh pool already exists")
	ErrStaleHandle               = errors.New("stale instance handle")
	ErrMissingPool               = errors.New("render queue references a mesh type without a pool")
	ErrOverflowingInstanceUpload = errors.New("instance upload exceeds pool capacity")
	ErrFrameNotWritable          = errors.New("frame region is not writable")
	ErrClassMismatch             = errors.New("pipeline class not supported by material")
)

var fatal = []error{
	ErrInit,
	ErrOutOfDeviceMemory,
	ErrOutOfHostMemory,
	ErrNoSuitableMemoryType,
	ErrDeviceLost,
}

var recoverable = []error{
	ErrSwapchainOutOfDate,
	ErrSwapchainSuboptimal,
	ErrStaleHandle,
	ErrMissingPool,
	ErrOverflowingInstanceUpload,
}

// IsFatal reports whether the application has to terminate after err.
func IsFatal(err error) bool {
	for _, e := range fatal {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

// IsRecoverable reports whether the next frame can proceed normally after err.
func IsRecoverable(err error) bool {
	if err == nil {
		return true
	}
	for _, e := range recoverable {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
