package gpu

import "github.com/pkg/errors"

var (
	ErrOutOfDate         = errors.New("swapchain out of date")
	ErrSuboptimal        = errors.New("swapchain suboptimal")
	ErrSurfaceLost       = errors.New("surface lost")
	ErrDeviceLost        = errors.New("device lost")
	ErrTimeout           = errors.New("timeout")
	ErrOutOfHostMemory   = errors.New("out of host memory")
	ErrOutOfDeviceMemory = errors.New("out of device memory")
)

// NeedsRebuild reports whether err asks for the swapchain to be recreated.
func NeedsRebuild(err error) bool {
	return errors.Is(err, ErrOutOfDate) || errors.Is(err, ErrSuboptimal)
}
