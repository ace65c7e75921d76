// Package vulkan implements the gpu interfaces on top of the Vulkan API
// through github.com/vulkan-go/vulkan.
package vulkan

import (
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"frame-engine/gpu"
)

var nextHandle atomic.Uintptr

// handles maps the opaque gpu handles handed out by this package to the
// Vulkan objects behind them.
type handles[T any] struct {
	mu    sync.Mutex
	items map[uintptr]T
}

func (h *handles[T]) add(v T) uintptr {
	id := nextHandle.Add(1)
	h.mu.Lock()
	if h.items == nil {
		h.items = make(map[uintptr]T)
	}
	h.items[id] = v
	h.mu.Unlock()
	return id
}

func (h *handles[T]) get(id uintptr) T {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.items[id]
}

func (h *handles[T]) remove(id uintptr) (T, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.items[id]
	delete(h.items, id)
	return v, ok
}

func (h *handles[T]) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.items)
}

// Init loads the Vulkan loader through vkGetInstanceProcAddr, usually
// glfw.GetVulkanGetInstanceProcAddress().
func Init(getInstanceProcAddr unsafe.Pointer) error {
	vk.SetGetInstanceProcAddr(getInstanceProcAddr)
	if err := vk.Init(); err != nil {
		return errors.Wrap(err, "failed to load Vulkan")
	}
	return nil
}

// check converts a Vulkan result into an error, mapping the results the
// frame loop reacts to onto the gpu sentinels.
func check(res vk.Result, format string, args ...any) error {
	var err error
	switch res {
	case vk.Success:
		return nil
	case vk.Suboptimal:
		err = gpu.ErrSuboptimal
	case vk.ErrorOutOfDate:
		err = gpu.ErrOutOfDate
	case vk.ErrorSurfaceLost:
		err = gpu.ErrSurfaceLost
	case vk.ErrorDeviceLost:
		err = gpu.ErrDeviceLost
	case vk.Timeout:
		err = gpu.ErrTimeout
	case vk.ErrorOutOfHostMemory:
		err = gpu.ErrOutOfHostMemory
	case vk.ErrorOutOfDeviceMemory:
		err = gpu.ErrOutOfDeviceMemory
	default:
		err = errors.Errorf("VkResult %d", int32(res))
	}
	return errors.Wrapf(err, format, args...)
}

func timeoutNanos(d time.Duration) uint64 {
	if d == gpu.NoTimeout || d < 0 {
		return vk.MaxUint64
	}
	return uint64(d.Nanoseconds())
}

func extent2D(e vk.Extent2D) gpu.Extent2D {
	e.Deref()
	return gpu.Extent2D{Width: e.Width, Height: e.Height}
}

func vkExtent2D(e gpu.Extent2D) vk.Extent2D {
	return vk.Extent2D{Width: e.Width, Height: e.Height}
}

// terminated returns names with the NUL terminator vulkan-go expects.
func bool32(b bool) vk.Bool32 {
	if b {
		return vk.True
	}
	return vk.False
}

func terminated(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		if len(n) == 0 || n[len(n)-1] != 0 {
			n += "\x00"
		}
		out[i] = n
	}
	return out
}

var colorSubresource = vk.ImageSubresourceRange{
	AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
	LevelCount: 1,
	LayerCount: 1,
}

var (
	_ gpu.PhysicalDevice = (*PhysicalDevice)(nil)
	_ gpu.Device         = (*Device)(nil)
	_ gpu.Queue          = (*Queue)(nil)
	_ gpu.Allocator      = (*Allocator)(nil)
	_ gpu.CommandBuffer  = (*CommandBuffer)(nil)
)
