// Package gpu describes the slice of an explicit graphics API the frame
// engine drives: surface queries, swapchains, synchronization primitives,
// resource allocation and compute command recording. Enum values match
// their Vulkan counterparts so a backend can convert them directly.
package gpu

import "time"

type PhysicalDevice interface {
	SurfaceCapabilities(s Surface) (SurfaceCapabilities, error)
	SurfaceFormats(s Surface) ([]SurfaceFormat, error)
	SurfacePresentModes(s Surface) ([]PresentMode, error)
}

type Device interface {
	WaitIdle() error

	CreateSwapchain(info SwapchainCreateInfo) (Swapchain, error)
	DestroySwapchain(sc Swapchain)
	SwapchainImages(sc Swapchain) ([]Image, error)
	// AcquireNextImage returns ErrSuboptimal together with a valid index
	// when the chain still works but no longer matches the surface.
	AcquireNextImage(sc Swapchain, signal Semaphore, timeout time.Duration) (uint32, error)

	CreateImageView(img Image, format Format) (ImageView, error)
	DestroyImageView(view ImageView)

	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(s Semaphore)
	CreateFence(signaled bool) (Fence, error)
	DestroyFence(f Fence)
	WaitForFence(f Fence, timeout time.Duration) error
	ResetFence(f Fence) error

	UpdateDescriptorSets(writes ...DescriptorWrite)

	NewCommandBuffer() (CommandBuffer, error)
	FreeCommandBuffer(cmd CommandBuffer)
}

type Queue interface {
	Submit(cmd CommandBuffer, wait Semaphore, waitStage PipelineStage, signal Semaphore, fence Fence) error
	Present(sc Swapchain, imageIndex uint32, wait Semaphore) error
	WaitIdle() error
}

// Allocator creates resources together with their backing memory.
type Allocator interface {
	CreateImage(info ImageCreateInfo) (Image, error)
	DestroyImage(img Image)
	CreateBuffer(size uint64, usage BufferUsage) (Buffer, error)
	DestroyBuffer(buf Buffer)
}

type CommandBuffer interface {
	Reset() error
	Begin() error
	End() error

	PipelineBarrier(b ImageBarrier)
	MemoryBarrier(b MemoryBarrier)
	BindPipeline(p Pipeline)
	BindDescriptorSet(layout PipelineLayout, index uint32, set DescriptorSet)
	Dispatch(x, y, z uint32)
	// BlitImage copies src (TransferSrc layout) into dst (TransferDst
	// layout), scaling and converting format as needed.
	BlitImage(src Image, srcExtent Extent2D, dst Image, dstExtent Extent2D)
}
