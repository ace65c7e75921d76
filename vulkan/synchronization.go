package vulkan

import (
	"time"

	vk "github.com/vulkan-go/vulkan"

	"frame-engine/gpu"
)

func (d *Device) CreateSemaphore() (gpu.Semaphore, error) {
	semaphoreInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}

	var semaphore vk.Semaphore
	if err := check(vk.CreateSemaphore(d.Handle, &semaphoreInfo, nil, &semaphore), "failed to create semaphore"); err != nil {
		return 0, err
	}
	return gpu.Semaphore(d.semaphores.add(semaphore)), nil
}

func (d *Device) DestroySemaphore(id gpu.Semaphore) {
	if s, ok := d.semaphores.remove(uintptr(id)); ok {
		vk.DestroySemaphore(d.Handle, s, nil)
	}
}

func (d *Device) CreateFence(signaled bool) (gpu.Fence, error) {
	var flags vk.FenceCreateFlags
	if signaled {
		flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	fenceInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
		Flags: flags,
	}

	var fence vk.Fence
	if err := check(vk.CreateFence(d.Handle, &fenceInfo, nil, &fence), "failed to create fence"); err != nil {
		return 0, err
	}
	return gpu.Fence(d.fences.add(fence)), nil
}

func (d *Device) DestroyFence(id gpu.Fence) {
	if f, ok := d.fences.remove(uintptr(id)); ok {
		vk.DestroyFence(d.Handle, f, nil)
	}
}

func (d *Device) WaitForFence(id gpu.Fence, timeout time.Duration) error {
	fences := []vk.Fence{d.fences.get(uintptr(id))}
	return check(vk.WaitForFences(d.Handle, 1, fences, vk.True, timeoutNanos(timeout)), "failed to wait for fence")
}

func (d *Device) ResetFence(id gpu.Fence) error {
	fences := []vk.Fence{d.fences.get(uintptr(id))}
	return check(vk.ResetFences(d.Handle, 1, fences), "failed to reset fence")
}

// Queue submits and presents on the device's single queue.
type Queue struct {
	device *Device
	Handle vk.Queue
}

func (q *Queue) Submit(cmd gpu.CommandBuffer, wait gpu.Semaphore, waitStage gpu.PipelineStage, signal gpu.Semaphore, fence gpu.Fence) error {
	cb, ok := cmd.(*CommandBuffer)
	if !ok {
		return ErrForeignCommandBuffer
	}
	d := q.device

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cb.Handle},
	}
	if wait != 0 {
		submitInfo.WaitSemaphoreCount = 1
		submitInfo.PWaitSemaphores = []vk.Semaphore{d.semaphores.get(uintptr(wait))}
		submitInfo.PWaitDstStageMask = []vk.PipelineStageFlags{vk.PipelineStageFlags(waitStage)}
	}
	if signal != 0 {
		submitInfo.SignalSemaphoreCount = 1
		submitInfo.PSignalSemaphores = []vk.Semaphore{d.semaphores.get(uintptr(signal))}
	}
	fenceHandle := vk.NullFence
	if fence != 0 {
		fenceHandle = d.fences.get(uintptr(fence))
	}

	return check(vk.QueueSubmit(q.Handle, 1, []vk.SubmitInfo{submitInfo}, fenceHandle), "failed to submit command buffer")
}

func (q *Queue) Present(id gpu.Swapchain, imageIndex uint32, wait gpu.Semaphore) error {
	d := q.device
	sc := d.swapchains.get(uintptr(id))
	if sc == nil {
		return ErrUnknownHandle
	}

	presentInfo := vk.PresentInfo{
		SType:          vk.StructureTypePresentInfo,
		SwapchainCount: 1,
		PSwapchains:    []vk.Swapchain{sc.handle},
		PImageIndices:  []uint32{imageIndex},
	}
	if wait != 0 {
		presentInfo.WaitSemaphoreCount = 1
		presentInfo.PWaitSemaphores = []vk.Semaphore{d.semaphores.get(uintptr(wait))}
	}

	return check(vk.QueuePresent(q.Handle, &presentInfo), "failed to present swapchain image")
}

func (q *Queue) WaitIdle() error {
	return check(vk.QueueWaitIdle(q.Handle), "failed to wait for queue idle")
}
