package vulkan

import (
	"unsafe"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"frame-engine/gpu"
)

// Upload copies data into the start of dst through a host-visible staging
// buffer. dst must have been created with gpu.BufferUsageTransferDst.
func (a *Allocator) Upload(dst gpu.Buffer, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	d := a.device
	target := d.buffers.get(uintptr(dst))
	size := uint64(len(data))

	// Create staging buffer
	staging, mem, err := a.createBuffer(size, gpu.BufferUsageTransferSrc,
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		return errors.Wrap(err, "failed to create staging buffer")
	}
	defer func() {
		vk.DestroyBuffer(d.Handle, staging, nil)
		vk.FreeMemory(d.Handle, mem, nil)
	}()

	// Copy data to staging buffer
	var mapped unsafe.Pointer
	if err := check(vk.MapMemory(d.Handle, mem, 0, vk.DeviceSize(size), 0, &mapped), "failed to map staging memory"); err != nil {
		return err
	}
	vk.Memcopy(mapped, data)
	vk.UnmapMemory(d.Handle, mem)

	err = d.ExecuteSingleTimeCommands(func(cmd *CommandBuffer) {
		cmd.copyBuffer(staging, target, size)
	})
	return errors.Wrap(err, "failed to upload buffer data")
}
