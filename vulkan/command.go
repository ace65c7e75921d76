package vulkan

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"frame-engine/gpu"
)

var ErrForeignCommandBuffer = errors.New("command buffer was not allocated by this device")

// CommandBuffer records compute work into a primary command buffer.
type CommandBuffer struct {
	device *Device
	Handle vk.CommandBuffer
}

func (d *Device) NewCommandBuffer() (gpu.CommandBuffer, error) {
	return d.allocateCommandBuffer()
}

func (d *Device) allocateCommandBuffer() (*CommandBuffer, error) {
	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.CommandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}

	handles := make([]vk.CommandBuffer, 1)
	if err := check(vk.AllocateCommandBuffers(d.Handle, &allocInfo, handles), "failed to allocate command buffer"); err != nil {
		return nil, err
	}
	return &CommandBuffer{device: d, Handle: handles[0]}, nil
}

func (d *Device) FreeCommandBuffer(cmd gpu.CommandBuffer) {
	if cb, ok := cmd.(*CommandBuffer); ok && cb.device == d {
		vk.FreeCommandBuffers(d.Handle, d.CommandPool, 1, []vk.CommandBuffer{cb.Handle})
	}
}

// ExecuteSingleTimeCommands records fn into a temporary command buffer,
// submits it and waits for the queue to finish.
func (d *Device) ExecuteSingleTimeCommands(fn func(cmd *CommandBuffer)) error {
	cmd, err := d.allocateCommandBuffer()
	if err != nil {
		return err
	}
	defer d.FreeCommandBuffer(cmd)

	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := check(vk.BeginCommandBuffer(cmd.Handle, &beginInfo), "failed to begin recording command buffer"); err != nil {
		return err
	}
	fn(cmd)
	if err := cmd.End(); err != nil {
		return err
	}

	if err := d.Queue.Submit(cmd, 0, 0, 0, 0); err != nil {
		return err
	}
	return d.Queue.WaitIdle()
}

func (cb *CommandBuffer) Reset() error {
	return check(vk.ResetCommandBuffer(cb.Handle, 0), "failed to reset command buffer")
}

func (cb *CommandBuffer) Begin() error {
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	return check(vk.BeginCommandBuffer(cb.Handle, &beginInfo), "failed to begin recording command buffer")
}

func (cb *CommandBuffer) End() error {
	return check(vk.EndCommandBuffer(cb.Handle), "failed to end recording command buffer")
}

func (cb *CommandBuffer) PipelineBarrier(b gpu.ImageBarrier) {
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       vk.AccessFlags(b.SrcAccess),
		DstAccessMask:       vk.AccessFlags(b.DstAccess),
		OldLayout:           vk.ImageLayout(b.OldLayout),
		NewLayout:           vk.ImageLayout(b.NewLayout),
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               cb.device.images.get(uintptr(b.Image)),
		SubresourceRange:    colorSubresource,
	}
	vk.CmdPipelineBarrier(cb.Handle,
		vk.PipelineStageFlags(b.SrcStage), vk.PipelineStageFlags(b.DstStage),
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

func (cb *CommandBuffer) MemoryBarrier(b gpu.MemoryBarrier) {
	barrier := vk.MemoryBarrier{
		SType:         vk.StructureTypeMemoryBarrier,
		SrcAccessMask: vk.AccessFlags(b.SrcAccess),
		DstAccessMask: vk.AccessFlags(b.DstAccess),
	}
	vk.CmdPipelineBarrier(cb.Handle,
		vk.PipelineStageFlags(b.SrcStage), vk.PipelineStageFlags(b.DstStage),
		0, 1, []vk.MemoryBarrier{barrier}, 0, nil, 0, nil)
}

func (cb *CommandBuffer) BindPipeline(p gpu.Pipeline) {
	vk.CmdBindPipeline(cb.Handle, vk.PipelineBindPointCompute, cb.device.pipelines.get(uintptr(p)))
}

func (cb *CommandBuffer) BindDescriptorSet(layout gpu.PipelineLayout, index uint32, set gpu.DescriptorSet) {
	sets := []vk.DescriptorSet{cb.device.sets.get(uintptr(set))}
	vk.CmdBindDescriptorSets(cb.Handle, vk.PipelineBindPointCompute,
		cb.device.layouts.get(uintptr(layout)), index, 1, sets, 0, nil)
}

func (cb *CommandBuffer) Dispatch(x, y, z uint32) {
	vk.CmdDispatch(cb.Handle, x, y, z)
}

// BlitImage copies src in TransferSrc layout onto dst in TransferDst
// layout, scaling when the extents differ.
func (cb *CommandBuffer) BlitImage(src gpu.Image, srcExtent gpu.Extent2D, dst gpu.Image, dstExtent gpu.Extent2D) {
	layers := vk.ImageSubresourceLayers{
		AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
		LayerCount: 1,
	}
	region := vk.ImageBlit{
		SrcSubresource: layers,
		SrcOffsets: [2]vk.Offset3D{
			{},
			{X: int32(srcExtent.Width), Y: int32(srcExtent.Height), Z: 1},
		},
		DstSubresource: layers,
		DstOffsets: [2]vk.Offset3D{
			{},
			{X: int32(dstExtent.Width), Y: int32(dstExtent.Height), Z: 1},
		},
	}
	vk.CmdBlitImage(cb.Handle,
		cb.device.images.get(uintptr(src)), vk.ImageLayoutTransferSrcOptimal,
		cb.device.images.get(uintptr(dst)), vk.ImageLayoutTransferDstOptimal,
		1, []vk.ImageBlit{region}, vk.FilterLinear)
}

func (cb *CommandBuffer) copyBuffer(src, dst vk.Buffer, size uint64) {
	vk.CmdCopyBuffer(cb.Handle, src, dst, 1, []vk.BufferCopy{{Size: vk.DeviceSize(size)}})
}
