package vulkan

import (
	"sync"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"frame-engine/gpu"
)

// Allocator backs every image and buffer with its own dedicated memory
// allocation.
type Allocator struct {
	device *Device

	mu     sync.Mutex
	memory map[uintptr]vk.DeviceMemory
}

func NewAllocator(d *Device) *Allocator {
	return &Allocator{device: d, memory: make(map[uintptr]vk.DeviceMemory)}
}

func (a *Allocator) CreateImage(info gpu.ImageCreateInfo) (gpu.Image, error) {
	d := a.device
	imageInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    vk.Format(info.Format),
		Extent: vk.Extent3D{
			Width:  info.Extent.Width,
			Height: info.Extent.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(info.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}

	var image vk.Image
	if err := check(vk.CreateImage(d.Handle, &imageInfo, nil, &image), "failed to create image"); err != nil {
		return 0, err
	}

	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.Handle, image, &reqs)
	reqs.Deref()
	mem, err := a.allocate(reqs, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		vk.DestroyImage(d.Handle, image, nil)
		return 0, errors.Wrap(err, "failed to allocate image memory")
	}
	if err := check(vk.BindImageMemory(d.Handle, image, mem, 0), "failed to bind image memory"); err != nil {
		vk.FreeMemory(d.Handle, mem, nil)
		vk.DestroyImage(d.Handle, image, nil)
		return 0, err
	}

	id := d.images.add(image)
	a.track(id, mem)
	return gpu.Image(id), nil
}

func (a *Allocator) DestroyImage(id gpu.Image) {
	d := a.device
	if image, ok := d.images.remove(uintptr(id)); ok {
		vk.DestroyImage(d.Handle, image, nil)
	}
	a.free(uintptr(id))
}

// CreateBuffer creates a device-local buffer.
func (a *Allocator) CreateBuffer(size uint64, usage gpu.BufferUsage) (gpu.Buffer, error) {
	buf, mem, err := a.createBuffer(size, usage, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		return 0, err
	}
	id := a.device.buffers.add(buf)
	a.track(id, mem)
	return gpu.Buffer(id), nil
}

func (a *Allocator) DestroyBuffer(id gpu.Buffer) {
	d := a.device
	if buf, ok := d.buffers.remove(uintptr(id)); ok {
		vk.DestroyBuffer(d.Handle, buf, nil)
	}
	a.free(uintptr(id))
}

func (a *Allocator) createBuffer(size uint64, usage gpu.BufferUsage, properties vk.MemoryPropertyFlags) (buf vk.Buffer, mem vk.DeviceMemory, err error) {
	d := a.device
	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       vk.BufferUsageFlags(usage),
		SharingMode: vk.SharingModeExclusive,
	}

	if err = check(vk.CreateBuffer(d.Handle, &bufferInfo, nil, &buf), "failed to create buffer"); err != nil {
		return buf, mem, err
	}

	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.Handle, buf, &reqs)
	reqs.Deref()
	if mem, err = a.allocate(reqs, properties); err != nil {
		vk.DestroyBuffer(d.Handle, buf, nil)
		return buf, mem, errors.Wrap(err, "failed to allocate buffer memory")
	}
	if err = check(vk.BindBufferMemory(d.Handle, buf, mem, 0), "failed to bind buffer memory"); err != nil {
		vk.FreeMemory(d.Handle, mem, nil)
		vk.DestroyBuffer(d.Handle, buf, nil)
	}
	return buf, mem, err
}

func (a *Allocator) allocate(reqs vk.MemoryRequirements, properties vk.MemoryPropertyFlags) (mem vk.DeviceMemory, err error) {
	memType, err := a.device.Physical.FindMemoryType(reqs.MemoryTypeBits, properties)
	if err != nil {
		return mem, err
	}
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: memType,
	}

	err = check(vk.AllocateMemory(a.device.Handle, &allocInfo, nil, &mem), "failed to allocate memory")
	return mem, err
}

func (a *Allocator) track(id uintptr, mem vk.DeviceMemory) {
	a.mu.Lock()
	a.memory[id] = mem
	a.mu.Unlock()
}

func (a *Allocator) free(id uintptr) {
	a.mu.Lock()
	mem, ok := a.memory[id]
	delete(a.memory, id)
	a.mu.Unlock()

	if ok {
		vk.FreeMemory(a.device.Handle, mem, nil)
	}
}
