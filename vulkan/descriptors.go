package vulkan

import (
	vk "github.com/vulkan-go/vulkan"

	"frame-engine/gpu"
)

type DescriptorPool struct {
	Handle vk.DescriptorPool
	sets   []uintptr
}

func (d *Device) CreateDescriptorSetLayout(bindings []vk.DescriptorSetLayoutBinding) (vk.DescriptorSetLayout, error) {
	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}

	var layout vk.DescriptorSetLayout
	err := check(vk.CreateDescriptorSetLayout(d.Handle, &layoutInfo, nil, &layout), "failed to create descriptor set layout")
	return layout, err
}

func (d *Device) CreateDescriptorPool(poolSizes []vk.DescriptorPoolSize, maxSets uint32) (*DescriptorPool, error) {
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}

	pool := &DescriptorPool{}
	if err := check(vk.CreateDescriptorPool(d.Handle, &poolInfo, nil, &pool.Handle), "failed to create descriptor pool"); err != nil {
		return nil, err
	}
	return pool, nil
}

// Destroy frees the pool together with every set allocated from it.
func (p *DescriptorPool) Destroy(d *Device) {
	for _, id := range p.sets {
		d.sets.remove(id)
	}
	p.sets = nil
	vk.DestroyDescriptorPool(d.Handle, p.Handle, nil)
}

func (p *DescriptorPool) AllocateDescriptorSets(d *Device, layouts []vk.DescriptorSetLayout) ([]gpu.DescriptorSet, error) {
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     p.Handle,
		DescriptorSetCount: uint32(len(layouts)),
		PSetLayouts:        layouts,
	}

	handles := make([]vk.DescriptorSet, len(layouts))
	if err := check(vk.AllocateDescriptorSets(d.Handle, &allocInfo, &handles[0]), "failed to allocate descriptor sets"); err != nil {
		return nil, err
	}

	sets := make([]gpu.DescriptorSet, len(handles))
	for i, h := range handles {
		id := d.sets.add(h)
		p.sets = append(p.sets, id)
		sets[i] = gpu.DescriptorSet(id)
	}
	return sets, nil
}

func (d *Device) UpdateDescriptorSets(writes ...gpu.DescriptorWrite) {
	if len(writes) == 0 {
		return
	}

	out := make([]vk.WriteDescriptorSet, len(writes))
	for i, w := range writes {
		out[i] = vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          d.sets.get(uintptr(w.Set)),
			DstBinding:      w.Binding,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorType(w.Type),
		}

		switch w.Type {
		case gpu.DescriptorStorageImage:
			out[i].PImageInfo = []vk.DescriptorImageInfo{{
				ImageView:   d.views.get(uintptr(w.ImageView)),
				ImageLayout: vk.ImageLayout(w.ImageLayout),
			}}
		default:
			size := vk.DeviceSize(vk.WholeSize)
			if w.Range != 0 {
				size = vk.DeviceSize(w.Range)
			}
			out[i].PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: d.buffers.get(uintptr(w.Buffer)),
				Offset: vk.DeviceSize(w.Offset),
				Range:  size,
			}}
		}
	}

	vk.UpdateDescriptorSets(d.Handle, uint32(len(out)), out, 0, nil)
}

func StorageImageBinding(binding uint32) vk.DescriptorSetLayoutBinding {
	return vk.DescriptorSetLayoutBinding{
		Binding:         binding,
		DescriptorType:  vk.DescriptorTypeStorageImage,
		DescriptorCount: 1,
		StageFlags:      vk.ShaderStageFlags(vk.ShaderStageComputeBit),
	}
}

func StorageBufferBinding(binding uint32) vk.DescriptorSetLayoutBinding {
	return vk.DescriptorSetLayoutBinding{
		Binding:         binding,
		DescriptorType:  vk.DescriptorTypeStorageBuffer,
		DescriptorCount: 1,
		StageFlags:      vk.ShaderStageFlags(vk.ShaderStageComputeBit),
	}
}
