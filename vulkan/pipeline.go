package vulkan

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"frame-engine/deletion"
	"frame-engine/frame"
	"frame-engine/gpu"
	"frame-engine/logging"
)

const shaderEntryPoint = "main\x00"

// ComputePipeline is a compute pipeline together with its layout. Both are
// registered with the device so command buffers can bind them by handle.
type ComputePipeline struct {
	Handle vk.Pipeline
	Layout vk.PipelineLayout

	ID       gpu.Pipeline
	LayoutID gpu.PipelineLayout
}

func (d *Device) CreateShaderModule(code []uint32) (vk.ShaderModule, error) {
	var module vk.ShaderModule
	if len(code) == 0 {
		return module, errors.New("empty shader code")
	}
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code) * 4),
		PCode:    code,
	}

	err := check(vk.CreateShaderModule(d.Handle, &createInfo, nil, &module), "failed to create shader module")
	return module, err
}

func (d *Device) CreateComputePipeline(code []uint32, setLayouts []vk.DescriptorSetLayout) (*ComputePipeline, error) {
	layoutInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(setLayouts)),
		PSetLayouts:    setLayouts,
	}

	p := &ComputePipeline{}
	if err := check(vk.CreatePipelineLayout(d.Handle, &layoutInfo, nil, &p.Layout), "failed to create pipeline layout"); err != nil {
		return nil, err
	}

	module, err := d.CreateShaderModule(code)
	if err != nil {
		vk.DestroyPipelineLayout(d.Handle, p.Layout, nil)
		return nil, err
	}
	defer vk.DestroyShaderModule(d.Handle, module, nil)

	pipelineInfo := vk.ComputePipelineCreateInfo{
		SType: vk.StructureTypeComputePipelineCreateInfo,
		Stage: vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageComputeBit,
			Module: module,
			PName:  shaderEntryPoint,
		},
		Layout: p.Layout,
	}

	pipelines := make([]vk.Pipeline, 1)
	res := vk.CreateComputePipelines(d.Handle, vk.PipelineCache(vk.NullHandle), 1, []vk.ComputePipelineCreateInfo{pipelineInfo}, nil, pipelines)
	if err := check(res, "failed to create compute pipeline"); err != nil {
		vk.DestroyPipelineLayout(d.Handle, p.Layout, nil)
		return nil, err
	}
	p.Handle = pipelines[0]

	p.ID = gpu.Pipeline(d.pipelines.add(p.Handle))
	p.LayoutID = gpu.PipelineLayout(d.layouts.add(p.Layout))
	return p, nil
}

func (p *ComputePipeline) Destroy(d *Device) {
	d.pipelines.remove(uintptr(p.ID))
	d.layouts.remove(uintptr(p.LayoutID))
	vk.DestroyPipeline(d.Handle, p.Handle, nil)
	vk.DestroyPipelineLayout(d.Handle, p.Layout, nil)
}

// ComputeBindings owns the descriptor set layouts, the compute pipelines
// and one group of descriptor sets per frame slot.
type ComputeBindings struct {
	device *Device

	setLayouts [frame.ScopeCount]vk.DescriptorSetLayout
	pipelines  [frame.PipelineCount]*ComputePipeline
	slots      []frame.Bindings

	deletionQueue deletion.Queue[*Device]
}

// NewComputeBindings builds every compute pipeline from its SPIR-V code and
// allocates sets for the given number of frame slots.
func NewComputeBindings(d *Device, shaders [frame.PipelineCount][]uint32, slots int) (*ComputeBindings, error) {
	if slots < 1 {
		return nil, errors.Errorf("invalid frame slot count %d", slots)
	}
	b := &ComputeBindings{device: d}
	if err := b.create(shaders, slots); err != nil {
		b.Destroy()
		return nil, err
	}
	logging.Logger().Debug("compute bindings ready",
		"pipelines", len(b.pipelines), "slots", slots)
	return b, nil
}

func (b *ComputeBindings) create(shaders [frame.PipelineCount][]uint32, slots int) error {
	d := b.device

	scopeBindings := [frame.ScopeCount][]vk.DescriptorSetLayoutBinding{
		frame.ScopeFrame: {
			StorageImageBinding(frame.ColorBinding),
			StorageBufferBinding(frame.DepthBinding),
		},
		frame.ScopeDrawCall: {
			StorageBufferBinding(frame.GeometryBinding),
		},
	}
	for s, bindings := range scopeBindings {
		layout, err := d.CreateDescriptorSetLayout(bindings)
		if err != nil {
			return errors.Wrapf(err, "%s scope", frame.Scope(s))
		}
		b.setLayouts[s] = layout
		b.deletionQueue.Push(func(d *Device) {
			vk.DestroyDescriptorSetLayout(d.Handle, layout, nil)
		})
	}

	for k, code := range shaders {
		kind := frame.PipelineKind(k)
		layouts := []vk.DescriptorSetLayout{b.setLayouts[frame.ScopeFrame]}
		if kind != frame.PipelineClear {
			layouts = append(layouts, b.setLayouts[frame.ScopeDrawCall])
		}
		p, err := d.CreateComputePipeline(code, layouts)
		if err != nil {
			return errors.Wrapf(err, "%s pipeline", kind)
		}
		b.pipelines[k] = p
		b.deletionQueue.Push(p.Destroy)
	}

	poolSizes := []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeStorageImage, DescriptorCount: uint32(slots)},
		{Type: vk.DescriptorTypeStorageBuffer, DescriptorCount: uint32(2 * slots)},
	}
	pool, err := d.CreateDescriptorPool(poolSizes, uint32(slots)*uint32(frame.ScopeCount))
	if err != nil {
		return err
	}
	b.deletionQueue.Push(pool.Destroy)

	b.slots = make([]frame.Bindings, slots)
	for i := range b.slots {
		sets, err := pool.AllocateDescriptorSets(d, b.setLayouts[:])
		if err != nil {
			return errors.Wrapf(err, "frame slot %d", i)
		}
		copy(b.slots[i].Sets[:], sets)
		for k, p := range b.pipelines {
			b.slots[i].Pipelines[k] = p.ID
			b.slots[i].Layouts[k] = p.LayoutID
		}
	}
	return nil
}

// FrameBindings returns the sets and pipelines of one slot. The slot must be
// below the count given to NewComputeBindings.
func (b *ComputeBindings) FrameBindings(slot int) frame.Bindings {
	return b.slots[slot]
}

func (b *ComputeBindings) Slots() int {
	return len(b.slots)
}

// Destroy releases pipelines, layouts and sets. The device must be idle.
func (b *ComputeBindings) Destroy() {
	b.deletionQueue.Drain(b.device)
	b.slots = nil
}
