package vulkan

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"frame-engine/gpu"
	"frame-engine/logging"
)

var (
	ErrNoDevice       = errors.New("failed to find GPUs with Vulkan support")
	ErrNoSuitableGPU  = errors.New("failed to find a suitable GPU")
	ErrNoMemoryType   = errors.New("failed to find suitable memory type")
	deviceExtensions  = []string{vk.KhrSwapchainExtensionName + "\x00"}
	requiredQueueBits = vk.QueueFlags(vk.QueueGraphicsBit | vk.QueueComputeBit)
)

type PhysicalDevice struct {
	Handle      vk.PhysicalDevice
	Properties  vk.PhysicalDeviceProperties
	MemoryProps vk.PhysicalDeviceMemoryProperties
	// QueueFamily supports compute, graphics and presentation to the
	// surface the device was picked for.
	QueueFamily uint32
}

// PickPhysicalDevice returns the best device able to run compute work and
// present to surface.
func PickPhysicalDevice(instance *Instance, surface gpu.Surface) (*PhysicalDevice, error) {
	var count uint32
	if err := check(vk.EnumeratePhysicalDevices(instance.Handle, &count, nil), "failed to count physical devices"); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrNoDevice
	}
	devices := make([]vk.PhysicalDevice, count)
	if err := check(vk.EnumeratePhysicalDevices(instance.Handle, &count, devices), "failed to enumerate physical devices"); err != nil {
		return nil, err
	}

	var best *PhysicalDevice
	var bestScore uint32
	for _, device := range devices {
		pd, score := rateDevice(device, surface)
		if score > bestScore {
			best, bestScore = pd, score
		}
	}
	if best == nil {
		return nil, ErrNoSuitableGPU
	}

	vk.GetPhysicalDeviceMemoryProperties(best.Handle, &best.MemoryProps)
	best.MemoryProps.Deref()
	for i := range best.MemoryProps.MemoryTypes {
		best.MemoryProps.MemoryTypes[i].Deref()
	}

	logging.Logger().Info("selected GPU",
		"name", best.Name(),
		"type", best.DeviceType(),
		"queueFamily", best.QueueFamily,
	)
	return best, nil
}

func rateDevice(device vk.PhysicalDevice, surface gpu.Surface) (*PhysicalDevice, uint32) {
	pd := &PhysicalDevice{Handle: device}
	vk.GetPhysicalDeviceProperties(device, &pd.Properties)
	pd.Properties.Deref()
	pd.Properties.Limits.Deref()

	log := logging.Logger().With("device", pd.Name())
	family, ok := findQueueFamily(device, surface)
	if !ok {
		log.Debug("device skipped", "reason", "no compute queue with present support")
		return nil, 0
	}
	pd.QueueFamily = family

	if !checkDeviceExtensionSupport(device) {
		log.Debug("device skipped", "reason", "swapchain extension missing")
		return nil, 0
	}
	formats, err := pd.SurfaceFormats(surface)
	if err != nil || len(formats) == 0 {
		log.Debug("device skipped", "reason", "no surface formats")
		return nil, 0
	}

	score := uint32(1)
	// Discrete GPUs have a significant advantage
	if pd.Properties.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu {
		score += 1000
	}
	score += pd.Properties.Limits.MaxImageDimension2D
	log.Debug("device rated", "score", score)
	return pd, score
}

func findQueueFamily(device vk.PhysicalDevice, surface gpu.Surface) (uint32, bool) {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &count, nil)
	families := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &count, families)

	for i, family := range families {
		family.Deref()
		if family.QueueFlags&requiredQueueBits != requiredQueueBits {
			continue
		}
		var present vk.Bool32
		res := vk.GetPhysicalDeviceSurfaceSupport(device, uint32(i), vkSurface(surface), &present)
		if res == vk.Success && present.B() {
			return uint32(i), true
		}
	}
	return 0, false
}

func checkDeviceExtensionSupport(device vk.PhysicalDevice) bool {
	var count uint32
	if vk.EnumerateDeviceExtensionProperties(device, "", &count, nil) != vk.Success {
		return false
	}
	available := make([]vk.ExtensionProperties, count)
	if vk.EnumerateDeviceExtensionProperties(device, "", &count, available) != vk.Success {
		return false
	}

	required := make(map[string]bool, len(deviceExtensions))
	for _, name := range deviceExtensions {
		required[name] = true
	}
	for _, ext := range available {
		ext.Deref()
		delete(required, vk.ToString(ext.ExtensionName[:])+"\x00")
	}
	return len(required) == 0
}

func (pd *PhysicalDevice) Name() string {
	return vk.ToString(pd.Properties.DeviceName[:])
}

func (pd *PhysicalDevice) DeviceType() string {
	switch pd.Properties.DeviceType {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return "Integrated GPU"
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return "Discrete GPU"
	case vk.PhysicalDeviceTypeVirtualGpu:
		return "Virtual GPU"
	case vk.PhysicalDeviceTypeCpu:
		return "CPU"
	default:
		return "Unknown"
	}
}

func (pd *PhysicalDevice) FindMemoryType(typeFilter uint32, properties vk.MemoryPropertyFlags) (uint32, error) {
	for i := uint32(0); i < pd.MemoryProps.MemoryTypeCount; i++ {
		flags := pd.MemoryProps.MemoryTypes[i].PropertyFlags
		if typeFilter&(1<<i) != 0 && flags&properties == properties {
			return i, nil
		}
	}
	return 0, errors.Wrapf(ErrNoMemoryType, "filter %#x properties %#x", typeFilter, uint32(properties))
}

// Device is the logical device with its single compute and present queue.
type Device struct {
	Physical    *PhysicalDevice
	Handle      vk.Device
	Queue       *Queue
	CommandPool vk.CommandPool

	swapchains handles[*swapchain]
	images     handles[vk.Image]
	views      handles[vk.ImageView]
	semaphores handles[vk.Semaphore]
	fences     handles[vk.Fence]
	buffers    handles[vk.Buffer]
	sets       handles[vk.DescriptorSet]
	layouts    handles[vk.PipelineLayout]
	pipelines  handles[vk.Pipeline]
}

func CreateLogicalDevice(pd *PhysicalDevice, enableValidation bool) (*Device, error) {
	queueInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: pd.QueueFamily,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}

	createInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{{}},
		EnabledExtensionCount:   uint32(len(deviceExtensions)),
		PpEnabledExtensionNames: deviceExtensions,
	}
	if enableValidation {
		createInfo.EnabledLayerCount = 1
		createInfo.PpEnabledLayerNames = []string{validationLayer}
	}

	d := &Device{Physical: pd}
	if err := check(vk.CreateDevice(pd.Handle, &createInfo, nil, &d.Handle), "failed to create logical device"); err != nil {
		return nil, err
	}

	// Get queue
	var queue vk.Queue
	vk.GetDeviceQueue(d.Handle, pd.QueueFamily, 0, &queue)
	d.Queue = &Queue{device: d, Handle: queue}

	// Create command pool
	poolInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: pd.QueueFamily,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	if err := check(vk.CreateCommandPool(d.Handle, &poolInfo, nil, &d.CommandPool), "failed to create command pool"); err != nil {
		vk.DestroyDevice(d.Handle, nil)
		return nil, err
	}

	return d, nil
}

// Destroy releases the command pool and the device. Objects still
// registered at this point were leaked by their owner.
func (d *Device) Destroy() {
	if n := d.live(); n > 0 {
		logging.Logger().Warn("destroying device with live objects", "count", n)
	}
	vk.DestroyCommandPool(d.Handle, d.CommandPool, nil)
	vk.DestroyDevice(d.Handle, nil)
}

func (d *Device) live() int {
	return d.swapchains.len() + d.views.len() + d.semaphores.len() +
		d.fences.len() + d.buffers.len() + d.sets.len() + d.layouts.len() + d.pipelines.len()
}

func (d *Device) WaitIdle() error {
	return check(vk.DeviceWaitIdle(d.Handle), "failed to wait for device idle")
}
