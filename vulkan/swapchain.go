package vulkan

import (
	"time"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"frame-engine/gpu"
)

var ErrUnknownHandle = errors.New("unknown handle")

type swapchain struct {
	handle vk.Swapchain
	// images are the registered ids of the chain's images, filled on the
	// first SwapchainImages call.
	images []uintptr
}

func vkSurface(s gpu.Surface) vk.Surface {
	return vk.SurfaceFromPointer(uintptr(s))
}

// DestroySurface releases a surface created by the window.
func DestroySurface(instance *Instance, s gpu.Surface) {
	vk.DestroySurface(instance.Handle, vkSurface(s), nil)
}

func (pd *PhysicalDevice) SurfaceCapabilities(s gpu.Surface) (gpu.SurfaceCapabilities, error) {
	var caps vk.SurfaceCapabilities
	res := vk.GetPhysicalDeviceSurfaceCapabilities(pd.Handle, vkSurface(s), &caps)
	if err := check(res, "failed to query surface capabilities"); err != nil {
		return gpu.SurfaceCapabilities{}, err
	}
	caps.Deref()

	return gpu.SurfaceCapabilities{
		MinImageCount:           caps.MinImageCount,
		MaxImageCount:           caps.MaxImageCount,
		CurrentExtent:           extent2D(caps.CurrentExtent),
		MinImageExtent:          extent2D(caps.MinImageExtent),
		MaxImageExtent:          extent2D(caps.MaxImageExtent),
		MaxImageArrayLayers:     caps.MaxImageArrayLayers,
		SupportedTransforms:     gpu.SurfaceTransform(caps.SupportedTransforms),
		CurrentTransform:        gpu.SurfaceTransform(caps.CurrentTransform),
		SupportedCompositeAlpha: gpu.CompositeAlpha(caps.SupportedCompositeAlpha),
		SupportedUsage:          gpu.ImageUsage(caps.SupportedUsageFlags),
	}, nil
}

func (pd *PhysicalDevice) SurfaceFormats(s gpu.Surface) ([]gpu.SurfaceFormat, error) {
	var count uint32
	res := vk.GetPhysicalDeviceSurfaceFormats(pd.Handle, vkSurface(s), &count, nil)
	if err := check(res, "failed to count surface formats"); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	formats := make([]vk.SurfaceFormat, count)
	res = vk.GetPhysicalDeviceSurfaceFormats(pd.Handle, vkSurface(s), &count, formats)
	if err := check(res, "failed to query surface formats"); err != nil {
		return nil, err
	}

	out := make([]gpu.SurfaceFormat, 0, count)
	for _, f := range formats[:count] {
		f.Deref()
		out = append(out, gpu.SurfaceFormat{
			Format:     gpu.Format(f.Format),
			ColorSpace: gpu.ColorSpace(f.ColorSpace),
		})
	}
	return out, nil
}

func (pd *PhysicalDevice) SurfacePresentModes(s gpu.Surface) ([]gpu.PresentMode, error) {
	var count uint32
	res := vk.GetPhysicalDeviceSurfacePresentModes(pd.Handle, vkSurface(s), &count, nil)
	if err := check(res, "failed to count present modes"); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	modes := make([]vk.PresentMode, count)
	res = vk.GetPhysicalDeviceSurfacePresentModes(pd.Handle, vkSurface(s), &count, modes)
	if err := check(res, "failed to query present modes"); err != nil {
		return nil, err
	}

	out := make([]gpu.PresentMode, count)
	for i, m := range modes[:count] {
		out[i] = gpu.PresentMode(m)
	}
	return out, nil
}

func (d *Device) CreateSwapchain(info gpu.SwapchainCreateInfo) (gpu.Swapchain, error) {
	old := vk.NullSwapchain
	if info.OldSwapchain != 0 {
		if sc := d.swapchains.get(uintptr(info.OldSwapchain)); sc != nil {
			old = sc.handle
		}
	}
	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          vkSurface(info.Surface),
		MinImageCount:    info.MinImageCount,
		ImageFormat:      vk.Format(info.Format.Format),
		ImageColorSpace:  vk.ColorSpace(info.Format.ColorSpace),
		ImageExtent:      vkExtent2D(info.Extent),
		ImageArrayLayers: info.ImageArrayLayers,
		ImageUsage:       vk.ImageUsageFlags(info.Usage),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     vk.SurfaceTransformFlagBits(info.Transform),
		CompositeAlpha:   vk.CompositeAlphaFlagBits(info.CompositeAlpha),
		PresentMode:      vk.PresentMode(info.PresentMode),
		Clipped:          bool32(info.Clipped),
		OldSwapchain:     old,
	}

	var handle vk.Swapchain
	if err := check(vk.CreateSwapchain(d.Handle, &createInfo, nil, &handle), "failed to create swapchain"); err != nil {
		return 0, err
	}
	return gpu.Swapchain(d.swapchains.add(&swapchain{handle: handle})), nil
}

func (d *Device) DestroySwapchain(id gpu.Swapchain) {
	sc, ok := d.swapchains.remove(uintptr(id))
	if !ok {
		return
	}
	for _, img := range sc.images {
		d.images.remove(img)
	}
	vk.DestroySwapchain(d.Handle, sc.handle, nil)
}

func (d *Device) SwapchainImages(id gpu.Swapchain) ([]gpu.Image, error) {
	sc := d.swapchains.get(uintptr(id))
	if sc == nil {
		return nil, errors.Wrapf(ErrUnknownHandle, "swapchain %d", id)
	}

	if sc.images == nil {
		var count uint32
		if err := check(vk.GetSwapchainImages(d.Handle, sc.handle, &count, nil), "failed to count swapchain images"); err != nil {
			return nil, err
		}
		images := make([]vk.Image, count)
		if err := check(vk.GetSwapchainImages(d.Handle, sc.handle, &count, images), "failed to get swapchain images"); err != nil {
			return nil, err
		}
		for _, img := range images[:count] {
			sc.images = append(sc.images, d.images.add(img))
		}
	}

	out := make([]gpu.Image, len(sc.images))
	for i, img := range sc.images {
		out[i] = gpu.Image(img)
	}
	return out, nil
}

// AcquireNextImage returns ErrSuboptimal together with a usable index.
func (d *Device) AcquireNextImage(id gpu.Swapchain, signal gpu.Semaphore, timeout time.Duration) (uint32, error) {
	sc := d.swapchains.get(uintptr(id))
	if sc == nil {
		return 0, errors.Wrapf(ErrUnknownHandle, "swapchain %d", id)
	}

	var index uint32
	res := vk.AcquireNextImage(d.Handle, sc.handle, timeoutNanos(timeout),
		d.semaphores.get(uintptr(signal)), vk.NullFence, &index)
	if res == vk.Suboptimal {
		return index, gpu.ErrSuboptimal
	}
	return index, check(res, "failed to acquire swapchain image")
}

func (d *Device) CreateImageView(img gpu.Image, format gpu.Format) (gpu.ImageView, error) {
	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    d.images.get(uintptr(img)),
		ViewType: vk.ImageViewType2d,
		Format:   vk.Format(format),
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: colorSubresource,
	}

	var view vk.ImageView
	if err := check(vk.CreateImageView(d.Handle, &viewInfo, nil, &view), "failed to create image view"); err != nil {
		return 0, err
	}
	return gpu.ImageView(d.views.add(view)), nil
}

func (d *Device) DestroyImageView(id gpu.ImageView) {
	if view, ok := d.views.remove(uintptr(id)); ok {
		vk.DestroyImageView(d.Handle, view, nil)
	}
}
