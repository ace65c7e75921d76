package swapchain

import (
	"github.com/pkg/errors"

	"frame-engine/gpu"
	"frame-engine/logging"
)

var ErrNoSurfaceFormats = errors.New("surface reports no formats")

// Support is a snapshot of what a physical device offers for a surface.
// It is re-queried on every build since it changes with the window.
type Support struct {
	Capabilities gpu.SurfaceCapabilities
	Formats      []gpu.SurfaceFormat
	PresentModes []gpu.PresentMode
}

func QuerySupport(pd gpu.PhysicalDevice, surface gpu.Surface) (Support, error) {
	caps, err := pd.SurfaceCapabilities(surface)
	if err != nil {
		return Support{}, errors.Wrap(err, "failed to query surface capabilities")
	}

	formats, err := pd.SurfaceFormats(surface)
	if err != nil {
		return Support{}, errors.Wrap(err, "failed to query surface formats")
	}
	if len(formats) == 0 {
		return Support{}, ErrNoSurfaceFormats
	}

	modes, err := pd.SurfacePresentModes(surface)
	if err != nil {
		return Support{}, errors.Wrap(err, "failed to query surface present modes")
	}

	log := logging.Logger()
	log.Debug("surface capabilities",
		"minImageCount", caps.MinImageCount,
		"maxImageCount", caps.MaxImageCount,
		"currentExtent", caps.CurrentExtent,
		"minImageExtent", caps.MinImageExtent,
		"maxImageExtent", caps.MaxImageExtent,
		"maxImageArrayLayers", caps.MaxImageArrayLayers,
		"currentTransform", caps.CurrentTransform,
	)
	for _, f := range formats {
		log.Debug("supported surface format", "format", f)
	}
	for _, m := range modes {
		log.Debug("supported present mode", "mode", m)
	}

	return Support{
		Capabilities: caps,
		Formats:      formats,
		PresentModes: modes,
	}, nil
}

// ChooseFormat prefers B8G8R8A8Unorm with a non-linear sRGB color space and
// otherwise takes the device's first format.
func ChooseFormat(formats []gpu.SurfaceFormat) gpu.SurfaceFormat {
	for _, f := range formats {
		if f.Format == gpu.FormatB8G8R8A8Unorm && f.ColorSpace == gpu.ColorSpaceSRGBNonlinear {
			return f
		}
	}
	if len(formats) == 0 {
		return gpu.SurfaceFormat{}
	}
	return formats[0]
}

// ChoosePresentMode prefers Immediate and falls back to FIFO, which every
// device supports.
func ChoosePresentMode(modes []gpu.PresentMode) gpu.PresentMode {
	for _, m := range modes {
		if m == gpu.PresentModeImmediate {
			return m
		}
	}
	return gpu.PresentModeFIFO
}

// ChooseExtent returns the surface's current extent, or the requested size
// clamped to the supported range when the surface leaves it undefined.
func ChooseExtent(width, height uint32, caps gpu.SurfaceCapabilities) gpu.Extent2D {
	if caps.CurrentExtent.Width != gpu.UndefinedExtent {
		return caps.CurrentExtent
	}
	return gpu.Extent2D{
		Width:  clamp(width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: clamp(height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

// ImageCount asks for one image more than the minimum. A zero maximum
// means unbounded.
func ImageCount(caps gpu.SurfaceCapabilities) uint32 {
	count := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}
	return count
}

func clamp(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
