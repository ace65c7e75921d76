package swapchain

import (
	"testing"

	"github.com/pkg/errors"

	"frame-engine/gpu"
	"frame-engine/internal/gputest"
)

func TestChooseFormat(t *testing.T) {
	preferred := gpu.SurfaceFormat{Format: gpu.FormatB8G8R8A8Unorm, ColorSpace: gpu.ColorSpaceSRGBNonlinear}
	rgba := gpu.SurfaceFormat{Format: gpu.FormatR8G8B8A8Unorm, ColorSpace: gpu.ColorSpaceSRGBNonlinear}
	bgraSrgb := gpu.SurfaceFormat{Format: gpu.FormatB8G8R8A8Srgb, ColorSpace: gpu.ColorSpaceSRGBNonlinear}
	bgraLinear := gpu.SurfaceFormat{Format: gpu.FormatB8G8R8A8Unorm, ColorSpace: gpu.ColorSpaceExtendedSRGBLinear}

	tests := []struct {
		name    string
		formats []gpu.SurfaceFormat
		want    gpu.SurfaceFormat
	}{
		{"preferred second", []gpu.SurfaceFormat{rgba, preferred}, preferred},
		{"preferred first", []gpu.SurfaceFormat{preferred, rgba}, preferred},
		{"preferred last", []gpu.SurfaceFormat{rgba, bgraSrgb, bgraLinear, preferred}, preferred},
		{"no preferred", []gpu.SurfaceFormat{bgraSrgb, rgba}, bgraSrgb},
		{"wrong color space", []gpu.SurfaceFormat{rgba, bgraLinear}, rgba},
		{"single", []gpu.SurfaceFormat{bgraLinear}, bgraLinear},
		{"empty", nil, gpu.SurfaceFormat{}},
	}

	for _, tt := range tests {
		if got := ChooseFormat(tt.formats); got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}
}

func TestChoosePresentMode(t *testing.T) {
	tests := []struct {
		name  string
		modes []gpu.PresentMode
		want  gpu.PresentMode
	}{
		{"fifo and mailbox", []gpu.PresentMode{gpu.PresentModeFIFO, gpu.PresentModeMailbox}, gpu.PresentModeFIFO},
		{"immediate last", []gpu.PresentMode{gpu.PresentModeFIFO, gpu.PresentModeMailbox, gpu.PresentModeImmediate}, gpu.PresentModeImmediate},
		{"immediate only", []gpu.PresentMode{gpu.PresentModeImmediate}, gpu.PresentModeImmediate},
		{"mailbox only", []gpu.PresentMode{gpu.PresentModeMailbox}, gpu.PresentModeFIFO},
		{"relaxed", []gpu.PresentMode{gpu.PresentModeFIFORelaxed}, gpu.PresentModeFIFO},
		{"empty", nil, gpu.PresentModeFIFO},
	}

	for _, tt := range tests {
		if got := ChoosePresentMode(tt.modes); got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}
}

func undefinedCaps(lo, hi gpu.Extent2D) gpu.SurfaceCapabilities {
	return gpu.SurfaceCapabilities{
		CurrentExtent:  gpu.Extent2D{Width: gpu.UndefinedExtent, Height: gpu.UndefinedExtent},
		MinImageExtent: lo,
		MaxImageExtent: hi,
	}
}

func TestChooseExtentClampsWhenUndefined(t *testing.T) {
	caps := undefinedCaps(gpu.Extent2D{Width: 64, Height: 64}, gpu.Extent2D{Width: 4096, Height: 4096})

	tests := []struct {
		w, h uint32
		want gpu.Extent2D
	}{
		{10, 10, gpu.Extent2D{Width: 64, Height: 64}},
		{800, 600, gpu.Extent2D{Width: 800, Height: 600}},
		{9000, 10, gpu.Extent2D{Width: 4096, Height: 64}},
		{10, 9000, gpu.Extent2D{Width: 64, Height: 4096}},
		{64, 4096, gpu.Extent2D{Width: 64, Height: 4096}},
		{0, 0, gpu.Extent2D{Width: 64, Height: 64}},
	}

	for _, tt := range tests {
		got := ChooseExtent(tt.w, tt.h, caps)
		if got != tt.want {
			t.Errorf("ChooseExtent(%d, %d): expected %v, got %v", tt.w, tt.h, tt.want, got)
		}
		if got.Width < caps.MinImageExtent.Width || got.Width > caps.MaxImageExtent.Width {
			t.Errorf("ChooseExtent(%d, %d): width %d out of range", tt.w, tt.h, got.Width)
		}
		if got.Height < caps.MinImageExtent.Height || got.Height > caps.MaxImageExtent.Height {
			t.Errorf("ChooseExtent(%d, %d): height %d out of range", tt.w, tt.h, got.Height)
		}
		if again := ChooseExtent(tt.w, tt.h, caps); again != got {
			t.Errorf("ChooseExtent(%d, %d) not idempotent: %v then %v", tt.w, tt.h, got, again)
		}
	}
}

func TestChooseExtentUsesCurrentExtent(t *testing.T) {
	caps := gpu.SurfaceCapabilities{
		CurrentExtent:  gpu.Extent2D{Width: 1280, Height: 720},
		MinImageExtent: gpu.Extent2D{Width: 1, Height: 1},
		MaxImageExtent: gpu.Extent2D{Width: 4096, Height: 4096},
	}
	for _, size := range [][2]uint32{{10, 10}, {1920, 1080}, {1280, 720}} {
		got := ChooseExtent(size[0], size[1], caps)
		if got != caps.CurrentExtent {
			t.Errorf("ChooseExtent(%d, %d): expected %v, got %v", size[0], size[1], caps.CurrentExtent, got)
		}
	}
}

func TestImageCount(t *testing.T) {
	tests := []struct {
		min, max uint32
		want     uint32
	}{
		{2, 3, 3},
		{2, 0, 3},
		{2, 2, 2},
		{1, 8, 2},
		{3, 0, 4},
		{4, 4, 4},
	}

	for _, tt := range tests {
		caps := gpu.SurfaceCapabilities{MinImageCount: tt.min, MaxImageCount: tt.max}
		got := ImageCount(caps)
		if got != tt.want {
			t.Errorf("ImageCount(min=%d, max=%d): expected %d, got %d", tt.min, tt.max, tt.want, got)
		}
		if got < tt.min {
			t.Errorf("ImageCount(min=%d, max=%d) = %d below minimum", tt.min, tt.max, got)
		}
		if tt.max != 0 && got > tt.max {
			t.Errorf("ImageCount(min=%d, max=%d) = %d above maximum", tt.min, tt.max, got)
		}
	}
}

func TestQuerySupport(t *testing.T) {
	rec := gputest.NewRecorder()
	pd := gputest.NewPhysicalDevice(rec, 800, 600)

	support, err := QuerySupport(pd, 1)
	if err != nil {
		t.Fatalf("QuerySupport: %v", err)
	}
	if support.Capabilities != pd.Capabilities {
		t.Errorf("capabilities: expected %+v, got %+v", pd.Capabilities, support.Capabilities)
	}
	if len(support.Formats) != len(pd.Formats) || len(support.PresentModes) != len(pd.PresentModes) {
		t.Errorf("expected %d formats and %d modes, got %d and %d",
			len(pd.Formats), len(pd.PresentModes), len(support.Formats), len(support.PresentModes))
	}

	expected := []string{"SurfaceCapabilities", "SurfaceFormats", "SurfacePresentModes"}
	for i, name := range expected {
		if rec.Names()[i] != name {
			t.Errorf("query %d: expected %s, got %s", i, name, rec.Names()[i])
		}
	}
}

func TestQuerySupportFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*gputest.PhysicalDevice)
		want  error
	}{
		{"capabilities", func(p *gputest.PhysicalDevice) { p.CapabilitiesErr = gpu.ErrSurfaceLost }, gpu.ErrSurfaceLost},
		{"formats", func(p *gputest.PhysicalDevice) { p.FormatsErr = gpu.ErrOutOfHostMemory }, gpu.ErrOutOfHostMemory},
		{"present modes", func(p *gputest.PhysicalDevice) { p.PresentModesErr = gpu.ErrSurfaceLost }, gpu.ErrSurfaceLost},
		{"no formats", func(p *gputest.PhysicalDevice) { p.Formats = nil }, ErrNoSurfaceFormats},
	}

	for _, tt := range tests {
		pd := gputest.NewPhysicalDevice(gputest.NewRecorder(), 800, 600)
		tt.setup(pd)
		_, err := QuerySupport(pd, 1)
		if !errors.Is(err, tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, err)
		}
	}
}
