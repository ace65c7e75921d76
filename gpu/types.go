package gpu

import (
	"fmt"
	"math"
	"time"
)

// Handle types. The zero value of each is the null handle.
type (
	Surface        uintptr
	Swapchain      uintptr
	Image          uintptr
	ImageView      uintptr
	Buffer         uintptr
	Semaphore      uintptr
	Fence          uintptr
	DescriptorSet  uintptr
	PipelineLayout uintptr
	Pipeline       uintptr
)

// UndefinedExtent marks a surface whose size is decided by the swapchain.
const UndefinedExtent = ^uint32(0)

// NoTimeout waits forever.
const NoTimeout time.Duration = math.MaxInt64

type Extent2D struct {
	Width  uint32
	Height uint32
}

func (e Extent2D) String() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}

// Empty reports whether either side is zero.
func (e Extent2D) Empty() bool {
	return e.Width == 0 || e.Height == 0
}

type Format uint32

const (
	FormatUndefined     Format = 0
	FormatR8G8B8A8Unorm Format = 37
	FormatR8G8B8A8Srgb  Format = 43
	FormatB8G8R8A8Unorm Format = 44
	FormatB8G8R8A8Srgb  Format = 50
)

func (f Format) String() string {
	switch f {
	case FormatUndefined:
		return "Undefined"
	case FormatR8G8B8A8Unorm:
		return "R8G8B8A8Unorm"
	case FormatR8G8B8A8Srgb:
		return "R8G8B8A8Srgb"
	case FormatB8G8R8A8Unorm:
		return "B8G8R8A8Unorm"
	case FormatB8G8R8A8Srgb:
		return "B8G8R8A8Srgb"
	}
	return fmt.Sprintf("Format(%d)", uint32(f))
}

type ColorSpace uint32

const (
	ColorSpaceSRGBNonlinear      ColorSpace = 0
	ColorSpaceExtendedSRGBLinear ColorSpace = 1000104002
)

func (c ColorSpace) String() string {
	switch c {
	case ColorSpaceSRGBNonlinear:
		return "SrgbNonlinear"
	case ColorSpaceExtendedSRGBLinear:
		return "ExtendedSrgbLinear"
	}
	return fmt.Sprintf("ColorSpace(%d)", uint32(c))
}

type SurfaceFormat struct {
	Format     Format
	ColorSpace ColorSpace
}

func (s SurfaceFormat) String() string {
	return s.Format.String() + "/" + s.ColorSpace.String()
}

type PresentMode uint32

const (
	PresentModeImmediate   PresentMode = 0
	PresentModeMailbox     PresentMode = 1
	PresentModeFIFO        PresentMode = 2
	PresentModeFIFORelaxed PresentMode = 3
)

func (p PresentMode) String() string {
	switch p {
	case PresentModeImmediate:
		return "Immediate"
	case PresentModeMailbox:
		return "Mailbox"
	case PresentModeFIFO:
		return "Fifo"
	case PresentModeFIFORelaxed:
		return "FifoRelaxed"
	}
	return fmt.Sprintf("PresentMode(%d)", uint32(p))
}

type ImageLayout uint32

const (
	LayoutUndefined   ImageLayout = 0
	LayoutGeneral     ImageLayout = 1
	LayoutTransferSrc ImageLayout = 6
	LayoutTransferDst ImageLayout = 7
	LayoutPresentSrc  ImageLayout = 1000001002
)

func (l ImageLayout) String() string {
	switch l {
	case LayoutUndefined:
		return "Undefined"
	case LayoutGeneral:
		return "General"
	case LayoutTransferSrc:
		return "TransferSrcOptimal"
	case LayoutTransferDst:
		return "TransferDstOptimal"
	case LayoutPresentSrc:
		return "PresentSrc"
	}
	return fmt.Sprintf("ImageLayout(%d)", uint32(l))
}

type AccessFlags uint32

const (
	AccessNone          AccessFlags = 0
	AccessShaderRead    AccessFlags = 0x20
	AccessShaderWrite   AccessFlags = 0x40
	AccessTransferRead  AccessFlags = 0x800
	AccessTransferWrite AccessFlags = 0x1000
	AccessMemoryRead    AccessFlags = 0x8000
	AccessMemoryWrite   AccessFlags = 0x10000
)

type PipelineStage uint32

const (
	StageTopOfPipe     PipelineStage = 0x1
	StageComputeShader PipelineStage = 0x800
	StageTransfer      PipelineStage = 0x1000
	StageBottomOfPipe  PipelineStage = 0x2000
)

func (s PipelineStage) String() string {
	switch s {
	case StageTopOfPipe:
		return "TopOfPipe"
	case StageComputeShader:
		return "ComputeShader"
	case StageTransfer:
		return "Transfer"
	case StageBottomOfPipe:
		return "BottomOfPipe"
	}
	return fmt.Sprintf("PipelineStage(%#x)", uint32(s))
}

type ImageUsage uint32

const (
	ImageUsageTransferSrc     ImageUsage = 0x1
	ImageUsageTransferDst     ImageUsage = 0x2
	ImageUsageSampled         ImageUsage = 0x4
	ImageUsageStorage         ImageUsage = 0x8
	ImageUsageColorAttachment ImageUsage = 0x10
)

type BufferUsage uint32

const (
	BufferUsageTransferSrc BufferUsage = 0x1
	BufferUsageTransferDst BufferUsage = 0x2
	BufferUsageUniform     BufferUsage = 0x10
	BufferUsageStorage     BufferUsage = 0x20
)

type SurfaceTransform uint32

const SurfaceTransformIdentity SurfaceTransform = 0x1

type CompositeAlpha uint32

const CompositeAlphaOpaque CompositeAlpha = 0x1

type DescriptorType uint32

const (
	DescriptorStorageImage  DescriptorType = 3
	DescriptorUniformBuffer DescriptorType = 6
	DescriptorStorageBuffer DescriptorType = 7
)

type SurfaceCapabilities struct {
	MinImageCount           uint32
	MaxImageCount           uint32
	CurrentExtent           Extent2D
	MinImageExtent          Extent2D
	MaxImageExtent          Extent2D
	MaxImageArrayLayers     uint32
	SupportedTransforms     SurfaceTransform
	CurrentTransform        SurfaceTransform
	SupportedCompositeAlpha CompositeAlpha
	SupportedUsage          ImageUsage
}

type SwapchainCreateInfo struct {
	Surface          Surface
	MinImageCount    uint32
	Format           SurfaceFormat
	Extent           Extent2D
	ImageArrayLayers uint32
	Usage            ImageUsage
	Transform        SurfaceTransform
	CompositeAlpha   CompositeAlpha
	PresentMode      PresentMode
	Clipped          bool
	OldSwapchain     Swapchain
}

type ImageCreateInfo struct {
	Format Format
	Extent Extent2D
	Usage  ImageUsage
}

// DescriptorWrite points one binding of a set at an image view or a buffer
// range. Range 0 means the whole buffer.
type DescriptorWrite struct {
	Set     DescriptorSet
	Binding uint32
	Type    DescriptorType

	ImageView   ImageView
	ImageLayout ImageLayout

	Buffer Buffer
	Offset uint64
	Range  uint64
}

type ImageBarrier struct {
	Image     Image
	OldLayout ImageLayout
	NewLayout ImageLayout
	SrcAccess AccessFlags
	DstAccess AccessFlags
	SrcStage  PipelineStage
	DstStage  PipelineStage
}

type MemoryBarrier struct {
	SrcStage  PipelineStage
	DstStage  PipelineStage
	SrcAccess AccessFlags
	DstAccess AccessFlags
}
