// Package frame holds the per-frame-in-flight resources of the compute
// rasterizer and records the commands that draw into an off-screen image
// and copy it to a presentable one.
package frame

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"frame-engine/deletion"
	"frame-engine/gpu"
	"frame-engine/logging"
)

var (
	ErrNotIdle      = errors.New("frame is still in use")
	ErrNotRecording = errors.New("frame has no recorded commands")
	ErrNotSubmitted = errors.New("frame was not submitted")
)

const (
	ColorFormat = gpu.FormatR8G8B8A8Unorm
	// DepthStride is the size of one depth sample in bytes.
	DepthStride = 4

	// Binding slots within the frame and draw-call scope sets.
	ColorBinding    = 0
	DepthBinding    = 1
	GeometryBinding = 0

	clearGroupSize  = 64
	rasterGroupSize = 8
)

type State int

const (
	StateIdle State = iota
	StateRecording
	StateSubmitted
	StatePresented
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRecording:
		return "Recording"
	case StateSubmitted:
		return "Submitted"
	case StatePresented:
		return "Presented"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Chain is the presentable side a frame copies into.
type Chain interface {
	Swapchain() gpu.Swapchain
	PresentImage(i uint32) gpu.Image
	PresentExtent() gpu.Extent2D
}

type StorageImage struct {
	Image  gpu.Image
	View   gpu.ImageView
	Format gpu.Format
	Extent gpu.Extent2D
}

type StorageBuffer struct {
	Buffer gpu.Buffer
	Size   uint64
}

type Params struct {
	Device    gpu.Device
	Allocator gpu.Allocator
	Queue     gpu.Queue
	Extent    gpu.Extent2D
	Bindings  Bindings
	// Geometry is bound to the draw-call scope. GeometrySize 0 binds the
	// whole buffer.
	Geometry     gpu.Buffer
	GeometrySize uint64
}

type Resource struct {
	ImageAcquired  gpu.Semaphore
	RenderFinished gpu.Semaphore
	InFlight       gpu.Fence
	Color          StorageImage
	Depth          StorageBuffer
	Cmd            gpu.CommandBuffer

	device    gpu.Device
	allocator gpu.Allocator
	queue     gpu.Queue
	bindings  Bindings
	state     State
	image     uint32

	allocDeletion  deletion.Queue[gpu.Allocator]
	deviceDeletion deletion.Queue[gpu.Device]
}

func New(p Params) (*Resource, error) {
	if p.Extent.Empty() {
		return nil, errors.Errorf("invalid frame extent %v", p.Extent)
	}

	r := &Resource{
		device:    p.Device,
		allocator: p.Allocator,
		queue:     p.Queue,
		bindings:  p.Bindings,
	}
	if err := r.create(p); err != nil {
		r.release()
		return nil, err
	}
	return r, nil
}

func (r *Resource) create(p Params) error {
	dev := p.Device
	var err error

	// Synchronization
	if r.ImageAcquired, err = dev.CreateSemaphore(); err != nil {
		return errors.Wrap(err, "failed to create image acquired semaphore")
	}
	sem := r.ImageAcquired
	r.deviceDeletion.Push(func(d gpu.Device) { d.DestroySemaphore(sem) })

	if r.RenderFinished, err = dev.CreateSemaphore(); err != nil {
		return errors.Wrap(err, "failed to create render finished semaphore")
	}
	done := r.RenderFinished
	r.deviceDeletion.Push(func(d gpu.Device) { d.DestroySemaphore(done) })

	if r.InFlight, err = dev.CreateFence(true); err != nil {
		return errors.Wrap(err, "failed to create in-flight fence")
	}
	fence := r.InFlight
	r.deviceDeletion.Push(func(d gpu.Device) { d.DestroyFence(fence) })

	if r.Cmd, err = dev.NewCommandBuffer(); err != nil {
		return errors.Wrap(err, "failed to allocate command buffer")
	}
	cmd := r.Cmd
	r.deviceDeletion.Push(func(d gpu.Device) { d.FreeCommandBuffer(cmd) })

	// Color target
	img, err := p.Allocator.CreateImage(gpu.ImageCreateInfo{
		Format: ColorFormat,
		Extent: p.Extent,
		Usage:  gpu.ImageUsageStorage | gpu.ImageUsageTransferSrc,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create color image")
	}
	r.allocDeletion.Push(func(a gpu.Allocator) { a.DestroyImage(img) })

	view, err := dev.CreateImageView(img, ColorFormat)
	if err != nil {
		return errors.Wrap(err, "failed to create color image view")
	}
	r.deviceDeletion.Push(func(d gpu.Device) { d.DestroyImageView(view) })
	r.Color = StorageImage{Image: img, View: view, Format: ColorFormat, Extent: p.Extent}

	// Depth buffer
	size := uint64(p.Extent.Width) * uint64(p.Extent.Height) * DepthStride
	buf, err := p.Allocator.CreateBuffer(size, gpu.BufferUsageStorage)
	if err != nil {
		return errors.Wrap(err, "failed to create depth buffer")
	}
	r.allocDeletion.Push(func(a gpu.Allocator) { a.DestroyBuffer(buf) })
	r.Depth = StorageBuffer{Buffer: buf, Size: size}

	dev.UpdateDescriptorSets(
		gpu.DescriptorWrite{
			Set:         p.Bindings.Sets[ScopeFrame],
			Binding:     ColorBinding,
			Type:        gpu.DescriptorStorageImage,
			ImageView:   view,
			ImageLayout: gpu.LayoutGeneral,
		},
		gpu.DescriptorWrite{
			Set:     p.Bindings.Sets[ScopeFrame],
			Binding: DepthBinding,
			Type:    gpu.DescriptorStorageBuffer,
			Buffer:  buf,
			Range:   size,
		},
		gpu.DescriptorWrite{
			Set:     p.Bindings.Sets[ScopeDrawCall],
			Binding: GeometryBinding,
			Type:    gpu.DescriptorStorageBuffer,
			Buffer:  p.Geometry,
			Range:   p.GeometrySize,
		},
	)

	logging.Logger().Debug("frame resources created", "extent", p.Extent, "depthBytes", size)
	return nil
}

func (r *Resource) State() State {
	return r.state
}

// Wait blocks until the frame's previous submission has finished and
// returns the frame to Idle.
func (r *Resource) Wait(timeout time.Duration) error {
	if err := r.device.WaitForFence(r.InFlight, timeout); err != nil {
		return errors.Wrap(err, "failed to wait for in-flight fence")
	}
	r.state = StateIdle
	return nil
}

// Record records the frame's commands targeting presentable image
// imageIndex of chain.
func (r *Resource) Record(chain Chain, imageIndex uint32) error {
	if r.state != StateIdle {
		return errors.Wrapf(ErrNotIdle, "frame is %v", r.state)
	}

	cmd := r.Cmd
	if err := cmd.Reset(); err != nil {
		return errors.Wrap(err, "failed to reset command buffer")
	}
	if err := cmd.Begin(); err != nil {
		return errors.Wrap(err, "failed to begin recording command buffer")
	}
	r.state = StateRecording
	r.image = imageIndex

	target := chain.PresentImage(imageIndex)
	targetExtent := chain.PresentExtent()

	cmd.PipelineBarrier(gpu.ImageBarrier{
		Image:     r.Color.Image,
		OldLayout: gpu.LayoutUndefined,
		NewLayout: gpu.LayoutGeneral,
		SrcAccess: gpu.AccessNone,
		DstAccess: gpu.AccessShaderWrite,
		SrcStage:  gpu.StageTopOfPipe,
		DstStage:  gpu.StageComputeShader,
	})

	r.bindings.bind(cmd, PipelineClear, ScopeFrame)
	cmd.Dispatch(ClearGroups(r.Color.Extent), 1, 1)

	computeBarrier(cmd)
	r.pass(cmd, PipelineRasterizeBigDepth, PipelineRasterizeSmallDepth)
	computeBarrier(cmd)
	r.pass(cmd, PipelineRasterizeBigColor, PipelineRasterizeSmallColor)

	cmd.PipelineBarrier(gpu.ImageBarrier{
		Image:     r.Color.Image,
		OldLayout: gpu.LayoutGeneral,
		NewLayout: gpu.LayoutTransferSrc,
		SrcAccess: gpu.AccessShaderWrite,
		DstAccess: gpu.AccessTransferRead,
		SrcStage:  gpu.StageComputeShader,
		DstStage:  gpu.StageTransfer,
	})
	cmd.PipelineBarrier(gpu.ImageBarrier{
		Image:     target,
		OldLayout: gpu.LayoutUndefined,
		NewLayout: gpu.LayoutTransferDst,
		SrcAccess: gpu.AccessNone,
		DstAccess: gpu.AccessTransferWrite,
		SrcStage:  gpu.StageTransfer,
		DstStage:  gpu.StageTransfer,
	})

	cmd.BlitImage(r.Color.Image, r.Color.Extent, target, targetExtent)

	cmd.PipelineBarrier(gpu.ImageBarrier{
		Image:     target,
		OldLayout: gpu.LayoutTransferDst,
		NewLayout: gpu.LayoutPresentSrc,
		SrcAccess: gpu.AccessTransferWrite,
		DstAccess: gpu.AccessNone,
		SrcStage:  gpu.StageTransfer,
		DstStage:  gpu.StageBottomOfPipe,
	})

	if err := cmd.End(); err != nil {
		r.state = StateIdle
		return errors.Wrap(err, "failed to end recording command buffer")
	}
	return nil
}

// pass dispatches the big-primitive pipeline over the whole target, then
// the small-primitive pipeline as a single workgroup.
func (r *Resource) pass(cmd gpu.CommandBuffer, big, small PipelineKind) {
	x, y := RasterGroups(r.Color.Extent)
	r.bindings.bind(cmd, big, ScopeFrame, ScopeDrawCall)
	cmd.Dispatch(x, y, 1)

	r.bindings.bind(cmd, small, ScopeFrame, ScopeDrawCall)
	cmd.Dispatch(1, 1, 1)
}

func computeBarrier(cmd gpu.CommandBuffer) {
	cmd.MemoryBarrier(gpu.MemoryBarrier{
		SrcStage:  gpu.StageComputeShader,
		DstStage:  gpu.StageComputeShader,
		SrcAccess: gpu.AccessShaderWrite,
		DstAccess: gpu.AccessShaderRead | gpu.AccessShaderWrite,
	})
}

// Submit queues the recorded commands. They wait for the acquired image at
// the transfer stage and signal RenderFinished and InFlight.
func (r *Resource) Submit() error {
	if r.state != StateRecording {
		return errors.Wrapf(ErrNotRecording, "frame is %v", r.state)
	}
	if err := r.device.ResetFence(r.InFlight); err != nil {
		return errors.Wrap(err, "failed to reset in-flight fence")
	}
	if err := r.queue.Submit(r.Cmd, r.ImageAcquired, gpu.StageTransfer, r.RenderFinished, r.InFlight); err != nil {
		return errors.Wrap(err, "failed to submit frame")
	}
	r.state = StateSubmitted
	return nil
}

// Present hands the recorded image to the display once rendering finishes.
// ErrOutOfDate and ErrSuboptimal come back unwrapped.
func (r *Resource) Present(chain Chain) error {
	if r.state != StateSubmitted {
		return errors.Wrapf(ErrNotSubmitted, "frame is %v", r.state)
	}
	r.state = StatePresented
	err := r.queue.Present(chain.Swapchain(), r.image, r.RenderFinished)
	if err != nil && !gpu.NeedsRebuild(err) {
		return errors.Wrap(err, "failed to present frame")
	}
	return err
}

// FreeResources waits for the queue to go idle, then releases allocator
// resources followed by device objects.
func (r *Resource) FreeResources() error {
	if err := r.queue.WaitIdle(); err != nil {
		return errors.Wrap(err, "failed to wait for queue idle")
	}
	r.release()
	return nil
}

func (r *Resource) release() {
	r.allocDeletion.Drain(r.allocator)
	r.deviceDeletion.Drain(r.device)
	r.state = StateIdle
}

// ClearGroups is the workgroup count that covers every pixel of e once.
func ClearGroups(e gpu.Extent2D) uint32 {
	pixels := uint64(e.Width) * uint64(e.Height)
	return uint32((pixels + clearGroupSize - 1) / clearGroupSize)
}

// RasterGroups is the workgroup grid of the big-primitive passes.
func RasterGroups(e gpu.Extent2D) (x, y uint32) {
	return ceilDiv(e.Width, rasterGroupSize), ceilDiv(e.Height, rasterGroupSize)
}

func ceilDiv(n, d uint32) uint32 {
	return (n + d - 1) / d
}
