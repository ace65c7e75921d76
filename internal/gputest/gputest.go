// Package gputest provides in-memory implementations of the gpu interfaces
// that record every call in order.
package gputest

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"frame-engine/gpu"
)

// Recorder is the call log and handle source shared by the fakes.
type Recorder struct {
	Calls []string

	next uintptr
	live map[uintptr]string
	// signaled tracks fence state shared by Device and Queue.
	signaled map[uintptr]bool
}

func NewRecorder() *Recorder {
	return &Recorder{live: make(map[uintptr]string), signaled: make(map[uintptr]bool)}
}

func (r *Recorder) record(format string, args ...any) {
	r.Calls = append(r.Calls, fmt.Sprintf(format, args...))
}

func (r *Recorder) create(kind string) uintptr {
	r.next++
	r.live[r.next] = kind
	r.record("Create%s %d", kind, r.next)
	return r.next
}

func (r *Recorder) destroy(kind string, h uintptr) {
	r.record("Destroy%s %d", kind, h)
	if r.live[h] == kind {
		delete(r.live, h)
	}
}

// Live counts handles of the given kind that were created and not yet
// destroyed. An empty kind counts all of them.
func (r *Recorder) Live(kind string) int {
	n := 0
	for _, k := range r.live {
		if kind == "" || k == kind {
			n++
		}
	}
	return n
}

// Names returns the call log without handle arguments.
func (r *Recorder) Names() []string {
	names := make([]string, len(r.Calls))
	for i, c := range r.Calls {
		names[i], _, _ = strings.Cut(c, " ")
	}
	return names
}

// Index returns the position of the first call whose name is name, or -1.
func (r *Recorder) Index(name string) int {
	for i, n := range r.Names() {
		if n == name {
			return i
		}
	}
	return -1
}

// LastIndex returns the position of the last call whose name is name, or -1.
func (r *Recorder) LastIndex(name string) int {
	names := r.Names()
	for i := len(names) - 1; i >= 0; i-- {
		if names[i] == name {
			return i
		}
	}
	return -1
}

func (r *Recorder) Count(name string) int {
	n := 0
	for _, c := range r.Names() {
		if c == name {
			n++
		}
	}
	return n
}

func (r *Recorder) Reset() {
	r.Calls = nil
}

// Signaled reports whether a fence would satisfy a wait. Fences the
// recorder never created count as signaled.
func (r *Recorder) Signaled(f gpu.Fence) bool {
	signaled, ok := r.signaled[uintptr(f)]
	return !ok || signaled
}

var ErrInjected = errors.New("injected failure")

type PhysicalDevice struct {
	Rec          *Recorder
	Capabilities gpu.SurfaceCapabilities
	Formats      []gpu.SurfaceFormat
	PresentModes []gpu.PresentMode

	CapabilitiesErr error
	FormatsErr      error
	PresentModesErr error
}

// NewPhysicalDevice reports a fixed-size surface with the usual desktop
// format and present modes.
func NewPhysicalDevice(rec *Recorder, width, height uint32) *PhysicalDevice {
	return &PhysicalDevice{
		Rec: rec,
		Capabilities: gpu.SurfaceCapabilities{
			MinImageCount:           2,
			MaxImageCount:           8,
			CurrentExtent:           gpu.Extent2D{Width: width, Height: height},
			MinImageExtent:          gpu.Extent2D{Width: 1, Height: 1},
			MaxImageExtent:          gpu.Extent2D{Width: 4096, Height: 4096},
			MaxImageArrayLayers:     1,
			SupportedTransforms:     gpu.SurfaceTransformIdentity,
			CurrentTransform:        gpu.SurfaceTransformIdentity,
			SupportedCompositeAlpha: gpu.CompositeAlphaOpaque,
			SupportedUsage:          gpu.ImageUsageColorAttachment | gpu.ImageUsageTransferDst,
		},
		Formats: []gpu.SurfaceFormat{
			{Format: gpu.FormatB8G8R8A8Srgb, ColorSpace: gpu.ColorSpaceSRGBNonlinear},
			{Format: gpu.FormatB8G8R8A8Unorm, ColorSpace: gpu.ColorSpaceSRGBNonlinear},
		},
		PresentModes: []gpu.PresentMode{gpu.PresentModeFIFO, gpu.PresentModeMailbox},
	}
}

func (p *PhysicalDevice) SurfaceCapabilities(gpu.Surface) (gpu.SurfaceCapabilities, error) {
	p.Rec.record("SurfaceCapabilities")
	return p.Capabilities, p.CapabilitiesErr
}

func (p *PhysicalDevice) SurfaceFormats(gpu.Surface) ([]gpu.SurfaceFormat, error) {
	p.Rec.record("SurfaceFormats")
	return p.Formats, p.FormatsErr
}

func (p *PhysicalDevice) SurfacePresentModes(gpu.Surface) ([]gpu.PresentMode, error) {
	p.Rec.record("SurfacePresentModes")
	return p.PresentModes, p.PresentModesErr
}

type Device struct {
	Rec *Recorder

	// ExtraImages is added to the requested image count when a chain is
	// created.
	ExtraImages        int
	CreateSwapchainErr error
	SwapchainImagesErr error
	// FailImageView makes CreateImageView fail for the images it accepts.
	FailImageView func(gpu.Image) bool
	// AcquireErrs are returned by successive AcquireNextImage calls.
	AcquireErrs []error
	WaitIdleErr error
	FenceErr    error

	SwapchainInfos []gpu.SwapchainCreateInfo
	Writes         []gpu.DescriptorWrite
	Commands       []*CommandBuffer

	chains   map[gpu.Swapchain][]gpu.Image
	acquired uint32
}

func NewDevice(rec *Recorder) *Device {
	return &Device{Rec: rec, chains: make(map[gpu.Swapchain][]gpu.Image)}
}

func (d *Device) WaitIdle() error {
	d.Rec.record("DeviceWaitIdle")
	return d.WaitIdleErr
}

func (d *Device) CreateSwapchain(info gpu.SwapchainCreateInfo) (gpu.Swapchain, error) {
	d.SwapchainInfos = append(d.SwapchainInfos, info)
	if d.CreateSwapchainErr != nil {
		d.Rec.record("CreateSwapchain failed")
		return 0, d.CreateSwapchainErr
	}
	sc := gpu.Swapchain(d.Rec.create("Swapchain"))
	images := make([]gpu.Image, int(info.MinImageCount)+d.ExtraImages)
	for i := range images {
		d.Rec.next++
		images[i] = gpu.Image(d.Rec.next)
	}
	d.chains[sc] = images
	return sc, nil
}

func (d *Device) DestroySwapchain(sc gpu.Swapchain) {
	d.Rec.destroy("Swapchain", uintptr(sc))
	delete(d.chains, sc)
}

func (d *Device) SwapchainImages(sc gpu.Swapchain) ([]gpu.Image, error) {
	d.Rec.record("SwapchainImages %d", sc)
	if d.SwapchainImagesErr != nil {
		return nil, d.SwapchainImagesErr
	}
	return append([]gpu.Image(nil), d.chains[sc]...), nil
}

func (d *Device) AcquireNextImage(sc gpu.Swapchain, signal gpu.Semaphore, _ time.Duration) (uint32, error) {
	d.Rec.record("AcquireNextImage %d", signal)
	if len(d.AcquireErrs) > 0 {
		err := d.AcquireErrs[0]
		d.AcquireErrs = d.AcquireErrs[1:]
		if err != nil && !errors.Is(err, gpu.ErrSuboptimal) {
			return 0, err
		}
		if err != nil {
			return d.nextIndex(sc), err
		}
	}
	return d.nextIndex(sc), nil
}

func (d *Device) nextIndex(sc gpu.Swapchain) uint32 {
	n := uint32(len(d.chains[sc]))
	if n == 0 {
		return 0
	}
	i := d.acquired % n
	d.acquired++
	return i
}

func (d *Device) CreateImageView(img gpu.Image, _ gpu.Format) (gpu.ImageView, error) {
	if d.FailImageView != nil && d.FailImageView(img) {
		d.Rec.record("CreateImageView failed")
		return 0, ErrInjected
	}
	return gpu.ImageView(d.Rec.create("ImageView")), nil
}

func (d *Device) DestroyImageView(v gpu.ImageView) {
	d.Rec.destroy("ImageView", uintptr(v))
}

func (d *Device) CreateSemaphore() (gpu.Semaphore, error) {
	return gpu.Semaphore(d.Rec.create("Semaphore")), nil
}

func (d *Device) DestroySemaphore(s gpu.Semaphore) {
	d.Rec.destroy("Semaphore", uintptr(s))
}

func (d *Device) CreateFence(signaled bool) (gpu.Fence, error) {
	id := d.Rec.create("Fence")
	d.Rec.signaled[id] = signaled
	return gpu.Fence(id), nil
}

func (d *Device) DestroyFence(f gpu.Fence) {
	d.Rec.destroy("Fence", uintptr(f))
	delete(d.Rec.signaled, uintptr(f))
}

// WaitForFence returns FenceErr when set. Otherwise a fence that was reset
// and never signaled by a successful submit times out.
func (d *Device) WaitForFence(f gpu.Fence, _ time.Duration) error {
	d.Rec.record("WaitForFence %d", f)
	if d.FenceErr != nil {
		return d.FenceErr
	}
	if !d.Rec.Signaled(f) {
		return gpu.ErrTimeout
	}
	return nil
}

func (d *Device) ResetFence(f gpu.Fence) error {
	d.Rec.record("ResetFence %d", f)
	if _, ok := d.Rec.signaled[uintptr(f)]; ok {
		d.Rec.signaled[uintptr(f)] = false
	}
	return nil
}

func (d *Device) UpdateDescriptorSets(writes ...gpu.DescriptorWrite) {
	d.Rec.record("UpdateDescriptorSets")
	d.Writes = append(d.Writes, writes...)
}

func (d *Device) NewCommandBuffer() (gpu.CommandBuffer, error) {
	cmd := &CommandBuffer{Handle: d.Rec.create("CommandBuffer")}
	d.Commands = append(d.Commands, cmd)
	return cmd, nil
}

func (d *Device) FreeCommandBuffer(cmd gpu.CommandBuffer) {
	c := cmd.(*CommandBuffer)
	d.Rec.destroy("CommandBuffer", c.Handle)
}

type Submission struct {
	Cmd       gpu.CommandBuffer
	Wait      gpu.Semaphore
	WaitStage gpu.PipelineStage
	Signal    gpu.Semaphore
	Fence     gpu.Fence
}

type Presentation struct {
	Swapchain  gpu.Swapchain
	ImageIndex uint32
	Wait       gpu.Semaphore
}

type Queue struct {
	Rec *Recorder

	SubmitErr error
	// PresentErrs are returned by successive Present calls.
	PresentErrs []error

	Submissions   []Submission
	Presentations []Presentation
}

func NewQueue(rec *Recorder) *Queue {
	return &Queue{Rec: rec}
}

func (q *Queue) Submit(cmd gpu.CommandBuffer, wait gpu.Semaphore, stage gpu.PipelineStage, signal gpu.Semaphore, fence gpu.Fence) error {
	q.Rec.record("Submit %d", fence)
	if q.SubmitErr != nil {
		return q.SubmitErr
	}
	q.Submissions = append(q.Submissions, Submission{cmd, wait, stage, signal, fence})
	if _, ok := q.Rec.signaled[uintptr(fence)]; ok {
		q.Rec.signaled[uintptr(fence)] = true
	}
	return nil
}

func (q *Queue) Present(sc gpu.Swapchain, imageIndex uint32, wait gpu.Semaphore) error {
	q.Rec.record("Present %d", imageIndex)
	q.Presentations = append(q.Presentations, Presentation{sc, imageIndex, wait})
	if len(q.PresentErrs) > 0 {
		err := q.PresentErrs[0]
		q.PresentErrs = q.PresentErrs[1:]
		return err
	}
	return nil
}

func (q *Queue) WaitIdle() error {
	q.Rec.record("QueueWaitIdle")
	return nil
}

type Allocator struct {
	Rec *Recorder

	CreateImageErr  error
	CreateBufferErr error

	Images  map[gpu.Image]gpu.ImageCreateInfo
	Buffers map[gpu.Buffer]uint64
}

func NewAllocator(rec *Recorder) *Allocator {
	return &Allocator{
		Rec:     rec,
		Images:  make(map[gpu.Image]gpu.ImageCreateInfo),
		Buffers: make(map[gpu.Buffer]uint64),
	}
}

func (a *Allocator) CreateImage(info gpu.ImageCreateInfo) (gpu.Image, error) {
	if a.CreateImageErr != nil {
		return 0, a.CreateImageErr
	}
	img := gpu.Image(a.Rec.create("Image"))
	a.Images[img] = info
	return img, nil
}

func (a *Allocator) DestroyImage(img gpu.Image) {
	a.Rec.destroy("Image", uintptr(img))
}

func (a *Allocator) CreateBuffer(size uint64, _ gpu.BufferUsage) (gpu.Buffer, error) {
	if a.CreateBufferErr != nil {
		return 0, a.CreateBufferErr
	}
	buf := gpu.Buffer(a.Rec.create("Buffer"))
	a.Buffers[buf] = size
	return buf, nil
}

func (a *Allocator) DestroyBuffer(buf gpu.Buffer) {
	a.Rec.destroy("Buffer", uintptr(buf))
}

// Op is one recorded command.
type Op struct {
	Name string

	Image   gpu.ImageBarrier
	Memory  gpu.MemoryBarrier
	Pipe    gpu.Pipeline
	Layout  gpu.PipelineLayout
	SetSlot uint32
	Set     gpu.DescriptorSet
	Groups  [3]uint32

	Src, Dst             gpu.Image
	SrcExtent, DstExtent gpu.Extent2D
}

type CommandBuffer struct {
	Handle uintptr
	Ops    []Op
	Resets int
	// EndErr is returned by End after the op is recorded.
	EndErr error
}

func (c *CommandBuffer) Reset() error {
	c.Ops = nil
	c.Resets++
	return nil
}

func (c *CommandBuffer) Begin() error {
	c.Ops = append(c.Ops, Op{Name: "Begin"})
	return nil
}

func (c *CommandBuffer) End() error {
	c.Ops = append(c.Ops, Op{Name: "End"})
	return c.EndErr
}

func (c *CommandBuffer) PipelineBarrier(b gpu.ImageBarrier) {
	c.Ops = append(c.Ops, Op{Name: "ImageBarrier", Image: b})
}

func (c *CommandBuffer) MemoryBarrier(b gpu.MemoryBarrier) {
	c.Ops = append(c.Ops, Op{Name: "MemoryBarrier", Memory: b})
}

func (c *CommandBuffer) BindPipeline(p gpu.Pipeline) {
	c.Ops = append(c.Ops, Op{Name: "BindPipeline", Pipe: p})
}

func (c *CommandBuffer) BindDescriptorSet(layout gpu.PipelineLayout, index uint32, set gpu.DescriptorSet) {
	c.Ops = append(c.Ops, Op{Name: "BindDescriptorSet", Layout: layout, SetSlot: index, Set: set})
}

func (c *CommandBuffer) Dispatch(x, y, z uint32) {
	c.Ops = append(c.Ops, Op{Name: "Dispatch", Groups: [3]uint32{x, y, z}})
}

func (c *CommandBuffer) BlitImage(src gpu.Image, srcExtent gpu.Extent2D, dst gpu.Image, dstExtent gpu.Extent2D) {
	c.Ops = append(c.Ops, Op{Name: "BlitImage", Src: src, Dst: dst, SrcExtent: srcExtent, DstExtent: dstExtent})
}

// Names returns the recorded command names in order.
func (c *CommandBuffer) Names() []string {
	names := make([]string, len(c.Ops))
	for i, op := range c.Ops {
		names[i] = op.Name
	}
	return names
}

// FixedWindow reports a constant framebuffer size.
type FixedWindow struct {
	Width, Height int
	Rec           *Recorder
	Waits         int
	Closed        bool
	// Sizes, when set, are returned by successive FramebufferSize calls
	// before falling back to Width and Height.
	Sizes [][2]int
}

func (w *FixedWindow) FramebufferSize() (int, int) {
	if w.Rec != nil {
		w.Rec.record("FramebufferSize")
	}
	if len(w.Sizes) > 0 {
		s := w.Sizes[0]
		w.Sizes = w.Sizes[1:]
		return s[0], s[1]
	}
	return w.Width, w.Height
}

func (w *FixedWindow) WaitEvents() {
	w.Waits++
}

func (w *FixedWindow) ShouldClose() bool {
	return w.Closed
}
