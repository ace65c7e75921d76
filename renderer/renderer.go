// Package renderer drives the frames-in-flight loop: acquire a presentable
// image, record and submit a frame, present it, and rebuild the swapchain
// when the surface changes.
package renderer

import (
	"time"

	"github.com/pkg/errors"

	"frame-engine/frame"
	"frame-engine/gpu"
	"frame-engine/logging"
	"frame-engine/swapchain"
)

var ErrWindowClosed = errors.New("window closed")

type Config struct {
	FramesInFlight int
	FenceTimeout   time.Duration
}

func DefaultConfig() Config {
	return Config{
		FramesInFlight: 2,
		FenceTimeout:   time.Second,
	}
}

type Window interface {
	FramebufferSize() (width, height int)
	WaitEvents()
	ShouldClose() bool
}

// BindingSource supplies the descriptor sets and pipelines of each frame
// slot.
type BindingSource interface {
	FrameBindings(slot int) frame.Bindings
}

// BindingsFunc adapts a function to BindingSource.
type BindingsFunc func(slot int) frame.Bindings

func (f BindingsFunc) FrameBindings(slot int) frame.Bindings {
	return f(slot)
}

type Params struct {
	Device         gpu.Device
	PhysicalDevice gpu.PhysicalDevice
	Queue          gpu.Queue
	Allocator      gpu.Allocator
	Surface        gpu.Surface
	Window         Window
	Bindings       BindingSource
	Geometry       gpu.Buffer
	GeometrySize   uint64
}

type Engine struct {
	config Config
	params Params

	chain  swapchain.Manager
	frames []*frame.Resource
	// imagesInFlight maps a presentable image to the frame last rendered
	// into it.
	imagesInFlight []*frame.Resource
	current        int
	resized        bool
	frameCount     uint64
	rebuilds       int
}

func New(config Config, p Params) (*Engine, error) {
	if config.FramesInFlight <= 0 {
		config.FramesInFlight = DefaultConfig().FramesInFlight
	}
	if config.FenceTimeout <= 0 {
		config.FenceTimeout = DefaultConfig().FenceTimeout
	}

	e := &Engine{config: config, params: p}

	width, height, err := e.waitForDrawableSize()
	if err != nil {
		return nil, err
	}
	if err := e.chain.Build(p.Device, p.PhysicalDevice, p.Surface, width, height); err != nil {
		e.chain.Destroy(p.Device)
		return nil, err
	}
	if err := e.createFrames(); err != nil {
		e.chain.Destroy(p.Device)
		return nil, err
	}

	logging.Logger().Info("renderer initialized",
		"framesInFlight", config.FramesInFlight,
		"extent", e.chain.Extent,
	)
	return e, nil
}

func (e *Engine) Swapchain() *swapchain.Manager {
	return &e.chain
}

func (e *Engine) Frames() []*frame.Resource {
	return e.frames
}

func (e *Engine) FrameCount() uint64 {
	return e.frameCount
}

func (e *Engine) Rebuilds() int {
	return e.rebuilds
}

// NotifyResized requests a swapchain rebuild after the next present.
func (e *Engine) NotifyResized() {
	e.resized = true
}

// DrawFrame renders and presents one frame. A stale swapchain is rebuilt
// instead of being reported as an error.
func (e *Engine) DrawFrame() error {
	if e.chain.Outdated() || len(e.frames) == 0 {
		return e.rebuild()
	}

	f := e.frames[e.current]
	if err := f.Wait(e.config.FenceTimeout); err != nil {
		return err
	}

	imageIndex, err := e.params.Device.AcquireNextImage(e.chain.Handle, f.ImageAcquired, e.config.FenceTimeout)
	suboptimal := errors.Is(err, gpu.ErrSuboptimal)
	if errors.Is(err, gpu.ErrOutOfDate) {
		return e.rebuild()
	} else if err != nil && !suboptimal {
		return errors.Wrap(err, "failed to acquire swapchain image")
	}

	// Check if a previous frame is using this image
	if prev := e.imagesInFlight[imageIndex]; prev != nil && prev != f {
		if err := prev.Wait(e.config.FenceTimeout); err != nil {
			return err
		}
	}
	e.imagesInFlight[imageIndex] = f

	// A frame that fails to record or submit never signals its fence, so
	// the slot is only usable again after the frames are recreated.
	if err := f.Record(&e.chain, imageIndex); err != nil {
		e.chain.MarkOutdated()
		return err
	}
	if err := f.Submit(); err != nil {
		e.chain.MarkOutdated()
		return err
	}
	err = f.Present(&e.chain)

	e.current = (e.current + 1) % len(e.frames)
	e.frameCount++

	if gpu.NeedsRebuild(err) || suboptimal || e.resized {
		return e.rebuild()
	}
	return err
}

func (e *Engine) rebuild() error {
	e.resized = false
	e.chain.MarkOutdated()

	if _, _, err := e.waitForDrawableSize(); err != nil {
		return err
	}

	e.freeFrames()
	p := e.params
	if err := e.chain.Rebuild(p.Device, p.PhysicalDevice, p.Surface, p.Window); err != nil {
		return errors.Wrap(err, "failed to rebuild swapchain")
	}
	if err := e.createFrames(); err != nil {
		return err
	}
	e.rebuilds++
	return nil
}

// waitForDrawableSize blocks while the window is minimized.
func (e *Engine) waitForDrawableSize() (uint32, uint32, error) {
	win := e.params.Window
	width, height := win.FramebufferSize()
	for width <= 0 || height <= 0 {
		if win.ShouldClose() {
			return 0, 0, ErrWindowClosed
		}
		win.WaitEvents()
		width, height = win.FramebufferSize()
	}
	return uint32(width), uint32(height), nil
}

func (e *Engine) createFrames() error {
	p := e.params
	frames := make([]*frame.Resource, 0, e.config.FramesInFlight)
	for i := 0; i < e.config.FramesInFlight; i++ {
		f, err := frame.New(frame.Params{
			Device:       p.Device,
			Allocator:    p.Allocator,
			Queue:        p.Queue,
			Extent:       e.chain.Extent,
			Bindings:     p.Bindings.FrameBindings(i),
			Geometry:     p.Geometry,
			GeometrySize: p.GeometrySize,
		})
		if err != nil {
			for _, made := range frames {
				made.FreeResources()
			}
			return errors.Wrapf(err, "failed to create frame %d", i)
		}
		frames = append(frames, f)
	}

	e.frames = frames
	e.imagesInFlight = make([]*frame.Resource, len(e.chain.Images))
	e.current = 0
	return nil
}

func (e *Engine) freeFrames() {
	for _, f := range e.frames {
		if err := f.FreeResources(); err != nil {
			logging.Logger().Warn("failed to free frame resources", "error", err)
		}
	}
	e.frames = nil
	e.imagesInFlight = nil
}

// Destroy waits for the device and releases every frame and the swapchain.
func (e *Engine) Destroy() {
	e.freeFrames()
	if err := e.params.Device.WaitIdle(); err != nil {
		logging.Logger().Warn("failed to wait for device idle", "error", err)
	}
	e.chain.Destroy(e.params.Device)
	logging.Logger().Info("renderer destroyed", "frames", e.frameCount)
}
