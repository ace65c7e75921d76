// Package core owns the glfw window the engine presents into.
package core

import (
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"frame-engine/gpu"
)

func init() {
	runtime.LockOSThread()
}

type Window struct {
	Handle *glfw.Window
	Title  string

	resized atomic.Bool
}

type WindowConfig struct {
	Width      int
	Height     int
	Title      string
	Resizable  bool
	Fullscreen bool
}

func DefaultWindowConfig() WindowConfig {
	return WindowConfig{
		Width:     1280,
		Height:    720,
		Title:     "Frame Engine",
		Resizable: true,
	}
}

// NewWindow initializes glfw and opens a window without a client API so a
// Vulkan surface can be created on it.
func NewWindow(config WindowConfig) (*Window, error) {
	if err := glfw.Init(); err != nil {
		return nil, errors.Wrap(err, "failed to initialize GLFW")
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return nil, errors.New("GLFW reports no Vulkan support")
	}

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, boolToInt(config.Resizable))

	var monitor *glfw.Monitor
	if config.Fullscreen {
		monitor = glfw.GetPrimaryMonitor()
	}

	handle, err := glfw.CreateWindow(config.Width, config.Height, config.Title, monitor, nil)
	if err != nil {
		glfw.Terminate()
		return nil, errors.Wrap(err, "failed to create window")
	}

	window := &Window{
		Handle: handle,
		Title:  config.Title,
	}
	handle.SetFramebufferSizeCallback(func(_ *glfw.Window, _, _ int) {
		window.resized.Store(true)
	})

	return window, nil
}

// VulkanProcAddr is the loader entry point glfw resolved for Vulkan.
func VulkanProcAddr() unsafe.Pointer {
	return glfw.GetVulkanGetInstanceProcAddress()
}

func (w *Window) ShouldClose() bool {
	return w.Handle.ShouldClose()
}

func (w *Window) PollEvents() {
	glfw.PollEvents()
}

// WaitEvents blocks until at least one event arrives.
func (w *Window) WaitEvents() {
	glfw.WaitEvents()
}

func (w *Window) FramebufferSize() (width, height int) {
	return w.Handle.GetFramebufferSize()
}

// TakeResized reports whether the framebuffer changed size since the last
// call and clears the flag.
func (w *Window) TakeResized() bool {
	return w.resized.Swap(false)
}

func (w *Window) RequiredInstanceExtensions() []string {
	return w.Handle.GetRequiredInstanceExtensions()
}

func (w *Window) CreateSurface(instance vk.Instance) (gpu.Surface, error) {
	surface, err := w.Handle.CreateWindowSurface(instance, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to create window surface")
	}
	return gpu.Surface(surface), nil
}

func (w *Window) SetTitle(title string) {
	w.Handle.SetTitle(title)
	w.Title = title
}

func (w *Window) IsKeyPressed(key glfw.Key) bool {
	return w.Handle.GetKey(key) == glfw.Press
}

func (w *Window) Close() {
	w.Handle.SetShouldClose(true)
}

func (w *Window) Destroy() {
	w.Handle.Destroy()
	glfw.Terminate()
}

func boolToInt(b bool) int {
	if b {
		return glfw.True
	}
	return glfw.False
}
