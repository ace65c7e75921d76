package vulkan

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"frame-engine/deletion"
	"frame-engine/gpu"
	"frame-engine/logging"
)

// Window is the part of the window system the backend needs to bring up a
// presentable surface.
type Window interface {
	RequiredInstanceExtensions() []string
	CreateSurface(instance vk.Instance) (gpu.Surface, error)
}

// Context is everything between the window and the engine: instance,
// surface, selected GPU, logical device with its queue, and the allocator.
type Context struct {
	Instance  *Instance
	Surface   gpu.Surface
	Physical  *PhysicalDevice
	Device    *Device
	Allocator *Allocator

	deletionQueue deletion.Queue[*Context]
}

// NewContext brings the backend up on the given window. Init must have
// been called. On failure everything created so far is released.
func NewContext(window Window, config InstanceConfig) (*Context, error) {
	c := &Context{}
	if err := c.create(window, config); err != nil {
		c.Destroy()
		return nil, err
	}
	return c, nil
}

func (c *Context) create(window Window, config InstanceConfig) error {
	config.RequiredExtensions = append(config.RequiredExtensions, window.RequiredInstanceExtensions()...)

	instance, err := NewInstance(config)
	if err != nil {
		return err
	}
	c.Instance = instance
	c.deletionQueue.Push(func(c *Context) { c.Instance.Destroy() })

	surface, err := window.CreateSurface(instance.Handle)
	if err != nil {
		return err
	}
	c.Surface = surface
	c.deletionQueue.Push(func(c *Context) { DestroySurface(c.Instance, c.Surface) })

	physical, err := PickPhysicalDevice(instance, surface)
	if err != nil {
		return err
	}
	c.Physical = physical

	device, err := CreateLogicalDevice(physical, config.EnableValidation)
	if err != nil {
		return errors.Wrap(err, physical.Name())
	}
	c.Device = device
	c.deletionQueue.Push(func(c *Context) { c.Device.Destroy() })

	c.Allocator = NewAllocator(device)

	logging.Logger().Info("vulkan context ready",
		"gpu", physical.Name(),
		"type", physical.DeviceType(),
		"queueFamily", physical.QueueFamily,
	)
	return nil
}

// Queue returns the device queue used for both compute and present.
func (c *Context) Queue() *Queue {
	return c.Device.Queue
}

// Destroy waits for the device and releases the context in reverse
// creation order. Objects created on the device must be gone already.
func (c *Context) Destroy() {
	if c.Device != nil {
		if err := c.Device.WaitIdle(); err != nil {
			logging.Logger().Warn("device wait failed during teardown", "error", err)
		}
	}
	c.deletionQueue.Drain(c)
}
