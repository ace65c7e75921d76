// Package swapchain negotiates a presentable image chain with a surface and
// keeps it in step with the window.
package swapchain

import (
	"fmt"

	"github.com/pkg/errors"

	"frame-engine/deletion"
	"frame-engine/gpu"
	"frame-engine/logging"
)

var ErrIncompleteViews = errors.New("failed to create a view for every swapchain image")

type State int

const (
	StateUninitialized State = iota
	StateBuilt
	StateOutdated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateBuilt:
		return "Built"
	case StateOutdated:
		return "Outdated"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Window reports the current drawable size in pixels.
type Window interface {
	FramebufferSize() (width, height int)
}

// Manager owns the chain and the views onto its images. The images
// themselves belong to the chain and go away with it.
type Manager struct {
	Format      gpu.SurfaceFormat
	PresentMode gpu.PresentMode
	Extent      gpu.Extent2D
	// ImageCount is the number of images the chain actually holds, which
	// may exceed the count requested from the device.
	ImageCount uint32
	Handle     gpu.Swapchain
	Images     []gpu.Image
	ImageViews []gpu.ImageView

	state    State
	outdated bool
	deletion deletion.Queue[gpu.Device]
}

func (m *Manager) State() State {
	return m.state
}

// Outdated reports whether the chain must be rebuilt before its next use.
func (m *Manager) Outdated() bool {
	return m.outdated
}

// MarkOutdated flags a built chain as unusable until Rebuild runs.
func (m *Manager) MarkOutdated() {
	m.outdated = true
	if m.state == StateBuilt {
		m.state = StateOutdated
	}
}

func (m *Manager) Swapchain() gpu.Swapchain {
	return m.Handle
}

func (m *Manager) PresentImage(i uint32) gpu.Image {
	return m.Images[i]
}

func (m *Manager) PresentExtent() gpu.Extent2D {
	return m.Extent
}

// Build negotiates and creates the chain and one view per image. On
// failure the manager keeps no chain, except for ErrIncompleteViews where
// the chain and the views that were created stay until Destroy.
func (m *Manager) Build(dev gpu.Device, pd gpu.PhysicalDevice, surface gpu.Surface, width, height uint32) error {
	restore := logging.Suppress()
	err := m.build(dev, pd, surface, width, height)
	restore()
	if err != nil {
		return err
	}

	logging.Logger().Info("swapchain built",
		"extent", m.Extent,
		"format", m.Format,
		"presentMode", m.PresentMode,
		"images", m.ImageCount,
	)
	return nil
}

func (m *Manager) build(dev gpu.Device, pd gpu.PhysicalDevice, surface gpu.Surface, width, height uint32) error {
	log := logging.Logger()

	support, err := QuerySupport(pd, surface)
	if err != nil {
		log.Error("failed to query swapchain support", "error", err)
		return err
	}

	format := ChooseFormat(support.Formats)
	presentMode := ChoosePresentMode(support.PresentModes)
	extent := ChooseExtent(width, height, support.Capabilities)
	requested := ImageCount(support.Capabilities)

	handle, err := dev.CreateSwapchain(gpu.SwapchainCreateInfo{
		Surface:          surface,
		MinImageCount:    requested,
		Format:           format,
		Extent:           extent,
		ImageArrayLayers: 1,
		Usage:            gpu.ImageUsageColorAttachment | gpu.ImageUsageTransferDst,
		Transform:        support.Capabilities.CurrentTransform,
		CompositeAlpha:   gpu.CompositeAlphaOpaque,
		PresentMode:      presentMode,
		Clipped:          true,
	})
	if err != nil {
		err = errors.Wrap(err, "failed to create swapchain")
		log.Error("swapchain creation failed", "extent", extent, "format", format, "error", err)
		return err
	}

	images, err := dev.SwapchainImages(handle)
	if err != nil {
		dev.DestroySwapchain(handle)
		err = errors.Wrap(err, "failed to get swapchain images")
		log.Error("swapchain image query failed", "error", err)
		return err
	}

	m.deletion.Push(func(d gpu.Device) {
		d.DestroySwapchain(handle)
	})

	m.Handle = handle
	m.Format = format
	m.PresentMode = presentMode
	m.Extent = extent
	m.ImageCount = uint32(len(images))
	m.Images = images
	m.ImageViews = make([]gpu.ImageView, 0, len(images))

	for i, img := range images {
		view, err := dev.CreateImageView(img, format.Format)
		if err != nil {
			log.Error("failed to create swapchain image view", "image", i, "error", err)
			continue
		}
		m.deletion.Push(func(d gpu.Device) {
			d.DestroyImageView(view)
		})
		m.ImageViews = append(m.ImageViews, view)
	}

	if len(m.ImageViews) != len(m.Images) {
		m.state = StateOutdated
		m.outdated = true
		return errors.Wrapf(ErrIncompleteViews, "%d of %d views created", len(m.ImageViews), len(m.Images))
	}

	m.state = StateBuilt
	m.outdated = false
	log.Debug("swapchain images", "requested", requested, "created", m.ImageCount)
	return nil
}

// Destroy releases the views and the chain. The device must be idle.
// Calling it on an empty manager does nothing.
func (m *Manager) Destroy(dev gpu.Device) {
	if m.deletion.Len() == 0 && m.Handle == 0 {
		return
	}
	m.deletion.Drain(dev)
	m.Images = nil
	m.ImageViews = nil
	m.Handle = 0
	m.ImageCount = 0
	m.Format = gpu.SurfaceFormat{}
	m.PresentMode = 0
	m.Extent = gpu.Extent2D{}
	if m.state == StateBuilt {
		m.state = StateOutdated
	}
	logging.Logger().Info("swapchain destroyed")
}

// Rebuild waits for the device to go idle, destroys the current chain and
// builds a new one at the window's current size.
func (m *Manager) Rebuild(dev gpu.Device, pd gpu.PhysicalDevice, surface gpu.Surface, win Window) error {
	m.MarkOutdated()
	if err := dev.WaitIdle(); err != nil {
		return errors.Wrap(err, "failed to wait for device idle")
	}
	m.Destroy(dev)

	width, height := win.FramebufferSize()
	logging.Logger().Info("rebuilding swapchain", "width", width, "height", height)
	return m.Build(dev, pd, surface, uint32(max(width, 0)), uint32(max(height, 0)))
}
