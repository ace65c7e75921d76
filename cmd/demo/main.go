// Command demo rasterizes random triangles with compute shaders and
// presents them in a resizable window. The shaders are compiled from
// shaders/*.comp by go generate.
package main

//go:generate sh ../../shaders/build.sh

import (
	"flag"
	"log/slog"
	"math/rand/v2"
	"os"
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/pkg/errors"

	"frame-engine/core"
	"frame-engine/gpu"
	"frame-engine/logging"
	"frame-engine/renderer"
	"frame-engine/vulkan"
)

type options struct {
	width, height int
	shaderDir     string
	validation    bool
	frames        int
	triangles     int
	maxEdge       float64
	seed          uint64
	verbose       bool
}

func parseFlags() options {
	var o options
	flag.IntVar(&o.width, "width", 1280, "initial window width")
	flag.IntVar(&o.height, "height", 720, "initial window height")
	flag.StringVar(&o.shaderDir, "shaders", "shaders", "directory holding the compiled SPIR-V shaders")
	flag.BoolVar(&o.validation, "validation", false, "enable the Khronos validation layer")
	flag.IntVar(&o.frames, "frames", 2, "frames in flight")
	flag.IntVar(&o.triangles, "triangles", 1024, "number of random triangles")
	flag.Float64Var(&o.maxEdge, "max-edge", 0.4, "largest triangle edge in clip space units")
	flag.Uint64Var(&o.seed, "seed", 1, "geometry seed")
	flag.BoolVar(&o.verbose, "v", false, "log debug output")
	flag.Parse()
	return o
}

func main() {
	opts := parseFlags()

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logging.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := run(opts); err != nil {
		logging.Logger().Error("demo failed", "error", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	if opts.triangles < 1 {
		return errors.Errorf("need at least one triangle, got %d", opts.triangles)
	}

	shaders, err := renderer.DefaultShaderFiles(opts.shaderDir).Load()
	if err != nil {
		return err
	}

	windowConfig := core.DefaultWindowConfig()
	windowConfig.Width = opts.width
	windowConfig.Height = opts.height
	window, err := core.NewWindow(windowConfig)
	if err != nil {
		return err
	}
	defer window.Destroy()

	if err := vulkan.Init(core.VulkanProcAddr()); err != nil {
		return err
	}

	instanceConfig := vulkan.DefaultInstanceConfig()
	instanceConfig.AppName = windowConfig.Title
	instanceConfig.EnableValidation = opts.validation
	ctx, err := vulkan.NewContext(window, instanceConfig)
	if err != nil {
		return err
	}
	defer ctx.Destroy()

	tris := core.RandomTriangles(rand.New(rand.NewPCG(opts.seed, opts.seed)), opts.triangles, float32(opts.maxEdge))
	data := core.EncodeTriangles(tris)
	geometry, err := ctx.Allocator.CreateBuffer(uint64(len(data)), gpu.BufferUsageStorage|gpu.BufferUsageTransferDst)
	if err != nil {
		return errors.Wrap(err, "failed to create geometry buffer")
	}
	defer ctx.Allocator.DestroyBuffer(geometry)
	if err := ctx.Allocator.Upload(geometry, data); err != nil {
		return err
	}

	config := renderer.DefaultConfig()
	config.FramesInFlight = opts.frames
	bindings, err := vulkan.NewComputeBindings(ctx.Device, shaders, config.FramesInFlight)
	if err != nil {
		return err
	}
	defer bindings.Destroy()

	engine, err := renderer.New(config, renderer.Params{
		Device:         ctx.Device,
		PhysicalDevice: ctx.Physical,
		Queue:          ctx.Queue(),
		Allocator:      ctx.Allocator,
		Surface:        ctx.Surface,
		Window:         window,
		Bindings:       bindings,
		Geometry:       geometry,
		GeometrySize:   uint64(len(data)),
	})
	if err != nil {
		return err
	}
	defer engine.Destroy()

	return loop(window, engine, windowConfig.Title, len(tris))
}

func loop(window *core.Window, engine *renderer.Engine, title string, triangles int) error {
	stats := newFrameStats(time.Second, time.Now())
	for !window.ShouldClose() {
		window.PollEvents()
		closeOnEscape(window)
		if window.TakeResized() {
			engine.NotifyResized()
		}

		err := engine.DrawFrame()
		switch {
		case errors.Is(err, renderer.ErrWindowClosed):
			return nil
		case errors.Is(err, gpu.ErrTimeout):
			logging.Logger().Warn("frame timed out", "frame", engine.FrameCount())
			continue
		case err != nil:
			return err
		}

		if stats.tick(time.Now()) {
			window.SetTitle(stats.title(title, triangles))
			logging.Logger().Debug("frame rate",
				"fps", stats.fps,
				"frames", engine.FrameCount(),
				"rebuilds", engine.Rebuilds(),
			)
		}
	}

	logging.Logger().Info("exiting", "frames", engine.FrameCount(), "rebuilds", engine.Rebuilds())
	return nil
}

type keyWindow interface {
	IsKeyPressed(key glfw.Key) bool
	Close()
}

// closeOnEscape asks the window to close when Escape is held.
func closeOnEscape(w keyWindow) {
	if w.IsKeyPressed(glfw.KeyEscape) {
		w.Close()
	}
}
