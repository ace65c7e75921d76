package frame

import (
	"reflect"
	"testing"
	"time"

	"github.com/pkg/errors"

	"frame-engine/gpu"
	"frame-engine/internal/gputest"
)

type testChain struct {
	handle gpu.Swapchain
	images []gpu.Image
	extent gpu.Extent2D
}

func (c *testChain) Swapchain() gpu.Swapchain { return c.handle }
func (c *testChain) PresentImage(i uint32) gpu.Image { return c.images[i] }
func (c *testChain) PresentExtent() gpu.Extent2D { return c.extent }

type fixture struct {
	rec   *gputest.Recorder
	dev   *gputest.Device
	alloc *gputest.Allocator
	queue *gputest.Queue
	chain *testChain
	binds Bindings
}

func testBindings() Bindings {
	var b Bindings
	b.Sets[ScopeFrame] = 1001
	b.Sets[ScopeDrawCall] = 1002
	for k := PipelineKind(0); k < PipelineCount; k++ {
		b.Layouts[k] = gpu.PipelineLayout(2000 + k)
		b.Pipelines[k] = gpu.Pipeline(3000 + k)
	}
	return b
}

func newFixture(t *testing.T, extent gpu.Extent2D) (*fixture, *Resource) {
	t.Helper()
	rec := gputest.NewRecorder()
	f := &fixture{
		rec:   rec,
		dev:   gputest.NewDevice(rec),
		alloc: gputest.NewAllocator(rec),
		queue: gputest.NewQueue(rec),
		chain: &testChain{handle: 77, images: []gpu.Image{501, 502, 503}, extent: extent},
		binds: testBindings(),
	}
	r, err := New(Params{
		Device:       f.dev,
		Allocator:    f.alloc,
		Queue:        f.queue,
		Extent:       extent,
		Bindings:     f.binds,
		Geometry:     900,
		GeometrySize: 4096,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f, r
}

func TestNewCreatesResources(t *testing.T) {
	extent := gpu.Extent2D{Width: 800, Height: 600}
	f, r := newFixture(t, extent)

	if r.State() != StateIdle {
		t.Errorf("expected Idle, got %v", r.State())
	}
	if f.rec.Live("Semaphore") != 2 || f.rec.Live("Fence") != 1 || f.rec.Live("CommandBuffer") != 1 {
		t.Errorf("expected 2 semaphores, 1 fence and 1 command buffer, got %d %d %d",
			f.rec.Live("Semaphore"), f.rec.Live("Fence"), f.rec.Live("CommandBuffer"))
	}

	info, ok := f.alloc.Images[r.Color.Image]
	if !ok {
		t.Fatalf("color image not allocated")
	}
	if info.Format != gpu.FormatR8G8B8A8Unorm || info.Extent != extent {
		t.Errorf("unexpected color image %+v", info)
	}
	if info.Usage != gpu.ImageUsageStorage|gpu.ImageUsageTransferSrc {
		t.Errorf("color usage: expected storage and transfer src, got %#x", info.Usage)
	}
	if r.Color.View == 0 {
		t.Errorf("color view not created")
	}

	if size := f.alloc.Buffers[r.Depth.Buffer]; size != 800*600*4 || r.Depth.Size != size {
		t.Errorf("depth buffer size: expected %d, got %d (%d)", 800*600*4, size, r.Depth.Size)
	}
}

func TestNewWritesBindings(t *testing.T) {
	f, r := newFixture(t, gpu.Extent2D{Width: 64, Height: 32})

	if f.rec.Count("UpdateDescriptorSets") != 1 {
		t.Errorf("expected a single descriptor update call, got %d", f.rec.Count("UpdateDescriptorSets"))
	}
	if len(f.dev.Writes) != 3 {
		t.Fatalf("expected 3 writes, got %d", len(f.dev.Writes))
	}

	color, depth, geometry := f.dev.Writes[0], f.dev.Writes[1], f.dev.Writes[2]
	if color.Set != 1001 || color.Binding != 0 || color.Type != gpu.DescriptorStorageImage ||
		color.ImageView != r.Color.View || color.ImageLayout != gpu.LayoutGeneral {
		t.Errorf("unexpected color write %+v", color)
	}
	if depth.Set != 1001 || depth.Binding != 1 || depth.Type != gpu.DescriptorStorageBuffer ||
		depth.Buffer != r.Depth.Buffer || depth.Range != r.Depth.Size {
		t.Errorf("unexpected depth write %+v", depth)
	}
	if geometry.Set != 1002 || geometry.Binding != 0 || geometry.Type != gpu.DescriptorStorageBuffer ||
		geometry.Buffer != 900 || geometry.Range != 4096 {
		t.Errorf("unexpected geometry write %+v", geometry)
	}
}

func TestNewRejectsEmptyExtent(t *testing.T) {
	rec := gputest.NewRecorder()
	_, err := New(Params{
		Device:    gputest.NewDevice(rec),
		Allocator: gputest.NewAllocator(rec),
		Queue:     gputest.NewQueue(rec),
		Extent:    gpu.Extent2D{Width: 0, Height: 600},
	})
	if err == nil {
		t.Errorf("expected an error for an empty extent")
	}
	if len(rec.Calls) != 0 {
		t.Errorf("expected no device calls, got %v", rec.Calls)
	}
}

func TestNewReleasesOnFailure(t *testing.T) {
	rec := gputest.NewRecorder()
	alloc := gputest.NewAllocator(rec)
	alloc.CreateBufferErr = gpu.ErrOutOfDeviceMemory

	_, err := New(Params{
		Device:    gputest.NewDevice(rec),
		Allocator: alloc,
		Queue:     gputest.NewQueue(rec),
		Extent:    gpu.Extent2D{Width: 16, Height: 16},
	})
	if !errors.Is(err, gpu.ErrOutOfDeviceMemory) {
		t.Fatalf("expected ErrOutOfDeviceMemory, got %v", err)
	}
	if rec.Live("") != 0 {
		t.Errorf("expected everything released, %d handles live", rec.Live(""))
	}
}

func TestRecordOrder(t *testing.T) {
	extent := gpu.Extent2D{Width: 800, Height: 600}
	f, r := newFixture(t, extent)

	if err := r.Record(f.chain, 1); err != nil {
		t.Fatalf("Record: %v", err)
	}
	cmd := f.dev.Commands[0]

	expected := []string{
		"Begin",
		"ImageBarrier",
		"BindPipeline", "BindDescriptorSet", "Dispatch",
		"MemoryBarrier",
		"BindPipeline", "BindDescriptorSet", "BindDescriptorSet", "Dispatch",
		"BindPipeline", "BindDescriptorSet", "BindDescriptorSet", "Dispatch",
		"MemoryBarrier",
		"BindPipeline", "BindDescriptorSet", "BindDescriptorSet", "Dispatch",
		"BindPipeline", "BindDescriptorSet", "BindDescriptorSet", "Dispatch",
		"ImageBarrier", "ImageBarrier",
		"BlitImage",
		"ImageBarrier",
		"End",
	}
	if got := cmd.Names(); !reflect.DeepEqual(got, expected) {
		t.Fatalf("command order:\nexpected %v\ngot      %v", expected, got)
	}
	if cmd.Resets != 1 {
		t.Errorf("expected one reset, got %d", cmd.Resets)
	}

	var pipelines []gpu.Pipeline
	var dispatches [][3]uint32
	for _, op := range cmd.Ops {
		switch op.Name {
		case "BindPipeline":
			pipelines = append(pipelines, op.Pipe)
		case "Dispatch":
			dispatches = append(dispatches, op.Groups)
		}
	}

	wantPipelines := []gpu.Pipeline{
		f.binds.Pipelines[PipelineClear],
		f.binds.Pipelines[PipelineRasterizeBigDepth],
		f.binds.Pipelines[PipelineRasterizeSmallDepth],
		f.binds.Pipelines[PipelineRasterizeBigColor],
		f.binds.Pipelines[PipelineRasterizeSmallColor],
	}
	if !reflect.DeepEqual(pipelines, wantPipelines) {
		t.Errorf("pipelines: expected %v, got %v", wantPipelines, pipelines)
	}

	wantDispatches := [][3]uint32{
		{7500, 1, 1},
		{100, 75, 1},
		{1, 1, 1},
		{100, 75, 1},
		{1, 1, 1},
	}
	if !reflect.DeepEqual(dispatches, wantDispatches) {
		t.Errorf("dispatches: expected %v, got %v", wantDispatches, dispatches)
	}
}

func TestRecordBindsScopes(t *testing.T) {
	f, r := newFixture(t, gpu.Extent2D{Width: 16, Height: 16})
	if err := r.Record(f.chain, 0); err != nil {
		t.Fatalf("Record: %v", err)
	}

	var current gpu.Pipeline
	layoutOf := map[gpu.Pipeline]gpu.PipelineLayout{}
	for k := PipelineKind(0); k < PipelineCount; k++ {
		layoutOf[f.binds.Pipelines[k]] = f.binds.Layouts[k]
	}

	clearBinds := 0
	for _, op := range f.dev.Commands[0].Ops {
		switch op.Name {
		case "BindPipeline":
			current = op.Pipe
		case "BindDescriptorSet":
			if op.Layout != layoutOf[current] {
				t.Errorf("set bound with layout %d while pipeline %d is bound", op.Layout, current)
			}
			want := f.binds.Sets[ScopeFrame]
			if op.SetSlot == 1 {
				want = f.binds.Sets[ScopeDrawCall]
			}
			if op.Set != want {
				t.Errorf("set %d: expected %d, got %d", op.SetSlot, want, op.Set)
			}
			if current == f.binds.Pipelines[PipelineClear] {
				clearBinds++
			}
		}
	}
	if clearBinds != 1 {
		t.Errorf("clear pass should bind only the frame scope, bound %d sets", clearBinds)
	}
}

func TestRecordTransitionsAndCopy(t *testing.T) {
	extent := gpu.Extent2D{Width: 320, Height: 240}
	f, r := newFixture(t, extent)
	if err := r.Record(f.chain, 2); err != nil {
		t.Fatalf("Record: %v", err)
	}
	target := f.chain.images[2]

	var barriers []gpu.ImageBarrier
	var blit gputest.Op
	for _, op := range f.dev.Commands[0].Ops {
		switch op.Name {
		case "ImageBarrier":
			barriers = append(barriers, op.Image)
		case "BlitImage":
			blit = op
		}
	}
	if len(barriers) != 4 {
		t.Fatalf("expected 4 image barriers, got %d", len(barriers))
	}

	type transition struct {
		image    gpu.Image
		old, new gpu.ImageLayout
	}
	want := []transition{
		{r.Color.Image, gpu.LayoutUndefined, gpu.LayoutGeneral},
		{r.Color.Image, gpu.LayoutGeneral, gpu.LayoutTransferSrc},
		{target, gpu.LayoutUndefined, gpu.LayoutTransferDst},
		{target, gpu.LayoutTransferDst, gpu.LayoutPresentSrc},
	}
	for i, b := range barriers {
		got := transition{b.Image, b.OldLayout, b.NewLayout}
		if got != want[i] {
			t.Errorf("barrier %d: expected %+v, got %+v", i, want[i], got)
		}
	}
	if barriers[0].DstStage != gpu.StageComputeShader || barriers[0].DstAccess&gpu.AccessShaderWrite == 0 {
		t.Errorf("first transition must make the image writable by compute, got %+v", barriers[0])
	}

	if blit.Src != r.Color.Image || blit.Dst != target {
		t.Errorf("blit: expected %d -> %d, got %d -> %d", r.Color.Image, target, blit.Src, blit.Dst)
	}
	if blit.SrcExtent != extent || blit.DstExtent != extent {
		t.Errorf("blit extents: expected %v, got %v and %v", extent, blit.SrcExtent, blit.DstExtent)
	}
}

func TestRecordComputeBarriers(t *testing.T) {
	f, r := newFixture(t, gpu.Extent2D{Width: 8, Height: 8})
	if err := r.Record(f.chain, 0); err != nil {
		t.Fatalf("Record: %v", err)
	}
	for _, op := range f.dev.Commands[0].Ops {
		if op.Name != "MemoryBarrier" {
			continue
		}
		b := op.Memory
		if b.SrcStage != gpu.StageComputeShader || b.DstStage != gpu.StageComputeShader {
			t.Errorf("expected compute to compute barrier, got %v -> %v", b.SrcStage, b.DstStage)
		}
		if b.SrcAccess&gpu.AccessShaderWrite == 0 || b.DstAccess&gpu.AccessShaderRead == 0 {
			t.Errorf("barrier must order shader writes before reads, got %+v", b)
		}
	}
}

func TestWorkgroupCounts(t *testing.T) {
	tests := []struct {
		extent gpu.Extent2D
		clear  uint32
		x, y   uint32
	}{
		{gpu.Extent2D{Width: 800, Height: 600}, 7500, 100, 75},
		{gpu.Extent2D{Width: 1, Height: 1}, 1, 1, 1},
		{gpu.Extent2D{Width: 9, Height: 7}, 1, 2, 1},
		{gpu.Extent2D{Width: 1920, Height: 1080}, 32400, 240, 135},
		{gpu.Extent2D{Width: 1366, Height: 768}, 16392, 171, 96},
	}

	for _, tt := range tests {
		if got := ClearGroups(tt.extent); got != tt.clear {
			t.Errorf("ClearGroups(%v): expected %d, got %d", tt.extent, tt.clear, got)
		}
		x, y := RasterGroups(tt.extent)
		if x != tt.x || y != tt.y {
			t.Errorf("RasterGroups(%v): expected %dx%d, got %dx%d", tt.extent, tt.x, tt.y, x, y)
		}
	}
}

func TestFrameLifecycle(t *testing.T) {
	f, r := newFixture(t, gpu.Extent2D{Width: 64, Height: 64})

	if err := r.Submit(); !errors.Is(err, ErrNotRecording) {
		t.Errorf("Submit before Record: expected ErrNotRecording, got %v", err)
	}
	if err := r.Present(f.chain); !errors.Is(err, ErrNotSubmitted) {
		t.Errorf("Present before Submit: expected ErrNotSubmitted, got %v", err)
	}

	if err := r.Record(f.chain, 1); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if r.State() != StateRecording {
		t.Errorf("expected Recording, got %v", r.State())
	}
	if err := r.Record(f.chain, 1); !errors.Is(err, ErrNotIdle) {
		t.Errorf("second Record: expected ErrNotIdle, got %v", err)
	}

	if err := r.Submit(); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if r.State() != StateSubmitted {
		t.Errorf("expected Submitted, got %v", r.State())
	}
	sub := f.queue.Submissions[0]
	if sub.Wait != r.ImageAcquired || sub.Signal != r.RenderFinished || sub.Fence != r.InFlight {
		t.Errorf("unexpected submission %+v", sub)
	}
	if sub.WaitStage != gpu.StageTransfer {
		t.Errorf("wait stage: expected Transfer, got %v", sub.WaitStage)
	}
	if f.rec.Index("ResetFence") > f.rec.Index("Submit") {
		t.Errorf("fence must be reset before submission: %v", f.rec.Calls)
	}

	if err := r.Present(f.chain); err != nil {
		t.Fatalf("Present: %v", err)
	}
	if r.State() != StatePresented {
		t.Errorf("expected Presented, got %v", r.State())
	}
	p := f.queue.Presentations[0]
	if p.Swapchain != 77 || p.ImageIndex != 1 || p.Wait != r.RenderFinished {
		t.Errorf("unexpected presentation %+v", p)
	}

	if err := r.Wait(time.Second); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if r.State() != StateIdle {
		t.Errorf("expected Idle, got %v", r.State())
	}
}

func TestRecordEndFailureReturnsToIdle(t *testing.T) {
	f, r := newFixture(t, gpu.Extent2D{Width: 8, Height: 8})
	r.Cmd.(*gputest.CommandBuffer).EndErr = gputest.ErrInjected

	if err := r.Record(f.chain, 0); !errors.Is(err, gputest.ErrInjected) {
		t.Fatalf("expected ErrInjected, got %v", err)
	}
	if r.State() != StateIdle {
		t.Errorf("expected Idle after a failed End, got %v", r.State())
	}
	if err := r.Submit(); !errors.Is(err, ErrNotRecording) {
		t.Errorf("Submit after failed Record: expected ErrNotRecording, got %v", err)
	}

	r.Cmd.(*gputest.CommandBuffer).EndErr = nil
	if err := r.Record(f.chain, 0); err != nil {
		t.Fatalf("Record retry: %v", err)
	}
	if r.State() != StateRecording {
		t.Errorf("expected Recording, got %v", r.State())
	}
}

func TestFenceUnsignaledAfterFailedSubmit(t *testing.T) {
	f, r := newFixture(t, gpu.Extent2D{Width: 8, Height: 8})
	f.queue.SubmitErr = gputest.ErrInjected

	if err := r.Record(f.chain, 0); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := r.Submit(); !errors.Is(err, gputest.ErrInjected) {
		t.Fatalf("expected ErrInjected, got %v", err)
	}
	if err := r.Wait(time.Millisecond); !errors.Is(err, gpu.ErrTimeout) {
		t.Errorf("reset fence without a submission: expected ErrTimeout, got %v", err)
	}
}

func TestPresentPassesRebuildErrors(t *testing.T) {
	for _, want := range []error{gpu.ErrOutOfDate, gpu.ErrSuboptimal} {
		f, r := newFixture(t, gpu.Extent2D{Width: 8, Height: 8})
		f.queue.PresentErrs = []error{want}

		if err := r.Record(f.chain, 0); err != nil {
			t.Fatalf("Record: %v", err)
		}
		if err := r.Submit(); err != nil {
			t.Fatalf("Submit: %v", err)
		}
		if err := r.Present(f.chain); err != want {
			t.Errorf("expected %v unchanged, got %v", want, err)
		}
	}
}

func TestWaitFailure(t *testing.T) {
	f, r := newFixture(t, gpu.Extent2D{Width: 8, Height: 8})
	f.dev.FenceErr = gpu.ErrTimeout
	if err := r.Wait(time.Millisecond); !errors.Is(err, gpu.ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}

func TestFreeResourcesOrder(t *testing.T) {
	f, r := newFixture(t, gpu.Extent2D{Width: 32, Height: 32})
	f.rec.Reset()

	if err := r.FreeResources(); err != nil {
		t.Fatalf("FreeResources: %v", err)
	}

	names := f.rec.Names()
	if names[0] != "QueueWaitIdle" {
		t.Errorf("expected queue idle wait first, got %v", names)
	}

	expected := []string{
		"QueueWaitIdle",
		"DestroyBuffer", "DestroyImage",
		"DestroyImageView", "DestroyCommandBuffer", "DestroyFence", "DestroySemaphore", "DestroySemaphore",
	}
	if !reflect.DeepEqual(names, expected) {
		t.Errorf("release order:\nexpected %v\ngot      %v", expected, names)
	}
	if f.rec.Live("") != 0 {
		t.Errorf("expected everything released, %d handles live", f.rec.Live(""))
	}

	f.rec.Reset()
	if err := r.FreeResources(); err != nil {
		t.Fatalf("second FreeResources: %v", err)
	}
	if !reflect.DeepEqual(f.rec.Names(), []string{"QueueWaitIdle"}) {
		t.Errorf("second FreeResources released again: %v", f.rec.Calls)
	}
}
