package vulkan

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"frame-engine/gpu"
)

func TestHandlesUniqueAcrossKinds(t *testing.T) {
	var fences handles[vk.Fence]
	var views handles[vk.ImageView]
	var fence vk.Fence
	var view vk.ImageView

	a := fences.add(fence)
	b := views.add(view)
	c := fences.add(fence)
	if a == 0 || b == 0 || c == 0 {
		t.Fatalf("null id handed out: %d %d %d", a, b, c)
	}
	if a == b || b == c || a == c {
		t.Errorf("ids collide: %d %d %d", a, b, c)
	}
	if fences.len() != 2 || views.len() != 1 {
		t.Errorf("lens = %d/%d, want 2/1", fences.len(), views.len())
	}

	if _, ok := fences.remove(a); !ok {
		t.Errorf("remove(%d) missed", a)
	}
	if _, ok := fences.remove(a); ok {
		t.Errorf("second remove(%d) found an entry", a)
	}
	if _, ok := fences.remove(b); ok {
		t.Errorf("view id %d removed from fence table", b)
	}
	if fences.len() != 1 {
		t.Errorf("len after remove = %d, want 1", fences.len())
	}
}

func TestHandlesGet(t *testing.T) {
	var ids handles[string]
	id := ids.add("color")
	if got := ids.get(id); got != "color" {
		t.Errorf("get = %q, want color", got)
	}
	if got := ids.get(id + 1000); got != "" {
		t.Errorf("unknown id returned %q", got)
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		res  vk.Result
		want error
	}{
		{vk.Suboptimal, gpu.ErrSuboptimal},
		{vk.ErrorOutOfDate, gpu.ErrOutOfDate},
		{vk.ErrorSurfaceLost, gpu.ErrSurfaceLost},
		{vk.ErrorDeviceLost, gpu.ErrDeviceLost},
		{vk.Timeout, gpu.ErrTimeout},
		{vk.ErrorOutOfHostMemory, gpu.ErrOutOfHostMemory},
		{vk.ErrorOutOfDeviceMemory, gpu.ErrOutOfDeviceMemory},
	}
	for _, tt := range tests {
		err := check(tt.res, "acquire %d", 3)
		if !errors.Is(err, tt.want) {
			t.Errorf("check(%d) = %v, want %v", tt.res, err, tt.want)
		}
	}

	if err := check(vk.Success, "ok"); err != nil {
		t.Errorf("check(Success) = %v", err)
	}

	err := check(vk.ErrorInitializationFailed, "create instance")
	if err == nil {
		t.Fatal("check(ErrorInitializationFailed) = nil")
	}
	if gpu.NeedsRebuild(err) {
		t.Errorf("initialization failure asks for a rebuild: %v", err)
	}
}

func TestTimeoutNanos(t *testing.T) {
	if got := timeoutNanos(gpu.NoTimeout); got != vk.MaxUint64 {
		t.Errorf("NoTimeout = %d", got)
	}
	if got := timeoutNanos(-time.Second); got != vk.MaxUint64 {
		t.Errorf("negative timeout = %d", got)
	}
	if got := timeoutNanos(time.Second); got != 1e9 {
		t.Errorf("1s = %d ns", got)
	}
	if got := timeoutNanos(0); got != 0 {
		t.Errorf("0 = %d ns", got)
	}
}

func TestTerminated(t *testing.T) {
	got := terminated([]string{"VK_KHR_surface", "VK_KHR_swapchain\x00", ""})
	want := []string{"VK_KHR_surface\x00", "VK_KHR_swapchain\x00", "\x00"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("terminated[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestExtentConversion(t *testing.T) {
	e := gpu.Extent2D{Width: 640, Height: 480}
	if got := extent2D(vkExtent2D(e)); got != e {
		t.Errorf("round trip = %v, want %v", got, e)
	}
}

func TestBool32(t *testing.T) {
	if got := bool32(true); got != vk.Bool32(vk.True) {
		t.Errorf("bool32(true) = %d", got)
	}
	if got := bool32(false); got != vk.Bool32(vk.False) {
		t.Errorf("bool32(false) = %d", got)
	}
}
