//go:build glfw

package vktarget

import (
	"fmt"
	"sync"

	"github.com/dieselvk/xrcompositor/vklib"
	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/vulkan-go/vulkan"
)

// GlfwTarget is a windowed Target backend built on glfw's Vulkan window
// surface support, grounded on the teacher's CoreDisplay
// (window *glfw.Window, GetVulkanSurface/GetSize) and Platform
// (InitPreVulkan-equivalent instance/surface bootstrap). Kept behind the
// "glfw" build tag and excluded from the default build: window-system
// backends are an explicit Non-goal of the compositor core itself, this
// file exists only as the one concrete wiring of the go-gl/glfw
// dependency the rest of the module never needs.
type GlfwTarget struct {
	mu sync.Mutex

	bundle *vklib.Bundle
	window *glfw.Window
	title  string

	surface vk.Surface
	width   uint32
	height  uint32

	swapchain vk.Swapchain
	images    []vk.Image
	format    vk.Format
	ready     bool
	hasImages bool

	periodNs int64
	nextID   int64
}

// NewGlfwTarget creates (but does not show) a glfw window sized w x h,
// mirroring the teacher's NewCoreDisplay taking an already-created window;
// here the window is created for the caller since Target owns the whole
// pre-Vulkan surface handshake (spec §4.5 InitPreVulkan).
func NewGlfwTarget(bundle *vklib.Bundle, title string, w, h int) (*GlfwTarget, error) {
	if err := glfw.Init(); err != nil {
		return nil, vklib.NewError(vklib.KindTargetLost, fmt.Sprintf("glfw.Init: %v", err))
	}
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	window, err := glfw.CreateWindow(w, h, title, nil, nil)
	if err != nil {
		return nil, vklib.NewError(vklib.KindTargetLost, fmt.Sprintf("glfw.CreateWindow: %v", err))
	}
	return &GlfwTarget{bundle: bundle, window: window, title: title, periodNs: int64(1e9 / 60)}, nil
}

// InitPreVulkan creates the window's Vulkan surface against the bundle's
// instance, matching CoreDisplay.GetVulkanSurface.
func (g *GlfwTarget) InitPreVulkan() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	surfPtr, err := g.window.CreateWindowSurface(g.bundle.Instance, nil)
	if err != nil {
		return vklib.NewError(vklib.KindTargetLost, fmt.Sprintf("CreateWindowSurface: %v", err))
	}
	g.surface = vk.SurfaceFromPointer(surfPtr)
	g.ready = true
	return nil
}

// InitPostVulkan records the preferred size; glfw reports the actual
// framebuffer size, which may differ on HiDPI displays (the teacher's
// CoreDisplay.GetSize already returns framebuffer pixels, not window
// units).
func (g *GlfwTarget) InitPostVulkan(prefW, prefH uint32) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	fbW, fbH := g.window.GetFramebufferSize()
	if fbW <= 0 || fbH <= 0 {
		g.width, g.height = prefW, prefH
	} else {
		g.width, g.height = uint32(fbW), uint32(fbH)
	}
	g.format = vk.FormatB8g8r8a8Srgb
	return nil
}

func (g *GlfwTarget) CheckReady() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ready && !g.window.ShouldClose()
}

// CreateImages records the negotiated format/size and sets hasImages. It
// creates no swapchain and no images: vkCreateSwapchainKHR is not called
// anywhere in this file, so g.swapchain and g.images stay empty.
func (g *GlfwTarget) CreateImages(width, height uint32, format vk.Format, _ vk.ColorSpace, _ vk.ImageUsageFlags, _ vk.PresentMode) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.ready {
		return vklib.NewError(vklib.KindTargetLost, "surface not ready for image creation")
	}
	g.width, g.height, g.format = width, height, format
	g.hasImages = true
	return nil
}

func (g *GlfwTarget) HasImages() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hasImages
}

// Acquire is a thin wrapper the caller is expected to pair with a real
// vkAcquireNextImageKHR once a vkswap.Native owns g.swapchain; left
// unimplemented beyond the ready/HasImages checks since wiring the actual
// acquire call requires the swapchain handle this reference target never
// creates itself.
func (g *GlfwTarget) Acquire(semaphore vk.Semaphore) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.hasImages {
		return -1, vklib.NewError(vklib.KindTargetLost, "no images")
	}
	return 0, nil
}

func (g *GlfwTarget) Present(queue vk.Queue, imageIndex int, waitSemaphore vk.Semaphore, desiredPresentNs, slopNs int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	glfw.PollEvents()
	if g.window.ShouldClose() {
		g.hasImages = false
		return &vklib.Error{Kind: vklib.KindVulkan, Code: vk.ErrorOutOfDate}
	}
	return nil
}

func (g *GlfwTarget) CalcFramePacing() FramePacing {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	now := nowNs()
	return FramePacing{
		ID:                 g.nextID,
		WakeNs:             now,
		DesiredPresentNs:   now + g.periodNs,
		SlopNs:             g.periodNs / 10,
		PredictedDisplayNs: now + g.periodNs,
	}
}

func (g *GlfwTarget) MarkTimingPoint(kind TimingPointKind, id int64, whenNs int64) {}

func (g *GlfwTarget) UpdateTimings() {}

// Image, ImageView, Extent, Format, and ImageCount are stubbed null/zero
// until a vkswap.Native is wired against g.swapchain (see Acquire's
// doc comment): this reference target negotiates format/size but never
// creates the swapchain's image views itself.
func (g *GlfwTarget) Image(imageIndex int) vk.Image { return vk.Image(vk.NullHandle) }

func (g *GlfwTarget) ImageView(imageIndex int) vk.ImageView { return vk.NullImageView }

func (g *GlfwTarget) Extent() (uint32, uint32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.width, g.height
}

func (g *GlfwTarget) Format() vk.Format {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.format
}

func (g *GlfwTarget) ImageCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.images)
}

// Destroy releases the glfw window. Not part of the Target interface (the
// teacher's own CoreDisplay has no destructor either, relying on process
// exit); exposed for callers that create short-lived windows in tests.
func (g *GlfwTarget) Destroy() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.window != nil {
		g.window.Destroy()
		g.window = nil
	}
}

var _ Target = (*GlfwTarget)(nil)
