package vktarget

import (
	"sync"

	"github.com/dieselvk/xrcompositor/vklib"
	vk "github.com/vulkan-go/vulkan"
)

// Mock is a headless Target backend: no OS surface, a fixed vblank
// period, and an always-ready image set. Used for tests and for running
// the compositor without a window system, per spec §4.5's "the same
// Renderer drives... headless/mock targets".
type Mock struct {
	mu sync.Mutex

	periodNs int64
	width, height uint32
	format   vk.Format
	images   bool
	ready    bool

	nextID     int64
	lastVblank int64

	// forceOutOfDate makes the next Present call return an
	// OutOfDate-equivalent error, for exercising spec §8 scenario 4
	// ("Outdated swapchain").
	forceOutOfDate bool
}

// NewMock returns a Mock target with a 1000/90 ms (90 Hz) vblank period,
// ready immediately.
func NewMock() *Mock {
	return &Mock{periodNs: int64(1e9 / 90), ready: true}
}

func (m *Mock) InitPreVulkan() error { return nil }

func (m *Mock) InitPostVulkan(prefW, prefH uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.width, m.height = prefW, prefH
	m.format = vk.FormatB8g8r8a8Srgb
	return nil
}

func (m *Mock) CheckReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

// SetReady lets tests simulate the window being hidden/shown.
func (m *Mock) SetReady(ready bool) {
	m.mu.Lock()
	m.ready = ready
	m.mu.Unlock()
}

func (m *Mock) CreateImages(width, height uint32, format vk.Format, _ vk.ColorSpace, _ vk.ImageUsageFlags, _ vk.PresentMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return vklib.NewError(vklib.KindTargetLost, "target not ready for image creation")
	}
	m.width, m.height, m.format = width, height, format
	m.images = true
	return nil
}

func (m *Mock) HasImages() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.images
}

func (m *Mock) Acquire(semaphore vk.Semaphore) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.images {
		return -1, vklib.NewError(vklib.KindTargetLost, "no images")
	}
	return 0, nil
}

// ForceOutOfDate arranges for the next Present to fail as if the
// underlying surface went OutOfDate, per spec §8 scenario 4.
func (m *Mock) ForceOutOfDate() {
	m.mu.Lock()
	m.forceOutOfDate = true
	m.mu.Unlock()
}

func (m *Mock) Present(queue vk.Queue, imageIndex int, waitSemaphore vk.Semaphore, desiredPresentNs, slopNs int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forceOutOfDate {
		m.forceOutOfDate = false
		m.images = false
		return &vklib.Error{Kind: vklib.KindVulkan, Code: vk.ErrorOutOfDate}
	}
	return nil
}

func (m *Mock) CalcFramePacing() FramePacing {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	now := nowNs()
	return FramePacing{
		ID:                 m.nextID,
		WakeNs:             now,
		DesiredPresentNs:   now + m.periodNs,
		SlopNs:             m.periodNs / 10,
		PredictedDisplayNs: now + m.periodNs,
	}
}

func (m *Mock) MarkTimingPoint(kind TimingPointKind, id int64, whenNs int64) {}

func (m *Mock) UpdateTimings() {
	m.mu.Lock()
	m.lastVblank = nowNs()
	m.mu.Unlock()
}

// mockImageCount is the fixed image count Mock reports once CreateImages
// has run; Mock has no real swapchain so any small constant serves, per
// spec §4.5's headless-backend allowance.
const mockImageCount = 3

// Image, ImageView, Extent, Format, and ImageCount let a Renderer build
// per-image framebuffers against this target without a real Vulkan
// swapchain backing it: Mock is headless, so Image/ImageView are always
// null handles and callers must treat a null ImageView as "no real
// framebuffer to build" rather than dereferencing it.
func (m *Mock) Image(imageIndex int) vk.Image { return vk.Image(vk.NullHandle) }

func (m *Mock) ImageView(imageIndex int) vk.ImageView { return vk.NullImageView }

func (m *Mock) Extent() (uint32, uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.width, m.height
}

func (m *Mock) Format() vk.Format {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.format
}

func (m *Mock) ImageCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.images {
		return 0
	}
	return mockImageCount
}

var _ Target = (*Mock)(nil)
