// Package vktarget defines the presentation Target contract (spec §4.5):
// an abstract surface wrapping acquire/present plus frame-pacing feedback,
// so the same Renderer drives windowed, direct-to-display, and
// headless/mock backends. Grounded on the teacher's platform.go Platform
// interface (MemoryProperties/GraphicsQueueFamilyIndex/Surface/...,
// the direct ancestor of spec §9's "capability set" redesign) and
// gviegas-neo3/driver/vk's per-platform present_*.go files for the
// multi-backend, build-tag-gated shape; window-system backends
// themselves stay out of this module's scope per spec §1, so vktarget.Mock
// is the only concrete backend in the default build (GlfwTarget sits
// behind the "glfw" build tag).
package vktarget

import (
	"time"

	vk "github.com/vulkan-go/vulkan"
)

// TimingPointKind is the phase a frame's timestamp is recorded for, per
// spec §4.5's mark_timing_point contract.
type TimingPointKind int

const (
	PointWake TimingPointKind = iota
	PointBegin
	PointSubmit
)

// FramePacing is calc_frame_pacing's return value (spec §4.5): the next
// frame's id and schedule, derived from vblank history.
type FramePacing struct {
	ID                 int64
	WakeNs             int64
	DesiredPresentNs    int64
	SlopNs             int64
	PredictedDisplayNs int64
}

// Target is the capability set spec §9 DESIGN NOTES calls for in place of
// a C function-pointer vtable: concrete window-system backends are
// external collaborators that satisfy this interface.
type Target interface {
	// InitPreVulkan chooses a surface/display and creates an OS-level
	// surface, before a Vulkan device exists.
	InitPreVulkan() error

	// InitPostVulkan creates swapchain images and picks present mode and
	// format, once Vulkan is initialized. prefW/prefH are hints, not
	// guarantees.
	InitPostVulkan(prefW, prefH uint32) error

	// CheckReady reports whether CreateImages may proceed (the window
	// might be hidden or unsized).
	CheckReady() bool

	// CreateImages (re)creates the target's image set.
	CreateImages(width, height uint32, format vk.Format, colorSpace vk.ColorSpace, usage vk.ImageUsageFlags, presentMode vk.PresentMode) error

	// HasImages reports whether Acquire/Present may be called.
	HasImages() bool

	// Acquire blocks briefly and returns the next image index, signaling
	// semaphore when the image is ready.
	Acquire(semaphore vk.Semaphore) (imageIndex int, err error)

	// Present submits a queue-present for imageIndex, having waited on
	// waitSemaphore. desiredPresentNs/slopNs steer the present timing
	// where the backend supports it (e.g. EXT_display_control).
	Present(queue vk.Queue, imageIndex int, waitSemaphore vk.Semaphore, desiredPresentNs, slopNs int64) error

	// CalcFramePacing computes the next frame's schedule from this
	// target's vblank history.
	CalcFramePacing() FramePacing

	// MarkTimingPoint records a phase timestamp for pacing feedback.
	MarkTimingPoint(kind TimingPointKind, id int64, whenNs int64)

	// UpdateTimings absorbs any late present/vblank info asynchronously.
	UpdateTimings()

	// Image returns the underlying color image for imageIndex, so a
	// Renderer can build per-image framebuffers against it (spec §4.7's
	// distortion pass writes directly into the target's images).
	Image(imageIndex int) vk.Image

	// ImageView returns a full-image, color-aspect view of Image(imageIndex).
	ImageView(imageIndex int) vk.ImageView

	// Extent returns the target's current pixel dimensions.
	Extent() (width, height uint32)

	// Format returns the target's current image format.
	Format() vk.Format

	// ImageCount returns how many images CreateImages last produced.
	ImageCount() int
}

// nowNs is the Target implementations' clock source, overridable in tests.
var nowNs = func() int64 { return time.Now().UnixNano() }
