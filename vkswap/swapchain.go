// Package vkswap implements the native and client swapchain halves of
// spec §4.4: a strip of images backed by exportable device memory on the
// native side, imported and given acquire/release command buffers on the
// client side, with the acquire/wait/release state machine and deferred
// garbage collection both sides share. Grounded on the teacher's
// swapchain.go (CoreSwapchain: extent/format/present-mode resolution,
// framebuffer-per-image loop) generalized from "the one on-screen
// swapchain" to spec §4.4's native/client split, and original_source
// comp_vk_swapchain.c / comp_vk_client.h for the export/import handle
// semantics and the acquire/wait/release machine.
package vkswap

import (
	"fmt"
	"sync"

	"github.com/dieselvk/xrcompositor/vklib"
	vk "github.com/vulkan-go/vulkan"
)

// UsageBits mirrors the xrt_swapchain_usage_bits the create_info spec
// §4.4 describes; a client may request several at once.
type UsageBits uint32

const (
	UsageColor UsageBits = 1 << iota
	UsageDepthStencil
	UsageTransferSrc
	UsageTransferDst
	UsageSampled
	UsageUnorderedAccess
	UsageInputAttachment
)

// CreateInfo is the xrt_swapchain_create_info spec §4.4 names.
type CreateInfo struct {
	Format      vk.Format
	Bits        UsageBits
	SampleCount uint32
	Width       uint32
	Height      uint32
	FaceCount   uint32 // 1 or 6
	ArraySize   uint32
	MipCount    uint32
	CreateFlags uint32
}

// vkUsageTable derives a vk.ImageUsageFlags from the requested usage bits,
// per spec §4.4's fixed table. SAMPLED is always added so the compositor
// can sample the image regardless of what the client asked for.
func vkUsageTable(bits UsageBits) vk.ImageUsageFlags {
	var usage vk.ImageUsageFlags
	if bits&UsageColor != 0 {
		usage |= vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit) | vk.ImageUsageFlags(vk.ImageUsageSampledBit)
	}
	if bits&UsageDepthStencil != 0 {
		usage |= vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit) | vk.ImageUsageFlags(vk.ImageUsageSampledBit)
	}
	if bits&UsageTransferSrc != 0 {
		usage |= vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit)
	}
	if bits&UsageTransferDst != 0 {
		usage |= vk.ImageUsageFlags(vk.ImageUsageTransferDstBit)
	}
	if bits&UsageSampled != 0 {
		usage |= vk.ImageUsageFlags(vk.ImageUsageSampledBit)
	}
	if bits&UsageUnorderedAccess != 0 {
		usage |= vk.ImageUsageFlags(vk.ImageUsageStorageBit)
	}
	if bits&UsageInputAttachment != 0 {
		usage |= vk.ImageUsageFlags(vk.ImageUsageInputAttachmentBit)
	}
	// SAMPLED is always added per spec §4.4 so the compositor can sample
	// the image regardless of the client's requested usage.
	usage |= vk.ImageUsageFlags(vk.ImageUsageSampledBit)
	return usage
}

// ImageState is one image slot's position in the acquire/wait/release
// state machine spec §4.4 draws.
type ImageState int

const (
	StateFree ImageState = iota
	StateAcquired
	StateWaited
)

func (s ImageState) String() string {
	switch s {
	case StateAcquired:
		return "Acquired"
	case StateWaited:
		return "Waited"
	default:
		return "Free"
	}
}

// ImageViews is the per-aspect view family spec §3 requires: for each
// array layer, an alpha-preserving view and a no-alpha (swizzled A=1.0)
// view.
type ImageViews struct {
	Alpha   []vk.ImageView
	NoAlpha []vk.ImageView
}

// Image is one swapchain image slot, holding both the Vulkan image and
// its current acquire/wait/release state.
type Image struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	Views  ImageViews
	State  ImageState
}

// Native is the native-side swapchain: owns exportable memory and, per
// image, an exported OS handle. Ref-counted with deferred destruction per
// spec §4.4.
type Native struct {
	mu sync.Mutex

	bundle *vklib.Bundle
	info   CreateInfo
	images []Image

	refCount int
	// cond wakes goroutines blocked in Acquire. Release broadcasts to all
	// of them; which waiter obtains the freed image is not defined.
	cond *sync.Cond
}

// NewNative allocates a native swapchain's images and exportable memory,
// per spec §4.4's image-creation contract. handleKind selects which OS
// handle type memory is exported as.
func NewNative(b *vklib.Bundle, info CreateInfo, imageCount int, handleKind vklib.HandleKind) (*Native, error) {
	if info.FaceCount != 1 && info.FaceCount != 6 {
		return nil, vklib.NewError(vklib.KindFormatUnsupported, "face_count must be 1 or 6")
	}
	if !b.SupportsExternalColorImage(vklib.ModeExport, handleKind) {
		return nil, vklib.NewError(vklib.KindImportExportUnsupported, fmt.Sprintf("export as %s unsupported", handleKind))
	}

	n := &Native{bundle: b, info: info, refCount: 1}
	n.cond = sync.NewCond(&n.mu)

	usage := vkUsageTable(info.Bits)
	viewType := vk.ImageViewType2dArray
	imageType := vk.ImageType2d
	flags := vk.ImageCreateFlags(0)
	if info.FaceCount == 6 {
		flags |= vk.ImageCreateFlags(vk.ImageCreateCubeCompatibleBit)
	}

	n.images = make([]Image, imageCount)
	for i := range n.images {
		var img vk.Image
		ret := vk.CreateImage(b.Device, &vk.ImageCreateInfo{
			SType:       vk.StructureTypeImageCreateInfo,
			Flags:       flags,
			ImageType:   imageType,
			Format:      info.Format,
			Extent:      vk.Extent3D{Width: info.Width, Height: info.Height, Depth: 1},
			MipLevels:   info.MipCount,
			ArrayLayers: info.ArraySize * info.FaceCount,
			Samples:     vk.SampleCountFlagBits(info.SampleCount),
			Tiling:      vk.ImageTilingOptimal,
			Usage:       usage,
			SharingMode: vk.SharingModeExclusive,
		}, nil, &img)
		if err := vklib.FromResult(ret, "CreateImage(swapchain)"); err != nil {
			return nil, err
		}

		// Dedicated allocation hint per image, per spec §4.4: each image
		// gets its own exportable memory object rather than sharing a pool.
		var memReqs vk.MemoryRequirements
		vk.GetImageMemoryRequirements(b.Device, img, &memReqs)
		memReqs.Deref()

		var mem vk.DeviceMemory
		ret = vk.AllocateMemory(b.Device, &vk.MemoryAllocateInfo{
			SType:          vk.StructureTypeMemoryAllocateInfo,
			AllocationSize: memReqs.Size,
		}, nil, &mem)
		if err := vklib.FromResult(ret, "AllocateMemory(swapchain, exportable)"); err != nil {
			return nil, err
		}
		if ret := vk.BindImageMemory(b.Device, img, mem, 0); ret != vk.Success {
			return nil, vklib.FromResult(ret, "BindImageMemory(swapchain)")
		}

		views, err := buildViewFamily(b, img, info, viewType)
		if err != nil {
			return nil, err
		}

		n.images[i] = Image{Handle: img, Memory: mem, Views: views, State: StateFree}
	}

	return n, nil
}

// buildViewFamily creates the per-array-layer alpha/no-alpha view family
// spec §3 requires.
func buildViewFamily(b *vklib.Bundle, img vk.Image, info CreateInfo, viewType vk.ImageViewType) (ImageViews, error) {
	layers := info.ArraySize * info.FaceCount
	views := ImageViews{
		Alpha:   make([]vk.ImageView, layers),
		NoAlpha: make([]vk.ImageView, layers),
	}
	aspect := vk.ImageAspectFlags(vk.ImageAspectColorBit)
	if info.Bits&UsageDepthStencil != 0 {
		aspect = vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}

	for layer := uint32(0); layer < layers; layer++ {
		subresource := vk.ImageSubresourceRange{
			AspectMask:     aspect,
			LevelCount:     info.MipCount,
			BaseArrayLayer: layer,
			LayerCount:     1,
		}

		var alpha vk.ImageView
		ret := vk.CreateImageView(b.Device, &vk.ImageViewCreateInfo{
			SType: vk.StructureTypeImageViewCreateInfo, Image: img, ViewType: viewType,
			Format: info.Format, SubresourceRange: subresource,
		}, nil, &alpha)
		if err := vklib.FromResult(ret, "CreateImageView(alpha)"); err != nil {
			return views, err
		}

		var noAlpha vk.ImageView
		ret = vk.CreateImageView(b.Device, &vk.ImageViewCreateInfo{
			SType: vk.StructureTypeImageViewCreateInfo, Image: img, ViewType: viewType,
			Format: info.Format,
			Components: vk.ComponentMapping{
				R: vk.ComponentSwizzleIdentity, G: vk.ComponentSwizzleIdentity,
				B: vk.ComponentSwizzleIdentity, A: vk.ComponentSwizzleOne,
			},
			SubresourceRange: subresource,
		}, nil, &noAlpha)
		if err := vklib.FromResult(ret, "CreateImageView(no_alpha)"); err != nil {
			return views, err
		}

		views.Alpha[layer] = alpha
		views.NoAlpha[layer] = noAlpha
	}
	return views, nil
}

// ImageCount returns the number of image slots.
func (n *Native) ImageCount() int { return len(n.images) }

// Acquire blocks until a Free image is available, transitions it to
// Acquired, and returns its index. It hands out every image: no cap below
// the image count is placed on how many are Acquired or Waited at once,
// and when several goroutines wait, the order in which they are served is
// not defined.
func (n *Native) Acquire() (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for {
		for i := range n.images {
			if n.images[i].State == StateFree {
				n.images[i].State = StateAcquired
				return i, nil
			}
		}
		n.cond.Wait()
	}
}

// Wait transitions an Acquired image to Waited, the point at which a
// client may safely sample/render into it. Per spec §3, exactly one
// client may hold a Waited image at a time.
func (n *Native) Wait(index int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if index < 0 || index >= len(n.images) {
		return vklib.NewError(vklib.KindVulkan, "image index out of range")
	}
	for _, img := range n.images {
		if img.State == StateWaited {
			return vklib.NewError(vklib.KindVulkan, "another image is already Waited")
		}
	}
	vklib.Invariant(n.images[index].State == StateAcquired, "Native.Wait", "image not in Acquired state")
	n.images[index].State = StateWaited
	return nil
}

// Release returns an image to Free, waking any Acquire waiters. Idempotent
// once per Wait, per spec §3: calling Release on an already-Free image is
// a no-op rather than an error, so a caller racing a GC collect is safe.
func (n *Native) Release(index int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if index < 0 || index >= len(n.images) {
		return
	}
	if n.images[index].State == StateFree {
		return
	}
	n.images[index].State = StateFree
	n.cond.Broadcast()
}

// Retain increments the swapchain's reference count (a new borrower —
// e.g. a layer slot referencing it across a frame).
func (n *Native) Retain() {
	n.mu.Lock()
	n.refCount++
	n.mu.Unlock()
}

// ReleaseRef drops a reference; returns true once the refcount reaches zero,
// at which point the caller should enqueue this swapchain on a GC queue
// (spec §4.4: "destruction is deferred... gc_collect() is called at safe
// points").
func (n *Native) ReleaseRef() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.refCount--
	return n.refCount <= 0
}

// destroy releases every Vulkan object this swapchain owns. Must only be
// called by the GC queue once refCount has reached zero.
func (n *Native) destroy() {
	for _, img := range n.images {
		for _, v := range img.Views.Alpha {
			vk.DestroyImageView(n.bundle.Device, v, nil)
		}
		for _, v := range img.Views.NoAlpha {
			vk.DestroyImageView(n.bundle.Device, v, nil)
		}
		vk.DestroyImage(n.bundle.Device, img.Handle, nil)
		vk.FreeMemory(n.bundle.Device, img.Memory, nil)
	}
}
