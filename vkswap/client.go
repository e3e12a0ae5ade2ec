package vkswap

import (
	"unsafe"

	"github.com/dieselvk/xrcompositor/vklib"
	vk "github.com/vulkan-go/vulkan"
)

// Client is the client-side swapchain half: it imports OS handles exported
// by a Native swapchain, binds the imported memory to freshly created
// images with identical create info, and pre-records a per-image
// acquire/release command buffer pair, per spec §4.4. Each imported image
// starts in StateFree; Client has no acquire, wait or release method, so
// nothing here changes that state. Spec §8 property 4 requires its image count and per-image
// (width,height,format,array_size,mip_count) to match the native
// swapchain's exactly.
type Client struct {
	bundle *vklib.Bundle
	pool   *vklib.CmdPool
	info   CreateInfo
	images []Image

	// Acquire and Release command buffers do LAYOUT_UNDEFINED/transfer ->
	// COLOR_ATTACHMENT barriers with queue-family-ownership transfers
	// to/from the external queue family, recorded once per image at
	// Import. No method of Client submits them.
	acquireCmd []vk.CommandBuffer
	releaseCmd []vk.CommandBuffer
}

// Import binds handles (one per image, in the same order the native side
// created them) to newly created images matching info exactly, and
// pre-records the acquire/release command buffers.
func Import(b *vklib.Bundle, pool *vklib.CmdPool, info CreateInfo, handles []*vklib.MemoryHandle, externalQueueFamily uint32) (*Client, error) {
	c := &Client{bundle: b, pool: pool, info: info}
	c.images = make([]Image, len(handles))
	c.acquireCmd = make([]vk.CommandBuffer, len(handles))
	c.releaseCmd = make([]vk.CommandBuffer, len(handles))

	usage := vkUsageTable(info.Bits)
	viewType := vk.ImageViewType2dArray

	for i, h := range handles {
		var img vk.Image
		ret := vk.CreateImage(b.Device, &vk.ImageCreateInfo{
			SType:       vk.StructureTypeImageCreateInfo,
			ImageType:   vk.ImageType2d,
			Format:      info.Format,
			Extent:      vk.Extent3D{Width: info.Width, Height: info.Height, Depth: 1},
			MipLevels:   info.MipCount,
			ArrayLayers: info.ArraySize * info.FaceCount,
			Samples:     vk.SampleCountFlagBits(info.SampleCount),
			Tiling:      vk.ImageTilingOptimal,
			Usage:       usage,
			SharingMode: vk.SharingModeExclusive,
		}, nil, &img)
		if err := vklib.FromResult(ret, "CreateImage(client import)"); err != nil {
			return nil, err
		}

		importInfo := vk.ImportMemoryFdInfoKHR{
			SType:      vk.StructureTypeImportMemoryFDInfoKhr,
			HandleType: vk.ExternalMemoryHandleTypeFlagBits(vk.ExternalMemoryHandleTypeOpaqueFdBit),
			Fd:         int(h.Raw),
		}
		var memReqs vk.MemoryRequirements
		vk.GetImageMemoryRequirements(b.Device, img, &memReqs)
		memReqs.Deref()

		var mem vk.DeviceMemory
		ret = vk.AllocateMemory(b.Device, &vk.MemoryAllocateInfo{
			SType:          vk.StructureTypeMemoryAllocateInfo,
			PNext:          unsafe.Pointer(&importInfo),
			AllocationSize: memReqs.Size,
		}, nil, &mem)
		if err := vklib.FromResult(ret, "AllocateMemory(client import)"); err != nil {
			return nil, err
		}
		if ret := vk.BindImageMemory(b.Device, img, mem, 0); ret != vk.Success {
			return nil, vklib.FromResult(ret, "BindImageMemory(client import)")
		}

		views, err := buildViewFamily(b, img, info, viewType)
		if err != nil {
			return nil, err
		}
		c.images[i] = Image{Handle: img, Memory: mem, Views: views, State: StateFree}

		acquireCB, releaseCB, err := recordTransferBarriers(pool, img, info, externalQueueFamily)
		if err != nil {
			return nil, err
		}
		c.acquireCmd[i] = acquireCB
		c.releaseCmd[i] = releaseCB
	}

	return c, nil
}

// recordTransferBarriers builds the acquire (external -> graphics queue
// family, UNDEFINED -> COLOR_ATTACHMENT) and release (graphics -> external
// queue family) command buffers spec §4.4 calls for, recorded once; Client
// never submits them.
func recordTransferBarriers(pool *vklib.CmdPool, img vk.Image, info CreateInfo, externalQueueFamily uint32) (acquire, release vk.CommandBuffer, err error) {
	aspect := vk.ImageAspectFlags(vk.ImageAspectColorBit)
	if info.Bits&UsageDepthStencil != 0 {
		aspect = vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	subresource := vk.ImageSubresourceRange{
		AspectMask: aspect,
		LevelCount: info.MipCount,
		LayerCount: info.ArraySize * info.FaceCount,
	}

	acquire, err = pool.Begin(vk.CommandBufferUsageSimultaneousUseBit)
	if err != nil {
		return nil, nil, err
	}
	acquireBarrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           vk.ImageLayoutUndefined,
		NewLayout:           vk.ImageLayoutColorAttachmentOptimal,
		SrcQueueFamilyIndex: externalQueueFamily,
		DstQueueFamilyIndex: vk.QueueFamilyExternal,
		Image:               img,
		SubresourceRange:    subresource,
		DstAccessMask:       vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
	}
	vk.CmdPipelineBarrier(acquire,
		vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
		vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{acquireBarrier})
	if ret := vk.EndCommandBuffer(acquire); ret != vk.Success {
		return nil, nil, vklib.FromResult(ret, "EndCommandBuffer(acquire)")
	}

	release, err = pool.Begin(vk.CommandBufferUsageSimultaneousUseBit)
	if err != nil {
		return nil, nil, err
	}
	releaseBarrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           vk.ImageLayoutColorAttachmentOptimal,
		NewLayout:           vk.ImageLayoutColorAttachmentOptimal,
		SrcQueueFamilyIndex: vk.QueueFamilyExternal,
		DstQueueFamilyIndex: externalQueueFamily,
		Image:               img,
		SubresourceRange:    subresource,
		SrcAccessMask:       vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
	}
	vk.CmdPipelineBarrier(release,
		vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{releaseBarrier})
	if ret := vk.EndCommandBuffer(release); ret != vk.Success {
		return nil, nil, vklib.FromResult(ret, "EndCommandBuffer(release)")
	}

	return acquire, release, nil
}

// ImageCount, matching Native's, satisfies spec §8 property 4.
func (c *Client) ImageCount() int { return len(c.images) }

// Image returns the client-owned image at index, for callers validating
// property 4's (width,height,format,array_size,mip_count) equality check.
func (c *Client) Image(index int) Image { return c.images[index] }
