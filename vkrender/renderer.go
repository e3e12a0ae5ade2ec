package vkrender

import (
	"log"
	"time"

	vk "github.com/vulkan-go/vulkan"

	"github.com/dieselvk/xrcompositor/vklib"
	"github.com/dieselvk/xrcompositor/vkres"
	"github.com/dieselvk/xrcompositor/vktarget"
)

// DistortionMode selects mesh (graphics) vs. compute distortion, per
// spec §4.7's two implementations; the specification leaves the choice
// settings-driven and does not mandate a default (see Open Questions).
type DistortionMode int

const (
	DistortionMesh DistortionMode = iota
	DistortionCompute
)

// noSlot is the "none" value for Renderer's acquired/fenced image slots.
const noSlot = -1

// Renderer is the per-frame orchestrator spec §4.7 describes: it holds
// the acquired/fenced target image slots, picks the fast path or the
// layer compositor, dispatches the distortion pass, and submits with
// sync. Grounded on the teacher's per-frame bookkeeping in instance.go
// (PerFrame fence/semaphore arrays, current_frame indexing) generalized
// from a fixed swap-chain loop to this package's acquire/submit/present
// cycle against an abstract vktarget.Target.
type Renderer struct {
	bundle *vklib.Bundle
	pool   *vklib.CmdPool
	res    *vkres.RenderResources
	target vktarget.Target
	layer  *LayerRenderer
	mode   DistortionMode

	imageCount int

	fences         []vk.Fence
	commandBuffers []vk.CommandBuffer
	renderSem      []vk.Semaphore
	acquireSem     []vk.Semaphore
	frameSlot      int

	distortionPass vk.RenderPass
	framebuffers   []vk.Framebuffer
	targetWidth    uint32
	targetHeight   uint32
	targetFormat   vk.Format

	acquired int
	fenced   int

	rotation SurfaceRotation
}

// New builds a Renderer bound to one Target. imageCount must match the
// target's image count so the fence/semaphore/command-buffer arrays (one
// slot per in-flight image, per spec §4.7) are sized correctly.
func New(b *vklib.Bundle, pool *vklib.CmdPool, res *vkres.RenderResources, target vktarget.Target, layer *LayerRenderer, mode DistortionMode, imageCount int) (*Renderer, error) {
	r := &Renderer{
		bundle:     b,
		pool:       pool,
		res:        res,
		target:     target,
		layer:      layer,
		mode:       mode,
		imageCount: imageCount,
		fences:     make([]vk.Fence, imageCount),
		renderSem:  make([]vk.Semaphore, imageCount),
		acquireSem: make([]vk.Semaphore, imageCount),
		acquired:   noSlot,
		fenced:     noSlot,
	}
	for i := range r.fences {
		ret := vk.CreateFence(b.Device, &vk.FenceCreateInfo{
			SType: vk.StructureTypeFenceCreateInfo,
			Flags: vk.FenceCreateFlags(vk.FenceCreateSignaledBit),
		}, nil, &r.fences[i])
		if err := vklib.FromResult(ret, "CreateFence(renderer)"); err != nil {
			return nil, err
		}
		ret = vk.CreateSemaphore(b.Device, &vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}, nil, &r.renderSem[i])
		if err := vklib.FromResult(ret, "CreateSemaphore(render)"); err != nil {
			return nil, err
		}
		ret = vk.CreateSemaphore(b.Device, &vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}, nil, &r.acquireSem[i])
		if err := vklib.FromResult(ret, "CreateSemaphore(acquire)"); err != nil {
			return nil, err
		}
	}

	r.commandBuffers = make([]vk.CommandBuffer, imageCount)
	for i := range r.commandBuffers {
		cb, err := pool.AllocPrimary()
		if err != nil {
			return nil, err
		}
		r.commandBuffers[i] = cb
	}

	return r, nil
}

// SetRotation records the pre-rotation the target's surface currently
// reports, consumed by the mesh distortion path's vertex_rot (spec
// §4.7).
func (r *Renderer) SetRotation(rot SurfaceRotation) { r.rotation = rot }

// oneProjectionFastPath implements spec §4.7's "exactly one layer is
// submitted and it is a stereo-projection" test.
func oneProjectionFastPath(layers []Layer) bool {
	return len(layers) == 1 && layers[0].Type == LayerProjection
}

// FrameResult reports what RenderFrame actually did, for callers (the
// Compositor/MultiCompositor) to log or feed back into pacing.
type FrameResult struct {
	UsedFastPath    bool
	RecreatedImages bool
	MissedDeadline  bool
}

// RenderFrame runs one full frame: acquire, pick fast-path vs layer
// compositor, dispatch distortion, submit, present, and recover from an
// OutOfDate/Suboptimal present by forcing image recreation (spec §4.7
// "After submit... If present returns OutOfDate or Suboptimal the
// Renderer forces image recreation at the new size.").
func (r *Renderer) RenderFrame(layers []Layer, views EyeViews, desiredPresentNs int64) (FrameResult, error) {
	var result FrameResult

	if !r.target.CheckReady() {
		return result, vklib.NewError(vklib.KindTargetLost, "target not ready")
	}

	r.ensureTargetResources()

	acquireSem := r.acquireSem[r.frameSlot]
	r.frameSlot = (r.frameSlot + 1) % r.imageCount

	idx, err := r.target.Acquire(acquireSem)
	if err != nil {
		if e, ok := err.(*vklib.Error); ok && e.Recoverable() {
			if rerr := r.recreateImages(); rerr != nil {
				return result, rerr
			}
			result.RecreatedImages = true
			idx, err = r.target.Acquire(acquireSem)
		}
		if err != nil {
			return result, err
		}
	}

	r.waitFence(idx)
	r.target.MarkTimingPoint(vktarget.PointBegin, 0, nowNs())

	cb := r.commandBuffers[idx]
	r.pool.Lock()
	ret := vk.ResetCommandBuffer(cb, 0)
	if err := vklib.FromResult(ret, "ResetCommandBuffer"); err != nil {
		r.pool.Unlock()
		return result, err
	}
	ret = vk.BeginCommandBuffer(cb, &vk.CommandBufferBeginInfo{SType: vk.StructureTypeCommandBufferBeginInfo})
	if err := vklib.FromResult(ret, "BeginCommandBuffer(frame)"); err != nil {
		r.pool.Unlock()
		return result, err
	}

	result.UsedFastPath = oneProjectionFastPath(layers)
	if result.UsedFastPath {
		r.dispatchFastPath(cb, layers, views)
	} else {
		r.layer.SetLayers(layers)
		r.dispatchLayerCompositor(cb, views)
	}

	switch r.mode {
	case DistortionMesh:
		r.recordMeshDistortion(cb, idx, views)
	default:
		r.recordComputeDistortion(cb, idx, views)
	}

	if ret := vk.EndCommandBuffer(cb); ret != vk.Success {
		r.pool.Unlock()
		return result, vklib.FromResult(ret, "EndCommandBuffer(frame)")
	}

	waitStage := vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	submit := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vk.Semaphore{acquireSem},
		PWaitDstStageMask:    []vk.PipelineStageFlags{waitStage},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{cb},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{r.renderSem[idx]},
	}
	submitErr := r.pool.Submit([]vk.SubmitInfo{submit}, r.fences[idx])
	r.pool.Unlock()
	if submitErr != nil {
		return result, submitErr
	}

	r.acquired = idx
	r.fenced = idx
	r.target.MarkTimingPoint(vktarget.PointSubmit, 0, nowNs())

	now := nowNs()
	if now > desiredPresentNs+int64(time.Millisecond) {
		result.MissedDeadline = true
		log.Printf("vkrender: probably missed frame: %dns past desired present time", now-desiredPresentNs)
	}

	presentErr := r.target.Present(r.bundle.Queue, idx, r.renderSem[idx], desiredPresentNs, 0)
	if presentErr != nil {
		if e, ok := presentErr.(*vklib.Error); ok && e.Recoverable() {
			if rerr := r.recreateImages(); rerr != nil {
				return result, rerr
			}
			result.RecreatedImages = true
			return result, nil
		}
		return result, presentErr
	}
	return result, nil
}

func (r *Renderer) waitFence(idx int) {
	if idx < 0 || idx >= len(r.fences) {
		return
	}
	vk.WaitForFences(r.bundle.Device, 1, []vk.Fence{r.fences[idx]}, vk.True, vk.MaxUint64)
	vk.ResetFences(r.bundle.Device, 1, []vk.Fence{r.fences[idx]})
}

// ensureTargetResources (re)builds the distortion pass's render pass and
// per-image framebuffers whenever the target's extent/format/image count
// has changed since the last frame, per spec §4.7's distortion pass
// writing directly into the target's acquired image. A headless/mock
// target (vktarget.Mock, vktarget.GlfwTarget without a wired swapchain)
// reports a null ImageView; ensureTargetResources then leaves
// r.framebuffers[i] at its NullFramebuffer zero value and
// recordMeshDistortion skips the render-pass begin/draw for that image,
// matching those backends' documented "no real swapchain" simplification.
func (r *Renderer) ensureTargetResources() {
	w, h := r.target.Extent()
	format := r.target.Format()
	count := r.target.ImageCount()
	if count == 0 {
		count = r.imageCount
	}

	if r.distortionPass != vk.NullRenderPass && w == r.targetWidth && h == r.targetHeight && format == r.targetFormat && len(r.framebuffers) == count {
		return
	}

	r.destroyTargetResources()
	r.targetWidth, r.targetHeight, r.targetFormat = w, h, format

	if w == 0 || h == 0 {
		return
	}

	pass, err := r.createDistortionRenderPass(format)
	if err != nil {
		log.Printf("vkrender: createDistortionRenderPass: %v", err)
		return
	}
	r.distortionPass = pass

	r.framebuffers = make([]vk.Framebuffer, count)
	for i := 0; i < count; i++ {
		view := r.target.ImageView(i)
		if view == vk.NullImageView {
			continue
		}
		var fb vk.Framebuffer
		ret := vk.CreateFramebuffer(r.bundle.Device, &vk.FramebufferCreateInfo{
			SType:           vk.StructureTypeFramebufferCreateInfo,
			RenderPass:      r.distortionPass,
			AttachmentCount: 1,
			PAttachments:    []vk.ImageView{view},
			Width:           w,
			Height:          h,
			Layers:          1,
		}, nil, &fb)
		if err := vklib.FromResult(ret, "CreateFramebuffer(distortion)"); err != nil {
			log.Printf("vkrender: CreateFramebuffer(distortion): %v", err)
			continue
		}
		r.framebuffers[i] = fb
	}
}

// createDistortionRenderPass builds the single-color-attachment render
// pass the distortion mesh draws into, ending in PRESENT_SRC_KHR so no
// extra barrier is needed before Present (spec §4.7).
func (r *Renderer) createDistortionRenderPass(format vk.Format) (vk.RenderPass, error) {
	attachments := []vk.AttachmentDescription{{
		Format:         format,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    vk.ImageLayoutPresentSrc,
	}}
	colorRef := vk.AttachmentReference{Attachment: 0, Layout: vk.ImageLayoutColorAttachmentOptimal}
	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments:    []vk.AttachmentReference{colorRef},
	}
	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.MaxUint32,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vk.AccessFlags(vk.AccessFlagBits(vk.AccessColorAttachmentReadBit) | vk.AccessFlagBits(vk.AccessColorAttachmentWriteBit)),
	}

	var pass vk.RenderPass
	ret := vk.CreateRenderPass(r.bundle.Device, &vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}, nil, &pass)
	return pass, vklib.FromResult(ret, "CreateRenderPass(distortion)")
}

func (r *Renderer) destroyTargetResources() {
	for i, fb := range r.framebuffers {
		if fb != vk.Framebuffer(vk.NullHandle) {
			vk.DestroyFramebuffer(r.bundle.Device, fb, nil)
		}
		r.framebuffers[i] = nil
	}
	r.framebuffers = nil
	if r.distortionPass != vk.NullRenderPass {
		vk.DestroyRenderPass(r.bundle.Device, r.distortionPass, nil)
		r.distortionPass = nil
	}
}

// dispatchFastPath implements spec §4.7's "Fast path": no LayerRenderer
// pass, the client's own swapchain images are the distortion source.
func (r *Renderer) dispatchFastPath(cb vk.CommandBuffer, layers []Layer, views EyeViews) {
	for eye := 0; eye < 2; eye++ {
		m := computeEyeMatrices(views, eye)
		r.writeEyeUBO(eye, m)
	}
}

// dispatchLayerCompositor runs LayerRenderer first, then the distortion
// pass samples its off-screen eye textures. computeEyeMatrices' result
// both drives LayerRenderer.Draw's per-layer transform selection and the
// mesh path's per-view UBO.
func (r *Renderer) dispatchLayerCompositor(cb vk.CommandBuffer, views EyeViews) {
	for eye := 0; eye < 2; eye++ {
		m := computeEyeMatrices(views, eye)
		r.layer.Draw(cb, eye, m)
		r.res.UpdateMeshSourceImage(eye, r.layer.EyeView(eye), r.res.Samplers.ClampEdge)
		r.writeEyeUBO(eye, m)
	}
}

// writeEyeUBO uploads one eye's {vertex_rot, post_transform} pair ahead
// of the distortion pass recording it below, per spec §4.7 "Record:
// update the two per-view UBOs". post_transform carries the eye's
// view-projection (vp_eye) computed from the views passed to RenderFrame;
// no pose is re-sampled here, so this path applies no timewarp
// reprojection.
func (r *Renderer) writeEyeUBO(eye int, m eyeMatrices) {
	data := vkres.MeshPerViewUBO{
		VertexRot:     VertexRotation(r.rotation),
		PostTransform: m.vpEye,
	}
	if err := r.res.WriteMeshPerViewUBO(eye, data); err != nil {
		log.Printf("vkrender: WriteMeshPerViewUBO(eye=%d): %v", eye, err)
	}
}

// recordMeshDistortion implements spec §4.7's graphics distortion path:
// begin the distortion render pass against the acquired target image,
// bind the mesh pipeline/vertex+index buffers, and draw each eye's half
// of the combined mesh with its own descriptor set and viewport.
func (r *Renderer) recordMeshDistortion(cb vk.CommandBuffer, idx int, views EyeViews) {
	if idx < 0 || idx >= len(r.framebuffers) {
		return
	}
	fb := r.framebuffers[idx]
	if fb == vk.Framebuffer(vk.NullHandle) {
		return
	}

	clear := vk.NewClearValue([]float32{0, 0, 0, 1})
	vk.CmdBeginRenderPass(cb, &vk.RenderPassBeginInfo{
		SType:           vk.StructureTypeRenderPassBeginInfo,
		RenderPass:      r.distortionPass,
		Framebuffer:     fb,
		RenderArea:      vk.Rect2D{Extent: vk.Extent2D{Width: r.targetWidth, Height: r.targetHeight}},
		ClearValueCount: 1,
		PClearValues:    []vk.ClearValue{clear},
	}, vk.SubpassContentsInline)

	vk.CmdBindPipeline(cb, vk.PipelineBindPointGraphics, r.res.Mesh.Pipeline)
	offsets := []vk.DeviceSize{0}
	vk.CmdBindVertexBuffers(cb, 0, 1, []vk.Buffer{r.res.Mesh.VertexBuffer}, offsets)
	vk.CmdBindIndexBuffer(cb, r.res.Mesh.IndexBuffer, 0, vk.IndexTypeUint32)

	halfWidth := float32(r.targetWidth) / 2
	for eye := 0; eye < 2; eye++ {
		viewport := vk.Viewport{
			X: float32(eye) * halfWidth, Y: 0,
			Width: halfWidth, Height: float32(r.targetHeight),
			MinDepth: 0, MaxDepth: 1,
		}
		scissor := vk.Rect2D{
			Offset: vk.Offset2D{X: int32(float32(eye) * halfWidth)},
			Extent: vk.Extent2D{Width: uint32(halfWidth), Height: r.targetHeight},
		}
		vk.CmdSetViewport(cb, 0, 1, []vk.Viewport{viewport})
		vk.CmdSetScissor(cb, 0, 1, []vk.Rect2D{scissor})
		vk.CmdBindDescriptorSets(cb, vk.PipelineBindPointGraphics, r.res.Mesh.PipelineLayout, 0, 1,
			[]vk.DescriptorSet{r.res.Mesh.DescriptorSets[eye]}, 0, nil)
		vk.CmdDrawIndexed(cb, r.res.Mesh.IndexCount, 1, uint32(eye)*r.res.Mesh.IndexCount, 0, 0)
	}

	vk.CmdEndRenderPass(cb)
}

// recordComputeDistortion implements spec §4.7's compute distortion
// path: barrier the target image to GENERAL, dispatch into the scratch
// image then the target image, barrier the target image back to
// PRESENT_SRC_KHR. Dispatch extents per spec §4.7: ceil(max(w,h)/8),
// ceil(.../8), 2 (two eyes in a single dispatch's Z dimension).
func (r *Renderer) recordComputeDistortion(cb vk.CommandBuffer, idx int, views EyeViews) {
	if idx < 0 || idx >= r.imageCount {
		return
	}
	targetImage := r.target.Image(idx)
	targetView := r.target.ImageView(idx)
	if targetImage == vk.Image(vk.NullHandle) || targetView == vk.NullImageView {
		return
	}

	subresource := vk.ImageSubresourceRange{
		AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
		LevelCount: 1, LayerCount: 1,
	}

	toGeneral := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           vk.ImageLayoutUndefined,
		NewLayout:           vk.ImageLayoutGeneral,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               targetImage,
		SubresourceRange:    subresource,
		DstAccessMask:       vk.AccessFlags(vk.AccessShaderWriteBit),
	}
	vk.CmdPipelineBarrier(cb,
		vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
		vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit),
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{toGeneral})

	groupsX := ceilDivUint32(maxUint32(r.targetWidth, r.targetHeight), 8)
	groupsY := groupsX

	vk.CmdBindPipeline(cb, vk.PipelineBindPointCompute, r.res.Compute.Distortion)
	vk.CmdBindDescriptorSets(cb, vk.PipelineBindPointCompute, r.res.Compute.PipelineLayout, 0, 1,
		[]vk.DescriptorSet{r.res.Compute.DescriptorSet}, 0, nil)
	vk.CmdDispatch(cb, groupsX, groupsY, 2)

	r.res.UpdateComputeTarget(targetView)
	vk.CmdBindDescriptorSets(cb, vk.PipelineBindPointCompute, r.res.Compute.PipelineLayout, 0, 1,
		[]vk.DescriptorSet{r.res.Compute.DescriptorSet}, 0, nil)
	vk.CmdDispatch(cb, groupsX, groupsY, 2)

	toPresent := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           vk.ImageLayoutGeneral,
		NewLayout:           vk.ImageLayoutPresentSrc,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               targetImage,
		SubresourceRange:    subresource,
		SrcAccessMask:       vk.AccessFlags(vk.AccessShaderWriteBit),
	}
	vk.CmdPipelineBarrier(cb,
		vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit),
		vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{toPresent})
}

func ceilDivUint32(a, b uint32) uint32 {
	return (a + b - 1) / b
}

func maxUint32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

func (r *Renderer) recreateImages() error {
	return r.target.CreateImages(0, 0, 0, 0, 0, 0)
}

// Destroy releases the per-image fences, semaphores, command buffers, and
// the distortion render pass/framebuffers.
func (r *Renderer) Destroy() {
	r.destroyTargetResources()
	if len(r.commandBuffers) > 0 {
		r.pool.Lock()
		vk.FreeCommandBuffers(r.bundle.Device, r.pool.Handle(), uint32(len(r.commandBuffers)), r.commandBuffers)
		r.pool.Unlock()
	}
	for _, f := range r.fences {
		if f != vk.NullFence {
			vk.DestroyFence(r.bundle.Device, f, nil)
		}
	}
	for _, s := range r.renderSem {
		if s != vk.NullSemaphore {
			vk.DestroySemaphore(r.bundle.Device, s, nil)
		}
	}
	for _, s := range r.acquireSem {
		if s != vk.NullSemaphore {
			vk.DestroySemaphore(r.bundle.Device, s, nil)
		}
	}
}

var nowNs = func() int64 { return time.Now().UnixNano() }
