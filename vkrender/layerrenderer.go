package vkrender

import (
	"math"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
	lin "github.com/xlab/linmath"

	"github.com/dieselvk/xrcompositor/vklib"
	"github.com/dieselvk/xrcompositor/vkres"
)

// eyeFramebuffer is one eye's off-screen color target, per spec §4.6:
// "a pair of off-screen framebuffers (one per eye)".
type eyeFramebuffer struct {
	Image       vk.Image
	Memory      vk.DeviceMemory
	View        vk.ImageView
	Framebuffer vk.Framebuffer
	Width, Height uint32
}

// layerPipelineKind indexes the graphics pipelines §4.6 names: the
// premultiplied and unpremultiplied mesh variants are two separate
// pipeline objects that differ only in blend state, followed by
// equirect1, equirect2 and the optional cube pipeline.
type layerPipelineKind int

const (
	pipelineMeshPremultiplied layerPipelineKind = iota
	pipelineMeshUnpremultiplied
	pipelineEquirect1
	pipelineEquirect2
	pipelineCube
	numLayerPipelines
)

// LayerRenderer owns the per-eye off-screen framebuffers and the four
// graphics pipelines spec §4.6 lists, built from a shared render pass
// with a single color attachment (load=CLEAR, store=STORE, final layout
// SHADER_READ_ONLY), grounded on the teacher's CoreRenderPass
// (renderpass.go) and CorePipeline/PipelineBuilder (pipeline.go),
// generalized from the teacher's single hardcoded triangle pipeline to
// this package's four layer pipelines sharing one vertex layout.
type LayerRenderer struct {
	bundle *vklib.Bundle
	format vk.Format

	renderPass vk.RenderPass
	eyes       [2]eyeFramebuffer

	descriptorLayout vk.DescriptorSetLayout
	pipelineLayout   vk.PipelineLayout
	pipelines        [numLayerPipelines]vk.Pipeline

	// descriptorPool/fallbackSet back every layer draw with one shared
	// descriptor set until the caller wires a real per-layer client
	// texture in via SetFallbackTexture — importing each client's
	// swapchain image as its own descriptor set is the OpenXR/IPC
	// surface's job (spec §1 Non-goals), so LayerRenderer samples a
	// single caller-supplied view/sampler pair for now, the same
	// "unused slot" precedent vkres.RenderResources.Mock establishes.
	descriptorPool vk.DescriptorPool
	fallbackSet    vk.DescriptorSet

	quadVBO    vk.Buffer
	quadMemory vk.DeviceMemory

	eyeWidth, eyeHeight uint32

	layers []Layer
}

// New builds the render pass, the per-eye off-screen framebuffers (spec
// §4.6 "a pair of off-screen framebuffers, one per eye"), the shared quad
// VBO, and the descriptor/pipeline layouts. The four concrete pipelines
// are built once shader modules are supplied via BuildPipelines,
// mirroring the teacher's split between CoreRenderPass.CreateRenderPass
// and NewPiplelineBuilder.
func New(b *vklib.Bundle, format vk.Format, eyeWidth, eyeHeight uint32) (*LayerRenderer, error) {
	lr := &LayerRenderer{bundle: b, format: format, eyeWidth: eyeWidth, eyeHeight: eyeHeight}

	if err := lr.createRenderPass(); err != nil {
		return nil, err
	}
	if err := lr.createEyeFramebuffers(); err != nil {
		lr.Destroy()
		return nil, err
	}
	if err := lr.createQuadVBO(); err != nil {
		lr.Destroy()
		return nil, err
	}
	if err := lr.createDescriptorLayout(); err != nil {
		lr.Destroy()
		return nil, err
	}
	if err := lr.createPipelineLayout(); err != nil {
		lr.Destroy()
		return nil, err
	}
	if err := lr.createFallbackDescriptor(); err != nil {
		lr.Destroy()
		return nil, err
	}
	return lr, nil
}

// createEyeFramebuffers allocates both eyes' off-screen color targets.
func (lr *LayerRenderer) createEyeFramebuffers() error {
	for eye := 0; eye < 2; eye++ {
		if err := lr.createEyeFramebuffer(eye); err != nil {
			return err
		}
	}
	return nil
}

// createEyeFramebuffer builds one eye's color-attachment image, backing
// memory, view, and framebuffer against lr.renderPass, grounded on the
// teacher's CoreFramebuffer/CoreImage pairing in core.go generalized from
// a single swapchain-backed framebuffer to an off-screen render target.
func (lr *LayerRenderer) createEyeFramebuffer(eye int) error {
	fb := eyeFramebuffer{Width: lr.eyeWidth, Height: lr.eyeHeight}

	ret := vk.CreateImage(lr.bundle.Device, &vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    lr.format,
		Extent:    vk.Extent3D{Width: lr.eyeWidth, Height: lr.eyeHeight, Depth: 1},
		MipLevels: 1, ArrayLayers: 1,
		Samples:     vk.SampleCount1Bit,
		Tiling:      vk.ImageTilingOptimal,
		Usage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit) | vk.ImageUsageFlags(vk.ImageUsageSampledBit),
		SharingMode: vk.SharingModeExclusive,
	}, nil, &fb.Image)
	if err := vklib.FromResult(ret, "CreateImage(eye)"); err != nil {
		return err
	}

	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(lr.bundle.Device, fb.Image, &req)
	req.Deref()

	ret = vk.AllocateMemory(lr.bundle.Device, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: 0, // device-local type 0, matching vkres's mock-image simplification
	}, nil, &fb.Memory)
	if err := vklib.FromResult(ret, "AllocateMemory(eye)"); err != nil {
		return err
	}
	if ret := vk.BindImageMemory(lr.bundle.Device, fb.Image, fb.Memory, 0); ret != vk.Success {
		return vklib.FromResult(ret, "BindImageMemory(eye)")
	}

	ret = vk.CreateImageView(lr.bundle.Device, &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    fb.Image,
		ViewType: vk.ImageViewType2d,
		Format:   lr.format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: 1, LayerCount: 1,
		},
	}, nil, &fb.View)
	if err := vklib.FromResult(ret, "CreateImageView(eye)"); err != nil {
		return err
	}

	attachments := []vk.ImageView{fb.View}
	ret = vk.CreateFramebuffer(lr.bundle.Device, &vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      lr.renderPass,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		Width:           lr.eyeWidth,
		Height:          lr.eyeHeight,
		Layers:          1,
	}, nil, &fb.Framebuffer)
	if err := vklib.FromResult(ret, "CreateFramebuffer(eye)"); err != nil {
		return err
	}

	lr.eyes[eye] = fb
	return nil
}

// EyeView returns the sampleable view of one eye's composited output, the
// distortion pass's source texture (spec §4.7 "its off-screen eye
// textures").
func (lr *LayerRenderer) EyeView(eye int) vk.ImageView { return lr.eyes[eye].View }

// createRenderPass mirrors the teacher's CreateRenderPass, dropping the
// depth attachment (layers are painted back-to-front by submission
// order, §4.6 step 3, with no depth test) and retargeting the final
// layout to SHADER_READ_ONLY_OPTIMAL since the eye texture becomes the
// distortion pass's input rather than a present target.
func (lr *LayerRenderer) createRenderPass() error {
	attachments := []vk.AttachmentDescription{{
		Format:         lr.format,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    vk.ImageLayoutShaderReadOnlyOptimal,
	}}
	colorRef := vk.AttachmentReference{Attachment: 0, Layout: vk.ImageLayoutColorAttachmentOptimal}
	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments:    []vk.AttachmentReference{colorRef},
	}
	dependency := vk.SubpassDependency{
		// VK_SUBPASS_EXTERNAL: the teacher's renderpass.go encodes this as
		// vk.MaxUint32 rather than a named constant.
		SrcSubpass:    vk.MaxUint32,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		SrcAccessMask: vk.AccessFlags(vk.AccessMemoryReadBit),
		DstAccessMask: vk.AccessFlags(vk.AccessFlagBits(vk.AccessColorAttachmentReadBit) | vk.AccessFlagBits(vk.AccessColorAttachmentWriteBit)),
	}

	ret := vk.CreateRenderPass(lr.bundle.Device, &vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}, nil, &lr.renderPass)
	return vklib.FromResult(ret, "CreateRenderPass(layer)")
}

// quadVertex is the shared `(position vec3, uv vec2)` attribute layout
// spec §4.6 names, used by all four pipelines and the quad VBO.
type quadVertex struct {
	Position [3]float32
	UV       [2]float32
}

var quadVertices = []quadVertex{
	{Position: [3]float32{-1, -1, 0}, UV: [2]float32{0, 0}},
	{Position: [3]float32{1, -1, 0}, UV: [2]float32{1, 0}},
	{Position: [3]float32{1, 1, 0}, UV: [2]float32{1, 1}},
	{Position: [3]float32{-1, -1, 0}, UV: [2]float32{0, 0}},
	{Position: [3]float32{1, 1, 0}, UV: [2]float32{1, 1}},
	{Position: [3]float32{-1, 1, 0}, UV: [2]float32{0, 1}},
}

func (lr *LayerRenderer) createQuadVBO() error {
	size := vk.DeviceSize(len(quadVertices) * 5 * 4)
	ret := vk.CreateBuffer(lr.bundle.Device, &vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        size,
		Usage:       vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit),
		SharingMode: vk.SharingModeExclusive,
	}, nil, &lr.quadVBO)
	if err := vklib.FromResult(ret, "CreateBuffer(quadVBO)"); err != nil {
		return err
	}

	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(lr.bundle.Device, lr.quadVBO, &req)
	req.Deref()

	ret = vk.AllocateMemory(lr.bundle.Device, &vk.MemoryAllocateInfo{
		SType:          vk.StructureTypeMemoryAllocateInfo,
		AllocationSize: req.Size,
		// Host-visible/coherent memory type index 0, matching the
		// simplification vkres.RenderResources.createMockImage already
		// makes: a full memory-type-bits scan belongs to the Bundle
		// once a second caller needs it, not duplicated here.
		MemoryTypeIndex: 0,
	}, nil, &lr.quadMemory)
	if err := vklib.FromResult(ret, "AllocateMemory(quadVBO)"); err != nil {
		return err
	}
	vk.BindBufferMemory(lr.bundle.Device, lr.quadVBO, lr.quadMemory, 0)

	var mapped unsafe.Pointer
	if ret := vk.MapMemory(lr.bundle.Device, lr.quadMemory, 0, size, 0, &mapped); ret != vk.Success {
		return vklib.FromResult(ret, "MapMemory(quadVBO)")
	}
	dst := (*[1 << 20]byte)(mapped)[:size:size]
	for i, v := range quadVertices {
		off := i * 5 * 4
		copy(dst[off:], float32sToBytes(v.Position[:]))
		copy(dst[off+12:], float32sToBytes(v.UV[:]))
	}
	vk.UnmapMemory(lr.bundle.Device, lr.quadMemory)
	return nil
}

func float32sToBytes(vs []float32) []byte {
	out := make([]byte, 4*len(vs))
	for i, v := range vs {
		bits := math.Float32bits(v)
		out[i*4] = byte(bits)
		out[i*4+1] = byte(bits >> 8)
		out[i*4+2] = byte(bits >> 16)
		out[i*4+3] = byte(bits >> 24)
	}
	return out
}

func (lr *LayerRenderer) createDescriptorLayout() error {
	binding := vk.DescriptorSetLayoutBinding{
		Binding:         0,
		DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
		DescriptorCount: 1,
		StageFlags:      vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
	}
	ret := vk.CreateDescriptorSetLayout(lr.bundle.Device, &vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: 1,
		PBindings:    []vk.DescriptorSetLayoutBinding{binding},
	}, nil, &lr.descriptorLayout)
	return vklib.FromResult(ret, "CreateDescriptorSetLayout(layer)")
}

func (lr *LayerRenderer) createPipelineLayout() error {
	pushConstant := vk.PushConstantRange{
		StageFlags: vk.ShaderStageFlags(vk.ShaderStageVertexBit),
		Offset:     0,
		Size:       16 * 4, // one mat4 transform per draw
	}
	ret := vk.CreatePipelineLayout(lr.bundle.Device, &vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         1,
		PSetLayouts:            []vk.DescriptorSetLayout{lr.descriptorLayout},
		PushConstantRangeCount: 1,
		PPushConstantRanges:    []vk.PushConstantRange{pushConstant},
	}, nil, &lr.pipelineLayout)
	return vklib.FromResult(ret, "CreatePipelineLayout(layer)")
}

// pipelineSpec pairs one pipeline slot with its vertex/fragment blobs and
// blend variant.
type pipelineSpec struct {
	kind      layerPipelineKind
	vert      []byte
	frag      []byte
	unpremult bool
}

// BuildPipelines creates the pipelines named in spec §4.6 against shaders'
// vertex/fragment blobs, with the two mesh variants distinguished solely by
// blend state (§4.6 "Alpha semantics"). The equirect2 and cube pipelines
// are built only when shaders carries their blobs.
func (lr *LayerRenderer) BuildPipelines(shaders vkres.Shaders) error {
	specs := []pipelineSpec{
		{pipelineMeshPremultiplied, shaders.MeshVert, shaders.MeshFrag, false},
		{pipelineMeshUnpremultiplied, shaders.MeshVert, shaders.MeshFrag, true},
		{pipelineEquirect1, shaders.Equirect1Vert, shaders.Equirect1Frag, false},
	}
	if shaders.HasEquirect2() {
		specs = append(specs, pipelineSpec{pipelineEquirect2, shaders.Equirect2Vert, shaders.Equirect2Frag, false})
	}
	if shaders.HasCube() {
		specs = append(specs, pipelineSpec{pipelineCube, shaders.CubeVert, shaders.CubeFrag, false})
	}

	for _, s := range specs {
		p, err := lr.buildOnePipeline(s.vert, s.frag, s.unpremult)
		if err != nil {
			return err
		}
		lr.pipelines[s.kind] = p
	}
	return nil
}

func (lr *LayerRenderer) buildOnePipeline(vertSPIRV, fragSPIRV []byte, unpremultipliedAlpha bool) (vk.Pipeline, error) {
	vertModule, err := lr.createShaderModule(vertSPIRV)
	if err != nil {
		return nil, err
	}
	defer vk.DestroyShaderModule(lr.bundle.Device, vertModule, nil)
	fragModule, err := lr.createShaderModule(fragSPIRV)
	if err != nil {
		return nil, err
	}
	defer vk.DestroyShaderModule(lr.bundle.Device, fragModule, nil)

	stages := []vk.PipelineShaderStageCreateInfo{
		{SType: vk.StructureTypePipelineShaderStageCreateInfo, Stage: vk.ShaderStageVertexBit, Module: vertModule, PName: "main\x00"},
		{SType: vk.StructureTypePipelineShaderStageCreateInfo, Stage: vk.ShaderStageFragmentBit, Module: fragModule, PName: "main\x00"},
	}

	binding := vk.VertexInputBindingDescription{Binding: 0, Stride: 5 * 4, InputRate: vk.VertexInputRateVertex}
	attrs := []vk.VertexInputAttributeDescription{
		{Location: 0, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: 0},
		{Location: 1, Binding: 0, Format: vk.FormatR32g32Sfloat, Offset: 3 * 4},
	}
	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   1,
		PVertexBindingDescriptions:      []vk.VertexInputBindingDescription{binding},
		VertexAttributeDescriptionCount: uint32(len(attrs)),
		PVertexAttributeDescriptions:    attrs,
	}
	assembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: vk.PrimitiveTopologyTriangleList,
	}

	srcBlend := vk.BlendFactorOne
	if unpremultipliedAlpha {
		srcBlend = vk.BlendFactorSrcAlpha
	}
	blendAttachment := vk.PipelineColorBlendAttachmentState{
		BlendEnable:         vk.True,
		SrcColorBlendFactor: srcBlend,
		DstColorBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
		ColorBlendOp:        vk.BlendOpAdd,
		SrcAlphaBlendFactor: srcBlend,
		DstAlphaBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
		AlphaBlendOp:        vk.BlendOpAdd,
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit |
			vk.ColorComponentBBit | vk.ColorComponentABit),
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{blendAttachment},
	}

	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:      vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: vk.PolygonModeFill,
		CullMode:    vk.CullModeFlags(vk.CullModeNone),
		FrontFace:   vk.FrontFaceCounterClockwise,
		LineWidth:   1,
	}
	multisample := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
	}
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}
	dynamicStates := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	info := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &assembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisample,
		PColorBlendState:    &colorBlend,
		PDynamicState:       &dynamicState,
		Layout:              lr.pipelineLayout,
		RenderPass:          lr.renderPass,
		Subpass:             0,
	}

	pipelines := make([]vk.Pipeline, 1)
	ret := vk.CreateGraphicsPipelines(lr.bundle.Device, nil, 1, []vk.GraphicsPipelineCreateInfo{info}, nil, pipelines)
	if err := vklib.FromResult(ret, "CreateGraphicsPipelines(layer)"); err != nil {
		return nil, err
	}
	return pipelines[0], nil
}

func (lr *LayerRenderer) createShaderModule(spirv []byte) (vk.ShaderModule, error) {
	var module vk.ShaderModule
	ret := vk.CreateShaderModule(lr.bundle.Device, &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(spirv)),
		PCode:    sliceUint32(spirv),
	}, nil, &module)
	return module, vklib.FromResult(ret, "CreateShaderModule(layer)")
}

// sliceUint32 reinterprets a SPIR-V byte blob as the uint32 slice
// vk.ShaderModuleCreateInfo.PCode expects, mirroring vkres.sliceUint32
// for this package's own shader modules.
func sliceUint32(b []byte) []uint32 {
	vklib.Invariant(len(b)%4 == 0, "vkrender.sliceUint32", "SPIR-V blob length not a multiple of 4")
	out := make([]uint32, len(b)/4)
	for i := range out {
		out[i] = uint32(b[i*4]) | uint32(b[i*4+1])<<8 | uint32(b[i*4+2])<<16 | uint32(b[i*4+3])<<24
	}
	return out
}

// SetLayers replaces the layer list composited on the next Draw call.
func (lr *LayerRenderer) SetLayers(layers []Layer) { lr.layers = layers }

// pipelineFor picks one of BuildPipelines' pipelines for a layer, per
// spec §4.6 step 3 "Select pipeline by layer type and by the
// unpremultiplied-alpha flag."
func (lr *LayerRenderer) pipelineFor(l Layer) vk.Pipeline {
	switch l.Type {
	case LayerEquirect1:
		return lr.pipelines[pipelineEquirect1]
	case LayerEquirect2:
		return lr.pipelines[pipelineEquirect2]
	case LayerCube:
		return lr.pipelines[pipelineCube]
	default:
		if l.UnpremultipliedAlpha {
			return lr.pipelines[pipelineMeshUnpremultiplied]
		}
		return lr.pipelines[pipelineMeshPremultiplied]
	}
}

// createFallbackDescriptor allocates the one descriptor set every layer
// draw binds until SetFallbackTexture points it at a real source image.
func (lr *LayerRenderer) createFallbackDescriptor() error {
	ret := vk.CreateDescriptorPool(lr.bundle.Device, &vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       1,
		PoolSizeCount: 1,
		PPoolSizes:    []vk.DescriptorPoolSize{{Type: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: 1}},
	}, nil, &lr.descriptorPool)
	if err := vklib.FromResult(ret, "CreateDescriptorPool(layer)"); err != nil {
		return err
	}

	ret = vk.AllocateDescriptorSets(lr.bundle.Device, &vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     lr.descriptorPool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{lr.descriptorLayout},
	}, &lr.fallbackSet)
	return vklib.FromResult(ret, "AllocateDescriptorSets(layer)")
}

// SetFallbackTexture points the shared fallback descriptor set at view,
// sampled with sampler. Callers with real per-client swapchain images
// should still call this at least once at startup (with, e.g., the
// RenderResources mock image) so the descriptor set is never left
// pointing at a null view.
func (lr *LayerRenderer) SetFallbackTexture(view vk.ImageView, sampler vk.Sampler) {
	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          lr.fallbackSet,
		DstBinding:      0,
		DescriptorCount: 1,
		DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
		PImageInfo: []vk.DescriptorImageInfo{{
			Sampler:     sampler,
			ImageView:   view,
			ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
		}},
	}
	vk.UpdateDescriptorSets(lr.bundle.Device, 1, []vk.WriteDescriptorSet{write}, 0, nil)
}

// mat4Bytes flattens a column-major linmath Mat4x4 into the 64-byte
// push-constant payload createPipelineLayout's PushConstantRange expects.
func mat4Bytes(m lin.Mat4x4) []byte {
	flat := make([]float32, 16)
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			flat[c*4+r] = m[c][r]
		}
	}
	return float32sToBytes(flat)
}

// Draw implements spec §4.6 steps 1-4 for one eye: begin the render pass
// against that eye's framebuffer with an opaque-grey clear (the spec's
// "fills uncovered regions with opaque grey, not black, so a compositor
// bug is visually distinct from an intentionally black layer"), bind the
// shared quad VBO once, and for every layer in z-order push its transform
// and issue a draw call with the pipeline pipelineFor selects.
func (lr *LayerRenderer) Draw(cb vk.CommandBuffer, eye int, m eyeMatrices) {
	fb := lr.eyes[eye]
	clear := vk.NewClearValue([]float32{0.5, 0.5, 0.5, 1})
	vk.CmdBeginRenderPass(cb, &vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  lr.renderPass,
		Framebuffer: fb.Framebuffer,
		RenderArea:  vk.Rect2D{Extent: vk.Extent2D{Width: fb.Width, Height: fb.Height}},
		ClearValueCount: 1,
		PClearValues:    []vk.ClearValue{clear},
	}, vk.SubpassContentsInline)

	viewport := vk.Viewport{Width: float32(fb.Width), Height: float32(fb.Height), MinDepth: 0, MaxDepth: 1}
	scissor := vk.Rect2D{Extent: vk.Extent2D{Width: fb.Width, Height: fb.Height}}
	vk.CmdSetViewport(cb, 0, 1, []vk.Viewport{viewport})
	vk.CmdSetScissor(cb, 0, 1, []vk.Rect2D{scissor})

	offsets := []vk.DeviceSize{0}
	vk.CmdBindVertexBuffers(cb, 0, 1, []vk.Buffer{lr.quadVBO}, offsets)

	for _, l := range lr.layers {
		pipeline := lr.pipelineFor(l)
		if pipeline == vk.NullPipeline {
			continue
		}
		vk.CmdBindPipeline(cb, vk.PipelineBindPointGraphics, pipeline)
		vk.CmdBindDescriptorSets(cb, vk.PipelineBindPointGraphics, lr.pipelineLayout, 0, 1, []vk.DescriptorSet{lr.fallbackSet}, 0, nil)
		transform := mat4Bytes(m.TransformFor(l))
		vk.CmdPushConstants(cb, lr.pipelineLayout, vk.ShaderStageFlags(vk.ShaderStageVertexBit), 0, uint32(len(transform)), unsafe.Pointer(&transform[0]))
		vk.CmdDraw(cb, uint32(len(quadVertices)), 1, 0, 0)
	}

	vk.CmdEndRenderPass(cb)
}

// Destroy releases every Vulkan object LayerRenderer owns. Handle types
// without a confirmed named Null constant in this binding are compared
// against vk.XxxType(vk.NullHandle), the pattern the corpus uses for
// PipelineCache/Fence casts rather than guessing at a Null<Type> name.
func (lr *LayerRenderer) Destroy() {
	for i := range lr.pipelines {
		if lr.pipelines[i] != vk.NullPipeline {
			vk.DestroyPipeline(lr.bundle.Device, lr.pipelines[i], nil)
		}
	}
	if lr.pipelineLayout != vk.PipelineLayout(vk.NullHandle) {
		vk.DestroyPipelineLayout(lr.bundle.Device, lr.pipelineLayout, nil)
	}
	if lr.descriptorLayout != vk.DescriptorSetLayout(vk.NullHandle) {
		vk.DestroyDescriptorSetLayout(lr.bundle.Device, lr.descriptorLayout, nil)
	}
	if lr.quadVBO != vk.Buffer(vk.NullHandle) {
		vk.DestroyBuffer(lr.bundle.Device, lr.quadVBO, nil)
	}
	if lr.descriptorPool != vk.DescriptorPool(vk.NullHandle) {
		vk.DestroyDescriptorPool(lr.bundle.Device, lr.descriptorPool, nil)
	}
	if lr.quadMemory != vk.DeviceMemory(vk.NullHandle) {
		vk.FreeMemory(lr.bundle.Device, lr.quadMemory, nil)
	}
	for i := range lr.eyes {
		if lr.eyes[i].Framebuffer != vk.Framebuffer(vk.NullHandle) {
			vk.DestroyFramebuffer(lr.bundle.Device, lr.eyes[i].Framebuffer, nil)
		}
		if lr.eyes[i].View != vk.NullImageView {
			vk.DestroyImageView(lr.bundle.Device, lr.eyes[i].View, nil)
		}
		if lr.eyes[i].Image != vk.Image(vk.NullHandle) {
			vk.DestroyImage(lr.bundle.Device, lr.eyes[i].Image, nil)
		}
		if lr.eyes[i].Memory != vk.DeviceMemory(vk.NullHandle) {
			vk.FreeMemory(lr.bundle.Device, lr.eyes[i].Memory, nil)
		}
	}
	if lr.renderPass != vk.NullRenderPass {
		vk.DestroyRenderPass(lr.bundle.Device, lr.renderPass, nil)
	}
}
