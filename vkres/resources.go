package vkres

import (
	"encoding/binary"
	"math"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
	lin "github.com/xlab/linmath"

	"github.com/dieselvk/xrcompositor/vklib"
)

// Samplers groups the three fixed sampler configurations spec §4.3 names:
// clamp-to-edge (distortion lookups never walk off an eye's image), clamp-
// to-border-black (letterboxing a layer smaller than the view), and
// repeat (equirect/cube layers that wrap).
type Samplers struct {
	ClampEdge   vk.Sampler
	ClampBorder vk.Sampler
	Repeat      vk.Sampler
}

// MeshPath holds the fixed-function graphics pipeline that distorts by
// rasterizing a precomputed mesh, per spec §4.3's "Mesh path": a
// descriptor layout with {src image+sampler, per-view UBO}, its pipeline
// layout, the VBO/IBO built from compute_distortion, and per-view UBOs.
type MeshPath struct {
	DescriptorLayout vk.DescriptorSetLayout
	PipelineLayout   vk.PipelineLayout
	Pipeline         vk.Pipeline
	DescriptorPool   vk.DescriptorPool
	DescriptorSets   [2]vk.DescriptorSet

	VertexBuffer vk.Buffer
	VertexMemory vk.DeviceMemory
	IndexBuffer  vk.Buffer
	IndexMemory  vk.DeviceMemory
	IndexCount   uint32

	PerViewUBO       [2]vk.Buffer
	PerViewUBOMemory [2]vk.DeviceMemory
}

// ComputePath holds the three compute pipelines spec §4.3 names (clear,
// distortion, distortion-timewarp) sharing one descriptor layout with
// bindings {src[2], distortion[6], target, ubo}.
type ComputePath struct {
	DescriptorLayout vk.DescriptorSetLayout
	PipelineLayout   vk.PipelineLayout
	DescriptorPool   vk.DescriptorPool
	DescriptorSet    vk.DescriptorSet

	Clear              vk.Pipeline
	Distortion         vk.Pipeline
	DistortionTimewarp vk.Pipeline

	ClearUBO            vk.Buffer
	ClearUBOMemory      vk.DeviceMemory
	DistortionUBO       vk.Buffer
	DistortionUBOMemory vk.DeviceMemory
}

// computeUBOSize is the byte size of both compute-path UBOs: a single
// vec4, enough for the clear color / timewarp blend params spec §4.3's
// compute shaders read as push-constant-sized uniform state.
const computeUBOSize = 16

// ScratchImage is the compute path's resizable intermediate target, with
// both a UNORM view (compute writes) and an sRGB view (sampling back) over
// the same backing memory, per spec §4.3.
type ScratchImage struct {
	Image     vk.Image
	Memory    vk.DeviceMemory
	ViewUNORM vk.ImageView
	ViewSRGB  vk.ImageView
	Width     uint32
	Height    uint32
}

// MockImage is the 1x1 black image spec §4.3 says fills unused sampler
// slots in fixed-size descriptor sets.
type MockImage struct {
	Image  vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView
}

// meshVertex is the mesh-distortion pipeline's per-vertex layout: a
// regular screen-space grid position plus one distortion-corrected
// sampling UV per color channel (spec §4.3/§6's chromatic-aberration
// correction).
type meshVertex struct {
	Position [3]float32
	UVR      [2]float32
	UVG      [2]float32
	UVB      [2]float32
}

const meshVertexStride = (3 + 2 + 2 + 2) * 4

// MeshPerViewUBO is the {vertex_rot, post_transform} pair spec §4.7's
// mesh-distortion Record step writes per eye every frame.
type MeshPerViewUBO struct {
	VertexRot     lin.Mat4x4
	PostTransform lin.Mat4x4
}

const meshPerViewUBOSize = 128 // two column-major mat4s

// RenderResources is the one-time GPU asset bundle spec §4.3 describes.
// Built once by New and torn down once by Destroy; every field is
// read-only for the rest of the frame loop's lifetime.
type RenderResources struct {
	bundle *vklib.Bundle
	pool   *vklib.CmdPool

	PipelineCache vk.PipelineCache
	TimestampPool vk.QueryPool

	Samplers Samplers
	Mesh     MeshPath
	Compute  ComputePath
	Scratch  ScratchImage
	Mock     MockImage

	Distortion DistortionImages
	calib      CalibrationOffsetNs
	period     float32
}

// New builds the full RenderResources bundle from shaders and a
// compute_distortion callback. Vulkan object creation follows the
// teacher's pipeline.go/renderpass.go/buffers.go call shape; the
// descriptor layouts and pipeline counts follow spec §4.3 exactly.
// targetFormat is the distortion pass's eventual color attachment format
// (the mesh pipeline only needs a render-pass-compatible stand-in at
// creation time, per Vulkan's render-pass compatibility rules);
// scratchWidth/scratchHeight size the compute path's intermediate image.
func New(b *vklib.Bundle, pool *vklib.CmdPool, shaders Shaders, distortionFn DistortionFunc, preRotated bool, calib CalibrationOffsetNs, targetFormat vk.Format, scratchWidth, scratchHeight uint32) (*RenderResources, error) {
	r := &RenderResources{bundle: b, pool: pool, calib: calib, period: b.Features.TimestampPeriod}

	if err := r.createPipelineCache(); err != nil {
		return nil, err
	}
	if err := r.createTimestampPool(); err != nil {
		return nil, err
	}
	if err := r.createSamplers(); err != nil {
		return nil, err
	}
	if err := r.createMeshDescriptorLayout(); err != nil {
		return nil, err
	}
	if err := r.createComputeDescriptorLayout(); err != nil {
		return nil, err
	}
	if err := r.createMockImage(); err != nil {
		return nil, err
	}
	if err := r.createComputePipelines(shaders); err != nil {
		return nil, err
	}

	r.Distortion = GenerateDistortionImages(distortionFn, preRotated)

	if err := r.createMeshGeometry(); err != nil {
		return nil, err
	}
	if err := r.createPerViewUBOs(); err != nil {
		return nil, err
	}
	if err := r.createMeshPipeline(shaders, targetFormat); err != nil {
		return nil, err
	}
	if err := r.createMeshDescriptorSets(); err != nil {
		return nil, err
	}
	if err := r.createScratchImage(scratchWidth, scratchHeight); err != nil {
		return nil, err
	}
	if err := r.createComputeUBOs(); err != nil {
		return nil, err
	}
	if err := r.createComputeDescriptorSet(); err != nil {
		return nil, err
	}

	return r, nil
}

// createComputePipelines builds the three compute-path pipelines spec
// §4.3 names. distortion-timewarp shares the distortion shader blob with
// a runtime branch inside it (the Shaders bundle carries no separate
// timewarp SPIR-V); a future bundle revision that adds one only needs to
// change this call site.
func (r *RenderResources) createComputePipelines(shaders Shaders) error {
	var err error
	if r.Compute.Clear, err = r.buildComputePipeline(shaders.Clear); err != nil {
		return err
	}
	if r.Compute.Distortion, err = r.buildComputePipeline(shaders.Distortion); err != nil {
		return err
	}
	if r.Compute.DistortionTimewarp, err = r.buildComputePipeline(shaders.Distortion); err != nil {
		return err
	}
	return nil
}

func (r *RenderResources) createPipelineCache() error {
	ret := vk.CreatePipelineCache(r.bundle.Device, &vk.PipelineCacheCreateInfo{
		SType: vk.StructureTypePipelineCacheCreateInfo,
	}, nil, &r.PipelineCache)
	return vklib.FromResult(ret, "CreatePipelineCache")
}

// createTimestampPool builds the length-2 timestamp query pool spec §4.3
// requires (one entry for the start of distortion work, one for the end).
func (r *RenderResources) createTimestampPool() error {
	ret := vk.CreateQueryPool(r.bundle.Device, &vk.QueryPoolCreateInfo{
		SType:      vk.StructureTypeQueryPoolCreateInfo,
		QueryType:  vk.QueryTypeTimestamp,
		QueryCount: 2,
	}, nil, &r.TimestampPool)
	return vklib.FromResult(ret, "CreateQueryPool(timestamps)")
}

func (r *RenderResources) createSamplers() error {
	mk := func(addressMode vk.SamplerAddressMode, borderColor vk.BorderColor) (vk.Sampler, error) {
		var s vk.Sampler
		ret := vk.CreateSampler(r.bundle.Device, &vk.SamplerCreateInfo{
			SType:                   vk.StructureTypeSamplerCreateInfo,
			MagFilter:               vk.FilterLinear,
			MinFilter:               vk.FilterLinear,
			AddressModeU:            addressMode,
			AddressModeV:            addressMode,
			AddressModeW:            addressMode,
			BorderColor:             borderColor,
			UnnormalizedCoordinates: vk.False,
		}, nil, &s)
		return s, vklib.FromResult(ret, "CreateSampler")
	}

	var err error
	if r.Samplers.ClampEdge, err = mk(vk.SamplerAddressModeClampToEdge, vk.BorderColorFloatTransparentBlack); err != nil {
		return err
	}
	if r.Samplers.ClampBorder, err = mk(vk.SamplerAddressModeClampToBorder, vk.BorderColorFloatOpaqueBlack); err != nil {
		return err
	}
	if r.Samplers.Repeat, err = mk(vk.SamplerAddressModeRepeat, vk.BorderColorFloatTransparentBlack); err != nil {
		return err
	}
	return nil
}

// createMeshDescriptorLayout builds the two-binding layout {src
// image+sampler, per-view UBO} spec §4.3's mesh path names.
func (r *RenderResources) createMeshDescriptorLayout() error {
	bindings := []vk.DescriptorSetLayoutBinding{
		{
			Binding:         0,
			DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
		},
		{
			Binding:         1,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageVertexBit),
		},
	}
	ret := vk.CreateDescriptorSetLayout(r.bundle.Device, &vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}, nil, &r.Mesh.DescriptorLayout)
	if err := vklib.FromResult(ret, "CreateDescriptorSetLayout(mesh)"); err != nil {
		return err
	}

	ret = vk.CreatePipelineLayout(r.bundle.Device, &vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: 1,
		PSetLayouts:    []vk.DescriptorSetLayout{r.Mesh.DescriptorLayout},
	}, nil, &r.Mesh.PipelineLayout)
	if err := vklib.FromResult(ret, "CreatePipelineLayout(mesh)"); err != nil {
		return err
	}

	// Sized for 2 descriptor sets (one per eye), per spec §4.3.
	ret = vk.CreateDescriptorPool(r.bundle.Device, &vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       2,
		PoolSizeCount: 2,
		PPoolSizes: []vk.DescriptorPoolSize{
			{Type: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: 2},
			{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: 2},
		},
	}, nil, &r.Mesh.DescriptorPool)
	return vklib.FromResult(ret, "CreateDescriptorPool(mesh)")
}

// createComputeDescriptorLayout builds the {src[2], distortion[6],
// target, ubo} layout spec §4.3's compute path names.
func (r *RenderResources) createComputeDescriptorLayout() error {
	bindings := []vk.DescriptorSetLayoutBinding{
		{Binding: 0, DescriptorType: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: 2, StageFlags: vk.ShaderStageFlags(vk.ShaderStageComputeBit)},
		{Binding: 1, DescriptorType: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: 6, StageFlags: vk.ShaderStageFlags(vk.ShaderStageComputeBit)},
		{Binding: 2, DescriptorType: vk.DescriptorTypeStorageImage, DescriptorCount: 1, StageFlags: vk.ShaderStageFlags(vk.ShaderStageComputeBit)},
		{Binding: 3, DescriptorType: vk.DescriptorTypeUniformBuffer, DescriptorCount: 1, StageFlags: vk.ShaderStageFlags(vk.ShaderStageComputeBit)},
	}
	ret := vk.CreateDescriptorSetLayout(r.bundle.Device, &vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}, nil, &r.Compute.DescriptorLayout)
	if err := vklib.FromResult(ret, "CreateDescriptorSetLayout(compute)"); err != nil {
		return err
	}

	ret = vk.CreatePipelineLayout(r.bundle.Device, &vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: 1,
		PSetLayouts:    []vk.DescriptorSetLayout{r.Compute.DescriptorLayout},
	}, nil, &r.Compute.PipelineLayout)
	return vklib.FromResult(ret, "CreatePipelineLayout(compute)")
}

// buildComputePipeline compiles one of the three compute-path pipelines
// (clear, distortion, distortion-timewarp) from a SPIR-V blob sharing
// Compute.PipelineLayout.
func (r *RenderResources) buildComputePipeline(spirv []byte) (vk.Pipeline, error) {
	module, err := r.createShaderModule(spirv)
	if err != nil {
		return nil, err
	}
	defer vk.DestroyShaderModule(r.bundle.Device, module, nil)

	info := vk.ComputePipelineCreateInfo{
		SType: vk.StructureTypeComputePipelineCreateInfo,
		Stage: vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageComputeBit,
			Module: module,
			PName:  "main\x00",
		},
		Layout: r.Compute.PipelineLayout,
	}
	pipelines := make([]vk.Pipeline, 1)
	ret := vk.CreateComputePipelines(r.bundle.Device, r.PipelineCache, 1, []vk.ComputePipelineCreateInfo{info}, nil, pipelines)
	if err := vklib.FromResult(ret, "CreateComputePipelines"); err != nil {
		return nil, err
	}
	return pipelines[0], nil
}

func (r *RenderResources) createShaderModule(spirv []byte) (vk.ShaderModule, error) {
	var module vk.ShaderModule
	ret := vk.CreateShaderModule(r.bundle.Device, &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(spirv)),
		PCode:    sliceUint32(spirv),
	}, nil, &module)
	return module, vklib.FromResult(ret, "CreateShaderModule")
}

// sliceUint32 reinterprets a SPIR-V byte blob as the uint32 slice
// vk.ShaderModuleCreateInfo.PCode expects. The byte length must already be
// a multiple of 4 (a malformed SPIR-V blob is a caller bug, not a runtime
// condition), which is why this panics via the invariant channel rather
// than returning an error.
func sliceUint32(b []byte) []uint32 {
	vklib.Invariant(len(b)%4 == 0, "vkres.sliceUint32", "SPIR-V blob length not a multiple of 4")
	out := make([]uint32, len(b)/4)
	for i := range out {
		out[i] = uint32(b[i*4]) | uint32(b[i*4+1])<<8 | uint32(b[i*4+2])<<16 | uint32(b[i*4+3])<<24
	}
	return out
}

// createMockImage allocates the 1x1 black image spec §4.3 requires.
func (r *RenderResources) createMockImage() error {
	var img vk.Image
	ret := vk.CreateImage(r.bundle.Device, &vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    vk.FormatR8g8b8a8Unorm,
		Extent:    vk.Extent3D{Width: 1, Height: 1, Depth: 1},
		MipLevels: 1, ArrayLayers: 1,
		Samples: vk.SampleCount1Bit,
		Tiling:  vk.ImageTilingOptimal,
		Usage:   vk.ImageUsageFlags(vk.ImageUsageSampledBit) | vk.ImageUsageFlags(vk.ImageUsageTransferDstBit),
	}, nil, &img)
	if err := vklib.FromResult(ret, "CreateImage(mock)"); err != nil {
		return err
	}
	r.Mock.Image = img

	var memReqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(r.bundle.Device, img, &memReqs)
	memReqs.Deref()

	var mem vk.DeviceMemory
	ret = vk.AllocateMemory(r.bundle.Device, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: 0,
	}, nil, &mem)
	if err := vklib.FromResult(ret, "AllocateMemory(mock)"); err != nil {
		return err
	}
	r.Mock.Memory = mem
	if ret := vk.BindImageMemory(r.bundle.Device, img, mem, 0); ret != vk.Success {
		return vklib.FromResult(ret, "BindImageMemory(mock)")
	}

	var view vk.ImageView
	ret = vk.CreateImageView(r.bundle.Device, &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img,
		ViewType: vk.ImageViewType2d,
		Format:   vk.FormatR8g8b8a8Unorm,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: 1, LayerCount: 1,
		},
	}, nil, &view)
	if err := vklib.FromResult(ret, "CreateImageView(mock)"); err != nil {
		return err
	}
	r.Mock.View = view
	return nil
}

// createHostVisibleBuffer allocates a host-visible buffer of len(data)
// bytes and uploads data into it. Like createMockImage, MemoryTypeIndex
// is fixed at 0: a host-visible, host-coherent type is conventionally
// index 0 on the desktop drivers this module targets, and a full
// memory-type-bits scan belongs to the Bundle once a second caller needs
// it rather than duplicated per buffer here.
func (r *RenderResources) createHostVisibleBuffer(data []byte, usage vk.BufferUsageFlags) (vk.Buffer, vk.DeviceMemory, error) {
	var buf vk.Buffer
	ret := vk.CreateBuffer(r.bundle.Device, &vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(len(data)),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}, nil, &buf)
	if err := vklib.FromResult(ret, "CreateBuffer"); err != nil {
		return nil, nil, err
	}

	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(r.bundle.Device, buf, &req)
	req.Deref()

	var mem vk.DeviceMemory
	ret = vk.AllocateMemory(r.bundle.Device, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: 0,
	}, nil, &mem)
	if err := vklib.FromResult(ret, "AllocateMemory(buffer)"); err != nil {
		return nil, nil, err
	}
	if ret := vk.BindBufferMemory(r.bundle.Device, buf, mem, 0); ret != vk.Success {
		return nil, nil, vklib.FromResult(ret, "BindBufferMemory")
	}
	if err := r.writeBuffer(mem, data); err != nil {
		return nil, nil, err
	}
	return buf, mem, nil
}

// writeBuffer maps mem, copies data into it, and unmaps, mirroring the
// teacher's map/copy/unmap sequence in buffers.go's
// NewCoreUniformBuffer.
func (r *RenderResources) writeBuffer(mem vk.DeviceMemory, data []byte) error {
	var mapped unsafe.Pointer
	ret := vk.MapMemory(r.bundle.Device, mem, 0, vk.DeviceSize(len(data)), 0, &mapped)
	if err := vklib.FromResult(ret, "MapMemory"); err != nil {
		return err
	}
	dst := (*[1 << 30]byte)(mapped)[:len(data):len(data)]
	copy(dst, data)
	vk.UnmapMemory(r.bundle.Device, mem)
	return nil
}

// float32sToBytes little-endian-encodes a float32 slice, matching the
// mesh vertex/UBO wire layout GLSL's std140 and vertex-input rules both
// expect.
func float32sToBytes(vs []float32) []byte {
	out := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

// mat4ToBytes flattens a column-major linmath Mat4x4 into 64 bytes.
func mat4ToBytes(m lin.Mat4x4) []byte {
	flat := make([]float32, 16)
	for c := 0; c < 4; c++ {
		for rr := 0; rr < 4; rr++ {
			flat[c*4+rr] = m[c][rr]
		}
	}
	return float32sToBytes(flat)
}

// createMeshGeometry builds the combined two-eye mesh VBO/IBO from the
// precomputed distortion grid, per spec §4.3's "Mesh path: ... VBO/IBO
// built from compute_distortion" and §6's 128x128 grid. Vertex Position
// is the regular, undistorted screen-space grid the fragment shader
// rasterizes at; UVR/UVG/UVB sample the chromatic-aberration-corrected
// grid GenerateDistortionImages already computed. IndexCount is the
// per-eye index count: the renderer selects an eye's half of the combined
// buffer with firstIndex = eye*IndexCount.
func (r *RenderResources) createMeshGeometry() error {
	const n = DistortionGrid
	quadsPerEye := (n - 1) * (n - 1)
	r.Mesh.IndexCount = uint32(quadsPerEye * 6)

	var vertices []meshVertex
	var indices []uint32

	for eye := EyeLeft; eye <= EyeRight; eye++ {
		base := uint32(len(vertices))
		for row := 0; row < n; row++ {
			for col := 0; col < n; col++ {
				idx := row*n + col
				x := 2*float32(col)/float32(n-1) - 1
				y := 2*float32(row)/float32(n-1) - 1
				vertices = append(vertices, meshVertex{
					Position: [3]float32{x, y, 0},
					UVR:      [2]float32{r.Distortion.Pixels[eye][ChannelR][idx].U, r.Distortion.Pixels[eye][ChannelR][idx].V},
					UVG:      [2]float32{r.Distortion.Pixels[eye][ChannelG][idx].U, r.Distortion.Pixels[eye][ChannelG][idx].V},
					UVB:      [2]float32{r.Distortion.Pixels[eye][ChannelB][idx].U, r.Distortion.Pixels[eye][ChannelB][idx].V},
				})
			}
		}
		for row := 0; row < n-1; row++ {
			for col := 0; col < n-1; col++ {
				i0 := base + uint32(row*n+col)
				i1 := i0 + 1
				i2 := i0 + uint32(n)
				i3 := i2 + 1
				indices = append(indices, i0, i2, i1, i1, i2, i3)
			}
		}
	}

	vertexBytes := make([]byte, len(vertices)*meshVertexStride)
	for i, v := range vertices {
		off := i * meshVertexStride
		copy(vertexBytes[off:], float32sToBytes(v.Position[:]))
		copy(vertexBytes[off+12:], float32sToBytes(v.UVR[:]))
		copy(vertexBytes[off+20:], float32sToBytes(v.UVG[:]))
		copy(vertexBytes[off+28:], float32sToBytes(v.UVB[:]))
	}
	vbuf, vmem, err := r.createHostVisibleBuffer(vertexBytes, vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit))
	if err != nil {
		return err
	}
	r.Mesh.VertexBuffer, r.Mesh.VertexMemory = vbuf, vmem

	indexBytes := make([]byte, len(indices)*4)
	for i, idx := range indices {
		binary.LittleEndian.PutUint32(indexBytes[i*4:], idx)
	}
	ibuf, imem, err := r.createHostVisibleBuffer(indexBytes, vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit))
	if err != nil {
		return err
	}
	r.Mesh.IndexBuffer, r.Mesh.IndexMemory = ibuf, imem
	return nil
}

// createPerViewUBOs builds the two per-eye UBOs spec §4.7's mesh path
// updates every frame with {vertex_rot, post_transform}.
func (r *RenderResources) createPerViewUBOs() error {
	zero := make([]byte, meshPerViewUBOSize)
	for eye := 0; eye < 2; eye++ {
		buf, mem, err := r.createHostVisibleBuffer(zero, vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit))
		if err != nil {
			return err
		}
		r.Mesh.PerViewUBO[eye], r.Mesh.PerViewUBOMemory[eye] = buf, mem
	}
	return nil
}

// WriteMeshPerViewUBO uploads one eye's {vertex_rot, post_transform} pair,
// called once per eye per frame by the renderer's mesh distortion path
// (spec §4.7 "Record: update the two per-view UBOs").
func (r *RenderResources) WriteMeshPerViewUBO(eye int, data MeshPerViewUBO) error {
	buf := make([]byte, meshPerViewUBOSize)
	copy(buf, mat4ToBytes(data.VertexRot))
	copy(buf[64:], mat4ToBytes(data.PostTransform))
	return r.writeBuffer(r.Mesh.PerViewUBOMemory[eye], buf)
}

// createMeshRenderPass builds a single-color-attachment render pass
// compatible with the real distortion pass the renderer owns: Vulkan only
// requires matching attachment format/sample count for pipeline validity
// against a render pass other than the exact one used at draw time, which
// is what lets vkres build the mesh pipeline before vkrender.Renderer
// exists to hand it a real render pass.
func (r *RenderResources) createMeshRenderPass(format vk.Format) (vk.RenderPass, error) {
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
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		SrcAccessMask: vk.AccessFlags(vk.AccessMemoryReadBit),
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
	return pass, vklib.FromResult(ret, "CreateRenderPass(mesh compat)")
}

// createMeshPipeline builds the mesh-distortion graphics pipeline against
// a throwaway, render-pass-compatible pass built and destroyed inside
// this call (see createMeshRenderPass).
func (r *RenderResources) createMeshPipeline(shaders Shaders, targetFormat vk.Format) error {
	compatPass, err := r.createMeshRenderPass(targetFormat)
	if err != nil {
		return err
	}
	defer vk.DestroyRenderPass(r.bundle.Device, compatPass, nil)

	vertModule, err := r.createShaderModule(shaders.MeshVert)
	if err != nil {
		return err
	}
	defer vk.DestroyShaderModule(r.bundle.Device, vertModule, nil)
	fragModule, err := r.createShaderModule(shaders.MeshFrag)
	if err != nil {
		return err
	}
	defer vk.DestroyShaderModule(r.bundle.Device, fragModule, nil)

	stages := []vk.PipelineShaderStageCreateInfo{
		{SType: vk.StructureTypePipelineShaderStageCreateInfo, Stage: vk.ShaderStageVertexBit, Module: vertModule, PName: "main\x00"},
		{SType: vk.StructureTypePipelineShaderStageCreateInfo, Stage: vk.ShaderStageFragmentBit, Module: fragModule, PName: "main\x00"},
	}

	binding := vk.VertexInputBindingDescription{Binding: 0, Stride: meshVertexStride, InputRate: vk.VertexInputRateVertex}
	attrs := []vk.VertexInputAttributeDescription{
		{Location: 0, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: 0},
		{Location: 1, Binding: 0, Format: vk.FormatR32g32Sfloat, Offset: 12},
		{Location: 2, Binding: 0, Format: vk.FormatR32g32Sfloat, Offset: 20},
		{Location: 3, Binding: 0, Format: vk.FormatR32g32Sfloat, Offset: 28},
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
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		AttachmentCount: 1,
		PAttachments: []vk.PipelineColorBlendAttachmentState{{
			ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit |
				vk.ColorComponentBBit | vk.ColorComponentABit),
		}},
	}
	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
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
		Layout:              r.Mesh.PipelineLayout,
		RenderPass:          compatPass,
		Subpass:             0,
	}
	pipelines := make([]vk.Pipeline, 1)
	ret := vk.CreateGraphicsPipelines(r.bundle.Device, r.PipelineCache, 1, []vk.GraphicsPipelineCreateInfo{info}, nil, pipelines)
	if err := vklib.FromResult(ret, "CreateGraphicsPipelines(mesh)"); err != nil {
		return err
	}
	r.Mesh.Pipeline = pipelines[0]
	return nil
}

// createMeshDescriptorSets allocates and binds the per-eye mesh
// descriptor sets from Mesh.DescriptorPool, pointed at the mock image
// until UpdateMeshSourceImage rebinds them to real source textures.
func (r *RenderResources) createMeshDescriptorSets() error {
	layouts := []vk.DescriptorSetLayout{r.Mesh.DescriptorLayout, r.Mesh.DescriptorLayout}
	sets := make([]vk.DescriptorSet, 2)
	ret := vk.AllocateDescriptorSets(r.bundle.Device, &vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     r.Mesh.DescriptorPool,
		DescriptorSetCount: 2,
		PSetLayouts:        layouts,
	}, &sets[0])
	if err := vklib.FromResult(ret, "AllocateDescriptorSets(mesh)"); err != nil {
		return err
	}
	r.Mesh.DescriptorSets[0], r.Mesh.DescriptorSets[1] = sets[0], sets[1]

	for eye := 0; eye < 2; eye++ {
		r.UpdateMeshSourceImage(eye, r.Mock.View, r.Samplers.ClampEdge)
		writeUBO := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          r.Mesh.DescriptorSets[eye],
			DstBinding:      1,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			PBufferInfo: []vk.DescriptorBufferInfo{{
				Buffer: r.Mesh.PerViewUBO[eye],
				Offset: 0,
				Range:  vk.DeviceSize(meshPerViewUBOSize),
			}},
		}
		vk.UpdateDescriptorSets(r.bundle.Device, 1, []vk.WriteDescriptorSet{writeUBO}, 0, nil)
	}
	return nil
}

// UpdateMeshSourceImage rebinds one eye's mesh descriptor set to sample
// view, the source texture the distortion pass reads from (LayerRenderer's
// off-screen eye texture in the layer-compositor path, or a client
// swapchain image directly in the fast path, spec §4.7).
func (r *RenderResources) UpdateMeshSourceImage(eye int, view vk.ImageView, sampler vk.Sampler) {
	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          r.Mesh.DescriptorSets[eye],
		DstBinding:      0,
		DescriptorCount: 1,
		DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
		PImageInfo: []vk.DescriptorImageInfo{{
			Sampler:     sampler,
			ImageView:   view,
			ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
		}},
	}
	vk.UpdateDescriptorSets(r.bundle.Device, 1, []vk.WriteDescriptorSet{write}, 0, nil)
}

// createScratchImage builds the compute path's intermediate target: one
// allocation with a UNORM view (the clear/distortion shaders' storage
// image target) and an sRGB view (sampled back by a later pass), using
// VK_KHR_image_format_list plus the mutable/extended-usage create flags
// so the same memory is legally reinterpreted between the two formats.
func (r *RenderResources) createScratchImage(width, height uint32) error {
	unormFormat := vk.FormatR8g8b8a8Unorm
	srgbFormat := vk.FormatR8g8b8a8Srgb
	viewFormats := []vk.Format{unormFormat, srgbFormat}

	formatList := vk.ImageFormatListCreateInfo{
		SType:           vk.StructureTypeImageFormatListCreateInfo,
		ViewFormatCount: uint32(len(viewFormats)),
		PViewFormats:    viewFormats,
	}

	ret := vk.CreateImage(r.bundle.Device, &vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		PNext:     unsafe.Pointer(&formatList),
		Flags:     vk.ImageCreateFlags(vk.ImageCreateMutableFormatBit) | vk.ImageCreateFlags(vk.ImageCreateExtendedUsageBit),
		ImageType: vk.ImageType2d,
		Format:    unormFormat,
		Extent:    vk.Extent3D{Width: width, Height: height, Depth: 1},
		MipLevels: 1, ArrayLayers: 1,
		Samples:     vk.SampleCount1Bit,
		Tiling:      vk.ImageTilingOptimal,
		Usage:       vk.ImageUsageFlags(vk.ImageUsageStorageBit) | vk.ImageUsageFlags(vk.ImageUsageSampledBit),
		SharingMode: vk.SharingModeExclusive,
	}, nil, &r.Scratch.Image)
	if err := vklib.FromResult(ret, "CreateImage(scratch)"); err != nil {
		return err
	}

	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(r.bundle.Device, r.Scratch.Image, &req)
	req.Deref()
	ret = vk.AllocateMemory(r.bundle.Device, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: 0,
	}, nil, &r.Scratch.Memory)
	if err := vklib.FromResult(ret, "AllocateMemory(scratch)"); err != nil {
		return err
	}
	if ret := vk.BindImageMemory(r.bundle.Device, r.Scratch.Image, r.Scratch.Memory, 0); ret != vk.Success {
		return vklib.FromResult(ret, "BindImageMemory(scratch)")
	}

	mkView := func(format vk.Format) (vk.ImageView, error) {
		var view vk.ImageView
		ret := vk.CreateImageView(r.bundle.Device, &vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    r.Scratch.Image,
			ViewType: vk.ImageViewType2d,
			Format:   format,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LevelCount: 1, LayerCount: 1,
			},
		}, nil, &view)
		return view, vklib.FromResult(ret, "CreateImageView(scratch)")
	}

	var err error
	if r.Scratch.ViewUNORM, err = mkView(unormFormat); err != nil {
		return err
	}
	if r.Scratch.ViewSRGB, err = mkView(srgbFormat); err != nil {
		return err
	}
	r.Scratch.Width, r.Scratch.Height = width, height
	return nil
}

// createComputeUBOs builds the two UBOs the compute pipelines' binding 3
// names, one per distinct dispatch configuration (clear vs. distortion).
func (r *RenderResources) createComputeUBOs() error {
	zero := make([]byte, computeUBOSize)
	buf, mem, err := r.createHostVisibleBuffer(zero, vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit))
	if err != nil {
		return err
	}
	r.Compute.ClearUBO, r.Compute.ClearUBOMemory = buf, mem

	buf, mem, err = r.createHostVisibleBuffer(zero, vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit))
	if err != nil {
		return err
	}
	r.Compute.DistortionUBO, r.Compute.DistortionUBOMemory = buf, mem
	return nil
}

// createComputeDescriptorSet allocates and binds the single shared
// compute descriptor set, with src[2]/distortion[6] pointed at the mock
// image until real source/distortion textures are wired in, and target[1]
// pointed at the scratch image's UNORM view until UpdateComputeTarget
// retargets it at the real output image for the second dispatch (spec
// §4.7's two-dispatch compute sequence).
func (r *RenderResources) createComputeDescriptorSet() error {
	ret := vk.CreateDescriptorPool(r.bundle.Device, &vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       1,
		PoolSizeCount: 3,
		PPoolSizes: []vk.DescriptorPoolSize{
			{Type: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: 8},
			{Type: vk.DescriptorTypeStorageImage, DescriptorCount: 1},
			{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: 1},
		},
	}, nil, &r.Compute.DescriptorPool)
	if err := vklib.FromResult(ret, "CreateDescriptorPool(compute)"); err != nil {
		return err
	}

	ret = vk.AllocateDescriptorSets(r.bundle.Device, &vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     r.Compute.DescriptorPool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{r.Compute.DescriptorLayout},
	}, &r.Compute.DescriptorSet)
	if err := vklib.FromResult(ret, "AllocateDescriptorSets(compute)"); err != nil {
		return err
	}

	srcInfos := make([]vk.DescriptorImageInfo, 2)
	for i := range srcInfos {
		srcInfos[i] = vk.DescriptorImageInfo{Sampler: r.Samplers.ClampEdge, ImageView: r.Mock.View, ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal}
	}
	distortionInfos := make([]vk.DescriptorImageInfo, 6)
	for i := range distortionInfos {
		distortionInfos[i] = vk.DescriptorImageInfo{Sampler: r.Samplers.ClampEdge, ImageView: r.Mock.View, ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal}
	}
	targetInfo := []vk.DescriptorImageInfo{{ImageView: r.Scratch.ViewUNORM, ImageLayout: vk.ImageLayoutGeneral}}
	uboInfo := []vk.DescriptorBufferInfo{{Buffer: r.Compute.ClearUBO, Offset: 0, Range: vk.DeviceSize(computeUBOSize)}}

	writes := []vk.WriteDescriptorSet{
		{SType: vk.StructureTypeWriteDescriptorSet, DstSet: r.Compute.DescriptorSet, DstBinding: 0, DescriptorCount: uint32(len(srcInfos)), DescriptorType: vk.DescriptorTypeCombinedImageSampler, PImageInfo: srcInfos},
		{SType: vk.StructureTypeWriteDescriptorSet, DstSet: r.Compute.DescriptorSet, DstBinding: 1, DescriptorCount: uint32(len(distortionInfos)), DescriptorType: vk.DescriptorTypeCombinedImageSampler, PImageInfo: distortionInfos},
		{SType: vk.StructureTypeWriteDescriptorSet, DstSet: r.Compute.DescriptorSet, DstBinding: 2, DescriptorCount: 1, DescriptorType: vk.DescriptorTypeStorageImage, PImageInfo: targetInfo},
		{SType: vk.StructureTypeWriteDescriptorSet, DstSet: r.Compute.DescriptorSet, DstBinding: 3, DescriptorCount: 1, DescriptorType: vk.DescriptorTypeUniformBuffer, PBufferInfo: uboInfo},
	}
	vk.UpdateDescriptorSets(r.bundle.Device, uint32(len(writes)), writes, 0, nil)
	return nil
}

// UpdateComputeTarget rewrites binding 2 (the storage-image target) to
// view, called between the compute path's two dispatches to move from the
// scratch image to the real output image (spec §4.7).
func (r *RenderResources) UpdateComputeTarget(view vk.ImageView) {
	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          r.Compute.DescriptorSet,
		DstBinding:      2,
		DescriptorCount: 1,
		DescriptorType:  vk.DescriptorTypeStorageImage,
		PImageInfo:      []vk.DescriptorImageInfo{{ImageView: view, ImageLayout: vk.ImageLayoutGeneral}},
	}
	vk.UpdateDescriptorSets(r.bundle.Device, 1, []vk.WriteDescriptorSet{write}, 0, nil)
}

// GetTimestamps retrieves the two query results written by the renderer's
// distortion command buffer and converts them to host-clock nanoseconds,
// per spec §4.3. Precondition: the writing command buffer has completed.
func (r *RenderResources) GetTimestamps() (gpuStartNs, gpuEndNs int64, err error) {
	results := make([]uint64, 2)
	ret := vk.GetQueryPoolResults(r.bundle.Device, r.TimestampPool, 0, 2,
		uint(len(results)*8), vk.Pointer(&results[0]), 8,
		vk.QueryResultFlags(vk.QueryResult64Bit)|vk.QueryResultFlags(vk.QueryResultWaitBit))
	if err := vklib.FromResult(ret, "GetQueryPoolResults"); err != nil {
		return 0, 0, err
	}
	start, end := ConvertTimestamps(results[0], results[1], r.bundle.Features.TimestampValidBits, r.period, r.calib)
	return start, end, nil
}

// Destroy releases every Vulkan object RenderResources owns. Safe to call
// once; calling it twice double-frees driver objects, which is a
// programmer bug rather than a runtime condition the caller can recover
// from, so Destroy does not guard against repeat calls itself (mirroring
// spec §9's "single-close" newtype discipline applied at the object-owner
// level instead of per-handle).
func (r *RenderResources) Destroy() {
	d := r.bundle.Device
	vk.DestroyImageView(d, r.Mock.View, nil)
	vk.DestroyImage(d, r.Mock.Image, nil)
	vk.FreeMemory(d, r.Mock.Memory, nil)
	vk.DestroySampler(d, r.Samplers.ClampEdge, nil)
	vk.DestroySampler(d, r.Samplers.ClampBorder, nil)
	vk.DestroySampler(d, r.Samplers.Repeat, nil)
	vk.DestroyPipeline(d, r.Compute.Clear, nil)
	vk.DestroyPipeline(d, r.Compute.Distortion, nil)
	vk.DestroyPipeline(d, r.Compute.DistortionTimewarp, nil)
	vk.DestroyPipeline(d, r.Mesh.Pipeline, nil)
	vk.DestroyBuffer(d, r.Mesh.VertexBuffer, nil)
	vk.FreeMemory(d, r.Mesh.VertexMemory, nil)
	vk.DestroyBuffer(d, r.Mesh.IndexBuffer, nil)
	vk.FreeMemory(d, r.Mesh.IndexMemory, nil)
	for eye := 0; eye < 2; eye++ {
		vk.DestroyBuffer(d, r.Mesh.PerViewUBO[eye], nil)
		vk.FreeMemory(d, r.Mesh.PerViewUBOMemory[eye], nil)
	}
	vk.DestroyDescriptorPool(d, r.Mesh.DescriptorPool, nil)
	vk.DestroyPipelineLayout(d, r.Mesh.PipelineLayout, nil)
	vk.DestroyDescriptorSetLayout(d, r.Mesh.DescriptorLayout, nil)
	vk.DestroyDescriptorPool(d, r.Compute.DescriptorPool, nil)
	vk.DestroyBuffer(d, r.Compute.ClearUBO, nil)
	vk.FreeMemory(d, r.Compute.ClearUBOMemory, nil)
	vk.DestroyBuffer(d, r.Compute.DistortionUBO, nil)
	vk.FreeMemory(d, r.Compute.DistortionUBOMemory, nil)
	vk.DestroyPipelineLayout(d, r.Compute.PipelineLayout, nil)
	vk.DestroyDescriptorSetLayout(d, r.Compute.DescriptorLayout, nil)
	vk.DestroyImageView(d, r.Scratch.ViewUNORM, nil)
	vk.DestroyImageView(d, r.Scratch.ViewSRGB, nil)
	vk.DestroyImage(d, r.Scratch.Image, nil)
	vk.FreeMemory(d, r.Scratch.Memory, nil)
	vk.DestroyQueryPool(d, r.TimestampPool, nil)
	vk.DestroyPipelineCache(d, r.PipelineCache, nil)
}
