// Package vkres owns RenderResources (spec §4.3): the one-time GPU asset
// bundle the renderer builds at startup and reuses every frame — pipeline
// cache, descriptor pools/layouts, samplers, UBOs, the precomputed
// distortion images, the compute scratch image, the 1x1 mock image, and
// the timestamp query pool. Grounded on the teacher's pipeline.go
// (CorePipeline), renderpass.go (CoreRenderPass), buffers.go (CoreBuffer/
// NewCoreUniformBuffer) merged with original_source's render_compute.c /
// render_util.c for the compute-path descriptor layout and distortion/
// scratch image shapes.
package vkres

// Shaders is the opaque SPIR-V bundle RenderResources is built from (spec
// §4.3: "a Shaders bundle (opaque SPIR-V blobs)"). Equirect2/Cube are
// optional: a nil blob skips building that pipeline variant. The
// equirect1 pipeline is always built.
type Shaders struct {
	Clear              []byte
	Distortion         []byte
	MeshVert, MeshFrag []byte

	LayerVert, LayerFrag []byte
	Equirect1Vert        []byte
	Equirect1Frag        []byte
	Equirect2Vert        []byte
	Equirect2Frag        []byte
	CubeVert             []byte
	CubeFrag             []byte
}

// HasEquirect1/HasEquirect2/HasCube report whether this bundle carries
// both blobs of that layer pipeline variant.
func (s Shaders) HasEquirect1() bool { return s.Equirect1Vert != nil && s.Equirect1Frag != nil }
func (s Shaders) HasEquirect2() bool { return s.Equirect2Vert != nil && s.Equirect2Frag != nil }
func (s Shaders) HasCube() bool      { return s.CubeVert != nil && s.CubeFrag != nil }
